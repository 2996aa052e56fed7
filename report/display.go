package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/solver"
)

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6b7280")
	warn   = lipgloss.Color("#FFC107")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle  = lipgloss.NewStyle().Foreground(muted).Width(18)
	headerStyle = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(warn)
)

// Column widths of the step table.
const (
	colIter      = 8
	colSimTime   = 15
	colVariation = 20
	colCompTime  = 15
)

// Parameters renders the run parameters in a box.
func Parameters(p params.Parameters, backend string) string {
	rows := [][2]string{
		{"Grid", fmt.Sprintf("%d x %d x %d", p.NX, p.NY, p.NZ)},
		{"Points", fmt.Sprintf("%d (%d interior)", p.TotalPoints(), p.InteriorCount())},
		{"Spacing", fmt.Sprintf("dx=%.4g dy=%.4g dz=%.4g", p.DX, p.DY, p.DZ)},
		{"Time step", fmt.Sprintf("%.3e", p.DT)},
		{"Stability limit", fmt.Sprintf("%.3e", p.CFLLimit())},
		{"Iterations", fmt.Sprintf("%d (final time %.4g)", p.MaxIterations, p.FinalTime())},
		{"Output every", fmt.Sprintf("%d", p.OutputFrequency)},
		{"Backend", backend},
	}
	lines := []string{titleStyle.Render("heat3d parameters")}
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r[0])+r[1])
	}
	if !p.Stable() {
		lines = append(lines, warnStyle.Render("dt exceeds the stability limit"))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// StepHeader is the header line of the step table.
func StepHeader() string {
	return headerStyle.Render(pad("Iter", colIter) + pad("Sim Time", colSimTime) +
		pad("Variation", colVariation) + "Comp Time (ms)")
}

// StepRow formats one report under StepHeader.
func StepRow(r solver.StepReport) string {
	return pad(fmt.Sprintf("%d", r.Iteration), colIter) +
		pad(fmt.Sprintf("%.3e", r.SimTime), colSimTime) +
		pad(fmt.Sprintf("%.3e", r.Variation), colVariation) +
		pad(fmt.Sprintf("%.3f", r.StepWallMillis()), colCompTime)
}

// StepWriter returns a sink printing the header once and a row per report.
func StepWriter(w io.Writer) solver.Sink {
	header := false
	return func(r solver.StepReport) error {
		if !header {
			if _, err := fmt.Fprintln(w, StepHeader()); err != nil {
				return err
			}
			header = true
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(StepRow(r), " "))
		return err
	}
}

// TimerSummary renders every timer with its share of Total.
func TimerSummary(ts *Timers) string {
	total := ts.Get(TimerTotal).Millis()
	lines := []string{titleStyle.Render("timers")}
	for _, name := range ts.Names() {
		t := ts.Get(name)
		share := ""
		if total > 0 && name != TimerTotal {
			share = fmt.Sprintf(" (%5.1f%%)", 100*t.Millis()/total)
		}
		lines = append(lines, labelStyle.Render(name)+fmt.Sprintf("%12.3f ms%s", t.Millis(), share))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}
