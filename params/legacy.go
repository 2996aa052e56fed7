package params

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadLegacy reads the plain "key=value" parameters file: one assignment per
// line, blank lines and lines starting with '#' ignored. Required keys are
// nx, ny, nz, dt, max_iterations and output_frequency.
func LoadLegacy(path string) (Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("impossible to open the file %s: %w", path, err)
	}
	defer f.Close()
	return ParseLegacy(f)
}

// ParseLegacy parses the "key=value" format from r.
func ParseLegacy(r io.Reader) (Parameters, error) {
	values := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return Parameters{}, fmt.Errorf("failed to read parameters: %w", err)
	}

	ints := map[string]int{}
	for _, k := range []string{"nx", "ny", "nz", "max_iterations", "output_frequency"} {
		v, err := strconv.Atoi(values[k])
		if err != nil {
			return Parameters{}, fmt.Errorf("%w: error while parsing %s: %v", ErrInvalid, k, err)
		}
		ints[k] = v
	}
	dt, err := strconv.ParseFloat(values["dt"], 64)
	if err != nil {
		return Parameters{}, fmt.Errorf("%w: error while parsing dt: %v", ErrInvalid, err)
	}

	return New(ints["nx"], ints["ny"], ints["nz"], dt, ints["max_iterations"], ints["output_frequency"])
}
