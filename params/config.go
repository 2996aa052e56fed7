package params

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names understood by the CLI.
const (
	BackendHost     = "host"
	BackendSoftware = "software"
	BackendWebGPU   = "webgpu"
)

// ValidBackends lists the accepted values of Config.Backend.
var ValidBackends = []string{BackendHost, BackendSoftware, BackendWebGPU}

// Config is the YAML run configuration.
type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Time      TimeConfig      `yaml:"time"`
	Backend   string          `yaml:"backend"`
	Functions FunctionsConfig `yaml:"functions"`
	Kernels   KernelsConfig   `yaml:"kernels"`

	// History is an optional SQLite file receiving every reported step.
	History string `yaml:"history"`
	Debug   bool   `yaml:"debug"`
}

// GridConfig holds the subdivision counts of the unit cube.
type GridConfig struct {
	NX int `yaml:"nx"`
	NY int `yaml:"ny"`
	NZ int `yaml:"nz"`
}

// TimeConfig holds the explicit stepping settings.
type TimeConfig struct {
	DT              float64 `yaml:"dt"`
	MaxIterations   int     `yaml:"max_iterations"`
	OutputFrequency int     `yaml:"output_frequency"`
}

// FunctionsConfig points at user function sources. Empty paths select the
// embedded defaults.
type FunctionsConfig struct {
	Force            string `yaml:"force"`
	InitialCondition string `yaml:"initial_condition"`
}

// KernelsConfig overrides the embedded kernel templates with a directory.
type KernelsConfig struct {
	TemplateDir string `yaml:"template_dir"`
}

// DefaultConfig returns a small stable run on the software device.
func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{NX: 32, NY: 32, NZ: 32},
		Time: TimeConfig{
			DT:              5e-5,
			MaxIterations:   100,
			OutputFrequency: 10,
		},
		Backend: BackendSoftware,
	}
}

// Load reads a YAML config on top of DefaultConfig. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if b := strings.TrimSpace(os.Getenv("HEAT3D_BACKEND")); b != "" {
		c.Backend = strings.ToLower(b)
	}
}

// Validate checks the backend name and the numeric settings.
func (c *Config) Validate() error {
	valid := false
	for _, b := range ValidBackends {
		if c.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: unknown backend %q (want one of %s)", ErrInvalid, c.Backend, strings.Join(ValidBackends, ", "))
	}
	_, err := c.Parameters()
	return err
}

// Parameters converts the grid and time sections into a Parameters record.
func (c *Config) Parameters() (Parameters, error) {
	return New(c.Grid.NX, c.Grid.NY, c.Grid.NZ, c.Time.DT, c.Time.MaxIterations, c.Time.OutputFrequency)
}
