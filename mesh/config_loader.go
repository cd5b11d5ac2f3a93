package mesh

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSamplePoints matches the point count used for both clouds unless
// configured otherwise.
const DefaultSamplePoints = 10000

// DefaultConfig returns a configuration with every tunable set to its
// default. Input directories are left empty.
func DefaultConfig() *Config {
	icp := DefaultICPConfig()
	return &Config{
		Reference:    CollectionConfig{Side: SideRight},
		Current:      CollectionConfig{Side: SideRight},
		SamplePoints: DefaultSamplePoints,
		ICP: ICPSettings{
			MaxIterations:        icp.MaxIterations,
			ConvergenceThreshold: icp.ConvergenceThreshold,
		},
		Output: OutputConfig{Formats: []string{"png"}},
		View:   ViewConfig{Azimuth: 30, Elevation: 20, Width: 1024, Height: 768},
		MQTT:   MQTTConfig{PublishPrefix: "meshalign"},
	}
}

// LoadConfig loads the configuration from a YAML file on top of
// DefaultConfig. A missing file is an error; use LoadConfigOrDefault when
// the file is optional.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &InputError{Op: "parse config", Path: path, Err: err}
	}
	return config, nil
}

// LoadConfigOrDefault is LoadConfig that falls back to DefaultConfig when
// path does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate checks the values needed to run the pipeline.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &InputError{Op: "validate config", Err: fmt.Errorf(format, args...)}
	}

	if c.Reference.Dir == "" {
		return invalid("reference.dir is required")
	}
	if c.Current.Dir == "" {
		return invalid("current.dir is required")
	}
	if c.SamplePoints <= 0 {
		return invalid("samplePoints must be positive, got %d", c.SamplePoints)
	}
	if c.ICP.MaxIterations <= 0 {
		return invalid("icp.maxIterations must be positive, got %d", c.ICP.MaxIterations)
	}
	if c.ICP.ConvergenceThreshold <= 0 {
		return invalid("icp.convergenceThreshold must be positive, got %g", c.ICP.ConvergenceThreshold)
	}
	if c.ICP.MaxMeanResidual < 0 {
		return invalid("icp.maxMeanResidual must not be negative")
	}
	for _, f := range c.Output.Formats {
		if _, err := ParseImageFormat(f); err != nil {
			return invalid("output.formats: %v", err)
		}
	}
	if c.View.Width < 0 || c.View.Height < 0 {
		return invalid("view size must not be negative")
	}
	if c.LogLevel != "" {
		switch strings.ToLower(c.LogLevel) {
		case "debug", "info", "warn", "error":
		default:
			return invalid("logLevel %q is not one of debug, info, warn, error", c.LogLevel)
		}
	}
	return nil
}

// ValidatePreview checks a configuration used to display the reference
// collection on its own. The current directory may be empty.
func (c *Config) ValidatePreview() error {
	withCurrent := *c
	if withCurrent.Current.Dir == "" {
		withCurrent.Current.Dir = c.Reference.Dir
	}
	return withCurrent.Validate()
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// SplitList parses a comma-separated flag value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
