package mesh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `reference:
  dir: /scans/baseline_R
current:
  dir: /scans/followup_L
  side: left
exclude:
  - tibia
  - fibula
samplePoints: 5000
seed: 42
icp:
  maxIterations: 200
  convergenceThreshold: 1.0e-7
  allowScale: true
  alignCentroids: false
  maxMeanResidual: 0.5
output:
  dir: /tmp/out
  formats: [png, svg]
view:
  azimuth: 45
  elevation: 10
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: lab
logLevel: debug
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshalign.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadConfigOrDefault_Missing(t *testing.T) {
	cfg, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault: %v", err)
	}
	if cfg.SamplePoints != DefaultSamplePoints {
		t.Errorf("SamplePoints = %d, want %d", cfg.SamplePoints, DefaultSamplePoints)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML()))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Reference.Dir != "/scans/baseline_R" || cfg.Reference.Side != SideRight {
		t.Errorf("Reference = %+v", cfg.Reference)
	}
	if cfg.Current.Side != SideLeft {
		t.Errorf("Current.Side = %s, want left", cfg.Current.Side)
	}
	if len(cfg.Exclude) != 2 || cfg.Exclude[1] != "fibula" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.SamplePoints != 5000 || cfg.Seed != 42 {
		t.Errorf("SamplePoints/Seed = %d/%d", cfg.SamplePoints, cfg.Seed)
	}

	icp := cfg.ICP.ICPConfig()
	if icp.MaxIterations != 200 || icp.ConvergenceThreshold != 1e-7 {
		t.Errorf("ICP stopping rules = %d/%g", icp.MaxIterations, icp.ConvergenceThreshold)
	}
	if !icp.AllowScale || icp.AlignCentroids || icp.MaxMeanResidual != 0.5 {
		t.Errorf("ICP options = %+v", icp)
	}

	if cfg.Output.Dir != "/tmp/out" || len(cfg.Output.Formats) != 2 {
		t.Errorf("Output = %+v", cfg.Output)
	}
	// Unset view fields keep their defaults.
	if cfg.View.Azimuth != 45 || cfg.View.Width != 1024 || cfg.View.Height != 768 {
		t.Errorf("View = %+v", cfg.View)
	}
	if cfg.MQTT.PublishPrefix != "lab" || cfg.LogLevel != "debug" {
		t.Errorf("MQTT/LogLevel = %+v / %s", cfg.MQTT, cfg.LogLevel)
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "reference: [unterminated"))
	if !IsInputError(err) {
		t.Errorf("expected InputError, got %v", err)
	}

	_, err = LoadConfig(writeConfig(t, "current:\n  side: both\n"))
	if err == nil {
		t.Error("expected error for invalid side")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	icp := cfg.ICP.ICPConfig()
	if icp != DefaultICPConfig() {
		t.Errorf("ICPConfig() = %+v, want %+v", icp, DefaultICPConfig())
	}
	if cfg.Reference.Side != SideRight || cfg.Current.Side != SideRight {
		t.Error("sides should default to right")
	}
	if len(cfg.Exclude) != 0 {
		t.Errorf("Exclude = %v, want none", cfg.Exclude)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("a config without directories must not validate")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing reference", func(c *Config) { c.Reference.Dir = "" }},
		{"missing current", func(c *Config) { c.Current.Dir = "" }},
		{"zero samples", func(c *Config) { c.SamplePoints = 0 }},
		{"zero iterations", func(c *Config) { c.ICP.MaxIterations = 0 }},
		{"negative threshold", func(c *Config) { c.ICP.ConvergenceThreshold = -1 }},
		{"negative residual", func(c *Config) { c.ICP.MaxMeanResidual = -0.1 }},
		{"bad format", func(c *Config) { c.Output.Formats = []string{"png", "tiff"} }},
		{"negative view", func(c *Config) { c.View.Width = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Reference.Dir, cfg.Current.Dir = "ref", "cur"
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %q, got nil", tc.name)
			}
			if !IsInputError(err) {
				t.Errorf("error %v is not an InputError", err)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reference.Dir = "/a"
	cfg.Current = CollectionConfig{Dir: "/b_L", Side: SideAuto}
	cfg.Exclude = []string{"tibia"}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "side: auto") {
		t.Errorf("saved YAML does not spell out the side:\n%s", data)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Current != cfg.Current || got.Exclude[0] != "tibia" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" tibia, ,fibula,")
	if len(got) != 2 || got[0] != "tibia" || got[1] != "fibula" {
		t.Errorf("SplitList() = %q", got)
	}
	if SplitList("") != nil {
		t.Error("SplitList(\"\") should be nil")
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "meshalign.example.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config does not validate: %v", err)
	}
	if cfg.Current.Side != SideAuto {
		t.Errorf("current.side = %v, want auto", cfg.Current.Side)
	}
	if strings.Join(cfg.Exclude, ",") != "tibia,fibula" {
		t.Errorf("exclude = %v", cfg.Exclude)
	}
}

func TestConfig_ValidatePreview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reference.Dir = "scans/ref"
	if err := cfg.ValidatePreview(); err != nil {
		t.Errorf("ValidatePreview() error = %v", err)
	}
	if err := cfg.Validate(); !IsInputError(err) {
		t.Errorf("Validate() error = %v, want an input error for the missing current dir", err)
	}
	if cfg.Current.Dir != "" {
		t.Errorf("ValidatePreview modified the config: current.dir = %q", cfg.Current.Dir)
	}

	cfg.Reference.Dir = ""
	if err := cfg.ValidatePreview(); !IsInputError(err) {
		t.Errorf("ValidatePreview() error = %v, want an input error", err)
	}
}
