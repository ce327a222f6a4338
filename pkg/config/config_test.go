package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name    string   `yaml:"name" toml:"name"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	p := writeFile(t, "c.yaml", "name: ${SAMPLE_NAME}\ntimeout: 250ms\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "from-env" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Timeout.Std() != 250*time.Millisecond {
		t.Errorf("timeout = %v", s.Timeout.Std())
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "c.toml", "name = \"toml\"\ntimeout = \"3s\"\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "toml" || s.Timeout.Std() != 3*time.Second {
		t.Errorf("got %+v", s)
	}
}

func TestLoadRunsValidation(t *testing.T) {
	p := writeFile(t, "c.yaml", "timeout: 1s\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	p := writeFile(t, "c.yaml", "name: x\ntimeout: soon\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeFile(t, "default.yaml", "name: default\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("name = %q", s.Name)
	}

	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &s); err == nil {
		t.Error("expected error without a default file")
	}
}
