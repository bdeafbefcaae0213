package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("YM_TEST_NAME", "depot")
	p := writeFile(t, "name: ${YM_TEST_NAME}\nport: ${YM_TEST_PORT:-9090}\n")

	s := &sample{Port: 1}
	if err := Load(p, s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "depot" || s.Port != 9090 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	p := writeFile(t, "name: depot\n")
	s := &sample{Port: 8080}
	if err := Load(p, s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 8080 {
		t.Errorf("port = %d, want 8080", s.Port)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	p := writeFile(t, "port: 1\n")
	if err := Load(p, &sample{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	def := writeFile(t, "name: fallback\n")
	s := &sample{}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "fallback" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestLoadWithDefaultsMissingBoth(t *testing.T) {
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &sample{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("YM_SET", "a")
	t.Setenv("YM_EMPTY", "")
	cases := map[string]string{
		"$YM_SET":              "a",
		"${YM_SET:-b}":         "a",
		"${YM_EMPTY:-b}":       "b",
		"${YM_UNSET_VAR}":      "",
		"x-${YM_UNSET_VAR:-y}": "x-y",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}
