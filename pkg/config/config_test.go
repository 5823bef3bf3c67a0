package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	m := c.Machine()
	if m.StackSize != 1024 || m.CallDepth != 1024 || m.Methods != 64 || m.Globals != 1024 {
		t.Errorf("Unexpected defaults %+v", m)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
	if c.LogFile() != nil {
		t.Error("Default log goes to stderr")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[vm]
stack_size = 256
methods = 16
max_steps = 5000

[log]
verbosity = 2
file = "yavm.log"

[batch]
workers = 8
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := c.Machine()
	if m.StackSize != 256 || m.Methods != 16 || m.MaxSteps != 5000 {
		t.Errorf("Unexpected vm config %+v", m)
	}
	// untouched keys keep defaults
	if m.CallDepth != 1024 || m.Globals != 1024 {
		t.Errorf("Defaults lost: %+v", m)
	}
	if c.Log.Verbosity != 2 || c.LogFile() == nil || *c.LogFile() != "yavm.log" {
		t.Errorf("Unexpected log config %+v", c.Log)
	}
	if c.Batch.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", c.Batch.Workers)
	}
	if c.Path != path {
		t.Errorf("Expected path %s, got %s", path, c.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":       "[vm\nstack_size = 1",
		"wrong type":   "[vm]\nstack_size = \"big\"",
		"invalid size": "[vm]\nstack_size = 0",
		"entry sp":     "[vm]\nstack_size = 8\nentry_sp = 8",
		"workers":      "[batch]\nworkers = 0",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), content)
			if _, err := Load(path); err == nil {
				t.Errorf("Expected error for %q", content)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[vm]\nglobals = 32\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.VM.Globals != 32 {
		t.Errorf("Expected globals 32 from parent config, got %d", c.VM.Globals)
	}
}
