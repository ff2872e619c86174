package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glimmerweave/gw/internal/config"
)

func TestDefaultManifest(t *testing.T) {
	m, err := config.LoadManifest(t.TempDir())
	if err != nil {
		t.Fatalf("missing manifest must not error: %v", err)
	}
	if m.Backend != config.BackendVM {
		t.Fatalf("default backend should be vm, got %s", m.Backend)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	content := "project_root: src\nstdlib_root: /opt/gw/std\nbackend: tree\n"
	if err := os.WriteFile(filepath.Join(dir, config.ManifestFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := config.LoadManifest(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Backend != config.BackendTree {
		t.Fatalf("backend not read: %s", m.Backend)
	}
	if m.ProjectRoot != filepath.Join(dir, "src") {
		t.Fatalf("relative project root not anchored: %s", m.ProjectRoot)
	}
	if m.StdlibRoot != "/opt/gw/std" {
		t.Fatalf("absolute stdlib root mangled: %s", m.StdlibRoot)
	}
}

func TestSourceExtHelpers(t *testing.T) {
	if !config.HasSourceExt("main.gw") || config.HasSourceExt("main.go") {
		t.Fatal("extension detection wrong")
	}
	if config.TrimSourceExt("main.gw") != "main" {
		t.Fatal("extension trimming wrong")
	}
}
