package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDir_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.GGUF", "a.gguf", "not-model.txt", "model.bin"} {
		writeFile(t, filepath.Join(dir, f), 1)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 2 || models[0].Name != "a.gguf" || models[1].Name != "b.GGUF" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestResolve_File(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.gguf")
	writeFile(t, p, 42)
	m, err := Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Path != p || m.Name != "m.gguf" || m.SizeBytes != 42 {
		t.Fatalf("unexpected model %+v", m)
	}
}

func TestResolve_DirectoryPicksFirstShard(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "m-00002-of-00002.gguf"), 20)
	writeFile(t, filepath.Join(dir, "m-00001-of-00002.gguf"), 10)
	writeFile(t, filepath.Join(dir, "README.md"), 5)
	m, err := Resolve(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Name != "m-00001-of-00002.gguf" || m.SizeBytes != 35 {
		t.Fatalf("unexpected model %+v", m)
	}
}

func TestResolve_Errors(t *testing.T) {
	if _, err := Resolve("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Resolve(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := Resolve(t.TempDir()); !errors.Is(err, ErrNoModel) {
		t.Fatalf("want ErrNoModel, got %v", err)
	}
}

func TestResolve_ExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, "x.gguf"), 3)
	m, err := Resolve("~/x.gguf")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Path != filepath.Join(home, "x.gguf") {
		t.Fatalf("unexpected path %q", m.Path)
	}
}
