package ggmlbuild

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStageLibrariesCopiesOnlyBuiltLibraries(t *testing.T) {
	libDir := t.TempDir()

	for _, name := range []string{"libggml.a", "libggml-base.a", "libggml-cpu.a", "libstale.a", "ggml.pc"} {
		if err := os.WriteFile(filepath.Join(libDir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	result := &BuildResult{
		LibDir:    libDir,
		Libraries: []string{"ggml", "ggml-base", "ggml-cpu"},
	}

	dest := filepath.Join(t.TempDir(), "lib", "linux")
	staged, err := stageLibraries(result, dest)
	if err != nil {
		t.Fatalf("stageLibraries returned error: %v", err)
	}
	if staged != dest {
		t.Fatalf("expected staged dir %s, got %s", dest, staged)
	}

	for _, name := range []string{"libggml.a", "libggml-base.a", "libggml-cpu.a"} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Fatalf("expected %s staged: %v", name, err)
		}
		if string(data) != name {
			t.Errorf("unexpected content of %s: %q", name, data)
		}
	}

	for _, name := range []string{"libstale.a", "ggml.pc"} {
		if _, err := os.Stat(filepath.Join(dest, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s not to be staged", name)
		}
	}
}

func TestStageDir(t *testing.T) {
	config := &BuildConfig{BindingFile: filepath.Join("pkg", "ggml", "bindings.go")}

	got := stageDir(config, "darwin")
	want := filepath.Join("pkg", "ggml", "lib", "darwin")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestCopyFilePreservesMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "libggml.a")
	if err := os.WriteFile(src, []byte("archive"), 0o600); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "nested", "libggml.a")
	if err := copyFile(src, dest); err != nil {
		t.Fatalf("copyFile returned error: %v", err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	destInfo, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("expected copied file: %v", err)
	}
	if srcInfo.Mode() != destInfo.Mode() {
		t.Errorf("expected mode %v, got %v", srcInfo.Mode(), destInfo.Mode())
	}
}

func TestStageLibrariesMissingLibDir(t *testing.T) {
	result := &BuildResult{LibDir: filepath.Join(t.TempDir(), "absent"), Libraries: []string{"ggml"}}

	if _, err := stageLibraries(result, t.TempDir()); err == nil {
		t.Fatal("expected error for missing lib dir")
	}
}
