package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ggmlbuild "github.com/contriboss/ggml-build-go"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "version", nil, &out))
	assert.True(t, strings.HasPrefix(out.String(), "ggml-build "), out.String())
}

func TestRunPlan(t *testing.T) {
	var out bytes.Buffer
	src := t.TempDir()

	err := run(context.Background(), "plan", []string{
		"-source-dir", src,
		"-out-dir", t.TempDir(),
		"-platform", "Linux",
		"-features", "vulkan",
		"-log-level", "error",
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "platform: linux (posix)", lines[0])
	assert.Contains(t, lines, "-DGGML_VULKAN=ON")
	assert.Contains(t, lines, "link-lib=static=ggml-vulkan")
	assert.Contains(t, lines, "link-lib=dylib=vulkan")
	assert.Contains(t, lines, "rerun-if-changed="+filepath.Join(src, "include"))
}

func TestRunPlanConfigFile(t *testing.T) {
	src := t.TempDir()
	config := filepath.Join(t.TempDir(), "ggml-build.toml")
	require.NoError(t, os.WriteFile(config, []byte(
		"source_dir = \""+filepath.ToSlash(src)+"\"\n"+
			"out_dir = \""+filepath.ToSlash(t.TempDir())+"\"\n"+
			"platform = \"windows\"\n"+
			"features = [\"cuda\"]\n"+
			"log_level = \"error\"\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "plan", []string{"-config", config}, &out))
	assert.Contains(t, out.String(), "link-lib=dylib=nvcuda\n")
}

func TestRunInvalidLogLevel(t *testing.T) {
	err := run(context.Background(), "plan", []string{"-source-dir", t.TempDir(), "-out-dir", t.TempDir(), "-log-level", "loud"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, ggmlbuild.ErrConfigurationUnavailable)
}

func TestRunMissingSource(t *testing.T) {
	err := run(context.Background(), "plan", []string{"-out-dir", t.TempDir(), "-log-level", "error"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, ggmlbuild.ErrConfigurationUnavailable)
}

func TestRunCheckStale(t *testing.T) {
	args := []string{"-source-dir", t.TempDir(), "-out-dir", t.TempDir(), "-log-level", "error"}

	err := run(context.Background(), "check", args, &bytes.Buffer{})
	assert.ErrorIs(t, err, errStale)
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), "deploy", []string{"-log-level", "error"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "deploy"`)
}

func TestRunHelp(t *testing.T) {
	assert.NoError(t, run(context.Background(), "build", []string{"-h"}, &bytes.Buffer{}))
}
