package ggmlbuild

import (
	"errors"
	"strings"
	"testing"
)

const missingTool = "ggml-build-missing-tool"

func TestCheckRequiredToolsSingleMissing(t *testing.T) {
	err := CheckRequiredTools([]ToolRequirement{
		{Name: missingTool, Purpose: "native ggml build"},
	})
	if err == nil {
		t.Fatal("expected error for missing tool")
	}
	if !errors.Is(err, ErrConfigurationUnavailable) {
		t.Errorf("expected ErrConfigurationUnavailable, got %v", err)
	}

	want := missingTool + " not found in PATH (required for: native ggml build)"
	if !strings.HasSuffix(err.Error(), want) {
		t.Errorf("expected message ending in %q, got %q", want, err.Error())
	}
}

func TestCheckRequiredToolsMultipleMissing(t *testing.T) {
	err := CheckRequiredTools([]ToolRequirement{
		{Name: missingTool + "-a", Purpose: "first"},
		{Name: missingTool + "-b"},
	})
	if err == nil {
		t.Fatal("expected error for missing tools")
	}

	want := "missing required tools: " + missingTool + "-a (first), " + missingTool + "-b"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected %q in %q", want, err.Error())
	}
}

func TestCheckRequiredToolsOptional(t *testing.T) {
	err := CheckRequiredTools([]ToolRequirement{
		{Name: missingTool, Optional: true},
	})
	if err != nil {
		t.Errorf("optional tools must not fail the check: %v", err)
	}

	missing := MissingTools([]ToolRequirement{{Name: missingTool, Optional: true}})
	if len(missing) != 1 {
		t.Errorf("expected optional tool reported as missing, got %v", missing)
	}
}

func TestCheckRequiredToolsAlternatives(t *testing.T) {
	self := goTool(t)

	err := CheckRequiredTools([]ToolRequirement{
		{Name: missingTool, Alternatives: []string{self}},
	})
	if err != nil {
		t.Errorf("an available alternative satisfies the requirement: %v", err)
	}
}

// goTool returns a tool name that is certainly in PATH while tests run.
func goTool(t *testing.T) string {
	t.Helper()
	for _, tool := range []string{"go", "sh", "cmd"} {
		if CheckToolAvailable(tool) == nil {
			return tool
		}
	}
	t.Skip("no well-known tool in PATH")
	return ""
}
