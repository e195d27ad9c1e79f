package ggmlbuild

import (
	"fmt"
	"os/exec"
	"strings"
)

// ToolChecker is an optional interface for compilers that depend on
// external tools. The pipeline calls CheckTools before compiling so a missing
// tool fails fast with a readable message instead of a cryptic exec error.
//
//	if checker, ok := compiler.(ToolChecker); ok {
//	    if err := checker.CheckTools(); err != nil {
//	        return fmt.Errorf("build tools missing: %w", err)
//	    }
//	}
type ToolChecker interface {
	// RequiredTools returns the tools the compiler needs, optional ones included.
	RequiredTools() []ToolRequirement

	// CheckTools returns nil when every non-optional tool is available.
	CheckTools() error
}

// ToolRequirement describes a build tool dependency.
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "cmake", "git").
	Name string

	// Alternatives can satisfy the requirement in place of Name.
	Alternatives []string

	// Optional tools never fail CheckRequiredTools.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// CheckToolAvailable checks if a tool is available in the system PATH.
func CheckToolAvailable(tool string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return fmt.Errorf("%s not found in PATH", tool)
	}
	return nil
}

// satisfied reports whether req's tool or one of its alternatives is in PATH.
func (req ToolRequirement) satisfied() bool {
	for _, tool := range append([]string{req.Name}, req.Alternatives...) {
		if CheckToolAvailable(tool) == nil {
			return true
		}
	}
	return false
}

// MissingTools returns the requirements, optional ones included, whose tool
// and alternatives are all absent.
func MissingTools(requirements []ToolRequirement) []ToolRequirement {
	var missing []ToolRequirement
	for _, req := range requirements {
		if !req.satisfied() {
			missing = append(missing, req)
		}
	}
	return missing
}

// CheckRequiredTools verifies all non-optional tools are available and
// wraps the failure as ErrConfigurationUnavailable.
//
// Single missing tool:
//
//	cmake not found in PATH (required for: native ggml build)
//
// Multiple missing tools:
//
//	missing required tools: cmake (native ggml build), ninja
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range MissingTools(requirements) {
		if req.Optional {
			continue
		}
		if req.Purpose != "" {
			missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
		} else {
			missingTools = append(missingTools, req.Name)
		}
	}

	switch len(missingTools) {
	case 0:
		return nil
	case 1:
		name, purpose, _ := strings.Cut(missingTools[0], " (")
		if purpose != "" {
			return fmt.Errorf("%w: %s not found in PATH (required for: %s", ErrConfigurationUnavailable, name, purpose)
		}
		return fmt.Errorf("%w: %s not found in PATH", ErrConfigurationUnavailable, name)
	default:
		return fmt.Errorf("%w: missing required tools: %s", ErrConfigurationUnavailable, strings.Join(missingTools, ", "))
	}
}
