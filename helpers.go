package ggmlbuild

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes of a build. Each is fatal; wrap with %w and test with errors.Is.
var (
	// ErrConfigurationUnavailable reports missing required configuration.
	ErrConfigurationUnavailable = errors.New("configuration unavailable")
	// ErrNativeBuild reports a failing native build tool.
	ErrNativeBuild = errors.New("native build failed")
	// ErrBindingGeneration reports that no binding surface could be produced.
	ErrBindingGeneration = errors.New("binding generation failed")
)

// BuildError wraps err as an ErrNativeBuild failure of the named stage and
// appends the tool output verbatim.
//
// With output:
//
//	CMake configure: native build failed: exit status 1
//
//	Build output:
//	CMake Error at CMakeLists.txt:3 (project):
//	  No CMAKE_CXX_COMPILER could be found.
func BuildError(stage string, output []string, err error) error {
	outputStr := strings.TrimRight(strings.Join(output, "\n"), "\n")

	var prefix error
	if err != nil {
		prefix = fmt.Errorf("%s: %w: %w", stage, ErrNativeBuild, err)
	} else {
		prefix = fmt.Errorf("%s: %w", stage, ErrNativeBuild)
	}

	if outputStr != "" {
		return fmt.Errorf("%w\n\nBuild output:\n%s", prefix, outputStr)
	}

	return prefix
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}
