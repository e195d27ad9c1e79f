package ggmlbuild

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/imports"
)

// LinkFileName returns the name of the generated link file for platform.
// A GOOS suffix also makes the file build only on that platform.
func LinkFileName(platform Platform) string {
	suffix := platform.GOOS()
	if suffix == "" {
		suffix = strings.ToLower(string(platform))
	}
	return "zlink_" + suffix + ".go"
}

// RenderLinkFile returns a Go file carrying flags as cgo LDFLAGS.
func RenderLinkFile(pkg string, platform Platform, flags []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("// Code generated by ggml-build. DO NOT EDIT.\n\n")
	if goos := platform.GOOS(); goos != "" {
		fmt.Fprintf(&buf, "//go:build %s\n\n", goos)
	}
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	fmt.Fprintf(&buf, "// #cgo LDFLAGS: %s\n", cgoArgs(flags))
	buf.WriteString("import \"C\"\n")

	src, err := imports.Process(LinkFileName(platform), buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: link file: %w", ErrBindingGeneration, err)
	}
	return src, nil
}

// cgoArgs joins flags for a #cgo directive. cgo splits directive arguments
// with shell-like quoting; flags it would split or unescape are
// single-quoted.
func cgoArgs(flags []string) string {
	args := make([]string, len(flags))
	for i, f := range flags {
		if !strings.ContainsAny(f, " \t'\"\\") {
			args[i] = f
			continue
		}
		args[i] = "'" + cgoQuoteReplacer.Replace(f) + "'"
	}
	return strings.Join(args, " ")
}

var cgoQuoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// WriteLinkFile writes the link file for plan into dir and returns its path.
// Search paths under dir are written relative to ${SRCDIR}.
func WriteLinkFile(dir, pkg string, platform Platform, plan []LinkDirective) (string, error) {
	src, err := RenderLinkFile(pkg, platform, LDFlags(plan, dir))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, LinkFileName(platform))
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
