package ggmlbuild

import (
	"flag"
	"fmt"
	"go/token"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Default creates a new default config.
func Default() BuildConfig {
	return BuildConfig{
		WrapperHeader: "wrapper.h",
		BindingFile:   "ggml/bindings.go",
		Package:       "ggml",
		Platform:      HostPlatform(),
		LogLevel:      "info",
	}
}

// BindFlags configures the given FlagSet with the existing values from the
// config and prepares the FlagSet to parse the flags into it.
//
// Call it after setting defaults: current values become flag defaults.
func (c *BuildConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SourceDir, "source-dir", c.SourceDir, "Vendored ggml source tree")
	fs.StringVar(&c.WrapperHeader, "wrapper-header", c.WrapperHeader, "Binding entry header")
	fs.StringVar(&c.OutDir, "out-dir", c.OutDir, "Build output directory")

	fs.StringVar(&c.BindingFile, "binding-file", c.BindingFile, "Generated Go binding file")
	fs.StringVar(&c.Package, "package", c.Package, "Package name of the generated files")
	fs.BoolVar(&c.StageLibs, "stage-libs", c.StageLibs, "Copy static libraries next to the generated package")

	fs.Var(newFeaturesFlag(c.Features, &c.Features), "features", "Comma separated backend features to enable (cuda, metal, vulkan, ...)")
	fs.Var((*platformFlag)(&c.Platform), "platform", "Target platform")
	fs.StringVar(&c.Generator, "generator", c.Generator, "CMake generator")
	fs.IntVar(&c.Parallel, "parallel", c.Parallel, "Parallel build jobs (0 for the build tool default)")
	fs.StringVar(&c.CUDAPath, "cuda-path", c.CUDAPath, "CUDA toolkit root")
	fs.Var(newEnvFlag(c.Env, &c.Env), "env", "KEY=VALUE environment for the build tool (repeatable)")

	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Stream build tool output")
	fs.BoolVar(&c.CleanFirst, "clean", c.CleanFirst, "Remove the build tree before configuring")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
}

// Validate reports missing or unusable settings as ErrConfigurationUnavailable.
func (c *BuildConfig) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("%w: native source directory is not set", ErrConfigurationUnavailable)
	}
	if fi, err := os.Stat(c.SourceDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: native source directory %s does not exist", ErrConfigurationUnavailable, c.SourceDir)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: output directory is not set", ErrConfigurationUnavailable)
	}
	if c.WrapperHeader == "" {
		return fmt.Errorf("%w: wrapper header is not set", ErrConfigurationUnavailable)
	}
	if c.BindingFile == "" {
		return fmt.Errorf("%w: binding file is not set", ErrConfigurationUnavailable)
	}
	if !token.IsIdentifier(c.Package) {
		return fmt.Errorf("%w: invalid package name %q", ErrConfigurationUnavailable, c.Package)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("%w: parallel jobs must not be negative", ErrConfigurationUnavailable)
	}
	return nil
}

// TargetPlatform returns the configured platform, or the host platform.
func (c *BuildConfig) TargetPlatform() Platform {
	if c.Platform == "" {
		return HostPlatform()
	}
	return c.Platform
}

type featuresFlag []string

func newFeaturesFlag(val []string, p *[]string) flag.Value {
	*p = val
	return (*featuresFlag)(p)
}

func (f *featuresFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

// Set appends, so the flag may repeat.
func (f *featuresFlag) Set(s string) error {
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			*f = append(*f, name)
		}
	}
	return nil
}

type platformFlag Platform

func (p *platformFlag) String() string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func (p *platformFlag) Set(s string) error {
	*p = platformFlag(strings.ToLower(strings.TrimSpace(s)))
	return nil
}

type envFlag map[string]string

func newEnvFlag(val map[string]string, p *map[string]string) flag.Value {
	*p = val
	return (*envFlag)(p)
}

func (e *envFlag) String() string {
	if e == nil || *e == nil {
		return ""
	}
	pairs := make([]string, 0, len(*e))
	for k, v := range *e {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (e *envFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	if *e == nil {
		*e = make(map[string]string)
	}
	(*e)[k] = v
	return nil
}

// ParseTOMLConfig is a config file parser for ff. Top-level keys name flags,
// with underscores standing for dashes. Arrays are joined with commas and
// tables set one KEY=VALUE pair per entry, in key order.
//
//	source_dir = "third_party/ggml"
//	features = ["cuda", "vulkan"]
//
//	[env]
//	CC = "clang"
func ParseTOMLConfig(r io.Reader, set func(name, value string) error) error {
	var doc map[string]any
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return err
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := strings.ReplaceAll(k, "_", "-")
		switch v := doc[k].(type) {
		case []any:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = fmt.Sprint(item)
			}
			if err := set(name, strings.Join(items, ",")); err != nil {
				return err
			}
		case map[string]any:
			sub := make([]string, 0, len(v))
			for sk := range v {
				sub = append(sub, sk)
			}
			sort.Strings(sub)
			for _, sk := range sub {
				if err := set(name, fmt.Sprintf("%s=%v", sk, v[sk])); err != nil {
					return err
				}
			}
		default:
			if err := set(name, fmt.Sprint(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
