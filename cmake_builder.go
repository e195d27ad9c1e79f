package ggmlbuild

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Build tool constants
const (
	cmakeProgram = "cmake"
	ninjaProgram = "ninja"
	buildProfile = "Release"
)

// Define is one cmake cache entry passed as -D<Name>=<Value>.
type Define struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

func (d Define) String() string {
	return fmt.Sprintf("-D%s=%s", d.Name, d.Value)
}

// fixedDefines are set on every build regardless of the selected backends.
var fixedDefines = []Define{
	{"BUILD_SHARED_LIBS", "OFF"},
	{"GGML_BUILD_TESTS", "OFF"},
	{"GGML_BUILD_EXAMPLES", "OFF"},
	{"GGML_BACKEND_DL", "OFF"},
	{"GGML_ACCELERATE", "OFF"},
	{"GGML_BLAS", "OFF"},
}

// NativeDefines returns the cmake cache entries for a build: the fixed
// settings followed by one ON/OFF toggle for every known backend, disabled
// ones included.
func NativeDefines(backends BackendSet) []Define {
	defines := append([]Define(nil), fixedDefines...)
	for _, b := range OptionalBackends() {
		value := "OFF"
		if backends.Enabled(b) {
			value = "ON"
		}
		defines = append(defines, Define{Name: b.CMakeToggle(), Value: value})
	}
	return defines
}

// CMakeCompiler builds the ggml tree with cmake.
type CMakeCompiler struct {
	Runner Runner
	Log    *zap.Logger
	// LookPath finds ninja when no generator is configured. Defaults to
	// exec.LookPath.
	LookPath func(file string) (string, error)
}

// NewCMakeCompiler returns a CMakeCompiler running commands through r.
func NewCMakeCompiler(r Runner, log *zap.Logger) *CMakeCompiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CMakeCompiler{Runner: r, Log: log}
}

// Name returns the compiler name
func (b *CMakeCompiler) Name() string {
	return "CMake"
}

// Compile configures, builds and installs the native library.
func (b *CMakeCompiler) Compile(ctx context.Context, config *BuildConfig, backends BackendSet) (*BuildResult, error) {
	return runCommonBuild(ctx, config, backends, CommonBuildSteps{
		ConfigureFunc: b.configure,
		BuildFunc:     b.build,
		FindFunc:      b.findLibraries,
	})
}

// RequiredTools implements ToolChecker.
func (b *CMakeCompiler) RequiredTools() []ToolRequirement {
	return []ToolRequirement{
		{Name: cmakeProgram, Purpose: "native ggml build"},
		{Name: ninjaProgram, Optional: true, Purpose: "Ninja generator, used when no generator is configured"},
		{Name: "git", Optional: true, Purpose: "revision metadata"},
	}
}

// CheckTools implements ToolChecker.
func (b *CMakeCompiler) CheckTools() error {
	return CheckRequiredTools(b.RequiredTools())
}

func buildDir(config *BuildConfig) string {
	return filepath.Join(config.OutDir, "build")
}

func installDir(config *BuildConfig) string {
	return filepath.Join(config.OutDir, "install")
}

// configure runs cmake to generate the build tree
func (b *CMakeCompiler) configure(ctx context.Context, config *BuildConfig, backends BackendSet, result *BuildResult) error {
	if config.CleanFirst {
		if err := os.RemoveAll(buildDir(config)); err != nil {
			return BuildError("CMake clean", result.Output, err)
		}
	}

	result.Defines = NativeDefines(backends)

	args := []string{
		"-S", config.SourceDir,
		"-B", buildDir(config),
		"-DCMAKE_BUILD_TYPE=" + buildProfile,
		"-DCMAKE_INSTALL_PREFIX=" + installDir(config),
		"-DCMAKE_INSTALL_LIBDIR=lib",
	}

	if generator := b.generator(config); generator != "" {
		args = append(args, "-G", generator)
	}

	for _, d := range result.Defines {
		args = append(args, d.String())
	}

	return b.run(ctx, config, "CMake configure", result, args...)
}

// build compiles and installs into the output prefix
func (b *CMakeCompiler) build(ctx context.Context, config *BuildConfig, result *BuildResult) error {
	args := []string{"--build", buildDir(config), "--config", buildProfile}

	if config.Parallel > 0 {
		args = append(args, "--parallel", fmt.Sprintf("%d", config.Parallel))
	}

	if err := b.run(ctx, config, "CMake build", result, args...); err != nil {
		return err
	}

	return b.run(ctx, config, "CMake install", result,
		"--install", buildDir(config), "--config", buildProfile)
}

func (b *CMakeCompiler) run(ctx context.Context, config *BuildConfig, stage string, result *BuildResult, args ...string) error {
	b.Log.Debug("Running", zap.String("stage", stage), zap.String("cmd", cmakeProgram+" "+strings.Join(args, " ")))

	output, err := b.Runner.Run(ctx, config.Env, cmakeProgram, args...)
	result.Output = append(result.Output, splitLines(output)...)

	if err != nil {
		return BuildError(stage, result.Output, err)
	}

	return nil
}

// findLibraries locates the static libraries in the install prefix
func (b *CMakeCompiler) findLibraries(result *BuildResult) error {
	for _, dir := range []string{"lib", "lib64"} {
		libDir := filepath.Join(result.OutputDir, dir)
		names, err := staticLibraries(libDir)
		if err != nil {
			return BuildError("CMake find", result.Output, err)
		}
		if len(names) > 0 {
			result.LibDir = libDir
			result.Libraries = names
			return nil
		}
	}

	return BuildError("CMake find", result.Output,
		fmt.Errorf("no static libraries found under %s", result.OutputDir))
}

// staticLibraries lists library names (libggml.a -> ggml, ggml.lib -> ggml)
// in dir. A missing dir yields no names.
func staticLibraries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := staticLibraryName(e.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func staticLibraryName(file string) (string, bool) {
	switch {
	case strings.HasSuffix(file, ".a"):
		return strings.TrimPrefix(strings.TrimSuffix(file, ".a"), "lib"), true
	case strings.HasSuffix(file, ".lib"):
		return strings.TrimSuffix(file, ".lib"), true
	default:
		return "", false
	}
}

// generator returns the cmake generator for the build
func (b *CMakeCompiler) generator(config *BuildConfig) string {
	if config.Generator != "" {
		return config.Generator
	}

	if generator := os.Getenv("CMAKE_GENERATOR"); generator != "" {
		return generator
	}

	if runtime.GOOS == platformWindows {
		// cgo links with MinGW.
		return "MinGW Makefiles"
	}

	lookPath := b.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(ninjaProgram); err == nil {
		return "Ninja"
	}

	return ""
}
