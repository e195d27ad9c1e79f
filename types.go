package ggmlbuild

import "context"

// BuildResult contains the output and status of a native build.
//
// After a build completes, this structure provides:
//   - Success status indicating if the build completed without errors
//   - Output lines captured from the build tool (stdout/stderr, verbatim)
//   - OutputDir, the install prefix the native build populated
//   - LibDir and Libraries, the static libraries found there
type BuildResult struct {
	Success   bool     // True if build completed successfully
	Output    []string // Lines of output from the build process
	OutputDir string   // Install prefix of the native build
	LibDir    string   // Directory holding the static libraries
	Libraries []string // Library names found in LibDir, without lib prefix and suffix
	Defines   []Define // Cache entries passed to the build tool
	Error     error    // Error if build failed, nil otherwise
}

// BuildConfig contains configuration for one build invocation.
//
// Source paths:
//   - SourceDir: the vendored ggml source tree (contains CMakeLists.txt and include/)
//   - WrapperHeader: the binding entry header, which includes the public ggml headers
//   - OutDir: build output directory, exclusively owned by one invocation
//
// Binding output:
//   - BindingFile: the generated Go file; its directory also receives the link file
//   - Package: Go package name of the generated files
//   - StageLibs: copy static libraries next to the generated package
//
// Build configuration:
//   - Features: enabled backend feature names (presence enables)
//   - Platform: target platform, host platform when empty
//   - Generator: cmake generator, cmake's default when empty
//   - Parallel: number of parallel jobs (0 = tool default)
//   - CUDAPath: CUDA toolkit root for runtime library search paths
//   - Env: environment variables for the build tool
type BuildConfig struct {
	// Source paths
	SourceDir     string
	WrapperHeader string
	OutDir        string

	// Binding output
	BindingFile string
	Package     string
	StageLibs   bool

	// Native build
	Features  []string
	Platform  Platform
	Generator string
	Parallel  int
	CUDAPath  string
	Env       map[string]string

	// Build options
	Verbose    bool
	CleanFirst bool
	LogLevel   string
}

// CommonBuildSteps defines the configure/build/find pattern of a native build.
//
//  1. Configure: generate the build tree
//  2. Build: compile and install into the output prefix
//  3. Find: locate the static libraries
type CommonBuildSteps struct {
	// ConfigureFunc prepares the build tree (e.g. cmake -S -B)
	ConfigureFunc func(ctx context.Context, config *BuildConfig, backends BackendSet, result *BuildResult) error

	// BuildFunc compiles and installs (e.g. cmake --build, cmake --install)
	BuildFunc func(ctx context.Context, config *BuildConfig, result *BuildResult) error

	// FindFunc locates the compiled static libraries
	FindFunc func(result *BuildResult) error
}
