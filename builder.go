package ggmlbuild

import "context"

// Compiler runs the native build of the vendored ggml tree.
//
// Compile is a single blocking call: it returns only after the native build
// tool finished, with either the location of the build output or a fatal
// error. Whatever parallelism the tool uses internally is its own concern.
//
// # Example Implementation
//
//	type prebuilt struct{ dir string }
//
//	func (p prebuilt) Name() string { return "prebuilt" }
//
//	func (p prebuilt) Compile(ctx context.Context, config *BuildConfig, backends BackendSet) (*BuildResult, error) {
//	    return &BuildResult{Success: true, OutputDir: p.dir, LibDir: filepath.Join(p.dir, "lib")}, nil
//	}
type Compiler interface {
	// Name returns the human-readable name of the compiler, used in logs
	// and error messages.
	Name() string

	// Compile builds the native library with the given backends enabled.
	//
	// Returns:
	//   - BuildResult with Success=true, OutputDir and LibDir on success
	//   - BuildResult with Success=false and an ErrNativeBuild error otherwise
	Compile(ctx context.Context, config *BuildConfig, backends BackendSet) (*BuildResult, error)
}
