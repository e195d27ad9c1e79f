// Package ggmlbuild compiles a vendored ggml source tree and produces what a
// Go package needs to use it: link flags and generated cgo bindings.
//
// It is the Go counterpart of a build script that runs before the consuming
// package is compiled.
//
// # Basic Usage
//
// Build with the default cmake compiler:
//
//	cfg := ggmlbuild.Default()
//	cfg.SourceDir = "third_party/ggml"
//	cfg.OutDir = "build/ggml"
//	cfg.Features = []string{"cuda"}
//
//	p := ggmlbuild.NewPipeline(ggmlbuild.ShellRunner{}, log)
//	report, err := p.Run(ctx, &cfg)
//
// # Architecture
//
// A build passes through five components:
//
//	Pipeline
//	├── ResolveBackends  (feature flags -> BackendSet)
//	├── CMakeCompiler    (cmake configure, build, install)
//	├── PlanLinkage      (ordered link directives, rendered as cgo LDFLAGS)
//	├── MetadataExtractor (git revision and commit time)
//	└── GenerateBindings (header scan, allowlist filter, Go emission)
//
// The CPU backend is always built. Accelerators (CUDA, Vulkan, Metal, ...)
// are enabled by feature presence only and never imply one another.
//
// # Outputs
//
// Next to the binding file the pipeline writes zlink_<goos>.go, which carries
// the link flags. The output directory receives the install prefix of the
// native build, a YAML manifest and a stamp used by Stale to detect changes
// to the native headers.
//
// # Requirements
//
// Requires Go 1.25 or later and cmake in PATH. git is optional.
package ggmlbuild
