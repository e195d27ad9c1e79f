package ggmlbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Pipeline runs one build invocation from configuration to generated files.
//
// # Usage
//
//	p := ggmlbuild.NewPipeline(ggmlbuild.ShellRunner{}, log)
//	report, err := p.Run(ctx, &cfg)
//
// # Stages
//
// Run is strictly sequential and stops at the first failing stage:
//  1. Validate the configuration
//  2. Resolve the enabled backends
//  3. Check the compiler's tools, when it implements ToolChecker
//  4. Compile the native library
//  5. Plan the link directives, optionally staging the libraries first
//  6. Write the link file
//  7. Extract revision metadata (never fails)
//  8. Scan, filter and generate the bindings
//  9. Write the manifest and the rebuild stamp
//
// The manifest and stamp of a previous build are removed before compiling,
// so a failed rebuild is reported as stale.
//
// A Pipeline holds no per-build state; Run may be called for different
// configurations, but two calls must not share an OutDir.
type Pipeline struct {
	Compiler Compiler
	// Runner runs git for revision metadata. Defaults to ShellRunner.
	Runner Runner
	Log    *zap.Logger

	// Allowlist defaults to DefaultAllowlist.
	Allowlist []AllowlistRule
	// Bindings customises generation; Package, Includes, CFlags and
	// Metadata are always filled in from the build. Defaults to
	// DefaultBindingOptions.
	Bindings *BindingOptions
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewPipeline creates a pipeline compiling with cmake through r.
func NewPipeline(r Runner, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Compiler: NewCMakeCompiler(r, log.Named("cmake")),
		Runner:   r,
		Log:      log,
	}
}

// Report describes a finished build.
type Report struct {
	Platform   Platform
	Backends   BackendSet
	Result     *BuildResult
	Directives []LinkDirective
	LinkFile   string
	Bindings   *Bindings
	Metadata   BuildMetadata
	Manifest   *Manifest
}

// PlanReport is the outcome of Plan: what a build would do, without doing it.
type PlanReport struct {
	Platform   Platform
	Backends   BackendSet
	Defines    []Define
	Directives []LinkDirective
	Triggers   []string
}

func (p *Pipeline) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Resolve returns the backends enabled by config.Features or by feature
// presence variables in the environment.
func (p *Pipeline) Resolve(config *BuildConfig) BackendSet {
	log := p.log()
	for _, name := range UnknownFeatures(config.Features) {
		log.Warn("UnknownFeature", zap.String("feature", name))
	}

	backends := ResolveBackends(AnyFeature(FeatureList(config.Features), FeatureEnv(p.LookupEnv)))
	log.Debug("BackendsResolved", zap.Stringer("backends", backends))
	return backends
}

// Plan resolves the backends and plans the linkage for config without
// running the native build.
func (p *Pipeline) Plan(config *BuildConfig) (*PlanReport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	platform := config.TargetPlatform()
	backends := p.Resolve(config)

	return &PlanReport{
		Platform:   platform,
		Backends:   backends,
		Defines:    NativeDefines(backends),
		Directives: p.planLinkage(config, platform, backends, p.plannedLibDir(config, platform)),
		Triggers:   Triggers(config),
	}, nil
}

func (p *Pipeline) plannedLibDir(config *BuildConfig, platform Platform) string {
	if config.StageLibs {
		return stageDir(config, platform)
	}
	return filepath.Join(installDir(config), "lib")
}

func (p *Pipeline) planLinkage(config *BuildConfig, platform Platform, backends BackendSet, libDir string) []LinkDirective {
	log := p.log()
	if platform.Family() == FamilyUnknown {
		log.Warn("UnknownPlatform", zap.Stringer("platform", platform))
	}

	plan := PlanLinkage(backends, platform, LinkOptions{NativeLibDir: libDir, CUDAPath: config.CUDAPath})
	log.Debug("LinkagePlanned", zap.Stringer("platform", platform), zap.Int("directives", len(plan)))
	return plan
}

// Run executes the whole build for config.
func (p *Pipeline) Run(ctx context.Context, config *BuildConfig) (*Report, error) {
	log := p.log()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if p.Compiler == nil {
		return nil, fmt.Errorf("%w: no compiler", ErrConfigurationUnavailable)
	}

	report := &Report{Platform: config.TargetPlatform()}
	report.Backends = p.Resolve(config)

	log.Info("BuildStarted",
		zap.String("source", config.SourceDir),
		zap.Stringer("platform", report.Platform),
		zap.Stringer("backends", report.Backends))

	if checker, ok := p.Compiler.(ToolChecker); ok {
		if err := checker.CheckTools(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(config.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationUnavailable, err)
	}

	if err := removeBuildRecord(config); err != nil {
		return nil, fmt.Errorf("failed to remove previous build record: %w", err)
	}

	result, err := p.Compiler.Compile(ctx, config, report.Backends)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Compiler.Name(), err)
	}
	report.Result = result
	log.Info("NativeBuildFinished", zap.String("libDir", result.LibDir), zap.Strings("libraries", result.Libraries))

	libDir := result.LibDir
	if config.StageLibs {
		libDir, err = stageLibraries(result, stageDir(config, report.Platform))
		if err != nil {
			return nil, fmt.Errorf("failed to stage libraries: %w", err)
		}
		log.Debug("LibrariesStaged", zap.String("dir", libDir))
	}

	report.Directives = p.planLinkage(config, report.Platform, report.Backends, libDir)
	for _, line := range SearchDirectives(report.Directives) {
		log.Debug("Directive", zap.String("line", line))
	}
	for _, d := range report.Directives {
		log.Debug("Directive", zap.Stringer("line", d))
	}

	bindingDir := filepath.Dir(config.BindingFile)
	report.LinkFile, err = WriteLinkFile(bindingDir, config.Package, report.Platform, report.Directives)
	if err != nil {
		return nil, fmt.Errorf("failed to write link file: %w", err)
	}
	log.Info("LinkFileWritten", zap.String("path", report.LinkFile))

	extractor := &MetadataExtractor{Runner: p.Runner, Log: log, Now: p.Now}
	report.Metadata = extractor.Extract(ctx, config.SourceDir)
	log.Debug("Metadata", zap.String("revision", report.Metadata.Revision), zap.String("commitTime", report.Metadata.CommitTime))

	report.Bindings, err = p.generate(config, report.Metadata)
	if err != nil {
		return nil, err
	}
	if err := WriteBindings(config.BindingFile, report.Bindings); err != nil {
		return nil, fmt.Errorf("failed to write bindings: %w", err)
	}
	log.Info("BindingsWritten",
		zap.String("path", config.BindingFile),
		zap.Int("emitted", len(report.Bindings.Emitted)),
		zap.Int("skipped", len(report.Bindings.Skipped)))

	triggers := Triggers(config)
	for _, line := range RerunDirectives(triggers) {
		log.Debug("Directive", zap.String("line", line))
	}
	fingerprint, err := Fingerprint(triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint triggers: %w", err)
	}

	report.Manifest = &Manifest{
		Platform:    report.Platform,
		Backends:    backendNames(report.Backends),
		Defines:     result.Defines,
		Directives:  report.Directives,
		LinkFile:    report.LinkFile,
		BindingFile: config.BindingFile,
		Triggers:    triggers,
		Metadata:    report.Metadata,
		Fingerprint: fingerprint,
	}
	if err := WriteManifest(config, report.Manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := WriteStamp(config, fingerprint); err != nil {
		return nil, fmt.Errorf("failed to write stamp: %w", err)
	}

	log.Info("BuildFinished", zap.String("fingerprint", fingerprint))
	return report, nil
}

func (p *Pipeline) generate(config *BuildConfig, md BuildMetadata) (*Bindings, error) {
	log := p.log()

	includeDir := filepath.Join(config.SourceDir, "include")
	symbols, err := ScanHeaders(config.WrapperHeader, []string{filepath.Dir(config.WrapperHeader), includeDir})
	if err != nil {
		return nil, err
	}

	rules := p.Allowlist
	if rules == nil {
		rules = DefaultAllowlist
	}
	allow, err := CompileAllowlist(rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindingGeneration, err)
	}
	allowed := Filter(symbols, allow)
	log.Debug("SymbolsFiltered", zap.Int("scanned", len(symbols)), zap.Int("allowed", len(allowed)))

	opts := DefaultBindingOptions(config.Package)
	if p.Bindings != nil {
		opts = *p.Bindings
		opts.Package = config.Package
	}

	bindingDir := filepath.Dir(config.BindingFile)
	opts.Includes = []string{filepath.Base(config.WrapperHeader)}
	opts.CFlags = uniqueStrings([]string{
		"-I" + cgoPath(filepath.Dir(config.WrapperHeader), bindingDir),
		"-I" + cgoPath(includeDir, bindingDir),
	})
	opts.Metadata = md

	b, err := GenerateBindings(allowed, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range b.Skipped {
		log.Debug("SymbolSkipped", zap.String("symbol", s.Name), zap.String("reason", s.Reason))
	}
	return b, nil
}

func backendNames(s BackendSet) []string {
	names := []string{BackendCPU.String()}
	for _, b := range s.Accelerators() {
		names = append(names, b.String())
	}
	return names
}
