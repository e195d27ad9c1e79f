// Command ggml-build compiles a vendored ggml tree and generates its Go
// bindings and link flags.
//
//	ggml-build [build|plan|check|version] [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"slices"

	"github.com/burdiyan/go/mainutil"
	"github.com/peterbourgon/ff/v4"
	"go.uber.org/zap"

	ggmlbuild "github.com/contriboss/ggml-build-go"
	"github.com/contriboss/ggml-build-go/internal/logging"
)

const envVarPrefix = "GGML_BUILD"

var errStale = errors.New("native sources changed since the last build")

func main() {
	mainutil.Run(func() error {
		ctx := mainutil.TrapSignals()

		cmd, args := "build", slices.Clone(os.Args[1:])
		if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
			cmd, args = args[0], args[1:]
		}

		return run(ctx, cmd, args, os.Stdout)
	})
}

func run(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	if cmd == "version" {
		fmt.Fprintln(stdout, version())
		return nil
	}

	fs := flag.NewFlagSet("ggml-build "+cmd, flag.ContinueOnError)

	cfg := ggmlbuild.Default()
	cfg.BindFlags(fs)
	fs.String("config", "", "TOML config file")

	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ggmlbuild.ParseTOMLConfig),
	)
	if err != nil {
		if errors.Is(err, ff.ErrHelp) || errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return nil
		}
		return err
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("%w: invalid log level %q", ggmlbuild.ErrConfigurationUnavailable, cfg.LogLevel)
	}
	log := logging.New("ggml-build", cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	runner := ggmlbuild.ShellRunner{}
	if cfg.Verbose {
		runner.Echo = os.Stderr
	}
	p := ggmlbuild.NewPipeline(runner, log)

	switch cmd {
	case "build":
		report, err := p.Run(ctx, &cfg)
		if err != nil {
			return err
		}
		log.Info("Done",
			zap.String("linkFile", report.LinkFile),
			zap.String("bindings", cfg.BindingFile),
			zap.String("revision", report.Metadata.Revision))
		return nil
	case "plan":
		plan, err := p.Plan(&cfg)
		if err != nil {
			return err
		}
		printPlan(stdout, plan)
		return nil
	case "check":
		if err := cfg.Validate(); err != nil {
			return err
		}
		stale, err := ggmlbuild.Stale(&cfg)
		if err != nil {
			return err
		}
		if stale {
			return errStale
		}
		fmt.Fprintln(stdout, "up to date")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printPlan(w io.Writer, plan *ggmlbuild.PlanReport) {
	fmt.Fprintf(w, "platform: %s (%s)\n", plan.Platform, plan.Platform.Family())
	fmt.Fprintf(w, "backends: %s\n", plan.Backends)
	for _, d := range plan.Defines {
		fmt.Fprintln(w, d)
	}
	for _, line := range ggmlbuild.SearchDirectives(plan.Directives) {
		fmt.Fprintln(w, line)
	}
	for _, d := range plan.Directives {
		fmt.Fprintln(w, d)
	}
	for _, line := range ggmlbuild.RerunDirectives(plan.Triggers) {
		fmt.Fprintln(w, line)
	}
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "ggml-build (devel)"
	}
	return "ggml-build " + info.Main.Version
}
