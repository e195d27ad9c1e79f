package ggmlbuild

import (
	"context"
	"os"

	"go.uber.org/multierr"
)

// runCommonBuild executes the configure, build and find steps in order.
//
// The first failing step stops the build. Its error is recorded on the
// result, and the partially populated output prefix is removed so that no
// degraded artifacts survive a failed build.
func runCommonBuild(ctx context.Context, config *BuildConfig, backends BackendSet, steps CommonBuildSteps) (*BuildResult, error) {
	result := &BuildResult{
		Success:   false,
		Output:    []string{},
		OutputDir: installDir(config),
	}

	fail := func(err error) (*BuildResult, error) {
		if rmErr := os.RemoveAll(result.OutputDir); rmErr != nil {
			err = multierr.Append(err, rmErr)
		}
		result.Error = err
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := steps.ConfigureFunc(ctx, config, backends, result); err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := steps.BuildFunc(ctx, config, result); err != nil {
		return fail(err)
	}

	if err := steps.FindFunc(result); err != nil {
		return fail(err)
	}

	result.Success = true
	return result, nil
}
