package ggmlbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/magefile/mage/sh"
)

// Runner executes an external tool once and returns its combined output.
type Runner interface {
	Run(ctx context.Context, env map[string]string, cmd string, args ...string) (string, error)
}

// ShellRunner runs commands with mage's sh package. Output is captured and,
// when Echo is set, streamed to it as well.
//
// Arguments go through sh's $VAR expansion against env and the process
// environment.
type ShellRunner struct {
	Echo io.Writer
}

// Run implements Runner. The context is only checked before the command
// starts; a running native build is never interrupted.
func (r ShellRunner) Run(ctx context.Context, env map[string]string, cmd string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if r.Echo != nil {
		w = io.MultiWriter(&buf, r.Echo)
	}

	ran, err := sh.Exec(env, w, w, cmd, args...)
	if err != nil {
		if !ran {
			return buf.String(), fmt.Errorf("failed to start %s: %w", cmd, err)
		}
		return buf.String(), fmt.Errorf("%s exited with code %d: %w", cmd, sh.ExitStatus(err), err)
	}

	return buf.String(), nil
}
