package ggmlbuild

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UnknownRevision is the revision reported when git metadata is unavailable.
const UnknownRevision = "unknown"

// BuildMetadata identifies the vendored native source for diagnostics.
type BuildMetadata struct {
	// Revision is the short commit hash, or UnknownRevision.
	Revision string `yaml:"revision"`
	// CommitTime is the ISO-8601 commit time, or the current Unix time in
	// seconds when it cannot be read.
	CommitTime string `yaml:"commit_time"`
}

// MetadataExtractor reads revision metadata of a source subtree with git.
type MetadataExtractor struct {
	// Runner defaults to ShellRunner.
	Runner Runner
	Log    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Extract queries git once for the revision and once for the commit time of
// sourceDir. Failures are never returned: each failed query falls back
// independently.
func (m *MetadataExtractor) Extract(ctx context.Context, sourceDir string) BuildMetadata {
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := m.Now
	if now == nil {
		now = time.Now
	}

	md := BuildMetadata{
		Revision:   UnknownRevision,
		CommitTime: strconv.FormatInt(now().Unix(), 10),
	}

	if rev, err := m.gitLog(ctx, sourceDir, "%h"); err != nil {
		log.Debug("RevisionUnavailable", zap.String("dir", sourceDir), zap.Error(err))
	} else {
		md.Revision = rev
	}

	if ts, err := m.gitLog(ctx, sourceDir, "%cI"); err != nil {
		log.Debug("CommitTimeUnavailable", zap.String("dir", sourceDir), zap.Error(err))
	} else {
		md.CommitTime = ts
	}

	return md
}

func (m *MetadataExtractor) gitLog(ctx context.Context, dir, format string) (string, error) {
	runner := m.Runner
	if runner == nil {
		runner = ShellRunner{}
	}
	out, err := runner.Run(ctx, nil, "git", "-C", dir, "log", "-1", "--format="+format, "--", ".")
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptyGitOutput
	}
	return out, nil
}

type metadataError string

func (e metadataError) Error() string { return string(e) }

const errEmptyGitOutput = metadataError("git produced no output")
