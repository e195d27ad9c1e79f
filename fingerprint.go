package ggmlbuild

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/cespare/xxhash/v2"
)

const stampFile = "ggml-build.stamp"

// Triggers returns the paths whose changes invalidate a build: the public
// header directory of the native tree and the binding entry header.
func Triggers(config *BuildConfig) []string {
	return uniqueStrings([]string{
		filepath.Join(config.SourceDir, "include"),
		config.WrapperHeader,
	})
}

// RerunDirectives renders triggers as "rerun-if-changed=<path>" lines.
func RerunDirectives(triggers []string) []string {
	lines := make([]string, len(triggers))
	for i, t := range triggers {
		lines[i] = "rerun-if-changed=" + t
	}
	return lines
}

// Fingerprint hashes the paths and contents of every regular file under the
// triggers. Missing triggers contribute their path only, so creating them
// later changes the fingerprint.
func Fingerprint(triggers []string) (string, error) {
	h := xxhash.New()

	for _, trigger := range triggers {
		files, err := triggerFiles(trigger)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "trigger %s %d\n", filepath.ToSlash(trigger), len(files))

		for _, file := range files {
			rel, err := filepath.Rel(trigger, file)
			if err != nil || rel == "." {
				rel = filepath.Base(file)
			}
			fmt.Fprintf(h, "file %s\n", filepath.ToSlash(rel))
			if err := hashFile(h, file); err != nil {
				return "", err
			}
		}
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func triggerFiles(trigger string) ([]string, error) {
	info, err := os.Stat(trigger)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{trigger}, nil
	}

	matches, err := doublestar.Glob(filepath.Join(trigger, "**", "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", trigger, err)
	}

	var files []string
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// WriteStamp records the fingerprint of a successful build in OutDir.
func WriteStamp(config *BuildConfig, fingerprint string) error {
	return os.WriteFile(filepath.Join(config.OutDir, stampFile), []byte(fingerprint+"\n"), 0o644)
}

// Stale reports whether the triggers changed since the last recorded build.
// A missing stamp counts as stale.
func Stale(config *BuildConfig) (bool, error) {
	data, err := os.ReadFile(filepath.Join(config.OutDir, stampFile))
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	current, err := Fingerprint(Triggers(config))
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(string(data)) != current, nil
}
