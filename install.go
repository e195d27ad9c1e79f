package ggmlbuild

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// stageDir is where static libraries are staged for the generated package:
// <binding dir>/lib/<platform>.
func stageDir(config *BuildConfig, platform Platform) string {
	return filepath.Join(filepath.Dir(config.BindingFile), "lib", string(platform))
}

// stageLibraries copies the static libraries of a finished build into dest
// and returns dest. Only files that name a library in result.Libraries are
// copied; anything else in the lib dir is left alone.
func stageLibraries(result *BuildResult, dest string) (string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}

	wanted := make(map[string]struct{}, len(result.Libraries))
	for _, name := range result.Libraries {
		wanted[name] = struct{}{}
	}

	entries, err := os.ReadDir(result.LibDir)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := staticLibraryName(e.Name())
		if !ok {
			continue
		}
		if _, ok := wanted[name]; !ok {
			continue
		}
		if err := copyFile(filepath.Join(result.LibDir, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return "", err
		}
	}

	return dest, nil
}

func copyFile(srcPath, destPath string) (err error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}

	if mkErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkErr != nil {
		return mkErr
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
