package ggmlbuild

import (
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const manifestFile = "ggml-build.yaml"

// Manifest records what a build produced and which inputs it depended on.
type Manifest struct {
	Platform    Platform        `yaml:"platform"`
	Backends    []string        `yaml:"backends"`
	Defines     []Define        `yaml:"defines"`
	Directives  []LinkDirective `yaml:"directives"`
	LinkFile    string          `yaml:"link_file,omitempty"`
	BindingFile string          `yaml:"binding_file,omitempty"`
	Triggers    []string        `yaml:"triggers"`
	Metadata    BuildMetadata   `yaml:"metadata"`
	Fingerprint string          `yaml:"fingerprint"`
}

// ManifestPath returns where WriteManifest puts the manifest of config.
func ManifestPath(config *BuildConfig) string {
	return filepath.Join(config.OutDir, manifestFile)
}

// WriteManifest writes m as YAML into config.OutDir.
func WriteManifest(config *BuildConfig, m *Manifest) (err error) {
	f, err := os.Create(ManifestPath(config))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

// ReadManifest reads the manifest of the last build of config.
func ReadManifest(config *BuildConfig) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(config))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// removeBuildRecord deletes the manifest and the stamp of the last build.
func removeBuildRecord(config *BuildConfig) error {
	var err error
	for _, path := range []string{ManifestPath(config), filepath.Join(config.OutDir, stampFile)} {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}
