package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is looked up in the project root.
const ManifestFileName = "glimmerweave.yaml"

// Manifest is the optional per-project configuration file.
//
//	project_root: .
//	stdlib_root: /usr/lib/glimmerweave/std
//	backend: vm
type Manifest struct {
	ProjectRoot string `yaml:"project_root"`
	StdlibRoot  string `yaml:"stdlib_root"`
	Backend     string `yaml:"backend"`
}

// DefaultManifest returns the manifest used when no file is present:
// everything resolves relative to dir and the VM backend runs.
func DefaultManifest(dir string) *Manifest {
	return &Manifest{
		ProjectRoot: dir,
		StdlibRoot:  filepath.Join(dir, "std"),
		Backend:     BackendVM,
	}
}

// LoadManifest reads glimmerweave.yaml from dir. A missing file is not an
// error; the defaults for dir are returned instead.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultManifest(dir), nil
		}
		return nil, err
	}

	m := DefaultManifest(dir)
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(m.ProjectRoot) {
		m.ProjectRoot = filepath.Join(dir, m.ProjectRoot)
	}
	if !filepath.IsAbs(m.StdlibRoot) {
		m.StdlibRoot = filepath.Join(dir, m.StdlibRoot)
	}
	return m, nil
}
