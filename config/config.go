// Package config loads engine options.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Options names the directories a repository keeps its state in.
type Options struct {
	// ObjectDir is the directory holding objects and refcount rows.
	ObjectDir string `yaml:"objectdir"`
	// SnapshotDir is the directory holding snapshot files.
	SnapshotDir string `yaml:"snapshotdir"`
	// BranchDir is the directory holding per-peer branch state.
	BranchDir string `yaml:"branchdir"`
}

// Default returns the options rooted at the given directory.
func Default(root string) Options {
	return Options{
		ObjectDir:   filepath.Join(root, "objects"),
		SnapshotDir: filepath.Join(root, "snapshots"),
		BranchDir:   filepath.Join(root, "branches"),
	}
}

// Load reads options from the YAML file at the given path.
func Load(path string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	err = yaml.Unmarshal(data, &opts)
	if err != nil {
		return opts, err
	}
	return opts, nil
}

// Save writes the options to the YAML file at the given path.
func (o Options) Save(path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
