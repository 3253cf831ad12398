package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	opts := Default("/var/lib/ouisync")

	require.NoError(t, opts.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, opts, loaded)
}

func TestDefaultLayout(t *testing.T) {
	opts := Default("root")
	assert.Equal(t, filepath.Join("root", "objects"), opts.ObjectDir)
	assert.Equal(t, filepath.Join("root", "snapshots"), opts.SnapshotDir)
	assert.Equal(t, filepath.Join("root", "branches"), opts.BranchDir)
}
