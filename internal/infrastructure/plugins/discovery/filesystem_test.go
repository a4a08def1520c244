package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, mode os.FileMode, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestFileSystemDiscovery_Discover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hh-plugin-cpu"), 0o755, "#!/bin/sh\n")
	writeFile(t, filepath.Join(dir, "hh-plugin-cpu.manifest.json"), 0o644,
		`{"name":"cpu-reference","version":"1.2.0","description":"reference backend"}`)
	writeFile(t, filepath.Join(dir, "hh-plugin-gpu.so"), 0o644, "")
	writeFile(t, filepath.Join(dir, "hh-plugin-noexec"), 0o644, "")
	writeFile(t, filepath.Join(dir, "README"), 0o644, "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "hh-plugin-dir"), 0o755))

	d := NewFileSystemDiscovery([]string{dir, filepath.Join(dir, "missing")}, nil)
	modules, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)

	assert.Equal(t, "cpu-reference", modules[0].Name)
	assert.Equal(t, "1.2.0", modules[0].Version)
	assert.Equal(t, "reference backend", modules[0].Description)
	assert.Equal(t, "exec:"+filepath.Join(dir, "hh-plugin-cpu"), modules[0].Path)

	assert.Equal(t, "gpu", modules[1].Name)
	assert.Equal(t, "unknown", modules[1].Version)
	assert.Equal(t, filepath.Join(dir, "hh-plugin-gpu.so"), modules[1].Path, "shared objects keep a plain path")
}

func TestFileSystemDiscovery_DirectoryOrderIsPreserved(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "hh-plugin-z.so"), 0o644, "")
	writeFile(t, filepath.Join(second, "hh-plugin-a.so"), 0o644, "")

	modules, err := NewFileSystemDiscovery([]string{first, second}, nil).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, "z", modules[0].Name)
	assert.Equal(t, "a", modules[1].Name)
}

func TestFileSystemDiscovery_BadManifestIsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hh-plugin-x.so"), 0o644, "")
	writeFile(t, filepath.Join(dir, "hh-plugin-x.manifest.json"), 0o644, "{not json")

	modules, err := NewFileSystemDiscovery([]string{dir}, nil).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "x", modules[0].Name)
}

func TestFileSystemDiscovery_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSystemDiscovery([]string{t.TempDir()}, nil).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "plugins"), ExpandPath("~/plugins"))
	assert.Equal(t, "/opt/plugins", ExpandPath("/opt/plugins"))
}
