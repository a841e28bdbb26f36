package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksnap/stacksnap/internal/compose"
)

func newTestBackup(t *testing.T, inv compose.Inventory) *Backup {
	t.Helper()

	sourceDir := t.TempDir()
	descriptor := filepath.Join(sourceDir, "compose.yaml")
	require.NoError(t, os.WriteFile(descriptor, []byte("services: {}\n"), 0600))

	b, err := NewBackup("shopfloor", sourceDir, descriptor, inv)
	require.NoError(t, err)
	t.Cleanup(b.Cleanup)
	return b
}

func TestExportImagesContinuesPastFailures(t *testing.T) {
	inv := compose.Inventory{Images: []string{"bad:1", "good:1", "good:2"}}
	b := newTestBackup(t, inv)

	images := newFakeImageStore("bad:1", "good:1", "good:2")
	images.saveErr["bad:1"] = errors.New("daemon hiccup")

	a := NewArchiver(images, newFakeVolumeStore(), false)
	a.ExportImages(context.Background(), b)

	require.Len(t, b.Warnings, 1)
	assert.Equal(t, "bad:1", b.Warnings[0].Subject)

	assert.NoFileExists(t, filepath.Join(b.StagingDir, ImagesDir, BlobName("bad:1")))
	assert.FileExists(t, filepath.Join(b.StagingDir, ImagesDir, BlobName("good:1")))
	assert.FileExists(t, filepath.Join(b.StagingDir, ImagesDir, BlobName("good:2")))
}

func TestExportImagesToleratesPullFailureWhenLocalCopyExists(t *testing.T) {
	inv := compose.Inventory{Images: []string{"cached:1"}}
	b := newTestBackup(t, inv)

	images := newFakeImageStore("cached:1")
	images.pullErr["cached:1"] = errors.New("registry unreachable")

	a := NewArchiver(images, newFakeVolumeStore(), false)
	a.ExportImages(context.Background(), b)

	assert.Empty(t, b.Warnings)
	assert.FileExists(t, filepath.Join(b.StagingDir, ImagesDir, BlobName("cached:1")))
}

func TestExportVolumesSkipsMissing(t *testing.T) {
	inv := compose.Inventory{Volumes: []string{"db-data", "ghost-data"}}
	b := newTestBackup(t, inv)

	a := NewArchiver(newFakeImageStore(), newFakeVolumeStore("db-data"), false)
	a.ExportVolumes(context.Background(), b)

	require.Len(t, b.Warnings, 1)
	assert.Equal(t, "ghost-data", b.Warnings[0].Subject)
	assert.FileExists(t, filepath.Join(b.StagingDir, VolumesDir, "db-data.tar.gz"))
	assert.NoFileExists(t, filepath.Join(b.StagingDir, VolumesDir, "ghost-data.tar.gz"))
}

func TestExportVolumesDropsPartialBlobOnFailure(t *testing.T) {
	inv := compose.Inventory{Volumes: []string{"db-data"}}
	b := newTestBackup(t, inv)

	volumes := newFakeVolumeStore("db-data")
	volumes.exportErr["db-data"] = errors.New("helper container failed")

	a := NewArchiver(newFakeImageStore(), volumes, false)
	a.ExportVolumes(context.Background(), b)

	require.Len(t, b.Warnings, 1)
	assert.NoFileExists(t, filepath.Join(b.StagingDir, VolumesDir, "db-data.tar.gz"))
}

func TestCopyConfigCapturesCompanions(t *testing.T) {
	sourceDir := t.TempDir()
	descriptor := filepath.Join(sourceDir, "compose.yaml")
	require.NoError(t, os.WriteFile(descriptor, []byte("services: {}\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, ".env"), []byte("HOST_IP=192.0.2.10\n"), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(sourceDir, "config", "nginx"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "config", "nginx", "site.conf"), []byte("server {}\n"), 0600))

	b, err := NewBackup("shopfloor", sourceDir, descriptor, compose.Inventory{})
	require.NoError(t, err)
	t.Cleanup(b.Cleanup)

	a := NewArchiver(newFakeImageStore(), newFakeVolumeStore(), false)
	require.NoError(t, a.CopyConfig(b))

	configRoot := filepath.Join(b.StagingDir, ConfigDir)
	assert.FileExists(t, filepath.Join(configRoot, "compose.yaml"))
	assert.FileExists(t, filepath.Join(configRoot, ".env"))
	assert.FileExists(t, filepath.Join(configRoot, "config", "nginx", "site.conf"))
	assert.Equal(t, []string{"compose.yaml", ".env", "config"}, b.ConfigFiles)
}

func TestCopyConfigWithoutCompanions(t *testing.T) {
	b := newTestBackup(t, compose.Inventory{})

	a := NewArchiver(newFakeImageStore(), newFakeVolumeStore(), false)
	require.NoError(t, a.CopyConfig(b))

	assert.Equal(t, []string{"compose.yaml"}, b.ConfigFiles)
}
