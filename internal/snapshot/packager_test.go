package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksnap/stacksnap/internal/compose"
)

func stageBackup(t *testing.T, inv compose.Inventory) *Backup {
	t.Helper()

	sourceDir := t.TempDir()
	descriptor := filepath.Join(sourceDir, "compose.yaml")
	require.NoError(t, os.WriteFile(descriptor, []byte("services: {}\n"), 0600))

	b, err := NewBackup("shopfloor", sourceDir, descriptor, inv)
	require.NoError(t, err)
	t.Cleanup(b.Cleanup)

	images := newFakeImageStore(inv.Images...)
	volumes := newFakeVolumeStore(inv.Volumes...)
	a := NewArchiver(images, volumes, false)
	a.ExportImages(context.Background(), b)
	a.ExportVolumes(context.Background(), b)
	require.NoError(t, a.CopyConfig(b))
	return b
}

func TestPackageProducesReadableArchive(t *testing.T) {
	inv := compose.Inventory{
		Images:  []string{"nginx:1.25", "postgres:16"},
		Volumes: []string{"db-data"},
	}
	b := stageBackup(t, inv)

	outputPath := filepath.Join(t.TempDir(), "shopfloor.tar.gz")
	size, err := NewPackager(false, true).Package(b, outputPath)
	require.NoError(t, err)
	assert.Positive(t, size)

	info, err := Inspect(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "shopfloor", info.Manifest.Deployment)
	assert.Equal(t, SchemaVersion, info.Manifest.BackupVersion)
	assert.Equal(t, inv.Images, info.Images)
	assert.Equal(t, inv.Volumes, info.Volumes)
	assert.Contains(t, info.Config, "compose.yaml")
}

func TestPackageEmptyDeployment(t *testing.T) {
	b := stageBackup(t, compose.Inventory{})

	outputPath := filepath.Join(t.TempDir(), "shopfloor.tar.gz")
	_, err := NewPackager(false, true).Package(b, outputPath)
	require.NoError(t, err)

	info, err := Inspect(outputPath)
	require.NoError(t, err)
	assert.Empty(t, info.Images)
	assert.Empty(t, info.Volumes)
}

func TestPackageEmbedsExecutableRestoreScript(t *testing.T) {
	b := stageBackup(t, compose.Inventory{})

	outputPath := filepath.Join(t.TempDir(), "shopfloor.tar.gz")
	_, err := NewPackager(false, true).Package(b, outputPath)
	require.NoError(t, err)

	dest := t.TempDir()
	f, err := os.Open(outputPath)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, untarInto(f, dest))

	matches, err := filepath.Glob(filepath.Join(dest, "*_backup_*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	script, err := os.Stat(filepath.Join(matches[0], RestoreScriptFile))
	require.NoError(t, err)
	assert.NotZero(t, script.Mode()&0100, "restore script must be executable")
}

func TestPackageRemovesPartialArchiveOnFailure(t *testing.T) {
	b := stageBackup(t, compose.Inventory{})

	// A missing staging tree fails the run before the archive is sealed.
	require.NoError(t, os.RemoveAll(b.StagingDir))

	outputPath := filepath.Join(t.TempDir(), "shopfloor.tar.gz")
	_, err := NewPackager(false, true).Package(b, outputPath)
	require.Error(t, err)
	assert.NoFileExists(t, outputPath)
}
