package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	in := &Manifest{
		BackupDate:      time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC),
		BackupVersion:   SchemaVersion,
		Deployment:      "shopfloor",
		CreatedBy:       "build-host",
		SourceDirectory: "/opt/shopfloor",
		Files:           []string{"compose.yaml", ".env"},
	}
	require.NoError(t, WriteManifest(dir, in))

	out, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, ErrArchiveCorrupt)
}

func TestReadManifestMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{not json"), 0600))

	_, err := ReadManifest(dir)
	assert.ErrorIs(t, err, ErrArchiveCorrupt)
}

func TestReadManifestIncompatibleSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteManifest(dir, &Manifest{
		BackupVersion: "2.0",
		Deployment:    "shopfloor",
	}))

	_, err := ReadManifest(dir)
	assert.ErrorIs(t, err, ErrIncompatibleArchive)
}

func TestReadManifestMinorVersionAccepted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteManifest(dir, &Manifest{
		BackupVersion: "1.9",
		Deployment:    "shopfloor",
	}))

	_, err := ReadManifest(dir)
	assert.NoError(t, err)
}

func TestListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ImageListFile)

	require.NoError(t, WriteList(path, []string{"nginx:1.25", "postgres:16"}))
	entries, err := ReadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx:1.25", "postgres:16"}, entries)
}

func TestEmptyListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), VolumeListFile)

	require.NoError(t, WriteList(path, nil))

	// The file must exist even when empty.
	_, err := os.Stat(path)
	require.NoError(t, err)

	entries, err := ReadList(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadListMissing(t *testing.T) {
	_, err := ReadList(filepath.Join(t.TempDir(), ImageListFile))
	assert.ErrorIs(t, err, ErrArchiveCorrupt)
}
