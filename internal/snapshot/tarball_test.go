package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarDirectoryRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "demo_backup_20260814-093000")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "config", "nested"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "config", "nested", "app.conf"), []byte("key=value\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "restore"), []byte("#!/bin/sh\n"), 0755))

	var buf bytes.Buffer
	require.NoError(t, tarDirectory(&buf, src))

	dest := t.TempDir()
	require.NoError(t, untarInto(&buf, dest))

	root := filepath.Join(dest, "demo_backup_20260814-093000")
	data, err := os.ReadFile(filepath.Join(root, "config", "nested", "app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "key=value\n", string(data))

	script, err := os.Stat(filepath.Join(root, "restore"))
	require.NoError(t, err)
	assert.NotZero(t, script.Mode()&0100)
}

func TestUntarRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../evil.txt",
		Typeflag: tar.TypeReg,
		Mode:     0600,
		Size:     4,
	}))
	_, err := tw.Write([]byte("pwnd"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err = untarInto(&buf, t.TempDir())
	assert.ErrorIs(t, err, ErrArchiveCorrupt)
}

func TestUntarRejectsGarbage(t *testing.T) {
	err := untarInto(bytes.NewReader([]byte("not gzip at all")), t.TempDir())
	assert.ErrorIs(t, err, ErrArchiveCorrupt)
}

func TestCopyTreeSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "compose.yaml")
	require.NoError(t, os.WriteFile(src, []byte("services: {}\n"), 0600))

	dst := filepath.Join(t.TempDir(), "copied", "compose.yaml")
	require.NoError(t, copyTree(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "services: {}\n", string(data))
}
