package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Packager seals a staged backup tree into one compressed archive.
type Packager struct {
	verbose bool
	quiet   bool
}

// NewPackager creates a packager.
func NewPackager(verbose, quiet bool) *Packager {
	return &Packager{verbose: verbose, quiet: quiet}
}

// Package writes the manifest, the artifact lists, and the embedded restore
// script into the staging tree, then archives the whole tree to outputPath.
// A partial archive is never left behind: the output file is removed on any
// failure.
func (p *Packager) Package(b *Backup, outputPath string) (int64, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	manifest := &Manifest{
		BackupDate:      time.Now(),
		BackupVersion:   SchemaVersion,
		Deployment:      b.Deployment,
		CreatedBy:       hostname,
		SourceDirectory: b.SourceDir,
		Files:           b.ConfigFiles,
	}
	if err := WriteManifest(b.StagingDir, manifest); err != nil {
		return 0, err
	}

	if err := WriteList(filepath.Join(b.StagingDir, ImageListFile), b.Inventory.Images); err != nil {
		return 0, err
	}
	if err := WriteList(filepath.Join(b.StagingDir, VolumeListFile), b.Inventory.Volumes); err != nil {
		return 0, err
	}

	if err := writeRestoreScript(b.StagingDir, b.Deployment); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	out, err := os.Create(outputPath) // #nosec G304 - user-supplied output path
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	if err := tarDirectory(out, b.StagingDir); err != nil {
		if closeErr := out.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close archive: %v\n", closeErr)
		}
		if removeErr := os.Remove(outputPath); removeErr != nil {
			fmt.Printf("Warning: failed to remove partial archive: %v\n", removeErr)
		}
		return 0, fmt.Errorf("failed to package archive: %w", err)
	}
	if err := out.Close(); err != nil {
		if removeErr := os.Remove(outputPath); removeErr != nil {
			fmt.Printf("Warning: failed to remove partial archive: %v\n", removeErr)
		}
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat archive: %w", err)
	}

	if p.verbose {
		fmt.Printf("✅ Archive created: %s (%.1f MB)\n",
			filepath.Base(outputPath), float64(stat.Size())/(1024*1024))
	}
	return stat.Size(), nil
}
