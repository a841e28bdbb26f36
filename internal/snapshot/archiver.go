package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stacksnap/stacksnap/internal/compose"
)

// Backup is the per-run context threaded through the backup stages. It owns
// the staging directory and collects warnings; nothing is kept in ambient
// process state.
type Backup struct {
	Deployment     string
	SourceDir      string
	DescriptorPath string
	Inventory      compose.Inventory

	// StagingDir is the archive root inside a unique temp directory,
	// named <deployment>_backup_<timestamp> so restore can find it by
	// pattern after extraction.
	StagingDir string

	ConfigFiles []string
	Warnings    []Warning
}

// NewBackup creates the staging layout for one backup run. Each run gets its
// own temp directory, so concurrent runs never share staging state.
func NewBackup(deployment, sourceDir, descriptorPath string, inv compose.Inventory) (*Backup, error) {
	scratch, err := os.MkdirTemp("", "stacksnap-backup-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	root := filepath.Join(scratch, fmt.Sprintf("%s_backup_%s",
		deployment, time.Now().Format("20060102-150405")))
	for _, dir := range []string{root, filepath.Join(root, ImagesDir), filepath.Join(root, VolumesDir), filepath.Join(root, ConfigDir)} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}

	return &Backup{
		Deployment:     deployment,
		SourceDir:      sourceDir,
		DescriptorPath: descriptorPath,
		Inventory:      inv,
		StagingDir:     root,
	}, nil
}

// Cleanup removes the run's staging directory.
func (b *Backup) Cleanup() {
	if err := os.RemoveAll(filepath.Dir(b.StagingDir)); err != nil {
		fmt.Printf("Warning: failed to remove staging directory: %v\n", err)
	}
}

func (b *Backup) warnf(stage, subject, format string, args ...any) {
	b.Warnings = append(b.Warnings, Warning{
		Stage:   stage,
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	})
}

// Archiver exports the artifacts of one deployment into a staging tree.
// Artifacts are independent; a failed export is recorded as a warning and
// never aborts the run.
type Archiver struct {
	images  ImageStore
	volumes VolumeStore
	verbose bool
}

// NewArchiver creates an archiver over the given capability adapters.
func NewArchiver(images ImageStore, volumes VolumeStore, verbose bool) *Archiver {
	return &Archiver{
		images:  images,
		volumes: volumes,
		verbose: verbose,
	}
}

// ExportImages pulls and saves every image in the inventory to
// images/<sanitized-ref>.tar. A pull failure is tolerated when a local copy
// can still be saved; a save failure drops the blob and records a warning.
func (a *Archiver) ExportImages(ctx context.Context, b *Backup) {
	for _, ref := range b.Inventory.Images {
		if a.verbose {
			fmt.Printf("   ├─ Image '%s'...", ref)
		}

		// Pull is idempotent; a failure here just means we depend on
		// whatever is already present locally.
		pullErr := a.images.PullImage(ctx, ref)

		dest := filepath.Join(b.StagingDir, ImagesDir, BlobName(ref))
		if err := a.images.SaveImage(ctx, ref, dest); err != nil {
			if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
				fmt.Printf("Warning: failed to remove partial image blob: %v\n", removeErr)
			}
			reason := err.Error()
			if pullErr != nil {
				reason = fmt.Sprintf("pull: %v; save: %v", pullErr, err)
			}
			b.warnf("images", ref, "export failed: %s", reason)
			if a.verbose {
				fmt.Println(" ❌")
			}
			continue
		}

		if a.verbose {
			fmt.Println(" ✓")
		}
	}
}

// ExportVolumes streams every named volume in the inventory into
// volumes/<name>.tar.gz. Missing or unexportable volumes are warnings.
func (a *Archiver) ExportVolumes(ctx context.Context, b *Backup) {
	for _, name := range b.Inventory.Volumes {
		if a.verbose {
			fmt.Printf("   ├─ Volume '%s'...", name)
		}

		exists, err := a.volumes.VolumeExists(ctx, name)
		if err != nil {
			b.warnf("volumes", name, "existence check failed: %v", err)
			if a.verbose {
				fmt.Println(" ❌")
			}
			continue
		}
		if !exists {
			b.warnf("volumes", name, "volume not found, skipped")
			if a.verbose {
				fmt.Println(" ⏭")
			}
			continue
		}

		dest := filepath.Join(b.StagingDir, VolumesDir, name+".tar.gz")
		if err := a.volumes.ExportVolume(ctx, name, dest); err != nil {
			if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
				fmt.Printf("Warning: failed to remove partial volume blob: %v\n", removeErr)
			}
			b.warnf("volumes", name, "export failed: %v", err)
			if a.verbose {
				fmt.Println(" ❌")
			}
			continue
		}

		if a.verbose {
			fmt.Println(" ✓")
		}
	}
}

// CopyConfig copies the deployment descriptor, the env file, and any nested
// config directory verbatim into config/, preserving directory structure.
// A backup with no usable config is not worth keeping, so failures here are
// fatal, unlike artifact exports.
func (a *Archiver) CopyConfig(b *Backup) error {
	configRoot := filepath.Join(b.StagingDir, ConfigDir)

	descriptorName := filepath.Base(b.DescriptorPath)
	if err := copyTree(b.DescriptorPath, filepath.Join(configRoot, descriptorName)); err != nil {
		return fmt.Errorf("failed to copy descriptor: %w", err)
	}
	b.ConfigFiles = append(b.ConfigFiles, descriptorName)

	// Optional companions next to the descriptor.
	for _, name := range []string{".env", "config"} {
		src := filepath.Join(b.SourceDir, name)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if err := copyTree(src, filepath.Join(configRoot, name)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
		b.ConfigFiles = append(b.ConfigFiles, name)
	}

	if a.verbose {
		fmt.Printf("📦 Copied configuration: %v\n", b.ConfigFiles)
	}
	return nil
}
