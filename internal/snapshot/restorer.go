package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stacksnap/stacksnap/internal/compose"
	"github.com/stacksnap/stacksnap/internal/netutil"
)

// Restorer rebuilds a deployment from a snapshot archive. Stages run
// strictly in sequence; per-artifact failures are warnings, while an
// unreachable environment, a corrupt archive, or an unstartable deployment
// abort the run.
type Restorer struct {
	images      ImageStore
	volumes     VolumeStore
	controller  DeploymentController
	hostAddress func() (string, error)
	verbose     bool
	quiet       bool
}

// NewRestorer creates a restorer over the given capability adapters.
func NewRestorer(images ImageStore, volumes VolumeStore, controller DeploymentController, verbose bool) *Restorer {
	return &Restorer{
		images:      images,
		volumes:     volumes,
		controller:  controller,
		hostAddress: netutil.PrimaryAddress,
		verbose:     verbose,
	}
}

// SetQuiet suppresses stage progress output.
func (r *Restorer) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// SetHostAddressFunc overrides how the target host's primary address is
// detected.
func (r *Restorer) SetHostAddressFunc(f func() (string, error)) {
	r.hostAddress = f
}

func (r *Restorer) stage(s Stage) {
	if !r.quiet {
		fmt.Printf("🔄 %s\n", s)
	}
}

// Restore runs the full restore sequence for archivePath into targetDir.
// The returned result carries the collected warnings; its Stage is StageDone
// on success. On error, the error names the stage that failed.
func (r *Restorer) Restore(ctx context.Context, archivePath, targetDir string) (*RestoreResult, error) {
	res := &RestoreResult{Stage: StageFailed}
	warnf := func(stage Stage, subject, format string, args ...any) {
		w := Warning{Stage: stage.String(), Subject: subject, Reason: fmt.Sprintf(format, args...)}
		res.Warnings = append(res.Warnings, w)
		if !r.quiet {
			fmt.Printf("⚠️  %s\n", w)
		}
	}

	// The single hard precondition, checked once and never retried.
	r.stage(StageValidating)
	if err := r.controller.Check(ctx); err != nil {
		return res, fmt.Errorf("%s: %w: %v", StageValidating, ErrEnvironmentUnavailable, err)
	}

	r.stage(StageExtracting)
	root, cleanup, err := r.extract(archivePath)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageExtracting, err)
	}
	manifest, err := ReadManifest(root)
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageExtracting, err)
	}
	if r.verbose {
		fmt.Printf("📋 Snapshot of '%s' taken %s on %s\n",
			manifest.Deployment, manifest.BackupDate.Format("2006-01-02 15:04:05"), manifest.CreatedBy)
	}

	r.stage(StageConfiguring)
	if err := r.configure(root, targetDir, func(subject, format string, args ...any) {
		warnf(StageConfiguring, subject, format, args...)
	}); err != nil {
		return res, fmt.Errorf("%s: %w", StageConfiguring, err)
	}

	r.stage(StageLoadingImages)
	images, err := ReadList(filepath.Join(root, ImageListFile))
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageLoadingImages, err)
	}
	for _, ref := range images {
		blob := filepath.Join(root, ImagesDir, BlobName(ref))
		if _, statErr := os.Stat(blob); statErr == nil {
			if err := r.images.LoadImage(ctx, blob); err != nil {
				warnf(StageLoadingImages, ref, "load failed: %v", err)
			}
			continue
		}
		// The blob may be missing because its export failed at backup
		// time; the registry may still have the image.
		if err := r.images.PullImage(ctx, ref); err != nil {
			warnf(StageLoadingImages, ref, "no local blob and pull failed: %v", err)
		}
	}

	r.stage(StageRestoringVolumes)
	volumes, err := ReadList(filepath.Join(root, VolumeListFile))
	if err != nil {
		return res, fmt.Errorf("%s: %w", StageRestoringVolumes, err)
	}
	for _, name := range volumes {
		blob := filepath.Join(root, VolumesDir, name+".tar.gz")
		if _, statErr := os.Stat(blob); statErr != nil {
			warnf(StageRestoringVolumes, name, "no volume data in archive, skipped")
			continue
		}
		if err := r.volumes.EnsureVolume(ctx, name); err != nil {
			warnf(StageRestoringVolumes, name, "create failed: %v", err)
			continue
		}
		if err := r.volumes.ImportVolume(ctx, name, blob); err != nil {
			warnf(StageRestoringVolumes, name, "import failed: %v", err)
		}
	}

	r.stage(StageStarting)
	if err := r.controller.Down(ctx, targetDir); err != nil {
		// Nothing running under this name is the common case on a
		// fresh host.
		warnf(StageStarting, targetDir, "stop of previous deployment: %v", err)
	}
	var sp *Spinner
	if !r.quiet {
		sp = NewSpinner("Starting deployment")
	}
	upErr := r.controller.Up(ctx, targetDir)
	if sp != nil {
		sp.Stop()
	}
	if upErr != nil {
		return res, fmt.Errorf("%s: %w: %v", StageStarting, ErrStartFailed, upErr)
	}

	res.Stage = StageDone
	if !r.quiet {
		fmt.Printf("✅ %s (%d warning(s))\n", StageDone, len(res.Warnings))
	}
	return res, nil
}

// extract unpacks the archive into a scratch directory and locates the
// backup root by its name pattern.
func (r *Restorer) extract(archivePath string) (string, func(), error) {
	scratch, err := os.MkdirTemp("", "stacksnap-restore-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(scratch); err != nil {
			fmt.Printf("Warning: failed to remove scratch directory: %v\n", err)
		}
	}

	f, err := os.Open(archivePath) // #nosec G304 - user-supplied archive path
	if err != nil {
		return "", cleanup, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close archive: %v\n", err)
		}
	}()

	var src io.Reader = f
	if !r.quiet {
		if info, err := f.Stat(); err == nil {
			pr := NewProgressReader(f, info.Size(), "Extracting")
			defer func() {
				_ = pr.Close()
			}()
			src = pr
		}
	}

	if err := untarInto(src, scratch); err != nil {
		return "", cleanup, err
	}

	matches, err := filepath.Glob(filepath.Join(scratch, "*_backup_*"))
	if err != nil {
		return "", cleanup, fmt.Errorf("failed to scan scratch directory: %w", err)
	}
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.IsDir() {
			return match, cleanup, nil
		}
	}
	return "", cleanup, fmt.Errorf("%w: no backup root in archive", ErrArchiveCorrupt)
}

// configure copies the archived config tree into the target directory and
// points the deployment's host-address variable at this machine. An
// undeterminable address leaves the captured value with a warning; the user
// can fix it by hand.
func (r *Restorer) configure(root, targetDir string, warnf func(subject, format string, args ...any)) error {
	if err := os.MkdirAll(targetDir, 0750); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := copyTree(filepath.Join(root, ConfigDir), targetDir); err != nil {
		return fmt.Errorf("failed to copy configuration: %w", err)
	}

	addr, err := r.hostAddress()
	if err != nil {
		warnf(HostAddressKey, "host address not determinable, keeping captured value: %v", err)
		return nil
	}

	envPath := filepath.Join(targetDir, ".env")
	found, err := compose.RewriteEnvValue(envPath, HostAddressKey, addr)
	if err != nil {
		return err
	}
	if !found {
		warnf(HostAddressKey, "not present in env file, nothing rewritten")
	} else if r.verbose {
		fmt.Printf("🔧 %s set to %s\n", HostAddressKey, addr)
	}
	return nil
}
