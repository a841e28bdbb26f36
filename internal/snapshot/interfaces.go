package snapshot

import "context"

// ImageStore is the image-side capability the snapshot tool needs from a
// container runtime. The production adapter talks to the Docker API; tests
// substitute an in-memory fake.
type ImageStore interface {
	// PullImage fetches an image by reference. Safe to call when the image
	// is already present.
	PullImage(ctx context.Context, ref string) error
	// SaveImage exports an image to a tar file at destPath.
	SaveImage(ctx context.Context, ref, destPath string) error
	// LoadImage imports an image from a tar file.
	LoadImage(ctx context.Context, tarPath string) error
}

// VolumeStore is the named-volume capability the snapshot tool needs from a
// container runtime.
type VolumeStore interface {
	VolumeExists(ctx context.Context, name string) (bool, error)
	// EnsureVolume creates the volume if needed; no error when it exists.
	EnsureVolume(ctx context.Context, name string) error
	// ExportVolume streams the volume's file tree into a gzipped tarball.
	ExportVolume(ctx context.Context, name, destPath string) error
	// ImportVolume extracts a gzipped tarball into the volume, replacing
	// its contents.
	ImportVolume(ctx context.Context, name, tarPath string) error
}

// DeploymentController drives the compose-style orchestrator for one
// deployment directory.
type DeploymentController interface {
	// Check confirms the runtime and the orchestrator CLI are reachable.
	Check(ctx context.Context) error
	// Up starts the deployment defined in dir, detached.
	Up(ctx context.Context, dir string) error
	// Down stops and removes a deployment; tolerant of nothing to stop.
	Down(ctx context.Context, dir string) error
}
