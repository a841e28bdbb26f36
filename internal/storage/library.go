package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Library layers deployment-centric versioning on a flat Backend. Archives
// are stored as <deployment>@<timestamp>; a bare deployment name always
// resolves to the newest version.
type Library struct {
	backend Backend
	now     func() time.Time
}

// NewLibrary creates a versioned archive library.
func NewLibrary(backend Backend) *Library {
	return &Library{backend: backend, now: time.Now}
}

// SetNowFunc overrides the clock used for version timestamps.
func (l *Library) SetNowFunc(now func() time.Time) {
	l.now = now
}

// Save stores a new version of a deployment's snapshot and returns its
// versioned ID.
func (l *Library) Save(ctx context.Context, deployment string, meta ArchiveMetadata, data io.Reader) (string, error) {
	if deployment == "" {
		return "", fmt.Errorf("deployment name is required")
	}
	deployment = cleanName(deployment)

	timestamp := l.now().Format("20060102-150405")
	id := fmt.Sprintf("%s@%s", deployment, timestamp)

	meta.ID = id
	meta.Deployment = deployment
	meta.Version = timestamp
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = l.now()
	}

	if err := l.backend.Store(ctx, &Archive{ID: id, Metadata: meta, DataReader: data}); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves an archive by deployment name (newest version) or by
// deployment@version.
func (l *Library) Get(ctx context.Context, ref string) (*Archive, error) {
	ref = cleanName(ref)

	if strings.Contains(ref, "@") {
		return l.backend.Retrieve(ctx, ref)
	}

	version, err := l.LatestVersion(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.backend.Retrieve(ctx, fmt.Sprintf("%s@%s", ref, version))
}

// DeploymentInfo summarizes the stored versions of one deployment.
type DeploymentInfo struct {
	Deployment   string    `json:"deployment"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	Version      string    `json:"version"`
	VersionCount int       `json:"version_count"`
	ImageCount   int       `json:"image_count"`
	VolumeCount  int       `json:"volume_count"`
	Encrypted    bool      `json:"encrypted,omitempty"`
}

// List returns one entry per deployment, carrying its newest version.
func (l *Library) List(ctx context.Context) ([]DeploymentInfo, error) {
	archives, err := l.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]ArchiveMetadata)
	for _, meta := range archives {
		name, _, ok := strings.Cut(meta.ID, "@")
		if !ok {
			continue
		}
		groups[name] = append(groups[name], meta)
	}

	var deployments []DeploymentInfo
	for name, versions := range groups {
		latest := versions[0]
		for _, v := range versions {
			if v.CreatedAt.After(latest.CreatedAt) {
				latest = v
			}
		}
		deployments = append(deployments, DeploymentInfo{
			Deployment:   name,
			Size:         latest.Size,
			CreatedAt:    latest.CreatedAt,
			Version:      latest.Version,
			VersionCount: len(versions),
			ImageCount:   latest.ImageCount,
			VolumeCount:  latest.VolumeCount,
			Encrypted:    latest.Encrypted,
		})
	}

	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].Deployment < deployments[j].Deployment
	})
	return deployments, nil
}

// Versions returns all stored versions of a deployment, newest first.
func (l *Library) Versions(ctx context.Context, deployment string) ([]ArchiveMetadata, error) {
	deployment = cleanName(deployment)

	archives, err := l.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	var versions []ArchiveMetadata
	for _, meta := range archives {
		if strings.HasPrefix(meta.ID, deployment+"@") {
			versions = append(versions, meta)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// LatestVersion returns the version string of the newest stored archive for
// a deployment.
func (l *Library) LatestVersion(ctx context.Context, deployment string) (string, error) {
	versions, err := l.Versions(ctx, deployment)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no snapshots found for deployment '%s'", deployment)
	}
	return versions[0].Version, nil
}

// Delete removes a specific version (deployment@version) or every version
// of a deployment (bare name).
func (l *Library) Delete(ctx context.Context, ref string) error {
	ref = cleanName(ref)

	if strings.Contains(ref, "@") {
		return l.backend.Delete(ctx, ref)
	}

	versions, err := l.Versions(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to list versions for deletion: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("no snapshots found for deployment '%s'", ref)
	}

	for _, v := range versions {
		if err := l.backend.Delete(ctx, v.ID); err != nil {
			return fmt.Errorf("failed to delete version %s: %w", v.Version, err)
		}
	}
	return nil
}

// Exists reports whether any matching archive is stored.
func (l *Library) Exists(ctx context.Context, ref string) (bool, error) {
	ref = cleanName(ref)

	if strings.Contains(ref, "@") {
		return l.backend.Exists(ctx, ref)
	}

	versions, err := l.Versions(ctx, ref)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// cleanName keeps deployment references safe as flat storage keys.
func cleanName(name string) string {
	name = strings.TrimSuffix(name, ".tar.gz")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
