// Package docker adapts the Docker Engine API to the capability interfaces
// the snapshot tool works against.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// helperImage is the throwaway container image used to stream volume
// contents in and out. Kept small on purpose.
const helperImage = "alpine:latest"

// Client wraps the Docker client with the image and volume operations the
// snapshot tool needs.
type Client struct {
	docker  *client.Client
	verbose bool
}

// NewClient creates a Docker client wrapper and verifies the daemon is
// reachable.
func NewClient(ctx context.Context) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}

	return &Client{docker: cli}, nil
}

// SetVerbose enables diagnostic output for cleanup failures.
func (c *Client) SetVerbose(verbose bool) {
	c.verbose = verbose
}

// Ping re-checks daemon reachability.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.docker.Ping(ctx); err != nil {
		return fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}
	return nil
}

// VolumeExists checks if a named volume exists.
func (c *Client) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := c.docker.VolumeInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureVolume creates the named volume if it does not exist yet. Creating
// an existing volume is a no-op on the daemon side.
func (c *Client) EnsureVolume(ctx context.Context, name string) error {
	if _, err := c.docker.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("failed to create volume '%s': %w", name, err)
	}
	return nil
}

// VolumeSummary describes one named volume on the daemon.
type VolumeSummary struct {
	Name       string
	Driver     string
	CreatedAt  string
	Mountpoint string
}

// ListVolumes returns all named volumes on the daemon.
func (c *Client) ListVolumes(ctx context.Context) ([]VolumeSummary, error) {
	volumeList, err := c.docker.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var volumes []VolumeSummary
	for _, vol := range volumeList.Volumes {
		volumes = append(volumes, VolumeSummary{
			Name:       vol.Name,
			Driver:     vol.Driver,
			CreatedAt:  vol.CreatedAt,
			Mountpoint: vol.Mountpoint,
		})
	}

	return volumes, nil
}
