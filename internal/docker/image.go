package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/image"
)

// PullImage fetches an image by reference. The returned progress stream must
// be drained for the pull to complete.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	reader, err := c.docker.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image '%s': %w", ref, err)
	}
	defer func() {
		if err := reader.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close pull stream: %v\n", err)
		}
	}()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image '%s': %w", ref, err)
	}
	return nil
}

// SaveImage exports an image to a tar file at destPath.
func (c *Client) SaveImage(ctx context.Context, ref, destPath string) error {
	reader, err := c.docker.ImageSave(ctx, []string{ref})
	if err != nil {
		return fmt.Errorf("failed to save image '%s': %w", ref, err)
	}
	defer func() {
		if err := reader.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close save stream: %v\n", err)
		}
	}()

	out, err := os.Create(destPath) // #nosec G304 - controlled staging path
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	if _, err := io.Copy(out, reader); err != nil {
		if closeErr := out.Close(); closeErr != nil && c.verbose {
			fmt.Printf("Warning: failed to close image file: %v\n", closeErr)
		}
		return fmt.Errorf("failed to write image '%s': %w", ref, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize image file: %w", err)
	}
	return nil
}

// LoadImage imports an image from a tar file. Loading an image that already
// exists just refreshes its layers.
func (c *Client) LoadImage(ctx context.Context, tarPath string) error {
	f, err := os.Open(tarPath) // #nosec G304 - controlled archive scratch path
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close image file: %v\n", err)
		}
	}()

	resp, err := c.docker.ImageLoad(ctx, f, true)
	if err != nil {
		return fmt.Errorf("failed to load image from '%s': %w", tarPath, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close load response: %v\n", err)
		}
	}()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to load image from '%s': %w", tarPath, err)
	}
	return nil
}
