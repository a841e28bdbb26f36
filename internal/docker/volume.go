package docker

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

// maxVolumeSize caps how much data one volume transfer may carry (100GB).
const maxVolumeSize = 100 * 1024 * 1024 * 1024

// ExportVolume streams the volume's file tree into a gzipped tarball at
// destPath. The volume is mounted read-only into a throwaway helper
// container, so running services keep their mounts.
func (c *Client) ExportVolume(ctx context.Context, name, destPath string) error {
	resp, err := c.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image: helperImage,
			Cmd:   []string{"tar", "czf", "/backup.tar.gz", "-C", "/data", "."},
		},
		&container.HostConfig{
			Binds: []string{
				fmt.Sprintf("%s:/data:ro", name),
			},
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return fmt.Errorf("failed to create export container: %w", err)
	}
	defer c.removeContainer(resp.ID)

	if err := c.runToCompletion(ctx, resp.ID, "export"); err != nil {
		return err
	}

	reader, _, err := c.docker.CopyFromContainer(ctx, resp.ID, "/backup.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to copy export from container: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close reader: %v\n", err)
		}
	}()

	out, err := os.Create(destPath) // #nosec G304 - controlled staging path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil && c.verbose {
			fmt.Printf("Warning: failed to close output file: %v\n", err)
		}
	}()

	// CopyFromContainer wraps the file in a tar stream.
	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}
		if header.Name == "backup.tar.gz" || strings.HasSuffix(header.Name, "/backup.tar.gz") {
			if _, err := io.CopyN(out, tarReader, maxVolumeSize); err != nil && err != io.EOF {
				return fmt.Errorf("failed to copy volume data: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("backup.tar.gz not found in tar stream")
}

// ImportVolume extracts a gzipped tarball into the volume, replacing its
// contents.
func (c *Client) ImportVolume(ctx context.Context, name, tarPath string) error {
	data, err := os.ReadFile(tarPath) // #nosec G304 - controlled archive scratch path
	if err != nil {
		return fmt.Errorf("failed to read volume data: %w", err)
	}

	resp, err := c.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image: helperImage,
			Cmd:   []string{"sh", "-c", "rm -rf /data/* /data/.[^.]* && cd /data && tar xzf /backup.tar.gz"},
		},
		&container.HostConfig{
			Binds: []string{
				fmt.Sprintf("%s:/data", name),
			},
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return fmt.Errorf("failed to create import container: %w", err)
	}
	defer c.removeContainer(resp.ID)

	if err := c.docker.CopyToContainer(
		ctx,
		resp.ID,
		"/",
		createTarWithFile("backup.tar.gz", data),
		types.CopyToContainerOptions{},
	); err != nil {
		return fmt.Errorf("failed to copy volume data to container: %w", err)
	}

	return c.runToCompletion(ctx, resp.ID, "import")
}

// runToCompletion starts the helper container and waits for it to exit,
// surfacing its logs on a non-zero exit code.
func (c *Client) runToCompletion(ctx context.Context, containerID, action string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s container: %w", action, err)
	}

	statusCh, errCh := c.docker.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s container error: %w", action, err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			logs, logErr := c.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
				ShowStdout: true,
				ShowStderr: true,
			})
			if logErr == nil {
				defer func() {
					if err := logs.Close(); err != nil && c.verbose {
						fmt.Printf("Warning: failed to close logs: %v\n", err)
					}
				}()
				logData, _ := io.ReadAll(logs)
				if len(logData) > 0 {
					return fmt.Errorf("%s container failed with exit code %d. Logs: %s",
						action, status.StatusCode, string(logData))
				}
			}
			return fmt.Errorf("%s container exited with code %d", action, status.StatusCode)
		}
	}
	return nil
}

func (c *Client) removeContainer(containerID string) {
	// Cleanup runs even when the caller's context is already cancelled.
	err := c.docker.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	if err != nil && c.verbose {
		fmt.Printf("Warning: failed to remove container %s: %v\n", containerID, err)
	}
}

func createTarWithFile(filename string, data []byte) io.Reader {
	buf := new(strings.Builder)
	tw := tar.NewWriter(buf)

	header := &tar.Header{
		Name: filename,
		Mode: 0600,
		Size: int64(len(data)),
	}

	if err := tw.WriteHeader(header); err != nil {
		return strings.NewReader("")
	}
	if _, err := tw.Write(data); err != nil {
		return strings.NewReader("")
	}
	if err := tw.Close(); err != nil {
		return strings.NewReader("")
	}

	return strings.NewReader(buf.String())
}
