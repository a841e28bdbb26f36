package docker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// composeOutputLimit caps how much orchestrator output is carried in errors.
const composeOutputLimit = 4096

// Compose drives a compose-managed deployment through the compose CLI. The
// plugin form ("docker compose") is preferred; the legacy standalone binary
// is a fallback.
type Compose struct {
	client  *Client
	verbose bool
}

// NewCompose creates a compose controller sharing the given daemon client.
func NewCompose(client *Client, verbose bool) *Compose {
	return &Compose{client: client, verbose: verbose}
}

// Check verifies both the daemon and a usable compose command. Restore is
// pointless without either, so this runs before anything touches disk.
func (c *Compose) Check(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		return err
	}
	if _, _, err := resolveComposeCommand(ctx); err != nil {
		return err
	}
	return nil
}

// Up starts the deployment defined in dir, detached.
func (c *Compose) Up(ctx context.Context, dir string) error {
	output, err := c.run(ctx, dir, "up", "-d")
	if err != nil {
		return fmt.Errorf("failed to start deployment: %w (%s)", err, strings.TrimSpace(output))
	}
	return nil
}

// Down stops and removes the deployment in dir. Nothing running is not an
// error.
func (c *Compose) Down(ctx context.Context, dir string) error {
	output, err := c.run(ctx, dir, "down", "--remove-orphans")
	if err != nil {
		return fmt.Errorf("failed to stop deployment: %w (%s)", err, strings.TrimSpace(output))
	}
	return nil
}

func (c *Compose) run(ctx context.Context, workdir string, args ...string) (string, error) {
	cmdPath, baseArgs, err := resolveComposeCommand(ctx)
	if err != nil {
		return "", err
	}
	cmdArgs := append(baseArgs, args...)
	if c.verbose {
		fmt.Printf("🐳 %s %s\n", cmdPath, strings.Join(cmdArgs, " "))
	}
	cmd := exec.CommandContext(ctx, cmdPath, cmdArgs...)
	cmd.Dir = workdir
	output, err := cmd.CombinedOutput()
	if len(output) > composeOutputLimit {
		output = output[:composeOutputLimit]
	}
	return string(output), err
}

func resolveComposeCommand(ctx context.Context) (string, []string, error) {
	if dockerPath, err := exec.LookPath("docker"); err == nil {
		if err := exec.CommandContext(ctx, dockerPath, "compose", "version").Run(); err == nil {
			return dockerPath, []string{"compose"}, nil
		}
	}
	if composePath, err := exec.LookPath("docker-compose"); err == nil {
		return composePath, []string{}, nil
	}
	return "", nil, errors.New("docker compose command not found")
}
