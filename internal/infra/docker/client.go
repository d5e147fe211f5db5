package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

type Client struct {
	cli    *client.Client
	logger *slog.Logger
}

// New creates a Docker client from the environment.
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return &Client{cli: cli, logger: logger.Named("docker_client")}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// ImageExists checks if a Docker image exists locally.
func (c *Client) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := c.cli.ImageInspect(ctx, imageName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// EnsureImage pulls imageName unless it is already present.
func (c *Client) EnsureImage(ctx context.Context, imageName string) error {
	exists, err := c.ImageExists(ctx, imageName)
	if err != nil {
		return fmt.Errorf("failed to inspect image %s: %w", imageName, err)
	}
	if exists {
		return nil
	}
	return c.PullImage(ctx, imageName)
}

// PullImage pulls a Docker image from a registry.
func (c *Client) PullImage(ctx context.Context, imageName string) error {
	c.logger.With("image", imageName).Info("pulling docker image")

	resp, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer resp.Close()

	scanner := bufio.NewScanner(resp)
	var pullError error
	for scanner.Scan() {
		line := scanner.Text()
		c.logger.Debug(line)

		if err := pullLineError(line); err != nil {
			pullError = err
			c.logger.Error("docker pull error", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull output: %w", err)
	}

	if pullError != nil {
		return pullError
	}

	c.logger.With("image", imageName).Info("docker image pulled successfully")
	return nil
}

// pullLineError decodes one JSON progress line of an image pull.
func pullLineError(line string) error {
	var msg struct {
		Error       string `json:"error"`
		ErrorDetail struct {
			Message string `json:"message"`
		} `json:"errorDetail"`
	}
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Error == "" {
		return nil
	}
	return fmt.Errorf("pull failed: %s", msg.Error)
}

// isGone reports removal errors of a container that is already removed or
// being removed by AutoRemove.
func isGone(err error) bool {
	return errdefs.IsNotFound(err) || errdefs.IsConflict(err)
}
