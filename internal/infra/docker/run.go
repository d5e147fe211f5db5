package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

type RunOptions struct {
	Image string
	Name  string
	Cmd   []string
	Env   []string
	// Ports maps container TCP ports to host ports on 127.0.0.1.
	Ports      map[int]int
	AutoRemove bool
	// Stdout and Stderr receive the container output when set.
	Stdout io.Writer
	Stderr io.Writer
}

// Container is a started, detached container.
type Container struct {
	ID     string
	client *Client
}

// Start creates and starts a container without waiting for it to exit.
func (c *Client) Start(ctx context.Context, opts RunOptions) (*Container, error) {
	exposed, bindings, err := portBindings(opts.Ports)
	if err != nil {
		return nil, err
	}

	config := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Env:          opts.Env,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		AutoRemove:   opts.AutoRemove,
		PortBindings: bindings,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	if opts.Stdout != nil || opts.Stderr != nil {
		attachResp, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
			Stream: true,
			Stdout: true,
			Stderr: true,
		})
		if err != nil {
			_ = c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
			return nil, fmt.Errorf("failed to attach to container: %w", err)
		}

		stdout, stderr := opts.Stdout, opts.Stderr
		if stdout == nil {
			stdout = io.Discard
		}
		if stderr == nil {
			stderr = io.Discard
		}
		go func() {
			defer attachResp.Close()
			_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		}()
	}

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	c.logger.With("image", opts.Image).With("container_id", containerID).Info("container started")

	return &Container{ID: containerID, client: c}, nil
}

// Stop stops and removes the container.
func (ct *Container) Stop(ctx context.Context) error {
	timeout := 10
	if err := ct.client.cli.ContainerStop(ctx, ct.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", ct.ID, err)
	}
	if err := ct.client.cli.ContainerRemove(ctx, ct.ID, container.RemoveOptions{Force: true}); err != nil && !isGone(err) {
		return fmt.Errorf("failed to remove container %s: %w", ct.ID, err)
	}

	ct.client.logger.With("container_id", ct.ID).Info("container stopped")
	return nil
}

func portBindings(ports map[int]int) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}

	for containerPort, hostPort := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}}
	}

	return exposed, bindings, nil
}
