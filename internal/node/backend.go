package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/compose-network/zksync-devkit/internal/infra/docker"
)

const stopGracePeriod = 10 * time.Second

// binaryBackend runs anvil-zksync as a child process.
type binaryBackend struct {
	path string
	cmd  *exec.Cmd
	done chan error
}

func (b *binaryBackend) start(_ context.Context, args []string, _ int) error {
	path := b.path
	if path == "" {
		path = "anvil-zksync"
	}

	// the node outlives the start context, so it is not bound to it
	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	b.cmd = cmd
	b.done = make(chan error, 1)
	go func() {
		b.done <- cmd.Wait()
	}()
	return nil
}

// stop sends SIGTERM and kills the process after the grace period.
func (b *binaryBackend) stop(ctx context.Context) error {
	if b.cmd == nil {
		return nil
	}
	defer func() { b.cmd = nil }()

	if err := b.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal process: %w", err)
	}

	select {
	case <-b.done:
		return nil
	case <-time.After(stopGracePeriod):
	case <-ctx.Done():
	}

	if err := b.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	<-b.done
	return nil
}

// dockerBackend runs the anvil-zksync image with the node port published
// on the same host port.
type dockerBackend struct {
	image     string
	client    *docker.Client
	container *docker.Container
}

func newDockerBackend(image string) *dockerBackend {
	return &dockerBackend{image: image}
}

func (b *dockerBackend) start(ctx context.Context, args []string, port int) error {
	client, err := docker.New()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}

	if err := client.EnsureImage(ctx, b.image); err != nil {
		_ = client.Close()
		return err
	}

	// the container must listen on all interfaces for the port mapping
	cmd := append([]string{"--host", "0.0.0.0"}, args...)
	container, err := client.Start(ctx, docker.RunOptions{
		Image:      b.image,
		Cmd:        cmd,
		Ports:      map[int]int{port: port},
		AutoRemove: true,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
	if err != nil {
		_ = client.Close()
		return err
	}

	b.client = client
	b.container = container
	return nil
}

func (b *dockerBackend) stop(ctx context.Context) error {
	if b.container == nil {
		return nil
	}
	defer func() {
		_ = b.client.Close()
		b.client, b.container = nil, nil
	}()

	return b.container.Stop(ctx)
}
