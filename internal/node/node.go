// Package node runs an anvil-zksync test node, either as a local binary or
// as a docker container.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	SuggestedPort = 8011

	defaultStartupTimeout = 10 * time.Second
	readinessInterval     = 100 * time.Millisecond
)

var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrStartupTimeout = errors.New("node did not become ready")
)

type backend interface {
	start(ctx context.Context, args []string, port int) error
	stop(ctx context.Context) error
}

// Node is an anvil-zksync instance. Fork mode is selected by a non-empty
// fork URL.
type Node struct {
	cfg     configs.Node
	port    int
	backend backend
	running bool
	logger  *slog.Logger
}

// New picks the port and backend for cfg. The configured port is used when
// free, otherwise any free port.
func New(cfg configs.Node) (*Node, error) {
	preferred := cfg.Port
	if preferred == 0 {
		preferred = SuggestedPort
	}
	port, err := choosePort(preferred)
	if err != nil {
		return nil, err
	}

	log := logger.Named("anvil_zksync")
	if port != preferred {
		log.With("preferred", preferred).With("port", port).Info("preferred port in use, using a free port")
	}

	var b backend
	switch cfg.Backend {
	case configs.NodeBackendDocker:
		b = newDockerBackend(cfg.Image)
	default:
		b = &binaryBackend{path: cfg.BinaryPath}
	}

	return &Node{cfg: cfg, port: port, backend: b, logger: log}, nil
}

func (n *Node) Port() int {
	return n.port
}

func (n *Node) URL() string {
	return "http://localhost:" + strconv.Itoa(n.port)
}

// Args returns the anvil-zksync arguments: extra node args, the port, then
// the run or fork subcommand.
func (n *Node) Args() []string {
	args := append([]string{}, n.cfg.Args...)
	args = append(args, "--port", strconv.Itoa(n.port))

	if n.cfg.ForkURL == "" {
		return append(args, "run")
	}

	args = append(args, "fork", "--fork-url", n.cfg.ForkURL)
	if n.cfg.ForkAt != 0 {
		args = append(args, "--fork-at", strconv.FormatUint(n.cfg.ForkAt, 10))
	}
	return args
}

// Start launches the node and waits until it answers eth_chainId.
func (n *Node) Start(ctx context.Context) error {
	if n.running {
		return ErrAlreadyRunning
	}

	args := n.Args()
	n.logger.With("args", args).With("backend", n.cfg.Backend).Info("starting anvil-zksync")

	if err := n.backend.start(ctx, args, n.port); err != nil {
		return fmt.Errorf("failed to start anvil-zksync: %w", err)
	}
	n.running = true

	timeout := n.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	if err := waitForRPC(ctx, n.URL(), timeout); err != nil {
		return errors.Join(err, n.Stop(context.WithoutCancel(ctx)))
	}

	n.logger.With("url", n.URL()).Info("anvil-zksync running")
	return nil
}

func (n *Node) Stop(ctx context.Context) error {
	if !n.running {
		return nil
	}
	n.running = false

	n.logger.Info("stopping anvil-zksync")
	if err := n.backend.stop(ctx); err != nil {
		return fmt.Errorf("failed to stop anvil-zksync: %w", err)
	}
	return nil
}

// waitForRPC polls url with eth_chainId until it answers or timeout passes.
func waitForRPC(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", url, err)
	}
	defer client.Close()

	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()

	for {
		if _, err := client.ChainID(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at %s within %s", ErrStartupTimeout, url, timeout)
		case <-ticker.C:
		}
	}
}

func choosePort(preferred int) (int, error) {
	if portFree(preferred) {
		return preferred, nil
	}
	return freePort()
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
