package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const DefaultPollInterval = 500 * time.Millisecond

var (
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
	ErrNullResponse   = errors.New("null response")
)

// disabledMethods are answered locally because zkSync nodes do not serve them.
var disabledMethods = map[string]json.RawMessage{
	"eth_maxPriorityFeePerGas": json.RawMessage(`"0x0"`),
}

// Request is one element of a batch.
type Request struct {
	Method string
	Params []any
}

// Client is a JSON-RPC request/response channel to a zkSync node.
type Client struct {
	client       *gethrpc.Client
	name         string
	pollInterval time.Duration
	logger       *slog.Logger
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

func Dial(ctx context.Context, url, name string, opts ...Option) (*Client, error) {
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC at %s: %w", url, err)
	}

	if name == "" {
		name = url
	}
	return NewClient(client, name, opts...), nil
}

func NewClient(client *gethrpc.Client, name string, opts ...Option) *Client {
	c := &Client{
		client:       client,
		name:         name,
		pollInterval: DefaultPollInterval,
		logger:       logger.Named("rpc").With("rpc", name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name is the nickname of the node, recorded with deployments.
func (c *Client) Name() string {
	return c.name
}

// Eth returns a typed client sharing the same connection.
func (c *Client) Eth() *ethclient.Client {
	return ethclient.NewClient(c.client)
}

func (c *Client) Close() {
	c.client.Close()
}

// Fetch sends a single request and returns the raw result.
func (c *Client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if result, ok := disabledMethods[method]; ok {
		return result, nil
	}

	c.logger.With("method", method).Debug("sending request")

	if params == nil {
		params = []any{}
	}

	var result json.RawMessage
	if err := c.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}

	return result, nil
}

// FetchInto sends a single request and decodes a non-null result into out.
func (c *Client) FetchInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Fetch(ctx, method, params...)
	if err != nil {
		return err
	}
	if isNull(raw) {
		return fmt.Errorf("%s: %w", method, ErrNullResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// FetchMulti sends all requests in one batch and returns the results in
// request order. The first failed or null element fails the whole batch.
func (c *Client) FetchMulti(ctx context.Context, requests []Request) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, len(requests))
	elems := make([]gethrpc.BatchElem, 0, len(requests))
	positions := make([]int, 0, len(requests))

	for i, req := range requests {
		if result, ok := disabledMethods[req.Method]; ok {
			results[i] = result
			continue
		}

		args := req.Params
		if args == nil {
			args = []any{}
		}
		elems = append(elems, gethrpc.BatchElem{
			Method: req.Method,
			Args:   args,
			Result: &results[i],
		})
		positions = append(positions, i)
	}

	if len(elems) == 0 {
		return results, nil
	}

	c.logger.With("size", len(elems)).Debug("sending batch")

	if err := c.client.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}

	for i, elem := range elems {
		if elem.Error != nil {
			return nil, fmt.Errorf("%s failed: %w", requests[positions[i]].Method, elem.Error)
		}
		if isNull(results[positions[i]]) {
			return nil, fmt.Errorf("%s: %w", requests[positions[i]].Method, ErrNullResponse)
		}
	}

	return results, nil
}

// WaitForReceipt polls eth_getTransactionReceipt until the transaction is
// mined or timeout elapses.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)

	for {
		raw, err := c.Fetch(ctx, "eth_getTransactionReceipt", hash)
		if err != nil {
			return nil, err
		}

		if !isNull(raw) {
			var receipt Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return nil, fmt.Errorf("failed to decode receipt: %w", err)
			}
			receipt.Raw = raw
			return &receipt, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, hash.Hex(), timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(c.pollInterval, time.Until(deadline))):
		}
	}
}

// IsNodeError reports whether err came back from the node as a JSON-RPC
// error object or an HTTP error status.
func IsNodeError(err error) bool {
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}

	var httpErr gethrpc.HTTPError
	return errors.As(err, &httpErr)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
