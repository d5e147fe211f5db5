package env

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/compose-network/zksync-devkit/internal/accounts"
	"github.com/compose-network/zksync-devkit/internal/deployments"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/compose-network/zksync-devkit/internal/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const DefaultPollTimeout = 240 * time.Second

// DeploymentStore persists broadcast deployments.
type DeploymentStore interface {
	Insert(d deployments.Deployment) error
}

// Env deploys and calls contracts on one zkSync node.
type Env struct {
	rpc            *rpc.Client
	keyring        *accounts.Keyring
	defaultAccount common.Address
	registry       *Registry
	store          DeploymentStore
	pollTimeout    time.Duration
	logger         *slog.Logger

	mu          sync.Mutex
	lastReceipt *rpc.Receipt
}

type Option func(*Env)

// WithDefaultAccount sets the sender used when a call names none. Without
// it the first keyring account is used.
func WithDefaultAccount(addr common.Address) Option {
	return func(e *Env) {
		e.defaultAccount = addr
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(e *Env) {
		e.pollTimeout = d
	}
}

func WithDeploymentStore(store DeploymentStore) Option {
	return func(e *Env) {
		e.store = store
	}
}

func New(client *rpc.Client, keyring *accounts.Keyring, opts ...Option) *Env {
	if keyring == nil {
		keyring = accounts.NewKeyring()
	}

	e := &Env{
		rpc:         client,
		keyring:     keyring,
		registry:    NewRegistry(),
		pollTimeout: DefaultPollTimeout,
		logger:      logger.Named("env").With("rpc", client.Name()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Env) RPC() *rpc.Client {
	return e.rpc
}

func (e *Env) Registry() *Registry {
	return e.registry
}

// RegisterContract names addr in call traces.
func (e *Env) RegisterContract(addr common.Address, name string) {
	e.registry.Register(addr, name)
}

// LastReceipt returns the receipt of the latest mined transaction.
func (e *Env) LastReceipt() *rpc.Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReceipt
}

func (e *Env) setLastReceipt(receipt *rpc.Receipt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReceipt = receipt
}

// DefaultSender returns the configured default account address.
func (e *Env) DefaultSender() (common.Address, error) {
	if e.defaultAccount != (common.Address{}) {
		return e.defaultAccount, nil
	}
	if account, ok := e.keyring.Default(); ok {
		return account.Address(), nil
	}
	return common.Address{}, ErrNoSender
}

func (e *Env) resolveSender(sender *common.Address) (common.Address, error) {
	if sender != nil {
		return *sender, nil
	}
	return e.DefaultSender()
}

// signer returns the keyring account of sender.
func (e *Env) signer(sender common.Address) (accounts.Account, error) {
	account, ok := e.keyring.Get(sender)
	if ok {
		return account, nil
	}

	if e.keyring.Len() == 0 {
		return nil, fmt.Errorf("%w: %s, no accounts are configured", ErrUnknownAccount, sender.Hex())
	}
	return nil, fmt.Errorf("%w: %s, known accounts: %v", ErrUnknownAccount, sender.Hex(), e.keyring.Addresses())
}

// chainState is the batched nonce, chain id and gas price lookup.
type chainState struct {
	nonce                uint64
	chainID              *big.Int
	gasPrice             *big.Int
	maxPriorityFeePerGas *big.Int
}

func (e *Env) fetchChainState(ctx context.Context, sender common.Address, withPriorityFee bool) (*chainState, error) {
	requests := []rpc.Request{
		{Method: "eth_getTransactionCount", Params: []any{sender, "latest"}},
		{Method: "eth_chainId"},
		{Method: "eth_gasPrice"},
	}
	if withPriorityFee {
		requests = append(requests, rpc.Request{Method: "eth_maxPriorityFeePerGas"})
	}

	results, err := e.rpc.FetchMulti(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain state: %w", err)
	}

	var (
		nonce    hexutil.Uint64
		chainID  hexutil.Big
		gasPrice hexutil.Big
	)
	for i, target := range []any{&nonce, &chainID, &gasPrice} {
		if err := json.Unmarshal(results[i], target); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", requests[i].Method, err)
		}
	}

	state := &chainState{
		nonce:    uint64(nonce),
		chainID:  chainID.ToInt(),
		gasPrice: gasPrice.ToInt(),
	}

	if withPriorityFee {
		var fee hexutil.Big
		if err := json.Unmarshal(results[3], &fee); err != nil {
			return nil, fmt.Errorf("failed to decode eth_maxPriorityFeePerGas: %w", err)
		}
		state.maxPriorityFeePerGas = fee.ToInt()
	}

	return state, nil
}

func (e *Env) estimateGas(ctx context.Context, request any) (uint64, error) {
	var gas hexutil.Uint64
	if err := e.rpc.FetchInto(ctx, &gas, "eth_estimateGas", request); err != nil {
		if rpc.IsNodeError(err) {
			return 0, &EstimateGasError{Err: err}
		}
		return 0, err
	}
	return uint64(gas), nil
}

// Registry names known contract addresses for call traces.
type Registry struct {
	mu        sync.RWMutex
	contracts map[common.Address]string
}

func NewRegistry() *Registry {
	return &Registry{contracts: map[common.Address]string{}}
}

func (r *Registry) Register(addr common.Address, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[addr] = name
}

func (r *Registry) LookupContract(addr common.Address) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.contracts[addr]
	return name, ok
}
