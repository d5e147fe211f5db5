package env

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/compose-network/zksync-devkit/internal/accounts"
	"github.com/compose-network/zksync-devkit/internal/deployments"
	"github.com/compose-network/zksync-devkit/internal/rpc"
	"github.com/compose-network/zksync-devkit/internal/rpc/rpctest"
	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rich wallet of the local test node
const testKey = "0x3d3cbc973389cb26f657686445bcc75662b415b656078503592ac8c1abb8810e"

type fixture struct {
	node    *rpctest.Node
	env     *Env
	account *accounts.PrivateKeyAccount
	store   *recordingStore
}

type recordingStore struct {
	records []deployments.Deployment
}

func (s *recordingStore) Insert(d deployments.Deployment) error {
	s.records = append(s.records, d)
	return nil
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	account, err := accounts.ParsePrivateKey(testKey)
	require.NoError(t, err)

	node := rpctest.NewNode()
	raw, err := node.Dial()
	require.NoError(t, err)

	client := rpc.NewClient(raw, "test-node", rpc.WithPollInterval(time.Millisecond))
	t.Cleanup(client.Close)

	store := &recordingStore{}
	opts = append([]Option{WithPollTimeout(time.Second), WithDeploymentStore(store)}, opts...)

	return &fixture{
		node:    node,
		env:     New(client, accounts.NewKeyring(account), opts...),
		account: account,
		store:   store,
	}
}

func TestDeployCodeUnknownSender(t *testing.T) {
	f := newFixture(t)
	stranger := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	_, err := f.env.DeployCode(context.Background(), DeployParams{
		Sender:   &stranger,
		Bytecode: make([]byte, 32),
	})
	require.ErrorIs(t, err, ErrUnknownAccount)
	assert.Contains(t, err.Error(), f.account.Address().Hex())
	assert.Zero(t, f.node.CallCount())
}

func TestDeployCodeNoAccounts(t *testing.T) {
	node := rpctest.NewNode()
	raw, err := node.Dial()
	require.NoError(t, err)
	e := New(rpc.NewClient(raw, "empty"), nil)

	_, err = e.DeployCode(context.Background(), DeployParams{Bytecode: make([]byte, 32)})
	require.ErrorIs(t, err, ErrNoSender)
	assert.Zero(t, node.CallCount())
}

func TestDeployCodeSingleZeroWord(t *testing.T) {
	f := newFixture(t)
	f.node.Nonces[f.account.Address()] = 4
	bytecode := make([]byte, 32)

	result, err := f.env.DeployCode(context.Background(), DeployParams{
		Bytecode:     bytecode,
		ContractName: "Empty",
	})
	require.NoError(t, err)

	assert.Equal(t, f.node.ContractAddress, result.Address)
	assert.Equal(t, bytecode, result.Bytecode)
	assert.Equal(t, result.Receipt, f.env.LastReceipt())

	// the batch comes first, then estimate, broadcast and receipt polling
	require.GreaterOrEqual(t, len(f.node.Calls), 6)
	assert.ElementsMatch(t, []string{"eth_getTransactionCount", "eth_chainId", "eth_gasPrice"}, f.node.Calls[:3])
	assert.Equal(t, []string{"eth_estimateGas", "eth_sendRawTransaction", "eth_getTransactionReceipt"}, f.node.Calls[3:6])

	require.Len(t, f.node.RawTransactions, 1)
	raw := f.node.RawTransactions[0]
	wire, err := zksync.DecodeRawTransaction(raw)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), wire.Nonce)
	assert.Equal(t, f.node.GasPrice, wire.GasPrice)
	assert.Equal(t, f.node.GasPrice, wire.MaxPriorityFeePerGas)
	assert.Equal(t, f.node.EstimatedGas, wire.Gas)
	assert.Equal(t, zksync.ContractDeployerAddress, wire.To)
	assert.Equal(t, f.account.Address(), wire.From)
	assert.Equal(t, big.NewInt(260), wire.ChainID)
	assert.Equal(t, [][]byte{bytecode}, wire.FactoryDeps)
	assert.Empty(t, wire.Paymaster)

	// paymaster encodes as an empty list, factory deps as one 32 byte string
	content, _, err := rlpFields(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc0}, content[15])
	assert.Equal(t, append([]byte{0xe1, 0xa0}, make([]byte, 32)...), content[13])

	hash, err := zksync.HashBytecode(bytecode)
	require.NoError(t, err)
	expectedCalldata, err := createCalldata(common.Hash{}, hash, nil)
	require.NoError(t, err)
	assert.Equal(t, expectedCalldata, wire.Data)
	assert.Equal(t, []byte{0x9c, 0x4d, 0x53, 0x5b}, wire.Data[:4])

	digest, err := result.Transaction.SigningHash(wire.Gas)
	require.NoError(t, err)
	sig := append([]byte{}, wire.Signature...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, f.account.Address(), crypto.PubkeyToAddress(*pub))

	require.Len(t, f.node.EstimateRequests, 1)
	var estimate map[string]any
	require.NoError(t, json.Unmarshal(f.node.EstimateRequests[0], &estimate))
	assert.Equal(t, "0x71", estimate["transactionType"])
	assert.Equal(t, "0x4", estimate["nonce"])
	meta := estimate["eip712Meta"].(map[string]any)
	assert.Equal(t, "0xc350", meta["gasPerPubdata"])
	deps := meta["factoryDeps"].([]any)
	require.Len(t, deps, 1)
	assert.Len(t, deps[0], 32)

	name, ok := f.env.Registry().LookupContract(result.Address)
	assert.True(t, ok)
	assert.Equal(t, "Empty", name)

	require.Len(t, f.store.records, 1)
	record := f.store.records[0]
	assert.Equal(t, "Empty", record.ContractName)
	assert.Equal(t, result.TxHash, record.TxHash)
	assert.Equal(t, "test-node", record.RPC)
	assert.Equal(t, uint64(260), record.ChainID)
	assert.NotEmpty(t, record.Receipt)
}

func TestDeployCodeWithPaymaster(t *testing.T) {
	f := newFixture(t)
	salt := common.HexToHash("0x01")
	paymaster := &zksync.PaymasterParams{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Input:   []byte{0x01, 0x02},
	}
	dependency := make([]byte, 64)

	_, err := f.env.DeployCode(context.Background(), DeployParams{
		Bytecode:             make([]byte, 32),
		ConstructorCalldata:  []byte{0xca, 0xfe},
		DependencyBytecodes:  [][]byte{dependency},
		Salt:                 &salt,
		MaxPriorityFeePerGas: big.NewInt(7),
		Paymaster:            paymaster,
	})
	require.NoError(t, err)

	wire, err := zksync.DecodeRawTransaction(f.node.RawTransactions[0])
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(7), wire.MaxPriorityFeePerGas)
	assert.Equal(t, [][]byte{make([]byte, 32), dependency}, wire.FactoryDeps)
	params, err := wire.PaymasterParams()
	require.NoError(t, err)
	assert.Equal(t, paymaster, params)
	assert.Equal(t, salt.Bytes(), wire.Data[4:36])
}

func TestDeployCodeInvalidBytecode(t *testing.T) {
	f := newFixture(t)

	_, err := f.env.DeployCode(context.Background(), DeployParams{Bytecode: make([]byte, 33)})
	require.ErrorIs(t, err, zksync.ErrBytecodeLength)
	assert.Empty(t, f.node.RawTransactions)
}

func TestDeployCodeEstimateGasFailure(t *testing.T) {
	f := newFixture(t)
	f.node.EstimateErr = errors.New("execution reverted: constructor failed")

	_, err := f.env.DeployCode(context.Background(), DeployParams{Bytecode: make([]byte, 32)})
	require.ErrorIs(t, err, ErrEstimateGasFailed)

	var estimateErr *EstimateGasError
	require.ErrorAs(t, err, &estimateErr)
	var rpcErr gethrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Error(), "constructor failed")
	assert.Empty(t, f.node.RawTransactions)
}

func TestDeployCodeReceiptTimeout(t *testing.T) {
	f := newFixture(t, WithPollTimeout(10*time.Millisecond))
	f.node.NeverMine = true

	_, err := f.env.DeployCode(context.Background(), DeployParams{Bytecode: make([]byte, 32)})
	require.ErrorIs(t, err, rpc.ErrReceiptTimeout)
	assert.Empty(t, f.store.records)
}

// rlpFields splits a 0x71 raw transaction into its encoded list elements.
func rlpFields(raw []byte) ([][]byte, []byte, error) {
	content, rest, err := rlp.SplitList(raw[1:])
	if err != nil {
		return nil, nil, err
	}

	var fields [][]byte
	for len(content) > 0 {
		_, _, next, err := rlp.Split(content)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, content[:len(content)-len(next)])
		content = next
	}
	return fields, rest, nil
}
