package env

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/IContractDeployer.json
var contractDeployerJSON []byte

// contractDeployerABI is parsed on first use and shared by every environment.
var contractDeployerABI = sync.OnceValues(func() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(contractDeployerJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ContractDeployer ABI: %w", err)
	}
	return parsed, nil
})

// createCalldata encodes ContractDeployer.create(salt, bytecodeHash, input).
func createCalldata(salt, bytecodeHash common.Hash, input []byte) ([]byte, error) {
	parsed, err := contractDeployerABI()
	if err != nil {
		return nil, err
	}

	if input == nil {
		input = []byte{}
	}

	data, err := parsed.Pack("create", [32]byte(salt), [32]byte(bytecodeHash), input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create calldata: %w", err)
	}

	return data, nil
}
