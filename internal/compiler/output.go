package compiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrContractKeys = errors.New("expected exactly one contract key")

// metadataKeys are the combined_json keys that describe the compiler
// instead of a contract.
var metadataKeys = map[string]bool{
	"zk_version": true,
	"version":    true,
}

// ContractOutput returns the single contract entry of a combined_json output.
func ContractOutput(combined map[string]json.RawMessage) (json.RawMessage, error) {
	keys := make([]string, 0, len(combined))
	for key := range combined {
		if !metadataKeys[key] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	if len(keys) != 1 {
		return nil, fmt.Errorf("%w, found %s", ErrContractKeys, strings.Join(keys, ", "))
	}
	return combined[keys[0]], nil
}
