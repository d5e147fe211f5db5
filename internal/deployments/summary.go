package deployments

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	Summary struct {
		Chains map[string]Chain `yaml:"chains"`
	}

	Chain struct {
		RPC       string              `yaml:"rpc"`
		Contracts map[string]Contract `yaml:"contracts"`
	}

	Contract struct {
		Address     string             `yaml:"address"`
		TxHash      string             `yaml:"tx-hash"`
		DeployedAt  string             `yaml:"deployed-at"`
		ABI         SingleQuotedString `yaml:"abi,omitempty"`
		Deployments int                `yaml:"deployments"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}

// NewSummary keeps the latest deployment of each contract name per chain.
// Deployments must be ordered oldest first.
func NewSummary(deployments []Deployment) Summary {
	summary := Summary{Chains: map[string]Chain{}}

	for _, d := range deployments {
		key := strconv.FormatUint(d.ChainID, 10)
		chain, ok := summary.Chains[key]
		if !ok {
			chain = Chain{Contracts: map[string]Contract{}}
		}
		chain.RPC = d.RPC

		name := d.ContractName
		if name == "" {
			name = d.Address.Hex()
		}

		count := chain.Contracts[name].Deployments + 1
		chain.Contracts[name] = Contract{
			Address:     d.Address.Hex(),
			TxHash:      d.TxHash.Hex(),
			DeployedAt:  d.BroadcastAt.UTC().Format(time.RFC3339),
			ABI:         SingleQuotedString(compactJSON(d.ABI)),
			Deployments: count,
		}
		summary.Chains[key] = chain
	}

	return summary
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
