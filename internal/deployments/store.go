package deployments

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/compose-network/zksync-devkit/internal/infra/filesystem"
	fsjson "github.com/compose-network/zksync-devkit/internal/infra/filesystem/json"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	recordsDir  = "records"
	summaryFile = "deployments.yaml"
)

// Deployment records one broadcast contract deployment.
type Deployment struct {
	ContractName string          `json:"contract_name"`
	Address      common.Address  `json:"contract_address"`
	Deployer     common.Address  `json:"deployer"`
	TxHash       common.Hash     `json:"tx_hash"`
	BroadcastAt  time.Time       `json:"broadcast_ts"`
	RPC          string          `json:"rpc"`
	ChainID      uint64          `json:"chain_id"`
	ABI          json.RawMessage `json:"abi,omitempty"`
	Tx           map[string]any  `json:"tx"`
	Receipt      json.RawMessage `json:"receipt"`
}

// Store persists deployments as one JSON file each and keeps a YAML summary
// of the latest address per contract and chain.
type Store struct {
	dir    string
	reader filesystem.Reader
	writer filesystem.Writer
	mu     sync.Mutex
	logger *slog.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		reader: fsjson.NewReader(),
		writer: fsjson.NewWriter(),
		logger: logger.Named("deployments"),
	}
}

func (s *Store) Insert(d Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, recordsDir, strconv.FormatUint(d.ChainID, 10), d.TxHash.Hex()+".json")
	if err := s.writer.WriteJSON(path, d); err != nil {
		return fmt.Errorf("failed to write deployment record: %w", err)
	}

	s.logger.
		With("contract", d.ContractName).
		With("address", d.Address.Hex()).
		With("path", path).
		Debug("deployment recorded")

	return s.writeSummary()
}

// List returns every recorded deployment, oldest first.
func (s *Store) List() ([]Deployment, error) {
	paths, err := s.reader.ListJSON(filepath.Join(s.dir, recordsDir))
	if err != nil {
		return nil, err
	}

	deployments := make([]Deployment, 0, len(paths))
	for _, path := range paths {
		var d Deployment
		if err := s.reader.ReadJSON(path, &d); err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}

	sort.SliceStable(deployments, func(i, j int) bool {
		return deployments[i].BroadcastAt.Before(deployments[j].BroadcastAt)
	})

	return deployments, nil
}

func (s *Store) writeSummary() error {
	deployments, err := s.List()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(NewSummary(deployments))
	if err != nil {
		return fmt.Errorf("could not marshal deployments summary: %w", err)
	}

	if err := s.writer.WriteBytes(filepath.Join(s.dir, summaryFile), data); err != nil {
		return fmt.Errorf("could not write deployments summary: %w", err)
	}

	return nil
}
