package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	DefaultExplorerURL = "https://zksync2-mainnet-explorer.zksync.io"

	codeFormatVyperMultiFile = "vyper-multi-file"
	requestTimeout           = 10 * time.Second
)

var (
	ErrVerificationFailed  = errors.New("verification failed")
	ErrVerificationTimeout = errors.New("timeout waiting for verification to complete")
	ErrInvalidID           = errors.New("explorer returned an invalid verification id")

	versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

	// retryStatusCodes are answered while the explorer has not indexed the
	// request yet.
	retryStatusCodes = []int{
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
)

// Request is a contract to verify. Sources maps file names to their content.
type Request struct {
	Address              common.Address
	ContractName         string
	Sources              map[string]string
	VyperVersion         string
	ZkvyperVersion       string
	ConstructorArguments []byte
}

type verificationBody struct {
	ContractAddress        common.Address `json:"contractAddress"`
	SourceCode             sourceCode     `json:"sourceCode"`
	CodeFormat             string         `json:"codeFormat"`
	ContractName           string         `json:"contractName"`
	CompilerVyperVersion   string         `json:"compilerVyperVersion"`
	CompilerZkvyperVersion string         `json:"compilerZkvyperVersion"`
	ConstructorArguments   hexutil.Bytes  `json:"constructorArguments"`
	OptimizationUsed       bool           `json:"optimizationUsed"`
}

type sourceCode struct {
	Language string                   `json:"language"`
	Sources  map[string]sourceContent `json:"sources"`
}

type sourceContent struct {
	Content string `json:"content"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Explorer submits contracts to the zkSync block explorer verification API.
type Explorer struct {
	uri            string
	timeout        time.Duration
	initialBackoff time.Duration
	backoffFactor  float64
	client         *http.Client
	logger         *slog.Logger
}

func New(uri string, cfg configs.Verifier) *Explorer {
	if uri == "" {
		uri = DefaultExplorerURL
	}

	return &Explorer{
		uri:            strings.TrimRight(uri, "/"),
		timeout:        cfg.Timeout,
		initialBackoff: cfg.InitialBackoff,
		backoffFactor:  cfg.BackoffFactor,
		client:         &http.Client{Timeout: requestTimeout},
		logger:         logger.Named("explorer_verifier"),
	}
}

// Verify submits req and returns the verification id.
func (e *Explorer) Verify(ctx context.Context, req Request) (string, error) {
	vyperVersion, err := ExtractVersion(req.VyperVersion)
	if err != nil {
		return "", err
	}

	sources := make(map[string]sourceContent, len(req.Sources))
	for name, content := range req.Sources {
		sources[name] = sourceContent{Content: content}
	}

	body, err := json.Marshal(verificationBody{
		ContractAddress:        req.Address,
		SourceCode:             sourceCode{Language: "Vyper", Sources: sources},
		CodeFormat:             codeFormatVyperMultiFile,
		ContractName:           req.ContractName,
		CompilerVyperVersion:   vyperVersion,
		CompilerZkvyperVersion: req.ZkvyperVersion,
		ConstructorArguments:   req.ConstructorArguments,
		OptimizationUsed:       true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal verification request: %w", err)
	}

	url := e.uri + "/contract_verification"
	e.logger.With("url", url).With("address", req.Address.Hex()).Info("submitting contract verification")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to submit verification: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	id := strings.TrimSpace(string(respBody))
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	e.logger.With("verification_id", id).Info("contract verification submitted")
	return id, nil
}

// WaitForVerification polls the verification status with a growing
// backoff until it succeeds, fails or the timeout passes.
func (e *Explorer) WaitForVerification(ctx context.Context, id string) error {
	deadline := time.Now().Add(e.timeout)
	wait := e.initialBackoff

	for time.Now().Before(deadline) {
		verified, err := e.IsVerified(ctx, id)
		if err != nil {
			return err
		}
		if verified {
			e.logger.With("verification_id", id).Info("contract verified")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * e.backoffFactor)
	}

	return fmt.Errorf("%w: %s", ErrVerificationTimeout, id)
}

// IsVerified reports whether verification id succeeded. Known statuses are
// successful, failed, queued and in_progress.
func (e *Explorer) IsVerified(ctx context.Context, id string) (bool, error) {
	url := e.uri + "/contract_verification/" + id

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch verification status: %w", err)
	}
	defer resp.Body.Close()

	if slices.Contains(retryStatusCodes, resp.StatusCode) {
		e.logger.With("status_code", resp.StatusCode).Debug("verification status not available yet")
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to unmarshal verification status: %w", err)
	}

	e.logger.With("verification_id", id).With("status", status.Status).Debug("verification status")

	if status.Status == "failed" {
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, status.Error)
	}
	return status.Status == "successful", nil
}

// ExtractVersion returns the first X.Y.Z of a compiler version string,
// which is all the explorer accepts.
func ExtractVersion(version string) (string, error) {
	match := versionPattern.FindString(version)
	if match == "" {
		return "", fmt.Errorf("could not extract version from %q", version)
	}
	return match, nil
}
