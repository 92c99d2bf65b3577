// Package client is the HTTP client library for airdrop servers.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/claimsig"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single HTTP request
const DefaultTimeout = 30 * time.Second

// ClientConfig holds the configuration for the airdrop client
type ClientConfig struct {
	// ServerURLs are tried in order; the next one is used when a server is unreachable or unavailable
	ServerURLs []string
	Logger     *zap.Logger

	// HTTPClient overrides the default client with DefaultTimeout
	HTTPClient *http.Client
}

// Client talks to one or more airdrop servers sharing the same claim store
type Client struct {
	serverURLs []string
	httpClient *http.Client
	logger     *zap.Logger
}

// APIError is a non-2xx answer from a server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsAlreadyClaimed reports whether err is a 409 from the server
func IsAlreadyClaimed(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsInvalidProof reports whether err is a 403 from the server
func IsInvalidProof(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsNotInitialized reports whether err is a 503 from the server
func IsNotInitialized(err error) bool {
	return hasStatus(err, http.StatusServiceUnavailable)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// NewClient creates a new airdrop client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(config.ServerURLs) == 0 {
		return nil, fmt.Errorf("at least one server URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	urls := make([]string, 0, len(config.ServerURLs))
	for _, u := range config.ServerURLs {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			return nil, fmt.Errorf("server URL cannot be empty")
		}
		urls = append(urls, u)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		serverURLs: urls,
		httpClient: httpClient,
		logger:     config.Logger,
	}, nil
}

// GetRoot fetches the published root
func (c *Client) GetRoot(ctx context.Context) (*types.RootResponse, error) {
	var resp types.RootResponse
	if err := c.do(ctx, http.MethodGet, "/root", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CanClaim asks whether recipient could claim amount with proof
func (c *Client) CanClaim(ctx context.Context, recipient common.Address, amount *uint256.Int, proof merkle.Proof) (bool, error) {
	req := types.CanClaimRequest{
		Recipient: recipient.Hex(),
		Amount:    entitlement.FormatAmount(amount),
		Proof:     proof.Encode(),
	}
	var resp types.CanClaimResponse
	if err := c.do(ctx, http.MethodPost, "/can_claim", req, &resp); err != nil {
		return false, err
	}
	return resp.CanClaim, nil
}

// Claim signs and submits a claim. The recipient is the address of key.
func (c *Client) Claim(ctx context.Context, key *ecdsa.PrivateKey, amount *uint256.Int, proof merkle.Proof) (*types.ClaimRecord, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}

	root, err := c.GetRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root: %w", err)
	}
	if !root.Initialized {
		return nil, &APIError{StatusCode: http.StatusServiceUnavailable, Message: "airdrop not initialized"}
	}
	rootDigest, err := merkle.ParseDigest(root.Root)
	if err != nil {
		return nil, fmt.Errorf("server returned invalid root: %w", err)
	}

	signature, err := claimsig.SignClaim(key, rootDigest, amount, proof)
	if err != nil {
		return nil, err
	}

	req := types.ClaimRequest{
		Amount:    entitlement.FormatAmount(amount),
		Proof:     proof.Encode(),
		Signature: hexutil.Encode(signature),
	}
	var resp types.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/claim", req, &resp); err != nil {
		return nil, err
	}
	if resp.Claim == nil {
		return nil, fmt.Errorf("server returned no claim record")
	}

	c.logger.Sugar().Infow("Claim submitted",
		"recipient", resp.Claim.Recipient.Hex(),
		"amount", resp.Claim.Amount,
		"transfer_ref", resp.Claim.TransferRef,
	)
	return resp.Claim, nil
}

// GetClaim fetches the claim status of recipient
func (c *Client) GetClaim(ctx context.Context, recipient common.Address) (*types.ClaimStatusResponse, error) {
	var resp types.ClaimStatusResponse
	if err := c.do(ctx, http.MethodGet, "/claims/"+recipient.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListClaims fetches every claim record
func (c *Client) ListClaims(ctx context.Context) ([]*types.ClaimRecord, error) {
	var resp []*types.ClaimRecord
	if err := c.do(ctx, http.MethodGet, "/claims", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Health checks every configured server and returns the first failure
func (c *Client) Health(ctx context.Context) error {
	for _, base := range c.serverURLs {
		if err := c.doOnce(ctx, base, http.MethodGet, "/health", nil, nil); err != nil {
			return fmt.Errorf("%s: %w", base, err)
		}
	}
	return nil
}

// do sends the request to each server in turn until one answers with
// something other than a transport error or a 502/503
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	for i, base := range c.serverURLs {
		err := c.doOnce(ctx, base, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		c.logger.Sugar().Warnw("Airdrop server request failed, trying next server",
			"server_index", i,
			"address", base,
			"path", path,
			"error", err,
		)
	}
	return lastErr
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode == http.StatusBadGateway || apiErr.StatusCode == http.StatusServiceUnavailable
}

func (c *Client) doOnce(ctx context.Context, base, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to contact server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var errResp types.ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
