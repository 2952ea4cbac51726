// Package rpcnotary submits incident content hashes to the ledger gateway
// over JSON-RPC. The gateway fronts the notarization smart contract; this
// client only ships a hash and gets a transaction reference back.
package rpcnotary

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"kora/internal/metrics"
)

const submitMethod = "kora_notarizeIncident"

type Config struct {
	RPCURL          string
	ContractAddress string
	Timeout         time.Duration
}

// Client is a ports.Notary backed by an HTTP JSON-RPC endpoint. A circuit
// breaker fails submissions fast while the gateway is down, so notarization
// goroutines do not pile up on a dead endpoint.
type Client struct {
	cfg     Config
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[string]
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:     "ledger-notary",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      string `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Submit sends the content hash and blocks until the gateway reports the
// transaction reference or an error. May take seconds; the caller bounds it
// with ctx.
func (c *Client) Submit(ctx context.Context, contentHash []byte) (string, error) {
	started := time.Now()
	ref, err := c.breaker.Execute(func() (string, error) {
		return c.submit(ctx, contentHash)
	})
	metrics.NotaryRoundTrip.Observe(time.Since(started).Seconds())
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (c *Client) submit(ctx context.Context, contentHash []byte) (string, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  submitMethod,
		Params:  []any{c.cfg.ContractAddress, "0x" + hex.EncodeToString(contentHash)},
		ID:      uuid.NewString(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("notary unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("notary returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode notary response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("notary rejected transaction: %s (code %d)", out.Error.Message, out.Error.Code)
	}
	if out.Result == "" {
		return "", fmt.Errorf("notary returned empty transaction reference")
	}
	return out.Result, nil
}
