// Package client talks to the remote scavenger service: challenge discovery,
// wallet registration, solution submission and per-wallet statistics. It is
// the production implementation of the collaborator interfaces consumed by the
// worker, allocator and supervisor.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/whonion/scavenger-miner/ledger"
)

// DefaultBaseURL is the production endpoint of the scavenger service.
const DefaultBaseURL = "https://scavenger.prod.gd.midnighttge.io"

// FallbackTermsMessage is used when the service cannot serve its terms
// endpoint; it matches the published terms digest.
const FallbackTermsMessage = "I agree to abide by the terms and conditions as described in version 1-0 " +
	"of the Midnight scavenger mining process: 281ba5f69f4b943e3fb8a20390878a232787a04e4be22177f2472b63df01c200"

var ErrNotRegistered = errors.New("address is not registered")

type Client struct {
	baseURL string
	http    *http.Client
}

type Opt func(*Client)

// WithHTTPClient replaces the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Opt) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentChallenge fetches the currently active challenge. It returns
// (nil, nil) when the service reports no active challenge window.
func (c *Client) CurrentChallenge(ctx context.Context) (*ledger.Challenge, error) {
	var resp struct {
		Code      string            `json:"code"`
		Challenge *ledger.Challenge `json:"challenge"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/challenge", &resp); err != nil {
		return nil, err
	}
	if resp.Code != "active" || resp.Challenge == nil {
		return nil, nil
	}
	return resp.Challenge, nil
}

// Register registers a wallet address with the service. An "already
// registered" response counts as success.
func (c *Client) Register(ctx context.Context, address, signature, pubkey string) error {
	url := fmt.Sprintf("%s/register/%s/%s/%s", c.baseURL, address, signature, pubkey)
	status, body, err := c.post(ctx, url)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(message(body)), "already") {
		return nil
	}
	return fmt.Errorf("registering %s: HTTP %d: %s", address, status, message(body))
}

// SubmitSolution posts a found nonce and classifies the response into exactly
// one Outcome. Network failures and 5xx responses are Transient; a "solution
// already exists" rejection is Duplicate; any other application-level
// rejection is Rejected.
func (c *Client) SubmitSolution(ctx context.Context, address, challengeID, nonce string) (Outcome, error) {
	url := fmt.Sprintf("%s/solution/%s/%s/%s", c.baseURL, address, challengeID, nonce)
	status, body, err := c.post(ctx, url)
	if err != nil {
		return Transient, err
	}

	switch {
	case status >= 200 && status < 300:
		var resp struct {
			CryptoReceipt json.RawMessage `json:"crypto_receipt"`
		}
		if err := json.Unmarshal(body, &resp); err == nil && len(resp.CryptoReceipt) > 0 && string(resp.CryptoReceipt) != "null" {
			return Accepted, nil
		}
		return Rejected, fmt.Errorf("no crypto receipt in response")
	case status >= 500:
		return Transient, fmt.Errorf("HTTP %d: %s", status, message(body))
	case strings.Contains(strings.ToLower(message(body)), "solution already exists"):
		return Duplicate, nil
	default:
		msg := strings.ToLower(message(body))
		if strings.Contains(msg, "not registered") {
			return Rejected, fmt.Errorf("%w: HTTP %d: %s", ErrNotRegistered, status, message(body))
		}
		return Rejected, fmt.Errorf("HTTP %d: %s", status, message(body))
	}
}

// Statistics holds the per-wallet allocation snapshot served by the service.
type Statistics struct {
	Allocation   int64 `json:"night_allocation"`
	ReceiptCount int   `json:"receipt_count"`
}

func (c *Client) Statistics(ctx context.Context, address string) (*Statistics, error) {
	var resp struct {
		Local Statistics `json:"local"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/statistics/"+address, &resp); err != nil {
		return nil, err
	}
	return &resp.Local, nil
}

// TermsMessage fetches the terms-of-participation message wallets must sign.
// It falls back to the published constant when the endpoint is unreachable.
func (c *Client) TermsMessage(ctx context.Context) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/TandC", &resp); err != nil || resp.Message == "" {
		return FallbackTermsMessage
	}
	return resp.Message
}

// Probe checks service liveness. Any HTTP response, including an error
// status, proves the service is reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/challenge", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("service unreachable: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode, message(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// message extracts the service's error message from a response body, falling
// back to the raw body when it is not the usual {"message": ...} shape.
func message(body []byte) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return resp.Message
	}
	return string(body)
}
