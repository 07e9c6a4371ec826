package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"parimutuel/internal/hmacauth"
)

// DefaultBaseURL is the hosted betting backend.
const DefaultBaseURL = "https://betting-backend-one.vercel.app"

const (
	pathPlaceBet       = "/api/placeBet"
	pathResolveOutcome = "/api/resolveOutcome"
	pathGetPayoutData  = "/api/getPayoutData"
)

// ErrUnreachable wraps transport-level failures.
var ErrUnreachable = errors.New("backend unreachable")

// RejectedError is a non-2xx answer from the backend.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request (HTTP %d): %s", e.Status, e.Message)
}

// Client talks to the betting backend. Every call is a single attempt: bet
// placement and outcome resolution carry no idempotency key.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Signer  *hmacauth.Signer
}

func New(base string, httpClient *http.Client, signer *hmacauth.Signer) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP:    httpClient,
		Signer:  signer,
	}
}

// PlaceBet submits a bet; Amount is in base units.
func (c *Client) PlaceBet(ctx context.Context, req PlaceBetRequest) error {
	return c.do(ctx, http.MethodPost, pathPlaceBet, req, nil)
}

func (c *Client) ResolveOutcome(ctx context.Context, outcome string) error {
	return c.do(ctx, http.MethodPost, pathResolveOutcome, resolveOutcomeRequest{Outcome: outcome}, nil)
}

// GetPayoutData fetches the computed payout. Callers must check Valid.
func (c *Client) GetPayoutData(ctx context.Context) (PayoutData, error) {
	var out PayoutData
	if err := c.do(ctx, http.MethodGet, pathGetPayoutData, nil, &out); err != nil {
		return PayoutData{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.Signer.Sign(req); err != nil {
		return fmt.Errorf("sign %s request: %w", path, err)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrUnreachable, path, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &RejectedError{Status: res.StatusCode, Message: serverMessage(raw, res.Status)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func serverMessage(raw []byte, status string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 200 {
		return text
	}
	return status
}
