// Package provider talks to the Xumm wallet-signing platform: it creates
// sign requests (payloads) and fetches their outcome.  Responses are
// validated before they are returned, so callers can trust required
// fields to be present.
package provider

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL = "https://xumm.app/api/v1/platform"

	TxPayment = "Payment"
	TxSignIn  = "SignIn"

	maxBodyBytes = 1 << 20
)

// ErrInvalidResponse is returned when the platform answers with a body
// that does not match the expected schema.
var ErrInvalidResponse = errors.New("invalid provider response")

// StatusError is returned for non-2xx platform responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Code, e.Body)
}

// MemoFields holds hex-encoded memo type and data.
type MemoFields struct {
	MemoType string `json:"MemoType,omitempty"`
	MemoData string `json:"MemoData,omitempty"`
}

type Memo struct {
	Memo MemoFields `json:"Memo"`
}

// NewMemo hex-encodes a plain text memo the way the ledger expects it.
func NewMemo(memoType, data string) Memo {
	return Memo{Memo: MemoFields{
		MemoType: hex.EncodeToString([]byte(memoType)),
		MemoData: hex.EncodeToString([]byte(data)),
	}}
}

// TxJSON is the transaction template the user is asked to sign.
type TxJSON struct {
	TransactionType string  `json:"TransactionType"`
	Amount          string  `json:"Amount,omitempty"`
	Destination     string  `json:"Destination,omitempty"`
	DestinationTag  *uint32 `json:"DestinationTag,omitempty"`
	Memos           []Memo  `json:"Memos,omitempty"`
}

type ReturnURL struct {
	App string `json:"app,omitempty"`
	Web string `json:"web,omitempty"`
}

type Options struct {
	ReturnURL ReturnURL `json:"return_url"`
}

// PayloadRequest is the body of POST /payload.
type PayloadRequest struct {
	TxJSON  TxJSON  `json:"txjson"`
	Options Options `json:"options"`
}

// Created is the platform's answer to a new payload.
type Created struct {
	UUID string `json:"uuid" validate:"required"`
	Next struct {
		Always string `json:"always" validate:"required,url"`
	} `json:"next"`
	Refs struct {
		QRPNG string `json:"qr_png"`
	} `json:"refs"`
}

// Detail is the subset of GET /payload/{uuid} the service relies on.
// Response fields stay nil until the payload is resolved.
type Detail struct {
	Meta struct {
		Exists    bool   `json:"exists"`
		UUID      string `json:"uuid" validate:"required"`
		Resolved  bool   `json:"resolved"`
		Signed    bool   `json:"signed"`
		Cancelled bool   `json:"cancelled"`
		Expired   bool   `json:"expired"`
	} `json:"meta"`
	Payload struct {
		TxType        string `json:"tx_type" validate:"required"`
		TxDestination string `json:"tx_destination"`
	} `json:"payload"`
	Response struct {
		Account              *string `json:"account"`
		TxID                 *string `json:"txid"`
		ResolvedAt           *string `json:"resolved_at"`
		DispatchedResult     *string `json:"dispatched_result"`
		DispatchedToNode     *bool   `json:"dispatched_to_node"`
		EnvironmentNetworkID *int64  `json:"environment_networkid"`
	} `json:"response"`
}

// NetworkID renders the settlement network id as text, nil when unknown.
func (d *Detail) NetworkID() *string {
	if d.Response.EnvironmentNetworkID == nil {
		return nil
	}
	s := fmt.Sprintf("%d", *d.Response.EnvironmentNetworkID)
	return &s
}

// Config configures a Client.  Timeout bounds every call.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is a Xumm platform API client.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	validate  *validator.Validate
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: timeout},
		validate:  validator.New(),
	}
}

// CreatePayload registers a new sign request.
func (c *Client) CreatePayload(ctx context.Context, req PayloadRequest) (*Created, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out Created
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/payload", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPayload fetches the current state of a sign request.
func (c *Client) GetPayload(ctx context.Context, uuid string) (*Detail, error) {
	var out Detail
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/payload/"+uuid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("X-API-Secret", c.apiSecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
