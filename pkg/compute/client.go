package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures a compute service client. Each service (charts,
// interpretations, calendars) gets its own client and base URL.
type Config struct {
	BaseURL string        `env:"COMPUTE_BASE_URL,required"`
	Token   string        `env:"COMPUTE_TOKEN"`
	Timeout time.Duration `env:"COMPUTE_TIMEOUT" envDefault:"60s"`
}

// Client is a thin JSON-over-HTTP client for one compute service.
// The underlying http.Client is pooled and reused across requests.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	service string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the HTTP client, for custom transports or
// tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a compute service client. The service name is used
// in error and log messages only.
func NewClient(service string, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		service: service,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the response shape shared by all compute services.
type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	DataReduced  json.RawMessage `json:"data_reducido,omitempty"`
	Error        string          `json:"error,omitempty"`
	GenerationMS int64           `json:"generation_time_ms,omitempty"`
}

// post sends the request body and decodes the shared envelope.
func (c *Client) post(ctx context.Context, path string, body any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create compute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compute request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read compute response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), 256),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode compute response: %w", err)
	}
	if !env.Success {
		return nil, &ServiceError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    env.Error,
		}
	}
	if len(env.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Result{
		Payload:     env.Data,
		Reduced:     env.DataReduced,
		GeneratedIn: time.Duration(env.GenerationMS) * time.Millisecond,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ChartClient implements ChartService against the natal chart service.
type ChartClient struct{ *Client }

func (c ChartClient) Chart(ctx context.Context, req ChartRequest) (*Result, error) {
	variant := req.Variant
	if variant == "" {
		variant = "tropical"
	}
	return c.post(ctx, "/carta-natal/"+variant, req.NatalParams)
}

// InterpretationClient implements InterpretationService against the
// interpreter service.
type InterpretationClient struct{ *Client }

func (c InterpretationClient) Interpretation(ctx context.Context, req InterpretationRequest) (*Result, error) {
	return c.post(ctx, "/interpretaciones", req)
}

// CalendarClient implements CalendarService against the personal
// calendar service.
type CalendarClient struct{ *Client }

func (c CalendarClient) Calendar(ctx context.Context, req CalendarRequest) (*Result, error) {
	return c.post(ctx, "/calendario-personal", req)
}
