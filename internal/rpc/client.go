package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Client is an Ethereum JSON-RPC client whose HTTP transport retries
// rate-limited and unavailable responses with exponential backoff.
type Client struct {
	*ethclient.Client
	raw    *gethrpc.Client
	logger *logrus.Logger
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

// Dial connects to the JSON-RPC endpoint with retry support
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rpc: BaseURL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewRetryTransport(nil, cfg.MaxRetries, cfg.RetryBackoff, cfg.Logger),
	}

	raw, err := gethrpc.DialOptions(ctx, cfg.BaseURL, gethrpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", cfg.BaseURL, err)
	}

	return &Client{
		Client: ethclient.NewClient(raw),
		raw:    raw,
		logger: cfg.Logger,
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.raw.Close()
	return nil
}

// RetryTransport retries JSON-RPC POSTs that fail before the node handled them.
type RetryTransport struct {
	next         http.RoundTripper
	maxRetries   int
	retryBackoff time.Duration
	logger       *logrus.Logger
}

// NewRetryTransport wraps next (http.DefaultTransport when nil).
func NewRetryTransport(next http.RoundTripper, maxRetries int, backoff time.Duration, logger *logrus.Logger) *RetryTransport {
	if next == nil {
		next = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RetryTransport{next: next, maxRetries: maxRetries, retryBackoff: backoff, logger: logger}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var data []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
		data = b
	}
	method := rpcMethod(data)

	var lastErr error
	backoff := t.retryBackoff

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			t.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"method":  method,
			}).Debug("retrying RPC call")

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= 2 // exponential backoff
		}

		r := req.Clone(req.Context())
		r.Body = io.NopCloser(bytes.NewReader(data))
		r.ContentLength = int64(len(data))

		resp, err := t.next.RoundTrip(r)
		if err != nil {
			// a send that never got an answer may have reached the node
			if method == "eth_sendRawTransaction" {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if !retryableStatus(method, resp.StatusCode) || attempt == t.maxRetries {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryableStatus reports whether a response with code can be sent again.
// A gateway error on a send may come after the node accepted the tx, so sends
// are only retried when rate limited.
func retryableStatus(method string, code int) bool {
	switch code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return method != "eth_sendRawTransaction"
	}
	return false
}

// rpcMethod pulls the method name out of a request body for logging.
// Batches are reported as "batch".
func rpcMethod(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		return "batch"
	}
	var msg struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return ""
	}
	return msg.Method
}
