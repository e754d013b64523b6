package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/c360/devstream/errors"
	"github.com/c360/devstream/pkg/retry"
)

// HTTPConfig configures an HTTP consumer endpoint
type HTTPConfig struct {
	URL             string            `json:"url" yaml:"url"`
	Headers         map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds  int               `json:"timeout" yaml:"timeout"`
	RetryCount      int               `json:"retryCount" yaml:"retryCount"`
	AllowSelfSigned bool              `json:"allowSelfSignedCert" yaml:"allowSelfSignedCert"`
}

// Validate checks the consumer configuration
func (c *HTTPConfig) Validate() error {
	if c.URL == "" {
		return errors.WrapConfig(errors.ErrInvalidConfig, "HTTPConfig", "Validate", "url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return errors.WrapConfig(err, "HTTPConfig", "Validate", "url parsing")
	}
	if c.TimeoutSeconds < 0 || c.TimeoutSeconds > 300 {
		return errors.WrapConfig(errors.ErrInvalidConfig, "HTTPConfig", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapConfig(errors.ErrInvalidConfig, "HTTPConfig", "Validate",
			"retryCount must be between 0 and 10")
	}
	return nil
}

// HTTPSink POSTs records as JSON to a consumer endpoint
type HTTPSink struct {
	url         string
	headers     map[string]string
	client      *http.Client
	retryConfig retry.Config
}

// NewHTTPSink creates an HTTP sink from validated configuration
func NewHTTPSink(cfg HTTPConfig) (*HTTPSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.AllowSelfSigned {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	retryConfig := retry.DefaultConfig()
	if cfg.RetryCount > 0 {
		retryConfig.MaxAttempts = cfg.RetryCount + 1
	}

	return &HTTPSink{
		url:     cfg.URL,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		retryConfig: retryConfig,
	}, nil
}

// Name identifies the sink
func (s *HTTPSink) Name() string { return "http" }

// Send POSTs the record, retrying transient failures with backoff
func (s *HTTPSink) Send(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WrapConfig(err, "HTTPSink", "Send", "record marshal")
	}

	err = retry.Do(ctx, s.retryConfig, func() error {
		return s.post(ctx, data)
	})
	if err != nil {
		return errors.WrapNetwork(err, "HTTPSink", "Send", "post")
	}
	return nil
}

func (s *HTTPSink) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.NonRetryable(err)
		}
		return err
	}
	return nil
}
