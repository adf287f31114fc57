// Package selector provides the external team selection step used by the
// allocation engine: an HTTP client for a remote ranking service and a
// local simulation of one.
package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/pkg/logger"
)

const (
	defaultHTTPTimeout      = 60 * time.Second
	defaultMaxResponseBytes = 1 << 20
)

// HTTPSelector posts shortlists to a remote ranking service.
type HTTPSelector struct {
	url      string
	client   *http.Client
	maxBytes int64
	log      logger.Logger
}

// HTTPOption applies a configuration option to the HTTPSelector.
type HTTPOption func(*HTTPSelector)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSelector) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(s *HTTPSelector) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(s *HTTPSelector) {
		if l != nil {
			s.log = l
		}
	}
}

// NewHTTPSelector creates a selector for the service at url.
func NewHTTPSelector(url string, opts ...HTTPOption) (*HTTPSelector, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrNoEndpoint
	}
	s := &HTTPSelector{
		url:      url,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		maxBytes: defaultMaxResponseBytes,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Select sends the request and returns the raw response body.
func (s *HTTPSelector) Select(ctx context.Context, req allocation.Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selector request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create selector request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("selector request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read selector response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn(ctx, "selector returned error status",
			logger.String("work_unit_id", req.WorkUnitID),
			logger.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return raw, nil
}
