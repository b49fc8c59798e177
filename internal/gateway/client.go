// Package gateway contains one adapter per payment rail. Each adapter drives
// its rail's wire protocol and verifies that rail's webhook signatures;
// adapters hold no transaction state between calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unipay/payment-core/internal/metrics"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

// apiClient is the shared outbound HTTP client: JSON in/out, a circuit
// breaker per rail, and a hard per-call timeout since none of the external
// rails guarantee bounded latency.
type apiClient struct {
	provider string
	base     string
	hc       *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func newAPIClient(provider, baseURL string) *apiClient {
	return &apiClient{
		provider: provider,
		base:     strings.TrimRight(baseURL, "/"),
		hc:       &http.Client{Timeout: defaultTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *apiClient) postJSON(ctx context.Context, op, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Provider: c.provider, Err: fmt.Errorf("encoding request: %w", err)}
	}
	return c.roundTrip(ctx, op, http.MethodPost, path, "application/json", payload, headers, out)
}

func (c *apiClient) getJSON(ctx context.Context, op, path string, headers map[string]string, out any) error {
	return c.roundTrip(ctx, op, http.MethodGet, path, "", nil, headers, out)
}

func (c *apiClient) postForm(ctx context.Context, op, path string, headers map[string]string, form url.Values, out any) error {
	return c.roundTrip(ctx, op, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(form.Encode()), headers, out)
}

func (c *apiClient) roundTrip(ctx context.Context, op, method, path, contentType string, payload []byte, headers map[string]string, out any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return nil, &GatewayError{Provider: c.provider, Err: err}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, &GatewayError{Provider: c.provider, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, &GatewayError{Provider: c.provider, HTTPStatus: resp.StatusCode, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &GatewayError{
				Provider:   c.provider,
				HTTPStatus: resp.StatusCode,
				RawBody:    string(raw),
				Err:        errors.New("remote returned non-2xx status"),
			}
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, &GatewayError{
					Provider:   c.provider,
					HTTPStatus: resp.StatusCode,
					RawBody:    string(raw),
					Err:        fmt.Errorf("decoding response: %w", err),
				}
			}
		}
		return nil, nil
	})
	metrics.ObserveGatewayCall(c.provider, op, start, err)
	if err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) {
			return ge
		}
		// breaker open or half-open rejection
		return &GatewayError{Provider: c.provider, Err: err}
	}
	return nil
}
