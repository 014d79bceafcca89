// Package gateway holds the payment-provider integrations. Each variant
// implements payments.Gateway; exactly one is bound per service instance via
// FromConfig. All variants are stateless and safe for concurrent use.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Error is a connectivity or protocol failure talking to a provider. It is
// retryable: the payment service persists nothing when it sees one.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("%s gateway: %v", e.Provider, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// postJSON sends a JSON request and decodes a JSON response. Any transport
// failure, non-2xx status or undecodable body comes back as *Error.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &Error{Provider: provider, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &Error{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return &Error{Provider: provider, Err: fmt.Errorf("api error: %s", apiErr.Message)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Provider: provider, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
