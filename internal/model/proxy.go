// Package model defines shared types for the gateway.
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ProxyRequest is a validated inbound request, translated for the backend.
type ProxyRequest struct {
	Route  string
	Method string
	Path   string // upstream path, relative to the configured base URL
	Query  url.Values
	Header http.Header
	Body   []byte
}

// UpstreamResponse represents the backend response to be streamed back.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Outcome is the result of a single upstream call. It is one of
// *Success, *UpstreamError or *TransportError.
type Outcome interface {
	outcome()
}

// Success is an upstream answer with a status below 400.
type Success struct {
	Response *UpstreamResponse
}

// UpstreamError is an upstream answer with a status of 400 or above.
// Its status and body are relayed unchanged.
type UpstreamError struct {
	Response *UpstreamResponse
}

// TransportError means no response was received from the upstream.
type TransportError struct {
	Cause   error
	Timeout bool
}

func (*Success) outcome()        {}
func (*UpstreamError) outcome()  {}
func (*TransportError) outcome() {}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("upstream timeout: %v", e.Cause)
	}
	return fmt.Sprintf("upstream transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// SessionStatus answers the auth-status route.
type SessionStatus struct {
	Authenticated bool            `json:"authenticated"`
	Source        string          `json:"source,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Subject       string          `json:"subject,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	User          json.RawMessage `json:"user,omitempty"`
}

// ErrorEnvelope is the JSON body of every error the gateway produces itself.
type ErrorEnvelope struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Debug fields, only outside production.
	Cause string `json:"cause,omitempty"`
	Stack string `json:"stack,omitempty"`
}
