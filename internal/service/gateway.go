// Package service implements the core gateway forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"restaurant-gateway/internal/auth"
	"restaurant-gateway/internal/client"
	"restaurant-gateway/internal/config"
	"restaurant-gateway/internal/model"
	"restaurant-gateway/internal/route"
)

var (
	// ErrMethodNotAllowed is returned when the inbound method is not in the route's set.
	ErrMethodNotAllowed = errors.New("method not allowed")
	// ErrUnauthorized is returned when a protected route receives no credential.
	ErrUnauthorized = errors.New("authentication required")
	// ErrUpstreamTimeout wraps transport failures caused by the upstream timeout.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// ValidationError names the inbound parameter that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}

// forwardableRequestHeaders are the only inbound headers forwarded upstream.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"X-Request-Id",
}

// forwardableResponseHeaders are the only upstream headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":   true,
	"Content-Length": true,
	"Cache-Control":  true,
	"Date":           true,
	"Etag":           true,
	"Location":       true,
	"X-Request-Id":   true,
}

const userAgent = "restaurant-gateway/1.0"

// GatewayService validates inbound requests against their route and forwards
// them to the backend.
type GatewayService struct {
	client  *client.BackendClient
	cfg     *config.Config
	logger  *slog.Logger
	baseURL *url.URL
}

// NewGatewayService creates a GatewayService.
func NewGatewayService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*GatewayService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + strings.TrimRight(cfg.Upstream.PathPrefix, "/")
	u.RawPath = ""

	return &GatewayService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "gateway_service"),
		baseURL: u,
	}, nil
}

// Prepare checks the method, credential and parameters of an inbound request
// and translates it into a ProxyRequest. No upstream call is made.
func (s *GatewayService) Prepare(rt *route.Route, r *http.Request, pathParams map[string]string) (*model.ProxyRequest, error) {
	if !rt.Allows(r.Method) {
		return nil, ErrMethodNotAllowed
	}

	cred, ok := auth.FromRequest(r, s.cfg.Auth.CookieName)
	if !ok && rt.RequiresAuth() {
		return nil, ErrUnauthorized
	}

	if err := validatePath(rt, pathParams); err != nil {
		return nil, err
	}
	query := r.URL.Query()
	if err := validateQuery(rt, query); err != nil {
		return nil, err
	}

	var body []byte
	if hasBody(r.Method) {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if err := validateBody(rt, body); err != nil {
			return nil, err
		}
	}

	path, err := rt.BuildPath(pathParams)
	if err != nil {
		return nil, err
	}

	header := s.filterRequestHeaders(r.Header)
	if ok {
		header.Set("Authorization", cred.AuthorizationHeader())
	}

	return &model.ProxyRequest{
		Route:  rt.Name,
		Method: r.Method,
		Path:   path,
		Query:  rt.FilterQuery(query),
		Header: header,
		Body:   body,
	}, nil
}

// Forward sends a prepared request upstream. It makes exactly one attempt.
// A non-transport outcome carries a response body the caller must close.
func (s *GatewayService) Forward(ctx context.Context, pr *model.ProxyRequest) model.Outcome {
	s.logger.Debug("forwarding request",
		"route", pr.Route,
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.client.Send(ctx, pr.Route, pr.Method, s.buildUpstreamURL(pr.Path, pr.Query), pr.Header, pr.Body)
	if err != nil {
		if client.IsTimeout(err) {
			return &model.TransportError{Cause: fmt.Errorf("%w: %w", ErrUpstreamTimeout, err), Timeout: true}
		}
		return &model.TransportError{Cause: err}
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	if resp.StatusCode >= http.StatusBadRequest {
		return &model.UpstreamError{Response: resp}
	}
	return &model.Success{Response: resp}
}

// buildUpstreamURL joins the base URL with an already-escaped route path.
func (s *GatewayService) buildUpstreamURL(path string, query url.Values) string {
	u := *s.baseURL
	raw := s.baseURL.EscapedPath() + path
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = p, raw
	} else {
		u.Path, u.RawPath = raw, ""
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func (s *GatewayService) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("Content-Type", "application/json")
	dst.Set("User-Agent", userAgent)
	return dst
}

func (s *GatewayService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func validatePath(rt *route.Route, params map[string]string) error {
	for _, p := range rt.ParamsIn(route.InPath) {
		v := params[p.Name]
		if v == "" {
			return &ValidationError{Field: p.Name, Reason: "is required"}
		}
		if err := checkText(p, v); err != nil {
			return err
		}
	}
	return nil
}

func validateQuery(rt *route.Route, q url.Values) error {
	for _, p := range rt.ParamsIn(route.InQuery) {
		vals, ok := q[p.Name]
		if !ok {
			if p.Required {
				return &ValidationError{Field: p.Name, Reason: "is required"}
			}
			continue
		}
		for _, v := range vals {
			if err := checkText(p, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkText validates a path or query value.
func checkText(p route.Param, v string) error {
	switch p.Type {
	case route.TypeInt:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return &ValidationError{Field: p.Name, Reason: "must be an integer"}
		}
	case route.TypeBool:
		if v != "true" && v != "false" {
			return &ValidationError{Field: p.Name, Reason: "must be true or false"}
		}
	}
	return nil
}

func validateBody(rt *route.Route, body []byte) error {
	params := rt.ParamsIn(route.InBody)
	if len(params) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return &ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	for _, p := range params {
		raw, ok := fields[p.Name]
		if !ok || string(raw) == "null" || (p.Type == route.TypeString && string(raw) == `""`) {
			if p.Required {
				return &ValidationError{Field: p.Name, Reason: "is required"}
			}
			continue
		}
		if err := checkJSON(p, raw); err != nil {
			return err
		}
	}
	return nil
}

// checkJSON validates a body field's JSON type.
func checkJSON(p route.Param, raw json.RawMessage) error {
	switch p.Type {
	case route.TypeBool:
		var b bool
		if json.Unmarshal(raw, &b) != nil {
			return &ValidationError{Field: p.Name, Reason: "must be a boolean"}
		}
	case route.TypeInt:
		var n int64
		if json.Unmarshal(raw, &n) != nil {
			return &ValidationError{Field: p.Name, Reason: "must be an integer"}
		}
	case route.TypeString:
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return &ValidationError{Field: p.Name, Reason: "must be a string"}
		}
	}
	return nil
}
