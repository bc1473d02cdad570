package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"restaurant-gateway/internal/auth"
	"restaurant-gateway/internal/model"
	"restaurant-gateway/internal/route"
)

// maxProfileBytes caps how much of the upstream profile is echoed back.
const maxProfileBytes = 64 << 10

// Session status reasons.
const (
	ReasonNoCredential        = "no_credential"
	ReasonTokenExpired        = "token_expired"
	ReasonRejected            = "rejected"
	ReasonUpstreamUnavailable = "upstream_unavailable"
)

// SessionStatus reports whether the request carries a usable session.
// It never fails: every problem is folded into an unauthenticated status.
func (s *GatewayService) SessionStatus(ctx context.Context, rt *route.Route, r *http.Request) model.SessionStatus {
	cred, ok := auth.FromRequest(r, s.cfg.Auth.CookieName)
	if !ok {
		return model.SessionStatus{Reason: ReasonNoCredential}
	}

	st := model.SessionStatus{Source: string(cred.Source)}
	if claims, err := auth.Inspect(cred.Token); err == nil {
		st.Subject = claims.Subject
		st.ExpiresAt = claims.ExpiresAt
		if claims.Expired(time.Now()) {
			st.Reason = ReasonTokenExpired
			return st
		}
	}

	path, err := rt.BuildPath(nil)
	if err != nil {
		s.logger.Warn("auth status route has path parameters", "route", rt.Name, "err", err)
		st.Reason = ReasonUpstreamUnavailable
		return st
	}

	header := s.filterRequestHeaders(r.Header)
	header.Set("Authorization", cred.AuthorizationHeader())

	resp, err := s.client.Send(ctx, rt.Name, http.MethodGet, s.buildUpstreamURL(path, nil), header, nil)
	if err != nil {
		s.logger.Warn("auth status upstream call failed", "route", rt.Name, "err", auth.Redact(err.Error()))
		st.Reason = ReasonUpstreamUnavailable
		return st
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		st.Reason = ReasonRejected
		return st
	}

	st.Authenticated = true
	if data, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes)); err == nil && json.Valid(data) {
		st.User = data
	}
	return st
}
