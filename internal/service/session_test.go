package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtFor(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

func TestSessionStatus_NoCredential(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody)

	st := svc.SessionStatus(context.Background(), lookup(t, "auth-status"), req)
	if st.Authenticated || st.Reason != ReasonNoCredential {
		t.Errorf("status = %+v, want unauthenticated with %q", st, ReasonNoCredential)
	}
}

func TestSessionStatus_ExpiredJWTSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: jwtFor(t, time.Now().Add(-time.Minute))})

	st := svc.SessionStatus(context.Background(), lookup(t, "auth-status"), req)
	if st.Authenticated || st.Reason != ReasonTokenExpired {
		t.Errorf("status = %+v, want %q", st, ReasonTokenExpired)
	}
	if st.Source != "cookie" || st.Subject != "42" || st.ExpiresAt == nil {
		t.Errorf("status = %+v, want cookie source with decoded claims", st)
	}
	if calls.Load() != 0 {
		t.Errorf("upstream calls = %d, want 0", calls.Load())
	}
}

func TestSessionStatus_Authenticated(t *testing.T) {
	token := jwtFor(t, time.Now().Add(time.Hour))
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/me" {
			t.Errorf("path = %q, want /api/v1/users/me", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"role":"manager"}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)

	st := svc.SessionStatus(context.Background(), lookup(t, "auth-status"), req)
	if !st.Authenticated || st.Reason != "" {
		t.Fatalf("status = %+v, want authenticated", st)
	}
	if st.Source != "header" {
		t.Errorf("Source = %q, want header", st.Source)
	}
	if string(st.User) != `{"id":42,"role":"manager"}` {
		t.Errorf("User = %s", st.User)
	}
}

func TestSessionStatus_Rejected(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer opaque-token")

	st := svc.SessionStatus(context.Background(), lookup(t, "auth-status"), req)
	if st.Authenticated || st.Reason != ReasonRejected {
		t.Errorf("status = %+v, want %q", st, ReasonRejected)
	}
}

func TestSessionStatus_UpstreamDown(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody)
	req.Header.Set("Authorization", "Bearer opaque-token")

	st := svc.SessionStatus(context.Background(), lookup(t, "auth-status"), req)
	if st.Authenticated || st.Reason != ReasonUpstreamUnavailable {
		t.Errorf("status = %+v, want %q", st, ReasonUpstreamUnavailable)
	}
}
