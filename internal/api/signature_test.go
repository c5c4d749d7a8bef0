package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"weekcast/internal/weather"
)

func signedRequest(method, target, clientID, secret string, at time.Time) *http.Request {
	return signedRequestWithBody(method, target, clientID, secret, at, "", "")
}

// signedRequestWithBody signs signedBody but sends sentBody.
func signedRequestWithBody(method, target, clientID, secret string, at time.Time, signedBody, sentBody string) *http.Request {
	ts := strconv.FormatInt(at.Unix(), 10)
	req := httptest.NewRequest(method, target, strings.NewReader(sentBody))
	req.Header.Set("X-Client-ID", clientID)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", signForTest(secret, req.Method, req.URL.Path, req.URL.RawQuery, ts, signedBody))
	return req
}

func serveThroughMiddleware(req *http.Request) (*httptest.ResponseRecorder, bool) {
	rr := httptest.NewRecorder()
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusNoContent)
	})
	middleware := NewRequestSignatureMiddleware(map[string]string{"ios-app": "top-secret"}, 5*time.Minute)
	middleware(next).ServeHTTP(rr, req)
	return rr, nextCalled
}

func TestRequestSignatureMiddleware(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		req      *http.Request
		wantNext bool
		wantCode int
	}{
		{
			name:     "valid signed location change",
			req:      signedRequest(http.MethodPut, "/v1/location", "ios-app", "top-secret", now),
			wantNext: true,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "signed body",
			req:      signedRequestWithBody(http.MethodPut, "/v1/location", "ios-app", "top-secret", now, `{"latitude":1}`, `{"latitude":1}`),
			wantNext: true,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "body changed after signing",
			req:      signedRequestWithBody(http.MethodPut, "/v1/location", "ios-app", "top-secret", now, `{"latitude":1}`, `{"latitude":10}`),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unsigned refresh",
			req:      httptest.NewRequest(http.MethodPost, "/v1/refresh", nil),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown client",
			req:      signedRequest(http.MethodPost, "/v1/refresh", "unknown", "wrong-secret", now),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			req:      signedRequest(http.MethodPost, "/v1/refresh", "ios-app", "wrong-secret", now),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "stale timestamp",
			req:      signedRequest(http.MethodPut, "/v1/location", "ios-app", "top-secret", now.Add(-10*time.Minute)),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "reads pass through",
			req:      httptest.NewRequest(http.MethodGet, "/v1/weather/daily", nil),
			wantNext: true,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "non-API routes pass through",
			req:      httptest.NewRequest(http.MethodGet, "/health", nil),
			wantNext: true,
			wantCode: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, nextCalled := serveThroughMiddleware(tt.req)
			if nextCalled != tt.wantNext {
				t.Fatalf("next called = %v, want %v", nextCalled, tt.wantNext)
			}
			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}

func signForTest(secret, method, path, rawQuery, ts, body string) string {
	bodyHash := sha256.Sum256([]byte(body))
	msg := method + "\n" + path + "\n" + rawQuery + "\n" + ts + "\n" + hex.EncodeToString(bodyHash[:])
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRequestVerifier_Errors(t *testing.T) {
	now := time.Unix(1_773_000_000, 0)
	v := newRequestVerifier(map[string]string{" ios-app ": " top-secret ", "blank": ""}, 0)
	v.now = func() time.Time { return now }

	if v.maxAge != defaultSignatureMaxAge {
		t.Errorf("expected default max age, got %v", v.maxAge)
	}
	if _, ok := v.secrets["blank"]; ok {
		t.Error("expected blank secret to be dropped")
	}

	tests := []struct {
		name string
		req  *http.Request
		want error
	}{
		{"ok", signedRequest(http.MethodPost, "/v1/refresh", "ios-app", "top-secret", now), nil},
		{"missing", httptest.NewRequest(http.MethodPost, "/v1/refresh", nil), errMissingSignature},
		{"unknown", signedRequest(http.MethodPost, "/v1/refresh", "blank", "x", now), errUnknownClient},
		{"stale", signedRequest(http.MethodPost, "/v1/refresh", "ios-app", "top-secret", now.Add(time.Hour)), errStaleTimestamp},
		{"mismatch", signedRequest(http.MethodPost, "/v1/refresh?force=1", "ios-app", "other", now), errBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.verify(tt.req); err != tt.want {
				t.Errorf("verify() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestVerifier_RejectsOversizedBody(t *testing.T) {
	now := time.Now()
	body := strings.Repeat("x", maxSignedBodyBytes+1)
	req := signedRequestWithBody(http.MethodPut, "/v1/location", "ios-app", "top-secret", now, body, body)

	v := newRequestVerifier(map[string]string{"ios-app": "top-secret"}, time.Minute)
	if _, err := v.verify(req); err != errBodyTooLarge {
		t.Errorf("verify() = %v, want %v", err, errBodyTooLarge)
	}
}

func TestSignedLocationChange(t *testing.T) {
	srv, manager, loop := newTestServer(t)
	protected := NewRequestSignatureMiddleware(map[string]string{"ios-app": "top-secret"}, time.Minute)(srv.Config.Handler)
	original := manager.Location()
	signed := `{"latitude":52.52,"longitude":13.41}`

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, signedRequestWithBody(http.MethodPut, "/v1/location", "ios-app", "top-secret", time.Now(), signed, `{"latitude":10,"longitude":20}`))
	settle(t, loop)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body: expected status 401, got %d", rr.Code)
	}
	if manager.Location() != original {
		t.Fatalf("tampered body changed location to %v", manager.Location())
	}

	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, signedRequestWithBody(http.MethodPut, "/v1/location", "ios-app", "top-secret", time.Now(), signed, signed))
	settle(t, loop)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("signed body: expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	want := weather.Coordinates{Latitude: 52.52, Longitude: 13.41}
	if manager.Location() != want {
		t.Errorf("expected location %v, got %v", want, manager.Location())
	}
}
