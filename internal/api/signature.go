package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerClientID  = "X-Client-ID"
	headerTimestamp = "X-Timestamp"
	headerSignature = "X-Signature"

	defaultSignatureMaxAge = 5 * time.Minute
	maxSignedBodyBytes     = 1 << 16
)

var (
	errMissingSignature = errors.New("missing signature headers")
	errUnknownClient    = errors.New("unknown client")
	errStaleTimestamp   = errors.New("timestamp outside allowed window")
	errBadSignature     = errors.New("signature mismatch")
	errBodyTooLarge     = errors.New("request body too large to sign")
)

type requestVerifier struct {
	secrets map[string][]byte
	maxAge  time.Duration
	now     func() time.Time
}

func newRequestVerifier(clientSecrets map[string]string, maxAge time.Duration) *requestVerifier {
	v := &requestVerifier{
		secrets: make(map[string][]byte, len(clientSecrets)),
		maxAge:  maxAge,
		now:     time.Now,
	}
	for id, secret := range clientSecrets {
		id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
		if id == "" || secret == "" {
			continue
		}
		v.secrets[id] = []byte(secret)
	}
	if v.maxAge <= 0 {
		v.maxAge = defaultSignatureMaxAge
	}
	return v
}

// verify checks the hex HMAC-SHA256 of
// "method\npath\nquery\ntimestamp\nhex(sha256(body))". The body is read
// and restored so the next handler can decode it.
func (v *requestVerifier) verify(r *http.Request) (string, error) {
	clientID := strings.TrimSpace(r.Header.Get(headerClientID))
	ts := strings.TrimSpace(r.Header.Get(headerTimestamp))
	sig := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(headerSignature)), "sha256=")
	if clientID == "" || ts == "" || sig == "" {
		return clientID, errMissingSignature
	}

	secret, ok := v.secrets[clientID]
	if !ok {
		return clientID, errUnknownClient
	}
	if !withinAge(ts, v.maxAge, v.now()) {
		return clientID, errStaleTimestamp
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return clientID, errBadSignature
	}
	body, err := readBody(r)
	if err != nil {
		return clientID, err
	}
	if !hmac.Equal(got, sign(secret, r.Method, r.URL.Path, r.URL.RawQuery, ts, body)) {
		return clientID, errBadSignature
	}
	return clientID, nil
}

// NewRequestSignatureMiddleware rejects unsigned requests that change
// manager state. Reads and non-API routes pass through untouched.
func NewRequestSignatureMiddleware(clientSecrets map[string]string, maxAge time.Duration) func(http.Handler) http.Handler {
	v := newRequestVerifier(clientSecrets, maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresSignature(r) {
				next.ServeHTTP(w, r)
				return
			}
			if clientID, err := v.verify(r); err != nil {
				slog.Warn("rejected request", "method", r.Method, "path", r.URL.Path, "client", clientID, "reason", err)
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requiresSignature(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, "/v1/") {
		return false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func withinAge(ts string, maxAge time.Duration, now time.Time) bool {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(secs, 0))
	if age < 0 {
		age = -age
	}
	return age <= maxAge
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes+1))
	r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(b) > maxSignedBodyBytes {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

func sign(secret []byte, method, path, rawQuery, ts string, body []byte) []byte {
	bodyHash := sha256.Sum256(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(method + "\n" + path + "\n" + rawQuery + "\n" + ts + "\n" + hex.EncodeToString(bodyHash[:])))
	return mac.Sum(nil)
}
