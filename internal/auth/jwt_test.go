package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-hmac-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

// requireEnvelope asserts a rejection carries the JSON error envelope
// rather than a plain-text body.
func requireEnvelope(t *testing.T, rec *httptest.ResponseRecorder, wantCode string) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not the error envelope: %v (body %q)", err, rec.Body.String())
	}
	if body.Error.Code != wantCode {
		t.Errorf("error code: got %q want %q", body.Error.Code, wantCode)
	}
	if body.Error.Message == "" {
		t.Error("error message must not be empty")
	}
}

// echoHandler records the user id the middleware resolved.
func echoHandler(got *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = UserID(r.Context())
		w.WriteHeader(200)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	var got uuid.UUID
	h := Middleware(JWTCfg{HS256Secret: testSecret})(echoHandler(&got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != userID {
		t.Errorf("expected user %s in context, got %s", userID, got)
	}
}

func TestMiddleware_RejectsInvalidTokens(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"garbage", "not-a-jwt"},
		{"non-uuid subject", signToken(t, testSecret, jwt.MapClaims{
			"sub": "user_123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"missing subject", signToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uuid.UUID
			h := Middleware(JWTCfg{HS256Secret: testSecret})(echoHandler(&got))

			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			requireEnvelope(t, rec, "unauthenticated")
		})
	}
}

func TestMiddleware_MissingAuth(t *testing.T) {
	var got uuid.UUID
	h := Middleware(JWTCfg{HS256Secret: testSecret})(echoHandler(&got))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	requireEnvelope(t, rec, "unauthenticated")
}

func TestMiddleware_DevModeDebugSub(t *testing.T) {
	userID := uuid.New()

	var got uuid.UUID
	h := Middleware(JWTCfg{HS256Secret: testSecret, DevMode: true})(echoHandler(&got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Debug-Sub", userID.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != userID {
		t.Errorf("expected user %s, got %s", userID, got)
	}
}

func TestMiddleware_DebugSubIgnoredOutsideDevMode(t *testing.T) {
	var got uuid.UUID
	h := Middleware(JWTCfg{HS256Secret: testSecret})(echoHandler(&got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Debug-Sub", uuid.New().String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 when DevMode is off, got %d", rec.Code)
	}
}
