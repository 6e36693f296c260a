package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func protected(cfg JWTCfg) (http.Handler, *string) {
	var gotSub string
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = Operator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &gotSub
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestMiddlewareValidToken(t *testing.T) {
	h, sub := protected(JWTCfg{HS256Secret: "secret"})

	tok := signHS256(t, "secret", jwt.MapClaims{
		"sub": "operator@test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *sub != "operator@test" {
		t.Errorf("operator = %q, want operator@test", *sub)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request, t *testing.T)
	}{
		{
			name:  "no credentials",
			setup: func(r *http.Request, t *testing.T) {},
		},
		{
			name: "wrong secret",
			setup: func(r *http.Request, t *testing.T) {
				tok := signHS256(t, "other-secret", jwt.MapClaims{
					"sub": "x",
					"exp": time.Now().Add(time.Hour).Unix(),
				})
				r.Header.Set("Authorization", "Bearer "+tok)
			},
		},
		{
			name: "expired token",
			setup: func(r *http.Request, t *testing.T) {
				tok := signHS256(t, "secret", jwt.MapClaims{
					"sub": "x",
					"exp": time.Now().Add(-time.Hour).Unix(),
				})
				r.Header.Set("Authorization", "Bearer "+tok)
			},
		},
		{
			name: "debug header without dev mode",
			setup: func(r *http.Request, t *testing.T) {
				r.Header.Set("X-Debug-Sub", "sneaky")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := protected(JWTCfg{HS256Secret: "secret"})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req, t)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestMiddlewareDevMode(t *testing.T) {
	h, sub := protected(JWTCfg{HS256Secret: "secret", DevMode: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-Sub", "local-dev")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *sub != "local-dev" {
		t.Errorf("operator = %q, want local-dev", *sub)
	}
}

func TestOperatorMissing(t *testing.T) {
	if got := Operator(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("Operator() on bare context = %q, want empty", got)
	}
}
