package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/audioprep/internal/config"
	"github.com/nikhilbhutani/audioprep/internal/logger"
)

const secret = "jwt-secret"

func sign(t *testing.T, key string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// echoRole writes the authenticated role so tests can inspect it.
func echoRole() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		w.Header().Set("X-Role", p.Role)
		w.Header().Set("X-Method", p.Method)
	})
}

func serve(h http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{
		APIKeys:   []string{"key-one", "key-two"},
		JWTSecret: secret,
	}, logger.Nop().Entry)
	h := a.Authenticate(echoRole())

	valid := sign(t, secret, Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	expired := sign(t, secret, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	forged := sign(t, "other", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})
	noRole := sign(t, secret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-2"}})

	tests := []struct {
		name       string
		value      string
		wantStatus int
		wantRole   string
		wantMethod string
	}{
		{"raw api key", "key-two", http.StatusOK, RoleService, "api_key"},
		{"bearer api key", "Bearer key-one", http.StatusOK, RoleService, "api_key"},
		{"unknown key", "nope", http.StatusUnauthorized, "", ""},
		{"missing", "", http.StatusUnauthorized, "", ""},
		{"jwt", "Bearer " + valid, http.StatusOK, RoleAdmin, "jwt"},
		{"jwt default role", "Bearer " + noRole, http.StatusOK, RoleUser, "jwt"},
		{"expired jwt", "Bearer " + expired, http.StatusUnauthorized, "", ""},
		{"forged jwt", "Bearer " + forged, http.StatusUnauthorized, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, "Authorization", tt.value)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Header().Get("X-Role") != tt.wantRole || rec.Header().Get("X-Method") != tt.wantMethod {
				t.Fatalf("role=%q method=%q", rec.Header().Get("X-Role"), rec.Header().Get("X-Method"))
			}
		})
	}
}

func TestAuthenticateCustomHeader(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{APIKeys: []string{"k"}, APIKeyHeader: "X-API-Key"}, logger.Nop().Entry)
	h := a.Authenticate(echoRole())

	if rec := serve(h, "X-API-Key", "k"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := serve(h, "Authorization", "k"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("key in wrong header accepted: %d", rec.Code)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{}, logger.Nop().Entry)
	if a.Enabled() {
		t.Fatal("expected disabled")
	}
	rec := serve(a.Authenticate(echoRole()), "", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Role") != RoleAdmin {
		t.Fatalf("status=%d role=%q", rec.Code, rec.Header().Get("X-Role"))
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	guard := RequireRole(RoleService)(ok)

	tests := []struct {
		p    *Principal
		want int
	}{
		{nil, http.StatusForbidden},
		{&Principal{Role: RoleUser}, http.StatusForbidden},
		{&Principal{Role: RoleService}, http.StatusOK},
		{&Principal{Role: RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), tt.p))
		}
		rec := httptest.NewRecorder()
		guard.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("principal %+v: status = %d, want %d", tt.p, rec.Code, tt.want)
		}
	}
}

func TestHashAPIKey(t *testing.T) {
	if got := HashAPIKey("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("hash = %s", got)
	}
}
