package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/config"
)

const (
	RoleAdmin   = "admin"
	RoleService = "service"
	RoleUser    = "user"
)

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Method  string
	Role    string
}

// Authenticator accepts either a configured API key or an HMAC-signed JWT.
// With neither configured every request passes as an anonymous admin.
type Authenticator struct {
	keys   keyring
	header string
	secret []byte
	log    *logrus.Entry
}

func NewAuthenticator(cfg config.AuthConfig, log *logrus.Entry) *Authenticator {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "Authorization"
	}
	return &Authenticator{
		keys:   newKeyring(cfg.APIKeys),
		header: header,
		secret: []byte(cfg.JWTSecret),
		log:    log,
	}
}

func (a *Authenticator) Enabled() bool {
	return !a.keys.empty() || len(a.secret) > 0
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			p := &Principal{Subject: "anonymous", Method: "none", Role: RoleAdmin}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		p, err := a.principal(r)
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"reason": err.Error(),
			}).Debug("request rejected")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) principal(r *http.Request) (*Principal, error) {
	raw := credential(r.Header.Get(a.header))
	if raw != "" && !a.keys.empty() {
		if id, ok := a.keys.match(raw); ok {
			return &Principal{Subject: "key:" + id, Method: "api_key", Role: RoleService}, nil
		}
	}

	if len(a.secret) > 0 {
		token := extractBearerToken(r)
		if token == "" && a.header != "Authorization" {
			token = raw
		}
		if token != "" {
			return a.parseJWT(token)
		}
	}

	if raw == "" {
		return nil, fmt.Errorf("missing credentials")
	}
	return nil, fmt.Errorf("invalid API key")
}

func (a *Authenticator) parseJWT(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return &Principal{Subject: claims.Subject, Method: "jwt", Role: role}, nil
}

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// credential strips an optional "Bearer " prefix.
func credential(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
