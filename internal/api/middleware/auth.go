package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when no credential resolves to a user.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyStore resolves per-user API keys. *postgres.Store satisfies it.
type APIKeyStore interface {
	FindAPIKeyByHash(ctx context.Context, keyHash string) (*domain.UserAPIKey, error)
	TouchAPIKey(ctx context.Context, keyID string) error
}

// AuthConfig lists the credentials Auth accepts. Every field is optional;
// with none set every request is rejected.
type AuthConfig struct {
	Keys APIKeyStore

	// StaticKey authenticates as DefaultUserID.
	StaticKey     string
	DefaultUserID string

	// JWTSecret verifies HS256 tokens whose sub claim is the user id.
	JWTSecret string
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

// ResolveUser maps a bearer token to a user id. It tries a per-user API key,
// then the static key, then a signed JWT.
func (c AuthConfig) ResolveUser(ctx context.Context, token string) (string, error) {
	if c.Keys != nil {
		key, err := c.Keys.FindAPIKeyByHash(ctx, HashAPIKey(token))
		if err != nil {
			return "", fmt.Errorf("ResolveUser: %w", err)
		}
		if key != nil {
			c.touch(ctx, key.ID)
			return key.UserID, nil
		}
	}

	if c.StaticKey != "" && c.DefaultUserID != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(c.StaticKey)) == 1 {
		return c.DefaultUserID, nil
	}

	if c.JWTSecret != "" {
		if sub, ok := c.verifyJWT(token); ok {
			return sub, nil
		}
	}

	return "", ErrUnauthorized
}

// touch records key usage in the background; failures are only logged.
func (c AuthConfig) touch(ctx context.Context, keyID string) {
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := c.Keys.TouchAPIKey(ctx, keyID); err != nil {
			log.Warn().Err(err).Str("key_id", keyID).Msg("Failed to update API key last_used_at")
		}
	}()
}

func (c AuthConfig) verifyJWT(tokenString string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return []byte(c.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil || !token.Valid {
		return "", false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// Auth rejects requests without a credential that resolves to a user and
// stores the user id in the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			userID, err := cfg.ResolveUser(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					log := logger.FromContext(r.Context())
					log.Error().Err(err).Msg("Failed to resolve credentials")
					WriteError(w, http.StatusInternalServerError, "Failed to authenticate")
					return
				}
				WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			log := logger.FromContext(r.Context()).With().Str("user_id", userID).Logger()
			ctx := logger.WithContext(WithUserID(r.Context(), userID), log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user id stored by Auth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
