package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	mu      sync.Mutex
	keys    map[string]domain.UserAPIKey
	err     error
	touched []string
}

func (f *fakeKeys) FindAPIKeyByHash(_ context.Context, keyHash string) (*domain.UserAPIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	k, ok := f.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (f *fakeKeys) TouchAPIKey(_ context.Context, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, keyID)
	return nil
}

func (f *fakeKeys) touchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...)
}

func signedToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", HashAPIKey("foo"))
}

func TestAuthConfig_ResolveUser(t *testing.T) {
	keys := &fakeKeys{keys: map[string]domain.UserAPIKey{
		HashAPIKey("ea_user_key"): {ID: "key-1", UserID: "user-key"},
	}}
	cfg := AuthConfig{Keys: keys, StaticKey: "static-secret", DefaultUserID: "user-default", JWTSecret: "jwt-secret"}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"per-user api key", "ea_user_key", "user-key", nil},
		{"static key", "static-secret", "user-default", nil},
		{"jwt subject", signedToken(t, "jwt-secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-jwt", "exp": future}), "user-jwt", nil},
		{"jwt wrong secret", signedToken(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-jwt", "exp": future}), "", ErrUnauthorized},
		{"jwt wrong method", signedToken(t, "jwt-secret", jwt.SigningMethodHS512, jwt.MapClaims{"sub": "user-jwt", "exp": future}), "", ErrUnauthorized},
		{"jwt expired", signedToken(t, "jwt-secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-jwt", "exp": time.Now().Add(-time.Hour).Unix()}), "", ErrUnauthorized},
		{"jwt without subject", signedToken(t, "jwt-secret", jwt.SigningMethodHS256, jwt.MapClaims{"exp": future}), "", ErrUnauthorized},
		{"unknown token", "nope", "", ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.ResolveUser(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Eventually(t, func() bool {
		return len(keys.touchedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-1"}, keys.touchedIDs())
}

func TestAuthConfig_StaticKeyNeedsDefaultUser(t *testing.T) {
	cfg := AuthConfig{StaticKey: "static-secret"}
	_, err := cfg.ResolveUser(context.Background(), "static-secret")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuth_Middleware(t *testing.T) {
	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		keys       *fakeKeys
		header     string
		wantStatus int
		wantUser   string
	}{
		{"no header", &fakeKeys{}, "", http.StatusUnauthorized, ""},
		{"not bearer", &fakeKeys{}, "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", &fakeKeys{}, "Bearer wrong", http.StatusUnauthorized, ""},
		{"static key", &fakeKeys{}, "Bearer static-secret", http.StatusNoContent, "user-default"},
		{"store failure", &fakeKeys{err: errors.New("db down")}, "Bearer static-secret", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			h := Auth(AuthConfig{Keys: tt.keys, StaticKey: "static-secret", DefaultUserID: "user-default"})(next)

			req := httptest.NewRequest(http.MethodGet, "/rules", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}
