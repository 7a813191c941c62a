package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/SystemsPurge/FiLiP/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The HTTP layer and the resource clients take their credentials as an
// auth.TokenManager; every concrete manager must satisfy it and be
// usable through the interface alone.
func TestTokenManager_Implementations(t *testing.T) {
	t.Parallel()

	assert.Implements(t, (*auth.TokenManager)(nil), auth.NewOAuth2TokenManager(&auth.OAuth2Config{}))
	assert.Implements(t, (*auth.TokenManager)(nil),
		auth.NewConfigTokenManager(&auth.OAuth2Config{}, nil, "local", "token", time.Time{}))

	var manager auth.TokenManager = auth.NewOAuth2TokenManager(&auth.OAuth2Config{
		AccessToken: "pre-issued",
	})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pre-issued", token)

	manager.SetToken("replacement", time.Now().Add(1*time.Hour))

	token, err = manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "replacement", token)
}

func TestToken_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    *auth.Token
		expected bool
	}{
		{
			name:     "nil token",
			token:    nil,
			expected: false,
		},
		{
			name:     "empty access token",
			token:    &auth.Token{},
			expected: false,
		},
		{
			name:     "token without expiry never expires",
			token:    &auth.Token{AccessToken: "token"},
			expected: true,
		},
		{
			name: "token with future expiry",
			token: &auth.Token{
				AccessToken: "token",
				ExpiresAt:   time.Now().Add(1 * time.Hour),
			},
			expected: true,
		},
		{
			name: "expired token",
			token: &auth.Token{
				AccessToken: "token",
				ExpiresAt:   time.Now().Add(-1 * time.Hour),
			},
			expected: false,
		},
		{
			// The 30 second buffer treats soon-to-expire tokens as expired.
			name: "token expiring within the buffer",
			token: &auth.Token{
				AccessToken: "token",
				ExpiresAt:   time.Now().Add(15 * time.Second),
			},
			expected: false,
		},
		{
			name: "token expiring just outside the buffer",
			token: &auth.Token{
				AccessToken: "token",
				ExpiresAt:   time.Now().Add(35 * time.Second),
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.token.Valid())
		})
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()

	t.Run("new store is empty", func(t *testing.T) {
		t.Parallel()

		store := auth.NewTokenStore()
		assert.Nil(t, store.Get())
	})

	t.Run("set and get token", func(t *testing.T) {
		t.Parallel()

		store := auth.NewTokenStore()
		store.Set(&auth.Token{AccessToken: "token", TokenType: "bearer"})

		retrieved := store.Get()
		assert.NotNil(t, retrieved)
		assert.Equal(t, "token", retrieved.AccessToken)
		assert.Equal(t, "bearer", retrieved.TokenType)
	})

	t.Run("clear token", func(t *testing.T) {
		t.Parallel()

		store := auth.NewTokenStore()
		store.Set(&auth.Token{AccessToken: "token"})
		assert.NotNil(t, store.Get())

		store.Clear()
		assert.Nil(t, store.Get())
	})

	t.Run("concurrent access", func(t *testing.T) {
		t.Parallel()

		store := auth.NewTokenStore()
		done := make(chan bool)

		for _, token := range []string{"token-1", "token-2"} {
			token := token
			go func() {
				for i := 0; i < 100; i++ {
					store.Set(&auth.Token{AccessToken: token})
				}

				done <- true
			}()
		}

		for i := 0; i < 2; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					_ = store.Get()
				}

				done <- true
			}()
		}

		for i := 0; i < 4; i++ {
			<-done
		}

		final := store.Get()
		assert.NotNil(t, final)
		assert.True(t, final.AccessToken == "token-1" || final.AccessToken == "token-2")
	})
}
