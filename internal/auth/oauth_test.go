package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuth2TokenManager_GetToken(t *testing.T) {
	t.Run("returns pre-issued token", func(t *testing.T) {
		manager := NewOAuth2TokenManager(&OAuth2Config{
			AccessToken: "existing-token",
		})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "existing-token", token)
	})

	t.Run("refreshes expired token using refresh token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oauth2/token", r.URL.Path)
			assert.Equal(t, "POST", r.Method)

			err := r.ParseForm()
			require.NoError(t, err)
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			assert.Equal(t, "old-refresh-token", r.Form.Get("refresh_token"))

			response := Token{
				AccessToken:  "new-access-token",
				RefreshToken: "new-refresh-token",
				ExpiresIn:    3600,
				TokenType:    "bearer",
			}
			_ = json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL:     server.URL + "/oauth2/token",
			RefreshToken: "old-refresh-token",
		})

		manager.store.Set(&Token{
			AccessToken:  "expired-token",
			RefreshToken: "old-refresh-token",
			ExpiresAt:    time.Now().Add(-1 * time.Hour),
		})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "new-access-token", token)
	})

	t.Run("uses client credentials when no refresh token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oauth2/token", r.URL.Path)
			assert.Equal(t, "POST", r.Method)

			username, password, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "client-id", username)
			assert.Equal(t, "client-secret", password)

			err := r.ParseForm()
			require.NoError(t, err)
			assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

			response := Token{
				AccessToken: "client-token",
				ExpiresIn:   3600,
				TokenType:   "bearer",
			}
			_ = json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL:     server.URL + "/oauth2/token",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
		})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "client-token", token)
	})

	t.Run("uses password grant", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oauth2/token", r.URL.Path)
			assert.Equal(t, "POST", r.Method)

			err := r.ParseForm()
			require.NoError(t, err)
			assert.Equal(t, "password", r.Form.Get("grant_type"))
			assert.Equal(t, "iot-user", r.Form.Get("username"))
			assert.Equal(t, "iot-pass", r.Form.Get("password"))

			response := Token{
				AccessToken:  "password-token",
				RefreshToken: "refresh-token",
				ExpiresIn:    3600,
				TokenType:    "bearer",
			}
			_ = json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL: server.URL + "/oauth2/token",
			Username: "iot-user",
			Password: "iot-pass",
		})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "password-token", token)
	})

	t.Run("surfaces identity manager errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			response := map[string]string{
				"error":             "invalid_client",
				"error_description": "Client authentication failed",
			}
			_ = json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL:     server.URL + "/oauth2/token",
			ClientID:     "bad-client",
			ClientSecret: "bad-secret",
		})

		token, err := manager.GetToken(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_client")
		assert.Contains(t, err.Error(), "Client authentication failed")
		assert.Empty(t, token)
	})

	t.Run("no credentials available", func(t *testing.T) {
		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL: "http://idm.example.com/oauth2/token",
		})

		token, err := manager.GetToken(context.Background())
		require.ErrorIs(t, err, ErrNoValidCredentials)
		assert.Empty(t, token)
	})
}

func TestOAuth2TokenManager_SetToken(t *testing.T) {
	manager := NewOAuth2TokenManager(&OAuth2Config{})

	expiresAt := time.Now().Add(1 * time.Hour)
	manager.SetToken("manual-token", expiresAt)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual-token", token)

	stored := manager.store.Get()
	assert.Equal(t, "manual-token", stored.AccessToken)
	assert.Equal(t, "bearer", stored.TokenType)
	assert.Equal(t, expiresAt.Unix(), stored.ExpiresAt.Unix())
}

func TestOAuth2TokenManager_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := Token{
			AccessToken: "refreshed-token",
			ExpiresIn:   3600,
			TokenType:   "bearer",
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	manager := NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     server.URL + "/oauth2/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})

	manager.SetToken("current-token", time.Now().Add(1*time.Hour))

	// The stored token is still valid, so only a forced refresh
	// replaces it.
	err := manager.RefreshToken(context.Background())
	require.NoError(t, err)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", token)
}

func TestOAuth2TokenManager_RevokedRefreshToken(t *testing.T) {
	t.Run("falls back to the password grant", func(t *testing.T) {
		var refreshAttempts, passwordAttempts int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := r.ParseForm()
			require.NoError(t, err)

			switch r.Form.Get("grant_type") {
			case "refresh_token":
				refreshAttempts++
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":             "invalid_grant",
					"error_description": "refresh token revoked",
				})
			case "password":
				passwordAttempts++
				_ = json.NewEncoder(w).Encode(Token{
					AccessToken: "password-token",
					TokenType:   "bearer",
				})
			}
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL:     server.URL + "/oauth2/token",
			Username:     "iot-user",
			Password:     "iot-pass",
			RefreshToken: "revoked-refresh-token",
		})

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "password-token", token)
		assert.Equal(t, 1, refreshAttempts)
		assert.Equal(t, 1, passwordAttempts)

		// The dead refresh token is forgotten: a forced refresh goes
		// straight to the password grant instead of retrying it.
		err = manager.RefreshToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, refreshAttempts)
		assert.Equal(t, 2, passwordAttempts)
	})

	t.Run("surfaces the rejection without fallback credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token revoked",
			})
		}))
		defer server.Close()

		manager := NewOAuth2TokenManager(&OAuth2Config{
			TokenURL:     server.URL + "/oauth2/token",
			RefreshToken: "revoked-refresh-token",
		})

		_, err := manager.GetToken(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestNewIDMTokenManager(t *testing.T) {
	t.Run("derives the token endpoint", func(t *testing.T) {
		manager := NewIDMTokenManager("https://idm.example.com", "client-id", "client-secret")
		assert.NotNil(t, manager)
		assert.Equal(t, "https://idm.example.com/oauth2/token", manager.config.TokenURL)
		assert.Equal(t, "client-id", manager.config.ClientID)
		assert.Equal(t, "client-secret", manager.config.ClientSecret)
	})

	t.Run("handles trailing slash in IDM URL", func(t *testing.T) {
		manager := NewIDMTokenManager("https://idm.example.com/", "client-id", "client-secret")
		assert.Equal(t, "https://idm.example.com/oauth2/token", manager.config.TokenURL)
	})
}

func TestNewIDMTokenManagerWithPassword(t *testing.T) {
	manager := NewIDMTokenManagerWithPassword(
		"https://idm.example.com",
		"client-id",
		"client-secret",
		"iot-user",
		"iot-pass",
	)

	assert.NotNil(t, manager)
	assert.Equal(t, "https://idm.example.com/oauth2/token", manager.config.TokenURL)
	assert.Equal(t, "iot-user", manager.config.Username)
	assert.Equal(t, "iot-pass", manager.config.Password)
}
