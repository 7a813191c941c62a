package auth

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SystemsPurge/FiLiP/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrNoValidCredentials = errors.New("no valid credentials available")
	ErrNoTokenURL         = errors.New("no token URL configured")
	ErrEmptyTokenResponse = errors.New("token response carries no access token")

	// ErrInvalidGrant is the RFC 6749 invalid_grant error code: the
	// identity manager rejected the presented grant, typically a
	// revoked or expired refresh token.
	ErrInvalidGrant = errors.New("invalid_grant")
)

// OAuth2Config holds the credentials and endpoint for token requests.
type OAuth2Config struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	RefreshToken  string
	AccessToken   string
	Scopes        []string
	SkipTLSVerify bool
}

// OAuth2TokenManager acquires and caches OAuth2 tokens. It tries the
// configured credentials in a fixed order: a stored valid token, the
// refresh token grant, client credentials, then the password grant.
type OAuth2TokenManager struct {
	config     *OAuth2Config
	store      *TokenStore
	httpClient *http.Client
}

// NewOAuth2TokenManager creates a token manager for the given
// credentials. A pre-issued access token seeds the store and is used
// until it expires.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	manager := &OAuth2TokenManager{
		config:     config,
		store:      NewTokenStore(),
		httpClient: newTokenHTTPClient(config.SkipTLSVerify),
	}

	if config.AccessToken != "" {
		manager.store.Set(&Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "bearer",
		})
	}

	return manager
}

// NewIDMTokenManager creates a token manager for a FIWARE identity
// manager, deriving the token endpoint from its base URL.
func NewIDMTokenManager(idmURL, clientID, clientSecret string) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     strings.TrimSuffix(idmURL, "/") + "/oauth2/token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// NewIDMTokenManagerWithPassword creates a token manager that uses the
// resource owner password grant against a FIWARE identity manager.
func NewIDMTokenManagerWithPassword(idmURL, clientID, clientSecret, username, password string) *OAuth2TokenManager {
	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     strings.TrimSuffix(idmURL, "/") + "/oauth2/token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     username,
		Password:     password,
	})
}

// GetToken returns a valid access token, acquiring or refreshing one
// when necessary.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	err := m.acquireToken(ctx, token)
	if err != nil {
		return "", err
	}

	return m.store.Get().AccessToken, nil
}

// RefreshToken forces a new token request, bypassing the stored token.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context) error {
	return m.acquireToken(ctx, m.store.Get())
}

// SetToken manually stores an access token.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// acquireToken walks the grant precedence chain and stores the result.
// A refresh token the identity manager rejects as invalid_grant is
// dead: it is dropped so later calls do not retry it, and the chain
// continues with the configured credential grants.
func (m *OAuth2TokenManager) acquireToken(ctx context.Context, current *Token) error {
	refreshToken := m.config.RefreshToken
	if current != nil && current.RefreshToken != "" {
		refreshToken = current.RefreshToken
	}

	if refreshToken != "" {
		err := m.refreshGrant(ctx, refreshToken)
		if err == nil || !errors.Is(err, ErrInvalidGrant) {
			return err
		}

		m.dropRefreshToken()

		if !m.hasCredentialGrant() {
			return err
		}
	}

	switch {
	case m.config.ClientID != "" && m.config.ClientSecret != "":
		return m.clientCredentialsGrant(ctx)
	case m.config.Username != "" && m.config.Password != "":
		return m.passwordGrant(ctx)
	default:
		return ErrNoValidCredentials
	}
}

// hasCredentialGrant reports whether a grant besides refresh_token is
// configured.
func (m *OAuth2TokenManager) hasCredentialGrant() bool {
	return (m.config.ClientID != "" && m.config.ClientSecret != "") ||
		(m.config.Username != "" && m.config.Password != "")
}

// dropRefreshToken forgets the configured and stored refresh tokens
// after the identity manager rejected them.
func (m *OAuth2TokenManager) dropRefreshToken() {
	m.config.RefreshToken = ""

	token := m.store.Get()
	if token != nil && token.RefreshToken != "" {
		cleared := *token
		cleared.RefreshToken = ""
		m.store.Set(&cleared)
	}
}

func (m *OAuth2TokenManager) refreshGrant(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	if m.config.ClientID != "" {
		form.Set("client_id", m.config.ClientID)
	}

	if m.config.ClientSecret != "" {
		form.Set("client_secret", m.config.ClientSecret)
	}

	return m.requestToken(ctx, form, false)
}

func (m *OAuth2TokenManager) clientCredentialsGrant(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	return m.requestToken(ctx, form, true)
}

func (m *OAuth2TokenManager) passwordGrant(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", m.config.Username)
	form.Set("password", m.config.Password)

	if m.config.ClientID != "" {
		form.Set("client_id", m.config.ClientID)
	}

	if m.config.ClientSecret != "" {
		form.Set("client_secret", m.config.ClientSecret)
	}

	return m.requestToken(ctx, form, false)
}

// oauthError is the RFC 6749 error response body.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (m *OAuth2TokenManager) requestToken(ctx context.Context, form url.Values, basicAuth bool) error {
	if m.config.TokenURL == "" {
		return ErrNoTokenURL
	}

	if len(m.config.Scopes) > 0 {
		form.Set("scope", strings.Join(m.config.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if basicAuth {
		req.SetBasicAuth(m.config.ClientID, m.config.ClientSecret)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var oauthErr oauthError
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Code != "" {
			if oauthErr.Code == "invalid_grant" {
				return fmt.Errorf("token request failed: %w: %s", ErrInvalidGrant, oauthErr.Description)
			}

			return fmt.Errorf("token request failed: %s: %s", oauthErr.Code, oauthErr.Description)
		}

		return fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token Token

	err = json.Unmarshal(body, &token)
	if err != nil {
		return fmt.Errorf("failed to unmarshal token response: %w", err)
	}

	if token.AccessToken == "" {
		return ErrEmptyTokenResponse
	}

	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	m.store.Set(&token)

	return nil
}

func newTokenHTTPClient(skipTLSVerify bool) *http.Client {
	client := &http.Client{Timeout: constants.DefaultHTTPTimeout}

	if skipTLSVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // development-mode opt-in
		}
	}

	return client
}
