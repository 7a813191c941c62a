// Package client implements the ngsi client interfaces against a live
// NGSIv2 context broker. Construction turns the configured credentials
// into a token manager, builds the retrying HTTP transport, and hangs
// the per-resource clients off it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/SystemsPurge/FiLiP/internal/auth"
	"github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Client implements the ngsi.Client interface.
type Client struct {
	httpClient   *http.Client
	tokenManager auth.TokenManager
	baseURL      string
	logger       ngsi.Logger
	pageSize     int

	// Resource clients
	entities      ngsi.EntitiesClient
	subscriptions ngsi.SubscriptionsClient
	registrations ngsi.RegistrationsClient
	types         ngsi.TypesClient
	batch         ngsi.BatchClient
}

// TokenManagerFromConfig picks a token manager for the configured
// credentials, following the precedence documented on ngsi.Config. The
// IoT Agent and QuantumLeap clients reuse it so every FIWARE service
// behind the same identity manager authenticates the same way.
func TokenManagerFromConfig(config *ngsi.Config) auth.TokenManager {
	if config.AccessToken != "" && config.Username != "" && config.Password != "" {
		return createFallbackTokenManager(config)
	}

	if config.AccessToken != "" {
		return &staticTokenManager{token: config.AccessToken}
	}

	if config.ClientID != "" && config.ClientSecret != "" {
		return createOAuth2TokenManager(config)
	}

	if config.Username != "" && config.Password != "" {
		return createPasswordTokenManager(config)
	}

	return nil // No authentication, e.g. a broker without a PEP proxy
}

// createFallbackTokenManager serves the pre-issued access token and
// switches to the password grant once a refresh is demanded.
func createFallbackTokenManager(config *ngsi.Config) auth.TokenManager {
	oauthConfig := &auth.OAuth2Config{
		TokenURL:      config.TokenURL,
		ClientID:      config.ClientID,
		ClientSecret:  config.ClientSecret,
		Username:      config.Username,
		Password:      config.Password,
		SkipTLSVerify: config.SkipTLSVerify,
	}

	return &fallbackTokenManager{
		staticToken:  config.AccessToken,
		oauthManager: auth.NewOAuth2TokenManager(oauthConfig),
	}
}

// createOAuth2TokenManager creates a client_credentials grant manager.
// Username, password, and refresh token pass through so the manager can
// renew or switch grants on its own.
func createOAuth2TokenManager(config *ngsi.Config) auth.TokenManager {
	return auth.NewOAuth2TokenManager(&auth.OAuth2Config{
		TokenURL:      config.TokenURL,
		ClientID:      config.ClientID,
		ClientSecret:  config.ClientSecret,
		Username:      config.Username,
		Password:      config.Password,
		RefreshToken:  config.RefreshToken,
		SkipTLSVerify: config.SkipTLSVerify,
	})
}

// createPasswordTokenManager creates a password grant manager without
// client credentials, for identity managers that allow public clients.
func createPasswordTokenManager(config *ngsi.Config) auth.TokenManager {
	return auth.NewOAuth2TokenManager(&auth.OAuth2Config{
		TokenURL:      config.TokenURL,
		Username:      config.Username,
		Password:      config.Password,
		RefreshToken:  config.RefreshToken,
		SkipTLSVerify: config.SkipTLSVerify,
	})
}

// New creates a context broker client from the given configuration.
func New(config *ngsi.Config) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	return NewWithTokenManager(config, TokenManagerFromConfig(config))
}

// NewWithTokenManager creates a context broker client with a
// caller-supplied token manager, bypassing the credential precedence.
func NewWithTokenManager(config *ngsi.Config, tokenManager auth.TokenManager) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	if config.BrokerURL == "" {
		return nil, ngsi.ErrBrokerURLRequired
	}

	err := ngsi.ValidateService(config.Service)
	if err != nil {
		return nil, err
	}

	err = ngsi.ValidateServicePath(config.ServicePath)
	if err != nil {
		return nil, err
	}

	httpOpts := http.OptionsFromConfig(config)

	client := &Client{
		httpClient:   http.NewClient(config.BrokerURL, tokenManager, httpOpts...),
		tokenManager: tokenManager,
		baseURL:      config.BrokerURL,
		logger:       config.Logger,
		pageSize:     config.PageSize,
	}

	client.initializeResourceClients()

	return client, nil
}

// GetTokenManager returns the token manager for this client.
func (c *Client) GetTokenManager() auth.TokenManager {
	return c.tokenManager
}

// GetToken returns the current access token from the token manager.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", ngsi.ErrNotAuthenticated
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// GetVersion implements ngsi.InfoClient.GetVersion.
func (c *Client) GetVersion(ctx context.Context) (*ngsi.Version, error) {
	resp, err := c.httpClient.Get(ctx, "/version", nil)
	if err != nil {
		return nil, fmt.Errorf("getting version: %w", err)
	}

	var version ngsi.Version

	err = json.Unmarshal(resp.Body, &version)
	if err != nil {
		return nil, fmt.Errorf("parsing version response: %w", err)
	}

	return &version, nil
}

// GetResources implements ngsi.InfoClient.GetResources.
func (c *Client) GetResources(ctx context.Context) (*ngsi.APIResources, error) {
	resp, err := c.httpClient.Get(ctx, "/v2", nil)
	if err != nil {
		return nil, fmt.Errorf("getting API resources: %w", err)
	}

	var resources ngsi.APIResources

	err = json.Unmarshal(resp.Body, &resources)
	if err != nil {
		return nil, fmt.Errorf("parsing API resources response: %w", err)
	}

	return &resources, nil
}

// Resource client accessors

// Entities implements ngsi.Client.Entities.
func (c *Client) Entities() ngsi.EntitiesClient {
	return c.entities
}

// Subscriptions implements ngsi.Client.Subscriptions.
func (c *Client) Subscriptions() ngsi.SubscriptionsClient {
	return c.subscriptions
}

// Registrations implements ngsi.Client.Registrations.
func (c *Client) Registrations() ngsi.RegistrationsClient {
	return c.registrations
}

// Types implements ngsi.Client.Types.
func (c *Client) Types() ngsi.TypesClient {
	return c.types
}

// Batch implements ngsi.Client.Batch.
func (c *Client) Batch() ngsi.BatchClient {
	return c.batch
}

// initializeResourceClients initializes all resource-specific clients.
func (c *Client) initializeResourceClients() {
	pageSize := c.pageSize
	if pageSize <= 0 {
		pageSize = ngsi.DefaultLimit
	}

	c.entities = NewEntitiesClient(c.httpClient, pageSize)
	c.subscriptions = NewSubscriptionsClient(c.httpClient, pageSize)
	c.registrations = NewRegistrationsClient(c.httpClient, pageSize)
	c.types = NewTypesClient(c.httpClient, pageSize)
	c.batch = NewBatchClient(c.httpClient)
}

// staticTokenManager provides a fixed token.
type staticTokenManager struct {
	mu    sync.Mutex
	token string
}

func (m *staticTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token, nil
}

func (m *staticTokenManager) RefreshToken(ctx context.Context) error {
	return ngsi.ErrStaticTokenCannotRefresh
}

func (m *staticTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
}

// fallbackTokenManager serves a pre-issued token until a refresh is
// demanded, then switches to OAuth2 for good.
type fallbackTokenManager struct {
	mu           sync.Mutex
	staticToken  string
	oauthManager auth.TokenManager
	usingOAuth   bool
}

func (m *fallbackTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	usingOAuth := m.usingOAuth
	staticToken := m.staticToken
	m.mu.Unlock()

	if !usingOAuth && staticToken != "" {
		return staticToken, nil
	}

	token, err := m.oauthManager.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get OAuth token: %w", err)
	}

	return token, nil
}

func (m *fallbackTokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	firstRefresh := !m.usingOAuth
	m.usingOAuth = true
	m.mu.Unlock()

	// The static token cannot be renewed, so the first refresh acquires
	// a fresh OAuth token instead.
	if firstRefresh {
		_, err := m.oauthManager.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to get OAuth token during refresh: %w", err)
		}

		return nil
	}

	err := m.oauthManager.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh OAuth token: %w", err)
	}

	return nil
}

func (m *fallbackTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mu.Lock()
	usingOAuth := m.usingOAuth
	m.mu.Unlock()

	if usingOAuth {
		m.oauthManager.SetToken(token, expiresAt)

		return
	}

	m.mu.Lock()
	m.staticToken = token
	m.mu.Unlock()
}
