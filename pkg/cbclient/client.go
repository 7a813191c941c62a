// Package cbclient provides the main entry point for creating Context Broker clients
package cbclient

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/SystemsPurge/FiLiP/internal/client"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// New creates a new Context Broker client from the given configuration.
func New(config *ngsi.Config) (ngsi.Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	if config.BrokerURL == "" {
		return nil, ngsi.ErrBrokerURLRequired
	}

	brokerURL, err := normalizeBrokerURL(config.BrokerURL)
	if err != nil {
		return nil, err
	}

	config.BrokerURL = brokerURL

	if config.SkipTLSVerify && !isDevelopmentEnvironment() {
		return nil, fmt.Errorf("%w (set FILIP_DEV_MODE=true)", ngsi.ErrSkipTLSOnlyInDev)
	}

	// Orion publishes no identity-manager discovery document, so
	// credentials always need an explicit token endpoint.
	if needsAuth(config) && config.TokenURL == "" {
		return nil, ngsi.ErrTokenURLRequired
	}

	brokerClient, err := client.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return brokerClient, nil
}

// normalizeBrokerURL validates and normalizes a context broker URL.
func normalizeBrokerURL(brokerURL string) (string, error) {
	brokerURL = strings.TrimSuffix(brokerURL, "/")

	// Brokers commonly listen on plain HTTP behind a compose network,
	// so an unqualified host:port defaults to http.
	if !strings.HasPrefix(brokerURL, "http://") && !strings.HasPrefix(brokerURL, "https://") {
		brokerURL = "http://" + brokerURL
	}

	parsedURL, err := url.Parse(brokerURL)
	if err != nil {
		return "", fmt.Errorf("invalid broker URL: %w", err)
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("%w: %q", ngsi.ErrNoHostInURL, brokerURL)
	}

	return brokerURL, nil
}

// needsAuth checks if the config requires authentication.
func needsAuth(config *ngsi.Config) bool {
	return config.AccessToken == "" &&
		(config.Username != "" || config.ClientID != "" || config.RefreshToken != "")
}

// isDevelopmentEnvironment checks if we're in a development environment.
func isDevelopmentEnvironment() bool {
	devMode := os.Getenv("FILIP_DEV_MODE")

	return devMode == "true" || devMode == "1"
}

// NewWithEndpoint creates a new client with just a broker URL (no auth).
func NewWithEndpoint(brokerURL string) (ngsi.Client, error) {
	return New(&ngsi.Config{
		BrokerURL: brokerURL,
	})
}

// NewWithToken creates a new client with a broker URL and access token.
func NewWithToken(brokerURL, token string) (ngsi.Client, error) {
	return New(&ngsi.Config{
		BrokerURL:   brokerURL,
		AccessToken: token,
	})
}

// NewWithClientCredentials creates a new client using OAuth2 client
// credentials against the given identity-manager token endpoint.
func NewWithClientCredentials(brokerURL, tokenURL, clientID, clientSecret string) (ngsi.Client, error) {
	return New(&ngsi.Config{
		BrokerURL:    brokerURL,
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// NewWithPassword creates a new client using username/password
// authentication against the given identity-manager token endpoint.
func NewWithPassword(brokerURL, tokenURL, username, password string) (ngsi.Client, error) {
	return New(&ngsi.Config{
		BrokerURL: brokerURL,
		TokenURL:  tokenURL,
		Username:  username,
		Password:  password,
	})
}
