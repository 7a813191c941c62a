package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/SystemsPurge/FiLiP/internal/auth"
)

// loginOptions holds the flag values of the login command.
type loginOptions struct {
	contextName    string
	endpoint       string
	tokenURL       string
	username       string
	password       string
	clientID       string
	clientSecret   string
	service        string
	servicePath    string
	iotAgentURL    string
	quantumLeapURL string
}

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a FIWARE platform",
		Long: `Store a platform connection as a named context and, when an identity
manager is configured, authenticate with the OAuth2 password grant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoginCommand(&opts)
		},
	}

	cmd.Flags().StringVar(&opts.contextName, "name", "", "context name (defaults to the endpoint host)")
	cmd.Flags().StringVarP(&opts.endpoint, "endpoint", "e", "", "context broker endpoint URL")
	cmd.Flags().StringVar(&opts.tokenURL, "token-url", "", "OAuth2 token endpoint of the identity manager")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "username for authentication")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password for authentication")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "OAuth2 client secret")
	cmd.Flags().StringVar(&opts.service, "service", "", "tenant service header for this context")
	cmd.Flags().StringVar(&opts.servicePath, "service-path", "", "tenant service path for this context")
	cmd.Flags().StringVar(&opts.iotAgentURL, "iota-url", "", "IoT Agent endpoint for this context")
	cmd.Flags().StringVar(&opts.quantumLeapURL, "quantumleap-url", "", "QuantumLeap endpoint for this context")

	return cmd
}

func runLoginCommand(opts *loginOptions) error {
	// Get the broker endpoint
	if opts.endpoint == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Context broker endpoint: ")
		opts.endpoint, _ = reader.ReadString('\n')
		opts.endpoint = strings.TrimSpace(opts.endpoint)
	}

	if opts.endpoint == "" {
		return ErrEndpointRequired
	}

	contextName := opts.contextName
	if contextName == "" {
		contextName = extractHostFromEndpoint(opts.endpoint)
	}

	// Credentials are only collected when an identity manager is in
	// play; a bare broker needs none.
	if opts.tokenURL != "" {
		err := collectCredentials(opts)
		if err != nil {
			return err
		}
	}

	config := loadConfig()

	contextConfig, exists := config.Contexts[contextName]
	if !exists {
		contextConfig = &ContextConfig{}
		config.Contexts[contextName] = contextConfig
	}

	contextConfig.Endpoint = opts.endpoint
	applyContextFlags(contextConfig, opts)

	// Make this the current context when it is the only one.
	if config.CurrentContext == "" || len(config.Contexts) == 1 {
		config.CurrentContext = contextName
	}

	err := saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	ctx := context.Background()

	if opts.tokenURL != "" {
		err = acquireToken(ctx, contextName, opts)
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	// Verify the connection against the freshly saved context.
	saved := loadConfig()

	brokerClient, err := brokerClientFor(contextName, saved.Contexts[contextName])
	if err != nil {
		return err
	}

	version, err := brokerClient.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	fmt.Printf("Successfully logged in to %s\n", opts.endpoint)

	if saved.CurrentContext == contextName {
		fmt.Printf("Context %q set as current\n", contextName)
	}

	fmt.Printf("Broker version: %s\n", version.Orion.Version)

	return nil
}

func collectCredentials(opts *loginOptions) error {
	if opts.username == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Username: ")
		opts.username, _ = reader.ReadString('\n')
		opts.username = strings.TrimSpace(opts.username)
	}

	if opts.username == "" {
		return ErrUsernameRequired
	}

	if opts.password == "" {
		fmt.Print("Password: ")

		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		opts.password = string(bytePassword)

		fmt.Println()
	}

	return nil
}

func applyContextFlags(contextConfig *ContextConfig, opts *loginOptions) {
	if opts.tokenURL != "" {
		contextConfig.TokenURL = opts.tokenURL
	}

	if opts.username != "" {
		contextConfig.Username = opts.username
	}

	if opts.service != "" {
		contextConfig.Service = opts.service
	}

	if opts.servicePath != "" {
		contextConfig.ServicePath = opts.servicePath
	}

	if opts.iotAgentURL != "" {
		contextConfig.IoTAgentURL = opts.iotAgentURL
	}

	if opts.quantumLeapURL != "" {
		contextConfig.QuantumLeapURL = opts.quantumLeapURL
	}
}

// acquireToken runs the OAuth2 grant for the freshly saved context.
// The ConfigTokenManager persists the resulting token into the config
// file; the password itself is never stored.
func acquireToken(ctx context.Context, contextName string, opts *loginOptions) error {
	oauthConfig := &auth.OAuth2Config{
		TokenURL:     opts.tokenURL,
		ClientID:     opts.clientID,
		ClientSecret: opts.clientSecret,
		Username:     opts.username,
		Password:     opts.password,
	}

	manager := auth.NewConfigTokenManager(oauthConfig, NewConfigPersister(), contextName, "", time.Time{})

	return manager.RefreshToken(ctx)
}

// extractHostFromEndpoint derives a context name from an endpoint URL.
func extractHostFromEndpoint(endpoint string) string {
	host := endpoint
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")

	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}

	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	return host
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out from the current context",
		Long:  "Clear the stored tokens of the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName, contextConfig, err := currentContext()
			if err != nil {
				return err
			}

			contextConfig.Token = ""
			contextConfig.RefreshToken = ""
			contextConfig.TokenExpiresAt = nil
			contextConfig.LastRefreshed = nil

			config := loadConfig()
			config.Contexts[contextName] = contextConfig

			err = saveConfigStruct(config)
			if err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Printf("Logged out of context %q\n", contextName)

			return nil
		},
	}
}
