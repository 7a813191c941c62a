package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/auth"
	"github.com/SystemsPurge/FiLiP/internal/client"
	"github.com/SystemsPurge/FiLiP/pkg/cbclient"
	"github.com/SystemsPurge/FiLiP/pkg/iota"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
	"github.com/SystemsPurge/FiLiP/pkg/quantumleap"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"
	Masked       = "***"
)

// Common static errors used throughout the commands package.
var (
	ErrNoContexts              = errors.New("no contexts configured, use 'filip login' to add one")
	ErrContextNotFound         = errors.New("context not found")
	ErrEndpointRequired        = errors.New("broker endpoint is required")
	ErrUsernameRequired        = errors.New("username is required")
	ErrNoIoTAgentConfigured    = errors.New("no IoT Agent URL configured for this context, login with --iota-url")
	ErrNoQuantumLeapConfigured = errors.New("no QuantumLeap URL configured for this context, login with --quantumleap-url")
	ErrFileRequired            = errors.New("an input file is required (--file)")
	ErrEmptyDocument           = errors.New("input file holds no document")
)

// currentContext resolves the context selected by the --context flag,
// falling back to the configured current context.
func currentContext() (string, *ContextConfig, error) {
	config := loadConfig()

	name := viper.GetString("context")
	if name == "" {
		name = config.CurrentContext
	}

	if name == "" {
		if len(config.Contexts) == 0 {
			return "", nil, ErrNoContexts
		}
		// No current context recorded, pick any configured one.
		for candidate := range config.Contexts {
			name = candidate

			break
		}
	}

	contextConfig, exists := config.Contexts[name]
	if !exists {
		return "", nil, fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}

	return name, contextConfig, nil
}

// baseClientConfig assembles the library configuration shared by the
// broker and the collaborator clients: the tenant scope with flag
// overrides, and debug logging when --verbose is set.
func baseClientConfig(contextConfig *ContextConfig, endpoint string) *ngsi.Config {
	service := viper.GetString("fiware_service")
	if service == "" {
		service = contextConfig.Service
	}

	servicePath := viper.GetString("fiware_service_path")
	if servicePath == "" {
		servicePath = contextConfig.ServicePath
	}

	config := &ngsi.Config{
		BrokerURL:   endpoint,
		Service:     service,
		ServicePath: servicePath,
	}

	if viper.GetBool("verbose") {
		config.Debug = true
		config.Logger = newSlogLogger()
	}

	return config
}

// contextTokenManager builds a token manager that persists refreshed
// tokens back to the context, or nil when the context carries no
// credentials.
func contextTokenManager(contextName string, contextConfig *ContextConfig) auth.TokenManager {
	if contextConfig.TokenURL == "" {
		return nil
	}

	if contextConfig.Token == "" && contextConfig.RefreshToken == "" {
		return nil
	}

	var expiry time.Time
	if contextConfig.TokenExpiresAt != nil {
		expiry = *contextConfig.TokenExpiresAt
	}

	oauthConfig := &auth.OAuth2Config{
		TokenURL:     contextConfig.TokenURL,
		RefreshToken: contextConfig.RefreshToken,
		AccessToken:  contextConfig.Token,
	}

	return auth.NewConfigTokenManager(oauthConfig, NewConfigPersister(), contextName, contextConfig.Token, expiry)
}

// newBrokerClient creates a context broker client for the selected
// context.
func newBrokerClient() (ngsi.Client, error) {
	contextName, contextConfig, err := currentContext()
	if err != nil {
		return nil, err
	}

	return brokerClientFor(contextName, contextConfig)
}

// brokerClientFor creates a context broker client for a specific
// context, bypassing the current-context resolution.
func brokerClientFor(contextName string, contextConfig *ContextConfig) (ngsi.Client, error) {
	if contextConfig == nil || contextConfig.Endpoint == "" {
		return nil, fmt.Errorf("%w for context %q", ErrEndpointRequired, contextName)
	}

	config := baseClientConfig(contextConfig, contextConfig.Endpoint)

	tokenManager := contextTokenManager(contextName, contextConfig)
	if tokenManager != nil {
		return client.NewWithTokenManager(config, tokenManager)
	}

	config.AccessToken = contextConfig.Token

	return cbclient.New(config)
}

// newAgentClient creates an IoT Agent client for the selected context.
func newAgentClient() (*iota.Client, error) {
	contextName, contextConfig, err := currentContext()
	if err != nil {
		return nil, err
	}

	if contextConfig.IoTAgentURL == "" {
		return nil, ErrNoIoTAgentConfigured
	}

	config := baseClientConfig(contextConfig, contextConfig.IoTAgentURL)

	tokenManager := contextTokenManager(contextName, contextConfig)
	if tokenManager != nil {
		return iota.NewWithTokenManager(config, tokenManager)
	}

	config.AccessToken = contextConfig.Token

	return iota.New(config)
}

// newTimeSeriesClient creates a QuantumLeap client for the selected
// context.
func newTimeSeriesClient() (*quantumleap.Client, error) {
	contextName, contextConfig, err := currentContext()
	if err != nil {
		return nil, err
	}

	if contextConfig.QuantumLeapURL == "" {
		return nil, ErrNoQuantumLeapConfigured
	}

	config := baseClientConfig(contextConfig, contextConfig.QuantumLeapURL)

	tokenManager := contextTokenManager(contextName, contextConfig)
	if tokenManager != nil {
		return quantumleap.NewWithTokenManager(config, tokenManager)
	}

	config.AccessToken = contextConfig.Token

	return quantumleap.New(config)
}

// slogLogger adapts log/slog to the ngsi.Logger interface for the
// --verbose transport debug output.
type slogLogger struct {
	logger *slog.Logger
}

func newSlogLogger() ngsi.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})

	return &slogLogger{logger: slog.New(handler)}
}

func (l *slogLogger) Debug(msg string, fields map[string]any) { l.logger.Debug(msg, attrs(fields)...) }
func (l *slogLogger) Info(msg string, fields map[string]any)  { l.logger.Info(msg, attrs(fields)...) }
func (l *slogLogger) Warn(msg string, fields map[string]any)  { l.logger.Warn(msg, attrs(fields)...) }
func (l *slogLogger) Error(msg string, fields map[string]any) { l.logger.Error(msg, attrs(fields)...) }

func attrs(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}

	return args
}

// ReadDocument loads a JSON or YAML document from path into out. YAML
// input is bridged through JSON so both formats share the wire-format
// decoders of the model types.
func ReadDocument(path string, out any) error {
	data, err := ReadDocumentBytes(path)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// ReadDocumentBytes loads a document from path and returns it as JSON
// bytes, converting from YAML when the file extension says so.
func ReadDocumentBytes(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrFileRequired
	}

	data, err := os.ReadFile(path) // #nosec G304 -- the path is a user-provided input file
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		var tree any

		err = yaml.Unmarshal(data, &tree)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		data, err = json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("converting %s: %w", path, err)
		}
	}

	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDocument)
	}

	return data, nil
}

// isListDocument reports whether the JSON document is a top-level
// array.
func isListDocument(data []byte) bool {
	trimmed := bytes.TrimSpace(data)

	return len(trimmed) > 0 && trimmed[0] == '['
}

// attributeValueString renders an attribute value for table output.
func attributeValueString(value ngsi.AttributeValue) string {
	data, err := json.Marshal(value)
	if err != nil {
		return NotAvailable
	}

	return string(data)
}

// anyValueString renders a key-values attribute for table output.
func anyValueString(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return NotAvailable
	}

	return string(data)
}

// collectPages drains a page iterator up to limit items. A limit of
// zero or less collects everything.
func collectPages[T any](iterator *ngsi.PageIterator[T], limit int) ([]T, error) {
	if limit <= 0 {
		return iterator.All()
	}

	items := make([]T, 0, limit)

	for len(items) < limit && iterator.HasNext() {
		item, err := iterator.Next()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

// sortedKeys returns the map keys in lexical order for stable table
// output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
