package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
)

// Config represents the CLI configuration: named platform contexts
// plus the global settings.
type Config struct {
	Contexts       map[string]*ContextConfig `json:"contexts,omitempty"        yaml:"contexts,omitempty"`
	CurrentContext string                    `json:"current_context,omitempty" yaml:"current_context,omitempty"`

	// Global settings
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// ContextConfig holds the connection settings of one FIWARE platform:
// the broker endpoint, the tenant scope, the token state, and the
// collaborator service URLs.
type ContextConfig struct {
	Endpoint       string     `json:"endpoint"                   yaml:"endpoint"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"    yaml:"refresh_token,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
	TokenURL       string     `json:"token_url,omitempty"        yaml:"token_url,omitempty"`
	Username       string     `json:"username,omitempty"         yaml:"username,omitempty"`
	Service        string     `json:"service,omitempty"          yaml:"service,omitempty"`
	ServicePath    string     `json:"service_path,omitempty"     yaml:"service_path,omitempty"`
	IoTAgentURL    string     `json:"iota_url,omitempty"         yaml:"iota_url,omitempty"`
	QuantumLeapURL string     `json:"quantumleap_url,omitempty"  yaml:"quantumleap_url,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage filip CLI configuration including contexts and settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigUseContextCommand())
	cmd.AddCommand(newConfigDeleteContextCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the configured contexts and global settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(redactedConfig(config))
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(redactedConfig(config))
			default:
				return displayConfigTable(config)
			}
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context NAME",
		Short: "Switch the current context",
		Long:  "Make the named context the default for subsequent commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			config := loadConfig()

			if _, exists := config.Contexts[name]; !exists {
				return fmt.Errorf("%w: %q", ErrContextNotFound, name)
			}

			config.CurrentContext = name

			err := saveConfigStruct(config)
			if err != nil {
				return err
			}

			fmt.Printf("Switched to context %q\n", name)

			return nil
		},
	}
}

func newConfigDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Delete a context",
		Long:  "Remove the named context from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			config := loadConfig()

			if _, exists := config.Contexts[name]; !exists {
				return fmt.Errorf("%w: %q", ErrContextNotFound, name)
			}

			delete(config.Contexts, name)

			if config.CurrentContext == name {
				config.CurrentContext = ""
				// Fall back to any remaining context.
				for remaining := range config.Contexts {
					config.CurrentContext = remaining

					break
				}
			}

			err := saveConfigStruct(config)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted context %q\n", name)

			return nil
		},
	}
}

func displayConfigTable(config *Config) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Context", "Endpoint", "Service", "IoT Agent", "QuantumLeap", "Current")

	for name, contextConfig := range config.Contexts {
		current := ""
		if name == config.CurrentContext {
			current = "*"
		}

		_ = table.Append(name, contextConfig.Endpoint, contextConfig.Service,
			contextConfig.IoTAgentURL, contextConfig.QuantumLeapURL, current)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// redactedConfig masks the token material before printing.
func redactedConfig(config *Config) *Config {
	redacted := &Config{
		CurrentContext: config.CurrentContext,
		Output:         config.Output,
		Contexts:       make(map[string]*ContextConfig, len(config.Contexts)),
	}

	for name, contextConfig := range config.Contexts {
		clone := *contextConfig
		if clone.Token != "" {
			clone.Token = Masked
		}

		if clone.RefreshToken != "" {
			clone.RefreshToken = Masked
		}

		redacted.Contexts[name] = &clone
	}

	return redacted
}

func loadConfig() *Config {
	config := &Config{
		Output:         viper.GetString("output"),
		CurrentContext: viper.GetString("current_context"),
		Contexts:       make(map[string]*ContextConfig),
	}

	for name, raw := range viper.GetStringMap("contexts") {
		contextMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		config.Contexts[name] = parseContextConfig(contextMap)
	}

	return config
}

func parseContextConfig(values map[string]any) *ContextConfig {
	contextConfig := &ContextConfig{}

	fields := map[string]*string{
		"endpoint":        &contextConfig.Endpoint,
		"token":           &contextConfig.Token,
		"refresh_token":   &contextConfig.RefreshToken,
		"token_url":       &contextConfig.TokenURL,
		"username":        &contextConfig.Username,
		"service":         &contextConfig.Service,
		"service_path":    &contextConfig.ServicePath,
		"iota_url":        &contextConfig.IoTAgentURL,
		"quantumleap_url": &contextConfig.QuantumLeapURL,
	}

	for key, field := range fields {
		if value, ok := values[key].(string); ok {
			*field = value
		}
	}

	contextConfig.TokenExpiresAt = parseTimeValue(values["token_expires_at"])
	contextConfig.LastRefreshed = parseTimeValue(values["last_refreshed"])

	return contextConfig
}

// parseTimeValue accepts both the time.Time the yaml decoder produces
// for plain timestamps and the quoted-string form.
func parseTimeValue(raw any) *time.Time {
	switch value := raw.(type) {
	case time.Time:
		return &value
	case string:
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil
		}

		return &ts
	default:
		return nil
	}
}

func saveConfigStruct(config *Config) error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}

		configDir := filepath.Join(home, ".filip")

		err = os.MkdirAll(configDir, constants.ConfigDirPerm)
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		configFile = filepath.Join(configDir, "config.yml")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
