package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/iota"
)

// NewServicesCommand creates the service groups command group.
func NewServicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "services",
		Aliases: []string{"service-groups", "groups"},
		Short:   "Manage IoT service groups",
		Long:    "Provision, inspect, and remove service groups on the IoT Agent",
	}

	cmd.AddCommand(newServicesListCommand())
	cmd.AddCommand(newServicesCreateCommand())
	cmd.AddCommand(newServicesDeleteCommand())

	return cmd
}

func newServicesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List service groups",
		Long:  "List the service groups provisioned on the IoT Agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServicesListCommand()
		},
	}
}

func runServicesListCommand() error {
	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	groups, err := agentClient.ListServiceGroups(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list service groups: %w", err)
	}

	return outputServiceGroups(groups)
}

func newServicesCreateCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision service groups",
		Long:  "Provision one or more service groups from a JSON or YAML definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServicesCreateCommand(filePath)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "service group definition file (JSON or YAML), a single group or an array")

	return cmd
}

func runServicesCreateCommand(filePath string) error {
	data, err := ReadDocumentBytes(filePath)
	if err != nil {
		return err
	}

	var groups []iota.ServiceGroup

	if isListDocument(data) {
		err = json.Unmarshal(data, &groups)
	} else {
		var group iota.ServiceGroup

		err = json.Unmarshal(data, &group)
		groups = []iota.ServiceGroup{group}
	}

	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}

	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	err = agentClient.CreateServiceGroups(context.Background(), groups)
	if err != nil {
		return fmt.Errorf("failed to provision service groups: %w", err)
	}

	fmt.Printf("Provisioned %d service group(s)\n", len(groups))

	return nil
}

// ServicesDeleteOptions identifies the service group to remove.
type ServicesDeleteOptions struct {
	Resource string
	APIKey   string
}

func newServicesDeleteCommand() *cobra.Command {
	var opts ServicesDeleteOptions

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a service group",
		Long:  "Remove a service group identified by its resource path and API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServicesDeleteCommand(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Resource, "resource", "", "resource path of the service group")
	cmd.Flags().StringVar(&opts.APIKey, "apikey", "", "API key of the service group")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("apikey")

	return cmd
}

func runServicesDeleteCommand(opts ServicesDeleteOptions) error {
	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	err = agentClient.DeleteServiceGroup(context.Background(), opts.Resource, opts.APIKey)
	if err != nil {
		return fmt.Errorf("failed to delete service group: %w", err)
	}

	fmt.Printf("Deleted service group %s\n", opts.APIKey)

	return nil
}

func outputServiceGroups(groups *iota.ServiceGroupList) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(groups)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(groups)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Resource", "API Key", "Entity Type", "Context Broker")

		for _, group := range groups.Services {
			cbroker := group.CBroker
			if cbroker == "" {
				cbroker = NotAvailable
			}

			_ = table.Append(group.Resource, group.APIKey, group.EntityType, cbroker)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}
