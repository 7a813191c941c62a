package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// NewTypesCommand creates the types command group.
func NewTypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "types",
		Aliases: []string{"type"},
		Short:   "Inspect entity types",
		Long:    "Inspect the entity types the broker has observed",
	}

	cmd.AddCommand(newTypesListCommand())
	cmd.AddCommand(newTypesGetCommand())

	return cmd
}

func newTypesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entity types",
		Long:  "List the entity types known to the broker with their entity counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesListCommand()
		},
	}
}

func runTypesListCommand() error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	entityTypes, err := brokerClient.Types().List(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to list entity types: %w", err)
	}

	return outputEntityTypes(entityTypes)
}

func newTypesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get TYPE",
		Short: "Show entity type details",
		Long:  "Show the attribute names and types observed for one entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesGetCommand(args[0])
		},
	}
}

func runTypesGetCommand(typeName string) error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	entityType, err := brokerClient.Types().Get(context.Background(), typeName)
	if err != nil {
		return fmt.Errorf("failed to get entity type: %w", err)
	}

	return outputEntityTypeDetail(typeName, entityType)
}

func outputEntityTypes(entityTypes []ngsi.EntityType) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entityTypes)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(entityTypes)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Type", "Count", "Attributes")

		for _, entityType := range entityTypes {
			_ = table.Append(
				entityType.Type,
				strconv.Itoa(entityType.Count),
				strings.Join(sortedKeys(entityType.Attrs), ", "),
			)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func outputEntityTypeDetail(typeName string, entityType *ngsi.EntityType) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entityType)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(entityType)
	default:
		fmt.Printf("Type: %s (%d entities)\n\n", typeName, entityType.Count)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Attribute", "Types")

		for _, name := range sortedKeys(entityType.Attrs) {
			_ = table.Append(name, strings.Join(entityType.Attrs[name].Types, ", "))
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}
