package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// NewEntitiesCommand creates the entities command group.
func NewEntitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entities",
		Aliases: []string{"entity", "ent"},
		Short:   "Manage context entities",
		Long:    "Create, query, update, and delete NGSIv2 context entities",
	}

	cmd.AddCommand(newEntitiesListCommand())
	cmd.AddCommand(newEntitiesGetCommand())
	cmd.AddCommand(newEntitiesCreateCommand())
	cmd.AddCommand(newEntitiesUpdateCommand())
	cmd.AddCommand(newEntitiesDeleteCommand())
	cmd.AddCommand(newEntitiesBatchCommand())

	return cmd
}

// EntitiesListOptions holds the options for listing entities.
type EntitiesListOptions struct {
	Type      string
	IDPattern string
	Query     string
	Attrs     []string
	OrderBy   []string
	Limit     int
	All       bool
	KeyValues bool
}

func newEntitiesListCommand() *cobra.Command {
	var opts EntitiesListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		Long:  "List context entities matching the given filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntitiesListCommand(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "filter by entity type")
	cmd.Flags().StringVar(&opts.IDPattern, "id-pattern", "", "filter by id regular expression")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "simple query filter, e.g. 'temperature>25;status==on'")
	cmd.Flags().StringSliceVar(&opts.Attrs, "attrs", nil, "project onto the named attributes")
	cmd.Flags().StringSliceVar(&opts.OrderBy, "order-by", nil, "order results, prefix with '!' for descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", constants.DefaultPageSize, "maximum number of entities to fetch")
	cmd.Flags().BoolVar(&opts.All, "all", false, "fetch every matching entity")
	cmd.Flags().BoolVar(&opts.KeyValues, "key-values", false, "fetch the compact key-values representation")

	return cmd
}

func runEntitiesListCommand(opts EntitiesListOptions) error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	filter, err := entitiesListFilter(opts)
	if err != nil {
		return err
	}

	limit := opts.Limit
	if opts.All {
		limit = 0
	}

	ctx := context.Background()

	if opts.KeyValues {
		entities, err := collectPages(brokerClient.Entities().QueryKeyValues(ctx, filter), limit)
		if err != nil {
			return fmt.Errorf("failed to list entities: %w", err)
		}

		return outputEntityKeyValues(entities)
	}

	entities, err := collectPages(brokerClient.Entities().Query(ctx, filter), limit)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	return outputEntities(entities)
}

func entitiesListFilter(opts EntitiesListOptions) (*ngsi.QueryFilter, error) {
	filter := ngsi.NewQueryFilter()

	if opts.Type != "" {
		filter.WithType(opts.Type)
	}

	if opts.IDPattern != "" {
		filter.WithIDPattern(opts.IDPattern)
	}

	if len(opts.Attrs) > 0 {
		filter.WithAttrs(opts.Attrs...)
	}

	if len(opts.OrderBy) > 0 {
		filter.WithOrderBy(opts.OrderBy...)
	}

	if opts.Query != "" {
		query, err := ngsi.ParseSimpleQuery(opts.Query)
		if err != nil {
			return nil, err
		}

		filter.WithQuery(query)
	}

	return filter, nil
}

func outputEntities(entities []ngsi.Entity) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entities)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(entities)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Type", "Attributes")

		for _, entity := range entities {
			_ = table.Append(entity.ID, entity.Type, strings.Join(sortedKeys(entity.Attributes), ", "))
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func outputEntityKeyValues(entities []ngsi.EntityKeyValues) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entities)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(entities)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Type", "Values")

		for _, entity := range entities {
			pairs := make([]string, 0, len(entity.Attributes))
			for _, name := range sortedKeys(entity.Attributes) {
				pairs = append(pairs, name+"="+anyValueString(entity.Attributes[name]))
			}

			_ = table.Append(entity.ID, entity.Type, strings.Join(pairs, ", "))
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func newEntitiesGetCommand() *cobra.Command {
	var (
		entityType string
		attrs      []string
		keyValues  bool
	)

	cmd := &cobra.Command{
		Use:   "get ENTITY_ID",
		Short: "Get an entity",
		Long:  "Fetch one entity by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brokerClient, err := newBrokerClient()
			if err != nil {
				return err
			}

			ctx := context.Background()
			opts := &ngsi.GetEntityOptions{Type: entityType, Attrs: attrs}

			if keyValues {
				entity, err := brokerClient.Entities().GetKeyValues(ctx, args[0], opts)
				if err != nil {
					return fmt.Errorf("failed to get entity: %w", err)
				}

				return outputEntityKeyValues([]ngsi.EntityKeyValues{*entity})
			}

			entity, err := brokerClient.Entities().Get(ctx, args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to get entity: %w", err)
			}

			return outputEntityDetail(entity)
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "disambiguate by entity type")
	cmd.Flags().StringSliceVar(&attrs, "attrs", nil, "project onto the named attributes")
	cmd.Flags().BoolVar(&keyValues, "key-values", false, "fetch the compact key-values representation")

	return cmd
}

// outputEntityDetail renders one entity with a row per attribute.
func outputEntityDetail(entity *ngsi.Entity) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entity)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(entity)
	default:
		fmt.Printf("Entity: %s (%s)\n\n", entity.ID, entity.Type)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Attribute", "Type", "Value")

		for _, name := range sortedKeys(entity.Attributes) {
			attr := entity.Attributes[name]
			_ = table.Append(name, attr.Type, attributeValueString(attr.Value))
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func newEntitiesCreateCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an entity",
		Long:  "Create a context entity from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := &ngsi.Entity{}

			err := ReadDocument(filePath, entity)
			if err != nil {
				return err
			}

			brokerClient, err := newBrokerClient()
			if err != nil {
				return err
			}

			err = brokerClient.Entities().Create(context.Background(), entity)
			if err != nil {
				return fmt.Errorf("failed to create entity: %w", err)
			}

			fmt.Printf("Created entity %s\n", entity.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "entity document (json or yaml)")

	return cmd
}

func newEntitiesUpdateCommand() *cobra.Command {
	var (
		filePath string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "update ENTITY_ID",
		Short: "Update entity attributes",
		Long:  "Update the attributes of an entity from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := map[string]ngsi.Attribute{}

			err := ReadDocument(filePath, &attrs)
			if err != nil {
				return err
			}

			brokerClient, err := newBrokerClient()
			if err != nil {
				return err
			}

			err = brokerClient.Entities().Update(context.Background(), args[0], attrs, ngsi.UpdateMode(mode))
			if err != nil {
				return fmt.Errorf("failed to update entity: %w", err)
			}

			fmt.Printf("Updated entity %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "attribute document (json or yaml)")
	cmd.Flags().StringVar(&mode, "mode", string(ngsi.UpdateAppend), "update mode (append, overwrite, appendStrict)")

	return cmd
}

func newEntitiesDeleteCommand() *cobra.Command {
	var entityType string

	cmd := &cobra.Command{
		Use:   "delete ENTITY_ID",
		Short: "Delete an entity",
		Long:  "Delete one entity by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brokerClient, err := newBrokerClient()
			if err != nil {
				return err
			}

			var opts *ngsi.DeleteEntityOptions
			if entityType != "" {
				opts = &ngsi.DeleteEntityOptions{Type: entityType}
			}

			err = brokerClient.Entities().Delete(context.Background(), args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to delete entity: %w", err)
			}

			fmt.Printf("Deleted entity %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "disambiguate by entity type")

	return cmd
}

func newEntitiesBatchCommand() *cobra.Command {
	var (
		filePath string
		action   string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply a batch update",
		Long:  "Apply one batch action to every entity in a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entities []ngsi.Entity

			err := ReadDocument(filePath, &entities)
			if err != nil {
				return err
			}

			batchAction := ngsi.BatchAction(action)

			err = batchAction.Validate()
			if err != nil {
				return err
			}

			brokerClient, err := newBrokerClient()
			if err != nil {
				return err
			}

			result, err := brokerClient.Batch().Update(context.Background(), batchAction, entities)
			if err != nil {
				return fmt.Errorf("failed to apply batch: %w", err)
			}

			err = outputBatchResult(result)
			if err != nil {
				return err
			}

			// Partial failures surface in the exit code.
			return result.Err()
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "entity list document (json or yaml)")
	cmd.Flags().StringVar(&action, "action", string(ngsi.ActionAppend), "batch action (append, appendStrict, update, delete, replace)")

	return cmd
}

func outputBatchResult(result *ngsi.BatchResult) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(result)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(result)
	default:
		fmt.Printf("Batch %s: %d submitted, %d succeeded, %d failed\n",
			result.Action, result.Submitted, result.Succeeded, len(result.Failed))

		if len(result.Failed) == 0 {
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Type", "Reason")

		for _, failed := range result.Failed {
			_ = table.Append(failed.ID, failed.Type, failed.Reason)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}
