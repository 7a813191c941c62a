package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/quantumleap"
)

// NewTimeSeriesCommand creates the timeseries command group.
func NewTimeSeriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "timeseries",
		Aliases: []string{"ts", "history"},
		Short:   "Query stored time series",
		Long:    "Query the entity histories recorded by QuantumLeap",
	}

	cmd.AddCommand(newTimeSeriesEntitiesCommand())
	cmd.AddCommand(newTimeSeriesGetCommand())

	return cmd
}

// TimeSeriesEntitiesOptions holds the options for listing recorded
// entities.
type TimeSeriesEntitiesOptions struct {
	Type   string
	Limit  int
	Offset int
}

func newTimeSeriesEntitiesCommand() *cobra.Command {
	var opts TimeSeriesEntitiesOptions

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List recorded entities",
		Long:  "List the entities QuantumLeap holds history for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeSeriesEntitiesCommand(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "filter by entity type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entities to fetch")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of entities to skip")

	return cmd
}

func runTimeSeriesEntitiesCommand(opts TimeSeriesEntitiesOptions) error {
	timeSeriesClient, err := newTimeSeriesClient()
	if err != nil {
		return err
	}

	var queryOpts *quantumleap.QueryOptions
	if opts.Type != "" || opts.Limit > 0 || opts.Offset > 0 {
		queryOpts = &quantumleap.QueryOptions{Type: opts.Type, Limit: opts.Limit, Offset: opts.Offset}
	}

	headers, err := timeSeriesClient.ListEntities(context.Background(), queryOpts)
	if err != nil {
		return fmt.Errorf("failed to list recorded entities: %w", err)
	}

	return outputTimeSeriesHeaders(headers)
}

// TimeSeriesGetOptions holds the options for fetching one entity
// history.
type TimeSeriesGetOptions struct {
	Type       string
	Attrs      []string
	From       string
	To         string
	LastN      int
	Limit      int
	Offset     int
	AggrMethod string
	AggrPeriod string
	AggrScope  string
}

func newTimeSeriesGetCommand() *cobra.Command {
	var opts TimeSeriesGetOptions

	cmd := &cobra.Command{
		Use:   "get ENTITY_ID",
		Short: "Show an entity history",
		Long:  "Show the recorded history of one entity, raw or aggregated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeSeriesGetCommand(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "entity type, when several types share the id")
	cmd.Flags().StringSliceVar(&opts.Attrs, "attrs", nil, "project onto the named attributes")
	cmd.Flags().StringVar(&opts.From, "from", "", "start of the interval (RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end of the interval (RFC3339)")
	cmd.Flags().IntVar(&opts.LastN, "last-n", 0, "keep only the most recent records")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records to fetch")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of records to skip")
	cmd.Flags().StringVar(&opts.AggrMethod, "aggr-method", "", "aggregate the records (count, sum, avg, min, max)")
	cmd.Flags().StringVar(&opts.AggrPeriod, "aggr-period", "", "aggregation bucket (year, month, day, hour, minute, second)")
	cmd.Flags().StringVar(&opts.AggrScope, "aggr-scope", "", "aggregation scope (entity, global)")

	return cmd
}

func runTimeSeriesGetCommand(entityID string, opts TimeSeriesGetOptions) error {
	queryOpts, err := timeSeriesQueryOptions(opts)
	if err != nil {
		return err
	}

	timeSeriesClient, err := newTimeSeriesClient()
	if err != nil {
		return err
	}

	series, err := timeSeriesClient.GetEntityByID(context.Background(), entityID, queryOpts)
	if err != nil {
		return fmt.Errorf("failed to get entity history: %w", err)
	}

	return outputTimeSeries(series)
}

func timeSeriesQueryOptions(opts TimeSeriesGetOptions) (*quantumleap.QueryOptions, error) {
	queryOpts := &quantumleap.QueryOptions{
		Type:       opts.Type,
		Attrs:      opts.Attrs,
		LastN:      opts.LastN,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		AggrMethod: quantumleap.AggrMethod(opts.AggrMethod),
		AggrPeriod: quantumleap.AggrPeriod(opts.AggrPeriod),
		AggrScope:  quantumleap.AggrScope(opts.AggrScope),
	}

	if opts.From != "" {
		from, err := time.Parse(time.RFC3339, opts.From)
		if err != nil {
			return nil, fmt.Errorf("invalid --from time %q, use RFC3339: %w", opts.From, err)
		}

		queryOpts.FromDate = from
	}

	if opts.To != "" {
		to, err := time.Parse(time.RFC3339, opts.To)
		if err != nil {
			return nil, fmt.Errorf("invalid --to time %q, use RFC3339: %w", opts.To, err)
		}

		queryOpts.ToDate = to
	}

	return queryOpts, nil
}

func outputTimeSeriesHeaders(headers []quantumleap.TimeSeriesHeader) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(headers)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(headers)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Entity ID", "Type", "Latest Record")

		for _, header := range headers {
			latest := NotAvailable
			if len(header.Index) > 0 {
				latest = header.Index[len(header.Index)-1].Format(time.RFC3339)
			}

			_ = table.Append(header.EntityID, header.EntityType, latest)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func outputTimeSeries(series *quantumleap.TimeSeries) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(series)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(series)
	default:
		fmt.Printf("Entity: %s (%s)\n\n", series.EntityID, series.EntityType)

		header := make([]string, 0, len(series.Attributes)+1)
		header = append(header, "Time")

		for _, column := range series.Attributes {
			header = append(header, column.AttrName)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header(header)

		for i, timestamp := range series.Index {
			row := make([]string, 0, len(header))
			row = append(row, timestamp.Format(time.RFC3339))

			for _, column := range series.Attributes {
				if i < len(column.Values) {
					row = append(row, anyValueString(column.Values[i]))
				} else {
					row = append(row, NotAvailable)
				}
			}

			_ = table.Append(row)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}
