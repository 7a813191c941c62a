package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// NewSubscriptionsCommand creates the subscriptions command group.
func NewSubscriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subscription", "subs", "sub"},
		Short:   "Manage subscriptions",
		Long:    "Create, inspect, and delete NGSIv2 subscriptions",
	}

	cmd.AddCommand(newSubscriptionsListCommand())
	cmd.AddCommand(newSubscriptionsGetCommand())
	cmd.AddCommand(newSubscriptionsCreateCommand())
	cmd.AddCommand(newSubscriptionsDeleteCommand())

	return cmd
}

// SubscriptionsListOptions holds the options for listing subscriptions.
type SubscriptionsListOptions struct {
	Limit int
	All   bool
}

func newSubscriptionsListCommand() *cobra.Command {
	var opts SubscriptionsListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Long:  "List the subscriptions registered on the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsListCommand(opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", constants.DefaultPageSize, "maximum number of subscriptions to fetch")
	cmd.Flags().BoolVar(&opts.All, "all", false, "fetch every subscription")

	return cmd
}

func runSubscriptionsListCommand(opts SubscriptionsListOptions) error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	limit := opts.Limit
	if opts.All {
		limit = 0
	}

	subscriptions, err := collectPages(brokerClient.Subscriptions().List(context.Background(), nil), limit)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return outputSubscriptions(subscriptions)
}

func newSubscriptionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get SUBSCRIPTION_ID",
		Short: "Show subscription details",
		Long:  "Show the full definition and delivery state of a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsGetCommand(args[0])
		},
	}
}

func runSubscriptionsGetCommand(subscriptionID string) error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	subscription, err := brokerClient.Subscriptions().Get(context.Background(), subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	return outputSubscriptionDetail(subscription)
}

func newSubscriptionsCreateCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subscription",
		Long:  "Create a subscription from a JSON or YAML definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsCreateCommand(filePath)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "subscription definition file (JSON or YAML)")

	return cmd
}

func runSubscriptionsCreateCommand(filePath string) error {
	subscription := &ngsi.Subscription{}

	err := ReadDocument(filePath, subscription)
	if err != nil {
		return err
	}

	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	subscriptionID, err := brokerClient.Subscriptions().Create(context.Background(), subscription)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	fmt.Printf("Created subscription %s\n", subscriptionID)

	return nil
}

func newSubscriptionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SUBSCRIPTION_ID",
		Short: "Delete a subscription",
		Long:  "Delete a subscription from the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsDeleteCommand(args[0])
		},
	}
}

func runSubscriptionsDeleteCommand(subscriptionID string) error {
	brokerClient, err := newBrokerClient()
	if err != nil {
		return err
	}

	err = brokerClient.Subscriptions().Delete(context.Background(), subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	fmt.Printf("Deleted subscription %s\n", subscriptionID)

	return nil
}

func outputSubscriptions(subscriptions []ngsi.Subscription) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(subscriptions)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(subscriptions)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Description", "Status", "Target", "Expires")

		for _, subscription := range subscriptions {
			expires := NotAvailable
			if subscription.Expires != nil {
				expires = subscription.Expires.Format(time.RFC3339)
			}

			_ = table.Append(
				subscription.ID,
				subscription.Description,
				string(subscription.Status),
				subscriptionTargetString(subscription.Notification),
				expires,
			)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func outputSubscriptionDetail(subscription *ngsi.Subscription) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(subscription)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(subscription)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")

		expires := NotAvailable
		if subscription.Expires != nil {
			expires = subscription.Expires.Format(time.RFC3339)
		}

		_ = table.Append("ID", subscription.ID)
		_ = table.Append("Description", subscription.Description)
		_ = table.Append("Status", string(subscription.Status))
		_ = table.Append("Subject", subscriptionSubjectString(subscription.Subject))

		if subscription.Subject.Condition != nil && len(subscription.Subject.Condition.Attrs) > 0 {
			_ = table.Append("Condition", strings.Join(subscription.Subject.Condition.Attrs, ", "))
		}

		_ = table.Append("Target", subscriptionTargetString(subscription.Notification))

		if subscription.Notification.AttrsFormat != "" {
			_ = table.Append("Attrs Format", string(subscription.Notification.AttrsFormat))
		}

		_ = table.Append("Expires", expires)
		_ = table.Append("Throttling", strconv.FormatInt(subscription.Throttling, 10))

		if subscription.Notification.TimesSent > 0 {
			_ = table.Append("Times Sent", strconv.Itoa(subscription.Notification.TimesSent))
		}

		if subscription.Notification.LastNotification != "" {
			_ = table.Append("Last Notification", subscription.Notification.LastNotification)
		}

		if subscription.Notification.LastFailure != "" {
			failure := subscription.Notification.LastFailure
			if subscription.Notification.LastFailureReason != "" {
				failure = fmt.Sprintf("%s (%s)", failure, subscription.Notification.LastFailureReason)
			}

			_ = table.Append("Last Failure", failure)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

// subscriptionTargetString summarizes the notification target for
// table output.
func subscriptionTargetString(notification ngsi.SubscriptionNotification) string {
	switch {
	case notification.HTTP != nil:
		return notification.HTTP.URL
	case notification.HTTPCustom != nil:
		return notification.HTTPCustom.URL
	case notification.MQTT != nil:
		return fmt.Sprintf("%s (%s)", notification.MQTT.URL, notification.MQTT.Topic)
	default:
		return NotAvailable
	}
}

// subscriptionSubjectString summarizes the watched entities for table
// output.
func subscriptionSubjectString(subject ngsi.SubscriptionSubject) string {
	descriptors := make([]string, 0, len(subject.Entities))

	for _, entity := range subject.Entities {
		descriptor := entity.ID
		if descriptor == "" {
			descriptor = entity.IDPattern
		}

		entityType := entity.Type
		if entityType == "" {
			entityType = entity.TypePattern
		}

		if entityType != "" {
			descriptor = fmt.Sprintf("%s (%s)", descriptor, entityType)
		}

		descriptors = append(descriptors, descriptor)
	}

	return strings.Join(descriptors, ", ")
}
