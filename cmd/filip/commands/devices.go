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
	"github.com/SystemsPurge/FiLiP/pkg/iota"
)

// NewDevicesCommand creates the devices command group.
func NewDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device", "dev"},
		Short:   "Manage provisioned devices",
		Long:    "Provision, inspect, and remove devices on the IoT Agent",
	}

	cmd.AddCommand(newDevicesListCommand())
	cmd.AddCommand(newDevicesGetCommand())
	cmd.AddCommand(newDevicesCreateCommand())
	cmd.AddCommand(newDevicesDeleteCommand())

	return cmd
}

// DevicesListOptions holds the options for listing devices.
type DevicesListOptions struct {
	Limit  int
	Offset int
}

func newDevicesListCommand() *cobra.Command {
	var opts DevicesListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices",
		Long:  "List the devices provisioned on the IoT Agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevicesListCommand(opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of devices to fetch (0 uses the agent default)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of devices to skip")

	return cmd
}

func runDevicesListCommand(opts DevicesListOptions) error {
	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	var listOpts *iota.ListDevicesOptions
	if opts.Limit > 0 || opts.Offset > 0 {
		listOpts = &iota.ListDevicesOptions{Limit: opts.Limit, Offset: opts.Offset}
	}

	devices, err := agentClient.ListDevices(context.Background(), listOpts)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	return outputDevices(devices)
}

func newDevicesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get DEVICE_ID",
		Short: "Show device details",
		Long:  "Show the provisioning record of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevicesGetCommand(args[0])
		},
	}
}

func runDevicesGetCommand(deviceID string) error {
	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	device, err := agentClient.GetDevice(context.Background(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}

	return outputDeviceDetail(device)
}

func newDevicesCreateCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision devices",
		Long:  "Provision one or more devices from a JSON or YAML definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevicesCreateCommand(filePath)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "device definition file (JSON or YAML), a single device or an array")

	return cmd
}

func runDevicesCreateCommand(filePath string) error {
	data, err := ReadDocumentBytes(filePath)
	if err != nil {
		return err
	}

	var devices []iota.Device

	if isListDocument(data) {
		err = json.Unmarshal(data, &devices)
	} else {
		var device iota.Device

		err = json.Unmarshal(data, &device)
		devices = []iota.Device{device}
	}

	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}

	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	err = agentClient.CreateDevices(context.Background(), devices)
	if err != nil {
		return fmt.Errorf("failed to provision devices: %w", err)
	}

	fmt.Printf("Provisioned %d device(s)\n", len(devices))

	return nil
}

func newDevicesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete DEVICE_ID",
		Short: "Delete a device",
		Long:  "Remove a device provisioning record from the IoT Agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevicesDeleteCommand(args[0])
		},
	}
}

func runDevicesDeleteCommand(deviceID string) error {
	agentClient, err := newAgentClient()
	if err != nil {
		return err
	}

	err = agentClient.DeleteDevice(context.Background(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	fmt.Printf("Deleted device %s\n", deviceID)

	return nil
}

func outputDevices(devices *iota.DeviceList) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(devices)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(devices)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Device ID", "Entity Name", "Entity Type", "Transport", "Protocol")

		for _, device := range devices.Devices {
			_ = table.Append(
				device.DeviceID,
				device.EntityName,
				device.EntityType,
				string(device.Transport),
				device.Protocol,
			)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

func outputDeviceDetail(device *iota.Device) error {
	output := viper.GetString("output")

	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(device)
	case constants.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(device)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")

		_ = table.Append("Device ID", device.DeviceID)
		_ = table.Append("Entity Name", device.EntityName)
		_ = table.Append("Entity Type", device.EntityType)
		_ = table.Append("Transport", string(device.Transport))
		_ = table.Append("Protocol", device.Protocol)

		if device.Endpoint != "" {
			_ = table.Append("Endpoint", device.Endpoint)
		}

		if device.APIKey != "" {
			_ = table.Append("API Key", device.APIKey)
		}

		if len(device.Attributes) > 0 {
			_ = table.Append("Attributes", deviceAttributeNames(device.Attributes))
		}

		if len(device.Commands) > 0 {
			names := make([]string, 0, len(device.Commands))
			for _, command := range device.Commands {
				names = append(names, command.Name)
			}

			_ = table.Append("Commands", strings.Join(names, ", "))
		}

		if len(device.StaticAttributes) > 0 {
			names := make([]string, 0, len(device.StaticAttributes))
			for _, attribute := range device.StaticAttributes {
				names = append(names, attribute.Name)
			}

			_ = table.Append("Static Attributes", strings.Join(names, ", "))
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	}
}

// deviceAttributeNames renders attribute mappings as
// "object_id -> name" pairs for table output.
func deviceAttributeNames(attributes []iota.DeviceAttribute) string {
	names := make([]string, 0, len(attributes))

	for _, attribute := range attributes {
		if attribute.ObjectID != "" {
			names = append(names, fmt.Sprintf("%s -> %s", attribute.ObjectID, attribute.Name))
		} else {
			names = append(names, attribute.Name)
		}
	}

	return strings.Join(names, ", ")
}
