// Package ultralight implements the Ultralight 2.0 text payloads the
// FIWARE IoT Agents speak southbound.
//
// Ultralight 2.0 trades structure for size: a measurement is a flat
// attribute|value list, several measurements join with #, and commands
// travel as device@command|payload frames. The codec is pure string
// work; rejected input surfaces as ngsi.ValidationError and nothing
// here touches the network.
package ultralight

import (
	"fmt"
	"strings"

	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Wire delimiters. They may not appear inside device ids, command
// names, attribute names, or measurement values.
const (
	readingSeparator = "|"
	groupSeparator   = "#"
	commandSeparator = "@"

	delimiters = readingSeparator + groupSeparator + commandSeparator
)

// Reading is a single attribute measurement. The attribute is the
// protocol-level name the device reports under, matched against the
// provisioned object_id or attribute name by the agent.
type Reading struct {
	Attribute string
	Value     string
}

// Measurement is one group of readings reported together. Groups keep
// their order, so encoding is deterministic.
type Measurement []Reading

// Encode renders the group as attribute|value pairs.
func (m Measurement) Encode() (string, error) {
	if len(m) == 0 {
		return "", &ngsi.ValidationError{Field: "measurement", Reason: "must carry at least one reading"}
	}

	parts := make([]string, 0, len(m)*2)

	for _, reading := range m {
		err := validateIdentifier("attribute", reading.Attribute)
		if err != nil {
			return "", err
		}

		err = validateValue(reading.Value)
		if err != nil {
			return "", err
		}

		parts = append(parts, reading.Attribute, reading.Value)
	}

	return strings.Join(parts, readingSeparator), nil
}

// EncodeMeasurements renders the groups joined by #, the multi-measure
// form the agents split back into individual updates.
func EncodeMeasurements(groups []Measurement) (string, error) {
	if len(groups) == 0 {
		return "", &ngsi.ValidationError{Field: "measurement", Reason: "must carry at least one group"}
	}

	encoded := make([]string, 0, len(groups))

	for _, group := range groups {
		payload, err := group.Encode()
		if err != nil {
			return "", err
		}

		encoded = append(encoded, payload)
	}

	return strings.Join(encoded, groupSeparator), nil
}

// DecodeMeasurements parses a measurement payload into its groups.
func DecodeMeasurements(payload string) ([]Measurement, error) {
	if payload == "" {
		return nil, &ngsi.ValidationError{Field: "payload", Reason: "must not be empty"}
	}

	groups := strings.Split(payload, groupSeparator)
	measurements := make([]Measurement, 0, len(groups))

	for _, group := range groups {
		measurement, err := decodeGroup(group)
		if err != nil {
			return nil, err
		}

		measurements = append(measurements, measurement)
	}

	return measurements, nil
}

func decodeGroup(group string) (Measurement, error) {
	if group == "" {
		return nil, &ngsi.ValidationError{Field: "payload", Reason: "empty measurement group"}
	}

	tokens := strings.Split(group, readingSeparator)
	if len(tokens)%2 != 0 {
		return nil, &ngsi.ValidationError{Field: "payload", Reason: fmt.Sprintf("unbalanced measurement group %q", group)}
	}

	measurement := make(Measurement, 0, len(tokens)/2)

	for i := 0; i < len(tokens); i += 2 {
		if tokens[i] == "" {
			return nil, &ngsi.ValidationError{Field: "payload", Reason: fmt.Sprintf("missing attribute name in group %q", group)}
		}

		measurement = append(measurement, Reading{Attribute: tokens[i], Value: tokens[i+1]})
	}

	return measurement, nil
}

// Command is a southbound command request, composed by the agent and
// delivered to the device.
type Command struct {
	Device  string
	Name    string
	Payload string
}

// Encode renders the device@command|payload frame. The payload is
// free-form; decoding takes everything after the first separator, so
// separators inside it survive the round trip.
func (c Command) Encode() (string, error) {
	return encodeFrame(c.Device, c.Name, c.Payload)
}

// DecodeCommand parses a command frame received on the command topic.
func DecodeCommand(payload string) (Command, error) {
	device, name, tail, err := decodeFrame("command", payload)
	if err != nil {
		return Command{}, err
	}

	return Command{Device: device, Name: name, Payload: tail}, nil
}

// CommandResult is the device's answer to a command, reported back so
// the agent can update the command status attributes on the entity.
type CommandResult struct {
	Device string
	Name   string
	Result string
}

// Encode renders the device@command|result frame.
func (r CommandResult) Encode() (string, error) {
	return encodeFrame(r.Device, r.Name, r.Result)
}

// DecodeCommandResult parses a command result frame.
func DecodeCommandResult(payload string) (CommandResult, error) {
	device, name, tail, err := decodeFrame("command result", payload)
	if err != nil {
		return CommandResult{}, err
	}

	return CommandResult{Device: device, Name: name, Result: tail}, nil
}

func encodeFrame(device, name, tail string) (string, error) {
	err := validateIdentifier("device", device)
	if err != nil {
		return "", err
	}

	err = validateIdentifier("command", name)
	if err != nil {
		return "", err
	}

	return device + commandSeparator + name + readingSeparator + tail, nil
}

func decodeFrame(field, payload string) (string, string, string, error) {
	device, rest, found := strings.Cut(payload, commandSeparator)
	if !found || device == "" {
		return "", "", "", &ngsi.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a device@command|payload frame", payload)}
	}

	name, tail, found := strings.Cut(rest, readingSeparator)
	if !found || name == "" {
		return "", "", "", &ngsi.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a device@command|payload frame", payload)}
	}

	return device, name, tail, nil
}

func validateIdentifier(field, s string) error {
	if s == "" {
		return &ngsi.ValidationError{Field: field, Reason: "must not be empty"}
	}

	if strings.ContainsAny(s, delimiters) {
		return &ngsi.ValidationError{Field: field, Reason: fmt.Sprintf("%q contains a reserved delimiter", s)}
	}

	return nil
}

func validateValue(value string) error {
	if strings.ContainsAny(value, readingSeparator+groupSeparator) {
		return &ngsi.ValidationError{Field: "value", Reason: fmt.Sprintf("%q contains a reserved delimiter", value)}
	}

	return nil
}
