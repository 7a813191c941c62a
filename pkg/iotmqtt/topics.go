package iotmqtt

import (
	"fmt"
	"strings"

	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Topic layout of the Ultralight IoT Agent. Measurements and command
// results travel under the /ul protocol prefix; the agent publishes
// command requests without it.

// MeasurementTopic is where a device publishes its readings.
func MeasurementTopic(apikey, deviceID string) (string, error) {
	err := validateTopicSegments(apikey, deviceID)
	if err != nil {
		return "", err
	}

	return "/ul/" + apikey + "/" + deviceID + "/attrs", nil
}

// CommandTopic is where the agent publishes command requests for a
// device.
func CommandTopic(apikey, deviceID string) (string, error) {
	err := validateTopicSegments(apikey, deviceID)
	if err != nil {
		return "", err
	}

	return "/" + apikey + "/" + deviceID + "/cmd", nil
}

// CommandResultTopic is where a device reports command outcomes.
func CommandResultTopic(apikey, deviceID string) (string, error) {
	err := validateTopicSegments(apikey, deviceID)
	if err != nil {
		return "", err
	}

	return "/ul/" + apikey + "/" + deviceID + "/cmdexe", nil
}

func validateTopicSegments(apikey, deviceID string) error {
	err := validateTopicSegment("apikey", apikey)
	if err != nil {
		return err
	}

	return validateTopicSegment("device id", deviceID)
}

// validateTopicSegment rejects the MQTT level separator and wildcards,
// which would silently reshape the topic.
func validateTopicSegment(field, s string) error {
	if s == "" {
		return &ngsi.ValidationError{Field: field, Reason: "must not be empty"}
	}

	if strings.ContainsAny(s, "/+#") {
		return &ngsi.ValidationError{Field: field, Reason: fmt.Sprintf("%q contains an MQTT topic character", s)}
	}

	return nil
}
