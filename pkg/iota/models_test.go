package iota_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SystemsPurge/FiLiP/pkg/iota"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

func TestTransport_Validate(t *testing.T) {
	for _, transport := range []iota.Transport{"", iota.TransportMQTT, iota.TransportAMQP, iota.TransportHTTP} {
		assert.NoError(t, transport.Validate())
	}

	err := iota.Transport("CoAP").Validate()

	validationErr := &ngsi.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "transport", validationErr.Field)
}

func TestDeviceAttribute_Validate(t *testing.T) {
	t.Run("valid mapping", func(t *testing.T) {
		attr := iota.DeviceAttribute{ObjectID: "t", Name: "temperature", Type: "Number"}

		assert.NoError(t, attr.Validate())
	})

	tests := []struct {
		name string
		attr iota.DeviceAttribute
	}{
		{
			name: "reserved attribute name",
			attr: iota.DeviceAttribute{Name: "id", Type: "Number"},
		},
		{
			name: "missing type",
			attr: iota.DeviceAttribute{Name: "temperature"},
		},
		{
			name: "object id with whitespace",
			attr: iota.DeviceAttribute{ObjectID: "object id", Name: "temperature", Type: "Number"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attr.Validate()

			validationErr := &ngsi.ValidationError{}
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestDevice_Validate(t *testing.T) {
	t.Run("full device is valid", func(t *testing.T) {
		device := iota.Device{
			DeviceID:   "sensor001",
			EntityName: "urn:ngsi-ld:Room:001",
			EntityType: "Room",
			APIKey:     "plugnplay",
			Transport:  iota.TransportMQTT,
			Attributes: []iota.DeviceAttribute{
				{ObjectID: "t", Name: "temperature", Type: "Number"},
			},
			Commands: []iota.DeviceCommand{
				{Name: "heater", Type: "command"},
			},
			StaticAttributes: []iota.StaticAttribute{
				{Name: "refStore", Type: "Relationship", Value: ngsi.Text("urn:ngsi-ld:Store:001")},
			},
		}

		assert.NoError(t, device.Validate())
	})

	t.Run("http device with endpoint is valid", func(t *testing.T) {
		device := iota.Device{
			DeviceID:  "sensor002",
			Transport: iota.TransportHTTP,
			Endpoint:  "http://iotsensor:8080/cmd",
		}

		assert.NoError(t, device.Validate())
	})

	tests := []struct {
		name   string
		device iota.Device
	}{
		{
			name:   "missing device id",
			device: iota.Device{EntityType: "Room"},
		},
		{
			name:   "device id with whitespace",
			device: iota.Device{DeviceID: "sensor 001"},
		},
		{
			name:   "invalid entity name",
			device: iota.Device{DeviceID: "sensor001", EntityName: "Room #1"},
		},
		{
			name:   "unknown transport",
			device: iota.Device{DeviceID: "sensor001", Transport: "LoRaWAN"},
		},
		{
			name:   "endpoint without scheme",
			device: iota.Device{DeviceID: "sensor001", Endpoint: "iotsensor:8080"},
		},
		{
			name: "invalid attribute mapping",
			device: iota.Device{
				DeviceID:   "sensor001",
				Attributes: []iota.DeviceAttribute{{Name: "temperature"}},
			},
		},
		{
			name: "invalid lazy attribute",
			device: iota.Device{
				DeviceID: "sensor001",
				Lazy:     []iota.DeviceAttribute{{Name: "type", Type: "Number"}},
			},
		},
		{
			name: "invalid command name",
			device: iota.Device{
				DeviceID: "sensor001",
				Commands: []iota.DeviceCommand{{Name: "turn on"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.device.Validate()

			validationErr := &ngsi.ValidationError{}
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestServiceGroup_Validate(t *testing.T) {
	t.Run("full group is valid", func(t *testing.T) {
		group := iota.ServiceGroup{
			APIKey:     "plugnplay",
			Resource:   "/iot/ul",
			CBroker:    "http://orion:1026",
			EntityType: "Device",
			Attributes: []iota.DeviceAttribute{
				{ObjectID: "h", Name: "humidity", Type: "Number"},
			},
		}

		assert.NoError(t, group.Validate())
	})

	tests := []struct {
		name  string
		group iota.ServiceGroup
		field string
	}{
		{
			name:  "missing apikey",
			group: iota.ServiceGroup{Resource: "/iot/ul"},
			field: "apikey",
		},
		{
			name:  "missing resource",
			group: iota.ServiceGroup{APIKey: "plugnplay"},
			field: "resource",
		},
		{
			name:  "broker without scheme",
			group: iota.ServiceGroup{APIKey: "plugnplay", Resource: "/iot/ul", CBroker: "orion:1026"},
			field: "cbroker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()

			validationErr := &ngsi.ValidationError{}
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

// The agents speak snake_case on the wire, unlike the broker. The tags
// are pinned here so a tag rename cannot silently break provisioning.
func TestDevice_WireFormat(t *testing.T) {
	timestamp := true
	device := iota.Device{
		DeviceID:   "sensor001",
		EntityName: "urn:ngsi-ld:Room:001",
		EntityType: "Room",
		Timestamp:  &timestamp,
		APIKey:     "plugnplay",
		Transport:  iota.TransportMQTT,
		Attributes: []iota.DeviceAttribute{
			{ObjectID: "t", Name: "temperature", Type: "Number"},
		},
		StaticAttributes: []iota.StaticAttribute{
			{Name: "refStore", Type: "Relationship", Value: ngsi.Text("urn:ngsi-ld:Store:001")},
		},
		ExplicitAttrs: true,
	}

	encoded, err := json.Marshal(device)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &keys))

	for _, key := range []string{"device_id", "entity_name", "entity_type", "apikey", "static_attributes", "explicitAttrs"} {
		assert.Contains(t, keys, key)
	}

	assert.NotContains(t, keys, "deviceID")
	assert.NotContains(t, keys, "entityName")
}

func TestDevice_JSONDecoding(t *testing.T) {
	payload := `{
		"device_id": "sensor001",
		"service": "openiot",
		"service_path": "/",
		"entity_name": "urn:ngsi-ld:Room:001",
		"entity_type": "Room",
		"transport": "MQTT",
		"apikey": "plugnplay",
		"attributes": [
			{"object_id": "t", "name": "temperature", "type": "Number"}
		],
		"commands": [
			{"name": "heater", "type": "command"}
		],
		"static_attributes": [
			{"name": "floor", "type": "Number", "value": 4}
		],
		"explicitAttrs": true
	}`

	var device iota.Device
	require.NoError(t, json.Unmarshal([]byte(payload), &device))

	assert.Equal(t, "sensor001", device.DeviceID)
	assert.Equal(t, "openiot", device.Service)
	assert.Equal(t, "/", device.ServicePath)
	assert.Equal(t, "urn:ngsi-ld:Room:001", device.EntityName)
	assert.Equal(t, "Room", device.EntityType)
	assert.Equal(t, iota.TransportMQTT, device.Transport)
	assert.True(t, device.ExplicitAttrs)

	require.Len(t, device.Attributes, 1)
	assert.Equal(t, "t", device.Attributes[0].ObjectID)
	assert.Equal(t, "temperature", device.Attributes[0].Name)

	require.Len(t, device.Commands, 1)
	assert.Equal(t, "heater", device.Commands[0].Name)

	require.Len(t, device.StaticAttributes, 1)
	assert.Equal(t, ngsi.Number(4), device.StaticAttributes[0].Value)
}

func TestListDevicesOptions_Validate(t *testing.T) {
	assert.NoError(t, (&iota.ListDevicesOptions{Limit: 20, Offset: 40}).Validate())

	err := (&iota.ListDevicesOptions{Limit: -1}).Validate()

	validationErr := &ngsi.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "limit", validationErr.Field)
}
