package iota

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Transport is the southbound protocol a device speaks to its agent.
type Transport string

// Transports understood by the IoT Agents.
const (
	TransportMQTT Transport = "MQTT"
	TransportAMQP Transport = "AMQP"
	TransportHTTP Transport = "HTTP"
)

// Validate checks that the transport is one the agents know. The empty
// transport is allowed and falls back to the agent default.
func (t Transport) Validate() error {
	switch t {
	case "", TransportMQTT, TransportAMQP, TransportHTTP:
		return nil
	default:
		return &ngsi.ValidationError{Field: "transport", Reason: fmt.Sprintf("unknown transport %q", string(t))}
	}
}

// DeviceAttribute maps a protocol-level measurement onto an entity
// attribute: the device reports under ObjectID, the entity carries
// Name. Without an ObjectID the device reports under Name directly.
type DeviceAttribute struct {
	ObjectID   string                   `json:"object_id,omitempty"  yaml:"object_id,omitempty"`
	Name       string                   `json:"name"                 yaml:"name"`
	Type       string                   `json:"type"                 yaml:"type"`
	Expression string                   `json:"expression,omitempty" yaml:"expression,omitempty"`
	Metadata   map[string]ngsi.Metadata `json:"metadata,omitempty"   yaml:"metadata,omitempty"`
}

// Validate checks the attribute mapping against the NGSIv2 field
// restrictions its target entity will enforce.
func (a *DeviceAttribute) Validate() error {
	err := ngsi.ValidateAttributeName(a.Name)
	if err != nil {
		return fmt.Errorf("attribute name: %w", err)
	}

	if a.Type == "" {
		return &ngsi.ValidationError{Field: "type", Reason: "must not be empty"}
	}

	if a.ObjectID != "" {
		err = ngsi.ValidateName(a.ObjectID)
		if err != nil {
			return fmt.Errorf("object id: %w", err)
		}
	}

	return nil
}

// DeviceCommand declares a command attribute on the provisioned
// entity. The agent materializes the _info and _status attributes
// beside it and routes invocations to the device.
type DeviceCommand struct {
	Name string `json:"name"           yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Validate checks the command name, which becomes an entity attribute.
func (c *DeviceCommand) Validate() error {
	err := ngsi.ValidateAttributeName(c.Name)
	if err != nil {
		return fmt.Errorf("command name: %w", err)
	}

	return nil
}

// StaticAttribute is provisioned once and attached verbatim to every
// entity update the agent sends, typically fixed metadata such as a
// location or a serial number.
type StaticAttribute struct {
	Name  string              `json:"name"  yaml:"name"`
	Type  string              `json:"type"  yaml:"type"`
	Value ngsi.AttributeValue `json:"value" yaml:"value"`
}

// Validate checks the attribute name and value.
func (s *StaticAttribute) Validate() error {
	err := ngsi.ValidateAttributeName(s.Name)
	if err != nil {
		return fmt.Errorf("static attribute name: %w", err)
	}

	err = s.Value.Validate()
	if err != nil {
		return fmt.Errorf("static attribute %q: %w", s.Name, err)
	}

	return nil
}

// UnmarshalJSON decodes a static attribute, interpreting the value
// according to its declared type.
func (s *StaticAttribute) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name  string          `json:"name"`
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("failed to unmarshal static attribute: %w", err)
	}

	value, err := ngsi.DecodeValue(wire.Type, wire.Value)
	if err != nil {
		return err
	}

	s.Name = wire.Name
	s.Type = wire.Type
	s.Value = value

	return nil
}

// Device is one provisioned device: the southbound identity (device
// id, api key, transport) and the northbound entity it materializes
// as. Service and ServicePath are read-only, derived from the tenant
// headers at provisioning time.
type Device struct {
	DeviceID    string `json:"device_id,omitempty"    yaml:"device_id,omitempty"`
	Service     string `json:"service,omitempty"      yaml:"service,omitempty"`
	ServicePath string `json:"service_path,omitempty" yaml:"service_path,omitempty"`
	EntityName  string `json:"entity_name,omitempty"  yaml:"entity_name,omitempty"`
	EntityType  string `json:"entity_type,omitempty"  yaml:"entity_type,omitempty"`
	Timezone    string `json:"timezone,omitempty"     yaml:"timezone,omitempty"`
	Timestamp   *bool  `json:"timestamp,omitempty"    yaml:"timestamp,omitempty"`

	APIKey    string    `json:"apikey,omitempty"    yaml:"apikey,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"  yaml:"endpoint,omitempty"`
	Protocol  string    `json:"protocol,omitempty"  yaml:"protocol,omitempty"`
	Transport Transport `json:"transport,omitempty" yaml:"transport,omitempty"`

	Attributes       []DeviceAttribute `json:"attributes,omitempty"        yaml:"attributes,omitempty"`
	Commands         []DeviceCommand   `json:"commands,omitempty"          yaml:"commands,omitempty"`
	Lazy             []DeviceAttribute `json:"lazy,omitempty"              yaml:"lazy,omitempty"`
	StaticAttributes []StaticAttribute `json:"static_attributes,omitempty" yaml:"static_attributes,omitempty"`

	// ExplicitAttrs suppresses autoprovisioned attributes: only the
	// declared mappings reach the entity.
	ExplicitAttrs bool `json:"explicitAttrs,omitempty" yaml:"explicitAttrs,omitempty"`
}

// Validate checks the device document before provisioning.
func (d *Device) Validate() error {
	err := ngsi.ValidateName(d.DeviceID)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	if d.EntityName != "" {
		err = ngsi.ValidateName(d.EntityName)
		if err != nil {
			return fmt.Errorf("entity name: %w", err)
		}
	}

	if d.EntityType != "" {
		err = ngsi.ValidateName(d.EntityType)
		if err != nil {
			return fmt.Errorf("entity type: %w", err)
		}
	}

	err = d.Transport.Validate()
	if err != nil {
		return err
	}

	if d.Endpoint != "" {
		parsed, err := url.Parse(d.Endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &ngsi.ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%q is not a valid endpoint", d.Endpoint)}
		}
	}

	for i := range d.Attributes {
		err = d.Attributes[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range d.Lazy {
		err = d.Lazy[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range d.Commands {
		err = d.Commands[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range d.StaticAttributes {
		err = d.StaticAttributes[i].Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// ServiceGroup provisions defaults for every device sharing an api
// key: the broker to update, the entity type to materialize, and the
// attribute mappings to inherit. Devices reference their group through
// the resource/apikey pair.
type ServiceGroup struct {
	Service    string `json:"service,omitempty"     yaml:"service,omitempty"`
	Subservice string `json:"subservice,omitempty"  yaml:"subservice,omitempty"`
	APIKey     string `json:"apikey,omitempty"      yaml:"apikey,omitempty"`
	Resource   string `json:"resource,omitempty"    yaml:"resource,omitempty"`
	CBroker    string `json:"cbroker,omitempty"     yaml:"cbroker,omitempty"`
	EntityType string `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Trust      string `json:"trust,omitempty"       yaml:"trust,omitempty"`
	Timestamp  *bool  `json:"timestamp,omitempty"   yaml:"timestamp,omitempty"`

	Attributes       []DeviceAttribute `json:"attributes,omitempty"        yaml:"attributes,omitempty"`
	Commands         []DeviceCommand   `json:"commands,omitempty"          yaml:"commands,omitempty"`
	Lazy             []DeviceAttribute `json:"lazy,omitempty"              yaml:"lazy,omitempty"`
	StaticAttributes []StaticAttribute `json:"static_attributes,omitempty" yaml:"static_attributes,omitempty"`

	ExplicitAttrs bool  `json:"explicitAttrs,omitempty" yaml:"explicitAttrs,omitempty"`
	Autoprovision *bool `json:"autoprovision,omitempty" yaml:"autoprovision,omitempty"`
}

// Validate checks the group document before provisioning.
func (g *ServiceGroup) Validate() error {
	if g.APIKey == "" {
		return &ngsi.ValidationError{Field: "apikey", Reason: "must not be empty"}
	}

	if g.Resource == "" {
		return &ngsi.ValidationError{Field: "resource", Reason: "must not be empty"}
	}

	if g.CBroker != "" {
		parsed, err := url.Parse(g.CBroker)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &ngsi.ValidationError{Field: "cbroker", Reason: fmt.Sprintf("%q is not a valid endpoint", g.CBroker)}
		}
	}

	if g.EntityType != "" {
		err := ngsi.ValidateName(g.EntityType)
		if err != nil {
			return fmt.Errorf("entity type: %w", err)
		}
	}

	for i := range g.Attributes {
		err := g.Attributes[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range g.Lazy {
		err := g.Lazy[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range g.Commands {
		err := g.Commands[i].Validate()
		if err != nil {
			return err
		}
	}

	for i := range g.StaticAttributes {
		err := g.StaticAttributes[i].Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// About is the agent build information returned by GET /iot/about.
type About struct {
	LibVersion string `json:"libVersion" yaml:"libVersion"`
	Version    string `json:"version"    yaml:"version"`
	Port       string `json:"port"       yaml:"port"`
	BaseRoot   string `json:"baseRoot"   yaml:"baseRoot"`
}

// DeviceList is the paged envelope of the device listing.
type DeviceList struct {
	Count   int      `json:"count"   yaml:"count"`
	Devices []Device `json:"devices" yaml:"devices"`
}

// ServiceGroupList is the envelope of the service group listing.
type ServiceGroupList struct {
	Count    int            `json:"count"    yaml:"count"`
	Services []ServiceGroup `json:"services" yaml:"services"`
}

// ListDevicesOptions pages the device listing. The zero value lists
// everything the agent is willing to return in one response.
type ListDevicesOptions struct {
	Limit  int
	Offset int
}

// Validate checks the pagination bounds.
func (o *ListDevicesOptions) Validate() error {
	if o.Limit < 0 {
		return &ngsi.ValidationError{Field: "limit", Reason: "must not be negative"}
	}

	if o.Offset < 0 {
		return &ngsi.ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	return nil
}
