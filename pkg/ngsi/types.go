package ngsi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode"
)

// MaxFieldLength is the longest string the broker accepts for entity
// ids, entity types, attribute names, and metadata names.
const MaxFieldLength = 256

// Reserved entity envelope keys that attribute names must never use.
const (
	reservedKeyID   = "id"
	reservedKeyType = "type"
)

// ValidateName checks a string against the NGSIv2 field syntax
// restrictions shared by entity ids, entity types, attribute names, and
// metadata names: non-empty, at most 256 characters, and free of
// whitespace, control characters, and the reserved characters & ? / #.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	if len(name) > MaxFieldLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("exceeds %d characters", MaxFieldLength)}
	}

	for _, r := range name {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			return &ValidationError{Field: "name", Reason: "must not contain whitespace or control characters"}
		case r == '&' || r == '?' || r == '/' || r == '#':
			return &ValidationError{Field: "name", Reason: fmt.Sprintf("must not contain %q", string(r))}
		}
	}

	return nil
}

// ValidateAttributeName checks an attribute or metadata name. On top of
// the general field restrictions, attribute names must not collide with
// the entity envelope keys.
func ValidateAttributeName(name string) error {
	err := ValidateName(name)
	if err != nil {
		return err
	}

	if name == reservedKeyID || name == reservedKeyType {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is reserved", name)}
	}

	return nil
}

// Metadata is a single NGSIv2 metadata entry. The protocol allows one
// metadata level only, so Metadata carries no metadata of its own.
type Metadata struct {
	Type  string         `json:"type,omitempty" yaml:"type,omitempty"`
	Value AttributeValue `json:"value"          yaml:"value"`
}

// NewMetadata builds a metadata entry, inferring the NGSIv2 type from
// the value variant.
func NewMetadata(value AttributeValue) Metadata {
	return Metadata{Type: value.TypeName(), Value: value}
}

// UnmarshalJSON decodes a metadata entry, interpreting the value
// according to its declared type.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	value, err := DecodeValue(wire.Type, wire.Value)
	if err != nil {
		return err
	}

	m.Type = wire.Type
	m.Value = value

	return nil
}

// Equal reports whether two metadata entries carry the same declared
// type and value.
func (m Metadata) Equal(other Metadata) bool {
	return m.Type == other.Type && m.Value.Equal(other.Value)
}

// Attribute is a single NGSIv2 attribute: a declared type, a value, and
// optional metadata.
type Attribute struct {
	Type     string              `json:"type,omitempty"     yaml:"type,omitempty"`
	Value    AttributeValue      `json:"value"              yaml:"value"`
	Metadata map[string]Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewAttribute builds an attribute, inferring the NGSIv2 type from the
// value variant.
func NewAttribute(value AttributeValue) Attribute {
	return Attribute{Type: value.TypeName(), Value: value}
}

// NewTypedAttribute builds an attribute with an explicit declared type.
func NewTypedAttribute(attributeType string, value AttributeValue) Attribute {
	return Attribute{Type: attributeType, Value: value}
}

// WithMetadata returns a copy of the attribute with the metadata entry
// set.
func (a Attribute) WithMetadata(name string, md Metadata) Attribute {
	metadata := make(map[string]Metadata, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		metadata[k] = v
	}

	metadata[name] = md
	a.Metadata = metadata

	return a
}

// UnmarshalJSON decodes an attribute, interpreting the value according
// to its declared type.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type     string              `json:"type"`
		Value    json.RawMessage     `json:"value"`
		Metadata map[string]Metadata `json:"metadata"`
	}

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("failed to unmarshal attribute: %w", err)
	}

	value, err := DecodeValue(wire.Type, wire.Value)
	if err != nil {
		return err
	}

	a.Type = wire.Type
	a.Value = value
	a.Metadata = wire.Metadata

	return nil
}

// Validate checks the attribute value, the declared-type consistency,
// and every metadata entry.
func (a Attribute) Validate() error {
	err := a.Value.Validate()
	if err != nil {
		return err
	}

	err = validateTypeConsistency(a.Type, a.Value)
	if err != nil {
		return err
	}

	for _, name := range sortedMetadataNames(a.Metadata) {
		err = ValidateAttributeName(name)
		if err != nil {
			return fmt.Errorf("metadata %q: %w", name, err)
		}

		err = a.Metadata[name].Value.Validate()
		if err != nil {
			return fmt.Errorf("metadata %q: %w", name, err)
		}
	}

	return nil
}

// Equal reports whether two attributes carry the same declared type,
// value, and metadata.
func (a Attribute) Equal(other Attribute) bool {
	if a.Type != other.Type || !a.Value.Equal(other.Value) {
		return false
	}

	if len(a.Metadata) != len(other.Metadata) {
		return false
	}

	for name, md := range a.Metadata {
		otherMD, ok := other.Metadata[name]
		if !ok || !md.Equal(otherMD) {
			return false
		}
	}

	return true
}

// MergeStrategy selects the collision policy for Entity.Merge.
type MergeStrategy int

// Merge strategies.
const (
	// MergeOverwrite replaces attribute values in place, keeping
	// existing metadata unless the patch carries its own.
	MergeOverwrite MergeStrategy = iota
	// MergeAppendOnly rejects patches that collide with an existing
	// attribute.
	MergeAppendOnly
)

// UpdateMode selects the broker-side collision policy when updating
// entity attributes.
type UpdateMode string

// Update modes.
const (
	// UpdateOverwrite updates existing attributes in place and fails
	// when an attribute does not exist yet.
	UpdateOverwrite UpdateMode = "overwrite"
	// UpdateAppend appends new attributes and updates existing ones.
	UpdateAppend UpdateMode = "append"
	// UpdateAppendStrict appends new attributes and fails when an
	// attribute already exists.
	UpdateAppendStrict UpdateMode = "appendStrict"
)

// Entity is an NGSIv2 context entity: an id, a type, and a set of named
// attributes. On the wire the attributes sit beside id and type as
// top-level JSON keys, so Entity carries its own (de)serialization.
type Entity struct {
	ID         string               `yaml:"id"`
	Type       string               `yaml:"type"`
	Attributes map[string]Attribute `yaml:"attributes,omitempty"`
}

// NewEntity builds an entity with the given id and type, validating
// both against the NGSIv2 field restrictions.
func NewEntity(id, entityType string) (*Entity, error) {
	err := ValidateName(id)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	err = ValidateName(entityType)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}

	return &Entity{ID: id, Type: entityType, Attributes: make(map[string]Attribute)}, nil
}

// SetAttribute sets a named attribute after validating the name and the
// attribute itself.
func (e *Entity) SetAttribute(name string, attr Attribute) error {
	err := ValidateAttributeName(name)
	if err != nil {
		return err
	}

	err = attr.Validate()
	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]Attribute)
	}

	e.Attributes[name] = attr

	return nil
}

// Attribute returns the named attribute.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	attr, ok := e.Attributes[name]

	return attr, ok
}

// AttributeNames returns the attribute names in sorted order.
func (e *Entity) AttributeNames() []string {
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Validate checks the entity envelope and every attribute against the
// NGSIv2 restrictions.
func (e *Entity) Validate() error {
	err := ValidateName(e.ID)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}

	err = ValidateName(e.Type)
	if err != nil {
		return fmt.Errorf("entity type: %w", err)
	}

	for _, name := range e.AttributeNames() {
		err = ValidateAttributeName(name)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}

		err = e.Attributes[name].Validate()
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
	}

	return nil
}

// Merge applies patch attributes onto the entity according to the
// strategy. Patches are validated first and applied in sorted name
// order, so a rejected merge reports the first offending attribute
// deterministically and leaves the entity unchanged.
func (e *Entity) Merge(patch map[string]Attribute, strategy MergeStrategy) error {
	names := make([]string, 0, len(patch))
	for name := range patch {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		err := ValidateAttributeName(name)
		if err != nil {
			return err
		}

		err = patch[name].Validate()
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}

		if strategy == MergeAppendOnly {
			if _, exists := e.Attributes[name]; exists {
				return &ValidationError{Field: name, Reason: "attribute already exists"}
			}
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]Attribute, len(patch))
	}

	for _, name := range names {
		attr := patch[name]

		if existing, ok := e.Attributes[name]; ok && len(attr.Metadata) == 0 {
			attr.Metadata = existing.Metadata
		}

		e.Attributes[name] = attr
	}

	return nil
}

// Equal reports whether two entities carry the same id, type, and
// attributes.
func (e *Entity) Equal(other *Entity) bool {
	if e.ID != other.ID || e.Type != other.Type {
		return false
	}

	if len(e.Attributes) != len(other.Attributes) {
		return false
	}

	for name, attr := range e.Attributes {
		otherAttr, ok := other.Attributes[name]
		if !ok || !attr.Equal(otherAttr) {
			return false
		}
	}

	return true
}

// MarshalJSON encodes the entity in its wire form, flattening the
// attributes beside id and type.
func (e Entity) MarshalJSON() ([]byte, error) {
	if e.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	if e.Type == "" {
		return nil, &ValidationError{Field: "type", Reason: "must not be empty"}
	}

	wire := make(map[string]any, len(e.Attributes)+2)
	wire[reservedKeyID] = e.ID
	wire[reservedKeyType] = e.Type

	for name, attr := range e.Attributes {
		if name == reservedKeyID || name == reservedKeyType {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("%q is reserved", name)}
		}

		wire[name] = attr
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the entity wire form, rejecting payloads
// missing id or type.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var wire map[string]json.RawMessage

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	idRaw, ok := wire[reservedKeyID]
	if !ok {
		return &DecodeError{Declared: "Entity", Raw: string(data), Reason: "payload has no id"}
	}

	typeRaw, ok := wire[reservedKeyType]
	if !ok {
		return &DecodeError{Declared: "Entity", Raw: string(data), Reason: "payload has no type"}
	}

	id, err := decodeString(idRaw)
	if err != nil || id == "" {
		return &DecodeError{Declared: "Entity", Raw: string(idRaw), Reason: "id must be a non-empty string"}
	}

	entityType, err := decodeString(typeRaw)
	if err != nil || entityType == "" {
		return &DecodeError{Declared: "Entity", Raw: string(typeRaw), Reason: "type must be a non-empty string"}
	}

	attributes := make(map[string]Attribute, len(wire)-2)

	for name, raw := range wire {
		if name == reservedKeyID || name == reservedKeyType {
			continue
		}

		var attr Attribute

		err = json.Unmarshal(raw, &attr)
		if err != nil {
			decodeErr := &DecodeError{}
			if errors.As(err, &decodeErr) {
				decodeErr.Attribute = name

				return decodeErr
			}

			return fmt.Errorf("attribute %q: %w", name, err)
		}

		if cmdName, params, ok := attr.Value.Command(); ok && cmdName == "" {
			cmd, cmdErr := Command(name, params)
			if cmdErr == nil {
				attr.Value = cmd
			}
		}

		attributes[name] = attr
	}

	e.ID = id
	e.Type = entityType
	e.Attributes = attributes

	return nil
}

// EntityKeyValues is the simplified entity representation returned by
// the broker in keyValues mode: attribute names map straight to bare
// values with no type or metadata envelope.
type EntityKeyValues struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// MarshalJSON encodes the keyValues wire form.
func (e EntityKeyValues) MarshalJSON() ([]byte, error) {
	if e.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	if e.Type == "" {
		return nil, &ValidationError{Field: "type", Reason: "must not be empty"}
	}

	wire := make(map[string]any, len(e.Attributes)+2)
	wire[reservedKeyID] = e.ID
	wire[reservedKeyType] = e.Type

	for name, value := range e.Attributes {
		if name == reservedKeyID || name == reservedKeyType {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("%q is reserved", name)}
		}

		wire[name] = value
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the keyValues wire form, rejecting payloads
// missing id or type.
func (e *EntityKeyValues) UnmarshalJSON(data []byte) error {
	var wire map[string]json.RawMessage

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	idRaw, ok := wire[reservedKeyID]
	if !ok {
		return &DecodeError{Declared: "Entity", Raw: string(data), Reason: "payload has no id"}
	}

	typeRaw, ok := wire[reservedKeyType]
	if !ok {
		return &DecodeError{Declared: "Entity", Raw: string(data), Reason: "payload has no type"}
	}

	id, err := decodeString(idRaw)
	if err != nil || id == "" {
		return &DecodeError{Declared: "Entity", Raw: string(idRaw), Reason: "id must be a non-empty string"}
	}

	entityType, err := decodeString(typeRaw)
	if err != nil || entityType == "" {
		return &DecodeError{Declared: "Entity", Raw: string(typeRaw), Reason: "type must be a non-empty string"}
	}

	attributes := make(map[string]any, len(wire)-2)

	for name, raw := range wire {
		if name == reservedKeyID || name == reservedKeyType {
			continue
		}

		value, treeErr := decodeTree(raw)
		if treeErr != nil {
			return fmt.Errorf("attribute %q: %w", name, treeErr)
		}

		attributes[name] = value
	}

	e.ID = id
	e.Type = entityType
	e.Attributes = attributes

	return nil
}

// EntityType describes one entity type as reported by GET /v2/types:
// the union of attribute names seen across entities of the type, and
// the entity count.
type EntityType struct {
	Type  string                        `json:"type,omitempty" yaml:"type,omitempty"`
	Attrs map[string]EntityTypeAttrInfo `json:"attrs"          yaml:"attrs"`
	Count int                           `json:"count"          yaml:"count"`
}

// EntityTypeAttrInfo lists the attribute types observed for one
// attribute name within an entity type.
type EntityTypeAttrInfo struct {
	Types []string `json:"types" yaml:"types"`
}

// validateTypeConsistency rejects declared types whose wire shape the
// value cannot produce. Custom declared types are unconstrained, and
// StructuredValue accepts any shape.
func validateTypeConsistency(declared string, v AttributeValue) error {
	var want ValueKind

	switch declared {
	case "", TypeStructuredValue:
		return nil
	case TypeText:
		want = KindText
	case TypeNumber:
		want = KindNumber
	case TypeBoolean:
		want = KindBoolean
	case TypeNone:
		want = KindNone
	case TypeGeoPoint:
		want = KindGeoPoint
	case TypeDateTime:
		want = KindDateTime
	case TypeRelationship:
		want = KindRelationship
	case TypeCommand:
		want = KindCommand
	default:
		return nil
	}

	if v.Kind() != want {
		return &ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("declared type %s does not match value shape %s", declared, v.Kind()),
		}
	}

	return nil
}

func sortedMetadataNames(metadata map[string]Metadata) []string {
	names := make([]string, 0, len(metadata))
	for name := range metadata {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
