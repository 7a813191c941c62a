package ngsi

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// NGSIv2 attribute type names.
const (
	TypeText            = "Text"
	TypeNumber          = "Number"
	TypeBoolean         = "Boolean"
	TypeNone            = "None"
	TypeStructuredValue = "StructuredValue"
	TypeGeoPoint        = "geo:point"
	TypeDateTime        = "DateTime"
	TypeRelationship    = "Relationship"
	TypeCommand         = "command"
)

// ValueKind discriminates the variants of AttributeValue.
type ValueKind int

// AttributeValue variants.
const (
	KindNone ValueKind = iota
	KindText
	KindNumber
	KindBoolean
	KindStructured
	KindGeoPoint
	KindDateTime
	KindRelationship
	KindCommand
)

// String returns the NGSIv2 type name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return TypeNone
	case KindText:
		return TypeText
	case KindNumber:
		return TypeNumber
	case KindBoolean:
		return TypeBoolean
	case KindStructured:
		return TypeStructuredValue
	case KindGeoPoint:
		return TypeGeoPoint
	case KindDateTime:
		return TypeDateTime
	case KindRelationship:
		return TypeRelationship
	case KindCommand:
		return TypeCommand
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// AttributeValue is a closed union over the value shapes an NGSIv2
// attribute can carry: simple scalars, structured JSON trees, geo:point
// coordinates, DateTime instants, relationships, and commands. Values
// are built through the package-level constructors; the zero value is
// the null (None) value.
type AttributeValue struct {
	kind    ValueKind
	str     string
	num     float64
	boolean bool
	tree    any
	lat     float64
	lon     float64
	instant time.Time
	cmdName string
}

// Null returns the null (None) value.
func Null() AttributeValue {
	return AttributeValue{kind: KindNone}
}

// Text returns a Text value.
func Text(s string) AttributeValue {
	return AttributeValue{kind: KindText, str: s}
}

// Number returns a Number value. Non-finite numbers are rejected by
// Validate and by serialization; JSON cannot represent them.
func Number(f float64) AttributeValue {
	return AttributeValue{kind: KindNumber, num: f}
}

// Boolean returns a Boolean value.
func Boolean(b bool) AttributeValue {
	return AttributeValue{kind: KindBoolean, boolean: b}
}

// Structured returns a StructuredValue wrapping a JSON-compatible tree.
// The input is normalized through JSON encoding, so maps, slices, and
// struct values are all accepted as long as they marshal cleanly.
func Structured(v any) (AttributeValue, error) {
	tree, err := normalizeTree(v)
	if err != nil {
		return AttributeValue{}, &ValidationError{Field: "value", Reason: err.Error()}
	}

	return AttributeValue{kind: KindStructured, tree: tree}, nil
}

// GeoPoint returns a geo:point value. Both components must be finite
// and within the valid latitude/longitude ranges.
func GeoPoint(lat, lon float64) (AttributeValue, error) {
	err := validateCoordinates(lat, lon)
	if err != nil {
		return AttributeValue{}, err
	}

	return AttributeValue{kind: KindGeoPoint, lat: lat, lon: lon}, nil
}

// DateTime returns a DateTime value normalized to UTC.
func DateTime(t time.Time) AttributeValue {
	return AttributeValue{kind: KindDateTime, instant: t.UTC()}
}

// ParseDateTime parses an ISO-8601 instant into a DateTime value. Inputs
// without a zone offset are interpreted as UTC.
func ParseDateTime(s string) (AttributeValue, error) {
	t, err := parseInstant(s)
	if err != nil {
		return AttributeValue{}, &ValidationError{Field: "value", Reason: err.Error()}
	}

	return DateTime(t), nil
}

// Relationship returns a Relationship value referencing the target
// entity id.
func Relationship(target string) (AttributeValue, error) {
	if target == "" {
		return AttributeValue{}, &ValidationError{Field: "value", Reason: "relationship target must not be empty"}
	}

	return AttributeValue{kind: KindRelationship, str: target}, nil
}

// Command returns a command value carrying the command name and its
// parameters. When placed in an entity, the attribute takes the command
// name.
func Command(name string, params any) (AttributeValue, error) {
	err := ValidateName(name)
	if err != nil {
		return AttributeValue{}, err
	}

	tree, err := normalizeTree(params)
	if err != nil {
		return AttributeValue{}, &ValidationError{Field: "value", Reason: err.Error()}
	}

	return AttributeValue{kind: KindCommand, cmdName: name, tree: tree}, nil
}

// Kind returns the variant of the value.
func (v AttributeValue) Kind() ValueKind {
	return v.kind
}

// IsNull reports whether the value is the null (None) value.
func (v AttributeValue) IsNull() bool {
	return v.kind == KindNone
}

// Text returns the string payload of a Text value.
func (v AttributeValue) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}

	return v.str, true
}

// Number returns the numeric payload of a Number value.
func (v AttributeValue) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}

	return v.num, true
}

// Boolean returns the payload of a Boolean value.
func (v AttributeValue) Boolean() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}

	return v.boolean, true
}

// Structured returns the JSON tree of a StructuredValue.
func (v AttributeValue) Structured() (any, bool) {
	if v.kind != KindStructured {
		return nil, false
	}

	return v.tree, true
}

// GeoPoint returns the coordinates of a geo:point value.
func (v AttributeValue) GeoPoint() (lat, lon float64, ok bool) {
	if v.kind != KindGeoPoint {
		return 0, 0, false
	}

	return v.lat, v.lon, true
}

// DateTime returns the instant of a DateTime value, in UTC.
func (v AttributeValue) DateTime() (time.Time, bool) {
	if v.kind != KindDateTime {
		return time.Time{}, false
	}

	return v.instant, true
}

// Relationship returns the target entity id of a Relationship value.
func (v AttributeValue) Relationship() (string, bool) {
	if v.kind != KindRelationship {
		return "", false
	}

	return v.str, true
}

// Command returns the name and parameters of a command value.
func (v AttributeValue) Command() (name string, params any, ok bool) {
	if v.kind != KindCommand {
		return "", nil, false
	}

	return v.cmdName, v.tree, true
}

// TypeName returns the NGSIv2 attribute type inferred from the value
// variant. It is used when an attribute omits an explicit type.
func (v AttributeValue) TypeName() string {
	return v.kind.String()
}

// Validate checks the value against the NGSIv2 wire constraints for its
// variant.
func (v AttributeValue) Validate() error {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return &ValidationError{Field: "value", Reason: "number must be finite"}
		}
	case KindGeoPoint:
		return validateCoordinates(v.lat, v.lon)
	case KindRelationship:
		if v.str == "" {
			return &ValidationError{Field: "value", Reason: "relationship target must not be empty"}
		}
	case KindNone, KindText, KindBoolean, KindStructured, KindDateTime, KindCommand:
	}

	return nil
}

// Equal reports whether two values are the same variant with the same
// payload. DateTime values compare by instant, structured trees by deep
// equality.
func (v AttributeValue) Equal(other AttributeValue) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNone:
		return true
	case KindText, KindRelationship:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBoolean:
		return v.boolean == other.boolean
	case KindStructured:
		return reflect.DeepEqual(v.tree, other.tree)
	case KindGeoPoint:
		return v.lat == other.lat && v.lon == other.lon
	case KindDateTime:
		return v.instant.Equal(other.instant)
	case KindCommand:
		return v.cmdName == other.cmdName && reflect.DeepEqual(v.tree, other.tree)
	default:
		return false
	}
}

// MarshalJSON encodes the wire form of the value.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNone:
		return []byte("null"), nil
	case KindText, KindRelationship:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, &ValidationError{Field: "value", Reason: "number must be finite"}
		}

		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.boolean)
	case KindStructured, KindCommand:
		return json.Marshal(v.tree)
	case KindGeoPoint:
		return json.Marshal(formatCoordinates(v.lat, v.lon))
	case KindDateTime:
		return json.Marshal(v.instant.Format(time.RFC3339Nano))
	default:
		return nil, &ValidationError{Field: "value", Reason: fmt.Sprintf("unknown value kind %d", int(v.kind))}
	}
}

// DecodeValue decodes a raw JSON value according to the declared
// attribute type. A mismatch between the declared type and the value
// shape yields a DecodeError. Unknown or custom declared types decode
// by shape without further validation, so protocol extensions pass
// through untouched.
func DecodeValue(declaredType string, raw json.RawMessage) (AttributeValue, error) {
	switch declaredType {
	case TypeText:
		s, err := decodeString(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, "expected a JSON string")
		}

		return Text(s), nil
	case TypeNumber:
		f, err := decodeNumber(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, "expected a JSON number")
		}

		return Number(f), nil
	case TypeBoolean:
		var b bool

		err := json.Unmarshal(raw, &b)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, "expected a JSON boolean")
		}

		return Boolean(b), nil
	case TypeNone:
		if !isJSONNull(raw) {
			return AttributeValue{}, decodeError(declaredType, raw, "expected null")
		}

		return Null(), nil
	case TypeGeoPoint:
		s, err := decodeString(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, `expected a "lat, lon" string`)
		}

		lat, lon, err := parseCoordinates(s)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, err.Error())
		}

		return AttributeValue{kind: KindGeoPoint, lat: lat, lon: lon}, nil
	case TypeDateTime:
		s, err := decodeString(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, "expected an ISO-8601 string")
		}

		t, err := parseInstant(s)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, err.Error())
		}

		return DateTime(t), nil
	case TypeRelationship:
		s, err := decodeString(raw)
		if err != nil || s == "" {
			return AttributeValue{}, decodeError(declaredType, raw, "expected a non-empty entity id string")
		}

		return AttributeValue{kind: KindRelationship, str: s}, nil
	case TypeCommand:
		tree, err := decodeTree(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, err.Error())
		}

		return AttributeValue{kind: KindCommand, tree: tree}, nil
	case TypeStructuredValue:
		tree, err := decodeTree(raw)
		if err != nil {
			return AttributeValue{}, decodeError(declaredType, raw, err.Error())
		}

		return AttributeValue{kind: KindStructured, tree: tree}, nil
	default:
		return decodeByShape(raw)
	}
}

// decodeByShape decodes a raw JSON value into the variant matching its
// shape: scalars map to the simple kinds, objects and arrays to
// StructuredValue.
func decodeByShape(raw json.RawMessage) (AttributeValue, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Null(), nil
	}

	switch trimmed[0] {
	case '"':
		s, err := decodeString(raw)
		if err != nil {
			return AttributeValue{}, decodeError("", raw, "malformed JSON string")
		}

		return Text(s), nil
	case 't', 'f':
		var b bool

		err := json.Unmarshal(raw, &b)
		if err != nil {
			return AttributeValue{}, decodeError("", raw, "malformed JSON boolean")
		}

		return Boolean(b), nil
	case '{', '[':
		tree, err := decodeTree(raw)
		if err != nil {
			return AttributeValue{}, decodeError("", raw, err.Error())
		}

		return AttributeValue{kind: KindStructured, tree: tree}, nil
	default:
		f, err := decodeNumber(raw)
		if err != nil {
			return AttributeValue{}, decodeError("", raw, "malformed JSON value")
		}

		return Number(f), nil
	}
}

func decodeError(declared string, raw json.RawMessage, reason string) *DecodeError {
	return &DecodeError{Declared: declared, Raw: string(raw), Reason: reason}
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string

	err := json.Unmarshal(raw, &s)
	if err != nil {
		return "", err
	}

	return s, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var f float64

	err := json.Unmarshal(raw, &f)
	if err != nil {
		return 0, err
	}

	return f, nil
}

func decodeTree(raw json.RawMessage) (any, error) {
	var tree any

	err := json.Unmarshal(raw, &tree)
	if err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	return tree, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null" || len(raw) == 0
}

// normalizeTree round-trips a value through JSON so that arbitrary Go
// values are stored in their canonical decoded form.
func normalizeTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}

	var tree any

	err = json.Unmarshal(data, &tree)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}

	return tree, nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &ValidationError{Field: "value", Reason: "coordinates must be finite"}
	}

	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("latitude %v out of range [-90, 90]", lat)}
	}

	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("longitude %v out of range [-180, 180]", lon)}
	}

	return nil
}

// formatCoordinates renders the NGSIv2 geo:point wire form "lat, lon".
func formatCoordinates(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lon, 'f', -1, 64)
}

func parseCoordinates(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two comma-separated components, got %d", len(parts))
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", strings.TrimSpace(parts[0]))
	}

	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", strings.TrimSpace(parts[1]))
	}

	err = validateCoordinates(lat, lon)
	if err != nil {
		return 0, 0, err
	}

	return lat, lon, nil
}

// Instant layouts accepted on decode, tried in order. Zone-less inputs
// are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q as an ISO-8601 instant", s)
}
