package quantumleap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// AggrMethod is the aggregation function applied to the stored records
// of a query.
type AggrMethod string

// Aggregation functions supported by the time series API.
const (
	AggrCount AggrMethod = "count"
	AggrSum   AggrMethod = "sum"
	AggrAvg   AggrMethod = "avg"
	AggrMin   AggrMethod = "min"
	AggrMax   AggrMethod = "max"
)

// Validate checks that the aggregation method is one the API knows.
func (m AggrMethod) Validate() error {
	switch m {
	case AggrCount, AggrSum, AggrAvg, AggrMin, AggrMax:
		return nil
	default:
		return &ngsi.ValidationError{Field: "aggrMethod", Reason: fmt.Sprintf("unknown aggregation method %q", string(m))}
	}
}

// AggrPeriod is the bucket width an aggregation is grouped by.
type AggrPeriod string

// Aggregation periods supported by the time series API.
const (
	PeriodYear   AggrPeriod = "year"
	PeriodMonth  AggrPeriod = "month"
	PeriodDay    AggrPeriod = "day"
	PeriodHour   AggrPeriod = "hour"
	PeriodMinute AggrPeriod = "minute"
	PeriodSecond AggrPeriod = "second"
)

// Validate checks that the aggregation period is one the API knows.
func (p AggrPeriod) Validate() error {
	switch p {
	case PeriodYear, PeriodMonth, PeriodDay, PeriodHour, PeriodMinute, PeriodSecond:
		return nil
	default:
		return &ngsi.ValidationError{Field: "aggrPeriod", Reason: fmt.Sprintf("unknown aggregation period %q", string(p))}
	}
}

// AggrScope selects whether a multi-entity aggregation runs per entity
// instance or across all of them.
type AggrScope string

// Aggregation scopes supported by the time series API.
const (
	ScopeEntity AggrScope = "entity"
	ScopeGlobal AggrScope = "global"
)

// Validate checks that the aggregation scope is one the API knows.
func (s AggrScope) Validate() error {
	switch s {
	case ScopeEntity, ScopeGlobal:
		return nil
	default:
		return &ngsi.ValidationError{Field: "aggrScope", Reason: fmt.Sprintf("unknown aggregation scope %q", string(s))}
	}
}

// qlTimeLayouts lists the timestamp formats QuantumLeap emits. The
// entity listing uses RFC 3339, the history endpoints a timezone-less
// ISO 8601 that is implicitly UTC.
var qlTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseIndexTime(value string) (time.Time, error) {
	for _, layout := range qlTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, &ngsi.DecodeError{
		Declared: "DateTime",
		Raw:      value,
		Reason:   "unrecognized time index format",
	}
}

// decodeIndex accepts the index shapes the API uses: a list of
// timestamps, a single timestamp, or null.
func decodeIndex(raw json.RawMessage) ([]time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string

	err := json.Unmarshal(raw, &list)
	if err == nil {
		index := make([]time.Time, 0, len(list))

		for _, entry := range list {
			t, err := parseIndexTime(entry)
			if err != nil {
				return nil, err
			}

			index = append(index, t)
		}

		return index, nil
	}

	var single string

	err = json.Unmarshal(raw, &single)
	if err == nil {
		t, err := parseIndexTime(single)
		if err != nil {
			return nil, err
		}

		return []time.Time{t}, nil
	}

	return nil, &ngsi.DecodeError{
		Declared: "DateTime",
		Raw:      string(raw),
		Reason:   "index is neither a timestamp nor a list of timestamps",
	}
}

// TimeSeriesHeader identifies one entity known to the time series API
// together with its time index.
type TimeSeriesHeader struct {
	EntityID   string      `json:"entityId"   yaml:"entityId"`
	EntityType string      `json:"entityType" yaml:"entityType"`
	Index      []time.Time `json:"index"      yaml:"index"`
}

// UnmarshalJSON accepts both the id/type keys of the entity listing
// and the entityId/entityType keys of the history endpoints.
func (h *TimeSeriesHeader) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		EntityID   string          `json:"entityId"`
		EntityType string          `json:"entityType"`
		Index      json.RawMessage `json:"index"`
	}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("parsing time series header: %w", err)
	}

	h.EntityID = raw.EntityID
	if h.EntityID == "" {
		h.EntityID = raw.ID
	}

	h.EntityType = raw.EntityType
	if h.EntityType == "" {
		h.EntityType = raw.Type
	}

	h.Index, err = decodeIndex(raw.Index)

	return err
}

// AttributeValues is one value column of a series, parallel to its
// time index.
type AttributeValues struct {
	AttrName string `json:"attrName" yaml:"attrName"`
	Values   []any  `json:"values"   yaml:"values"`
}

// TimeSeries is the stored history of one entity: a time index and the
// attribute value columns aligned with it.
type TimeSeries struct {
	TimeSeriesHeader `yaml:",inline"`

	Attributes []AttributeValues `json:"attributes" yaml:"attributes"`
}

// UnmarshalJSON decodes the header through its alias-aware unmarshaler
// and the attribute columns directly.
func (ts *TimeSeries) UnmarshalJSON(data []byte) error {
	err := json.Unmarshal(data, &ts.TimeSeriesHeader)
	if err != nil {
		return err
	}

	var raw struct {
		Attributes []AttributeValues `json:"attributes"`
	}

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("parsing time series attributes: %w", err)
	}

	ts.Attributes = raw.Attributes

	return nil
}

// Extend appends a later chunk of the same series. The chunks must
// agree on entity identity and attribute layout.
func (ts *TimeSeries) Extend(other *TimeSeries) error {
	if other == nil {
		return nil
	}

	if ts.EntityID != other.EntityID || ts.EntityType != other.EntityType {
		return fmt.Errorf("%w: %s/%s followed by %s/%s",
			ErrSeriesMismatch, ts.EntityType, ts.EntityID, other.EntityType, other.EntityID)
	}

	if len(ts.Attributes) != len(other.Attributes) {
		return fmt.Errorf("%w: %d attribute columns followed by %d",
			ErrSeriesMismatch, len(ts.Attributes), len(other.Attributes))
	}

	for i := range ts.Attributes {
		if ts.Attributes[i].AttrName != other.Attributes[i].AttrName {
			return fmt.Errorf("%w: column %q followed by %q",
				ErrSeriesMismatch, ts.Attributes[i].AttrName, other.Attributes[i].AttrName)
		}
	}

	for i := range ts.Attributes {
		ts.Attributes[i].Values = append(ts.Attributes[i].Values, other.Attributes[i].Values...)
	}

	ts.Index = append(ts.Index, other.Index...)

	return nil
}

// Len returns the number of records in the series.
func (ts *TimeSeries) Len() int {
	return len(ts.Index)
}

// Version is the build information returned by the version endpoint.
type Version struct {
	Version string `json:"version" yaml:"version"`
}

// Health is the service health document. Status follows the health
// check RFC draft: pass, warn, or fail.
type Health struct {
	Status  string         `json:"status"            yaml:"status"`
	Output  string         `json:"output,omitempty"  yaml:"output,omitempty"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}
