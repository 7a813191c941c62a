package ngsi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Pagination bounds advertised by the broker.
const (
	// DefaultLimit is the page size the broker applies when none is
	// requested.
	DefaultLimit = 20
	// MaxLimit is the largest page size the broker accepts.
	MaxLimit = 1000
)

// Representation options accepted by query and get operations.
const (
	OptionCount     = "count"
	OptionKeyValues = "keyValues"
	OptionValues    = "values"
	OptionUnique    = "unique"
	OptionAppend    = "append"
	OptionUpsert    = "upsert"
)

// QueryFilter describes an entity query: which entities to select, what
// to project, and how to page and order the result. The zero value
// selects everything with the broker defaults.
type QueryFilter struct {
	IDs         []string      `json:"ids,omitempty"         yaml:"ids,omitempty"`
	IDPattern   string        `json:"idPattern,omitempty"   yaml:"idPattern,omitempty"`
	Types       []string      `json:"types,omitempty"       yaml:"types,omitempty"`
	TypePattern string        `json:"typePattern,omitempty" yaml:"typePattern,omitempty"`
	Attrs       []string      `json:"attrs,omitempty"       yaml:"attrs,omitempty"`
	Metadata    []string      `json:"metadata,omitempty"    yaml:"metadata,omitempty"`
	Query       *SimpleQuery  `json:"-"                     yaml:"-"`
	MQ          *SimpleQuery  `json:"-"                     yaml:"-"`
	GeoRel      string        `json:"georel,omitempty"      yaml:"georel,omitempty"`
	Geometry    string        `json:"geometry,omitempty"    yaml:"geometry,omitempty"`
	Coords      string        `json:"coords,omitempty"      yaml:"coords,omitempty"`
	DateFrom    *time.Time    `json:"dateFrom,omitempty"    yaml:"dateFrom,omitempty"`
	DateTo      *time.Time    `json:"dateTo,omitempty"      yaml:"dateTo,omitempty"`
	Offset      int           `json:"offset,omitempty"      yaml:"offset,omitempty"`
	Limit       int           `json:"limit,omitempty"       yaml:"limit,omitempty"`
	OrderBy     []string      `json:"orderBy,omitempty"     yaml:"orderBy,omitempty"`
	Options     []string      `json:"options,omitempty"     yaml:"options,omitempty"`
}

// NewQueryFilter creates an empty query filter.
func NewQueryFilter() *QueryFilter {
	return &QueryFilter{}
}

// WithID adds explicit entity ids to select.
func (f *QueryFilter) WithID(ids ...string) *QueryFilter {
	f.IDs = append(f.IDs, ids...)

	return f
}

// WithIDPattern selects entities whose id matches the pattern.
func (f *QueryFilter) WithIDPattern(pattern string) *QueryFilter {
	f.IDPattern = pattern

	return f
}

// WithType adds explicit entity types to select.
func (f *QueryFilter) WithType(types ...string) *QueryFilter {
	f.Types = append(f.Types, types...)

	return f
}

// WithTypePattern selects entities whose type matches the pattern.
func (f *QueryFilter) WithTypePattern(pattern string) *QueryFilter {
	f.TypePattern = pattern

	return f
}

// WithAttrs adds attribute names to project into the result.
func (f *QueryFilter) WithAttrs(attrs ...string) *QueryFilter {
	f.Attrs = append(f.Attrs, attrs...)

	return f
}

// WithMetadata adds metadata names to project into the result.
func (f *QueryFilter) WithMetadata(metadata ...string) *QueryFilter {
	f.Metadata = append(f.Metadata, metadata...)

	return f
}

// WithQuery sets the attribute filter expression (the q parameter).
func (f *QueryFilter) WithQuery(q *SimpleQuery) *QueryFilter {
	f.Query = q

	return f
}

// WithMetadataQuery sets the metadata filter expression (the mq
// parameter).
func (f *QueryFilter) WithMetadataQuery(mq *SimpleQuery) *QueryFilter {
	f.MQ = mq

	return f
}

// WithGeoQuery sets the geographical filter. All three components are
// required by the broker.
func (f *QueryFilter) WithGeoQuery(georel, geometry, coords string) *QueryFilter {
	f.GeoRel = georel
	f.Geometry = geometry
	f.Coords = coords

	return f
}

// WithDateRange bounds the result by entity modification date.
func (f *QueryFilter) WithDateRange(from, to time.Time) *QueryFilter {
	f.DateFrom = &from
	f.DateTo = &to

	return f
}

// WithOffset sets the pagination offset.
func (f *QueryFilter) WithOffset(offset int) *QueryFilter {
	f.Offset = offset

	return f
}

// WithLimit sets the page size.
func (f *QueryFilter) WithLimit(limit int) *QueryFilter {
	f.Limit = limit

	return f
}

// WithOrderBy adds ordering keys; prefix a key with '!' for descending
// order.
func (f *QueryFilter) WithOrderBy(keys ...string) *QueryFilter {
	f.OrderBy = append(f.OrderBy, keys...)

	return f
}

// WithOption adds a representation option (count, keyValues, values,
// unique).
func (f *QueryFilter) WithOption(options ...string) *QueryFilter {
	for _, opt := range options {
		found := false

		for _, existing := range f.Options {
			if existing == opt {
				found = true

				break
			}
		}

		if !found {
			f.Options = append(f.Options, opt)
		}
	}

	return f
}

// Validate checks the filter for contradictions and out-of-range
// pagination before any request is built.
func (f *QueryFilter) Validate() error {
	if len(f.IDs) > 0 && f.IDPattern != "" {
		return &ValidationError{Field: "id", Reason: "id list and idPattern are mutually exclusive"}
	}

	if len(f.Types) > 0 && f.TypePattern != "" {
		return &ValidationError{Field: "type", Reason: "type list and typePattern are mutually exclusive"}
	}

	for _, id := range f.IDs {
		err := ValidateName(id)
		if err != nil {
			return fmt.Errorf("id %q: %w", id, err)
		}
	}

	for _, entityType := range f.Types {
		err := ValidateName(entityType)
		if err != nil {
			return fmt.Errorf("type %q: %w", entityType, err)
		}
	}

	geoSet := 0
	for _, part := range []string{f.GeoRel, f.Geometry, f.Coords} {
		if part != "" {
			geoSet++
		}
	}

	if geoSet != 0 && geoSet != 3 {
		return &ValidationError{Field: "georel", Reason: "georel, geometry, and coords must be set together"}
	}

	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return &ValidationError{Field: "dateTo", Reason: "must not precede dateFrom"}
	}

	if f.Offset < 0 {
		return &ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	if f.Limit < 0 || f.Limit > MaxLimit {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}

	for _, key := range f.OrderBy {
		name := strings.TrimPrefix(key, "!")

		err := ValidateName(name)
		if err != nil {
			return fmt.Errorf("orderBy %q: %w", key, err)
		}
	}

	hasKeyValues := false
	hasValues := false

	for _, opt := range f.Options {
		switch opt {
		case OptionCount, OptionUnique:
		case OptionKeyValues:
			hasKeyValues = true
		case OptionValues:
			hasValues = true
		default:
			return &ValidationError{Field: "options", Reason: fmt.Sprintf("unknown option %q", opt)}
		}
	}

	if hasKeyValues && hasValues {
		return &ValidationError{Field: "options", Reason: "keyValues and values are mutually exclusive"}
	}

	return nil
}

// ToValues renders the filter into broker query parameters. The result
// encodes deterministically; multi-valued parameters join with commas.
// Contradictory filters fail with a ValidationError before any request
// is sent.
func (f *QueryFilter) ToValues() (url.Values, error) {
	err := f.Validate()
	if err != nil {
		return nil, err
	}

	values := url.Values{}

	if len(f.IDs) > 0 {
		values.Set("id", strings.Join(f.IDs, ","))
	}

	if f.IDPattern != "" {
		values.Set("idPattern", f.IDPattern)
	}

	if len(f.Types) > 0 {
		values.Set("type", strings.Join(f.Types, ","))
	}

	if f.TypePattern != "" {
		values.Set("typePattern", f.TypePattern)
	}

	if len(f.Attrs) > 0 {
		values.Set("attrs", strings.Join(f.Attrs, ","))
	}

	if len(f.Metadata) > 0 {
		values.Set("metadata", strings.Join(f.Metadata, ","))
	}

	if f.Query != nil && len(f.Query.statements) > 0 {
		values.Set("q", f.Query.String())
	}

	if f.MQ != nil && len(f.MQ.statements) > 0 {
		values.Set("mq", f.MQ.String())
	}

	if f.GeoRel != "" {
		values.Set("georel", f.GeoRel)
		values.Set("geometry", f.Geometry)
		values.Set("coords", f.Coords)
	}

	if f.DateFrom != nil {
		values.Set("dateFrom", f.DateFrom.UTC().Format(time.RFC3339))
	}

	if f.DateTo != nil {
		values.Set("dateTo", f.DateTo.UTC().Format(time.RFC3339))
	}

	if f.Offset > 0 {
		values.Set("offset", strconv.Itoa(f.Offset))
	}

	if f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}

	if len(f.OrderBy) > 0 {
		values.Set("orderBy", strings.Join(f.OrderBy, ","))
	}

	if len(f.Options) > 0 {
		values.Set("options", strings.Join(f.Options, ","))
	}

	return values, nil
}

// Clone returns a deep copy of the filter. Iterators clone their filter
// up front so later mutation by the caller cannot shift a running
// sequence.
func (f *QueryFilter) Clone() *QueryFilter {
	clone := *f
	clone.IDs = append([]string(nil), f.IDs...)
	clone.Types = append([]string(nil), f.Types...)
	clone.Attrs = append([]string(nil), f.Attrs...)
	clone.Metadata = append([]string(nil), f.Metadata...)
	clone.OrderBy = append([]string(nil), f.OrderBy...)
	clone.Options = append([]string(nil), f.Options...)

	if f.Query != nil {
		clone.Query = NewSimpleQuery(f.Query.statements...)
	}

	if f.MQ != nil {
		clone.MQ = NewSimpleQuery(f.MQ.statements...)
	}

	if f.DateFrom != nil {
		from := *f.DateFrom
		clone.DateFrom = &from
	}

	if f.DateTo != nil {
		to := *f.DateTo
		clone.DateTo = &to
	}

	return &clone
}
