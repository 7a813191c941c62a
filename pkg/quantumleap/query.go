package quantumleap

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// QueryOptions narrows a historical query. The zero value selects the
// full history of the target.
type QueryOptions struct {
	// Type disambiguates a by-id query when several types share the id.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// IDs narrows a by-type query to the listed entity ids.
	IDs []string `json:"ids,omitempty" yaml:"ids,omitempty"`

	// Attrs projects the result onto the named attributes.
	Attrs []string `json:"attrs,omitempty" yaml:"attrs,omitempty"`

	// AggrMethod replaces the raw records with an aggregate.
	AggrMethod AggrMethod `json:"aggrMethod,omitempty" yaml:"aggrMethod,omitempty"`

	// AggrPeriod buckets the aggregate by time; requires AggrMethod.
	AggrPeriod AggrPeriod `json:"aggrPeriod,omitempty" yaml:"aggrPeriod,omitempty"`

	// AggrScope aggregates per entity instance or across all matches.
	AggrScope AggrScope `json:"aggrScope,omitempty" yaml:"aggrScope,omitempty"`

	// FromDate and ToDate bound the query interval, inclusive.
	FromDate time.Time `json:"fromDate,omitempty" yaml:"fromDate,omitempty"`
	ToDate   time.Time `json:"toDate,omitempty"   yaml:"toDate,omitempty"`

	// LastN keeps only the most recent records.
	LastN int `json:"lastN,omitempty" yaml:"lastN,omitempty"`

	// Limit caps the total number of records fetched across all
	// chunked requests. Zero fetches everything.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`

	// Offset skips the oldest records.
	Offset int `json:"offset,omitempty" yaml:"offset,omitempty"`

	// GeoRel, Geometry, and Coords express a spatial filter and must
	// be set together.
	GeoRel   string `json:"georel,omitempty"   yaml:"georel,omitempty"`
	Geometry string `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	Coords   string `json:"coords,omitempty"   yaml:"coords,omitempty"`
}

// Validate checks the options before any request is sent.
func (o *QueryOptions) Validate() error {
	if o.AggrMethod != "" {
		err := o.AggrMethod.Validate()
		if err != nil {
			return err
		}
	}

	if o.AggrPeriod != "" {
		err := o.AggrPeriod.Validate()
		if err != nil {
			return err
		}

		if o.AggrMethod == "" {
			return &ngsi.ValidationError{Field: "aggrPeriod", Reason: "requires an aggregation method"}
		}
	}

	if o.AggrScope != "" {
		err := o.AggrScope.Validate()
		if err != nil {
			return err
		}
	}

	geoSet := 0
	for _, part := range []string{o.GeoRel, o.Geometry, o.Coords} {
		if part != "" {
			geoSet++
		}
	}

	if geoSet != 0 && geoSet != 3 {
		return &ngsi.ValidationError{Field: "georel", Reason: "georel, geometry, and coords must be set together"}
	}

	if !o.FromDate.IsZero() && !o.ToDate.IsZero() && o.ToDate.Before(o.FromDate) {
		return &ngsi.ValidationError{Field: "toDate", Reason: "must not precede fromDate"}
	}

	if o.LastN < 0 {
		return &ngsi.ValidationError{Field: "lastN", Reason: "must not be negative"}
	}

	if o.Limit < 0 {
		return &ngsi.ValidationError{Field: "limit", Reason: "must not be negative"}
	}

	if o.Offset < 0 {
		return &ngsi.ValidationError{Field: "offset", Reason: "must not be negative"}
	}

	return nil
}

// toValues renders the wire parameters except the limit/offset pair,
// which the chunking loop owns.
func (o *QueryOptions) toValues() url.Values {
	values := url.Values{}

	if o.Type != "" {
		values.Set("type", o.Type)
	}

	if len(o.IDs) > 0 {
		values.Set("id", strings.Join(o.IDs, ","))
	}

	if len(o.Attrs) > 0 {
		values.Set("attrs", strings.Join(o.Attrs, ","))
	}

	if o.AggrMethod != "" {
		values.Set("aggrMethod", string(o.AggrMethod))
	}

	if o.AggrPeriod != "" {
		values.Set("aggrPeriod", string(o.AggrPeriod))
	}

	if o.AggrScope != "" {
		values.Set("aggrScope", string(o.AggrScope))
	}

	if !o.FromDate.IsZero() {
		values.Set("fromDate", o.FromDate.UTC().Format(time.RFC3339))
	}

	if !o.ToDate.IsZero() {
		values.Set("toDate", o.ToDate.UTC().Format(time.RFC3339))
	}

	if o.LastN > 0 {
		values.Set("lastN", strconv.Itoa(o.LastN))
	}

	if o.GeoRel != "" {
		values.Set("georel", o.GeoRel)
		values.Set("geometry", o.Geometry)
		values.Set("coords", o.Coords)
	}

	return values
}
