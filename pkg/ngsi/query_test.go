package ngsi

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFilter_ToValues(t *testing.T) {
	q, err := NewStatement("temperature", OpGreater, 20)
	require.NoError(t, err)

	mq, err := NewStatement("accuracy", OpLess, 1)
	require.NoError(t, err)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	filter := NewQueryFilter().
		WithID("Room1", "Room2").
		WithType("Room").
		WithAttrs("temperature", "humidity").
		WithMetadata("accuracy").
		WithQuery(NewSimpleQuery(q)).
		WithMetadataQuery(NewSimpleQuery(mq)).
		WithGeoQuery("near;maxDistance:1000", "point", "41.39, 2.18").
		WithDateRange(from, to).
		WithOffset(40).
		WithLimit(20).
		WithOrderBy("!temperature", "id").
		WithOption(OptionCount, OptionKeyValues)

	values, err := filter.ToValues()
	require.NoError(t, err)

	assert.Equal(t, "Room1,Room2", values.Get("id"))
	assert.Equal(t, "Room", values.Get("type"))
	assert.Equal(t, "temperature,humidity", values.Get("attrs"))
	assert.Equal(t, "accuracy", values.Get("metadata"))
	assert.Equal(t, "temperature>20", values.Get("q"))
	assert.Equal(t, "accuracy<1", values.Get("mq"))
	assert.Equal(t, "near;maxDistance:1000", values.Get("georel"))
	assert.Equal(t, "point", values.Get("geometry"))
	assert.Equal(t, "41.39, 2.18", values.Get("coords"))
	assert.Equal(t, "2026-08-01T00:00:00Z", values.Get("dateFrom"))
	assert.Equal(t, "2026-08-23T10:00:00Z", values.Get("dateTo"))
	assert.Equal(t, "40", values.Get("offset"))
	assert.Equal(t, "20", values.Get("limit"))
	assert.Equal(t, "!temperature,id", values.Get("orderBy"))
	assert.Equal(t, "count,keyValues", values.Get("options"))
}

func TestQueryFilter_ToValues_Empty(t *testing.T) {
	values, err := NewQueryFilter().ToValues()
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestQueryFilter_Validate(t *testing.T) {
	past := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filter  *QueryFilter
		wantErr bool
	}{
		{name: "empty", filter: NewQueryFilter()},
		{name: "ids only", filter: NewQueryFilter().WithID("Room1")},
		{name: "id pattern only", filter: NewQueryFilter().WithIDPattern("Room.*")},
		{
			name:    "ids and id pattern",
			filter:  NewQueryFilter().WithID("Room1").WithIDPattern("Room.*"),
			wantErr: true,
		},
		{
			name:    "types and type pattern",
			filter:  NewQueryFilter().WithType("Room").WithTypePattern("Ro.*"),
			wantErr: true,
		},
		{name: "invalid id", filter: NewQueryFilter().WithID("Room 1"), wantErr: true},
		{
			name:   "complete geo query",
			filter: NewQueryFilter().WithGeoQuery("near;maxDistance:1000", "point", "41.39, 2.18"),
		},
		{
			name:    "partial geo query",
			filter:  &QueryFilter{GeoRel: "near;maxDistance:1000"},
			wantErr: true,
		},
		{
			name:   "date range in order",
			filter: NewQueryFilter().WithDateRange(past, future),
		},
		{
			name:    "date range reversed",
			filter:  NewQueryFilter().WithDateRange(future, past),
			wantErr: true,
		},
		{name: "negative offset", filter: NewQueryFilter().WithOffset(-1), wantErr: true},
		{name: "negative limit", filter: NewQueryFilter().WithLimit(-1), wantErr: true},
		{name: "limit beyond broker maximum", filter: NewQueryFilter().WithLimit(MaxLimit + 1), wantErr: true},
		{name: "limit at broker maximum", filter: NewQueryFilter().WithLimit(MaxLimit)},
		{name: "descending order key", filter: NewQueryFilter().WithOrderBy("!temperature")},
		{name: "invalid order key", filter: NewQueryFilter().WithOrderBy("!bad key"), wantErr: true},
		{name: "unknown option", filter: NewQueryFilter().WithOption("verbose"), wantErr: true},
		{
			name:    "keyValues and values together",
			filter:  NewQueryFilter().WithOption(OptionKeyValues, OptionValues),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.Error(t, err)

				validationErr := &ValidationError{}
				assert.ErrorAs(t, err, &validationErr)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestQueryFilter_ToValues_Deterministic(t *testing.T) {
	build := func() *QueryFilter {
		return NewQueryFilter().
			WithID("Room1", "Room2").
			WithAttrs("temperature").
			WithOption(OptionCount).
			WithLimit(5)
	}

	first, err := build().ToValues()
	require.NoError(t, err)

	second, err := build().ToValues()
	require.NoError(t, err)

	assert.Equal(t, first.Encode(), second.Encode())
}

func TestQueryFilter_WithOption_Deduplicates(t *testing.T) {
	filter := NewQueryFilter().WithOption(OptionCount).WithOption(OptionCount, OptionKeyValues)
	assert.Equal(t, []string{OptionCount, OptionKeyValues}, filter.Options)
}

func TestQueryFilter_Clone(t *testing.T) {
	q, err := NewStatement("temperature", OpGreater, 20)
	require.NoError(t, err)

	original := NewQueryFilter().
		WithID("Room1").
		WithQuery(NewSimpleQuery(q)).
		WithOption(OptionCount)

	clone := original.Clone()
	clone.WithID("Room2").WithOption(OptionKeyValues)

	extra, err := NewStatement("humidity", OpLess, 40)
	require.NoError(t, err)
	clone.Query.Add(extra)

	assert.Equal(t, []string{"Room1"}, original.IDs)
	assert.Equal(t, []string{OptionCount}, original.Options)
	assert.Len(t, original.Query.Statements(), 1)

	assert.Equal(t, []string{"Room1", "Room2"}, clone.IDs)
	assert.Len(t, clone.Query.Statements(), 2)
}

func TestQueryFilter_MutualExclusionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	failsValidation := func(filter *QueryFilter) bool {
		_, err := filter.ToValues()
		if err == nil {
			return false
		}

		validationErr := &ValidationError{}

		return errors.As(err, &validationErr)
	}

	properties.Property("id list and idPattern never co-exist", prop.ForAll(
		func(id, pattern string) bool {
			return failsValidation(NewQueryFilter().WithID(id).WithIDPattern(pattern))
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("type list and typePattern never co-exist", prop.ForAll(
		func(entityType, pattern string) bool {
			return failsValidation(NewQueryFilter().WithType(entityType).WithTypePattern(pattern))
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("keyValues and values never co-exist", prop.ForAll(
		func(keyValuesFirst bool) bool {
			filter := NewQueryFilter()
			if keyValuesFirst {
				filter.WithOption(OptionKeyValues, OptionValues)
			} else {
				filter.WithOption(OptionValues, OptionKeyValues)
			}

			return failsValidation(filter)
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}
