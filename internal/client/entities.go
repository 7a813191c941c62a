package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// EntitiesClient implements the ngsi.EntitiesClient interface.
type EntitiesClient struct {
	httpClient *http_internal.Client
	pageSize   int
}

// NewEntitiesClient creates a new EntitiesClient. pageSize is the
// default page size for query iterators.
func NewEntitiesClient(httpClient *http_internal.Client, pageSize int) *EntitiesClient {
	return &EntitiesClient{
		httpClient: httpClient,
		pageSize:   pageSize,
	}
}

// Create creates a new entity. The broker answers with a Conflict error
// when an entity with the same id and type already exists; existing
// entities are never overwritten.
func (c *EntitiesClient) Create(ctx context.Context, entity *ngsi.Entity) error {
	if entity == nil {
		return &ngsi.ValidationError{Field: "entity", Reason: "must not be nil"}
	}

	err := entity.Validate()
	if err != nil {
		return err
	}

	_, err = c.httpClient.Post(ctx, "/v2/entities", entity)
	if err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}

	return nil
}

// Get retrieves a single entity in normalized form.
func (c *EntitiesClient) Get(ctx context.Context, id string, opts *ngsi.GetEntityOptions) (*ngsi.Entity, error) {
	err := ngsi.ValidateName(id)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	resp, err := c.httpClient.Get(ctx, "/v2/entities/"+url.PathEscape(id), entityQuery(opts, nil))
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}

	var entity ngsi.Entity

	err = json.Unmarshal(resp.Body, &entity)
	if err != nil {
		return nil, fmt.Errorf("parsing entity response: %w", err)
	}

	return &entity, nil
}

// GetKeyValues retrieves a single entity in the simplified keyValues
// form, with bare values in place of full attributes.
func (c *EntitiesClient) GetKeyValues(ctx context.Context, id string, opts *ngsi.GetEntityOptions) (*ngsi.EntityKeyValues, error) {
	err := ngsi.ValidateName(id)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	query := entityQuery(opts, url.Values{"options": []string{ngsi.OptionKeyValues}})

	resp, err := c.httpClient.Get(ctx, "/v2/entities/"+url.PathEscape(id), query)
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}

	var entity ngsi.EntityKeyValues

	err = json.Unmarshal(resp.Body, &entity)
	if err != nil {
		return nil, fmt.Errorf("parsing entity response: %w", err)
	}

	return &entity, nil
}

// Update modifies entity attributes according to the mode: overwrite
// patches attributes in place, append upserts them, and appendStrict
// appends only, surfacing the broker's Unprocessable error when an
// attribute already exists.
func (c *EntitiesClient) Update(ctx context.Context, id string, attrs map[string]ngsi.Attribute, mode ngsi.UpdateMode) error {
	err := validateAttributeMap(id, attrs)
	if err != nil {
		return err
	}

	if len(attrs) == 0 {
		return &ngsi.ValidationError{Field: "attributes", Reason: "at least one attribute is required"}
	}

	path := "/v2/entities/" + url.PathEscape(id) + "/attrs"

	switch mode {
	case ngsi.UpdateOverwrite:
		_, err = c.httpClient.Patch(ctx, path, attrs)
	case ngsi.UpdateAppend:
		_, err = c.httpClient.Post(ctx, path, attrs)
	case ngsi.UpdateAppendStrict:
		_, err = c.httpClient.Do(ctx, &http_internal.Request{
			Method: http.MethodPost,
			Path:   path,
			Query:  url.Values{"options": []string{"append"}},
			Body:   attrs,
		})
	default:
		return &ngsi.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown update mode %q", mode)}
	}

	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}

	return nil
}

// Replace substitutes the complete attribute set of the entity. An
// empty map removes every attribute.
func (c *EntitiesClient) Replace(ctx context.Context, id string, attrs map[string]ngsi.Attribute) error {
	err := validateAttributeMap(id, attrs)
	if err != nil {
		return err
	}

	_, err = c.httpClient.Put(ctx, "/v2/entities/"+url.PathEscape(id)+"/attrs", attrs)
	if err != nil {
		return fmt.Errorf("replacing entity attributes: %w", err)
	}

	return nil
}

// Delete removes an entity. The type option disambiguates when several
// entity types share the id.
func (c *EntitiesClient) Delete(ctx context.Context, id string, opts *ngsi.DeleteEntityOptions) error {
	err := ngsi.ValidateName(id)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}

	req := &http_internal.Request{
		Method: http.MethodDelete,
		Path:   "/v2/entities/" + url.PathEscape(id),
	}

	if opts != nil && opts.Type != "" {
		req.Query = url.Values{"type": []string{opts.Type}}
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}

	return nil
}

// Query returns an iterator over the entities matching the filter. A
// nil filter matches every entity in the tenant; filter validation
// errors surface through the iterator's first HasNext or Next call. The
// filter's limit, when set, becomes the iterator's page size.
func (c *EntitiesClient) Query(ctx context.Context, filter *ngsi.QueryFilter) *ngsi.EntityIterator {
	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.Entity, int, error) {
		return fetchEntityPage[ngsi.Entity](ctx, c.httpClient, filter, "", offset, limit)
	}

	return ngsi.NewPageIterator(ctx, fetch, c.paginationOptions(filter))
}

// QueryKeyValues is Query in the simplified keyValues form.
func (c *EntitiesClient) QueryKeyValues(ctx context.Context, filter *ngsi.QueryFilter) *ngsi.KeyValuesIterator {
	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.EntityKeyValues, int, error) {
		return fetchEntityPage[ngsi.EntityKeyValues](ctx, c.httpClient, filter, ngsi.OptionKeyValues, offset, limit)
	}

	return ngsi.NewPageIterator(ctx, fetch, c.paginationOptions(filter))
}

// GetAttribute retrieves a single attribute of an entity.
func (c *EntitiesClient) GetAttribute(ctx context.Context, id, name string, opts *ngsi.AttributeOptions) (*ngsi.Attribute, error) {
	err := validateAttributeTarget(id, name)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, attributePath(id, name), attributeQuery(opts))
	if err != nil {
		return nil, fmt.Errorf("getting attribute: %w", err)
	}

	var attr ngsi.Attribute

	err = json.Unmarshal(resp.Body, &attr)
	if err != nil {
		return nil, fmt.Errorf("parsing attribute response: %w", err)
	}

	return &attr, nil
}

// UpdateAttribute replaces a single attribute of an entity.
func (c *EntitiesClient) UpdateAttribute(ctx context.Context, id, name string, attr ngsi.Attribute, opts *ngsi.AttributeOptions) error {
	err := validateAttributeTarget(id, name)
	if err != nil {
		return err
	}

	err = attr.Validate()
	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}

	req := &http_internal.Request{
		Method: http.MethodPut,
		Path:   attributePath(id, name),
		Query:  attributeQuery(opts),
		Body:   attr,
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("updating attribute: %w", err)
	}

	return nil
}

// DeleteAttribute removes a single attribute from an entity.
func (c *EntitiesClient) DeleteAttribute(ctx context.Context, id, name string, opts *ngsi.AttributeOptions) error {
	err := validateAttributeTarget(id, name)
	if err != nil {
		return err
	}

	req := &http_internal.Request{
		Method: http.MethodDelete,
		Path:   attributePath(id, name),
		Query:  attributeQuery(opts),
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("deleting attribute: %w", err)
	}

	return nil
}

// GetAttributeValue retrieves the bare value of an attribute. The value
// endpoint carries no declared type, so the result decodes by JSON
// shape and special types such as DateTime come back as Text.
func (c *EntitiesClient) GetAttributeValue(ctx context.Context, id, name string, opts *ngsi.AttributeOptions) (ngsi.AttributeValue, error) {
	err := validateAttributeTarget(id, name)
	if err != nil {
		return ngsi.AttributeValue{}, err
	}

	resp, err := c.httpClient.Get(ctx, attributePath(id, name)+"/value", attributeQuery(opts))
	if err != nil {
		return ngsi.AttributeValue{}, fmt.Errorf("getting attribute value: %w", err)
	}

	value, err := ngsi.DecodeValue("", resp.Body)
	if err != nil {
		return ngsi.AttributeValue{}, fmt.Errorf("parsing attribute value response: %w", err)
	}

	return value, nil
}

// UpdateAttributeValue replaces the bare value of an attribute, leaving
// its type and metadata untouched.
func (c *EntitiesClient) UpdateAttributeValue(ctx context.Context, id, name string, value ngsi.AttributeValue, opts *ngsi.AttributeOptions) error {
	err := validateAttributeTarget(id, name)
	if err != nil {
		return err
	}

	err = value.Validate()
	if err != nil {
		return err
	}

	req := &http_internal.Request{
		Method: http.MethodPut,
		Path:   attributePath(id, name) + "/value",
		Query:  attributeQuery(opts),
		Body:   value,
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("updating attribute value: %w", err)
	}

	return nil
}

// paginationOptions derives the iterator page size from the filter
// limit, falling back to the client default.
func (c *EntitiesClient) paginationOptions(filter *ngsi.QueryFilter) *ngsi.PaginationOptions {
	pageSize := c.pageSize

	if filter != nil && filter.Limit > 0 {
		pageSize = filter.Limit
	}

	return &ngsi.PaginationOptions{PageSize: pageSize}
}

// fetchEntityPage performs one page of GET /v2/entities, always asking
// the broker for the total count. format selects the representation,
// e.g. keyValues.
func fetchEntityPage[T any](ctx context.Context, httpClient *http_internal.Client, filter *ngsi.QueryFilter, format string, offset, limit int) ([]T, int, error) {
	if filter == nil {
		filter = ngsi.NewQueryFilter()
	}

	page := filter.Clone().
		WithOffset(offset).
		WithLimit(limit).
		WithOption(ngsi.OptionCount)

	if format != "" {
		page = page.WithOption(format)
	}

	query, err := page.ToValues()
	if err != nil {
		return nil, 0, err
	}

	resp, err := httpClient.Get(ctx, "/v2/entities", query)
	if err != nil {
		return nil, 0, fmt.Errorf("querying entities: %w", err)
	}

	var items []T

	err = json.Unmarshal(resp.Body, &items)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing entities response: %w", err)
	}

	return items, totalCount(resp), nil
}

// entityQuery renders the projection options shared by the
// single-entity endpoints on top of any preset query values.
func entityQuery(opts *ngsi.GetEntityOptions, query url.Values) url.Values {
	if query == nil {
		query = url.Values{}
	}

	if opts != nil {
		if opts.Type != "" {
			query.Set("type", opts.Type)
		}

		if len(opts.Attrs) > 0 {
			query.Set("attrs", strings.Join(opts.Attrs, ","))
		}

		if len(opts.Metadata) > 0 {
			query.Set("metadata", strings.Join(opts.Metadata, ","))
		}
	}

	if len(query) == 0 {
		return nil
	}

	return query
}

// attributePath is the URL path of a single entity attribute.
func attributePath(id, name string) string {
	return "/v2/entities/" + url.PathEscape(id) + "/attrs/" + url.PathEscape(name)
}

// attributeQuery renders the type disambiguation option.
func attributeQuery(opts *ngsi.AttributeOptions) url.Values {
	if opts == nil || opts.Type == "" {
		return nil
	}

	return url.Values{"type": []string{opts.Type}}
}

// validateAttributeTarget checks the id and attribute name addressing
// an attribute-level operation.
func validateAttributeTarget(id, name string) error {
	err := ngsi.ValidateName(id)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}

	err = ngsi.ValidateAttributeName(name)
	if err != nil {
		return fmt.Errorf("attribute name: %w", err)
	}

	return nil
}

// validateAttributeMap checks the entity id and every attribute of an
// update payload before it goes on the wire.
func validateAttributeMap(id string, attrs map[string]ngsi.Attribute) error {
	err := ngsi.ValidateName(id)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}

	for name, attr := range attrs {
		err = ngsi.ValidateAttributeName(name)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}

		err = attr.Validate()
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
	}

	return nil
}
