package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// TypesClient implements the ngsi.TypesClient interface.
type TypesClient struct {
	httpClient *http_internal.Client
	pageSize   int
}

// NewTypesClient creates a new TypesClient.
func NewTypesClient(httpClient *http_internal.Client, pageSize int) *TypesClient {
	return &TypesClient{
		httpClient: httpClient,
		pageSize:   pageSize,
	}
}

// List retrieves every entity type in the tenant, draining the
// paginated /v2/types endpoint.
func (c *TypesClient) List(ctx context.Context, opts *ngsi.PaginationOptions) ([]ngsi.EntityType, error) {
	if opts == nil {
		opts = &ngsi.PaginationOptions{PageSize: c.pageSize}
	}

	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.EntityType, int, error) {
		return fetchCollectionPage[ngsi.EntityType](ctx, c.httpClient, "/v2/types", "entity types", offset, limit)
	}

	return ngsi.FetchAllPages(ctx, fetch, opts)
}

// Get retrieves the attribute summary of one entity type. The broker
// omits the type name in this form, so it is filled in from the
// argument.
func (c *TypesClient) Get(ctx context.Context, entityType string) (*ngsi.EntityType, error) {
	err := ngsi.ValidateName(entityType)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}

	resp, err := c.httpClient.Get(ctx, "/v2/types/"+url.PathEscape(entityType), nil)
	if err != nil {
		return nil, fmt.Errorf("getting entity type: %w", err)
	}

	var info ngsi.EntityType

	err = json.Unmarshal(resp.Body, &info)
	if err != nil {
		return nil, fmt.Errorf("parsing entity type response: %w", err)
	}

	if info.Type == "" {
		info.Type = entityType
	}

	return &info, nil
}
