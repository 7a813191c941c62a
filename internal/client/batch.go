package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// BatchClient implements the ngsi.BatchClient interface.
type BatchClient struct {
	httpClient *http_internal.Client
}

// NewBatchClient creates a new BatchClient.
func NewBatchClient(httpClient *http_internal.Client) *BatchClient {
	return &BatchClient{httpClient: httpClient}
}

// Update applies one action to a set of entities in a single
// POST /v2/op/update exchange. Entities that fail local validation are
// withheld from the request and reported in the result; entities the
// broker rejects are parsed out of its error description. Whenever any
// entity failed the returned error is a BatchError and the result
// reports the per-entity reasons.
func (c *BatchClient) Update(ctx context.Context, action ngsi.BatchAction, entities []ngsi.Entity) (*ngsi.BatchResult, error) {
	err := action.Validate()
	if err != nil {
		return nil, err
	}

	if len(entities) == 0 {
		return nil, ngsi.ErrEmptyBatch
	}

	result := &ngsi.BatchResult{Action: action, Submitted: len(entities)}
	valid := make([]ngsi.Entity, 0, len(entities))

	for i := range entities {
		err = entities[i].Validate()
		if err != nil {
			result.Failed = append(result.Failed, ngsi.FailedEntity{
				ID:     entities[i].ID,
				Type:   entities[i].Type,
				Reason: err.Error(),
			})

			continue
		}

		valid = append(valid, entities[i])
	}

	if len(valid) > 0 {
		_, err = c.httpClient.Post(ctx, "/v2/op/update", &ngsi.BatchRequest{ActionType: action, Entities: valid})
		if err != nil {
			rejected := brokerRejections(err)
			if rejected == nil {
				return nil, fmt.Errorf("executing batch update: %w", err)
			}

			result.Failed = append(result.Failed, rejected...)
		}
	}

	result.Succeeded = result.Submitted - len(result.Failed)

	return result, result.Err()
}

// Query retrieves the entities matching a batch query document,
// draining the paginated POST /v2/op/query endpoint. Batch queries are
// read-only, so pages are retried like any idempotent request.
func (c *BatchClient) Query(ctx context.Context, req *ngsi.BatchQueryRequest, opts *ngsi.PaginationOptions) ([]ngsi.Entity, error) {
	if req == nil {
		req = &ngsi.BatchQueryRequest{}
	}

	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.Entity, int, error) {
		query := url.Values{}
		query.Set("options", "count")
		query.Set("limit", strconv.Itoa(limit))

		if offset > 0 {
			query.Set("offset", strconv.Itoa(offset))
		}

		resp, err := c.httpClient.Do(ctx, &http_internal.Request{
			Method:     http.MethodPost,
			Path:       "/v2/op/query",
			Query:      query,
			Body:       req,
			Idempotent: true,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("executing batch query: %w", err)
		}

		var items []ngsi.Entity

		err = json.Unmarshal(resp.Body, &items)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing batch query response: %w", err)
		}

		return items, totalCount(resp), nil
	}

	return ngsi.FetchAllPages(ctx, fetch, opts)
}

// brokerRejections extracts per-entity failures from a broker batch
// error, or nil when the error is not a parseable partial rejection.
func brokerRejections(err error) []ngsi.FailedEntity {
	var brokerErr *ngsi.BrokerError
	if !errors.As(err, &brokerErr) {
		return nil
	}

	return ngsi.ParseBatchFailures(brokerErr.Description)
}
