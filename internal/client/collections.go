package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
)

// fetchCollectionPage performs one offset/limit page of a broker
// collection endpoint, always asking for the total count. resource
// names the collection in error messages.
func fetchCollectionPage[T any](ctx context.Context, httpClient *http_internal.Client, path, resource string, offset, limit int) ([]T, int, error) {
	query := url.Values{}
	query.Set("options", "count")
	query.Set("limit", strconv.Itoa(limit))

	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	resp, err := httpClient.Get(ctx, path, query)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s: %w", resource, err)
	}

	var items []T

	err = json.Unmarshal(resp.Body, &items)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing %s list response: %w", resource, err)
	}

	return items, totalCount(resp), nil
}

// totalCount reads the Fiware-Total-Count header, returning -1 when the
// broker did not advertise a total.
func totalCount(resp *http_internal.Response) int {
	value := resp.Headers.Get(constants.HeaderTotalCount)
	if value == "" {
		return -1
	}

	total, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}

	return total
}
