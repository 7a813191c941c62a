// Package quantumleap implements a typed client for the QuantumLeap
// time series API.
//
// QuantumLeap persists context broker notifications into a time series
// database and serves the history back through its /v2 query
// endpoints. The query endpoints cap how many records one response may
// carry, so this client chops large queries into chunks and merges the
// chunks back into a single series before returning them.
package quantumleap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/SystemsPurge/FiLiP/internal/auth"
	"github.com/SystemsPurge/FiLiP/internal/client"
	"github.com/SystemsPurge/FiLiP/internal/constants"
	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Static errors for the time series client.
var (
	// ErrURLRequired is returned when no QuantumLeap URL is configured.
	ErrURLRequired = errors.New("quantumleap URL is required")

	// ErrSeriesMismatch is returned when the chunks of a chopped query
	// do not describe the same series.
	ErrSeriesMismatch = errors.New("time series do not align")
)

// Client talks to one QuantumLeap instance.
type Client struct {
	httpClient *http_internal.Client
	baseURL    string
	chunkLimit int
}

// New creates a QuantumLeap client. Config.BrokerURL carries the
// QuantumLeap base URL here; credentials follow the same precedence as
// the context broker client.
func New(config *ngsi.Config) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	return NewWithTokenManager(config, client.TokenManagerFromConfig(config))
}

// NewWithTokenManager creates a QuantumLeap client with an explicit
// token manager, typically shared with the context broker client so
// both services authenticate against the same identity manager.
func NewWithTokenManager(config *ngsi.Config, tokenManager auth.TokenManager) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	if config.BrokerURL == "" {
		return nil, ErrURLRequired
	}

	err := ngsi.ValidateService(config.Service)
	if err != nil {
		return nil, err
	}

	err = ngsi.ValidateServicePath(config.ServicePath)
	if err != nil {
		return nil, err
	}

	baseURL := http_internal.NormalizeBaseURL(config.BrokerURL)

	chunkLimit := config.PageSize
	if chunkLimit <= 0 {
		chunkLimit = constants.TimeSeriesChunkLimit
	}

	httpOpts := http_internal.OptionsFromConfig(config)

	return &Client{
		httpClient: http_internal.NewClient(baseURL, tokenManager, httpOpts...),
		baseURL:    baseURL,
		chunkLimit: chunkLimit,
	}, nil
}

// GetVersion returns the QuantumLeap build information.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	resp, err := c.httpClient.Get(ctx, "/version", nil)
	if err != nil {
		return nil, fmt.Errorf("getting version: %w", err)
	}

	var version Version

	err = json.Unmarshal(resp.Body, &version)
	if err != nil {
		return nil, fmt.Errorf("parsing version response: %w", err)
	}

	return &version, nil
}

// GetHealth reports the health of the service and its dependencies,
// the time series database included. An unhealthy service answers with
// an error status code, which surfaces as an error here.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	resp, err := c.httpClient.Get(ctx, "/health", nil)
	if err != nil {
		return nil, fmt.Errorf("getting health: %w", err)
	}

	var health Health

	err = json.Unmarshal(resp.Body, &health)
	if err != nil {
		return nil, fmt.Errorf("parsing health response: %w", err)
	}

	return &health, nil
}

// PostNotification feeds a notification message into the /v2/notify
// input endpoint, the same one broker subscriptions deliver to.
func (c *Client) PostNotification(ctx context.Context, message *ngsi.NotificationMessage) error {
	if message == nil {
		return &ngsi.ValidationError{Field: "notification", Reason: "must not be nil"}
	}

	err := message.Validate()
	if err != nil {
		return err
	}

	_, err = c.httpClient.Post(ctx, "/v2/notify", message)
	if err != nil {
		return fmt.Errorf("posting notification for subscription %q: %w", message.SubscriptionID, err)
	}

	return nil
}

// NotifySubscription builds the broker subscription that streams
// matching context changes into this QuantumLeap instance. The caller
// submits it through the context broker client's subscriptions API.
func (c *Client) NotifySubscription(subject ngsi.SubscriptionSubject, attrs []string, throttling int64) (*ngsi.Subscription, error) {
	sub := &ngsi.Subscription{
		Description: "Notify QuantumLeap",
		Subject:     subject,
		Notification: ngsi.SubscriptionNotification{
			HTTP:  &ngsi.NotificationHTTP{URL: c.baseURL + "/v2/notify"},
			Attrs: attrs,
		},
		Throttling: throttling,
	}

	err := sub.Validate()
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// DeleteEntity drops the stored history of one entity. The type
// disambiguates when several entity types share the id; the broker
// copy of the entity is untouched.
func (c *Client) DeleteEntity(ctx context.Context, entityID, entityType string) error {
	err := ngsi.ValidateName(entityID)
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}

	req := &http_internal.Request{
		Method: http.MethodDelete,
		Path:   "/v2/entities/" + url.PathEscape(entityID),
	}

	if entityType != "" {
		err = ngsi.ValidateName(entityType)
		if err != nil {
			return fmt.Errorf("entity type: %w", err)
		}

		req.Query = url.Values{"type": []string{entityType}}
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("deleting entity history: %w", err)
	}

	return nil
}

// DeleteEntityType drops the stored history of every entity of a type.
func (c *Client) DeleteEntityType(ctx context.Context, entityType string) error {
	err := ngsi.ValidateName(entityType)
	if err != nil {
		return fmt.Errorf("entity type: %w", err)
	}

	_, err = c.httpClient.Delete(ctx, "/v2/types/"+url.PathEscape(entityType))
	if err != nil {
		return fmt.Errorf("deleting type history: %w", err)
	}

	return nil
}

// ListEntities lists the entities the time series API has records for.
// Only the type, interval, limit, and offset options apply here.
func (c *Client) ListEntities(ctx context.Context, opts *QueryOptions) ([]TimeSeriesHeader, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}

	narrowed := &QueryOptions{
		Type:     opts.Type,
		FromDate: opts.FromDate,
		ToDate:   opts.ToDate,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}

	pages, err := c.queryPages(ctx, "/v2/entities", narrowed)
	if err != nil {
		return nil, err
	}

	var headers []TimeSeriesHeader

	for _, page := range pages {
		var chunk []TimeSeriesHeader

		err = json.Unmarshal(page, &chunk)
		if err != nil {
			return nil, fmt.Errorf("parsing entity list response: %w", err)
		}

		headers = append(headers, chunk...)
	}

	return headers, nil
}

// GetEntityByID returns the stored history of one entity, every
// attribute column included unless the options project a subset.
func (c *Client) GetEntityByID(ctx context.Context, entityID string, opts *QueryOptions) (*TimeSeries, error) {
	err := ngsi.ValidateName(entityID)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	pages, err := c.queryPages(ctx, "/v2/entities/"+url.PathEscape(entityID), opts)
	if err != nil {
		return nil, err
	}

	return mergeSeriesPages(pages, nil)
}

// GetEntityValuesByID returns the history of one entity without the
// identity envelope, values and index only.
func (c *Client) GetEntityValuesByID(ctx context.Context, entityID string, opts *QueryOptions) (*TimeSeries, error) {
	err := ngsi.ValidateName(entityID)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	pages, err := c.queryPages(ctx, "/v2/entities/"+url.PathEscape(entityID)+"/value", opts)
	if err != nil {
		return nil, err
	}

	// The value endpoints omit the entity identity from the body.
	return mergeSeriesPages(pages, func(ts *TimeSeries) {
		ts.EntityID = entityID
	})
}

// GetAttrByID returns the history of a single attribute of one entity.
func (c *Client) GetAttrByID(ctx context.Context, entityID, attrName string, opts *QueryOptions) (*TimeSeries, error) {
	err := ngsi.ValidateName(entityID)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	err = ngsi.ValidateName(attrName)
	if err != nil {
		return nil, fmt.Errorf("attribute name: %w", err)
	}

	pages, err := c.queryPages(ctx, "/v2/entities/"+url.PathEscape(entityID)+"/attrs/"+url.PathEscape(attrName), opts)
	if err != nil {
		return nil, err
	}

	return mergeAttrPages(pages, entityID, attrName)
}

// GetAttrValuesByID returns the history of a single attribute of one
// entity, values and index only.
func (c *Client) GetAttrValuesByID(ctx context.Context, entityID, attrName string, opts *QueryOptions) (*TimeSeries, error) {
	err := ngsi.ValidateName(entityID)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	err = ngsi.ValidateName(attrName)
	if err != nil {
		return nil, fmt.Errorf("attribute name: %w", err)
	}

	pages, err := c.queryPages(ctx, "/v2/entities/"+url.PathEscape(entityID)+"/attrs/"+url.PathEscape(attrName)+"/value", opts)
	if err != nil {
		return nil, err
	}

	return mergeAttrPages(pages, entityID, attrName)
}

// GetEntityByType returns the stored history of every entity of a
// type, one series per entity.
func (c *Client) GetEntityByType(ctx context.Context, entityType string, opts *QueryOptions) ([]TimeSeries, error) {
	pages, err := c.typePages(ctx, entityType, "", opts)
	if err != nil {
		return nil, err
	}

	return mergeTypePages(pages, func(page *typePage, item json.RawMessage) (*TimeSeries, error) {
		var ts TimeSeries

		err := json.Unmarshal(item, &ts)
		if err != nil {
			return nil, fmt.Errorf("parsing time series response: %w", err)
		}

		ts.EntityType = entityType

		return &ts, nil
	})
}

// GetEntityValuesByType returns the history of every entity of a type,
// values and index only.
func (c *Client) GetEntityValuesByType(ctx context.Context, entityType string, opts *QueryOptions) ([]TimeSeries, error) {
	pages, err := c.typePages(ctx, entityType, "/value", opts)
	if err != nil {
		return nil, err
	}

	return mergeTypePages(pages, func(page *typePage, item json.RawMessage) (*TimeSeries, error) {
		var ts TimeSeries

		err := json.Unmarshal(item, &ts)
		if err != nil {
			return nil, fmt.Errorf("parsing time series response: %w", err)
		}

		ts.EntityType = entityType

		return &ts, nil
	})
}

// GetAttrByType returns the history of a single attribute across every
// entity of a type.
func (c *Client) GetAttrByType(ctx context.Context, entityType, attrName string, opts *QueryOptions) ([]TimeSeries, error) {
	err := ngsi.ValidateName(attrName)
	if err != nil {
		return nil, fmt.Errorf("attribute name: %w", err)
	}

	pages, err := c.typePages(ctx, entityType, "/attrs/"+attrName, opts)
	if err != nil {
		return nil, err
	}

	return mergeTypePages(pages, attrItemDecoder(entityType, attrName))
}

// GetAttrValuesByType returns the history of a single attribute across
// every entity of a type, values and index only.
func (c *Client) GetAttrValuesByType(ctx context.Context, entityType, attrName string, opts *QueryOptions) ([]TimeSeries, error) {
	err := ngsi.ValidateName(attrName)
	if err != nil {
		return nil, fmt.Errorf("attribute name: %w", err)
	}

	pages, err := c.typePages(ctx, entityType, "/attrs/"+attrName+"/value", opts)
	if err != nil {
		return nil, err
	}

	return mergeTypePages(pages, attrItemDecoder(entityType, attrName))
}

// typePages validates the type, strips the redundant type option, and
// runs the chunking loop against a /v2/types subpath.
func (c *Client) typePages(ctx context.Context, entityType, subpath string, opts *QueryOptions) ([]json.RawMessage, error) {
	err := ngsi.ValidateName(entityType)
	if err != nil {
		return nil, fmt.Errorf("entity type: %w", err)
	}

	if opts == nil {
		opts = &QueryOptions{}
	}

	// The path already names the type.
	narrowed := *opts
	narrowed.Type = ""

	return c.queryPages(ctx, "/v2/types/"+url.PathEscape(entityType)+subpath, &narrowed)
}

// queryPages runs one query endpoint through the chunking loop. Each
// request asks for at most chunkLimit records; the raw pages are
// collected for the caller to merge. A Not Found answer after at least
// one page marks the end of the stored records, not a failure.
func (c *Client) queryPages(ctx context.Context, path string, opts *QueryOptions) ([]json.RawMessage, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}

	err := opts.Validate()
	if err != nil {
		return nil, err
	}

	query := opts.toValues()
	offset := opts.Offset

	end := math.MaxInt
	if opts.Limit > 0 {
		end = offset + opts.Limit
	}

	var pages []json.RawMessage

	for offset < end {
		pageLimit := c.chunkLimit
		if remaining := end - offset; remaining < pageLimit {
			pageLimit = remaining
		}

		query.Set("limit", strconv.Itoa(pageLimit))
		query.Set("offset", strconv.Itoa(offset))

		resp, err := c.httpClient.Get(ctx, path, query)
		if err != nil {
			if len(pages) > 0 && isHistoryExhausted(err) {
				break
			}

			return nil, fmt.Errorf("loading entity data: %w", err)
		}

		pages = append(pages, json.RawMessage(resp.Body))
		offset += pageLimit
	}

	return pages, nil
}

// isHistoryExhausted reports whether the error is the service's way of
// saying the offset ran past the stored records.
func isHistoryExhausted(err error) bool {
	brokerErr := &ngsi.BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode == http.StatusNotFound && brokerErr.ErrorType == "Not Found"
	}

	return false
}

// mergeSeriesPages decodes each page as a full series document and
// appends the later chunks onto the first. adjust, when set, fills in
// fields the endpoint omits from its body before the chunks are
// compared.
func mergeSeriesPages(pages []json.RawMessage, adjust func(*TimeSeries)) (*TimeSeries, error) {
	var result *TimeSeries

	for _, page := range pages {
		var chunk TimeSeries

		err := json.Unmarshal(page, &chunk)
		if err != nil {
			return nil, fmt.Errorf("parsing time series response: %w", err)
		}

		if adjust != nil {
			adjust(&chunk)
		}

		if result == nil {
			result = &chunk
			continue
		}

		err = result.Extend(&chunk)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// attrPage is the body shape of the single-attribute endpoints, which
// hoist the attribute name and values to the top level.
type attrPage struct {
	AttrName string          `json:"attrName"`
	EntityID string          `json:"entityId"`
	Index    json.RawMessage `json:"index"`
	Values   []any           `json:"values"`
}

func (p *attrPage) toSeries(entityID, entityType, attrName string) (*TimeSeries, error) {
	index, err := decodeIndex(p.Index)
	if err != nil {
		return nil, err
	}

	if p.EntityID != "" {
		entityID = p.EntityID
	}

	if p.AttrName != "" {
		attrName = p.AttrName
	}

	return &TimeSeries{
		TimeSeriesHeader: TimeSeriesHeader{
			EntityID:   entityID,
			EntityType: entityType,
			Index:      index,
		},
		Attributes: []AttributeValues{{AttrName: attrName, Values: p.Values}},
	}, nil
}

// mergeAttrPages decodes single-attribute pages and appends the later
// chunks onto the first. The value variant omits entity and attribute
// identity, so the request arguments fill the gaps.
func mergeAttrPages(pages []json.RawMessage, entityID, attrName string) (*TimeSeries, error) {
	var result *TimeSeries

	for _, page := range pages {
		var raw attrPage

		err := json.Unmarshal(page, &raw)
		if err != nil {
			return nil, fmt.Errorf("parsing attribute history response: %w", err)
		}

		chunk, err := raw.toSeries(entityID, "", attrName)
		if err != nil {
			return nil, err
		}

		if result == nil {
			result = chunk
			continue
		}

		err = result.Extend(chunk)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// typePage is the body shape of the multi-entity endpoints. The full
// variants list the per-entity documents under entities, the value
// variants under values.
type typePage struct {
	AttrName string            `json:"attrName"`
	Entities []json.RawMessage `json:"entities"`
	Values   []json.RawMessage `json:"values"`
}

func (p *typePage) items() []json.RawMessage {
	if len(p.Entities) > 0 {
		return p.Entities
	}

	return p.Values
}

// mergeTypePages merges multi-entity pages, matching the series across
// chunks by entity id.
func mergeTypePages(pages []json.RawMessage, decodeItem func(*typePage, json.RawMessage) (*TimeSeries, error)) ([]TimeSeries, error) {
	var result []TimeSeries

	positions := make(map[string]int)

	for _, page := range pages {
		var raw typePage

		err := json.Unmarshal(page, &raw)
		if err != nil {
			return nil, fmt.Errorf("parsing time series response: %w", err)
		}

		for _, item := range raw.items() {
			chunk, err := decodeItem(&raw, item)
			if err != nil {
				return nil, err
			}

			pos, seen := positions[chunk.EntityID]
			if !seen {
				positions[chunk.EntityID] = len(result)
				result = append(result, *chunk)

				continue
			}

			err = result[pos].Extend(chunk)
			if err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// attrItemDecoder decodes the per-entity items of the single-attribute
// type endpoints, whose attribute name lives on the page envelope.
func attrItemDecoder(entityType, attrName string) func(*typePage, json.RawMessage) (*TimeSeries, error) {
	return func(page *typePage, item json.RawMessage) (*TimeSeries, error) {
		var raw attrPage

		err := json.Unmarshal(item, &raw)
		if err != nil {
			return nil, fmt.Errorf("parsing attribute history response: %w", err)
		}

		name := page.AttrName
		if name == "" {
			name = attrName
		}

		return raw.toSeries("", entityType, name)
	}
}
