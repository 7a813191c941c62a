package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// SubscriptionsClient implements the ngsi.SubscriptionsClient interface.
type SubscriptionsClient struct {
	httpClient *http_internal.Client
	pageSize   int
}

// NewSubscriptionsClient creates a new SubscriptionsClient.
func NewSubscriptionsClient(httpClient *http_internal.Client, pageSize int) *SubscriptionsClient {
	return &SubscriptionsClient{
		httpClient: httpClient,
		pageSize:   pageSize,
	}
}

// Create registers a subscription and returns the broker-assigned id,
// taken from the Location header of the response.
func (c *SubscriptionsClient) Create(ctx context.Context, sub *ngsi.Subscription) (string, error) {
	if sub == nil {
		return "", &ngsi.ValidationError{Field: "subscription", Reason: "must not be nil"}
	}

	err := sub.Validate()
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Post(ctx, "/v2/subscriptions", subscriptionSubmission(sub))
	if err != nil {
		return "", fmt.Errorf("creating subscription: %w", err)
	}

	location := resp.Headers.Get("Location")
	if location == "" {
		return "", ngsi.ErrMissingLocationHeader
	}

	return location[strings.LastIndexByte(location, '/')+1:], nil
}

// Get retrieves a subscription, including the broker-owned status and
// delivery counters.
func (c *SubscriptionsClient) Get(ctx context.Context, id string) (*ngsi.Subscription, error) {
	if id == "" {
		return nil, &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	resp, err := c.httpClient.Get(ctx, "/v2/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting subscription: %w", err)
	}

	var sub ngsi.Subscription

	err = json.Unmarshal(resp.Body, &sub)
	if err != nil {
		return nil, fmt.Errorf("parsing subscription response: %w", err)
	}

	return &sub, nil
}

// Update replaces the mutable fields of a subscription. patch is a
// complete subscription document, typically fetched, modified, and
// resubmitted; its broker-owned fields are stripped before submission.
func (c *SubscriptionsClient) Update(ctx context.Context, id string, patch *ngsi.Subscription) error {
	if id == "" {
		return &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	if patch == nil {
		return &ngsi.ValidationError{Field: "subscription", Reason: "must not be nil"}
	}

	err := patch.Validate()
	if err != nil {
		return err
	}

	_, err = c.httpClient.Patch(ctx, "/v2/subscriptions/"+url.PathEscape(id), subscriptionSubmission(patch))
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}

	return nil
}

// Delete removes a subscription.
func (c *SubscriptionsClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	_, err := c.httpClient.Delete(ctx, "/v2/subscriptions/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	return nil
}

// List returns an iterator over all subscriptions in the tenant.
func (c *SubscriptionsClient) List(ctx context.Context, opts *ngsi.PaginationOptions) *ngsi.SubscriptionIterator {
	if opts == nil {
		opts = &ngsi.PaginationOptions{PageSize: c.pageSize}
	}

	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.Subscription, int, error) {
		return fetchCollectionPage[ngsi.Subscription](ctx, c.httpClient, "/v2/subscriptions", "subscriptions", offset, limit)
	}

	return ngsi.NewPageIterator(ctx, fetch, opts)
}

// subscriptionSubmission copies the subscription with the broker-owned
// fields cleared, so a fetched subscription can be resubmitted as-is.
func subscriptionSubmission(sub *ngsi.Subscription) *ngsi.Subscription {
	clean := *sub
	clean.ID = ""
	clean.Notification.TimesSent = 0
	clean.Notification.LastNotification = ""
	clean.Notification.LastSuccess = ""
	clean.Notification.LastSuccessCode = 0
	clean.Notification.LastFailure = ""
	clean.Notification.LastFailureReason = ""

	return &clean
}
