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

// RegistrationsClient implements the ngsi.RegistrationsClient interface.
type RegistrationsClient struct {
	httpClient *http_internal.Client
	pageSize   int
}

// NewRegistrationsClient creates a new RegistrationsClient.
func NewRegistrationsClient(httpClient *http_internal.Client, pageSize int) *RegistrationsClient {
	return &RegistrationsClient{
		httpClient: httpClient,
		pageSize:   pageSize,
	}
}

// Create registers a context provider and returns the broker-assigned
// id, taken from the Location header of the response.
func (c *RegistrationsClient) Create(ctx context.Context, reg *ngsi.Registration) (string, error) {
	if reg == nil {
		return "", &ngsi.ValidationError{Field: "registration", Reason: "must not be nil"}
	}

	err := reg.Validate()
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Post(ctx, "/v2/registrations", registrationSubmission(reg))
	if err != nil {
		return "", fmt.Errorf("creating registration: %w", err)
	}

	location := resp.Headers.Get("Location")
	if location == "" {
		return "", ngsi.ErrMissingLocationHeader
	}

	return location[strings.LastIndexByte(location, '/')+1:], nil
}

// Get retrieves a registration, including the broker-owned status and
// forwarding counters.
func (c *RegistrationsClient) Get(ctx context.Context, id string) (*ngsi.Registration, error) {
	if id == "" {
		return nil, &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	resp, err := c.httpClient.Get(ctx, "/v2/registrations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting registration: %w", err)
	}

	var reg ngsi.Registration

	err = json.Unmarshal(resp.Body, &reg)
	if err != nil {
		return nil, fmt.Errorf("parsing registration response: %w", err)
	}

	return &reg, nil
}

// Update replaces the mutable fields of a registration. patch is a
// complete registration document; its broker-owned fields are stripped
// before submission.
func (c *RegistrationsClient) Update(ctx context.Context, id string, patch *ngsi.Registration) error {
	if id == "" {
		return &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	if patch == nil {
		return &ngsi.ValidationError{Field: "registration", Reason: "must not be nil"}
	}

	err := patch.Validate()
	if err != nil {
		return err
	}

	_, err = c.httpClient.Patch(ctx, "/v2/registrations/"+url.PathEscape(id), registrationSubmission(patch))
	if err != nil {
		return fmt.Errorf("updating registration: %w", err)
	}

	return nil
}

// Delete removes a registration.
func (c *RegistrationsClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ngsi.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	_, err := c.httpClient.Delete(ctx, "/v2/registrations/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("deleting registration: %w", err)
	}

	return nil
}

// List returns an iterator over all registrations in the tenant.
func (c *RegistrationsClient) List(ctx context.Context, opts *ngsi.PaginationOptions) *ngsi.RegistrationIterator {
	if opts == nil {
		opts = &ngsi.PaginationOptions{PageSize: c.pageSize}
	}

	fetch := func(ctx context.Context, offset, limit int) ([]ngsi.Registration, int, error) {
		return fetchCollectionPage[ngsi.Registration](ctx, c.httpClient, "/v2/registrations", "registrations", offset, limit)
	}

	return ngsi.NewPageIterator(ctx, fetch, opts)
}

// registrationSubmission copies the registration with the broker-owned
// fields cleared, so a fetched registration can be resubmitted as-is.
func registrationSubmission(reg *ngsi.Registration) *ngsi.Registration {
	clean := *reg
	clean.ID = ""
	clean.Status = ""
	clean.ForwardingInformation = nil

	return &clean
}
