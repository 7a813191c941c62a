// Package iota implements a typed client for the FIWARE IoT Agent
// provisioning API.
//
// An IoT Agent bridges devices speaking a southbound protocol such as
// Ultralight 2.0 onto NGSIv2 context entities. This client drives the
// agent's north port: service groups provision shared defaults for
// every device behind an api key, devices provision the individual
// southbound-to-entity mappings.
package iota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/SystemsPurge/FiLiP/internal/auth"
	"github.com/SystemsPurge/FiLiP/internal/client"
	http_internal "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

// Static errors for the IoT Agent client.
var (
	// ErrURLRequired is returned when no IoT Agent URL is configured.
	ErrURLRequired = errors.New("iot agent URL is required")

	// ErrServiceGroupNotFound is returned when no provisioned group
	// matches a resource/apikey pair.
	ErrServiceGroupNotFound = errors.New("service group not found")
)

// Client talks to one IoT Agent's north port.
type Client struct {
	httpClient *http_internal.Client
}

// New creates an IoT Agent client. Config.BrokerURL carries the agent
// base URL here; credentials follow the same precedence as the context
// broker client.
func New(config *ngsi.Config) (*Client, error) {
	if config == nil {
		return nil, ngsi.ErrConfigRequired
	}

	return NewWithTokenManager(config, client.TokenManagerFromConfig(config))
}

// NewWithTokenManager creates an IoT Agent client with an explicit
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
	httpOpts := http_internal.OptionsFromConfig(config)

	return &Client{
		httpClient: http_internal.NewClient(baseURL, tokenManager, httpOpts...),
	}, nil
}

// About returns the agent build information.
func (c *Client) About(ctx context.Context) (*About, error) {
	resp, err := c.httpClient.Get(ctx, "/iot/about", nil)
	if err != nil {
		return nil, fmt.Errorf("getting agent information: %w", err)
	}

	var about About

	err = json.Unmarshal(resp.Body, &about)
	if err != nil {
		return nil, fmt.Errorf("parsing agent information response: %w", err)
	}

	return &about, nil
}

// CreateServiceGroups provisions one or more service groups. The
// agent answers with a Conflict error when a group with the same
// resource/apikey pair already exists.
func (c *Client) CreateServiceGroups(ctx context.Context, groups []ServiceGroup) error {
	if len(groups) == 0 {
		return &ngsi.ValidationError{Field: "services", Reason: "at least one service group is required"}
	}

	submissions := make([]ServiceGroup, 0, len(groups))

	for i := range groups {
		err := groups[i].Validate()
		if err != nil {
			return err
		}

		submissions = append(submissions, *groupSubmission(&groups[i]))
	}

	payload := struct {
		Services []ServiceGroup `json:"services"`
	}{Services: submissions}

	_, err := c.httpClient.Post(ctx, "/iot/services", payload)
	if err != nil {
		return fmt.Errorf("creating service groups: %w", err)
	}

	return nil
}

// ListServiceGroups lists the service groups of the tenant.
func (c *Client) ListServiceGroups(ctx context.Context) (*ServiceGroupList, error) {
	resp, err := c.httpClient.Get(ctx, "/iot/services", nil)
	if err != nil {
		return nil, fmt.Errorf("listing service groups: %w", err)
	}

	var list ServiceGroupList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing service group list response: %w", err)
	}

	return &list, nil
}

// GetServiceGroup returns the group provisioned for a resource/apikey
// pair, or ErrServiceGroupNotFound when none matches.
func (c *Client) GetServiceGroup(ctx context.Context, resource, apikey string) (*ServiceGroup, error) {
	err := validateGroupKey(resource, apikey)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, "/iot/services", groupKeyQuery(resource, apikey))
	if err != nil {
		return nil, fmt.Errorf("getting service group: %w", err)
	}

	var list ServiceGroupList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing service group response: %w", err)
	}

	// Older agents ignore the query filters, so match locally too.
	for i := range list.Services {
		if list.Services[i].Resource == resource && list.Services[i].APIKey == apikey {
			return &list.Services[i], nil
		}
	}

	return nil, fmt.Errorf("%w: resource %q, apikey %q", ErrServiceGroupNotFound, resource, apikey)
}

// UpdateServiceGroup replaces the mutable fields of the group keyed by
// resource and apikey. patch is a complete group document, typically
// fetched, modified, and resubmitted.
func (c *Client) UpdateServiceGroup(ctx context.Context, resource, apikey string, patch *ServiceGroup) error {
	err := validateGroupKey(resource, apikey)
	if err != nil {
		return err
	}

	if patch == nil {
		return &ngsi.ValidationError{Field: "service group", Reason: "must not be nil"}
	}

	candidate := *patch
	candidate.APIKey = apikey
	candidate.Resource = resource

	err = candidate.Validate()
	if err != nil {
		return err
	}

	submission := groupSubmission(patch)

	// The query names the group; the body must not repeat the key.
	submission.APIKey = ""
	submission.Resource = ""

	req := &http_internal.Request{
		Method: http.MethodPut,
		Path:   "/iot/services",
		Query:  groupKeyQuery(resource, apikey),
		Body:   submission,
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("updating service group: %w", err)
	}

	return nil
}

// DeleteServiceGroup removes the group keyed by resource and apikey.
// Devices provisioned under the group stay behind.
func (c *Client) DeleteServiceGroup(ctx context.Context, resource, apikey string) error {
	err := validateGroupKey(resource, apikey)
	if err != nil {
		return err
	}

	req := &http_internal.Request{
		Method: http.MethodDelete,
		Path:   "/iot/services",
		Query:  groupKeyQuery(resource, apikey),
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("deleting service group: %w", err)
	}

	return nil
}

// CreateDevices provisions one or more devices. The agent answers
// with a Conflict error when a device id is already taken.
func (c *Client) CreateDevices(ctx context.Context, devices []Device) error {
	if len(devices) == 0 {
		return &ngsi.ValidationError{Field: "devices", Reason: "at least one device is required"}
	}

	submissions := make([]Device, 0, len(devices))

	for i := range devices {
		err := devices[i].Validate()
		if err != nil {
			return err
		}

		submissions = append(submissions, *deviceSubmission(&devices[i]))
	}

	payload := struct {
		Devices []Device `json:"devices"`
	}{Devices: submissions}

	_, err := c.httpClient.Post(ctx, "/iot/devices", payload)
	if err != nil {
		return fmt.Errorf("creating devices: %w", err)
	}

	return nil
}

// ListDevices lists the provisioned devices of the tenant.
func (c *Client) ListDevices(ctx context.Context, opts *ListDevicesOptions) (*DeviceList, error) {
	query := url.Values{}

	if opts != nil {
		err := opts.Validate()
		if err != nil {
			return nil, err
		}

		if opts.Limit > 0 {
			query.Set("limit", strconv.Itoa(opts.Limit))
		}

		if opts.Offset > 0 {
			query.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	resp, err := c.httpClient.Get(ctx, "/iot/devices", query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var list DeviceList

	err = json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("parsing device list response: %w", err)
	}

	return &list, nil
}

// GetDevice returns one provisioned device.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	err := ngsi.ValidateName(deviceID)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	resp, err := c.httpClient.Get(ctx, "/iot/devices/"+url.PathEscape(deviceID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}

	var device Device

	err = json.Unmarshal(resp.Body, &device)
	if err != nil {
		return nil, fmt.Errorf("parsing device response: %w", err)
	}

	return &device, nil
}

// UpdateDevice replaces the mutable fields of a provisioned device.
// patch is a complete device document, typically fetched, modified,
// and resubmitted; its device id names the device to update.
func (c *Client) UpdateDevice(ctx context.Context, patch *Device) error {
	if patch == nil {
		return &ngsi.ValidationError{Field: "device", Reason: "must not be nil"}
	}

	err := patch.Validate()
	if err != nil {
		return err
	}

	submission := deviceSubmission(patch)

	// The path names the device; the body must not repeat the id.
	submission.DeviceID = ""

	req := &http_internal.Request{
		Method: http.MethodPut,
		Path:   "/iot/devices/" + url.PathEscape(patch.DeviceID),
		Body:   submission,
	}

	_, err = c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return nil
}

// DeleteDevice removes a provisioned device. The entity it
// materialized stays behind in the context broker.
func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	err := ngsi.ValidateName(deviceID)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	_, err = c.httpClient.Delete(ctx, "/iot/devices/"+url.PathEscape(deviceID))
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	return nil
}

func validateGroupKey(resource, apikey string) error {
	if resource == "" {
		return &ngsi.ValidationError{Field: "resource", Reason: "must not be empty"}
	}

	if apikey == "" {
		return &ngsi.ValidationError{Field: "apikey", Reason: "must not be empty"}
	}

	return nil
}

func groupKeyQuery(resource, apikey string) url.Values {
	return url.Values{
		"resource": []string{resource},
		"apikey":   []string{apikey},
	}
}

// deviceSubmission copies the device with the tenant fields cleared;
// the agent derives them from the Fiware headers.
func deviceSubmission(device *Device) *Device {
	clean := *device
	clean.Service = ""
	clean.ServicePath = ""

	return &clean
}

// groupSubmission copies the group with the tenant fields cleared;
// the agent derives them from the Fiware headers.
func groupSubmission(group *ServiceGroup) *ServiceGroup {
	clean := *group
	clean.Service = ""
	clean.Subservice = ""

	return &clean
}
