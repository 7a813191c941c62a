package ngsi

import (
	"fmt"
	"net/url"
	"time"
)

// DataProvided describes the entities and attributes a context provider
// can answer for.
type DataProvided struct {
	Entities []SubjectEntity `json:"entities"        yaml:"entities"`
	Attrs    []string        `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// ProviderHTTP is the endpoint of a context provider.
type ProviderHTTP struct {
	URL string `json:"url" yaml:"url"`
}

// RegistrationProvider points the broker at a context provider and
// declares which forwarding operations it supports.
type RegistrationProvider struct {
	HTTP                    ProviderHTTP `json:"http"                              yaml:"http"`
	SupportedForwardingMode string       `json:"supportedForwardingMode,omitempty" yaml:"supportedForwardingMode,omitempty"`
}

// ForwardingInformation carries the broker-owned forwarding counters of
// a registration.
type ForwardingInformation struct {
	TimesSent      int    `json:"timesSent,omitempty"      yaml:"timesSent,omitempty"`
	LastForwarding string `json:"lastForwarding,omitempty" yaml:"lastForwarding,omitempty"`
	LastSuccess    string `json:"lastSuccess,omitempty"    yaml:"lastSuccess,omitempty"`
	LastFailure    string `json:"lastFailure,omitempty"    yaml:"lastFailure,omitempty"`
}

// Registration is an NGSIv2 context provider registration. ID, Status,
// and ForwardingInformation are assigned by the broker.
type Registration struct {
	ID                    string                 `json:"id,omitempty"                    yaml:"id,omitempty"`
	Description           string                 `json:"description,omitempty"           yaml:"description,omitempty"`
	DataProvided          DataProvided           `json:"dataProvided"                    yaml:"dataProvided"`
	Provider              RegistrationProvider   `json:"provider"                        yaml:"provider"`
	Expires               *time.Time             `json:"expires,omitempty"               yaml:"expires,omitempty"`
	Status                string                 `json:"status,omitempty"                yaml:"status,omitempty"`
	ForwardingInformation *ForwardingInformation `json:"forwardingInformation,omitempty" yaml:"forwardingInformation,omitempty"`
}

// Validate checks the registration against the constraints the broker
// enforces on submission.
func (r *Registration) Validate() error {
	if len(r.DataProvided.Entities) == 0 {
		return &ValidationError{Field: "dataProvided.entities", Reason: "at least one entity is required"}
	}

	for _, entity := range r.DataProvided.Entities {
		err := entity.Validate()
		if err != nil {
			return err
		}
	}

	parsed, err := url.Parse(r.Provider.HTTP.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ValidationError{
			Field:  "provider.http.url",
			Reason: fmt.Sprintf("%q is not a valid endpoint", r.Provider.HTTP.URL),
		}
	}

	return nil
}
