package ngsi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrDeprecatedClientConstructor = errors.New("use github.com/SystemsPurge/FiLiP/pkg/cbclient.New to create a client")
)

// Iterator types for the paginated broker collections.
type (
	EntityIterator       = PageIterator[Entity]
	KeyValuesIterator    = PageIterator[EntityKeyValues]
	SubscriptionIterator = PageIterator[Subscription]
	RegistrationIterator = PageIterator[Registration]
)

// GetEntityOptions narrows a single-entity fetch.
type GetEntityOptions struct {
	// Type disambiguates the entity when the same id exists under
	// several types.
	Type string
	// Attrs projects the result onto the named attributes.
	Attrs []string
	// Metadata projects the named metadata into the result.
	Metadata []string
}

// DeleteEntityOptions narrows an entity deletion.
type DeleteEntityOptions struct {
	Type string
}

// AttributeOptions disambiguates attribute-level operations by entity
// type.
type AttributeOptions struct {
	Type string
}

// EntitiesClient operates on /v2/entities.
type EntitiesClient interface {
	Create(ctx context.Context, entity *Entity) error
	Get(ctx context.Context, id string, opts *GetEntityOptions) (*Entity, error)
	GetKeyValues(ctx context.Context, id string, opts *GetEntityOptions) (*EntityKeyValues, error)
	Update(ctx context.Context, id string, attrs map[string]Attribute, mode UpdateMode) error
	Replace(ctx context.Context, id string, attrs map[string]Attribute) error
	Delete(ctx context.Context, id string, opts *DeleteEntityOptions) error
	Query(ctx context.Context, filter *QueryFilter) *EntityIterator
	QueryKeyValues(ctx context.Context, filter *QueryFilter) *KeyValuesIterator
	GetAttribute(ctx context.Context, id, name string, opts *AttributeOptions) (*Attribute, error)
	UpdateAttribute(ctx context.Context, id, name string, attr Attribute, opts *AttributeOptions) error
	DeleteAttribute(ctx context.Context, id, name string, opts *AttributeOptions) error
	GetAttributeValue(ctx context.Context, id, name string, opts *AttributeOptions) (AttributeValue, error)
	UpdateAttributeValue(ctx context.Context, id, name string, value AttributeValue, opts *AttributeOptions) error
}

// SubscriptionsClient operates on /v2/subscriptions.
type SubscriptionsClient interface {
	Create(ctx context.Context, sub *Subscription) (string, error)
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, id string, patch *Subscription) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts *PaginationOptions) *SubscriptionIterator
}

// RegistrationsClient operates on /v2/registrations.
type RegistrationsClient interface {
	Create(ctx context.Context, reg *Registration) (string, error)
	Get(ctx context.Context, id string) (*Registration, error)
	Update(ctx context.Context, id string, patch *Registration) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts *PaginationOptions) *RegistrationIterator
}

// TypesClient operates on /v2/types.
type TypesClient interface {
	List(ctx context.Context, opts *PaginationOptions) ([]EntityType, error)
	Get(ctx context.Context, entityType string) (*EntityType, error)
}

// BatchClient operates on the /v2/op endpoints.
type BatchClient interface {
	Update(ctx context.Context, action BatchAction, entities []Entity) (*BatchResult, error)
	Query(ctx context.Context, req *BatchQueryRequest, opts *PaginationOptions) ([]Entity, error)
}

// ResourceClients provides access to the NGSIv2 resource clients.
type ResourceClients interface {
	Entities() EntitiesClient
	Subscriptions() SubscriptionsClient
	Registrations() RegistrationsClient
	Types() TypesClient
	Batch() BatchClient
}

// InfoClient provides access to broker information endpoints.
type InfoClient interface {
	GetVersion(ctx context.Context) (*Version, error)
	GetResources(ctx context.Context) (*APIResources, error)
}

type Client interface {
	ResourceClients
	InfoClient
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Config represents client configuration for building an ngsi.Client.
//
// # Authentication precedence
//
// The following precedence is applied by the concrete client
// implementation (see pkg/cbclient and internal/client):
//  1. AccessToken: if set, it is used directly as a static Bearer token.
//  2. AccessToken + Username/Password: the token is tried first; when it
//     expires the client falls back to the password grant.
//  3. ClientID/ClientSecret: uses the OAuth2 client_credentials grant
//     against the identity manager. A RefreshToken, Username, or
//     Password alongside lets the manager refresh or switch grants.
//  4. Username/Password: uses the OAuth2 password grant.
//  5. No credentials: requests are sent without authentication, which
//     suits brokers without a PEP proxy in front.
//
// # Multi-tenancy
//
// Service and ServicePath select the tenant scope and travel as the
// Fiware-Service and Fiware-ServicePath headers on every request.
//
// # Timeouts, retries, and TLS
//
// Per-request timeouts should generally be controlled via the context
// passed to client methods. Retry behavior can be tuned via RetryMax/
// RetryWaitMin/RetryWaitMax; retries only ever apply to idempotent
// requests. SkipTLSVerify is honored only when the environment variable
// FILIP_DEV_MODE is set to "true" or "1"; do not use it in production.
type Config struct {
	// Required fields
	// BrokerURL: base URL of the context broker (e.g.,
	// "http://localhost:1026"). cbclient.New normalizes this value by
	// trimming a trailing slash and adding "http://" if no scheme is
	// present.
	BrokerURL string

	// Multi-tenancy
	// Service: the Fiware-Service tenant header.
	Service string
	// ServicePath: the Fiware-ServicePath scope header; defaults to "/".
	ServicePath string

	// Authentication options (provide one)
	// ClientID: OAuth2 client ID for the client_credentials (or other) grant.
	ClientID string
	// ClientSecret: OAuth2 client secret used with ClientID.
	ClientSecret string
	// Username: account username for the OAuth2 password grant.
	Username string
	// Password: account password for the OAuth2 password grant.
	Password string
	// RefreshToken: optional refresh token used to renew access tokens.
	RefreshToken string
	// AccessToken: if set, used directly as a Bearer token.
	AccessToken string
	// TokenURL: full OAuth2 token endpoint of the identity manager.
	TokenURL string

	// Optional configurations
	// HTTPTimeout: optional default HTTP timeout where supported. Most
	// client calls should rely on context timeouts.
	HTTPTimeout time.Duration
	// RetryMax: maximum number of retries for transient failures on
	// idempotent requests. If 0, a sensible default is used.
	RetryMax int
	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration
	// PageSize: default page size for paginated queries. If 0,
	// DefaultLimit is used.
	PageSize int
	// Debug: enables verbose HTTP request/response logging when a
	// Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the HTTP layer.
	Logger Logger
	// SkipTLSVerify: if true, TLS verification is skipped, and only
	// when FILIP_DEV_MODE is set. Intended for local development.
	SkipTLSVerify bool
	// UserAgent: overrides the default User-Agent header.
	UserAgent string
}

// NewClient creates a new Context Broker client
// Deprecated: Use github.com/SystemsPurge/FiLiP/pkg/cbclient.New instead.
func NewClient(config *Config) (Client, error) {
	return nil, ErrDeprecatedClientConstructor
}

// Version is the broker build information returned by GET /version.
type Version struct {
	Orion OrionVersion `json:"orion" yaml:"orion"`
}

// OrionVersion carries the build details of an Orion context broker.
type OrionVersion struct {
	Version     string            `json:"version"               yaml:"version"`
	Uptime      string            `json:"uptime"                yaml:"uptime"`
	GitHash     string            `json:"git_hash"              yaml:"git_hash"`
	CompileTime string            `json:"compile_time"          yaml:"compile_time"`
	CompiledBy  string            `json:"compiled_by"           yaml:"compiled_by"`
	CompiledIn  string            `json:"compiled_in"           yaml:"compiled_in"`
	ReleaseDate string            `json:"release_date"          yaml:"release_date"`
	Doc         string            `json:"doc"                   yaml:"doc"`
	LibVersions map[string]string `json:"libversions,omitempty" yaml:"libversions,omitempty"`
}

// APIResources lists the NGSIv2 endpoints advertised by GET /v2.
type APIResources struct {
	EntitiesURL      string `json:"entities_url"      yaml:"entities_url"`
	TypesURL         string `json:"types_url"         yaml:"types_url"`
	SubscriptionsURL string `json:"subscriptions_url" yaml:"subscriptions_url"`
	RegistrationsURL string `json:"registrations_url" yaml:"registrations_url"`
}

// Tenant header field limits enforced by the broker.
const (
	maxServiceLength      = 50
	maxServicePathDepth   = 10
	maxServicePathSegment = 50
)

var (
	servicePattern     = regexp.MustCompile(`^[a-z0-9_]+$`)
	servicePathPattern = regexp.MustCompile(`^[\w-]+$`)
)

// ValidateService checks a Fiware-Service header value: at most 50
// characters of lowercase alphanumerics and underscores.
func ValidateService(service string) error {
	if service == "" {
		return nil
	}

	if len(service) > maxServiceLength {
		return &ValidationError{Field: "service", Reason: fmt.Sprintf("exceeds %d characters", maxServiceLength)}
	}

	if !servicePattern.MatchString(service) {
		return &ValidationError{Field: "service", Reason: "must contain only lowercase letters, digits, and underscores"}
	}

	return nil
}

// ValidateServicePath checks a Fiware-ServicePath header value: "/",
// or up to ten slash-separated components of word characters, each at
// most 50 characters. A trailing "#" selects a subtree.
func ValidateServicePath(path string) error {
	if path == "" || path == "/" {
		return nil
	}

	if !strings.HasPrefix(path, "/") {
		return &ValidationError{Field: "servicePath", Reason: "must start with /"}
	}

	trimmed := strings.TrimSuffix(path, "/#")
	trimmed = strings.TrimPrefix(trimmed, "/")

	segments := strings.Split(trimmed, "/")
	if len(segments) > maxServicePathDepth {
		return &ValidationError{Field: "servicePath", Reason: fmt.Sprintf("exceeds %d levels", maxServicePathDepth)}
	}

	for _, segment := range segments {
		if len(segment) > maxServicePathSegment {
			return &ValidationError{Field: "servicePath", Reason: fmt.Sprintf("segment exceeds %d characters", maxServicePathSegment)}
		}

		if !servicePathPattern.MatchString(segment) {
			return &ValidationError{Field: "servicePath", Reason: fmt.Sprintf("invalid segment %q", segment)}
		}
	}

	return nil
}
