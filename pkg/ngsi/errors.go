package ngsi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// BrokerError represents an error response from the context broker.
type BrokerError struct {
	StatusCode  int    `json:"-"           yaml:"-"`
	ErrorType   string `json:"error"       yaml:"error"`
	Description string `json:"description" yaml:"description"`
}

// Error implements the error interface.
func (e *BrokerError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (status: %d)", e.ErrorType, e.StatusCode)
	}

	return fmt.Sprintf("%s: %s (status: %d)", e.ErrorType, e.Description, e.StatusCode)
}

// Error types reported in the broker error envelope.
const (
	ErrorTypeBadRequest     = "BadRequest"
	ErrorTypeParseError     = "ParseError"
	ErrorTypeNotFound       = "NotFound"
	ErrorTypeTooManyResults = "TooManyResults"
	ErrorTypeUnprocessable  = "Unprocessable"
	ErrorTypeInternalError  = "InternalServerError"
)

// DescriptionAlreadyExists is the description the broker uses when an
// entity creation collides with an existing entity.
const DescriptionAlreadyExists = "Already Exists"

// ValidationError reports input rejected locally, before any request is
// sent to the broker.
type ValidationError struct {
	Field  string `json:"field"  yaml:"field"`
	Reason string `json:"reason" yaml:"reason"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError reports a broker payload whose shape does not match the
// declared attribute type. Raw carries the offending JSON fragment.
type DecodeError struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Declared  string `json:"declared"  yaml:"declared"`
	Raw       string `json:"raw"       yaml:"raw"`
	Reason    string `json:"reason"    yaml:"reason"`
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("cannot decode %s value: %s", e.Declared, e.Reason)
	}

	return fmt.Sprintf("cannot decode attribute %q as %s: %s", e.Attribute, e.Declared, e.Reason)
}

// TransportError represents a failed HTTP exchange with the broker:
// connection errors, timeouts, and responses that carry no parseable
// error envelope.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: timeout: %v", e.Op, e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// FailedEntity identifies one entity a batch operation could not apply,
// with the reason.
type FailedEntity struct {
	ID     string `json:"id"     yaml:"id"`
	Type   string `json:"type"   yaml:"type,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

// BatchError reports a batch operation in which some entities failed
// while the rest were applied.
type BatchError struct {
	Action BatchAction    `json:"action" yaml:"action"`
	Failed []FailedEntity `json:"failed" yaml:"failed"`
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("batch %s: entity %s failed: %s", e.Action, e.Failed[0].ID, e.Failed[0].Reason)
	}

	return fmt.Sprintf("batch %s: %d entities failed", e.Action, len(e.Failed))
}

// Common static errors that can be wrapped with context.
var (
	ErrConfigRequired           = errors.New("config is required")
	ErrBrokerURLRequired        = errors.New("context broker URL is required")
	ErrNoHostInURL              = errors.New("no host specified in URL")
	ErrTokenURLRequired         = errors.New("token URL is required when credentials are provided")
	ErrNoMoreItems              = errors.New("no more items")
	ErrEmptyBatch               = errors.New("batch contains no entities")
	ErrMissingLocationHeader    = errors.New("no Location header in broker response")
	ErrNoErrorEnvelope          = errors.New("response body is not an error envelope")
	ErrAttributeNotFound        = errors.New("attribute not found")
	ErrEntityNotFound           = errors.New("entity not found")
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrRegistrationNotFound     = errors.New("registration not found")
	ErrStaticTokenCannotRefresh = errors.New("static token cannot be refreshed")
	ErrNotAuthenticated         = errors.New("not authenticated")
	ErrNoBrokersConfigured      = errors.New("no context brokers configured")
	ErrCurrentBrokerNotFound    = errors.New("current context broker not found in configuration")
	ErrBrokerNameOrURLRequired  = errors.New("broker name or URL is required")
	ErrBrokerAlreadyExists      = errors.New("broker already exists")
	ErrCannotDeleteOnlyBroker   = errors.New("cannot delete the only configured broker")
	ErrUnknownConfigKey         = errors.New("unknown configuration key")
	ErrTokenFieldsCannotUnset   = errors.New("token fields cannot be unset via config command")
	ErrSkipTLSOnlyInDev         = errors.New("skipTLS is only allowed in development environments")
	ErrCircuitBreakerOpen       = errors.New("circuit breaker is open")
)

// IsNotFound checks if the error is a broker not-found error.
func IsNotFound(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode == http.StatusNotFound || brokerErr.ErrorType == ErrorTypeNotFound
	}

	return false
}

// IsConflict checks if the error reports an already-existing entity or
// an ambiguous entity match.
func IsConflict(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		if brokerErr.StatusCode == http.StatusConflict || brokerErr.ErrorType == ErrorTypeTooManyResults {
			return true
		}

		return brokerErr.StatusCode == http.StatusUnprocessableEntity &&
			brokerErr.Description == DescriptionAlreadyExists
	}

	return false
}

// IsBadRequest checks if the error is a broker bad-request error.
func IsBadRequest(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode == http.StatusBadRequest ||
			brokerErr.ErrorType == ErrorTypeBadRequest ||
			brokerErr.ErrorType == ErrorTypeParseError
	}

	return false
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode == http.StatusUnauthorized
	}

	return false
}

// IsUnprocessable checks if the error is a broker unprocessable error.
func IsUnprocessable(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode == http.StatusUnprocessableEntity ||
			brokerErr.ErrorType == ErrorTypeUnprocessable
	}

	return false
}

// IsServerError checks if the error is a broker server-side error.
func IsServerError(err error) bool {
	brokerErr := &BrokerError{}
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}

// ParseBrokerError parses the error envelope from a response body. The
// context broker reports {"error", "description"} pairs; the IoT
// Agents report {"name", "message"}. Both decode into BrokerError so
// the Is* helpers work against every FIWARE service.
func ParseBrokerError(statusCode int, data []byte) (*BrokerError, error) {
	var wire struct {
		ErrorType   string `json:"error"`
		Description string `json:"description"`
		Name        string `json:"name"`
		Message     string `json:"message"`
	}

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal error envelope: %w", err)
	}

	brokerErr := BrokerError{ErrorType: wire.ErrorType, Description: wire.Description}

	if brokerErr.ErrorType == "" {
		brokerErr.ErrorType = wire.Name
		brokerErr.Description = wire.Message
	}

	if brokerErr.ErrorType == "" {
		return nil, ErrNoErrorEnvelope
	}

	brokerErr.StatusCode = statusCode

	return &brokerErr, nil
}

// Test error variables for test files to comply with err113.
var (
	ErrSomeError = errors.New("some error")
	ErrBoom      = errors.New("boom")
)
