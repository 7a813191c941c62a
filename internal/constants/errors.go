package constants

import "errors"

// Broker and configuration errors.
var (
	ErrNoBrokersConfigured = errors.New("no context brokers configured, use 'filip brokers add' to add one")
	ErrNoDomainForBroker   = errors.New("could not determine broker domain")
	ErrNoRefreshToken      = errors.New("no refresh token available for this broker, please run 'filip login' again")
	ErrFailedRetrieveToken = errors.New("failed to retrieve refreshed token")
	ErrBrokerConfigMissing = errors.New("broker configuration not found")
)

// Identity manager errors.
var (
	ErrNoTokenEndpoint    = errors.New("no token endpoint configured and unable to discover one from the broker")
	ErrNoBrokerEndpoint   = errors.New("no context broker endpoint provided")
	ErrSkipTLSOnlyInDev   = errors.New("skipTLS is only allowed in development environments (set FILIP_DEV_MODE=true)")
	ErrVersionProbeFailed = errors.New("context broker version probe failed")
	ErrNotAuthenticated   = errors.New("not authenticated. Use 'filip login' or a token command to authenticate first")
)

// Validation errors.
var (
	ErrInvalidOutputFormat = errors.New("output format must be json, yaml, or table")
	ErrInvalidUpdateMode   = errors.New("update mode must be overwrite, append, or appendStrict")
	ErrInvalidBatchAction  = errors.New("batch action must be append, appendStrict, update, delete, or replace")
	ErrInvalidQoS          = errors.New("MQTT QoS must be 0, 1, or 2")
)

// Required field errors.
var (
	ErrEntityIDRequired       = errors.New("entity id is required")
	ErrEntityTypeRequired     = errors.New("entity type is required")
	ErrAttributeNameRequired  = errors.New("attribute name is required")
	ErrSubscriptionIDRequired = errors.New("subscription id is required")
	ErrDeviceIDRequired       = errors.New("device id is required")
	ErrAPIKeyRequired         = errors.New("API key is required")
)

// Operation errors.
var (
	ErrUnsupportedResource  = errors.New("unsupported resource type")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidTypeAssertion = errors.New("invalid type assertion")
	ErrValueNotSet          = errors.New("configuration value is not set")
)

// File system errors.
var (
	ErrNotRegularFile             = errors.New("path is not a regular file")
	ErrDirectoryTraversalDetected = errors.New("directory traversal detected in file path")
)
