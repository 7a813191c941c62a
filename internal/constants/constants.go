package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ExtendedHTTPTimeout is used for longer operations such as batch
	// updates.
	ExtendedHTTPTimeout = 45 * time.Second

	// ShortHTTPTimeout is used for quick operations such as version
	// probes.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default number of retries after the
	// initial attempt (three attempts in total).
	DefaultRetryMax = 2

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second
)

// Broker defaults.
const (
	// DefaultBrokerPort is the port an Orion context broker listens on.
	DefaultBrokerPort = "1026"

	// DefaultQuantumLeapPort is the port a QuantumLeap instance listens on.
	DefaultQuantumLeapPort = "8668"

	// DefaultIoTAgentPort is the port an IoT Agent north interface
	// listens on.
	DefaultIoTAgentPort = "4041"
)

// HTTP header names used by the FIWARE APIs.
const (
	// HeaderService is the multi-tenancy header.
	HeaderService = "Fiware-Service"

	// HeaderServicePath is the tenant scope header.
	HeaderServicePath = "Fiware-ServicePath"

	// HeaderCorrelator carries the request correlation id.
	HeaderCorrelator = "Fiware-Correlator"

	// HeaderTotalCount carries the collection size when the count option
	// is requested.
	HeaderTotalCount = "Fiware-Total-Count"
)

// MQTT defaults.
const (
	// DefaultMQTTConnectTimeout bounds the initial broker connection.
	DefaultMQTTConnectTimeout = 10 * time.Second

	// DefaultMQTTPublishTimeout bounds a single publish.
	DefaultMQTTPublishTimeout = 5 * time.Second

	// DefaultMQTTQoS is the delivery guarantee used when none is
	// configured.
	DefaultMQTTQoS = 1
)

// Concurrency and batching limits.
const (
	// DefaultConcurrencyLimit limits concurrent operations.
	DefaultConcurrencyLimit = 3

	// BufferSize is the default buffer size for channels.
	BufferSize = 100

	// SmallBufferSize is used for smaller buffers.
	SmallBufferSize = 10
)

// Time intervals and delays.
const (
	// DefaultPollInterval is used for polling operations.
	DefaultPollInterval = 2 * time.Second

	// QuickPollInterval is used for fast polling.
	QuickPollInterval = 10 * time.Millisecond
)

// Pagination and display limits.
const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 20

	// SmallPageSize is used for demonstrations or small lists.
	SmallPageSize = 5

	// LargePageSize is used for efficient bulk operations.
	LargePageSize = 100

	// MaxPages is used to prevent runaway pagination loops.
	MaxPages = 50

	// TimeSeriesChunkLimit caps the rows requested from QuantumLeap in a
	// single request; larger queries are chopped and merged client-side.
	TimeSeriesChunkLimit = 5
)

// Mathematical and calculation constants.
const (
	// ExponentialBackoffBase is the base for exponential backoff.
	ExponentialBackoffBase = 2

	// BackoffJitterDivisor bounds retry jitter to a fraction of the
	// exponential backoff wait.
	BackoffJitterDivisor = 4

	// TokenExpirationBuffer is the buffer time before token expiration.
	TokenExpirationBuffer = 30 * time.Second

	// CircuitBreakerThreshold is the failure threshold for the circuit
	// breaker.
	CircuitBreakerThreshold = 5

	// CircuitBreakerSuccessThreshold is the success threshold for the
	// circuit breaker.
	CircuitBreakerSuccessThreshold = 2

	// CircuitBreakerTimeout is the cool-down before the circuit breaker
	// probes again.
	CircuitBreakerTimeout = 30 * time.Second
)

// UI and display constants.
const (
	// CheckMarkSymbol is used to indicate current/active items.
	CheckMarkSymbol = "✓"

	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// None is used when no value is present.
	None = "none"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// JSONIndentSize is the number of spaces for JSON indentation.
	JSONIndentSize = 2

	// StringTruncationLength is the default length for truncating
	// strings in table output.
	StringTruncationLength = 60

	// ValueDisplayLength is the length for displaying attribute values.
	ValueDisplayLength = 40
)

// State and status constants.
const (
	// StatusOpen indicates an open circuit.
	StatusOpen = "open"

	// StatusHalfOpen indicates a half-open circuit.
	StatusHalfOpen = "half-open"

	// StatusClosed indicates closed circuit.
	StatusClosed = "closed"
)

// Boolean string constants.
const (
	// BooleanTrue string representation.
	BooleanTrue = "true"

	// BooleanFalse string representation.
	BooleanFalse = "false"
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for tabular output format.
	FormatTable = "table"
)

// Confirmation constants.
const (
	// ConfirmationYes for positive confirmations.
	ConfirmationYes = "yes"
)

// Command argument counts.
const (
	// MinimumArgumentCount is the minimum number of command line
	// arguments.
	MinimumArgumentCount = 2

	// TwoArgumentsMax indicates commands allowing up to 2 arguments.
	TwoArgumentsMax = 2

	// KeyValueSplitParts is the number of parts when splitting key=value
	// strings.
	KeyValueSplitParts = 2
)
