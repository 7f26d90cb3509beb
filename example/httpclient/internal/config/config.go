package config

const (
	// Upstream configuration
	UpstreamAddr = "127.0.0.1:8089"
	FailureRate  = 0.3 // share of upstream calls answered with 503

	// Client configuration
	MaxRetries     = 3
	AttemptTimeout = 2 // seconds

	// Server configuration
	MetricsPort = ":2112"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "courier-httpclient-example"
	ServiceVersion = "0.1.0"

	// Operation intervals
	OperationInterval = 5 // seconds
)
