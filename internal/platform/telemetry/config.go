// Package telemetry wires Prometheus metrics and OpenTelemetry tracing into
// the HTTP server and the patient operations.
package telemetry

// Config holds all configuration for metrics and tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is the gRPC collector address. Empty disables span export;
	// spans are still created against the no-op global provider.
	OTLPEndpoint string
	SampleRate   float64 // 0.0 to 1.0
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "data-collector"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}
