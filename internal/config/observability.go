package config

// TracingConfig holds OTLP trace export configuration.
//
// Tracing is disabled when Endpoint is empty. See
// internal/observability for exporter setup.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty disables tracing.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the reported service name (default: sage)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Enabled reports whether trace export is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}
