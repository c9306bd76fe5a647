package config

// Application constants
const (
	AppName = "langworker"

	// EnvPrefix namespaces environment variables (LANGWORKER_PORT). The bare
	// names (PORT, HOST) are accepted as fallbacks.
	EnvPrefix = "LANGWORKER"

	// DefaultConfigFile is read from the working directory when no --config
	// flag is given.
	DefaultConfigFile = "langworker.yaml"

	DefaultHost = "localhost"
	DefaultPort = 4000
)
