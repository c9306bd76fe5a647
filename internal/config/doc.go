// Package config loads the worker configuration.
//
// # Configuration Sources
//
// Values are applied in the following order, later sources winning:
//
//	1. Default values (Default)
//	2. A YAML file (--config, or langworker.yaml in the working directory)
//	3. Environment variables
//	4. Command line flags (applied by cmd/langworker)
//
// # Environment Variables
//
// Variables are namespaced with LANGWORKER_; nested sections add their own
// prefix. The unprefixed form is accepted when the prefixed one is unset:
//
//	LANGWORKER_PORT=4000          (or PORT=4000)
//	LANGWORKER_HOST=0.0.0.0       (or HOST=0.0.0.0)
//	LANGWORKER_BUNDLE=/srv/se.zhfst
//	LANGWORKER_ENGINE_MAX_IN_FLIGHT=2
//	LANGWORKER_ENGINE_QUEUE_TIMEOUT=5s
//	LANGWORKER_LOGGING_LEVEL=debug
//
// The configuration is read once at startup and never changes afterwards.
package config
