// Package observability builds the process-wide zap logger from configuration.
package observability
