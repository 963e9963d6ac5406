// Package logger builds the log/slog loggers used across memkv.
//
// Every logger returned by New shares one level, so SIGHUP can raise or
// lower verbosity in place. Attributes named like credentials are
// redacted and user data keys are truncated before they reach the output.
package logger
