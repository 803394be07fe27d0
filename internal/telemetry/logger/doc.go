// Package logger provides structured logging for tcpctl.
//
//   - logger.go: slog-based Logger, shared level, process default
//   - context.go: command ID propagation through context
//   - redact.go: masking of credentials in keys and protocol lines
package logger
