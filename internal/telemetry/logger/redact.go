// Package logger provides structured logging for tcpctl.
package logger

import (
	"log/slog"
	"strings"
)

// Line-protocol commands whose argument is a credential.
// Matched case-insensitively at the start of a payload line.
var sensitiveCommands = []string{
	"PASS ",  // FTP, POP3
	"AUTH ",  // SMTP, FTP
	"ACCT ",  // FTP
	"LOGIN ", // IMAP
}

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"credential",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		if masked, ok := maskCommand(strVal); ok {
			return slog.String(a.Key, masked)
		}
		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// maskCommand keeps the verb of a credential-carrying command and
// hides its argument.
func maskCommand(line string) (string, bool) {
	upper := strings.ToUpper(strings.TrimLeft(line, " \t"))
	for _, cmd := range sensitiveCommands {
		if strings.HasPrefix(upper, cmd) {
			return cmd + redactedValue, true
		}
	}
	return line, false
}

// RedactPayload masks a protocol line before it is logged or echoed.
func RedactPayload(line string) string {
	masked, _ := maskCommand(line)
	return masked
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
