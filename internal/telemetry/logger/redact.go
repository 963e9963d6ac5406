package logger

import (
	"log/slog"
	"strconv"
	"strings"
)

// DefaultMaxKeyPreview is the number of bytes of a data key kept in logs.
const DefaultMaxKeyPreview = 64

const redactedValue = "***REDACTED***"

// Attribute names whose string values are user data keys. Keys may be
// megabytes long, and a corrupt snapshot yields arbitrary bytes.
func isDataKeyAttr(name string) bool { return name == "key" || name == "field" }

// Substrings of attribute names that carry credentials, such as
// archive.secret_key or access_key.
var sensitiveParts = [...]string{"password", "secret", "token", "credential", "auth", "access_key", "accesskey", "api_key"}

// IsSensitiveKey reports whether an attribute name looks like a credential.
func IsSensitiveKey(name string) bool {
	name = strings.ToLower(name)
	for _, part := range sensitiveParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	return false
}

// TruncateKey shortens s to max bytes and notes the original length.
func TruncateKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(" + strconv.Itoa(len(s)) + " bytes)"
}

// redactSensitive is the ReplaceAttr hook installed by New. Empty
// credentials stay visible so a missing secret is obvious in the log.
func redactSensitive(a slog.Attr, maxKey int) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		switch {
		case isDataKeyAttr(a.Key):
			a.Value = slog.StringValue(TruncateKey(s, maxKey))
		case s != "" && IsSensitiveKey(a.Key):
			a.Value = slog.StringValue(redactedValue)
		}
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, 0, len(group))
		for _, ga := range group {
			out = append(out, redactSensitive(ga, maxKey))
		}
		a.Value = slog.GroupValue(out...)
	}
	return a
}
