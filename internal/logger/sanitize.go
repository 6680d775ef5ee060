package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength caps URL paths in request logs
	MaxPathLength = 500
	// MaxGeneralStringLength caps arbitrary strings in logs
	MaxGeneralStringLength = 2000
	// MaxDebugContentLength caps email bodies and model output in debug logs
	MaxDebugContentLength = 10000
)

// SanitizePath prepares a request path for logging: strips control
// characters, repairs UTF-8, and truncates to MaxPathLength.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString strips control characters, repairs UTF-8, and truncates
// to maxLength. A non-positive maxLength falls back to
// MaxGeneralStringLength.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = filterRunes(s)
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

// filterRunes repairs invalid UTF-8 and drops control characters, keeping
// printable runes plus space, tab, newline, and carriage return.
func filterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// SanitizeDebugContent prepares prompt and completion text for debug
// logging. Model output and email bodies are attacker-influenced, so the
// same filtering applies even at debug level.
func SanitizeDebugContent(content string) string {
	return SanitizeString(content, MaxDebugContentLength)
}
