package core

import "strings"

// Severity indicates how important a failing rule is.
// Values serialize upper-case, e.g. "WARNING".
type Severity string

// Severity levels for rule results.
const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// String returns the lower-case name of the severity.
func (s Severity) String() string {
	return strings.ToLower(string(s))
}

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// OrDefault returns SeverityWarning when s is empty.
func (s Severity) OrDefault() Severity {
	if s == "" {
		return SeverityWarning
	}
	return s
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityWarning and false if invalid.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, true
	case "warning", "warn":
		return SeverityWarning, true
	case "error":
		return SeverityError, true
	default:
		return SeverityWarning, false
	}
}
