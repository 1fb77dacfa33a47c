package core

import "strings"

// Kind classifies a rule for coverage reporting. Formal rules form the
// columns of the coverage matrix; custom rules are listed per dataset.
type Kind string

// Rule kinds.
const (
	KindFormal Kind = "formal"
	KindCustom Kind = "custom"
)

// ParseKind converts a string to a Kind. Empty input yields KindFormal.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "formal":
		return KindFormal, true
	case "custom":
		return KindCustom, true
	default:
		return "", false
	}
}
