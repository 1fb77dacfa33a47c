package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcheck/pkg/core"
)

// QuestionPlaceholder renders "?" (sqlite, duckdb).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" (postgres).
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Bind rewrites the :name references of stmt into positional placeholders
// and returns the matching argument list. Quoted text and ::casts are left
// untouched. A name used twice is bound twice.
func Bind(stmt core.Statement, placeholder func(n int) string) (string, []any, error) {
	src := stmt.SQL
	var (
		sb   strings.Builder
		args []any
	)
	sb.Grow(len(src))

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '\'' || ch == '"':
			end := closingQuote(src, i)
			sb.WriteString(src[i:end])
			i = end - 1
		case ch == ':' && i+1 < len(src) && src[i+1] == ':':
			sb.WriteString("::")
			i++
		case ch == ':' && i+1 < len(src) && isNameStart(src[i+1]):
			j := i + 1
			for j < len(src) && isNamePart(src[j]) {
				j++
			}
			name := src[i+1 : j]
			val, ok := stmt.Args[name]
			if !ok {
				return "", nil, fmt.Errorf("missing argument %q", name)
			}
			args = append(args, val)
			sb.WriteString(placeholder(len(args)))
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), args, nil
}

// closingQuote returns the index just past the quote that closes the one at start.
// Doubled quotes are treated as escapes.
func closingQuote(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
