package warehouse

import (
	"errors"
	"strings"
)

// ErrNotReadOnly is returned for statements other than a single SELECT or WITH query.
var ErrNotReadOnly = errors.New("only a single read-only SELECT statement is allowed")

// CheckReadOnly rejects anything but one SELECT/WITH statement.
// Semicolons inside literals are rejected too.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(stripLeadingComments(query))
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\r\n"))
	if q == "" {
		return ErrNotReadOnly
	}
	if strings.Contains(q, ";") {
		return ErrNotReadOnly
	}
	first := strings.ToUpper(firstWord(q))
	if first != "SELECT" && first != "WITH" {
		return ErrNotReadOnly
	}
	return nil
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q, "*/")
			if i < 0 {
				return ""
			}
			q = q[i+2:]
		default:
			return q
		}
	}
}

func firstWord(q string) string {
	end := strings.IndexFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		return q
	}
	return q[:end]
}
