package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	errx "github.com/chative/sqlagent/internal/core/error"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxErrSnippet = 200        // limit error snippet size
)

var ErrNoJSON = errors.New("no json object in model output")

// DecodeJSON extracts the first JSON object from a model response and decodes it
// strictly into out: unknown fields and trailing data are rejected.
func DecodeJSON(content string, out any) (err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "json_parser").Msgf("panic recovered: %v", r)
			err = errx.Malformed(fmt.Errorf("json parser panic: %v", r))
		}
	}()

	if len(content) > maxContentLen {
		return errx.Malformed(fmt.Errorf("model output too large: %d bytes", len(content)))
	}
	if !utf8.ValidString(content) {
		return errx.Malformed(fmt.Errorf("model output invalid utf8"))
	}

	raw := ExtractJSON(content)
	if raw == "" {
		return errx.Malformed(fmt.Errorf("%w: %q", ErrNoJSON, safeSnippet(content)))
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errx.Malformed(fmt.Errorf("decode model output: %w: %q", err, safeSnippet(raw)))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errx.Malformed(fmt.Errorf("trailing data after json object: %q", safeSnippet(raw)))
	}
	return nil
}

// ExtractJSON finds a JSON object in a response: fenced ```json blocks first,
// then any fenced block starting with '{', then the first balanced object.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, "{") {
				return content
			}
		}
	}
	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}
	return ""
}

// extractJSONObject returns the balanced object starting at start, "" if unbalanced.
func extractJSONObject(s string, start int) string {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// CleanSQL strips code fences, surrounding whitespace and a trailing semicolon.
func CleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```sql")
		sql = strings.TrimPrefix(sql, "```")
		sql = strings.TrimSuffix(strings.TrimSpace(sql), "```")
	}
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

func safeSnippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	cut := maxErrSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
