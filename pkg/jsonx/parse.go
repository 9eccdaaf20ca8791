// Package jsonx recovers structured objects from free-form model output.
// Generated text is frequently not strict JSON; this package applies a fixed
// sequence of extraction and repair strategies with bounded effort, and
// escalates to a repair conversation with the model when local strategies
// fail.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError reports a local parse failure together with the raw text that
// could not be parsed.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Fence delimiters scanned for embedded objects, in priority order.
var fences = []string{"```", `"""`, "'''"}

var (
	trailingCommaObject = regexp.MustCompile(`,\s*}`)
	trailingCommaArray  = regexp.MustCompile(`,\s*]`)
)

// ExtractObject performs best-effort extraction of a JSON object from model
// text. It scans delimiter-fenced regions first, then the whole text, then
// falls back to the outermost-brace substring. When nothing resembling an
// object is found the trimmed input is returned unchanged.
func ExtractObject(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for _, fence := range fences {
		if !strings.Contains(text, fence) {
			continue
		}
		for _, part := range strings.Split(text, fence) {
			candidate := strings.TrimSpace(part)
			if candidate == "" {
				continue
			}
			if len(candidate) >= 4 && strings.EqualFold(candidate[:4], "json") {
				candidate = strings.TrimSpace(candidate[4:])
			}
			if strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}") {
				return candidate
			}
		}
	}

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}

	return text
}

func stripTrailingCommas(candidate string) string {
	candidate = trailingCommaObject.ReplaceAllString(candidate, "}")
	candidate = trailingCommaArray.ReplaceAllString(candidate, "]")
	return candidate
}

func tryUnmarshal(candidate string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, err //nolint:wrapcheck // Wrapped by the caller with raw text context
	}
	if out == nil {
		return nil, fmt.Errorf("parsed to null, not an object")
	}
	return out, nil
}

// tryLenient parses with control characters and other strictness violations
// tolerated. gjson accepts raw newlines and tabs inside string values that
// encoding/json rejects.
func tryLenient(candidate string) (map[string]any, bool) {
	result := gjson.Parse(candidate)
	if !result.IsObject() {
		return nil, false
	}
	out, ok := result.Value().(map[string]any)
	if !ok || out == nil {
		return nil, false
	}
	return out, true
}

// Parse extracts a structured object from raw model output. Strategies are
// applied in a fixed order and the first syntactically valid parse wins:
// fence/brace extraction, trailing-comma removal, appended closing brace,
// newline removal (with and without an appended brace), then a lenient
// control-character mode. When all of that fails and expectedKeys is
// non-empty, a line-by-line key scan recovers a partial object instead of
// failing outright.
func Parse(raw string, expectedKeys []string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("empty model output")}
	}

	candidate := stripTrailingCommas(ExtractObject(trimmed))

	if out, err := tryUnmarshal(candidate); err == nil {
		return out, nil
	}

	// Append a single closing brace; unterminated objects are the most
	// common truncation failure.
	if out, err := tryUnmarshal(strings.TrimRight(candidate, " \t\r\n") + "}"); err == nil {
		return out, nil
	}

	compact := strings.Join(strings.Split(candidate, "\n"), "")
	compact = strings.ReplaceAll(compact, "\r", "")
	if out, err := tryUnmarshal(compact); err == nil {
		return out, nil
	}
	if out, err := tryUnmarshal(strings.TrimRight(compact, " \t") + "}"); err == nil {
		return out, nil
	}

	if out, ok := tryLenient(candidate); ok {
		return out, nil
	}

	if len(expectedKeys) > 0 {
		if recovered := scanForKeys(raw, expectedKeys); len(recovered) > 0 {
			return recovered, nil
		}
	}

	_, err := tryUnmarshal(candidate)
	return nil, &ParseError{Raw: raw, Err: err}
}

// scanForKeys recovers values for known keys from malformed output, looking
// for `"key": value` or `key: value` patterns line by line.
func scanForKeys(text string, expectedKeys []string) map[string]any {
	recovered := make(map[string]any)
	lines := strings.Split(text, "\n")
	for _, key := range expectedKeys {
		pattern, err := regexp.Compile(`(?i)"?` + regexp.QuoteMeta(key) + `"?\s*[:=]\s*(.+)`)
		if err != nil {
			continue
		}
		for _, line := range lines {
			match := pattern.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			rawVal := strings.TrimSuffix(strings.TrimSpace(match[1]), ",")
			recovered[key] = coerceValue(rawVal)
			break
		}
	}
	return recovered
}

// coerceValue turns a raw value fragment into the closest JSON-compatible
// value: boolean, null, number, nested structure, or plain string.
func coerceValue(rawVal string) any {
	switch strings.ToLower(rawVal) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if strings.Contains(rawVal, ".") {
		if f, err := strconv.ParseFloat(rawVal, 64); err == nil {
			return f
		}
	} else if n, err := strconv.ParseInt(rawVal, 10, 64); err == nil {
		return float64(n)
	}

	var decoded any
	if err := json.Unmarshal([]byte(rawVal), &decoded); err == nil {
		return decoded
	}

	return strings.Trim(rawVal, `"'`)
}
