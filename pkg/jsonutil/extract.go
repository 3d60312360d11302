// Package jsonutil extracts JSON objects from LLM responses that are almost,
// but not quite, valid JSON: fenced code blocks, chatty prefixes, bare keys,
// trailing commas, truncated output.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractError is returned when no JSON object could be recovered from a
// model response. Callers dispatch on it to trigger their fallback paths.
type ExtractError struct {
	Raw    string
	Reason string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("json extraction failed: %s", e.Reason)
}

var (
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	bareKeyRe       = regexp.MustCompile(`([,{]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// Extract recovers the first JSON object from raw and unmarshals it into v.
// The repair sequence is: strip code fences, cut the first balanced {...}
// substring, strict parse, then quote bare keys and strip trailing commas,
// then truncate at the last position where bracket depth returns to zero.
func Extract(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return &ExtractError{Raw: raw, Reason: "empty response"}
	}

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	candidate, ok := firstBalancedObject(text)
	if !ok {
		return &ExtractError{Raw: raw, Reason: "no object found"}
	}

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	repaired := bareKeyRe.ReplaceAllString(candidate, `$1"$2"$3:`)
	repaired = trailingCommaRe.ReplaceAllString(repaired, `$1`)
	if err := json.Unmarshal([]byte(repaired), v); err == nil {
		return nil
	}

	truncated, ok := truncateAtDepthZero(repaired)
	if ok {
		if err := json.Unmarshal([]byte(truncated), v); err == nil {
			return nil
		}
	}

	return &ExtractError{Raw: raw, Reason: "unparseable after repair"}
}

// firstBalancedObject scans for the first '{' and returns the substring up
// to its matching '}'. String literals and escapes are honoured so braces
// inside values do not confuse the depth count. If the object never closes,
// the remainder of the string is returned for the repair passes to chew on.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return s[start:], true
}

// truncateAtDepthZero finds the last index at which brace/bracket depth
// returns to zero and cuts there. Recovers objects whose tail was cut off
// mid-generation but which contain a complete prefix.
func truncateAtDepthZero(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	last := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					last = i
				}
			}
		}
	}
	if last < 0 {
		return "", false
	}
	return s[:last+1], true
}
