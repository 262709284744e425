// Package jsonrepair recovers JSON from model responses wrapped in
// formatting noise: markdown code fences, surrounding prose, stray
// backticks. Repair is separate from prompt construction so it can be
// tested against raw response fixtures.
package jsonrepair

import (
	"encoding/json"
	"strings"

	"github.com/chronolens/chronolens/internal/ai"
)

// Repair extracts the first JSON object or array from raw text and returns
// it ready for strict parsing. Returns a KindParse error when no JSON
// structure can be recovered.
func Repair(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ai.NewError(ai.KindParse, "empty response")
	}

	// Strip markdown code fences (```json ... ``` or ``` ... ```)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	text = strings.Trim(text, "`")
	text = strings.TrimSpace(text)

	// Locate the first structure; models often add leading/trailing prose
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	start, open, closer := objStart, byte('{'), byte('}')
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, open, closer = arrStart, '[', ']'
	}
	if start < 0 {
		return "", ai.NewError(ai.KindParse, "no JSON structure in response")
	}

	end := matchDelimiter(text, start, open, closer)
	if end < 0 {
		return "", ai.NewError(ai.KindParse, "unbalanced JSON structure in response")
	}
	text = text[start : end+1]

	// Leftover fence markers embedded mid-structure
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	return text, nil
}

// Parse repairs raw text and strictly unmarshals it into v
func Parse(raw string, v any) error {
	repaired, err := Repair(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return ai.WrapError(ai.KindParse, "failed to parse repaired response", err)
	}
	return nil
}

// matchDelimiter finds the index of the delimiter closing the structure
// opened at start, tracking nesting and skipping string literals.
func matchDelimiter(s string, start int, open, closer byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
