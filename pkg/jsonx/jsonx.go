// Package jsonx recovers structured values from free-form model output.
//
// Models routinely wrap JSON in markdown fences, prepend prose, emit
// trailing commas, single-quoted or unquoted keys, and inline comments even
// when a JSON mode was requested. The functions here extract and repair such
// near-JSON text in tiers, stopping at the first tier that decodes.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedRe       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRe  = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)
)

// Extract slices the most plausible JSON candidate out of mixed content:
// the interior of a fenced code block if present, otherwise the span from
// the first '{' to the last '}', otherwise the trimmed text itself.
func Extract(text string) string {
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// Repair applies permissive fixes for the malformations models emit most:
// smart quotes, single-quoted strings, comments, trailing commas, and
// unquoted object keys. The output is best-effort; callers must still
// validate by decoding.
func Repair(s string) string {
	s = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'").Replace(s)
	s = stripCommentsAndNormalizeQuotes(s)
	s = blockCommentRe.ReplaceAllString(s, "")
	s = trailingComma.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	return strings.TrimSpace(s)
}

// stripCommentsAndNormalizeQuotes walks the text once, dropping // comments
// and converting single-quoted strings to double-quoted ones. Double-quoted
// string contents are left untouched.
func stripCommentsAndNormalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	inDouble, inSingle := false, false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inDouble:
			b.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else if r == '"' {
				inDouble = false
			}
		case inSingle:
			if r == '\\' && i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else if r == '\'' {
				b.WriteRune('"')
				inSingle = false
			} else if r == '"' {
				b.WriteString(`\"`)
			} else {
				b.WriteRune(r)
			}
		case r == '"':
			inDouble = true
			b.WriteRune(r)
		case r == '\'':
			inSingle = true
			b.WriteRune('"')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if i < len(runes) {
				b.WriteRune('\n')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeLenient decodes near-JSON text into out, reporting success. Tiers:
// decode the extracted candidate as-is, then after Repair, then as a bare
// literal token (numbers, booleans, quoted strings).
func DecodeLenient(text string, out any) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	candidate := Extract(text)
	if json.Unmarshal([]byte(candidate), out) == nil {
		return true
	}
	repaired := Repair(candidate)
	if json.Unmarshal([]byte(repaired), out) == nil {
		return true
	}
	lit := strings.Trim(repaired, "`\n\t ")
	return lit != "" && json.Unmarshal([]byte(lit), out) == nil
}

// Parse returns the decoded value of text, or fallback when no tier
// succeeds. It never returns an error: grading must degrade gracefully
// rather than abort over one malformed reply.
func Parse(text string, fallback any) any {
	var v any
	if DecodeLenient(text, &v) && v != nil {
		return v
	}
	return fallback
}
