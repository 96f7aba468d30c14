package grading

import (
	"math"
	"strings"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/pkg/textx"
)

// Peripheral scoring heuristics. These are deterministic and cheap; their
// component scores only reach the final total through the degraded
// no-points hybrid path, but they are always reported on the result.

const (
	formatMaxScore   = 5.0
	languageMaxScore = 5.0
)

// formatCheckedTypes maps question-type tags to the structure expected of
// the answer. Types not listed skip the format check entirely.
var formatCheckedTypes = map[string]string{
	"应用文":      "salutation, body paragraphs, and a closing",
	"公文":       "heading, addressed recipient, body, and sign-off",
	"letter":   "salutation, body paragraphs, and a closing",
	"official": "heading, addressed recipient, body, and sign-off",
}

var conclusionMarkers = []string{"综上", "总之", "因此", "总而言之", "in conclusion", "overall", "to conclude", "in summary"}

// WordStats counts words and computes the over-limit deduction: half a point
// per started 50 words over the limit, capped at 2.0. Recorded on the
// result; the reconciler does not subtract it.
func WordStats(answer string, wordLimit int) (count int, deduction float64) {
	count = textx.CountWords(answer)
	if wordLimit <= 0 || count <= wordLimit {
		return count, 0
	}
	over := float64(count - wordLimit)
	deduction = math.Min(2.0, math.Ceil(over/50)*0.5)
	return count, deduction
}

// CheckFormat verifies the expected document structure for format-checked
// question types. Returns nil for types without a format expectation.
func CheckFormat(answer, questionType string) *domain.FormatCheck {
	expected, ok := formatCheckedTypes[strings.ToLower(strings.TrimSpace(questionType))]
	if !ok {
		expected, ok = formatCheckedTypes[strings.TrimSpace(questionType)]
	}
	if !ok {
		return nil
	}
	paras := textx.Paragraphs(answer)
	fc := &domain.FormatCheck{Expected: expected, MaxScore: formatMaxScore}
	score := formatMaxScore
	if len(paras) < 3 {
		fc.Issues = append(fc.Issues, "fewer than three paragraphs")
		score -= 2
	}
	if len(paras) > 0 && textx.CountWords(paras[0]) > 20 {
		fc.Issues = append(fc.Issues, "missing short salutation or heading line")
		score -= 1.5
	}
	if len(paras) > 1 && textx.CountWords(paras[len(paras)-1]) > 40 {
		fc.Issues = append(fc.Issues, "missing closing line")
		score -= 1.5
	}
	fc.Score = math.Max(0, score)
	fc.Passed = len(fc.Issues) == 0
	return fc
}

// AnalyzeLanguage scores surface language quality from sentence statistics.
func AnalyzeLanguage(answer string) *domain.LanguageAnalysis {
	la := &domain.LanguageAnalysis{MaxScore: languageMaxScore}
	sentences := splitSentences(answer)
	if len(sentences) == 0 {
		la.Score = 0
		la.Comments = append(la.Comments, "no complete sentences found")
		return la
	}
	score := languageMaxScore
	var longest int
	total := 0
	for _, s := range sentences {
		n := textx.CountWords(s)
		total += n
		if n > longest {
			longest = n
		}
	}
	avg := float64(total) / float64(len(sentences))
	if avg > 60 {
		la.Comments = append(la.Comments, "sentences run long on average; vary sentence length")
		score -= 1.5
	}
	if longest > 120 {
		la.Comments = append(la.Comments, "contains an overly long run-on sentence")
		score -= 1
	}
	if avg < 6 {
		la.Comments = append(la.Comments, "sentences are fragmentary; develop each idea further")
		score -= 1
	}
	la.Score = math.Max(0, score)
	return la
}

// AnalyzeStructure reports paragraph-level structure signals.
func AnalyzeStructure(answer string) *domain.StructureAnalysis {
	paras := textx.Paragraphs(answer)
	sa := &domain.StructureAnalysis{ParagraphCount: len(paras)}
	sa.HasIntro = len(paras) >= 2
	if len(paras) > 0 {
		last := strings.ToLower(paras[len(paras)-1])
		for _, m := range conclusionMarkers {
			if strings.Contains(last, m) {
				sa.HasConclusion = true
				break
			}
		}
	}
	switch {
	case len(paras) <= 1:
		sa.Comment = "single block of text; paragraphing would help"
	case !sa.HasConclusion:
		sa.Comment = "no explicit concluding paragraph"
	default:
		sa.Comment = "clear multi-paragraph structure with a conclusion"
	}
	return sa
}

func splitSentences(s string) []string {
	f := func(r rune) bool {
		switch r {
		case '。', '！', '？', '.', '!', '?', ';', '；':
			return true
		}
		return false
	}
	var out []string
	for _, part := range strings.FieldsFunc(s, f) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
