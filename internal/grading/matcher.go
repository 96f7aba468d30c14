// Package grading implements the scoring pipeline: deterministic point
// matching, semantic fallback, holistic feedback, and score reconciliation.
package grading

import (
	"strings"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// Keyword-ratio thresholds for deterministic matching.
const (
	keywordRatioFull    = 0.8
	keywordRatioPartial = 0.4
)

// MatchOutcome is the deterministic matcher's verdict for one scoring point.
type MatchOutcome struct {
	Matched  bool
	Kind     domain.MatchKind
	Evidence string
	Ratio    float64
	// HardFail marks a must-contain gate failure; such points earn zero
	// and are not handed to the semantic fallback.
	HardFail bool
}

// MatchPoint runs cheap case-insensitive matching of one scoring point
// against the answer. It is pure and deterministic and runs before any
// network call.
//
// must_contain is a hard gate: if any required phrase is absent the point is
// not credited regardless of keyword overlap. Otherwise the match ratio is
// |matched terms| / max(1, |keywords|), where synonyms count toward the
// numerator but not the denominator.
func MatchPoint(answer string, p domain.ScoringPoint) MatchOutcome {
	lower := strings.ToLower(answer)

	for _, must := range p.MustContain {
		if must == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(must)) {
			return MatchOutcome{Kind: domain.MatchNone, HardFail: true}
		}
	}

	matched := matchedTerms(lower, p.Keywords, p.Synonyms)
	if len(matched) == 0 {
		return MatchOutcome{Kind: domain.MatchNone}
	}

	denom := len(p.Keywords)
	if denom < 1 {
		denom = 1
	}
	ratio := float64(len(matched)) / float64(denom)

	switch {
	case ratio >= keywordRatioFull:
		return MatchOutcome{Matched: true, Kind: domain.MatchKeyword, Evidence: strings.Join(matched, ", "), Ratio: ratio}
	case ratio >= keywordRatioPartial:
		return MatchOutcome{Matched: true, Kind: domain.MatchPartial, Evidence: strings.Join(matched, ", "), Ratio: ratio}
	default:
		return MatchOutcome{Kind: domain.MatchNone, Ratio: ratio}
	}
}

// matchedTerms returns the deduplicated keywords and synonyms present in the
// lowercased answer, in their authored order.
func matchedTerms(lowerAnswer string, keywords, synonyms []string) []string {
	seen := make(map[string]struct{}, len(keywords)+len(synonyms))
	var out []string
	for _, term := range append(append([]string{}, keywords...), synonyms...) {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if strings.Contains(lowerAnswer, t) {
			out = append(out, strings.TrimSpace(term))
		}
	}
	return out
}
