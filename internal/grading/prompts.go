package grading

import (
	"fmt"
	"strings"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// holisticSystemPrompt frames the Oracle as an essay-exam grader.
const holisticSystemPrompt = `You are a senior civil-service essay exam grader. You grade free-text answers against a rubric of weighted scoring points, produce evidence-backed per-point judgments, and write a professional multi-dimensional critique. Respond with ONLY valid JSON.`

// buildHolisticPrompt assembles the single full-context grading prompt.
// The structural contract matters here, not the wording: the response must
// carry the fields holisticPayload expects.
func buildHolisticPrompt(in HolisticInput) string {
	var points strings.Builder
	for i, p := range in.Points {
		fmt.Fprintf(&points, "%d. %s (max %.1f)\n", i+1, p.Content, p.MaxScore)
	}
	if points.Len() == 0 {
		points.WriteString("(no scoring points authored)\n")
	}
	qtype := in.QuestionType
	if qtype == "" {
		qtype = "essay"
	}
	strictness := ""
	if in.ExamLevel != "" {
		strictness = fmt.Sprintf("\nGrade with the strictness expected at the %q exam level.\n", in.ExamLevel)
	}

	return fmt.Sprintf(`Grade the following answer.
%s
Question (type: %s):
%s

Reference answer:
%s

Scoring points:
%s
Candidate answer:
%s

Grade step by step:
1. Reconstruct the candidate's chain of reasoning from the answer.
2. Build the ideal chain of reasoning from the reference answer and compare them, noting gaps.
3. Cross-check every scoring point against the answer: decide full, partial, or missed, cite the supporting evidence text, and list missing keywords for partial/missed points. Earned scores must be between 0 and the point's max.
4. Score four dimensions, each 0-25: content, structure, language, insight.
5. Write the narrative analysis, overall comment, strengths, weaknesses and concrete suggestions, plus a polished revision of the answer with sentence-level upgrades.

Respond with ONLY valid JSON in this structure:
{
  "analysis": "narrative analysis",
  "dimensions": {"content": 0, "structure": 0, "language": 0, "insight": 0},
  "overall_comment": "one-paragraph verdict",
  "strengths": ["..."],
  "weaknesses": ["..."],
  "suggestions": ["..."],
  "scoring_details": [
    {"point": "point text", "max_score": 0, "earned": 0, "status": "full|partial|missed", "evidence": "quote from answer", "missing_keywords": ["..."]}
  ],
  "logic_chain": {"user_chain": ["..."], "ideal_chain": ["..."], "gaps": ["..."], "suggestions": ["..."]},
  "polished_markup": "revision with [[additions]] marked",
  "polished_clean": "clean revision",
  "upgrades": [{"original": "...", "upgraded": "...", "reason": "..."}]
}

Rules:
- All scores are numbers, not strings.
- Do NOT include any text outside the JSON object.`, strictness, qtype, in.QuestionPrompt, in.ReferenceAnswer, points.String(), in.Answer)
}

// pointsSummary renders scoring points compactly for logging.
func pointsSummary(points []domain.ScoringPoint) string {
	names := make([]string, 0, len(points))
	for _, p := range points {
		names = append(names, truncate(p.Content, 24))
	}
	return strings.Join(names, "; ")
}
