package grading

import (
	"math"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// Default hybrid blend weights for the degraded no-points rubric path.
// Fixed constants in the source behavior; kept configurable.
const (
	DefaultHybridAlgoWeight = 0.4
	DefaultHybridAIWeight   = 0.6
)

// ReconcileConfig carries the hybrid-fallback blend weights.
type ReconcileConfig struct {
	HybridAlgoWeight float64
	HybridAIWeight   float64
}

// normalized returns the config with zero values replaced by defaults.
func (c ReconcileConfig) normalized() ReconcileConfig {
	if c.HybridAlgoWeight <= 0 && c.HybridAIWeight <= 0 {
		return ReconcileConfig{HybridAlgoWeight: DefaultHybridAlgoWeight, HybridAIWeight: DefaultHybridAIWeight}
	}
	return c
}

// Reconciliation is the merged verdict of the two independent judges.
type Reconciliation struct {
	ContentScore float64
	TotalScore   float64
	MaxScore     float64
	PointsHit    int
	PointsTotal  int
	HitRate      float64
}

// Reconcile combines deterministic point matches with the model's holistic
// judgment into one final score.
//
// The merge rule is monotone "most generous but capped": the model's
// per-point judgment may recover points the string matcher missed, but never
// lowers a score the matcher already justified, and neither judge can push
// the total above the rubric ceiling. When the rubric has no authored points
// (maxPointsScore == 0), a hybrid blend of the algorithmic component total
// and the scaled holistic dimensions takes over against the question's own
// max score.
func Reconcile(
	matches []domain.PointMatch,
	fb domain.HolisticFeedback,
	maxPointsScore, questionMax, algorithmicTotal float64,
	cfg ReconcileConfig,
) Reconciliation {
	cfg = cfg.normalized()

	var deterministic float64
	for _, m := range matches {
		deterministic += m.EarnedScore
	}

	refined := deterministic
	if len(fb.ScoringDetails) > 0 {
		var aiSum float64
		for _, d := range fb.ScoringDetails {
			aiSum += d.Earned
		}
		refined = math.Max(deterministic, aiSum)
	}

	var content, total, maxScore float64
	if maxPointsScore > 0 {
		content = math.Max(0, math.Min(round1(refined), maxPointsScore))
		total = content
		maxScore = maxPointsScore
	} else {
		// Degraded rubric: no authored scoring points.
		aiScaled := 0.0
		if questionMax > 0 {
			aiScaled = fb.Dimensions.Sum() / 100 * questionMax
		}
		blended := cfg.HybridAlgoWeight*algorithmicTotal + cfg.HybridAIWeight*aiScaled
		content = math.Max(0, math.Min(round1(blended), questionMax))
		total = content
		maxScore = questionMax
	}

	hit, totalPoints := hitCounts(matches, fb.ScoringDetails)
	rate := 0.0
	if totalPoints > 0 {
		rate = float64(hit) / float64(totalPoints)
	}

	return Reconciliation{
		ContentScore: content,
		TotalScore:   total,
		MaxScore:     maxScore,
		PointsHit:    hit,
		PointsTotal:  totalPoints,
		HitRate:      rate,
	}
}

// hitCounts prefers the AI detail list when present, consistent with the
// trust rule that lets the model recover missed points.
func hitCounts(matches []domain.PointMatch, details []domain.ScoringDetail) (hit, total int) {
	if len(details) > 0 {
		for _, d := range details {
			if d.Earned > 0 {
				hit++
			}
		}
	} else {
		for _, m := range matches {
			if m.EarnedScore > 0 {
				hit++
			}
		}
	}
	total = len(matches)
	if len(details) > total {
		total = len(details)
	}
	return hit, total
}
