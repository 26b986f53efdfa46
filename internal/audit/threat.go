package audit

import "fmt"

// Severity weights for the running threat score.
const (
	weightHigh   = 10
	weightMedium = 3
	weightLow    = 1

	// compromisedScore is the score at which the viewport is classified
	// Compromised independent of category.
	compromisedScore = 15
)

// Score sums severity weights over the cumulative finding list.
func Score(findings []Finding) int {
	score := 0
	for _, f := range findings {
		switch f.Severity {
		case SeverityHigh:
			score += weightHigh
		case SeverityMedium:
			score += weightMedium
		case SeverityLow:
			score += weightLow
		}
	}
	return score
}

// Assess recomputes the viewport classification from the cumulative finding
// list. A single financial-risk category (bait/switch/sneak/hidden-fee)
// escalates straight to Compromised regardless of score.
func Assess(findings []Finding) ViewportMeta {
	score := Score(findings)

	status := StatusSafe
	switch {
	case score >= compromisedScore:
		status = StatusCompromised
	case score > 0:
		status = StatusCaution
	}
	for _, f := range findings {
		if isFinancialRisk(f.Category) {
			status = StatusCompromised
			break
		}
	}

	return ViewportMeta{
		Count:    len(findings),
		Status:   status,
		Advisory: advisory(status, len(findings)),
	}
}

func advisory(status ViewportStatus, count int) string {
	switch status {
	case StatusCompromised:
		return fmt.Sprintf("%d deceptive elements detected, including financial-risk patterns. Do not proceed without re-verifying prices and totals.", count)
	case StatusCaution:
		return fmt.Sprintf("%d manipulative elements detected. Review highlighted regions before continuing.", count)
	default:
		return "No deceptive patterns detected in the audited region."
	}
}
