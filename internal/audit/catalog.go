package audit

import (
	"fmt"
	"math"
	"strings"
)

// DriftThreshold is the absolute price difference, in catalog currency
// units, above which a repeat sighting counts as bait-and-switch drift.
const DriftThreshold = 0.01

// MergeAnchors folds one tile's incoming anchor observations into the
// session catalog and returns the updated catalog together with synthetic
// findings for newly or still violated anchors.
//
// Matching is by identifier first, then by case-insensitive trimmed name.
// The first sighting of an anchor establishes its baseline price and is
// never itself a violation; once an anchor is flagged it stays flagged for
// the rest of the session. Observations carrying neither identifier nor name
// cannot be matched and are skipped.
func MergeAnchors(catalog, incoming []Anchor) ([]Anchor, []Finding) {
	merged := make([]Anchor, len(catalog))
	copy(merged, catalog)

	for _, obs := range incoming {
		if obs.ID == "" && strings.TrimSpace(obs.Name) == "" {
			continue
		}

		idx := findAnchor(merged, obs)
		if idx < 0 {
			merged = append(merged, firstSighting(obs))
			continue
		}
		merged[idx] = reconcile(merged[idx], obs)
	}

	return merged, driftFindings(catalog, merged)
}

// findAnchor locates an existing catalog entry for the observation.
func findAnchor(catalog []Anchor, obs Anchor) int {
	if obs.ID != "" {
		for i, a := range catalog {
			if a.ID == obs.ID {
				return i
			}
		}
	}
	name := strings.TrimSpace(strings.ToLower(obs.Name))
	if name == "" {
		return -1
	}
	for i, a := range catalog {
		if strings.TrimSpace(strings.ToLower(a.Name)) == name {
			return i
		}
	}
	return -1
}

// firstSighting builds a fresh catalog entry. Current values become the
// baseline and the violation flag is forced false: the backend may not
// declare a first sighting violated.
func firstSighting(obs Anchor) Anchor {
	obs.OrigPrice = obs.Price
	obs.OrigNumPrice = obs.NumPrice
	obs.Violated = false
	return obs
}

// reconcile merges a repeat observation into its existing anchor. The
// existing identifier and baseline price fields are retained; everything
// else comes from the observation.
func reconcile(existing, obs Anchor) Anchor {
	// NaN is the only "baseline never captured" sentinel: a zero baseline is
	// a legitimately free item and must not rebase.
	baseline := existing.OrigNumPrice
	if math.IsNaN(baseline) {
		// Adopt the incoming price so a later sighting still has something
		// to compare against.
		baseline = obs.NumPrice
		existing.OrigPrice = obs.Price
		existing.OrigNumPrice = obs.NumPrice
	}

	drifted := priceDrifted(obs.NumPrice, baseline)
	// The backend's own flag is a hint, not a verdict: it only counts when
	// the numeric drift independently exceeds the threshold.
	violated := existing.Violated || drifted || (obs.Violated && drifted)

	out := existing
	out.Name = obs.Name
	out.Price = obs.Price
	out.NumPrice = obs.NumPrice
	out.Box = obs.Box
	out.Visible = obs.Visible
	out.Violated = violated
	return out
}

func priceDrifted(current, baseline float64) bool {
	if math.IsNaN(current) || math.IsNaN(baseline) {
		return false
	}
	return math.Abs(current-baseline) > DriftThreshold
}

// driftFindings emits one synthetic High finding per violated anchor that is
// currently visible with a real bounding box. These are locally derived and
// deliberately distinct from anything the backend reports itself. An anchor
// that was already renderable-and-violated before this merge does not emit
// again: a violation that stays on screen yields one finding, and re-emits
// only after it leaves the viewport and becomes renderable again.
func driftFindings(before, after []Anchor) []Finding {
	var findings []Finding
	for _, a := range after {
		if !a.Violated || a.Box.IsZero() || !a.Visible {
			continue
		}
		if prev := lookupAnchor(before, a); prev != nil &&
			prev.Violated && !prev.Box.IsZero() && prev.Visible {
			continue
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		findings = append(findings, Finding{
			Category: CategoryBaitAndSwitch,
			Box:      a.Box,
			Severity: SeverityHigh,
			Truth: fmt.Sprintf("%s was first seen at %s but is now listed at %s",
				name, a.OrigPrice, a.Price),
			Remediation: fmt.Sprintf("Re-verify the order total: %s changed price after first sighting (%s -> %s)",
				name, a.OrigPrice, a.Price),
			TileIndex: -1,
		})
	}
	return findings
}

func lookupAnchor(catalog []Anchor, a Anchor) *Anchor {
	if idx := findAnchor(catalog, a); idx >= 0 {
		return &catalog[idx]
	}
	return nil
}
