package perception

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"darksight/internal/audit"
	"darksight/internal/pricing"
	"darksight/internal/tiling"
)

// Wire format of one analysis response. Pointer fields distinguish a missing
// section from an empty one so schema validation can reject the former.
type scanPayload struct {
	Findings  *[]findingPayload `json:"findings"`
	Reasoning *reasoningPayload `json:"reasoning"`
}

type reasoningPayload struct {
	Path    *string          `json:"reasoning_path"`
	Brief   *string          `json:"security_brief"`
	Anchors *[]anchorPayload `json:"catalog_anchors"`
}

type findingPayload struct {
	Category    string    `json:"pattern_type"`
	Box         []float64 `json:"box_2d"`
	Severity    string    `json:"severity"`
	Truth       string    `json:"truth_label"`
	Remediation string    `json:"remediation"`
}

type anchorPayload struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Price    string    `json:"price"`
	NumPrice *float64  `json:"num_price"`
	Box      []float64 `json:"box_2d"`
	Violated bool      `json:"violated"`
	Visible  *bool     `json:"currently_visible"`
}

// decodeScanResult parses recovered JSON into a ScanResult, enforcing the
// response schema. A schema violation is reported as an error so the caller
// can route it through the same retry path as a transport failure.
func decodeScanResult(jsonStr string) (*audit.ScanResult, error) {
	var payload scanPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("response decode failed: %w", err)
	}

	if payload.Findings == nil {
		return nil, fmt.Errorf("%w: missing findings list", ErrSchema)
	}
	if payload.Reasoning == nil {
		return nil, fmt.Errorf("%w: missing reasoning object", ErrSchema)
	}
	r := payload.Reasoning
	if r.Path == nil {
		return nil, fmt.Errorf("%w: reasoning missing reasoning_path", ErrSchema)
	}
	if r.Brief == nil {
		return nil, fmt.Errorf("%w: reasoning missing security_brief", ErrSchema)
	}
	if r.Anchors == nil {
		return nil, fmt.Errorf("%w: reasoning missing catalog_anchors", ErrSchema)
	}

	result := &audit.ScanResult{
		Path:  *r.Path,
		Brief: *r.Brief,
	}

	for _, f := range *payload.Findings {
		result.Findings = append(result.Findings, audit.Finding{
			Category:    strings.TrimSpace(f.Category),
			Box:         clampBox(f.Box),
			Severity:    parseSeverity(f.Severity),
			Truth:       f.Truth,
			Remediation: f.Remediation,
		})
	}

	for _, a := range *r.Anchors {
		result.Anchors = append(result.Anchors, convertAnchor(a))
	}

	return result, nil
}

func convertAnchor(a anchorPayload) audit.Anchor {
	num := math.NaN()
	if a.NumPrice != nil && !math.IsNaN(*a.NumPrice) && !math.IsInf(*a.NumPrice, 0) {
		num = *a.NumPrice
	} else if a.Price != "" {
		// Oracle omitted the numeric price; derive it from the price text.
		num = pricing.Normalize(a.Price)
	}

	visible := true
	if a.Visible != nil {
		visible = *a.Visible
	}

	return audit.Anchor{
		ID:       strings.TrimSpace(a.ID),
		Name:     strings.TrimSpace(a.Name),
		Price:    a.Price,
		NumPrice: num,
		Box:      clampBox(a.Box),
		Violated: a.Violated,
		Visible:  visible,
	}
}

// clampBox rounds and clamps raw coordinates into [0,1000], guarding against
// an oracle returning out-of-range or non-numeric values. Anything that is
// not a four-element box collapses to the zero box ("no visual anchor").
func clampBox(raw []float64) audit.Box {
	if len(raw) != 4 {
		return audit.Box{}
	}
	var box audit.Box
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return audit.Box{}
		}
		c := int(math.Round(v))
		if c < 0 {
			c = 0
		}
		if c > tiling.BoxScale {
			c = tiling.BoxScale
		}
		box[i] = c
	}
	return box
}

func parseSeverity(s string) audit.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "CRITICAL":
		return audit.SeverityHigh
	case "MEDIUM", "MED":
		return audit.SeverityMedium
	default:
		return audit.SeverityLow
	}
}
