package perception

import (
	"errors"
	"math"
	"testing"

	"darksight/internal/audit"
)

const validResponse = `{
	"findings": [
		{"pattern_type": "SCARCITY", "box_2d": [100, 50, 200, 950], "severity": "MEDIUM",
		 "truth_label": "Timer resets on reload", "remediation": "Ignore the countdown"}
	],
	"reasoning": {
		"reasoning_path": "inspected pricing section",
		"security_brief": "one scarcity pattern present",
		"catalog_anchors": [
			{"id": "sku1", "name": "Pro Plan", "price": "$10.00", "num_price": 10.0,
			 "box_2d": [300, 100, 350, 400], "violated": false, "currently_visible": true}
		]
	}
}`

func TestDecodeScanResult_Valid(t *testing.T) {
	result, err := decodeScanResult(validResponse)
	if err != nil {
		t.Fatalf("decodeScanResult() error: %v", err)
	}
	if len(result.Findings) != 1 || len(result.Anchors) != 1 {
		t.Fatalf("got %d findings, %d anchors", len(result.Findings), len(result.Anchors))
	}
	f := result.Findings[0]
	if f.Category != "SCARCITY" || f.Severity != audit.SeverityMedium {
		t.Errorf("finding = %+v", f)
	}
	if result.Anchors[0].NumPrice != 10.0 {
		t.Errorf("anchor num price = %v, want 10", result.Anchors[0].NumPrice)
	}
	if result.Brief != "one scarcity pattern present" {
		t.Errorf("brief = %q", result.Brief)
	}
}

func TestDecodeScanResult_SchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing findings", `{"reasoning":{"reasoning_path":"p","security_brief":"b","catalog_anchors":[]}}`},
		{"missing reasoning", `{"findings":[]}`},
		{"missing reasoning_path", `{"findings":[],"reasoning":{"security_brief":"b","catalog_anchors":[]}}`},
		{"missing security_brief", `{"findings":[],"reasoning":{"reasoning_path":"p","catalog_anchors":[]}}`},
		{"missing catalog_anchors", `{"findings":[],"reasoning":{"reasoning_path":"p","security_brief":"b"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeScanResult(tt.input)
			if !errors.Is(err, ErrSchema) {
				t.Errorf("decodeScanResult() error = %v, want ErrSchema", err)
			}
		})
	}
}

func TestDecodeScanResult_EmptySectionsAreValid(t *testing.T) {
	input := `{"findings":[],"reasoning":{"reasoning_path":"","security_brief":"","catalog_anchors":[]}}`
	result, err := decodeScanResult(input)
	if err != nil {
		t.Fatalf("empty-but-present sections must pass: %v", err)
	}
	if len(result.Findings) != 0 || len(result.Anchors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestClampBox(t *testing.T) {
	tests := []struct {
		name string
		raw  []float64
		want audit.Box
	}{
		{"in range rounds", []float64{10.4, 20.6, 30, 40}, audit.Box{10, 21, 30, 40}},
		{"negative clamps to zero", []float64{-5, 0, 100, 100}, audit.Box{0, 0, 100, 100}},
		{"overflow clamps to scale", []float64{0, 0, 1500, 2000}, audit.Box{0, 0, 1000, 1000}},
		{"wrong arity collapses", []float64{1, 2, 3}, audit.Box{}},
		{"nil collapses", nil, audit.Box{}},
		{"nan collapses", []float64{math.NaN(), 0, 0, 0}, audit.Box{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampBox(tt.raw); got != tt.want {
				t.Errorf("clampBox(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestConvertAnchor_DerivesNumericPrice(t *testing.T) {
	a := convertAnchor(anchorPayload{ID: "sku1", Name: "Plan", Price: "$12.00"})
	if a.NumPrice != 12.0 {
		t.Errorf("NumPrice = %v, want 12 derived from price text", a.NumPrice)
	}

	a = convertAnchor(anchorPayload{ID: "sku1", Name: "Plan"})
	if !math.IsNaN(a.NumPrice) {
		t.Errorf("NumPrice = %v, want NaN when no price available", a.NumPrice)
	}
}

func TestConvertAnchor_VisibilityDefaultsTrue(t *testing.T) {
	a := convertAnchor(anchorPayload{ID: "sku1"})
	if !a.Visible {
		t.Error("missing currently_visible should default to visible")
	}
}
