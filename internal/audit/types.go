// Package audit defines the dark-pattern audit data model and the pure logic
// that folds per-tile scan results into a session-wide verdict: catalog
// reconciliation (price-drift detection) and threat aggregation.
package audit

import (
	"encoding/json"
	"math"
	"strings"
)

// Severity of a single finding.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Known pattern categories. The enumeration is open: the backend may report
// categories outside this list and they are carried through verbatim.
const (
	CategoryBaitAndSwitch      = "BAIT-AND-SWITCH"
	CategoryScarcity           = "SCARCITY"
	CategoryVisualInterference = "VISUAL-INTERFERENCE"
	CategorySneakIn            = "SNEAK-IN"
	CategoryConfirmshaming     = "CONFIRMSHAMING"
	CategoryVerifiedFair       = "VERIFIED-FAIR"
)

// Box is a bounding box in the normalized 1000-unit image space, ordered
// [yMin, xMin, yMax, xMax]. The all-zero box means "no visual anchor" and is
// never rendered or counted as positioned.
type Box [4]int

// IsZero reports whether the box carries no visual anchor.
func (b Box) IsZero() bool {
	return b == Box{}
}

// Finding is one flagged deceptive UI element.
type Finding struct {
	Category    string   `json:"pattern_type"`
	Box         Box      `json:"box_2d"`
	Severity    Severity `json:"severity"`
	Truth       string   `json:"truth_label"`
	Remediation string   `json:"remediation"`

	// TileIndex records which tile produced the finding. Set by the
	// orchestrator after remapping; -1 for synthetic catalog findings.
	TileIndex int `json:"tile_index,omitempty"`
}

// Anchor is a tracked priced item whose price is compared across sightings
// to detect bait-and-switch drift.
type Anchor struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     string  `json:"price"`
	NumPrice  float64 `json:"num_price"`
	OrigPrice string  `json:"original_price,omitempty"`
	// OrigNumPrice is set once at first observation and never overwritten.
	// It is the baseline all later sightings are compared against.
	OrigNumPrice float64 `json:"original_num_price,omitempty"`
	Box          Box     `json:"box_2d"`
	Visible      bool    `json:"currently_visible"`
	Violated     bool    `json:"violated"`
}

// anchorJSON mirrors Anchor with nullable numeric prices. encoding/json
// rejects NaN, and an unknown price is NaN until a sighting resolves it.
type anchorJSON struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Price        string   `json:"price"`
	NumPrice     *float64 `json:"num_price"`
	OrigPrice    string   `json:"original_price,omitempty"`
	OrigNumPrice *float64 `json:"original_num_price,omitempty"`
	Box          Box      `json:"box_2d"`
	Visible      bool     `json:"currently_visible"`
	Violated     bool     `json:"violated"`
}

func nullableNum(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func numOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes unknown numeric prices as null.
func (a Anchor) MarshalJSON() ([]byte, error) {
	return json.Marshal(anchorJSON{
		ID: a.ID, Name: a.Name, Price: a.Price,
		NumPrice:  nullableNum(a.NumPrice),
		OrigPrice: a.OrigPrice, OrigNumPrice: nullableNum(a.OrigNumPrice),
		Box: a.Box, Visible: a.Visible, Violated: a.Violated,
	})
}

// UnmarshalJSON restores null or absent numeric prices to NaN.
func (a *Anchor) UnmarshalJSON(data []byte) error {
	var aux anchorJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Anchor{
		ID: aux.ID, Name: aux.Name, Price: aux.Price,
		NumPrice:  numOrNaN(aux.NumPrice),
		OrigPrice: aux.OrigPrice, OrigNumPrice: numOrNaN(aux.OrigNumPrice),
		Box: aux.Box, Visible: aux.Visible, Violated: aux.Violated,
	}
	return nil
}

// Signature is the carry-forward reconciliation context handed to each
// analysis call: the accumulated catalog plus a short narrative brief.
// It never includes raw finding history.
type Signature struct {
	Anchors []Anchor `json:"catalog_anchors"`
	Brief   string   `json:"security_brief"`
}

// ScanResult holds one tile's raw output from the analysis backend.
type ScanResult struct {
	Findings []Finding `json:"findings"`
	Anchors  []Anchor  `json:"catalog_anchors"`
	Path     string    `json:"reasoning_path"`
	Brief    string    `json:"security_brief"`
}

// ViewportStatus is the tri-state aggregate classification.
type ViewportStatus string

const (
	StatusSafe        ViewportStatus = "SAFE"
	StatusCaution     ViewportStatus = "CAUTION"
	StatusCompromised ViewportStatus = "COMPROMISED"
)

// rank orders statuses for monotonic folding.
func (s ViewportStatus) rank() int {
	switch s {
	case StatusCompromised:
		return 2
	case StatusCaution:
		return 1
	default:
		return 0
	}
}

// WorseOf returns the more severe of two statuses. The orchestrator uses it
// so a later low-severity tile never downgrades an earlier classification.
func WorseOf(a, b ViewportStatus) ViewportStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ViewportMeta is the derived aggregate recomputed after every tile. It is
// never persisted apart from the findings it summarizes.
type ViewportMeta struct {
	Count    int            `json:"count"`
	Status   ViewportStatus `json:"status"`
	Advisory string         `json:"advisory"`
}

// financialRiskMarkers identify categories that escalate straight to
// Compromised regardless of score.
var financialRiskMarkers = []string{"SWITCH", "BAIT", "SNEAK", "HIDDEN_FEE"}

func isFinancialRisk(category string) bool {
	upper := strings.ToUpper(category)
	for _, marker := range financialRiskMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
