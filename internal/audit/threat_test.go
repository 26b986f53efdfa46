package audit

import "testing"

func find(category string, sev Severity) Finding {
	return Finding{Category: category, Severity: sev, Box: Box{10, 10, 20, 20}}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     ViewportStatus
	}{
		{"no findings", nil, StatusSafe},
		{"single low", []Finding{find(CategoryScarcity, SeverityLow)}, StatusCaution},
		{"three medium score nine", []Finding{
			find(CategoryScarcity, SeverityMedium),
			find(CategoryConfirmshaming, SeverityMedium),
			find(CategoryVisualInterference, SeverityMedium),
		}, StatusCaution},
		{"single high score ten", []Finding{find(CategoryVisualInterference, SeverityHigh)}, StatusCaution},
		{"score reaches fifteen", []Finding{
			find(CategoryVisualInterference, SeverityHigh),
			find(CategoryScarcity, SeverityMedium),
			find(CategoryConfirmshaming, SeverityMedium),
		}, StatusCompromised},
		{"bait category escalates regardless of score", []Finding{find(CategoryBaitAndSwitch, SeverityLow)}, StatusCompromised},
		{"sneak category escalates", []Finding{find(CategorySneakIn, SeverityLow)}, StatusCompromised},
		{"hidden fee marker in open enumeration", []Finding{find("HIDDEN_FEE_DISCLOSURE", SeverityLow)}, StatusCompromised},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Assess(tt.findings)
			if meta.Status != tt.want {
				t.Errorf("Assess() status = %s, want %s (score %d)", meta.Status, tt.want, Score(tt.findings))
			}
			if meta.Count != len(tt.findings) {
				t.Errorf("Assess() count = %d, want %d", meta.Count, len(tt.findings))
			}
			if meta.Advisory == "" {
				t.Error("Assess() produced empty advisory")
			}
		})
	}
}

func TestScore(t *testing.T) {
	findings := []Finding{
		find(CategoryScarcity, SeverityHigh),
		find(CategoryScarcity, SeverityMedium),
		find(CategoryScarcity, SeverityLow),
	}
	if got := Score(findings); got != 14 {
		t.Errorf("Score() = %d, want 14", got)
	}
}

func TestWorseOf(t *testing.T) {
	if got := WorseOf(StatusCompromised, StatusSafe); got != StatusCompromised {
		t.Errorf("WorseOf must never downgrade, got %s", got)
	}
	if got := WorseOf(StatusSafe, StatusCaution); got != StatusCaution {
		t.Errorf("WorseOf(Safe, Caution) = %s, want Caution", got)
	}
	if got := WorseOf(StatusCaution, StatusCaution); got != StatusCaution {
		t.Errorf("WorseOf identity = %s", got)
	}
}
