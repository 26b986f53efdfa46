package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"darksight/internal/audit"
	"darksight/internal/perception"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (a transitive dependency) starts a background worker
	// in its package init; it is not a leak from the code under test.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedAnalyzer returns one ScanResult (or error) per call, in order.
type scriptedAnalyzer struct {
	results []*audit.ScanResult
	errs    []error
	calls   int
	sigs    []audit.Signature
}

func (s *scriptedAnalyzer) Analyze(ctx context.Context, png []byte, sig audit.Signature) (*audit.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := s.calls
	s.calls++
	s.sigs = append(s.sigs, sig)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, fmt.Errorf("unexpected call %d", i)
}

func cleanResult(brief string) *audit.ScanResult {
	return &audit.ScanResult{Path: "inspected", Brief: brief}
}

func anchorResult(id, name, price string, num float64, brief string) *audit.ScanResult {
	return &audit.ScanResult{
		Anchors: []audit.Anchor{{
			ID: id, Name: name, Price: price, NumPrice: num,
			Box: audit.Box{100, 100, 200, 400}, Visible: true,
		}},
		Path:  "inspected pricing",
		Brief: brief,
	}
}

func renderBlank(offset, height int) ([]byte, error) {
	return []byte("png"), nil
}

// twoTileJob produces exactly two tiles: 1900 rows at maxTile 1000 overlap 100.
func twoTileJob() Job {
	return Job{
		ImageHeight:   1900,
		MaxTileHeight: 1000,
		Overlap:       100,
		RenderTile:    renderBlank,
	}
}

func newTestOrchestrator(a perception.Analyzer, sink Sink) *Orchestrator {
	return New(a, sink, time.Millisecond)
}

func TestRun_PriceDriftAcrossTiles(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		anchorResult("sku1", "Pro Plan", "$10.00", 10, "tracking one plan"),
		anchorResult("sku1", "Pro Plan", "$12.00", 12, "price changed"),
	}}

	report, err := newTestOrchestrator(analyzer, nil).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s, want done", report.Outcome)
	}

	var drift []audit.Finding
	for _, f := range report.Findings {
		if f.Category == audit.CategoryBaitAndSwitch {
			drift = append(drift, f)
		}
	}
	if len(drift) != 1 {
		t.Fatalf("got %d bait-and-switch findings, want exactly 1: %+v", len(drift), report.Findings)
	}
	if drift[0].Severity != audit.SeverityHigh {
		t.Errorf("drift severity = %s, want HIGH", drift[0].Severity)
	}
	if report.Meta.Status != audit.StatusCompromised {
		t.Errorf("final status = %s, want COMPROMISED", report.Meta.Status)
	}
	if len(report.Signature.Anchors) != 1 || !report.Signature.Anchors[0].Violated {
		t.Errorf("catalog = %+v, want one violated sku1 anchor", report.Signature.Anchors)
	}
}

func TestRun_CancelledDuringCooldown(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		anchorResult("sku1", "Pro Plan", "$10.00", 10, "tile one"),
		cleanResult("tile two"),
	}}

	var updates []Update
	sink := SinkFunc(func(u Update) {
		updates = append(updates, u)
	})

	ctx, cancel := context.WithCancel(context.Background())
	orch := New(analyzer, sink, 500*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	report, err := orch.Run(ctx, twoTileJob())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if report.Outcome != OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", report.Outcome)
	}
	if analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1 (tile 2 must not be issued)", analyzer.calls)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	if len(report.Signature.Anchors) != 1 {
		t.Errorf("tile 1 results lost on cancellation: %+v", report.Signature)
	}
}

func TestRun_HaltsWithPartialResultsOnExhaustion(t *testing.T) {
	findingResult := &audit.ScanResult{
		Findings: []audit.Finding{{
			Category: audit.CategoryScarcity,
			Box:      audit.Box{100, 100, 200, 400},
			Severity: audit.SeverityMedium,
			Truth:    "counter is fake",
		}},
		Path:  "inspected",
		Brief: "scarcity present",
	}
	analyzer := &scriptedAnalyzer{
		results: []*audit.ScanResult{findingResult, nil},
		errs:    []error{nil, fmt.Errorf("%w after 3 attempts", perception.ErrExhausted)},
	}

	var updates []Update
	sink := SinkFunc(func(u Update) { updates = append(updates, u) })

	report, err := newTestOrchestrator(analyzer, sink).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error = %v, degraded tiles must not error the run", err)
	}
	if report.Outcome != OutcomeHalted {
		t.Fatalf("outcome = %s, want halted", report.Outcome)
	}
	if len(report.Findings) != 1 {
		t.Errorf("prior tile findings lost: %+v", report.Findings)
	}
	if report.Err == "" {
		t.Error("halted report must carry an error marker")
	}
	if report.Meta.Status == audit.StatusSafe {
		t.Error("degraded run must surface at least Caution")
	}

	last := updates[len(updates)-1]
	if last.Err == "" {
		t.Error("degraded emission must carry the error string")
	}
}

func TestRun_StatusNeverDowngrades(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		{
			Findings: []audit.Finding{{
				Category: audit.CategorySneakIn,
				Box:      audit.Box{10, 10, 20, 20},
				Severity: audit.SeverityHigh,
			}},
			Path: "p", Brief: "sneak-in found",
		},
		cleanResult("clean region"),
	}}

	var statuses []audit.ViewportStatus
	sink := SinkFunc(func(u Update) { statuses = append(statuses, u.Meta.Status) })

	report, err := newTestOrchestrator(analyzer, sink).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if statuses[0] != audit.StatusCompromised {
		t.Fatalf("tile 1 status = %s, want COMPROMISED", statuses[0])
	}
	if statuses[1] != audit.StatusCompromised {
		t.Errorf("tile 2 downgraded status to %s", statuses[1])
	}
	if report.Meta.Status != audit.StatusCompromised {
		t.Errorf("final status = %s", report.Meta.Status)
	}
}

func TestRun_RemapsTileLocalBoxes(t *testing.T) {
	// Tile 1 (offset 900, height 1000) reports a finding at local y=500.
	// Globally that is (500/1000*1000 + 900) / 1900 * 1000 = 737.
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		cleanResult("tile one clean"),
		{
			Findings: []audit.Finding{{
				Category: audit.CategoryConfirmshaming,
				Box:      audit.Box{500, 100, 600, 400},
				Severity: audit.SeverityLow,
			}},
			Path: "p", Brief: "b",
		},
	}}

	report, err := newTestOrchestrator(analyzer, nil).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	f := report.Findings[0]
	if f.Box[0] != 737 {
		t.Errorf("remapped yMin = %d, want 737", f.Box[0])
	}
	if f.Box[1] != 100 || f.Box[3] != 400 {
		t.Errorf("x must pass through, got %v", f.Box)
	}
	if f.TileIndex != 1 {
		t.Errorf("provenance tile = %d, want 1", f.TileIndex)
	}
}

func TestRun_ZeroBoxNotRemapped(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		cleanResult("one"),
		{
			Findings: []audit.Finding{{
				Category: audit.CategoryVerifiedFair,
				Severity: audit.SeverityLow,
			}},
			Path: "p", Brief: "b",
		},
	}}

	report, err := newTestOrchestrator(analyzer, nil).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !report.Findings[0].Box.IsZero() {
		t.Errorf("no-anchor box must stay zero, got %v", report.Findings[0].Box)
	}
}

func TestRun_SignatureThreadedBetweenTiles(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{
		anchorResult("sku1", "Pro Plan", "$10.00", 10, "tracking one plan"),
		cleanResult("second region"),
	}}

	_, err := newTestOrchestrator(analyzer, nil).Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(analyzer.sigs) != 2 {
		t.Fatalf("analyzer saw %d signatures", len(analyzer.sigs))
	}
	if len(analyzer.sigs[0].Anchors) != 0 {
		t.Errorf("tile 1 should start from the job signature")
	}
	if len(analyzer.sigs[1].Anchors) != 1 || analyzer.sigs[1].Brief != "tracking one plan" {
		t.Errorf("tile 2 context = %+v, want tile 1's merged catalog and brief", analyzer.sigs[1])
	}
}

func TestRun_RenderFailureHalts(t *testing.T) {
	analyzer := &scriptedAnalyzer{results: []*audit.ScanResult{cleanResult("one")}}
	job := twoTileJob()
	calls := 0
	job.RenderTile = func(offset, height int) ([]byte, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("encode failed")
		}
		return []byte("png"), nil
	}

	report, err := newTestOrchestrator(analyzer, nil).Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Outcome != OutcomeHalted {
		t.Errorf("outcome = %s, want halted", report.Outcome)
	}
	if report.Tiles != 1 {
		t.Errorf("tiles processed = %d, want 1", report.Tiles)
	}
}

func TestRunner_SecondRunCancelsFirst(t *testing.T) {
	analyzer := &firstCallBlocks{started: make(chan struct{})}
	runner := NewRunner(New(analyzer, nil, time.Millisecond))

	firstDone := make(chan *Report, 1)
	go func() {
		report, _ := runner.Run(context.Background(), twoTileJob())
		firstDone <- report
	}()

	<-analyzer.started

	report, err := runner.Run(context.Background(), twoTileJob())
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if report.Outcome != OutcomeDone {
		t.Errorf("second run outcome = %s", report.Outcome)
	}

	select {
	case first := <-firstDone:
		if first.Outcome != OutcomeCancelled {
			t.Errorf("first run outcome = %s, want cancelled", first.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not wind down")
	}
}

func TestRunner_CancelStopsActiveRun(t *testing.T) {
	analyzer := &firstCallBlocks{started: make(chan struct{})}
	runner := NewRunner(New(analyzer, nil, time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), twoTileJob())
		done <- err
	}()

	<-analyzer.started
	runner.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel() did not stop the run")
	}
}

// firstCallBlocks parks its first Analyze call until the context is
// cancelled; later calls return clean results.
type firstCallBlocks struct {
	started chan struct{}
	calls   atomic.Int32
}

func (b *firstCallBlocks) Analyze(ctx context.Context, png []byte, sig audit.Signature) (*audit.ScanResult, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return cleanResult("clean"), nil
}
