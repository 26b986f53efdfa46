// Package scan drives the tiled audit: it partitions the screenshot, walks
// the tiles strictly in order through the analysis backend, reconciles the
// price catalog after every tile, and emits progressive results so callers
// can display findings before the full image has been audited.
//
// Tiles are never processed in parallel: each tile's reconciliation context
// depends on the previous tile's merged catalog. Correctness rests on strict
// ordering, not mutual exclusion.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"darksight/internal/audit"
	"darksight/internal/logging"
	"darksight/internal/perception"
	"darksight/internal/tiling"
)

// Phase is where the orchestrator is inside the tile loop.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCoolingDown Phase = "cooling_down"
	PhaseRendering   Phase = "rendering"
	PhaseCalling     Phase = "calling"
	PhaseMerging     Phase = "merging"
	PhaseEmitting    Phase = "emitting"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeDone - all tiles processed.
	OutcomeDone Outcome = "done"
	// OutcomeCancelled - caller cancelled; already-emitted results stand.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeHalted - a tile exhausted its retries; earlier tiles' findings
	// are preserved and no further tiles were attempted.
	OutcomeHalted Outcome = "halted"
)

// DefaultCooldown is the pause before every tile except the first, keeping
// the run under the backend's rate limits.
const DefaultCooldown = 5 * time.Second

// Update is the progressive emission pushed to the sink after every tile,
// successful or degraded.
type Update struct {
	Findings  []audit.Finding
	Signature audit.Signature
	Meta      audit.ViewportMeta
	Err       string // non-empty when this tile degraded
	Tile      int    // 1-based tile just processed
	Total     int
}

// Sink receives progressive updates. Implementations must not retain the
// findings slice past the call; the orchestrator reuses its accumulator.
type Sink interface {
	Emit(Update)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Update)

// Emit calls f.
func (f SinkFunc) Emit(u Update) { f(u) }

// Job describes one full-image audit.
type Job struct {
	ImageHeight   int
	MaxTileHeight int // 0 means tiling default
	Overlap       int // 0 means tiling default

	// RenderTile encodes the pixel rows [offset, offset+height) as PNG.
	RenderTile func(offset, height int) ([]byte, error)

	// Signature carries the catalog and brief from earlier scans in this
	// session. Zero value starts a fresh session.
	Signature audit.Signature
}

// Report is the final accumulated state of a run. It is also returned for
// cancelled and halted runs, carrying everything emitted so far.
type Report struct {
	Findings  []audit.Finding
	Signature audit.Signature
	Meta      audit.ViewportMeta
	Outcome   Outcome
	Tiles     int // tiles fully processed
	Total     int
	Err       string // error marker for halted runs
}

// Orchestrator sequences tiles through the analyzer. One analysis call is in
// flight at a time; the signature is mutated only here, between calls.
type Orchestrator struct {
	analyzer perception.Analyzer
	sink     Sink
	cooldown time.Duration
}

// New creates an orchestrator. A nil sink discards updates; a non-positive
// cooldown uses the default.
func New(analyzer perception.Analyzer, sink Sink, cooldown time.Duration) *Orchestrator {
	if sink == nil {
		sink = SinkFunc(func(Update) {})
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Orchestrator{analyzer: analyzer, sink: sink, cooldown: cooldown}
}

// Run audits the full image tile by tile. It returns the accumulated report
// in every terminal state; the error is non-nil only for cancellation
// (ctx.Err()) so callers can distinguish it with errors.Is.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Report, error) {
	tiles := tiling.Plan(job.ImageHeight, job.MaxTileHeight, job.Overlap)
	if len(tiles) == 0 {
		return nil, fmt.Errorf("nothing to scan: image height %d", job.ImageHeight)
	}
	if job.RenderTile == nil {
		return nil, errors.New("job requires a RenderTile function")
	}

	report := &Report{
		Signature: job.Signature,
		Outcome:   OutcomeDone,
		Total:     len(tiles),
	}
	status := audit.StatusSafe

	logging.Scan("starting run: height=%d tiles=%d anchors=%d",
		job.ImageHeight, len(tiles), len(job.Signature.Anchors))

	for i, tile := range tiles {
		if i > 0 {
			o.phase(PhaseCoolingDown, tile.Index)
			if err := o.wait(ctx); err != nil {
				report.Outcome = OutcomeCancelled
				return report, err
			}
		}
		if err := ctx.Err(); err != nil {
			report.Outcome = OutcomeCancelled
			return report, err
		}

		o.phase(PhaseRendering, tile.Index)
		png, err := job.RenderTile(tile.Offset, tile.Height)
		if err != nil {
			o.degrade(report, &status, tile, fmt.Errorf("tile render failed: %w", err))
			return report, nil
		}

		o.phase(PhaseCalling, tile.Index)
		result, err := o.analyzer.Analyze(ctx, png, report.Signature)
		if err != nil {
			if ctx.Err() != nil {
				report.Outcome = OutcomeCancelled
				return report, ctx.Err()
			}
			o.degrade(report, &status, tile, err)
			return report, nil
		}

		o.phase(PhaseMerging, tile.Index)
		o.merge(report, result, tile, job.ImageHeight)

		meta := audit.Assess(report.Findings)
		status = audit.WorseOf(status, meta.Status)
		meta.Status = status
		report.Meta = meta
		report.Tiles = i + 1

		o.phase(PhaseEmitting, tile.Index)
		o.sink.Emit(Update{
			Findings:  report.Findings,
			Signature: report.Signature,
			Meta:      meta,
			Tile:      i + 1,
			Total:     len(tiles),
		})
	}

	logging.Scan("run complete: findings=%d status=%s", len(report.Findings), report.Meta.Status)
	return report, nil
}

// merge folds one tile's raw result into the accumulated report: findings
// and anchor boxes are remapped into full-image coordinates, the catalog is
// reconciled, and locally-derived drift findings are appended.
func (o *Orchestrator) merge(report *Report, result *audit.ScanResult, tile tiling.Tile, fullHeight int) {
	for _, f := range result.Findings {
		if !f.Box.IsZero() {
			f.Box = audit.Box(tiling.RemapBox([4]int(f.Box), tile.Offset, tile.Height, fullHeight))
		}
		f.TileIndex = tile.Index
		report.Findings = append(report.Findings, f)
	}

	incoming := make([]audit.Anchor, len(result.Anchors))
	for i, a := range result.Anchors {
		if !a.Box.IsZero() {
			a.Box = audit.Box(tiling.RemapBox([4]int(a.Box), tile.Offset, tile.Height, fullHeight))
		}
		incoming[i] = a
	}

	catalog, drift := audit.MergeAnchors(report.Signature.Anchors, incoming)
	if len(drift) > 0 {
		logging.Catalog("tile %d: %d price-drift findings", tile.Index, len(drift))
		report.Findings = append(report.Findings, drift...)
	}

	report.Signature.Anchors = catalog
	if result.Brief != "" {
		report.Signature.Brief = result.Brief
	}
}

// degrade records a tile that contributed nothing: the viewport drops to at
// least Caution, the error surfaces in the emission, and the loop halts with
// prior tiles' results intact.
func (o *Orchestrator) degrade(report *Report, status *audit.ViewportStatus, tile tiling.Tile, err error) {
	logging.Get(logging.CategoryScan).Error("tile %d degraded, halting: %v", tile.Index, err)

	degraded := perception.DegradedResult(report.Signature, err)
	report.Signature.Brief = degraded.Brief

	meta := audit.Assess(report.Findings)
	*status = audit.WorseOf(audit.WorseOf(*status, meta.Status), audit.StatusCaution)
	meta.Status = *status
	if meta.Advisory == "" || meta.Status == audit.StatusCaution && len(report.Findings) == 0 {
		meta.Advisory = "Audit incomplete: the analysis backend stopped responding before the full image was covered."
	}

	report.Meta = meta
	report.Outcome = OutcomeHalted
	report.Err = err.Error()

	o.sink.Emit(Update{
		Findings:  report.Findings,
		Signature: report.Signature,
		Meta:      meta,
		Err:       err.Error(),
		Tile:      tile.Index + 1,
		Total:     report.Total,
	})
}

// wait sleeps for the inter-tile cooldown, aborting immediately on
// cancellation rather than after the delay elapses.
func (o *Orchestrator) wait(ctx context.Context) error {
	timer := time.NewTimer(o.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) phase(p Phase, tile int) {
	logging.ScanDebug("tile %d: %s", tile, p)
}
