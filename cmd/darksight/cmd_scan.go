package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"darksight/cmd/darksight/ui"
	"darksight/internal/audit"
	"darksight/internal/capture"
	"darksight/internal/perception"
	"darksight/internal/scan"
	"darksight/internal/store"
)

var freshSession bool

var scanCmd = &cobra.Command{
	Use:   "scan [url|screenshot.png]",
	Short: "Audit a page or screenshot for dark patterns",
	Long: `Captures a full-page screenshot (or loads one from disk), partitions it
into overlapping tiles, and runs each tile through the vision analysis
backend. Findings stream to the terminal as each tile completes.

The price catalog persists across scans in the same session, so re-scanning
a page after navigation detects prices that changed behind the user's back.
Use --fresh to start a new session.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&freshSession, "fresh", false, "discard the persisted session signature")
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := loadSource(ctx, target)
	if err != nil {
		return err
	}

	analyzer, err := perception.NewGeminiAnalyzer(ctx, perception.GeminiConfig{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
	}, perception.RetryConfig{
		Attempts: cfg.Scan.RetryAttempts,
		Backoff:  cfg.GetRetryBackoff(),
	})
	if err != nil {
		return err
	}

	// Persistence is best-effort: a broken store degrades to a fresh
	// in-memory session rather than blocking the audit.
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		logger.Warn("session store unavailable, continuing without persistence", zap.Error(err))
		st = nil
	} else {
		defer st.Close()
	}

	var sig audit.Signature
	if st != nil && !freshSession {
		loaded, ok, err := st.LoadSignature()
		if err != nil {
			logger.Warn("could not load session signature", zap.Error(err))
		} else if ok {
			sig = loaded
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n",
				ui.Dim(fmt.Sprintf("resuming session: %d tracked prices", len(sig.Anchors))))
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", ui.Title("Auditing"), target)

	runner := scan.NewRunner(scan.New(analyzer, newReportSink(out), cfg.GetCooldown()))
	report, err := runner.Run(ctx, scan.Job{
		ImageHeight:   src.Height(),
		MaxTileHeight: cfg.Scan.MaxTileHeight,
		Overlap:       cfg.Scan.Overlap,
		RenderTile:    src.RenderTile,
		Signature:     sig,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && report != nil {
			fmt.Fprintf(out, "\n%s\n", ui.Dim("scan cancelled; partial results below"))
		} else {
			return err
		}
	}

	printSummary(out, report)
	persist(st, uuid.NewString(), target, report)
	return nil
}

// loadSource captures a URL or loads an on-disk PNG depending on the target.
func loadSource(ctx context.Context, target string) (*capture.Source, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return capture.CapturePage(ctx, target)
	}
	return capture.FromFile(target)
}

// reportSink streams per-tile progress to the terminal.
type reportSink struct {
	out  io.Writer
	seen int
}

func newReportSink(out io.Writer) *reportSink {
	return &reportSink{out: out}
}

func (r *reportSink) Emit(u scan.Update) {
	fmt.Fprintf(r.out, "\n%s %s\n",
		ui.Dim(fmt.Sprintf("tile %d/%d", u.Tile, u.Total)), ui.StatusBadge(u.Meta.Status))
	if u.Err != "" {
		fmt.Fprintf(r.out, "  %s\n", ui.Dim("analysis degraded: "+u.Err))
	}
	// Print only findings new since the previous tile.
	for _, f := range u.Findings[r.seen:] {
		fmt.Fprintf(r.out, "  %s\n", ui.FindingLine(f))
	}
	r.seen = len(u.Findings)
}

func printSummary(out io.Writer, report *scan.Report) {
	fmt.Fprintf(out, "\n%s %s  %s\n", ui.Title("Verdict:"), ui.StatusBadge(report.Meta.Status),
		ui.Dim(fmt.Sprintf("%d findings across %d/%d tiles", len(report.Findings), report.Tiles, report.Total)))
	if report.Meta.Advisory != "" {
		fmt.Fprintf(out, "%s\n", report.Meta.Advisory)
	}
	if len(report.Signature.Anchors) > 0 {
		fmt.Fprintf(out, "\n%s\n", ui.Title("Tracked prices"))
		for _, a := range report.Signature.Anchors {
			fmt.Fprintln(out, ui.AnchorLine(a))
		}
	}
}

// persist saves the signature and history row; failures are logged only.
func persist(st *store.AuditStore, runID, target string, report *scan.Report) {
	if st == nil {
		return
	}
	if err := st.SaveSignature(report.Signature); err != nil {
		logger.Warn("could not persist session signature", zap.Error(err))
	}
	err := st.AppendHistory(store.HistoryEntry{
		RunID:    runID,
		Target:   target,
		Status:   report.Meta.Status,
		Score:    audit.Score(report.Findings),
		Findings: report.Findings,
		Tiles:    report.Tiles,
		Total:    report.Total,
		Outcome:  string(report.Outcome),
	})
	if err != nil {
		logger.Warn("could not record scan history", zap.Error(err))
	}
}
