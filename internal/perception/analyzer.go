// Package perception is the backend-facing layer of the auditor: it sends
// one tile image per call to a vision-capable model, recovers a structured
// result from whatever text comes back, and shields the rest of the system
// from transport and formatting failures.
package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"darksight/internal/audit"
	"darksight/internal/logging"
)

var (
	// ErrSchema marks a response that parsed but failed schema validation.
	ErrSchema = errors.New("response failed schema validation")
	// ErrExhausted marks an analysis call that failed all retry attempts.
	ErrExhausted = errors.New("analysis retries exhausted")
)

// Analyzer issues one remote analysis call per tile.
//
// The returned error is context.Canceled (or DeadlineExceeded) when the
// caller cancelled, and wraps ErrExhausted after the retry budget is spent.
// All recovery and retry logic lives behind this interface so everything
// above it is pure data transformation.
type Analyzer interface {
	Analyze(ctx context.Context, tilePNG []byte, sig audit.Signature) (*audit.ScanResult, error)
}

// visionCaller is the raw transport: one image plus one prompt in, model
// text out. Split from the Analyzer so retry and recovery can be tested
// without network access.
type visionCaller interface {
	generate(ctx context.Context, prompt string, png []byte) (string, error)
}

// RetryConfig controls the defensive retry behaviour around upstream rate
// limits and malformed responses.
type RetryConfig struct {
	Attempts int           // total attempts, including the first
	Backoff  time.Duration // per-attempt linear backoff unit
}

// DefaultRetryConfig matches the backend's observed rate-limit windows.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 5 * time.Second}
}

// TileAnalyzer implements Analyzer over a visionCaller with retry, response
// recovery, and schema validation.
type TileAnalyzer struct {
	caller visionCaller
	retry  RetryConfig
}

// NewTileAnalyzer wraps a raw caller with the default retry policy.
func NewTileAnalyzer(caller visionCaller, retry RetryConfig) *TileAnalyzer {
	if retry.Attempts <= 0 {
		retry = DefaultRetryConfig()
	}
	return &TileAnalyzer{caller: caller, retry: retry}
}

// Analyze sends one tile to the backend. Non-cancellation failures are
// retried with linearly increasing backoff; cancellation propagates
// immediately and is never retried or masked.
func (t *TileAnalyzer) Analyze(ctx context.Context, tilePNG []byte, sig audit.Signature) (*audit.ScanResult, error) {
	prompt, err := buildPrompt(sig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis context: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= t.retry.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 1 {
			backoff := time.Duration(attempt-1) * t.retry.Backoff
			logging.API("retrying tile analysis in %v (attempt %d/%d): %v",
				backoff, attempt, t.retry.Attempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		raw, err := t.caller.generate(ctx, prompt, tilePNG)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		result, err := parseScanResponse(raw)
		if err != nil {
			// Same retry path as a transport failure.
			lastErr = err
			logging.Get(logging.CategoryAPI).Warn("tile response rejected: %v", err)
			continue
		}

		logging.APIDebug("tile analysis succeeded on attempt %d (%d findings, %d anchors)",
			attempt, len(result.Findings), len(result.Anchors))
		return result, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, t.retry.Attempts, lastErr)
}

// parseScanResponse runs the recovery parser and schema validation over raw
// model text.
func parseScanResponse(raw string) (*audit.ScanResult, error) {
	jsonStr, err := RecoverJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return decodeScanResult(jsonStr)
}

// analysisContext is the reconciliation context sent with every call. It is
// deliberately narrow: catalog anchors and the brief, never finding history.
type analysisContext struct {
	Anchors []audit.Anchor `json:"catalog_anchors"`
	Brief   string         `json:"security_brief"`
}

func buildPrompt(sig audit.Signature) (string, error) {
	ctxJSON, err := json.Marshal(analysisContext{Anchors: sig.Anchors, Brief: sig.Brief})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(analysisInstruction, string(ctxJSON)), nil
}

// DegradedResult builds the empty Caution-level result a caller substitutes
// for a tile whose analysis exhausted its retries. The tile contributes
// nothing; policy on whether to continue belongs to the caller.
func DegradedResult(sig audit.Signature, err error) *audit.ScanResult {
	return &audit.ScanResult{
		Findings: nil,
		Anchors:  nil,
		Path:     fmt.Sprintf("analysis degraded: %v", err),
		Brief:    sig.Brief,
	}
}
