// Package pipeline wires the collectors, the aggregator, persistence, and
// report projection into one run. Failures are contained at the narrowest
// scope that can make progress: a bad filing does not sink its ticker, and a
// bad ticker does not sink the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"insiderflow/pkg/core/fundflow"
	"insiderflow/pkg/core/report"
	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/store"
	"insiderflow/pkg/logger"
)

const insiderFormType = "4"

// FilingSource is the acquisition boundary. The SEC client is the live
// implementation; tests substitute their own.
type FilingSource interface {
	Resolve(ctx context.Context, ticker string) (string, error)
	ListFilings(ctx context.Context, ticker, cik, formType string, maxCount int) ([]sec.FilingReference, error)
	FetchAndNormalize(ctx context.Context, ref sec.FilingReference) (*sec.NormalizedDocument, error)
}

// Runner executes the insider fund-flow pipeline.
type Runner struct {
	source  FilingSource
	reports *report.Writer
	db      store.Store
	keep    bool
}

func NewRunner(source FilingSource, reports *report.Writer) *Runner {
	return &Runner{source: source, reports: reports}
}

// SetStore attaches optional persistence. Without it, runs are file-only.
func (r *Runner) SetStore(db store.Store) {
	r.db = db
}

// SetKeepIntermediate keeps downloaded raw and normalized documents on disk
// after the run closes.
func (r *Runner) SetKeepIntermediate(keep bool) {
	r.keep = keep
}

// Result is one completed run.
type Result struct {
	Handle       *RunHandle
	Transactions []sec.Transaction
	Analysis     *fundflow.Analysis
}

// Run collects filings for every ticker, aggregates, persists, and writes
// reports. Callers close the returned handle when done with the run's
// intermediate files. A run with zero extractable transactions is not an
// error; it simply carries a nil Analysis.
func (r *Runner) Run(ctx context.Context, tickers []string, numFilings int) (*Result, error) {
	handle := newRunHandle(r.keep)
	logger.L.Info("pipeline run starting", "run", handle.ID, "tickers", tickers, "filings", numFilings)

	txs := r.collect(ctx, handle, tickers, numFilings)

	analysis, err := fundflow.Aggregate(txs)
	if err != nil {
		if errors.Is(err, fundflow.ErrNoData) {
			logger.L.Info("run produced no transactions", "run", handle.ID)
			return &Result{Handle: handle, Transactions: txs}, nil
		}
		return nil, fmt.Errorf("aggregate run %s: %w", handle.ID, err)
	}

	if r.db != nil {
		if err := r.db.SaveTransactions(ctx, txs); err != nil {
			return nil, fmt.Errorf("persist run %s: %w", handle.ID, err)
		}
	}

	if err := r.writeReports(analysis); err != nil {
		return nil, fmt.Errorf("report run %s: %w", handle.ID, err)
	}

	logger.L.Info("pipeline run complete", "run", handle.ID, "transactions", len(txs))
	return &Result{Handle: handle, Transactions: txs, Analysis: analysis}, nil
}

// collect walks the acquisition chain per ticker. Every failure is logged
// with its scope and skipped; whatever survives is returned.
func (r *Runner) collect(ctx context.Context, handle *RunHandle, tickers []string, numFilings int) []sec.Transaction {
	var txs []sec.Transaction
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			logger.L.Warn("run cancelled", "run", handle.ID, "error", ctx.Err())
			break
		}

		cik, err := r.source.Resolve(ctx, ticker)
		if err != nil {
			logger.L.Warn("skipping ticker", "ticker", ticker, "stage", "resolve", "error", err)
			continue
		}

		refs, err := r.source.ListFilings(ctx, ticker, cik, insiderFormType, numFilings)
		if err != nil {
			logger.L.Warn("skipping ticker", "ticker", ticker, "stage", "enumerate", "error", err)
			continue
		}
		if len(refs) == 0 {
			logger.L.Info("no filings on record", "ticker", ticker)
			continue
		}

		for _, ref := range refs {
			doc, err := r.source.FetchAndNormalize(ctx, ref)
			if err != nil {
				logger.L.Warn("skipping filing",
					"ticker", ticker, "accession", ref.AccessionNumber, "error", err)
				continue
			}
			handle.track(doc.Manifest.RawPath)
			handle.track(doc.Manifest.DocumentPath)

			txs = append(txs, sec.ExtractTransactions(doc.Doc, ticker)...)
		}
	}
	return txs
}

func (r *Runner) writeReports(analysis *fundflow.Analysis) error {
	tables := report.Tables(analysis)
	for _, t := range tables {
		if _, err := r.reports.WriteCSV(t); err != nil {
			return err
		}
		if _, err := r.reports.WriteJSON(t); err != nil {
			return err
		}
	}
	_, _, err := r.reports.WriteSummary("fund_flow_summary", tables)
	return err
}
