package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"insiderflow/pkg/core/report"
	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/taiwan"
)

// --- Mocks ---

type mockSource struct {
	dir           string
	failResolve   map[string]bool
	failFilings   map[string]bool
	failAccession map[string]bool
	fetched       int
}

func (m *mockSource) Resolve(ctx context.Context, ticker string) (string, error) {
	if m.failResolve[ticker] {
		return "", fmt.Errorf("%w: %s", sec.ErrNotFound, ticker)
	}
	return "0000320193", nil
}

func (m *mockSource) ListFilings(ctx context.Context, ticker, cik, formType string, maxCount int) ([]sec.FilingReference, error) {
	if m.failFilings[ticker] {
		return nil, fmt.Errorf("%w: filing index for %s", sec.ErrUpstreamUnavailable, ticker)
	}
	refs := make([]sec.FilingReference, 0, maxCount)
	for i := 0; i < maxCount; i++ {
		refs = append(refs, sec.FilingReference{
			Ticker:          ticker,
			AccessionNumber: fmt.Sprintf("%s-%d", ticker, i),
		})
	}
	return refs, nil
}

func (m *mockSource) FetchAndNormalize(ctx context.Context, ref sec.FilingReference) (*sec.NormalizedDocument, error) {
	if m.failAccession[ref.AccessionNumber] {
		return nil, fmt.Errorf("%w: %s", sec.ErrExtractionFailed, ref.AccessionNumber)
	}
	m.fetched++

	rawPath := filepath.Join(m.dir, fmt.Sprintf("form4_%s_%d_raw.txt", ref.Ticker, m.fetched))
	docPath := filepath.Join(m.dir, fmt.Sprintf("form4_%s_%d.xml", ref.Ticker, m.fetched))
	os.WriteFile(rawPath, []byte("raw"), 0o644)
	os.WriteFile(docPath, []byte("doc"), 0o644)

	return &sec.NormalizedDocument{
		Manifest: sec.DownloadManifest{
			Ticker:          ref.Ticker,
			AccessionNumber: ref.AccessionNumber,
			RawPath:         rawPath,
			DocumentPath:    docPath,
			DownloadedAt:    time.Now(),
		},
		Doc: parsedDoc(sampleCode(ref.Ticker)),
	}, nil
}

// parsedDoc builds a one-transaction document via the repair machine so the
// mock stays aligned with the real parse shape.
func parsedDoc(code string) *sec.OwnershipDocument {
	content := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ownershipDocument>
  <documentType>4</documentType>
  <reportingOwner>
    <reportingOwnerId>
      <rptOwnerCik>0001</rptOwnerCik>
      <rptOwnerName>DOE JANE</rptOwnerName>
    </reportingOwnerId>
  </reportingOwner>
  <nonDerivativeTable>
    <nonDerivativeTransaction>
      <securityTitle><value>Common Stock</value></securityTitle>
      <transactionDate><value>2024-01-10</value></transactionDate>
      <transactionCoding><transactionCode>%s</transactionCode></transactionCoding>
      <transactionAmounts>
        <transactionShares><value>100</value></transactionShares>
        <transactionPricePerShare><value>10</value></transactionPricePerShare>
      </transactionAmounts>
    </nonDerivativeTransaction>
  </nonDerivativeTable>
</ownershipDocument>`, code)

	res := sec.ParseWithRepair([]byte(content))
	return res.Doc
}

func sampleCode(ticker string) string {
	if ticker == "MSFT" {
		return "S"
	}
	return "P"
}

type mockStore struct {
	txs    []sec.Transaction
	closed bool
}

func (m *mockStore) SaveTransactions(ctx context.Context, txs []sec.Transaction) error {
	m.txs = append(m.txs, txs...)
	return nil
}

func (m *mockStore) SaveTaiwanRows(ctx context.Context, rows []taiwan.Row) error { return nil }

func (m *mockStore) Close() error {
	m.closed = true
	return nil
}

// --- Tests ---

func newTestRunner(t *testing.T, src *mockSource) *Runner {
	t.Helper()
	src.dir = t.TempDir()
	return NewRunner(src, report.NewWriter(t.TempDir()))
}

func TestRunEndToEnd(t *testing.T) {
	src := &mockSource{}
	r := newTestRunner(t, src)

	db := &mockStore{}
	r.SetStore(db)

	result, err := r.Run(context.Background(), []string{"AAPL", "MSFT"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer result.Handle.Close()

	if len(result.Transactions) != 4 {
		t.Fatalf("transactions = %d, want 4", len(result.Transactions))
	}
	if result.Analysis == nil {
		t.Fatal("missing analysis")
	}
	if len(db.txs) != 4 {
		t.Errorf("persisted = %d, want 4", len(db.txs))
	}
	if result.Handle.ID == "" {
		t.Error("run handle has no ID")
	}
}

func TestRunContainsTickerFailures(t *testing.T) {
	src := &mockSource{
		failResolve: map[string]bool{"BAD1": true},
		failFilings: map[string]bool{"BAD2": true},
	}
	r := newTestRunner(t, src)

	result, err := r.Run(context.Background(), []string{"BAD1", "AAPL", "BAD2"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer result.Handle.Close()

	if len(result.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1 (healthy ticker only)", len(result.Transactions))
	}
	if result.Transactions[0].Ticker != "AAPL" {
		t.Errorf("ticker = %q, want AAPL", result.Transactions[0].Ticker)
	}
}

func TestRunContainsFilingFailures(t *testing.T) {
	src := &mockSource{
		failAccession: map[string]bool{"AAPL-0": true},
	}
	r := newTestRunner(t, src)

	result, err := r.Run(context.Background(), []string{"AAPL"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer result.Handle.Close()

	if len(result.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2 (one filing skipped)", len(result.Transactions))
	}
}

func TestRunWithNoData(t *testing.T) {
	src := &mockSource{failResolve: map[string]bool{"AAPL": true}}
	r := newTestRunner(t, src)

	result, err := r.Run(context.Background(), []string{"AAPL"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer result.Handle.Close()

	if result.Analysis != nil {
		t.Error("expected nil analysis for an empty run")
	}
}

func TestHandleCleanup(t *testing.T) {
	src := &mockSource{}
	r := newTestRunner(t, src)

	result, err := r.Run(context.Background(), []string{"AAPL"}, 2)
	if err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(src.dir)
	if len(entries) != 4 {
		t.Fatalf("intermediate files = %d, want 4 before close", len(entries))
	}

	if err := result.Handle.Close(); err != nil {
		t.Fatal(err)
	}
	entries, _ = os.ReadDir(src.dir)
	if len(entries) != 0 {
		t.Errorf("intermediate files = %d after close, want 0", len(entries))
	}
}

func TestHandleKeepsIntermediate(t *testing.T) {
	src := &mockSource{}
	r := newTestRunner(t, src)
	r.SetKeepIntermediate(true)

	result, err := r.Run(context.Background(), []string{"AAPL"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Handle.Close(); err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(src.dir)
	if len(entries) != 2 {
		t.Errorf("intermediate files = %d after close, want 2 kept", len(entries))
	}
}
