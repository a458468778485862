package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/taiwan"
)

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty DSN")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flows.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txs := []sec.Transaction{
		{
			Ticker: "AAPL", ReporterName: "DOE JANE", ReporterCIK: "0001",
			SecurityTitle: "Common Stock", Date: "2024-01-10", Code: "P",
			Shares: 100, PricePerShare: 10, TotalValue: 1000, Type: sec.Buy,
		},
		{
			Ticker: "AAPL", ReporterName: "SMITH JOHN", ReporterCIK: "0002",
			SecurityTitle: "Common Stock", Date: "2024-01-11", Code: "S",
			Shares: 50, PricePerShare: 20, TotalValue: 1000, Type: sec.Sell,
		},
	}
	if err := s.SaveTransactions(ctx, txs); err != nil {
		t.Fatal(err)
	}

	rows := []taiwan.Row{
		{Date: "2024-01-10", StockCode: "2330", StockName: "台積電", ForeignBuy: 1000, ForeignSell: 500},
	}
	if err := s.SaveTaiwanRows(ctx, rows); err != nil {
		t.Fatal(err)
	}
	// Same primary key again: ignored, not an error.
	if err := s.SaveTaiwanRows(ctx, rows); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", path))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var txCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM sec_form4_transactions").Scan(&txCount); err != nil {
		t.Fatal(err)
	}
	if txCount != 2 {
		t.Errorf("transactions persisted = %d, want 2", txCount)
	}

	var twCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM tw_institutional_investors").Scan(&twCount); err != nil {
		t.Fatal(err)
	}
	if twCount != 1 {
		t.Errorf("institutional rows = %d, want 1 (duplicate ignored)", twCount)
	}

	var txType string
	err = db.QueryRow("SELECT transaction_type FROM sec_form4_transactions WHERE transaction_code = 'P'").Scan(&txType)
	if err != nil {
		t.Fatal(err)
	}
	if txType != "BUY" {
		t.Errorf("transaction type = %q, want BUY", txType)
	}
}

func TestSaveNothingIsNoop(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "flows.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SaveTransactions(ctx, nil); err != nil {
		t.Errorf("empty transaction save: %v", err)
	}
	if err := s.SaveTaiwanRows(ctx, nil); err != nil {
		t.Errorf("empty institutional save: %v", err)
	}
}
