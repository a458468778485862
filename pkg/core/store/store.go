// Package store persists collected records. Two backends share one
// interface: an embedded SQLite file for single-host runs and Postgres for
// shared deployments. The DSN scheme selects the backend.
package store

import (
	"context"
	"fmt"
	"strings"

	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/taiwan"
)

// Store is the persistence boundary for collected records.
type Store interface {
	SaveTransactions(ctx context.Context, txs []sec.Transaction) error
	SaveTaiwanRows(ctx context.Context, rows []taiwan.Row) error
	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql:// URLs
// open a connection pool, anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database DSN")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return openPostgres(ctx, dsn)
	}
	return openSQLite(ctx, dsn)
}

const (
	taiwanTable = "tw_institutional_investors"
	form4Table  = "sec_form4_transactions"
)

var taiwanColumns = []string{
	"date", "stock_code", "stock_name",
	"foreign_buy", "foreign_sell",
	"investment_trust_buy", "investment_trust_sell",
	"dealer_buy", "dealer_sell",
}

var form4Columns = []string{
	"ticker", "reporter_name", "reporter_cik",
	"security_title", "transaction_date", "transaction_code",
	"shares", "price_per_share", "total_value", "transaction_type",
}

func taiwanValues(r taiwan.Row) []any {
	return []any{
		r.Date, r.StockCode, r.StockName,
		r.ForeignBuy, r.ForeignSell,
		r.InvestmentTrustBuy, r.InvestmentTrustSell,
		r.DealerBuy, r.DealerSell,
	}
}

func form4Values(tx sec.Transaction) []any {
	return []any{
		tx.Ticker, tx.ReporterName, tx.ReporterCIK,
		tx.SecurityTitle, tx.Date, tx.Code,
		tx.Shares, tx.PricePerShare, tx.TotalValue, string(tx.Type),
	}
}
