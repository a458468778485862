package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/taiwan"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tw_institutional_investors (
	date TEXT,
	stock_code TEXT,
	stock_name TEXT,
	foreign_buy REAL,
	foreign_sell REAL,
	investment_trust_buy REAL,
	investment_trust_sell REAL,
	dealer_buy REAL,
	dealer_sell REAL,
	PRIMARY KEY (date, stock_code)
);
CREATE TABLE IF NOT EXISTS sec_form4_transactions (
	ticker TEXT,
	reporter_name TEXT,
	reporter_cik TEXT,
	security_title TEXT,
	transaction_date TEXT,
	transaction_code TEXT,
	shares REAL,
	price_per_share REAL,
	total_value REAL,
	transaction_type TEXT
);
`

type sqliteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func openSQLite(ctx context.Context, path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &sqliteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (s *sqliteStore) SaveTransactions(ctx context.Context, txs []sec.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	builder := s.sb.Insert(form4Table).Columns(form4Columns...)
	for _, tx := range txs {
		builder = builder.Values(form4Values(tx)...)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build transaction insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func (s *sqliteStore) SaveTaiwanRows(ctx context.Context, rows []taiwan.Row) error {
	if len(rows) == 0 {
		return nil
	}
	builder := s.sb.Insert(taiwanTable).Columns(taiwanColumns...).
		Suffix("ON CONFLICT (date, stock_code) DO NOTHING")
	for _, r := range rows {
		builder = builder.Values(taiwanValues(r)...)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build institutional insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert institutional rows: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
