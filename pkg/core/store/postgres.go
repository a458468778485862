package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/taiwan"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tw_institutional_investors (
	date TEXT,
	stock_code TEXT,
	stock_name TEXT,
	foreign_buy DOUBLE PRECISION,
	foreign_sell DOUBLE PRECISION,
	investment_trust_buy DOUBLE PRECISION,
	investment_trust_sell DOUBLE PRECISION,
	dealer_buy DOUBLE PRECISION,
	dealer_sell DOUBLE PRECISION,
	PRIMARY KEY (date, stock_code)
);
CREATE TABLE IF NOT EXISTS sec_form4_transactions (
	ticker TEXT,
	reporter_name TEXT,
	reporter_cik TEXT,
	security_title TEXT,
	transaction_date TEXT,
	transaction_code TEXT,
	shares DOUBLE PRECISION,
	price_per_share DOUBLE PRECISION,
	total_value DOUBLE PRECISION,
	transaction_type TEXT
);
`

type postgresStore struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return &postgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (s *postgresStore) SaveTransactions(ctx context.Context, txs []sec.Transaction) error {
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
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveTaiwanRows(ctx context.Context, rows []taiwan.Row) error {
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
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert institutional rows: %w", err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
