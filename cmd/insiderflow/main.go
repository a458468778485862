package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"insiderflow/pkg/core/config"
	"insiderflow/pkg/core/market"
	"insiderflow/pkg/core/pipeline"
	"insiderflow/pkg/core/report"
	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/core/store"
	"insiderflow/pkg/core/taiwan"
	"insiderflow/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML or HJSON config file")
		tickerList = flag.String("tickers", "", "comma-separated tickers (overrides config)")
		numFilings = flag.Int("filings", 0, "filings to fetch per ticker (overrides config)")
		days       = flag.Int("days", 0, "lookback window in days for market data (overrides config)")
		outDir     = flag.String("out", "", "data directory root (overrides config)")
		dbDSN      = flag.String("db", "", "database DSN: postgres:// URL or SQLite file path")
		keep       = flag.Bool("keep-intermediate", false, "keep downloaded filings after the run")
		withTW     = flag.Bool("tw", false, "also collect TWSE institutional-investor data")
		withMarket = flag.Bool("market", false, "also collect ETF/sector/index market data")
		logLevel   = flag.String("log-level", "", "debug, info, warn, or error (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *tickerList != "" {
		cfg.Tickers = splitTickers(*tickerList)
	}
	if *numFilings > 0 {
		cfg.NumFilings = *numFilings
	}
	if *days > 0 {
		cfg.Days = *days
	}
	if *outDir != "" {
		cfg.DataDir = *outDir
	}
	if *dbDSN != "" {
		cfg.DatabaseDSN = *dbDSN
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger.Init(cfg.LogLevel)

	if err := cfg.EnsureDirectories(); err != nil {
		logger.L.Error("prepare data directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *keep, *withTW, *withMarket); err != nil {
		logger.L.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, keep, withTW, withMarket bool) error {
	secClient := sec.NewClient(cfg.SECEmail, cfg.Form4DownloadDir())
	reports := report.NewWriter(cfg.USMarketDir())

	runner := pipeline.NewRunner(secClient, reports)
	runner.SetKeepIntermediate(keep)

	var db store.Store
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = store.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		runner.SetStore(db)
	}

	result, err := runner.Run(ctx, cfg.Tickers, cfg.NumFilings)
	if err != nil {
		return err
	}
	defer result.Handle.Close()

	if withTW {
		if err := collectTaiwan(ctx, cfg, db); err != nil {
			logger.L.Warn("institutional-investor collection failed", "error", err)
		}
	}
	if withMarket {
		if err := collectMarket(ctx, cfg); err != nil {
			logger.L.Warn("market-data collection failed", "error", err)
		}
	}

	return nil
}

func collectTaiwan(ctx context.Context, cfg *config.Config, db store.Store) error {
	client := taiwan.NewClient(cfg.UserAgent())
	end := time.Now()
	start := end.AddDate(0, 0, -cfg.Days)

	rows, err := client.GetRange(ctx, start, end)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		logger.L.Info("no institutional-investor rows in window")
		return nil
	}

	if db != nil {
		if err := db.SaveTaiwanRows(ctx, rows); err != nil {
			return err
		}
	}

	writer := report.NewWriter(cfg.TWMarketDir())
	table := report.Table{
		Name: "institutional_investors",
		Columns: []string{
			"DATE", "STOCK_CODE", "STOCK_NAME",
			"FOREIGN_BUY", "FOREIGN_SELL",
			"INVESTMENT_TRUST_BUY", "INVESTMENT_TRUST_SELL",
			"DEALER_BUY", "DEALER_SELL",
		},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []any{
			r.Date, r.StockCode, r.StockName,
			r.ForeignBuy, r.ForeignSell,
			r.InvestmentTrustBuy, r.InvestmentTrustSell,
			r.DealerBuy, r.DealerSell,
		})
	}
	_, err = writer.WriteCSV(table)
	return err
}

func collectMarket(ctx context.Context, cfg *config.Config) error {
	client := market.NewClient(cfg.UserAgent())
	writer := report.NewWriter(cfg.USMarketDir())

	etf, err := client.ETFFundFlows(ctx, nil, cfg.Days)
	if err != nil {
		return err
	}
	if _, err := writer.WriteCSV(etfTable(etf)); err != nil {
		return err
	}

	sectors, err := client.SectorFundFlows(ctx, cfg.Days)
	if err != nil {
		return err
	}
	if _, err := writer.WriteCSV(sectorTable(sectors)); err != nil {
		return err
	}

	breadth, err := client.MarketBreadth(ctx, cfg.Days)
	if err != nil {
		return err
	}
	if _, err := writer.WriteCSV(breadthTable(breadth)); err != nil {
		return err
	}

	var holdings []market.Holding
	for _, ticker := range cfg.Tickers {
		hs, err := client.InstitutionalHoldings(ctx, ticker)
		if err != nil {
			logger.L.Warn("skipping institutional holdings", "ticker", ticker, "error", err)
			continue
		}
		holdings = append(holdings, hs...)
	}
	if len(holdings) == 0 {
		return nil
	}
	_, err = writer.WriteCSV(holdingsTable(holdings))
	return err
}

func holdingsTable(rows []market.Holding) report.Table {
	t := report.Table{
		Name: "institutional_holdings",
		Columns: []string{
			"TICKER", "ORGANIZATION", "REPORT_DATE", "PCT_HELD", "SHARES", "VALUE",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Ticker, r.Organization, r.ReportDate, r.PctHeld, r.Shares, r.Value,
		})
	}
	return t
}

func etfTable(rows []market.ETFFlowRow) report.Table {
	t := report.Table{
		Name: "etf_fund_flows",
		Columns: []string{
			"DATE", "TICKER", "OPEN", "HIGH", "LOW", "CLOSE",
			"VOLUME", "FUND_FLOW", "FUND_FLOW_NORMALIZED",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Date, r.Ticker, r.Open, r.High, r.Low, r.Close,
			r.Volume, r.FundFlow, r.FundFlowNormalized,
		})
	}
	return t
}

func sectorTable(rows []market.SectorFlowRow) report.Table {
	t := report.Table{
		Name: "sector_fund_flows",
		Columns: []string{
			"DATE", "SECTOR", "FUND_FLOW", "FUND_FLOW_NORMALIZED", "VOLUME", "AVG_CLOSE",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Date, r.Sector, r.FundFlow, r.FundFlowNormalized, r.Volume, r.AvgClose,
		})
	}
	return t
}

func breadthTable(rows []market.BreadthRow) report.Table {
	t := report.Table{
		Name: "market_breadth",
		Columns: []string{
			"DATE", "INDEX_SYMBOL", "INDEX_NAME", "OPEN", "HIGH", "LOW",
			"CLOSE", "VOLUME", "DAILY_RETURN",
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Date, r.IndexSymbol, r.IndexName, r.Open, r.High, r.Low,
			r.Close, r.Volume, r.DailyReturn,
		})
	}
	return t
}

func splitTickers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
