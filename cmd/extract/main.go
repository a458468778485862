// Command extract re-processes already-downloaded Form 4 documents without
// touching the network: it scans a download directory, extracts every
// transaction, and writes the aggregate reports. Useful after a partially
// failed run, or for re-deriving views after an extraction fix.
package main

import (
	"flag"
	"fmt"
	"os"

	"insiderflow/pkg/core/config"
	"insiderflow/pkg/core/fundflow"
	"insiderflow/pkg/core/report"
	"insiderflow/pkg/core/sec"
	"insiderflow/pkg/logger"
)

func main() {
	var (
		dir      = flag.String("dir", "", "download directory to scan (default: the configured layout)")
		out      = flag.String("out", "", "report output directory (default: the configured layout)")
		logLevel = flag.String("log-level", "info", "debug, info, warn, or error")
	)
	flag.Parse()

	logger.Init(*logLevel)

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dir == "" {
		*dir = cfg.Form4DownloadDir()
	}
	if *out == "" {
		*out = cfg.USMarketDir()
	}

	txs, err := sec.ExtractDirectory(*dir)
	if err != nil {
		logger.L.Error("scan failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.L.Info("directory scan complete", "dir", *dir, "transactions", len(txs))

	analysis, err := fundflow.Aggregate(txs)
	if err != nil {
		logger.L.Error("nothing to aggregate", "dir", *dir, "error", err)
		os.Exit(1)
	}

	writer := report.NewWriter(*out)
	tables := report.Tables(analysis)
	for _, t := range tables {
		if _, err := writer.WriteCSV(t); err != nil {
			logger.L.Error("write report", "table", t.Name, "error", err)
			os.Exit(1)
		}
		if _, err := writer.WriteJSON(t); err != nil {
			logger.L.Error("write report", "table", t.Name, "error", err)
			os.Exit(1)
		}
	}
	if _, _, err := writer.WriteSummary("fund_flow_summary", tables); err != nil {
		logger.L.Error("write summary", "error", err)
		os.Exit(1)
	}
}
