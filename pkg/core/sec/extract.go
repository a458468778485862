package sec

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"insiderflow/pkg/logger"
)

const form4DocumentType = "4"

// unknownField is the sentinel for absent optional text fields.
const unknownField = "Unknown"

// ExtractTransactions normalizes a parsed ownership document into transaction
// records. Documents of any other type yield no records (and no error).
// Extraction is lenient per field: absent text fields become "Unknown" and
// absent numerics 0. An entry whose transaction code is missing or whose
// numerics do not parse is skipped with a warning; its siblings still emit.
func ExtractTransactions(doc *OwnershipDocument, ticker string) []Transaction {
	if strings.TrimSpace(doc.DocumentType) != form4DocumentType {
		logger.L.Warn("not a Form 4 document", "ticker", ticker, "documentType", doc.DocumentType)
		return nil
	}

	reporterName, reporterCIK := unknownField, unknownField
	if len(doc.ReportingOwners) > 0 {
		if v := strings.TrimSpace(doc.ReportingOwners[0].ID.Name); v != "" {
			reporterName = v
		}
		if v := strings.TrimSpace(doc.ReportingOwners[0].ID.CIK); v != "" {
			reporterCIK = v
		}
	}

	var txs []Transaction
	for i, entry := range doc.NonDerivative.Transactions {
		tx, err := extractEntry(entry, ticker, reporterName, reporterCIK)
		if err != nil {
			logger.L.Warn("skipping malformed transaction entry",
				"ticker", ticker, "entry", i, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}

func extractEntry(entry nonDerivTransaction, ticker, reporterName, reporterCIK string) (Transaction, error) {
	code := strings.TrimSpace(entry.Coding.Code)
	if code == "" {
		return Transaction{}, fmt.Errorf("transaction code missing")
	}

	title := strings.TrimSpace(entry.SecurityTitle.Value)
	if title == "" {
		title = unknownField
	}
	date := strings.TrimSpace(entry.Date.Value)
	if date == "" {
		date = unknownField
	}

	shares, err := parseAmount(entry.Amounts.Shares.Value)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse shares: %w", err)
	}
	price, err := parseAmount(entry.Amounts.PricePerShare.Value)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse price per share: %w", err)
	}

	return Transaction{
		Ticker:        ticker,
		ReporterName:  reporterName,
		ReporterCIK:   reporterCIK,
		SecurityTitle: title,
		Date:          date,
		Code:          code,
		Shares:        shares,
		PricePerShare: price,
		TotalValue:    shares * price,
		Type:          ClassifyCode(code),
	}, nil
}

// parseAmount treats an absent value as 0 but a present, unparsable one as a
// malformed entry.
func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// ExtractDirectory scans a download directory for normalized documents and
// extracts every transaction found. The ticker is read back out of the
// documented filename convention (form4_<TICKER>_<timestamp>.xml). Files that
// fail to parse are skipped; the scan continues.
func ExtractDirectory(dir string) ([]Transaction, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan download directory %s: %w", dir, err)
	}

	var all []Transaction
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".xml") {
			continue
		}
		ticker := tickerFromFilename(name)
		if ticker == "" {
			logger.L.Warn("skipping file outside naming convention", "file", name)
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.L.Warn("unreadable document", "file", name, "error", err)
			continue
		}

		res := ParseWithRepair(content)
		if res.State != StateParsed {
			logger.L.Warn("document unparseable after repair", "file", name, "state", res.State.String())
			continue
		}
		if res.Repaired {
			if err := os.WriteFile(filepath.Join(dir, name), res.Content, 0o644); err != nil {
				logger.L.Warn("could not persist repaired document", "file", name, "error", err)
			}
		}

		all = append(all, ExtractTransactions(res.Doc, ticker)...)
	}
	return all, nil
}

// tickerFromFilename extracts the second underscore-delimited token.
func tickerFromFilename(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
