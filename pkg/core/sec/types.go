// Package sec collects and parses SEC Form 4 insider-transaction filings:
// ticker resolution against the EDGAR company index, filing enumeration,
// submission download with XML repair, and transaction extraction.
package sec

import (
	"encoding/xml"
	"errors"
	"time"
)

// Sentinel errors. Failures are contained at the smallest meaningful unit:
// a resolution miss or index outage aborts the ticker, an extraction failure
// aborts only that filing, a malformed entry aborts only itself.
var (
	// ErrNotFound means the ticker has no entry in the company index.
	ErrNotFound = errors.New("ticker not found in SEC company index")
	// ErrUpstreamUnavailable means an index or archive request failed or
	// returned a non-success response.
	ErrUpstreamUnavailable = errors.New("SEC upstream unavailable")
	// ErrExtractionFailed means the ownership document could not be isolated
	// or parsed, even after the tolerant repair pass.
	ErrExtractionFailed = errors.New("ownership document extraction failed")
)

// FilingReference identifies one Form 4 filing discovered in the filing index.
type FilingReference struct {
	Ticker          string
	AccessionNumber string
	FilingDate      time.Time
	ReportDate      time.Time
	DetailURL       string
}

// Transaction is one normalized non-derivative insider transaction.
// TotalValue is always Shares * PricePerShare, never set independently.
type Transaction struct {
	Ticker        string  `json:"ticker"`
	ReporterName  string  `json:"reporter_name"`
	ReporterCIK   string  `json:"reporter_cik"`
	SecurityTitle string  `json:"security_title"`
	Date          string  `json:"transaction_date"` // YYYY-MM-DD
	Code          string  `json:"transaction_code"`
	Shares        float64 `json:"shares"`
	PricePerShare float64 `json:"price_per_share"`
	TotalValue    float64 `json:"total_value"`
	Type          TxnType `json:"transaction_type"`
}

// TxnType is the derived direction of a transaction.
type TxnType string

const (
	Buy  TxnType = "BUY"
	Sell TxnType = "SELL"
)

// ClassifyCode maps an SEC transaction code to a direction: open-market
// purchases (P) and other acquisitions (J) are buys, everything else a sell.
func ClassifyCode(code string) TxnType {
	switch code {
	case "P", "J":
		return Buy
	}
	return Sell
}

// DownloadManifest records one completed download. It carries the identity
// that the filename convention also encodes, so downstream stages do not have
// to re-derive the ticker from string position.
type DownloadManifest struct {
	Ticker          string
	AccessionNumber string
	RawPath         string
	DocumentPath    string
	DownloadedAt    time.Time
}

// NormalizedDocument is the isolated, well-formed ownership document fragment
// extracted from a raw submission.
type NormalizedDocument struct {
	Manifest DownloadManifest
	Doc      *OwnershipDocument
}

// OwnershipDocument mirrors the single known document shape of a Form 4
// submission. Only the fields the extractor consumes are declared.
type OwnershipDocument struct {
	XMLName         xml.Name         `xml:"ownershipDocument"`
	DocumentType    string           `xml:"documentType"`
	ReportingOwners []reportingOwner `xml:"reportingOwner"`
	NonDerivative   nonDerivTable    `xml:"nonDerivativeTable"`
}

type reportingOwner struct {
	ID reportingOwnerID `xml:"reportingOwnerId"`
}

type reportingOwnerID struct {
	CIK  string `xml:"rptOwnerCik"`
	Name string `xml:"rptOwnerName"`
}

type nonDerivTable struct {
	Transactions []nonDerivTransaction `xml:"nonDerivativeTransaction"`
}

type nonDerivTransaction struct {
	SecurityTitle valueOf    `xml:"securityTitle"`
	Date          valueOf    `xml:"transactionDate"`
	Coding        txnCoding  `xml:"transactionCoding"`
	Amounts       txnAmounts `xml:"transactionAmounts"`
}

type txnCoding struct {
	Code string `xml:"transactionCode"`
}

type txnAmounts struct {
	Shares        valueOf `xml:"transactionShares"`
	PricePerShare valueOf `xml:"transactionPricePerShare"`
}

// valueOf matches the <x><value>...</value></x> wrapping EDGAR uses for most
// leaf fields.
type valueOf struct {
	Value string `xml:"value"`
}
