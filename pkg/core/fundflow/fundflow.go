// Package fundflow derives fund-flow aggregate views from normalized insider
// transactions: per-company and per-month sums, net and cumulative flows, a
// chronological trend line, the buy/sell confidence ratio, and the
// month-over-month change table.
//
// Views are recomputed in full from the input set on every call; nothing here
// is incremental or persisted.
package fundflow

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"insiderflow/pkg/core/sec"
)

// ErrNoData is the explicit empty-input result state. It is not a failure:
// the caller simply has nothing to aggregate.
var ErrNoData = errors.New("no transactions to aggregate")

// Flow is a monetary or share quantity that may legitimately be +Inf (the
// no-sell-side sentinel). Its JSON form writes infinities as the strings
// "Infinity"/"-Infinity" so the sentinel survives serialization instead of
// breaking the encoder.
type Flow float64

// MarshalJSON implements json.Marshaler.
func (f Flow) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 1) {
		return []byte(`"Infinity"`), nil
	}
	if math.IsInf(v, -1) {
		return []byte(`"-Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// CompanyFlowRow sums one direction of one company's activity.
type CompanyFlowRow struct {
	Ticker     string      `json:"ticker"`
	Type       sec.TxnType `json:"transaction_type"`
	TotalValue Flow        `json:"total_value"`
	Shares     Flow        `json:"shares"`
}

// MonthlyFlowRow sums one direction across all companies for one month.
type MonthlyFlowRow struct {
	YearMonth  string      `json:"year_month"`
	Type       sec.TxnType `json:"transaction_type"`
	TotalValue Flow        `json:"total_value"`
	Shares     Flow        `json:"shares"`
}

// CompanyMonthlyFlowRow sums one direction for one (company, month) pair.
type CompanyMonthlyFlowRow struct {
	Ticker     string      `json:"ticker"`
	YearMonth  string      `json:"year_month"`
	Type       sec.TxnType `json:"transaction_type"`
	TotalValue Flow        `json:"total_value"`
	Shares     Flow        `json:"shares"`
}

// NetFlowRow is the buy/sell pivot of one (company, month) pair. A side with
// no activity contributes 0.
type NetFlowRow struct {
	Ticker    string `json:"ticker"`
	YearMonth string `json:"year_month"`
	Buy       Flow   `json:"BUY"`
	Sell      Flow   `json:"SELL"`
	NetFlow   Flow   `json:"NET_FLOW"`
}

// CumulativeFlowRow is the lifetime rollup for one company.
type CumulativeFlowRow struct {
	Ticker  string `json:"ticker"`
	Buy     Flow   `json:"BUY"`
	Sell    Flow   `json:"SELL"`
	NetFlow Flow   `json:"NET_FLOW"`
}

// TrendFlowRow is one step of a company's chronological running net flow.
type TrendFlowRow struct {
	Ticker         string `json:"ticker"`
	Date           string `json:"transaction_date"`
	SignedFlow     Flow   `json:"signed_flow"`
	CumulativeFlow Flow   `json:"cumulative_flow"`
}

// ConfidenceRow is the insider-confidence ratio for one company:
// BUY value over SELL value, +Inf when there is no sell side.
type ConfidenceRow struct {
	Ticker     string `json:"ticker"`
	Buy        Flow   `json:"BUY"`
	Sell       Flow   `json:"SELL"`
	Confidence Flow   `json:"CONFIDENCE"`
}

// RecentChangeRow compares one company's net flow across the two most recent
// months present anywhere in the input.
type RecentChangeRow struct {
	Ticker       string `json:"ticker"`
	EarlierMonth string `json:"earlier_month"`
	LaterMonth   string `json:"later_month"`
	Earlier      Flow   `json:"earlier_net_flow"`
	Later        Flow   `json:"later_net_flow"`
	Change       Flow   `json:"CHANGE"`
	ChangePct    Flow   `json:"CHANGE_PCT"`
}

// Analysis is the full family of derived views.
type Analysis struct {
	CompanyFlow        []CompanyFlowRow
	MonthlyFlow        []MonthlyFlowRow
	CompanyMonthlyFlow []CompanyMonthlyFlowRow
	NetFlow            []NetFlowRow
	CumulativeFlow     []CumulativeFlowRow
	TrendFlow          []TrendFlowRow
	Confidence         []ConfidenceRow
	RecentChange       []RecentChangeRow
}

// YearMonth derives the calendar-month key from a transaction date. Dates
// that do not parse (the "Unknown" sentinel) yield "" and are excluded from
// the month-keyed views only.
func YearMonth(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.Format("2006-01")
}

// Aggregate computes every derived view from the transaction set.
// Returns ErrNoData when the input is empty.
func Aggregate(txs []sec.Transaction) (*Analysis, error) {
	if len(txs) == 0 {
		return nil, ErrNoData
	}

	a := &Analysis{}
	a.CompanyFlow = companyFlow(txs)
	a.MonthlyFlow = monthlyFlow(txs)
	a.CompanyMonthlyFlow = companyMonthlyFlow(txs)
	a.NetFlow = netFlow(a.CompanyMonthlyFlow)
	a.CumulativeFlow = cumulativeFlow(a.NetFlow, txs)
	a.TrendFlow = trendFlow(txs)
	a.Confidence = confidence(a.CumulativeFlow)
	a.RecentChange = recentChange(a.NetFlow)
	return a, nil
}

type flowSum struct {
	value  float64
	shares float64
}

func companyFlow(txs []sec.Transaction) []CompanyFlowRow {
	type key struct {
		ticker string
		typ    sec.TxnType
	}
	sums := map[key]*flowSum{}
	for _, tx := range txs {
		k := key{tx.Ticker, tx.Type}
		if sums[k] == nil {
			sums[k] = &flowSum{}
		}
		sums[k].value += tx.TotalValue
		sums[k].shares += tx.Shares
	}

	rows := make([]CompanyFlowRow, 0, len(sums))
	for k, s := range sums {
		rows = append(rows, CompanyFlowRow{k.ticker, k.typ, Flow(s.value), Flow(s.shares)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Ticker != rows[j].Ticker {
			return rows[i].Ticker < rows[j].Ticker
		}
		return rows[i].Type < rows[j].Type
	})
	return rows
}

func monthlyFlow(txs []sec.Transaction) []MonthlyFlowRow {
	type key struct {
		ym  string
		typ sec.TxnType
	}
	sums := map[key]*flowSum{}
	for _, tx := range txs {
		ym := YearMonth(tx.Date)
		if ym == "" {
			continue
		}
		k := key{ym, tx.Type}
		if sums[k] == nil {
			sums[k] = &flowSum{}
		}
		sums[k].value += tx.TotalValue
		sums[k].shares += tx.Shares
	}

	rows := make([]MonthlyFlowRow, 0, len(sums))
	for k, s := range sums {
		rows = append(rows, MonthlyFlowRow{k.ym, k.typ, Flow(s.value), Flow(s.shares)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].YearMonth != rows[j].YearMonth {
			return rows[i].YearMonth < rows[j].YearMonth
		}
		return rows[i].Type < rows[j].Type
	})
	return rows
}

func companyMonthlyFlow(txs []sec.Transaction) []CompanyMonthlyFlowRow {
	type key struct {
		ticker string
		ym     string
		typ    sec.TxnType
	}
	sums := map[key]*flowSum{}
	for _, tx := range txs {
		ym := YearMonth(tx.Date)
		if ym == "" {
			continue
		}
		k := key{tx.Ticker, ym, tx.Type}
		if sums[k] == nil {
			sums[k] = &flowSum{}
		}
		sums[k].value += tx.TotalValue
		sums[k].shares += tx.Shares
	}

	rows := make([]CompanyMonthlyFlowRow, 0, len(sums))
	for k, s := range sums {
		rows = append(rows, CompanyMonthlyFlowRow{k.ticker, k.ym, k.typ, Flow(s.value), Flow(s.shares)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Ticker != rows[j].Ticker {
			return rows[i].Ticker < rows[j].Ticker
		}
		if rows[i].YearMonth != rows[j].YearMonth {
			return rows[i].YearMonth < rows[j].YearMonth
		}
		return rows[i].Type < rows[j].Type
	})
	return rows
}

// netFlow pivots the company-monthly view on transaction type. The missing
// side of a one-sided month fills with 0.
func netFlow(cm []CompanyMonthlyFlowRow) []NetFlowRow {
	type key struct {
		ticker string
		ym     string
	}
	pivot := map[key]*NetFlowRow{}
	var order []key
	for _, row := range cm {
		k := key{row.Ticker, row.YearMonth}
		if pivot[k] == nil {
			pivot[k] = &NetFlowRow{Ticker: row.Ticker, YearMonth: row.YearMonth}
			order = append(order, k)
		}
		switch row.Type {
		case sec.Buy:
			pivot[k].Buy += row.TotalValue
		case sec.Sell:
			pivot[k].Sell += row.TotalValue
		}
	}

	rows := make([]NetFlowRow, 0, len(order))
	for _, k := range order {
		r := pivot[k]
		r.NetFlow = r.Buy - r.Sell
		rows = append(rows, *r)
	}
	return rows
}

// cumulativeFlow rolls the pivot up by ticker. Transactions without a
// parseable date are folded in here so the lifetime totals match the trend
// line's final value.
func cumulativeFlow(nf []NetFlowRow, txs []sec.Transaction) []CumulativeFlowRow {
	sums := map[string]*CumulativeFlowRow{}
	var order []string
	add := func(ticker string) *CumulativeFlowRow {
		if sums[ticker] == nil {
			sums[ticker] = &CumulativeFlowRow{Ticker: ticker}
			order = append(order, ticker)
		}
		return sums[ticker]
	}

	for _, row := range nf {
		r := add(row.Ticker)
		r.Buy += row.Buy
		r.Sell += row.Sell
	}
	for _, tx := range txs {
		if YearMonth(tx.Date) != "" {
			continue
		}
		r := add(tx.Ticker)
		switch tx.Type {
		case sec.Buy:
			r.Buy += Flow(tx.TotalValue)
		case sec.Sell:
			r.Sell += Flow(tx.TotalValue)
		}
	}

	sort.Strings(order)
	rows := make([]CumulativeFlowRow, 0, len(order))
	for _, t := range order {
		r := sums[t]
		r.NetFlow = r.Buy - r.Sell
		rows = append(rows, *r)
	}
	return rows
}

// trendFlow is a strict prefix sum over each ticker's transactions in
// chronological order. The sort is stable: equal dates keep input order.
func trendFlow(txs []sec.Transaction) []TrendFlowRow {
	byTicker := map[string][]sec.Transaction{}
	var tickers []string
	for _, tx := range txs {
		if _, ok := byTicker[tx.Ticker]; !ok {
			tickers = append(tickers, tx.Ticker)
		}
		byTicker[tx.Ticker] = append(byTicker[tx.Ticker], tx)
	}
	sort.Strings(tickers)

	var rows []TrendFlowRow
	for _, ticker := range tickers {
		list := byTicker[ticker]
		// ISO dates order correctly under lexical comparison.
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date < list[j].Date })

		running := 0.0
		for _, tx := range list {
			signed := tx.TotalValue
			if tx.Type == sec.Sell {
				signed = -signed
			}
			running += signed
			rows = append(rows, TrendFlowRow{
				Ticker:         ticker,
				Date:           tx.Date,
				SignedFlow:     Flow(signed),
				CumulativeFlow: Flow(running),
			})
		}
	}
	return rows
}

// confidence is the BUY/SELL value ratio per ticker, +Inf when there is no
// sell-side activity. Division never faults.
func confidence(cum []CumulativeFlowRow) []ConfidenceRow {
	rows := make([]ConfidenceRow, 0, len(cum))
	for _, r := range cum {
		ratio := math.Inf(1)
		if r.Sell != 0 {
			ratio = float64(r.Buy) / float64(r.Sell)
		}
		rows = append(rows, ConfidenceRow{r.Ticker, r.Buy, r.Sell, Flow(ratio)})
	}
	return rows
}

// recentChange pivots NET_FLOW across the two most recent distinct months in
// the whole input. Fewer than two distinct months yields an empty view. A
// ticker present in either month gets a row; its missing month counts as 0.
func recentChange(nf []NetFlowRow) []RecentChangeRow {
	monthSet := map[string]bool{}
	for _, row := range nf {
		monthSet[row.YearMonth] = true
	}
	if len(monthSet) < 2 {
		return nil
	}

	months := make([]string, 0, len(monthSet))
	for m := range monthSet {
		months = append(months, m)
	}
	sort.Strings(months)
	earlier, later := months[len(months)-2], months[len(months)-1]

	type sides struct {
		earlier, later float64
		present        bool
	}
	byTicker := map[string]*sides{}
	var order []string
	for _, row := range nf {
		if row.YearMonth != earlier && row.YearMonth != later {
			continue
		}
		if byTicker[row.Ticker] == nil {
			byTicker[row.Ticker] = &sides{}
			order = append(order, row.Ticker)
		}
		s := byTicker[row.Ticker]
		s.present = true
		if row.YearMonth == earlier {
			s.earlier += float64(row.NetFlow)
		} else {
			s.later += float64(row.NetFlow)
		}
	}
	sort.Strings(order)

	rows := make([]RecentChangeRow, 0, len(order))
	for _, ticker := range order {
		s := byTicker[ticker]
		change := s.later - s.earlier
		pct := math.Inf(1)
		if s.earlier != 0 {
			pct = change / s.earlier * 100
		}
		rows = append(rows, RecentChangeRow{
			Ticker:       ticker,
			EarlierMonth: earlier,
			LaterMonth:   later,
			Earlier:      Flow(s.earlier),
			Later:        Flow(s.later),
			Change:       Flow(change),
			ChangePct:    Flow(pct),
		})
	}
	return rows
}
