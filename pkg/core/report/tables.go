package report

import "insiderflow/pkg/core/fundflow"

// Tables projects the full analysis into named tables, one per view, in a
// stable order.
func Tables(a *fundflow.Analysis) []Table {
	return []Table{
		companyFlowTable(a),
		monthlyFlowTable(a),
		companyMonthlyFlowTable(a),
		netFlowTable(a),
		cumulativeFlowTable(a),
		trendFlowTable(a),
		confidenceTable(a),
		recentChangeTable(a),
	}
}

func companyFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "company_flow",
		Columns: []string{"TICKER", "TRANSACTION_TYPE", "TOTAL_VALUE", "SHARES"},
	}
	for _, r := range a.CompanyFlow {
		t.Rows = append(t.Rows, []any{r.Ticker, string(r.Type), r.TotalValue, r.Shares})
	}
	return t
}

func monthlyFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "monthly_flow",
		Columns: []string{"YEAR_MONTH", "TRANSACTION_TYPE", "TOTAL_VALUE", "SHARES"},
	}
	for _, r := range a.MonthlyFlow {
		t.Rows = append(t.Rows, []any{r.YearMonth, string(r.Type), r.TotalValue, r.Shares})
	}
	return t
}

func companyMonthlyFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "company_monthly_flow",
		Columns: []string{"TICKER", "YEAR_MONTH", "TRANSACTION_TYPE", "TOTAL_VALUE", "SHARES"},
	}
	for _, r := range a.CompanyMonthlyFlow {
		t.Rows = append(t.Rows, []any{r.Ticker, r.YearMonth, string(r.Type), r.TotalValue, r.Shares})
	}
	return t
}

func netFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "net_flow",
		Columns: []string{"TICKER", "YEAR_MONTH", "BUY", "SELL", "NET_FLOW"},
	}
	for _, r := range a.NetFlow {
		t.Rows = append(t.Rows, []any{r.Ticker, r.YearMonth, r.Buy, r.Sell, r.NetFlow})
	}
	return t
}

func cumulativeFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "cumulative_flow",
		Columns: []string{"TICKER", "BUY", "SELL", "NET_FLOW"},
	}
	for _, r := range a.CumulativeFlow {
		t.Rows = append(t.Rows, []any{r.Ticker, r.Buy, r.Sell, r.NetFlow})
	}
	return t
}

func trendFlowTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "trend_flow",
		Columns: []string{"TICKER", "TRANSACTION_DATE", "SIGNED_FLOW", "CUMULATIVE_FLOW"},
	}
	for _, r := range a.TrendFlow {
		t.Rows = append(t.Rows, []any{r.Ticker, r.Date, r.SignedFlow, r.CumulativeFlow})
	}
	return t
}

func confidenceTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "confidence",
		Columns: []string{"TICKER", "BUY", "SELL", "CONFIDENCE"},
	}
	for _, r := range a.Confidence {
		t.Rows = append(t.Rows, []any{r.Ticker, r.Buy, r.Sell, r.Confidence})
	}
	return t
}

func recentChangeTable(a *fundflow.Analysis) Table {
	t := Table{
		Name:    "recent_change",
		Columns: []string{"TICKER", "EARLIER_MONTH", "LATER_MONTH", "EARLIER", "LATER", "CHANGE", "CHANGE_PCT"},
	}
	for _, r := range a.RecentChange {
		t.Rows = append(t.Rows, []any{r.Ticker, r.EarlierMonth, r.LaterMonth, r.Earlier, r.Later, r.Change, r.ChangePct})
	}
	return t
}
