package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// Two trading days: 2024-01-09 and 2024-01-10 (UTC midnights).
const chartFixture = `{
  "chart": {
    "result": [{
      "timestamp": [1704758400, 1704844800],
      "indicators": {
        "quote": [{
          "open":   [100, 102],
          "high":   [105, 106],
          "low":    [99, 101],
          "close":  [104, 101],
          "volume": [1000, 2000]
        }]
      }
    }],
    "error": null
  }
}`

func newTestClient(srvURL string) (*Client, *int) {
	c := NewClient("Mozilla/5.0 test@example.com")
	c.chartURL = srvURL + "/chart/%s"
	c.quoteSummaryURL = srvURL + "/summary/%s"
	var sleeps int
	c.sleep = func(time.Duration) { sleeps++ }
	return c, &sleeps
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "interval=1d") {
			t.Errorf("query %q missing daily interval", r.URL.RawQuery)
		}
		fmt.Fprint(w, chartFixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	candles, err := c.History(context.Background(), "SPY", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Date != "2024-01-09" || candles[0].Close != 104 {
		t.Errorf("first candle = %+v", candles[0])
	}
}

func TestHistoryDropsBarsWithMissingCells(t *testing.T) {
	fixture := strings.Replace(chartFixture, `"close":  [104, 101]`, `"close":  [104, null]`, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	candles, err := c.History(context.Background(), "SPY", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 {
		t.Fatalf("candles = %d, want 1 (partial bar dropped)", len(candles))
	}
}

func TestETFFundFlows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartFixture)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(srv.URL)
	rows, err := c.ETFFundFlows(context.Background(), []string{"SPY"}, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	wantFlow := (104.0 - 100.0) * 1000.0
	if first.FundFlow != wantFlow {
		t.Errorf("fund flow = %v, want %v", first.FundFlow, wantFlow)
	}
	if math.Abs(first.FundFlowNormalized-wantFlow/104.0) > 1e-9 {
		t.Errorf("normalized = %v, want %v", first.FundFlowNormalized, wantFlow/104.0)
	}
	if *sleeps != 1 {
		t.Errorf("paused %d times, want 1 (once per symbol)", *sleeps)
	}
}

func TestETFFundFlowsSkipsFailingSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartFixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	rows, err := c.ETFFundFlows(context.Background(), []string{"BAD", "SPY"}, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 from the healthy symbol", len(rows))
	}
	for _, r := range rows {
		if r.Ticker != "SPY" {
			t.Errorf("unexpected ticker %q", r.Ticker)
		}
	}
}

func TestSectorFundFlowsRollup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartFixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	rows, err := c.SectorFundFlows(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}

	// 10 sector ETFs x 2 days, one sector per ETF.
	if len(rows) != 20 {
		t.Fatalf("rows = %d, want 20", len(rows))
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if r.Sector == "" {
			t.Errorf("row without sector label: %+v", r)
		}
		seen[r.Sector] = true
	}
	if len(seen) != 10 {
		t.Errorf("sectors = %d, want 10", len(seen))
	}
}

func TestMarketBreadthDailyReturn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartFixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	rows, err := c.MarketBreadth(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}

	// 4 indices x 2 days.
	if len(rows) != 8 {
		t.Fatalf("rows = %d, want 8", len(rows))
	}

	if rows[0].DailyReturn != 0 {
		t.Errorf("first bar return = %v, want 0 (no prior close)", rows[0].DailyReturn)
	}
	wantReturn := (101.0 - 104.0) / 104.0 * 100.0
	if math.Abs(rows[1].DailyReturn-wantReturn) > 1e-9 {
		t.Errorf("second bar return = %v, want %v", rows[1].DailyReturn, wantReturn)
	}
	if rows[0].IndexName == "" {
		t.Error("row without index name")
	}
}

func TestInstitutionalHoldings(t *testing.T) {
	fixture := `{
	  "quoteSummary": {
	    "result": [{
	      "institutionOwnership": {
	        "ownershipList": [
	          {"organization": "Vanguard Group", "reportDate": {"fmt": "2023-12-31"},
	           "pctHeld": {"raw": 0.085}, "position": {"raw": 1300000000}, "value": {"raw": 250000000000}}
	        ]
	      }
	    }]
	  }
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "institutionOwnership") {
			t.Errorf("query %q missing module", r.URL.RawQuery)
		}
		fmt.Fprint(w, fixture)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)
	holdings, err := c.InstitutionalHoldings(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(holdings))
	}
	h := holdings[0]
	if h.Organization != "Vanguard Group" || h.Ticker != "AAPL" || h.ReportDate != "2023-12-31" {
		t.Errorf("holding = %+v", h)
	}
}
