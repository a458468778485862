// Package market collects supplementary US market data: ETF fund-flow
// estimates, sector rollups, institutional holdings, and index breadth. All of
// it rides on the public quote-chart JSON API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"insiderflow/pkg/logger"
)

const (
	chartURLFormat        = "https://query1.finance.yahoo.com/v8/finance/chart/%s"
	quoteSummaryURLFormat = "https://query1.finance.yahoo.com/v10/finance/quoteSummary/%s"

	// Per-symbol pause when scanning lists.
	symbolDelay = time.Second
)

// DefaultETFs is the broad-market and sector set scanned when the caller does
// not name its own list.
var DefaultETFs = []string{
	"SPY", "QQQ", "IWM", "DIA",
	"XLF", "XLK", "XLE", "XLV", "XLI", "XLP",
}

// sectorNames maps the sector ETF set to sector labels.
var sectorNames = map[string]string{
	"XLF":  "Financials",
	"XLK":  "Technology",
	"XLE":  "Energy",
	"XLV":  "Health Care",
	"XLI":  "Industrials",
	"XLP":  "Consumer Staples",
	"XLY":  "Consumer Discretionary",
	"XLB":  "Materials",
	"XLU":  "Utilities",
	"XLRE": "Real Estate",
}

// indexNames maps the breadth index symbols to display names.
var indexNames = map[string]string{
	"^GSPC": "S&P 500",
	"^NDX":  "NASDAQ 100",
	"^RUT":  "Russell 2000",
	"^DJI":  "Dow Jones",
}

// Candle is one daily bar.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ETFFlowRow is the daily fund-flow estimate for one ETF:
// (Close - Open) x Volume, with a price-normalized variant.
type ETFFlowRow struct {
	Date               string  `json:"date"`
	Ticker             string  `json:"ticker"`
	Open               float64 `json:"open"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Close              float64 `json:"close"`
	Volume             float64 `json:"volume"`
	FundFlow           float64 `json:"fund_flow"`
	FundFlowNormalized float64 `json:"fund_flow_normalized"`
}

// SectorFlowRow aggregates ETF flows by trading day and sector.
type SectorFlowRow struct {
	Date               string  `json:"date"`
	Sector             string  `json:"sector"`
	FundFlow           float64 `json:"fund_flow"`
	FundFlowNormalized float64 `json:"fund_flow_normalized"`
	Volume             float64 `json:"volume"`
	AvgClose           float64 `json:"avg_close"`
}

// BreadthRow is one index's daily bar with its percent return.
type BreadthRow struct {
	Date        string  `json:"date"`
	IndexSymbol string  `json:"index_symbol"`
	IndexName   string  `json:"index_name"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	DailyReturn float64 `json:"daily_return"`
}

// Holding is one institution's reported position in a ticker.
type Holding struct {
	Ticker       string  `json:"ticker"`
	Organization string  `json:"organization"`
	ReportDate   string  `json:"report_date"`
	PctHeld      float64 `json:"pct_held"`
	Shares       float64 `json:"shares"`
	Value        float64 `json:"value"`
}

// Client fetches market data.
type Client struct {
	httpClient      *http.Client
	userAgent       string
	chartURL        string
	quoteSummaryURL string
	sleep           func(time.Duration)
}

func NewClient(userAgent string) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		userAgent:       userAgent,
		chartURL:        chartURLFormat,
		quoteSummaryURL: quoteSummaryURLFormat,
		sleep:           time.Sleep,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History fetches up to days of daily bars for a symbol. Bars with missing
// cells (halted or partial sessions) are dropped.
func (c *Client) History(ctx context.Context, symbol string, days int) ([]Candle, error) {
	q := url.Values{}
	q.Set("range", fmt.Sprintf("%dd", days))
	q.Set("interval", "1d")
	endpoint := fmt.Sprintf(c.chartURL, url.PathEscape(symbol)) + "?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse chart payload for %s: %w", symbol, err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	var candles []Candle
	for i, ts := range result.Timestamp {
		o, h, l, cl, v := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i), at(quote.Volume, i)
		if o == nil || h == nil || l == nil || cl == nil || v == nil {
			continue
		}
		candles = append(candles, Candle{
			Date:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Open:   *o,
			High:   *h,
			Low:    *l,
			Close:  *cl,
			Volume: *v,
		})
	}
	return candles, nil
}

func at(s []*float64, i int) *float64 {
	if i >= len(s) {
		return nil
	}
	return s[i]
}

// ETFFundFlows estimates daily fund flow for each ETF over the window. A
// symbol that fails is logged and skipped; the scan never aborts.
func (c *Client) ETFFundFlows(ctx context.Context, tickers []string, days int) ([]ETFFlowRow, error) {
	if len(tickers) == 0 {
		tickers = DefaultETFs
	}

	var rows []ETFFlowRow
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		candles, err := c.History(ctx, ticker, days)
		if err != nil {
			logger.L.Warn("skipping ETF", "ticker", ticker, "error", err)
			c.sleep(symbolDelay)
			continue
		}
		for _, bar := range candles {
			flow := (bar.Close - bar.Open) * bar.Volume
			normalized := 0.0
			if bar.Close != 0 {
				normalized = flow / bar.Close
			}
			rows = append(rows, ETFFlowRow{
				Date:               bar.Date,
				Ticker:             ticker,
				Open:               bar.Open,
				High:               bar.High,
				Low:                bar.Low,
				Close:              bar.Close,
				Volume:             bar.Volume,
				FundFlow:           flow,
				FundFlowNormalized: normalized,
			})
		}
		c.sleep(symbolDelay)
	}
	return rows, nil
}

// SectorFundFlows scans the sector ETF set and rolls flows up by trading day
// and sector.
func (c *Client) SectorFundFlows(ctx context.Context, days int) ([]SectorFlowRow, error) {
	tickers := make([]string, 0, len(sectorNames))
	for t := range sectorNames {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	etfRows, err := c.ETFFundFlows(ctx, tickers, days)
	if err != nil {
		return nil, err
	}

	type key struct{ date, sector string }
	type acc struct {
		flow, normalized, volume float64
		closeSum                 float64
		count                    int
	}
	sums := map[key]*acc{}
	for _, row := range etfRows {
		k := key{row.Date, sectorNames[row.Ticker]}
		if sums[k] == nil {
			sums[k] = &acc{}
		}
		s := sums[k]
		s.flow += row.FundFlow
		s.normalized += row.FundFlowNormalized
		s.volume += row.Volume
		s.closeSum += row.Close
		s.count++
	}

	rows := make([]SectorFlowRow, 0, len(sums))
	for k, s := range sums {
		rows = append(rows, SectorFlowRow{
			Date:               k.date,
			Sector:             k.sector,
			FundFlow:           s.flow,
			FundFlowNormalized: s.normalized,
			Volume:             s.volume,
			AvgClose:           s.closeSum / float64(s.count),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Sector < rows[j].Sector
	})
	return rows, nil
}

// MarketBreadth fetches the major index bars with day-over-day percent
// returns. The first bar of each index has no prior close and reports 0.
func (c *Client) MarketBreadth(ctx context.Context, days int) ([]BreadthRow, error) {
	symbols := make([]string, 0, len(indexNames))
	for s := range indexNames {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var rows []BreadthRow
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		candles, err := c.History(ctx, symbol, days)
		if err != nil {
			logger.L.Warn("skipping index", "symbol", symbol, "error", err)
			c.sleep(symbolDelay)
			continue
		}
		prevClose := 0.0
		for i, bar := range candles {
			ret := 0.0
			if i > 0 && prevClose != 0 {
				ret = (bar.Close - prevClose) / prevClose * 100
			}
			prevClose = bar.Close
			rows = append(rows, BreadthRow{
				Date:        bar.Date,
				IndexSymbol: symbol,
				IndexName:   indexNames[symbol],
				Open:        bar.Open,
				High:        bar.High,
				Low:         bar.Low,
				Close:       bar.Close,
				Volume:      bar.Volume,
				DailyReturn: ret,
			})
		}
		c.sleep(symbolDelay)
	}
	return rows, nil
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			InstitutionOwnership struct {
				OwnershipList []struct {
					Organization string `json:"organization"`
					ReportDate   struct {
						Fmt string `json:"fmt"`
					} `json:"reportDate"`
					PctHeld struct {
						Raw float64 `json:"raw"`
					} `json:"pctHeld"`
					Position struct {
						Raw float64 `json:"raw"`
					} `json:"position"`
					Value struct {
						Raw float64 `json:"raw"`
					} `json:"value"`
				} `json:"ownershipList"`
			} `json:"institutionOwnership"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// InstitutionalHoldings fetches the reported institutional positions for one
// ticker.
func (c *Client) InstitutionalHoldings(ctx context.Context, ticker string) ([]Holding, error) {
	q := url.Values{}
	q.Set("modules", "institutionOwnership")
	endpoint := fmt.Sprintf(c.quoteSummaryURL, url.PathEscape(ticker)) + "?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch institutional holdings for %s: %w", ticker, err)
	}

	var payload quoteSummaryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse holdings payload for %s: %w", ticker, err)
	}
	if len(payload.QuoteSummary.Result) == 0 {
		return nil, nil
	}

	list := payload.QuoteSummary.Result[0].InstitutionOwnership.OwnershipList
	holdings := make([]Holding, 0, len(list))
	for _, h := range list {
		holdings = append(holdings, Holding{
			Ticker:       ticker,
			Organization: h.Organization,
			ReportDate:   h.ReportDate.Fmt,
			PctHeld:      h.PctHeld.Raw,
			Shares:       h.Position.Raw,
			Value:        h.Value.Raw,
		})
	}
	return holdings, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
