// Package taiwan collects the TWSE three-institutional-investors (T86) daily
// buy/sell report and normalizes it into typed rows.
package taiwan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"insiderflow/pkg/logger"
)

const (
	t86URL = "https://www.twse.com.tw/fund/T86"

	// TWSE throttles aggressively; pace range scans.
	rangeDelay = 3 * time.Second
)

// Row is one stock's institutional activity for one trading day. Share counts
// arrive as comma-grouped strings and are de-grouped on parse.
type Row struct {
	StockCode           string  `json:"stock_code"`
	StockName           string  `json:"stock_name"`
	ForeignBuy          float64 `json:"foreign_buy"`
	ForeignSell         float64 `json:"foreign_sell"`
	InvestmentTrustBuy  float64 `json:"investment_trust_buy"`
	InvestmentTrustSell float64 `json:"investment_trust_sell"`
	DealerBuy           float64 `json:"dealer_buy"`
	DealerSell          float64 `json:"dealer_sell"`
	Date                string  `json:"date"`
}

// columnNames maps the feed's native field captions to row fields.
var columnNames = map[string]string{
	"證券代號":    "stock_code",
	"證券名稱":    "stock_name",
	"外陸資買進股數": "foreign_buy",
	"外陸資賣出股數": "foreign_sell",
	"投信買進股數":  "investment_trust_buy",
	"投信賣出股數":  "investment_trust_sell",
	"自營商買進股數": "dealer_buy",
	"自營商賣出股數": "dealer_sell",
}

type t86Response struct {
	Stat   string              `json:"stat"`
	Fields []string            `json:"fields"`
	Data   [][]json.RawMessage `json:"data"`
}

// Client fetches T86 reports.
type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	sleep      func(time.Duration)
}

func NewClient(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		baseURL:    t86URL,
		sleep:      time.Sleep,
	}
}

// GetDaily fetches one trading day's report. A day the exchange has no data
// for (holiday, future date) returns an empty slice, not an error.
func (c *Client) GetDaily(ctx context.Context, day time.Time) ([]Row, error) {
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", day.Format("20060102"))
	q.Set("selectType", "ALL")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build T86 request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch T86 %s: %w", day.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch T86 %s: status %s", day.Format("2006-01-02"), resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read T86 body: %w", err)
	}

	payload, err := decodeResponse(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode T86 %s: %w", day.Format("2006-01-02"), err)
	}
	if payload.Stat != "OK" {
		logger.L.Info("no T86 data for day", "date", day.Format("2006-01-02"), "stat", payload.Stat)
		return nil, nil
	}

	return mapRows(payload, day.Format("2006-01-02")), nil
}

// GetRange walks [start, end] inclusive, skipping weekends, pausing between
// requests. A day that fails is logged and skipped; the scan continues.
func (c *Client) GetRange(ctx context.Context, start, end time.Time) ([]Row, error) {
	var all []Row
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}

		rows, err := c.GetDaily(ctx, day)
		if err != nil {
			logger.L.Warn("skipping trading day", "date", day.Format("2006-01-02"), "error", err)
		} else {
			all = append(all, rows...)
		}
		c.sleep(rangeDelay)
	}
	return all, nil
}

// decodeResponse tries strict JSON first, then repairs the payload and
// retries. The exchange occasionally truncates or mis-quotes its JSON under
// load.
func decodeResponse(body string) (*t86Response, error) {
	var payload t86Response
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		return &payload, nil
	}

	repaired, err := jsonrepair.RepairJSON(body)
	if err != nil {
		return nil, fmt.Errorf("repair payload: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, fmt.Errorf("parse repaired payload: %w", err)
	}
	logger.L.Info("repaired malformed exchange payload")
	return &payload, nil
}

// mapRows resolves field positions from the feed's own header row. Captions
// the mapping does not know are ignored, so column reordering or additions
// upstream do not break the parse.
func mapRows(payload *t86Response, date string) []Row {
	index := map[string]int{}
	for i, caption := range payload.Fields {
		if name, ok := columnNames[strings.TrimSpace(caption)]; ok {
			index[name] = i
		}
	}

	rows := make([]Row, 0, len(payload.Data))
	for _, record := range payload.Data {
		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return cellString(record[i])
		}

		rows = append(rows, Row{
			StockCode:           cell("stock_code"),
			StockName:           strings.TrimSpace(cell("stock_name")),
			ForeignBuy:          parseShares(cell("foreign_buy")),
			ForeignSell:         parseShares(cell("foreign_sell")),
			InvestmentTrustBuy:  parseShares(cell("investment_trust_buy")),
			InvestmentTrustSell: parseShares(cell("investment_trust_sell")),
			DealerBuy:           parseShares(cell("dealer_buy")),
			DealerSell:          parseShares(cell("dealer_sell")),
			Date:                date,
		})
	}
	return rows
}

// cellString accepts either a JSON string or bare number cell.
func cellString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// parseShares de-groups comma-formatted counts. Unparsable cells coerce to 0.
func parseShares(raw string) float64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
