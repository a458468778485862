package sec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"insiderflow/pkg/logger"
)

const (
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"
	browseEdgarURL    = "https://www.sec.gov/cgi-bin/browse-edgar"

	// SEC's fair-access policy. The cooldown before hitting the bulk company
	// index is a hard timing contract, not a performance knob: violating it
	// risks throttling or an outright block.
	identifierIndexCooldown = 10 * time.Second
	requestDelay            = 100 * time.Millisecond
)

// Client talks to SEC EDGAR. All requests carry the identifying User-Agent
// the source's usage policy requires.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	downloadDir string

	// Index endpoints, overridable in tests.
	tickerIndexURL string
	filingIndexURL string

	cikCache *gocache.Cache
	sleep    func(time.Duration)
}

// NewClient creates an EDGAR client. email identifies the caller per SEC
// policy; downloadDir receives raw and normalized Form 4 files.
func NewClient(email, downloadDir string) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		userAgent:      fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) %s", email),
		downloadDir:    downloadDir,
		tickerIndexURL: companyTickersURL,
		filingIndexURL: browseEdgarURL,
		cikCache:       gocache.New(gocache.NoExpiration, gocache.NoExpiration),
		sleep:          time.Sleep,
	}
}

// Resolve maps a ticker symbol to its zero-padded CIK via the bulk company
// index. The lookup table is cached for the life of the process only; it is
// never persisted. Returns ErrNotFound on a miss and ErrUpstreamUnavailable
// when the index cannot be fetched or parsed.
func (c *Client) Resolve(ctx context.Context, ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))

	if cik, ok := c.cikCache.Get(normalized); ok {
		return cik.(string), nil
	}

	if c.cikCache.ItemCount() == 0 {
		if err := c.loadCompanyIndex(ctx); err != nil {
			return "", err
		}
		if cik, ok := c.cikCache.Get(normalized); ok {
			return cik.(string), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, ticker)
}

// loadCompanyIndex fetches the full ticker->CIK table.
// Format: {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
func (c *Client) loadCompanyIndex(ctx context.Context) error {
	c.sleep(identifierIndexCooldown)

	logger.L.Info("loading company index", "url", c.tickerIndexURL)
	body, err := c.fetchURL(ctx, c.tickerIndexURL, "application/json")
	if err != nil {
		return fmt.Errorf("%w: company index: %v", ErrUpstreamUnavailable, err)
	}

	type entry struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	var index map[string]entry
	if err := json.Unmarshal(body, &index); err != nil {
		return fmt.Errorf("%w: parse company index: %v", ErrUpstreamUnavailable, err)
	}

	for _, e := range index {
		c.cikCache.SetDefault(strings.ToUpper(e.Ticker), fmt.Sprintf("%010d", e.CIK))
	}
	logger.L.Info("company index loaded", "tickers", c.cikCache.ItemCount())
	return nil
}

func (c *Client) fetchURL(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
