package sec

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"insiderflow/pkg/logger"
)

// atomFeed matches the browse-edgar company feed. Entries appear in the
// index's native newest-first order; each entry's alternate link points at
// the filing's detail page.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Content atomContent `xml:"content"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomContent struct {
	AccessionNumber string `xml:"accession-number"`
	FilingDate      string `xml:"filing-date"`
	ReportDate      string `xml:"report-date"`
	FilingType      string `xml:"filing-type"`
}

// ListFilings enumerates up to maxCount filings of the given form type for a
// CIK, newest first. An empty result is not an error: a company may simply
// have no matching filings on record.
func (c *Client) ListFilings(ctx context.Context, ticker, cik, formType string, maxCount int) ([]FilingReference, error) {
	c.sleep(requestDelay)

	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", cik)
	q.Set("type", formType)
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("count", strconv.Itoa(maxCount))
	q.Set("output", "atom")
	feedURL := c.filingIndexURL + "?" + q.Encode()

	body, err := c.fetchURL(ctx, feedURL, "application/atom+xml")
	if err != nil {
		return nil, fmt.Errorf("%w: filing index for %s: %v", ErrUpstreamUnavailable, ticker, err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: parse filing feed for %s: %v", ErrUpstreamUnavailable, ticker, err)
	}

	refs := make([]FilingReference, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.Content.AccessionNumber == "" {
			continue
		}

		detail := ""
		for _, link := range entry.Links {
			if link.Rel == "alternate" || detail == "" {
				detail = link.Href
			}
		}
		if detail == "" {
			logger.L.Warn("filing entry without detail link", "ticker", ticker, "accession", entry.Content.AccessionNumber)
			continue
		}

		filingDate, _ := time.Parse("2006-01-02", entry.Content.FilingDate)
		reportDate, _ := time.Parse("2006-01-02", entry.Content.ReportDate)

		refs = append(refs, FilingReference{
			Ticker:          ticker,
			AccessionNumber: entry.Content.AccessionNumber,
			FilingDate:      filingDate,
			ReportDate:      reportDate,
			DetailURL:       detail,
		})
		if maxCount > 0 && len(refs) >= maxCount {
			break
		}
	}

	return refs, nil
}
