package sec

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"insiderflow/pkg/logger"
)

const (
	completeSubmissionLabel = "Complete submission text file"
	// Stylesheet-transformed renderings of the same document; never what we
	// want to download.
	stylesheetPathSegment = "xslF345X"

	ownershipOpenTag  = "<ownershipDocument>"
	ownershipCloseTag = "</ownershipDocument>"
)

// FetchAndNormalize downloads one filing's submission, persists the raw
// bytes, isolates the embedded ownership document, and parses it through the
// strict/tolerant repair machine. Two files are written on success:
//
//	form4_<TICKER>_<timestamp>_raw.txt   unmodified submission (audit trail)
//	form4_<TICKER>_<timestamp>.xml       normalized document fragment
//
// The filename layout is load-bearing: the extractor's directory-scan mode
// reads the ticker back out of the second underscore-delimited token.
func (c *Client) FetchAndNormalize(ctx context.Context, ref FilingReference) (*NormalizedDocument, error) {
	artifactURL, err := c.findArtifactLink(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.sleep(requestDelay)
	raw, err := c.fetchURL(ctx, artifactURL, "")
	if err != nil {
		return nil, fmt.Errorf("%w: download %s for %s: %v", ErrUpstreamUnavailable, ref.AccessionNumber, ref.Ticker, err)
	}

	stamp := time.Now().Format("20060102_150405")
	rawPath := filepath.Join(c.downloadDir, fmt.Sprintf("form4_%s_%s_raw.txt", ref.Ticker, stamp))
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("persist raw filing: %w", err)
	}

	// Isolate the document span: first open tag, first subsequent close tag.
	// A single flat scan is enough; the document type never nests its root.
	content := string(raw)
	start := strings.Index(content, ownershipOpenTag)
	var fragment string
	if start >= 0 {
		if end := strings.Index(content[start:], ownershipCloseTag); end >= 0 {
			fragment = content[start : start+end+len(ownershipCloseTag)]
		}
	}
	if fragment == "" {
		logger.L.Warn("ownership document not found in submission",
			"ticker", ref.Ticker, "accession", ref.AccessionNumber, "stage", "isolate")
		return nil, fmt.Errorf("%w: %s %s: root element span not found", ErrExtractionFailed, ref.Ticker, ref.AccessionNumber)
	}

	docPath := filepath.Join(c.downloadDir, fmt.Sprintf("form4_%s_%s.xml", ref.Ticker, stamp))
	normalized := []byte(xmlDeclaration + fragment)
	if err := os.WriteFile(docPath, normalized, 0o644); err != nil {
		return nil, fmt.Errorf("persist normalized document: %w", err)
	}

	res := ParseWithRepair(normalized)
	if res.State != StateParsed {
		logger.L.Warn("ownership document unparseable after repair",
			"ticker", ref.Ticker, "accession", ref.AccessionNumber, "state", res.State.String())
		return nil, fmt.Errorf("%w: %s %s: parse state %s", ErrExtractionFailed, ref.Ticker, ref.AccessionNumber, res.State)
	}
	if res.Repaired {
		// Keep the on-disk copy in sync with what actually parsed.
		if err := os.WriteFile(docPath, res.Content, 0o644); err != nil {
			return nil, fmt.Errorf("persist repaired document: %w", err)
		}
		logger.L.Info("document repaired", "ticker", ref.Ticker, "accession", ref.AccessionNumber)
	}

	return &NormalizedDocument{
		Manifest: DownloadManifest{
			Ticker:          ref.Ticker,
			AccessionNumber: ref.AccessionNumber,
			RawPath:         rawPath,
			DocumentPath:    docPath,
			DownloadedAt:    time.Now(),
		},
		Doc: res.Doc,
	}, nil
}

// findArtifactLink resolves the filing's detail page and locates the
// downloadable submission. The complete-submission row is preferred; failing
// that, any anchor pointing at an XML document that is not a stylesheet
// rendering.
func (c *Client) findArtifactLink(ctx context.Context, ref FilingReference) (string, error) {
	c.sleep(requestDelay)
	body, err := c.fetchURL(ctx, ref.DetailURL, "text/html")
	if err != nil {
		return "", fmt.Errorf("%w: detail page for %s %s: %v", ErrUpstreamUnavailable, ref.Ticker, ref.AccessionNumber, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("%w: parse detail page for %s %s: %v", ErrUpstreamUnavailable, ref.Ticker, ref.AccessionNumber, err)
	}

	var href string
	doc.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if !strings.Contains(row.Text(), completeSubmissionLabel) {
			return true
		}
		if link, ok := row.Find("a").First().Attr("href"); ok {
			href = link
			return false
		}
		return true
	})

	if href == "" {
		doc.Find("a").EachWithBreak(func(i int, a *goquery.Selection) bool {
			link, ok := a.Attr("href")
			if !ok {
				return true
			}
			if strings.Contains(link, ".xml") && !strings.Contains(link, stylesheetPathSegment) {
				href = link
				return false
			}
			return true
		})
	}

	if href == "" {
		return "", fmt.Errorf("%w: %s %s: no artifact link on detail page", ErrExtractionFailed, ref.Ticker, ref.AccessionNumber)
	}

	return resolveLink(ref.DetailURL, href)
}

func resolveLink(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse detail URL %s: %w", base, err)
	}
	linkURL, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse artifact link %s: %w", href, err)
	}
	return baseURL.ResolveReference(linkURL).String(), nil
}
