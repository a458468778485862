package sec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient("test@example.com", t.TempDir())
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestResolve(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("request without User-Agent")
		}
		fmt.Fprint(w, `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."},
			"1":{"cik_str":789019,"ticker":"MSFT","title":"Microsoft Corp"}}`)
	}))
	defer srv.Close()

	c, slept := newTestClient(t)
	c.tickerIndexURL = srv.URL

	cik, err := c.Resolve(context.Background(), "aapl")
	if err != nil {
		t.Fatal(err)
	}
	if cik != "0000320193" {
		t.Errorf("cik = %q, want 0000320193", cik)
	}

	if len(*slept) != 1 || (*slept)[0] != identifierIndexCooldown {
		t.Errorf("slept %v, want one %v cooldown before the index fetch", *slept, identifierIndexCooldown)
	}

	// Second lookup must come from the process-local cache.
	if _, err := c.Resolve(context.Background(), "MSFT"); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("index fetched %d times, want 1", hits)
	}
}

func TestResolveUnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	c.tickerIndexURL = srv.URL

	_, err := c.Resolve(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	c.tickerIndexURL = srv.URL

	_, err := c.Resolve(context.Background(), "AAPL")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

const atomFixture = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>AAPL Form 4 filings</title>
  <entry>
    <title>4 - DOE JANE</title>
    <link rel="alternate" type="text/html" href="%s/Archives/edgar/data/320193/000032019324000001-index.htm"/>
    <content type="text/xml">
      <accession-number>0000320193-24-000001</accession-number>
      <filing-date>2024-01-10</filing-date>
      <report-date>2024-01-08</report-date>
      <filing-type>4</filing-type>
    </content>
  </entry>
  <entry>
    <title>4 - SMITH JOHN</title>
    <link rel="alternate" type="text/html" href="%s/Archives/edgar/data/320193/000032019324000002-index.htm"/>
    <content type="text/xml">
      <accession-number>0000320193-24-000002</accession-number>
      <filing-date>2024-01-05</filing-date>
      <report-date>2024-01-03</report-date>
      <filing-type>4</filing-type>
    </content>
  </entry>
</feed>`

func TestListFilings(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprintf(w, atomFixture, "http://"+r.Host, "http://"+r.Host)
	}))
	defer srv.Close()

	c, slept := newTestClient(t)
	c.filingIndexURL = srv.URL

	refs, err := c.ListFilings(context.Background(), "AAPL", "0000320193", "4", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("filings = %d, want 2", len(refs))
	}

	first := refs[0]
	if first.AccessionNumber != "0000320193-24-000001" {
		t.Errorf("accession = %q", first.AccessionNumber)
	}
	if first.FilingDate.Format("2006-01-02") != "2024-01-10" {
		t.Errorf("filing date = %v", first.FilingDate)
	}
	if first.DetailURL == "" {
		t.Error("missing detail URL")
	}

	for _, want := range []string{"action=getcompany", "CIK=0000320193", "type=4", "owner=include", "output=atom"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	if len(*slept) != 1 || (*slept)[0] != requestDelay {
		t.Errorf("slept %v, want one %v delay", *slept, requestDelay)
	}
}

func TestListFilingsTruncatesAtMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, atomFixture, "http://"+r.Host, "http://"+r.Host)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	c.filingIndexURL = srv.URL

	refs, err := c.ListFilings(context.Background(), "AAPL", "0000320193", "4", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("filings = %d, want 1", len(refs))
	}
}
