// Package fetch downloads web pages and extracts their readable text and
// metadata into ingestion documents.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// FetchError wraps a failure for one URL so batch callers can report it
// alongside the locator that caused it.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Extractor downloads pages over HTTP and turns them into plain-text
// documents. Safe for concurrent use.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	log       *slog.Logger
}

// NewExtractor builds an Extractor. timeout bounds each request,
// maxBytes caps how much of a response body is read, and userAgent is
// sent on every request (a browser-like default is used when empty).
func NewExtractor(timeout time.Duration, userAgent string, maxBytes int64, log *slog.Logger) *Extractor {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; webgest/1.0)"
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// Fetch downloads rawURL and returns the extracted document. The
// document text is readability-extracted when possible, falling back to
// tag stripping, and is normalized with CleanText. Metadata carries the
// url, processing timestamp, and whatever page metadata was present.
func (e *Extractor) Fetch(ctx context.Context, rawURL string) (ingest.Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("missing host")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return ingest.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	page := string(body)
	text := e.extractText(page, parsed)
	text = strings.TrimSpace(CleanText(text))

	meta := map[string]string{"url": rawURL}
	if doc, perr := html.Parse(strings.NewReader(page)); perr == nil {
		for k, v := range extractMetadata(doc, time.Now()) {
			meta[k] = v
		}
	} else {
		meta["processed_date"] = time.Now().UTC().Format(time.RFC3339)
	}

	e.log.Debug("fetched page", "url", rawURL, "bytes", len(body), "text_chars", len(text))

	return ingest.Document{
		Ref:      rawURL,
		Text:     text,
		Metadata: meta,
	}, nil
}

// extractText runs readability extraction, falling back to stripping
// tags when the page has no identifiable article.
func (e *Extractor) extractText(page string, u *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(page), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent
	}
	if err != nil {
		e.log.Debug("readability extraction failed, stripping tags", "url", u.String(), "error", err)
	}
	return stripHTML(page)
}

// stripHTML returns the text content of page with boilerplate containers
// (scripts, navigation, chrome) removed. Parse failures degrade to
// returning the input unchanged; CleanText handles the mess.
func stripHTML(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return page
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "form", "nav", "footer", "header", "aside":
				return
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return buf.String()
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
