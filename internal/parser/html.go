package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// HTMLParser handles uploaded HTML files. Unlike the web fetcher it does
// no readability pass; uploads are assumed to be content, not pages
// wrapped in site chrome.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (ingest.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return ingest.Document{}, fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "td", "blockquote", "pre":
				if t := nodeText(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := htmlBody(root); body != nil {
		walk(body)
	} else {
		walk(root)
	}

	doc := newDocument(filename, "html", strings.Join(blocks, "\n\n"))
	if title := htmlTitle(root); title != "" {
		doc.Metadata["title"] = title
	}
	return doc, nil
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func htmlTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return nodeText(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := htmlTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func htmlBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := htmlBody(c); b != nil {
			return b
		}
	}
	return nil
}
