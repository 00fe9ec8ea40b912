package fetch

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// extractMetadata pulls document-level metadata from a parsed HTML tree.
// Only keys with non-empty values appear in the result; the caller adds
// the url and processed_date entries.
func extractMetadata(doc *html.Node, now time.Time) map[string]string {
	meta := map[string]string{
		"processed_date": now.UTC().Format(time.RFC3339),
	}

	if title := findTitle(doc); title != "" {
		meta["title"] = title
	}

	tags := collectMetaTags(doc)
	desc := tags["description"]
	if desc == "" {
		desc = tags["og:description"]
	}
	if desc != "" {
		meta["description"] = desc
	}
	if v := tags["keywords"]; v != "" {
		meta["keywords"] = v
	}
	if v := tags["author"]; v != "" {
		meta["author"] = v
	}

	if lang := findLang(doc); lang != "" {
		meta["language"] = lang
	}

	return meta
}

// collectMetaTags maps meta name/property attributes to their content.
func collectMetaTags(n *html.Node) map[string]string {
	tags := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			key := attr(n, "name")
			if key == "" {
				key = attr(n, "property")
			}
			if key != "" {
				if content := strings.TrimSpace(attr(n, "content")); content != "" {
					if _, ok := tags[key]; !ok {
						tags[key] = content
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return tags
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findLang(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "html" {
		return strings.TrimSpace(attr(n, "lang"))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if l := findLang(c); l != "" {
			return l
		}
	}
	return ""
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
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
	return buf.String()
}
