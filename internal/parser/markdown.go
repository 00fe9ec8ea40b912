package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// MarkdownParser handles Markdown files using goldmark. Headings become
// their own paragraphs so that chunk boundaries prefer section breaks.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (ingest.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return ingest.Document{}, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []string
	var title string

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			heading := string(node.Text(src))
			if heading == "" {
				continue
			}
			if title == "" && node.Level == 1 {
				title = heading
			}
			blocks = append(blocks, heading)
		default:
			if t := extractText(n, src); t != "" {
				blocks = append(blocks, t)
			}
		}
	}

	out := newDocument(filename, "markdown", strings.Join(blocks, "\n\n"))
	if title != "" {
		out.Metadata["title"] = title
	}
	return out, nil
}

// extractText gets the text content of a goldmark AST node. Blocks with
// source lines (paragraphs, code blocks) read the source directly;
// container blocks such as lists recurse into their children.
func extractText(n ast.Node, src []byte) string {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}

	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := extractText(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
