package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// CSVParser handles CSV files. Rows are rewritten as "header: value"
// lines and grouped into paragraph batches so related rows tend to land
// in the same chunk.
type CSVParser struct{}

// rowBatchSize rows per paragraph keeps batches near typical chunk size.
const rowBatchSize = 20

func (p *CSVParser) Parse(r io.Reader, filename string) (ingest.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return ingest.Document{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return newDocument(filename, "csv", ""), nil
	}

	headers := records[0]
	rows := records[1:]

	var blocks []string
	for i := 0; i < len(rows); i += rowBatchSize {
		end := i + rowBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		var text strings.Builder
		text.WriteString("Headers: " + strings.Join(headers, ", ") + "\n")
		for _, row := range rows[i:end] {
			for j, cell := range row {
				if j > 0 {
					text.WriteString(", ")
				}
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
			}
			text.WriteString("\n")
		}
		blocks = append(blocks, strings.TrimRight(text.String(), "\n"))
	}

	doc := newDocument(filename, "csv", strings.Join(blocks, "\n\n"))
	doc.Metadata["rows"] = strconv.Itoa(len(rows))
	return doc, nil
}
