package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/jmcalloway/webgest/internal/chunker"
)

// ErrEmptyContent signals that a document produced no usable chunks.
// Within a batch this fails the one document; the batch continues.
var ErrEmptyContent = errors.New("no chunkable text")

// Assemble splits doc.Text under the policy and pairs each chunk with
// its merged metadata and content-derived id. Records come back in chunk
// order; duplicates are never filtered here, only collapsed by the
// store's id-keyed upsert.
func Assemble(doc Document, policy chunker.Policy, mode AddressMode) ([]Record, error) {
	texts := policy.Split(doc.Text)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyContent, doc.Ref)
	}

	records := make([]Record, 0, len(texts))
	for i, text := range texts {
		meta := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[MetaChunkIndex] = strconv.Itoa(i)
		meta[MetaChunkSize] = strconv.Itoa(utf8.RuneCountInString(text))
		if doc.SourceName != "" {
			meta[MetaSource] = doc.SourceName
		}

		records = append(records, Record{
			ID:       ChunkID(mode, doc.Ref, i, text),
			Text:     text,
			Metadata: meta,
		})
	}
	return records, nil
}
