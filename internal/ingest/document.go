// Package ingest turns extracted source documents into content-addressed
// chunk records ready for upsert into a vector store collection.
package ingest

// Document is the extracted text and metadata of one source, produced by
// a content extractor (web fetcher or file parser) and consumed whole by
// a single ingestion call.
type Document struct {
	// Ref is the stable document key, typically the source URL or
	// filename. It feeds positional chunk ids.
	Ref string

	// Text is the extracted plain text.
	Text string

	// Metadata is extractor-provided metadata, copied onto every chunk.
	Metadata map[string]string

	// SourceName is an optional label. When set it overwrites the
	// "source" metadata key on every chunk.
	SourceName string
}

// Record is the unit persisted to the vector store: a chunk of text, its
// deterministic id, and the merged metadata.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Reserved metadata keys owned by the assembler. All other keys pass
// through verbatim from the source document.
const (
	MetaChunkIndex = "chunk_index"
	MetaChunkSize  = "chunk_size"
	MetaSource     = "source"
)
