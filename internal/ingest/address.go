package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// AddressMode selects how chunk ids are derived. A batch uses one mode
// for all of its records.
type AddressMode int

const (
	// AddressByPosition derives ids from (document ref, chunk index,
	// chunk text). Re-ingesting the same document reproduces the same
	// ids, so an upsert replaces rather than duplicates.
	AddressByPosition AddressMode = iota

	// AddressByContent derives ids from chunk text alone, deduplicating
	// identical chunks across the whole corpus regardless of origin.
	AddressByContent
)

// ChunkID returns the deterministic hex identifier for a chunk. Fields
// are length-prefixed before hashing so that distinct input triples can
// never collide by concatenating identically.
func ChunkID(mode AddressMode, documentRef string, chunkIndex int, chunkText string) string {
	h := sha256.New()
	if mode == AddressByContent {
		io.WriteString(h, chunkText)
		return hex.EncodeToString(h.Sum(nil))
	}
	fmt.Fprintf(h, "%d:%s;", len(documentRef), documentRef)
	fmt.Fprintf(h, "%d;", chunkIndex)
	fmt.Fprintf(h, "%d:%s;", len(chunkText), chunkText)
	return hex.EncodeToString(h.Sum(nil))
}
