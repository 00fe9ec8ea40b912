// Package vectorstore wraps an embedded chromem-go database behind the
// operations the ingestion service needs: id-keyed upsert, similarity
// query, and collection management.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// journalFile persists insertion order next to the chromem data.
const journalFile = "journal.json"

// StoreError wraps a failure with the collection it happened in.
type StoreError struct {
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("collection %q: %v", e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Match is one stored chunk returned by Query or Peek. Similarity is
// only meaningful for Query results.
type Match struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity,omitempty"`
}

// Store is a collection-oriented view over a chromem database. Upserts
// with the same id replace the stored chunk, which is what makes
// re-ingestion idempotent. Safe for concurrent use.
type Store struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
	log   *slog.Logger

	// chromem has no enumeration API, so the store keeps a journal of
	// ids per collection in insertion order to back Peek. Ids deleted
	// behind the journal's back are skipped at read time.
	mu          sync.Mutex
	journal     map[string][]string
	seen        map[string]map[string]bool
	journalPath string
}

// New opens a store. An empty path means in-memory; otherwise the
// database persists under path with compression on.
func New(path string, embed chromem.EmbeddingFunc, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		embed:   embed,
		log:     log,
		journal: make(map[string][]string),
		seen:    make(map[string]map[string]bool),
	}

	if path == "" {
		s.db = chromem.NewDB()
		return s, nil
	}

	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open vector db at %s: %w", path, err)
	}
	s.db = db
	s.journalPath = filepath.Join(path, journalFile)
	if err := s.loadJournal(); err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return s, nil
}

// Upsert writes records into the named collection, creating it on first
// use. Records whose ids already exist are replaced.
func (s *Store) Upsert(ctx context.Context, collection string, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}

	coll, err := s.db.GetOrCreateCollection(collection, nil, s.embed)
	if err != nil {
		return &StoreError{Collection: collection, Err: err}
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, chromem.Document{
			ID:       rec.ID,
			Content:  rec.Text,
			Metadata: rec.Metadata,
		})
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &StoreError{Collection: collection, Err: err}
	}

	s.mu.Lock()
	for _, rec := range records {
		s.remember(collection, rec.ID)
	}
	s.saveJournalLocked()
	s.mu.Unlock()

	return nil
}

// Count returns how many chunks the collection holds. A collection that
// does not exist counts as empty.
func (s *Store) Count(collection string) int {
	coll := s.db.GetCollection(collection, s.embed)
	if coll == nil {
		return 0
	}
	return coll.Count()
}

// Query embeds text and returns up to topK most similar chunks,
// optionally filtered by metadata equality. topK is clamped to the
// collection size; an empty or missing collection yields no matches.
func (s *Store) Query(ctx context.Context, collection, text string, topK int, where map[string]string) ([]Match, error) {
	coll := s.db.GetCollection(collection, s.embed)
	if coll == nil {
		return nil, nil
	}

	n := coll.Count()
	if n == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > n {
		topK = n
	}

	results, err := coll.Query(ctx, text, topK, where, nil)
	if err != nil {
		return nil, &StoreError{Collection: collection, Err: err}
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:         r.ID,
			Text:       r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Peek returns up to limit chunks in insertion order.
func (s *Store) Peek(ctx context.Context, collection string, limit int) ([]Match, error) {
	coll := s.db.GetCollection(collection, s.embed)
	if coll == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	ids := make([]string, len(s.journal[collection]))
	copy(ids, s.journal[collection])
	s.mu.Unlock()

	matches := make([]Match, 0, limit)
	for _, id := range ids {
		if len(matches) == limit {
			break
		}
		doc, err := coll.GetByID(ctx, id)
		if err != nil {
			// Deleted behind the journal; skip.
			continue
		}
		matches = append(matches, Match{
			ID:       doc.ID,
			Text:     doc.Content,
			Metadata: doc.Metadata,
		})
	}
	return matches, nil
}

// DeleteByIDs removes specific chunks from a collection.
func (s *Store) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	coll := s.db.GetCollection(collection, s.embed)
	if coll == nil {
		return nil
	}
	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		return &StoreError{Collection: collection, Err: err}
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	kept := s.journal[collection][:0]
	for _, id := range s.journal[collection] {
		if drop[id] {
			delete(s.seen[collection], id)
			continue
		}
		kept = append(kept, id)
	}
	s.journal[collection] = kept
	s.saveJournalLocked()
	s.mu.Unlock()
	return nil
}

// DeleteWhere removes all chunks whose metadata matches where. Journal
// entries for deleted ids are reconciled lazily by Peek.
func (s *Store) DeleteWhere(ctx context.Context, collection string, where map[string]string) error {
	coll := s.db.GetCollection(collection, s.embed)
	if coll == nil {
		return nil
	}
	if err := coll.Delete(ctx, where, nil); err != nil {
		return &StoreError{Collection: collection, Err: err}
	}
	return nil
}

// ListCollections returns collection names in sorted order.
func (s *Store) ListCollections() []string {
	colls := s.db.ListCollections()
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteCollection removes a whole collection and its journal entries.
// Deleting a collection that does not exist is not an error.
func (s *Store) DeleteCollection(collection string) error {
	if err := s.db.DeleteCollection(collection); err != nil {
		return &StoreError{Collection: collection, Err: err}
	}
	s.mu.Lock()
	delete(s.journal, collection)
	delete(s.seen, collection)
	s.saveJournalLocked()
	s.mu.Unlock()
	return nil
}

// remember appends id to the collection journal once. Callers hold mu.
func (s *Store) remember(collection, id string) {
	if s.seen[collection] == nil {
		s.seen[collection] = make(map[string]bool)
	}
	if s.seen[collection][id] {
		return
	}
	s.seen[collection][id] = true
	s.journal[collection] = append(s.journal[collection], id)
}

func (s *Store) loadJournal() error {
	data, err := os.ReadFile(s.journalPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.journal); err != nil {
		return fmt.Errorf("parse %s: %w", s.journalPath, err)
	}
	for coll, ids := range s.journal {
		s.seen[coll] = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.seen[coll][id] = true
		}
	}
	return nil
}

// saveJournalLocked persists the journal when the store is on disk.
// Failures only degrade Peek ordering after a restart, so they are
// logged rather than returned. Callers hold mu.
func (s *Store) saveJournalLocked() {
	if s.journalPath == "" {
		return
	}
	data, err := json.Marshal(s.journal)
	if err != nil {
		s.log.Warn("marshal journal", "error", err)
		return
	}
	tmp := s.journalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Warn("write journal", "error", err)
		return
	}
	if err := os.Rename(tmp, s.journalPath); err != nil {
		s.log.Warn("replace journal", "error", err)
	}
}
