// Package pipeline runs the ingestion flow: fetch a source, chunk it,
// and upsert the chunks into a vector store collection. Batches fan out
// over a bounded worker pool with per-source failure isolation.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jmcalloway/webgest/internal/chunker"
	"github.com/jmcalloway/webgest/internal/ingest"
)

// Source turns a locator (URL) into an extracted document.
type Source interface {
	Fetch(ctx context.Context, locator string) (ingest.Document, error)
}

// Store persists chunk records. Upserting the same ids again must
// replace, not duplicate.
type Store interface {
	Upsert(ctx context.Context, collection string, records []ingest.Record) error
}

// Options tunes batch execution.
type Options struct {
	// Workers bounds how many sources are processed at once. Values
	// below 1 mean serial processing.
	Workers int

	// Delay is the politeness pause between scheduling consecutive
	// sources of a batch. It is skipped for single-source batches.
	Delay time.Duration

	// Mode selects how chunk ids are derived.
	Mode ingest.AddressMode
}

// Result reports the outcome for one source. A batch returns one Result
// per input, in input order, regardless of individual failures.
type Result struct {
	Success         bool    `json:"success"`
	Source          string  `json:"source"`
	ChunksCreated   int     `json:"chunks_created"`
	TotalCharacters int     `json:"total_characters"`
	ProcessingTime  float64 `json:"processing_time"`
	Error           string  `json:"error,omitempty"`
}

// Pipeline wires a source and a store together. Safe for concurrent use.
type Pipeline struct {
	source Source
	store  Store
	log    *slog.Logger
	opts   Options
}

func New(source Source, store Store, log *slog.Logger, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{source: source, store: store, log: log, opts: opts}
}

// Ingest fetches one locator and stores its chunks. Errors are folded
// into the Result rather than returned, so batch callers treat every
// source uniformly.
func (p *Pipeline) Ingest(ctx context.Context, locator, collection string, policy chunker.Policy) Result {
	start := time.Now()

	doc, err := p.source.Fetch(ctx, locator)
	if err != nil {
		p.log.Warn("fetch failed", "source", locator, "error", err)
		return failure(locator, start, err)
	}
	return p.ingestFrom(ctx, doc, collection, policy, start)
}

// IngestDocument stores the chunks of an already extracted document,
// for sources that do not go through the fetcher (file uploads).
func (p *Pipeline) IngestDocument(ctx context.Context, doc ingest.Document, collection string, policy chunker.Policy) Result {
	return p.ingestFrom(ctx, doc, collection, policy, time.Now())
}

func (p *Pipeline) ingestFrom(ctx context.Context, doc ingest.Document, collection string, policy chunker.Policy, start time.Time) Result {
	records, err := ingest.Assemble(doc, policy, p.opts.Mode)
	if err != nil {
		p.log.Warn("assembly failed", "source", doc.Ref, "error", err)
		return failure(doc.Ref, start, err)
	}

	if err := p.store.Upsert(ctx, collection, records); err != nil {
		p.log.Error("upsert failed", "source", doc.Ref, "collection", collection, "error", err)
		return failure(doc.Ref, start, err)
	}

	p.log.Info("ingested source",
		"source", doc.Ref,
		"collection", collection,
		"chunks", len(records),
		"characters", utf8.RuneCountInString(doc.Text),
	)

	return Result{
		Success:         true,
		Source:          doc.Ref,
		ChunksCreated:   len(records),
		TotalCharacters: utf8.RuneCountInString(doc.Text),
		ProcessingTime:  time.Since(start).Seconds(),
	}
}

// IngestMany processes locators with bounded concurrency and returns
// one Result per locator in input order. A cancelled context stops
// scheduling new sources; already started ones finish, and unscheduled
// ones report the cancellation error.
func (p *Pipeline) IngestMany(ctx context.Context, locators []string, collection string, policy chunker.Policy) []Result {
	return p.run(ctx, locators, collection, policy, nil)
}

// run is IngestMany with a progress callback. onResult is invoked once
// per locator as its result lands, possibly from different goroutines.
func (p *Pipeline) run(ctx context.Context, locators []string, collection string, policy chunker.Policy, onResult func(int, Result)) []Result {
	results := make([]Result, len(locators))
	report := func(i int, r Result) {
		results[i] = r
		if onResult != nil {
			onResult(i, r)
		}
	}

	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup

	for i, loc := range locators {
		if i > 0 && p.opts.Delay > 0 && len(locators) > 1 {
			select {
			case <-time.After(p.opts.Delay):
			case <-ctx.Done():
			}
		}

		if ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			now := time.Now()
			for j := i; j < len(locators); j++ {
				report(j, failure(locators[j], now, err))
			}
			wg.Wait()
			return results
		}

		wg.Add(1)
		go func(i int, loc string) {
			defer wg.Done()
			defer func() { <-sem }()
			report(i, p.Ingest(ctx, loc, collection, policy))
		}(i, loc)
	}

	wg.Wait()
	return results
}

func failure(source string, start time.Time, err error) Result {
	return Result{
		Source:         source,
		ProcessingTime: time.Since(start).Seconds(),
		Error:          err.Error(),
	}
}
