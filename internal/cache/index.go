// Package cache holds the in-memory index of layers a build may reuse.
//
// The index maps a fingerprint to the layer that produced it. It only grows
// during a session: sources are merged in up front and freshly built layers
// are registered as they complete.
package cache

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/logs"
)

// LayerRecord is a reusable layer: the prefix identity it satisfies, an
// opaque handle the runtime understands and the stage that produced it.
type LayerRecord struct {
	Fingerprint fingerprint.Fingerprint
	Artifact    string
	Stage       string
}

// maxParallelFetches bounds concurrent history fetches.
const maxParallelFetches = 8

type Index struct {
	mu        sync.RWMutex
	records   map[fingerprint.Fingerprint]LayerRecord
	conflicts int
}

func NewIndex() *Index {
	return &Index{records: make(map[fingerprint.Fingerprint]LayerRecord)}
}

// Register inserts rec unless its fingerprint is already known. The first
// writer wins; a later record with a different artifact is dropped and
// counted as a conflict.
func (ix *Index) Register(rec LayerRecord) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.registerLocked(rec)
}

func (ix *Index) registerLocked(rec LayerRecord) bool {
	if prev, ok := ix.records[rec.Fingerprint]; ok {
		if prev.Artifact != rec.Artifact {
			ix.conflicts++
			logs.Debugf("cache: keeping %s for %s, ignoring %s", prev.Artifact, rec.Fingerprint.Short(), rec.Artifact)
		}
		return false
	}
	ix.records[rec.Fingerprint] = rec
	return true
}

func (ix *Index) Lookup(fp fingerprint.Fingerprint) (LayerRecord, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[fp]
	return rec, ok
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Conflicts returns how many registrations lost to an existing record.
func (ix *Index) Conflicts() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.conflicts
}

// Snapshot returns every record sorted by fingerprint.
func (ix *Index) Snapshot() []LayerRecord {
	ix.mu.RLock()
	out := make([]LayerRecord, 0, len(ix.records))
	for _, rec := range ix.records {
		out = append(out, rec)
	}
	ix.mu.RUnlock()

	slices.SortFunc(out, func(a, b LayerRecord) int {
		return strings.Compare(string(a.Fingerprint), string(b.Fingerprint))
	})
	return out
}

// RegisterHistory verifies h and merges all of its entries. A history that
// fails verification is rejected as a whole.
func (ix *Index) RegisterHistory(ref string, h History) error {
	if err := h.Verify(); err != nil {
		return &RegistrationError{Ref: ref, Reason: "corrupt history", Err: err}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range h.Entries {
		ix.registerLocked(e.Record())
	}
	return nil
}

// RegisterSources fetches the history of every ref concurrently and merges
// them in sorted reference order, so the resulting index does not depend on
// the order refs were given in. Failed sources are logged, skipped and
// returned; they never fail the build.
func (ix *Index) RegisterSources(ctx context.Context, src HistorySource, refs []string) []error {
	canonical := canonicalRefs(refs)
	histories := make([]History, len(canonical))
	fetchErrs := make([]error, len(canonical))

	var eg errgroup.Group
	eg.SetLimit(maxParallelFetches)
	for i, ref := range canonical {
		eg.Go(func() error {
			h, err := src.FetchHistory(ctx, ref)
			if err != nil {
				fetchErrs[i] = &RegistrationError{Ref: ref, Reason: "fetching history", Err: err}
				return nil
			}
			histories[i] = h
			return nil
		})
	}
	_ = eg.Wait()

	var errs []error
	for i, ref := range canonical {
		err := fetchErrs[i]
		if err == nil {
			err = ix.RegisterHistory(ref, histories[i])
		}
		if err != nil {
			logs.Warnf("ignoring cache source: %v", err)
			errs = append(errs, err)
			continue
		}
		logs.Debugf("cache: registered %d layers from %s", len(histories[i].Entries), ref)
	}
	return errs
}

func canonicalRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
