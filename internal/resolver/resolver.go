// Package resolver decides, per instruction, whether a stage can reuse a
// cached layer or has to build it.
//
// Reuse follows the prefix rule: an instruction is CACHED only when every
// instruction before it in the stage was CACHED too and the index holds a
// layer for its fingerprint. The first miss turns the rest of the stage into
// BUILT, even where later fingerprints would hit.
package resolver

import (
	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/graph"
)

type Verdict int

const (
	Built Verdict = iota
	Cached
)

func (v Verdict) String() string {
	if v == Cached {
		return "CACHED"
	}
	return "BUILT"
}

// Lookuper is the read side of the cache index.
type Lookuper interface {
	Lookup(fp fingerprint.Fingerprint) (cache.LayerRecord, bool)
}

// Decision is the verdict for one instruction. Record is set for cached ones.
type Decision struct {
	Index       int
	Fingerprint fingerprint.Fingerprint
	Verdict     Verdict
	Record      cache.LayerRecord
}

type Result struct {
	Stage     string
	Decisions []Decision

	// Final is the stage's last fingerprint whatever the verdicts are.
	Final fingerprint.Fingerprint
}

// FirstBuilt returns the index of the first BUILT instruction, or -1.
func (r Result) FirstBuilt() int {
	for i, d := range r.Decisions {
		if d.Verdict == Built {
			return i
		}
	}
	return -1
}

func (r Result) AllCached() bool {
	return r.FirstBuilt() < 0
}

// Resolve walks the stage's instruction chain against index. It only reads
// the index.
func Resolve(stage *graph.Node, index Lookuper) Result {
	res := Result{
		Stage:     stage.Name,
		Decisions: make([]Decision, len(stage.Steps)),
		Final:     stage.Final,
	}

	eligible := true
	for i, step := range stage.Steps {
		d := Decision{Index: i, Fingerprint: step.Fingerprint, Verdict: Built}
		if eligible {
			if rec, ok := index.Lookup(step.Fingerprint); ok {
				d.Verdict = Cached
				d.Record = rec
			} else {
				eligible = false
			}
		}
		res.Decisions[i] = d
	}
	return res
}
