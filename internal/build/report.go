package build

import (
	"time"

	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/resolver"
)

type StageStatus int

const (
	StatusPlanned StageStatus = iota
	StatusDone
	StatusFailed
	StatusSkipped
	StatusCancelled
)

func (s StageStatus) String() string {
	switch s {
	case StatusPlanned:
		return "planned"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type InstructionReport struct {
	Index       int
	Text        string
	Fingerprint fingerprint.Fingerprint
	Verdict     resolver.Verdict

	// Artifact is empty for instructions that never ran.
	Artifact string
	// ProducedBy names the stage that built the reused layer. It is set for
	// cached instructions only.
	ProducedBy string
	Err        error
}

type StageReport struct {
	Name         string
	Index        int
	Base         string
	Status       StageStatus
	Instructions []InstructionReport
	Final        fingerprint.Fingerprint
	Artifact     string
	Published    []string
	Err          error
	Duration     time.Duration
}

// Cached counts the cached instructions of the stage.
func (s *StageReport) Cached() int {
	n := 0
	for _, in := range s.Instructions {
		if in.Verdict == resolver.Cached {
			n++
		}
	}
	return n
}

type Report struct {
	Target string
	// Stages holds every stage of the target's closure in topological order.
	Stages []*StageReport

	SourceErrors []error
	// Known lists the layers the cache sources offered, by fingerprint. Only
	// a plan fills it.
	Known     []cache.LayerRecord
	Layers    int
	Conflicts int
	Duration  time.Duration
}

func (r *Report) Stage(name string) (*StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Counts returns the number of cached and built instructions over all stages
// that reached resolution.
func (r *Report) Counts() (cached, built int) {
	for _, s := range r.Stages {
		c := s.Cached()
		cached += c
		built += len(s.Instructions) - c
	}
	return cached, built
}
