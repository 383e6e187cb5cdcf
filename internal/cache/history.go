package cache

import (
	"context"
	"fmt"

	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/version"
)

// History is the layer chain a published image carries: its ancestor stages
// followed by its own instructions, oldest first.
type History struct {
	Schema  string         `json:"schema"`
	Entries []HistoryEntry `json:"entries"`
}

type HistoryEntry struct {
	Parent      fingerprint.Fingerprint   `json:"parent"`
	Instruction string                    `json:"instruction"`
	Sources     []fingerprint.Fingerprint `json:"sources,omitempty"`
	Fingerprint fingerprint.Fingerprint   `json:"fingerprint"`
	Artifact    string                    `json:"artifact"`
	Stage       string                    `json:"stage"`
}

// Record converts the entry to the record it registers.
func (e HistoryEntry) Record() LayerRecord {
	return LayerRecord{Fingerprint: e.Fingerprint, Artifact: e.Artifact, Stage: e.Stage}
}

// HistorySource fetches the history attached to an image reference.
type HistorySource interface {
	FetchHistory(ctx context.Context, ref string) (History, error)
}

// NewHistory returns an empty history stamped with the current schema.
func NewHistory() History {
	return History{Schema: version.HistorySchemaVersion}
}

// Last returns the fingerprint of the newest entry.
func (h History) Last() fingerprint.Fingerprint {
	if len(h.Entries) == 0 {
		return fingerprint.Empty
	}
	return h.Entries[len(h.Entries)-1].Fingerprint
}

// Verify recomputes every entry from its parent, text and sources and checks
// that each entry extends the previous one. It returns the reason of the
// first violation, or nil.
func (h History) Verify() error {
	if err := version.CheckHistorySchema(h.Schema); err != nil {
		return err
	}

	for i, e := range h.Entries {
		if err := e.Fingerprint.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if e.Artifact == "" {
			return fmt.Errorf("entry %d: missing artifact", i)
		}
		if i > 0 && e.Parent != h.Entries[i-1].Fingerprint {
			return fmt.Errorf("entry %d: parent %s does not follow %s", i, e.Parent.Short(), h.Entries[i-1].Fingerprint.Short())
		}
		if got := fingerprint.Of(e.Parent, e.Instruction, e.Sources...); got != e.Fingerprint {
			return fmt.Errorf("entry %d: recorded %s, recomputed %s", i, e.Fingerprint.Short(), got.Short())
		}
	}
	return nil
}
