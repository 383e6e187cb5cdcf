package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/version"
)

// historyOf builds a valid history for texts on top of base.
func historyOf(stage string, base fingerprint.Fingerprint, artifactPrefix string, texts ...string) History {
	h := NewHistory()
	parent := base
	for i, text := range texts {
		fp := fingerprint.Of(parent, text)
		h.Entries = append(h.Entries, HistoryEntry{
			Parent:      parent,
			Instruction: text,
			Fingerprint: fp,
			Artifact:    fmt.Sprintf("%s-%d", artifactPrefix, i),
			Stage:       stage,
		})
		parent = fp
	}
	return h
}

type mapSource map[string]History

func (m mapSource) FetchHistory(_ context.Context, ref string) (History, error) {
	h, ok := m[ref]
	if !ok {
		return History{}, errors.New("no such image")
	}
	return h, nil
}

func TestRegisterFirstWriterWins(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	fp := fingerprint.Of(fingerprint.Seed("alpine"), "RUN true")

	if !ix.Register(LayerRecord{Fingerprint: fp, Artifact: "a", Stage: "s"}) {
		t.Fatal("first register should insert")
	}
	if ix.Register(LayerRecord{Fingerprint: fp, Artifact: "b", Stage: "s"}) {
		t.Fatal("second register should be ignored")
	}
	if ix.Register(LayerRecord{Fingerprint: fp, Artifact: "a", Stage: "s"}) {
		t.Fatal("identical register should be ignored")
	}

	rec, ok := ix.Lookup(fp)
	if !ok || rec.Artifact != "a" {
		t.Fatalf("Lookup = %+v, %v", rec, ok)
	}
	if ix.Conflicts() != 1 {
		t.Fatalf("Conflicts = %d, want 1", ix.Conflicts())
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
}

func TestRegisterConcurrent(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	fp := fingerprint.Of(fingerprint.Seed("alpine"), "RUN true")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range 32 {
		wg.Go(func() {
			if ix.Register(LayerRecord{Fingerprint: fp, Artifact: fmt.Sprint(i)}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			ix.Lookup(fp)
		})
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d writers won, want exactly 1", wins)
	}
}

func TestRegisterHistoryRejectsCorruption(t *testing.T) {
	t.Parallel()

	base := fingerprint.Seed("debian")
	tests := []struct {
		name   string
		mutate func(h *History)
	}{
		{"tampered instruction", func(h *History) { h.Entries[1].Instruction = "RUN evil" }},
		{"broken parent link", func(h *History) { h.Entries[2].Parent = base }},
		{"missing artifact", func(h *History) { h.Entries[0].Artifact = "" }},
		{"invalid fingerprint", func(h *History) { h.Entries[0].Fingerprint = "nope" }},
		{"future schema", func(h *History) { h.Schema = "2.0.0" }},
		{"missing schema", func(h *History) { h.Schema = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := historyOf("s", base, "img", "RUN a", "RUN b", "RUN c")
			tt.mutate(&h)

			ix := NewIndex()
			err := ix.RegisterHistory("registry/app:1", h)
			if !errors.Is(err, ErrRegistration) {
				t.Fatalf("RegisterHistory error = %v, want ErrRegistration", err)
			}
			var re *RegistrationError
			if !errors.As(err, &re) || re.Ref != "registry/app:1" {
				t.Fatalf("unexpected error %#v", err)
			}
			if ix.Len() != 0 {
				t.Fatalf("corrupt history merged %d records", ix.Len())
			}
		})
	}

	t.Run("schema error unwraps", func(t *testing.T) {
		h := historyOf("s", base, "img", "RUN a")
		h.Schema = "3.1.0"
		err := NewIndex().RegisterHistory("x", h)
		if !errors.Is(err, version.ErrIncompatibleSchema) {
			t.Fatalf("error = %v, want ErrIncompatibleSchema", err)
		}
	})
}

func TestRegisterHistoryWithSources(t *testing.T) {
	t.Parallel()

	src := fingerprint.Of(fingerprint.Seed("golang"), "RUN go build")
	parent := fingerprint.Seed("alpine")
	h := NewHistory()
	h.Entries = append(h.Entries, HistoryEntry{
		Parent:      parent,
		Instruction: "COPY --from=build /app /app",
		Sources:     []fingerprint.Fingerprint{src},
		Fingerprint: fingerprint.Of(parent, "COPY --from=build /app /app", src),
		Artifact:    "img",
		Stage:       "final",
	})

	ix := NewIndex()
	if err := ix.RegisterHistory("app", h); err != nil {
		t.Fatalf("RegisterHistory: %v", err)
	}

	h.Entries[0].Sources = nil
	if err := NewIndex().RegisterHistory("app", h); err == nil {
		t.Fatal("history with dropped sources must not verify")
	}
}

func TestRegisterSourcesOrderIndependent(t *testing.T) {
	t.Parallel()

	base := fingerprint.Seed("alpine")
	// Both sources claim the same first layer with different artifacts.
	sources := mapSource{
		"registry/a:1": historyOf("s", base, "from-a", "RUN one", "RUN two"),
		"registry/b:1": historyOf("s", base, "from-b", "RUN one", "RUN three"),
		"registry/c:1": historyOf("t", fingerprint.Seed("debian"), "from-c", "RUN x"),
	}

	orders := [][]string{
		{"registry/a:1", "registry/b:1", "registry/c:1"},
		{"registry/c:1", "registry/b:1", "registry/a:1"},
		{"registry/b:1", "registry/a:1", "registry/c:1", "registry/b:1"},
	}

	var want []LayerRecord
	for i, refs := range orders {
		ix := NewIndex()
		if errs := ix.RegisterSources(context.Background(), sources, refs); len(errs) != 0 {
			t.Fatalf("RegisterSources errors: %v", errs)
		}
		got := ix.Snapshot()
		if i == 0 {
			want = got
			continue
		}
		if !slices.Equal(got, want) {
			t.Fatalf("order %v produced a different index", refs)
		}
	}

	first := fingerprint.Of(base, "RUN one")
	for _, rec := range want {
		if rec.Fingerprint == first && rec.Artifact != "from-a-0" {
			t.Fatalf("shared layer resolved to %s, want the lowest reference's artifact", rec.Artifact)
		}
	}
	if len(want) != 4 {
		t.Fatalf("index has %d records, want 4", len(want))
	}
}

func TestRegisterSourcesSoftFailures(t *testing.T) {
	t.Parallel()

	good := historyOf("s", fingerprint.Seed("alpine"), "good", "RUN one")
	bad := historyOf("s", fingerprint.Seed("alpine"), "bad", "RUN two")
	bad.Entries[0].Instruction = "RUN tampered"

	ix := NewIndex()
	errs := ix.RegisterSources(context.Background(), mapSource{"good": good, "bad": bad}, []string{"bad", "missing", "good", ""})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrRegistration) {
			t.Fatalf("error %v is not a registration error", err)
		}
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
}
