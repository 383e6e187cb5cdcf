package build_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/build/mocks"
	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/0xa1bed0/stagecache/internal/graph"
	"github.com/0xa1bed0/stagecache/internal/resolver"
)

const sharedPrefix = `
version: 1
stages:
  - name: stage1
    from: debian:bookworm-slim
    instructions:
      - RUN touch /tmp/stage1.txt
  - name: stage2
    from: debian:bookworm-slim
    instructions:
      - RUN touch /tmp/stage1.txt
      - RUN touch /tmp/stage2.txt
  - name: final
    from: alpine:3.20
    instructions:
      - COPY --from=stage1 /tmp/stage1.txt /a
      - COPY --from=stage2 /tmp/stage2.txt /b
`

func mustGraph(t *testing.T, doc string) *graph.Graph {
	t.Helper()
	f, err := dockerfile.Parse([]byte(doc), "test.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, err := graph.Build(context.Background(), f, nil)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return g
}

// memImages is an in-memory image store.
type memImages struct {
	mu     sync.Mutex
	images map[string]build.Image
}

func newMemImages() *memImages {
	return &memImages{images: make(map[string]build.Image)}
}

func (m *memImages) Publish(_ context.Context, ref string, img build.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[ref] = img
	return nil
}

func (m *memImages) FetchHistory(_ context.Context, ref string) (cache.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[ref]
	if !ok {
		return cache.History{}, fmt.Errorf("image %s not found", ref)
	}
	return img.History, nil
}

type verdictMap map[string][]resolver.Verdict

func verdictsOf(r *build.Report) verdictMap {
	out := verdictMap{}
	for _, s := range r.Stages {
		for _, in := range s.Instructions {
			out[s.Name] = append(out[s.Name], in.Verdict)
		}
	}
	return out
}

func equalVerdicts(a, b verdictMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !slices.Equal(v, b[k]) {
			return false
		}
	}
	return true
}

func TestBuildColdSharesIdenticalPrefix(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	layers := mocks.NewMockLayerRecorder(ctrl)

	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, step build.Step) (string, error) {
		return "img-" + step.Fingerprint.Short(), nil
	}).Times(4)
	layers.EXPECT().RecordLayer(gomock.Any(), gomock.Any()).Return(nil).Times(4)
	// stage2 reuses the layer stage1 built.
	layers.EXPECT().Touch(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	g := mustGraph(t, sharedPrefix)
	report, err := build.New(exec, build.Options{Concurrency: 4, Layers: layers}).Build(context.Background(), g, "", build.Sources{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := verdictMap{
		"stage1": {resolver.Built},
		"stage2": {resolver.Cached, resolver.Built},
		"final":  {resolver.Built, resolver.Built},
	}
	if got := verdictsOf(report); !equalVerdicts(got, want) {
		t.Fatalf("verdicts = %v, want %v", got, want)
	}

	s2, _ := report.Stage("stage2")
	if s2.Instructions[0].ProducedBy != "stage1" {
		t.Fatalf("shared layer produced by %q, want stage1", s2.Instructions[0].ProducedBy)
	}
	if report.Target != "final" || report.Layers != 4 {
		t.Fatalf("report target=%s layers=%d", report.Target, report.Layers)
	}
	for _, s := range report.Stages {
		if s.Status != build.StatusDone {
			t.Fatalf("stage %s status %v", s.Name, s.Status)
		}
	}
}

func TestBuildDeterministicAcrossConcurrency(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, sharedPrefix)

	var want verdictMap
	var wantArtifacts []string
	for _, workers := range []int{1, 2, 3, 8} {
		for range 5 {
			report, err := build.New(build.NoopExecutor{}, build.Options{Concurrency: workers}).Build(context.Background(), g, "final", build.Sources{})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}

			var artifacts []string
			for _, s := range report.Stages {
				artifacts = append(artifacts, s.Artifact)
			}
			got := verdictsOf(report)
			if want == nil {
				want, wantArtifacts = got, artifacts
				continue
			}
			if !equalVerdicts(got, want) || !slices.Equal(artifacts, wantArtifacts) {
				t.Fatalf("workers=%d produced %v %v, want %v %v", workers, got, artifacts, want, wantArtifacts)
			}
		}
	}
}

func TestBuildIdempotentAcrossSessions(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, sharedPrefix)
	store := newMemImages()
	tags := map[string][]string{
		"stage1": {"cache/stage1"},
		"stage2": {"cache/stage2"},
		"final":  {"registry/app:1"},
	}

	first := build.New(build.NoopExecutor{}, build.Options{Tags: tags, Publisher: store})
	report, err := first.Build(context.Background(), g, "final", build.Sources{})
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	final, _ := report.Stage("final")
	if !slices.Equal(final.Published, []string{"registry/app:1"}) {
		t.Fatalf("published = %v", final.Published)
	}
	wantArtifact := final.Artifact

	// The second session only gets the published images; nothing may run.
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)

	report, err = build.New(exec, build.Options{}).Build(context.Background(), g, "final", build.Sources{
		From: store,
		Refs: []string{"registry/app:1", "cache/stage2", "cache/stage1"},
	})
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if cached, built := report.Counts(); cached != 5 || built != 0 {
		t.Fatalf("second session: %d cached, %d built", cached, built)
	}
	final, _ = report.Stage("final")
	if final.Artifact != wantArtifact {
		t.Fatalf("final artifact = %q, want %q", final.Artifact, wantArtifact)
	}
}

func TestBuildAncestryHistoryMakesBaseStagesReusable(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, `
version: 1
stages:
  - name: deps
    from: golang:1.25
    instructions:
      - RUN go mod download
  - name: app
    from: deps
    instructions:
      - RUN go build ./...
`)
	store := newMemImages()
	_, err := build.New(build.NoopExecutor{}, build.Options{
		Tags:      map[string][]string{"APP": {"app:latest"}},
		Publisher: store,
	}).Build(context.Background(), g, "app", build.Sources{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	h := store.images["app:latest"].History
	if len(h.Entries) != 2 || h.Entries[0].Stage != "deps" || h.Entries[1].Stage != "app" {
		t.Fatalf("history = %+v", h.Entries)
	}
	if err := h.Verify(); err != nil {
		t.Fatalf("published history does not verify: %v", err)
	}

	report, err := build.New(build.NoopExecutor{}, build.Options{}).Plan(context.Background(), g, "deps", build.Sources{From: store, Refs: []string{"app:latest"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	deps, _ := report.Stage("deps")
	if deps.Cached() != 1 || deps.Status != build.StatusPlanned {
		t.Fatalf("deps not reusable from app history: %+v", deps)
	}
	if len(report.Known) != 2 || report.Layers != 2 {
		t.Fatalf("known layers = %d (Layers %d), want both history entries", len(report.Known), report.Layers)
	}
	if !slices.IsSortedFunc(report.Known, func(a, b cache.LayerRecord) int {
		return strings.Compare(a.Fingerprint.String(), b.Fingerprint.String())
	}) {
		t.Fatal("known layers not sorted by fingerprint")
	}
}

func TestBuildPassesArtifactsToExecutor(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)

	var mu sync.Mutex
	steps := map[string]build.Step{}
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, step build.Step) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		steps[fmt.Sprintf("%s/%d", step.Stage, step.Index)] = step
		return fmt.Sprintf("%s-%d", step.Stage, step.Index), nil
	}).Times(4)

	g := mustGraph(t, sharedPrefix)
	if _, err := build.New(exec, build.Options{Concurrency: 2}).Build(context.Background(), g, "", build.Sources{}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := steps["stage1/0"].BaseArtifact; got != "debian:bookworm-slim" {
		t.Fatalf("stage1 base artifact = %q", got)
	}
	if got := steps["stage2/1"].BaseArtifact; got != "stage1-0" {
		t.Fatalf("stage2 second step runs on %q, want the shared layer", got)
	}
	f0 := steps["final/0"]
	if f0.BaseArtifact != "alpine:3.20" || !slices.Equal(f0.Sources, []build.Source{{Ref: "stage1", Artifact: "stage1-0"}}) {
		t.Fatalf("final step 0 = %+v", f0)
	}
	f1 := steps["final/1"]
	if f1.BaseArtifact != "final-0" || !slices.Equal(f1.Sources, []build.Source{{Ref: "stage2", Artifact: "stage2-1"}}) {
		t.Fatalf("final step 1 = %+v", f1)
	}
}

func TestBuildFailureIsolation(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, `
version: 1
stages:
  - name: a
    from: alpine
    instructions:
      - RUN one
      - RUN fail
  - name: b
    from: a
    instructions:
      - RUN after
  - name: c
    from: alpine
    instructions:
      - RUN other
  - name: all
    from: alpine
    instructions:
      - COPY --from=b /x /x
      - COPY --from=c /y /y
`)

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	boom := errors.New("exit status 1")
	exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, step build.Step) (string, error) {
		if step.Instruction.Text == "RUN fail" {
			return "", boom
		}
		return "art-" + step.Fingerprint.Short(), nil
	}).Times(3)

	report, err := build.New(exec, build.Options{Concurrency: 4}).Build(context.Background(), g, "all", build.Sources{})
	if !errors.Is(err, build.ErrExecution) || !errors.Is(err, boom) {
		t.Fatalf("Build error = %v", err)
	}
	var execErr *build.ExecutionError
	if !errors.As(err, &execErr) || execErr.Stage != "a" || execErr.Index != 1 || execErr.Instruction != "RUN fail" {
		t.Fatalf("execution error = %#v", execErr)
	}

	want := map[string]build.StageStatus{
		"a":   build.StatusFailed,
		"b":   build.StatusSkipped,
		"c":   build.StatusDone,
		"all": build.StatusSkipped,
	}
	for name, status := range want {
		s, ok := report.Stage(name)
		if !ok || s.Status != status {
			t.Fatalf("stage %s status = %v, want %v", name, s.Status, status)
		}
	}
	if report.Layers != 2 {
		t.Fatalf("index holds %d layers, want 2 (no layer for the failed instruction)", report.Layers)
	}
}

func TestBuildCancellation(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, `
version: 1
stages:
  - name: a
    from: alpine
    instructions:
      - RUN one
      - RUN two
      - RUN three
  - name: b
    from: a
    instructions:
      - RUN four
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	gomock.InOrder(
		exec.EXPECT().Execute(gomock.Any(), gomock.Any()).Return("one", nil),
		exec.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ build.Step) (string, error) {
			cancel()
			return "", ctx.Err()
		}),
	)

	report, err := build.New(exec, build.Options{Concurrency: 1}).Build(ctx, g, "b", build.Sources{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build error = %v, want context.Canceled", err)
	}
	if errors.Is(err, build.ErrExecution) {
		t.Fatalf("cancellation reported as execution failure: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		s, _ := report.Stage(name)
		if s.Status != build.StatusCancelled {
			t.Fatalf("stage %s status = %v, want cancelled", name, s.Status)
		}
	}
	if report.Layers != 1 {
		t.Fatalf("index holds %d layers, want 1", report.Layers)
	}
}

func TestBuildSourceOrderIndependence(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, sharedPrefix)
	store := newMemImages()
	for i, stage := range []string{"stage1", "stage2"} {
		_, err := build.New(build.NoopExecutor{}, build.Options{
			Tags:      map[string][]string{stage: {fmt.Sprintf("cache/%d", i)}},
			Publisher: store,
		}).Build(context.Background(), g, stage, build.Sources{})
		if err != nil {
			t.Fatalf("seeding %s: %v", stage, err)
		}
	}

	refsA := []string{"cache/0", "cache/1", "cache/missing"}
	refsB := []string{"cache/missing", "cache/1", "cache/0"}

	ra, err := build.New(build.NoopExecutor{}, build.Options{}).Plan(context.Background(), g, "final", build.Sources{From: store, Refs: refsA})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	rb, err := build.New(build.NoopExecutor{}, build.Options{}).Plan(context.Background(), g, "final", build.Sources{From: store, Refs: refsB})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if !equalVerdicts(verdictsOf(ra), verdictsOf(rb)) {
		t.Fatalf("source order changed verdicts: %v vs %v", verdictsOf(ra), verdictsOf(rb))
	}
	if len(ra.SourceErrors) != 1 || !errors.Is(ra.SourceErrors[0], cache.ErrRegistration) {
		t.Fatalf("source errors = %v", ra.SourceErrors)
	}
	want := verdictMap{
		"stage1": {resolver.Cached},
		"stage2": {resolver.Cached, resolver.Cached},
		"final":  {resolver.Built, resolver.Built},
	}
	if got := verdictsOf(ra); !equalVerdicts(got, want) {
		t.Fatalf("verdicts = %v, want %v", got, want)
	}
}

func TestPlanDoesNotExecute(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	source := mocks.NewMockHistorySource(ctrl)
	source.EXPECT().FetchHistory(gomock.Any(), "unreachable:1").Return(cache.History{}, errors.New("connection refused"))

	g := mustGraph(t, sharedPrefix)
	report, err := build.New(exec, build.Options{}).Plan(context.Background(), g, "stage2", build.Sources{From: source, Refs: []string{"unreachable:1"}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(report.Stages) != 1 || report.Stages[0].Name != "stage2" {
		t.Fatalf("plan covers %d stages", len(report.Stages))
	}
	if cached, built := report.Counts(); cached != 0 || built != 2 {
		t.Fatalf("counts = %d cached, %d built", cached, built)
	}
	if len(report.SourceErrors) != 1 {
		t.Fatalf("source errors = %v", report.SourceErrors)
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	t.Parallel()

	g := mustGraph(t, sharedPrefix)
	tests := []struct {
		name   string
		opts   build.Options
		target string
	}{
		{"unknown target", build.Options{}, "nope"},
		{"unknown tagged stage", build.Options{Tags: map[string][]string{"nope": {"x"}}, Publisher: newMemImages()}, "final"},
		{"tagged stage outside closure", build.Options{Tags: map[string][]string{"final": {"x"}}, Publisher: newMemImages()}, "stage1"},
		{"tags without publisher", build.Options{Tags: map[string][]string{"final": {"x"}}}, "final"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := build.New(build.NoopExecutor{}, tt.opts).Build(context.Background(), g, tt.target, build.Sources{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildPublishFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), "registry/app:1", gomock.Any()).Return(errors.New("denied"))

	g := mustGraph(t, sharedPrefix)
	report, err := build.New(build.NoopExecutor{}, build.Options{
		Tags:      map[string][]string{"final": {"registry/app:1"}},
		Publisher: pub,
	}).Build(context.Background(), g, "final", build.Sources{})

	var pubErr *build.PublishError
	if !errors.As(err, &pubErr) || pubErr.Ref != "registry/app:1" || !errors.Is(err, build.ErrPublish) {
		t.Fatalf("Build error = %v", err)
	}
	final, _ := report.Stage("final")
	if final.Status != build.StatusDone || len(final.Published) != 0 {
		t.Fatalf("final = %+v", final)
	}
}
