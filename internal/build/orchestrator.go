// Package build runs a target stage and everything it depends on, reusing
// cached layers where the prefix rule allows and executing the rest.
//
// Stages run in parallel on a bounded worker pool; instructions within a
// stage run in order. Before anything executes, the whole closure is
// resolved once so that two stages needing the same new layer agree on which
// of them builds it. That makes every verdict independent of the number of
// workers and of scheduling order.
package build

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/graph"
	"github.com/0xa1bed0/stagecache/internal/logs"
	"github.com/0xa1bed0/stagecache/internal/resolver"
)

// Sources names the cache-from images of a build and where to read their
// history from.
type Sources struct {
	From cache.HistorySource
	Refs []string
}

type Options struct {
	// Concurrency bounds the stages executing at once. Defaults to the
	// number of CPUs.
	Concurrency int

	// Tags maps a stage name to the references it is published under.
	Tags      map[string][]string
	Publisher Publisher

	// Layers, when set, is told about every layer built or reused.
	Layers LayerRecorder
}

type Orchestrator struct {
	exec Executor
	opts Options
}

func New(exec Executor, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Orchestrator{exec: exec, opts: opts}
}

type session struct {
	o      *Orchestrator
	g      *graph.Graph
	index  *cache.Index
	plan   *plan
	tags   map[*graph.Node][]string
	stages map[*graph.Node]*stageRun
	report *Report
}

type stageRun struct {
	done      chan struct{}
	report    *StageReport
	artifacts []string
	artifact  string
	ok        bool
	err       error
}

// Plan resolves target against sources without executing anything.
func (o *Orchestrator) Plan(ctx context.Context, g *graph.Graph, target string, sources Sources) (*Report, error) {
	start := time.Now()
	s, err := o.prepare(ctx, g, target, sources)
	if err != nil {
		return nil, err
	}

	for _, n := range s.plan.order {
		rep := s.stages[n].report
		res := s.plan.results[n]
		rep.Status = StatusPlanned
		rep.Instructions = instructionReports(n, res)
		for i, d := range res.Decisions {
			if d.Verdict == resolver.Cached {
				rep.Instructions[i].Artifact = d.Record.Artifact
				rep.Instructions[i].ProducedBy = d.Record.Stage
			}
		}
	}

	s.report.Known = s.index.Snapshot()
	s.report.Layers = len(s.report.Known)
	s.report.Conflicts = s.index.Conflicts()
	s.report.Duration = time.Since(start)
	return s.report, nil
}

// Build runs target and its dependencies. The report covers every stage of
// the closure, including the ones that failed or were skipped; the error
// joins every execution and publish failure.
func (o *Orchestrator) Build(ctx context.Context, g *graph.Graph, target string, sources Sources) (*Report, error) {
	start := time.Now()
	s, err := o.prepare(ctx, g, target, sources)
	if err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var wg sync.WaitGroup
	for _, n := range s.plan.order {
		wg.Go(func() {
			s.runStage(ctx, sem, n)
		})
	}
	wg.Wait()

	var errs []error
	for _, n := range s.plan.order {
		if run := s.stages[n]; run.err != nil {
			errs = append(errs, run.err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	s.report.Layers = s.index.Len()
	s.report.Conflicts = s.index.Conflicts()
	s.report.Duration = time.Since(start)
	return s.report, errors.Join(errs...)
}

func (o *Orchestrator) prepare(ctx context.Context, g *graph.Graph, target string, sources Sources) (*session, error) {
	if target == "" {
		target = g.Last().Name
	}
	closure, err := g.Closure(target)
	if err != nil {
		return nil, err
	}

	inClosure := make(map[*graph.Node]bool, len(closure))
	for _, n := range closure {
		inClosure[n] = true
	}
	tags := make(map[*graph.Node][]string)
	for stage, refs := range o.opts.Tags {
		n, ok := g.Stage(stage)
		if !ok {
			return nil, &graph.UnknownStageError{Ref: stage}
		}
		if !inClosure[n] {
			return nil, fmt.Errorf("tagged stage %q is not built for target %q", n.Name, target)
		}
		tags[n] = append(tags[n], refs...)
	}
	if len(tags) > 0 && o.opts.Publisher == nil {
		return nil, errors.New("tags given but no publisher configured")
	}

	index := cache.NewIndex()
	report := &Report{Target: target}
	if sources.From != nil && len(sources.Refs) > 0 {
		report.SourceErrors = index.RegisterSources(ctx, sources.From, sources.Refs)
	}
	logs.Debugf("cache index holds %d layers from %d sources", index.Len(), len(sources.Refs))

	s := &session{
		o:      o,
		g:      g,
		index:  index,
		plan:   newPlan(closure, index),
		tags:   tags,
		stages: make(map[*graph.Node]*stageRun, len(closure)),
		report: report,
	}
	for _, n := range closure {
		rep := &StageReport{
			Name:  n.Name,
			Index: n.Index,
			Base:  n.Base.String(),
			Final: n.Final,
		}
		report.Stages = append(report.Stages, rep)
		s.stages[n] = &stageRun{done: make(chan struct{}), report: rep}
	}
	return s, nil
}

func instructionReports(n *graph.Node, res resolver.Result) []InstructionReport {
	out := make([]InstructionReport, len(n.Steps))
	for i, step := range n.Steps {
		out[i] = InstructionReport{
			Index:       i,
			Text:        step.Instruction.Text,
			Fingerprint: step.Fingerprint,
			Verdict:     res.Decisions[i].Verdict,
		}
	}
	return out
}

func (s *session) runStage(ctx context.Context, sem *semaphore.Weighted, n *graph.Node) {
	run := s.stages[n]
	rep := run.report
	defer close(run.done)

	for _, d := range s.plan.dependencies(n) {
		dep := s.stages[d]
		select {
		case <-dep.done:
		case <-ctx.Done():
			rep.Status, rep.Err = StatusCancelled, ctx.Err()
			return
		}
		if !dep.ok {
			if err := ctx.Err(); err != nil {
				rep.Status, rep.Err = StatusCancelled, err
				return
			}
			rep.Status = StatusSkipped
			rep.Err = fmt.Errorf("dependency %q did not complete", d.Name)
			logs.Stage(n.Name).Warnf("skipped: %v", rep.Err)
			return
		}
	}

	if err := ctx.Err(); err != nil {
		rep.Status, rep.Err = StatusCancelled, err
		return
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		rep.Status, rep.Err = StatusCancelled, err
		return
	}
	defer sem.Release(1)

	start := time.Now()
	ok := s.execute(ctx, n, run)
	rep.Duration = time.Since(start)
	if !ok {
		return
	}

	rep.Status = StatusDone
	run.ok = true
	logs.Stage(n.Name).Infof("done: %d/%d cached", rep.Cached(), len(rep.Instructions))

	s.publish(ctx, n, run)
}

// execute walks the stage's instructions and reports whether all of them
// produced an artifact.
func (s *session) execute(ctx context.Context, n *graph.Node, run *stageRun) bool {
	rep := run.report
	log := logs.Stage(n.Name)
	res := resolver.Resolve(n, s.index)
	rep.Instructions = instructionReports(n, res)
	if res.AllCached() {
		log.Debugf("every instruction cached")
	} else {
		log.Debugf("building from #%d", res.FirstBuilt())
	}
	run.artifacts = make([]string, len(n.Steps))

	artifact := s.baseArtifact(n)
	for i, step := range n.Steps {
		ir := &rep.Instructions[i]
		d := res.Decisions[i]

		if d.Verdict == resolver.Cached {
			artifact = d.Record.Artifact
			ir.Artifact, ir.ProducedBy = artifact, d.Record.Stage
			run.artifacts[i] = artifact
			log.Debugf("#%d CACHED %s", i, step.Fingerprint.Short())
			if s.o.opts.Layers != nil {
				if err := s.o.opts.Layers.Touch(ctx, step.Fingerprint); err != nil {
					log.Warnf("touching layer %s: %v", step.Fingerprint.Short(), err)
				}
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			rep.Status, rep.Err = StatusCancelled, err
			return false
		}

		log.Debugf("#%d BUILD %s", i, step.Instruction.Text)
		out, err := s.o.exec.Execute(ctx, Step{
			Stage:        n.Name,
			Index:        i,
			Instruction:  step.Instruction,
			Fingerprint:  step.Fingerprint,
			BaseArtifact: artifact,
			Sources:      s.sources(step),
		})
		if err == nil && out == "" {
			err = errors.New("executor returned no artifact")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				rep.Status, rep.Err = StatusCancelled, ctxErr
				return false
			}
			execErr := &ExecutionError{Stage: n.Name, Index: i, Instruction: step.Instruction.Text, Err: err}
			ir.Err = execErr
			rep.Status, rep.Err = StatusFailed, execErr
			run.err = execErr
			logs.Errorf("%v", execErr)
			return false
		}

		rec := cache.LayerRecord{Fingerprint: step.Fingerprint, Artifact: out, Stage: n.Name}
		s.index.Register(rec)
		if s.o.opts.Layers != nil {
			if err := s.o.opts.Layers.RecordLayer(ctx, rec); err != nil {
				log.Warnf("recording layer %s: %v", step.Fingerprint.Short(), err)
			}
		}

		artifact = out
		ir.Artifact = out
		run.artifacts[i] = out
	}

	run.artifact = artifact
	rep.Artifact = artifact
	return true
}

func (s *session) publish(ctx context.Context, n *graph.Node, run *stageRun) {
	refs := s.tags[n]
	if len(refs) == 0 {
		return
	}

	img := Image{Stage: n.Name, Artifact: run.artifact, History: s.history(n)}
	var errs []error
	for _, ref := range refs {
		if err := s.o.opts.Publisher.Publish(ctx, ref, img); err != nil {
			errs = append(errs, &PublishError{Stage: n.Name, Ref: ref, Err: err})
			continue
		}
		run.report.Published = append(run.report.Published, ref)
		logs.Stage(n.Name).Infof("published %s", ref)
	}
	if len(errs) > 0 {
		run.err = errors.Join(errs...)
		run.report.Err = run.err
	}
}

// history lists the layers of every stage in n's base chain followed by n's
// own. Ancestors are dependencies of n, so their artifacts are final.
func (s *session) history(n *graph.Node) cache.History {
	h := cache.NewHistory()
	for _, a := range s.g.Ancestry(n) {
		artifacts := s.stages[a].artifacts
		for i, step := range a.Steps {
			var srcs []fingerprint.Fingerprint
			if len(step.SourceFingerprints) > 0 {
				srcs = step.SourceFingerprints
			}
			h.Entries = append(h.Entries, cache.HistoryEntry{
				Parent:      step.Parent,
				Instruction: step.Instruction.Text,
				Sources:     srcs,
				Fingerprint: step.Fingerprint,
				Artifact:    artifacts[i],
				Stage:       a.Name,
			})
		}
	}
	return h
}

func (s *session) baseArtifact(n *graph.Node) string {
	if n.Base.Kind == graph.RefStage {
		return s.stages[n.Base.Stage].artifact
	}
	return n.Base.Name
}

func (s *session) sources(step graph.Step) []Source {
	if len(step.Sources) == 0 {
		return nil
	}
	out := make([]Source, len(step.Sources))
	for i, ref := range step.Sources {
		src := Source{Ref: step.Instruction.From[i], Artifact: ref.Name}
		if ref.Kind == graph.RefStage {
			src.Artifact = s.stages[ref.Stage].artifact
		}
		out[i] = src
	}
	return out
}
