// Package graph turns a parsed build description into a DAG of stages and
// assigns every instruction its fingerprint.
//
// Edges run from a stage to every stage it uses as a base or as a --from
// source. Stages are fingerprinted in topological order, so a stage's base
// identity is always its base stage's final fingerprint.
package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xa1bed0/stagecache/internal/dockerfile"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
)

type RefKind int

const (
	RefImage RefKind = iota
	RefStage
)

// Ref is a resolved base or --from reference.
type Ref struct {
	Kind  RefKind
	Name  string // stage ID or image reference
	Stage *Node  // set for RefStage
}

func (r Ref) String() string {
	if r.Kind == RefStage {
		return "stage:" + r.Name
	}
	return r.Name
}

// Step is one instruction of a stage with its resolved identity.
type Step struct {
	Index       int
	Instruction dockerfile.Instruction
	Sources     []Ref

	// Parent is the fingerprint this step extends: the base identity for the
	// first step, the previous step's fingerprint otherwise.
	Parent             fingerprint.Fingerprint
	SourceFingerprints []fingerprint.Fingerprint
	Fingerprint        fingerprint.Fingerprint
}

// Node is a stage in the graph.
type Node struct {
	Index int
	Name  string
	Stage dockerfile.Stage

	Base         Ref
	BaseIdentity fingerprint.Fingerprint
	Steps        []Step

	// Final is the last step's fingerprint, or BaseIdentity for a stage
	// without instructions.
	Final fingerprint.Fingerprint

	deps []*Node
}

// Dependencies returns the distinct stages this node uses as base or
// --from source, in first-use order.
func (n *Node) Dependencies() []*Node {
	return n.deps
}

// Fingerprints returns the step fingerprints in order.
func (n *Node) Fingerprints() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, len(n.Steps))
	for i, s := range n.Steps {
		out[i] = s.Fingerprint
	}
	return out
}

// SeedResolver supplies the identity of an external base image.
type SeedResolver interface {
	Seed(ctx context.Context, imageRef string) (fingerprint.Fingerprint, error)
}

// SeedFunc adapts a function to SeedResolver.
type SeedFunc func(ctx context.Context, imageRef string) (fingerprint.Fingerprint, error)

func (f SeedFunc) Seed(ctx context.Context, imageRef string) (fingerprint.Fingerprint, error) {
	return f(ctx, imageRef)
}

// ReferenceSeeds identifies external images by their reference text only.
var ReferenceSeeds SeedResolver = SeedFunc(func(_ context.Context, ref string) (fingerprint.Fingerprint, error) {
	return fingerprint.Seed(ref), nil
})

// Graph is an immutable, acyclic stage graph.
type Graph struct {
	nodes  []*Node // declaration order
	order  []*Node // topological order
	byName map[string]*Node
}

// Build resolves references, rejects cycles and fingerprints every stage.
// A nil seeds uses ReferenceSeeds.
func Build(ctx context.Context, f *dockerfile.File, seeds SeedResolver) (*Graph, error) {
	if seeds == nil {
		seeds = ReferenceSeeds
	}

	g := &Graph{byName: make(map[string]*Node, len(f.Stages))}
	for i, s := range f.Stages {
		n := &Node{Index: i, Name: s.ID(i), Stage: s}
		g.nodes = append(g.nodes, n)
		g.byName[strings.ToLower(n.Name)] = n
	}

	if err := g.resolveRefs(); err != nil {
		return nil, err
	}
	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	g.order = g.topoSort()

	if err := g.fingerprint(ctx, seeds); err != nil {
		return nil, err
	}
	return g, nil
}

// Stage returns the node for a stage name or declaration index.
func (g *Graph) Stage(ref string) (*Node, bool) {
	return g.lookup(ref)
}

// Stages returns every stage in topological order.
func (g *Graph) Stages() []*Node {
	return g.order
}

// Last returns the last declared stage, the default build target.
func (g *Graph) Last() *Node {
	return g.nodes[len(g.nodes)-1]
}

// Closure returns target and every stage it transitively depends on, in
// topological order.
func (g *Graph) Closure(target string) ([]*Node, error) {
	root, ok := g.lookup(target)
	if !ok {
		return nil, &UnknownStageError{Ref: target}
	}

	needed := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if needed[n] {
			return
		}
		needed[n] = true
		for _, d := range n.deps {
			visit(d)
		}
	}
	visit(root)

	out := make([]*Node, 0, len(needed))
	for _, n := range g.order {
		if needed[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Ancestry returns the base chain of a stage, from the stage whose base is
// an external image down to the stage itself.
func (g *Graph) Ancestry(n *Node) []*Node {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Base.Stage {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// lookup matches a stage name case-insensitively, or a declaration index.
func (g *Graph) lookup(ref string) (*Node, bool) {
	if n, ok := g.byName[strings.ToLower(ref)]; ok {
		return n, true
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < len(g.nodes) {
		return g.nodes[i], true
	}
	return nil, false
}

func (g *Graph) resolveRefs() error {
	for _, n := range g.nodes {
		base, err := g.resolveBase(n)
		if err != nil {
			return err
		}
		n.Base = base

		seen := make(map[*Node]bool)
		addDep := func(d *Node) {
			if !seen[d] {
				seen[d] = true
				n.deps = append(n.deps, d)
			}
		}
		if base.Kind == RefStage {
			addDep(base.Stage)
		}

		for i, in := range n.Stage.Instructions {
			step := Step{Index: i, Instruction: in}
			for _, from := range in.From {
				src, err := g.resolveFrom(n, from)
				if err != nil {
					return err
				}
				if src.Kind == RefStage {
					addDep(src.Stage)
				}
				step.Sources = append(step.Sources, src)
			}
			n.Steps = append(n.Steps, step)
		}
	}
	return nil
}

// A base that names no stage is an external image. Numeric bases are stage
// indexes and must be in range.
func (g *Graph) resolveBase(n *Node) (Ref, error) {
	base := n.Stage.Base
	if s, ok := g.lookup(base); ok {
		return Ref{Kind: RefStage, Name: s.Name, Stage: s}, nil
	}
	if _, err := strconv.Atoi(base); err == nil {
		return Ref{}, &UnknownStageError{Stage: n.Name, Ref: base}
	}
	return Ref{Kind: RefImage, Name: base}, nil
}

// A --from value must name a stage unless it looks like an image reference.
func (g *Graph) resolveFrom(n *Node, from string) (Ref, error) {
	if s, ok := g.lookup(from); ok {
		return Ref{Kind: RefStage, Name: s.Name, Stage: s}, nil
	}
	if looksLikeImage(from) {
		return Ref{Kind: RefImage, Name: from}, nil
	}
	return Ref{}, &UnknownStageError{Stage: n.Name, Ref: from}
}

func looksLikeImage(ref string) bool {
	return strings.ContainsAny(ref, ":/@")
}

func (g *Graph) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*Node]int, len(g.nodes))
	var stack []*Node

	var visit func(n *Node) error
	visit = func(n *Node) error {
		color[n] = grey
		stack = append(stack, n)
		for _, d := range n.deps {
			switch color[d] {
			case grey:
				return &CycleError{Path: cyclePath(stack, d)}
			case white:
				if err := visit(d); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range g.nodes {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func cyclePath(stack []*Node, start *Node) []string {
	var path []string
	for i, n := range stack {
		if n == start {
			for _, m := range stack[i:] {
				path = append(path, m.Name)
			}
			break
		}
	}
	return append(path, start.Name)
}

// topoSort orders dependencies first. Among ready stages the lowest
// declaration index goes first, which keeps the order deterministic.
func (g *Graph) topoSort() []*Node {
	placed := make(map[*Node]bool, len(g.nodes))
	order := make([]*Node, 0, len(g.nodes))

	for len(order) < len(g.nodes) {
		for _, n := range g.nodes {
			if placed[n] || !allPlaced(n.deps, placed) {
				continue
			}
			placed[n] = true
			order = append(order, n)
			break
		}
	}
	return order
}

func allPlaced(deps []*Node, placed map[*Node]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

func (g *Graph) fingerprint(ctx context.Context, seeds SeedResolver) error {
	seedCache := make(map[string]fingerprint.Fingerprint)
	identity := func(r Ref) (fingerprint.Fingerprint, error) {
		if r.Kind == RefStage {
			return r.Stage.Final, nil
		}
		if fp, ok := seedCache[r.Name]; ok {
			return fp, nil
		}
		fp, err := seeds.Seed(ctx, r.Name)
		if err != nil {
			return fingerprint.Empty, fmt.Errorf("resolving base image %q: %w", r.Name, err)
		}
		seedCache[r.Name] = fp
		return fp, nil
	}

	for _, n := range g.order {
		base, err := identity(n.Base)
		if err != nil {
			return err
		}
		n.BaseIdentity = base

		parent := base
		for i := range n.Steps {
			step := &n.Steps[i]
			step.Parent = parent
			step.SourceFingerprints = make([]fingerprint.Fingerprint, len(step.Sources))
			for j, src := range step.Sources {
				fp, err := identity(src)
				if err != nil {
					return err
				}
				step.SourceFingerprints[j] = fp
			}
			step.Fingerprint = fingerprint.Of(parent, step.Instruction.Text, step.SourceFingerprints...)
			parent = step.Fingerprint
		}
		n.Final = parent
	}
	return nil
}
