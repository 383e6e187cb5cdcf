package build

import (
	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
	"github.com/0xa1bed0/stagecache/internal/graph"
	"github.com/0xa1bed0/stagecache/internal/resolver"
)

// plan is the outcome of resolving the whole closure up front. A fingerprint
// that some stage is going to build is claimed by the first stage in
// topological order that builds it; later stages reaching the same
// fingerprint wait for the claimer and reuse its layer.
type plan struct {
	order   []*graph.Node
	results map[*graph.Node]resolver.Result
	claims  map[fingerprint.Fingerprint]*graph.Node
	// waits lists the claimers a stage reuses layers from, besides its
	// graph dependencies.
	waits map[*graph.Node][]*graph.Node
}

// claimOverlay answers lookups from the index first, then from claims.
type claimOverlay struct {
	index  resolver.Lookuper
	claims map[fingerprint.Fingerprint]*graph.Node
}

func (o claimOverlay) Lookup(fp fingerprint.Fingerprint) (cache.LayerRecord, bool) {
	if rec, ok := o.index.Lookup(fp); ok {
		return rec, true
	}
	if n, ok := o.claims[fp]; ok {
		return cache.LayerRecord{Fingerprint: fp, Stage: n.Name}, true
	}
	return cache.LayerRecord{}, false
}

func newPlan(order []*graph.Node, index resolver.Lookuper) *plan {
	p := &plan{
		order:   order,
		results: make(map[*graph.Node]resolver.Result, len(order)),
		claims:  make(map[fingerprint.Fingerprint]*graph.Node),
		waits:   make(map[*graph.Node][]*graph.Node),
	}
	overlay := claimOverlay{index: index, claims: p.claims}

	for _, n := range order {
		res := resolver.Resolve(n, overlay)
		p.results[n] = res

		for _, d := range res.Decisions {
			if d.Verdict == resolver.Built {
				if _, taken := p.claims[d.Fingerprint]; !taken {
					p.claims[d.Fingerprint] = n
				}
				continue
			}
			if claimer, ok := p.claims[d.Fingerprint]; ok && claimer != n {
				p.addWait(n, claimer)
			}
		}
	}
	return p
}

func (p *plan) addWait(n, claimer *graph.Node) {
	for _, w := range p.waits[n] {
		if w == claimer {
			return
		}
	}
	p.waits[n] = append(p.waits[n], claimer)
}

// dependencies returns everything n has to wait for before it runs.
func (p *plan) dependencies(n *graph.Node) []*graph.Node {
	deps := append([]*graph.Node(nil), n.Dependencies()...)
	for _, w := range p.waits[n] {
		dup := false
		for _, d := range deps {
			if d == w {
				dup = true
				break
			}
		}
		if !dup {
			deps = append(deps, w)
		}
	}
	return deps
}
