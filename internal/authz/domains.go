// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import "sort"

// WildcardDomain in a policy or role tuple matches every domain.
const WildcardDomain = "*"

// DomainGraph answers which domains' grants apply to a request domain.
// A request in domain d is served by grants held in d, in every ancestor
// reachable through g2 (child, parent) links, and in the global domain.
// The graph is immutable once built; it is rebuilt on every policy load.
type DomainGraph struct {
	global    string
	ancestors map[string][]string
}

// NewDomainGraph precomputes the ancestor closure of every domain named in
// links. Each link is a (child, parent) pair. Cycles are tolerated.
func NewDomainGraph(global string, links [][2]string) *DomainGraph {
	parents := make(map[string][]string)
	for _, l := range links {
		child, parent := l[0], l[1]
		if child == "" || parent == "" || child == parent {
			continue
		}
		parents[child] = append(parents[child], parent)
	}

	g := &DomainGraph{
		global:    global,
		ancestors: make(map[string][]string, len(parents)),
	}
	for d := range parents {
		g.ancestors[d] = closure(d, parents, global)
	}
	return g
}

// closure walks parents breadth first from d. The result starts with d,
// ends with the global domain, and holds no duplicates.
func closure(d string, parents map[string][]string, global string) []string {
	seen := map[string]bool{d: true}
	out := []string{d}
	queue := []string{d}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range parents[cur] {
			if seen[p] {
				continue
			}
			seen[p] = true
			if p != global {
				out = append(out, p)
			}
			queue = append(queue, p)
		}
	}
	if d != global {
		out = append(out, global)
	}
	return out
}

// Global returns the global domain identifier.
func (g *DomainGraph) Global() string {
	return g.global
}

// Accessible returns dom followed by its ancestors. Grants held in any of
// these domains apply to requests asserted for dom.
func (g *DomainGraph) Accessible(dom string) []string {
	if a, ok := g.ancestors[dom]; ok {
		return a
	}
	if dom == g.global {
		return []string{dom}
	}
	return []string{dom, g.global}
}

// Covers reports whether a grant or rule scoped to grantDom applies to a
// request asserted for dom.
func (g *DomainGraph) Covers(grantDom, dom string) bool {
	if grantDom == WildcardDomain || grantDom == dom {
		return true
	}
	for _, a := range g.Accessible(dom) {
		if a == grantDom {
			return true
		}
	}
	return false
}

// Domains returns every domain that has explicit parents, sorted.
func (g *DomainGraph) Domains() []string {
	out := make([]string, 0, len(g.ancestors))
	for d := range g.ancestors {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
