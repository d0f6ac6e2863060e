package store

import (
	"context"

	"github.com/matzehuels/crateindex/pkg/catalog"
)

// Edge is a re-export edge between two stored packages.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the re-export graph reachable from Root.
type Graph struct {
	Root  string   `json:"root"`
	Keys  []string `json:"packages"`
	Edges []Edge   `json:"edges"`
}

// ReexportClosure returns key followed by every stored package reachable
// from it over stored re-export edges, in breadth-first order. Re-exported
// names with no stored version are skipped; a name stored in several
// versions follows the highest key. limits bounds the walk the same way it
// bounds a crawl.
func (s *Store) ReexportClosure(ctx context.Context, key string, limits catalog.Limits) ([]string, error) {
	g, err := s.ReexportGraph(ctx, key, limits)
	if err != nil {
		return nil, err
	}
	return g.Keys, nil
}

// ReexportGraph walks the same packages as [Store.ReexportClosure] and
// also reports the edges between them.
func (s *Store) ReexportGraph(ctx context.Context, key string, limits catalog.Limits) (*Graph, error) {
	if _, err := s.Path(ctx, key); err != nil {
		return nil, err
	}

	type node struct {
		key   string
		depth int
	}
	seen := map[string]bool{key: true}
	queue := []node{{key, 0}}
	g := &Graph{Root: key, Edges: []Edge{}}
	var edges []Edge

	for len(queue) > 0 && !limits.Full(len(g.Keys)) {
		n := queue[0]
		queue = queue[1:]
		g.Keys = append(g.Keys, n.key)

		if !limits.DepthAllowed(n.depth + 1) {
			continue
		}
		names, err := s.Reexports(ctx, n.key)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			keys, err := s.Candidates(ctx, name)
			if err != nil {
				return nil, err
			}
			if len(keys) == 0 {
				continue
			}
			next := keys[len(keys)-1]
			edges = append(edges, Edge{From: n.key, To: next})
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, node{next, n.depth + 1})
		}
	}

	// edges into packages the limits cut off are dropped
	visited := make(map[string]bool, len(g.Keys))
	for _, k := range g.Keys {
		visited[k] = true
	}
	for _, e := range edges {
		if visited[e.From] && visited[e.To] {
			g.Edges = append(g.Edges, e)
		}
	}
	return g, nil
}

// ReexportNames returns the union of re-exported names stored for keys,
// sorted and unique.
func (s *Store) ReexportNames(ctx context.Context, keys []string) ([]string, error) {
	var names []string
	for _, k := range keys {
		r, err := s.Reexports(ctx, k)
		if err != nil {
			return nil, err
		}
		names = append(names, r...)
	}
	return sortedUnique(names), nil
}
