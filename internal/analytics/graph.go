// CLAUDE:SUMMARY Entity Graph — co-mention graph over document entities with node/edge caps.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// GraphNode is an entity ranked by document mention frequency. ID is the
// lowercased entity name; Label keeps the first-seen casing.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// GraphEdge links two entities mentioned in the same document. Weight is the
// number of co-mentioning documents.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// EntityGraph is the co-mention graph payload.
type EntityGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Graph builds the entity co-mention graph over documents published in the
// last daysBack days. Nodes are the maxNodes most frequent entities; edges
// only connect selected nodes and are truncated to the maxEdges heaviest.
func (a *Analytics) Graph(ctx context.Context, daysBack, maxNodes, maxEdges int) (*EntityGraph, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	if maxNodes <= 0 {
		maxNodes = 50
	}
	if maxEdges <= 0 {
		maxEdges = 200
	}
	fromTs := time.Now().UTC().AddDate(0, 0, -daysBack).UnixMilli()
	docs, err := a.store.DocumentsSince(ctx, fromTs)
	if err != nil {
		return nil, fmt.Errorf("load documents for graph: %w", err)
	}

	counts := make(map[string]int)
	labels := make(map[string]string)
	pairWeights := make(map[[2]string]int)
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc.Entities))
		for _, ent := range doc.Entities {
			id := strings.ToLower(strings.TrimSpace(ent.Name))
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			counts[id]++
			if _, ok := labels[id]; !ok {
				labels[id] = strings.TrimSpace(ent.Name)
			}
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pairWeights[[2]string{ids[i], ids[j]}]++
			}
		}
	}

	nodes := make([]GraphNode, 0, len(counts))
	for id, n := range counts {
		nodes = append(nodes, GraphNode{ID: id, Label: labels[id], Count: n})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Count != nodes[j].Count {
			return nodes[i].Count > nodes[j].Count
		}
		return nodes[i].ID < nodes[j].ID
	})
	if len(nodes) > maxNodes {
		nodes = nodes[:maxNodes]
	}
	selected := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		selected[n.ID] = true
	}

	edges := make([]GraphEdge, 0, len(pairWeights))
	for pair, w := range pairWeights {
		if !selected[pair[0]] || !selected[pair[1]] {
			continue
		}
		edges = append(edges, GraphEdge{Source: pair[0], Target: pair[1], Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	if len(edges) > maxEdges {
		edges = edges[:maxEdges]
	}

	return &EntityGraph{Nodes: nodes, Edges: edges}, nil
}
