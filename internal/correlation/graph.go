package correlation

import "pulsecorr/internal/normalize"

// BuildGraph projects a Result into a node-per-cluster graph with edges on
// shared host identifiers extracted from each cluster's sample logs.
func BuildGraph(r Result) Graph {
	nodeHosts := make([]map[string]bool, len(r.Clusters))
	nodes := make([]GraphNode, len(r.Clusters))

	for i, c := range r.Clusters {
		hosts := make(map[string]bool)
		for _, s := range c.SampleLogs {
			raw := s.Raw
			if raw == "" {
				raw = s.Document
			}
			for _, h := range normalize.ExtractHostIdentifiers(raw) {
				hosts[h] = true
			}
		}
		nodeHosts[i] = hosts
		nodes[i] = GraphNode{
			ID:       c.ID,
			Label:    c.MedoidDocument,
			Size:     c.Size,
			Severity: severityFromMedoid(c.MedoidDocument),
		}
	}

	var edges []GraphEdge
	for i := 0; i < len(r.Clusters); i++ {
		for j := i + 1; j < len(r.Clusters); j++ {
			shared := 0
			for h := range nodeHosts[i] {
				if nodeHosts[j][h] {
					shared++
				}
			}
			if shared > 0 {
				edges = append(edges, GraphEdge{From: r.Clusters[i].ID, To: r.Clusters[j].ID, Weight: shared})
			}
		}
	}

	return Graph{Nodes: nodes, Edges: edges}
}
