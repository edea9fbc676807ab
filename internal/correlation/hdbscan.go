package correlation

import (
	"math"
	"sort"
)

// HDBSCANOptions controls the density-based clustering pass over prototype
// vectors. No pack dependency implements HDBSCAN; this is a standard-library
// approximation appropriate at the scale this system operates at (hundreds
// to low thousands of prototypes, not millions of points).
type HDBSCANOptions struct {
	MinClusterSize int
	MinSamples     int // k used for core-distance; defaults to MinClusterSize
}

// hdbscanEdge is one edge of the minimum spanning tree over mutual
// reachability distances.
type hdbscanEdge struct {
	u, v   int
	weight float64
}

// runHDBSCAN clusters points (each a flat float32 vector, Euclidean
// distance) and returns one label per point: -1 for noise, otherwise a
// dense 0-based cluster index.
func runHDBSCAN(points [][]float32, opts HDBSCANOptions) []int {
	n := len(points)
	if n == 0 {
		return nil
	}
	if opts.MinClusterSize < 2 {
		opts.MinClusterSize = 2
	}
	minSamples := opts.MinSamples
	if minSamples <= 0 {
		minSamples = opts.MinClusterSize
	}
	if n == 1 {
		return []int{-1}
	}

	dist := pairwiseEuclidean(points)
	core := coreDistances(dist, minSamples)
	mrDist := mutualReachability(dist, core)
	mst := primMST(mrDist, n)
	return condenseFlatClusters(mst, n, opts.MinClusterSize)
}

func pairwiseEuclidean(points [][]float32) [][]float64 {
	n := len(points)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist := euclidean(points[i], points[j])
			d[i][j], d[j][i] = dist, dist
		}
	}
	return d
}

func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// coreDistances returns, for each point, the distance to its k-th nearest
// neighbor (k = minSamples), clamped to n-1 when the set is smaller.
func coreDistances(dist [][]float64, k int) []float64 {
	n := len(dist)
	core := make([]float64, n)
	for i := 0; i < n; i++ {
		neighbors := make([]float64, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				neighbors = append(neighbors, dist[i][j])
			}
		}
		sort.Float64s(neighbors)
		idx := k - 1
		if idx >= len(neighbors) {
			idx = len(neighbors) - 1
		}
		if idx < 0 {
			idx = 0
		}
		core[i] = neighbors[idx]
	}
	return core
}

func mutualReachability(dist [][]float64, core []float64) [][]float64 {
	n := len(dist)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			mr := dist[i][j]
			if core[i] > mr {
				mr = core[i]
			}
			if core[j] > mr {
				mr = core[j]
			}
			out[i][j] = mr
		}
	}
	return out
}

// primMST builds the minimum spanning tree over the mutual reachability
// distance matrix using Prim's algorithm, O(n^2) — acceptable at this scale
// and avoids pulling in a kd-tree dependency that isn't in the corpus.
func primMST(mrDist [][]float64, n int) []hdbscanEdge {
	inTree := make([]bool, n)
	minEdge := make([]float64, n)
	minFrom := make([]int, n)
	for i := range minEdge {
		minEdge[i] = math.Inf(1)
		minFrom[i] = -1
	}
	minEdge[0] = 0
	edges := make([]hdbscanEdge, 0, n-1)

	for count := 0; count < n; count++ {
		u := -1
		best := math.Inf(1)
		for v := 0; v < n; v++ {
			if !inTree[v] && minEdge[v] < best {
				best = minEdge[v]
				u = v
			}
		}
		if u == -1 {
			break
		}
		inTree[u] = true
		if minFrom[u] != -1 {
			edges = append(edges, hdbscanEdge{u: minFrom[u], v: u, weight: minEdge[u]})
		}
		for v := 0; v < n; v++ {
			if !inTree[v] && mrDist[u][v] < minEdge[v] {
				minEdge[v] = mrDist[u][v]
				minFrom[v] = u
			}
		}
	}
	return edges
}

// condenseFlatClusters cuts the MST into a cluster hierarchy by ascending
// edge weight, condensing components smaller than minClusterSize into their
// parent (noise at the root) — the standard condensed tree extraction,
// simplified to flat output since the query layer only ever consumes a flat
// cluster list.
func condenseFlatClusters(mst []hdbscanEdge, n, minClusterSize int) []int {
	sort.Slice(mst, func(i, j int) bool { return mst[i].weight < mst[j].weight })

	parent := make([]int, n)
	size := make([]int, n)
	label := make([]int, n) // -1 means noise
	for i := range parent {
		parent[i] = i
		size[i] = 1
		label[i] = -1
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for _, e := range mst {
		ru, rv := find(e.u), find(e.v)
		if ru == rv {
			continue
		}
		bigger, smaller := ru, rv
		if size[smaller] > size[bigger] {
			bigger, smaller = smaller, bigger
		}
		mergedSize := size[bigger] + size[smaller]
		mergedLabel := -1

		switch {
		case label[bigger] != -1 && label[smaller] != -1:
			mergedLabel = label[bigger]
		case label[bigger] != -1:
			mergedLabel = label[bigger]
		case label[smaller] != -1:
			mergedLabel = label[smaller]
		case mergedSize >= minClusterSize:
			mergedLabel = bigger // provisional id, renumbered below
		}

		parent[smaller] = bigger
		size[bigger] = mergedSize
		label[bigger] = mergedLabel
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = label[find(i)]
	}
	return renumberLabels(labels)
}

func renumberLabels(labels []int) []int {
	next := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == -1 {
			out[i] = -1
			continue
		}
		id, ok := next[l]
		if !ok {
			id = len(next)
			next[l] = id
		}
		out[i] = id
	}
	return out
}
