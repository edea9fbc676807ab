// Package query implements the environment/incident/topology read layer
// consumed by internal/httpapi: environment discovery, geo coordinates for
// map visualization, topology-from-logs, and incident listing. Grounded on
// original_source/app/api/v1/endpoints/environments.py and incidents.py.
package query

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsecorr/internal/normalize"
	"pulsecorr/internal/vectorstore"
)

var discoveredOSSet = []string{"linux", "macos", "windows", "network"}

// Environments discovers and describes the environments logs have been
// ingested for, with a fixed-table fallback for demo/degraded operation.
type Environments struct {
	Logs                    func(os string) vectorstore.Store
	DiscoveryTimeout        time.Duration
	DisableGlobalClustering bool
	FallbackEnvIDs          []string
}

// DiscoverEnvironments scans each OS log collection's metadata for env_id
// values, bounded by DiscoveryTimeout, falling back to FallbackEnvIDs on
// timeout, error, or when clustering is disabled entirely.
func (e *Environments) DiscoverEnvironments(ctx context.Context) []string {
	if e.DisableGlobalClustering {
		return e.fallback()
	}

	timeout := e.DiscoveryTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	discoveryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		ids []string
		err error
	}
	done := make(chan result, 1)
	go func() {
		ids, err := e.discoverEnvIDsBlocking(discoveryCtx)
		done <- result{ids, err}
	}()

	select {
	case r := <-done:
		if r.err != nil || len(r.ids) == 0 {
			return e.fallback()
		}
		return r.ids
	case <-discoveryCtx.Done():
		return e.fallback()
	}
}

// discoverEnvIDsBlocking scans every OS's log collection concurrently,
// bounded the way web.fetch_tool caps its concurrent fetches with
// errgroup.SetLimit, since each collection scan is an independent ANN call.
func (e *Environments) discoverEnvIDsBlocking(ctx context.Context) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(discoveredOSSet))
	for _, osName := range discoveredOSSet {
		osName := osName
		g.Go(func() error {
			store := e.Logs(osName)
			if store == nil {
				return nil
			}
			points, err := store.GetWhere(gctx, nil, 500)
			if err != nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range points {
				if env := strings.TrimSpace(p.Metadata["env_id"]); env != "" {
					seen[env] = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Environments) fallback() []string {
	ids := e.FallbackEnvIDs
	if len(ids) == 0 {
		ids = []string{"env-001", "env-002", "env-003"}
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// EnvironmentSummary is the projected shape of GET /environments'
// list items.
type EnvironmentSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Region      string  `json:"region"`
	Status      string  `json:"status"`
	LastUpdated string  `json:"lastUpdated"`
	Clusters    int     `json:"clusters"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// ListEnvironmentSummaries projects discovered env ids into display rows.
// now is injected so callers can pin a deterministic timestamp.
func (e *Environments) ListEnvironmentSummaries(ctx context.Context, now time.Time) []EnvironmentSummary {
	ids := e.DiscoverEnvironments(ctx)
	out := make([]EnvironmentSummary, 0, len(ids))
	for _, id := range ids {
		lat, lng := RegionCoordinates(id)
		out = append(out, EnvironmentSummary{
			ID:          id,
			Name:        TitleCaseEnvID(id),
			Region:      id,
			Status:      "healthy",
			LastUpdated: now.UTC().Format(time.RFC3339),
			Clusters:    0,
			Lat:         lat,
			Lng:         lng,
		})
	}
	return out
}

// TitleCaseEnvID renders an env id ("env-001") as a display name
// ("Env 001"), shared by the environment list and detail endpoints.
func TitleCaseEnvID(id string) string {
	words := strings.Split(strings.ReplaceAll(id, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// TopologyNode is one host/device discovered in an environment's logs.
type TopologyNode struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// TopologyEdge connects two hosts via an observed relationship
// (from/to, or depends_on).
type TopologyEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// BuildTopology loads a slice of an environment's logs and extracts a host
// graph from host identifiers and from/to or depends_on edges embedded in
// JSON payloads. Grounded on environments.py's _build_topology_from_logs.
func (e *Environments) BuildTopology(ctx context.Context, envID string) ([]TopologyNode, []TopologyEdge) {
	nodes := make(map[string]TopologyNode)
	var edges []TopologyEdge

	for _, osName := range discoveredOSSet {
		store := e.Logs(osName)
		if store == nil {
			continue
		}
		points, err := store.GetWhere(ctx, map[string]string{"env_id": envID}, 300)
		if err != nil {
			continue
		}
		for _, p := range points {
			raw := p.Metadata["raw"]
			if raw == "" {
				raw = p.Document
			}
			for _, h := range normalize.ExtractHostIdentifiers(raw) {
				if _, ok := nodes[h]; !ok {
					nodes[h] = TopologyNode{ID: h, Label: h, Type: "server", Status: "healthy"}
				}
			}

			var obj map[string]any
			if err := json.Unmarshal([]byte(raw), &obj); err == nil {
				from, fromOK := obj["from"].(string)
				to, toOK := obj["to"].(string)
				if fromOK && toOK {
					edges = append(edges, TopologyEdge{From: from, To: to, Status: "healthy"})
				}
				if deps, ok := obj["depends_on"].([]any); ok {
					target, _ := obj["id"].(string)
					if target == "" {
						target, _ = obj["name"].(string)
					}
					for _, d := range deps {
						if ds, ok := d.(string); ok {
							edges = append(edges, TopologyEdge{From: ds, To: target, Status: "healthy"})
						}
					}
				}
			}
		}
	}

	out := make([]TopologyNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, edges
}

// RegionCoordinates returns a deterministic demo lat/lng for map
// visualization. Generic env-NNN ids round-robin across a fixed table of
// widely separated US locations; named AWS-style region hints map to their
// real location; anything else defaults to Northern Virginia. Recovered in
// spirit (not verbatim) from environments.py's _region_coordinates.
func RegionCoordinates(envID string) (lat, lng float64) {
	lower := strings.ToLower(envID)

	if strings.HasPrefix(lower, "env-") {
		locations := [][2]float64{
			{61.2181, -149.9003}, // Anchorage
			{25.7617, -80.1918},  // Miami
			{21.3069, -157.8583}, // Honolulu
			{44.8113, -91.4985},  // Eau Claire
			{32.7157, -117.1611}, // San Diego
			{42.3601, -71.0589},  // Boston
		}
		num := digitsOf(envID)
		if num < 1 {
			num = 1
		}
		loc := locations[(num-1)%len(locations)]
		return loc[0], loc[1]
	}

	for _, r := range regionTable {
		for _, hint := range r.hints {
			if strings.Contains(lower, hint) {
				return r.lat, r.lng
			}
		}
	}
	return 39.0438, -77.4878 // Ashburn, VA
}

type region struct {
	hints   []string
	lat     float64
	lng     float64
}

var regionTable = []region{
	{[]string{"us-east-1", "virginia"}, 39.0438, -77.4878},
	{[]string{"us-east", "east"}, 35.2271, -80.8431},
	{[]string{"us-west-2", "oregon"}, 45.5152, -122.6784},
	{[]string{"us-west-1"}, 36.7783, -119.4179},
	{[]string{"us-west", "west"}, 37.4419, -122.1430},
	{[]string{"iowa"}, 41.2524, -95.9980},
	{[]string{"eu-west-1", "ireland"}, 53.3498, -6.2603},
	{[]string{"eu-west-2", "london"}, 51.5074, -0.1278},
	{[]string{"eu-central-1", "frankfurt"}, 50.1109, 8.6821},
	{[]string{"eu-north-1", "stockholm"}, 59.3293, 18.0686},
	{[]string{"eu-west-3", "paris"}, 48.8566, 2.3522},
	{[]string{"ap-southeast-1", "singapore"}, 1.3521, 103.8198},
	{[]string{"ap-southeast-2", "sydney"}, -33.8688, 151.2093},
	{[]string{"ap-northeast-1", "tokyo"}, 35.6762, 139.6503},
	{[]string{"ap-northeast-2", "seoul"}, 37.5665, 126.9780},
	{[]string{"ap-south-1", "mumbai"}, 19.0760, 72.8777},
	{[]string{"ap-east-1", "hongkong", "hong kong"}, 22.3193, 114.1694},
	{[]string{"sa-east-1", "saopaulo", "sao paulo"}, -23.5505, -46.6333},
	{[]string{"af-south-1", "capetown", "cape town"}, -33.9249, 18.4241},
}

func digitsOf(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 1
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 1
	}
	return n
}
