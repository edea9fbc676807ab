// Package cluster implements the online clusterer: given a templated log
// line's embedding, it assigns the line to an existing semantic cluster or
// mints a new one, grounded on original_source's
// app/services/online_clustering.py assign_or_create_cluster.
package cluster

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsecorr/internal/vectorstore"
)

// Assigner assigns templated log lines to semantic clusters.
type Assigner struct {
	collections vectorstore.Collections
	prototypes  func(os string) vectorstore.Store
	embedder    vectorstore.Embedder
	threshold   float64
	logger      zerolog.Logger
}

// New builds an Assigner. prototypeStore resolves the per-OS prototype
// collection (each OS gets its own Qdrant collection; cmd/pulsecorr builds
// all of them at startup and looks them up by OS).
func New(prototypeStore func(os string) vectorstore.Store, embedder vectorstore.Embedder, threshold float64, logger zerolog.Logger) *Assigner {
	return &Assigner{prototypes: prototypeStore, embedder: embedder, threshold: threshold, logger: logger}
}

// AssignOrCreate returns the id of the cluster templated belongs to,
// creating a new prototype when nothing within the distance threshold
// exists. Failures from the ANN query or the upsert never prevent the
// caller from getting back a usable id.
func (a *Assigner) AssignOrCreate(ctx context.Context, os, templated string, embedding []float32) (clusterID string, created bool, err error) {
	store := a.prototypes(os)

	neighbors, qerr := store.Query(ctx, embedding, 1, nil)
	if qerr != nil {
		a.logger.Warn().Err(qerr).Str("os", os).Msg("prototype ann query failed, treating as no match")
		neighbors = nil
	}
	if len(neighbors) > 0 && neighbors[0].Score >= (1-a.threshold) {
		// Score is a similarity in [0,1] for cosine-space stores; distance
		// ≈ 1-score. Callers configuring a non-cosine metric should tune
		// ONLINE_CLUSTER_DISTANCE_THRESHOLD accordingly.
		return neighbors[0].ID, false, nil
	}

	newID := "cluster_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	metadata := map[string]string{
		"os":          os,
		"label":       "unknown",
		"rationale":   "online",
		"size":        "1",
		"created_by":  "online",
		"exemplar_count": "0",
	}
	if uerr := store.Upsert(ctx, newID, embedding, templated, metadata); uerr != nil {
		a.logger.Warn().Err(uerr).Str("os", os).Str("cluster_id", newID).Msg("prototype upsert failed, returning id anyway")
	}
	return newID, true, nil
}
