// Command pulsecorr runs the log-analytics/incident-correlation pipeline:
// two supervised streaming workers (issues aggregator, cluster enricher)
// plus the read-side HTTP API, sharing one Redis connection and per-OS
// Qdrant-backed vector collections. Grounded on cmd/orchestrator/main.go's
// run() error / signal.NotifyContext / deferred-Close wiring pattern.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"pulsecorr/internal/aggregator"
	"pulsecorr/internal/alerts"
	"pulsecorr/internal/cluster"
	"pulsecorr/internal/config"
	"pulsecorr/internal/enricher"
	"pulsecorr/internal/httpapi"
	"pulsecorr/internal/llm"
	"pulsecorr/internal/logging"
	"pulsecorr/internal/metrics"
	"pulsecorr/internal/query"
	"pulsecorr/internal/store"
	"pulsecorr/internal/supervisor"
	"pulsecorr/internal/vectorstore"
)

var clusteredOSSet = []string{"linux", "macos", "windows", "network"}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("pulsecorr")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	baseCtx := context.Background()

	kv, err := store.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := kv.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing redis client")
		}
	}()

	collections := vectorstore.NewCollections(cfg.Collections, cfg.EmbedID)

	logStores, err := buildStores(baseCtx, cfg, collections, vectorstore.KindLog)
	if err != nil {
		return fmt.Errorf("init log collections: %w", err)
	}
	prototypeStores, err := buildStores(baseCtx, cfg, collections, vectorstore.KindPrototype)
	if err != nil {
		return fmt.Errorf("init prototype collections: %w", err)
	}
	templateStores, err := buildStores(baseCtx, cfg, collections, vectorstore.KindTemplate)
	if err != nil {
		return fmt.Errorf("init template collections: %w", err)
	}

	logs := resolver(logStores)
	prototypes := resolver(prototypeStores)
	templates := resolver(templateStores)

	embedder := vectorstore.NewHTTPEmbedder(cfg.Embedding)
	if err := vectorstore.CheckReachability(baseCtx, embedder); err != nil {
		log.Warn().Err(err).Msg("embedding endpoint reachability check failed, continuing anyway")
	}
	classifier := llm.NewAnthropicClassifier(cfg.Anthropic, http.DefaultClient, log.Logger)
	assigner := cluster.New(prototypes, embedder, cfg.OnlineClusterDistanceThreshold, log.Logger)
	recorder := metrics.New(kv, cfg.EnableClusterMetrics, log.Logger)

	aggWorker := aggregator.New(kv, embedder, assigner, logs, aggregator.Config{
		ClusterMinLogsForClassification:      cfg.ClusterMinLogsForClassification,
		ClusterCandidateRepublishEvery:       cfg.ClusterCandidateRepublishEvery,
		ClusterCandidateRepublishMinInterval: cfg.ClusterCandidateRepublishMinInterval,
		IssueInactivity:                      cfg.IssueInactivity,
		IssueMaxLogsForLLM:                   cfg.IssueMaxLogsForLLM,
	}, log.Logger, recorder)

	var enrichWorker *enricher.Worker
	if cfg.EnableClusterEnricher {
		enrichWorker = enricher.New(kv, prototypes, templates, logs, classifier, enricher.Config{
			AlertsTTL:               cfg.AlertsTTL,
			EnableClusterHypothesis: cfg.EnableClusterHypothesis,
		}, log.Logger, recorder)
	}

	alertStore := alerts.New(kv)
	environments := &query.Environments{
		Logs:                    logs,
		DiscoveryTimeout:        cfg.EnvDiscoveryTimeout,
		DisableGlobalClustering: cfg.DisableGlobalClustering,
		FallbackEnvIDs:          cfg.SimEnvIDs,
	}

	server := httpapi.NewServer(httpapi.Deps{
		AlertStore:   alertStore,
		Environments: environments,
		Logs:         logs,
		Prototypes:   prototypes,
		KV:           kv,
		Config:       cfg,
		Logger:       log.Logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go supervisor.Run(ctx, "issues_aggregator", log.Logger, aggWorker.Run)
	if enrichWorker != nil {
		go supervisor.Run(ctx, "cluster_enricher", log.Logger, enrichWorker.Run)
	} else {
		log.Info().Msg("cluster enricher disabled (ENABLE_CLUSTER_ENRICHER=false)")
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	return nil
}

// buildStores connects one Qdrant collection per clustered OS for kind.
func buildStores(ctx context.Context, cfg config.Config, collections vectorstore.Collections, kind vectorstore.Kind) (map[string]vectorstore.Store, error) {
	out := make(map[string]vectorstore.Store, len(clusteredOSSet))
	for _, osName := range clusteredOSSet {
		name := collections.Name(kind, osName)
		s, err := vectorstore.NewQdrantStore(ctx, cfg.Qdrant.DSN, name, cfg.Qdrant.Dimensions, cfg.Qdrant.Metric)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant collection %s: %w", name, err)
		}
		out[osName] = s
	}
	return out, nil
}

func resolver(stores map[string]vectorstore.Store) func(os string) vectorstore.Store {
	return func(osName string) vectorstore.Store {
		return stores[osName]
	}
}
