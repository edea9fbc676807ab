package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 10, cfg.ClusterMinLogsForClassification)
	require.Equal(t, 0, cfg.ClusterCandidateRepublishEvery)
	require.Equal(t, []string{"env-001", "env-002", "env-003"}, cfg.SimEnvIDs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CLUSTER_MIN_LOGS_FOR_CLASSIFICATION", "25")
	t.Setenv("DISABLE_HDBSCAN", "true")
	t.Setenv("SIM_ENV_IDS", "env-a, env-b")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 25, cfg.ClusterMinLogsForClassification)
	require.True(t, cfg.DisableHDBSCAN)
	require.Equal(t, []string{"env-a", "env-b"}, cfg.SimEnvIDs)
}

func TestLoad_RepublishZeroMeansNever(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.ClusterCandidateRepublishEvery, "republish_every defaults to 0, meaning never republish")
}
