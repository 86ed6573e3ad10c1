package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":8004", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, "matching-service", cfg.ServiceName)
	require.Equal(t, "rentman.assignments.created", cfg.NatsAssignmentSubject)
	require.Equal(t, "memory", cfg.StoreBackend)
	require.Equal(t, 0.6, cfg.ReputationWeight)
	require.Equal(t, 0.4, cfg.GrowthWeight)
	require.Equal(t, 5, cfg.TopCandidates)
	require.Equal(t, 2.0, cfg.RotationFactor)

	// The default file should now exist on disk.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadConfigBackfillsZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := []byte("port: \":9100\"\nrotation_factor: 3.5\nstore_backend: postgres\n")
	require.NoError(t, os.WriteFile(path, partial, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":9100", cfg.Port)
	require.Equal(t, 3.5, cfg.RotationFactor)
	require.Equal(t, "postgres", cfg.StoreBackend)

	// Unset fields fall back to defaults.
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 5, cfg.TopCandidates)
	require.Equal(t, 0.6, cfg.ReputationWeight)
	require.Equal(t, "localhost:8500", cfg.ConsulAddress)
}

func TestGenerateServiceID(t *testing.T) {
	first := GenerateServiceID("matching-")
	second := GenerateServiceID("matching-")

	require.Contains(t, first, "matching-")
	require.NotEqual(t, first, second)
}
