package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerConfig_ApplyDefaults(t *testing.T) {
	cfg := &WorkerConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "worker_8001", cfg.NodeID)
	assert.Equal(t, DefaultMaxBatchSize, cfg.Batch.MaxBatchSize)
	assert.Equal(t, DefaultBatchTimeoutMs, cfg.Batch.TimeoutMs)
	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Validate_RejectsBadBatchPolicy(t *testing.T) {
	cfg := &WorkerConfig{Port: 8001, Batch: BatchPolicy{MaxBatchSize: 0, TimeoutMs: 20}}
	assert.Error(t, cfg.Validate())

	cfg = &WorkerConfig{Port: 8001, Batch: BatchPolicy{MaxBatchSize: 32, TimeoutMs: 0}}
	assert.Error(t, cfg.Validate())

	cfg = &WorkerConfig{Port: -1, Batch: BatchPolicy{MaxBatchSize: 32, TimeoutMs: 20}}
	assert.Error(t, cfg.Validate())
}

func TestGatewayConfig_Validate_RequiresWorkers(t *testing.T) {
	cfg := &GatewayConfig{}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Workers = []string{"http://localhost:8001"}
	assert.NoError(t, cfg.Validate())

	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadWorkerConfig_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	data := []byte(`
node_id: edge-1
port: 9001
seed: 7
batch:
  max_batch_size: 16
  timeout_ms: 10
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadWorkerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "edge-1", cfg.NodeID)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 16, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 10, cfg.Batch.TimeoutMs)
}

func TestLoadGatewayConfig_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte(`
port: 9000
workers:
  - http://localhost:9001
  - http://localhost:9002
virtual_nodes_per_physical: 75
forward_timeout_ms: 2000
max_retries: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadGatewayConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Len(t, cfg.Workers, 2)
	assert.Equal(t, 75, cfg.VirtualNodes)
	assert.Equal(t, 2000, cfg.ForwardTimeoutMs)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestLoadWorkerConfig_MissingFile_ReturnsError(t *testing.T) {
	_, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
