// config.go
//
// Grouped configuration for the worker and gateway processes. All tunables
// are flag-first with an optional YAML file; defaults match the recognized
// batch policy (max_batch_size=32, timeout_ms=20) and ring geometry
// (150 virtual nodes per physical node).

package gate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Recognized tunable defaults. These are configuration, not hardcoded
// behavior: every one can be overridden by flag or config file.
const (
	DefaultMaxBatchSize   = 32
	DefaultBatchTimeoutMs = 20
	DefaultVirtualNodes   = 150

	DefaultForwardTimeoutMs = 10000
	DefaultBatchTimeout     = DefaultBatchTimeoutMs * time.Millisecond
)

// BatchPolicy groups the dynamic batching tunables of one worker.
type BatchPolicy struct {
	MaxBatchSize int `yaml:"max_batch_size"` // batch closes at this size
	TimeoutMs    int `yaml:"timeout_ms"`     // batch closes at this age
}

// Timeout returns the deadline trigger as a duration.
func (p BatchPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// WorkerConfig groups all parameters of a worker process.
type WorkerConfig struct {
	NodeID string      `yaml:"node_id"`
	Port   int         `yaml:"port"`
	Seed   int64       `yaml:"seed"`
	Batch  BatchPolicy `yaml:"batch"`
}

// GatewayConfig groups all parameters of a gateway process.
type GatewayConfig struct {
	Port             int      `yaml:"port"`
	Workers          []string `yaml:"workers"` // worker base URLs, e.g. http://localhost:8001
	VirtualNodes     int      `yaml:"virtual_nodes_per_physical"`
	ForwardTimeoutMs int      `yaml:"forward_timeout_ms"` // per-forward-call budget
	MaxRetries       int      `yaml:"max_retries"`        // ring-fallback attempts, 0 = off
}

// ForwardTimeout returns the per-call forwarding budget as a duration.
func (c GatewayConfig) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutMs) * time.Millisecond
}

// ApplyDefaults fills zero-valued worker fields with the package defaults.
func (c *WorkerConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8001
	}
	if c.NodeID == "" {
		c.NodeID = fmt.Sprintf("worker_%d", c.Port)
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Batch.MaxBatchSize == 0 {
		c.Batch.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.Batch.TimeoutMs == 0 {
		c.Batch.TimeoutMs = DefaultBatchTimeoutMs
	}
}

// Validate reports the first invalid worker field.
func (c *WorkerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("worker config: port %d out of range", c.Port)
	}
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("worker config: max_batch_size must be >= 1, got %d", c.Batch.MaxBatchSize)
	}
	if c.Batch.TimeoutMs < 1 {
		return fmt.Errorf("worker config: timeout_ms must be >= 1, got %d", c.Batch.TimeoutMs)
	}
	return nil
}

// ApplyDefaults fills zero-valued gateway fields with the package defaults.
func (c *GatewayConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.VirtualNodes == 0 {
		c.VirtualNodes = DefaultVirtualNodes
	}
	if c.ForwardTimeoutMs == 0 {
		c.ForwardTimeoutMs = DefaultForwardTimeoutMs
	}
}

// Validate reports the first invalid gateway field.
func (c *GatewayConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("gateway config: port %d out of range", c.Port)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("gateway config: at least one worker URL required")
	}
	if c.VirtualNodes < 1 {
		return fmt.Errorf("gateway config: virtual_nodes_per_physical must be >= 1, got %d", c.VirtualNodes)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("gateway config: max_retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// LoadWorkerConfig reads a worker YAML config from path.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadGatewayConfig reads a gateway YAML config from path.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
