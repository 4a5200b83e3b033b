package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-gate/inference-gate/gate"
)

var (
	// CLI flags for the worker node
	workerPort           int    // Port to listen on
	workerNodeID         string // Node identity reported in results and stats
	workerMaxBatchSize   int    // Batch closes at this size
	workerBatchTimeoutMs int    // Batch closes at this age (ms)
	workerSeed           int64  // Seed for the simulated engine
	workerConfigPath     string // Optional YAML config, flags win

	// Simulated engine latency profile
	engineBaseMs      int     // Fixed per-batch cost (ms)
	enginePerItemUs   int     // Marginal per-request cost (us)
	engineFailureRate float64 // Injected batch failure probability
)

// workerCmd runs one worker node: HTTP intake, dynamic batching, simulated compute.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker node",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := &gate.WorkerConfig{}
		if workerConfigPath != "" {
			loaded, err := gate.LoadWorkerConfig(workerConfigPath)
			if err != nil {
				logrus.Fatalf("load worker config: %v", err)
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("port") || cfg.Port == 0 {
			cfg.Port = workerPort
		}
		if cmd.Flags().Changed("node-id") {
			cfg.NodeID = workerNodeID
		}
		if cmd.Flags().Changed("max-batch-size") {
			cfg.Batch.MaxBatchSize = workerMaxBatchSize
		}
		if cmd.Flags().Changed("batch-timeout-ms") {
			cfg.Batch.TimeoutMs = workerBatchTimeoutMs
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = workerSeed
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("%v", err)
		}

		profile := gate.DefaultEngineProfile()
		if cmd.Flags().Changed("engine-base-ms") {
			profile.Base = time.Duration(engineBaseMs) * time.Millisecond
		}
		if cmd.Flags().Changed("engine-per-item-us") {
			profile.PerItem = time.Duration(enginePerItemUs) * time.Microsecond
		}
		profile.FailureRate = engineFailureRate

		engine := gate.NewSimulatedEngine(profile, gate.DeriveSeed(cfg.Seed, cfg.NodeID))
		queue := gate.NewBatchQueue(cfg.NodeID, cfg.Batch, engine)
		metrics := gate.NewWorkerMetrics(cfg.NodeID)
		metrics.ObserveQueue(queue)
		worker := gate.NewWorkerNode(cfg.NodeID, queue, metrics)
		defer worker.Close()

		logrus.Infof("worker %s: max_batch_size=%d, batch_timeout=%dms, engine base=%s per-item=%s",
			cfg.NodeID, cfg.Batch.MaxBatchSize, cfg.Batch.TimeoutMs, profile.Base, profile.PerItem)

		server := gate.NewServer("worker "+cfg.NodeID, fmt.Sprintf(":%d", cfg.Port), worker.Handler())
		if err := server.Start(); err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := server.WaitForShutdown(10 * time.Second); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerPort, "port", 8001, "Port to listen on")
	workerCmd.Flags().StringVar(&workerNodeID, "node-id", "", "Node ID (default worker_<port>)")
	workerCmd.Flags().IntVar(&workerMaxBatchSize, "max-batch-size", gate.DefaultMaxBatchSize, "Maximum requests per batch")
	workerCmd.Flags().IntVar(&workerBatchTimeoutMs, "batch-timeout-ms", gate.DefaultBatchTimeoutMs, "Batch deadline in milliseconds")
	workerCmd.Flags().Int64Var(&workerSeed, "seed", 42, "Seed for the simulated compute engine")
	workerCmd.Flags().StringVar(&workerConfigPath, "config", "", "Optional YAML config file (flags win)")
	workerCmd.Flags().IntVar(&engineBaseMs, "engine-base-ms", 4, "Simulated engine fixed cost per batch (ms)")
	workerCmd.Flags().IntVar(&enginePerItemUs, "engine-per-item-us", 250, "Simulated engine marginal cost per request (us)")
	workerCmd.Flags().Float64Var(&engineFailureRate, "engine-failure-rate", 0.0, "Injected batch failure probability")

	rootCmd.AddCommand(workerCmd)
}
