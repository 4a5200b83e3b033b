package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-gate/inference-gate/gate"
)

var (
	// CLI flags for the gateway
	gatewayPort             int      // Port to listen on
	gatewayWorkers          []string // Worker base URLs
	gatewayVirtualNodes     int      // Virtual nodes per physical worker
	gatewayForwardTimeoutMs int      // Per-forward-call budget (ms)
	gatewayMaxRetries       int      // Ring-fallback attempts, 0 disables
	gatewayConfigPath       string   // Optional YAML config, flags win
)

// gatewayCmd runs the routing front door over a fixed worker pool.
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the routing gateway",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := &gate.GatewayConfig{}
		if gatewayConfigPath != "" {
			loaded, err := gate.LoadGatewayConfig(gatewayConfigPath)
			if err != nil {
				logrus.Fatalf("load gateway config: %v", err)
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("port") || cfg.Port == 0 {
			cfg.Port = gatewayPort
		}
		if cmd.Flags().Changed("workers") || len(cfg.Workers) == 0 {
			cfg.Workers = gatewayWorkers
		}
		if cmd.Flags().Changed("virtual-nodes") {
			cfg.VirtualNodes = gatewayVirtualNodes
		}
		if cmd.Flags().Changed("forward-timeout-ms") {
			cfg.ForwardTimeoutMs = gatewayForwardTimeoutMs
		}
		if cmd.Flags().Changed("max-retries") {
			cfg.MaxRetries = gatewayMaxRetries
		}

		metrics := gate.NewGatewayMetrics()
		gw, err := gate.NewGateway(*cfg, metrics)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		healthy := gw.ProbeWorkers(probeCtx)
		cancel()
		logrus.Infof("gateway: %d workers configured, %d healthy, %d virtual nodes each, max_retries=%d",
			len(cfg.Workers), healthy, cfg.VirtualNodes, cfg.MaxRetries)

		server := gate.NewServer("gateway", fmt.Sprintf(":%d", cfg.Port), gw.Handler())
		if err := server.Start(); err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := server.WaitForShutdown(10 * time.Second); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	gatewayCmd.Flags().IntVar(&gatewayPort, "port", 8000, "Port to listen on")
	gatewayCmd.Flags().StringSliceVar(&gatewayWorkers, "workers",
		[]string{"http://localhost:8001", "http://localhost:8002", "http://localhost:8003"},
		"Comma-separated worker base URLs")
	gatewayCmd.Flags().IntVar(&gatewayVirtualNodes, "virtual-nodes", gate.DefaultVirtualNodes, "Virtual nodes per physical worker")
	gatewayCmd.Flags().IntVar(&gatewayForwardTimeoutMs, "forward-timeout-ms", gate.DefaultForwardTimeoutMs, "Per-call forwarding timeout (ms)")
	gatewayCmd.Flags().IntVar(&gatewayMaxRetries, "max-retries", 0, "Fallback attempts on successor nodes (0 = surface failure)")
	gatewayCmd.Flags().StringVar(&gatewayConfigPath, "config", "", "Optional YAML config file (flags win)")

	rootCmd.AddCommand(gatewayCmd)
}
