package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-gate/inference-gate/gate/bench"
)

var (
	// CLI flags for the load generator
	benchTarget      string // Gateway (or worker) base URL
	benchRequests    int    // Total requests to send
	benchConcurrency int    // In-flight request cap
	benchPayloadSize int    // Floats per payload
	benchSeed        int64  // Payload generation seed
	benchTimeoutMs   int    // Per-request HTTP budget (ms)
)

// benchCmd drives synthetic load against a running gateway and prints the report.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the load generator against a gateway",
	Run: func(cmd *cobra.Command, args []string) {
		runner := bench.NewRunner(bench.Options{
			TargetURL:   benchTarget,
			Requests:    benchRequests,
			Concurrency: benchConcurrency,
			PayloadSize: benchPayloadSize,
			Seed:        benchSeed,
			CallTimeout: time.Duration(benchTimeoutMs) * time.Millisecond,
		})
		report, err := runner.Run(context.Background())
		if err != nil {
			logrus.Fatalf("bench: %v", err)
		}
		report.Print(os.Stdout)
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchTarget, "target", "http://localhost:8000", "Gateway base URL")
	benchCmd.Flags().IntVar(&benchRequests, "requests", 150, "Total requests to send")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 50, "Concurrent in-flight requests")
	benchCmd.Flags().IntVar(&benchPayloadSize, "payload-size", 128, "Floats per request payload")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 42, "Seed for payload generation")
	benchCmd.Flags().IntVar(&benchTimeoutMs, "timeout-ms", 10000, "Per-request timeout (ms)")

	rootCmd.AddCommand(benchCmd)
}
