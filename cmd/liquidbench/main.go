// Command liquidbench exercises the Liquid Engine from the command line:
// it runs a small demonstration operation (matrix-like workload stand-ins)
// across its available backends, prints a benchmark comparison, or
// inspects/resets its persisted statistics file.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nanopyx-go/liquidengine/pkg/engine"
	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "liquidbench",
		Short: "Liquid Engine demonstration and benchmarking CLI",
		Long: `liquidbench exercises the Liquid Engine's adaptive backend
dispatcher against a demonstration operation, so its dispatch,
statistics-tracking, and benchmarking behavior can be inspected without
pulling it into a larger program.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("liquidbench v%s\n", version)
		},
	})

	benchCmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Run every enabled backend once and report timings",
		RunE:  runBenchmark,
	}
	benchCmd.Flags().String("config-dir", defaultConfigDir(), "Statistics config directory")
	benchCmd.Flags().Int("size", 64, "Demonstration workload size")
	rootCmd.AddCommand(benchCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the persisted statistics log",
		RunE:  runStats,
	}
	statsCmd.Flags().String("config-dir", defaultConfigDir(), "Statistics config directory")
	rootCmd.AddCommand(statsCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the persisted statistics log",
		RunE:  runReset,
	}
	resetCmd.Flags().String("config-dir", defaultConfigDir(), "Statistics config directory")
	rootCmd.AddCommand(resetCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".liquidengine"
	}
	return filepath.Join(home, ".liquidengine", "liquid")
}

// demoBackends builds the dispatch table for the demonstration operation:
// each backend sleeps for a size-dependent, backend-specific duration,
// standing in for a real compute-bound workload so the benchmark has
// something to measure and compare.
func demoBackends() engine.BackendTable {
	costPerUnit := map[engine.Backend]time.Duration{
		engine.OpenCL:          2 * time.Microsecond,
		engine.Unthreaded:      50 * time.Microsecond,
		engine.Threaded:        15 * time.Microsecond,
		engine.ThreadedStatic:  14 * time.Microsecond,
		engine.ThreadedDynamic: 16 * time.Microsecond,
		engine.ThreadedGuided:  15 * time.Microsecond,
		engine.Python:          200 * time.Microsecond,
		engine.Numba:           8 * time.Microsecond,
	}

	table := make(engine.BackendTable, len(costPerUnit))
	for backend, perUnit := range costPerUnit {
		perUnit := perUnit
		table[backend] = func(args []any, kwargs map[string]any) (any, error) {
			size := 64
			if len(args) > 0 {
				if n, ok := args[0].(int); ok {
					size = n
				}
			}
			time.Sleep(time.Duration(size) * perUnit)
			return size, nil
		}
	}
	return table
}

func newDemoEngine(configDir string) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Name:           "DemoOperation",
		ConfigDir:      configDir,
		DefaultBackend: engine.Threaded,
		Backends:       demoBackends(),
		Explore:        true,
		Rand:           lockedRand{rand.New(rand.NewSource(time.Now().UnixNano()))},
		GPUProbe:       func() (bool, bool) { return false, false },
	})
}

type lockedRand struct{ r *rand.Rand }

func (l lockedRand) Float64() float64 { return l.r.Float64() }

func runBenchmark(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	size, _ := cmd.Flags().GetInt("size")

	eng, err := newDemoEngine(configDir)
	if err != nil {
		return err
	}

	results, err := eng.Benchmark(context.Background(), []any{size}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Benchmark results for workload size %s:\n", humanize.Comma(int64(size)))
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %-16s  FAILED: %v\n", r.Backend, r.Err)
			continue
		}
		fmt.Printf("  %-16s  %.6fs\n", r.Backend, r.Elapsed)
	}

	timed := make([]engine.BenchmarkResult, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			timed = append(timed, r)
		}
	}

	if len(timed) > 0 {
		fmt.Printf("Fastest: %s\n", timed[0].Backend)
		fmt.Printf("Slowest: %s\n", timed[len(timed)-1].Backend)
	}
	for i := 0; i < len(timed); i++ {
		for j := i + 1; j < len(timed); j++ {
			ratio := timed[j].Elapsed / timed[i].Elapsed
			fmt.Printf("Ratio %s/%s: %.2f\n", timed[j].Backend, timed[i].Backend, ratio)
		}
	}

	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	eng, err := newDemoEngine(configDir)
	if err != nil {
		return err
	}

	log := eng.GetRunTimesLog()
	designations := make([]string, 0, len(log))
	for d := range log {
		designations = append(designations, string(d))
	}
	sort.Strings(designations)

	for _, d := range designations {
		bucket := log[stats.Designation(d)]
		if len(bucket) == 0 {
			continue
		}
		fmt.Printf("%s:\n", d)
		for fp, agg := range bucket {
			fmt.Printf("  %-60s mean=%.6fs n=%s\n", fp, agg.Mean(), humanize.Comma(int64(agg.N)))
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	if _, err := newDemoEngine(configDir); err != nil {
		return err
	}
	path := filepath.Join(configDir, "DemoOperation.yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	fmt.Println("statistics cleared")
	return nil
}
