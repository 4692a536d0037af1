package lock

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/txlock/cmd/util"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for txlock servers",
		Long:    "Runs a set of benchmarks against the configured shard. Every benchmark begins its own transactions and ends them afterwards, so the lock table is empty when the tool is done.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLockPrefix = "__test"
	perfNumThreads = 10
	perfLockSpread = 100
	perfSkip       = make([]string, 0)

	// perfTests lists the benchmarks in the order they are run
	perfTests = []struct {
		name string
		fn   func(b *testing.B, latency gometrics.Timer, failures gometrics.Counter)
	}{
		{"begin-end", benchBeginEnd},
		{"lock-uncontended", benchLockUncontended},
		{"lock-shared", benchLockShared},
		{"lock-contended", benchLockContended},
		{"mixed", benchMixed},
	}
)

// perfResult is the outcome of a single benchmark
type perfResult struct {
	bench    testing.BenchmarkResult
	p50      time.Duration
	p99      time.Duration
	failures int64
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. begin-end,mixed)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "locks"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different lock names to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLockSpread = max(viper.GetInt("locks"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for txlock servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Locks: %d\n", perfLockSpread)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	results := make(map[string]perfResult)

	for _, test := range perfTests {
		latency := gometrics.GetOrRegisterTimer(test.name+".latency", registry)
		failures := gometrics.GetOrRegisterCounter(test.name+".failures", registry)

		bench := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}
			b.SetParallelism(perfNumThreads)
			test.fn(b, latency, failures)
		})

		ps := latency.Percentiles([]float64{0.5, 0.99})
		result := perfResult{
			bench:    bench,
			p50:      time.Duration(ps[0]),
			p99:      time.Duration(ps[1]),
			failures: failures.Count(),
		}
		results[test.name] = result
		printResult(test.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// benchBeginEnd measures the round trip of an empty transaction
func benchBeginEnd(b *testing.B, latency gometrics.Timer, failures gometrics.Counter) {
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			start := time.Now()
			txID, err := rpcContainer.Begin(0)
			if err == nil {
				err = rpcContainer.End(txID)
			}
			latency.UpdateSince(start)
			if err != nil {
				failures.Inc(1)
				log.Printf("(begin-end) - error: %v\n", err)
			}
		}
	})
}

// benchLockUncontended locks names no other goroutine uses
func benchLockUncontended(b *testing.B, latency gometrics.Timer, failures gometrics.Counter) {
	var worker atomic.Int64
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		txID, ok := beginTx("lock-uncontended")
		if !ok {
			return
		}
		defer endTx(txID, "lock-uncontended")

		getName := getLockNames(fmt.Sprintf("lock-uncontended-%d", worker.Add(1)))
		counter := 0
		for pb.Next() {
			name := getName(counter)
			start := time.Now()
			_, err := rpcContainer.Lock(txID, name, lockmgr.Exclusive)
			if err == nil {
				err = rpcContainer.Unlock(txID, name)
			}
			latency.UpdateSince(start)
			if err != nil {
				failures.Inc(1)
				log.Printf("(lock-uncontended) - error: %v\n", err)
			}
			counter++
		}
	})
}

// benchLockShared has all goroutines take shared locks on the same names
func benchLockShared(b *testing.B, latency gometrics.Timer, failures gometrics.Counter) {
	getName := getLockNames("lock-shared")
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		txID, ok := beginTx("lock-shared")
		if !ok {
			return
		}
		defer endTx(txID, "lock-shared")

		counter := 0
		for pb.Next() {
			name := getName(counter)
			start := time.Now()
			_, err := rpcContainer.Lock(txID, name, lockmgr.Shared)
			if err == nil {
				err = rpcContainer.Unlock(txID, name)
			}
			latency.UpdateSince(start)
			if err != nil {
				failures.Inc(1)
				log.Printf("(lock-shared) - error: %v\n", err)
			}
			counter++
		}
	})
}

// benchLockContended runs short transactions that lock two names each.
// Deadlocks are expected and counted as failures.
func benchLockContended(b *testing.B, latency gometrics.Timer, failures gometrics.Counter) {
	getName := getLockNames("lock-contended")
	var worker atomic.Int64
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := int(worker.Add(1))
		for pb.Next() {
			start := time.Now()
			err := contendedTx(getName(counter), getName(counter+1))
			latency.UpdateSince(start)
			if err != nil {
				failures.Inc(1)
				if !errors.Is(err, lockmgr.ErrDeadlock) {
					log.Printf("(lock-contended) - error: %v\n", err)
				}
			}
			counter++
		}
	})
}

// benchMixed cycles through all operations on a shared set of names
func benchMixed(b *testing.B, latency gometrics.Timer, failures gometrics.Counter) {
	getName := getLockNames("mixed")
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		txID, ok := beginTx("mixed")
		if !ok {
			return
		}
		defer func() { endTx(txID, "mixed") }()

		counter := 0
		for pb.Next() {
			name := getName(counter)
			start := time.Now()
			var err error
			switch counter % 4 {
			case 0: // shared lock
				_, err = rpcContainer.Lock(txID, name, lockmgr.Shared)
			case 1: // unlock
				err = rpcContainer.Unlock(txID, getName(counter-1))
			case 2: // size
				_, err = rpcContainer.Size()
			case 3: // new transaction
				endTx(txID, "mixed")
				txID, err = rpcContainer.Begin(0)
			}
			latency.UpdateSince(start)

			if err != nil {
				failures.Inc(1)
				log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
			}
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// contendedTx locks both names exclusively in one transaction
func contendedTx(first, second string) error {
	txID, err := rpcContainer.Begin(0)
	if err != nil {
		return err
	}
	defer endTx(txID, "lock-contended")

	if _, err := rpcContainer.Lock(txID, first, lockmgr.Exclusive); err != nil {
		return err
	}
	_, err = rpcContainer.Lock(txID, second, lockmgr.Exclusive)
	return err
}

func beginTx(test string) (uint64, bool) {
	txID, err := rpcContainer.Begin(0)
	if err != nil {
		log.Printf("(%s) - error beginning transaction: %v\n", test, err)
		return 0, false
	}
	return txID, true
}

func endTx(txID uint64, test string) {
	if err := rpcContainer.End(txID); err != nil && !errors.Is(err, lockmgr.ErrUnknownTx) {
		log.Printf("(%s) - error ending transaction: %v\n", test, err)
	}
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test lock names and a function to pick one
func getLockNames(prefix string) func(int) string {
	names := make([]string, perfLockSpread)
	for i := 0; i < perfLockSpread; i++ {
		names[i] = fmt.Sprintf("%s-%s-%d", perfLockPrefix, prefix, i)
	}

	// Function to get a name by index (with wraparound)
	return func(i int) string {
		if i < 0 {
			i = -i
		}
		return names[i%perfLockSpread]
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\tfailures=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.p50, result.p99, result.failures)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Failures", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "Locks Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			result.p50.String(),
			result.p99.String(),
			strconv.FormatInt(result.failures, 10),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLockSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
