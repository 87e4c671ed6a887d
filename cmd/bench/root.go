package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kvfs/cmd/util"
	"github.com/ValentinKolb/kvfs/lib/pager"
	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd runs page benchmarks through the pager
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Performance testing tool for the vfs",
		Long: `Runs page read and write benchmarks through the pager and the vfs on the
configured store. Each benchmark works on its own file, which is deleted afterwards.`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	benchFile    = "__bench"
	benchThreads = 10
	benchPages   = 100
	benchSkip    = make([]string, 0)
)

func init() {
	key := "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,mixed)"))
	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "pages"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different pages to use for the tests"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "print-metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print the vfs and bridge metrics in Prometheus text format after the run"))
}

// benchmark is one named benchmark with its latency timer
type benchmark struct {
	name   string
	result testing.BenchmarkResult
	timer  gometrics.Timer
}

func run(cmd *cobra.Command, _ []string) error {
	env, err := util.Setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	benchThreads = viper.GetInt("threads")
	benchPages = viper.GetInt("pages")
	if s := viper.GetString("skip"); s != "" {
		benchSkip = strings.Split(s, ",")
	}
	if benchPages <= 0 {
		return fmt.Errorf("pages must be positive, got %d", benchPages)
	}

	fmt.Println("Performance testing tool for the vfs")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(env.Config.String())
	fmt.Printf("Threads: %d, Pages: %d\n\n", benchThreads, benchPages)

	registry := gometrics.NewRegistry()
	ctx := cmd.Context()
	var results []benchmark

	runBench := func(name string, fn func(ctx context.Context, c *pager.Conn, page []byte, pgno uint32) error) error {
		if shouldSkip(name) {
			return nil
		}
		file := fmt.Sprintf("%s/%s", benchFile, name)
		c, err := pager.Open(ctx, env.Registry, file, pager.OpenReadWrite|pager.OpenCreate, "",
			pager.WithPageSize(env.Config.PageSize))
		if err != nil {
			return err
		}
		defer env.VFS.Delete(ctx, file)
		defer c.Close()

		if err := fill(ctx, c); err != nil {
			return err
		}

		timer := gometrics.GetOrRegisterTimer(name, registry)
		result := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(benchThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
				page := make([]byte, c.PageSize())
				for pb.Next() {
					pgno := uint32(rnd.Intn(benchPages)) + 1
					start := time.Now()
					if err := fn(ctx, c, page, pgno); err != nil {
						fmt.Fprintf(os.Stderr, "(%s) - error on page %d: %v\n", name, pgno, err)
					}
					timer.UpdateSince(start)
				}
			})
		})

		results = append(results, benchmark{name: name, result: result, timer: timer})
		printResult(name, result, timer)
		return nil
	}

	if err := runBench("read", readPage); err != nil {
		return err
	}
	if err := runBench("write", writePage); err != nil {
		return err
	}
	if err := runBench("mixed", func(ctx context.Context, c *pager.Conn, page []byte, pgno uint32) error {
		if pgno%4 == 0 {
			return writePage(ctx, c, page, pgno)
		}
		return readPage(ctx, c, page, pgno)
	}); err != nil {
		return err
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if viper.GetBool("print-metrics") {
		fmt.Println()
		vm.WritePrometheus(os.Stdout, false)
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmarked operations
// --------------------------------------------------------------------------

func readPage(ctx context.Context, c *pager.Conn, _ []byte, pgno uint32) error {
	_, err := c.ReadPage(ctx, pgno)
	return err
}

// writePage runs a complete write transaction for one page. Concurrent writers
// on the same connection get ErrTxnActive, so the write is retried.
func writePage(ctx context.Context, c *pager.Conn, page []byte, pgno uint32) error {
	page[0] = byte(pgno)
	for {
		err := c.Begin(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, pager.ErrTxnActive) {
			return err
		}
		time.Sleep(time.Microsecond * 50)
	}
	if err := c.WritePage(ctx, pgno, page); err != nil {
		_ = c.Rollback(ctx)
		return err
	}
	return c.Commit(ctx)
}

// fill writes all benchmark pages once.
func fill(ctx context.Context, c *pager.Conn) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}
	page := make([]byte, c.PageSize())
	for pgno := 1; pgno <= benchPages; pgno++ {
		if err := c.WritePage(ctx, uint32(pgno), page); err != nil {
			_ = c.Rollback(ctx)
			return err
		}
	}
	return c.Commit(ctx)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range benchSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.N == 0 {
		fmt.Printf("%-8s: no iterations\n", test)
		return
	}
	nsPerOp := float64(result.T.Nanoseconds()) / float64(result.N)
	opsPerSec := 1e9 / nsPerOp
	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-8s: %10d ops, %12.0f ops/sec, %10.0f ns/op, p50 %s, p95 %s, p99 %s\n",
		test, result.N, opsPerSec, nsPerOp,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

func writeResultsToCSV(path string, results []benchmark) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"test", "ops", "ns_per_op", "p50_ns", "p95_ns", "p99_ns", "threads", "pages"}); err != nil {
		return err
	}
	for _, r := range results {
		if r.result.N == 0 {
			continue
		}
		ps := r.timer.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			r.name,
			strconv.Itoa(r.result.N),
			strconv.FormatInt(r.result.NsPerOp(), 10),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchPages),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}
