package perf

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/config"
	"github.com/ValentinKolb/dLock/lib/idauthority"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/VictoriaMetrics/metrics"
	rmetrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const metricsGroup = "perf"

var (
	// PerfCmd represents the perf command
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Concurrent id allocation benchmark",
		Long:  "Run concurrent workers that allocate id blocks through independent id authorities (each with its own rid and local mediator, like separate processes) and verify that no two blocks overlap.",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
)

func init() {
	key := "workers"
	PerfCmd.Flags().Int(key, 8, util.WrapString("Number of concurrent workers, each with its own id authority"))
	key = "blocks"
	PerfCmd.Flags().Int(key, 25, util.WrapString("Number of blocks every worker allocates"))
	key = "namespace"
	PerfCmd.Flags().String(key, "perf", util.WrapString("Namespace to allocate from"))
	key = "partitions"
	PerfCmd.Flags().Int(key, 1, util.WrapString("Number of partitions the workers spread over"))
	key = "block-size"
	PerfCmd.Flags().Int64(key, 100, util.WrapString("Number of counter values per block"))
	key = "upper-bound"
	PerfCmd.Flags().Int64(key, 1<<40, util.WrapString("Exclusive upper bound of the ids of the namespace"))
	key = "max-partitions"
	PerfCmd.Flags().Int(key, idauthority.DefaultMaxPartitions, util.WrapString("Number of partitions, a power of two"))
	key = "metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print the runtime metrics in Prometheus format after the run"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save the results as CSV"))
}

// result is the outcome of a single benchmark run
type result struct {
	blocks   []idauthority.IDBlock
	errs     map[string]int64
	timer    rmetrics.Timer
	elapsed  time.Duration
	overlaps int
}

func run(cmd *cobra.Command, _ []string) error {
	conf, s, err := util.Setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	workers := viper.GetInt("workers")
	perWorker := viper.GetInt("blocks")
	if workers < 1 || perWorker < 1 {
		return fmt.Errorf("workers and blocks must be positive")
	}

	fmt.Println("Performance testing tool for dLock id allocation")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Workers: %d, blocks per worker: %d\n", workers, perWorker)
	fmt.Println()

	res, err := benchmark(cmd.Context(), conf, s, workers, perWorker)
	if err != nil {
		return err
	}
	printResult(res, workers)

	if viper.GetBool("metrics") {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, false)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, res, conf, workers, perWorker); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if res.overlaps > 0 {
		return fmt.Errorf("found %d overlapping block pairs", res.overlaps)
	}
	return nil
}

// benchmark runs the workers and verifies the allocated blocks
func benchmark(ctx context.Context, conf *config.CoordConfig, s store.IStore, workers, perWorker int) (*result, error) {
	authorities := make([]idauthority.IDAuthority, workers)
	sizer := idauthority.NewStaticSizer(viper.GetInt64("block-size"), viper.GetInt64("upper-bound"))
	for w := range authorities {
		// every worker acts as its own process
		wc := *conf
		if conf.Rid != "" {
			wc.Rid = fmt.Sprintf("%s-w%d", conf.Rid, w)
		}
		ac := wc.AuthorityConfig()
		ac.MaxPartitions = viper.GetInt("max-partitions")
		ac.MetricsGroup = metricsGroup

		a, err := idauthority.NewConsistentKeyIDAuthority(s, sizer, ac)
		if err != nil {
			for _, prev := range authorities[:w] {
				_ = prev.Close()
			}
			return nil, err
		}
		authorities[w] = a
	}
	defer func() {
		for _, a := range authorities {
			_ = a.Close()
		}
	}()

	namespace := viper.GetString("namespace")
	partitions := max(1, viper.GetInt("partitions"))

	registry := rmetrics.NewRegistry()
	timer := rmetrics.GetOrRegisterTimer("idblock.allocate", registry)

	res := &result{errs: make(map[string]int64), timer: timer}
	var mu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				t := time.Now()
				block, err := authorities[w].GetIDBlock(ctx, namespace, (w+i)%partitions)
				timer.UpdateSince(t)

				mu.Lock()
				if err != nil {
					res.errs[classify(err)]++
				} else {
					res.blocks = append(res.blocks, block)
				}
				mu.Unlock()

				if errors.Is(err, idauthority.ErrNamespaceExhausted) || ctx.Err() != nil {
					return
				}
			}
		}(w)
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	res.overlaps = countOverlaps(res.blocks)
	return res, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, idauthority.ErrNamespaceExhausted):
		return "exhausted"
	case errors.Is(err, idauthority.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}

// countOverlaps returns the number of block pairs sharing at least one id
func countOverlaps(blocks []idauthority.IDBlock) int {
	n := 0
	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			if blocks[i].Overlaps(blocks[j]) {
				n++
			}
		}
	}
	return n
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark run in a formatted way
func printResult(res *result, workers int) {
	ps := res.timer.Percentiles([]float64{0.5, 0.99})
	seconds := math.Max(res.elapsed.Seconds(), 1e-9)

	fmt.Printf("%-20s%d\n", "blocks", len(res.blocks))
	fmt.Printf("%-20s%s\n", "elapsed", res.elapsed)
	fmt.Printf("%-20s%.1f blocks/sec (%d workers)\n", "throughput", float64(len(res.blocks))/seconds, workers)
	fmt.Printf("%-20s%s\n", "mean latency", time.Duration(res.timer.Mean()))
	fmt.Printf("%-20s%s\n", "p50 latency", time.Duration(ps[0]))
	fmt.Printf("%-20s%s\n", "p99 latency", time.Duration(ps[1]))
	fmt.Printf("%-20s%s\n", "max latency", time.Duration(res.timer.Max()))

	for _, kind := range sortedKeys(res.errs) {
		fmt.Printf("%-20s%d\n", "errors ("+kind+")", res.errs[kind])
	}

	tags := make(map[int]int64)
	for _, b := range res.blocks {
		tags[b.Tag]++
	}
	fmt.Println("tag distribution:")
	keys := make([]int, 0, len(tags))
	for tag := range tags {
		keys = append(keys, tag)
	}
	sort.Ints(keys)
	for _, tag := range keys {
		fmt.Printf("  tag %-14d%d\n", tag, tags[tag])
	}

	if res.overlaps == 0 {
		fmt.Printf("%-20sok\n", "disjointness")
	} else {
		fmt.Printf("%-20sFAILED (%d overlapping pairs)\n", "disjointness", res.overlaps)
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeResultsToCSV writes the benchmark result to a CSV file
func writeResultsToCSV(csvPath string, res *result, conf *config.CoordConfig, workers, perWorker int) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Backend", "ConflictMode", "TagBits", "Workers", "BlocksPerWorker",
		"Blocks", "Errors", "ElapsedMs", "MeanNs", "P99Ns", "Overlaps",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	var errCount int64
	for _, n := range res.errs {
		errCount += n
	}
	row := []string{
		string(conf.Backend),
		conf.ConflictMode.String(),
		strconv.Itoa(conf.TagBits),
		strconv.Itoa(workers),
		strconv.Itoa(perWorker),
		strconv.Itoa(len(res.blocks)),
		strconv.FormatInt(errCount, 10),
		strconv.FormatInt(res.elapsed.Milliseconds(), 10),
		fmt.Sprintf("%.0f", res.timer.Mean()),
		fmt.Sprintf("%.0f", res.timer.Percentiles([]float64{0.99})[0]),
		strconv.Itoa(res.overlaps),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write result row: %v", err)
	}
	return nil
}
