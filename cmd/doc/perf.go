package doc

import (
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/docstore"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the document store of a ddoc server",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfModelPrefix = "__perf"
	perfThreads     = 10
	perfOps         = 1000
	perfDocSizeB    = 256
	perfSkip        = make([]string, 0)

	// perfTests lists the benchmarks in the order they run
	perfTests = []perfTest{
		{name: "post", op: perfPost},
		{name: "put", prepare: prepareDocs, op: perfPut},
		{name: "get", prepare: prepareDocs, op: perfGet},
		{name: "get-all", prepare: prepareDocs, op: perfGetAll, maxOps: 10},
		{name: "mset", prepare: prepareDocs, op: perfMSet},
		{name: "remove", prepare: prepareDocs, op: perfRemove},
		{name: "mixed", prepare: prepareDocs, op: perfMixed},
	}
)

func init() {
	key := "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. post,get-all)"))
	key = "threads"
	perfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "ops"
	perfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per goroutine and benchmark"))
	key = "doc-size"
	perfCmd.Flags().Int(key, 256, util.WrapString("Size of the payload of each document (in bytes)"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfDocSizeB = max(viper.GetInt("doc-size"), 0)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTest is one benchmark. op runs operation i of goroutine worker on model.
// maxOps caps the operations per goroutine for expensive benchmarks.
type perfTest struct {
	name    string
	prepare func(model string) error
	op      func(model string, worker, i int) error
	maxOps  int
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	name    string
	skipped bool
	timer   gometrics.Timer
	errors  gometrics.Counter
	elapsed time.Duration
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for ddoc document stores")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Namespace: %s\n", docStore.Namespace())
	fmt.Printf("Guard: %s\n", viper.GetString("guard"))
	fmt.Printf("Threads: %d, Ops per thread: %d, Doc size: %d B\n", perfThreads, perfOps, perfDocSizeB)
	fmt.Println()

	fmt.Println("starting tests...")
	fmt.Printf("%-10s%10s%10s%14s%14s%14s%14s%14s\n", "test", "ops", "errors", "ops/sec", "mean", "p50", "p95", "p99")

	registry := gometrics.NewRegistry()
	results := make([]perfResult, 0, len(perfTests))

	for _, test := range perfTests {
		result := runPerfTest(registry, test)
		results = append(results, result)
		printPerfResult(result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runPerfTest runs one benchmark on its own model and flushes the model afterwards
func runPerfTest(registry gometrics.Registry, test perfTest) perfResult {
	result := perfResult{
		name:   test.name,
		timer:  gometrics.GetOrRegisterTimer(test.name, registry),
		errors: gometrics.GetOrRegisterCounter(test.name+".errors", registry),
	}
	if slices.Contains(perfSkip, test.name) {
		result.skipped = true
		return result
	}

	model := fmt.Sprintf("%s-%s", perfModelPrefix, test.name)
	defer func() {
		if err := docStore.FlushModel(model); err != nil {
			fmt.Printf("(%s) - error flushing model: %v\n", test.name, err)
		}
	}()

	if test.prepare != nil {
		if err := test.prepare(model); err != nil {
			fmt.Printf("(%s) - error preparing documents: %v\n", test.name, err)
			result.skipped = true
			return result
		}
	}

	ops := perfOps
	if test.maxOps > 0 {
		ops = min(ops, test.maxOps)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < perfThreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				opStart := time.Now()
				err := test.op(model, worker, i)
				result.timer.UpdateSince(opStart)
				if err != nil {
					result.errors.Inc(1)
				}
			}
		}(w)
	}
	wg.Wait()
	result.elapsed = time.Since(start)

	return result
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// perfDocID returns the id of document i of a worker. Documents are spread over perfOps ids per worker.
func perfDocID(worker, i int) string {
	return fmt.Sprintf("w%d-%d", worker, i%perfOps)
}

func perfDocument(id string) docstore.Document {
	return docstore.Document{
		docStore.IDProperty(): id,
		"payload":             strings.Repeat("x", perfDocSizeB),
		"created":             time.Now().UnixNano(),
	}
}

func prepareDocs(model string) error {
	for w := 0; w < perfThreads; w++ {
		pairs := make([]any, 0, 2*perfOps)
		for i := 0; i < perfOps; i++ {
			id := perfDocID(w, i)
			pairs = append(pairs, id, perfDocument(id))
		}
		if err := docStore.MSet(pairs, model); err != nil {
			return err
		}
	}
	return nil
}

func perfPost(model string, _, _ int) error {
	_, err := docStore.Post(docstore.Document{"payload": strings.Repeat("x", perfDocSizeB)}, model)
	return err
}

func perfPut(model string, worker, i int) error {
	_, err := docStore.Put(docstore.Document{docStore.IDProperty(): perfDocID(worker, i), "counter": i}, model)
	return err
}

func perfGet(_ string, worker, i int) error {
	_, err := docStore.GetByKey(perfDocID(worker, i))
	return err
}

// perfGetAll reads the whole model, which holds threads*ops documents
func perfGetAll(model string, _, _ int) error {
	_, err := docStore.GetAll(model)
	return err
}

func perfMSet(model string, worker, i int) error {
	id := perfDocID(worker, i)
	return docStore.MSet([]any{id, perfDocument(id)}, model)
}

func perfRemove(model string, worker, i int) error {
	return docStore.Remove(perfDocID(worker, i), model)
}

func perfMixed(model string, worker, i int) error {
	id := perfDocID(worker, i)
	switch i % 4 {
	case 0:
		_, err := docStore.Set(id, perfDocument(id), model)
		return err
	case 1:
		_, err := docStore.GetByKey(id)
		return err
	case 2:
		_, err := docStore.Put(docstore.Document{docStore.IDProperty(): id, "counter": i}, model)
		return err
	default:
		_, err := docStore.Keys(model)
		return err
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

var perfPercentiles = []float64{0.5, 0.95, 0.99}

func opsPerSec(result perfResult) float64 {
	if result.elapsed <= 0 {
		return 0
	}
	return float64(result.timer.Count()) / result.elapsed.Seconds()
}

// printPerfResult prints the result of a benchmark in a formatted way
func printPerfResult(result perfResult) {
	if result.skipped {
		fmt.Printf("%-10sskipped\n", result.name)
		return
	}
	snap := result.timer.Snapshot()
	ps := snap.Percentiles(perfPercentiles)
	fmt.Printf("%-10s%10d%10d%14.0f%14s%14s%14s%14s\n",
		result.name, snap.Count(), result.errors.Count(), opsPerSec(result),
		time.Duration(snap.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	header := []string{
		"Test", "Ops", "Errors", "OpsPerSec", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "MaxNs", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport", "Guard",
		"Threads", "OpsPerThread", "DocSizeB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, result := range results {
		snap := result.timer.Snapshot()
		ps := snap.Percentiles(perfPercentiles)

		row := []string{
			result.name,
			strconv.FormatInt(snap.Count(), 10),
			strconv.FormatInt(result.errors.Count(), 10),
			fmt.Sprintf("%.0f", opsPerSec(result)),
			fmt.Sprintf("%.0f", snap.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(snap.Max(), 10),
			strconv.FormatBool(result.skipped),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			viper.GetString("guard"),
			strconv.Itoa(perfThreads),
			strconv.Itoa(perfOps),
			strconv.Itoa(perfDocSizeB),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", result.name, err)
		}
	}

	return nil
}
