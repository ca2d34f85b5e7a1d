// Command table-bench measures the throughput of the paged table
// storage engine: bulk load, sequential and random point reads, point
// writes, and range deletes.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/xylemdb/xylem/pkg/config"
	"github.com/xylemdb/xylem/pkg/stats"
	"github.com/xylemdb/xylem/pkg/table"
)

var (
	benchmarkType = flag.String("type", "all", "Benchmark to run (load, sequential-read, random-read, write, delete, or all)")
	numRecords    = flag.Int("records", 1_000_000, "Number of records to load")
	batchSize     = flag.Int("batch", 4096, "Records per insert batch")
	numOps        = flag.Int("ops", 500_000, "Number of point operations")
	dataDir       = flag.String("data-dir", "./bench-data", "Directory to store benchmark data")
	blockPower    = flag.Uint("block-power", config.DefaultBlockPower, "Block size as a power of two")
	nodePower     = flag.Uint("node-power", config.DefaultNodePower, "Record size as a power of two")
	fillFactor    = flag.Float64("fill", config.DefaultFillFactor, "Fill factor for fresh blocks")
	resultsFile   = flag.String("results", "", "File to write results to (in addition to stdout)")
	cpuProfile    = flag.String("cpu-profile", "", "Write CPU profile to file")
)

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if _, err := os.Stat(*dataDir); err == nil {
		fmt.Println("Cleaning previous benchmark data...")
		if err := os.RemoveAll(*dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clean benchmark directory: %v\n", err)
		}
	}

	cfg := &config.Config{
		Version:    config.CurrentManifestVersion,
		BlockPower: *blockPower,
		NodePower:  *nodePower,
		FillFactor: *fillFactor,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	collector := stats.NewCollector()
	tbl, err := table.Create(cfg, *dataDir, "bench", table.WithStats(collector))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create table: %v\n", err)
		os.Exit(1)
	}
	defer tbl.Close()

	results := []string{
		fmt.Sprintf("Table Benchmark Report (%s)", time.Now().Format(time.RFC3339)),
		fmt.Sprintf("Block size: %d, record size: %d, fill factor: %.2f",
			cfg.BlockSize(), cfg.RecordSize(), cfg.FillFactor),
	}

	runAll := *benchmarkType == "all"
	// every phase needs loaded data
	if runAll || *benchmarkType == "load" || tbl.Size() == 0 {
		results = append(results, runLoad(tbl, cfg))
	}
	if runAll || *benchmarkType == "sequential-read" {
		results = append(results, runSequentialRead(tbl))
	}
	if runAll || *benchmarkType == "random-read" {
		results = append(results, runRandomRead(tbl))
	}
	if runAll || *benchmarkType == "write" {
		results = append(results, runWrite(tbl))
	}
	if runAll || *benchmarkType == "delete" {
		results = append(results, runDelete(tbl))
	}

	st := collector.GetStats()
	results = append(results, fmt.Sprintf(
		"Block I/O: %d reads, %d writes, %d allocated; %d bytes read, %d bytes written",
		st.Counts[stats.OpBlockRead], st.Counts[stats.OpBlockWrite],
		st.Counts[stats.OpBlockAlloc], st.BytesRead, st.BytesWritten))

	report := strings.Join(results, "\n")
	fmt.Println(report)
	if *resultsFile != "" {
		if err := os.WriteFile(*resultsFile, []byte(report+"\n"), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results: %v\n", err)
		}
	}
}

func runLoad(tbl *table.DiskTable, cfg *config.Config) string {
	recordSize := cfg.RecordSize()
	rnd := rand.New(rand.NewSource(0))
	batch := make([]byte, *batchSize*recordSize)

	start := time.Now()
	loaded := 0
	for loaded < *numRecords {
		n := min(*batchSize, *numRecords-loaded)
		rnd.Read(batch[:n*recordSize])
		if err := tbl.Insert(tbl.Size()-1, batch[:n*recordSize]); err != nil {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
			os.Exit(1)
		}
		loaded += n
	}
	if err := tbl.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("load: %d records in %.2fs (%.0f records/s, %d blocks)",
		loaded, elapsed.Seconds(), float64(loaded)/elapsed.Seconds(), tbl.Blocks())
}

func runSequentialRead(tbl *table.DiskTable) string {
	size := tbl.Size()
	ops := min(*numOps, size)

	start := time.Now()
	var sink uint64
	for pre := 0; pre < ops; pre++ {
		v, err := tbl.Read4(pre, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
			os.Exit(1)
		}
		sink += uint64(v)
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("sequential-read: %d ops in %.2fs (%.0f ops/s, checksum %x)",
		ops, elapsed.Seconds(), float64(ops)/elapsed.Seconds(), sink&0xFFFF)
}

func runRandomRead(tbl *table.DiskTable) string {
	size := tbl.Size()
	rnd := rand.New(rand.NewSource(1))

	start := time.Now()
	var sink uint64
	for i := 0; i < *numOps; i++ {
		v, err := tbl.Read4(rnd.Intn(size), 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
			os.Exit(1)
		}
		sink += uint64(v)
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("random-read: %d ops in %.2fs (%.0f ops/s, checksum %x)",
		*numOps, elapsed.Seconds(), float64(*numOps)/elapsed.Seconds(), sink&0xFFFF)
}

func runWrite(tbl *table.DiskTable) string {
	size := tbl.Size()
	rnd := rand.New(rand.NewSource(2))

	start := time.Now()
	for i := 0; i < *numOps; i++ {
		if err := tbl.Write4(rnd.Intn(size), 0, rnd.Uint32()); err != nil {
			fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := tbl.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("write: %d ops in %.2fs (%.0f ops/s)",
		*numOps, elapsed.Seconds(), float64(*numOps)/elapsed.Seconds())
}

func runDelete(tbl *table.DiskTable) string {
	rnd := rand.New(rand.NewSource(3))
	const rangeLen = 64

	start := time.Now()
	deleted := 0
	for tbl.Size() > rangeLen && deleted < *numOps {
		first := rnd.Intn(tbl.Size() - rangeLen)
		if err := tbl.Delete(first, rangeLen); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		deleted += rangeLen
	}
	if err := tbl.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Flush failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("delete: %d records in ranges of %d in %.2fs (%.0f records/s, %d blocks left)",
		deleted, rangeLen, elapsed.Seconds(), float64(deleted)/elapsed.Seconds(), tbl.Blocks())
}
