// bench-hibernation loads sharded dictionaries with synthetic keys in stages
// and reports how much heap each Hibernate() call hands back to the runtime.
//
// Usage:
//
//	go run ./scripts/bench-hibernation --keys 1000000 --stage-size 250000 \
//	  --shards 4 --profile-dir docs/profiles/dict-hibernation
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
)

type benchConfig struct {
	totalKeys  int
	stageSize  int
	shards     int
	profileDir string
	cpuProfile bool
}

func parseFlags() benchConfig {
	var cfg benchConfig

	flag.IntVar(&cfg.totalKeys, "keys", 1000000, "total number of synthetic keys")
	flag.IntVar(&cfg.stageSize, "stage-size", 250000, "keys loaded per stage")
	flag.IntVar(&cfg.shards, "shards", 4, "allocator shard count")
	flag.StringVar(&cfg.profileDir, "profile-dir", "", "directory for pprof output (required)")
	flag.BoolVar(&cfg.cpuProfile, "cpu-profile", false, "also capture cpu.prof")
	flag.Parse()

	if cfg.totalKeys <= 0 || cfg.stageSize <= 0 || cfg.shards <= 0 {
		log.Fatal("--keys, --stage-size and --shards must be positive")
	}

	if cfg.profileDir == "" {
		log.Fatal("--profile-dir is required")
	}

	return cfg
}

func main() {
	cfg := parseFlags()

	if err := os.MkdirAll(cfg.profileDir, 0o755); err != nil {
		log.Fatalf("profile dir %s: %v", cfg.profileDir, err)
	}

	if cfg.cpuProfile {
		stop := startCPUProfile(cfg.profileDir)
		defer stop()
	}

	sharded := rbtree.NewShardedAllocator(cfg.shards, 0)

	dicts := make([]*dict.Dict, 0, cfg.shards)
	for _, allocator := range sharded.Shards() {
		dicts = append(dicts, dict.NewWithAllocator(false, allocator))
	}

	b := &bench{cfg: cfg, sharded: sharded, dicts: dicts}
	b.run()
}

// heapPoint is one row of the timeline printed at the end of a run.
type heapPoint struct {
	phase  string
	inUse  uint64
	sys    uint64
	idle   uint64
	gcRuns uint32
}

type bench struct {
	cfg      benchConfig
	sharded  *rbtree.ShardedAllocator
	dicts    []*dict.Dict
	timeline []heapPoint
}

func (b *bench) run() {
	stages := splitStages(b.cfg.totalKeys, b.cfg.stageSize)
	log.Printf("loading %d keys in %d stages of up to %d across %d shards",
		b.cfg.totalKeys, len(stages), b.cfg.stageSize, b.cfg.shards)

	b.record("baseline")
	b.dumpHeap("heap-baseline.prof")

	for n, stage := range stages {
		if n > 0 {
			b.record(fmt.Sprintf("stage %d full", n))
			b.dumpHeap(fmt.Sprintf("heap-stage%d-full.prof", n))

			b.sharded.Hibernate()
			b.record(fmt.Sprintf("stage %d hibernated", n))
			b.dumpHeap(fmt.Sprintf("heap-stage%d-hibernated.prof", n))

			b.sharded.Boot()
			b.record(fmt.Sprintf("stage %d booted", n))
		}

		log.Printf("stage %d/%d: keys %d to %d", n+1, len(stages), stage.from, stage.to)
		b.loadStage(stage)
	}

	b.record("final")
	b.dumpHeap("heap-final.prof")

	// Validation proves the trees survived the hibernation round trips.
	for shard, d := range b.dicts {
		log.Printf("shard %d: %d keys, black depth %d", shard, d.Len(), d.Validate())
	}

	b.record("validated")
	b.dumpHeap("heap-validated.prof")

	b.printTimeline()
	b.printSavings()
}

// record settles the heap with two collections, reads the allocator stats and
// appends one timeline row.
func (b *bench) record(phase string) {
	runtime.GC()
	runtime.GC()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	b.timeline = append(b.timeline, heapPoint{
		phase:  phase,
		inUse:  stats.HeapInuse,
		sys:    stats.HeapSys,
		idle:   stats.HeapIdle,
		gcRuns: stats.NumGC,
	})

	log.Printf("[heap] %-22s inuse %7.1f MB, sys %7.1f MB, idle %7.1f MB",
		phase, mb(stats.HeapInuse), mb(stats.HeapSys), mb(stats.HeapIdle))
}

func (b *bench) dumpHeap(name string) {
	runtime.GC()
	runtime.GC()

	target := filepath.Join(b.cfg.profileDir, name)

	out, err := os.Create(target)
	if err != nil {
		log.Printf("skipping heap profile %s: %v", target, err)

		return
	}
	defer out.Close()

	if err := pprof.WriteHeapProfile(out); err != nil {
		log.Printf("heap profile %s failed: %v", target, err)
	}
}

// loadStage spreads one stage of synthetic keys round-robin over the shard
// dictionaries. Values are the 1-based key indices.
func (b *bench) loadStage(st span) {
	width := len(b.dicts)

	for idx := st.from; idx < st.to; idx++ {
		key := fmt.Appendf(nil, "key-%012d", idx)

		if !b.dicts[idx%width].Insert(key, int64(idx)+1) {
			log.Fatalf("synthetic key %q collided", key)
		}
	}
}

func (b *bench) printTimeline() {
	fmt.Printf("\nheap timeline (MB):\n")
	fmt.Printf("%-24s %9s %9s %9s %6s\n", "phase", "inuse", "sys", "idle", "gc")
	fmt.Println(strings.Repeat("-", 61))

	for _, pt := range b.timeline {
		fmt.Printf("%-24s %9.1f %9.1f %9.1f %6d\n",
			pt.phase, mb(pt.inUse), mb(pt.sys), mb(pt.idle), pt.gcRuns)
	}
}

// printSavings pairs each "stage N full" row with the "stage N hibernated" row
// that follows it and reports the released heap.
func (b *bench) printSavings() {
	fmt.Printf("\nhibernation savings:\n")

	for i := 1; i < len(b.timeline); i++ {
		prev, curr := b.timeline[i-1], b.timeline[i]
		if !strings.HasSuffix(prev.phase, "full") || !strings.HasSuffix(curr.phase, "hibernated") {
			continue
		}

		freed := mb(prev.inUse) - mb(curr.inUse)
		share := 100 * freed / mb(prev.inUse)
		fmt.Printf("  %s: %.1f MB freed (%.1f%%)\n", curr.phase, freed, share)
	}
}

func startCPUProfile(dir string) func() {
	target := filepath.Join(dir, "cpu.prof")

	out, err := os.Create(target)
	if err != nil {
		log.Fatalf("cpu profile %s: %v", target, err)
	}

	if err := pprof.StartCPUProfile(out); err != nil {
		log.Fatalf("cpu profile start: %v", err)
	}

	log.Printf("cpu profile -> %s", target)

	return func() {
		pprof.StopCPUProfile()
		out.Close()
	}
}

func mb(v uint64) float64 {
	return float64(v) / 1e6
}

// span is a half-open range of key indices.
type span struct {
	from int
	to   int
}

func splitStages(total, size int) []span {
	spans := make([]span, 0, (total+size-1)/size)

	for from := 0; from < total; from += size {
		spans = append(spans, span{from: from, to: min(from+size, total)})
	}

	return spans
}
