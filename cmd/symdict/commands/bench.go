package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/observability"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
	"github.com/Sumatoshi-tech/symdict/pkg/safeconv"
)

// benchShuffleSeed makes --random runs comparable across invocations.
const benchShuffleSeed = 42

// ErrBadKeyCount is returned when the benchmark key count is not positive.
var ErrBadKeyCount = errors.New("keys must be positive")

// BenchCommand holds configuration for the bench command.
type BenchCommand struct {
	keys      int
	shards    int
	random    bool
	hibernate bool
	diagAddr  string

	app *App
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(app *App) *cobra.Command {
	bc := &BenchCommand{app: app}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark sharded dictionary inserts",
		Long: "Insert generated keys across allocator shards, one dictionary and one\n" +
			"goroutine per shard, and report insert throughput.",
		Args: cobra.NoArgs,
		RunE: bc.run,
	}

	cmd.Flags().IntVarP(&bc.keys, "keys", "n", 100000, "Number of keys to insert")
	cmd.Flags().IntVar(&bc.shards, "shards", 0, "Number of allocator shards (0 = config value)")
	cmd.Flags().BoolVar(&bc.random, "random", false, "Insert keys in shuffled order instead of ascending")
	cmd.Flags().BoolVar(&bc.hibernate, "hibernate", false, "Hibernate and boot all shards after the insert phase")
	cmd.Flags().StringVar(&bc.diagAddr, "diag-addr", "", "Diagnostics HTTP listen address (empty = config value)")

	return cmd
}

func (bc *BenchCommand) run(cmd *cobra.Command, _ []string) error {
	if bc.keys <= 0 {
		return fmt.Errorf("%w: %d", ErrBadKeyCount, bc.keys)
	}

	return bc.app.runOp(cmd, "symdict.bench", func(ctx context.Context) error {
		shardCount := bc.shards
		if shardCount <= 0 {
			shardCount = bc.app.shardCount()
		}

		if addr := bc.app.diagAddr(bc.diagAddr); addr != "" {
			server, err := observability.NewDiagnosticsServer(addr)
			if err != nil {
				return err
			}

			defer func() {
				closeErr := server.Close()
				if closeErr != nil {
					bc.app.logger().Warn("diagnostics server close failed", slog.Any("error", closeErr))
				}
			}()

			bc.app.progressf(cmd, "diagnostics server listening addr=%s", server.Addr())
		}

		sharded := rbtree.NewShardedAllocator(shardCount, bc.app.hibernationThreshold())

		dicts := make([]*dict.Dict, shardCount)
		for idx, allocator := range sharded.Shards() {
			dicts[idx] = dict.NewWithAllocator(false, allocator)
		}

		keys := benchKeys(bc.keys, bc.random)
		out := cmd.OutOrStdout()

		bc.app.progressf(cmd, "inserting keys total=%d shards=%d random=%t", bc.keys, shardCount, bc.random)

		elapsed := bc.insertPhase(ctx, dicts, keys)

		total := 0

		var rotations, recolorings int64

		for _, d := range dicts {
			total += d.Len()
			stats := d.Stats()
			rotations += safeconv.SafeInt64(stats.Rotations)
			recolorings += safeconv.SafeInt64(stats.Recolorings)
		}

		bc.app.metrics.RecordRebalance(ctx, rotations, recolorings)

		throughput := float64(total) / elapsed.Seconds()
		fmt.Fprintf(out, "inserted %s keys across %d shards in %s (%s keys/s, %s/op)\n",
			humanize.Comma(int64(total)), shardCount, elapsed.Round(time.Millisecond),
			humanize.Comma(int64(throughput)), elapsed/time.Duration(total))

		if bc.hibernate {
			err := bc.hibernatePhase(ctx, cmd, sharded, dicts)
			if err != nil {
				return err
			}
		}

		for _, d := range dicts {
			nodes := int64(d.Len())
			d.Close()
			bc.app.metrics.RecordTeardown(ctx, nodes)
		}

		return nil
	})
}

// insertPhase runs one goroutine per shard, each inserting its round-robin
// partition of the key set, and returns the wall-clock insert time.
func (bc *BenchCommand) insertPhase(ctx context.Context, dicts []*dict.Dict, keys [][]byte) time.Duration {
	shardCount := len(dicts)
	startedAt := time.Now()

	var wg sync.WaitGroup

	wg.Add(shardCount)

	for idx := range shardCount {
		go func(shard int) {
			defer wg.Done()

			for keyIdx := shard; keyIdx < len(keys); keyIdx += shardCount {
				inserted := dicts[shard].Insert(keys[keyIdx], int64(keyIdx)+1)
				bc.app.metrics.RecordInsert(ctx, inserted)
			}
		}(idx)
	}

	wg.Wait()

	elapsed := time.Since(startedAt)
	bc.app.metrics.RecordBatch(ctx, elapsed)

	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}

	return elapsed
}

// hibernatePhase compresses every shard arena, boots them back, and verifies
// each dictionary afterwards.
func (bc *BenchCommand) hibernatePhase(
	ctx context.Context,
	cmd *cobra.Command,
	sharded *rbtree.ShardedAllocator,
	dicts []*dict.Dict,
) error {
	startedAt := time.Now()

	sharded.Hibernate()

	for range sharded.Shards() {
		bc.app.metrics.RecordHibernation(ctx)
	}

	sharded.Boot()

	fmt.Fprintf(cmd.OutOrStdout(), "hibernate and boot round trip in %s\n", time.Since(startedAt).Round(time.Millisecond))

	for shard, d := range dicts {
		_, err := checkedValidate(d)
		if err != nil {
			return fmt.Errorf("shard %d: %w", shard, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "all %d shards verified after boot\n", len(dicts))

	return nil
}

// benchKeys generates count fixed-width ascending keys, optionally shuffled
// with a fixed seed.
func benchKeys(count int, random bool) [][]byte {
	keys := make([][]byte, count)
	for idx := range count {
		keys[idx] = fmt.Appendf(nil, "key-%08d", idx)
	}

	if random {
		rng := rand.New(rand.NewPCG(benchShuffleSeed, 0)) //nolint:gosec // shuffle order does not need crypto randomness
		rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	}

	return keys
}
