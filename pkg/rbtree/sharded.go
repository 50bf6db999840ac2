package rbtree

import (
	"hash/fnv"
	"sync"
)

// hibernationThresholdFloor keeps a per-shard threshold from rounding down to
// nothing when the configured total is split across many shards.
const hibernationThresholdFloor = 1000

// ShardedAllocator is a fixed pool of independent arenas. Keys route to a
// shard by FNV-1a hash, so repeated routing for one key always lands on the
// shard that holds it, and shards never contend with each other.
type ShardedAllocator struct {
	shards []*Allocator
}

// NewShardedAllocator creates shardCount arenas. A positive
// hibernationThreshold is split evenly across them.
func NewShardedAllocator(shardCount, hibernationThreshold int) *ShardedAllocator {
	shardCount = max(shardCount, 1)

	perShard := max(hibernationThreshold, 0) / shardCount
	if perShard == 0 && hibernationThreshold > 0 {
		perShard = hibernationThresholdFloor
	}

	pool := &ShardedAllocator{shards: make([]*Allocator, shardCount)}

	for idx := range pool.shards {
		shard := NewAllocator()
		shard.HibernationThreshold = perShard
		pool.shards[idx] = shard
	}

	return pool
}

// GetShard returns the arena responsible for the given key.
func (pool *ShardedAllocator) GetShard(key []byte) *Allocator {
	digest := fnv.New32a()
	digest.Write(key)

	return pool.shards[digest.Sum32()%uint32(len(pool.shards))]
}

// Shards returns all underlying arenas.
func (pool *ShardedAllocator) Shards() []*Allocator {
	return pool.shards
}

// Hibernate compresses every shard arena in parallel. The per-shard threshold
// is lifted for the duration so small shards compress too.
func (pool *ShardedAllocator) Hibernate() {
	pool.fanOut(func(shard *Allocator) {
		saved := shard.HibernationThreshold
		shard.HibernationThreshold = 0

		shard.Hibernate()
		shard.HibernationThreshold = saved
	})
}

// Boot restores every shard arena in parallel.
func (pool *ShardedAllocator) Boot() {
	pool.fanOut((*Allocator).Boot)
}

func (pool *ShardedAllocator) fanOut(op func(*Allocator)) {
	var wg sync.WaitGroup

	for _, shard := range pool.shards {
		wg.Add(1)

		go func() {
			defer wg.Done()
			op(shard)
		}()
	}

	wg.Wait()
}
