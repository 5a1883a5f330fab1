package trie

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var cacheLabels = []string{"shard_id", "is_view"}

var (
	shardCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_hits_total",
		Help: "Trie node reads served by the shard cache",
	}, cacheLabels)
	shardCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_misses_total",
		Help: "Trie node reads missing the shard cache",
	}, cacheLabels)
	shardCacheTooLarge = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_too_large_total",
		Help: "Values not cached because they exceed the cached value size limit",
	}, cacheLabels)
	shardCachePopHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_pop_hits_total",
		Help: "Deletions queue keys found and evicted from the shard cache",
	}, cacheLabels)
	shardCachePopMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_pop_misses_total",
		Help: "Deletions queue keys already gone from the shard cache",
	}, cacheLabels)
	shardCachePopLRU = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_pop_lru_total",
		Help: "Least recently used evictions from the shard cache",
	}, cacheLabels)
	shardCacheGCPopMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_gc_pop_misses_total",
		Help: "Deletions requested for keys absent from the shard cache",
	}, cacheLabels)
	shardCacheSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_size",
		Help: "Number of entries in the shard cache",
	}, cacheLabels)
	shardCacheCurrentTotalSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_current_total_size",
		Help: "Total size in bytes of values in the shard cache",
	}, cacheLabels)
	shardCacheDeletionsSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "shard_cache_deletions_size",
		Help: "Number of keys in the shard cache deletions queue",
	}, cacheLabels)
	chunkCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "chunk_cache_hits_total",
		Help: "Trie node reads served by the chunk cache",
	}, cacheLabels)
	chunkCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "chunk_cache_misses_total",
		Help: "Trie node reads missing the chunk cache",
	}, cacheLabels)
	chunkCacheSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "chunk_cache_size",
		Help: "Number of entries in the chunk cache",
	}, cacheLabels)

	prefetchHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_hits_total",
		Help: "Staging area lookups that found a prefetched value",
	})
	prefetchPending = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_pending_total",
		Help: "Staging area lookups that found a read in flight",
	})
	prefetchMemoryLimit = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_memory_limit_total",
		Help: "Slot reservations rejected by the staging memory budget",
	})
	prefetchSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_success_total",
		Help: "Prefetch requests that loaded their trie key",
	})
	prefetchFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_failure_total",
		Help: "Prefetch requests that failed",
	})
	prefetchStagedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octopus", Subsystem: "trie", Name: "prefetch_staged_bytes",
		Help: "Bytes reserved or held by the prefetch staging area",
	})
)

func init() {
	prometheus.MustRegister(
		shardCacheHits, shardCacheMisses, shardCacheTooLarge,
		shardCachePopHits, shardCachePopMisses, shardCachePopLRU, shardCacheGCPopMisses,
		shardCacheSize, shardCacheCurrentTotalSize, shardCacheDeletionsSize,
		chunkCacheHits, chunkCacheMisses, chunkCacheSize,
		prefetchHits, prefetchPending, prefetchMemoryLimit,
		prefetchSuccess, prefetchFailure, prefetchStagedBytes,
	)
}

// metricLabels返回(shard_id, is_view)标签值。
func metricLabels(shardID uint32, isView bool) prometheus.Labels {
	view := "0"
	if isView {
		view = "1"
	}
	return prometheus.Labels{"shard_id": strconv.FormatUint(uint64(shardID), 10), "is_view": view}
}

// shardCacheMetrics在构造时取出带标签的计数器，避免热路径上的查找。
type shardCacheMetrics struct {
	tooLarge      prometheus.Counter
	popHits       prometheus.Counter
	popMisses     prometheus.Counter
	popLRU        prometheus.Counter
	gcPopMisses   prometheus.Counter
	deletionsSize prometheus.Gauge
}

func newShardCacheMetrics(shardID uint32, isView bool) shardCacheMetrics {
	labels := metricLabels(shardID, isView)
	return shardCacheMetrics{
		tooLarge:      shardCacheTooLarge.With(labels),
		popHits:       shardCachePopHits.With(labels),
		popMisses:     shardCachePopMisses.With(labels),
		popLRU:        shardCachePopLRU.With(labels),
		gcPopMisses:   shardCacheGCPopMisses.With(labels),
		deletionsSize: shardCacheDeletionsSize.With(labels),
	}
}

type cachingStorageMetrics struct {
	chunkCacheHits         prometheus.Counter
	chunkCacheMisses       prometheus.Counter
	shardCacheHits         prometheus.Counter
	shardCacheMisses       prometheus.Counter
	shardCacheTooLarge     prometheus.Counter
	shardCacheSize         prometheus.Gauge
	chunkCacheSize         prometheus.Gauge
	shardCacheCurrentTotal prometheus.Gauge
}

func newCachingStorageMetrics(shardID uint32, isView bool) cachingStorageMetrics {
	labels := metricLabels(shardID, isView)
	return cachingStorageMetrics{
		chunkCacheHits:         chunkCacheHits.With(labels),
		chunkCacheMisses:       chunkCacheMisses.With(labels),
		shardCacheHits:         shardCacheHits.With(labels),
		shardCacheMisses:       shardCacheMisses.With(labels),
		shardCacheTooLarge:     shardCacheTooLarge.With(labels),
		shardCacheSize:         shardCacheSize.With(labels),
		chunkCacheSize:         chunkCacheSize.With(labels),
		shardCacheCurrentTotal: shardCacheCurrentTotalSize.With(labels),
	}
}
