package trie

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putValue(cache *trieCacheInner, value []byte) {
	cache.put(crypto.Keccak256Hash(value), value)
}

// checkTotalSize校验totalSize等于所有条目长度之和。
func checkTotalSize(t *testing.T, cache *trieCacheInner) {
	t.Helper()
	var sum uint64
	for _, key := range cache.cache.Keys() {
		value, _ := cache.cache.Peek(key)
		sum += uint64(len(value.([]byte)))
	}
	if sum != cache.totalSize {
		t.Fatalf("total size mismatch: tracked %d, actual %d", cache.totalSize, sum)
	}
}

func TestTrieCacheSizeLimit(t *testing.T) {
	cache := newTrieCacheInner(100, 100, 5, 0, false)
	// 前三次写入之前都不会触发总大小的条件
	putValue(cache, []byte{1, 1})
	assert.Equal(t, uint64(2), cache.totalSize)
	putValue(cache, []byte{1, 1, 1})
	assert.Equal(t, uint64(5), cache.totalSize)
	putValue(cache, []byte{1})
	assert.Equal(t, uint64(6), cache.totalSize)

	// 再写入之前的值，最久未使用的值被淘汰
	putValue(cache, []byte{1, 1, 1})
	assert.Equal(t, uint64(4), cache.totalSize)
	assert.False(t, cache.contains(crypto.Keccak256Hash([]byte{1, 1})))

	keys := cache.cache.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, crypto.Keccak256Hash([]byte{1}), keys[0])
	assert.Equal(t, crypto.Keccak256Hash([]byte{1, 1, 1}), keys[1])
	checkTotalSize(t, cache)
}

func TestTrieCacheDeletionsQueue(t *testing.T) {
	cache := newTrieCacheInner(100, 2, 100, 0, false)
	var (
		one    = []byte{1}
		oneOne = []byte{1, 1}
	)
	putValue(cache, one)
	putValue(cache, oneOne)

	// 删除队列未满，不会删除任何值
	_, _, ok := cache.pop(crypto.Keccak256Hash(oneOne))
	assert.False(t, ok)
	_, _, ok = cache.pop(crypto.Keccak256Hash(one))
	assert.False(t, ok)
	assert.Equal(t, 2, cache.deletions.Len())

	// 队列已满，两次pop都会删除值
	hash, value, ok := cache.pop(crypto.Keccak256Hash(one))
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash(oneOne), hash)
	assert.Equal(t, oneOne, value)

	hash, value, ok = cache.pop(crypto.Keccak256Hash(one))
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash(one), hash)
	assert.Equal(t, one, value)

	assert.Equal(t, 0, cache.len())
	assert.Equal(t, uint64(0), cache.totalSize)
}

func TestTrieCacheDeletionsGauge(t *testing.T) {
	cache := newTrieCacheInner(100, 2, 100, 12, false)
	gauge := shardCacheDeletionsSize.With(metricLabels(12, false))
	putValue(cache, []byte{1})
	putValue(cache, []byte{1, 1})

	cache.pop(crypto.Keccak256Hash([]byte{1}))
	assert.Equal(t, float64(1), testutil.ToFloat64(gauge))
	cache.pop(crypto.Keccak256Hash([]byte{1, 1}))
	assert.Equal(t, float64(2), testutil.ToFloat64(gauge))

	cache.clear()
	assert.Equal(t, float64(0), testutil.ToFloat64(gauge))
}

func TestTrieCachePopMissing(t *testing.T) {
	cache := newTrieCacheInner(100, 2, 100, 11, false)
	counter := shardCacheGCPopMisses.With(metricLabels(11, false))
	before := testutil.ToFloat64(counter)

	_, _, ok := cache.pop(crypto.Keccak256Hash([]byte{9}))
	assert.False(t, ok)
	assert.Equal(t, 0, cache.deletions.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestTrieCacheCapacity(t *testing.T) {
	cache := newTrieCacheInner(2, 100, 100, 0, false)
	putValue(cache, []byte{1})
	putValue(cache, []byte{2})
	putValue(cache, []byte{3})

	assert.False(t, cache.contains(crypto.Keccak256Hash([]byte{1})))
	assert.True(t, cache.contains(crypto.Keccak256Hash([]byte{2})))
	assert.True(t, cache.contains(crypto.Keccak256Hash([]byte{3})))
	assert.Equal(t, uint64(2), cache.totalSize)
}

func TestTrieCacheTooLarge(t *testing.T) {
	cache := newTrieCacheInner(10, 10, 1_000_000, 12, false)
	counter := shardCacheTooLarge.With(metricLabels(12, false))
	before := testutil.ToFloat64(counter)

	putValue(cache, make([]byte, TrieLimitCachedValueSize))
	assert.Equal(t, 0, cache.len())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	putValue(cache, make([]byte, TrieLimitCachedValueSize-1))
	assert.Equal(t, 1, cache.len())
}

func TestTrieCacheClear(t *testing.T) {
	cache := newTrieCacheInner(10, 10, 100, 0, false)
	putValue(cache, []byte{1})
	putValue(cache, []byte{2, 2})
	cache.pop(crypto.Keccak256Hash([]byte{1}))

	cache.clear()
	assert.Equal(t, 0, cache.len())
	assert.Equal(t, 0, cache.deletions.Len())
	assert.Equal(t, uint64(0), cache.totalSize)
}

func TestTrieCacheInvalidLimits(t *testing.T) {
	assert.Panics(t, func() { newTrieCacheInner(0, 1, 1, 0, false) })
	assert.Panics(t, func() { newTrieCacheInner(1, 1, 0, 0, false) })
}

func TestTrieCacheRandomOperations(t *testing.T) {
	var (
		rng      = rand.New(rand.NewSource(0x5eed))
		capacity = 50
		limit    = uint64(4000)
		cache    = newTrieCacheInner(capacity, 20, limit, 0, false)
		pool     = make([][]byte, 200)
		maxLen   uint64
	)
	for i := range pool {
		pool[i] = make([]byte, rng.Intn(TrieLimitCachedValueSize))
		rng.Read(pool[i])
	}
	for i := 0; i < 20000; i++ {
		value := pool[rng.Intn(len(pool))]
		if rng.Intn(3) == 0 {
			cache.pop(crypto.Keccak256Hash(value))
		} else {
			putValue(cache, value)
			if uint64(len(value)) > maxLen {
				maxLen = uint64(len(value))
			}
			if cache.len() > capacity {
				t.Fatalf("op %d: cache length %d exceeds capacity %d", i, cache.len(), capacity)
			}
			if cache.totalSize > limit+maxLen {
				t.Fatalf("op %d: total size %d exceeds %d", i, cache.totalSize, limit+maxLen)
			}
		}
		checkTotalSize(t, cache)
	}
}

func TestTrieCacheUpdateCache(t *testing.T) {
	var (
		cache = NewTrieCache(Config{ShardCacheCapacity: 10, ShardCacheTotalSizeLimit: 1000, ShardCacheDeletionsQueueCapacity: 1}, entity.ShardUID{ShardID: 13}, false)
		small = []byte("small node")
		large = bytes.Repeat([]byte{0xaa}, TrieLimitCachedValueSize)
		other = []byte("other node")
	)
	counter := shardCacheTooLarge.With(metricLabels(13, false))
	before := testutil.ToFloat64(counter)

	cache.UpdateCache([]CacheOp{
		{Hash: crypto.Keccak256Hash(small), Value: rawdb.EncodeValueWithRC(small, 1)},
		{Hash: crypto.Keccak256Hash(large), Value: rawdb.EncodeValueWithRC(large, 1)},
		{Hash: crypto.Keccak256Hash(other), Value: rawdb.EncodeValueWithRC(other, 2)},
	})
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Equal(t, uint64(len(small)+len(other)), cache.CurrentTotalSize())

	value, ok := cache.Get(crypto.Keccak256Hash(small))
	require.True(t, ok)
	assert.Equal(t, small, value)

	// 墓碑与nil都进入删除队列，第二次删除挤出第一个
	cache.UpdateCache([]CacheOp{
		{Hash: crypto.Keccak256Hash(small), Value: rawdb.EncodeValueWithRC(small, 0)},
		{Hash: crypto.Keccak256Hash(other), Value: nil},
	})
	assert.Equal(t, 1, cache.DeletionsLen())
	_, ok = cache.Get(crypto.Keccak256Hash(small))
	assert.False(t, ok)
	_, ok = cache.Get(crypto.Keccak256Hash(other))
	assert.True(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, cache.DeletionsLen())
}

func TestTrieCacheUpdateCacheSequential(t *testing.T) {
	var (
		rng    = rand.New(rand.NewSource(7))
		config = Config{ShardCacheCapacity: 8, ShardCacheTotalSizeLimit: 200, ShardCacheDeletionsQueueCapacity: 3}
		cache  = NewTrieCache(config, entity.SingleShardUID, false)
		want   = newTrieCacheInner(8, 3, 200, 0, false)
		ops    []CacheOp
	)
	for i := 0; i < 200; i++ {
		value := make([]byte, 1+rng.Intn(60))
		value[0] = byte(rng.Intn(16))
		hash := crypto.Keccak256Hash(value[:1])
		if rng.Intn(4) == 0 {
			ops = append(ops, CacheOp{Hash: hash})
			want.pop(hash)
		} else {
			ops = append(ops, CacheOp{Hash: hash, Value: rawdb.EncodeValueWithRC(value, 1)})
			want.put(hash, value)
		}
	}
	cache.UpdateCache(ops)

	assert.Equal(t, want.cache.Keys(), cache.inner.cache.Keys())
	assert.Equal(t, want.totalSize, cache.CurrentTotalSize())
	checkTotalSize(t, cache.inner)
}

func TestTrieCacheNoCacheConfig(t *testing.T) {
	cache := NewTrieCache(Config{NoCache: true, ShardCacheCapacity: 100}, entity.SingleShardUID, false)
	assert.Equal(t, 1, cache.inner.capacity)
	assert.Equal(t, uint64(1), cache.inner.totalSizeLimit)

	cache.UpdateCache([]CacheOp{
		{Hash: crypto.Keccak256Hash([]byte{1}), Value: rawdb.EncodeValueWithRC([]byte{1}, 1)},
		{Hash: crypto.Keccak256Hash([]byte{2}), Value: rawdb.EncodeValueWithRC([]byte{2}, 1)},
	})
	assert.Equal(t, 1, cache.Len())
}

func TestTrieCacheViewCapacity(t *testing.T) {
	config := Config{ShardCacheCapacity: 100, ViewShardCacheCapacity: 3}
	assert.Equal(t, 3, NewTrieCache(config, entity.SingleShardUID, true).inner.capacity)
	assert.Equal(t, 100, NewTrieCache(config, entity.SingleShardUID, false).inner.capacity)
	assert.Equal(t, DefaultConfig.ShardCacheDeletionsQueueCapacity, NewTrieCache(config, entity.SingleShardUID, false).inner.deletions.capacity)
}
