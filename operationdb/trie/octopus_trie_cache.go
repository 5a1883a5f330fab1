package trie

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
)

// TrieLimitCachedValueSize以上（含）的值永远不会进入分片缓存。
// 大部分trie内部节点都小于这个值，例如分支节点约为32*16=512字节。
const TrieLimitCachedValueSize = 1000

// trieCacheInner是按字节计量的LRU缓存，带有延迟删除队列。
//  1. 值的大小必须小于TrieLimitCachedValueSize，避免缓存合约代码之类的大值。
//  2. 插入前若总大小超过totalSizeLimit或条目数达到上限，先淘汰直到不再超限，
//     因此总大小不会超过totalSizeLimit+TrieLimitCachedValueSize。
//  3. pop的键先进入deletions队列，只有被挤出队列时才真正从LRU中删除。
//     分叉时多个块共享同一个父块，旧节点需要保留一段时间以便读取旧的状态根。
type trieCacheInner struct {
	cache          *simplelru.LRU             // entity.Hash -> []byte
	capacity       int                        // LRU的最大条目数
	deletions      *BoundedQueue[entity.Hash] // 延迟删除的键
	totalSize      uint64                     // 缓存中所有值的总字节数
	totalSizeLimit uint64
	shardID        uint32
	isView         bool

	metrics shardCacheMetrics
}

func newTrieCacheInner(cacheCapacity, deletionsQueueCapacity int, totalSizeLimit uint64, shardID uint32, isView bool) *trieCacheInner {
	if cacheCapacity <= 0 || totalSizeLimit == 0 {
		panic(fmt.Sprintf("invalid shard cache limits: capacity %d, total size %d", cacheCapacity, totalSizeLimit))
	}
	cache, err := simplelru.NewLRU(cacheCapacity, nil)
	if err != nil {
		panic(err)
	}
	return &trieCacheInner{
		cache:          cache,
		capacity:       cacheCapacity,
		deletions:      NewBoundedQueue[entity.Hash](deletionsQueueCapacity),
		totalSizeLimit: totalSizeLimit,
		shardID:        shardID,
		isView:         isView,
		metrics:        newShardCacheMetrics(shardID, isView),
	}
}

// get返回缓存的值并刷新其LRU位置。
func (c *trieCacheInner) get(hash entity.Hash) ([]byte, bool) {
	value, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return value.([]byte), true
}

func (c *trieCacheInner) contains(hash entity.Hash) bool {
	return c.cache.Contains(hash)
}

func (c *trieCacheInner) clear() {
	c.totalSize = 0
	c.deletions.Clear()
	c.cache.Purge()
	c.metrics.deletionsSize.Set(0)
}

// remove从LRU中删除hash，返回被删除的值。
func (c *trieCacheInner) remove(hash entity.Hash) ([]byte, bool) {
	value, ok := c.cache.Peek(hash)
	if !ok {
		return nil, false
	}
	c.cache.Remove(hash)
	blob := value.([]byte)
	c.totalSize -= uint64(len(blob))
	return blob, true
}

func (c *trieCacheInner) put(hash entity.Hash, value []byte) {
	if len(value) >= TrieLimitCachedValueSize {
		c.metrics.tooLarge.Inc()
		return
	}
	for c.totalSize > c.totalSizeLimit || c.cache.Len() == c.capacity {
		// 先尝试淘汰删除队列中的键
		if key, ok := c.deletions.Pop(); ok {
			if _, ok := c.remove(key); ok {
				c.metrics.popHits.Inc()
				continue
			}
			c.metrics.popMisses.Inc()
		}
		// 再淘汰最久未使用的值
		c.metrics.popLRU.Inc()
		_, evicted, ok := c.cache.RemoveOldest()
		if !ok {
			break
		}
		c.totalSize -= uint64(len(evicted.([]byte)))
	}
	// 同一个键再次写入时替换旧值
	if old, ok := c.cache.Peek(hash); ok {
		c.totalSize -= uint64(len(old.([]byte)))
	}
	c.totalSize += uint64(len(value))
	if c.cache.Add(hash, value) {
		log.Error("Shard cache full before insertion", "shard", c.shardID, "view", c.isView, "hash", hash)
	}
}

// pop把hash放入删除队列。队列溢出时从缓存中删除被挤出的键并返回其键值。
func (c *trieCacheInner) pop(hash entity.Hash) (entity.Hash, []byte, bool) {
	if !c.cache.Contains(hash) {
		c.metrics.gcPopMisses.Inc()
		return entity.Hash{}, nil, false
	}
	spilled, ok := c.deletions.Put(hash)
	c.metrics.deletionsSize.Set(float64(c.deletions.Len()))
	if !ok {
		return entity.Hash{}, nil, false
	}
	value, ok := c.remove(spilled)
	if !ok {
		c.metrics.popMisses.Inc()
		return entity.Hash{}, nil, false
	}
	c.metrics.popHits.Inc()
	return spilled, value, true
}

func (c *trieCacheInner) len() int {
	return c.cache.Len()
}

func (c *trieCacheInner) currentTotalSize() uint64 {
	return c.totalSize
}

// CacheOp是提交状态变更后对分片缓存的一次更新。Value为value‖rc编码，nil表示删除。
type CacheOp struct {
	Hash  entity.Hash
	Value []byte
}

// TrieCache是并发安全的分片缓存句柄，由主线程和预取线程共享。
type TrieCache struct {
	lock  sync.Mutex
	inner *trieCacheInner
}

// NewTrieCache按配置创建分片缓存，视图缓存使用ViewShardCacheCapacity。
func NewTrieCache(config Config, shardUID entity.ShardUID, isView bool) *TrieCache {
	config = config.sanitize()
	capacity := config.ShardCacheCapacity
	if isView {
		capacity = config.ViewShardCacheCapacity
	}
	return &TrieCache{
		inner: newTrieCacheInner(capacity, config.ShardCacheDeletionsQueueCapacity, config.ShardCacheTotalSizeLimit, shardUID.ShardID, isView),
	}
}

// Get返回缓存的值。
func (t *TrieCache) Get(hash entity.Hash) ([]byte, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.inner.get(hash)
}

// Clear清空缓存。
func (t *TrieCache) Clear() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.inner.clear()
}

// UpdateCache按顺序应用ops。墓碑或nil值进入删除队列，过大的值只计数。
func (t *TrieCache) UpdateCache(ops []CacheOp) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, op := range ops {
		if op.Value == nil {
			t.inner.pop(op.Hash)
			continue
		}
		value, _ := rawdb.DecodeValueWithRC(op.Value)
		switch {
		case value == nil:
			t.inner.pop(op.Hash)
		case len(value) < TrieLimitCachedValueSize:
			t.inner.put(op.Hash, value)
		default:
			t.inner.metrics.tooLarge.Inc()
		}
	}
}

func (t *TrieCache) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.inner.len()
}

func (t *TrieCache) CurrentTotalSize() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.inner.currentTotalSize()
}

func (t *TrieCache) DeletionsLen() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.inner.deletions.Len()
}
