package trie

import (
	"sync/atomic"
	"time"

	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
)

// CachingStorage是主线程读取trie节点的存储，依次查询chunk缓存、分片缓存、
// 预取暂存区和磁盘。除分片缓存和暂存区外的状态都只能由一个线程使用。
type CachingStorage struct {
	store    *rawdb.Store
	shardUID entity.ShardUID

	// shardCache缓存该分片读取过的节点，不保证任何节点一定存在。
	shardCache *TrieCache
	// chunkCache保存CachingChunk模式下读取的所有节点，直到本存储被丢弃。
	// 两个缓存的键都是值的哈希，同一个键在两个缓存中的值必然相同。
	chunkCache chunkCache
	cacheMode  entity.TrieCacheMode

	// 预取线程把读到的数据放入staging，并用它标记正在读取的键。
	staging *stagingArea
	// 置为true时停止所有预取线程。
	ioKillSwitch *atomic.Bool

	// dbReadNodes统计来自分片缓存或磁盘的读取，memReadNodes统计来自chunk缓存的读取。
	dbReadNodes  uint64
	memReadNodes uint64

	metrics cachingStorageMetrics
}

// NewCachingStorage创建分片shardUID的缓存存储。
func NewCachingStorage(store *rawdb.Store, shardCache *TrieCache, shardUID entity.ShardUID, isView bool) *CachingStorage {
	return &CachingStorage{
		store:        store,
		shardUID:     shardUID,
		shardCache:   shardCache,
		chunkCache:   make(chunkCache),
		cacheMode:    entity.CachingShard,
		staging:      newStagingArea(),
		ioKillSwitch: new(atomic.Bool),
		metrics:      newCachingStorageMetrics(shardUID.ShardID, isView),
	}
}

func (s *CachingStorage) RetrieveRawBytes(hash entity.Hash) ([]byte, error) {
	s.metrics.chunkCacheSize.Set(float64(len(s.chunkCache)))
	// chunk缓存在任何模式下都可以查询，只有CachingChunk模式才会收费
	if value, ok := s.chunkCache.get(hash); ok {
		s.metrics.chunkCacheHits.Inc()
		s.memReadNodes++
		return value, nil
	}
	s.metrics.chunkCacheMisses.Inc()

	s.shardCache.lock.Lock()
	s.metrics.shardCacheSize.Set(float64(s.shardCache.inner.len()))
	s.metrics.shardCacheCurrentTotal.Set(float64(s.shardCache.inner.currentTotalSize()))
	value, ok := s.shardCache.inner.get(hash)
	if ok {
		s.shardCache.lock.Unlock()
		s.metrics.shardCacheHits.Inc()
	} else {
		s.metrics.shardCacheMisses.Inc()
		// 如果数据正在被预取，等待它而不是重复读取。
		// 持锁到这里，避免分片缓存未命中与预留槽位之间的竞争。
		result, staged := s.staging.getAndSetIfEmpty(hash, slotPendingFetch)
		s.shardCache.lock.Unlock()

		var err error
		switch result {
		case slotReserved, memoryLimitReached:
			value, err = s.readFromDB(hash)
		case prefetched:
			value = staged
		case pending:
			time.Sleep(stagingPollInterval)
			if value, ok = s.staging.blockingGet(hash); !ok {
				// 预取线程放弃了该槽位
				value, err = s.readFromDB(hash)
			}
		}
		if err != nil {
			if result == slotReserved {
				s.staging.release(hash)
			}
			return nil, err
		}
		if len(value) < TrieLimitCachedValueSize {
			s.shardCache.lock.Lock()
			s.shardCache.inner.put(hash, value)
			s.shardCache.lock.Unlock()
		} else {
			s.metrics.shardCacheTooLarge.Inc()
		}
		// 写入分片缓存之后才能释放槽位
		s.staging.release(hash)
	}

	s.dbReadNodes++
	if s.cacheMode == entity.CachingChunk {
		s.chunkCache.put(hash, value)
	}
	return value, nil
}

func (s *CachingStorage) readFromDB(hash entity.Hash) ([]byte, error) {
	return readTrieNode(s.store, s.shardUID, hash)
}

// SetMode设置缓存模式。
func (s *CachingStorage) SetMode(mode entity.TrieCacheMode) {
	s.cacheMode = mode
}

func (s *CachingStorage) Mode() entity.TrieCacheMode {
	return s.cacheMode
}

func (s *CachingStorage) TrieNodesCount() entity.TrieNodesCount {
	return entity.TrieNodesCount{DBReads: s.dbReadNodes, MemReads: s.memReadNodes}
}

// PrefetcherStorage创建与本存储共享分片缓存和暂存区的预取存储。
func (s *CachingStorage) PrefetcherStorage() *PrefetchingStorage {
	return &PrefetchingStorage{
		store:      s.store,
		shardUID:   s.shardUID,
		shardCache: s.shardCache,
		staging:    s.staging,
	}
}

// IOKillSwitch返回预取线程共享的停止标志。
func (s *CachingStorage) IOKillSwitch() *atomic.Bool {
	return s.ioKillSwitch
}

// StopPrefetcher通知所有预取线程停止。暂存区不清空，正在读取的线程仍需要其中的槽位。
func (s *CachingStorage) StopPrefetcher() {
	s.ioKillSwitch.Store(true)
}

// ShardCache返回共享的分片缓存。
func (s *CachingStorage) ShardCache() *TrieCache {
	return s.shardCache
}

func (s *CachingStorage) ShardUID() entity.ShardUID {
	return s.shardUID
}

func (s *CachingStorage) ChunkCacheLen() int {
	return len(s.chunkCache)
}
