package operationdb

import (
	"sync"

	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/operationdb/trie"
)

// TrieRefcountChange是一次状态变更中某个节点引用计数的增减量。
type TrieRefcountChange struct {
	Hash  entity.Hash
	Value []byte // 删除时可以为空
	RC    uint32
}

// TrieChanges是一个状态根到另一个状态根的节点变更。
type TrieChanges struct {
	OldRoot    entity.Hash
	NewRoot    entity.Hash
	Insertions []TrieRefcountChange
	Deletions  []TrieRefcountChange
}

// TrieChangesFromNodeSet把go-ethereum trie提交的节点集合转换为插入变更。
// 按路径删除的节点不带哈希，不参与引用计数。
func TrieChangesFromNodeSet(oldRoot, newRoot entity.Hash, set *trienode.NodeSet) TrieChanges {
	changes := TrieChanges{OldRoot: oldRoot, NewRoot: newRoot}
	if set == nil {
		return changes
	}
	set.ForEachWithOrder(func(path string, n *trienode.Node) {
		if n.IsDeleted() {
			return
		}
		changes.Insertions = append(changes.Insertions, TrieRefcountChange{Hash: n.Hash, Value: n.Blob, RC: 1})
	})
	return changes
}

// ShardTries为每个分片维护一个常规分片缓存和一个视图分片缓存，
// 并基于它们创建读取存储。所有方法都是并发安全的。
type ShardTries struct {
	store  *rawdb.Store
	config trie.Config

	caches     map[entity.ShardUID]*trie.TrieCache
	viewCaches map[entity.ShardUID]*trie.TrieCache
	lock       sync.Mutex
}

// NewShardTries创建分片trie注册表，缓存按需创建。
func NewShardTries(store *rawdb.Store, config trie.Config) *ShardTries {
	return &ShardTries{
		store:      store,
		config:     config,
		caches:     make(map[entity.ShardUID]*trie.TrieCache),
		viewCaches: make(map[entity.ShardUID]*trie.TrieCache),
	}
}

// Store返回底层存储。
func (st *ShardTries) Store() *rawdb.Store {
	return st.store
}

// GetTrieCacheForShard返回分片的缓存，不存在时创建。
func (st *ShardTries) GetTrieCacheForShard(shardUID entity.ShardUID, isView bool) *trie.TrieCache {
	st.lock.Lock()
	defer st.lock.Unlock()

	caches := st.caches
	if isView {
		caches = st.viewCaches
	}
	cache, ok := caches[shardUID]
	if !ok {
		cache = trie.NewTrieCache(st.config, shardUID, isView)
		caches[shardUID] = cache
	}
	return cache
}

// GetCachingStorage创建共享分片缓存的CachingStorage，每个chunk使用一个新实例。
func (st *ShardTries) GetCachingStorage(shardUID entity.ShardUID, isView bool) *trie.CachingStorage {
	return trie.NewCachingStorage(st.store, st.GetTrieCacheForShard(shardUID, isView), shardUID, isView)
}

// GetRecordingStorage创建记录读取节点的存储，不经过分片缓存。
func (st *ShardTries) GetRecordingStorage(shardUID entity.ShardUID) *trie.RecordingStorage {
	return trie.NewRecordingStorage(st.store, shardUID)
}

// ApplyInsertions把插入的引用计数加到update中，返回对分片缓存的更新。
func (st *ShardTries) ApplyInsertions(update *rawdb.StoreUpdate, shardUID entity.ShardUID, changes TrieChanges) ([]trie.CacheOp, error) {
	ops := make([]trie.CacheOp, 0, len(changes.Insertions))
	for _, change := range changes.Insertions {
		enc, err := update.IncrementRefcount(rawdb.ColState, rawdb.TrieNodeKey(shardUID, change.Hash), change.Value, int64(change.RC))
		if err != nil {
			return nil, err
		}
		ops = append(ops, trie.CacheOp{Hash: change.Hash, Value: enc})
	}
	return ops, nil
}

// ApplyDeletions把删除的引用计数从update中减去，返回对分片缓存的更新。
func (st *ShardTries) ApplyDeletions(update *rawdb.StoreUpdate, shardUID entity.ShardUID, changes TrieChanges) ([]trie.CacheOp, error) {
	ops := make([]trie.CacheOp, 0, len(changes.Deletions))
	for _, change := range changes.Deletions {
		enc, err := update.IncrementRefcount(rawdb.ColState, rawdb.TrieNodeKey(shardUID, change.Hash), change.Value, -int64(change.RC))
		if err != nil {
			return nil, err
		}
		ops = append(ops, trie.CacheOp{Hash: change.Hash, Value: enc})
	}
	return ops, nil
}

// UpdateCache在update提交之后把ops应用到分片的常规缓存上。
func (st *ShardTries) UpdateCache(shardUID entity.ShardUID, ops []trie.CacheOp) {
	st.GetTrieCacheForShard(shardUID, false).UpdateCache(ops)
}

// ApplyChanges应用插入和删除，提交到磁盘后再更新分片缓存。
func (st *ShardTries) ApplyChanges(shardUID entity.ShardUID, changes TrieChanges) error {
	update := st.store.NewUpdate()
	insertions, err := st.ApplyInsertions(update, shardUID, changes)
	if err != nil {
		return err
	}
	deletions, err := st.ApplyDeletions(update, shardUID, changes)
	if err != nil {
		return err
	}
	if err := update.Commit(); err != nil {
		return err
	}
	st.UpdateCache(shardUID, append(insertions, deletions...))
	return nil
}

// ClearCaches清空所有分片的常规缓存和视图缓存。
func (st *ShardTries) ClearCaches() {
	st.lock.Lock()
	defer st.lock.Unlock()

	for _, cache := range st.caches {
		cache.Clear()
	}
	for _, cache := range st.viewCaches {
		cache.Clear()
	}
}
