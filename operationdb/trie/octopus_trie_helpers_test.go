package trie

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/typedb/memorydb"
	"github.com/stretchr/testify/require"
)

var errDiskFailure = errors.New("disk failure")

// countingDB统计Get调用次数，gate非nil时Get会阻塞直到gate被关闭。
// failOnce只让下一次Get失败。
type countingDB struct {
	*memorydb.Database
	reads    atomic.Int64
	gate     chan struct{}
	fail     atomic.Bool
	failOnce atomic.Bool
}

func newCountingDB() *countingDB {
	return &countingDB{Database: memorydb.New()}
}

func (db *countingDB) Get(key []byte) ([]byte, error) {
	db.reads.Add(1)
	if db.gate != nil {
		<-db.gate
	}
	if db.fail.Load() || db.failOnce.CompareAndSwap(true, false) {
		return nil, errDiskFailure
	}
	return db.Database.Get(key)
}

// newTestStore把nodes以引用计数1写入单分片存储。
func newTestStore(t *testing.T, db *countingDB, nodes ...[]byte) (*rawdb.Store, []entity.Hash) {
	t.Helper()
	store := rawdb.NewStore(db, nil)
	update := store.NewUpdate()
	hashes := make([]entity.Hash, len(nodes))
	for i, node := range nodes {
		hashes[i] = crypto.Keccak256Hash(node)
		rawdb.WriteTrieNode(update, entity.SingleShardUID, hashes[i], node)
	}
	require.NoError(t, update.Commit())
	db.reads.Store(0)
	return store, hashes
}

func newTestCachingStorage(store *rawdb.Store) *CachingStorage {
	cache := NewTrieCache(Config{ShardCacheCapacity: 100, ShardCacheTotalSizeLimit: 100_000, ShardCacheDeletionsQueueCapacity: 10}, entity.SingleShardUID, false)
	return NewCachingStorage(store, cache, entity.SingleShardUID, false)
}

// testTrie是写入存储的go-ethereum trie。
type testTrie struct {
	root   entity.Hash
	keys   [][]byte
	values [][]byte
	nodes  int
}

// newTestTrie构造n个键的trie并把提交的节点写入store。
func newTestTrie(t *testing.T, store *rawdb.Store, n int) *testTrie {
	t.Helper()
	var (
		tr = gethtrie.NewEmpty(nil)
		tt = &testTrie{}
	)
	for i := 0; i < n; i++ {
		key := crypto.Keccak256Hash([]byte(fmt.Sprintf("key-%d", i))).Bytes()
		value := bytes.Repeat([]byte{byte(i) + 1}, 40)
		tr.MustUpdate(key, value)
		tt.keys = append(tt.keys, key)
		tt.values = append(tt.values, value)
	}
	root, set := tr.Commit(false)
	tt.root = root

	update := store.NewUpdate()
	for _, node := range set.Nodes {
		rawdb.WriteTrieNode(update, entity.SingleShardUID, node.Hash, node.Blob)
		tt.nodes++
	}
	require.NoError(t, update.Commit())
	return tt
}
