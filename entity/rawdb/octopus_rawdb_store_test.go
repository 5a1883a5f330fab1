package rawdb

import (
	"bytes"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/typedb"
	"github.com/stretchr/testify/require"
)

func TestRefcountCodec(t *testing.T) {
	enc := EncodeValueWithRC([]byte{1, 2, 3}, 2)
	if len(enc) != 3+refcountLength {
		t.Fatalf("encoded length mismatch: have %d", len(enc))
	}
	value, rc := DecodeValueWithRC(enc)
	if !bytes.Equal(value, []byte{1, 2, 3}) || rc != 2 {
		t.Errorf("decode mismatch: have %x/%d", value, rc)
	}
	if value, rc := DecodeValueWithRC(EncodeValueWithRC([]byte{1}, 0)); value != nil || rc != 0 {
		t.Errorf("zero refcount should be a tombstone: have %x/%d", value, rc)
	}
	if value, rc := DecodeValueWithRC(EncodeValueWithRC([]byte{1}, -3)); value != nil || rc != -3 {
		t.Errorf("negative refcount should be a tombstone: have %x/%d", value, rc)
	}
	if value, rc := DecodeValueWithRC([]byte{1, 2}); value != nil || rc != 0 {
		t.Errorf("short input should decode to nothing: have %x/%d", value, rc)
	}
}

func TestTrieNodeKey(t *testing.T) {
	uid := entity.ShardUID{Version: 1, ShardID: 3}
	hash := crypto.Keccak256Hash([]byte("node"))

	key := TrieNodeKey(uid, hash)
	require.Len(t, key, TrieNodeKeyLength)

	haveUID, haveHash, err := DecodeTrieNodeKey(key)
	require.NoError(t, err)
	require.Equal(t, uid, haveUID)
	require.Equal(t, hash, haveHash)

	_, _, err = DecodeTrieNodeKey(key[1:])
	require.Error(t, err)
}

func TestStoreRefcountedWrites(t *testing.T) {
	store := NewStore(NewMemoryDatabase(), nil)
	uid := entity.SingleShardUID
	node := []byte("trie node blob")
	hash := crypto.Keccak256Hash(node)

	update := store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	enc := WriteTrieNode(update, uid, hash, node)
	if _, rc := DecodeValueWithRC(enc); rc != 2 {
		t.Fatalf("refcount mismatch: have %d, want 2", rc)
	}
	if update.Len() != 1 {
		t.Errorf("pending key count mismatch: have %d, want 1", update.Len())
	}
	require.NoError(t, update.Commit())

	have, err := ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)

	// 减到0后节点被删除
	update = store.NewUpdate()
	require.NotNil(t, DeleteTrieNode(update, uid, hash))
	require.NoError(t, update.Commit())
	have, err = ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)

	update = store.NewUpdate()
	require.Nil(t, DeleteTrieNode(update, uid, hash))
	require.NoError(t, update.Commit())
	have, err = ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Nil(t, have)

	// 其他分片看不到该节点
	have, err = ReadTrieNode(store, entity.ShardUID{ShardID: 1}, hash)
	require.NoError(t, err)
	require.Nil(t, have)
}

func TestStorePlainColumn(t *testing.T) {
	store := NewStore(NewMemoryDatabase(), nil)

	update := store.NewUpdate()
	require.NoError(t, update.Set(ColMisc, []byte("k"), []byte("v")))
	require.Error(t, update.Set(ColState, []byte("k"), []byte("v")))
	_, err := update.IncrementRefcount(ColMisc, []byte("k"), []byte("v"), 1)
	require.Error(t, err)
	require.NoError(t, update.Commit())

	have, err := store.Get(ColMisc, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), have)

	// 列之间互不可见
	have, err = store.Get(ColState, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, have)

	update = store.NewUpdate()
	require.NoError(t, update.Delete(ColMisc, []byte("k")))
	require.NoError(t, update.Commit())
	have, err = store.Get(ColMisc, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, have)
}

func TestStoreCleanCacheInvalidation(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "cleans")
	diskdb := NewMemoryDatabase()
	store := NewStore(diskdb, &Config{Cache: 1, Journal: journal})

	update := store.NewUpdate()
	require.NoError(t, update.Set(ColMisc, []byte("k"), []byte("v1")))
	require.NoError(t, update.Commit())

	have, err := store.Get(ColMisc, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), have)

	// 普通列不进入干净缓存，写入后立即可见
	update = store.NewUpdate()
	require.NoError(t, update.Set(ColMisc, []byte("k"), []byte("v2")))
	require.NoError(t, update.Commit())
	have, err = store.Get(ColMisc, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), have)

	// 被删除的节点从干净缓存中失效
	var (
		uid  = entity.SingleShardUID
		node = []byte("trie node blob")
		hash = crypto.Keccak256Hash(node)
	)
	update = store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())
	have, err = ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)

	update = store.NewUpdate()
	DeleteTrieNode(update, uid, hash)
	require.NoError(t, update.Commit())
	have, err = ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Nil(t, have)
}

func TestStoreCleanCacheJournal(t *testing.T) {
	var (
		journal = filepath.Join(t.TempDir(), "cleans")
		diskdb  = NewMemoryDatabase()
		store   = NewStore(diskdb, &Config{Cache: 1, Journal: journal})
		uid     = entity.SingleShardUID
		node    = []byte("trie node blob")
		hash    = crypto.Keccak256Hash(node)
	)
	update := store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())
	_, err := ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.NoError(t, store.SaveCache())

	// 重新加载日志后，节点值直接由干净缓存提供
	require.NoError(t, diskdb.Delete(TrieNodeKey(uid, hash)))
	reloaded := NewStore(diskdb, &Config{Cache: 1, Journal: journal})
	have, err := ReadTrieNode(reloaded, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)
}

// 非正常退出时日志停留在旧的状态，引用计数仍然必须以磁盘为准。
func TestStoreRefcountAfterUncleanShutdown(t *testing.T) {
	var (
		dir     = t.TempDir()
		journal = filepath.Join(dir, "cleans")
		path    = filepath.Join(dir, "state")
		uid     = entity.SingleShardUID
		node    = []byte("trie node blob")
		hash    = crypto.Keccak256Hash(node)
	)
	open := func() *Store {
		diskdb, err := NewLevelDBDatabase(path, 16, 16, "", false)
		require.NoError(t, err)
		return NewStore(diskdb, &Config{Cache: 1, Journal: journal})
	}
	// 第一次运行：rc=1，读取后正常关闭并保存日志
	store := open()
	update := store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())
	_, err := ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// 第二次运行：rc增加到2，只关闭磁盘数据库，日志没有更新
	store = open()
	update = store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())
	require.NoError(t, store.DiskDB().Close())

	// 第三次运行：减一之后节点仍然被引用
	store = open()
	defer store.Close()
	update = store.NewUpdate()
	enc := DeleteTrieNode(update, uid, hash)
	_, rc := DecodeValueWithRC(enc)
	require.Equal(t, int64(1), rc)
	require.NoError(t, update.Commit())
	have, err := ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)
}

// gatedDB在armed时让第一次Get读完磁盘后停在gate上。
type gatedDB struct {
	typedb.KeyValueStore
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func (db *gatedDB) Get(key []byte) ([]byte, error) {
	enc, err := db.KeyValueStore.Get(key)
	if db.armed.CompareAndSwap(true, false) {
		close(db.entered)
		<-db.gate
	}
	return enc, err
}

// 读取线程在提交前读到旧编码、在提交后才写入干净缓存，不能影响后续的引用计数。
func TestStoreRefcountConcurrentReader(t *testing.T) {
	var (
		diskdb = &gatedDB{KeyValueStore: NewMemoryDatabase(), entered: make(chan struct{}), gate: make(chan struct{})}
		store  = NewStore(diskdb, &Config{Cache: 1})
		uid    = entity.SingleShardUID
		node   = []byte("trie node blob")
		hash   = crypto.Keccak256Hash(node)
	)
	update := store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())

	diskdb.armed.Store(true)
	done := make(chan error)
	go func() {
		_, err := ReadTrieNode(store, uid, hash)
		done <- err
	}()
	<-diskdb.entered

	update = store.NewUpdate()
	WriteTrieNode(update, uid, hash, node)
	require.NoError(t, update.Commit())
	close(diskdb.gate)
	require.NoError(t, <-done)

	update = store.NewUpdate()
	_, rc := DecodeValueWithRC(DeleteTrieNode(update, uid, hash))
	require.Equal(t, int64(1), rc)
	require.NoError(t, update.Commit())
	have, err := ReadTrieNode(store, uid, hash)
	require.NoError(t, err)
	require.Equal(t, node, have)
}

func TestInspectShard(t *testing.T) {
	var (
		diskdb = NewMemoryDatabase()
		store  = NewStore(diskdb, nil)
		uid    = entity.ShardUID{Version: 1, ShardID: 0}
		other  = entity.ShardUID{Version: 1, ShardID: 1}
		nodes  = [][]byte{[]byte("a"), []byte("bb"), []byte("cccc")}
	)
	update := store.NewUpdate()
	for _, node := range nodes {
		WriteTrieNode(update, uid, crypto.Keccak256Hash(node), node)
	}
	WriteTrieNode(update, uid, crypto.Keccak256Hash(nodes[2]), nodes[2])
	WriteTrieNode(update, other, crypto.Keccak256Hash([]byte("other")), []byte("other"))
	require.NoError(t, update.Set(ColMisc, TrieNodeKey(uid, entity.Hash{}), []byte("misc")))
	require.NoError(t, update.Commit())

	// 绕过引用计数写入的残留记录
	orphan := colKey(ColState, TrieNodeKey(uid, crypto.Keccak256Hash([]byte("orphan"))))
	require.NoError(t, diskdb.Put(orphan, EncodeValueWithRC([]byte("orphan"), 0)))

	stats, err := InspectShard(store, uid)
	require.NoError(t, err)
	require.Equal(t, ShardStats{Nodes: 3, Size: 7, Refs: 4, Shared: 1, Largest: 4, Orphaned: 1}, stats)

	require.True(t, HasTrieNode(store, uid, crypto.Keccak256Hash(nodes[0])))
	require.False(t, HasTrieNode(store, other, crypto.Keccak256Hash(nodes[0])))

	// 回调返回false时停止遍历
	var visited int
	require.NoError(t, store.Iterate(ColState, uid.Bytes(), func(key, value []byte, rc int64) bool {
		visited++
		return false
	}))
	require.Equal(t, 1, visited)
}
