package node

import (
	"testing"

	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/operationdb"
	"github.com/radiation-octopus/octopus-triestore/operationdb/trie"
	"github.com/radiation-octopus/octopus-triestore/terr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodeConfig(datadir string) *Config {
	return &Config{
		Name:              "test",
		DataDir:           datadir,
		DatabaseCache:     16,
		DatabaseHandles:   16,
		CleanCache:        1,
		CleanCacheJournal: datadirCleanJournal,
		Trie:              trie.Config{ShardCacheCapacity: 10, ShardCacheTotalSizeLimit: 10_000},
	}
}

func TestEphemeralNode(t *testing.T) {
	n, err := New(testNodeConfig(""))
	require.NoError(t, err)
	assert.Equal(t, "", n.DataDir())
	assert.Equal(t, "", n.ResolvePath("x"))
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Close(), ErrNodeStopped)
}

func TestDatadirLock(t *testing.T) {
	dir := t.TempDir()
	first, err := New(testNodeConfig(dir))
	require.NoError(t, err)

	_, err = New(testNodeConfig(dir))
	require.ErrorIs(t, err, terr.ErrDatadirUsed)

	require.NoError(t, first.Close())
	second, err := New(testNodeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInvalidName(t *testing.T) {
	conf := testNodeConfig(t.TempDir())
	conf.Name = "a/b"
	_, err := New(conf)
	assert.Error(t, err)
}

func TestNodePersistence(t *testing.T) {
	var (
		dir  = t.TempDir()
		blob = []byte("persisted node")
		hash = crypto.Keccak256Hash(blob)
	)
	n, err := New(testNodeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, n.Tries().ApplyChanges(entity.SingleShardUID, operationdb.TrieChanges{
		Insertions: []operationdb.TrieRefcountChange{{Hash: hash, Value: blob, RC: 1}},
	}))
	require.NoError(t, n.Close())

	n, err = New(testNodeConfig(dir))
	require.NoError(t, err)
	defer n.Close()

	value, err := rawdb.ReadTrieNode(n.Store(), entity.SingleShardUID, hash)
	require.NoError(t, err)
	assert.Equal(t, blob, value)

	value, err = n.Tries().GetCachingStorage(entity.SingleShardUID, false).RetrieveRawBytes(hash)
	require.NoError(t, err)
	assert.Equal(t, blob, value)
}
