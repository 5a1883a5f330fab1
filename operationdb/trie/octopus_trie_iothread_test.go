package trie

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrefetchTestStorage(t *testing.T, keys int) (*countingDB, *CachingStorage, *testTrie) {
	t.Helper()
	db := newCountingDB()
	store, _ := newTestStore(t, db)
	tt := newTestTrie(t, store, keys)
	db.reads.Store(0)

	cache := NewTrieCache(Config{ShardCacheCapacity: 10_000, ShardCacheTotalSizeLimit: 10_000_000}, entity.SingleShardUID, false)
	return db, NewCachingStorage(store, cache, entity.SingleShardUID, false), tt
}

func TestIORequestQueue(t *testing.T) {
	queue := NewIORequestQueue()
	_, ok := queue.PopFront()
	assert.False(t, ok)

	queue.Push(PrefetchTrieNode{Key: []byte{1}})
	queue.Push(StopSelf{})
	assert.Equal(t, 2, queue.Len())

	cmd, ok := queue.PopFront()
	require.True(t, ok)
	assert.Equal(t, PrefetchTrieNode{Key: []byte{1}}, cmd)

	queue.Clear()
	assert.Equal(t, 0, queue.Len())
}

func TestTrieView(t *testing.T) {
	_, storage, tt := newPrefetchTestStorage(t, 16)

	view, err := NewTrieView(tt.root, storage)
	require.NoError(t, err)
	for i, key := range tt.keys {
		value, err := view.Get(key)
		require.NoError(t, err)
		assert.Equal(t, tt.values[i], value)
	}
	value, err := view.Get(crypto.Keccak256Hash([]byte("absent")).Bytes())
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = NewTrieView(crypto.Keccak256Hash([]byte("no such root")), storage)
	assert.Error(t, err)

	// 空trie不需要读取任何节点
	empty, err := NewTrieView(types.EmptyRootHash, storage)
	require.NoError(t, err)
	value, err = empty.Get(tt.keys[0])
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestPrefetchAPI(t *testing.T) {
	db, storage, tt := newPrefetchTestStorage(t, 128)
	var (
		api       = NewPrefetchAPI(storage)
		processed = func() float64 { return testutil.ToFloat64(prefetchSuccess) + testutil.ToFloat64(prefetchFailure) }
		start     = processed()
	)
	api.StartIOThreads(context.Background(), tt.root, 4)
	for _, key := range tt.keys {
		api.PrefetchTrieKey(key)
	}
	require.Eventually(t, func() bool {
		return processed() >= start+float64(len(tt.keys))
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 0, api.Pending())

	// 主线程读取全部键，预取过的节点不会再读磁盘
	view, err := NewTrieView(tt.root, storage)
	require.NoError(t, err)
	for i, key := range tt.keys {
		value, err := view.Get(key)
		require.NoError(t, err)
		assert.Equal(t, tt.values[i], value)
	}
	require.NoError(t, api.StopAndJoin())

	assert.LessOrEqual(t, db.reads.Load(), int64(tt.nodes))
	assert.Equal(t, 0, storage.staging.len())
	assert.Equal(t, uint64(0), storage.staging.size())
}

func TestPrefetchAPIFailedPrefetch(t *testing.T) {
	_, storage, tt := newPrefetchTestStorage(t, 4)
	api := NewPrefetchAPI(storage)
	before := testutil.ToFloat64(prefetchFailure)

	api.StartIOThreads(context.Background(), crypto.Keccak256Hash([]byte("no such root")), 1)
	api.PrefetchTrieKey(tt.keys[0])
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(prefetchFailure) >= before+1
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, api.StopAndJoin())
	assert.Equal(t, 0, storage.staging.len())
}

func TestPrefetchAPIKillSwitch(t *testing.T) {
	_, storage, tt := newPrefetchTestStorage(t, 4)
	api := NewPrefetchAPI(storage)

	storage.StopPrefetcher()
	api.StartIOThreads(context.Background(), tt.root, 2)
	api.PrefetchTrieKey(tt.keys[0])

	done := make(chan error)
	go func() { done <- api.StopAndJoin() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch threads did not stop")
	}
	assert.Equal(t, 0, storage.staging.len())
}

func TestPrefetchAPIContextCancel(t *testing.T) {
	_, storage, tt := newPrefetchTestStorage(t, 4)
	api := NewPrefetchAPI(storage)

	ctx, cancel := context.WithCancel(context.Background())
	api.StartIOThreads(ctx, tt.root, 2)
	cancel()
	assert.ErrorIs(t, api.StopAndJoin(), context.Canceled)

	// 停止后可以重新启动
	api.StartIOThreads(context.Background(), tt.root, 1)
	require.NoError(t, api.StopAndJoin())
}

func TestRunIOThreadStopSelf(t *testing.T) {
	_, storage, tt := newPrefetchTestStorage(t, 4)
	queue := NewIORequestQueue()
	queue.Push(PrefetchTrieNode{Key: tt.keys[0]})
	queue.Push(StopSelf{})
	queue.Push(PrefetchTrieNode{Key: tt.keys[1]})

	err := RunIOThread(context.Background(), tt.root, storage.PrefetcherStorage(), queue, new(atomic.Bool))
	require.NoError(t, err)
	assert.Equal(t, 1, queue.Len())
}
