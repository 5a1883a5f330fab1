package trie

import (
	"context"
	"sync/atomic"

	"github.com/radiation-octopus/octopus-triestore/entity"
	"golang.org/x/sync/errgroup"
)

// PrefetchAPI管理一组为同一个CachingStorage预取节点的线程。
// 调用方决定预取哪些键。
type PrefetchAPI struct {
	parent     *CachingStorage
	queue      *IORequestQueue
	killSwitch *atomic.Bool

	group   *errgroup.Group
	ctx     context.Context
	threads int
}

// NewPrefetchAPI创建预取接口，预取线程与parent共享停止标志。
func NewPrefetchAPI(parent *CachingStorage) *PrefetchAPI {
	return &PrefetchAPI{
		parent:     parent,
		queue:      NewIORequestQueue(),
		killSwitch: parent.IOKillSwitch(),
	}
}

// StartIOThreads启动n个以root为根的预取线程，每个线程有自己的PrefetchingStorage。
func (api *PrefetchAPI) StartIOThreads(ctx context.Context, root entity.Hash, n int) {
	if api.group == nil {
		api.group, api.ctx = errgroup.WithContext(ctx)
	}
	groupCtx, queue, killSwitch := api.ctx, api.queue, api.killSwitch
	for i := 0; i < n; i++ {
		storage := api.parent.PrefetcherStorage()
		api.group.Go(func() error {
			return RunIOThread(groupCtx, root, storage, queue, killSwitch)
		})
	}
	api.threads += n
}

// PrefetchTrieKey把key加入预取队列。
func (api *PrefetchAPI) PrefetchTrieKey(key []byte) {
	api.queue.Push(PrefetchTrieNode{Key: key})
}

// Pending返回尚未处理的请求数。
func (api *PrefetchAPI) Pending() int {
	return api.queue.Len()
}

// StopAndJoin丢弃未处理的请求，给每个线程发送StopSelf，并等待所有线程退出。
func (api *PrefetchAPI) StopAndJoin() error {
	api.queue.Clear()
	for i := 0; i < api.threads; i++ {
		api.queue.Push(StopSelf{})
	}
	if api.group == nil {
		return nil
	}
	err := api.group.Wait()
	api.group, api.ctx, api.threads = nil, nil, 0
	return err
}
