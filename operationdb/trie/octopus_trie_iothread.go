package trie

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-triestore/entity"
)

// ioThreadIdleInterval是请求队列为空时预取线程的休眠间隔。
const ioThreadIdleInterval = 10 * time.Microsecond

// IOThreadCmd是发给预取线程的命令。
type IOThreadCmd interface {
	ioThreadCmd()
}

// PrefetchTrieNode要求预取线程加载trie中Key对应的路径。
type PrefetchTrieNode struct {
	Key []byte
}

// StopSelf让读到它的预取线程退出。
type StopSelf struct{}

func (PrefetchTrieNode) ioThreadCmd() {}
func (StopSelf) ioThreadCmd()         {}

// IORequestQueue是生产者与预取线程共享的请求队列。
type IORequestQueue struct {
	lock sync.Mutex
	cmds []IOThreadCmd
}

func NewIORequestQueue() *IORequestQueue {
	return &IORequestQueue{}
}

func (q *IORequestQueue) Push(cmd IOThreadCmd) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.cmds = append(q.cmds, cmd)
}

// PopFront取出队头命令，队列为空时返回false。
func (q *IORequestQueue) PopFront() (IOThreadCmd, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.cmds) == 0 {
		return nil, false
	}
	cmd := q.cmds[0]
	q.cmds[0] = nil
	q.cmds = q.cmds[1:]
	return cmd, true
}

func (q *IORequestQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.cmds)
}

// Clear丢弃所有未处理的命令。
func (q *IORequestQueue) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.cmds = nil
}

// RunIOThread处理queue中的命令，直到killSwitch被置位、ctx结束或读到StopSelf。
// 预取结果只体现在计数器上，读取错误不会返回给调用方。
func RunIOThread(ctx context.Context, root entity.Hash, storage TrieStorage, queue *IORequestQueue, killSwitch *atomic.Bool) error {
	var view TrieReader

	log.Debug("Trie prefetch thread started", "root", root)
	defer log.Debug("Trie prefetch thread stopped", "root", root)

	for !killSwitch.Load() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cmd, ok := queue.PopFront()
		if !ok {
			time.Sleep(ioThreadIdleInterval)
			continue
		}
		switch cmd := cmd.(type) {
		case PrefetchTrieNode:
			// trie视图只在本线程内构造和使用
			if view == nil {
				v, err := NewTrieView(root, storage)
				if err != nil {
					prefetchFailure.Inc()
					log.Trace("Failed to open prefetch trie", "root", root, "err", err)
					continue
				}
				view = v
			}
			if value, err := view.Get(cmd.Key); err == nil && value != nil {
				prefetchSuccess.Inc()
			} else {
				// 偶尔发生，可以安全忽略
				prefetchFailure.Inc()
			}
		case StopSelf:
			return nil
		}
	}
	return nil
}
