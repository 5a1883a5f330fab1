package trie

import (
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/terr"
)

const (
	// MaxPrefetchStagingMemory是暂存区允许占用的最大字节数。
	MaxPrefetchStagingMemory = 200 * 1024 * 1024

	// PrefetchReservedBytesPerSlot是每个未完成槽位预留的字节数，与存储值的最大长度相同。
	PrefetchReservedBytesPerSlot = 4 * 1024 * 1024

	// stagingPollInterval是等待进行中读取时的轮询间隔。
	stagingPollInterval = time.Microsecond
)

type slotState uint8

const (
	slotPendingPrefetch slotState = iota // 预取线程负责完成该槽位
	slotPendingFetch                     // 主线程自己在读取
	slotDone                             // 值已就绪
)

func (s slotState) String() string {
	switch s {
	case slotPendingPrefetch:
		return "PendingPrefetch"
	case slotPendingFetch:
		return "PendingFetch"
	case slotDone:
		return "Done"
	default:
		return "Unknown"
	}
}

type prefetchSlot struct {
	state slotState
	value []byte // 仅slotDone时有效
}

type prefetcherResult uint8

const (
	slotReserved prefetcherResult = iota
	pending
	prefetched
	memoryLimitReached
)

// stagingArea保存进行中的预取请求和已预取的数据。
// 开始读取前先预留槽位，数据到达后放入槽位，再由主线程取出放进分片缓存，
// 这样预取不会过早地填充分片缓存。
type stagingArea struct {
	lock      sync.Mutex
	slots     map[entity.Hash]prefetchSlot
	sizeBytes uint64 // 每个Pending槽位的预留 + 每个Done槽位的值长度
}

func newStagingArea() *stagingArea {
	return &stagingArea{slots: make(map[entity.Hash]prefetchSlot)}
}

// getAndSetIfEmpty在值已预取时返回它，否则在没有进行中的请求时原子地放入state槽位。
func (a *stagingArea) getAndSetIfEmpty(hash entity.Hash, state slotState) (prefetcherResult, []byte) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.sizeBytes > math.MaxUint64-PrefetchReservedBytesPerSlot ||
		a.sizeBytes+PrefetchReservedBytesPerSlot > MaxPrefetchStagingMemory {
		prefetchMemoryLimit.Inc()
		return memoryLimitReached, nil
	}
	if slot, ok := a.slots[hash]; ok {
		if slot.state == slotDone {
			prefetchHits.Inc()
			return prefetched, slot.value
		}
		prefetchPending.Inc()
		return pending, nil
	}
	a.slots[hash] = prefetchSlot{state: state}
	a.sizeBytes += PrefetchReservedBytesPerSlot
	prefetchStagedBytes.Set(float64(a.sizeBytes))
	return slotReserved, nil
}

// insertFetched把预取线程预留的槽位置为Done(value)。
func (a *stagingArea) insertFetched(hash entity.Hash, value []byte) {
	a.lock.Lock()
	defer a.lock.Unlock()

	slot, ok := a.slots[hash]
	if !ok || slot.state != slotPendingPrefetch {
		log.Error("Prefetcher bug detected, inserting into unexpected slot", "hash", hash, "present", ok, "state", slot.state)
		return
	}
	a.slots[hash] = prefetchSlot{state: slotDone, value: value}
	a.sizeBytes -= PrefetchReservedBytesPerSlot
	a.sizeBytes += uint64(len(value))
	prefetchStagedBytes.Set(float64(a.sizeBytes))
}

// abortPrefetch删除预取线程读取失败的槽位，等待者随后自己读取。
func (a *stagingArea) abortPrefetch(hash entity.Hash) {
	a.lock.Lock()
	defer a.lock.Unlock()

	slot, ok := a.slots[hash]
	if !ok || slot.state != slotPendingPrefetch {
		return
	}
	delete(a.slots, hash)
	a.sizeBytes -= PrefetchReservedBytesPerSlot
	prefetchStagedBytes.Set(float64(a.sizeBytes))
}

// release释放槽位。只能在值写入分片缓存之后调用，否则预取线程可能
// 在主线程取走值、尚未写入分片缓存时再次未命中并重复读取。
func (a *stagingArea) release(hash entity.Hash) {
	a.lock.Lock()
	defer a.lock.Unlock()

	slot, ok := a.slots[hash]
	if !ok {
		// 因内存上限没有预留槽位
		return
	}
	switch slot.state {
	case slotDone:
		a.sizeBytes -= uint64(len(slot.value))
	case slotPendingFetch:
		a.sizeBytes -= PrefetchReservedBytesPerSlot
	default:
		log.Error("Prefetcher bug detected, trying to release", "hash", hash, "state", slot.state)
		return
	}
	delete(a.slots, hash)
	prefetchStagedBytes.Set(float64(a.sizeBytes))
}

// blockingGet等待槽位变为Done并返回其值。槽位消失时返回false。
func (a *stagingArea) blockingGet(hash entity.Hash) ([]byte, bool) {
	for {
		a.lock.Lock()
		slot, ok := a.slots[hash]
		a.lock.Unlock()

		if !ok {
			return nil, false
		}
		if slot.state == slotDone {
			return slot.value, true
		}
		time.Sleep(stagingPollInterval)
	}
}

func (a *stagingArea) size() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.sizeBytes
}

func (a *stagingArea) len() int {
	a.lock.Lock()
	defer a.lock.Unlock()

	return len(a.slots)
}

// PrefetchingStorage是预取线程使用的存储。它与所属的CachingStorage共享存储、
// 分片缓存和暂存区，但只读分片缓存，从不写入chunk缓存。
type PrefetchingStorage struct {
	store      *rawdb.Store
	shardUID   entity.ShardUID
	shardCache *TrieCache
	staging    *stagingArea
}

func (s *PrefetchingStorage) RetrieveRawBytes(hash entity.Hash) ([]byte, error) {
	s.shardCache.lock.Lock()
	if value, ok := s.shardCache.inner.get(hash); ok {
		s.shardCache.lock.Unlock()
		return value, nil
	}
	// 在持有分片缓存锁时预留槽位，避免与分片缓存写入竞争
	result, value := s.staging.getAndSetIfEmpty(hash, slotPendingPrefetch)
	s.shardCache.lock.Unlock()

	switch result {
	case slotReserved:
		value, err := readTrieNode(s.store, s.shardUID, hash)
		if err != nil {
			s.staging.abortPrefetch(hash)
			return nil, err
		}
		s.staging.insertFetched(hash, value)
		return value, nil

	case prefetched:
		return value, nil

	case pending:
		time.Sleep(stagingPollInterval)
		if value, ok := s.staging.blockingGet(hash); ok {
			return value, nil
		}
		// 主线程已经取走值并写入了分片缓存
		if value, ok := s.shardCache.Get(hash); ok {
			return value, nil
		}
		// 值在本线程读取之前又被淘汰，放弃这次预取
		return nil, terr.NewInconsistentState(terr.MsgPrefetcherFailed)

	default:
		return nil, terr.NewInconsistentState(terr.MsgPrefetcherFailed)
	}
}

// TrieNodesCount对预取存储没有意义，始终返回零值。
func (s *PrefetchingStorage) TrieNodesCount() entity.TrieNodesCount {
	return entity.TrieNodesCount{}
}
