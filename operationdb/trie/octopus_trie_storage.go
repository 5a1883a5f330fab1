package trie

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/terr"
)

// TrieStorage是trie遍历层读取序列化节点的接口。
type TrieStorage interface {
	// RetrieveRawBytes返回hash对应的序列化trie节点。
	// 存储内部失败或节点不存在时返回错误。
	RetrieveRawBytes(hash entity.Hash) ([]byte, error)

	// TrieNodesCount返回到目前为止的节点访问计数。
	TrieNodesCount() entity.TrieNodesCount
}

// AsCachingStorage在storage是主线程缓存存储时返回它。
func AsCachingStorage(storage TrieStorage) (*CachingStorage, bool) {
	s, ok := storage.(*CachingStorage)
	return s, ok
}

// AsRecordingStorage在storage记录读取过的节点时返回它。
func AsRecordingStorage(storage TrieStorage) (*RecordingStorage, bool) {
	s, ok := storage.(*RecordingStorage)
	return s, ok
}

// AsPartialStorage在storage只提供预加载节点时返回它。
func AsPartialStorage(storage TrieStorage) (*PartialStorage, bool) {
	s, ok := storage.(*PartialStorage)
	return s, ok
}

// readTrieNode从ColState列读取节点，把后端错误映射为存储错误。
func readTrieNode(store *rawdb.Store, shardUID entity.ShardUID, hash entity.Hash) ([]byte, error) {
	value, err := rawdb.ReadTrieNode(store, shardUID, hash)
	if err != nil {
		return nil, terr.StorageInternal(err)
	}
	if value == nil {
		return nil, terr.NewInconsistentState(terr.MsgTrieNodeMissing)
	}
	return value, nil
}

// RecordingStorage记录每个读取过的节点，用于生成状态证明。
type RecordingStorage struct {
	store    *rawdb.Store
	shardUID entity.ShardUID
	recorded map[entity.Hash][]byte
	count    entity.TrieNodesCount
}

func NewRecordingStorage(store *rawdb.Store, shardUID entity.ShardUID) *RecordingStorage {
	return &RecordingStorage{
		store:    store,
		shardUID: shardUID,
		recorded: make(map[entity.Hash][]byte),
	}
}

func (s *RecordingStorage) RetrieveRawBytes(hash entity.Hash) ([]byte, error) {
	if value, ok := s.recorded[hash]; ok {
		s.count.MemReads++
		return value, nil
	}
	value, err := readTrieNode(s.store, s.shardUID, hash)
	if err != nil {
		return nil, err
	}
	s.count.DBReads++
	s.recorded[hash] = value
	return value, nil
}

// TrieNodesCount中DBReads为存储读取次数，MemReads为命中记录的次数。
func (s *RecordingStorage) TrieNodesCount() entity.TrieNodesCount {
	return s.count
}

// RecordedState返回已记录节点的副本。
func (s *RecordingStorage) RecordedState() map[entity.Hash][]byte {
	state := make(map[entity.Hash][]byte, len(s.recorded))
	for hash, value := range s.recorded {
		state[hash] = value
	}
	return state
}

// PartialStorage只从预加载的节点集合中读取，并记录实际访问过的节点，用于校验证明中没有多余节点。
type PartialStorage struct {
	recorded map[entity.Hash][]byte
	visited  mapset.Set
	reads    uint64
}

// NewPartialStorageFromState用记录的节点创建PartialStorage。
func NewPartialStorageFromState(state map[entity.Hash][]byte) *PartialStorage {
	return &PartialStorage{
		recorded: state,
		visited:  mapset.NewThreadUnsafeSet(),
	}
}

func (s *PartialStorage) RetrieveRawBytes(hash entity.Hash) ([]byte, error) {
	value, ok := s.recorded[hash]
	if !ok {
		return nil, terr.ErrTrieNodeMissing
	}
	s.visited.Add(hash)
	s.reads++
	return value, nil
}

// TrieNodesCount中DBReads为成功读取的次数。
func (s *PartialStorage) TrieNodesCount() entity.TrieNodesCount {
	return entity.TrieNodesCount{DBReads: s.reads}
}

// VisitedNodes返回访问过的节点哈希。
func (s *PartialStorage) VisitedNodes() []entity.Hash {
	hashes := make([]entity.Hash, 0, s.visited.Cardinality())
	for _, item := range s.visited.ToSlice() {
		hashes = append(hashes, item.(entity.Hash))
	}
	return hashes
}

// UnvisitedCount返回预加载但从未被读取的节点数。
func (s *PartialStorage) UnvisitedCount() int {
	return len(s.recorded) - s.visited.Cardinality()
}
