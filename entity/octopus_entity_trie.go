package entity

// TrieCacheMode决定读取的节点是否同时写入chunk缓存。
type TrieCacheMode int

const (
	// CachingShard只使用分片缓存。
	CachingShard TrieCacheMode = iota
	// CachingChunk在分片缓存之外，把读取过的节点保留在chunk缓存中。
	CachingChunk
)

func (m TrieCacheMode) String() string {
	switch m {
	case CachingShard:
		return "CachingShard"
	case CachingChunk:
		return "CachingChunk"
	default:
		return "Unknown"
	}
}

// TrieNodesCount统计trie节点的访问次数。
type TrieNodesCount struct {
	DBReads  uint64 // 来自分片缓存或磁盘的读取
	MemReads uint64 // 来自chunk缓存的读取
}

// Sub返回c-other，任一计数器下溢时ok为false。
func (c TrieNodesCount) Sub(other TrieNodesCount) (TrieNodesCount, bool) {
	if c.DBReads < other.DBReads || c.MemReads < other.MemReads {
		return TrieNodesCount{}, false
	}
	return TrieNodesCount{
		DBReads:  c.DBReads - other.DBReads,
		MemReads: c.MemReads - other.MemReads,
	}, true
}
