package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-triestore/entity"
)

// ShardStats是一个分片在ColState列中的节点统计。
type ShardStats struct {
	Nodes    int
	Size     common.StorageSize // 节点值的总大小，不含键和引用计数
	Refs     int64              // 所有节点的引用计数之和
	Shared   int                // 引用计数大于1的节点数
	Largest  common.StorageSize
	Orphaned int // 引用计数不为正的残留记录
}

// InspectShard遍历分片的所有trie节点。
func InspectShard(store *Store, uid entity.ShardUID) (ShardStats, error) {
	var stats ShardStats
	err := store.Iterate(ColState, uid.Bytes(), func(key, value []byte, rc int64) bool {
		if len(key) != TrieNodeKeyLength {
			log.Warn("Skipping malformed trie node key", "shard", uid, "key", common.Bytes2Hex(key))
			return true
		}
		if rc <= 0 {
			stats.Orphaned++
			return true
		}
		size := common.StorageSize(len(value))
		stats.Nodes++
		stats.Size += size
		stats.Refs += rc
		if rc > 1 {
			stats.Shared++
		}
		if size > stats.Largest {
			stats.Largest = size
		}
		return true
	})
	return stats, err
}
