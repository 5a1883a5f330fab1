package rawdb

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-triestore/entity"
)

// WriteTrieNode把trie节点的引用计数加一，返回合并后的编码值。
func WriteTrieNode(update *StoreUpdate, uid entity.ShardUID, hash entity.Hash, node []byte) []byte {
	enc, err := update.IncrementRefcount(ColState, TrieNodeKey(uid, hash), node, 1)
	if err != nil {
		log.Error("Failed to store trie node", "shard", uid, "hash", hash, "err", err)
		return nil
	}
	return enc
}

// DeleteTrieNode把trie节点的引用计数减一。
func DeleteTrieNode(update *StoreUpdate, uid entity.ShardUID, hash entity.Hash) []byte {
	enc, err := update.IncrementRefcount(ColState, TrieNodeKey(uid, hash), nil, -1)
	if err != nil {
		log.Error("Failed to release trie node", "shard", uid, "hash", hash, "err", err)
		return nil
	}
	return enc
}

// ReadTrieNode检索所提供哈希的trie节点。节点不存在时返回(nil, nil)。
func ReadTrieNode(store *Store, uid entity.ShardUID, hash entity.Hash) ([]byte, error) {
	return store.Get(ColState, TrieNodeKey(uid, hash))
}

// HasTrieNode检查分片中是否存在仍被引用的trie节点。
func HasTrieNode(store *Store, uid entity.ShardUID, hash entity.Hash) bool {
	ok, err := store.Has(ColState, TrieNodeKey(uid, hash))
	if err != nil {
		log.Error("Failed to check trie node existence", "shard", uid, "hash", hash, "err", err)
		return false
	}
	return ok
}
