package rawdb

import (
	"fmt"

	"github.com/radiation-octopus/octopus-triestore/entity"
)

// DBCol标识存储中的列，每个键都以列字节为前缀。
type DBCol byte

const (
	// ColState保存以shard_uid‖hash为键的trie节点，值带有引用计数。
	ColState DBCol = iota + 1

	// ColMisc保存不带引用计数的杂项数据。
	ColMisc
)

// TrieNodeKeyLength是trie节点键的长度：8字节shard_uid加32字节哈希。
const TrieNodeKeyLength = entity.ShardUIDLength + entity.HashLength

var colNames = map[DBCol]string{
	ColState: "State",
	ColMisc:  "Misc",
}

func (c DBCol) String() string {
	if name, ok := colNames[c]; ok {
		return name
	}
	return fmt.Sprintf("DBCol(%d)", byte(c))
}

// IsRefcounted报告该列的值是否以value‖rc格式存储。
func (c DBCol) IsRefcounted() bool {
	return c == ColState
}

// colKey = col + key
func colKey(col DBCol, key []byte) []byte {
	buf := make([]byte, 0, 1+len(key))
	buf = append(buf, byte(col))
	return append(buf, key...)
}

// TrieNodeKey = shard_uid + hash
func TrieNodeKey(uid entity.ShardUID, hash entity.Hash) []byte {
	key := make([]byte, 0, TrieNodeKeyLength)
	key = append(key, uid.Bytes()...)
	return append(key, hash.Bytes()...)
}

// DecodeTrieNodeKey将trie节点键拆分为shard_uid和哈希。
func DecodeTrieNodeKey(key []byte) (entity.ShardUID, entity.Hash, error) {
	if len(key) != TrieNodeKeyLength {
		return entity.ShardUID{}, entity.Hash{}, fmt.Errorf("trie node key has %d bytes, want %d", len(key), TrieNodeKeyLength)
	}
	uid, err := entity.ShardUIDFromBytes(key[:entity.ShardUIDLength])
	if err != nil {
		return entity.ShardUID{}, entity.Hash{}, err
	}
	return uid, entity.BytesToHash(key[entity.ShardUIDLength:]), nil
}
