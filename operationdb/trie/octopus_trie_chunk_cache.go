package trie

import "github.com/radiation-octopus/octopus-triestore/entity"

// chunkCache保存CachingChunk模式下读到的所有节点，生命周期与所属的CachingStorage相同。
// 值的总量由每个收据的gas上限约束，因此不设大小限制。不能并发使用。
type chunkCache map[entity.Hash][]byte

func (c chunkCache) get(hash entity.Hash) ([]byte, bool) {
	value, ok := c[hash]
	return value, ok
}

func (c chunkCache) put(hash entity.Hash, value []byte) {
	c[hash] = value
}
