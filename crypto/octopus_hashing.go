package crypto

import (
	"hash"
	"sync"

	"github.com/radiation-octopus/octopus-triestore/entity"
	"golang.org/x/crypto/sha3"
)

// KeccakState包装sha3.state。除了通常的哈希方法外，它还支持Read从哈希状态获取可变数量的数据。
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// hasherPool保存LegacyKeccak256哈希器。
var hasherPool = sync.Pool{
	New: func() interface{} { return sha3.NewLegacyKeccak256() },
}

// Keccak256Hash计算并返回输入数据的Keccak256哈希，trie节点以此作为键。
func Keccak256Hash(data ...[]byte) (h entity.Hash) {
	sha := hasherPool.Get().(KeccakState)
	defer hasherPool.Put(sha)
	sha.Reset()
	for _, b := range data {
		sha.Write(b)
	}
	sha.Read(h[:])
	return h
}
