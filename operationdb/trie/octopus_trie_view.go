package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb/database"
	"github.com/radiation-octopus/octopus-triestore/entity"
)

// TrieReader是预取线程遍历trie所需的只读视图。
type TrieReader interface {
	Get(key []byte) ([]byte, error)
}

// storageNodeDatabase让go-ethereum的trie通过TrieStorage按哈希读取节点。
type storageNodeDatabase struct {
	storage TrieStorage
}

func (db *storageNodeDatabase) NodeReader(stateRoot common.Hash) (database.NodeReader, error) {
	return db, nil
}

// Node忽略owner和path，节点只按内容哈希寻址。
func (db *storageNodeDatabase) Node(owner common.Hash, path []byte, hash common.Hash) ([]byte, error) {
	return db.storage.RetrieveRawBytes(hash)
}

// NewTrieView在storage上打开以root为根的trie。打开时会读取根节点。
func NewTrieView(root entity.Hash, storage TrieStorage) (TrieReader, error) {
	tr, err := gethtrie.New(gethtrie.TrieID(root), &storageNodeDatabase{storage: storage})
	if err != nil {
		return nil, err
	}
	return tr, nil
}
