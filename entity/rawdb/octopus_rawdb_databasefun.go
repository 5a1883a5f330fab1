package rawdb

import (
	"github.com/radiation-octopus/octopus-triestore/typedb"
	"github.com/radiation-octopus/octopus-triestore/typedb/leveldb"
	"github.com/radiation-octopus/octopus-triestore/typedb/memorydb"
)

// NewMemoryDatabase创建了一个短暂的内存键值数据库
func NewMemoryDatabase() typedb.KeyValueStore {
	return memorydb.New()
}

// NewLevelDBDatabase创建了一个持久的键值数据库。
func NewLevelDBDatabase(file string, cache int, handles int, namespace string, readonly bool) (typedb.KeyValueStore, error) {
	db, err := leveldb.New(file, cache, handles, namespace, readonly)
	if err != nil {
		return nil, err
	}
	return db, nil
}
