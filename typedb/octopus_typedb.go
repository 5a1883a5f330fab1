package typedb

import (
	"errors"
	"io"
)

// 如果请求的键不在键值存储中，后端返回ErrNotFound。
var ErrNotFound = errors.New("not found")

//定义读取数据所需的方法
type KeyValueReader interface {
	//是否存在键
	IsHas(key []byte) (bool, error)

	//通过键检索值，键不存在时返回ErrNotFound
	Get(key []byte) ([]byte, error)
}

type KeyValueWriter interface {
	// Put将给定值插入键值数据存储。
	Put(key []byte, value []byte) error

	// Delete从键值数据存储中删除键。
	Delete(key []byte) error
}

// KeyValueStore包含允许处理支持高级数据库的不同键值数据存储所需的所有方法。
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	Batcher
	Iteratee
	io.Closer
}
