package memorydb

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/radiation-octopus/octopus-triestore/typedb"
)

// 如果在调用数据访问操作时已关闭内存数据库，则返回errMemorydbClosed。
var errMemorydbClosed = errors.New("database closed")

//数据库是一个短暂的键值存储。除了基本的数据存储功能外，它还支持按二进制字母顺序对键空间进行批写入和迭代。
type Database struct {
	db   map[string][]byte
	lock sync.RWMutex
}

// New返回一个包装映射，其中实现了所有必需的数据库接口方法。
func New() *Database {
	return &Database{
		db: make(map[string][]byte),
	}
}

// Close释放映射，之后的所有访问都返回errMemorydbClosed。
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.db = nil
	return nil
}

//IsHas检索键值存储中是否存在键。
func (db *Database) IsHas(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return false, errMemorydbClosed
	}
	_, ok := db.db[string(key)]
	return ok, nil
}

//Get检索给定的键（如果它存在于键值存储中）。
func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return nil, errMemorydbClosed
	}
	if entry, ok := db.db[string(key)]; ok {
		return copyBytes(entry), nil
	}
	return nil, typedb.ErrNotFound
}

//Put将给定值插入键值存储区。
func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return errMemorydbClosed
	}
	db.db[string(key)] = copyBytes(value)
	return nil
}

//Delete从键值存储中删除键。
func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return errMemorydbClosed
	}
	delete(db.db, string(key))
	return nil
}

// Len返回存储的条目数。
func (db *Database) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return len(db.db)
}

// NewBatch创建一个只写键值存储，该存储缓冲对其主机数据库的更改，直到调用最终写入。
func (db *Database) NewBatch() typedb.Batch {
	return &batch{db: db}
}

// NewBatchWithSize预先分配size个写入槽。
func (db *Database) NewBatchWithSize(size int) typedb.Batch {
	return &batch{db: db, writes: make([]keyvalue, 0, size)}
}

//NewIterator在具有特定键前缀的数据库内容子集上创建一个二进制字母迭代器，从特定的初始键开始（如果不存在，则在其之后）。
func (db *Database) NewIterator(prefix []byte, start []byte) typedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	var (
		pr     = string(prefix)
		st     = string(append(prefix, start...))
		keys   = make([]string, 0, len(db.db))
		values = make([][]byte, 0, len(db.db))
	)
	for key := range db.db {
		if !strings.HasPrefix(key, pr) {
			continue
		}
		if key >= st {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		values = append(values, db.db[key])
	}
	return &iterator{
		index:  -1,
		keys:   keys,
		values: values,
	}
}

// keyvalue是一个带有删除字段标记的键值元组，用于创建内存数据库写入批处理。
type keyvalue struct {
	key    []byte
	value  []byte
	delete bool
}

// 批处理是一个只写内存批处理，在调用write时将更改提交到其主机数据库。批处理不能同时使用。
type batch struct {
	db     *Database
	writes []keyvalue
	size   int
}

func (b *batch) Put(key []byte, value []byte) error {
	b.writes = append(b.writes, keyvalue{copyBytes(key), copyBytes(value), false})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.writes = append(b.writes, keyvalue{copyBytes(key), nil, true})
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int {
	return b.size
}

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.db == nil {
		return errMemorydbClosed
	}
	for _, kv := range b.writes {
		if kv.delete {
			delete(b.db.db, string(kv.key))
			continue
		}
		b.db.db[string(kv.key)] = kv.value
	}
	return nil
}

func (b *batch) Reset() {
	b.writes = b.writes[:0]
	b.size = 0
}

func (b *batch) Replay(w typedb.KeyValueWriter) error {
	for _, kv := range b.writes {
		if kv.delete {
			if err := w.Delete(kv.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

// 迭代器是整个迭代状态的深度副本，按键排序。
type iterator struct {
	index  int
	keys   []string
	values [][]byte
}

func (it *iterator) Next() bool {
	if it.index >= len(it.keys) {
		return false
	}
	it.index += 1
	return it.index < len(it.keys)
}

// 内存迭代器不会遇到错误。
func (it *iterator) Error() error {
	return nil
}

func (it *iterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.index])
}

func (it *iterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return it.values[it.index]
}

func (it *iterator) Release() {
	it.index, it.keys, it.values = -1, nil, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
