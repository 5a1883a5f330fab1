package rawdb

import (
	"errors"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/radiation-octopus/octopus-triestore/typedb"
)

type meter interface {
	Mark(n int64)
}

var (
	storeReadMeter       meter = metrics.NewRegisteredMeter("rawdb/store/read", nil)
	storeWriteMeter      meter = metrics.NewRegisteredMeter("rawdb/store/write", nil)
	storeCleanHitMeter   meter = metrics.NewRegisteredMeter("rawdb/store/clean/hit", nil)
	storeCleanMissMeter  meter = metrics.NewRegisteredMeter("rawdb/store/clean/miss", nil)
	storeCleanWriteMeter meter = metrics.NewRegisteredMeter("rawdb/store/clean/write", nil)
)

// Config定义存储的可选干净缓存。
type Config struct {
	Cache   int    // 干净缓存的内存余量（MB），0表示禁用
	Journal string // 节点重新启动后的干净缓存日志
}

// Store是按列寻址的键值存储，ColState列的值带有引用计数。
type Store struct {
	diskdb  typedb.KeyValueStore
	cleans  *fastcache.Cache
	journal string
}

// NewStore在给定的键值数据库上创建存储。config为nil时不创建干净缓存。
func NewStore(diskdb typedb.KeyValueStore, config *Config) *Store {
	s := &Store{diskdb: diskdb}
	if config != nil && config.Cache > 0 {
		if config.Journal == "" {
			s.cleans = fastcache.New(config.Cache * 1024 * 1024)
		} else {
			s.cleans = fastcache.LoadFromFileOrNew(config.Journal, config.Cache*1024*1024)
			s.journal = config.Journal
		}
	}
	return s
}

// DiskDB检索支持存储的持久数据库。
func (s *Store) DiskDB() typedb.KeyValueStore {
	return s.diskdb
}

// Get读取col列中的key。键不存在时返回(nil, nil)；带引用计数的列会去掉rc，墓碑也返回nil。
// 干净缓存只保存ColState列解码后的值，该值按内容寻址，不会随引用计数变化。
func (s *Store) Get(col DBCol, key []byte) ([]byte, error) {
	k := colKey(col, key)
	cached := s.cleans != nil && col.IsRefcounted()
	if cached {
		if value, ok := s.cleans.HasGet(nil, k); ok {
			storeCleanHitMeter.Mark(1)
			return value, nil
		}
		storeCleanMissMeter.Mark(1)
	}
	enc, err := s.getRaw(k)
	if err != nil || enc == nil {
		return nil, err
	}
	if !col.IsRefcounted() {
		return enc, nil
	}
	value, _ := DecodeValueWithRC(enc)
	if cached && value != nil {
		s.cleans.Set(k, value)
		storeCleanWriteMeter.Mark(int64(len(value)))
	}
	return value, nil
}

// getRaw直接从磁盘读取原始编码，不经过干净缓存。
func (s *Store) getRaw(k []byte) ([]byte, error) {
	enc, err := s.diskdb.Get(k)
	if errors.Is(err, typedb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	storeReadMeter.Mark(int64(len(enc)))
	return enc, nil
}

// Has报告col列中是否存在key。带引用计数的列只保存引用计数为正的记录。
func (s *Store) Has(col DBCol, key []byte) (bool, error) {
	return s.diskdb.IsHas(colKey(col, key))
}

// Iterate按键的升序遍历col列中以prefix开头的记录，fn返回false时停止。
// 传给fn的切片在下一次回调之前有效；带引用计数的列会拆分出rc。
func (s *Store) Iterate(col DBCol, prefix []byte, fn func(key, value []byte, rc int64) bool) error {
	it := s.diskdb.NewIterator(colKey(col, prefix), nil)
	defer it.Release()

	for it.Next() {
		var (
			key   = it.Key()[1:]
			value = it.Value()
			rc    int64
		)
		if col.IsRefcounted() {
			value, rc = DecodeValueWithRC(value)
		}
		if !fn(key, value, rc) {
			break
		}
	}
	return it.Error()
}

// SaveCache把干净缓存写入日志文件，未配置日志时不做任何事。
func (s *Store) SaveCache() error {
	if s.cleans == nil || s.journal == "" {
		return nil
	}
	start := time.Now()
	if err := s.cleans.SaveToFileConcurrent(s.journal, runtime.GOMAXPROCS(0)); err != nil {
		log.Warn("Failed to persist clean store cache", "journal", s.journal, "err", err)
		return err
	}
	log.Info("Persisted the clean store cache", "journal", s.journal, "elapsed", common.PrettyDuration(time.Since(start)))
	return nil
}

// Close保存干净缓存并关闭底层数据库。
func (s *Store) Close() error {
	if err := s.SaveCache(); err != nil {
		log.Error("Clean cache journal not written", "err", err)
	}
	if s.cleans != nil {
		s.cleans.Reset()
	}
	return s.diskdb.Close()
}

// NewUpdate创建一个批量更新，Commit之前不会写入磁盘。
func (s *Store) NewUpdate() *StoreUpdate {
	return &StoreUpdate{
		store:   s,
		pending: make(map[string][]byte),
	}
}

// StoreUpdate累积对存储的修改。不能并发使用。
type StoreUpdate struct {
	store   *Store
	order   []string
	pending map[string][]byte // colKey -> 新编码，nil表示删除
}

func (u *StoreUpdate) stage(k []byte, enc []byte) {
	key := string(k)
	if _, ok := u.pending[key]; !ok {
		u.order = append(u.order, key)
	}
	u.pending[key] = enc
}

// Set写入不带引用计数的值。
func (u *StoreUpdate) Set(col DBCol, key []byte, value []byte) error {
	if col.IsRefcounted() {
		return errors.New("set on refcounted column " + col.String())
	}
	u.stage(colKey(col, key), common.CopyBytes(value))
	return nil
}

// Delete删除不带引用计数的值。
func (u *StoreUpdate) Delete(col DBCol, key []byte) error {
	if col.IsRefcounted() {
		return errors.New("delete on refcounted column " + col.String())
	}
	u.stage(colKey(col, key), nil)
	return nil
}

// IncrementRefcount把delta加到key的引用计数上，返回合并后的编码值。rc<=0时记录被删除，返回nil。
func (u *StoreUpdate) IncrementRefcount(col DBCol, key []byte, value []byte, delta int64) ([]byte, error) {
	if !col.IsRefcounted() {
		return nil, errors.New("refcount on plain column " + col.String())
	}
	k := colKey(col, key)
	existing, ok := u.pending[string(k)]
	if !ok {
		var err error
		if existing, err = u.store.getRaw(k); err != nil {
			return nil, err
		}
	}
	merged := mergeRefcount(existing, value, delta)
	u.stage(k, merged)
	return merged, nil
}

// Len返回待写入的键数。
func (u *StoreUpdate) Len() int {
	return len(u.order)
}

// Commit将所有修改原子地写入磁盘，并使干净缓存中被删除的项失效。
func (u *StoreUpdate) Commit() error {
	batch := u.store.diskdb.NewBatchWithSize(len(u.order))
	for _, key := range u.order {
		enc := u.pending[key]
		if enc == nil {
			if err := batch.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put([]byte(key), enc); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	storeWriteMeter.Mark(int64(batch.ValueSize()))
	if cleans := u.store.cleans; cleans != nil {
		if err := batch.Replay(&cleanInvalidator{cleans: cleans}); err != nil {
			return err
		}
	}
	u.order, u.pending = nil, make(map[string][]byte)
	return nil
}

// cleanInvalidator重播已写入的批次，删除干净缓存中被删除的项。
// 写入的值按内容寻址，缓存中已有的值仍然有效。
type cleanInvalidator struct {
	cleans *fastcache.Cache
}

func (c *cleanInvalidator) Put(key []byte, value []byte) error {
	return nil
}

func (c *cleanInvalidator) Delete(key []byte) error {
	c.cleans.Del(key)
	return nil
}
