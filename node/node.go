package node

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/tsdb/fileutil"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/operationdb"
	"github.com/radiation-octopus/octopus-triestore/terr"
	"github.com/radiation-octopus/octopus-triestore/typedb"
)

// Node持有数据目录锁、状态数据库以及其上的分片trie注册表。
type Node struct {
	config  *Config
	log     log.Logger
	dirLock fileutil.Releaser // 防止并发使用实例目录

	db    typedb.KeyValueStore
	store *rawdb.Store
	tries *operationdb.ShardTries

	lock   sync.Mutex
	closed bool
}

// New锁定实例目录并打开状态数据库。DataDir为空时节点是临时的。
func New(conf *Config) (*Node, error) {
	// 复制config并解析datadir，以便将来对当前工作目录的更改不会影响节点。
	confCopy := *conf
	conf = &confCopy
	if conf.DataDir != "" {
		absdatadir, err := filepath.Abs(conf.DataDir)
		if err != nil {
			return nil, err
		}
		conf.DataDir = absdatadir
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	n := &Node{
		config: conf,
		log:    log.New("instance", conf.name()),
	}
	// 获取实例目录锁。
	if err := n.openDataDir(); err != nil {
		return nil, err
	}
	if err := n.openDatabase(); err != nil {
		n.closeDataDir()
		return nil, err
	}
	return n, nil
}

func (n *Node) openDataDir() error {
	if n.config.DataDir == "" {
		return nil // 短暂的
	}
	instdir := n.config.instanceDir()
	if err := os.MkdirAll(instdir, 0700); err != nil {
		return err
	}
	// 锁定实例目录，以防止另一个实例并发使用，以及意外使用实例目录作为数据库。
	release, _, err := fileutil.Flock(filepath.Join(instdir, datadirLockFile))
	if err != nil {
		return terr.ConvertFileLockError(err)
	}
	n.dirLock = release
	return nil
}

func (n *Node) openDatabase() error {
	var (
		db  typedb.KeyValueStore
		err error
	)
	storeConfig := &rawdb.Config{Cache: n.config.CleanCache}
	if n.config.DataDir == "" {
		db = rawdb.NewMemoryDatabase()
	} else {
		db, err = rawdb.NewLevelDBDatabase(n.config.ResolvePath(datadirStateDatabase), n.config.DatabaseCache, n.config.DatabaseHandles, "triestore/db/state/", false)
		if err != nil {
			return err
		}
		if n.config.CleanCacheJournal != "" {
			storeConfig.Journal = n.config.ResolvePath(n.config.CleanCacheJournal)
		}
	}
	n.db = db
	n.store = rawdb.NewStore(db, storeConfig)
	n.tries = operationdb.NewShardTries(n.store, n.config.Trie)
	n.log.Debug("Opened state database", "datadir", n.config.DataDir, "cache", n.config.DatabaseCache, "handles", n.config.DatabaseHandles, "clean", n.config.CleanCache)
	return nil
}

// Tries返回分片trie注册表。
func (n *Node) Tries() *operationdb.ShardTries {
	return n.tries
}

// Store返回状态存储。
func (n *Node) Store() *rawdb.Store {
	return n.store
}

// DataDir检索协议堆栈使用的当前datadir。
func (n *Node) DataDir() string {
	return n.config.DataDir
}

// ResolvePath返回实例目录中资源的绝对路径。
func (n *Node) ResolvePath(x string) string {
	return n.config.ResolvePath(x)
}

// Close关闭状态存储并释放实例目录锁。
func (n *Node) Close() error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.closed {
		return ErrNodeStopped
	}
	n.closed = true

	var errs []error
	if err := n.store.Close(); err != nil {
		errs = append(errs, err)
	}
	// 释放实例目录锁。
	n.closeDataDir()

	// 报告可能发生的任何错误。
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%v", errs)
	}
}

func (n *Node) closeDataDir() {
	// 释放实例目录锁。
	if n.dirLock != nil {
		if err := n.dirLock.Release(); err != nil {
			n.log.Error("Can't release datadir lock", "err", err)
		}
		n.dirLock = nil
	}
}
