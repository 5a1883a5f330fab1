// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/radiation-octopus/octopus-triestore/operationdb/trie"
)

const (
	datadirStateDatabase = "triestate" // 数据目录中状态数据库的路径
	datadirCleanJournal  = "triecache" // 数据目录中干净缓存日志的路径
	datadirLockFile      = "LOCK"      // 实例目录锁文件
	defaultInstanceName  = "trienode"  // 未指定Name时使用的实例名称
)

// Config是存储节点的配置，可以从TOML文件加载。
type Config struct {
	// Name设置节点的实例名称，数据保存在DataDir/Name下。不能包含/字符。
	Name string `toml:"-"`

	// DataDir是存储节点使用的文件系统文件夹。为空时使用内存数据库。
	DataDir string

	// DatabaseCache是leveldb的内存余量（MB），DatabaseHandles是文件句柄数。
	DatabaseCache   int `toml:",omitempty"`
	DatabaseHandles int `toml:",omitempty"`

	// CleanCache是trie节点干净缓存的大小（MB），为0时禁用。
	CleanCache int `toml:",omitempty"`

	// CleanCacheJournal是干净缓存日志的文件名，相对路径位于实例目录内。
	CleanCacheJournal string `toml:",omitempty"`

	// Trie是分片缓存的配置。
	Trie trie.Config
}

// DefaultConfig包含默认设置。
var DefaultConfig = Config{
	DataDir:           DefaultDataDir(),
	DatabaseCache:     512,
	DatabaseHandles:   256,
	CleanCache:        64,
	CleanCacheJournal: datadirCleanJournal,
	Trie:              trie.DefaultConfig,
}

// DefaultDataDir返回默认数据目录。
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".octopus-triestore")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}

func (c *Config) name() string {
	if c.Name == "" {
		return defaultInstanceName
	}
	return c.Name
}

// ResolvePath解析实例目录中的路径。
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.instanceDir(), path)
}

func (c *Config) instanceDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.name())
}

func (c *Config) validate() error {
	if strings.ContainsAny(c.Name, `/\`) {
		return errInvalidName
	}
	return nil
}
