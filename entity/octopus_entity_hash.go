package entity

import (
	"github.com/ethereum/go-ethereum/common"
)

// HashLength是trie节点哈希的字节长度。
const HashLength = common.HashLength

// Hash是trie节点内容的Keccak-256哈希，与go-ethereum的trie共用同一类型。
type Hash = common.Hash

// BytesToHash将b设置为哈希。如果b大于len（h），b将从左侧裁剪。
func BytesToHash(b []byte) Hash { return common.BytesToHash(b) }

// HexToHash将s的字节表示形式设置为哈希。
func HexToHash(s string) Hash { return common.HexToHash(s) }
