package terr

import (
	"errors"
	"fmt"
	"syscall"
)

// 存储层错误。trie节点读取路径上的所有错误都归入以下三类之一，调用方通过errors.Is区分。
var (
	// 如果底层键值存储读取失败，则返回ErrStorageInternal。
	ErrStorageInternal = errors.New("storage internal error")

	// ErrStorageInconsistentState匹配所有InconsistentStateError。
	ErrStorageInconsistentState = errors.New("storage inconsistent state")

	// 如果部分存储中没有请求的节点，则返回ErrTrieNodeMissing。
	ErrTrieNodeMissing = errors.New("trie node missing from partial storage")
)

// InconsistentStateError表示必须存在的键缺失，或者预取无法完成。
type InconsistentStateError struct {
	Msg string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("storage inconsistent state: %s", e.Msg)
}

// Is让errors.Is(err, ErrStorageInconsistentState)对任意消息成立。
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrStorageInconsistentState
}

// NewInconsistentState创建带消息的InconsistentStateError。
func NewInconsistentState(msg string) error {
	return &InconsistentStateError{Msg: msg}
}

// StorageInternal把后端错误包装为ErrStorageInternal。
func StorageInternal(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageInternal, err)
}

// 常用的不一致状态消息。
const (
	MsgTrieNodeMissing  = "Trie node missing"
	MsgPrefetcherFailed = "Prefetcher failed"
)

/**
datadir
*/
var (
	ErrDatadirUsed = errors.New("datadir already used by another process")

	datadirInUseErrnos = map[uint]bool{11: true, 32: true, 35: true}
)

func ConvertFileLockError(err error) error {
	if errno, ok := err.(syscall.Errno); ok && datadirInUseErrnos[uint(errno)] {
		return ErrDatadirUsed
	}
	return err
}
