package entity

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ShardUIDLength是ShardUID序列化后的字节长度。
const ShardUIDLength = 8

var errShardUIDLength = errors.New("shard uid must be 8 bytes")

// ShardUID在某个分片布局版本下唯一标识一个分片。
type ShardUID struct {
	Version uint32 // 分片布局版本
	ShardID uint32 // 布局内的分片编号
}

// Bytes返回version‖shard_id的小端字节表示。
func (s ShardUID) Bytes() []byte {
	var b [ShardUIDLength]byte
	binary.LittleEndian.PutUint32(b[:4], s.Version)
	binary.LittleEndian.PutUint32(b[4:], s.ShardID)
	return b[:]
}

// String实现了fmt.Stringer。
func (s ShardUID) String() string {
	return fmt.Sprintf("s%d.v%d", s.ShardID, s.Version)
}

// ShardUIDFromBytes解析Bytes生成的8字节表示。
func ShardUIDFromBytes(b []byte) (ShardUID, error) {
	if len(b) != ShardUIDLength {
		return ShardUID{}, errShardUIDLength
	}
	return ShardUID{
		Version: binary.LittleEndian.Uint32(b[:4]),
		ShardID: binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// SingleShardUID是只有一个分片时使用的标识。
var SingleShardUID = ShardUID{Version: 0, ShardID: 0}
