package rawdb

import "encoding/binary"

// refcountLength是值尾部引用计数的字节数（小端i64）。
const refcountLength = 8

// EncodeValueWithRC把引用计数附加到值后面。
func EncodeValueWithRC(value []byte, rc int64) []byte {
	enc := make([]byte, len(value)+refcountLength)
	copy(enc, value)
	binary.LittleEndian.PutUint64(enc[len(value):], uint64(rc))
	return enc
}

// DecodeValueWithRC拆分value‖rc。rc<=0时值为nil，表示墓碑。
func DecodeValueWithRC(enc []byte) ([]byte, int64) {
	if len(enc) < refcountLength {
		return nil, 0
	}
	split := len(enc) - refcountLength
	rc := int64(binary.LittleEndian.Uint64(enc[split:]))
	if rc <= 0 {
		return nil, rc
	}
	return enc[:split], rc
}

// mergeRefcount把delta合并到已有记录中，返回新的编码值；结果rc<=0时返回nil。
func mergeRefcount(existing []byte, value []byte, delta int64) []byte {
	oldValue, rc := DecodeValueWithRC(existing)
	rc += delta
	if rc <= 0 {
		return nil
	}
	if len(value) == 0 {
		value = oldValue
	}
	return EncodeValueWithRC(value, rc)
}
