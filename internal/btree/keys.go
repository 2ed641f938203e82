package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/fenndb/fenndb/common"
)

// encodeKey writes v's on-disk representation: fixed-stride for BOOLEAN
// (1 byte) and INTEGER (4 bytes, little-endian), length-prefixed for
// VARCHAR (2-byte little-endian length + bytes).
func encodeKey(v common.Value) ([]byte, error) {
	switch v.Tag {
	case common.TypeBoolean:
		b, _ := v.AsBoolean()
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case common.TypeInteger:
		i, _ := v.AsInteger()
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(i))
		return buf, nil
	case common.TypeVarchar:
		s, _ := v.AsVarchar()
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("%w: varchar key too long (%d bytes)", common.ErrIO, len(s))
		}
		buf := make([]byte, 2+len(s))
		binary.LittleEndian.PutUint16(buf, uint16(len(s)))
		copy(buf[2:], s)
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode key of type %s", common.ErrTypeMismatch, v.Tag)
	}
}

// decodeKey reads one key of keyType starting at buf[0], returning the
// decoded value and the number of bytes consumed.
func decodeKey(keyType common.TypeTag, buf []byte) (common.Value, int, error) {
	switch keyType {
	case common.TypeBoolean:
		if len(buf) < 1 {
			return common.Value{}, 0, fmt.Errorf("%w: truncated boolean key", common.ErrIO)
		}
		return common.NewBoolean(buf[0] != 0), 1, nil
	case common.TypeInteger:
		if len(buf) < 4 {
			return common.Value{}, 0, fmt.Errorf("%w: truncated integer key", common.ErrIO)
		}
		return common.NewInteger(int32(binary.LittleEndian.Uint32(buf))), 4, nil
	case common.TypeVarchar:
		if len(buf) < 2 {
			return common.Value{}, 0, fmt.Errorf("%w: truncated varchar key length", common.ErrIO)
		}
		n := int(binary.LittleEndian.Uint16(buf))
		if len(buf) < 2+n {
			return common.Value{}, 0, fmt.Errorf("%w: truncated varchar key body", common.ErrIO)
		}
		return common.NewVarchar(string(buf[2 : 2+n])), 2 + n, nil
	default:
		return common.Value{}, 0, fmt.Errorf("%w: unsupported key type %s", common.ErrTypeMismatch, keyType)
	}
}

// fixedKeyWidth returns the encoded width for fixed-stride key types, or
// 0 for VARCHAR (whose width varies per key).
func fixedKeyWidth(keyType common.TypeTag) int {
	switch keyType {
	case common.TypeBoolean:
		return 1
	case common.TypeInteger:
		return 4
	default:
		return 0
	}
}
