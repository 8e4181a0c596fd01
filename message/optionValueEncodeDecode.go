package message

import "encoding/binary"

// EncodeUint32 writes value into buf using the shortest big-endian encoding
// that represents it (0 bytes for 0, up to 4 bytes), the representation
// draft-09 uses for Max-Age, Uri-Port, Observe and the Block options.
func EncodeUint32(buf []byte, value uint32) (int, error) {
	switch {
	case value == 0:
		return 0, nil
	case value <= 0xff:
		if len(buf) < 1 {
			return 1, ErrBadOptionLength
		}
		buf[0] = byte(value)
		return 1, nil
	case value <= 0xffff:
		if len(buf) < 2 {
			return 2, ErrBadOptionLength
		}
		binary.BigEndian.PutUint16(buf, uint16(value))
		return 2, nil
	case value <= 0xffffff:
		if len(buf) < 3 {
			return 3, ErrBadOptionLength
		}
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], value)
		copy(buf, tmp[1:])
		return 3, nil
	default:
		if len(buf) < 4 {
			return 4, ErrBadOptionLength
		}
		binary.BigEndian.PutUint32(buf, value)
		return 4, nil
	}
}

// DecodeUint32 decodes a big-endian, possibly-shortened unsigned integer as
// emitted by EncodeUint32. A buf longer than 4 bytes is cut to its first
// 4 bytes before decoding.
func DecodeUint32(buf []byte) uint32 {
	var tmp [4]byte
	if len(buf) > 4 {
		buf = buf[:4]
	}
	copy(tmp[4-len(buf):], buf)
	return binary.BigEndian.Uint32(tmp[:])
}
