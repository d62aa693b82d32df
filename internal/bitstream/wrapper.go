package bitstream

import (
	"encoding/binary"
	"errors"

	"bcread/internal/bcwire"
)

// IsWrapper reports whether buf begins with the wrapper-header magic.
func IsWrapper(buf []byte) bool {
	return len(buf) >= 4 && binary.LittleEndian.Uint32(buf) == bcwire.WrapperMagic
}

// IsRawBitcode reports whether buf begins with the bare container signature.
func IsRawBitcode(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == bcwire.MagicByte0 && buf[1] == bcwire.MagicByte1 &&
		buf[2] == 0xC0 && buf[3] == 0xDE
}

// StripWrapper returns the embedded bitcode region described by a wrapper
// header. The header fields are: magic, version, offset, size, cpu type, all
// little-endian 32-bit.
func StripWrapper(buf []byte) ([]byte, error) {
	if len(buf) < bcwire.WrapperHeaderSize {
		return nil, errors.New("bitstream: wrapper header truncated")
	}
	offset := binary.LittleEndian.Uint32(buf[8:])
	size := binary.LittleEndian.Uint32(buf[12:])
	if uint64(offset)+uint64(size) > uint64(len(buf)) {
		return nil, errors.New("bitstream: wrapper header describes region outside buffer")
	}
	return buf[offset : offset+size], nil
}
