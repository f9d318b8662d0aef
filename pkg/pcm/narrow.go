package pcm

import "encoding/binary"

// Narrow32 narrows raw 32-bit-slot capture frames to 16-bit storage
// samples, appending to dst and returning the extended slice.
//
// MEMS microphones on a serial audio bus deliver each sample in a
// 32-bit slot with the significant bits at the top; keeping the high
// 16 bits of each little-endian word is the storage narrowing the
// capture engine applies before a sample ever reaches the buffer.
// Trailing bytes that do not make up a whole 32-bit slot are ignored.
func Narrow32(dst, src []byte) []byte {
	for len(src) >= 4 {
		v := binary.LittleEndian.Uint32(src[:4])
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v>>16))
		src = src[4:]
	}
	return dst
}
