package audio

import (
	"bytes"
	"encoding/binary"
)

const wavHeaderSize = 44

// WrapWAV wraps raw mono PCM samples in a RIFF/WAVE header so transcription
// backends that expect a container can consume them.
func WrapWAV(pcm []byte, info EncodingInfo) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	bitsPerSample := uint16(info.Format.ByteSize() * 8)
	byteRate := uint32(info.SampleRate * info.Format.ByteSize())
	blockAlign := uint16(info.Format.ByteSize())

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(info.SampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitsPerSample)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
