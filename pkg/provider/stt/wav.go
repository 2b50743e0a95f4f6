package stt

import (
	"bytes"
	"encoding/binary"
)

// Defaults applied to PCM clips that leave SampleRate or Channels unset.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// wavHeader is the canonical 44-byte RIFF header of a 16-bit PCM file.
type wavHeader struct {
	Riff          [4]byte
	ChunkSize     uint32
	Wave          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// ToWAV returns a wrapped in a WAV container when it is raw PCM. Any other
// audio is returned unchanged.
func (a Audio) ToWAV() Audio {
	if !a.IsPCM() {
		return a
	}
	rate, channels := a.SampleRate, a.Channels
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	const bits = 16
	h := wavHeader{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(a.Data)),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      uint16(channels),
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * channels * bits / 8),
		BlockAlign:    uint16(channels * bits / 8),
		BitsPerSample: bits,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(a.Data)),
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(a.Data))
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(a.Data)
	return Audio{Data: buf.Bytes(), MIMEType: MIMEWAV, SampleRate: rate, Channels: channels}
}
