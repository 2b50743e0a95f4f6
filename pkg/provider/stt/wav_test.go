package stt_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/MrWong99/kotoba/pkg/provider/stt"
)

func TestToWAV(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 3200)
	got := stt.Audio{Data: pcm, MIMEType: stt.MIMEPCM, SampleRate: 24000, Channels: 2}.ToWAV()

	if got.MIMEType != stt.MIMEWAV || got.Filename() != "audio.wav" {
		t.Errorf("MIMEType = %q, Filename = %q", got.MIMEType, got.Filename())
	}
	d := got.Data
	if len(d) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(d), 44+len(pcm))
	}
	if !bytes.Equal(d[0:4], []byte("RIFF")) || !bytes.Equal(d[8:12], []byte("WAVE")) || !bytes.Equal(d[36:40], []byte("data")) {
		t.Errorf("header = % x", d[:44])
	}
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", binary.LittleEndian.Uint32(d[4:8]), uint32(36 + len(pcm))},
		{"channels", uint32(binary.LittleEndian.Uint16(d[22:24])), 2},
		{"sample rate", binary.LittleEndian.Uint32(d[24:28]), 24000},
		{"byte rate", binary.LittleEndian.Uint32(d[28:32]), 24000 * 2 * 2},
		{"bits per sample", uint32(binary.LittleEndian.Uint16(d[34:36])), 16},
		{"data size", binary.LittleEndian.Uint32(d[40:44]), uint32(len(pcm))},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestToWAV_Defaults(t *testing.T) {
	t.Parallel()
	got := stt.Audio{Data: []byte{1, 2}, MIMEType: "audio/L16; rate=16000"}.ToWAV()
	if got.SampleRate != stt.DefaultSampleRate || got.Channels != stt.DefaultChannels {
		t.Errorf("SampleRate/Channels = %d/%d", got.SampleRate, got.Channels)
	}
}

func TestToWAV_ContainerUnchanged(t *testing.T) {
	t.Parallel()
	in := stt.Audio{Data: []byte("OggS"), MIMEType: stt.MIMEOgg}
	got := in.ToWAV()
	if !bytes.Equal(got.Data, in.Data) || got.MIMEType != stt.MIMEOgg {
		t.Errorf("ToWAV changed container audio: %+v", got)
	}
}

func TestAudio_Filename(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":                       "audio.wav",
		"audio/webm;codecs=opus": "audio.webm",
		"AUDIO/OGG":              "audio.ogg",
		stt.MIMEMP3:              "audio.mp3",
		"audio/x-m4a":            "audio.m4a",
	}
	for mime, want := range tests {
		if got := (stt.Audio{MIMEType: mime}).Filename(); got != want {
			t.Errorf("Filename(%q) = %q, want %q", mime, got, want)
		}
	}
}
