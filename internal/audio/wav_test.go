package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := EncodeWAVPCM16LE(pcm, 24000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	if got := string(wav[0:4]); got != "RIFF" {
		t.Fatalf("magic = %q, want RIFF", got)
	}
	if got := string(wav[8:12]); got != "WAVE" {
		t.Fatalf("format = %q, want WAVE", got)
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != 36+uint32(len(pcm)) {
		t.Fatalf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Fatalf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d, want 16", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("data payload = %v, want %v", wav[44:], pcm)
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 8)
	negSample := int16(-16384)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(0)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[4:], uint16(negSample))
	binary.LittleEndian.PutUint16(pcm[6:], uint16(int16(32767)))

	wav, err := EncodeWAVPCM16LE(pcm, 32000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if clip.SampleRate != 32000 {
		t.Fatalf("sample rate = %d, want 32000", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Fatalf("channels = %d, want 1", clip.Channels)
	}
	want := []float32{0, 0.5, -0.5, float32(32767) / 32768}
	if len(clip.Samples) != len(want) {
		t.Fatalf("samples = %d, want %d", len(clip.Samples), len(want))
	}
	for i := range want {
		if diff := math.Abs(float64(clip.Samples[i] - want[i])); diff > 1e-4 {
			t.Fatalf("sample[%d] = %v, want %v", i, clip.Samples[i], want[i])
		}
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00}
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	// Splice a LIST chunk between fmt and data.
	var spliced bytes.Buffer
	spliced.Write(wav[:36])
	spliced.WriteString("LIST")
	var listSize [4]byte
	binary.LittleEndian.PutUint32(listSize[:], 4)
	spliced.Write(listSize[:])
	spliced.WriteString("INFO")
	spliced.Write(wav[36:])

	out := spliced.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))

	clip, err := DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(clip.Samples))
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("error = %v, want ErrNotWAV", err)
	}
	if _, err := DecodeWAV(nil); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("error = %v, want ErrNotWAV", err)
	}
}

func TestClipDuration(t *testing.T) {
	clip := Clip{Samples: make([]float32, 16000), SampleRate: 16000, Channels: 1}
	if got := clip.Duration(); got != time.Second {
		t.Fatalf("Duration() = %v, want 1s", got)
	}

	stereo := Clip{Samples: make([]float32, 16000), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != 500*time.Millisecond {
		t.Fatalf("Duration() = %v, want 500ms", got)
	}
}
