package audio

import (
	"bytes"
	"testing"
)

func TestFramerReframesStream(t *testing.T) {
	f := NewFramer(3200)

	// 10000 bytes arriving in uneven chunks must produce three 3200-byte
	// frames plus a 400-byte residual.
	var frames [][]byte
	for _, n := range []int{1000, 2500, 4500, 2000} {
		chunk := bytes.Repeat([]byte{0xAB}, n)
		frames = append(frames, f.Push(chunk)...)
	}
	if len(frames) != 3 {
		t.Fatalf("complete frames = %d, want 3", len(frames))
	}
	for i, frame := range frames {
		if len(frame) != 3200 {
			t.Fatalf("frame %d length = %d, want 3200", i, len(frame))
		}
	}

	rest := f.Flush()
	if len(rest) != 400 {
		t.Fatalf("residual = %d bytes, want 400", len(rest))
	}
	if f.Pending() != 0 {
		t.Fatalf("Pending() after Flush = %d, want 0", f.Pending())
	}
}

func TestFramerShortPushesBuffer(t *testing.T) {
	f := NewFramer(3200)
	if frames := f.Push(make([]byte, 3199)); frames != nil {
		t.Fatalf("frames = %d, want none below frame size", len(frames))
	}
	if f.Pending() != 3199 {
		t.Fatalf("Pending() = %d, want 3199", f.Pending())
	}
	frames := f.Push(make([]byte, 1))
	if len(frames) != 1 || len(frames[0]) != 3200 {
		t.Fatalf("frames = %v, want one full frame", len(frames))
	}
	if rest := f.Flush(); len(rest) != 0 {
		t.Fatalf("residual = %d bytes, want 0", len(rest))
	}
}

func TestFramerExactMultiple(t *testing.T) {
	f := NewFramer(3200)
	frames := f.Push(make([]byte, 9600))
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if rest := f.Flush(); len(rest) != 0 {
		t.Fatalf("residual = %d bytes, want 0", len(rest))
	}
}

func TestFramerPreservesByteOrder(t *testing.T) {
	f := NewFramer(4)
	frames := f.Push([]byte{1, 2, 3, 4, 5, 6})
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3, 4}) {
		t.Fatalf("frame = %v, want [1 2 3 4]", frames[0])
	}
	if rest := f.Flush(); !bytes.Equal(rest, []byte{5, 6}) {
		t.Fatalf("residual = %v, want [5 6]", rest)
	}
}

func BenchmarkFramerPush(b *testing.B) {
	chunk := make([]byte, 4096)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := NewFramer(3200)
		f.Push(chunk)
		f.Push(chunk)
		f.Flush()
	}
}
