package audio

// Framer reslices an incoming byte stream into fixed-size frames, carrying
// the residual across pushes. The trailing short residual, if any, is
// returned by Flush when the stream ends.
type Framer struct {
	size int
	rest []byte
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 3200
	}
	return &Framer{size: size}
}

// Push appends chunk and returns every complete frame now available, in
// order. Returned frames are copies; the caller may retain them.
func (f *Framer) Push(chunk []byte) [][]byte {
	f.rest = append(f.rest, chunk...)
	if len(f.rest) < f.size {
		return nil
	}
	n := len(f.rest) / f.size
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]byte, f.size)
		copy(frame, f.rest[i*f.size:(i+1)*f.size])
		frames = append(frames, frame)
	}
	f.rest = append(f.rest[:0], f.rest[n*f.size:]...)
	return frames
}

// Flush returns the pending residual (possibly empty) and resets the framer.
func (f *Framer) Flush() []byte {
	rest := f.rest
	f.rest = nil
	return rest
}

// Pending reports the residual byte count currently buffered.
func (f *Framer) Pending() int {
	return len(f.rest)
}
