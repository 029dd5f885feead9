package audio

import "encoding/binary"

// ResampleLinear converts channel-interleaved samples from srcRate to
// dstRate by per-channel linear interpolation. The input is returned
// unchanged when the rates already match or the arguments are degenerate.
func ResampleLinear(samples []float32, channels, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	if frames == 0 {
		return samples
	}

	outFrames := int(float64(frames) * float64(dstRate) / float64(srcRate))
	if outFrames <= 0 {
		outFrames = 1
	}
	out := make([]float32, outFrames*channels)
	step := float64(srcRate) / float64(dstRate)

	for ch := 0; ch < channels; ch++ {
		for i := 0; i < outFrames; i++ {
			pos := float64(i) * step
			lo := int(pos)
			if lo >= frames {
				lo = frames - 1
			}
			hi := lo + 1
			if hi >= frames {
				hi = frames - 1
			}
			frac := float32(pos - float64(lo))
			out[i*channels+ch] = samples[lo*channels+ch]*(1-frac) + samples[hi*channels+ch]*frac
		}
	}
	return out
}

// PCM16FromFloat32 serializes f32 samples as PCM16 little-endian bytes,
// clamping to [-1, 1]. Output byte order is little-endian on every host.
func PCM16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}
