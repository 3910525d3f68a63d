// Package audio holds PCM16 sample plumbing shared by the capture, playback,
// and transcription paths.
package audio

import "math"

func clampFloat32(sample float32) int16 {
	if sample > 1.0 {
		return math.MaxInt16
	}
	if sample < -1.0 {
		return math.MinInt16
	}
	return int16(sample * math.MaxInt16)
}

// Float32ToInt16 converts normalized samples to PCM16.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		out[i] = clampFloat32(sample)
	}
	return out
}

// Int16ToFloat32 converts PCM16 samples to normalized float32.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / float32(math.MaxInt16)
	}
	return out
}

// Int16ToBytes converts PCM16 samples to little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian bytes to PCM16 samples. A trailing odd
// byte is dropped.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
