package pcm

import "math"

// RMS returns the root-mean-square loudness of a frame.
// It is used for UI level meters only and never allocates.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
