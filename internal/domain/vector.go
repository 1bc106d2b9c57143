package domain

import "math"

// CosineSimilarity returns the cosine similarity of a and b clamped to [0,1].
// Mismatched lengths, empty inputs and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return Clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Clamp01 bounds v to the closed unit interval. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
