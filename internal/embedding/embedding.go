// Package embedding provides vector similarity over text embeddings.
package embedding

import "math"

// Cosine returns the cosine similarity of a and b, clamped to [0, 1].
// If either vector has zero magnitude (or the lengths differ), it returns 0:
// a degenerate embedding can never support a similarity claim.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
