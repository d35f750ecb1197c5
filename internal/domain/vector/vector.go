// Package vector implements the similarity and distance measures used for ranking.
package vector

import (
	"math"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// Cosine returns the dot product of a and b over the product of their magnitudes.
// A zero-magnitude vector yields NaN; callers must treat it as non-comparable.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &domain.DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return math.NaN(), nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Euclidean returns the root of the summed squared differences of a and b.
func Euclidean(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &domain.DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
