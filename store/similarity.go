package store

import (
	"math"
)

// CosineSimilarity computes cosine similarity between two vectors.
// Similarity is 0 when either vector is empty, has zero norm, or the
// lengths differ; exact-scan backends rely on this instead of erroring on
// stored vectors of a different dimension.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// ClampScore converts a cosine-distance-derived score into the [0,1] range
// every backend reports. Distance indexes hand back 1-distance, which can
// drift slightly outside the range on float rounding or non-normalized
// vectors.
func ClampScore(score float32) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
