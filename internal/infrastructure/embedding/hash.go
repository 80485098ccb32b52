package embedding

import (
	"context"
	"crypto/sha256"

	"CurateAI/internal/ports"
)

// HashEmbedder derives a pseudo-embedding from the SHA-256 digest of
// the text. Identical text always maps to an identical vector, which is
// exactly the determinism the redundancy contract needs; it carries no
// semantic signal beyond exact-duplicate detection. Used for dry runs
// and tests when no embedding service is configured.
type HashEmbedder struct {
	dims int
}

var _ ports.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder builds an embedder producing dims-length vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 768
	}
	return &HashEmbedder{dims: dims}
}

// Embed expands the text digest across the configured dimensions.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	digest := sha256.Sum256([]byte(text))

	vector := make([]float32, h.dims)
	for i := range vector {
		vector[i] = float32(digest[i%len(digest)])/255.0 - 0.5
	}
	return vector, nil
}

// Dimensions returns the fixed vector length.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}
