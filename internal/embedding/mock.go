package embedding

import (
	"context"
	"image"
	"math"
	"strings"

	"github.com/hyperjump/lens/pkg/utils"
)

// MockTextEncoder emits deterministic per-token hidden states derived from token ids.
type MockTextEncoder struct {
	hidden int
	Calls  int
}

// NewMockTextEncoder returns a per-token text encoder of the given width.
func NewMockTextEncoder(hidden int) *MockTextEncoder {
	return &MockTextEncoder{hidden: hidden}
}

// EncodeTokens returns one row per position.
func (m *MockTextEncoder) EncodeTokens(_ context.Context, ids, _ []int64) (Output, error) {
	m.Calls++
	data := make([]float32, len(ids)*m.hidden)
	for p, id := range ids {
		for h := 0; h < m.hidden; h++ {
			data[p*m.hidden+h] = float32(math.Sin(float64(id+1) * float64(h+1) * 0.37))
		}
	}
	return Output{Kind: PerToken, Data: data, Positions: len(ids), Hidden: m.hidden}, nil
}

// Hidden returns the output width.
func (m *MockTextEncoder) Hidden() int { return m.hidden }

// Close is a no-op.
func (m *MockTextEncoder) Close() error { return nil }

// MockImageEncoder emits a pooled vector of per-band channel means.
type MockImageEncoder struct {
	hidden int
	size   int
}

// NewMockImageEncoder returns a pooled image encoder of the given width and input size.
func NewMockImageEncoder(hidden, size int) *MockImageEncoder {
	return &MockImageEncoder{hidden: hidden, size: size}
}

// EncodePixels averages the tensor in hidden equal bands.
func (m *MockImageEncoder) EncodePixels(_ context.Context, pixels []float32) (Output, error) {
	out := make([]float32, m.hidden)
	band := len(pixels) / m.hidden
	if band == 0 {
		band = 1
	}
	for i := 0; i < m.hidden && i*band < len(pixels); i++ {
		var sum float32
		end := min((i+1)*band, len(pixels))
		for _, v := range pixels[i*band : end] {
			sum += v
		}
		out[i] = sum / float32(end-i*band)
	}
	return Output{Kind: Pooled, Data: out, Hidden: m.hidden}, nil
}

// ImageSize returns the expected input resolution.
func (m *MockImageEncoder) ImageSize() int { return m.size }

// Hidden returns the output width.
func (m *MockImageEncoder) Hidden() int { return m.hidden }

// Close is a no-op.
func (m *MockImageEncoder) Close() error { return nil }

// MockEmbedder is a deterministic embedder for tests. Identical text or identical pixels
// always produce identical vectors.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EncodeText returns a vector derived from the text hash.
func (e *MockEmbedder) EncodeText(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EncodeImage returns a vector of 4x4 grid mean colours, centred and tiled to the embedding width.
func (e *MockEmbedder) EncodeImage(_ context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return []float32{}, nil
	}
	b := img.Bounds()
	var feat [48]float64
	var counts [16]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cell := ((y-b.Min.Y)*4/b.Dy())*4 + (x-b.Min.X)*4/b.Dx()
			r, g, bl, _ := img.At(x, y).RGBA()
			feat[cell*3] += float64(r) / 0xffff
			feat[cell*3+1] += float64(g) / 0xffff
			feat[cell*3+2] += float64(bl) / 0xffff
			counts[cell]++
		}
	}
	emb := make([]float32, e.dimensions)
	for i := range emb {
		j := i % len(feat)
		n := counts[j/3]
		if n == 0 {
			continue
		}
		emb[i] = float32(feat[j]/float64(n) - 0.5)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error { return nil }

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
