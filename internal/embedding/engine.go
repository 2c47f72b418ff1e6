package embedding

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/lens/pkg/utils"
)

// Engine pairs a tokenizer with text and image encoders.
type Engine struct {
	tokenizer *Tokenizer
	text      TextEncoder
	image     ImageEncoder
	maxTokens int
	cache     *VectorCache
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxTokens sets the token sequence length. Default 77.
func WithMaxTokens(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithCacheSize bounds the text embedding cache. Zero disables caching.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.cache = NewVectorCache(n)
		} else {
			e.cache = nil
		}
	}
}

// NewEngine builds an engine. Either encoder may be nil; the matching Encode call then
// returns ErrModelUnavailable. When both are set they must report the same hidden width.
func NewEngine(tok *Tokenizer, text TextEncoder, img ImageEncoder, opts ...EngineOption) (*Engine, error) {
	if text != nil && tok == nil {
		return nil, fmt.Errorf("text encoder requires a tokenizer")
	}
	if text != nil && img != nil && text.Hidden() != img.Hidden() {
		return nil, fmt.Errorf("text encoder width %d does not match image encoder width %d", text.Hidden(), img.Hidden())
	}
	e := &Engine{
		tokenizer: tok,
		text:      text,
		image:     img,
		maxTokens: 77,
		cache:     NewVectorCache(10000),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EncodeText returns the unit-length embedding of text. Blank text yields an empty vector.
func (e *Engine) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}
	if e.text == nil {
		return nil, ErrModelUnavailable
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(text); ok {
			return cached, nil
		}
	}
	ids, mask := e.tokenizer.Encode(text, e.maxTokens)
	out, err := e.text.EncodeTokens(ctx, ids, mask)
	if err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	vec, err := out.Pool(mask)
	if err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	utils.NormalizeL2(vec)
	if e.cache != nil {
		e.cache.Put(text, vec)
	}
	return vec, nil
}

// EncodeImage returns the unit-length embedding of img.
func (e *Engine) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return []float32{}, nil
	}
	if e.image == nil {
		return nil, ErrModelUnavailable
	}
	pixels := ImageTensor(img, e.image.ImageSize(), ClipMean, ClipStd)
	out, err := e.image.EncodePixels(ctx, pixels)
	if err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	vec, err := out.Pool(nil)
	if err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	utils.NormalizeL2(vec)
	e.logger.Debug("image encoded", zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))
	return vec, nil
}

// Dimensions returns the embedding width, or 0 when no encoder is loaded.
func (e *Engine) Dimensions() int {
	switch {
	case e.text != nil:
		return e.text.Hidden()
	case e.image != nil:
		return e.image.Hidden()
	}
	return 0
}

// CacheStats reports text embedding cache usage. The zero value is returned when caching
// is disabled.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// HasText reports whether a text encoder is loaded.
func (e *Engine) HasText() bool { return e.text != nil }

// HasImage reports whether an image encoder is loaded.
func (e *Engine) HasImage() bool { return e.image != nil }

// Close releases both encoders.
func (e *Engine) Close() error {
	var firstErr error
	if e.text != nil {
		if err := e.text.Close(); err != nil {
			firstErr = err
		}
		e.text = nil
	}
	if e.image != nil {
		if err := e.image.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.image = nil
	}
	return firstErr
}
