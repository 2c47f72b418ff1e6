package embedding

import (
	"fmt"
	"os"
)

// ONNXConfig locates the model files for NewONNXEngine.
type ONNXConfig struct {
	TextModelPath  string
	ImageModelPath string
	TokenizerPath  string
	RuntimeLibrary string
	MaxTokens      int
	ImageSize      int
}

// NewONNXEngine loads the tokenizer and both encoders. A missing image model leaves the
// engine text-only; a missing text model or tokenizer is an error.
func NewONNXEngine(cfg ONNXConfig, opts ...EngineOption) (*Engine, error) {
	if err := InitRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}
	text, err := NewONNXTextEncoder(cfg.TextModelPath, cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to load text model: %w", err)
	}
	var img ImageEncoder
	if cfg.ImageModelPath != "" {
		if _, statErr := os.Stat(cfg.ImageModelPath); statErr == nil {
			enc, err := NewONNXImageEncoder(cfg.ImageModelPath, cfg.ImageSize)
			if err != nil {
				_ = text.Close()
				return nil, fmt.Errorf("failed to load image model: %w", err)
			}
			img = enc
		}
	}
	opts = append([]EngineOption{WithMaxTokens(cfg.MaxTokens)}, opts...)
	eng, err := NewEngine(tok, text, img, opts...)
	if err != nil {
		_ = text.Close()
		if img != nil {
			_ = img.Close()
		}
		return nil, err
	}
	return eng, nil
}
