package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CLIReader runs the tesseract command with the image on stdin and reads text from stdout.
type CLIReader struct {
	path      string
	languages []string
	logger    *zap.Logger
}

// CLIOption configures a CLIReader.
type CLIOption func(*CLIReader)

// WithCLILogger sets the logger for the reader.
func WithCLILogger(l *zap.Logger) CLIOption {
	return func(r *CLIReader) {
		r.logger = l
	}
}

// NewCLIReader locates the tesseract binary. An empty path searches PATH.
func NewCLIReader(path string, languages []string, opts ...CLIOption) (*CLIReader, error) {
	if path == "" {
		path = "tesseract"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEngine, err)
	}
	r := &CLIReader{path: resolved, languages: languages, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ReadText recognizes text in img with automatic page segmentation.
func (r *CLIReader) ReadText(ctx context.Context, img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", nil
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	args := []string{"stdin", "stdout", "--psm", "3", "-c", "preserve_interword_spaces=1"}
	if len(r.languages) > 0 {
		args = append(args, "-l", strings.Join(r.languages, "+"))
	}
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	r.logger.Debug("tesseract finished",
		zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()), zap.Int("chars", stdout.Len()))
	return strings.TrimSpace(stdout.String()), nil
}
