//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX encoders require CGO; build with CGO_ENABLED=1 and onnxruntime")

// InitRuntime returns an error when built without CGO.
func InitRuntime(_ string) error { return errNoCGO }

// ONNXTextEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXTextEncoder struct{}

// NewONNXTextEncoder returns an error when built without CGO.
func NewONNXTextEncoder(_ string, _ int) (*ONNXTextEncoder, error) { return nil, errNoCGO }

// EncodeTokens always fails.
func (*ONNXTextEncoder) EncodeTokens(context.Context, []int64, []int64) (Output, error) {
	return Output{}, errNoCGO
}

// Hidden returns 0.
func (*ONNXTextEncoder) Hidden() int { return 0 }

// Close is a no-op.
func (*ONNXTextEncoder) Close() error { return nil }

// ONNXImageEncoder stub type when built without CGO.
type ONNXImageEncoder struct{}

// NewONNXImageEncoder returns an error when built without CGO.
func NewONNXImageEncoder(_ string, _ int) (*ONNXImageEncoder, error) { return nil, errNoCGO }

// EncodePixels always fails.
func (*ONNXImageEncoder) EncodePixels(context.Context, []float32) (Output, error) {
	return Output{}, errNoCGO
}

// ImageSize returns 0.
func (*ONNXImageEncoder) ImageSize() int { return 0 }

// Hidden returns 0.
func (*ONNXImageEncoder) Hidden() int { return 0 }

// Close is a no-op.
func (*ONNXImageEncoder) Close() error { return nil }
