//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime loads the onnxruntime shared library once per process.
// An empty libraryPath uses the library's default lookup.
func InitRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return runtimeErr
}

// firstFloatOutput picks the first float tensor output and resolves its layout.
// Dynamic dimensions are bound to batch 1 and the given positions.
func firstFloatOutput(outputs []ort.InputOutputInfo, positions int) (name string, kind OutputKind, shape ort.Shape, err error) {
	for _, o := range outputs {
		if o.OrtValueType != ort.ONNXTypeTensor || o.DataType != ort.TensorElementDataTypeFloat {
			continue
		}
		kind, err = KindForRank(len(o.Dimensions))
		if err != nil {
			continue
		}
		shape = make(ort.Shape, len(o.Dimensions))
		copy(shape, o.Dimensions)
		shape[0] = 1
		if kind == PerToken && shape[1] <= 0 {
			if positions <= 0 {
				return "", 0, nil, fmt.Errorf("output %q has a dynamic sequence length", o.Name)
			}
			shape[1] = int64(positions)
		}
		if shape[len(shape)-1] <= 0 {
			return "", 0, nil, fmt.Errorf("output %q has a dynamic hidden size", o.Name)
		}
		return o.Name, kind, shape, nil
	}
	return "", 0, nil, fmt.Errorf("model has no float tensor output of rank 2 or 3")
}

func destroyAll(tensors ...ort.ArbitraryTensor) {
	for _, t := range tensors {
		if t != nil {
			_ = t.Destroy()
		}
	}
}

// ONNXTextEncoder runs a text model through ONNX Runtime. Runs are serialized.
type ONNXTextEncoder struct {
	session   *ort.AdvancedSession
	inputs    []*ort.Tensor[int64]
	isMask    []bool
	output    *ort.Tensor[float32]
	kind      OutputKind
	positions int
	hidden    int
	mu        sync.Mutex
}

// NewONNXTextEncoder loads the model at modelPath. Inputs whose name contains "attention"
// receive the mask; every other input receives the token ids.
func NewONNXTextEncoder(modelPath string, maxTokens int) (*ONNXTextEncoder, error) {
	if err := InitRuntime(""); err != nil {
		return nil, err
	}
	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text model metadata: %w", err)
	}
	outName, kind, outShape, err := firstFloatOutput(outInfo, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("text model: %w", err)
	}

	e := &ONNXTextEncoder{kind: kind, hidden: int(outShape[len(outShape)-1])}
	if kind == PerToken {
		e.positions = int(outShape[1])
	}
	inputNames := make([]string, 0, len(inInfo))
	inputs := make([]ort.ArbitraryTensor, 0, len(inInfo))
	for _, in := range inInfo {
		t, err := ort.NewEmptyTensor[int64](ort.NewShape(1, int64(maxTokens)))
		if err != nil {
			e.destroy()
			return nil, fmt.Errorf("failed to create %s tensor: %w", in.Name, err)
		}
		e.inputs = append(e.inputs, t)
		e.isMask = append(e.isMask, strings.Contains(strings.ToLower(in.Name), "attention"))
		inputNames = append(inputNames, in.Name)
		inputs = append(inputs, t)
	}
	e.output, err = ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(modelPath, inputNames, []string{outName},
		inputs, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}
	return e, nil
}

// EncodeTokens runs the model on ids and mask.
func (e *ONNXTextEncoder) EncodeTokens(ctx context.Context, ids, mask []int64) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Output{}, fmt.Errorf("text encoder is closed")
	}
	for i, t := range e.inputs {
		if e.isMask[i] {
			copy(t.GetData(), mask)
		} else {
			copy(t.GetData(), ids)
		}
	}
	if err := e.session.Run(); err != nil {
		return Output{}, err
	}
	data := make([]float32, len(e.output.GetData()))
	copy(data, e.output.GetData())
	return Output{Kind: e.kind, Data: data, Positions: e.positions, Hidden: e.hidden}, nil
}

// Hidden returns the output width.
func (e *ONNXTextEncoder) Hidden() int { return e.hidden }

// Kind returns the output layout chosen at load time.
func (e *ONNXTextEncoder) Kind() OutputKind { return e.kind }

// Close destroys the session and tensors.
func (e *ONNXTextEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroy()
	return err
}

func (e *ONNXTextEncoder) destroy() {
	for _, t := range e.inputs {
		destroyAll(t)
	}
	e.inputs = nil
	if e.output != nil {
		destroyAll(e.output)
		e.output = nil
	}
}

// ONNXImageEncoder runs an image model through ONNX Runtime. Runs are serialized.
type ONNXImageEncoder struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	kind      OutputKind
	positions int
	hidden    int
	size      int
	mu        sync.Mutex
}

// NewONNXImageEncoder loads the model at modelPath. The input resolution comes from the model
// when fixed, otherwise from size.
func NewONNXImageEncoder(modelPath string, size int) (*ONNXImageEncoder, error) {
	if err := InitRuntime(""); err != nil {
		return nil, err
	}
	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image model metadata: %w", err)
	}
	if len(inInfo) == 0 {
		return nil, fmt.Errorf("image model has no inputs")
	}
	if dims := inInfo[0].Dimensions; len(dims) == 4 && dims[2] > 0 {
		size = int(dims[2])
	}
	outName, kind, outShape, err := firstFloatOutput(outInfo, 0)
	if err != nil {
		return nil, fmt.Errorf("image model: %w", err)
	}

	e := &ONNXImageEncoder{kind: kind, hidden: int(outShape[len(outShape)-1]), size: size}
	if kind == PerToken {
		e.positions = int(outShape[1])
	}
	e.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	e.output, err = ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		destroyAll(e.input)
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(modelPath, []string{inInfo[0].Name}, []string{outName},
		[]ort.ArbitraryTensor{e.input}, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		destroyAll(e.input, e.output)
		return nil, fmt.Errorf("failed to create image session: %w", err)
	}
	return e, nil
}

// EncodePixels runs the model on a planar RGB tensor.
func (e *ONNXImageEncoder) EncodePixels(ctx context.Context, pixels []float32) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Output{}, fmt.Errorf("image encoder is closed")
	}
	if len(pixels) != len(e.input.GetData()) {
		return Output{}, fmt.Errorf("pixel tensor has %d values, want %d", len(pixels), len(e.input.GetData()))
	}
	copy(e.input.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return Output{}, err
	}
	data := make([]float32, len(e.output.GetData()))
	copy(data, e.output.GetData())
	return Output{Kind: e.kind, Data: data, Positions: e.positions, Hidden: e.hidden}, nil
}

// ImageSize returns the input resolution.
func (e *ONNXImageEncoder) ImageSize() int { return e.size }

// Hidden returns the output width.
func (e *ONNXImageEncoder) Hidden() int { return e.hidden }

// Kind returns the output layout chosen at load time.
func (e *ONNXImageEncoder) Kind() OutputKind { return e.kind }

// Close destroys the session and tensors.
func (e *ONNXImageEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	destroyAll(e.input, e.output)
	e.input, e.output = nil, nil
	return err
}
