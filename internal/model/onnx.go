package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions configures the ONNX Runtime backed engine.
type ONNXOptions struct {
	// SharedLibraryPath points at libonnxruntime. Empty uses the library default.
	SharedLibraryPath string
	// InputName and OutputName override the names discovered from the model.
	InputName  string
	OutputName string
	// Workers bounds the number of concurrent forward passes per session.
	Workers int
	// IntraOpThreads is passed to the session options when positive.
	IntraOpThreads int
}

// ONNXEngine loads ONNX artifacts into DynamicAdvancedSessions.
type ONNXEngine struct {
	opts ONNXOptions

	mu          sync.Mutex
	initialized bool
}

func NewONNXEngine(opts ONNXOptions) *ONNXEngine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &ONNXEngine{opts: opts}
}

func (e *ONNXEngine) initEnvironment() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized || ort.IsInitialized() {
		return nil
	}
	if e.opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(e.opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	e.initialized = true
	return nil
}

// Load builds a session from raw model bytes.
func (e *ONNXEngine) Load(artifact []byte) (Session, error) {
	if len(artifact) == 0 {
		return nil, errors.New("empty model artifact")
	}
	if err := e.initEnvironment(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model has no inputs or outputs")
	}

	info := IOInfo{
		InputName:   inputs[0].Name,
		InputShape:  append([]int64(nil), inputs[0].Dimensions...),
		OutputName:  outputs[0].Name,
		OutputShape: concreteShape(outputs[0].Dimensions),
	}
	if e.opts.InputName != "" {
		info.InputName = e.opts.InputName
	}
	if e.opts.OutputName != "" {
		info.OutputName = e.opts.OutputName
	}

	var options *ort.SessionOptions
	if e.opts.IntraOpThreads > 0 {
		options, err = ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer options.Destroy()
		if err := options.SetIntraOpNumThreads(e.opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(artifact,
		[]string{info.InputName}, []string{info.OutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXSession{
		session: session,
		info:    info,
		slots:   make(chan struct{}, e.opts.Workers),
	}, nil
}

// Close tears down the ONNX environment if this engine created it.
// Sessions must be closed first.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.initialized = false
	return ort.DestroyEnvironment()
}

// ONNXSession runs forward passes against a shared, read-only ONNX session.
// At most cap(slots) passes run at once.
type ONNXSession struct {
	session *ort.DynamicAdvancedSession
	info    IOInfo
	slots   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Info reports the resolved input/output names and shapes.
func (s *ONNXSession) Info() IOInfo {
	return s.info
}

func (s *ONNXSession) Forward(ctx context.Context, input Tensor) ([]float32, error) {
	if input.Len() != len(input.Data) {
		return nil, fmt.Errorf("tensor shape %v does not match %d values", input.Shape, len(input.Data))
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slots }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.info.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := outputTensor.GetData()
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

func (s *ONNXSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Destroy()
}

// concreteShape replaces symbolic (negative) dimensions with 1, which is
// what a single-image batch needs.
func concreteShape(dims ort.Shape) []int64 {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}
