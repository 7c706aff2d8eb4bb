// Package classifier turns decoded images into ranked, thresholded class
// recognitions using a loaded model and its label vocabulary.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"go.uber.org/zap"

	"github.com/Brownie44l1/lesion-api/internal/assets"
	"github.com/Brownie44l1/lesion-api/internal/model"
)

// Classifier owns a model session and its label vocabulary. It is safe for
// concurrent use; how many forward passes actually overlap is up to the
// session.
type Classifier struct {
	session   model.Session
	labels    []string
	inputSize int
	opts      options
	logger    *zap.Logger
}

// New loads the model artifact and label file from store. It either returns
// a fully usable Classifier or an error of kind ErrModelLoad,
// ErrResourceLoad or ErrInvalidInput with nothing left open.
func New(store assets.Store, engine model.Engine, modelPath, labelPath string, inputSize int, opts ...Option) (*Classifier, error) {
	if inputSize <= 0 {
		return nil, kindError(opLoadModel, ErrInvalidInput, fmt.Errorf("input size must be positive, got %d", inputSize))
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.Named("classifier")

	session, err := loadModel(store, engine, modelPath)
	if err != nil {
		logger.Error("failed to load model", zap.String("path", modelPath), zap.Error(err))
		return nil, kindError(opLoadModel, ErrModelLoad, err)
	}

	if err := checkInputShape(session, tensorShape(inputSize, o.layout)); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("failed to release mismatched model", zap.Error(closeErr))
		}
		logger.Error("model input does not fit configuration", zap.String("path", modelPath), zap.Error(err))
		return nil, kindError(opLoadModel, ErrModelLoad, err)
	}

	labels, err := loadLabels(store, labelPath)
	if err != nil {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("failed to release model after label error", zap.Error(closeErr))
		}
		logger.Error("failed to load labels", zap.String("path", labelPath), zap.Error(err))
		return nil, kindError(opLoadLabels, ErrResourceLoad, err)
	}

	logger.Info("classifier ready",
		zap.String("model", modelPath),
		zap.Int("labels", len(labels)),
		zap.Int("input_size", inputSize),
		zap.Stringer("layout", o.layout),
	)

	return &Classifier{
		session:   session,
		labels:    labels,
		inputSize: inputSize,
		opts:      o,
		logger:    logger,
	}, nil
}

func loadModel(store assets.Store, engine model.Engine, name string) (model.Session, error) {
	if engine == nil {
		return nil, errors.New("no inference engine")
	}
	rc, err := store.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	artifact, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return engine.Load(artifact)
}

// ioDescriber is implemented by sessions that can report their declared
// input and output shapes.
type ioDescriber interface {
	Info() model.IOInfo
}

// checkInputShape compares the session's declared input shape with the
// tensor the classifier will feed it. Non-positive dimensions are symbolic
// and match any size. Sessions that cannot describe themselves pass.
func checkInputShape(session model.Session, want []int64) error {
	d, ok := session.(ioDescriber)
	if !ok {
		return nil
	}
	got := d.Info().InputShape
	if len(got) != len(want) {
		return fmt.Errorf("model input has shape %v, configured input is %v", got, want)
	}
	for i := range got {
		if got[i] > 0 && got[i] != want[i] {
			return fmt.Errorf("model input has shape %v, configured input is %v", got, want)
		}
	}
	return nil
}

// RecognizeImage resizes img to the model input, runs a forward pass and
// returns up to MaxResults recognitions ordered by descending confidence.
// An empty result is not an error.
func (c *Classifier) RecognizeImage(ctx context.Context, img image.Image) ([]Recognition, error) {
	scaled, err := scaleToInput(img, c.inputSize, c.opts.interpolation)
	if err != nil {
		return nil, kindError(opPreprocess, ErrInvalidInput, err)
	}
	return c.recognize(ctx, toTensor(scaled, c.inputSize, c.opts.layout))
}

// RecognizeTensor ranks the output for an already normalized input tensor of
// TensorLen values in the configured layout.
func (c *Classifier) RecognizeTensor(ctx context.Context, data []float32) ([]Recognition, error) {
	if len(data) != c.TensorLen() {
		return nil, kindError(opPreprocess, ErrInvalidInput,
			fmt.Errorf("expected %d values, got %d", c.TensorLen(), len(data)))
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	return c.recognize(ctx, model.Tensor{Shape: tensorShape(c.inputSize, c.opts.layout), Data: buf})
}

func (c *Classifier) recognize(ctx context.Context, input model.Tensor) ([]Recognition, error) {
	scores, err := c.forward(ctx, input)
	if err != nil {
		return nil, err
	}

	recs := rankScores(scores, c.labels, c.opts.threshold, c.opts.maxResults)
	if ce := c.logger.Check(zap.DebugLevel, "ranked scores"); ce != nil {
		ce.Write(zap.Int("scores", len(scores)), zap.Int("recognitions", len(recs)))
	}
	return recs, nil
}

type forwardResult struct {
	scores []float32
	err    error
}

// forward runs the session under the forward timeout. The engine call cannot
// be interrupted, so on timeout its goroutine finishes in the background and
// its result is dropped.
func (c *Classifier) forward(ctx context.Context, input model.Tensor) ([]float32, error) {
	if c.opts.forwardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.forwardTimeout)
		defer cancel()
	}

	done := make(chan forwardResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- forwardResult{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		scores, err := c.session.Forward(ctx, input)
		done <- forwardResult{scores: scores, err: err}
	}()

	select {
	case <-ctx.Done():
		c.logger.Warn("forward pass abandoned", zap.Error(ctx.Err()))
		return nil, kindError(opForward, ErrInference, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, kindError(opForward, ErrInference, res.err)
		}
		return res.scores, nil
	}
}

// InputSize is the square edge length, in pixels, of the model input.
func (c *Classifier) InputSize() int { return c.inputSize }

// TensorLen is the number of float values in one input tensor.
func (c *Classifier) TensorLen() int { return channels * c.inputSize * c.inputSize }

// Labels returns a copy of the label vocabulary.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Close releases the model session.
func (c *Classifier) Close() error {
	return c.session.Close()
}
