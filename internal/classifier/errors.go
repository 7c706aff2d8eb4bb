package classifier

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/lesion-api/internal/logging"
)

// Error kinds. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	// ErrModelLoad means the model artifact was missing or rejected by the engine.
	ErrModelLoad = errors.New("model load failed")
	// ErrResourceLoad means the label vocabulary could not be read.
	ErrResourceLoad = errors.New("resource load failed")
	// ErrInvalidInput means the caller passed an unusable image or tensor.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInference means the engine failed or timed out during a forward pass.
	ErrInference = errors.New("inference failed")
)

const (
	opLoadModel  = "classifier.load_model"
	opLoadLabels = "classifier.load_labels"
	opPreprocess = "classifier.preprocess"
	opForward    = "classifier.forward"
)

func kindError(op string, kind, cause error) error {
	if cause == nil {
		return logging.NewOperationError(op, "", kind)
	}
	return logging.NewOperationError(op, "", fmt.Errorf("%w: %w", kind, cause))
}
