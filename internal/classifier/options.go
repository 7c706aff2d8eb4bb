package classifier

import (
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the minimum raw score reported when WithThreshold
	// is not given. Scores are compared as-is, never normalized.
	DefaultThreshold float32 = 0.4
	// DefaultMaxResults is how many recognitions a call returns at most.
	DefaultMaxResults = 3
	// DefaultForwardTimeout bounds one forward pass.
	DefaultForwardTimeout = 10 * time.Second

	// Pixels are scaled as (v - imageMean) / imageStd.
	imageMean float32 = 0.0
	imageStd  float32 = 255.0
)

// Layout is the memory order the model expects for the input tensor.
type Layout int

const (
	// LayoutNCHW stores each channel as a contiguous plane: shape (1, 3, H, W).
	LayoutNCHW Layout = iota
	// LayoutNHWC interleaves channels per pixel: shape (1, H, W, 3).
	LayoutNHWC
)

func (l Layout) String() string {
	switch l {
	case LayoutNCHW:
		return "NCHW"
	case LayoutNHWC:
		return "NHWC"
	default:
		return "unknown"
	}
}

type options struct {
	logger         *zap.Logger
	threshold      float32
	maxResults     int
	forwardTimeout time.Duration
	layout         Layout
	interpolation  resize.InterpolationFunction
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		threshold:      DefaultThreshold,
		maxResults:     DefaultMaxResults,
		forwardTimeout: DefaultForwardTimeout,
		layout:         LayoutNCHW,
		interpolation:  resize.Bilinear,
	}
}

// Option customizes a Classifier.
type Option func(*options)

// WithLogger routes classifier logs to logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithThreshold sets the minimum raw score a class needs to be reported.
func WithThreshold(threshold float32) Option {
	return func(o *options) { o.threshold = threshold }
}

// WithMaxResults caps the number of recognitions returned per call.
func WithMaxResults(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.maxResults = k
		}
	}
}

// WithForwardTimeout bounds a single forward pass. Zero disables the bound;
// a deadline on the caller's context still applies.
func WithForwardTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.forwardTimeout = d
		}
	}
}

// WithLayout selects the input tensor memory order. The default is
// LayoutNCHW.
func WithLayout(layout Layout) Option {
	return func(o *options) { o.layout = layout }
}

// WithInterpolation selects the resampling filter for the inference resize.
func WithInterpolation(interp resize.InterpolationFunction) Option {
	return func(o *options) { o.interpolation = interp }
}
