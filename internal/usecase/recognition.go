package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/logging"
)

// DefaultCacheTTL is how long a recognition result stays cached.
const DefaultCacheTTL = 10 * time.Minute

// Recognizer is the classifier surface the use case depends on.
type Recognizer interface {
	RecognizeImage(ctx context.Context, img image.Image) ([]classifier.Recognition, error)
	RecognizeTensor(ctx context.Context, data []float32) ([]classifier.Recognition, error)
	InputSize() int
	TensorLen() int
	Labels() []string
}

// Result is the outcome of one recognition request.
type Result struct {
	RequestID    string
	Recognitions []classifier.Recognition
	Cached       bool
}

// ModelInfo summarizes the loaded model for health reporting.
type ModelInfo struct {
	InputSize int `json:"input_size"`
	TensorLen int `json:"tensor_len"`
	Labels    int `json:"labels"`
}

// RecognitionUseCase decodes uploads, consults the result cache and runs the
// classifier. The cache is optional and never fails a request.
type RecognitionUseCase struct {
	recognizer     Recognizer
	cache          Cache
	cacheTTL       time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedRecognition struct {
	Recognitions []classifier.Recognition `json:"recognitions"`
	Hash         string                   `json:"sha1_hash"`
	CreatedAt    time.Time                `json:"created_at"`
}

// NewRecognitionUseCase constructs a use case. cache may be nil.
func NewRecognitionUseCase(recognizer Recognizer, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *RecognitionUseCase {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &RecognitionUseCase{
		recognizer:     recognizer,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger.Named("recognition_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// ModelInfo reports the loaded model's input contract and vocabulary size.
func (uc *RecognitionUseCase) ModelInfo() ModelInfo {
	return ModelInfo{
		InputSize: uc.recognizer.InputSize(),
		TensorLen: uc.recognizer.TensorLen(),
		Labels:    len(uc.recognizer.Labels()),
	}
}

// RecognizeUpload classifies encoded image bytes, serving identical uploads
// from the cache when one is configured.
func (uc *RecognitionUseCase) RecognizeUpload(ctx context.Context, imageBytes []byte) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.recognize_upload", requestID)

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := fmt.Sprintf("recognition:%s", hashHex)

	if recs, ok := uc.lookup(ctx, requestID, cacheKey); ok {
		opLogger.Debug("served from cache", zap.String("sha1_hash", hashHex))
		return &Result{RequestID: requestID, Recognitions: recs, Cached: true}, nil
	}

	img, format, err := DecodeImage(imageBytes)
	if err != nil {
		opLogger.Info("rejected upload", zap.Error(err))
		return nil, logging.NewOperationError("usecase.decode_image", requestID, err)
	}

	start := time.Now()
	recs, err := uc.recognizer.RecognizeImage(ctx, img)
	if err != nil {
		opLogger.Error("recognition failed", zap.Error(err))
		return nil, logging.NewOperationError("usecase.recognize_image", requestID, err)
	}
	opLogger.Info("image recognized",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Int("recognitions", len(recs)),
		zap.Duration("latency", time.Since(start)),
	)

	uc.store(ctx, requestID, cacheKey, cachedRecognition{
		Recognitions: recs,
		Hash:         hashHex,
		CreatedAt:    time.Now().UTC(),
	})

	return &Result{RequestID: requestID, Recognitions: recs}, nil
}

// RecognizeTensor classifies a caller-normalized input tensor. Results are not cached.
func (uc *RecognitionUseCase) RecognizeTensor(ctx context.Context, data []float32) (*Result, error) {
	requestID := uuid.NewString()

	recs, err := uc.recognizer.RecognizeTensor(ctx, data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.recognize_tensor", requestID, err)
		logging.WithOperation(uc.logger, "usecase.recognize_tensor", requestID).Error("recognition failed", zap.Error(err))
		return nil, wrapped
	}
	return &Result{RequestID: requestID, Recognitions: recs}, nil
}

func (uc *RecognitionUseCase) lookup(ctx context.Context, requestID, cacheKey string) ([]classifier.Recognition, bool) {
	if uc.cache == nil {
		return nil, false
	}

	var raw string
	err := uc.withRedisRetry(ctx, requestID, "cache.get.recognition", func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "cache.get.recognition", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var payload cachedRecognition
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logging.WithOperation(uc.logger, "cache.get.recognition", requestID).Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	if payload.Recognitions == nil {
		payload.Recognitions = []classifier.Recognition{}
	}
	return payload.Recognitions, true
}

func (uc *RecognitionUseCase) store(ctx context.Context, requestID, cacheKey string, payload cachedRecognition) {
	if uc.cache == nil {
		return
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set.recognition", requestID).Error("failed to serialize recognition", zap.Error(err))
		return
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.recognition", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.recognition", requestID).Warn("failed to cache recognition", zap.Error(err))
	}
}

func (uc *RecognitionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
