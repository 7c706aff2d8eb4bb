package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/lesion-api/internal/auth"
	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/usecase"
)

// MaxUploadSize bounds the request body of an image upload.
const MaxUploadSize = 10 << 20

type predictionRequest struct {
	Image []float32 `json:"image"`
}

type predictionResponse struct {
	RequestID    string                   `json:"request_id"`
	Cached       bool                     `json:"cached"`
	Recognitions []classifier.Recognition `json:"recognitions"`
}

type handler struct {
	uc     *usecase.RecognitionUseCase
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards the prediction routes when non-nil.
func RegisterRoutes(router *gin.Engine, uc *usecase.RecognitionUseCase, logger *zap.Logger, authMiddleware gin.HandlerFunc) {
	h := &handler{uc: uc, logger: logger.Named("handlers")}

	router.Use(CORS())
	router.GET("/health", h.health)

	predict := router.Group("/predict")
	if authMiddleware != nil {
		predict.Use(authMiddleware)
	}
	predict.POST("", h.predict)
	predict.POST("/image", h.predictImage)
}

// CORS allows browser clients on any origin to call the API.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one structured line per request, including the token
// subject when the request was authenticated.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if subject, ok := auth.GetSubject(c.Request.Context()); ok {
			fields = append(fields, zap.String("subject", subject))
		}
		logger.Info("http request", fields...)
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"model":  h.uc.ModelInfo(),
	})
}

func (h *handler) predict(c *gin.Context) {
	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if expected := h.uc.ModelInfo().TensorLen; len(req.Image) != expected {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image))})
		return
	}

	result, err := h.uc.RecognizeTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, predictionResponse{
		RequestID:    result.RequestID,
		Recognitions: result.Recognitions,
	})
}

func (h *handler) predictImage(c *gin.Context) {
	if c.Request.ContentLength > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}

	if !acceptedContentType(file.Header.Get("Content-Type")) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported image type. Supported: JPEG, PNG, WebP, BMP"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	result, err := h.uc.RecognizeUpload(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, predictionResponse{
		RequestID:    result.RequestID,
		Cached:       result.Cached,
		Recognitions: result.Recognitions,
	})
}

// acceptedContentType admits the decodable image types. Parts without a
// specific type are left to the decoder.
func acceptedContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/octet-stream" || usecase.SupportedContentTypes[mediaType]
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("prediction failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, classifier.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
