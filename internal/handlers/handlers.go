package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/failure"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/upload"
	"github.com/example/skin-check/internal/usecase"
)

// MaxUploadSize caps the whole request body of POST /predict by default.
const MaxUploadSize int64 = 1_000_000

const (
	imageField       = "image"
	predictedMessage = "Model is predicted successfully"
)

type predictionResponse struct {
	ID         string `json:"id"`
	Result     string `json:"result"`
	Suggestion string `json:"suggestion"`
	CreatedAt  string `json:"createdAt"`
}

type historyResponse struct {
	ID      string             `json:"id"`
	History predictionResponse `json:"history"`
}

func newPredictionResponse(p *repository.Prediction) predictionResponse {
	return predictionResponse{
		ID:         p.ID,
		Result:     p.Result,
		Suggestion: p.Suggestion,
		CreatedAt:  p.CreatedAtString(),
	}
}

// RegisterRoutes wires the middleware chain and HTTP handlers to the Gin
// router. maxBodyBytes caps the POST /predict body; zero means MaxUploadSize.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase, logger *zap.Logger, maxBodyBytes int64) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = MaxUploadSize
	}
	logger = logger.Named("http")

	router.HandleMethodNotAllowed = true
	// Stray trailing slashes get the JSON 404 instead of an HTML redirect.
	router.RedirectTrailingSlash = false
	router.Use(
		RequestLogger(logger),
		ErrorMapper(logger),
		gin.CustomRecoveryWithWriter(io.Discard, HandlePanics(logger)),
		CORS(),
	)
	router.NoRoute(func(c *gin.Context) {
		_ = c.Error(failure.NewHTTP(http.StatusNotFound))
	})
	router.NoMethod(func(c *gin.Context) {
		_ = c.Error(failure.NewHTTP(http.StatusMethodNotAllowed))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/predict", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		part, err := imagePart(c.Request)
		if err != nil {
			_ = c.Error(err)
			return
		}

		var (
			src         io.Reader
			contentType string
		)
		if part != nil {
			defer part.Close()
			src = part
			contentType = part.Header.Get("Content-Type")
		}

		prediction, err := uc.Predict(c.Request.Context(), src, contentType)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status":  "success",
			"message": predictedMessage,
			"data":    newPredictionResponse(prediction),
		})
	})

	router.GET("/predict/histories", func(c *gin.Context) {
		predictions, err := uc.Histories(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}

		histories := make([]historyResponse, 0, len(predictions))
		for _, p := range predictions {
			histories = append(histories, historyResponse{ID: p.ID, History: newPredictionResponse(p)})
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   histories,
		})
	})
}

// imagePart advances the multipart stream to the image field. It returns a
// nil part when the body is not multipart or carries no image field.
func imagePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, nil
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, upload.ReadError(err)
		}
		if part.FormName() == imageField {
			return part, nil
		}
		part.Close()
	}
}
