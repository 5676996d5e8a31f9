package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/failure"
	"github.com/example/skin-check/internal/imageprocessor"
	"github.com/example/skin-check/internal/interpreter"
	"github.com/example/skin-check/internal/logging"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/upload"
)

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	Save(ctx context.Context, p *repository.Prediction) error
	ListAll(ctx context.Context) ([]*repository.Prediction, error)
}

// Decoder turns image bytes into a model input tensor.
type Decoder interface {
	Decode(data []byte) (*imageprocessor.Tensor, error)
}

// Classifier scores a tensor. Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, tensor *imageprocessor.Tensor) (float32, error)
}

// PredictionUseCase runs one upload through assembly, decoding,
// classification, interpretation and persistence.
type PredictionUseCase struct {
	repo           PredictionRepository
	decoder        Decoder
	classifier     Classifier
	logger         *zap.Logger
	maxUploadBytes int64
	now            func() time.Time
	newID          func() string
}

// Option customises a PredictionUseCase.
type Option func(*PredictionUseCase)

// WithMaxUploadBytes sets the largest accepted image.
func WithMaxUploadBytes(n int64) Option {
	return func(uc *PredictionUseCase) {
		if n > 0 {
			uc.maxUploadBytes = n
		}
	}
}

// WithClock replaces the clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(uc *PredictionUseCase) { uc.now = now }
}

// WithIDGenerator replaces the prediction id generator.
func WithIDGenerator(newID func() string) Option {
	return func(uc *PredictionUseCase) { uc.newID = newID }
}

// NewPredictionUseCase constructs a new use case instance. classifier is
// the process-wide model handle and is only ever read.
func NewPredictionUseCase(repo PredictionRepository, decoder Decoder, classifier Classifier, logger *zap.Logger, opts ...Option) *PredictionUseCase {
	uc := &PredictionUseCase{
		repo:           repo,
		decoder:        decoder,
		classifier:     classifier,
		logger:         logger.Named("prediction_usecase"),
		maxUploadBytes: upload.DefaultMaxBytes,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// MaxUploadBytes is the assembler cap in effect.
func (uc *PredictionUseCase) MaxUploadBytes() int64 {
	return uc.maxUploadBytes
}

// Predict classifies the image read from src and stores the result. Every
// returned error is a *failure.Failure; the first failing stage ends the run.
func (uc *PredictionUseCase) Predict(ctx context.Context, src io.Reader, contentType string) (*repository.Prediction, error) {
	id := uc.newID()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", id)

	opLogger.Debug("assembling upload")
	img, err := upload.Assemble(src, uc.maxUploadBytes, contentType)
	if err != nil {
		opLogger.Info("upload rejected", zap.Error(err))
		return nil, err
	}

	opLogger.Debug("decoding image", zap.Int("size", img.Size), zap.String("content_type", img.ContentType))
	tensor, err := uc.decoder.Decode(img.Data)
	if err != nil {
		opLogger.Warn("image decode failed", zap.Error(err), zap.String("content_type", img.ContentType))
		return nil, failure.NewInference(logging.NewOperationError("usecase.decode_image", id, err))
	}

	opLogger.Debug("classifying image")
	score, err := uc.classifier.Classify(ctx, tensor)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", id, err)
		opLogger.Error("inference failed", zap.Error(wrapped))
		return nil, failure.NewInference(wrapped)
	}

	label, suggestion := interpreter.Interpret(float64(score))
	prediction := &repository.Prediction{
		ID:         id,
		Result:     label,
		Suggestion: suggestion,
		CreatedAt:  uc.now().UTC(),
	}

	opLogger.Debug("persisting prediction", zap.Float32("score", score), zap.String("result", label))
	if err := uc.repo.Save(ctx, prediction); err != nil {
		opLogger.Error("failed to persist prediction", zap.Error(err))
		return nil, failure.NewStorage(failure.MessageStore, err)
	}

	opLogger.Info("prediction completed", zap.String("result", label), zap.Float32("score", score))
	return prediction, nil
}

// Histories returns every stored prediction.
func (uc *PredictionUseCase) Histories(ctx context.Context) ([]*repository.Prediction, error) {
	predictions, err := uc.repo.ListAll(ctx)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.histories", "").Error("failed to list predictions", zap.Error(err))
		return nil, failure.NewStorage(failure.MessageHistories, err)
	}
	return predictions, nil
}
