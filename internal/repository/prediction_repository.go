package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/skin-check/internal/docstore"
	"github.com/example/skin-check/internal/logging"
)

// DefaultCollection is the collection predictions are stored in.
const DefaultCollection = "predictions"

// TimeLayout is the ISO-8601 layout used for createdAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Prediction is a persisted classification result.
type Prediction struct {
	ID         string    `json:"id"`
	Result     string    `json:"result"`
	Suggestion string    `json:"suggestion"`
	CreatedAt  time.Time `json:"-"`
}

// CreatedAtString formats CreatedAt the way it is stored and returned.
func (p *Prediction) CreatedAtString() string {
	return p.CreatedAt.UTC().Format(TimeLayout)
}

// PredictionRepository stores predictions as documents of one collection.
type PredictionRepository struct {
	store      docstore.Store
	collection string
	logger     *zap.Logger
}

// NewPredictionRepository creates a repository over store. An empty
// collection selects DefaultCollection.
func NewPredictionRepository(store docstore.Store, collection string, logger *zap.Logger) *PredictionRepository {
	if collection == "" {
		collection = DefaultCollection
	}
	return &PredictionRepository{
		store:      store,
		collection: collection,
		logger:     logger.Named("prediction_repository"),
	}
}

// Save persists p under p.ID.
func (r *PredictionRepository) Save(ctx context.Context, p *Prediction) error {
	doc := docstore.Document{
		"result":     p.Result,
		"suggestion": p.Suggestion,
		"createdAt":  p.CreatedAtString(),
	}
	if err := r.store.Put(ctx, r.collection, p.ID, doc); err != nil {
		return logging.NewOperationError("repository.save_prediction", p.ID, err)
	}
	r.logger.Debug("prediction saved", zap.String("id", p.ID), zap.String("collection", r.collection))
	return nil
}

// ListAll returns every stored prediction in store order.
func (r *PredictionRepository) ListAll(ctx context.Context) ([]*Prediction, error) {
	docs, err := r.store.ListAll(ctx, r.collection)
	if err != nil {
		return nil, logging.NewOperationError("repository.list_predictions", "", err)
	}

	predictions := make([]*Prediction, 0, len(docs))
	for _, doc := range docs {
		p, err := fromDocument(doc)
		if err != nil {
			return nil, logging.NewOperationError("repository.list_predictions", "", err)
		}
		predictions = append(predictions, p)
	}
	return predictions, nil
}

func fromDocument(doc docstore.Document) (*Prediction, error) {
	p := &Prediction{
		ID:         stringField(doc, docstore.IDField),
		Result:     stringField(doc, "result"),
		Suggestion: stringField(doc, "suggestion"),
	}
	if p.ID == "" {
		return nil, fmt.Errorf("document without id: %v", doc)
	}
	if raw := stringField(doc, "createdAt"); raw != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("document %s: parse createdAt: %w", p.ID, err)
		}
		p.CreatedAt = createdAt
	}
	return p, nil
}

func stringField(doc docstore.Document, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
