package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRecord is one stored document.
type documentRecord struct {
	Collection string    `gorm:"column:collection;primaryKey;size:128"`
	DocID      string    `gorm:"column:doc_id;primaryKey;size:64"`
	Body       string    `gorm:"column:body;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (documentRecord) TableName() string {
	return "documents"
}

// GormStore keeps every collection in one SQL table.
type GormStore struct {
	db *gorm.DB
	retrier
}

// NewGormStore creates a store over an open gorm connection.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, retrier: newRetrier(logger.Named("gorm_store"))}
}

// AutoMigrate ensures the schema is available.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&documentRecord{})
}

// Put inserts doc or replaces the document stored under the same id.
func (s *GormStore) Put(ctx context.Context, collection, id string, doc Document) error {
	if err := validKey(collection, id); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode document %s/%s: %w", collection, id, err)
	}

	record := &documentRecord{Collection: collection, DocID: id, Body: string(body)}
	return s.executeWithRetry(ctx, "docstore.gorm.put", id, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).Create(record).Error
	})
}

// ListAll returns the documents of collection in insertion order, each
// with its id merged in.
func (s *GormStore) ListAll(ctx context.Context, collection string) ([]Document, error) {
	var records []documentRecord
	err := s.executeWithRetry(ctx, "docstore.gorm.list_all", "", func() error {
		records = records[:0]
		return s.db.WithContext(ctx).
			Where("collection = ?", collection).
			Order("created_at ASC").
			Order("doc_id ASC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		var doc Document
		if err := json.Unmarshal([]byte(rec.Body), &doc); err != nil {
			return nil, fmt.Errorf("docstore: decode document %s/%s: %w", collection, rec.DocID, err)
		}
		docs = append(docs, withID(doc, rec.DocID))
	}
	return docs, nil
}
