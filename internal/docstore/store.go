// Package docstore is a small document store: named collections of JSON
// documents keyed by id, backed by a SQL database through gorm or by Redis.
package docstore

import (
	"context"
	"errors"
)

// IDField is the key under which ListAll merges a document's id.
const IDField = "id"

// ErrInvalidKey is returned for an empty collection or id.
var ErrInvalidKey = errors.New("docstore: collection and id must not be empty")

// Document is a JSON object.
type Document map[string]any

// Store persists and lists documents. Put overwrites an existing id.
type Store interface {
	Put(ctx context.Context, collection, id string, doc Document) error
	ListAll(ctx context.Context, collection string) ([]Document, error)
}

func withID(doc Document, id string) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[IDField] = id
	return out
}

func validKey(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidKey
	}
	return nil
}
