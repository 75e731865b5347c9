package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fiapstore/internal/database"
	"fiapstore/internal/models"
)

// TrapStore saves and removes trap (subscription) documents. Traps are opaque
// to the point layer.
type TrapStore struct {
	collection database.Collection
	metrics    *Metrics
}

// NewTrapStore creates a trap store over the trap collection of backend
func NewTrapStore(backend database.Backend, metrics *Metrics) *TrapStore {
	return &TrapStore{
		collection: backend.Collection(database.CollectionTraps),
		metrics:    metrics,
	}
}

// SaveTrap upserts doc by its _id, or inserts it when it has none.
func (s *TrapStore) SaveTrap(ctx context.Context, doc bson.M) (bool, error) {
	err := s.saveTrap(ctx, doc)
	err = models.StorageError("save_trap", err)
	s.metrics.observeTrap("save", err)
	return err == nil, err
}

func (s *TrapStore) saveTrap(ctx context.Context, doc bson.M) error {
	if doc == nil {
		return models.InvalidInput("save_trap", "trap document is required")
	}

	id, ok := doc["_id"]
	if !ok {
		if _, err := s.collection.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("failed to insert trap: %w", err)
		}
		return nil
	}

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save trap %v: %w", id, err)
	}
	return nil
}

// RemoveTrap deletes every trap matching filter. An empty filter removes all
// traps.
func (s *TrapStore) RemoveTrap(ctx context.Context, filter bson.M) (bool, error) {
	err := s.removeTrap(ctx, filter)
	err = models.StorageError("remove_trap", err)
	s.metrics.observeTrap("remove", err)
	return err == nil, err
}

func (s *TrapStore) removeTrap(ctx context.Context, filter bson.M) error {
	if filter == nil {
		return models.InvalidInput("remove_trap", "trap filter is required")
	}
	if _, err := s.collection.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove traps: %w", err)
	}
	return nil
}
