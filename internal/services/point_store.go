package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"fiapstore/internal/database"
	"fiapstore/internal/logging"
	"fiapstore/internal/models"
)

// PointStore writes samples and point sets, one collection per point id, and
// hands queries to the QueryEngine.
//
// Writes are not atomic across entries: on failure the samples committed so
// far stay committed and their number is returned along with the error.
type PointStore struct {
	backend database.Backend
	engine  *QueryEngine
	events  PointPublisher
	metrics *Metrics
}

// NewPointStore creates a point store. events and metrics may be nil.
func NewPointStore(backend database.Backend, events PointPublisher, metrics *Metrics) *PointStore {
	return &PointStore{
		backend: backend,
		engine:  NewQueryEngine(backend, metrics),
		events:  events,
		metrics: metrics,
	}
}

// Engine returns the query engine used by Query.
func (s *PointStore) Engine() *QueryEngine {
	return s.engine
}

// InsertChunk appends every entry's samples to its point as one ordered batch
// and returns the number of samples written.
func (s *PointStore) InsertChunk(ctx context.Context, chunks []models.ChunkEntry) (int, error) {
	n, err := s.insertChunk(ctx, chunks)
	err = models.StorageError("insert_chunk", err)
	s.metrics.observeWrite("chunk", n, err)
	return n, err
}

func (s *PointStore) insertChunk(ctx context.Context, chunks []models.ChunkEntry) (int, error) {
	for i, c := range chunks {
		if p := idProblem(c.PointID); p != "" {
			return 0, models.InvalidInput("insert_chunk", "entry %d: %s", i, p)
		}
	}

	total := 0
	for _, c := range chunks {
		if len(c.Samples) == 0 {
			continue
		}

		docs := make([]interface{}, len(c.Samples))
		for i := range c.Samples {
			docs[i] = c.Samples[i]
		}

		if _, err := s.backend.Collection(c.PointID).InsertMany(ctx, docs); err != nil {
			total += committedBeforeFailure(err)
			return total, fmt.Errorf("failed to insert %d samples into %s: %w", len(docs), c.PointID, err)
		}
		total += len(docs)
		s.publish(ctx, models.PointEvent{PointID: c.PointID, Kind: "chunk", Samples: len(docs)})
	}
	return total, nil
}

// idProblem describes why id can not name a point or point set collection,
// or returns "" when it can.
func idProblem(id string) string {
	switch {
	case id == "":
		return "id is required"
	case database.IsReserved(id):
		return fmt.Sprintf("id %q is a reserved collection name", id)
	}
	return ""
}

// committedBeforeFailure returns how many documents of an ordered batch the
// server accepted before the first write error.
func committedBeforeFailure(err error) int {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		return bwe.WriteErrors[0].Index
	}
	return 0
}

// InsertList appends samples one by one, in order, and returns the number of
// items written. It stops at the first failure.
func (s *PointStore) InsertList(ctx context.Context, items []models.ListItem) (int, error) {
	n, err := s.insertList(ctx, items)
	err = models.StorageError("insert_list", err)
	s.metrics.observeWrite("list", n, err)
	return n, err
}

func (s *PointStore) insertList(ctx context.Context, items []models.ListItem) (int, error) {
	for i, item := range items {
		if p := idProblem(item.PointID); p != "" {
			return 0, models.InvalidInput("insert_list", "item %d: %s", i, p)
		}
	}

	total := 0
	for _, item := range items {
		sample := models.Sample{Time: item.Time, Value: item.Value}
		if _, err := s.backend.Collection(item.PointID).InsertOne(ctx, sample); err != nil {
			return total, fmt.Errorf("failed to insert sample into %s: %w", item.PointID, err)
		}
		total++
		s.publish(ctx, models.PointEvent{PointID: item.PointID, Kind: "list", Samples: 1})
	}
	return total, nil
}

// InsertPointSet stores a point set as {set: [{key: value}, ...]} in the
// collection named setID. References are not resolved.
func (s *PointStore) InsertPointSet(ctx context.Context, setID string, members []models.PointSetMember) (bool, error) {
	err := s.insertPointSet(ctx, setID, members)
	err = models.StorageError("insert_point_set", err)
	s.metrics.observePointSet(err)
	return err == nil, err
}

func (s *PointStore) insertPointSet(ctx context.Context, setID string, members []models.PointSetMember) error {
	if p := idProblem(setID); p != "" {
		return models.InvalidInput("insert_point_set", "point set %s", p)
	}
	if _, err := s.backend.Collection(setID).InsertOne(ctx, models.PointSetDocument(members)); err != nil {
		return fmt.Errorf("failed to insert point set %s: %w", setID, err)
	}
	s.publish(ctx, models.PointEvent{PointID: setID, Kind: "pointset"})
	return nil
}

// Query runs key through the query engine.
func (s *PointStore) Query(ctx context.Context, key models.QueryKey, limit, skip int64) (*QueryResult, error) {
	return s.engine.Execute(ctx, key, limit, skip)
}

// publish notifies subscribers of a committed write. Delivery is best effort:
// the write already succeeded, so failures are only logged.
func (s *PointStore) publish(ctx context.Context, ev models.PointEvent) {
	if s.events == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := s.events.PublishPointEvent(ctx, ev); err != nil {
		logging.WithPoint(ev.PointID).Warn("failed to publish point event", "kind", ev.Kind, "error", err)
	}
}
