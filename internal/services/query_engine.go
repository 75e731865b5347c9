package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fiapstore/internal/database"
	"fiapstore/internal/logging"
	"fiapstore/internal/models"
)

// QueryResult is the outcome of one query: a lazy cursor over the matching
// documents and the pagination metadata.
type QueryResult struct {
	Cursor *Cursor
	models.Pagination
}

// QueryEngine executes point queries with skip/limit windows.
type QueryEngine struct {
	backend database.Backend
	metrics *Metrics
}

// NewQueryEngine creates a query engine over backend. metrics may be nil.
func NewQueryEngine(backend database.Backend, metrics *Metrics) *QueryEngine {
	return &QueryEngine{backend: backend, metrics: metrics}
}

// Execute runs key against the point collection.
//
// For Range keys, Count is the number of matches before skip and limit are
// applied; a zero skip or limit means "not set". Max and Min return the single
// document with the largest or smallest attribute and report Count = 1.
// The cursor is lazy: the backend may not be read until it is iterated.
func (e *QueryEngine) Execute(ctx context.Context, key models.QueryKey, limit, skip int64) (*QueryResult, error) {
	start := time.Now()
	result, err := e.execute(ctx, key, limit, skip)
	err = models.StorageError("query", err)
	e.metrics.observeQuery(key.Aggregate.Kind(), time.Since(start), err)
	if err != nil {
		logging.WithPoint(key.PID).Debug("query failed", "cond", key.Cond.String(), "aggregate", key.Aggregate.String(), "error", err)
		return nil, err
	}
	return result, nil
}

func (e *QueryEngine) execute(ctx context.Context, key models.QueryKey, limit, skip int64) (*QueryResult, error) {
	if p := idProblem(key.PID); p != "" {
		return nil, models.InvalidInput("query", "point %s", p)
	}
	if limit < 0 || skip < 0 {
		return nil, models.InvalidInput("query", "limit and skip must not be negative (limit=%d, skip=%d)", limit, skip)
	}

	collection := e.backend.Collection(key.PID)
	filter := key.Cond.Query()
	opts := options.Find()

	var count int64
	switch key.Aggregate.Kind() {
	case models.AggregateMax:
		opts.SetSort(bson.D{{Key: key.Aggregate.Attr(), Value: -1}}).SetLimit(1)
		count = 1
	case models.AggregateMin:
		opts.SetSort(bson.D{{Key: key.Aggregate.Attr(), Value: 1}}).SetLimit(1)
		count = 1
	default:
		// Count before windowing so the total covers every match.
		n, err := e.count(ctx, key.PID, collection, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", key.PID, err)
		}
		count = n
		// Insertion order keeps consecutive pages disjoint.
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
		if skip != 0 {
			opts.SetSkip(skip)
		}
		if limit != 0 {
			opts.SetLimit(limit)
		}
	}

	cur, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key.PID, err)
	}

	page := paginate(count, skip, limit)
	logging.WithPoint(key.PID).Debug("query executed",
		"cond", key.Cond.String(),
		"aggregate", key.Aggregate.String(),
		"count", page.Count,
		"next", page.Next,
		"rest", page.Rest,
	)

	return &QueryResult{Cursor: newCursor(cur), Pagination: page}, nil
}

// count counts the matches of filter. CountDocuments wraps the filter in an
// aggregation $match, which rejects $where, so value conditions go through
// the count command when the backend offers it.
func (e *QueryEngine) count(ctx context.Context, pid string, collection database.Collection, filter bson.D) (int64, error) {
	if counter, ok := e.backend.(database.Counter); ok && database.HasWhere(filter) {
		return counter.Count(ctx, pid, filter)
	}
	return collection.CountDocuments(ctx, filter)
}

// paginate derives continuation metadata from the unwindowed match count.
// Once nothing is left both Rest and Next are 0.
func paginate(count, skip, limit int64) models.Pagination {
	rest := count - skip - limit
	next := count - rest
	if rest <= 0 {
		rest = 0
		next = 0
	}
	return models.Pagination{Count: count, Next: next, Rest: rest, Result: 0}
}
