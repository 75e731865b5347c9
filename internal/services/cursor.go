package services

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fiapstore/internal/models"
)

// Cursor is a lazy, forward-only, single-pass view over the documents of one
// query. It is owned by the caller that received it and must be closed; the
// iterator helpers close it themselves.
type Cursor struct {
	cur *mongo.Cursor
}

func newCursor(cur *mongo.Cursor) *Cursor {
	return &Cursor{cur: cur}
}

// Next advances to the next document.
func (c *Cursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

// Decode unmarshals the current document into v.
func (c *Cursor) Decode(v any) error {
	if err := c.cur.Decode(v); err != nil {
		return models.StorageError("cursor_decode", err)
	}
	return nil
}

// Sample decodes the current document as a Sample.
func (c *Cursor) Sample() (models.Sample, error) {
	var s models.Sample
	err := c.Decode(&s)
	return s, err
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return models.StorageError("cursor", c.cur.Err())
}

// Close releases the backend cursor.
func (c *Cursor) Close(ctx context.Context) error {
	return models.StorageError("cursor_close", c.cur.Close(ctx))
}

// All decodes every remaining document into results (a pointer to a slice)
// and closes the cursor.
func (c *Cursor) All(ctx context.Context, results any) error {
	return models.StorageError("cursor_all", c.cur.All(ctx, results))
}

// Documents yields the remaining documents. The cursor is closed when the
// loop ends, including on break.
func (c *Cursor) Documents(ctx context.Context) iter.Seq2[bson.M, error] {
	return func(yield func(bson.M, error) bool) {
		defer c.cur.Close(ctx)
		for c.cur.Next(ctx) {
			var doc bson.M
			if err := c.Decode(&doc); err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Samples is Documents decoded as Samples.
func (c *Cursor) Samples(ctx context.Context) iter.Seq2[models.Sample, error] {
	return func(yield func(models.Sample, error) bool) {
		defer c.cur.Close(ctx)
		for c.cur.Next(ctx) {
			s, err := c.Sample()
			if err != nil {
				yield(models.Sample{}, err)
				return
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(models.Sample{}, err)
		}
	}
}
