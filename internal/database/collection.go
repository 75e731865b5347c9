package database

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the subset of *mongo.Collection the point and trap stores
// rely on.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// Backend resolves collections by name. *MongoDB implements it.
type Backend interface {
	Collection(name string) Collection
}

// Counter counts with the count command. Unlike CountDocuments, which runs
// the filter inside an aggregation $match, it accepts $where filters.
type Counter interface {
	Count(ctx context.Context, collection string, filter interface{}) (int64, error)
}

var (
	_ Collection = (*mongo.Collection)(nil)
	_ Backend    = (*MongoDB)(nil)
	_ Counter    = (*MongoDB)(nil)
)

// IsReserved reports whether name can not hold a point or point set: the
// trap collection and system collections.
func IsReserved(name string) bool {
	return name == CollectionTraps || strings.HasPrefix(name, "system.")
}

// HasWhere reports whether filter uses $where at any depth.
func HasWhere(filter bson.D) bool {
	for _, e := range filter {
		if e.Key == "$where" || hasWhere(e.Value) {
			return true
		}
	}
	return false
}

func hasWhere(v interface{}) bool {
	switch x := v.(type) {
	case bson.D:
		return HasWhere(x)
	case bson.M:
		for k, sub := range x {
			if k == "$where" || hasWhere(sub) {
				return true
			}
		}
	case bson.A:
		for _, sub := range x {
			if hasWhere(sub) {
				return true
			}
		}
	case []interface{}:
		return hasWhere(bson.A(x))
	}
	return false
}
