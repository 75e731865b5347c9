package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Sample is one (time, value) record of a point. Value is stored as given and
// never interpreted.
type Sample struct {
	Time  time.Time `bson:"time" json:"time"`
	Value any       `bson:"value" json:"value"`
}

// ChunkEntry is one element of an insert-chunk payload: every sample of a
// single point, written as one batch.
type ChunkEntry struct {
	PointID string
	Samples []Sample
}

// ListItem is one element of an insert-list payload.
type ListItem struct {
	PointID string
	Time    time.Time
	Value   any
}

// Point set member reference kinds
const (
	RefPointSet = "ps"
	RefPoint    = "p"
)

// PointSetMember is a named reference inside a point set, either to a nested
// point set (RefPointSet) or to a point (RefPoint).
type PointSetMember struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required,oneof=p ps"`
}

// PointSetDocument builds the stored form {set: [{key: value}, ...]}.
// Member order is preserved.
func PointSetDocument(members []PointSetMember) bson.D {
	set := make(bson.A, 0, len(members))
	for _, m := range members {
		set = append(set, bson.D{{Key: m.Key, Value: m.Value}})
	}
	return bson.D{{Key: "set", Value: set}}
}

// PointEvent announces a committed write to a point or point set.
type PointEvent struct {
	PointID string    `json:"pid"`
	Kind    string    `json:"kind"` // chunk, list or pointset
	Samples int       `json:"samples,omitempty"`
	At      time.Time `json:"at"`
}
