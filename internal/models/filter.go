package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Filter is a backend-native filter expression plus a readable rendering of
// it for logs. The zero value matches every document.
type Filter struct {
	Doc  bson.D
	Expr string
}

// IsEmpty reports whether the filter matches everything.
func (f Filter) IsEmpty() bool {
	return len(f.Doc) == 0
}

// Query returns the document handed to the backend. It is never nil.
func (f Filter) Query() bson.D {
	if f.Doc == nil {
		return bson.D{}
	}
	return f.Doc
}

func (f Filter) String() string {
	if f.Expr != "" {
		return f.Expr
	}
	if f.IsEmpty() {
		return "*"
	}
	parts := make([]string, 0, len(f.Doc))
	for _, e := range f.Doc {
		parts = append(parts, e.Key)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
