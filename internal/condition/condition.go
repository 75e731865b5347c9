// Package condition builds backend filter fragments for point queries.
package condition

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"fiapstore/internal/models"
	"fiapstore/internal/timeutil"
)

// Comparator is one of <, <=, >, >=, ==.
type Comparator string

const (
	LT  Comparator = "<"
	LTE Comparator = "<="
	GT  Comparator = ">"
	GTE Comparator = ">="
	EQ  Comparator = "=="
)

var mongoOperators = map[Comparator]string{
	LT:  "$lt",
	LTE: "$lte",
	GT:  "$gt",
	GTE: "$gte",
	EQ:  "$eq",
}

// ParseComparator validates a comparator string.
func ParseComparator(s string) (Comparator, error) {
	c := Comparator(strings.TrimSpace(s))
	if _, ok := mongoOperators[c]; !ok {
		return "", models.InvalidInput("parse_comparator", "unsupported comparator %q", s)
	}
	return c, nil
}

// Time compares the sample time against timestamp, normalized to UTC.
func Time(timestamp string, op Comparator) (models.Filter, error) {
	const opName = "time_condition"

	mop, ok := mongoOperators[op]
	if !ok {
		return models.Filter{}, models.InvalidInput(opName, "unsupported comparator %q", op)
	}
	if strings.TrimSpace(timestamp) == "" {
		return models.Filter{}, models.InvalidInput(opName, "null time string is specified")
	}

	t, err := timeutil.ParseTimestamp(timestamp)
	if err != nil {
		return models.Filter{}, err
	}

	return models.Filter{
		Doc:  bson.D{{Key: "time", Value: bson.D{{Key: mop, Value: t}}}},
		Expr: fmt.Sprintf("time %s %s", op, timeutil.FormatUTC(t)),
	}, nil
}

// Value compares the sample value against expr with a server-side JavaScript
// predicate. expr is inserted verbatim: callers must not pass untrusted input.
func Value(expr string, op Comparator) (models.Filter, error) {
	if _, ok := mongoOperators[op]; !ok {
		return models.Filter{}, models.InvalidInput("value_condition", "unsupported comparator %q", op)
	}
	return models.Filter{
		Doc:  bson.D{{Key: "$where", Value: fmt.Sprintf("this.value %s %s", op, expr)}},
		Expr: fmt.Sprintf("value %s %s", op, expr),
	}, nil
}

// Raw wraps a caller-supplied filter document.
func Raw(doc bson.D) models.Filter {
	return models.Filter{Doc: doc}
}

// All matches every document.
func All() models.Filter {
	return models.Filter{}
}

// And combines filters. Empty filters are dropped; a single remaining filter
// is returned as is.
func And(filters ...models.Filter) models.Filter {
	var kept []models.Filter
	for _, f := range filters {
		if !f.IsEmpty() {
			kept = append(kept, f)
		}
	}

	switch len(kept) {
	case 0:
		return All()
	case 1:
		return kept[0]
	}

	clauses := make(bson.A, 0, len(kept))
	exprs := make([]string, 0, len(kept))
	for _, f := range kept {
		clauses = append(clauses, f.Doc)
		exprs = append(exprs, f.String())
	}
	return models.Filter{
		Doc:  bson.D{{Key: "$and", Value: clauses}},
		Expr: strings.Join(exprs, " && "),
	}
}
