package models

import "fmt"

// AggregateKind selects how a query treats its matches.
type AggregateKind int

const (
	// AggregateRange returns every match, windowed by skip/limit.
	AggregateRange AggregateKind = iota
	// AggregateMax returns the single match with the largest attribute.
	AggregateMax
	// AggregateMin returns the single match with the smallest attribute.
	AggregateMin
)

func (k AggregateKind) String() string {
	switch k {
	case AggregateMax:
		return "max"
	case AggregateMin:
		return "min"
	default:
		return "range"
	}
}

// Aggregate is a closed variant: Range, Max(attr) or Min(attr). The zero value
// is Range.
type Aggregate struct {
	kind AggregateKind
	attr string
}

// Range matches every document of the filter.
func Range() Aggregate { return Aggregate{kind: AggregateRange} }

// Max selects the document with the largest value of attr.
func Max(attr string) Aggregate { return Aggregate{kind: AggregateMax, attr: attr} }

// Min selects the document with the smallest value of attr.
func Min(attr string) Aggregate { return Aggregate{kind: AggregateMin, attr: attr} }

// Kind returns the variant tag.
func (a Aggregate) Kind() AggregateKind { return a.kind }

// Attr returns the sort attribute for Max and Min, empty for Range.
func (a Aggregate) Attr() string { return a.attr }

func (a Aggregate) String() string {
	if a.kind == AggregateRange {
		return a.kind.String()
	}
	return fmt.Sprintf("%s(%s)", a.kind, a.attr)
}

// ParseAggregate maps the wire shape {op, an} onto an Aggregate. A nil op is
// Range; "max" and "min" need a non-empty attribute name.
func ParseAggregate(op *string, attr string) (Aggregate, error) {
	if op == nil {
		return Range(), nil
	}
	switch *op {
	case "max", "min":
		if attr == "" {
			return Aggregate{}, InvalidInput("parse_aggregate", "operator %q needs an attribute name", *op)
		}
		if *op == "max" {
			return Max(attr), nil
		}
		return Min(attr), nil
	default:
		return Aggregate{}, NewError(ErrInvalidOperator, "parse_aggregate", fmt.Errorf("invalid op (%s) is specified", *op))
	}
}

// QueryKey describes one query. It is read-only for the engine.
type QueryKey struct {
	PID       string
	Cond      Filter
	Aggregate Aggregate
	// Trap marks keys issued on behalf of a trap subscription. It does not
	// change query semantics.
	Trap bool
}

// Pagination is the continuation metadata of one query execution.
type Pagination struct {
	// Count is the number of matches ignoring skip and limit (1 for max/min).
	Count int64 `json:"count"`
	// Next is the skip offset of the follow-up call, 0 when nothing is left.
	Next int64 `json:"next"`
	// Rest is the number of matches not yet fetched.
	Rest int64 `json:"rest"`
	// Result is a status code, always 0 on success.
	Result int64 `json:"result"`
}
