// Package dbtest provides an in-memory database.Backend for tests.
//
// It understands the subset of the MongoDB query language the point layer
// produces: field equality, $eq/$gt/$gte/$lt/$lte, $and, and $where
// predicates of the form "this.<field> <op> <literal>". Find honors sort,
// skip and limit options and returns real *mongo.Cursor values. As on a real
// server, CountDocuments rejects $where while Find and Count accept it.
package dbtest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fiapstore/internal/database"
)

// Backend is an in-memory collection store. Safe for concurrent use.
type Backend struct {
	mu          sync.Mutex
	collections map[string][]bson.D
	errs        map[string]error
	lastFind    map[string]*options.FindOptions
	counts      map[string]int
}

var _ database.Counter = (*Backend)(nil)

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		collections: make(map[string][]bson.D),
		errs:        make(map[string]error),
		lastFind:    make(map[string]*options.FindOptions),
		counts:      make(map[string]int),
	}
}

// Collection returns a handle to the named collection.
func (b *Backend) Collection(name string) database.Collection {
	return &collection{b: b, name: name}
}

// Fail makes every later operation on the named collection return err.
// A nil err clears the failure.
func (b *Backend) Fail(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, name)
		return
	}
	b.errs[name] = err
}

// Docs returns a copy of the stored documents of a collection in insertion order.
func (b *Backend) Docs(name string) []bson.D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bson.D(nil), b.collections[name]...)
}

// Names returns the names of collections holding at least one document.
func (b *Backend) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.collections))
	for name, docs := range b.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LastFindOptions returns the options of the most recent Find on a collection.
func (b *Backend) LastFindOptions(name string) *options.FindOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFind[name]
}

// CountCommands returns how many times Count ran against a collection.
func (b *Backend) CountCommands(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[name]
}

type collection struct {
	b    *Backend
	name string
}

func (c *collection) InsertOne(ctx context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return nil, err
	}

	doc, err := normalize(document)
	if err != nil {
		return nil, err
	}
	doc, id := withID(doc)
	c.b.collections[c.name] = append(c.b.collections[c.name], doc)
	return &mongo.InsertOneResult{InsertedID: id}, nil
}

func (c *collection) InsertMany(ctx context.Context, documents []interface{}, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, mongo.ErrEmptySlice
	}

	docs := make([]bson.D, 0, len(documents))
	ids := make([]interface{}, 0, len(documents))
	for _, document := range documents {
		doc, err := normalize(document)
		if err != nil {
			return nil, err
		}
		doc, id := withID(doc)
		docs = append(docs, doc)
		ids = append(ids, id)
	}
	c.b.collections[c.name] = append(c.b.collections[c.name], docs...)
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func (c *collection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return nil, err
	}

	fo := options.Find()
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Sort != nil {
			fo.Sort = o.Sort
		}
		if o.Skip != nil {
			fo.Skip = o.Skip
		}
		if o.Limit != nil {
			fo.Limit = o.Limit
		}
	}
	c.b.lastFind[c.name] = fo

	matched, err := c.match(filter)
	if err != nil {
		return nil, err
	}

	if fo.Sort != nil {
		keys, err := normalize(fo.Sort)
		if err != nil {
			return nil, fmt.Errorf("invalid sort: %w", err)
		}
		sortDocs(matched, keys)
	}
	if fo.Skip != nil && *fo.Skip > 0 {
		if int(*fo.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[*fo.Skip:]
		}
	}
	if fo.Limit != nil && *fo.Limit > 0 && int(*fo.Limit) < len(matched) {
		matched = matched[:*fo.Limit]
	}

	docs := make([]interface{}, len(matched))
	for i, d := range matched {
		docs[i] = d
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

// CountDocuments rejects $where like the server does: the filter runs inside
// an aggregation $match.
func (c *collection) CountDocuments(ctx context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}
	if database.HasWhere(f) {
		return 0, fmt.Errorf("(BadValue) $where is not allowed inside of a $match aggregation expression")
	}
	matched, err := c.match(f)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Count implements database.Counter. $where is evaluated.
func (b *Backend) Count(ctx context.Context, name string, filter interface{}) (int64, error) {
	c := &collection{b: b, name: name}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs[name]; err != nil {
		return 0, err
	}
	b.counts[name]++
	matched, err := c.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (c *collection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return nil, err
	}

	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	doc, err := normalize(replacement)
	if err != nil {
		return nil, err
	}

	docs := c.b.collections[c.name]
	for i, existing := range docs {
		ok, err := matches(existing, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		id := lookup(existing, "_id")
		docs[i] = append(bson.D{{Key: "_id", Value: id}}, without(doc, "_id")...)
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}

	upsert := false
	for _, o := range opts {
		if o != nil && o.Upsert != nil {
			upsert = *o.Upsert
		}
	}
	if !upsert {
		return &mongo.UpdateResult{}, nil
	}

	if id := lookup(f, "_id"); id != nil && lookup(doc, "_id") == nil {
		doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
	}
	doc, id := withID(doc)
	c.b.collections[c.name] = append(docs, doc)
	return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: id}, nil
}

func (c *collection) DeleteMany(ctx context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if err := c.b.errs[c.name]; err != nil {
		return nil, err
	}

	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	var kept []bson.D
	var deleted int64
	for _, doc := range c.b.collections[c.name] {
		ok, err := matches(doc, f)
		if err != nil {
			return nil, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.b.collections[c.name] = kept
	return &mongo.DeleteResult{DeletedCount: deleted}, nil
}

func (c *collection) match(filter interface{}) ([]bson.D, error) {
	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	var out []bson.D
	for _, doc := range c.b.collections[c.name] {
		ok, err := matches(doc, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// normalize round-trips v through BSON so stored documents and filters share
// one representation (primitive.DateTime, int32/int64/float64, bson.D, bson.A).
func normalize(v interface{}) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func withID(doc bson.D) (bson.D, interface{}) {
	if id := lookup(doc, "_id"); id != nil {
		return doc, id
	}
	id := primitive.NewObjectID()
	return append(bson.D{{Key: "_id", Value: id}}, doc...), id
}

func without(doc bson.D, key string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func lookup(doc bson.D, path string) interface{} {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		d, ok := cur.(bson.D)
		if !ok {
			return nil
		}
		cur = nil
		for _, e := range d {
			if e.Key == part {
				cur = e.Value
				break
			}
		}
	}
	return cur
}

func matches(doc, filter bson.D) (bool, error) {
	for _, clause := range filter {
		ok, err := matchClause(doc, clause)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchClause(doc bson.D, clause bson.E) (bool, error) {
	switch clause.Key {
	case "$and":
		parts, ok := clause.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("$and needs an array, got %T", clause.Value)
		}
		for _, p := range parts {
			sub, ok := p.(bson.D)
			if !ok {
				return false, fmt.Errorf("$and element must be a document, got %T", p)
			}
			m, err := matches(doc, sub)
			if err != nil || !m {
				return false, err
			}
		}
		return true, nil
	case "$where":
		expr, ok := clause.Value.(string)
		if !ok {
			return false, fmt.Errorf("$where needs a string, got %T", clause.Value)
		}
		return evalWhere(doc, expr)
	}

	actual := lookup(doc, clause.Key)
	ops, ok := clause.Value.(bson.D)
	if !ok || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
		c, ok := compare(actual, clause.Value)
		return ok && c == 0, nil
	}
	for _, op := range ops {
		m, err := applyOperator(op.Key, actual, op.Value)
		if err != nil || !m {
			return false, err
		}
	}
	return true, nil
}

func applyOperator(op string, actual, operand interface{}) (bool, error) {
	c, ok := compare(actual, operand)
	switch op {
	case "$eq":
		return ok && c == 0, nil
	case "$gt":
		return ok && c > 0, nil
	case "$gte":
		return ok && c >= 0, nil
	case "$lt":
		return ok && c < 0, nil
	case "$lte":
		return ok && c <= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %s", op)
	}
}

var wherePattern = regexp.MustCompile(`^\s*this\.([A-Za-z0-9_.]+)\s*(<=|>=|==|<|>)\s*(.+?)\s*$`)

func evalWhere(doc bson.D, expr string) (bool, error) {
	m := wherePattern.FindStringSubmatch(expr)
	if m == nil {
		return false, fmt.Errorf("unsupported $where expression %q", expr)
	}

	var operand interface{}
	literal := m[3]
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		operand = f
	} else if s, err := strconv.Unquote(literal); err == nil {
		operand = s
	} else {
		return false, fmt.Errorf("unsupported $where literal %q", literal)
	}

	ops := map[string]string{"<": "$lt", "<=": "$lte", ">": "$gt", ">=": "$gte", "==": "$eq"}
	return applyOperator(ops[m[2]], lookup(doc, m[1]), operand)
}

// compare orders two BSON values of the same class. ok is false when the
// values are not comparable.
func compare(a, b interface{}) (c int, ok bool) {
	ka, va := classify(a)
	kb, vb := classify(b)
	if ka != kb || ka == classOther {
		return 0, false
	}
	switch ka {
	case classNull:
		return 0, true
	case classNumber:
		x, y := va.(float64), vb.(float64)
		return cmpOrdered(x, y), true
	case classString, classObjectID:
		return strings.Compare(va.(string), vb.(string)), true
	case classTime:
		return cmpOrdered(va.(int64), vb.(int64)), true
	case classBool:
		x, y := va.(bool), vb.(bool)
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

type valueClass int

// Ordered like MongoDB's BSON comparison order for the supported types.
const (
	classNull valueClass = iota
	classNumber
	classString
	classObjectID
	classBool
	classTime
	classOther
)

func classify(v interface{}) (valueClass, interface{}) {
	switch x := v.(type) {
	case nil:
		return classNull, nil
	case int32:
		return classNumber, float64(x)
	case int64:
		return classNumber, float64(x)
	case int:
		return classNumber, float64(x)
	case float64:
		return classNumber, x
	case string:
		return classString, x
	case primitive.ObjectID:
		return classObjectID, x.Hex()
	case bool:
		return classBool, x
	case primitive.DateTime:
		return classTime, int64(x)
	case time.Time:
		return classTime, x.UnixMilli()
	default:
		return classOther, v
	}
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func sortDocs(docs []bson.D, keys bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			ca, va := classify(lookup(docs[i], k.Key))
			cb, vb := classify(lookup(docs[j], k.Key))
			var c int
			if ca != cb {
				c = cmpOrdered(int64(ca), int64(cb))
			} else {
				c, _ = compare(va, vb)
			}
			if c == 0 {
				continue
			}
			if direction(k.Value) < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func direction(v interface{}) int {
	_, n := classify(v)
	if f, ok := n.(float64); ok && f < 0 {
		return -1
	}
	return 1
}
