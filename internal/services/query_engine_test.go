package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"fiapstore/internal/condition"
	"fiapstore/internal/database"
	"fiapstore/internal/database/dbtest"
	"fiapstore/internal/models"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// seedPoint writes n samples with values 0..n-1, one minute apart.
func seedPoint(t *testing.T, store *PointStore, pid string, n int) {
	t.Helper()
	samples := make([]models.Sample, n)
	for i := range samples {
		samples[i] = models.Sample{Time: baseTime.Add(time.Duration(i) * time.Minute), Value: i}
	}
	written, err := store.InsertChunk(context.Background(), []models.ChunkEntry{{PointID: pid, Samples: samples}})
	if err != nil {
		t.Fatalf("Failed to seed %s: %v", pid, err)
	}
	if written != n {
		t.Fatalf("Expected %d samples seeded, got %d", n, written)
	}
}

func drain(t *testing.T, res *QueryResult) []bson.M {
	t.Helper()
	var docs []bson.M
	if err := res.Cursor.All(context.Background(), &docs); err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	return docs
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name               string
		count, skip, limit int64
		wantRest, wantNext int64
	}{
		{name: "first page", count: 25, skip: 0, limit: 10, wantRest: 15, wantNext: 10},
		{name: "middle page", count: 25, skip: 10, limit: 10, wantRest: 5, wantNext: 20},
		{name: "exact last page", count: 25, skip: 15, limit: 10, wantRest: 0, wantNext: 0},
		{name: "past the end", count: 25, skip: 30, limit: 10, wantRest: 0, wantNext: 0},
		{name: "empty point", count: 0, skip: 0, limit: 0, wantRest: 0, wantNext: 0},
		{name: "unbounded limit", count: 25, skip: 5, limit: 0, wantRest: 20, wantNext: 5},
		{name: "single aggregate", count: 1, skip: 0, limit: 0, wantRest: 1, wantNext: 0},
		{name: "single aggregate with skip", count: 1, skip: 1, limit: 0, wantRest: 0, wantNext: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paginate(tt.count, tt.skip, tt.limit)
			if p.Count != tt.count {
				t.Errorf("Expected count %d, got %d", tt.count, p.Count)
			}
			if p.Rest != tt.wantRest {
				t.Errorf("Expected rest %d, got %d", tt.wantRest, p.Rest)
			}
			if p.Next != tt.wantNext {
				t.Errorf("Expected next %d, got %d", tt.wantNext, p.Next)
			}
			if p.Result != 0 {
				t.Errorf("Expected result 0, got %d", p.Result)
			}
			if p.Rest < 0 {
				t.Error("Rest must never be negative")
			}
		})
	}
}

func TestQueryEngine_PagesThroughPoint(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 25)
	ctx := context.Background()

	key := models.QueryKey{PID: "p1"}

	first, err := store.Query(ctx, key, 10, 0)
	if err != nil {
		t.Fatalf("First page failed: %v", err)
	}
	if first.Count != 25 || first.Rest != 15 || first.Next != 10 {
		t.Errorf("Unexpected first page metadata: %+v", first.Pagination)
	}
	docs := drain(t, first)
	if len(docs) != 10 {
		t.Fatalf("Expected 10 documents, got %d", len(docs))
	}
	if docs[0]["value"] != int32(0) || docs[9]["value"] != int32(9) {
		t.Errorf("Expected insertion order 0..9, got %v..%v", docs[0]["value"], docs[9]["value"])
	}

	last, err := store.Query(ctx, key, 10, 15)
	if err != nil {
		t.Fatalf("Last page failed: %v", err)
	}
	if last.Count != 25 || last.Rest != 0 || last.Next != 0 {
		t.Errorf("Unexpected last page metadata: %+v", last.Pagination)
	}
	if docs := drain(t, last); len(docs) != 10 {
		t.Errorf("Expected 10 documents, got %d", len(docs))
	}

	tail, err := store.Query(ctx, key, 10, 20)
	if err != nil {
		t.Fatalf("Tail page failed: %v", err)
	}
	if docs := drain(t, tail); len(docs) != 5 {
		t.Errorf("Expected 5 remaining documents, got %d", len(docs))
	}
	if tail.Rest != 0 || tail.Next != 0 {
		t.Errorf("Unexpected tail metadata: %+v", tail.Pagination)
	}
}

func TestQueryEngine_EmptyPoint(t *testing.T) {
	backend := dbtest.NewBackend()
	engine := NewQueryEngine(backend, nil)

	res, err := engine.Execute(context.Background(), models.QueryKey{PID: "p2"}, 10, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.Count != 0 || res.Rest != 0 || res.Next != 0 {
		t.Errorf("Expected zero metadata, got %+v", res.Pagination)
	}
	if docs := drain(t, res); len(docs) != 0 {
		t.Errorf("Expected empty cursor, got %d documents", len(docs))
	}
}

func TestQueryEngine_ZeroWindowIsUnbounded(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 7)

	res, err := store.Query(context.Background(), models.QueryKey{PID: "p1"}, 0, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	opts := backend.LastFindOptions("p1")
	if opts.Skip != nil || opts.Limit != nil {
		t.Errorf("Expected no skip/limit for a zero window, got skip=%v limit=%v", opts.Skip, opts.Limit)
	}
	if docs := drain(t, res); len(docs) != 7 {
		t.Errorf("Expected all 7 documents, got %d", len(docs))
	}
	if res.Count != 7 || res.Rest != 7 || res.Next != 0 {
		t.Errorf("Unexpected metadata: %+v", res.Pagination)
	}
}

func TestQueryEngine_CountIgnoresWindow(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 30)

	from, err := condition.Time("2024-01-01T00:10:00Z", condition.GTE)
	if err != nil {
		t.Fatalf("Failed to build condition: %v", err)
	}
	key := models.QueryKey{PID: "p1", Cond: from}

	for _, window := range []struct{ limit, skip int64 }{{0, 0}, {5, 0}, {5, 15}, {100, 3}} {
		res, err := store.Query(context.Background(), key, window.limit, window.skip)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if res.Count != 20 {
			t.Errorf("window %+v: expected count 20, got %d", window, res.Count)
		}
		want := res.Count - window.skip - window.limit
		if want < 0 {
			want = 0
		}
		if res.Rest != want {
			t.Errorf("window %+v: expected rest %d, got %d", window, want, res.Rest)
		}
		res.Cursor.Close(context.Background())
	}
}

func TestQueryEngine_ValueConditionPaging(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 25)
	ctx := context.Background()

	above, err := condition.Value("5", condition.GT)
	if err != nil {
		t.Fatalf("Failed to build condition: %v", err)
	}
	key := models.QueryKey{PID: "p1", Cond: above}

	first, err := store.Query(ctx, key, 10, 0)
	if err != nil {
		t.Fatalf("First page failed: %v", err)
	}
	if first.Count != 19 || first.Rest != 9 || first.Next != 10 {
		t.Errorf("Unexpected first page metadata: %+v", first.Pagination)
	}
	docs := drain(t, first)
	if len(docs) != 10 || docs[0]["value"] != int32(6) || docs[9]["value"] != int32(15) {
		t.Errorf("Expected values 6..15, got %d documents", len(docs))
	}

	second, err := store.Query(ctx, key, 10, 10)
	if err != nil {
		t.Fatalf("Second page failed: %v", err)
	}
	if second.Count != 19 || second.Rest != 0 || second.Next != 0 {
		t.Errorf("Unexpected second page metadata: %+v", second.Pagination)
	}
	if docs := drain(t, second); len(docs) != 9 {
		t.Errorf("Expected 9 documents, got %d", len(docs))
	}

	from, err := condition.Time("2024-01-01T00:10:00Z", condition.GTE)
	if err != nil {
		t.Fatalf("Failed to build condition: %v", err)
	}
	both, err := store.Query(ctx, models.QueryKey{PID: "p1", Cond: condition.And(from, above)}, 0, 0)
	if err != nil {
		t.Fatalf("Combined query failed: %v", err)
	}
	if both.Count != 15 || both.Rest != 15 || both.Next != 0 {
		t.Errorf("Unexpected combined metadata: %+v", both.Pagination)
	}
	both.Cursor.Close(ctx)

	if got := backend.CountCommands("p1"); got != 3 {
		t.Errorf("Expected 3 count commands, got %d", got)
	}
}

// collectionsOnly hides the Counter implementation of the wrapped backend.
type collectionsOnly struct{ b *dbtest.Backend }

func (c collectionsOnly) Collection(name string) database.Collection { return c.b.Collection(name) }

func TestQueryEngine_PlainFiltersUseCountDocuments(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 10)
	ctx := context.Background()

	from, err := condition.Time("2024-01-01T00:04:00Z", condition.GTE)
	if err != nil {
		t.Fatalf("Failed to build condition: %v", err)
	}
	res, err := store.Query(ctx, models.QueryKey{PID: "p1", Cond: from}, 0, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.Count != 6 {
		t.Errorf("Expected count 6, got %d", res.Count)
	}
	res.Cursor.Close(ctx)
	if got := backend.CountCommands("p1"); got != 0 {
		t.Errorf("Expected no count command for a plain filter, got %d", got)
	}

	// Without a Counter the $where filter reaches CountDocuments, which the
	// server rejects.
	above, _ := condition.Value("5", condition.GT)
	engine := NewQueryEngine(collectionsOnly{backend}, nil)
	if _, err := engine.Execute(ctx, models.QueryKey{PID: "p1", Cond: above}, 0, 0); !errors.Is(err, models.ErrStorage) {
		t.Errorf("Expected storage error, got %v", err)
	}
}

func TestQueryEngine_RangeSortsByInsertion(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 10)
	ctx := context.Background()
	key := models.QueryKey{PID: "p1"}

	seen := make(map[interface{}]bool)
	for page, skip := range []int64{0, 5} {
		res, err := store.Query(ctx, key, 5, skip)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		sort, ok := backend.LastFindOptions("p1").Sort.(bson.D)
		if !ok || len(sort) != 1 || sort[0].Key != "_id" || sort[0].Value != 1 {
			t.Errorf("Expected ascending _id sort, got %v", backend.LastFindOptions("p1").Sort)
		}
		for i, doc := range drain(t, res) {
			if want := int32(page*5 + i); doc["value"] != want {
				t.Errorf("page %d doc %d: expected value %d, got %v", page, i, want, doc["value"])
			}
			if seen[doc["_id"]] {
				t.Errorf("Document %v returned on more than one page", doc["_id"])
			}
			seen[doc["_id"]] = true
		}
	}
	if len(seen) != 10 {
		t.Errorf("Expected 10 distinct documents, got %d", len(seen))
	}
}

func TestQueryEngine_RejectsReservedPointIDs(t *testing.T) {
	engine := NewQueryEngine(dbtest.NewBackend(), nil)
	for _, pid := range []string{"trap", "system.profile"} {
		if _, err := engine.Execute(context.Background(), models.QueryKey{PID: pid}, 0, 0); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("Expected invalid input for %q, got %v", pid, err)
		}
	}
}

func TestQueryEngine_MaxMin(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 12)
	ctx := context.Background()

	tests := []struct {
		name      string
		aggregate models.Aggregate
		skip      int64
		want      int32
	}{
		{name: "max", aggregate: models.Max("value"), want: 11},
		{name: "min", aggregate: models.Min("value"), want: 0},
		{name: "max with skip", aggregate: models.Max("value"), skip: 3, want: 11},
		{name: "min with skip", aggregate: models.Min("value"), skip: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.Query(ctx, models.QueryKey{PID: "p1", Aggregate: tt.aggregate}, 10, tt.skip)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			docs := drain(t, res)
			if len(docs) != 1 {
				t.Fatalf("Expected exactly one document, got %d", len(docs))
			}
			if docs[0]["value"] != tt.want {
				t.Errorf("Expected value %d, got %v", tt.want, docs[0]["value"])
			}
			if res.Count != 1 {
				t.Errorf("Expected count 1, got %d", res.Count)
			}
			if tt.skip > 0 && res.Rest != 0 {
				t.Errorf("Expected rest 0 after skip, got %d", res.Rest)
			}
		})
	}
}

func TestQueryEngine_Idempotent(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 18)
	ctx := context.Background()
	key := models.QueryKey{PID: "p1"}

	a, err := store.Query(ctx, key, 5, 4)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	b, err := store.Query(ctx, key, 5, 4)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if a.Pagination != b.Pagination {
		t.Errorf("Expected identical metadata, got %+v and %+v", a.Pagination, b.Pagination)
	}

	docsA, docsB := drain(t, a), drain(t, b)
	if len(docsA) != len(docsB) {
		t.Fatalf("Expected identical result sizes, got %d and %d", len(docsA), len(docsB))
	}
	for i := range docsA {
		if docsA[i]["_id"] != docsB[i]["_id"] {
			t.Errorf("doc %d differs: %v vs %v", i, docsA[i]["_id"], docsB[i]["_id"])
		}
	}
}

func TestQueryEngine_InvalidInput(t *testing.T) {
	engine := NewQueryEngine(dbtest.NewBackend(), nil)
	ctx := context.Background()

	if _, err := engine.Execute(ctx, models.QueryKey{}, 0, 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected invalid input for missing pid, got %v", err)
	}
	if _, err := engine.Execute(ctx, models.QueryKey{PID: "p1"}, -1, 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected invalid input for negative limit, got %v", err)
	}
	if _, err := engine.Execute(ctx, models.QueryKey{PID: "p1"}, 0, -5); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected invalid input for negative skip, got %v", err)
	}
}

func TestQueryEngine_StorageFailure(t *testing.T) {
	backend := dbtest.NewBackend()
	engine := NewQueryEngine(backend, nil)
	boom := errors.New("server selection timeout")
	backend.Fail("p1", boom)

	res, err := engine.Execute(context.Background(), models.QueryKey{PID: "p1"}, 10, 0)
	if res != nil {
		t.Error("Expected no result on failure")
	}
	if !errors.Is(err, models.ErrStorage) {
		t.Errorf("Expected storage error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
}

func TestCursor_SamplesStopsEarly(t *testing.T) {
	backend := dbtest.NewBackend()
	store := NewPointStore(backend, nil, nil)
	seedPoint(t, store, "p1", 10)

	res, err := store.Query(context.Background(), models.QueryKey{PID: "p1"}, 0, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	var got []models.Sample
	for s, err := range res.Cursor.Samples(context.Background()) {
		if err != nil {
			t.Fatalf("Iteration failed: %v", err)
		}
		got = append(got, s)
		if len(got) == 3 {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(got))
	}
	if !got[2].Time.Equal(baseTime.Add(2 * time.Minute)) {
		t.Errorf("Unexpected third sample time: %s", got[2].Time)
	}
}
