package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"fiapstore/internal/condition"
	"fiapstore/internal/logging"
	"fiapstore/internal/models"
	"fiapstore/internal/services"
)

// QueryHandler runs point queries and streams the matches back as one page
type QueryHandler struct {
	store        *services.PointStore
	defaultLimit int64
	maxLimit     int64
}

// NewQueryHandler creates a new query handler. A maxLimit of 0 allows
// unbounded pages.
func NewQueryHandler(store *services.PointStore, defaultLimit, maxLimit int64) *QueryHandler {
	return &QueryHandler{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

type timeCondition struct {
	Op   string `json:"op" validate:"required,oneof=< <= > >= =="`
	Time string `json:"time"`
}

// Value conditions are evaluated as server-side JavaScript, so only numeric
// literals are accepted over HTTP.
type valueCondition struct {
	Op    string `json:"op" validate:"required,oneof=< <= > >= =="`
	Value string `json:"value" validate:"required,numeric"`
}

type queryRequest struct {
	PID   string           `json:"pid" validate:"required"`
	An    string           `json:"an"`
	Op    *string          `json:"op"`
	Cond  json.RawMessage  `json:"cond"`
	Time  []timeCondition  `json:"time" validate:"dive"`
	Value []valueCondition `json:"value" validate:"dive"`
	Trap  bool             `json:"trap"`
	Limit *int64           `json:"limit" validate:"omitempty,min=0"`
	Skip  int64            `json:"skip" validate:"min=0"`
}

type queryResponse struct {
	QueryID string   `json:"qid"`
	PID     string   `json:"pid"`
	Cond    string   `json:"cond"`
	Docs    []bson.M `json:"docs"`
	models.Pagination
}

// Query executes a point query
// POST /api/query
func (h *QueryHandler) Query(c *fiber.Ctx) error {
	const op = "query"

	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, badBody(op, err), nil)
	}
	if err := validateStruct(op, req); err != nil {
		return respondError(c, err, nil)
	}

	key, err := buildQueryKey(req)
	if err != nil {
		return respondError(c, err, nil)
	}
	limit := h.pageSize(req.Limit)

	queryID := uuid.New().String()
	logger := logging.WithQuery(queryID, key.PID)
	start := time.Now()

	ctx := c.UserContext()
	result, err := h.store.Query(ctx, key, limit, req.Skip)
	if err != nil {
		return respondError(c, err, fiber.Map{"qid": queryID})
	}

	docs := make([]bson.M, 0)
	for doc, err := range result.Cursor.Documents(ctx) {
		if err != nil {
			return respondError(c, err, fiber.Map{"qid": queryID})
		}
		docs = append(docs, doc)
	}

	logger.Info("query served",
		"cond", key.Cond.String(),
		"aggregate", key.Aggregate.String(),
		"trap", key.Trap,
		"docs", len(docs),
		"count", result.Count,
		"duration", time.Since(start),
	)

	return c.JSON(queryResponse{
		QueryID:    queryID,
		PID:        key.PID,
		Cond:       key.Cond.String(),
		Docs:       docs,
		Pagination: result.Pagination,
	})
}

// pageSize applies the default when limit is absent and caps it at maxLimit
func (h *QueryHandler) pageSize(limit *int64) int64 {
	size := h.defaultLimit
	if limit != nil {
		size = *limit
	}
	if h.maxLimit > 0 && (size == 0 || size > h.maxLimit) {
		size = h.maxLimit
	}
	return size
}

// buildQueryKey turns the wire shape into an immutable query key. The raw
// cond document and every time and value condition are combined with $and.
func buildQueryKey(req queryRequest) (models.QueryKey, error) {
	aggregate, err := models.ParseAggregate(req.Op, req.An)
	if err != nil {
		return models.QueryKey{}, err
	}

	filters := make([]models.Filter, 0, 1+len(req.Time)+len(req.Value))

	if len(req.Cond) > 0 && string(req.Cond) != "null" {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(req.Cond, false, &doc); err != nil {
			return models.QueryKey{}, models.NewError(models.ErrParse, "query", err)
		}
		filters = append(filters, condition.Raw(doc))
	}

	for _, tc := range req.Time {
		f, err := condition.Time(tc.Time, condition.Comparator(tc.Op))
		if err != nil {
			return models.QueryKey{}, err
		}
		filters = append(filters, f)
	}

	for _, vc := range req.Value {
		f, err := condition.Value(vc.Value, condition.Comparator(vc.Op))
		if err != nil {
			return models.QueryKey{}, err
		}
		filters = append(filters, f)
	}

	return models.QueryKey{
		PID:       req.PID,
		Cond:      condition.And(filters...),
		Aggregate: aggregate,
		Trap:      req.Trap,
	}, nil
}
