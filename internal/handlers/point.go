package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"fiapstore/internal/models"
	"fiapstore/internal/services"
	"fiapstore/internal/timeutil"
)

// PointHandler handles sample and point set writes
type PointHandler struct {
	store *services.PointStore
}

// NewPointHandler creates a new point handler
func NewPointHandler(store *services.PointStore) *PointHandler {
	return &PointHandler{store: store}
}

type sampleRequest struct {
	Time  string `json:"time" validate:"required"`
	Value any    `json:"value"`
}

type listItemRequest struct {
	PID   string `json:"pid" validate:"required"`
	Time  string `json:"time" validate:"required"`
	Value any    `json:"value"`
}

// InsertChunk appends batches of samples, one batch per point
// POST /api/points/chunk
//
// Body: [{"<pid>": [{"time": "...", "value": ...}, ...]}, ...]
func (h *PointHandler) InsertChunk(c *fiber.Ctx) error {
	const op = "insert_chunk"

	entries, err := decodeChunk(c.Body())
	if err != nil {
		return respondError(c, badBody(op, err), nil)
	}
	if len(entries) == 0 {
		return respondError(c, models.InvalidInput(op, "request body must contain at least one element"), nil)
	}

	chunks := make([]models.ChunkEntry, 0, len(entries))
	for _, e := range entries {
		if err := validateEach(op, e.samples); err != nil {
			return respondError(c, fmt.Errorf("point %s: %w", e.pid, err), nil)
		}
		chunk := models.ChunkEntry{PointID: e.pid, Samples: make([]models.Sample, len(e.samples))}
		for i, s := range e.samples {
			t, err := timeutil.ParseTimestamp(s.Time)
			if err != nil {
				return respondError(c, err, nil)
			}
			chunk.Samples[i] = models.Sample{Time: t, Value: s.Value}
		}
		chunks = append(chunks, chunk)
	}

	written, err := h.store.InsertChunk(c.UserContext(), chunks)
	if err != nil {
		return respondError(c, err, fiber.Map{"written": written})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"written": written})
}

// InsertList appends single samples in order
// POST /api/points/list
func (h *PointHandler) InsertList(c *fiber.Ctx) error {
	const op = "insert_list"

	var req []listItemRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, badBody(op, err), nil)
	}
	if err := validateEach(op, req); err != nil {
		return respondError(c, err, nil)
	}

	items := make([]models.ListItem, len(req))
	for i, r := range req {
		t, err := timeutil.ParseTimestamp(r.Time)
		if err != nil {
			return respondError(c, err, nil)
		}
		items[i] = models.ListItem{PointID: r.PID, Time: t, Value: r.Value}
	}

	written, err := h.store.InsertList(c.UserContext(), items)
	if err != nil {
		return respondError(c, err, fiber.Map{"written": written})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"written": written})
}

// InsertPointSet stores a point set document
// PUT /api/pointsets/:id
func (h *PointHandler) InsertPointSet(c *fiber.Ctx) error {
	const op = "insert_point_set"

	setID := c.Params("id")
	var members []models.PointSetMember
	if err := c.BodyParser(&members); err != nil {
		return respondError(c, badBody(op, err), nil)
	}
	if err := validateEach(op, members); err != nil {
		return respondError(c, err, nil)
	}

	ok, err := h.store.InsertPointSet(c.UserContext(), setID, members)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": ok, "id": setID, "members": len(members)})
}

type chunkEntry struct {
	pid     string
	samples []sampleRequest
}

// decodeChunk reads the insert-chunk payload keeping the order of elements
// and of the point ids inside each element
func decodeChunk(body []byte) ([]chunkEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var entries []chunkEntry
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			pid, _ := tok.(string)

			var samples []sampleRequest
			if err := dec.Decode(&samples); err != nil {
				return nil, fmt.Errorf("point %s: %w", pid, err)
			}
			entries = append(entries, chunkEntry{pid: pid, samples: samples})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after payload")
	}
	return entries, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
