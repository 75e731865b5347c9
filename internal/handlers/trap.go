package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"fiapstore/internal/services"
)

// TrapHandler saves and removes trap documents
type TrapHandler struct {
	store *services.TrapStore
}

// NewTrapHandler creates a new trap handler
func NewTrapHandler(store *services.TrapStore) *TrapHandler {
	return &TrapHandler{store: store}
}

// Save upserts a trap by _id, or inserts it when it has none
// POST /api/traps
func (h *TrapHandler) Save(c *fiber.Ctx) error {
	const op = "save_trap"

	doc, err := decodeDocument(c.Body())
	if err != nil {
		return respondError(c, badBody(op, err), nil)
	}

	ok, err := h.store.SaveTrap(c.UserContext(), doc)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": ok})
}

// Remove deletes every trap matching the filter in the body
// DELETE /api/traps
func (h *TrapHandler) Remove(c *fiber.Ctx) error {
	const op = "remove_trap"

	filter, err := decodeDocument(c.Body())
	if err != nil {
		return respondError(c, badBody(op, err), nil)
	}

	ok, err := h.store.RemoveTrap(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(fiber.Map{"success": ok})
}

// decodeDocument reads a relaxed extended JSON object. An empty body yields a
// nil document.
func decodeDocument(body []byte) (bson.M, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
