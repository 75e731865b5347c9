package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"fiapstore/internal/models"
	"fiapstore/internal/services"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, models.ErrParse),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidOperator):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
}

// respondError writes err as {"error", "kind"} plus any extra fields
func respondError(c *fiber.Ctx, err error, extra fiber.Map) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	body := fiber.Map{
		"error": err.Error(),
		"kind":  services.ErrorKind(err),
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

func badBody(op string, err error) error {
	return models.NewError(models.ErrParse, op, err)
}
