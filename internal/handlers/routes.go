package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Routes groups the handlers served under /api
type Routes struct {
	Points *PointHandler
	Query  *QueryHandler
	Traps  *TrapHandler
	Health *HealthHandler

	// WriteLimiter, when set, guards the write endpoints
	WriteLimiter fiber.Handler
}

// Register mounts every route on app
func (r *Routes) Register(app *fiber.App) {
	app.Get("/health", r.Health.Handle)

	api := app.Group("/api")

	api.Post("/points/chunk", r.write(r.Points.InsertChunk)...)
	api.Post("/points/list", r.write(r.Points.InsertList)...)
	api.Put("/pointsets/:id", r.write(r.Points.InsertPointSet)...)

	api.Post("/query", r.Query.Query)

	api.Post("/traps", r.Traps.Save)
	api.Delete("/traps", r.Traps.Remove)
}

func (r *Routes) write(h fiber.Handler) []fiber.Handler {
	if r.WriteLimiter == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{r.WriteLimiter, h}
}
