package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the health check and the resource routes. write
// guards POST, PATCH and DELETE.
func RegisterRoutes(app fiber.Router, h *Handler, write ...fiber.Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Get("/:type", h.List)
	api.Get("/:type/:id", h.Get)
	api.Get("/:type/:id/:relationship", h.GetRelationship)

	api.Post("/:type", chain(write, h.Create)...)
	api.Patch("/:type/:id", chain(write, h.Update)...)
	api.Delete("/:type/:id", chain(write, h.Delete)...)
}

func chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
