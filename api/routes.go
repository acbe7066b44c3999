package api

import (
	"dealtracker/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// NewApp builds the fiber app with every route registered
func NewApp(h *Handler, logger *utils.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "dealtracker",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		BodyLimit:             1 << 20,
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := app.Group("/api")

	deals := api.Group("/deals")
	deals.Post("/refresh", h.RefreshDeals)
	deals.Get("/", h.ListDeals)
	deals.Get("/stats", h.DealStats)
	deals.Get("/categories", h.Categories)
	deals.Get("/:id", h.GetDeal)

	tracking := api.Group("/tracking")
	tracking.Post("/", h.Track)
	tracking.Get("/", h.ListTracked)
	tracking.Post("/refresh", h.RefreshTracked)
	tracking.Post("/:id/refresh", h.RefreshTracked)
	tracking.Patch("/:id", h.UpdateTracked)
	tracking.Delete("/:id", h.RemoveTracked)

	api.Get("/price-history/:asin", h.PriceHistory)

	return app
}
