package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"auctionsearch/internal/config"
	applog "auctionsearch/internal/log"
	"auctionsearch/internal/services"
)

type Deps struct {
	SearchHandler *SearchHandler
	AdminHandler  *AdminHandler
}

func NewDeps(items ItemCounter, search *services.SearchService, sync *services.SyncService) *Deps {
	return &Deps{
		SearchHandler: &SearchHandler{Service: search},
		AdminHandler:  &AdminHandler{Sync: sync, Items: items},
	}
}

// Mount registers the service routes on app.
func (d *Deps) Mount(app *fiber.App, cfg config.Config) {
	api := app.Group("/api")

	searchLimiter := limiter.New(limiter.Config{
		Max:        cfg.Search.RateLimit,
		Expiration: cfg.Search.RateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|search"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.search.hit", nil)
			return renderError(c, fiber.StatusTooManyRequests, "rate limit exceeded, retry soon")
		},
	})
	api.Get("/search", searchLimiter, d.SearchHandler.Search)

	admin := api.Group("/admin", RequireAdminToken(cfg.Admin.TokenHash))
	admin.Post("/sync", d.AdminHandler.TriggerSync)

	app.Get("/healthz", d.AdminHandler.Health)
	app.Use(func(c *fiber.Ctx) error {
		return renderError(c, fiber.StatusNotFound, "Not found")
	})
}
