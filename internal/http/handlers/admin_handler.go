package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	applog "auctionsearch/internal/log"
	"auctionsearch/internal/services"
)

type ItemCounter interface {
	Count(ctx context.Context) (int, error)
}

type AdminHandler struct {
	Sync  *services.SyncService
	Items ItemCounter
}

// POST /api/admin/sync
func (h *AdminHandler) TriggerSync(c *fiber.Ctx) error {
	h.Sync.Trigger()
	applog.Audit(c, "admin.sync.trigger", nil)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
}

// GET /healthz
func (h *AdminHandler) Health(c *fiber.Ctx) error {
	n, err := h.Items.Count(c.UserContext())
	if err != nil {
		applog.Error(c, "health.count.fail", err, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false})
	}
	return c.JSON(fiber.Map{"ok": true, "items": n, "sync": h.Sync.Status()})
}
