package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/autopost/internal/service"
)

type HistoryHandler struct {
	s service.HistoryService
}

func NewHistoryHandler(service service.HistoryService) *HistoryHandler {
	return &HistoryHandler{s: service}
}

func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	accountID := c.QueryInt("account_id", 0)
	limit := c.QueryInt("limit", 0)

	records, err := h.s.List(c.Context(), int64(accountID), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(records)
}

func (h *HistoryHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.s.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to compute statistics",
		})
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}
