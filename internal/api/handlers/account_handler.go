package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/scheduler"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
)

// Schedule is the part of the scheduler the handlers drive.
type Schedule interface {
	Reload(ctx context.Context) error
	Triggers() []scheduler.Trigger
}

type AccountHandler struct {
	s     service.AccountService
	p     service.PublicationService
	sched Schedule
}

func NewAccountHandler(s service.AccountService, p service.PublicationService, sched Schedule) *AccountHandler {
	return &AccountHandler{s: s, p: p, sched: sched}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list accounts",
		})
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	id, err := ParamID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	acct, err := h.s.Get(c.Context(), id)
	if err != nil {
		return accountError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(acct)
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req transfer.AccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid account payload",
		})
	}

	acct, err := h.s.Create(c.Context(), &req)
	if err != nil {
		return accountError(c, err)
	}
	h.reload(c.Context())
	return c.Status(fiber.StatusCreated).JSON(acct)
}

func (h *AccountHandler) UpdateAccount(c *fiber.Ctx) error {
	id, err := ParamID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req transfer.AccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid account payload",
		})
	}

	acct, err := h.s.Update(c.Context(), id, &req)
	if err != nil {
		return accountError(c, err)
	}
	h.reload(c.Context())
	return c.Status(fiber.StatusOK).JSON(acct)
}

func (h *AccountHandler) DeleteAccount(c *fiber.Ctx) error {
	id, err := ParamID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.s.Remove(c.Context(), id); err != nil {
		return accountError(c, err)
	}
	h.reload(c.Context())
	return c.SendStatus(fiber.StatusOK)
}

// RunAccount publishes synchronously and answers with the run result.
func (h *AccountHandler) RunAccount(c *fiber.Ctx) error {
	id, err := ParamID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	slog.Info("manual run requested", "account_id", id, "by", GetUsername(c))
	res := h.p.TriggerNow(c.Context(), id)
	if res.Err == nil {
		return c.Status(fiber.StatusOK).JSON(res)
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(res.Err, service.ErrRunInProgress):
		status = fiber.StatusConflict
	case errors.Is(res.Err, service.ErrAccountNotFound):
		status = fiber.StatusNotFound
	case errors.Is(res.Err, service.ErrConfig):
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{
		"error":  res.Message,
		"result": res,
	})
}

func (h *AccountHandler) ListTriggers(c *fiber.Ctx) error {
	triggers := h.sched.Triggers()
	if triggers == nil {
		triggers = []scheduler.Trigger{}
	}
	return c.Status(fiber.StatusOK).JSON(triggers)
}

func (h *AccountHandler) reload(ctx context.Context) {
	if err := h.sched.Reload(ctx); err != nil {
		slog.Error("failed to reload schedule", "error", err)
	}
}

func accountError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrAccountLimit):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Info(err.Error())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "something went wrong",
	})
}
