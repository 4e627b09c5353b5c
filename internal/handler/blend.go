package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/underplayed/api/internal/middleware"
	"github.com/underplayed/api/internal/model"
	"github.com/underplayed/api/internal/service"
	"github.com/underplayed/api/internal/store"
	"github.com/underplayed/api/pkg/response"
)

type BlendHandler struct {
	service   *service.BlendService
	validator *validator.Validate
}

func NewBlendHandler(svc *service.BlendService, v *validator.Validate) *BlendHandler {
	return &BlendHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/blend/start. It acknowledges with 202 and the
// process ID immediately; the pipeline runs detached and is observed by
// polling Status.
func (h *BlendHandler) Start(c *fiber.Ctx) error {
	var req model.BlendStartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		return response.Unauthorized(c, "Not logged in")
	}

	result, err := h.service.StartBlend(c.Context(), sessionID, req.PlaylistName)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/blend/status/:processId.
func (h *BlendHandler) Status(c *fiber.Ctx) error {
	processID := c.Params("processId")
	if processID == "" {
		return response.ValidationError(c, "Process ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), processID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Unknown or expired process ID")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Dismiss handles DELETE /api/blend/status/:processId. It drops a finished
// job's snapshot ahead of the retention window.
func (h *BlendHandler) Dismiss(c *fiber.Ctx) error {
	processID := c.Params("processId")
	if processID == "" {
		return response.ValidationError(c, "Process ID is required", nil)
	}

	if err := h.service.DismissJob(c.Context(), processID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Unknown or expired process ID")
		}
		if errors.Is(err, service.ErrJobRunning) {
			return response.ValidationError(c, "Blend is still running", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"dismissed": true})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
