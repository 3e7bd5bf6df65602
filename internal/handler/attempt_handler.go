package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// AttemptHandler exposes the start and submit endpoints.
type AttemptHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(service service.AttemptService, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: service,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches attempt endpoints to the v2 router group.
func (h *AttemptHandler) Register(router fiber.Router) {
	member := middleware.AuthOptions{RequireUser: true}

	router.Post("/assessments/:id/attempts",
		middleware.RateLimit("attempt-start", 20, time.Minute),
		middleware.WithAuth(h.start, member))
	router.Post("/assessments/:id/attempts/:sid/submit", middleware.WithAuth(h.submit, member))
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.Start(withRequestContext(c), actorFromContext(c), assessmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if attempt.Resumed {
		return utils.SendSuccess(c, "attempt resumed", attempt)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", attempt)
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	submissionID, err := parseUintParam(c, "sid")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmitAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	submission, err := h.service.Submit(withRequestContext(c), actorFromContext(c), assessmentID, submissionID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "attempt submitted", submission)
}
