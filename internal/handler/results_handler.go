package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// ResultsHandler exposes read-only result endpoints.
type ResultsHandler struct {
	service service.ResultsService
	logger  zerolog.Logger
}

// NewResultsHandler constructs the handler.
func NewResultsHandler(service service.ResultsService, logger zerolog.Logger) *ResultsHandler {
	return &ResultsHandler{
		service: service,
		logger:  logger.With().Str("component", "results_handler").Logger(),
	}
}

// Register attaches result endpoints to the v2 router group.
func (h *ResultsHandler) Register(router fiber.Router) {
	member := middleware.AuthOptions{RequireUser: true}

	router.Get("/assessments/:id/submissions", middleware.WithAuth(h.list, member))
	router.Get("/assessments/:id/submissions/best", middleware.WithAuth(h.best, member))
	router.Get("/assessments/:id/statistics", middleware.WithAuth(h.statistics, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *ResultsHandler) list(c *fiber.Ctx) error {
	assessmentID, userID, err := h.target(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.ListSubmissions(withRequestContext(c), actorFromContext(c), assessmentID, userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result.Items, "submissions retrieved", fiber.Map{"total": result.Total})
}

func (h *ResultsHandler) best(c *fiber.Ctx) error {
	assessmentID, userID, err := h.target(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.BestSubmission(withRequestContext(c), actorFromContext(c), assessmentID, userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "best submission retrieved", submission)
}

func (h *ResultsHandler) statistics(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.service.SubmissionStatistics(withRequestContext(c), actorFromContext(c), assessmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "statistics retrieved", stats)
}

// target resolves the assessment id and the learner whose attempts are read.
// Zero means the caller.
func (h *ResultsHandler) target(c *fiber.Ctx) (uint, uint, error) {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	userID, err := parseQueryInt(c, "user_id")
	if err != nil {
		return 0, 0, err
	}
	return assessmentID, uint(userID), nil
}
