package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

type stubAttemptService struct {
	response dto.SubmissionResponse
}

func (s stubAttemptService) Start(context.Context, service.Actor, uint) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubAttemptService) Submit(context.Context, service.Actor, uint, uint, dto.SubmitAttemptRequest) (dto.SubmissionResponse, error) {
	return s.response, nil
}

type stubResultsService struct {
	stats dto.SubmissionStatisticsResponse
}

func (stubResultsService) InvalidateStatistics(context.Context, uint) {}

func (stubResultsService) ListSubmissions(context.Context, service.Actor, uint, uint) (dto.SubmissionListResponse, error) {
	return dto.SubmissionListResponse{}, nil
}

func (stubResultsService) BestSubmission(context.Context, service.Actor, uint, uint) (dto.SubmissionResponse, error) {
	return dto.SubmissionResponse{}, nil
}

func (s stubResultsService) SubmissionStatistics(context.Context, service.Actor, uint) (dto.SubmissionStatisticsResponse, error) {
	return s.stats, nil
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func asStaff(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		c.Locals("user_role", role)
		return c.Next()
	}
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestSubmitAttemptContract(t *testing.T) {
	schema := compileSchema(t, "submission.schema.json")

	now := time.Now().UTC()
	submitted := now.Add(2 * time.Minute)
	correct := true
	wrong := false
	answerA := "A"
	response := dto.SubmissionResponse{
		ID:                  42,
		AssessmentID:        3,
		UserID:              10,
		AttemptNumber:       1,
		Status:              "GRADED",
		StartTime:           now,
		SubmitTime:          &submitted,
		TimeSpentSeconds:    120,
		TotalScore:          5,
		MaxPossibleScore:    10,
		PassingScorePercent: 50,
		Percentage:          50,
		Passed:              true,
		Answers: []dto.AnswerResponse{
			{QuestionIndex: 0, Value: &answerA, IsCorrect: &correct, Score: 5, Feedback: "Correct"},
			{QuestionIndex: 1, Value: nil, IsCorrect: &wrong, Score: 0},
		},
	}

	h := handler.NewAttemptHandler(stubAttemptService{response: response}, zerolog.Nop())
	app := fiber.New()
	h.Register(app.Group("/api/v2", asStaff("student")))

	req := httptest.NewRequest(http.MethodPost, "/api/v2/assessments/3/attempts/42/submit", strings.NewReader(`{"answers":[{"value":"A"},{"value":null}]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateBody(t, schema, resp)
}

func TestSubmissionStatisticsContract(t *testing.T) {
	schema := compileSchema(t, "submission_statistics.schema.json")

	stats := dto.SubmissionStatisticsResponse{
		AssessmentID:            3,
		ScoredCount:             3,
		DistinctLearners:        2,
		AveragePercentage:       56.67,
		MinPercentage:           20,
		MaxPercentage:           100,
		PassCount:               2,
		PassRate:                66.67,
		AverageTimeSpentSeconds: 95.5,
		GeneratedAt:             time.Now().UTC(),
	}

	h := handler.NewResultsHandler(stubResultsService{stats: stats}, zerolog.Nop())
	app := fiber.New()
	h.Register(app.Group("/api/v2", asStaff("teacher")))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/assessments/3/statistics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateBody(t, schema, resp)
}
