package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const defaultStartRetryLimit = 3

// AttemptConfig tunes the attempt orchestrator.
type AttemptConfig struct {
	StartRetryLimit int
}

// AttemptService drives a learner's attempt from start to submit.
type AttemptService interface {
	Start(ctx context.Context, actor Actor, assessmentID uint) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, actor Actor, assessmentID, submissionID uint, payload dto.SubmitAttemptRequest) (dto.SubmissionResponse, error)
}

type attemptService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	access      CourseAccess
	validator   *validator.Validate
	events      SubmissionEventPublisher
	stats       StatisticsInvalidator
	activity    ActivityRecorder
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	config      AttemptConfig
}

// NewAttemptService constructs the attempt orchestrator. events, stats and
// activity may be nil.
func NewAttemptService(
	assessments repository.AssessmentRepository,
	submissions repository.SubmissionRepository,
	access CourseAccess,
	validate *validator.Validate,
	events SubmissionEventPublisher,
	stats StatisticsInvalidator,
	activity ActivityRecorder,
	logger zerolog.Logger,
	config AttemptConfig,
) AttemptService {
	if config.StartRetryLimit <= 0 {
		config.StartRetryLimit = defaultStartRetryLimit
	}
	return &attemptService{
		assessments: assessments,
		submissions: submissions,
		access:      access,
		validator:   validate,
		events:      events,
		stats:       stats,
		activity:    activity,
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/attempts"),
		now:         time.Now,
		config:      config,
	}
}

func (s *attemptService) Start(ctx context.Context, actor Actor, assessmentID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempts.start")
	span.SetAttributes(
		attribute.Int64("attempt.assessment_id", int64(assessmentID)),
		attribute.Int64("attempt.user_id", int64(actor.ID)),
	)
	defer span.End()

	fail := func(err error, status string) (dto.SubmissionResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.SubmissionResponse{}, err
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return fail(err, "assessment_lookup_failed")
	}

	enrolled, err := s.access.IsEnrolled(ctx, actor, assessment.CourseID)
	if err != nil {
		return fail(err, "enrollment_lookup_failed")
	}
	if !enrolled {
		return fail(ErrNotEnrolled, "not_enrolled")
	}
	if !assessment.IsPublished {
		manager, err := s.access.CanManage(ctx, actor, assessment.CourseID)
		if err != nil {
			return fail(err, "permission_lookup_failed")
		}
		if !manager {
			return fail(ErrAssessmentNotPublished, "not_published")
		}
	}

	view := learnerView(assessment)
	for try := 1; try <= s.config.StartRetryLimit; try++ {
		existing, err := s.submissions.ListAttempts(ctx, assessmentID, actor.ID)
		if err != nil {
			return fail(err, "attempt_lookup_failed")
		}

		if len(existing) > 0 && existing[0].Status == models.SubmissionStatusInProgress {
			span.SetAttributes(attribute.Bool("attempt.resumed", true))
			response := dto.NewSubmissionResponse(existing[0], view)
			response.Resumed = true
			return response, nil
		}

		if len(existing) >= assessment.MaxAttempts {
			return fail(ErrAttemptLimitExceeded, "attempt_limit_exceeded")
		}

		submission := models.Submission{
			AssessmentID:        assessmentID,
			UserID:              actor.ID,
			AttemptNumber:       len(existing) + 1,
			Status:              models.SubmissionStatusInProgress,
			StartTime:           s.now(),
			MaxPossibleScore:    assessment.TotalPoints,
			PassingScorePercent: assessment.PassingScorePercent,
		}

		err = s.submissions.Create(ctx, &submission)
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			observability.AttemptStartRetries().Inc()
			s.logger.Debug().
				Uint("assessment_id", assessmentID).
				Uint("user_id", actor.ID).
				Int("attempt_number", submission.AttemptNumber).
				Int("try", try).
				Msg("attempt number taken concurrently, retrying")
			continue
		}
		if err != nil {
			return fail(err, "attempt_create_failed")
		}

		observability.AttemptsStarted().WithLabelValues(string(assessment.Kind)).Inc()
		span.SetAttributes(attribute.Int("attempt.number", submission.AttemptNumber))
		s.logger.Info().
			Uint("assessment_id", assessmentID).
			Uint("user_id", actor.ID).
			Uint("submission_id", submission.ID).
			Int("attempt_number", submission.AttemptNumber).
			Msg("attempt started")

		return dto.NewSubmissionResponse(submission, view), nil
	}

	s.logger.Warn().
		Uint("assessment_id", assessmentID).
		Uint("user_id", actor.ID).
		Int("retries", s.config.StartRetryLimit).
		Msg("attempt start retries exhausted")
	return fail(ErrConcurrencyRetryExhausted, "retry_exhausted")
}

func (s *attemptService) Submit(ctx context.Context, actor Actor, assessmentID, submissionID uint, payload dto.SubmitAttemptRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempts.submit")
	span.SetAttributes(
		attribute.Int64("attempt.assessment_id", int64(assessmentID)),
		attribute.Int64("attempt.submission_id", int64(submissionID)),
		attribute.Int64("attempt.user_id", int64(actor.ID)),
	)
	defer span.End()

	fail := func(err error, status string) (dto.SubmissionResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return fail(ErrSubmissionNotFound, "submission_not_found")
		}
		return fail(err, "submission_lookup_failed")
	}
	if submission.UserID != actor.ID || submission.AssessmentID != assessmentID {
		return fail(ErrSubmissionNotFound, "submission_not_owned")
	}
	if submission.Status != models.SubmissionStatusInProgress {
		return fail(ErrAlreadyFinalized, "already_finalized")
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return fail(err, "assessment_lookup_failed")
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail(wrapValidation(err), "validation_failed")
	}
	if err := checkAnswerCount(assessment.Questions, len(payload.Answers)); err != nil {
		return fail(err, "validation_failed")
	}

	now := s.now()
	timeSpent := int(now.Sub(submission.StartTime) / time.Second)
	if timeSpent < 0 {
		timeSpent = 0
	}
	exceeded := assessment.TimeLimitMinutes != nil &&
		*assessment.TimeLimitMinutes > 0 &&
		timeSpent > *assessment.TimeLimitMinutes*60

	values := make([]*string, len(payload.Answers))
	for i, input := range payload.Answers {
		values[i] = input.Value
	}
	answers := grading.GradeAll(assessment.Questions, values)
	for i := range answers {
		if i < len(payload.Answers) {
			answers[i].TimeSpentSeconds = payload.Answers[i].TimeSpentSeconds
		}
	}

	submission.SubmitTime = &now
	submission.TimeSpentSeconds = timeSpent
	submission.IsTimeLimitExceeded = exceeded

	if assessment.IsAutoGraded {
		summary := grading.Aggregate(answers, submission.MaxPossibleScore, submission.PassingScorePercent)
		submission.Answers = answers
		submission.TotalScore = summary.TotalScore
		submission.Percentage = summary.Percentage
		submission.Passed = summary.Passed
		submission.Status = models.SubmissionStatusGraded
	} else {
		submission.Answers = grading.PendingReview(answers)
		submission.TotalScore = 0
		submission.Percentage = 0
		submission.Passed = false
		submission.Status = models.SubmissionStatusSubmitted
	}

	if err := s.submissions.Finalize(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotInProgress) {
			return fail(ErrAlreadyFinalized, "already_finalized")
		}
		return fail(err, "submission_finalize_failed")
	}

	observability.SubmissionsFinalized().WithLabelValues(string(submission.Status)).Inc()
	if exceeded {
		observability.TimeLimitExceeded().Inc()
	}
	span.SetAttributes(
		attribute.String("attempt.status", string(submission.Status)),
		attribute.Bool("attempt.time_limit_exceeded", exceeded),
	)

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assessment_id", assessmentID).
		Uint("user_id", actor.ID).
		Str("status", string(submission.Status)).
		Int("total_score", submission.TotalScore).
		Float64("percentage", submission.Percentage).
		Bool("time_limit_exceeded", exceeded).
		Msg("submission finalized")

	if s.stats != nil {
		s.stats.InvalidateStatistics(ctx, assessmentID)
	}
	if s.events != nil {
		if err := s.events.PublishFinalized(ctx, submission); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish submission event")
			span.RecordError(err)
		}
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     ActionSubmissionFinalized,
		EntityType: "submission",
		EntityID:   uintPtr(submission.ID),
		CourseID:   uintPtr(assessment.CourseID),
		Metadata: map[string]interface{}{
			"assessment_id":       assessmentID,
			"attempt_number":      submission.AttemptNumber,
			"status":              string(submission.Status),
			"total_score":         submission.TotalScore,
			"time_limit_exceeded": exceeded,
		},
	})

	return dto.NewSubmissionResponse(submission, learnerView(assessment)), nil
}

func (s *attemptService) loadAssessment(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

// checkAnswerCount requires an entry for every question up to the last
// required one. Trailing optional questions may be left out; extra entries
// are rejected.
func checkAnswerCount(questions []models.Question, count int) error {
	if count == 0 {
		return validationErrorf("answers are required")
	}
	minimum := 0
	for i, q := range questions {
		if q.IsRequired {
			minimum = i + 1
		}
	}
	if count < minimum {
		return validationErrorf("expected at least %d answers, got %d", minimum, count)
	}
	if count > len(questions) {
		return validationErrorf("expected at most %d answers, got %d", len(questions), count)
	}
	return nil
}
