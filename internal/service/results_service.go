package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// StatisticsInvalidator drops cached statistics after a submission changes.
type StatisticsInvalidator interface {
	InvalidateStatistics(ctx context.Context, assessmentID uint)
}

// ResultsService answers read-only questions about finalized attempts.
type ResultsService interface {
	StatisticsInvalidator
	ListSubmissions(ctx context.Context, actor Actor, assessmentID, userID uint) (dto.SubmissionListResponse, error)
	BestSubmission(ctx context.Context, actor Actor, assessmentID, userID uint) (dto.SubmissionResponse, error)
	SubmissionStatistics(ctx context.Context, actor Actor, assessmentID uint) (dto.SubmissionStatisticsResponse, error)
}

type resultsService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	access      CourseAccess
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewResultsService constructs the results aggregator. A nil cache disables
// statistics caching.
func NewResultsService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, access CourseAccess, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ResultsService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &resultsService{
		assessments: assessments,
		submissions: submissions,
		access:      access,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "results_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/results"),
		now:         time.Now,
	}
}

func (s *resultsService) ListSubmissions(ctx context.Context, actor Actor, assessmentID, userID uint) (dto.SubmissionListResponse, error) {
	if userID == 0 {
		userID = actor.ID
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}
	view, err := s.viewFor(ctx, actor, assessment, userID)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	attempts, err := s.submissions.ListAttempts(ctx, assessmentID, userID)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	items := make([]dto.SubmissionResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, dto.NewSubmissionResponse(attempt, view))
	}

	return dto.SubmissionListResponse{Items: items, Total: len(items)}, nil
}

func (s *resultsService) BestSubmission(ctx context.Context, actor Actor, assessmentID, userID uint) (dto.SubmissionResponse, error) {
	if userID == 0 {
		userID = actor.ID
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	view, err := s.viewFor(ctx, actor, assessment, userID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	attempts, err := s.submissions.ListAttempts(ctx, assessmentID, userID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	best, ok := pickBest(attempts)
	if !ok {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	return dto.NewSubmissionResponse(best, view), nil
}

func (s *resultsService) SubmissionStatistics(ctx context.Context, actor Actor, assessmentID uint) (dto.SubmissionStatisticsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "results.statistics")
	span.SetAttributes(attribute.Int64("results.assessment_id", int64(assessmentID)))
	defer span.End()

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.SubmissionStatisticsResponse{}, err
	}
	if err := requireManager(ctx, s.access, actor, assessment.CourseID); err != nil {
		span.SetStatus(codes.Error, "permission_denied")
		return dto.SubmissionStatisticsResponse{}, err
	}

	cacheKey := statisticsCacheKey(assessmentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SubmissionStatisticsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("results.cache_hit", true))
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read statistics cache")
		}
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssessmentID: assessmentID,
		Statuses: []models.SubmissionStatus{
			models.SubmissionStatusSubmitted,
			models.SubmissionStatusGraded,
			models.SubmissionStatusReviewed,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_query_failed")
		return dto.SubmissionStatisticsResponse{}, err
	}

	response := computeStatistics(assessmentID, submissions)
	response.GeneratedAt = s.now().UTC()

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store statistics cache")
			}
		}
	}

	return response, nil
}

func (s *resultsService) InvalidateStatistics(ctx context.Context, assessmentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statisticsCacheKey(assessmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assessment_id", assessmentID).Msg("failed to invalidate statistics cache")
	}
}

func (s *resultsService) loadAssessment(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

// viewFor lets managers read anyone's attempts and learners read only their own.
func (s *resultsService) viewFor(ctx context.Context, actor Actor, assessment models.Assessment, userID uint) (dto.SubmissionView, error) {
	manager, err := s.access.CanManage(ctx, actor, assessment.CourseID)
	if err != nil {
		return dto.SubmissionView{}, err
	}
	if manager {
		return dto.FullSubmissionView, nil
	}
	if actor.ID != userID {
		return dto.SubmissionView{}, ErrNotCourseManager
	}
	enrolled, err := s.access.IsEnrolled(ctx, actor, assessment.CourseID)
	if err != nil {
		return dto.SubmissionView{}, err
	}
	if !enrolled {
		return dto.SubmissionView{}, ErrNotEnrolled
	}
	return learnerView(assessment), nil
}

func learnerView(assessment models.Assessment) dto.SubmissionView {
	return dto.SubmissionView{
		IncludeAnswers: assessment.AllowReview,
		RevealCorrect:  assessment.ShowCorrectAnswers,
	}
}

// pickBest returns the scored attempt with the highest percentage. Ties go to
// the earlier attempt.
func pickBest(attempts []models.Submission) (models.Submission, bool) {
	var best models.Submission
	found := false
	for _, attempt := range attempts {
		if !attempt.IsScored() {
			continue
		}
		if !found ||
			attempt.Percentage > best.Percentage ||
			(attempt.Percentage == best.Percentage && attempt.AttemptNumber < best.AttemptNumber) {
			best = attempt
			found = true
		}
	}
	return best, found
}

func computeStatistics(assessmentID uint, submissions []models.Submission) dto.SubmissionStatisticsResponse {
	stats := dto.SubmissionStatisticsResponse{AssessmentID: assessmentID}
	learners := make(map[uint]struct{})

	var percentSum float64
	var timeSum int
	for _, submission := range submissions {
		if submission.Status == models.SubmissionStatusSubmitted {
			stats.PendingReviewCount++
			continue
		}
		if !submission.IsScored() {
			continue
		}

		learners[submission.UserID] = struct{}{}
		if stats.ScoredCount == 0 || submission.Percentage < stats.MinPercentage {
			stats.MinPercentage = submission.Percentage
		}
		if stats.ScoredCount == 0 || submission.Percentage > stats.MaxPercentage {
			stats.MaxPercentage = submission.Percentage
		}
		stats.ScoredCount++
		percentSum += submission.Percentage
		timeSum += submission.TimeSpentSeconds
		if submission.Passed {
			stats.PassCount++
		}
		if submission.IsTimeLimitExceeded {
			stats.TimeLimitExceededCount++
		}
	}

	stats.DistinctLearners = len(learners)
	if stats.ScoredCount > 0 {
		n := float64(stats.ScoredCount)
		stats.AveragePercentage = roundTo(percentSum/n, 2)
		stats.PassRate = roundTo(float64(stats.PassCount)/n*100, 2)
		stats.AverageTimeSpentSeconds = roundTo(float64(timeSum)/n, 2)
	}

	return stats
}

func statisticsCacheKey(assessmentID uint) string {
	return fmt.Sprintf("assessment:stats:%d", assessmentID)
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
