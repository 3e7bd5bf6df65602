package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const maxAssessmentPageSize = 100

// AssessmentService owns assessment definitions.
type AssessmentService interface {
	Create(ctx context.Context, actor Actor, courseID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Get(ctx context.Context, actor Actor, id uint) (dto.AssessmentResponse, error)
	List(ctx context.Context, actor Actor, courseID uint, req dto.AssessmentListRequest) (dto.AssessmentListResponse, error)
}

type assessmentService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	access      CourseAccess
	validator   *validator.Validate
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewAssessmentService constructs the definition store.
func NewAssessmentService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, access CourseAccess, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		assessments: assessments,
		submissions: submissions,
		access:      access,
		validator:   validate,
		activity:    activity,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "assessment_service").Logger(),
	}
}

func (s *assessmentService) Create(ctx context.Context, actor Actor, courseID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	if courseID == 0 {
		return dto.AssessmentResponse{}, validationErrorf("course id is required")
	}
	if err := requireManager(ctx, s.access, actor, courseID); err != nil {
		return dto.AssessmentResponse{}, err
	}

	payload.Kind = strings.ToUpper(strings.TrimSpace(payload.Kind))
	payload.Questions = normalizeQuestionTypes(payload.Questions)
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, wrapValidation(err)
	}

	questions, err := s.buildQuestions(payload.Questions)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	title := s.clean(payload.Title)
	if title == "" {
		return dto.AssessmentResponse{}, validationErrorf("title is required")
	}

	assessment := models.Assessment{
		CourseID:            courseID,
		CreatedBy:           actor.ID,
		Title:               title,
		Description:         s.clean(payload.Description),
		Kind:                models.AssessmentKind(payload.Kind),
		Questions:           questions,
		TimeLimitMinutes:    payload.TimeLimitMinutes,
		PassingScorePercent: payload.PassingScorePercent,
		MaxAttempts:         payload.MaxAttempts,
		IsPublished:         payload.IsPublished,
		IsAutoGraded:        payload.IsAutoGraded,
		AllowReview:         payload.AllowReview,
		ShowCorrectAnswers:  payload.ShowCorrectAnswers,
		TotalPoints:         models.SumPoints(questions),
	}

	if err := s.assessments.Create(ctx, &assessment); err != nil {
		s.logger.Error().Err(err).Uint("course_id", courseID).Msg("failed to create assessment")
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().
		Uint("assessment_id", assessment.ID).
		Uint("course_id", courseID).
		Int("questions", len(questions)).
		Int("total_points", assessment.TotalPoints).
		Msg("assessment created")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     ActionAssessmentCreated,
		EntityType: "assessment",
		EntityID:   uintPtr(assessment.ID),
		CourseID:   uintPtr(courseID),
		Metadata: map[string]interface{}{
			"title":        assessment.Title,
			"total_points": assessment.TotalPoints,
		},
	})

	return dto.NewAssessmentResponse(assessment, true), nil
}

func (s *assessmentService) Update(ctx context.Context, actor Actor, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if err := requireManager(ctx, s.access, actor, assessment.CourseID); err != nil {
		return dto.AssessmentResponse{}, err
	}

	if payload.Kind != nil {
		kind := strings.ToUpper(strings.TrimSpace(*payload.Kind))
		payload.Kind = &kind
	}
	if payload.Questions != nil && len(payload.Questions) == 0 {
		return dto.AssessmentResponse{}, validationErrorf("at least one question is required")
	}
	payload.Questions = normalizeQuestionTypes(payload.Questions)
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, wrapValidation(err)
	}

	changed := make([]string, 0, 8)
	if payload.Questions != nil {
		questions, err := s.buildQuestions(payload.Questions)
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
		assessment.Questions = questions
		changed = append(changed, "questions")
	}
	if payload.Title != nil {
		title := s.clean(*payload.Title)
		if title == "" {
			return dto.AssessmentResponse{}, validationErrorf("title is required")
		}
		assessment.Title = title
		changed = append(changed, "title")
	}
	if payload.Description != nil {
		assessment.Description = s.clean(*payload.Description)
		changed = append(changed, "description")
	}
	if payload.Kind != nil {
		assessment.Kind = models.AssessmentKind(*payload.Kind)
		changed = append(changed, "kind")
	}
	if payload.ClearTimeLimit {
		assessment.TimeLimitMinutes = nil
		changed = append(changed, "time_limit_minutes")
	} else if payload.TimeLimitMinutes != nil {
		limit := *payload.TimeLimitMinutes
		assessment.TimeLimitMinutes = &limit
		changed = append(changed, "time_limit_minutes")
	}
	if payload.PassingScorePercent != nil {
		assessment.PassingScorePercent = *payload.PassingScorePercent
		changed = append(changed, "passing_score_percent")
	}
	if payload.MaxAttempts != nil {
		assessment.MaxAttempts = *payload.MaxAttempts
		changed = append(changed, "max_attempts")
	}
	if payload.IsPublished != nil {
		assessment.IsPublished = *payload.IsPublished
		changed = append(changed, "is_published")
	}
	if payload.IsAutoGraded != nil {
		assessment.IsAutoGraded = *payload.IsAutoGraded
		changed = append(changed, "is_auto_graded")
	}
	if payload.AllowReview != nil {
		assessment.AllowReview = *payload.AllowReview
		changed = append(changed, "allow_review")
	}
	if payload.ShowCorrectAnswers != nil {
		assessment.ShowCorrectAnswers = *payload.ShowCorrectAnswers
		changed = append(changed, "show_correct_answers")
	}

	assessment.TotalPoints = models.SumPoints(assessment.Questions)

	if err := s.assessments.Update(ctx, &assessment); err != nil {
		s.logger.Error().Err(err).Uint("assessment_id", id).Msg("failed to update assessment")
		return dto.AssessmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     ActionAssessmentUpdated,
		EntityType: "assessment",
		EntityID:   uintPtr(assessment.ID),
		CourseID:   uintPtr(assessment.CourseID),
		Metadata: map[string]interface{}{
			"fields":       changed,
			"total_points": assessment.TotalPoints,
		},
	})

	return dto.NewAssessmentResponse(assessment, true), nil
}

func (s *assessmentService) Delete(ctx context.Context, actor Actor, id uint) error {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := requireManager(ctx, s.access, actor, assessment.CourseID); err != nil {
		return err
	}

	count, err := s.submissions.CountByAssessment(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAssessmentHasSubmissions
	}

	if err := s.assessments.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return ErrAssessmentNotFound
		}
		// A submission inserted after the count still trips the foreign key.
		if errors.Is(err, repository.ErrAssessmentInUse) {
			return ErrAssessmentHasSubmissions
		}
		return err
	}

	s.logger.Info().Uint("assessment_id", id).Uint("actor_id", actor.ID).Msg("assessment deleted")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     ActionAssessmentDeleted,
		EntityType: "assessment",
		EntityID:   uintPtr(id),
		CourseID:   uintPtr(assessment.CourseID),
		Metadata:   map[string]interface{}{"title": assessment.Title},
	})

	return nil
}

func (s *assessmentService) Get(ctx context.Context, actor Actor, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	manager, err := s.access.CanManage(ctx, actor, assessment.CourseID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if manager {
		return dto.NewAssessmentResponse(assessment, true), nil
	}

	enrolled, err := s.access.IsEnrolled(ctx, actor, assessment.CourseID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if !enrolled {
		return dto.AssessmentResponse{}, ErrNotEnrolled
	}
	if !assessment.IsPublished {
		return dto.AssessmentResponse{}, ErrAssessmentNotFound
	}

	reveal := false
	if assessment.ShowCorrectAnswers && assessment.AllowReview {
		reveal, err = s.hasFinalizedAttempt(ctx, assessment.ID, actor.ID)
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
	}

	return dto.NewAssessmentResponse(assessment, reveal), nil
}

func (s *assessmentService) List(ctx context.Context, actor Actor, courseID uint, req dto.AssessmentListRequest) (dto.AssessmentListResponse, error) {
	manager, err := s.access.CanManage(ctx, actor, courseID)
	if err != nil {
		return dto.AssessmentListResponse{}, err
	}
	if !manager {
		enrolled, err := s.access.IsEnrolled(ctx, actor, courseID)
		if err != nil {
			return dto.AssessmentListResponse{}, err
		}
		if !enrolled {
			return dto.AssessmentListResponse{}, ErrNotEnrolled
		}
	}

	if req.PageSize > maxAssessmentPageSize {
		req.PageSize = maxAssessmentPageSize
	}

	items, total, err := s.assessments.List(ctx, repository.AssessmentFilter{
		CourseID:      courseID,
		PublishedOnly: !manager,
		Search:        req.Search,
		Page:          req.Page,
		PageSize:      req.PageSize,
	})
	if err != nil {
		return dto.AssessmentListResponse{}, err
	}

	responses := make([]dto.AssessmentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewAssessmentResponse(item, manager))
	}

	return dto.AssessmentListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *assessmentService) load(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (s *assessmentService) hasFinalizedAttempt(ctx context.Context, assessmentID, userID uint) (bool, error) {
	attempts, err := s.submissions.ListAttempts(ctx, assessmentID, userID)
	if err != nil {
		return false, err
	}
	for _, attempt := range attempts {
		if attempt.IsFinalized() {
			return true, nil
		}
	}
	return false, nil
}

func (s *assessmentService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

// buildQuestions validates question payloads and returns them sorted by order.
func (s *assessmentService) buildQuestions(items []dto.QuestionRequest) ([]models.Question, error) {
	if len(items) == 0 {
		return nil, validationErrorf("at least one question is required")
	}

	questions := make([]models.Question, 0, len(items))
	usedBy := make(map[int]int, len(items))
	for i, item := range items {
		position := i + 1
		qType := models.QuestionType(item.Type)
		if !qType.Valid() {
			return nil, validationErrorf("question %d: unknown type %q", position, item.Type)
		}

		text := s.clean(item.Text)
		if text == "" {
			return nil, validationErrorf("question %d: text is required", position)
		}
		if item.Points < 1 {
			return nil, validationErrorf("question %d: points must be at least 1", position)
		}

		order := position
		if item.Order != nil {
			order = *item.Order
		}
		if order < 1 {
			return nil, validationErrorf("question %d: order must be at least 1", position)
		}
		if other, ok := usedBy[order]; ok {
			return nil, validationErrorf("question %d: order %d already used by question %d", position, order, other)
		}
		usedBy[order] = position

		options, correct, err := normalizeAnswerKey(qType, item.Options, item.CorrectAnswer)
		if err != nil {
			return nil, validationErrorf("question %d: %s", position, err)
		}

		required := true
		if item.IsRequired != nil {
			required = *item.IsRequired
		}

		questions = append(questions, models.Question{
			Text:          text,
			Type:          qType,
			Options:       options,
			CorrectAnswer: correct,
			Points:        item.Points,
			Order:         order,
			IsRequired:    required,
			Explanation:   s.clean(item.Explanation),
		})
	}

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})

	return questions, nil
}

// normalizeAnswerKey returns the stored options and correct answer for a
// question. Subjective questions never carry an answer key.
func normalizeAnswerKey(qType models.QuestionType, options []string, correct string) ([]string, string, error) {
	correct = strings.TrimSpace(correct)

	switch qType {
	case models.QuestionTrueFalse:
		value := strings.ToLower(correct)
		if value == "" {
			return nil, "", errors.New("correct answer is required")
		}
		if value != "true" && value != "false" {
			return nil, "", errors.New("correct answer must be true or false")
		}
		return []string{"true", "false"}, value, nil
	case models.QuestionSingleChoice, models.QuestionMultipleChoice:
		normalized, err := normalizeOptions(qType, options)
		if err != nil {
			return nil, "", err
		}
		if correct == "" {
			return nil, "", errors.New("correct answer is required")
		}
		if qType == models.QuestionSingleChoice {
			if !containsString(normalized, correct) {
				return nil, "", fmt.Errorf("correct answer %q is not one of the options", correct)
			}
			return normalized, correct, nil
		}
		selections := grading.SplitSelections(correct)
		if len(selections) == 0 {
			return nil, "", errors.New("correct answer is required")
		}
		for _, selection := range selections {
			if !containsString(normalized, selection) {
				return nil, "", fmt.Errorf("correct answer %q is not one of the options", selection)
			}
		}
		return normalized, strings.Join(selections, ","), nil
	default:
		return nil, "", nil
	}
}

func normalizeOptions(qType models.QuestionType, options []string) ([]string, error) {
	normalized := make([]string, 0, len(options))
	for _, option := range options {
		trimmed := strings.TrimSpace(option)
		if trimmed == "" {
			return nil, errors.New("options must not be blank")
		}
		if qType == models.QuestionMultipleChoice && strings.Contains(trimmed, ",") {
			return nil, fmt.Errorf("option %q must not contain a comma", trimmed)
		}
		if containsString(normalized, trimmed) {
			return nil, fmt.Errorf("duplicate option %q", trimmed)
		}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) < 2 {
		return nil, errors.New("at least two options are required")
	}
	return normalized, nil
}

func normalizeQuestionTypes(items []dto.QuestionRequest) []dto.QuestionRequest {
	if items == nil {
		return nil
	}
	out := make([]dto.QuestionRequest, len(items))
	for i, item := range items {
		item.Type = strings.ToUpper(strings.TrimSpace(item.Type))
		out[i] = item
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
