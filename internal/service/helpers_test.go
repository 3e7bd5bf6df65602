package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const (
	testCourseID  uint = 7
	testOwnerID   uint = 1
	testLearnerID uint = 10
	testOtherID   uint = 11
	testOutsideID uint = 99
)

var (
	testOwner   = Actor{ID: testOwnerID, Role: RoleTeacher}
	testLearner = Actor{ID: testLearnerID, Role: RoleStudent}
	testOther   = Actor{ID: testOtherID, Role: RoleStudent}
	testOutside = Actor{ID: testOutsideID, Role: RoleStudent}
	testAdmin   = Actor{ID: 500, Role: RoleAdmin}
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func strPtr(v string) *string {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func boolPtrTest(v bool) *bool {
	return &v
}

// memoryAssessmentRepo mimics the GORM repository including the point total hook.
type memoryAssessmentRepo struct {
	mu     sync.Mutex
	items  map[uint]models.Assessment
	nextID uint
}

func newMemoryAssessmentRepo() *memoryAssessmentRepo {
	return &memoryAssessmentRepo{items: map[uint]models.Assessment{}}
}

func (r *memoryAssessmentRepo) List(ctx context.Context, filter repository.AssessmentFilter) ([]models.Assessment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Assessment, 0)
	for _, item := range r.items {
		if item.CourseID != filter.CourseID {
			continue
		}
		if filter.PublishedOnly && !item.IsPublished {
			continue
		}
		result = append(result, cloneAssessment(item))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, int64(len(result)), nil
}

func (r *memoryAssessmentRepo) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return models.Assessment{}, gorm.ErrRecordNotFound
	}
	return cloneAssessment(item), nil
}

func (r *memoryAssessmentRepo) Create(ctx context.Context, assessment *models.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	assessment.ID = r.nextID
	assessment.TotalPoints = models.SumPoints(assessment.Questions)
	assessment.CreatedAt = time.Now()
	assessment.UpdatedAt = assessment.CreatedAt
	r.items[assessment.ID] = cloneAssessment(*assessment)
	return nil
}

func (r *memoryAssessmentRepo) Update(ctx context.Context, assessment *models.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[assessment.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	assessment.TotalPoints = models.SumPoints(assessment.Questions)
	assessment.UpdatedAt = time.Now()
	r.items[assessment.ID] = cloneAssessment(*assessment)
	return nil
}

func (r *memoryAssessmentRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memoryAssessmentRepo) put(assessment models.Assessment) models.Assessment {
	_ = r.Create(context.Background(), &assessment)
	return assessment
}

func cloneAssessment(a models.Assessment) models.Assessment {
	questions := make([]models.Question, len(a.Questions))
	for i, q := range a.Questions {
		q.Options = append([]string(nil), q.Options...)
		questions[i] = q
	}
	a.Questions = questions
	return a
}

// memorySubmissionRepo enforces the (assessment, user, attempt number) key
// and the in-progress guard on finalize.
type memorySubmissionRepo struct {
	mu          sync.Mutex
	items       []models.Submission
	nextID      uint
	beforeWrite func(r *memorySubmissionRepo, submission *models.Submission)
}

func newMemorySubmissionRepo() *memorySubmissionRepo {
	return &memorySubmissionRepo{}
}

func (r *memorySubmissionRepo) List(ctx context.Context, filter repository.SubmissionFilter) ([]models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Submission, 0)
	for _, item := range r.items {
		if item.AssessmentID != filter.AssessmentID {
			continue
		}
		if filter.UserID != nil && item.UserID != *filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, item.Status) {
			continue
		}
		result = append(result, cloneSubmission(item))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].AttemptNumber > result[j].AttemptNumber
	})
	return result, nil
}

func (r *memorySubmissionRepo) ListAttempts(ctx context.Context, assessmentID, userID uint) ([]models.Submission, error) {
	return r.List(ctx, repository.SubmissionFilter{AssessmentID: assessmentID, UserID: &userID})
}

func (r *memorySubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range r.items {
		if item.ID == id {
			return cloneSubmission(item), nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (r *memorySubmissionRepo) CountByAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, item := range r.items {
		if item.AssessmentID == assessmentID {
			count++
		}
	}
	return count, nil
}

func (r *memorySubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if hook := r.beforeWrite; hook != nil {
		r.beforeWrite = nil
		hook(r, submission)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(submission)
}

func (r *memorySubmissionRepo) insertLocked(submission *models.Submission) error {
	for _, item := range r.items {
		if item.AssessmentID == submission.AssessmentID &&
			item.UserID == submission.UserID &&
			item.AttemptNumber == submission.AttemptNumber {
			return repository.ErrDuplicateAttempt
		}
	}
	r.nextID++
	submission.ID = r.nextID
	submission.CreatedAt = time.Now()
	r.items = append(r.items, cloneSubmission(*submission))
	return nil
}

func (r *memorySubmissionRepo) Finalize(ctx context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, item := range r.items {
		if item.ID != submission.ID {
			continue
		}
		if item.Status != models.SubmissionStatusInProgress {
			return repository.ErrSubmissionNotInProgress
		}
		r.items[i] = cloneSubmission(*submission)
		return nil
	}
	return repository.ErrSubmissionNotInProgress
}

func (r *memorySubmissionRepo) put(submission models.Submission) models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.insertLocked(&submission)
	return submission
}

func (r *memorySubmissionRepo) countStatus(status models.SubmissionStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, item := range r.items {
		if item.Status == status {
			count++
		}
	}
	return count
}

func cloneSubmission(s models.Submission) models.Submission {
	s.Answers = append([]models.Answer(nil), s.Answers...)
	return s
}

func containsStatus(statuses []models.SubmissionStatus, status models.SubmissionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// stubAccess grants management to owners and admins, enrollment to learners.
type stubAccess struct {
	owners   map[uint]bool
	learners map[uint]bool
}

func newStubAccess() *stubAccess {
	return &stubAccess{
		owners:   map[uint]bool{testOwnerID: true},
		learners: map[uint]bool{testLearnerID: true, testOtherID: true},
	}
}

func (a *stubAccess) CanManage(ctx context.Context, actor Actor, courseID uint) (bool, error) {
	return actor.IsAdmin() || (courseID == testCourseID && a.owners[actor.ID]), nil
}

func (a *stubAccess) IsEnrolled(ctx context.Context, actor Actor, courseID uint) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	return courseID == testCourseID && (a.owners[actor.ID] || a.learners[actor.ID]), nil
}

type memoryActivityRepo struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.ActivityLog, 0)
	for _, entry := range m.entries {
		if filter.CourseID != nil && (entry.CourseID == nil || *entry.CourseID != *filter.CourseID) {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		result = append(result, entry)
	}
	return result, int64(len(result)), nil
}

func (m *memoryActivityRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Action)
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, append([]byte(nil), data...))
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[uint]int
}

func (c *countingInvalidator) InvalidateStatistics(ctx context.Context, assessmentID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calls == nil {
		c.calls = map[uint]int{}
	}
	c.calls[assessmentID]++
}

func choiceQuestion(text, correct string, points int) models.Question {
	return models.Question{
		Text:          text,
		Type:          models.QuestionMultipleChoice,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
		Points:        points,
		IsRequired:    true,
	}
}

func publishedAssessment(questions ...models.Question) models.Assessment {
	for i := range questions {
		questions[i].Order = i + 1
	}
	return models.Assessment{
		CourseID:            testCourseID,
		CreatedBy:           testOwnerID,
		Title:               "Unit quiz",
		Kind:                models.AssessmentKindQuiz,
		Questions:           questions,
		PassingScorePercent: 50,
		MaxAttempts:         2,
		IsPublished:         true,
		IsAutoGraded:        true,
		AllowReview:         true,
	}
}

func answersOf(values ...*string) dto.SubmitAttemptRequest {
	answers := make([]dto.AnswerInput, len(values))
	for i, v := range values {
		answers[i] = dto.AnswerInput{Value: v}
	}
	return dto.SubmitAttemptRequest{Answers: answers}
}
