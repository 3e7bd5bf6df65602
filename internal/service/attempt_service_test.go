package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

type attemptFixture struct {
	assessments *memoryAssessmentRepo
	submissions *memorySubmissionRepo
	publisher   *recordingPublisher
	stats       *countingInvalidator
	activity    *memoryActivityRepo
	service     *attemptService
	clock       time.Time
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	f := &attemptFixture{
		assessments: newMemoryAssessmentRepo(),
		submissions: newMemorySubmissionRepo(),
		publisher:   &recordingPublisher{},
		stats:       &countingInvalidator{},
		activity:    &memoryActivityRepo{},
		clock:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	access := newStubAccess()
	events := NewSubmissionEventPublisher(f.publisher, "", testLogger())
	activity := NewActivityService(f.activity, access, testLogger())

	svc := NewAttemptService(f.assessments, f.submissions, access, testValidator(), events, f.stats, activity, testLogger(), AttemptConfig{})
	f.service = svc.(*attemptService)
	f.service.now = func() time.Time { return f.clock }
	return f
}

func (f *attemptFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestAttemptServiceScenarioPartialCredit(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(
		choiceQuestion("First", "A", 5),
		choiceQuestion("Second", "B", 5),
	))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	require.Equal(t, 1, started.AttemptNumber)
	require.Equal(t, string(models.SubmissionStatusInProgress), started.Status)
	require.Equal(t, 10, started.MaxPossibleScore)

	f.advance(2 * time.Minute)
	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A"), strPtr("C")))
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
	require.Equal(t, 5, result.TotalScore)
	require.Equal(t, 10, result.MaxPossibleScore)
	require.Equal(t, 50.0, result.Percentage)
	require.True(t, result.Passed)
	require.Equal(t, 120, result.TimeSpentSeconds)
	require.False(t, result.IsTimeLimitExceeded)
	require.Len(t, result.Answers, 2)
	require.True(t, *result.Answers[0].IsCorrect)
	require.False(t, *result.Answers[1].IsCorrect)
}

func TestAttemptServiceScenarioAttemptLimit(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	for i := 1; i <= 2; i++ {
		started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
		require.NoError(t, err)
		require.Equal(t, i, started.AttemptNumber)

		_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
		require.NoError(t, err)
	}

	_, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.ErrorIs(t, err, ErrAttemptLimitExceeded)
	require.Equal(t, 2, f.submissions.countStatus(models.SubmissionStatusGraded))
}

func TestAttemptServiceScenarioTimeLimitFlagged(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := publishedAssessment(choiceQuestion("Only", "B", 4))
	assessment.TimeLimitMinutes = intPtr(1)
	assessment = f.assessments.put(assessment)

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	f.advance(90 * time.Second)
	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("B")))
	require.NoError(t, err)
	require.True(t, result.IsTimeLimitExceeded)
	require.Equal(t, 90, result.TimeSpentSeconds)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
	require.Equal(t, 4, result.TotalScore)
	require.Equal(t, 100.0, result.Percentage)
}

func TestAttemptServiceTimeLimitBoundary(t *testing.T) {
	cases := []struct {
		name     string
		elapsed  time.Duration
		exceeded bool
	}{
		{name: "exactly at limit", elapsed: 60 * time.Second, exceeded: false},
		{name: "one second over", elapsed: 61 * time.Second, exceeded: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAttemptFixture(t)
			assessment := publishedAssessment(choiceQuestion("Only", "B", 4))
			assessment.TimeLimitMinutes = intPtr(1)
			assessment = f.assessments.put(assessment)

			started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
			require.NoError(t, err)

			f.advance(tc.elapsed)
			result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("B")))
			require.NoError(t, err)
			require.Equal(t, int(tc.elapsed/time.Second), result.TimeSpentSeconds)
			require.Equal(t, tc.exceeded, result.IsTimeLimitExceeded)
		})
	}
}

func TestAttemptServiceScenarioEssayAutoGraded(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(models.Question{
		Text:       "Explain goroutines",
		Type:       models.QuestionEssay,
		Points:     10,
		IsRequired: true,
	}))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("They are cheap threads.")))
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
	require.Nil(t, result.Answers[0].IsCorrect)
	require.Equal(t, 0, result.Answers[0].Score)
	require.Equal(t, grading.FeedbackPendingReview, result.Answers[0].Feedback)
	require.Equal(t, 0.0, result.Percentage)
	require.False(t, result.Passed)
}

func TestAttemptServiceManualReviewLeavesSubmitted(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := publishedAssessment(choiceQuestion("Only", "A", 5))
	assessment.IsAutoGraded = false
	assessment = f.assessments.put(assessment)

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusSubmitted), result.Status)
	require.Nil(t, result.Answers[0].IsCorrect)
	require.Equal(t, 0, result.Answers[0].Score)
	require.Equal(t, "A", *result.Answers[0].Value)
	require.Equal(t, 0, result.TotalScore)
	require.False(t, result.Passed)
}

func TestAttemptServiceStartResumesInProgress(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	first, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	require.False(t, first.Resumed)

	second, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	require.True(t, second.Resumed)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, f.submissions.countStatus(models.SubmissionStatusInProgress))
}

func TestAttemptServiceStartSnapshotsScoringPolicy(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(
		choiceQuestion("First", "A", 5),
		choiceQuestion("Second", "B", 5),
	))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	stored, err := f.assessments.GetByID(context.Background(), assessment.ID)
	require.NoError(t, err)
	stored.Questions[1].Points = 15
	stored.PassingScorePercent = 90
	require.NoError(t, f.assessments.Update(context.Background(), &stored))

	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A"), strPtr("C")))
	require.NoError(t, err)
	require.Equal(t, 10, result.MaxPossibleScore)
	require.Equal(t, 50.0, result.PassingScorePercent)
	require.Equal(t, 50.0, result.Percentage)
	require.True(t, result.Passed)
}

func TestAttemptServiceStartRejectsDraftAndOutsiders(t *testing.T) {
	f := newAttemptFixture(t)
	draft := publishedAssessment(choiceQuestion("Only", "A", 5))
	draft.IsPublished = false
	draft = f.assessments.put(draft)

	_, err := f.service.Start(context.Background(), testLearner, draft.ID)
	require.ErrorIs(t, err, ErrAssessmentNotPublished)
	require.ErrorIs(t, err, ErrPermission)

	preview, err := f.service.Start(context.Background(), testOwner, draft.ID)
	require.NoError(t, err)
	require.Equal(t, 1, preview.AttemptNumber)

	published := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))
	_, err = f.service.Start(context.Background(), testOutside, published.ID)
	require.ErrorIs(t, err, ErrPermission)

	_, err = f.service.Start(context.Background(), testLearner, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptServiceSubmitTwiceIsAlreadyFinalized(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("B")))
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	stored, err := f.submissions.GetByID(context.Background(), started.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.TotalScore)
}

func TestAttemptServiceConcurrentSubmitFinalizesOnce(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyFinalized)
	}
	require.Equal(t, 1, succeeded)
	require.Len(t, f.publisher.payloads, 1)
}

func TestAttemptServiceSubmitOwnership(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))
	other := f.assessments.put(publishedAssessment(choiceQuestion("Other", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), testOther, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = f.service.Submit(context.Background(), testLearner, other.ID, started.ID, answersOf(strPtr("A")))
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, 999, answersOf(strPtr("A")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttemptServiceSubmitValidatesAnswerCount(t *testing.T) {
	f := newAttemptFixture(t)
	optional := choiceQuestion("Optional", "C", 2)
	optional.IsRequired = false
	assessment := f.assessments.put(publishedAssessment(
		choiceQuestion("First", "A", 4),
		choiceQuestion("Second", "B", 4),
		optional,
	))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, dto.SubmitAttemptRequest{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A"), strPtr("B"), strPtr("C"), strPtr("D")))
	require.ErrorIs(t, err, ErrValidation)

	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A"), nil))
	require.NoError(t, err)
	require.Len(t, result.Answers, 3)
	require.Equal(t, 4, result.TotalScore)
	require.Equal(t, 10, result.MaxPossibleScore)
	require.Equal(t, 40.0, result.Percentage)
	require.False(t, result.Passed)
	require.Equal(t, grading.FeedbackNoAnswer, result.Answers[1].Feedback)
}

func TestAttemptServiceAttemptNumbersAreGapless(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := publishedAssessment(choiceQuestion("Only", "A", 5))
	assessment.MaxAttempts = 4
	assessment = f.assessments.put(assessment)

	for i := 1; i <= 4; i++ {
		started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
		require.NoError(t, err)
		require.Equal(t, i, started.AttemptNumber)
		_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("B")))
		require.NoError(t, err)
	}

	attempts, err := f.submissions.ListAttempts(context.Background(), assessment.ID, testLearnerID)
	require.NoError(t, err)
	require.Len(t, attempts, 4)
	for i, attempt := range attempts {
		require.Equal(t, 4-i, attempt.AttemptNumber)
	}
}

func TestAttemptServiceStartRetriesAfterLostRace(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	var winner models.Submission
	f.submissions.beforeWrite = func(r *memorySubmissionRepo, _ *models.Submission) {
		winner = r.put(models.Submission{
			AssessmentID:     assessment.ID,
			UserID:           testLearnerID,
			AttemptNumber:    1,
			Status:           models.SubmissionStatusInProgress,
			StartTime:        f.clock,
			MaxPossibleScore: 5,
		})
	}

	resumed, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	require.True(t, resumed.Resumed)
	require.Equal(t, winner.ID, resumed.ID)
	require.Equal(t, 1, f.submissions.countStatus(models.SubmissionStatusInProgress))
}

func TestAttemptServiceConcurrentStartsCreateOneAttempt(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan dto.SubmissionResponse, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.service.Start(context.Background(), testLearner, assessment.ID)
			if err != nil {
				errs <- err
				return
			}
			results <- resp
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var id uint
	for resp := range results {
		if id == 0 {
			id = resp.ID
		}
		require.Equal(t, id, resp.ID)
		require.Equal(t, 1, resp.AttemptNumber)
	}
	require.Equal(t, 1, f.submissions.countStatus(models.SubmissionStatusInProgress))
}

type alwaysConflictingRepo struct {
	*memorySubmissionRepo
}

func (r alwaysConflictingRepo) Create(ctx context.Context, submission *models.Submission) error {
	return repository.ErrDuplicateAttempt
}

func TestAttemptServiceStartRetryExhausted(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	svc := NewAttemptService(f.assessments, alwaysConflictingRepo{f.submissions}, newStubAccess(), testValidator(), nil, nil, nil, testLogger(), AttemptConfig{StartRetryLimit: 2})

	_, err := svc.Start(context.Background(), testLearner, assessment.ID)
	require.ErrorIs(t, err, ErrConcurrencyRetryExhausted)
}

func TestAttemptServiceSubmitSideEffects(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.NoError(t, err)

	require.Equal(t, 1, f.stats.calls[assessment.ID])
	require.Equal(t, []string{DefaultEventsSubject}, f.publisher.subjects)

	var event SubmissionFinalizedEvent
	require.NoError(t, json.Unmarshal(f.publisher.payloads[0], &event))
	require.Equal(t, started.ID, event.SubmissionID)
	require.Equal(t, ActionSubmissionFinalized, event.Type)
	require.Equal(t, 100.0, event.Percentage)
	require.NotEmpty(t, event.ID)

	require.Contains(t, f.activity.actions(), ActionSubmissionFinalized)
}

func TestAttemptServiceSubmitSurvivesPublisherFailure(t *testing.T) {
	f := newAttemptFixture(t)
	f.publisher.err = errors.New("nats unavailable")
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("A")))
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
}

func TestAttemptServiceLearnerViewHidesCorrectAnswers(t *testing.T) {
	f := newAttemptFixture(t)
	assessment := f.assessments.put(publishedAssessment(choiceQuestion("Only", "A", 5)))

	started, err := f.service.Start(context.Background(), testLearner, assessment.ID)
	require.NoError(t, err)
	result, err := f.service.Submit(context.Background(), testLearner, assessment.ID, started.ID, answersOf(strPtr("B")))
	require.NoError(t, err)
	require.Len(t, result.Answers, 1)
	require.False(t, *result.Answers[0].IsCorrect)
	require.Empty(t, result.Answers[0].Feedback)
}
