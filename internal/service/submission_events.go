package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// DefaultEventsSubject is used when no subject is configured.
const DefaultEventsSubject = "assessment.submission.finalized"

// MessagePublisher is the subset of *nats.Conn used for outbound events.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// SubmissionEventPublisher announces finalized attempts to downstream consumers.
type SubmissionEventPublisher interface {
	PublishFinalized(ctx context.Context, submission models.Submission) error
}

// SubmissionFinalizedEvent is the payload published after a submit.
type SubmissionFinalizedEvent struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type"`
	SubmissionID        uint      `json:"submission_id"`
	AssessmentID        uint      `json:"assessment_id"`
	UserID              uint      `json:"user_id"`
	AttemptNumber       int       `json:"attempt_number"`
	Status              string    `json:"status"`
	TotalScore          int       `json:"total_score"`
	MaxPossibleScore    int       `json:"max_possible_score"`
	Percentage          float64   `json:"percentage"`
	Passed              bool      `json:"passed"`
	IsTimeLimitExceeded bool      `json:"is_time_limit_exceeded"`
	OccurredAt          time.Time `json:"occurred_at"`
}

type natsSubmissionEvents struct {
	conn    MessagePublisher
	subject string
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSubmissionEventPublisher publishes finalize events on the given subject.
// A nil connection yields a publisher that drops events.
func NewSubmissionEventPublisher(conn MessagePublisher, subject string, logger zerolog.Logger) SubmissionEventPublisher {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultEventsSubject
	}
	return &natsSubmissionEvents{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "submission_events").Logger(),
		now:     time.Now,
	}
}

func (p *natsSubmissionEvents) PublishFinalized(ctx context.Context, submission models.Submission) error {
	if p.conn == nil {
		return nil
	}

	event := SubmissionFinalizedEvent{
		ID:                  uuid.NewString(),
		Type:                ActionSubmissionFinalized,
		SubmissionID:        submission.ID,
		AssessmentID:        submission.AssessmentID,
		UserID:              submission.UserID,
		AttemptNumber:       submission.AttemptNumber,
		Status:              string(submission.Status),
		TotalScore:          submission.TotalScore,
		MaxPossibleScore:    submission.MaxPossibleScore,
		Percentage:          submission.Percentage,
		Passed:              submission.Passed,
		IsTimeLimitExceeded: submission.IsTimeLimitExceeded,
		OccurredAt:          p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return err
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Uint("submission_id", submission.ID).
		Msg("submission event published")
	return nil
}
