package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
)

type pendingStageCounter interface {
	CountPendingByStage(ctx context.Context) ([]models.StageCount, error)
}

type notificationWriter interface {
	CreateBatch(ctx context.Context, notes []models.Notification) error
}

// ReminderService emails each stage's officers a digest of the requests
// waiting on them and leaves the same reminder in their notification inbox.
type ReminderService struct {
	requests pendingStageCounter
	notes    notificationWriter
	notifier *Notifier
	logger   *zap.Logger
}

// NewReminderService constructs the service.
func NewReminderService(requests pendingStageCounter, notes notificationWriter, notifier *Notifier, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{requests: requests, notes: notes, notifier: notifier, logger: logger}
}

// SendPendingDigests queues one digest per officer of every stage with
// pending requests and returns the number of emails queued.
func (s *ReminderService) SendPendingDigests(ctx context.Context) (int, error) {
	counts, err := s.requests.CountPendingByStage(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}

	var emails []EmailJob
	var inbox []models.Notification
	for _, c := range counts {
		dept, ok := c.Stage.Department()
		if !ok || c.Count == 0 {
			continue
		}
		officers, err := s.notifier.Officers(ctx, dept)
		if err != nil {
			s.logger.Warn("failed to load officers for digest", zap.String("department", string(dept)), zap.Error(err))
			continue
		}
		for _, officer := range officers {
			inbox = append(inbox, models.Notification{
				UserID:  officer.ID,
				Message: fmt.Sprintf("%d clearance requests are waiting for your approval", c.Count),
				Type:    models.NotificationApprovalRequired,
			})
			if officer.Email == "" {
				continue
			}
			if email, ok := s.notifier.PendingDigest(officer, dept, c.Count); ok {
				emails = append(emails, email)
			}
		}
	}
	if s.notes != nil {
		if err := s.notes.CreateBatch(ctx, inbox); err != nil {
			s.logger.Warn("failed to store reminder notifications", zap.Int("count", len(inbox)), zap.Error(err))
		}
	}
	s.notifier.Dispatch(emails)
	s.logger.Info("pending digests queued", zap.Int("emails", len(emails)), zap.Int("notifications", len(inbox)))
	return len(emails), nil
}
