package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

// NotificationConfig sizes the notification worker pool.
type NotificationConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	BufferSize int
}

// NotificationService persists user notifications from a background queue.
type NotificationService struct {
	repo   notificationStore
	queue  *jobs.Queue[models.Notification]
	logger *zap.Logger
}

// NewNotificationService builds the service and its queue. Call Start before Notify.
func NewNotificationService(repo notificationStore, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{repo: repo, logger: logger}
	svc.queue = jobs.New("notifications", svc.handle, jobs.Config{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop persists what is already queued and waits for the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Stats reports delivery outcomes since Start.
func (s *NotificationService) Stats() jobs.Stats {
	return s.queue.Stats()
}

// Notify queues a notification. Failures are logged and never returned.
func (s *NotificationService) Notify(ctx context.Context, notification models.Notification) {
	if s == nil {
		return
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	err := s.queue.Offer(jobs.Job[models.Notification]{ID: notification.ID, Payload: notification})
	if err != nil {
		applog.FromContext(ctx, s.logger).Warn("failed to enqueue notification",
			zap.String("recipient_id", notification.RecipientID),
			zap.String("type", string(notification.Type)),
			zap.Error(err),
		)
	}
}

// ListForUser returns a user's latest notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	notifications, err := s.repo.ListByRecipient(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job[models.Notification]) error {
	notification := job.Payload
	if err := s.repo.Create(ctx, &notification); err != nil {
		return fmt.Errorf("persist notification %s: %w", notification.ID, err)
	}
	return nil
}
