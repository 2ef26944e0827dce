package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stredes/bakend-red-pirvada/internal/platform/textutil"
	"github.com/stredes/bakend-red-pirvada/internal/repositories"
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationForbidden indicates the actor does not own the notification.
	ErrNotificationForbidden = errors.New("notification: forbidden")
)

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
}

type notificationService struct {
	notifications repositories.NotificationRepository
	clock         func() time.Time
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &notificationService{
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *notificationService) ListForReceiver(ctx context.Context, actor Actor, query NotificationListQuery) ([]Notification, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: receiver email is required", ErrNotificationInvalidInput)
	}

	filter := repositories.NotificationListFilter{
		UnreadOnly: query.UnreadOnly,
		Pagination: query.Pagination,
	}
	if pedidoID := strings.TrimSpace(query.PedidoID); pedidoID != "" {
		filter.PedidoID = &pedidoID
	}

	notifications, err := s.notifications.ListByReceiver(ctx, email, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, actor Actor, notificationID string) (Notification, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	notification, err := s.notifications.FindByID(ctx, notificationID)
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	email := textutil.NormalizeEmail(actor.Email)
	if notification.ReceiverEmail != email && !actor.Elevated() {
		return Notification{}, fmt.Errorf("%w: %s is not the receiver of %s", ErrNotificationForbidden, actor.Email, notificationID)
	}

	if notification.Read {
		return notification, nil
	}

	now := s.clock()
	if err := s.notifications.MarkRead(ctx, notificationID, now); err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	notification.Read = true
	return notification, nil
}

func (s *notificationService) CountUnread(ctx context.Context, actor Actor) (int64, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return 0, fmt.Errorf("%w: receiver email is required", ErrNotificationInvalidInput)
	}

	count, err := s.notifications.CountUnreadByReceiver(ctx, email)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}

	return err
}
