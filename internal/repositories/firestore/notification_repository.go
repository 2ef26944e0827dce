package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	pfirestore "github.com/stredes/bakend-red-pirvada/internal/platform/firestore"
	"github.com/stredes/bakend-red-pirvada/internal/repositories"
)

// The messages collection predates this service and is shared with the chat
// feature of the storefront, hence the generic name.
const messagesCollection = "messages"

// NotificationRepository stores pedido event notifications in Firestore.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{
		base: pfirestore.NewBaseRepository[notificationDocument](provider, messagesCollection, nil, nil),
	}, nil
}

// Insert appends one notification under a generated document id.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	doc := notificationDocument{
		SenderEmail:   notification.SenderEmail,
		SenderName:    notification.SenderName,
		ReceiverEmail: notification.ReceiverEmail,
		Content:       notification.Content,
		Type:          string(notification.Type),
		PedidoID:      notification.PedidoID,
		Read:          notification.Read,
		Timestamp:     notification.Timestamp.UTC(),
	}
	_, _, err := r.base.Add(ctx, doc)
	return err
}

// FindByID fetches one notification by document id.
func (r *NotificationRepository) FindByID(ctx context.Context, notificationID string) (domain.Notification, error) {
	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByReceiver returns the receiver's inbox, newest first.
func (r *NotificationRepository) ListByReceiver(ctx context.Context, email string, filter repositories.NotificationListFilter) ([]domain.Notification, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return nil, errors.New("notification repository: receiver email is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("receiverEmail", "==", address)
		if filter.UnreadOnly {
			query = query.Where("read", "==", false)
		}
		if filter.PedidoID != nil {
			query = query.Where("pedidoId", "==", *filter.PedidoID)
		}
		query = query.OrderBy("timestamp", firestore.Desc)
		page, size := normalisePager(filter.Pagination)
		return query.Offset((page - 1) * size).Limit(size)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) error {
	_, err := r.base.Update(ctx, notificationID, []firestore.Update{
		{Path: "read", Value: true},
		{Path: "readAt", Value: readAt.UTC()},
	})
	return err
}

// CountUnreadByReceiver counts the receiver's unread notifications.
func (r *NotificationRepository) CountUnreadByReceiver(ctx context.Context, email string) (int64, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return 0, errors.New("notification repository: receiver email is required")
	}
	return r.base.Count(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("receiverEmail", "==", address).
			Where("read", "==", false)
	})
}

type notificationDocument struct {
	SenderEmail   string     `firestore:"senderEmail"`
	SenderName    string     `firestore:"senderName"`
	ReceiverEmail string     `firestore:"receiverEmail"`
	Content       string     `firestore:"content"`
	Type          string     `firestore:"type"`
	PedidoID      string     `firestore:"pedidoId"`
	Read          bool       `firestore:"read"`
	Timestamp     time.Time  `firestore:"timestamp"`
	ReadAt        *time.Time `firestore:"readAt,omitempty"`
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:            id,
		SenderEmail:   d.SenderEmail,
		SenderName:    d.SenderName,
		ReceiverEmail: d.ReceiverEmail,
		Content:       d.Content,
		Type:          domain.NotificationType(d.Type),
		PedidoID:      d.PedidoID,
		Read:          d.Read,
		Timestamp:     d.Timestamp,
	}
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
