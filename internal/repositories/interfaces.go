package repositories

import (
	"context"
	"time"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PedidoRepository persists pedido documents and provides the party-scoped
// query helpers the handlers need. Create fails with a conflict error when
// the document already exists; it never overwrites.
type PedidoRepository interface {
	Create(ctx context.Context, pedido domain.Pedido) error
	ApplyUpdate(ctx context.Context, pedidoID string, update PedidoUpdate) error
	FindByID(ctx context.Context, pedidoID string) (domain.Pedido, error)
	ListByBuyer(ctx context.Context, email string, filter PedidoListFilter) ([]domain.Pedido, error)
	ListByProvider(ctx context.Context, email string, filter PedidoListFilter) ([]domain.Pedido, error)
	CountByProviderAndStatus(ctx context.Context, email string, status domain.PedidoStatus) (int64, error)
	CountActiveByBuyer(ctx context.Context, email string) (int64, error)
}

// PedidoUpdate carries the targeted field mutations of a status or payment
// change. Nil pointers leave the stored field untouched.
type PedidoUpdate struct {
	Status          *domain.PedidoStatus
	PaymentMethod   *string
	TransferDetails *string
	DispatchedAt    *time.Time
	DeliveredAt     *time.Time
	CancelReason    *string
	CanceledBy      *string
	UpdatedAt       time.Time
}

// PedidoListFilter narrows party listings by status and placement date.
type PedidoListFilter struct {
	Status     *domain.PedidoStatus
	Placed     domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// AuditLogRepository persists immutable pedido transition entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByPedido(ctx context.Context, pedidoID string, pager domain.Pagination) ([]domain.AuditEntry, error)
}

// NotificationRepository stores the in-app inbox messages raised by pedido events.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	FindByID(ctx context.Context, notificationID string) (domain.Notification, error)
	ListByReceiver(ctx context.Context, email string, filter NotificationListFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string, readAt time.Time) error
	CountUnreadByReceiver(ctx context.Context, email string) (int64, error)
}

// NotificationListFilter narrows inbox listings.
type NotificationListFilter struct {
	UnreadOnly bool
	PedidoID   *string
	Pagination domain.Pagination
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (HealthReport, error)
}

// HealthStatus summarises a single dependency probe outcome.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheckResult carries the outcome of one dependency probe.
type HealthCheckResult struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency status for the readiness endpoint.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheckResult
	GeneratedAt time.Time
}
