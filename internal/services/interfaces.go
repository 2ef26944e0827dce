package services

import (
	"context"
	"time"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	Pedido           = domain.Pedido
	PedidoStatus     = domain.PedidoStatus
	PedidoEvent      = domain.PedidoEvent
	AuditEntry       = domain.AuditEntry
	Notification     = domain.Notification
	NotificationType = domain.NotificationType
	Actor            = domain.Actor
)

// PedidoService orchestrates the pedido lifecycle: creation, payment method
// selection, role-gated status transitions, audit trail, and the listing and
// counting queries backing buyer and provider views.
type PedidoService interface {
	Create(ctx context.Context, cmd CreatePedidoCommand) (Pedido, error)
	Get(ctx context.Context, actor Actor, pedidoID string) (Pedido, error)
	UpdatePaymentMethod(ctx context.Context, cmd UpdatePaymentMethodCommand) (Pedido, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Pedido, error)
	ListForBuyer(ctx context.Context, actor Actor, query PedidoListQuery) ([]Pedido, error)
	ListForProvider(ctx context.Context, actor Actor, query PedidoListQuery) ([]Pedido, error)
	CountPendingForProvider(ctx context.Context, actor Actor) (int64, error)
	CountActiveForBuyer(ctx context.Context, actor Actor) (int64, error)
	ListAuditTrail(ctx context.Context, actor Actor, pedidoID string, pager Pagination) ([]AuditEntry, error)
}

// NotificationService exposes the in-app inbox raised by pedido events.
type NotificationService interface {
	ListForReceiver(ctx context.Context, actor Actor, query NotificationListQuery) ([]Notification, error)
	MarkRead(ctx context.Context, actor Actor, notificationID string) (Notification, error)
	CountUnread(ctx context.Context, actor Actor) (int64, error)
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PedidoEventPublisher publishes pedido domain events for downstream consumers.
type PedidoEventPublisher interface {
	PublishPedidoEvent(ctx context.Context, event PedidoEvent) error
}

// SystemHealthReport decorates the dependency health report with build metadata.
type SystemHealthReport struct {
	Status      repositories.HealthStatus
	Checks      map[string]repositories.HealthCheckResult
	GeneratedAt time.Time
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}

// Command and DTO definitions ------------------------------------------------

// CreatePedidoCommand packages the inputs of a new pedido. The actor is the
// buyer placing it; PedidoID is an optional caller-supplied identifier used
// by storefront clients that pre-generate ids for offline carts.
type CreatePedidoCommand struct {
	Actor           Actor
	PedidoID        string
	BuyerName       string
	ProviderEmail   string
	DetailJSON      string
	TotalCLP        *int64
	PaymentMethod   string
	TransferDetails string
	DeliveryAddress string
}

// UpdatePaymentMethodCommand selects how the buyer intends to pay.
type UpdatePaymentMethodCommand struct {
	Actor           Actor
	PedidoID        string
	Method          string
	TransferDetails string
}

// UpdateStatusCommand moves a pedido through its lifecycle. CancelReason is
// only consulted when the target status is CANCELADO.
type UpdateStatusCommand struct {
	Actor        Actor
	PedidoID     string
	Target       PedidoStatus
	CancelReason string
}

// PedidoListQuery narrows party listings by status and placement date.
type PedidoListQuery struct {
	Status     *PedidoStatus
	PlacedFrom *time.Time
	PlacedTo   *time.Time
	Pagination Pagination
}

// NotificationListQuery narrows inbox listings.
type NotificationListQuery struct {
	UnreadOnly bool
	PedidoID   string
	Pagination Pagination
}
