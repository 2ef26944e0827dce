package domain

import (
	"time"
)

// Pagination defines offset-based paging inputs for list operations.
// Page is 1-based; PageSize caps the number of documents returned.
type Pagination struct {
	Page     int
	PageSize int
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// PedidoStatus enumerates valid lifecycle states for pedidos. The stored
// values are the Spanish identifiers the mobile and web clients already
// depend on, so they are part of the wire format.
type PedidoStatus string

const (
	// PedidoStatusPendiente indicates the pedido was placed and awaits provider review.
	PedidoStatusPendiente PedidoStatus = "PENDIENTE"
	// PedidoStatusConfirmado indicates the provider accepted the pedido.
	PedidoStatusConfirmado PedidoStatus = "CONFIRMADO"
	// PedidoStatusEsperandoPago indicates the buyer selected a payment method and payment is pending.
	PedidoStatusEsperandoPago PedidoStatus = "ESPERANDO_PAGO"
	// PedidoStatusPagado indicates the buyer reported the payment as done.
	PedidoStatusPagado PedidoStatus = "PAGADO"
	// PedidoStatusListoDespacho indicates the provider prepared the pedido for dispatch.
	PedidoStatusListoDespacho PedidoStatus = "LISTO_DESPACHO"
	// PedidoStatusEnCamino indicates the pedido left the provider and is in transit.
	PedidoStatusEnCamino PedidoStatus = "EN_CAMINO"
	// PedidoStatusEntregado indicates the buyer confirmed reception. Terminal.
	PedidoStatusEntregado PedidoStatus = "ENTREGADO"
	// PedidoStatusCancelado indicates the pedido was canceled by either party. Terminal.
	PedidoStatusCancelado PedidoStatus = "CANCELADO"
)

// PedidoStatuses lists every known status in lifecycle order.
func PedidoStatuses() []PedidoStatus {
	return []PedidoStatus{
		PedidoStatusPendiente,
		PedidoStatusConfirmado,
		PedidoStatusEsperandoPago,
		PedidoStatusPagado,
		PedidoStatusListoDespacho,
		PedidoStatusEnCamino,
		PedidoStatusEntregado,
		PedidoStatusCancelado,
	}
}

// IsValid reports whether s is one of the known lifecycle states.
func (s PedidoStatus) IsValid() bool {
	switch s {
	case PedidoStatusPendiente, PedidoStatusConfirmado, PedidoStatusEsperandoPago,
		PedidoStatusPagado, PedidoStatusListoDespacho, PedidoStatusEnCamino,
		PedidoStatusEntregado, PedidoStatusCancelado:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s PedidoStatus) IsTerminal() bool {
	return s == PedidoStatusEntregado || s == PedidoStatusCancelado
}

// Pedido captures a marketplace purchase order shared across layers. The
// buyer and the provider are identified by their account emails; the line
// items travel as an opaque JSON payload the storefront assembled.
type Pedido struct {
	ID              string
	BuyerEmail      string
	BuyerName       string
	ProviderEmail   string
	DetailJSON      string
	TotalCLP        int64
	Status          PedidoStatus
	PaymentMethod   *string
	TransferDetails *string
	DeliveryAddress *string
	PlacedAt        time.Time
	UpdatedAt       time.Time
	DispatchedAt    *time.Time
	DeliveredAt     *time.Time
	CancelReason    *string
	CanceledBy      *string
}

// AuditEntry records one status transition on a pedido.
type AuditEntry struct {
	ID         string
	PedidoID   string
	ActorEmail string
	// ActorHash is a salted digest of ActorEmail, empty when hashing is
	// not configured.
	ActorHash  string
	FromStatus PedidoStatus
	ToStatus   PedidoStatus
	Reason     *string
	CreatedAt  time.Time
}

// NotificationType enumerates the pedido event notifications delivered to
// the in-app inbox. Values are part of the wire format.
type NotificationType string

const (
	// NotificationPedidoNuevo tells the provider a new pedido arrived.
	NotificationPedidoNuevo NotificationType = "PEDIDO_NUEVO"
	// NotificationPedidoListo tells the buyer the pedido is ready for dispatch.
	NotificationPedidoListo NotificationType = "PEDIDO_LISTO"
	// NotificationPedidoEnCamino tells the buyer the pedido is in transit.
	NotificationPedidoEnCamino NotificationType = "PEDIDO_EN_CAMINO"
	// NotificationPedidoEntregado tells the provider the buyer confirmed reception.
	NotificationPedidoEntregado NotificationType = "PEDIDO_ENTREGADO"
)

// Notification is a single inbox message tied to a pedido event.
type Notification struct {
	ID            string
	SenderEmail   string
	SenderName    string
	ReceiverEmail string
	Content       string
	Type          NotificationType
	PedidoID      string
	Read          bool
	Timestamp     time.Time
}

// Actor identifies the authenticated principal driving an operation.
type Actor struct {
	Email string
	Name  string
	Role  string
}

// Elevated reports whether the actor bypasses party-level access checks.
func (a Actor) Elevated() bool {
	return a.Role == "admin" || a.Role == "root"
}

// PedidoEvent is published after a successful pedido mutation so downstream
// consumers (reporting, e-mail relays) can react without coupling to the API.
type PedidoEvent struct {
	PedidoID   string       `json:"pedidoId"`
	Type       string       `json:"type"`
	FromStatus PedidoStatus `json:"fromStatus,omitempty"`
	ToStatus   PedidoStatus `json:"toStatus,omitempty"`
	ActorEmail string       `json:"actorEmail"`
	OccurredAt time.Time    `json:"occurredAt"`
}
