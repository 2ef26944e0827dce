package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/platform/textutil"
	"github.com/stredes/bakend-red-pirvada/internal/repositories"
)

const (
	pedidoEventCreated       = "pedido.created"
	pedidoEventStatusChanged = "pedido.estado.changed"

	pedidoIDPrefix = "ped_"

	defaultBuyerName   = "Cliente"
	fallbackBuyerLabel = "El cliente"
	providerLabel      = "Proveedor"
)

var (
	// ErrPedidoInvalidInput signals the caller provided invalid data.
	ErrPedidoInvalidInput = errors.New("pedido: invalid input")
	// ErrPedidoNotFound indicates the pedido could not be located.
	ErrPedidoNotFound = errors.New("pedido: not found")
	// ErrPedidoForbidden indicates the actor is not a party to the pedido.
	ErrPedidoForbidden = errors.New("pedido: forbidden")
	// ErrPedidoInvalidTransition indicates a status change the lifecycle does not admit.
	ErrPedidoInvalidTransition = errors.New("pedido: invalid status transition")
	// ErrPedidoCancelReasonRequired indicates a cancellation without a motive.
	ErrPedidoCancelReasonRequired = errors.New("pedido: cancel reason required")
	// ErrPedidoConflict indicates a duplicate pedido id or concurrent mutation.
	ErrPedidoConflict = errors.New("pedido: conflict")
)

// PedidoServiceDeps bundles collaborators required to construct the pedido service.
type PedidoServiceDeps struct {
	Pedidos       repositories.PedidoRepository
	Audits        repositories.AuditLogRepository
	Notifications repositories.NotificationRepository
	Events        PedidoEventPublisher
	// AuditHashSalt, when set, adds a salted SHA-256 digest of the actor
	// email to every audit entry so trails can be correlated without
	// exposing the address.
	AuditHashSalt string
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type pedidoService struct {
	pedidos       repositories.PedidoRepository
	audits        repositories.AuditLogRepository
	notifications repositories.NotificationRepository
	events        PedidoEventPublisher
	auditSalt     string
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

var _ PedidoService = (*pedidoService)(nil)

// NewPedidoService wires dependencies into a concrete PedidoService implementation.
func NewPedidoService(deps PedidoServiceDeps) (PedidoService, error) {
	if deps.Pedidos == nil {
		return nil, errors.New("pedido service: pedido repository is required")
	}
	if deps.Audits == nil {
		return nil, errors.New("pedido service: audit repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pedidoService{
		pedidos:       deps.Pedidos,
		audits:        deps.Audits,
		notifications: deps.Notifications,
		events:        deps.Events,
		auditSalt:     strings.TrimSpace(deps.AuditHashSalt),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *pedidoService) Create(ctx context.Context, cmd CreatePedidoCommand) (Pedido, error) {
	buyerEmail := textutil.NormalizeEmail(cmd.Actor.Email)
	if buyerEmail == "" {
		return Pedido{}, fmt.Errorf("%w: buyer email is required", ErrPedidoInvalidInput)
	}

	providerEmail := textutil.NormalizeEmail(cmd.ProviderEmail)
	if providerEmail == "" {
		return Pedido{}, fmt.Errorf("%w: provider email is required", ErrPedidoInvalidInput)
	}
	if providerEmail == buyerEmail {
		return Pedido{}, fmt.Errorf("%w: buyer and provider must differ", ErrPedidoInvalidInput)
	}

	detail := strings.TrimSpace(cmd.DetailJSON)
	if detail == "" {
		return Pedido{}, fmt.Errorf("%w: detail is required", ErrPedidoInvalidInput)
	}
	if !json.Valid([]byte(detail)) {
		return Pedido{}, fmt.Errorf("%w: detail must be valid JSON", ErrPedidoInvalidInput)
	}

	if cmd.TotalCLP == nil {
		return Pedido{}, fmt.Errorf("%w: total is required", ErrPedidoInvalidInput)
	}
	if *cmd.TotalCLP < 0 {
		return Pedido{}, fmt.Errorf("%w: total must not be negative", ErrPedidoInvalidInput)
	}

	buyerName := textutil.CleanText(cmd.BuyerName, 160)
	if buyerName == "" {
		buyerName = textutil.CleanText(cmd.Actor.Name, 160)
	}
	if buyerName == "" {
		buyerName = defaultBuyerName
	}

	now := s.now()
	pedido := Pedido{
		ID:            s.pedidoID(cmd.PedidoID),
		BuyerEmail:    buyerEmail,
		BuyerName:     buyerName,
		ProviderEmail: providerEmail,
		DetailJSON:    detail,
		TotalCLP:      *cmd.TotalCLP,
		Status:        domain.PedidoStatusPendiente,
		PlacedAt:      now,
		UpdatedAt:     now,
	}

	if method := textutil.CleanText(cmd.PaymentMethod, 80); method != "" {
		pedido.PaymentMethod = &method
	}
	if details := textutil.CleanText(cmd.TransferDetails, 512); details != "" {
		pedido.TransferDetails = &details
	}
	if address := textutil.CleanText(cmd.DeliveryAddress, 512); address != "" {
		pedido.DeliveryAddress = &address
	}

	if err := s.pedidos.Create(ctx, pedido); err != nil {
		return Pedido{}, s.mapRepositoryError(err)
	}

	s.notify(ctx, Notification{
		SenderEmail:   pedido.BuyerEmail,
		SenderName:    pedido.BuyerName,
		ReceiverEmail: pedido.ProviderEmail,
		Content:       fmt.Sprintf("Nuevo pedido recibido de %s. Total: $%d", pedido.BuyerName, pedido.TotalCLP),
		Type:          domain.NotificationPedidoNuevo,
		PedidoID:      pedido.ID,
		Timestamp:     now,
	})

	s.publishEvent(ctx, PedidoEvent{
		PedidoID:   pedido.ID,
		Type:       pedidoEventCreated,
		ToStatus:   pedido.Status,
		ActorEmail: buyerEmail,
		OccurredAt: now,
	})

	return pedido, nil
}

func (s *pedidoService) Get(ctx context.Context, actor Actor, pedidoID string) (Pedido, error) {
	pedido, err := s.find(ctx, pedidoID)
	if err != nil {
		return Pedido{}, err
	}
	if !pedido.CanAccess(actor) {
		return Pedido{}, fmt.Errorf("%w: %s is not a party to pedido %s", ErrPedidoForbidden, actor.Email, pedido.ID)
	}
	return pedido, nil
}

func (s *pedidoService) UpdatePaymentMethod(ctx context.Context, cmd UpdatePaymentMethodCommand) (Pedido, error) {
	pedido, err := s.find(ctx, cmd.PedidoID)
	if err != nil {
		return Pedido{}, err
	}

	if !pedido.IsBuyer(cmd.Actor) && !cmd.Actor.Elevated() {
		return Pedido{}, fmt.Errorf("%w: only the buyer selects the payment method", ErrPedidoForbidden)
	}

	if pedido.Status != domain.PedidoStatusConfirmado && pedido.Status != domain.PedidoStatusEsperandoPago {
		return Pedido{}, fmt.Errorf("%w: payment method can only be set while %s or %s, pedido is %s",
			ErrPedidoInvalidTransition, domain.PedidoStatusConfirmado, domain.PedidoStatusEsperandoPago, pedido.Status)
	}

	method := textutil.CleanText(cmd.Method, 80)
	details := textutil.CleanText(cmd.TransferDetails, 512)

	now := s.now()
	from := pedido.Status
	target := domain.PedidoStatusEsperandoPago

	update := repositories.PedidoUpdate{
		Status:          &target,
		PaymentMethod:   &method,
		TransferDetails: &details,
		UpdatedAt:       now,
	}
	if err := s.pedidos.ApplyUpdate(ctx, pedido.ID, update); err != nil {
		return Pedido{}, s.mapRepositoryError(err)
	}

	pedido.Status = target
	pedido.PaymentMethod = optionalString(method)
	pedido.TransferDetails = optionalString(details)
	pedido.UpdatedAt = now

	s.appendAudit(ctx, AuditEntry{
		PedidoID:   pedido.ID,
		ActorEmail: cmd.Actor.Email,
		FromStatus: from,
		ToStatus:   target,
		Reason:     optionalString(method),
		CreatedAt:  now,
	})

	s.publishEvent(ctx, PedidoEvent{
		PedidoID:   pedido.ID,
		Type:       pedidoEventStatusChanged,
		FromStatus: from,
		ToStatus:   target,
		ActorEmail: cmd.Actor.Email,
		OccurredAt: now,
	})

	return pedido, nil
}

func (s *pedidoService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Pedido, error) {
	pedido, err := s.find(ctx, cmd.PedidoID)
	if err != nil {
		return Pedido{}, err
	}

	if !pedido.CanAccess(cmd.Actor) {
		return Pedido{}, fmt.Errorf("%w: %s is not a party to pedido %s", ErrPedidoForbidden, cmd.Actor.Email, pedido.ID)
	}

	target := cmd.Target
	reason := textutil.CleanText(cmd.CancelReason, 512)
	if target == domain.PedidoStatusCancelado && reason == "" {
		return Pedido{}, ErrPedidoCancelReasonRequired
	}

	if !pedido.CanTransition(target, cmd.Actor) {
		return Pedido{}, fmt.Errorf("%w: cannot move %s from %s to %s as %s",
			ErrPedidoInvalidTransition, pedido.ID, pedido.Status, target, cmd.Actor.Role)
	}

	now := s.now()
	from := pedido.Status

	update := repositories.PedidoUpdate{
		Status:    &target,
		UpdatedAt: now,
	}
	switch target {
	case domain.PedidoStatusEnCamino:
		update.DispatchedAt = &now
	case domain.PedidoStatusEntregado:
		update.DeliveredAt = &now
	case domain.PedidoStatusCancelado:
		update.CancelReason = &reason
		canceledBy := cmd.Actor.Email
		update.CanceledBy = &canceledBy
	}

	if err := s.pedidos.ApplyUpdate(ctx, pedido.ID, update); err != nil {
		return Pedido{}, s.mapRepositoryError(err)
	}

	pedido.Status = target
	pedido.UpdatedAt = now
	pedido.DispatchedAt = coalesceTime(pedido.DispatchedAt, update.DispatchedAt)
	pedido.DeliveredAt = coalesceTime(pedido.DeliveredAt, update.DeliveredAt)
	pedido.CancelReason = update.CancelReason
	pedido.CanceledBy = update.CanceledBy

	var auditReason *string
	if target == domain.PedidoStatusCancelado {
		auditReason = optionalString(reason)
	}
	s.appendAudit(ctx, AuditEntry{
		PedidoID:   pedido.ID,
		ActorEmail: cmd.Actor.Email,
		FromStatus: from,
		ToStatus:   target,
		Reason:     auditReason,
		CreatedAt:  now,
	})

	s.notifyStatusChange(ctx, pedido, now)

	s.publishEvent(ctx, PedidoEvent{
		PedidoID:   pedido.ID,
		Type:       pedidoEventStatusChanged,
		FromStatus: from,
		ToStatus:   target,
		ActorEmail: cmd.Actor.Email,
		OccurredAt: now,
	})

	return pedido, nil
}

func (s *pedidoService) ListForBuyer(ctx context.Context, actor Actor, query PedidoListQuery) ([]Pedido, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: buyer email is required", ErrPedidoInvalidInput)
	}
	pedidos, err := s.pedidos.ListByBuyer(ctx, email, listFilter(query))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return pedidos, nil
}

func (s *pedidoService) ListForProvider(ctx context.Context, actor Actor, query PedidoListQuery) ([]Pedido, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider email is required", ErrPedidoInvalidInput)
	}
	pedidos, err := s.pedidos.ListByProvider(ctx, email, listFilter(query))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return pedidos, nil
}

func (s *pedidoService) CountPendingForProvider(ctx context.Context, actor Actor) (int64, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return 0, fmt.Errorf("%w: provider email is required", ErrPedidoInvalidInput)
	}
	count, err := s.pedidos.CountByProviderAndStatus(ctx, email, domain.PedidoStatusPendiente)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *pedidoService) CountActiveForBuyer(ctx context.Context, actor Actor) (int64, error) {
	email := textutil.NormalizeEmail(actor.Email)
	if email == "" {
		return 0, fmt.Errorf("%w: buyer email is required", ErrPedidoInvalidInput)
	}
	count, err := s.pedidos.CountActiveByBuyer(ctx, email)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *pedidoService) ListAuditTrail(ctx context.Context, actor Actor, pedidoID string, pager Pagination) ([]AuditEntry, error) {
	pedido, err := s.find(ctx, pedidoID)
	if err != nil {
		return nil, err
	}
	if !pedido.CanAccess(actor) {
		return nil, fmt.Errorf("%w: %s is not a party to pedido %s", ErrPedidoForbidden, actor.Email, pedido.ID)
	}
	entries, err := s.audits.ListByPedido(ctx, pedido.ID, pager)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return entries, nil
}

func (s *pedidoService) find(ctx context.Context, pedidoID string) (Pedido, error) {
	pedidoID = strings.TrimSpace(pedidoID)
	if pedidoID == "" {
		return Pedido{}, fmt.Errorf("%w: pedido id is required", ErrPedidoInvalidInput)
	}
	pedido, err := s.pedidos.FindByID(ctx, pedidoID)
	if err != nil {
		return Pedido{}, s.mapRepositoryError(err)
	}
	return pedido, nil
}

// notifyStatusChange raises the inbox message matching the new status. Only a
// subset of transitions notify, mirroring what the storefront surfaces.
func (s *pedidoService) notifyStatusChange(ctx context.Context, pedido Pedido, now time.Time) {
	switch pedido.Status {
	case domain.PedidoStatusListoDespacho:
		s.notify(ctx, Notification{
			SenderEmail:   pedido.ProviderEmail,
			SenderName:    providerLabel,
			ReceiverEmail: pedido.BuyerEmail,
			Content:       "📦 Tu pedido está listo y será enviado pronto.",
			Type:          domain.NotificationPedidoListo,
			PedidoID:      pedido.ID,
			Timestamp:     now,
		})
	case domain.PedidoStatusEnCamino:
		s.notify(ctx, Notification{
			SenderEmail:   pedido.ProviderEmail,
			SenderName:    providerLabel,
			ReceiverEmail: pedido.BuyerEmail,
			Content:       "🚚 ¡Tu pedido está en camino! Confirma la recepción al recibirlo.",
			Type:          domain.NotificationPedidoEnCamino,
			PedidoID:      pedido.ID,
			Timestamp:     now,
		})
	case domain.PedidoStatusEntregado:
		buyerLabel := pedido.BuyerName
		if buyerLabel == "" {
			buyerLabel = fallbackBuyerLabel
		}
		senderName := pedido.BuyerName
		if senderName == "" {
			senderName = defaultBuyerName
		}
		s.notify(ctx, Notification{
			SenderEmail:   pedido.BuyerEmail,
			SenderName:    senderName,
			ReceiverEmail: pedido.ProviderEmail,
			Content:       fmt.Sprintf("✅ %s confirmó la recepción. Total: $%d", buyerLabel, pedido.TotalCLP),
			Type:          domain.NotificationPedidoEntregado,
			PedidoID:      pedido.ID,
			Timestamp:     now,
		})
	}
}

// notify inserts an inbox message. Failures are logged and swallowed so a
// notification outage never blocks the pedido mutation that triggered it.
func (s *pedidoService) notify(ctx context.Context, notification Notification) {
	if s.notifications == nil {
		return
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		s.logger(ctx, "pedido.notification.insert.failed", map[string]any{
			"pedido": notification.PedidoID,
			"type":   string(notification.Type),
			"error":  err.Error(),
		})
	}
}

// appendAudit records a transition entry. Audit failures are logged and
// swallowed, the primary mutation has already been committed.
func (s *pedidoService) appendAudit(ctx context.Context, entry AuditEntry) {
	entry.ActorHash = s.actorHash(entry.ActorEmail)
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger(ctx, "pedido.audit.append.failed", map[string]any{
			"pedido": entry.PedidoID,
			"to":     string(entry.ToStatus),
			"error":  err.Error(),
		})
	}
}

// actorHash derives a salted digest of the actor email. It returns empty
// when no salt is configured.
func (s *pedidoService) actorHash(email string) string {
	if s.auditSalt == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.auditSalt + strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func (s *pedidoService) publishEvent(ctx context.Context, event PedidoEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPedidoEvent(ctx, event); err != nil {
		s.logger(ctx, "pedido.event.publish.failed", map[string]any{
			"pedido": event.PedidoID,
			"type":   event.Type,
			"error":  err.Error(),
		})
	}
}

func (s *pedidoService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPedidoNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPedidoConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("pedido: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *pedidoService) now() time.Time {
	return s.clock()
}

func (s *pedidoService) pedidoID(supplied string) string {
	if trimmed := strings.TrimSpace(supplied); trimmed != "" {
		return trimmed
	}
	return pedidoIDPrefix + s.newID()
}

func listFilter(query PedidoListQuery) repositories.PedidoListFilter {
	return repositories.PedidoListFilter{
		Status: query.Status,
		Placed: domain.RangeQuery[time.Time]{
			From: query.PlacedFrom,
			To:   query.PlacedTo,
		},
		Pagination: query.Pagination,
	}
}

func coalesceTime(existing *time.Time, updated *time.Time) *time.Time {
	if updated != nil {
		return updated
	}
	return existing
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
