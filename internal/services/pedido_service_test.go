package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/repositories"
)

type stubPedidoRepo struct {
	createFn        func(context.Context, domain.Pedido) error
	applyFn         func(context.Context, string, repositories.PedidoUpdate) error
	findFn          func(context.Context, string) (domain.Pedido, error)
	listBuyerFn     func(context.Context, string, repositories.PedidoListFilter) ([]domain.Pedido, error)
	listProviderFn  func(context.Context, string, repositories.PedidoListFilter) ([]domain.Pedido, error)
	countProviderFn func(context.Context, string, domain.PedidoStatus) (int64, error)
	countBuyerFn    func(context.Context, string) (int64, error)
}

func (s *stubPedidoRepo) Create(ctx context.Context, pedido domain.Pedido) error {
	if s.createFn != nil {
		return s.createFn(ctx, pedido)
	}
	return nil
}

func (s *stubPedidoRepo) ApplyUpdate(ctx context.Context, pedidoID string, update repositories.PedidoUpdate) error {
	if s.applyFn != nil {
		return s.applyFn(ctx, pedidoID, update)
	}
	return nil
}

func (s *stubPedidoRepo) FindByID(ctx context.Context, pedidoID string) (domain.Pedido, error) {
	if s.findFn != nil {
		return s.findFn(ctx, pedidoID)
	}
	return domain.Pedido{}, errors.New("not implemented")
}

func (s *stubPedidoRepo) ListByBuyer(ctx context.Context, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
	if s.listBuyerFn != nil {
		return s.listBuyerFn(ctx, email, filter)
	}
	return nil, nil
}

func (s *stubPedidoRepo) ListByProvider(ctx context.Context, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
	if s.listProviderFn != nil {
		return s.listProviderFn(ctx, email, filter)
	}
	return nil, nil
}

func (s *stubPedidoRepo) CountByProviderAndStatus(ctx context.Context, email string, status domain.PedidoStatus) (int64, error) {
	if s.countProviderFn != nil {
		return s.countProviderFn(ctx, email, status)
	}
	return 0, nil
}

func (s *stubPedidoRepo) CountActiveByBuyer(ctx context.Context, email string) (int64, error) {
	if s.countBuyerFn != nil {
		return s.countBuyerFn(ctx, email)
	}
	return 0, nil
}

type stubAuditRepo struct {
	appendFn func(context.Context, domain.AuditEntry) error
	listFn   func(context.Context, string, domain.Pagination) ([]domain.AuditEntry, error)
	entries  []domain.AuditEntry
}

func (s *stubAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, entry)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) ListByPedido(ctx context.Context, pedidoID string, pager domain.Pagination) ([]domain.AuditEntry, error) {
	if s.listFn != nil {
		return s.listFn(ctx, pedidoID, pager)
	}
	return s.entries, nil
}

type stubNotificationRepo struct {
	insertFn func(context.Context, domain.Notification) error
	inserted []domain.Notification
}

func (s *stubNotificationRepo) Insert(ctx context.Context, notification domain.Notification) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, notification)
	}
	s.inserted = append(s.inserted, notification)
	return nil
}

func (s *stubNotificationRepo) FindByID(context.Context, string) (domain.Notification, error) {
	return domain.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationRepo) ListByReceiver(context.Context, string, repositories.NotificationListFilter) ([]domain.Notification, error) {
	return nil, nil
}

func (s *stubNotificationRepo) MarkRead(context.Context, string, time.Time) error {
	return nil
}

func (s *stubNotificationRepo) CountUnreadByReceiver(context.Context, string) (int64, error) {
	return 0, nil
}

type capturePedidoEvents struct {
	events []PedidoEvent
}

func (c *capturePedidoEvents) PublishPedidoEvent(_ context.Context, event PedidoEvent) error {
	c.events = append(c.events, event)
	return nil
}

type pedidoRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e pedidoRepoError) Error() string       { return "pedido repository error" }
func (e pedidoRepoError) IsNotFound() bool    { return e.notFound }
func (e pedidoRepoError) IsConflict() bool    { return e.conflict }
func (e pedidoRepoError) IsUnavailable() bool { return e.unavailable }

func newPedidoServiceForTest(t *testing.T, deps PedidoServiceDeps) PedidoService {
	t.Helper()
	if deps.Pedidos == nil {
		deps.Pedidos = &stubPedidoRepo{}
	}
	if deps.Audits == nil {
		deps.Audits = &stubAuditRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time {
			return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "000TEST" }
	}
	svc, err := NewPedidoService(deps)
	if err != nil {
		t.Fatalf("new pedido service: %v", err)
	}
	return svc
}

func TestPedidoServiceCreate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var inserted domain.Pedido
	repo := &stubPedidoRepo{
		createFn: func(_ context.Context, pedido domain.Pedido) error {
			inserted = pedido
			return nil
		},
	}
	notifications := &stubNotificationRepo{}
	events := &capturePedidoEvents{}

	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos:       repo,
		Notifications: notifications,
		Events:        events,
		Clock:         func() time.Time { return now },
	})

	total := int64(45990)
	pedido, err := svc.Create(ctx, CreatePedidoCommand{
		Actor:         Actor{Email: "comprador@correo.cl", Name: "María Soto", Role: "user"},
		ProviderEmail: "  Proveedor@Tienda.CL ",
		DetailJSON:    `[{"producto":"Harina 25kg","cantidad":3}]`,
		TotalCLP:      &total,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if pedido.ID != "ped_000TEST" {
		t.Fatalf("unexpected pedido id %s", pedido.ID)
	}
	if pedido.Status != domain.PedidoStatusPendiente {
		t.Fatalf("expected PENDIENTE got %s", pedido.Status)
	}
	if pedido.ProviderEmail != "proveedor@tienda.cl" {
		t.Fatalf("provider email not normalised: %s", pedido.ProviderEmail)
	}
	if pedido.BuyerName != "María Soto" {
		t.Fatalf("expected buyer name from actor got %s", pedido.BuyerName)
	}
	if !pedido.PlacedAt.Equal(now) {
		t.Fatalf("unexpected placedAt %s", pedido.PlacedAt)
	}
	if inserted.ID != pedido.ID {
		t.Fatalf("repository received different pedido %s", inserted.ID)
	}

	if len(notifications.inserted) != 1 {
		t.Fatalf("expected 1 notification got %d", len(notifications.inserted))
	}
	note := notifications.inserted[0]
	if note.Type != domain.NotificationPedidoNuevo {
		t.Fatalf("unexpected notification type %s", note.Type)
	}
	if note.ReceiverEmail != "proveedor@tienda.cl" {
		t.Fatalf("notification should target the provider, got %s", note.ReceiverEmail)
	}
	if note.Content != "Nuevo pedido recibido de María Soto. Total: $45990" {
		t.Fatalf("unexpected notification content %q", note.Content)
	}

	if len(events.events) != 1 || events.events[0].Type != "pedido.created" {
		t.Fatalf("expected pedido.created event, got %+v", events.events)
	}
}

func TestPedidoServiceCreateDefaultsBuyerName(t *testing.T) {
	ctx := context.Background()
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{})

	total := int64(1000)
	pedido, err := svc.Create(ctx, CreatePedidoCommand{
		Actor:         Actor{Email: "anon@correo.cl", Role: "user"},
		ProviderEmail: "proveedor@tienda.cl",
		DetailJSON:    `[]`,
		TotalCLP:      &total,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pedido.BuyerName != "Cliente" {
		t.Fatalf("expected fallback buyer name Cliente got %s", pedido.BuyerName)
	}
}

func TestPedidoServiceCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{})
	total := int64(500)
	negative := int64(-1)

	cases := []struct {
		name string
		cmd  CreatePedidoCommand
	}{
		{"missing provider", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, DetailJSON: `[]`, TotalCLP: &total,
		}},
		{"missing detail", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, ProviderEmail: "p@b.cl", TotalCLP: &total,
		}},
		{"malformed detail", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, ProviderEmail: "p@b.cl", DetailJSON: `{"open":`, TotalCLP: &total,
		}},
		{"missing total", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, ProviderEmail: "p@b.cl", DetailJSON: `[]`,
		}},
		{"negative total", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, ProviderEmail: "p@b.cl", DetailJSON: `[]`, TotalCLP: &negative,
		}},
		{"buyer is provider", CreatePedidoCommand{
			Actor: Actor{Email: "a@b.cl", Role: "user"}, ProviderEmail: "A@B.cl", DetailJSON: `[]`, TotalCLP: &total,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.cmd); !errors.Is(err, ErrPedidoInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
}

func TestPedidoServiceCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		createFn: func(context.Context, domain.Pedido) error {
			return pedidoRepoError{conflict: true}
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	total := int64(100)
	_, err := svc.Create(ctx, CreatePedidoCommand{
		Actor:         Actor{Email: "a@b.cl", Role: "user"},
		PedidoID:      "ped_existing",
		ProviderEmail: "p@b.cl",
		DetailJSON:    `[]`,
		TotalCLP:      &total,
	})
	if !errors.Is(err, ErrPedidoConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestPedidoServiceGetAccess(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	if _, err := svc.Get(ctx, Actor{Email: "comprador@correo.cl", Role: "user"}, "ped_1"); err != nil {
		t.Fatalf("buyer access: %v", err)
	}
	if _, err := svc.Get(ctx, Actor{Email: "soporte@tienda.cl", Role: "admin"}, "ped_1"); err != nil {
		t.Fatalf("admin access: %v", err)
	}
	if _, err := svc.Get(ctx, Actor{Email: "otro@correo.cl", Role: "user"}, "ped_1"); !errors.Is(err, ErrPedidoForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestPedidoServiceGetNotFound(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(context.Context, string) (domain.Pedido, error) {
			return domain.Pedido{}, pedidoRepoError{notFound: true}
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	if _, err := svc.Get(ctx, Actor{Email: "a@b.cl", Role: "user"}, "ped_missing"); !errors.Is(err, ErrPedidoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPedidoServiceUpdatePaymentMethod(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusConfirmado,
			}, nil
		},
	}
	var applied repositories.PedidoUpdate
	repo.applyFn = func(_ context.Context, _ string, update repositories.PedidoUpdate) error {
		applied = update
		return nil
	}
	audits := &stubAuditRepo{}
	events := &capturePedidoEvents{}

	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos: repo,
		Audits:  audits,
		Events:  events,
		Clock:   func() time.Time { return now },
	})

	pedido, err := svc.UpdatePaymentMethod(ctx, UpdatePaymentMethodCommand{
		Actor:           Actor{Email: "comprador@correo.cl", Role: "user"},
		PedidoID:        "ped_1",
		Method:          "transferencia",
		TransferDetails: "Banco Estado, cta 123",
	})
	if err != nil {
		t.Fatalf("update payment method: %v", err)
	}

	if pedido.Status != domain.PedidoStatusEsperandoPago {
		t.Fatalf("expected ESPERANDO_PAGO got %s", pedido.Status)
	}
	if applied.Status == nil || *applied.Status != domain.PedidoStatusEsperandoPago {
		t.Fatalf("repository update missing status change")
	}
	if applied.PaymentMethod == nil || *applied.PaymentMethod != "transferencia" {
		t.Fatalf("repository update missing payment method")
	}
	if len(audits.entries) != 1 {
		t.Fatalf("expected 1 audit entry got %d", len(audits.entries))
	}
	entry := audits.entries[0]
	if entry.FromStatus != domain.PedidoStatusConfirmado || entry.ToStatus != domain.PedidoStatusEsperandoPago {
		t.Fatalf("unexpected audit transition %s to %s", entry.FromStatus, entry.ToStatus)
	}
	if entry.Reason == nil || *entry.Reason != "transferencia" {
		t.Fatalf("audit reason should carry the method")
	}
	if len(events.events) != 1 || events.events[0].Type != "pedido.estado.changed" {
		t.Fatalf("expected status change event, got %+v", events.events)
	}
}

func TestPedidoServiceUpdatePaymentMethodGuards(t *testing.T) {
	ctx := context.Background()
	status := domain.PedidoStatusConfirmado
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        status,
			}, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	if _, err := svc.UpdatePaymentMethod(ctx, UpdatePaymentMethodCommand{
		Actor:    Actor{Email: "proveedor@tienda.cl", Role: "proveedor"},
		PedidoID: "ped_1",
		Method:   "transferencia",
	}); !errors.Is(err, ErrPedidoForbidden) {
		t.Fatalf("provider must not set the payment method, got %v", err)
	}

	status = domain.PedidoStatusPendiente
	if _, err := svc.UpdatePaymentMethod(ctx, UpdatePaymentMethodCommand{
		Actor:    Actor{Email: "comprador@correo.cl", Role: "user"},
		PedidoID: "ped_1",
		Method:   "efectivo",
	}); !errors.Is(err, ErrPedidoInvalidTransition) {
		t.Fatalf("expected invalid transition while PENDIENTE, got %v", err)
	}
}

func TestPedidoServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

	stored := domain.Pedido{
		ID:            "ped_1",
		BuyerEmail:    "comprador@correo.cl",
		BuyerName:     "María Soto",
		ProviderEmail: "proveedor@tienda.cl",
		TotalCLP:      45990,
		Status:        domain.PedidoStatusPendiente,
	}
	repo := &stubPedidoRepo{
		findFn: func(context.Context, string) (domain.Pedido, error) {
			return stored, nil
		},
	}
	repo.applyFn = func(_ context.Context, _ string, update repositories.PedidoUpdate) error {
		if update.Status != nil {
			stored.Status = *update.Status
		}
		if update.DispatchedAt != nil {
			stored.DispatchedAt = update.DispatchedAt
		}
		if update.DeliveredAt != nil {
			stored.DeliveredAt = update.DeliveredAt
		}
		return nil
	}
	audits := &stubAuditRepo{}
	notifications := &stubNotificationRepo{}
	events := &capturePedidoEvents{}

	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos:       repo,
		Audits:        audits,
		Notifications: notifications,
		Events:        events,
		Clock:         func() time.Time { return now },
	})

	buyer := Actor{Email: "comprador@correo.cl", Role: "user"}
	provider := Actor{Email: "proveedor@tienda.cl", Role: "proveedor"}

	steps := []struct {
		actor  Actor
		target domain.PedidoStatus
	}{
		{provider, domain.PedidoStatusConfirmado},
		{buyer, domain.PedidoStatusPagado},
		{provider, domain.PedidoStatusListoDespacho},
		{provider, domain.PedidoStatusEnCamino},
		{buyer, domain.PedidoStatusEntregado},
	}
	for _, step := range steps {
		pedido, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
			Actor:    step.actor,
			PedidoID: "ped_1",
			Target:   step.target,
		})
		if err != nil {
			t.Fatalf("transition to %s: %v", step.target, err)
		}
		if pedido.Status != step.target {
			t.Fatalf("expected %s got %s", step.target, pedido.Status)
		}
	}

	if stored.DispatchedAt == nil || !stored.DispatchedAt.Equal(now) {
		t.Fatalf("EN_CAMINO should stamp the dispatch time")
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(now) {
		t.Fatalf("ENTREGADO should stamp the delivery time")
	}
	if len(audits.entries) != len(steps) {
		t.Fatalf("expected %d audit entries got %d", len(steps), len(audits.entries))
	}
	for _, entry := range audits.entries {
		if entry.Reason != nil {
			t.Fatalf("non-cancel transitions must not carry an audit reason")
		}
	}

	if len(notifications.inserted) != 3 {
		t.Fatalf("expected 3 notifications got %d", len(notifications.inserted))
	}
	listo := notifications.inserted[0]
	if listo.Type != domain.NotificationPedidoListo || listo.ReceiverEmail != "comprador@correo.cl" {
		t.Fatalf("unexpected LISTO_DESPACHO notification %+v", listo)
	}
	if listo.SenderName != "Proveedor" || listo.SenderEmail != "proveedor@tienda.cl" {
		t.Fatalf("LISTO notification sender mismatch %+v", listo)
	}
	enCamino := notifications.inserted[1]
	if enCamino.Type != domain.NotificationPedidoEnCamino || !strings.Contains(enCamino.Content, "en camino") {
		t.Fatalf("unexpected EN_CAMINO notification %+v", enCamino)
	}
	entregado := notifications.inserted[2]
	if entregado.Type != domain.NotificationPedidoEntregado || entregado.ReceiverEmail != "proveedor@tienda.cl" {
		t.Fatalf("ENTREGADO should notify the provider %+v", entregado)
	}
	if entregado.Content != "✅ María Soto confirmó la recepción. Total: $45990" {
		t.Fatalf("unexpected ENTREGADO content %q", entregado.Content)
	}

	if len(events.events) != len(steps) {
		t.Fatalf("expected %d events got %d", len(steps), len(events.events))
	}
}

func TestPedidoServiceInvalidTransition(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	// The buyer cannot confirm their own pedido.
	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "comprador@correo.cl", Role: "user"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusConfirmado,
	}); !errors.Is(err, ErrPedidoInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	// Strangers never reach the transition check.
	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "otro@correo.cl", Role: "user"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusConfirmado,
	}); !errors.Is(err, ErrPedidoForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// Admins bypass the lifecycle table.
	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "soporte@tienda.cl", Role: "admin"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusEntregado,
	}); err != nil {
		t.Fatalf("admin transition: %v", err)
	}
}

func TestPedidoServiceCancel(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC)
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	var applied repositories.PedidoUpdate
	repo.applyFn = func(_ context.Context, _ string, update repositories.PedidoUpdate) error {
		applied = update
		return nil
	}
	audits := &stubAuditRepo{}

	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos: repo,
		Audits:  audits,
		Clock:   func() time.Time { return now },
	})

	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "comprador@correo.cl", Role: "user"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusCancelado,
	}); !errors.Is(err, ErrPedidoCancelReasonRequired) {
		t.Fatalf("expected cancel reason required, got %v", err)
	}

	pedido, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:        Actor{Email: "comprador@correo.cl", Role: "user"},
		PedidoID:     "ped_1",
		Target:       domain.PedidoStatusCancelado,
		CancelReason: "  Cambié de opinión  ",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if pedido.CancelReason == nil || *pedido.CancelReason != "Cambié de opinión" {
		t.Fatalf("cancel reason not trimmed and stored: %+v", pedido.CancelReason)
	}
	if pedido.CanceledBy == nil || *pedido.CanceledBy != "comprador@correo.cl" {
		t.Fatalf("canceledBy should record the actor")
	}
	if applied.CancelReason == nil || applied.CanceledBy == nil {
		t.Fatalf("repository update missing cancellation fields")
	}
	if len(audits.entries) != 1 {
		t.Fatalf("expected 1 audit entry got %d", len(audits.entries))
	}
	if audits.entries[0].Reason == nil || *audits.entries[0].Reason != "Cambié de opinión" {
		t.Fatalf("cancel audit entry should carry the reason")
	}
}

func TestPedidoServiceAuditFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	audits := &stubAuditRepo{
		appendFn: func(context.Context, domain.AuditEntry) error {
			return errors.New("firestore write failed")
		},
	}
	var logged []string
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos: repo,
		Audits:  audits,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "proveedor@tienda.cl", Role: "proveedor"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusConfirmado,
	}); err != nil {
		t.Fatalf("transition should survive an audit outage: %v", err)
	}

	found := false
	for _, event := range logged {
		if event == "pedido.audit.append.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit failure to be logged, got %v", logged)
	}
}

func TestPedidoServiceNotificationFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	var applied *repositories.PedidoUpdate
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPagado,
			}, nil
		},
		applyFn: func(_ context.Context, _ string, update repositories.PedidoUpdate) error {
			applied = &update
			return nil
		},
	}
	notifications := &stubNotificationRepo{
		insertFn: func(context.Context, domain.Notification) error {
			return errors.New("firestore write failed")
		},
	}
	var logged []string
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos:       repo,
		Notifications: notifications,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	pedido, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "proveedor@tienda.cl", Role: "proveedor"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusListoDespacho,
	})
	if err != nil {
		t.Fatalf("transition should survive a notification outage: %v", err)
	}
	if pedido.Status != domain.PedidoStatusListoDespacho {
		t.Fatalf("expected LISTO_DESPACHO got %s", pedido.Status)
	}
	if applied == nil || applied.Status == nil || *applied.Status != domain.PedidoStatusListoDespacho {
		t.Fatalf("status change should have been persisted before notifying")
	}

	found := false
	for _, event := range logged {
		if event == "pedido.notification.insert.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected notification failure to be logged, got %v", logged)
	}
}

func TestPedidoServiceAuditActorHash(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	audits := &stubAuditRepo{}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{
		Pedidos:       repo,
		Audits:        audits,
		AuditHashSalt: "sal-de-prueba",
	})

	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "proveedor@tienda.cl", Role: "proveedor"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusConfirmado,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if len(audits.entries) != 1 {
		t.Fatalf("expected 1 audit entry got %d", len(audits.entries))
	}
	sum := sha256.Sum256([]byte("sal-de-prueba" + "proveedor@tienda.cl"))
	if want := hex.EncodeToString(sum[:]); audits.entries[0].ActorHash != want {
		t.Fatalf("expected actor hash %s got %s", want, audits.entries[0].ActorHash)
	}
}

func TestPedidoServiceAuditActorHashEmptyWithoutSalt(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
				Status:        domain.PedidoStatusPendiente,
			}, nil
		},
	}
	audits := &stubAuditRepo{}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo, Audits: audits})

	if _, err := svc.UpdateStatus(ctx, UpdateStatusCommand{
		Actor:    Actor{Email: "proveedor@tienda.cl", Role: "proveedor"},
		PedidoID: "ped_1",
		Target:   domain.PedidoStatusConfirmado,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if len(audits.entries) != 1 || audits.entries[0].ActorHash != "" {
		t.Fatalf("actor hash should stay empty without a configured salt")
	}
}

func TestPedidoServiceListForBuyer(t *testing.T) {
	ctx := context.Background()
	var gotEmail string
	var gotFilter repositories.PedidoListFilter
	repo := &stubPedidoRepo{
		listBuyerFn: func(_ context.Context, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
			gotEmail = email
			gotFilter = filter
			return []domain.Pedido{{ID: "ped_1"}}, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	status := domain.PedidoStatusPendiente
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	pedidos, err := svc.ListForBuyer(ctx, Actor{Email: " Comprador@Correo.CL ", Role: "user"}, PedidoListQuery{
		Status:     &status,
		PlacedFrom: &from,
		Pagination: Pagination{Page: 2, PageSize: 10},
	})
	if err != nil {
		t.Fatalf("list for buyer: %v", err)
	}
	if len(pedidos) != 1 {
		t.Fatalf("expected 1 pedido got %d", len(pedidos))
	}
	if gotEmail != "comprador@correo.cl" {
		t.Fatalf("buyer email not normalised: %s", gotEmail)
	}
	if gotFilter.Status == nil || *gotFilter.Status != domain.PedidoStatusPendiente {
		t.Fatalf("status filter not forwarded")
	}
	if gotFilter.Placed.From == nil || !gotFilter.Placed.From.Equal(from) {
		t.Fatalf("date range not forwarded")
	}
	if gotFilter.Pagination.Page != 2 || gotFilter.Pagination.PageSize != 10 {
		t.Fatalf("pagination not forwarded: %+v", gotFilter.Pagination)
	}
}

func TestPedidoServiceCounts(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		countProviderFn: func(_ context.Context, email string, status domain.PedidoStatus) (int64, error) {
			if email != "proveedor@tienda.cl" {
				t.Fatalf("unexpected provider email %s", email)
			}
			if status != domain.PedidoStatusPendiente {
				t.Fatalf("unexpected status %s", status)
			}
			return 4, nil
		},
		countBuyerFn: func(_ context.Context, email string) (int64, error) {
			if email != "comprador@correo.cl" {
				t.Fatalf("unexpected buyer email %s", email)
			}
			return 2, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo})

	pending, err := svc.CountPendingForProvider(ctx, Actor{Email: "proveedor@tienda.cl", Role: "proveedor"})
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 4 {
		t.Fatalf("expected 4 got %d", pending)
	}

	active, err := svc.CountActiveForBuyer(ctx, Actor{Email: "comprador@correo.cl", Role: "user"})
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 2 {
		t.Fatalf("expected 2 got %d", active)
	}
}

func TestPedidoServiceListAuditTrail(t *testing.T) {
	ctx := context.Background()
	repo := &stubPedidoRepo{
		findFn: func(_ context.Context, id string) (domain.Pedido, error) {
			return domain.Pedido{
				ID:            id,
				BuyerEmail:    "comprador@correo.cl",
				ProviderEmail: "proveedor@tienda.cl",
			}, nil
		},
	}
	audits := &stubAuditRepo{
		listFn: func(_ context.Context, pedidoID string, pager domain.Pagination) ([]domain.AuditEntry, error) {
			return []domain.AuditEntry{{PedidoID: pedidoID, ToStatus: domain.PedidoStatusConfirmado}}, nil
		},
	}
	svc := newPedidoServiceForTest(t, PedidoServiceDeps{Pedidos: repo, Audits: audits})

	entries, err := svc.ListAuditTrail(ctx, Actor{Email: "proveedor@tienda.cl", Role: "proveedor"}, "ped_1", Pagination{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list audit trail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry got %d", len(entries))
	}

	if _, err := svc.ListAuditTrail(ctx, Actor{Email: "otro@correo.cl", Role: "user"}, "ped_1", Pagination{}); !errors.Is(err, ErrPedidoForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
