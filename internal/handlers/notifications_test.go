package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/platform/pagination"
	"github.com/stredes/bakend-red-pirvada/internal/services"
)

type stubNotificationService struct {
	listFn  func(context.Context, services.Actor, services.NotificationListQuery) ([]services.Notification, error)
	markFn  func(context.Context, services.Actor, string) (services.Notification, error)
	countFn func(context.Context, services.Actor) (int64, error)
}

func (s *stubNotificationService) ListForReceiver(ctx context.Context, actor services.Actor, query services.NotificationListQuery) ([]services.Notification, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, query)
	}
	return nil, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, actor services.Actor, notificationID string) (services.Notification, error) {
	if s.markFn != nil {
		return s.markFn(ctx, actor, notificationID)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) CountUnread(ctx context.Context, actor services.Actor) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx, actor)
	}
	return 0, nil
}

var _ services.NotificationService = (*stubNotificationService)(nil)

func newNotificationRouter(service services.NotificationService, opts ...NotificationOption) chi.Router {
	handler := NewNotificationHandlers(nil, service, opts...)
	router := chi.NewRouter()
	router.Route("/messages", handler.Routes)
	return router
}

func TestNotificationHandlersListInbox(t *testing.T) {
	var captured services.NotificationListQuery
	service := &stubNotificationService{
		listFn: func(_ context.Context, actor services.Actor, query services.NotificationListQuery) ([]services.Notification, error) {
			captured = query
			return []services.Notification{
				{
					ID:            "msg_1",
					SenderEmail:   "proveedor@tienda.cl",
					SenderName:    "Proveedor",
					ReceiverEmail: actor.Email,
					Content:       "📦 Tu pedido está listo y será enviado pronto.",
					Type:          domain.NotificationPedidoListo,
					PedidoID:      "ped_1",
					Timestamp:     time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}
	router := newNotificationRouter(service)

	req := buyerRequest(http.MethodGet, "/messages/inbox?noLeidos=true&pedidoId=ped_1&page=1&pageSize=5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.UnreadOnly {
		t.Fatalf("noLeidos filter not forwarded")
	}
	if captured.PedidoID != "ped_1" {
		t.Fatalf("pedidoId filter not forwarded: %q", captured.PedidoID)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("pagination not forwarded: %+v", captured.Pagination)
	}

	var resp notificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Mensajes) != 1 {
		t.Fatalf("expected 1 mensaje, got %d", len(resp.Mensajes))
	}
	if resp.Mensajes[0].Content != "📦 Tu pedido está listo y será enviado pronto." {
		t.Fatalf("unexpected content %q", resp.Mensajes[0].Content)
	}
}

func TestNotificationHandlersListInboxPageLimits(t *testing.T) {
	var captured services.NotificationListQuery
	service := &stubNotificationService{
		listFn: func(_ context.Context, _ services.Actor, query services.NotificationListQuery) ([]services.Notification, error) {
			captured = query
			return nil, nil
		},
	}
	router := newNotificationRouter(service, WithNotificationPageLimits(pagination.Options{
		DefaultPageSize: 30,
		MaxPageSize:     40,
	}))

	req := buyerRequest(http.MethodGet, "/messages/inbox?pageSize=200", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Pagination.PageSize != 40 {
		t.Fatalf("expected page size capped at 40, got %d", captured.Pagination.PageSize)
	}

	req = buyerRequest(http.MethodGet, "/messages/inbox", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Pagination.PageSize != 30 {
		t.Fatalf("expected configured default page size 30, got %d", captured.Pagination.PageSize)
	}
}

func TestNotificationHandlersListInboxUnauthenticated(t *testing.T) {
	router := newNotificationRouter(&stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/messages/inbox", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestNotificationHandlersMarkRead(t *testing.T) {
	var capturedID string
	service := &stubNotificationService{
		markFn: func(_ context.Context, actor services.Actor, notificationID string) (services.Notification, error) {
			capturedID = notificationID
			return services.Notification{
				ID:            notificationID,
				ReceiverEmail: actor.Email,
				Read:          true,
				Timestamp:     time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newNotificationRouter(service)

	req := buyerRequest(http.MethodPatch, "/messages/msg_1/leido", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedID != "msg_1" {
		t.Fatalf("message id not forwarded: %q", capturedID)
	}

	var resp notificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Mensaje.Read {
		t.Fatalf("expected read message in response")
	}
}

func TestNotificationHandlersMarkReadErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", services.ErrNotificationNotFound, http.StatusNotFound},
		{"forbidden", services.ErrNotificationForbidden, http.StatusForbidden},
		{"infra", errors.New("firestore down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubNotificationService{
				markFn: func(context.Context, services.Actor, string) (services.Notification, error) {
					return services.Notification{}, tc.err
				},
			}
			router := newNotificationRouter(service)

			req := buyerRequest(http.MethodPatch, "/messages/msg_1/leido", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.expected {
				t.Fatalf("expected status %d, got %d", tc.expected, rr.Code)
			}
		})
	}
}

func TestNotificationHandlersCountUnread(t *testing.T) {
	service := &stubNotificationService{
		countFn: func(context.Context, services.Actor) (int64, error) { return 3, nil },
	}
	router := newNotificationRouter(service)

	req := buyerRequest(http.MethodGet, "/messages/counts/no-leidos", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp countResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("expected count 3, got %d", resp.Count)
	}
}
