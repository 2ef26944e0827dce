package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stredes/bakend-red-pirvada/internal/platform/auth"
	"github.com/stredes/bakend-red-pirvada/internal/platform/httpx"
	"github.com/stredes/bakend-red-pirvada/internal/platform/pagination"
	"github.com/stredes/bakend-red-pirvada/internal/services"
)

// NotificationHandlers exposes the in-app inbox raised by pedido events.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
	pageLimits    pagination.Options
}

// NotificationOption customises the notification handlers.
type NotificationOption func(*NotificationHandlers)

// WithNotificationPageLimits overrides the default and maximum page sizes
// used by the inbox listing.
func WithNotificationPageLimits(opts pagination.Options) NotificationOption {
	return func(h *NotificationHandlers) {
		h.pageLimits = opts
	}
}

// NewNotificationHandlers constructs a new NotificationHandlers instance.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService, opts ...NotificationOption) *NotificationHandlers {
	h := &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /messages endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/inbox", h.listInbox)
	r.Get("/counts/no-leidos", h.countUnread)
	r.Patch("/{mensajeID}/leido", h.markRead)
}

func (h *NotificationHandlers) listInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	values := r.URL.Query()
	pager, err := pagination.Parse(values, h.pageLimits)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.NotificationListQuery{
		UnreadOnly: parseBoolParam(values.Get("noLeidos")),
		PedidoID:   strings.TrimSpace(values.Get("pedidoId")),
		Pagination: services.Pagination{Page: pager.Page, PageSize: pager.PageSize},
	}

	notifications, err := h.notifications.ListForReceiver(ctx, actor, query)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	payload := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		payload = append(payload, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{Mensajes: payload})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "mensajeID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "message id is required", http.StatusBadRequest))
		return
	}

	notification, err := h.notifications.MarkRead(ctx, actor, notificationID)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, notificationResponse{Mensaje: buildNotificationPayload(notification)})
}

func (h *NotificationHandlers) countUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	count, err := h.notifications.CountUnread(ctx, actor)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, countResponse{Count: count})
}

type notificationListResponse struct {
	Mensajes []notificationPayload `json:"mensajes"`
}

type notificationResponse struct {
	Mensaje notificationPayload `json:"mensaje"`
}

type notificationPayload struct {
	ID            string `json:"id"`
	SenderEmail   string `json:"senderEmail"`
	SenderName    string `json:"senderName"`
	ReceiverEmail string `json:"receiverEmail"`
	Content       string `json:"content"`
	Type          string `json:"type"`
	PedidoID      string `json:"pedidoId,omitempty"`
	Read          bool   `json:"read"`
	Timestamp     string `json:"timestamp"`
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	return notificationPayload{
		ID:            notification.ID,
		SenderEmail:   notification.SenderEmail,
		SenderName:    notification.SenderName,
		ReceiverEmail: notification.ReceiverEmail,
		Content:       notification.Content,
		Type:          string(notification.Type),
		PedidoID:      notification.PedidoID,
		Read:          notification.Read,
		Timestamp:     formatTime(notification.Timestamp),
	}
}

func parseBoolParam(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("message_not_found", "message not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("message_forbidden", "not the receiver of this message", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("message_error", "failed to process message request", http.StatusInternalServerError))
	}
}
