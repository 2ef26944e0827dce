package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/platform/auth"
	"github.com/stredes/bakend-red-pirvada/internal/platform/httpx"
	"github.com/stredes/bakend-red-pirvada/internal/services"
)

// InternalHandlers exposes the service-to-service support endpoints. Callers
// are authenticated via OIDC middleware mounted on the /internal group and
// act with elevated privileges.
type InternalHandlers struct {
	pedidos services.PedidoService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(pedidos services.PedidoService) *InternalHandlers {
	return &InternalHandlers{pedidos: pedidos}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pedidos/{pedidoID}", h.getPedido)
	r.Patch("/pedidos/{pedidoID}/estado", h.forceEstado)
}

func (h *InternalHandlers) getPedido(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.serviceActor(w, r)
	if !ok {
		return
	}
	pedidoID, ok := pedidoIDParam(ctx, w, r)
	if !ok {
		return
	}

	pedido, err := h.pedidos.Get(ctx, actor, pedidoID)
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, pedidoResponse{Pedido: buildPedidoPayload(pedido)})
}

// forceEstado applies any valid status change on behalf of support tooling.
// The service principal carries the root role, so the lifecycle table is
// bypassed; the transition is still audited under the service account email.
func (h *InternalHandlers) forceEstado(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.serviceActor(w, r)
	if !ok {
		return
	}
	pedidoID, ok := pedidoIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req updateEstadoRequest
	if !decodeJSONBody(ctx, w, r, &req, true) {
		return
	}

	target := domain.PedidoStatus(strings.ToUpper(strings.TrimSpace(req.Estado)))
	if !target.IsValid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "estado must be a valid pedido status", http.StatusBadRequest))
		return
	}

	reason := strings.TrimSpace(req.MotivoCancelacion)
	if reason == "" {
		reason = strings.TrimSpace(req.Motivo)
	}

	pedido, err := h.pedidos.UpdateStatus(ctx, services.UpdateStatusCommand{
		Actor:        actor,
		PedidoID:     pedidoID,
		Target:       target,
		CancelReason: reason,
	})
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, pedidoResponse{Pedido: buildPedidoPayload(pedido)})
}

func (h *InternalHandlers) serviceActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	ctx := r.Context()
	if h.pedidos == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pedido_service_unavailable", "pedido service unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	identity, ok := auth.ServiceIdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		email = strings.TrimSpace(identity.Subject)
	}
	return services.Actor{
		Email: email,
		Role:  auth.RoleRoot,
	}, true
}
