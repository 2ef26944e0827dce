package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
	"github.com/stredes/bakend-red-pirvada/internal/platform/auth"
	"github.com/stredes/bakend-red-pirvada/internal/platform/httpx"
	"github.com/stredes/bakend-red-pirvada/internal/platform/pagination"
	"github.com/stredes/bakend-red-pirvada/internal/platform/textutil"
	"github.com/stredes/bakend-red-pirvada/internal/services"
)

const maxPedidoBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// PedidoHandlers exposes the pedido endpoints for authenticated buyers and providers.
type PedidoHandlers struct {
	authn      *auth.Authenticator
	pedidos    services.PedidoService
	writeLimit func(http.Handler) http.Handler
	pageLimits pagination.Options
}

// PedidoOption customises the pedido handlers.
type PedidoOption func(*PedidoHandlers)

// WithPedidoWriteRateLimit throttles mutating pedido endpoints per caller.
func WithPedidoWriteRateLimit(limit int, window time.Duration) PedidoOption {
	return func(h *PedidoHandlers) {
		h.writeLimit = RateLimit(limit, window)
	}
}

// WithPedidoPageLimits overrides the default and maximum page sizes used by
// listing endpoints.
func WithPedidoPageLimits(opts pagination.Options) PedidoOption {
	return func(h *PedidoHandlers) {
		h.pageLimits = opts
	}
}

// NewPedidoHandlers constructs a new PedidoHandlers instance.
func NewPedidoHandlers(authn *auth.Authenticator, pedidos services.PedidoService, opts ...PedidoOption) *PedidoHandlers {
	h := &PedidoHandlers{
		authn:   authn,
		pedidos: pedidos,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /pedidos endpoints.
func (h *PedidoHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/mis", h.listMisPedidos)
	r.Get("/proveedor", h.listPedidosProveedor)
	r.Get("/proveedor/pendientes", h.listPedidosProveedorByStatus(domain.PedidoStatusPendiente))
	r.Get("/proveedor/listos-despacho", h.listPedidosProveedorByStatus(domain.PedidoStatusListoDespacho))
	r.Get("/counts/pendientes", h.countPendientes)
	r.Get("/counts/notificaciones", h.countNotificaciones)
	r.Get("/{pedidoID}", h.getPedido)
	r.Get("/{pedidoID}/auditoria", h.listAuditoria)

	r.Group(func(w chi.Router) {
		if h.writeLimit != nil {
			w.Use(h.writeLimit)
		}
		w.Post("/", h.createPedido)
		w.Patch("/{pedidoID}/metodo-pago", h.updateMetodoPago)
		w.Patch("/{pedidoID}/estado", h.updateEstado)
		w.Post("/{pedidoID}/confirmar", h.updateEstadoTo(domain.PedidoStatusConfirmado))
		w.Post("/{pedidoID}/pagado", h.updateEstadoTo(domain.PedidoStatusPagado))
		w.Post("/{pedidoID}/listo-despacho", h.updateEstadoTo(domain.PedidoStatusListoDespacho))
		w.Post("/{pedidoID}/en-camino", h.updateEstadoTo(domain.PedidoStatusEnCamino))
		w.Post("/{pedidoID}/entregado", h.updateEstadoTo(domain.PedidoStatusEntregado))
		w.Post("/{pedidoID}/cancelar", h.updateEstadoTo(domain.PedidoStatusCancelado))
	})
}

type createPedidoRequest struct {
	PedidoID           string `json:"pedidoId"`
	CompradorNombre    string `json:"compradorNombre"`
	ProveedorEmail     string `json:"proveedorEmail"`
	DetalleJSON        string `json:"detalleJson"`
	TotalCLP           *int64 `json:"totalCLP"`
	MetodoPago         string `json:"metodoPago"`
	DatosTransferencia string `json:"datosTransferencia"`
	DireccionEntrega   string `json:"direccionEntrega"`
}

type updateMetodoPagoRequest struct {
	MetodoPago         string `json:"metodoPago"`
	Metodo             string `json:"metodo"`
	DatosTransferencia string `json:"datosTransferencia"`
}

type updateEstadoRequest struct {
	Estado            string `json:"estado"`
	MotivoCancelacion string `json:"motivoCancelacion"`
	Motivo            string `json:"motivo"`
}

func (h *PedidoHandlers) createPedido(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req createPedidoRequest
	if !decodeJSONBody(ctx, w, r, &req, true) {
		return
	}

	pedido, err := h.pedidos.Create(ctx, services.CreatePedidoCommand{
		Actor:           actor,
		PedidoID:        req.PedidoID,
		BuyerName:       req.CompradorNombre,
		ProviderEmail:   req.ProveedorEmail,
		DetailJSON:      req.DetalleJSON,
		TotalCLP:        req.TotalCLP,
		PaymentMethod:   req.MetodoPago,
		TransferDetails: req.DatosTransferencia,
		DeliveryAddress: req.DireccionEntrega,
	})
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, pedidoResponse{Pedido: buildPedidoPayload(pedido)})
}

func (h *PedidoHandlers) getPedido(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
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

func (h *PedidoHandlers) listMisPedidos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	query, ok := parsePedidoListQuery(ctx, w, r, h.pageLimits)
	if !ok {
		return
	}

	pedidos, err := h.pedidos.ListForBuyer(ctx, actor, query)
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, pedidoListResponse{Pedidos: buildPedidoPayloads(pedidos)})
}

func (h *PedidoHandlers) listPedidosProveedor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	query, ok := parsePedidoListQuery(ctx, w, r, h.pageLimits)
	if !ok {
		return
	}

	pedidos, err := h.pedidos.ListForProvider(ctx, actor, query)
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, pedidoListResponse{Pedidos: buildPedidoPayloads(pedidos)})
}

func (h *PedidoHandlers) listPedidosProveedorByStatus(status domain.PedidoStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.requireActor(ctx, w)
		if !ok {
			return
		}
		query, ok := parsePedidoListQuery(ctx, w, r, h.pageLimits)
		if !ok {
			return
		}
		query.Status = &status

		pedidos, err := h.pedidos.ListForProvider(ctx, actor, query)
		if err != nil {
			writePedidoError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, pedidoListResponse{Pedidos: buildPedidoPayloads(pedidos)})
	}
}

func (h *PedidoHandlers) countPendientes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	count, err := h.pedidos.CountPendingForProvider(ctx, actor)
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, countResponse{Count: count})
}

func (h *PedidoHandlers) countNotificaciones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	count, err := h.pedidos.CountActiveForBuyer(ctx, actor)
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, countResponse{Count: count})
}

func (h *PedidoHandlers) listAuditoria(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	pedidoID, ok := pedidoIDParam(ctx, w, r)
	if !ok {
		return
	}
	pager, err := pagination.Parse(r.URL.Query(), h.pageLimits)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	entries, err := h.pedidos.ListAuditTrail(ctx, actor, pedidoID, services.Pagination{Page: pager.Page, PageSize: pager.PageSize})
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	payload := make([]auditEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, buildAuditEntryPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, auditListResponse{Auditoria: payload})
}

func (h *PedidoHandlers) updateMetodoPago(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	pedidoID, ok := pedidoIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req updateMetodoPagoRequest
	if !decodeJSONBody(ctx, w, r, &req, true) {
		return
	}

	method := strings.TrimSpace(req.MetodoPago)
	if method == "" {
		method = strings.TrimSpace(req.Metodo)
	}

	pedido, err := h.pedidos.UpdatePaymentMethod(ctx, services.UpdatePaymentMethodCommand{
		Actor:           actor,
		PedidoID:        pedidoID,
		Method:          method,
		TransferDetails: req.DatosTransferencia,
	})
	if err != nil {
		writePedidoError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, pedidoResponse{Pedido: buildPedidoPayload(pedido)})
}

func (h *PedidoHandlers) updateEstado(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
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

	h.applyEstado(ctx, w, actor, pedidoID, target, req)
}

func (h *PedidoHandlers) updateEstadoTo(target domain.PedidoStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.requireActor(ctx, w)
		if !ok {
			return
		}
		pedidoID, ok := pedidoIDParam(ctx, w, r)
		if !ok {
			return
		}

		var req updateEstadoRequest
		if !decodeJSONBody(ctx, w, r, &req, false) {
			return
		}

		h.applyEstado(ctx, w, actor, pedidoID, target, req)
	}
}

func (h *PedidoHandlers) applyEstado(ctx context.Context, w http.ResponseWriter, actor services.Actor, pedidoID string, target domain.PedidoStatus, req updateEstadoRequest) {
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

func (h *PedidoHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	if h.pedidos == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pedido_service_unavailable", "pedido service unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return actor, true
}

type pedidoListResponse struct {
	Pedidos []pedidoPayload `json:"pedidos"`
}

type pedidoResponse struct {
	Pedido pedidoPayload `json:"pedido"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type auditListResponse struct {
	Auditoria []auditEntryPayload `json:"auditoria"`
}

type pedidoPayload struct {
	PedidoID            string  `json:"pedidoId"`
	CompradorEmail      string  `json:"compradorEmail"`
	CompradorNombre     string  `json:"compradorNombre"`
	ProveedorEmail      string  `json:"proveedorEmail"`
	DetalleJSON         string  `json:"detalleJson"`
	TotalCLP            int64   `json:"totalCLP"`
	Estado              string  `json:"estado"`
	MetodoPago          *string `json:"metodoPago"`
	DatosTransferencia  *string `json:"datosTransferencia"`
	DireccionEntrega    *string `json:"direccionEntrega"`
	FechaPedido         string  `json:"fechaPedido"`
	UltimaActualizacion string  `json:"ultimaActualizacion"`
	FechaDespacho       string  `json:"fechaDespacho,omitempty"`
	FechaEntrega        string  `json:"fechaEntrega,omitempty"`
	MotivoCancelacion   *string `json:"motivoCancelacion,omitempty"`
	CanceladoPor        *string `json:"canceladoPor,omitempty"`
}

type auditEntryPayload struct {
	ID             string  `json:"id,omitempty"`
	PedidoID       string  `json:"pedidoId"`
	ActorEmail     string  `json:"actorEmail"`
	EstadoAnterior string  `json:"from"`
	EstadoNuevo    string  `json:"to"`
	Motivo         *string `json:"reason"`
	Fecha          string  `json:"createdAt"`
}

func buildPedidoPayloads(pedidos []services.Pedido) []pedidoPayload {
	payloads := make([]pedidoPayload, 0, len(pedidos))
	for _, pedido := range pedidos {
		payloads = append(payloads, buildPedidoPayload(pedido))
	}
	return payloads
}

func buildPedidoPayload(pedido services.Pedido) pedidoPayload {
	return pedidoPayload{
		PedidoID:            pedido.ID,
		CompradorEmail:      pedido.BuyerEmail,
		CompradorNombre:     pedido.BuyerName,
		ProveedorEmail:      pedido.ProviderEmail,
		DetalleJSON:         pedido.DetailJSON,
		TotalCLP:            pedido.TotalCLP,
		Estado:              string(pedido.Status),
		MetodoPago:          cloneStringPointer(pedido.PaymentMethod),
		DatosTransferencia:  cloneStringPointer(pedido.TransferDetails),
		DireccionEntrega:    cloneStringPointer(pedido.DeliveryAddress),
		FechaPedido:         formatTime(pedido.PlacedAt),
		UltimaActualizacion: formatTime(pedido.UpdatedAt),
		FechaDespacho:       formatTime(pointerTime(pedido.DispatchedAt)),
		FechaEntrega:        formatTime(pointerTime(pedido.DeliveredAt)),
		MotivoCancelacion:   cloneStringPointer(pedido.CancelReason),
		CanceladoPor:        cloneStringPointer(pedido.CanceledBy),
	}
}

func buildAuditEntryPayload(entry services.AuditEntry) auditEntryPayload {
	return auditEntryPayload{
		ID:             entry.ID,
		PedidoID:       entry.PedidoID,
		ActorEmail:     entry.ActorEmail,
		EstadoAnterior: string(entry.FromStatus),
		EstadoNuevo:    string(entry.ToStatus),
		Motivo:         cloneStringPointer(entry.Reason),
		Fecha:          formatTime(entry.CreatedAt),
	}
}

func parsePedidoListQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, limits pagination.Options) (services.PedidoListQuery, bool) {
	values := r.URL.Query()

	pager, err := pagination.Parse(values, limits)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.PedidoListQuery{}, false
	}

	from, to, err := pagination.ParseDateRange(values)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.PedidoListQuery{}, false
	}

	query := services.PedidoListQuery{
		PlacedFrom: from,
		PlacedTo:   to,
		Pagination: services.Pagination{Page: pager.Page, PageSize: pager.PageSize},
	}

	if raw := strings.TrimSpace(values.Get("estado")); raw != "" {
		status := domain.PedidoStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "estado must be a valid pedido status", http.StatusBadRequest))
			return services.PedidoListQuery{}, false
		}
		query.Status = &status
	}

	return query, true
}

func pedidoIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	pedidoID := strings.TrimSpace(chi.URLParam(r, "pedidoID"))
	if pedidoID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pedido id is required", http.StatusBadRequest))
		return "", false
	}
	return pedidoID, true
}

// decodeJSONBody reads and unmarshals the request body. When required is
// false an empty body decodes to the zero value of dst.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	body, err := readLimitedBody(r, maxPedidoBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			if !required {
				return true
			}
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return services.Actor{}, false
	}
	email := textutil.NormalizeEmail(identity.Email)
	if email == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		Email: email,
		Name:  strings.TrimSpace(identity.Name),
		Role:  identity.PrimaryRole(),
	}, true
}

func writePedidoError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPedidoInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPedidoNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pedido_not_found", "pedido not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPedidoForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("pedido_forbidden", "not a party to this pedido", http.StatusForbidden))
	case errors.Is(err, services.ErrPedidoCancelReasonRequired):
		httpx.WriteError(ctx, w, httpx.NewError("pedido_cancel_reason_required", "cancel reason required", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPedidoInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("pedido_invalid_transition", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPedidoConflict):
		httpx.WriteError(ctx, w, httpx.NewError("pedido_conflict", "pedido already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pedido_error", "failed to process pedido request", http.StatusInternalServerError))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
