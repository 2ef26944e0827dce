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

const pedidosCollection = "pedidos"

// Field names below are shared with the storefront clients, so they stay in
// the Spanish form the collection was created with.
const (
	fieldCompradorEmail      = "compradorEmail"
	fieldProveedorEmail      = "proveedorEmail"
	fieldEstado              = "estado"
	fieldFechaPedido         = "fechaPedido"
	fieldUltimaActualizacion = "ultimaActualizacion"
	fieldMetodoPago          = "metodoPago"
	fieldDatosTransferencia  = "datosTransferencia"
	fieldFechaDespacho       = "fechaDespacho"
	fieldFechaEntrega        = "fechaEntrega"
	fieldMotivoCancelacion   = "motivoCancelacion"
	fieldCanceladoPor        = "canceladoPor"
)

// PedidoRepository persists pedidos in Firestore.
type PedidoRepository struct {
	base *pfirestore.BaseRepository[pedidoDocument]
}

// NewPedidoRepository constructs a Firestore-backed pedido repository.
func NewPedidoRepository(provider *pfirestore.Provider) (*PedidoRepository, error) {
	if provider == nil {
		return nil, errors.New("pedido repository requires firestore provider")
	}
	return &PedidoRepository{
		base: pfirestore.NewBaseRepository[pedidoDocument](provider, pedidosCollection, nil, nil),
	}, nil
}

// Create stores a new pedido document. A conflict error is returned when the
// document id is already taken; existing pedidos are never overwritten.
func (r *PedidoRepository) Create(ctx context.Context, pedido domain.Pedido) error {
	doc := newPedidoDocument(pedido)
	if _, err := r.base.Create(ctx, pedido.ID, doc); err != nil {
		return err
	}
	return nil
}

// ApplyUpdate mutates only the fields carried by the update. The caller owns
// ordering and access decisions; this method is a plain targeted write.
func (r *PedidoRepository) ApplyUpdate(ctx context.Context, pedidoID string, update repositories.PedidoUpdate) error {
	updates := []firestore.Update{
		{Path: fieldUltimaActualizacion, Value: update.UpdatedAt.UTC()},
	}
	if update.Status != nil {
		updates = append(updates, firestore.Update{Path: fieldEstado, Value: string(*update.Status)})
	}
	if update.PaymentMethod != nil {
		updates = append(updates, firestore.Update{Path: fieldMetodoPago, Value: *update.PaymentMethod})
	}
	if update.TransferDetails != nil {
		updates = append(updates, firestore.Update{Path: fieldDatosTransferencia, Value: *update.TransferDetails})
	}
	if update.DispatchedAt != nil {
		updates = append(updates, firestore.Update{Path: fieldFechaDespacho, Value: update.DispatchedAt.UTC()})
	}
	if update.DeliveredAt != nil {
		updates = append(updates, firestore.Update{Path: fieldFechaEntrega, Value: update.DeliveredAt.UTC()})
	}
	if update.CancelReason != nil {
		updates = append(updates, firestore.Update{Path: fieldMotivoCancelacion, Value: *update.CancelReason})
	}
	if update.CanceledBy != nil {
		updates = append(updates, firestore.Update{Path: fieldCanceladoPor, Value: *update.CanceledBy})
	}

	if _, err := r.base.Update(ctx, pedidoID, updates); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a pedido by its document id.
func (r *PedidoRepository) FindByID(ctx context.Context, pedidoID string) (domain.Pedido, error) {
	doc, err := r.base.Get(ctx, pedidoID)
	if err != nil {
		return domain.Pedido{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByBuyer returns the buyer's pedidos, newest placements first.
func (r *PedidoRepository) ListByBuyer(ctx context.Context, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
	return r.listByParty(ctx, fieldCompradorEmail, email, filter)
}

// ListByProvider returns the provider's pedidos, newest placements first.
func (r *PedidoRepository) ListByProvider(ctx context.Context, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
	return r.listByParty(ctx, fieldProveedorEmail, email, filter)
}

func (r *PedidoRepository) listByParty(ctx context.Context, partyField, email string, filter repositories.PedidoListFilter) ([]domain.Pedido, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return nil, errors.New("pedido repository: party email is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where(partyField, "==", address)
		if filter.Status != nil {
			query = query.Where(fieldEstado, "==", string(*filter.Status))
		}
		if filter.Placed.From != nil {
			query = query.Where(fieldFechaPedido, ">=", filter.Placed.From.UTC())
		}
		if filter.Placed.To != nil {
			query = query.Where(fieldFechaPedido, "<=", filter.Placed.To.UTC())
		}
		query = query.OrderBy(fieldFechaPedido, firestore.Desc)

		page, size := normalisePager(filter.Pagination)
		return query.Offset((page - 1) * size).Limit(size)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Pedido, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// CountByProviderAndStatus counts the provider's pedidos currently in status.
func (r *PedidoRepository) CountByProviderAndStatus(ctx context.Context, email string, status domain.PedidoStatus) (int64, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return 0, errors.New("pedido repository: provider email is required")
	}
	return r.base.Count(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where(fieldProveedorEmail, "==", address).
			Where(fieldEstado, "==", string(status))
	})
}

// CountActiveByBuyer counts the buyer's pedidos that have not reached a
// terminal state yet. The storefront badge feeds from this number.
func (r *PedidoRepository) CountActiveByBuyer(ctx context.Context, email string) (int64, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return 0, errors.New("pedido repository: buyer email is required")
	}
	terminal := []string{
		string(domain.PedidoStatusEntregado),
		string(domain.PedidoStatusCancelado),
	}
	return r.base.Count(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where(fieldCompradorEmail, "==", address).
			Where(fieldEstado, "not-in", terminal)
	})
}

func normalisePager(pager domain.Pagination) (page, size int) {
	page = pager.Page
	if page < 1 {
		page = 1
	}
	size = pager.PageSize
	if size < 1 {
		size = 20
	}
	return page, size
}

type pedidoDocument struct {
	CompradorEmail      string     `firestore:"compradorEmail"`
	CompradorNombre     string     `firestore:"compradorNombre"`
	ProveedorEmail      string     `firestore:"proveedorEmail"`
	DetalleJSON         string     `firestore:"detalleJson"`
	TotalCLP            int64      `firestore:"totalCLP"`
	Estado              string     `firestore:"estado"`
	FechaPedido         time.Time  `firestore:"fechaPedido"`
	UltimaActualizacion time.Time  `firestore:"ultimaActualizacion"`
	MetodoPago          *string    `firestore:"metodoPago,omitempty"`
	DatosTransferencia  *string    `firestore:"datosTransferencia,omitempty"`
	DireccionEntrega    *string    `firestore:"direccionEntrega,omitempty"`
	FechaDespacho       *time.Time `firestore:"fechaDespacho,omitempty"`
	FechaEntrega        *time.Time `firestore:"fechaEntrega,omitempty"`
	MotivoCancelacion   *string    `firestore:"motivoCancelacion,omitempty"`
	CanceladoPor        *string    `firestore:"canceladoPor,omitempty"`
}

func newPedidoDocument(pedido domain.Pedido) pedidoDocument {
	return pedidoDocument{
		CompradorEmail:      pedido.BuyerEmail,
		CompradorNombre:     pedido.BuyerName,
		ProveedorEmail:      pedido.ProviderEmail,
		DetalleJSON:         pedido.DetailJSON,
		TotalCLP:            pedido.TotalCLP,
		Estado:              string(pedido.Status),
		FechaPedido:         pedido.PlacedAt.UTC(),
		UltimaActualizacion: pedido.UpdatedAt.UTC(),
		MetodoPago:          cloneOptionalString(pedido.PaymentMethod),
		DatosTransferencia:  cloneOptionalString(pedido.TransferDetails),
		DireccionEntrega:    cloneOptionalString(pedido.DeliveryAddress),
		FechaDespacho:       cloneOptionalTime(pedido.DispatchedAt),
		FechaEntrega:        cloneOptionalTime(pedido.DeliveredAt),
		MotivoCancelacion:   cloneOptionalString(pedido.CancelReason),
		CanceladoPor:        cloneOptionalString(pedido.CanceledBy),
	}
}

func (d pedidoDocument) toDomain(id string) domain.Pedido {
	return domain.Pedido{
		ID:              id,
		BuyerEmail:      d.CompradorEmail,
		BuyerName:       d.CompradorNombre,
		ProviderEmail:   d.ProveedorEmail,
		DetailJSON:      d.DetalleJSON,
		TotalCLP:        d.TotalCLP,
		Status:          domain.PedidoStatus(d.Estado),
		PaymentMethod:   cloneOptionalString(d.MetodoPago),
		TransferDetails: cloneOptionalString(d.DatosTransferencia),
		DeliveryAddress: cloneOptionalString(d.DireccionEntrega),
		PlacedAt:        d.FechaPedido,
		UpdatedAt:       d.UltimaActualizacion,
		DispatchedAt:    cloneOptionalTime(d.FechaDespacho),
		DeliveredAt:     cloneOptionalTime(d.FechaEntrega),
		CancelReason:    cloneOptionalString(d.MotivoCancelacion),
		CanceledBy:      cloneOptionalString(d.CanceladoPor),
	}
}

func cloneOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

var _ repositories.PedidoRepository = (*PedidoRepository)(nil)
