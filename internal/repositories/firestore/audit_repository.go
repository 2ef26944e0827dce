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

const auditCollection = "pedido_audits"

// AuditLogRepository appends pedido transition entries to Firestore.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit repository requires firestore provider")
	}
	return &AuditLogRepository{
		base: pfirestore.NewBaseRepository[auditDocument](provider, auditCollection, nil, nil),
	}, nil
}

// Append stores one immutable transition entry. Entries are never updated
// or deleted afterwards.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	doc := auditDocument{
		PedidoID:   entry.PedidoID,
		ActorEmail: entry.ActorEmail,
		ActorHash:  entry.ActorHash,
		From:       string(entry.FromStatus),
		To:         string(entry.ToStatus),
		Reason:     cloneOptionalString(entry.Reason),
	}

	id := strings.TrimSpace(entry.ID)
	if id == "" {
		_, _, err := r.base.Add(ctx, doc)
		return err
	}
	_, err := r.base.Create(ctx, id, doc)
	return err
}

// ListByPedido returns a pedido's transition history, oldest first.
func (r *AuditLogRepository) ListByPedido(ctx context.Context, pedidoID string, pager domain.Pagination) ([]domain.AuditEntry, error) {
	id := strings.TrimSpace(pedidoID)
	if id == "" {
		return nil, errors.New("audit repository: pedido id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.
			Where("pedidoId", "==", id).
			OrderBy("createdAt", firestore.Asc)
		page, size := normalisePager(pager)
		return query.Offset((page - 1) * size).Limit(size)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type auditDocument struct {
	PedidoID   string    `firestore:"pedidoId"`
	ActorEmail string    `firestore:"actorEmail"`
	ActorHash  string    `firestore:"actorHash,omitempty"`
	From       string    `firestore:"from"`
	To         string    `firestore:"to"`
	Reason     *string   `firestore:"reason"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp"`
}

func (d auditDocument) toDomain(id string) domain.AuditEntry {
	return domain.AuditEntry{
		ID:         id,
		PedidoID:   d.PedidoID,
		ActorEmail: d.ActorEmail,
		ActorHash:  d.ActorHash,
		FromStatus: domain.PedidoStatus(d.From),
		ToStatus:   domain.PedidoStatus(d.To),
		Reason:     cloneOptionalString(d.Reason),
		CreatedAt:  d.CreatedAt,
	}
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
