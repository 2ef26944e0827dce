package domain

// IsBuyer reports whether the actor is the pedido's buyer.
func (p *Pedido) IsBuyer(actor Actor) bool {
	return p.BuyerEmail == actor.Email
}

// IsProvider reports whether the actor is the pedido's provider.
func (p *Pedido) IsProvider(actor Actor) bool {
	return p.ProviderEmail == actor.Email
}

// IsParty reports whether the actor is either side of the pedido.
func (p *Pedido) IsParty(actor Actor) bool {
	return p.IsBuyer(actor) || p.IsProvider(actor)
}

// CanAccess reports whether the actor may read the pedido at all.
// Elevated roles see everything, everyone else only their own pedidos.
func (p *Pedido) CanAccess(actor Actor) bool {
	if actor.Elevated() {
		return true
	}
	return p.IsParty(actor)
}

// transitionRule names who may move a pedido out of which states.
type transitionRule struct {
	from       []PedidoStatus
	byBuyer    bool
	byProvider bool
}

func (r transitionRule) allowsFrom(s PedidoStatus) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

// pedidoTransitions is the single authority on the pedido lifecycle.
// Elevated actors are checked before this table and bypass it entirely.
var pedidoTransitions = map[PedidoStatus][]transitionRule{
	PedidoStatusConfirmado: {
		{from: []PedidoStatus{PedidoStatusPendiente}, byProvider: true},
	},
	PedidoStatusPagado: {
		{from: []PedidoStatus{PedidoStatusConfirmado, PedidoStatusEsperandoPago}, byBuyer: true},
	},
	PedidoStatusListoDespacho: {
		{from: []PedidoStatus{PedidoStatusPagado}, byProvider: true},
	},
	PedidoStatusEnCamino: {
		{from: []PedidoStatus{PedidoStatusListoDespacho}, byProvider: true},
	},
	PedidoStatusEntregado: {
		{from: []PedidoStatus{PedidoStatusEnCamino}, byBuyer: true},
	},
	PedidoStatusCancelado: {
		{from: []PedidoStatus{PedidoStatusPendiente}, byBuyer: true},
		{from: []PedidoStatus{PedidoStatusPendiente, PedidoStatusConfirmado}, byProvider: true},
	},
}

// CanTransition reports whether the actor may move the pedido from its
// current status to next. Self-loops are never allowed, elevated roles may
// force any state change the clients ever need (support corrections included),
// and regular parties are bound to the lifecycle table above.
func (p *Pedido) CanTransition(next PedidoStatus, actor Actor) bool {
	if !next.IsValid() || next == p.Status {
		return false
	}
	if actor.Elevated() {
		return true
	}

	rules, ok := pedidoTransitions[next]
	if !ok {
		return false
	}
	for _, rule := range rules {
		if !rule.allowsFrom(p.Status) {
			continue
		}
		if rule.byBuyer && p.IsBuyer(actor) {
			return true
		}
		if rule.byProvider && p.IsProvider(actor) {
			return true
		}
	}
	return false
}
