package domain

import "testing"

func lifecyclePedido(status PedidoStatus) *Pedido {
	return &Pedido{
		ID:            "ped_01HZX",
		BuyerEmail:    "buyer@example.com",
		ProviderEmail: "provider@example.com",
		Status:        status,
	}
}

var (
	buyerActor    = Actor{Email: "buyer@example.com", Role: "user"}
	providerActor = Actor{Email: "provider@example.com", Role: "proveedor"}
	strangerActor = Actor{Email: "other@example.com", Role: "user"}
	adminActor    = Actor{Email: "ops@example.com", Role: "admin"}
)

func TestCanTransitionLifecycle(t *testing.T) {
	cases := []struct {
		name    string
		current PedidoStatus
		next    PedidoStatus
		actor   Actor
		want    bool
	}{
		{"provider confirms pending", PedidoStatusPendiente, PedidoStatusConfirmado, providerActor, true},
		{"buyer cannot confirm", PedidoStatusPendiente, PedidoStatusConfirmado, buyerActor, false},
		{"buyer pays confirmed", PedidoStatusConfirmado, PedidoStatusPagado, buyerActor, true},
		{"buyer pays awaiting payment", PedidoStatusEsperandoPago, PedidoStatusPagado, buyerActor, true},
		{"provider cannot pay", PedidoStatusEsperandoPago, PedidoStatusPagado, providerActor, false},
		{"provider readies paid", PedidoStatusPagado, PedidoStatusListoDespacho, providerActor, true},
		{"provider dispatches ready", PedidoStatusListoDespacho, PedidoStatusEnCamino, providerActor, true},
		{"buyer confirms delivery", PedidoStatusEnCamino, PedidoStatusEntregado, buyerActor, true},
		{"provider cannot confirm delivery", PedidoStatusEnCamino, PedidoStatusEntregado, providerActor, false},
		{"no skipping states", PedidoStatusPendiente, PedidoStatusPagado, buyerActor, false},
		{"no going backwards", PedidoStatusPagado, PedidoStatusConfirmado, providerActor, false},
		{"stranger denied", PedidoStatusPendiente, PedidoStatusConfirmado, strangerActor, false},
		{"unknown target denied", PedidoStatusPendiente, PedidoStatus("DESCONOCIDO"), providerActor, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pedido := lifecyclePedido(tc.current)
			if got := pedido.CanTransition(tc.next, tc.actor); got != tc.want {
				t.Fatalf("CanTransition(%s -> %s) by %s = %v, want %v", tc.current, tc.next, tc.actor.Email, got, tc.want)
			}
		})
	}
}

func TestCanTransitionCancellation(t *testing.T) {
	cases := []struct {
		name    string
		current PedidoStatus
		actor   Actor
		want    bool
	}{
		{"buyer cancels pending", PedidoStatusPendiente, buyerActor, true},
		{"buyer cannot cancel confirmed", PedidoStatusConfirmado, buyerActor, false},
		{"provider cancels pending", PedidoStatusPendiente, providerActor, true},
		{"provider cancels confirmed", PedidoStatusConfirmado, providerActor, true},
		{"provider cannot cancel paid", PedidoStatusPagado, providerActor, false},
		{"nobody cancels delivered", PedidoStatusEntregado, buyerActor, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pedido := lifecyclePedido(tc.current)
			if got := pedido.CanTransition(PedidoStatusCancelado, tc.actor); got != tc.want {
				t.Fatalf("cancel from %s by %s = %v, want %v", tc.current, tc.actor.Email, got, tc.want)
			}
		})
	}
}

func TestCanTransitionElevatedBypass(t *testing.T) {
	pedido := lifecyclePedido(PedidoStatusEntregado)
	if !pedido.CanTransition(PedidoStatusPendiente, adminActor) {
		t.Fatal("admin should be able to force any state change")
	}
	if pedido.CanTransition(PedidoStatusEntregado, adminActor) {
		t.Fatal("self-loop must be rejected even for admins")
	}
	if pedido.CanTransition(PedidoStatus("DESCONOCIDO"), adminActor) {
		t.Fatal("unknown status must be rejected even for admins")
	}
}

func TestTerminalStatesAdmitNoTransitions(t *testing.T) {
	for _, terminal := range []PedidoStatus{PedidoStatusEntregado, PedidoStatusCancelado} {
		pedido := lifecyclePedido(terminal)
		for _, next := range PedidoStatuses() {
			for _, actor := range []Actor{buyerActor, providerActor} {
				if pedido.CanTransition(next, actor) {
					t.Fatalf("terminal %s allowed transition to %s by %s", terminal, next, actor.Email)
				}
			}
		}
	}
}

func TestCanAccess(t *testing.T) {
	pedido := lifecyclePedido(PedidoStatusPendiente)
	if !pedido.CanAccess(buyerActor) || !pedido.CanAccess(providerActor) {
		t.Fatal("parties must be able to read their own pedido")
	}
	if pedido.CanAccess(strangerActor) {
		t.Fatal("unrelated user must not read the pedido")
	}
	if !pedido.CanAccess(adminActor) {
		t.Fatal("admin must read any pedido")
	}
}
