package textutil

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Proveedor@Example.COM", "proveedor@example.com"},
		{"trims whitespace", "  comprador@tienda.cl \n", "comprador@tienda.cl"},
		{"empty input", "   ", ""},
		{"accented local part", "JosÉ@correo.cl", "josé@correo.cl"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeEmail(tc.input); got != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, got)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Run("strips markup", func(t *testing.T) {
		got := CleanText("<script>alert('x')</script>Producto dañado", 0)
		if got != "Producto dañado" {
			t.Fatalf("expected markup stripped, got %q", got)
		}
	})

	t.Run("truncates by runes", func(t *testing.T) {
		got := CleanText("señalización", 4)
		if got != "seña" {
			t.Fatalf("expected rune-safe truncation, got %q", got)
		}
	})

	t.Run("trims whitespace", func(t *testing.T) {
		if got := CleanText("  transferencia bancaria  ", 0); got != "transferencia bancaria" {
			t.Fatalf("unexpected output %q", got)
		}
	})
}
