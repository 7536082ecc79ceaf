package config

import (
	"testing"
)

func TestTokenCatalog_Default(t *testing.T) {
	cfg := Config{TokenCatalogJSON: defaultTokenCatalog}

	catalog, err := cfg.TokenCatalog()
	if err != nil {
		t.Fatalf("parse default catalog: %v", err)
	}
	if len(catalog) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(catalog))
	}
	prices := map[string]int64{"Gold": 10, "Silver": 5, "Bronze": 1}
	for _, tok := range catalog {
		want, ok := prices[tok.Name]
		if !ok {
			t.Fatalf("unexpected token %q", tok.Name)
		}
		if tok.UnitPrice != want {
			t.Fatalf("token %q: expected price %d, got %d", tok.Name, want, tok.UnitPrice)
		}
		if tok.Origin != "mint" {
			t.Fatalf("token %q: expected origin mint, got %q", tok.Name, tok.Origin)
		}
	}
}

func TestTokenCatalog_Validation(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"malformed json", `not json`},
		{"empty name", `[{"name": " ", "unit_price": 1}]`},
		{"zero price", `[{"name": "Gold", "unit_price": 0}]`},
		{"negative price", `[{"name": "Gold", "unit_price": -5}]`},
		{"duplicate name", `[{"name": "Gold", "unit_price": 1}, {"name": "Gold", "unit_price": 2}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{TokenCatalogJSON: tc.json}
			if _, err := cfg.TokenCatalog(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
