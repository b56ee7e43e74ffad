package tenant

import (
	"strings"
	"testing"
)

func TestNormalizeSchemaName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"小文字英数字はそのまま", "acme", "acme"},
		{"大文字は小文字化", "Acme", "acme"},
		{"空白はアンダースコアに置換", "Acme Stores", "acme_stores"},
		{"記号はアンダースコアに置換", "café-42", "caf__42"},
		{"日本語はアンダースコアに置換", "テナント1", "____1"},
		{"先頭の数字にはプレフィックスを付与", "42stores", "t_42stores"},
		{"前後の空白は除去", "  acme  ", "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSchemaName(tt.input)
			if err != nil {
				t.Fatalf("NormalizeSchemaName(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeSchemaName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeSchemaName_Deterministic(t *testing.T) {
	first, err := NormalizeSchemaName("Acme Stores #1")
	if err != nil {
		t.Fatalf("NormalizeSchemaName error = %v", err)
	}
	second, err := NormalizeSchemaName("Acme Stores #1")
	if err != nil {
		t.Fatalf("NormalizeSchemaName error = %v", err)
	}
	if first != second {
		t.Errorf("normalization must be deterministic: %q != %q", first, second)
	}
}

func TestNormalizeSchemaName_TruncatesToIdentifierLimit(t *testing.T) {
	long := strings.Repeat("a", 100)
	got, err := NormalizeSchemaName(long)
	if err != nil {
		t.Fatalf("NormalizeSchemaName error = %v", err)
	}
	if len(got) != 63 {
		t.Errorf("len = %d, want 63", len(got))
	}
}

func TestNormalizeSchemaName_Empty(t *testing.T) {
	if _, err := NormalizeSchemaName(""); err == nil {
		t.Error("empty name should be rejected")
	}
	if _, err := NormalizeSchemaName("   "); err == nil {
		t.Error("whitespace-only name should be rejected")
	}
}

func TestNormalizeSchemaName_OutputAlwaysValid(t *testing.T) {
	inputs := []string{"Acme", "42", "a b c", "日本語テナント", "UPPER-CASE!", "x"}
	for _, in := range inputs {
		got, err := NormalizeSchemaName(in)
		if err != nil {
			t.Fatalf("NormalizeSchemaName(%q) error = %v", in, err)
		}
		if !ValidSchemaName(got) {
			t.Errorf("NormalizeSchemaName(%q) = %q is not a valid schema name", in, got)
		}
	}
}

func TestIsReservedSchema(t *testing.T) {
	tests := []struct {
		schema string
		want   bool
	}{
		{"public", true},
		{"information_schema", true},
		{"pg_catalog", true},
		{"pg_toast", true},
		{"pg_anything", true},
		{"acme", false},
		{"publicity", false},
		{"my_pg_schema", false},
	}

	for _, tt := range tests {
		if got := IsReservedSchema(tt.schema); got != tt.want {
			t.Errorf("IsReservedSchema(%q) = %v, want %v", tt.schema, got, tt.want)
		}
	}
}

func TestValidSchemaName(t *testing.T) {
	tests := []struct {
		schema string
		want   bool
	}{
		{"acme", true},
		{"_leading_underscore", true},
		{"t_42stores", true},
		{"", false},
		{"Acme", false},
		{"42stores", false},
		{"acme-stores", false},
		{"acme stores", false},
		{strings.Repeat("a", 64), false},
		{strings.Repeat("a", 63), true},
	}

	for _, tt := range tests {
		if got := ValidSchemaName(tt.schema); got != tt.want {
			t.Errorf("ValidSchemaName(%q) = %v, want %v", tt.schema, got, tt.want)
		}
	}
}
