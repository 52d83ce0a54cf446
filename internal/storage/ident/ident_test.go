package ident

import (
	"testing"
)

// TestNewIdentifier_Format проверяет длину и алфавит идентификатора.
func TestNewIdentifier_Format(t *testing.T) {
	id, err := NewIdentifier()
	if err != nil {
		t.Fatalf("ошибка генерации: %v", err)
	}
	if !IsHex(id, IdentifierBytes*2) {
		t.Errorf("идентификатор должен состоять из %d hex-символов: %q", IdentifierBytes*2, id)
	}
}

// TestNewAccessToken_Format проверяет длину и алфавит токена.
func TestNewAccessToken_Format(t *testing.T) {
	tok, err := NewAccessToken()
	if err != nil {
		t.Fatalf("ошибка генерации: %v", err)
	}
	if !IsHex(tok, TokenBytes*2) {
		t.Errorf("токен должен состоять из %d hex-символов: %q", TokenBytes*2, tok)
	}
}

// TestNewIdentifier_Unique проверяет отсутствие коллизий на 10 000 значениях.
func TestNewIdentifier_Unique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for range n {
		id, err := NewIdentifier()
		if err != nil {
			t.Fatalf("ошибка генерации: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("обнаружен дубликат: %s", id)
		}
		seen[id] = struct{}{}
	}
}

// TestNewAccessToken_Unique проверяет отсутствие коллизий токенов.
func TestNewAccessToken_Unique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for range n {
		tok, err := NewAccessToken()
		if err != nil {
			t.Fatalf("ошибка генерации: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("обнаружен дубликат: %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestIsHex(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected bool
	}{
		{"0123abcd", 8, true},
		{"0123ABCD", 8, false},
		{"0123abc", 8, false},
		{"../../etc", 9, false},
		{"", 0, true},
		{"zz", 2, false},
	}

	for _, tt := range tests {
		if got := IsHex(tt.input, tt.n); got != tt.expected {
			t.Errorf("IsHex(%q, %d): ожидалось %v, получено %v", tt.input, tt.n, tt.expected, got)
		}
	}
}
