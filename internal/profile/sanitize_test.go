package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"input keeps word chars", SanitizeInput, "alice_01 -x", "alice_01 -x"},
		{"input strips quotes", SanitizeInput, "al'ice; DROP", "alice DROP"},
		{"input strips dots", SanitizeInput, "a.b@c", "abc"},
		{"email keeps at and dot", SanitizeEmail, "a.b@c.com", "a.b@c.com"},
		{"email strips brackets", SanitizeEmail, "<a@b.com>", "a@b.com"},
		{"gacha keeps dot", SanitizeGachaName, "Rose v2.0", "Rose v2.0"},
		{"gacha strips slash", SanitizeGachaName, "../rose", "..rose"},
		{"empty", SanitizeInput, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}
