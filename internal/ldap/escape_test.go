package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeDNValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "SRV01", "SRV01"},
		{"comma", "Servers, Site A", "Servers\\, Site A"},
		{"leading space", " SRV01", "\\ SRV01"},
		{"trailing space", "SRV01 ", "SRV01\\ "},
		{"leading hash", "#SRV01", "\\#SRV01"},
		{"angle brackets", "a<b>c", "a\\<b\\>c"},
		{"backslash", `a\b`, `a\\b`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeDNValue(tt.value))
		})
	}
}

func TestEscapeFilterValue(t *testing.T) {
	assert.Equal(t, "SRV01", EscapeFilterValue("SRV01"))
	assert.Equal(t, `SRV\2a`, EscapeFilterValue("SRV*"))
	assert.Equal(t, `a\28b\29`, EscapeFilterValue("a(b)"))
}
