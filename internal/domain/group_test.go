package domain

import (
	"testing"
	"unicode/utf8"
)

func TestNormalizeShortName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Harbour Runners", "HR"},
		{"canal striders club", "CSC"},
		{"Élan Runners", "ÉR"},
		{"über läufer", "ÜL"},
	}

	for _, tt := range tests {
		cfg := GroupConfig{Group: GroupSettings{Name: tt.name}}
		cfg.Normalize()
		if cfg.Group.ShortName != tt.want || !utf8.ValidString(cfg.Group.ShortName) {
			t.Errorf("short name for %q = %q, want %q", tt.name, cfg.Group.ShortName, tt.want)
		}
	}
}
