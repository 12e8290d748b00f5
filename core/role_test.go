package core

import (
	"errors"
	"testing"
	"time"
)

func TestHasRole(t *testing.T) {
	disabled := time.Now()

	tests := []struct {
		name     string
		identity *Identity
		required Role
		want     bool
	}{
		{"nil identity", nil, RoleStandard, false},
		{"standard as standard", &Identity{Role: RoleStandard}, RoleStandard, true},
		{"admin as standard", &Identity{Role: RoleAdmin}, RoleStandard, true},
		{"standard as admin", &Identity{Role: RoleStandard}, RoleAdmin, false},
		{"admin as admin", &Identity{Role: RoleAdmin}, RoleAdmin, true},
		{"disabled admin", &Identity{Role: RoleAdmin, DisabledAt: &disabled}, RoleAdmin, false},
		{"unknown required role", &Identity{Role: RoleAdmin}, Role("owner"), false},
		{"empty role", &Identity{}, RoleStandard, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := HasRole(test.identity, test.required); got != test.want {
				t.Errorf("HasRole() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"": RoleStandard, "standard": RoleStandard, "admin": RoleAdmin} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(root) error = %v", err)
	}
}
