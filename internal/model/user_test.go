package model

import "testing"

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role     Role
		expected bool
	}{
		{RoleRequester, true},
		{RoleHandler, true},
		{RoleCarrier, true},
		{RoleAdmin, true},
		// Unknown roles fail-closed.
		{"manager", false},
		{"", false},
		{"Admin", false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.expected {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestActorManages(t *testing.T) {
	actor := Actor{ID: 7, Role: RoleHandler, LocationIDs: []int64{2, 5}}

	if !actor.Manages(5) {
		t.Error("expected handler to manage location 5")
	}
	if actor.Manages(3) {
		t.Error("expected handler not to manage location 3")
	}
	if (Actor{ID: 1, Role: RoleHandler}).Manages(2) {
		t.Error("handler without assignments must not manage any location")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}
