package authx

import "testing"

func TestParseRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "operator"},
		"scp":   "read write",
	}
	roles := parseRoles(claims)
	if len(roles) < 3 {
		t.Fatalf("expected roles to include entries, got %v", roles)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
}

func TestHasRole(t *testing.T) {
	auth := AuthContext{Roles: []string{RoleInspector}}
	if !auth.HasRole(RoleInspector) {
		t.Fatalf("expected inspector role to match")
	}
	if auth.HasRole(RoleApprover) {
		t.Fatalf("did not expect approver role")
	}
	admin := AuthContext{Roles: []string{RoleAdmin}}
	if !admin.HasRole(RoleApprover) {
		t.Fatalf("expected admin to satisfy any role check")
	}
}
