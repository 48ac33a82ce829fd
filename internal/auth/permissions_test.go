package auth

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadPermissions_Success tests successfully loading permissions from YAML
func TestLoadPermissions_Success(t *testing.T) {
	permFile := filepath.Join(t.TempDir(), "permissions.yml")
	content := `roles:
  SUPER_ADMIN:
    - hospital:create
    - hospital:view
  DOCTOR:
    - referral:view
    - referral:create
    - plugin-data:view
`
	if err := os.WriteFile(permFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test permissions file: %v", err)
	}

	perms, err := LoadPermissions(permFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(perms["SUPER_ADMIN"]) != 2 {
		t.Errorf("Expected 2 permissions for SUPER_ADMIN, got %d", len(perms["SUPER_ADMIN"]))
	}
	if !contains(perms["DOCTOR"], "plugin-data:view") {
		t.Error("Expected DOCTOR to have plugin-data:view")
	}
}

// TestLoadPermissions_FileNotFound tests error handling when file doesn't exist
func TestLoadPermissions_FileNotFound(t *testing.T) {
	perms, err := LoadPermissions("/nonexistent/path/permissions.yml")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
	if perms != nil {
		t.Error("Expected nil permissions on error")
	}
}

// TestLoadPermissions_InvalidYAML tests error handling for malformed YAML
func TestLoadPermissions_InvalidYAML(t *testing.T) {
	permFile := filepath.Join(t.TempDir(), "permissions.yml")
	if err := os.WriteFile(permFile, []byte("roles:\n  DOCTOR:\n    - referral:view\n   bad-indent: ["), 0644); err != nil {
		t.Fatalf("Failed to write test permissions file: %v", err)
	}

	if _, err := LoadPermissions(permFile); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

// TestLoadPermissions_RealFile checks the shipped permissions.yml covers every route permission
func TestLoadPermissions_RealFile(t *testing.T) {
	perms, err := LoadPermissions(filepath.Join("..", "..", "permissions.yml"))
	if err != nil {
		t.Skipf("permissions.yml not available: %v", err)
	}

	required := []string{
		"hospital:create", "hospital:view",
		"patient:create", "patient:view", "patient:update",
		"access:manage",
		"referral:create", "referral:view", "referral:update", "referral:export",
		"ambulance:view", "ambulance:manage",
		"dispatch:view", "dispatch:manage",
		"plugin-data:view", "plugin-data:write",
	}
	for _, p := range required {
		if !HasPermission(&Principal{Roles: []string{"SUPER_ADMIN"}}, p, perms) {
			t.Errorf("SUPER_ADMIN is missing %s", p)
		}
	}
	if HasPermission(&Principal{Roles: []string{"NURSE"}}, "referral:update", perms) {
		t.Error("NURSE must not update referrals")
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
