package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

const defaultTestDSN = "host=localhost port=5432 user=postgres password=postgres dbname=referral_test sslmode=disable"

// SetupTestDB connects to the integration database and applies migrations.
// TEST_DATABASE_DSN overrides the local default.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = defaultTestDSN
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	if _, err := db.NewMigrator(conn, zap.NewNop()).Up(context.Background()); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return conn
}

// CleanupTestDB removes all rows written by a test, children first
func CleanupTestDB(t *testing.T, conn *sql.DB) {
	t.Helper()

	tables := []string{
		"referral.patient_access_log",
		"referral.patient_plugin_data",
		"referral.ambulance_dispatches",
		"referral.ambulances",
		"referral.referral_status_history",
		"referral.referrals",
		"referral.hospital_patient_access",
		"referral.patient_phones",
		"referral.patient_emails",
		"referral.patients",
		"referral.hospitals",
	}
	if _, err := conn.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE"); err != nil {
		t.Logf("Warning: Failed to clean up test data: %v", err)
	}
}

// CreateTestHospital inserts an active hospital and returns its id
func CreateTestHospital(t *testing.T, conn *sql.DB, code string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO referral.hospitals (id, name, code, is_active, created_at)
		VALUES ($1, $2, $3, true, NOW())
	`, id, "Hospital "+code, code)
	if err != nil {
		t.Fatalf("Failed to create test hospital: %v", err)
	}
	return id
}
