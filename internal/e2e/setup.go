//go:build integration

package e2e

import (
	"crypto/rsa"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/audit"
	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
	"github.com/WailSalutem-Health-Care/referral-service/internal/dispatch"
	"github.com/WailSalutem-Health-Care/referral-service/internal/hospital"
	httpserver "github.com/WailSalutem-Health-Care/referral-service/internal/http"
	"github.com/WailSalutem-Health-Care/referral-service/internal/patient"
	"github.com/WailSalutem-Health-Care/referral-service/internal/plugindata"
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
	"github.com/WailSalutem-Health-Care/referral-service/internal/testutil"
)

// TestServer represents a complete E2E test environment
type TestServer struct {
	Server        *httptest.Server
	DB            *sql.DB
	MockPublisher *testutil.MockPublisher
	PrivateKey    *rsa.PrivateKey
	Coordinator   *dispatch.Coordinator
}

// SetupE2ETest creates a complete test environment for E2E testing:
// real PostgreSQL, the real router with every route, an in-memory event
// publisher and a test JWT signing key.
func SetupE2ETest(t *testing.T) *TestServer {
	t.Helper()
	logger := zap.NewNop()

	conn := testutil.SetupTestDB(t)
	mockPublisher := testutil.NewMockPublisher()

	perms, err := auth.LoadPermissions("../../permissions.yml")
	if err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}
	verifier, privateKey := testutil.CreateTestVerifier(t)

	tx := db.NewTxRunner(conn)
	accessRepo := access.NewRepository(conn)
	gate := access.NewGate(accessRepo, config.CrossHospitalStrict, nil, logger)
	recorder := audit.NewRecorder(conn, logger)

	hospitalRepo := hospital.NewRepository(conn)
	referralRepo := referral.NewRepository(conn)
	coordinator := dispatch.NewCoordinator(dispatch.NewRepository(conn), referralRepo, tx, gate, mockPublisher, nil, 30*time.Minute, logger)

	router := httpserver.SetupRouter(httpserver.Handlers{
		Hospitals:  hospital.NewHandler(hospital.NewService(hospitalRepo), logger),
		Patients:   patient.NewHandler(patient.NewService(patient.NewRepository(conn), tx, gate, nil, recorder, mockPublisher, logger), logger),
		Access:     access.NewHandler(access.NewService(accessRepo, gate), logger),
		AccessLog:  audit.NewHandler(audit.NewService(recorder, gate), logger),
		Referrals:  referral.NewHandler(referral.NewService(referralRepo, tx, hospitalRepo, gate, coordinator, mockPublisher, nil, logger), logger),
		Dispatch:   dispatch.NewHandler(coordinator, logger),
		PluginData: plugindata.NewHandler(plugindata.NewService(plugindata.NewRepository(conn), plugindata.DefaultRegistry(), gate, recorder, mockPublisher, logger), logger),
	}, httpserver.Options{
		Authenticate: auth.Middleware(verifier, nil, logger),
		Permissions:  perms,
		Logger:       logger,
	})

	return &TestServer{
		Server:        httptest.NewServer(router),
		DB:            conn,
		MockPublisher: mockPublisher,
		PrivateKey:    privateKey,
		Coordinator:   coordinator,
	}
}

// Cleanup cleans up all test resources
func (ts *TestServer) Cleanup(t *testing.T) {
	t.Helper()

	ts.Server.Close()
	testutil.CleanupTestDB(t, ts.DB)
	ts.DB.Close()
}

// NewClient creates a new HTTP test client for this server with the given token
func (ts *TestServer) NewClient(token string) *testutil.HTTPTestClient {
	return testutil.NewHTTPTestClient(ts.Server.URL, token)
}

func (ts *TestServer) Doctor(t *testing.T, hospitalID string) *testutil.HTTPTestClient {
	t.Helper()
	return ts.NewClient(testutil.GenerateDoctorToken(t, ts.PrivateKey, hospitalID))
}

func (ts *TestServer) Admin(t *testing.T, hospitalID string) *testutil.HTTPTestClient {
	t.Helper()
	return ts.NewClient(testutil.GenerateHospitalAdminToken(t, ts.PrivateKey, hospitalID))
}

func (ts *TestServer) Dispatcher(t *testing.T, hospitalID string) *testutil.HTTPTestClient {
	t.Helper()
	return ts.NewClient(testutil.GenerateDispatcherToken(t, ts.PrivateKey, hospitalID))
}

// registerPatient registers a patient homed at hospitalID and returns its id and MRN
func (ts *TestServer) registerPatient(t *testing.T, hospitalID, lastName string) (string, string) {
	t.Helper()

	resp := ts.Doctor(t, hospitalID).POST(t, "/hospitals/"+hospitalID+"/patients", map[string]interface{}{
		"firstName": "Ada",
		"lastName":  lastName,
		"birthDate": "1985-04-12",
		"gender":    "female",
		"emails":    []string{lastName + "@example.org"},
		"phones":    []string{"+31201234567"},
	})
	testutil.AssertStatusCode(t, resp, 201)

	var result struct {
		Patient struct {
			ID  string `json:"id"`
			MRN string `json:"mrn"`
		} `json:"patient"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Patient.ID, result.Patient.MRN
}
