package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/access"
	"github.com/WailSalutem-Health-Care/referral-service/internal/audit"
	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
	"github.com/WailSalutem-Health-Care/referral-service/internal/dispatch"
	"github.com/WailSalutem-Health-Care/referral-service/internal/hospital"
	"github.com/WailSalutem-Health-Care/referral-service/internal/patient"
	"github.com/WailSalutem-Health-Care/referral-service/internal/plugindata"
	"github.com/WailSalutem-Health-Care/referral-service/internal/referral"
)

// ServiceName names the service in health checks and traces.
const ServiceName = "referral-service"

// Handlers groups the HTTP handlers of every domain package.
type Handlers struct {
	Hospitals  *hospital.Handler
	Patients   *patient.Handler
	Access     *access.Handler
	AccessLog  *audit.Handler
	Referrals  *referral.Handler
	Dispatch   *dispatch.Handler
	PluginData *plugindata.Handler
}

// Metrics is what the router records: request metrics plus permission checks.
type Metrics interface {
	RequestMetrics
	auth.PermissionMetricsRecorder
}

// Options configures cross-cutting router behaviour.
type Options struct {
	// Authenticate installs the principal on the request context.
	Authenticate func(http.Handler) http.Handler
	Permissions  auth.Permissions
	Metrics      Metrics
	Logger       *zap.Logger
}

// Authenticator picks the authentication middleware once, from auth.mode.
func Authenticator(cfg config.AuthConfig, verifier auth.TokenVerifier, metrics auth.MetricsRecorder, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.Mode == config.AuthModeDevelopment {
		return auth.DevMiddleware(auth.Principal{
			UserID:     cfg.DevUserID,
			HospitalID: cfg.DevHospitalID,
			Roles:      cfg.DevRoleList(),
		}, logger)
	}
	return auth.Middleware(verifier, metrics, logger)
}

// SetupRouter initializes all routes for the application
func SetupRouter(h Handlers, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(ServiceName))
	r.Use(RequestIDMiddleware)
	r.Use(AccessLogMiddleware(opts.Metrics, opts.Logger))

	var permMetrics auth.PermissionMetricsRecorder
	if opts.Metrics != nil {
		permMetrics = opts.Metrics
	}
	protect := func(permission string, fn http.HandlerFunc) http.Handler {
		return opts.Authenticate(
			auth.RequirePermission(permission, opts.Permissions, permMetrics, opts.Logger)(fn),
		)
	}

	// Public health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"` + ServiceName + `"}`))
	}).Methods("GET")

	// Hospital routes (SUPER_ADMIN provisions)
	r.Handle("/hospitals", protect("hospital:create", h.Hospitals.CreateHospital)).Methods("POST")
	r.Handle("/hospitals", protect("hospital:view", h.Hospitals.ListHospitals)).Methods("GET")
	r.Handle("/hospitals/{hospital}", protect("hospital:view", h.Hospitals.GetHospital)).Methods("GET")

	// Patient routes. /patients/mrn/{mrn} must be registered before /patients/{patientId}.
	r.Handle("/hospitals/{hospital}/patients", protect("patient:create", h.Patients.RegisterPatient)).Methods("POST")
	r.Handle("/hospitals/{hospital}/patients", protect("patient:view", h.Patients.ListPatients)).Methods("GET")
	r.Handle("/patients/mrn/{mrn}", protect("patient:view", h.Patients.GetPatientByMRN)).Methods("GET")
	r.Handle("/patients/{patientId}", protect("patient:view", h.Patients.GetPatient)).Methods("GET")
	r.Handle("/patients/{patientId}", protect("patient:update", h.Patients.UpdatePatient)).Methods("PUT")

	// Access grants and the access log (ADMIN on the patient is checked by the gate)
	r.Handle("/patients/{patientId}/access-grants", protect("access:manage", h.Access.ListGrants)).Methods("GET")
	r.Handle("/patients/{patientId}/access-grants", protect("access:manage", h.Access.GrantAccess)).Methods("POST")
	r.Handle("/patients/{patientId}/access-grants/{hospitalId}", protect("access:manage", h.Access.RevokeAccess)).Methods("DELETE")
	r.Handle("/patients/{patientId}/access-log", protect("access:manage", h.AccessLog.ListAccessLog)).Methods("GET")

	// Plugin data
	r.Handle("/patients/{patientId}/plugin-data", protect("plugin-data:view", h.PluginData.GetPluginData)).Methods("GET")
	r.Handle("/patients/{patientId}/plugin-data", protect("plugin-data:write", h.PluginData.SetPluginData)).Methods("POST", "PUT")

	// Referral routes. /referrals/export must be registered before /referrals/{referralId}.
	r.Handle("/hospitals/{hospital}/referrals", protect("referral:view", h.Referrals.ListReferrals)).Methods("GET")
	r.Handle("/hospitals/{hospital}/referrals", protect("referral:create", h.Referrals.CreateReferral)).Methods("POST")
	r.Handle("/hospitals/{hospital}/referrals/export", protect("referral:export", h.Referrals.ExportReferrals)).Methods("GET")
	r.Handle("/hospitals/{hospital}/referrals/{referralId}", protect("referral:view", h.Referrals.GetReferral)).Methods("GET")
	r.Handle("/hospitals/{hospital}/referrals/{referralId}", protect("referral:update", h.Referrals.UpdateReferral)).Methods("PUT")
	r.Handle("/hospitals/{hospital}/referrals/{referralId}", protect("referral:update", h.Referrals.CancelReferral)).Methods("DELETE")

	// Ambulance dispatch for a referral
	r.Handle("/hospitals/{hospital}/referrals/{referralId}/ambulance", protect("dispatch:view", h.Dispatch.GetDispatch)).Methods("GET")
	r.Handle("/hospitals/{hospital}/referrals/{referralId}/ambulance", protect("dispatch:manage", h.Dispatch.RequestDispatch)).Methods("POST")
	r.Handle("/hospitals/{hospital}/referrals/{referralId}/ambulance", protect("dispatch:manage", h.Dispatch.UpdateDispatch)).Methods("PUT")

	// Ambulance fleet
	r.Handle("/hospitals/{hospital}/ambulances", protect("ambulance:view", h.Dispatch.ListAmbulances)).Methods("GET")
	r.Handle("/hospitals/{hospital}/ambulances", protect("ambulance:manage", h.Dispatch.CreateAmbulance)).Methods("POST")
	r.Handle("/hospitals/{hospital}/ambulances/{ambulanceId}/status", protect("ambulance:manage", h.Dispatch.SetAmbulanceStatus)).Methods("PUT")

	return r
}
