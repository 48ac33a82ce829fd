package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/WailSalutem-Health-Care/referral-service"

// Metrics holds all custom metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	// Business metrics
	ReferralTransitionsTotal metric.Int64Counter
	DispatchOperationsTotal  metric.Int64Counter
	AccessDeniedTotal        metric.Int64Counter

	// Auth metrics
	AuthFailuresTotal       metric.Int64Counter
	PermissionCheckDuration metric.Float64Histogram
}

// InitMetrics initializes all custom metrics against the global meter provider
func InitMetrics(logger *zap.Logger) (*Metrics, error) {
	meter := otel.Meter(meterName)

	httpRequestsTotal, err := meter.Int64Counter(
		"http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	httpDurationMs, err := meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	referralTransitions, err := meter.Int64Counter(
		"referral_transitions_total",
		metric.WithDescription("Referral status transitions, by from and to status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchOperations, err := meter.Int64Counter(
		"dispatch_operations_total",
		metric.WithDescription("Ambulance dispatch operations, by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	accessDenied, err := meter.Int64Counter(
		"access_denied_total",
		metric.WithDescription("Patient access checks refused by the access gate"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, err
	}

	authFailuresTotal, err := meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of authentication failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	permissionCheckDuration, err := meter.Float64Histogram(
		"permission_check_duration_ms",
		metric.WithDescription("Permission check duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("custom metrics initialized")

	return &Metrics{
		HTTPRequestsTotal:        httpRequestsTotal,
		HTTPDurationMs:           httpDurationMs,
		ReferralTransitionsTotal: referralTransitions,
		DispatchOperationsTotal:  dispatchOperations,
		AccessDeniedTotal:        accessDenied,
		AuthFailuresTotal:        authFailuresTotal,
		PermissionCheckDuration:  permissionCheckDuration,
	}, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPDurationMs.Record(ctx, durationMs, metric.WithAttributes(attrs...))
}

// RecordReferralTransition counts a referral status change. from is empty on creation.
func (m *Metrics) RecordReferralTransition(ctx context.Context, from, to string) {
	if from == "" {
		from = "NONE"
	}
	m.ReferralTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	))
}

// RecordDispatchOperation counts a dispatch operation and its outcome
func (m *Metrics) RecordDispatchOperation(ctx context.Context, operation, outcome string) {
	m.DispatchOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordAccessDenied counts a gate refusal
func (m *Metrics) RecordAccessDenied(ctx context.Context, resource string, level string) {
	m.AccessDeniedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("level", level),
	))
}

// RecordAuthFailure records an authentication failure metric
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordPermissionCheck records a permission check duration metric
func (m *Metrics) RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool) {
	m.PermissionCheckDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("permission", permission),
		attribute.Bool("allowed", allowed),
	))
}
