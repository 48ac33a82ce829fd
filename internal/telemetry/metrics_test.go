package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/referral-service/internal/config"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string][]metricdata.DataPoint[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum.DataPoints
			}
		}
	}
	return out
}

func TestMetrics_DomainCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	m, err := InitMetrics(zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordReferralTransition(ctx, "", "PENDING")
	m.RecordReferralTransition(ctx, "PENDING", "ACCEPTED")
	m.RecordReferralTransition(ctx, "PENDING", "ACCEPTED")
	m.RecordDispatchOperation(ctx, "request", "no_available_resource")
	m.RecordAccessDenied(ctx, "patient", "WRITE")

	sums := collectSums(t, reader)

	transitions := sums["referral_transitions_total"]
	require.Len(t, transitions, 2)
	for _, dp := range transitions {
		from, _ := dp.Attributes.Value(attribute.Key("from_status"))
		switch from.AsString() {
		case "NONE":
			assert.Equal(t, int64(1), dp.Value)
		case "PENDING":
			assert.Equal(t, int64(2), dp.Value)
		default:
			t.Errorf("unexpected from_status %q", from.AsString())
		}
	}

	require.Len(t, sums["dispatch_operations_total"], 1)
	outcome, _ := sums["dispatch_operations_total"][0].Attributes.Value(attribute.Key("outcome"))
	assert.Equal(t, "no_available_resource", outcome.AsString())

	require.Len(t, sums["access_denied_total"], 1)
	assert.Equal(t, int64(1), sums["access_denied_total"][0].Value)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{Env: "staging"}
	cfg.Telemetry.ServiceName = "referral-service"
	cfg.Telemetry.OTLPEndpoint = "collector:4317"

	got := FromConfig(cfg)
	assert.Equal(t, "referral-service", got.ServiceName)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
	assert.Equal(t, float64(30), got.MetricsInterval.Seconds())
}
