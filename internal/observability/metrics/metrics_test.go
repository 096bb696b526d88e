package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "valid"),
		attribute.String("license_key", "WASM-AAAA-BBBB-CCCC"),
		attribute.String("action_kind", "assistant_action"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
	if attrs[0].Key != "action_kind" && attrs[1].Key != "action_kind" {
		t.Fatalf("expected action_kind to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordLicenseValidation(ctx, "starter", "valid")
		m.RecordUsage(ctx, "assistant_action", "accepted", 3)
		m.RecordPaymentEvent(ctx, "webhook", "applied")
		m.RecordRateLimitAllowed(ctx, "/api/plugin/track-usage")
		m.RecordRateLimitDenied(ctx, "/api/plugin/track-usage", "plugin-rate")
		m.RecordJobRun(ctx, "prune_plugin_events", "success", time.Second)
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "licensor"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordUsage(context.Background(), "chatbot_message", "rejected", 0)
	})
}

func TestHTTPMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHTTPMetricsWithRegisterer(reg)
	require.NoError(t, err)

	h.Observe("GET", "/api/plugin/health", 200, 0.01)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["licensor_http_requests_total"])
	assert.True(t, names["licensor_http_request_duration_seconds"])
}
