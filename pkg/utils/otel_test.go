// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var otelEnvVars = []string{
	"OTEL_SERVICE_NAME",
	"OTEL_SERVICE_VERSION",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_EXPORTER",
	"OTEL_TRACES_SAMPLE_RATIO",
	"OTEL_METRICS_EXPORTER",
	"OTEL_LOGS_EXPORTER",
}

func clearOTelEnv(t *testing.T) {
	t.Helper()
	for _, key := range otelEnvVars {
		t.Setenv(key, "")
	}
}

func TestOTelConfigFromEnv_Defaults(t *testing.T) {
	clearOTelEnv(t)

	cfg := OTelConfigFromEnv()
	assert.Equal(t, OTelConfig{
		ServiceName:       "lfx-v2-meeting-transcript-service",
		Protocol:          OTelProtocolGRPC,
		TracesExporter:    OTelExporterNone,
		TracesSampleRatio: 1.0,
		MetricsExporter:   OTelExporterNone,
		LogsExporter:      OTelExporterNone,
	}, cfg)
}

func TestOTelConfigFromEnv_CustomValues(t *testing.T) {
	clearOTelEnv(t)
	t.Setenv("OTEL_SERVICE_NAME", "transcripts-staging")
	t.Setenv("OTEL_SERVICE_VERSION", "0.4.2")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", OTelProtocolHTTP)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_EXPORTER", OTelExporterOTLP)
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")

	cfg := OTelConfigFromEnv()
	assert.Equal(t, "transcripts-staging", cfg.ServiceName)
	assert.Equal(t, "0.4.2", cfg.ServiceVersion)
	assert.Equal(t, OTelProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, OTelExporterOTLP, cfg.TracesExporter)
	assert.InDelta(t, 0.25, cfg.TracesSampleRatio, 1e-9)
	assert.Equal(t, OTelExporterNone, cfg.MetricsExporter)
}

func TestOTelConfigFromEnv_SampleRatioBounds(t *testing.T) {
	for raw, want := range map[string]float64{
		"0":    0,
		"1":    1,
		"0.5":  0.5,
		"1.5":  1,
		"-0.1": 1,
		"half": 1,
	} {
		t.Run(raw, func(t *testing.T) {
			clearOTelEnv(t)
			t.Setenv("OTEL_TRACES_SAMPLE_RATIO", raw)
			assert.InDelta(t, want, OTelConfigFromEnv().TracesSampleRatio, 1e-9)
		})
	}
}

func TestOTelConfigFromEnv_InsecureOnlyForTrue(t *testing.T) {
	for raw, want := range map[string]bool{"true": true, "TRUE": false, "1": false, "": false} {
		clearOTelEnv(t)
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", raw)
		assert.Equal(t, want, OTelConfigFromEnv().Insecure, "value %q", raw)
	}
}

func TestSetupOTelSDK_ExportersDisabled(t *testing.T) {
	clearOTelEnv(t)
	ctx := context.Background()

	shutdown, err := SetupOTelSDK(ctx)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Shutdown may run from both the signal handler and a deferred call.
	assert.NoError(t, shutdown(ctx))
	assert.NoError(t, shutdown(ctx))
}

func TestSetupOTelSDKWithConfig_MinimalConfig(t *testing.T) {
	ctx := context.Background()
	shutdown, err := SetupOTelSDKWithConfig(ctx, OTelConfig{
		TracesExporter:  OTelExporterNone,
		MetricsExporter: OTelExporterNone,
		LogsExporter:    OTelExporterNone,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
}

func TestNewResource(t *testing.T) {
	for _, tc := range []struct{ name, version string }{
		{"lfx-v2-meeting-transcript-service", "1.0.0"},
		{"lfx-v2-meeting-transcript-service", ""},
		{"transcripts-ünïcode", "2.0.0-rc.1"},
	} {
		res, err := newResource(OTelConfig{ServiceName: tc.name, ServiceVersion: tc.version})
		require.NoError(t, err)

		attrs := map[string]string{}
		for _, attr := range res.Attributes() {
			attrs[string(attr.Key)] = attr.Value.Emit()
		}
		assert.Equal(t, tc.name, attrs["service.name"])
		if tc.version != "" {
			assert.Equal(t, tc.version, attrs["service.version"])
		}
	}
}

func TestNewPropagator(t *testing.T) {
	fields := newPropagator().Fields()
	for _, want := range []string{"traceparent", "tracestate", "baggage", "uber-trace-id"} {
		assert.Contains(t, fields, want)
	}
}
