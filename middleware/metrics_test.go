package middleware_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsDurationAndCount(t *testing.T) {
	reader, mp := setupTestMeter()
	m := middleware.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newStepInfo(), func(context.Context) saga.Result[any] {
		return saga.Ok[any](nil)
	})

	rm := collectMetrics(t, reader)
	if findMetric(rm, "saga.step.duration") == nil {
		t.Error("saga.step.duration not recorded")
	}

	execs := findMetric(rm, "saga.step.executions")
	if execs == nil {
		t.Fatal("saga.step.executions not recorded")
	}
	sum, ok := execs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("executions data type = %T, want Sum[int64]", execs.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("executions data points = %+v, want single point of 1", sum.DataPoints)
	}
}

func TestMetrics_StatusAttribute(t *testing.T) {
	reader, mp := setupTestMeter()
	m := middleware.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newStepInfo(), func(context.Context) saga.Result[any] {
		return saga.Errf[any](saga.KindUnavailable, "down")
	})

	rm := collectMetrics(t, reader)
	execs := findMetric(rm, "saga.step.executions")
	if execs == nil {
		t.Fatal("saga.step.executions not recorded")
	}
	sum := execs.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(sum.DataPoints))
	}
	status, ok := sum.DataPoints[0].Attributes.Value("status")
	if !ok || status.AsString() != "error" {
		t.Errorf("status attribute = %v, want error", status)
	}
}
