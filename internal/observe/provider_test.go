package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestDeploymentResource(t *testing.T) {
	tests := []struct {
		name         string
		cfg          ProviderConfig
		receptionist string
		business     string
	}{
		{"receptionist", ProviderConfig{ServiceName: "frontdesk", Receptionist: "Maya", Business: "Glamour Salon"}, "Maya", "Glamour Salon"},
		{"anonymous", ProviderConfig{ServiceName: "frontdesk"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := deploymentResource(tt.cfg)
			if err != nil {
				t.Fatalf("deploymentResource: %v", err)
			}
			set := res.Set()
			for key, want := range map[attribute.Key]string{ReceptionistKey: tt.receptionist, BusinessKey: tt.business} {
				v, ok := set.Value(key)
				if ok != (want != "") || v.AsString() != want {
					t.Errorf("%s = %q (present %v), want %q", key, v.AsString(), ok, want)
				}
			}
			if v, _ := set.Value("service.name"); v.AsString() != "frontdesk" {
				t.Errorf("service.name = %q", v.AsString())
			}
		})
	}
}

// InitProvider replaces the global providers, so this test restores them and
// must not run in parallel.
func TestInitProvider_ExportsCallMetrics(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Receptionist:   "Maya",
		Business:       "Glamour Salon",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	calls, err := otel.Meter(tracerName).Int64Counter("frontdesk.test.calls")
	if err != nil {
		t.Fatal(err)
	}
	calls.Add(context.Background(), 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawCalls bool
	business := ""
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "frontdesk_test_calls") {
			sawCalls = true
		}
		if mf.GetName() != "target_info" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "frontdesk_business" {
					business = l.GetValue()
				}
			}
		}
	}
	if !sawCalls {
		t.Error("call counter not exported to the registry")
	}
	if business != "Glamour Salon" {
		t.Errorf("target_info frontdesk_business = %q", business)
	}
}
