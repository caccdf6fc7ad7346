package telemetry

import (
	"context"
	"testing"

	"github.com/jacksonlee411/authhooks/internal/config"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	for _, cfg := range []config.OTelConfig{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://192.0.2.1:4318"},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("cfg=%+v err=%v", cfg, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := shutdown(ctx); err != nil {
			t.Fatalf("noop shutdown: %v", err)
		}
	}
}

func TestSetup_CreatesProvider(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), config.OTelConfig{Enabled: true, Endpoint: "http://192.0.2.1:4318"})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
