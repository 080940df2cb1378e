package otel

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/store/memstore"
)

func testEngine(t *testing.T) *authcore.Engine {
	t.Helper()
	cfg := authcore.DefaultConfig()
	cfg.Token.AccessSecret = []byte("a-secret")
	cfg.Token.RefreshSecret = []byte("r-secret")
	engine, err := authcore.New().
		WithConfig(cfg).
		WithAccountProvider(memstore.New()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return engine
}

func TestNewRegistersAllCounters(t *testing.T) {
	exporter, err := New(noop.NewMeterProvider().Meter("test"), testEngine(t))
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if len(exporter.counters) != len(authcore.MetricIDs()) {
		t.Fatalf("registered %d counters, want %d", len(exporter.counters), len(authcore.MetricIDs()))
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	if _, err := New(nil, testEngine(t)); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("nil meter: got %v", err)
	}
	if _, err := New(noop.NewMeterProvider().Meter("test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source: got %v", err)
	}
}

func TestCloseOnNilExporter(t *testing.T) {
	var exporter *Exporter
	if err := exporter.Close(); err != nil {
		t.Fatalf("nil exporter close: %v", err)
	}
}
