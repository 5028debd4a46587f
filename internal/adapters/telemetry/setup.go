package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"
)

// Options selects the exporters installed by Setup.
type Options struct {
	// TraceOutput receives finished spans as JSON when non-nil.
	TraceOutput io.Writer
	// Prometheus registers metrics with a Prometheus registry served by Handler.
	Prometheus bool
}

// Provider owns the SDK providers installed as the global OpenTelemetry providers.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	registry *prom.Registry
}

// Setup installs global tracer and meter providers. Tracers and meters obtained
// from the otel package before Setup delegate to the new providers.
func Setup(_ context.Context, opts Options) (*Provider, error) {
	p := &Provider{}

	if opts.TraceOutput != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceOutput))
		if err != nil {
			return nil, zerr.Wrap(err, "failed to create trace exporter")
		}
		p.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		otel.SetTracerProvider(p.tp)
	}

	if opts.Prometheus {
		p.registry = prom.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(p.registry))
		if err != nil {
			return nil, zerr.Wrap(err, "failed to create prometheus exporter")
		}
		p.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
		otel.SetMeterProvider(p.mp)
	}

	return p, nil
}

// Handler serves the Prometheus registry. It returns 404 when Prometheus is disabled.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the installed providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs error
	if p.tp != nil {
		errs = errors.Join(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = errors.Join(errs, p.mp.Shutdown(ctx))
	}
	return errs
}
