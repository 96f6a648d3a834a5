package hulybridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/pslog"
)

const serviceName = "hulybridge"

type telemetryBundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
	metricsLn      net.Listener
	pprofServer    *http.Server
	pprofLn        net.Listener
	logger         pslog.Logger
}

type otelErrorHandler struct {
	logger pslog.Logger
}

func (h otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	if strings.Contains(err.Error(), "waiting for connections to become ready") {
		h.logger.Debug("telemetry.exporter.retry", "error", err)
		return
	}
	h.logger.Warn("telemetry.exporter.error", "error", err)
}

// MeterProvider returns the Prometheus-backed provider, or nil when metrics are off.
func (t *telemetryBundle) MeterProvider() metric.MeterProvider {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	return t.meterProvider
}

func (t *telemetryBundle) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	fail := func(event, what string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		t.logger.Warn(event, "error", err)
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			fail("telemetry.shutdown.metric_failure", "metric shutdown", err)
		}
	}
	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail("telemetry.shutdown.metrics_server_failure", "metrics server shutdown", err)
		}
		_ = t.metricsLn.Close()
	}
	if t.pprofServer != nil {
		if err := t.pprofServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail("telemetry.shutdown.pprof_server_failure", "pprof server shutdown", err)
		}
		_ = t.pprofLn.Close()
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			fail("telemetry.shutdown.trace_failure", "trace shutdown", err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	t.logger.Info("telemetry.shutdown.complete")
	return nil
}

type otlpTarget struct {
	protocol string // "grpc" or "http"
	endpoint string // host:port
	path     string
	insecure bool
}

var runtimeMetricsOnce sync.Once
var runtimeMetricsErr error

// setupTelemetry starts tracing, metrics and pprof as configured. It returns
// nil when all of them are disabled.
func setupTelemetry(ctx context.Context, cfg Config, logger pslog.Logger) (*telemetryBundle, error) {
	if cfg.OTLPEndpoint == "" && cfg.MetricsListen == "" && cfg.PprofListen == "" && !cfg.EnableProfilingMetrics {
		return nil, nil
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if cfg.EnableProfilingMetrics && cfg.MetricsListen == "" {
		return nil, fmt.Errorf("telemetry: profiling metrics require metrics listen address")
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.Current()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	bundle := &telemetryBundle{logger: logger}
	abort := func(err error) (*telemetryBundle, error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bundle.Shutdown(shutdownCtx)
		return nil, err
	}

	if cfg.OTLPEndpoint != "" {
		target, err := resolveOTLPTarget(cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		switch target.protocol {
		case "grpc":
			bundle.tracerProvider, err = setupGRPCTracing(ctx, target, res)
		case "http":
			bundle.tracerProvider, err = setupHTTPTracing(ctx, target, res)
		default:
			err = fmt.Errorf("telemetry: unsupported protocol %q", target.protocol)
		}
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(bundle.tracerProvider)
		logger.Info("telemetry.tracing.enabled",
			"protocol", target.protocol,
			"endpoint", target.endpoint,
			"path", target.path,
			"insecure", target.insecure,
		)
	}

	if cfg.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		exporterOpts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
		if cfg.EnableProfilingMetrics {
			exporterOpts = append(exporterOpts, otelprometheus.WithProducer(otelruntime.NewProducer()))
		}
		exporter, err := otelprometheus.New(exporterOpts...)
		if err != nil {
			return abort(fmt.Errorf("telemetry: start prometheus exporter: %w", err))
		}
		bundle.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(bundle.meterProvider)
		if cfg.EnableProfilingMetrics {
			if err := startRuntimeMetricsWithProvider(bundle.meterProvider); err != nil {
				return abort(err)
			}
			logger.Info("profiling.metrics.enabled")
		}
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		bundle.metricsServer, bundle.metricsLn, err = startMetricsServer(cfg.MetricsListen, handler, logger)
		if err != nil {
			return abort(err)
		}
		logger.Info("telemetry.metrics.enabled", "listen", bundle.metricsLn.Addr().String())
	}

	if cfg.PprofListen != "" {
		bundle.pprofServer, bundle.pprofLn, err = startPprofServer(cfg.PprofListen, logger)
		if err != nil {
			return abort(err)
		}
		logger.Info("profiling.pprof.enabled", "listen", bundle.pprofLn.Addr().String())
	}

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	otel.SetErrorHandler(otelErrorHandler{logger: logger})
	return bundle, nil
}

func setupGRPCTracing(ctx context.Context, target otlpTarget, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	traceOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(target.endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
	}
	if target.insecure {
		traceOpts = append(traceOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	} else {
		tlsConfig := credentials.NewClientTLSFromCert(nil, "")
		traceOpts = append(traceOpts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(tlsConfig)))
	}
	exporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter (grpc): %w", err)
	}
	return newTracerProvider(exporter, res), nil
}

func setupHTTPTracing(ctx context.Context, target otlpTarget, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if target.insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	if target.path != "" && target.path != "/" {
		traceOpts = append(traceOpts, otlptracehttp.WithURLPath(target.path))
	}
	exporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter (http): %w", err)
	}
	return newTracerProvider(exporter, res), nil
}

func newTracerProvider(exporter sdktrace.SpanExporter, res *resource.Resource) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1.0))),
		sdktrace.WithBatcher(exporter),
	)
}

func startMetricsServer(addr string, handler http.Handler, logger pslog.Logger) (*http.Server, net.Listener, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return serveDebug(addr, mux, "telemetry: metrics listen", "telemetry.metrics.serve_error", logger)
}

func startPprofServer(addr string, logger pslog.Logger) (*http.Server, net.Listener, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return serveDebug(addr, mux, "profiling: pprof listen", "profiling.pprof.serve_error", logger)
}

func serveDebug(addr string, handler http.Handler, listenErr, serveEvent string, logger pslog.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", listenErr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(serveEvent, "error", err)
		}
	}()
	return srv, ln, nil
}

func startRuntimeMetricsWithProvider(provider metric.MeterProvider) error {
	if provider == nil {
		return fmt.Errorf("profiling: meter provider unavailable")
	}
	runtimeMetricsOnce.Do(func() {
		runtimeMetricsErr = otelruntime.Start(otelruntime.WithMeterProvider(provider))
	})
	return runtimeMetricsErr
}

// resolveOTLPTarget accepts host[:port] (insecure grpc) or a grpc, grpcs,
// http or https URL. Missing ports default to 4317 for grpc and 4318 for http.
func resolveOTLPTarget(raw string) (otlpTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		return otlpTarget{protocol: "grpc", endpoint: withDefaultPort(raw, "4317"), insecure: true}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	host := u.Host
	if host == "" {
		host = u.Path
		u.Path = ""
	}
	if host == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: missing endpoint host")
	}
	target := otlpTarget{path: strings.TrimSuffix(u.Path, "/")}
	switch strings.ToLower(u.Scheme) {
	case "grpc", "grpcs":
		target.protocol = "grpc"
		target.endpoint = withDefaultPort(host, "4317")
	case "http", "https":
		target.protocol = "http"
		target.endpoint = withDefaultPort(host, "4318")
	default:
		return otlpTarget{}, fmt.Errorf("telemetry: unknown scheme %q", u.Scheme)
	}
	target.insecure = !strings.HasSuffix(strings.ToLower(u.Scheme), "s")
	return target, nil
}

func withDefaultPort(host, port string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return net.JoinHostPort(host, port)
}
