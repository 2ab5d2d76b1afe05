package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-checkout/logging"
)

var (
	// OpenTelemetry metrics
	PaymentCounter       metric.Int64Counter
	PaymentAmount        metric.Int64Histogram
	ExternalCallDuration metric.Float64Histogram
	HTTPServerDuration   metric.Float64Histogram
	OrdersSynced         metric.Int64Counter
)

// Until InitMeter runs the instruments hang off the global delegating meter,
// so code paths that record metrics are safe in tests.
func init() {
	if err := registerInstruments(otel.Meter("storefront-checkout")); err != nil {
		panic(err)
	}
}

// InitTracer exports spans over OTLP. Every span carries the service name and
// the payment environment (sandbox or production) it was recorded in.
func InitTracer(serviceName, environment, endpoint string) (*sdktrace.TracerProvider, trace.Tracer, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := newResource(ctx, serviceName, environment)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logging.Info("Tracing initialized",
		zap.String("service_name", serviceName),
		zap.String("environment", environment),
	)

	return tp, tp.Tracer(serviceName), nil
}

// InitMeter initializes OpenTelemetry metrics. Readings are pushed over OTLP
// and also exposed to prometheus through the default registerer.
func InitMeter(serviceName, environment, endpoint string) (*sdkmetric.MeterProvider, metric.Meter, error) {
	ctx := context.Background()

	res, err := newResource(ctx, serviceName, environment)
	if err != nil {
		return nil, nil, err
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	promExporter, err := otelprom.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	meter := mp.Meter(serviceName)

	if err := registerInstruments(meter); err != nil {
		return nil, nil, err
	}

	logging.Info("Metrics initialized", zap.String("endpoint", endpoint))

	return mp, meter, nil
}

func newResource(ctx context.Context, serviceName, environment string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
}

func registerInstruments(meter metric.Meter) error {
	var err error

	PaymentCounter, err = meter.Int64Counter(
		"payments_processed_total",
		metric.WithDescription("Total number of payment submissions by outcome"),
	)
	if err != nil {
		return err
	}

	PaymentAmount, err = meter.Int64Histogram(
		"payment_amount_minor_units",
		metric.WithDescription("Charged amounts in minor currency units"),
	)
	if err != nil {
		return err
	}

	ExternalCallDuration, err = meter.Float64Histogram(
		"payment_provider_duration_seconds",
		metric.WithDescription("Duration of payment provider calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	OrdersSynced, err = meter.Int64Counter(
		"orders_synced_total",
		metric.WithDescription("Provider orders inserted by reconciliation"),
	)
	return err
}
