// Package telemetry installs the global OpenTelemetry meter provider and
// exposes it to Prometheus.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

// Setup installs a meter provider for serviceName. The returned handler
// serves /metrics; it is nil when the Prometheus exporter could not be
// created, in which case metrics are still recorded but not exported.
func Setup(serviceName string, log *zap.Logger) (shutdown func(context.Context) error, handler http.Handler, err error) {
	if log == nil {
		log = zap.NewNop()
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	var provider *sdkmetric.MeterProvider
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to initialize prometheus exporter", zap.Error(err))
		provider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	} else {
		provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		handler = promhttp.Handler()
	}
	otel.SetMeterProvider(provider)

	log.Info("telemetry initialized", zap.String("service", serviceName), zap.Bool("prometheus", handler != nil))
	return provider.Shutdown, handler, nil
}
