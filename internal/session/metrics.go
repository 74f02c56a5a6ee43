package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/ayusman/mudra/internal/session"

type metrics struct {
	processed metric.Int64Counter
	coalesced metric.Int64Counter
	discarded metric.Int64Counter
	letters   metric.Int64Counter
	words     metric.Int64Counter
}

// newMetrics creates the session counters on the global meter provider.
// Instruments that fail to register fall back to no-ops.
func newMetrics(log *zap.Logger) *metrics {
	meter := otel.Meter(meterName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn("failed to initialize metric", zap.String("metric", name), zap.Error(err))
		}
		return c
	}

	return &metrics{
		processed: counter("mudra.frames.processed", "Frames that completed a frame pass"),
		coalesced: counter("mudra.frames.coalesced", "Frames replaced in the inbox before inference took them"),
		discarded: counter("mudra.results.discarded", "Inference results dropped because capture stopped"),
		letters:   counter("mudra.letters.confirmed", "Letters confirmed by the stabilizer"),
		words:     counter("mudra.words.committed", "Words committed to the sentence"),
	}
}

func (m *metrics) inc(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}
