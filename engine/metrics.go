package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/tilekit/observability"
)

// tileMetrics holds the run-level OpenTelemetry instruments.
type tileMetrics struct {
	processed     metric.Int64Counter
	written       metric.Int64Counter
	skipped       metric.Int64Counter
	batchDuration metric.Float64Histogram
}

func newTileMetrics() (*tileMetrics, error) {
	meter := observability.Meter("tilekit/engine")

	processed, err := meter.Int64Counter("tiles.processed",
		metric.WithDescription("Tiles computed by the user function or interpolation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles.processed counter: %w", err)
	}

	written, err := meter.Int64Counter("tiles.written",
		metric.WithDescription("Tiles persisted through the output driver"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles.written counter: %w", err)
	}

	skipped, err := meter.Int64Counter("tiles.skipped",
		metric.WithDescription("Tiles bypassed because output already exists"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles.skipped counter: %w", err)
	}

	batchDuration, err := meter.Float64Histogram("batch.duration",
		metric.WithDescription("Duration of one fully resolved batch in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch.duration histogram: %w", err)
	}

	return &tileMetrics{
		processed:     processed,
		written:       written,
		skipped:       skipped,
		batchDuration: batchDuration,
	}, nil
}

func (m *tileMetrics) recordInfo(ctx context.Context, zoom int, processed, written bool) {
	attrs := metric.WithAttributes(attribute.Int("zoom", zoom))
	if processed {
		m.processed.Add(ctx, 1, attrs)
	} else {
		m.skipped.Add(ctx, 1, attrs)
	}
	if written {
		m.written.Add(ctx, 1, attrs)
	}
}

func (m *tileMetrics) recordBatch(ctx context.Context, zoom int, d time.Duration) {
	m.batchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Int("zoom", zoom)))
}
