package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the coordinator's OTel instruments. Instrument creation
// errors leave nil instruments; recording on them is a no-op via the
// nil-safe helpers below.
type metrics struct {
	batches       metric.Int64Counter
	itemsDone     metric.Int64Counter
	itemsFailed   metric.Int64Counter
	batchDuration metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/thebtf/ecotrace/internal/coordinator")

	m := &metrics{}
	m.batches, _ = meter.Int64Counter("ecotrace.batches",
		metric.WithDescription("Assessment batches processed"))
	m.itemsDone, _ = meter.Int64Counter("ecotrace.items.completed",
		metric.WithDescription("Item pipelines completed successfully"))
	m.itemsFailed, _ = meter.Int64Counter("ecotrace.items.failed",
		metric.WithDescription("Item pipelines that failed and were dropped"))
	m.batchDuration, _ = meter.Float64Histogram("ecotrace.batch.duration",
		metric.WithDescription("Batch processing duration"),
		metric.WithUnit("s"))
	return m
}

func (m *metrics) recordBatch(ctx context.Context, start time.Time, itemCount int) {
	if m.batches != nil {
		m.batches.Add(ctx, 1, metric.WithAttributes(attribute.Int("items", itemCount)))
	}
	if m.batchDuration != nil {
		m.batchDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (m *metrics) recordItemDone(ctx context.Context, category string) {
	if m.itemsDone != nil {
		m.itemsDone.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

func (m *metrics) recordItemFailed(ctx context.Context) {
	if m.itemsFailed != nil {
		m.itemsFailed.Add(ctx, 1)
	}
}
