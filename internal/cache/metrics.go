package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/subculture-collective/transcript-create-sub001/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"potoken.cache.operations",
			metric.WithDescription("Total token cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordOperation(operation, status string) {
	initMetrics()
	if cacheOperations == nil {
		return
	}
	cacheOperations.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.status", status),
		),
	)
}
