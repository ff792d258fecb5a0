package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinumlabs/encbench/internal/queue"
)

// queueCollector surfaces the retry queue's current state at scrape time,
// so a fleet dashboard can spot machines accumulating undelivered results.
type queueCollector struct {
	store  queue.Store
	logger *slog.Logger

	depthDesc *prometheus.Desc
	bytesDesc *prometheus.Desc
}

func newQueueCollector(store queue.Store, logger *slog.Logger) *queueCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &queueCollector{
		store:  store,
		logger: logger,
		depthDesc: prometheus.NewDesc(
			"encbench_queue_depth",
			"Number of results waiting in the retry queue.",
			nil,
			nil,
		),
		bytesDesc: prometheus.NewDesc(
			"encbench_queue_bytes",
			"Total payload bytes waiting in the retry queue.",
			nil,
			nil,
		),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depthDesc
	ch <- c.bytesDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	if c.store == nil {
		return
	}

	// Keep store reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	items, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn("prometheus queue collector failed", "err", err)
		return
	}

	var bytes int64
	for _, it := range items {
		bytes += int64(len(it.Payload))
	}
	emitGauge(ch, c.depthDesc, float64(len(items)))
	emitGauge(ch, c.bytesDesc, float64(bytes))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerQueueCollectorOnce sync.Once

func RegisterQueueCollector(store queue.Store, logger *slog.Logger) {
	registerQueueCollectorOnce.Do(func() {
		prometheus.MustRegister(newQueueCollector(store, logger))
	})
}
