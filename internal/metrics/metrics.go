package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	BatchesReceived prometheus.Counter
	BatchesMerged   prometheus.Counter
	BatchesEmpty    prometheus.Counter
	BatchesFailed   prometheus.Counter

	RowsDropped   prometheus.Counter
	RowsAdded     prometheus.Counter
	TripsExcluded prometheus.Counter
	LineConflicts prometheus.Counter

	StoreRows    prometheus.Gauge
	StoreVersion prometheus.Gauge
	QueueDepth   prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	MergeDuration   prometheus.Histogram
	QueryDuration   *prometheus.HistogramVec // route label
	PublishDuration prometheus.Histogram

	NodeThreshold prometheus.Gauge
}

func NewCollector(nodeThreshold int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		BatchesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_batches_received_total",
			Help: "Total raw batches handed to the pipeline.",
		}),
		BatchesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_batches_merged_total",
			Help: "Total batches merged into the canonical store.",
		}),
		BatchesEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_batches_empty_total",
			Help: "Total batches skipped for carrying no delay signal.",
		}),
		BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_batches_failed_total",
			Help: "Total batches whose merge failed.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_rows_dropped_total",
			Help: "Total malformed raw rows dropped by the normalizer.",
		}),
		RowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_rows_added_total",
			Help: "Total canonical rows appended to the store.",
		}),
		TripsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_trips_excluded_total",
			Help: "Total trips excluded by the line denylist.",
		}),
		LineConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_line_conflicts_total",
			Help: "Total trips carrying more than one canonical line guess.",
		}),
		StoreRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canon_store_rows",
			Help: "Rows in the canonical store after the last merge.",
		}),
		StoreVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canon_store_version",
			Help: "Store version after the last merge.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canon_ingest_queue_depth",
			Help: "Batches waiting for the ingest worker.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canon_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canon_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "canon_merge_duration_seconds",
			Help:    "Duration of one batch ingest, normalize through merge.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canon_query_duration_seconds",
			Help:    "Duration of HTTP query handlers.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"route"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "canon_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		NodeThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canon_node_threshold",
			Help: "Visit count a station must exceed to become a graph node.",
		}),
	}

	reg.MustRegister(
		c.BatchesReceived, c.BatchesMerged, c.BatchesEmpty, c.BatchesFailed,
		c.RowsDropped, c.RowsAdded, c.TripsExcluded, c.LineConflicts,
		c.StoreRows, c.StoreVersion, c.QueueDepth,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.MergeDuration, c.QueryDuration, c.PublishDuration,
		c.NodeThreshold,
	)

	c.NodeThreshold.Set(float64(nodeThreshold))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// The methods below let the pipeline, bus and api packages depend on small
// interfaces instead of the collector. All are safe on a nil receiver.

func (c *Collector) BatchReceived() {
	if c != nil {
		c.BatchesReceived.Inc()
	}
}

func (c *Collector) BatchEmpty() {
	if c != nil {
		c.BatchesEmpty.Inc()
	}
}

func (c *Collector) BatchFailed() {
	if c != nil {
		c.BatchesFailed.Inc()
	}
}

func (c *Collector) BatchMerged(added, rows int, version int64, d time.Duration) {
	if c == nil {
		return
	}
	c.BatchesMerged.Inc()
	c.RowsAdded.Add(float64(added))
	c.StoreRows.Set(float64(rows))
	c.StoreVersion.Set(float64(version))
	c.MergeDuration.Observe(d.Seconds())
}

func (c *Collector) Diagnostics(dropped, excluded, conflicts int) {
	if c == nil {
		return
	}
	c.RowsDropped.Add(float64(dropped))
	c.TripsExcluded.Add(float64(excluded))
	c.LineConflicts.Add(float64(conflicts))
}

func (c *Collector) SetQueueDepth(n int) {
	if c != nil {
		c.QueueDepth.Set(float64(n))
	}
}

func (c *Collector) QueryObserve(route string, d time.Duration) {
	if c != nil {
		c.QueryDuration.WithLabelValues(route).Observe(d.Seconds())
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
