package metric

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

//metric common tag key
var (
	MetricKeyHostname  = NewMetricKey("hostname")
	MetricKeyOperation = NewMetricKey("operation")
	mKeys              = []tag.Key{MetricKeyHostname}
	MetricTagHostname  = tag.Insert(MetricKeyHostname, _resolveHostname())
	mTags              = make(map[*tag.Key]map[string]tag.Mutator)
	mtMtx              sync.Mutex
)

var (
	msOpCount   = stats.Int64("operation_count", "engine operation count", stats.UnitDimensionless)
	msOpFailure = stats.Int64("operation_failure", "failed engine operation count", stats.UnitDimensionless)
	msOpLatency = stats.Int64("operation_latency", "engine operation latency", stats.UnitMilliseconds)
)

func NewMetricKey(k string) tag.Key {
	key, err := tag.NewKey(k)
	if err != nil {
		log.Fatalf("Fail tag.NewKey %s %+v", k, err)
	}

	mTags[&key] = make(map[string]tag.Mutator)
	return key
}

func GetMetricTag(mk *tag.Key, v string) tag.Mutator {
	defer mtMtx.Unlock()
	mtMtx.Lock()

	m, ok := mTags[mk]
	if !ok {
		m = make(map[string]tag.Mutator)
		mTags[mk] = m
	}

	mt, ok := m[v]
	if !ok {
		mt = tag.Upsert(*mk, v)
		m[v] = mt
	}
	return mt
}

func NewMetricContext(operation string) context.Context {
	mtOp := GetMetricTag(&MetricKeyOperation, operation)
	ctx, err := tag.New(context.Background(), MetricTagHostname, mtOp)
	if err != nil {
		log.Fatalf("Fail tag.New %+v", err)
	}
	return ctx
}

func _resolveHostname() string {
	nodeName := os.Getenv("NODE_NAME")
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}
	return nodeName
}

// RecordOperation records one engine operation with its latency and
// outcome under the operation tag.
func RecordOperation(operation string, d time.Duration, err error) {
	ctx := NewMetricContext(operation)
	stats.Record(ctx, msOpCount.M(1), msOpLatency.M(d.Milliseconds()))
	if err != nil {
		stats.Record(ctx, msOpFailure.M(1))
	}
}

func registerViews() {
	opKeys := append(mKeys, MetricKeyOperation)
	err := view.Register(
		&view.View{
			Name:        msOpCount.Name(),
			Description: msOpCount.Description(),
			Measure:     msOpCount,
			Aggregation: view.Count(),
			TagKeys:     opKeys,
		},
		&view.View{
			Name:        msOpFailure.Name(),
			Description: msOpFailure.Description(),
			Measure:     msOpFailure,
			Aggregation: view.Count(),
			TagKeys:     opKeys,
		},
		&view.View{
			Name:        msOpLatency.Name(),
			Description: msOpLatency.Description(),
			Measure:     msOpLatency,
			Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000),
			TagKeys:     opKeys,
		},
	)
	if err != nil {
		log.Printf("Failed to register metric views: %+v", err)
	}
}

func PrometheusExporter() *prometheus.Exporter {
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "fyde",
	})
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %+v", err)
	}

	view.RegisterExporter(pe)
	view.SetReportingPeriod(1000 * time.Millisecond)

	registerViews()
	return pe
}
