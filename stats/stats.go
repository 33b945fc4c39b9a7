// Package stats implements per-node request/cache counters exposed over
// Prometheus (§4.10's "ambient" node observability, not named by spec.md
// but carried regardless per this module's ambient-stack convention).
// Grounded on the teacher's stats package: a fixed metric-name vocabulary
// registered once at node startup, incremented from the request path.
// Unlike the teacher's own StatsD/Graphite-capable Trunner/Prunner (which
// batches and periodically flushes named counters through a custom
// client), this module registers plain prometheus.Collectors directly —
// Prometheus is pull-based, so there is nothing to batch or flush, and
// re-deriving the teacher's push-interval machinery here would just be
// unused code.
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Naming follows the teacher's "kind.n"/"kind.ns"/"kind.size" convention
// (stats/target_stats.go), translated to Prometheus's underscore style.
const namespace = "hsds"

// Registry is one node's metric set. A nil *Registry is valid and every
// method on it is a no-op, so callers that don't wire stats (tests, or a
// caller handed a nil *Registry) never need a nil check of their own.
type Registry struct {
	requests     *prometheus.CounterVec
	requestNs    *prometheus.HistogramVec
	chunkReads   prometheus.Counter
	chunkWrites  prometheus.Counter
	chunkMisses  prometheus.Counter
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
}

// New registers role's metric set (role is "headnode"/"servicenode"/
// "datanode") against a fresh registry and returns it alongside an
// http.Handler serving /metrics (§4.10).
func New(role string) (*Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   role,
			Name:        "requests_total",
			Help:        "HTTP requests handled, by method and status class.",
			ConstLabels: prometheus.Labels{"role": role},
		}, []string{"method", "status"}),
		requestNs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   role,
			Name:        "request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: prometheus.Labels{"role": role},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
		chunkReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "chunk_reads_total",
			Help: "Chunk GETs served.",
		}),
		chunkWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "chunk_writes_total",
			Help: "Chunk PUTs served.",
		}),
		chunkMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "chunk_fill_misses_total",
			Help: "Chunk GETs that fell back to the dataset fill value (§4.6 step 5).",
		}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "cache_hits_total",
			Help: "Cache lookups served without a store round-trip, by cache.",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "cache_misses_total",
			Help: "Cache lookups that required a store round-trip, by cache.",
		}, []string{"cache"}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "bytes_read_total",
			Help: "Chunk payload bytes read.",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: role, Name: "bytes_written_total",
			Help: "Chunk payload bytes written.",
		}),
	}
	return r, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveRequest(method, statusClass string, seconds float64) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, statusClass).Inc()
	r.requestNs.WithLabelValues(method).Observe(seconds)
}

func (r *Registry) ChunkRead(bytes int)  { r.addChunkIO(r.chunkReads, &r.bytesRead, bytes) }
func (r *Registry) ChunkWrite(bytes int) { r.addChunkIO(r.chunkWrites, &r.bytesWritten, bytes) }

func (r *Registry) ChunkFillMiss() {
	if r == nil {
		return
	}
	r.chunkMisses.Inc()
}

func (r *Registry) CacheHit(cache string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(cache).Inc()
}

func (r *Registry) CacheMiss(cache string) {
	if r == nil {
		return
	}
	r.cacheMisses.WithLabelValues(cache).Inc()
}

func (r *Registry) addChunkIO(count prometheus.Counter, bytesCounter *prometheus.Counter, n int) {
	if r == nil {
		return
	}
	count.Inc()
	(*bytesCounter).Add(float64(n))
}
