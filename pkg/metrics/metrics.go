// Package metrics exposes prometheus counters and gauges for the node
// over a small fasthttp server, grounded on the proof-of-concept health
// server pattern: minimal timeouts, no routing framework, just a
// request-path switch.
package metrics

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry groups every metric the node emits.
type Registry struct {
	OpsTotal        *prometheus.CounterVec
	StorageQueueLen prometheus.GaugeFunc
	LogQueueLen     prometheus.GaugeFunc
	LogWritesTotal  prometheus.Counter
	ReplayedTotal   prometheus.Counter
}

// NewRegistry constructs and registers every metric against its own
// prometheus.Registry (not the global default, so tests can construct
// more than one Registry without collector-already-registered panics).
// storageQueueLen and logQueueLen are polled lazily at scrape time.
func NewRegistry(storageQueueLen, logQueueLen func() float64) (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	r := &Registry{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvnode_ops_total",
			Help: "Total number of commands dispatched, by command name.",
		}, []string{"command"}),
		LogWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvnode_log_writes_total",
			Help: "Total number of records appended to the transaction log.",
		}),
		ReplayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvnode_log_replayed_total",
			Help: "Total number of records successfully replayed at startup.",
		}),
	}
	if storageQueueLen != nil {
		r.StorageQueueLen = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kvnode_storage_queue_depth",
			Help: "Current depth of the storage engine's request queue.",
		}, storageQueueLen)
	}
	if logQueueLen != nil {
		r.LogQueueLen = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kvnode_log_queue_depth",
			Help: "Current depth of the transaction log writer's intake queue.",
		}, logQueueLen)
	}

	reg.MustRegister(r.OpsTotal, r.LogWritesTotal, r.ReplayedTotal)
	if r.StorageQueueLen != nil {
		reg.MustRegister(r.StorageQueueLen)
	}
	if r.LogQueueLen != nil {
		reg.MustRegister(r.LogQueueLen)
	}
	return r, reg
}

// Server exposes /metrics and /healthz over fasthttp.
type Server struct {
	addr string
	reg  *prometheus.Registry
	log  *slog.Logger
	srv  *fasthttp.Server
}

func NewServer(addr string, reg *prometheus.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &Server{addr: addr, reg: reg, log: log}
	s.srv = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/healthz", "/health":
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBodyString("ok")
			case "/metrics":
				handler(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
		MaxRequestBodySize: 1 << 20,
	}
	return s
}

// Run listens and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe(s.addr) }()

	select {
	case <-ctx.Done():
		return s.srv.Shutdown()
	case err := <-errCh:
		return err
	}
}
