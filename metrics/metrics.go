package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/rollover"
)

// Options configures the collectors.
type Options struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Namespace  string
	Buckets    []float64
}

// Recorder holds every collector of the service. It observes the duty core
// and the rollover scheduler, and instruments HTTP requests.
type Recorder struct {
	ClockIns     prometheus.Counter
	ClockOuts    prometheus.Counter
	DutySeconds  prometheus.Counter
	OnDuty       prometheus.Gauge
	Adjustments  *prometheus.CounterVec
	RolloverRuns *prometheus.CounterVec
	RolloverRows prometheus.Gauge

	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge

	gatherer prometheus.Gatherer
}

var (
	_ duty.Observer     = (*Recorder)(nil)
	_ rollover.Observer = (*Recorder)(nil)
)

// New constructs the collectors and registers them. Collectors that are
// already registered are reused.
func New(opts Options) (*Recorder, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "duty"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	r := &Recorder{gatherer: gatherer}
	var err error

	if r.ClockIns, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sessions", Name: "clock_ins_total",
		Help: "Total number of successful clock-ins.",
	})); err != nil {
		return nil, err
	}
	if r.ClockOuts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sessions", Name: "clock_outs_total",
		Help: "Total number of completed sessions.",
	})); err != nil {
		return nil, err
	}
	if r.DutySeconds, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sessions", Name: "duty_seconds_total",
		Help: "Total rounded seconds recorded by completed sessions.",
	})); err != nil {
		return nil, err
	}
	if r.OnDuty, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "sessions", Name: "on_duty",
		Help: "Number of people clocked in, as seen by this process.",
	})); err != nil {
		return nil, err
	}
	if r.Adjustments, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ledger", Name: "adjustments_total",
		Help: "Total number of admin adjustments partitioned by direction.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if r.RolloverRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "rollover", Name: "runs_total",
		Help: "Total number of month rollover runs partitioned by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if r.RolloverRows, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "rollover", Name: "last_rows",
		Help: "Number of people in the last delivered month report.",
	})); err != nil {
		return nil, err
	}
	if r.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if r.Duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets: buckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if r.InFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
		Help: "Current number of in-flight HTTP requests.",
	})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// =============================================================================
// OBSERVERS
// =============================================================================

func (r *Recorder) ClockedIn(string) {
	r.ClockIns.Inc()
	r.OnDuty.Inc()
}

func (r *Recorder) ClockedOut(_ string, durationSeconds int64) {
	r.ClockOuts.Inc()
	r.OnDuty.Dec()
	if durationSeconds > 0 {
		r.DutySeconds.Add(float64(durationSeconds))
	}
}

func (r *Recorder) Adjusted(_ string, secondsDelta int64) {
	direction := "add"
	if secondsDelta < 0 {
		direction = "remove"
	}
	r.Adjustments.WithLabelValues(direction).Inc()
}

func (r *Recorder) RolloverCompleted(rows int) {
	r.RolloverRuns.WithLabelValues("success").Inc()
	r.RolloverRows.Set(float64(rows))
}

func (r *Recorder) RolloverFailed() {
	r.RolloverRuns.WithLabelValues("failure").Inc()
}

// SetOnDuty resets the on-duty gauge, e.g. from the store's roster at startup.
func (r *Recorder) SetOnDuty(n int) {
	r.OnDuty.Set(float64(n))
}

// =============================================================================
// HTTP
// =============================================================================

// Middleware records request count, latency and in-flight requests, labelled
// by the matched chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		r.InFlight.Inc()
		defer r.InFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := req.URL.Path
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": req.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		r.Requests.With(labels).Inc()
		r.Duration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registered collectors in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
