package flatrag

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// sdkMetrics holds the collectors registered on a caller-supplied registerer.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retained   *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	operations, err := registerShared(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flatrag",
		Subsystem: "sdk",
		Name:      "operations_total",
		Help:      "SDK operations by operation and status.",
	}, []string{"operation", "status"}))
	if err != nil {
		return nil, err
	}
	duration, err := registerShared(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flatrag",
		Subsystem: "sdk",
		Name:      "operation_duration_seconds",
		Help:      "SDK operation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	retained, err := registerShared(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flatrag",
		Subsystem: "sdk",
		Name:      "retained_chunks",
		Help:      "Chunks returned by search and query after filters, cap and thresholds.",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	return &sdkMetrics{operations: operations, duration: duration, retained: retained}, nil
}

// registerShared registers c, or returns the collector a previous client already registered under the same name.
func registerShared[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("flatrag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("flatrag: metric registered with type %T", are.ExistingCollector)
	}
	return existing, nil
}

// observer logs and measures SDK operations. Either half may be absent.
type observer struct {
	logger  *zap.Logger
	metrics *sdkMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// span tracks one SDK call against a topic.
type span struct {
	obs      *observer
	op       string
	topic    string
	start    time.Time
	chunks   int
	counting bool
}

func (o *observer) start(op, topic string) *span {
	return &span{obs: o, op: op, topic: topic, start: time.Now()}
}

// retained records how many chunks the call returned.
func (s *span) retained(n int) {
	s.chunks, s.counting = n, true
}

// end closes the span with the call's outcome. Use as `defer sp.end(&err)`.
func (s *span) end(errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	dur := time.Since(s.start)

	if m := s.obs.metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.operations.WithLabelValues(s.op, status).Inc()
		m.duration.WithLabelValues(s.op).Observe(dur.Seconds())
		if s.counting && err == nil {
			m.retained.WithLabelValues(s.op).Observe(float64(s.chunks))
		}
	}

	l := s.obs.logger
	if l == nil {
		return
	}
	fields := []zap.Field{
		zap.String("op", s.op),
		zap.String("topic", s.topic),
		zap.Duration("duration", dur),
	}
	if err != nil {
		l.Warn("flatrag call failed", append(fields, zap.Error(err))...)
		return
	}
	if s.counting {
		fields = append(fields, zap.Int("chunks", s.chunks))
	}
	l.Debug("flatrag call completed", fields...)
}
