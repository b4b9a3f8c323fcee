// Package metrics exposes client-side counters for connection and RPC
// activity. A Collector is optional everywhere; Noop() discards everything.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures client runtime events.
type Collector interface {
	IncConnectAttempt(result string)
	IncAcquire(cache string)
	IncRPC(method, code string)
	IncStreamMessage(method string)
}

// Connect results and cache outcomes used as label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	CacheHit      = "hit"
	CacheMiss     = "miss"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncConnectAttempt(string) {}
func (noopCollector) IncAcquire(string)        {}
func (noopCollector) IncRPC(string, string)    {}
func (noopCollector) IncStreamMessage(string)  {}

// PrometheusCollector exposes the counters via Prometheus.
type PrometheusCollector struct {
	connectAttempts *prometheus.CounterVec
	acquisitions    *prometheus.CounterVec
	rpcs            *prometheus.CounterVec
	streamMessages  *prometheus.CounterVec
}

// NewPrometheusCollector registers the counters with reg, or with the
// default registerer when reg is nil. Counters already registered under the
// same name are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	connectAttempts, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "tempo_client_connect_attempts_total",
		Help: "Connection attempts to the Tempo server by result.",
	}, []string{"result"})
	if err != nil {
		return nil, err
	}
	acquisitions, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "tempo_client_handle_acquisitions_total",
		Help: "Handle acquisitions by cache outcome.",
	}, []string{"cache"})
	if err != nil {
		return nil, err
	}
	rpcs, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "tempo_client_rpcs_total",
		Help: "Completed client RPCs by method and status code.",
	}, []string{"method", "code"})
	if err != nil {
		return nil, err
	}
	streamMessages, err := registerCounter(reg, prometheus.CounterOpts{
		Name: "tempo_client_stream_messages_total",
		Help: "Messages received on server streams by method.",
	}, []string{"method"})
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		connectAttempts: connectAttempts,
		acquisitions:    acquisitions,
		rpcs:            rpcs,
		streamMessages:  streamMessages,
	}, nil
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// IncConnectAttempt counts one connection attempt.
func (c *PrometheusCollector) IncConnectAttempt(result string) {
	c.connectAttempts.WithLabelValues(result).Inc()
}

// IncAcquire counts one handle acquisition.
func (c *PrometheusCollector) IncAcquire(cache string) {
	c.acquisitions.WithLabelValues(cache).Inc()
}

// IncRPC counts one completed RPC.
func (c *PrometheusCollector) IncRPC(method, code string) {
	c.rpcs.WithLabelValues(method, code).Inc()
}

// IncStreamMessage counts one received stream message.
func (c *PrometheusCollector) IncStreamMessage(method string) {
	c.streamMessages.WithLabelValues(method).Inc()
}
