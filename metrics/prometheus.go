package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider backs Provider with real Prometheus collectors
// registered against a caller-supplied *prometheus.Registry. Unlike
// BasicProvider, instrument values are not readable back from Go; they are
// scraped the usual Prometheus way.
type PrometheusProvider struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	updowns    map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusProvider constructs a Provider backed by reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer's registry to expose instruments on the
// process-wide /metrics endpoint.
func NewPrometheusProvider(reg *prometheus.Registry) *PrometheusProvider {
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		updowns:    make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func attrLabels(attrs map[string]string) ([]string, prometheus.Labels) {
	if len(attrs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(attrs))
	labels := make(prometheus.Labels, len(attrs))
	for k, v := range attrs {
		names = append(names, k)
		labels[k] = v
	}
	return names, labels
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	names, labels := attrLabels(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	cv, ok := p.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: cfg.Description}, names)
		p.reg.MustRegister(cv)
		p.counters[name] = cv
	}
	return promCounter{cv.With(labels)}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	names, labels := attrLabels(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	gv, ok := p.updowns[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: cfg.Description}, names)
		p.reg.MustRegister(gv)
		p.updowns[name] = gv
	}
	return promUpDownCounter{gv.With(labels)}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	names, labels := attrLabels(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	hv, ok := p.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: cfg.Description}, names)
		p.reg.MustRegister(hv)
		p.histograms[name] = hv
	}
	return promHistogram{hv.With(labels)}
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Add(n int64) { p.c.Add(float64(n)) }

type promUpDownCounter struct{ g prometheus.Gauge }

func (p promUpDownCounter) Add(n int64) { p.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Observer }

func (p promHistogram) Record(v float64) { p.h.Observe(v) }
