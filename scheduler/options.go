package scheduler

import "github.com/ygrebnov/medley/metrics"

type options struct {
	highBuffer    uint
	defaultBuffer uint
	metrics       metrics.Provider
}

// Option configures a Scheduler.
type Option func(*options)

// WithHighBuffer sets the high-priority band's channel buffer size.
func WithHighBuffer(n uint) Option { return func(o *options) { o.highBuffer = n } }

// WithDefaultBuffer sets the default-priority band's channel buffer size.
func WithDefaultBuffer(n uint) Option { return func(o *options) { o.defaultBuffer = n } }

// WithMetrics sets the metrics.Provider instruments are created from.
func WithMetrics(p metrics.Provider) Option {
	return func(o *options) {
		if p != nil {
			o.metrics = p
		}
	}
}
