package broadcast

import (
	"context"
	"time"
)

// DefaultInterval is the metrics push period.
const DefaultInterval = 500 * time.Millisecond

// MetricsFeed tracks metric stream subscribers. Each subscriber runs its own
// ticker inside Run; Notify asks all of them for an immediate push.
type MetricsFeed struct {
	subs *Registry[*metricsSub]
}

type metricsSub struct {
	kick chan struct{}
}

// NewMetricsFeed returns an empty feed.
func NewMetricsFeed() *MetricsFeed {
	return &MetricsFeed{subs: NewRegistry[*metricsSub]()}
}

// Subscribers is the number of running feeds.
func (f *MetricsFeed) Subscribers() int { return f.subs.Len() }

// Notify triggers an out-of-band snapshot for every subscriber.
func (f *MetricsFeed) Notify() {
	for _, s := range f.subs.Snapshot() {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Run registers a subscriber and sends snapshot() right away and then every
// interval until send fails or ctx ends. The subscriber is deregistered on
// return. It returns the send error, or nil when ctx ended.
func (f *MetricsFeed) Run(ctx context.Context, interval time.Duration, snapshot func(context.Context) any, send func(any) error) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &metricsSub{kick: make(chan struct{}, 1)}
	id := f.subs.Add(s)
	subscribersGauge.WithLabelValues("metrics").Inc()
	defer func() {
		f.subs.Remove(id)
		subscribersGauge.WithLabelValues("metrics").Dec()
	}()

	if err := send(snapshot(ctx)); err != nil {
		return err
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case <-s.kick:
		}
		if err := send(snapshot(ctx)); err != nil {
			return err
		}
	}
}
