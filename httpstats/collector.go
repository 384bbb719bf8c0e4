// Package httpstats exposes a diagnostics HTTP surface over a running
// driver: current state, counter snapshots, a blocking transmit endpoint,
// and a Prometheus exposition of the same counters.
package httpstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ebusgo/ebusd/fsm"
)

// CountersCollector is a prometheus.Collector over a Handler's Counters,
// computing the full Snapshot (leaf counters plus derived rollups and
// percentages) on every scrape rather than maintaining its own parallel
// set of prometheus metric objects.
type CountersCollector struct {
	handler  *fsm.Handler
	onlineFn func() bool

	messages *prometheus.Desc
	errors   *prometheus.Desc
	resets   *prometheus.Desc
	requests *prometheus.Desc
	percent  *prometheus.Desc
	online   *prometheus.Desc
}

// NewCountersCollector returns a collector that reads h.Counters() (and,
// if onlineFn is non-nil, an online/offline gauge) on every Collect.
func NewCountersCollector(h *fsm.Handler, onlineFn func() bool) *CountersCollector {
	c := &CountersCollector{
		handler: h,
		messages: prometheus.NewDesc(
			"ebusd_messages_total", "Telegrams completed, by role and type.",
			[]string{"role", "type"}, nil),
		errors: prometheus.NewDesc(
			"ebusd_errors_total", "Terminal cycle failures, by role.",
			[]string{"role"}, nil),
		resets: prometheus.NewDesc(
			"ebusd_resets_total", "Passive/active cycle resets, by cause.",
			[]string{"cause"}, nil),
		requests: prometheus.NewDesc(
			"ebusd_requests_total", "Arbitration outcomes.",
			[]string{"outcome"}, nil),
		percent: prometheus.NewDesc(
			"ebusd_traffic_share_percent", "Share of total traffic, by role.",
			[]string{"role"}, nil),
		online: prometheus.NewDesc(
			"ebusd_online", "1 if the device is currently open, 0 otherwise.",
			nil, nil),
	}
	c.onlineFn = onlineFn
	return c
}

func (c *CountersCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	ch <- c.errors
	ch <- c.resets
	ch <- c.requests
	ch <- c.percent
	ch <- c.online
}

func (c *CountersCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.handler.Counters()

	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesPassiveMS), "passive", "ms")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesPassiveMM), "passive", "mm")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesPassiveBC), "passive", "bc")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesReactiveMS), "reactive", "ms")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesReactiveMM), "reactive", "mm")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesReactiveBC), "reactive", "bc")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesActiveMS), "active", "ms")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesActiveMM), "active", "mm")
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(s.MessagesActiveBC), "active", "bc")

	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorsPassive), "passive")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorsReactive), "reactive")
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorsActive), "active")

	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(s.ResetsPassive00), "stray_00")
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(s.ResetsPassive0704), "ident_fragment")
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(s.ResetsPassive), "other_passive")
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(s.ResetsActive), "active")

	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsWon1), "won_first_try")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsWon2), "won_second_try")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsRetry), "priority_retry")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsLost1), "lost_first_try")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsLost2), "lost_second_try")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.RequestsError), "error")

	ch <- prometheus.MustNewConstMetric(c.percent, prometheus.GaugeValue, s.PassivePercent, "passive")
	ch <- prometheus.MustNewConstMetric(c.percent, prometheus.GaugeValue, s.ActivePercent, "active")

	if c.onlineFn != nil {
		v := 0.0
		if c.onlineFn() {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.online, prometheus.GaugeValue, v)
	}
}
