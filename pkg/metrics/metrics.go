package metrics

import (
	"github.com/itohio/btadc/pkg/acquire"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descTicks = prometheus.NewDesc(
		"btadc_loop_ticks_total",
		"Acquisition loop passes.",
		[]string{"name"},
		nil,
	)

	descSamples = prometheus.NewDesc(
		"btadc_samples_total",
		"Samples read from the converter and handed to the endpoint.",
		[]string{"name"},
		nil,
	)

	descSkipped = prometheus.NewDesc(
		"btadc_loop_idle_ticks_total",
		"Loop passes without a completed conversion.",
		[]string{"name"},
		nil,
	)

	descReadErrors = prometheus.NewDesc(
		"btadc_read_errors_total",
		"Samples dropped because a channel read failed.",
		[]string{"name"},
		nil,
	)

	descLinkErrors = prometheus.NewDesc(
		"btadc_link_errors_total",
		"Samples the endpoint reported as undelivered.",
		[]string{"name"},
		nil,
	)
)

// SnapshotFunc returns the current loop counters.
type SnapshotFunc func() acquire.StatsSnapshot

type collector struct {
	name string
	SnapshotFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.SnapshotFunc()

	ch <- prometheus.MustNewConstMetric(descTicks, prometheus.CounterValue, float64(s.Ticks), c.name)
	ch <- prometheus.MustNewConstMetric(descSamples, prometheus.CounterValue, float64(s.Samples), c.name)
	ch <- prometheus.MustNewConstMetric(descSkipped, prometheus.CounterValue, float64(s.Skipped), c.name)
	ch <- prometheus.MustNewConstMetric(descReadErrors, prometheus.CounterValue, float64(s.ReadErrors), c.name)
	ch <- prometheus.MustNewConstMetric(descLinkErrors, prometheus.CounterValue, float64(s.LinkErrors), c.name)
}

// RegisterCollector exposes the counters returned by f, labelled with the
// device name.
func RegisterCollector(name string, f SnapshotFunc, reg prometheus.Registerer) {
	c := &collector{name: name, SnapshotFunc: f}

	reg.MustRegister(c)
}
