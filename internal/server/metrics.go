package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/logging"
)

type metricValue struct {
	Value       float64
	LabelValues []string
}

// collector implements the prometheus.Collector interface
type collector struct {
	desc        *prometheus.Desc
	valueType   prometheus.ValueType
	collectFunc func() []metricValue
}

func newCollector(opts prometheus.Opts, valueType prometheus.ValueType, variableLabels []string, collectFunc func() []metricValue) *collector {
	fqname := prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
	return &collector{
		desc:        prometheus.NewDesc(fqname, opts.Help, variableLabels, opts.ConstLabels),
		valueType:   valueType,
		collectFunc: collectFunc,
	}
}

// NewGaugeCollector creates a collector with type Gauge
func NewGaugeCollector(opts prometheus.Opts, variableLabels []string, collectFunc func() []metricValue) *collector {
	return newCollector(opts, prometheus.GaugeValue, variableLabels, collectFunc)
}

// Describe is implemented by DescribeByCollect
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements Collector. It creates a set of constant metrics with the
// values and labels as described by collectFunc
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, metricValue := range c.collectFunc() {
		ch <- prometheus.MustNewConstMetric(c.desc, c.valueType, metricValue.Value, metricValue.LabelValues...)
	}
}

func setupMetrics(db *gorm.DB) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	if rawDB, err := db.DB(); err == nil {
		registry.MustRegister(collectors.NewDBStatsCollector(rawDB, db.Dialector.Name()))
	}

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant '1' value labeled by branch, version, commit, and date from which keyward was built",
		ConstLabels: prometheus.Labels{
			"branch":  internal.Branch,
			"version": internal.FullVersion(),
			"commit":  internal.Commit,
			"date":    internal.Date,
		},
	}, func() float64 { return 1 }))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "keyward",
		Name:      "api_keys",
		Help:      "The total number of registered API keys",
	}, []string{"provider"}, func() []metricValue {
		var results []struct {
			Provider string
			Count    float64
		}

		if err := db.Raw("SELECT provider, COUNT(*) as count FROM api_keys WHERE deleted_at IS NULL GROUP BY provider").Scan(&results).Error; err != nil {
			logging.L.Warn().Err(err).Msg("api_keys")
			return []metricValue{}
		}

		values := make([]metricValue, 0, len(results))
		for _, result := range results {
			values = append(values, metricValue{
				Value:       result.Count,
				LabelValues: []string{result.Provider},
			})
		}

		return values
	}))

	return registry
}
