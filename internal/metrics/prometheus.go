// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector adapts Collector.Aggregate into the
// prometheus.Collector interface, so /metrics always reflects the live
// cluster-wide snapshot without a separate scrape-time copy of every
// counter.
type PrometheusCollector struct {
	c *Collector

	totalNodes     *prometheus.Desc
	activeJobs     *prometheus.Desc
	completedJobs  *prometheus.Desc
	failedJobs     *prometheus.Desc
	avgCPUUsage    *prometheus.Desc
	avgMemoryUsage *prometheus.Desc
	maxCPUUsage    *prometheus.Desc
}

// NewPrometheusCollector wraps c for registration with a
// prometheus.Registry.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	ns := "cluster_orchestrator"
	return &PrometheusCollector{
		c:              c,
		totalNodes:     prometheus.NewDesc(ns+"_nodes_total", "Total number of known nodes.", nil, nil),
		activeJobs:     prometheus.NewDesc(ns+"_jobs_active", "Jobs currently running across the cluster.", nil, nil),
		completedJobs:  prometheus.NewDesc(ns+"_jobs_completed_total", "Jobs completed across the cluster since process start.", nil, nil),
		failedJobs:     prometheus.NewDesc(ns+"_jobs_failed_total", "Jobs failed across the cluster since process start.", nil, nil),
		avgCPUUsage:    prometheus.NewDesc(ns+"_cpu_usage_avg_pct", "Average CPU usage across reporting nodes.", nil, nil),
		avgMemoryUsage: prometheus.NewDesc(ns+"_memory_usage_avg_pct", "Average memory usage across reporting nodes.", nil, nil),
		maxCPUUsage:    prometheus.NewDesc(ns+"_cpu_usage_max_pct", "Highest single-node CPU usage observed in the latest sample.", nil, nil),
	}
}

func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.totalNodes
	ch <- p.activeJobs
	ch <- p.completedJobs
	ch <- p.failedJobs
	ch <- p.avgCPUUsage
	ch <- p.avgMemoryUsage
	ch <- p.maxCPUUsage
}

func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	agg := p.c.Aggregate()
	ch <- prometheus.MustNewConstMetric(p.totalNodes, prometheus.GaugeValue, float64(agg.TotalNodes))
	ch <- prometheus.MustNewConstMetric(p.activeJobs, prometheus.GaugeValue, float64(agg.ActiveJobs))
	ch <- prometheus.MustNewConstMetric(p.completedJobs, prometheus.CounterValue, float64(agg.CompletedJobs))
	ch <- prometheus.MustNewConstMetric(p.failedJobs, prometheus.CounterValue, float64(agg.FailedJobs))
	ch <- prometheus.MustNewConstMetric(p.avgCPUUsage, prometheus.GaugeValue, agg.AvgCPUUsage)
	ch <- prometheus.MustNewConstMetric(p.avgMemoryUsage, prometheus.GaugeValue, agg.AvgMemoryUsage)
	ch <- prometheus.MustNewConstMetric(p.maxCPUUsage, prometheus.GaugeValue, agg.MaxCPUUsage)
}
