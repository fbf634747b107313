// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// MetricSnapshot is a single point-in-time sample for one node.
type MetricSnapshot struct {
	NodeID           string    `json:"nodeId"`
	CPUUsage         float64   `json:"cpuUsage"`
	MemoryUsage      float64   `json:"memoryUsage"`
	MemoryUsedBytes  int64     `json:"memoryUsedBytes"`
	MemoryTotalBytes int64     `json:"memoryTotalBytes"`
	LoadAvg1         float64   `json:"loadAvg1"`
	LoadAvg5         float64   `json:"loadAvg5"`
	LoadAvg15        float64   `json:"loadAvg15"`
	ActiveJobs       int       `json:"activeJobs"`
	CompletedJobs    int64     `json:"completedJobs"`
	FailedJobs       int64     `json:"failedJobs"`
	UptimeSeconds    int64     `json:"uptimeSeconds"`
	CollectedAt      time.Time `json:"collectedAt"`
}

// ClusterMetrics is the cross-node aggregate computed by the Metrics
// Collector's Aggregate().
type ClusterMetrics struct {
	TotalNodes     int     `json:"totalNodes"`
	AvgCPUUsage    float64 `json:"avgCpuUsage"`
	MaxCPUUsage    float64 `json:"maxCpuUsage"`
	AvgMemoryUsage float64 `json:"avgMemoryUsage"`
	ActiveJobs     int64   `json:"activeJobs"`
	CompletedJobs  int64   `json:"completedJobs"`
	FailedJobs     int64   `json:"failedJobs"`
}
