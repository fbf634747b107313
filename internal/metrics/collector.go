// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics implements a per-node bounded rolling history plus
// cluster-wide aggregates. History is a fixed-size slice per node with
// strict FIFO eviction; only a bounded window is retained, never an
// unbounded archive.
package metrics

import (
	"sync"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/loadmonitor"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

const defaultMaxHistoryPerNode = 360

// nodeCounters tracks the monotonic job counters owned per collector
// instance per node.
type nodeCounters struct {
	history       []schema.MetricSnapshot
	activeJobs    int
	completedJobs int64
	failedJobs    int64
}

// Collector owns per-node metric history and derives cluster aggregates.
type Collector struct {
	mu          sync.Mutex
	nodes       map[string]*nodeCounters
	maxHistory  int
	loadMonitor *loadmonitor.Monitor
	startedAt   time.Time
}

// New builds a Collector. loadMon may be nil (e.g. a pure orchestrator
// instance with no local job execution); RecordLocal then records zero CPU
// and memory usage.
func New(maxHistoryPerNode int, loadMon *loadmonitor.Monitor) *Collector {
	if maxHistoryPerNode <= 0 {
		maxHistoryPerNode = defaultMaxHistoryPerNode
	}
	return &Collector{
		nodes:       make(map[string]*nodeCounters),
		maxHistory:  maxHistoryPerNode,
		loadMonitor: loadMon,
		startedAt:   time.Now(),
	}
}

func (c *Collector) entry(nodeID string) *nodeCounters {
	n, ok := c.nodes[nodeID]
	if !ok {
		n = &nodeCounters{history: make([]schema.MetricSnapshot, 0, c.maxHistory)}
		c.nodes[nodeID] = n
	}
	return n
}

// append pushes a snapshot to history, evicting the oldest entry FIFO once
// maxHistory is reached. Caller must hold c.mu.
func (c *Collector) append(n *nodeCounters, snap schema.MetricSnapshot) {
	if len(n.history) >= c.maxHistory {
		copy(n.history, n.history[1:])
		n.history = n.history[:len(n.history)-1]
	}
	n.history = append(n.history, snap)
}

// RecordLocal samples the local load monitor and appends a derived
// snapshot for nodeID (the local node, when this process also executes
// jobs).
func (c *Collector) RecordLocal(nodeID string, now time.Time) schema.MetricSnapshot {
	var cpu, mem float64
	if c.loadMonitor != nil {
		s := c.loadMonitor.Snapshot()
		cpu, mem = s.CPUPct, s.MemoryPct
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.entry(nodeID)
	snap := schema.MetricSnapshot{
		NodeID:        nodeID,
		CPUUsage:      cpu,
		MemoryUsage:   mem,
		ActiveJobs:    n.activeJobs,
		CompletedJobs: n.completedJobs,
		FailedJobs:    n.failedJobs,
		UptimeSeconds: int64(now.Sub(c.startedAt).Seconds()),
		CollectedAt:   now,
	}
	c.append(n, snap)
	return snap
}

// Ingest appends a snapshot received from a remote node's heartbeat.
func (c *Collector) Ingest(nodeID string, snap schema.MetricSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.entry(nodeID)
	n.activeJobs = snap.ActiveJobs
	if snap.CompletedJobs > n.completedJobs {
		n.completedJobs = snap.CompletedJobs
	}
	if snap.FailedJobs > n.failedJobs {
		n.failedJobs = snap.FailedJobs
	}
	c.append(n, snap)
}

// SetActiveJobs updates the live active-job gauge for nodeID without
// appending a history entry.
func (c *Collector) SetActiveJobs(nodeID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(nodeID).activeJobs = n
}

// RecordJobCompletion increments the completed or failed counter for
// nodeID. Both counters are monotonic for the lifetime of the collector.
func (c *Collector) RecordJobCompletion(nodeID string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entry(nodeID)
	if success {
		n.completedJobs++
	} else {
		n.failedJobs++
	}
}

// GetHistory returns up to limit most-recent snapshots for nodeID, oldest
// first. limit<=0 means "all".
func (c *Collector) GetHistory(nodeID string, limit int) []schema.MetricSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[nodeID]
	if !ok {
		return nil
	}
	if limit <= 0 || limit >= len(n.history) {
		out := make([]schema.MetricSnapshot, len(n.history))
		copy(out, n.history)
		return out
	}
	start := len(n.history) - limit
	out := make([]schema.MetricSnapshot, limit)
	copy(out, n.history[start:])
	return out
}

// Aggregate computes cluster-wide metrics over the latest snapshot of
// every known node.
func (c *Collector) Aggregate() schema.ClusterMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var agg schema.ClusterMetrics
	var sumCPU, sumMem float64
	counted := 0

	for _, n := range c.nodes {
		agg.ActiveJobs += int64(n.activeJobs)
		agg.CompletedJobs += n.completedJobs
		agg.FailedJobs += n.failedJobs

		if len(n.history) == 0 {
			continue
		}
		latest := n.history[len(n.history)-1]
		sumCPU += latest.CPUUsage
		sumMem += latest.MemoryUsage
		if latest.CPUUsage > agg.MaxCPUUsage {
			agg.MaxCPUUsage = latest.CPUUsage
		}
		counted++
	}

	agg.TotalNodes = len(c.nodes)
	if counted > 0 {
		agg.AvgCPUUsage = sumCPU / float64(counted)
		agg.AvgMemoryUsage = sumMem / float64(counted)
	}
	return agg
}
