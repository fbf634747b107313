// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package loadmonitor samples local CPU/RAM at a fixed interval and
// decides whether the local process is overloaded.
package loadmonitor

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kRxZykRxZy/gittic/pkg/log"
)

// Sample is a cached local-load reading.
type Sample struct {
	CPUPct    float64
	MemoryPct float64
	SampledAt time.Time
}

// Reader abstracts the OS-level counters the monitor samples, so tests can
// inject synthetic CPU/memory series without touching /proc.
type Reader interface {
	// CPUTime returns cumulative CPU time consumed by the process/host and
	// the number of logical cores available.
	CPUTime() (cpuSeconds float64, cores int)
	// MemoryUsage returns used and total bytes of RAM.
	MemoryUsage() (usedBytes, totalBytes int64)
	// LoadAvg1 returns the 1-minute load average.
	LoadAvg1() float64
}

// Monitor caches the latest Sample and exposes a non-blocking Snapshot().
type Monitor struct {
	mu   sync.Mutex
	last Sample
	have bool

	reader Reader

	ramThresholdPct float64
	cpuThresholdPct float64

	prevCPUSeconds float64
	prevSampledAt  time.Time
	cores          int
}

// New builds a Monitor with the given overload thresholds (defaults are
// 90% RAM and 100% CPU; CPU percentages are normalised by core count, so
// 100% means every core saturated on average).
func New(reader Reader, ramThresholdPct, cpuThresholdPct float64) *Monitor {
	return &Monitor{reader: reader, ramThresholdPct: ramThresholdPct, cpuThresholdPct: cpuThresholdPct}
}

// NewDefault builds a Monitor backed by the host's /proc counters.
func NewDefault(ramThresholdPct, cpuThresholdPct float64) *Monitor {
	return New(procReader{}, ramThresholdPct, cpuThresholdPct)
}

// SampleNow performs one synchronous sample and caches it. Intended to be
// called periodically (default every 5s) by a scheduler.
func (m *Monitor) SampleNow(now time.Time) Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpuSeconds, cores := m.reader.CPUTime()
	usedBytes, totalBytes := m.reader.MemoryUsage()
	m.cores = cores

	var cpuPct float64
	if !m.have {
		// First sample: delta computation needs two samples, so fall back
		// to the 1-minute load average scaled by core count.
		load1 := m.reader.LoadAvg1()
		if cores > 0 {
			cpuPct = (load1 / float64(cores)) * 100
		}
	} else {
		elapsed := now.Sub(m.prevSampledAt).Seconds()
		if elapsed > 0 && cores > 0 {
			deltaCPU := cpuSeconds - m.prevCPUSeconds
			if deltaCPU < 0 {
				deltaCPU = 0
			}
			cpuPct = (deltaCPU / (elapsed * float64(cores))) * 100
		}
	}

	var memPct float64
	if totalBytes > 0 {
		memPct = (float64(usedBytes) / float64(totalBytes)) * 100
	}

	m.prevCPUSeconds = cpuSeconds
	m.prevSampledAt = now
	m.have = true

	s := Sample{CPUPct: cpuPct, MemoryPct: memPct, SampledAt: now}
	m.last = s
	log.Debugf("loadmonitor: sampled cpu=%.1f%% mem=%.1f%%", s.CPUPct, s.MemoryPct)
	return s
}

// Snapshot returns the most recently cached sample without blocking.
func (m *Monitor) Snapshot() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ShouldForward returns true iff both memory and CPU usage are at or above
// threshold.
func (m *Monitor) ShouldForward() bool {
	s := m.Snapshot()
	return s.MemoryPct >= m.ramThresholdPct && s.CPUPct >= m.cpuThresholdPct
}

// procReader is the production Reader. It samples host-wide counters from
// the proc filesystem: aggregate CPU jiffies from /proc/stat, MemTotal and
// MemAvailable from /proc/meminfo, and the 1-minute load average from
// /proc/loadavg. A read failure logs once per call and reports zero, which
// keeps ShouldForward false rather than flapping on a broken mount.
type procReader struct{}

// userHz is the kernel clock tick rate the /proc/stat jiffy counters are
// expressed in. Linux reports 100 via sysconf(_SC_CLK_TCK) on every
// architecture this process targets.
const userHz = 100

func (procReader) CPUTime() (float64, int) {
	cores := runtime.NumCPU()
	raw, err := os.ReadFile("/proc/stat")
	if err != nil {
		log.Warnf("loadmonitor: reading /proc/stat: %v", err)
		return 0, cores
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		// Aggregate line: user nice system idle iowait irq softirq steal
		// guest guest_nice. Busy time is everything except idle (3) and
		// iowait (4).
		var busy float64
		for i, f := range strings.Fields(line)[1:] {
			if i == 3 || i == 4 {
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				continue
			}
			busy += v
		}
		return busy / userHz, cores
	}
	return 0, cores
}

func (procReader) MemoryUsage() (int64, int64) {
	raw, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		log.Warnf("loadmonitor: reading /proc/meminfo: %v", err)
		return 0, 0
	}

	var totalKb, availKb int64
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKb = v
		case "MemAvailable:":
			availKb = v
		}
	}
	return (totalKb - availKb) * 1024, totalKb * 1024
}

func (procReader) LoadAvg1() float64 {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		log.Warnf("loadmonitor: reading /proc/loadavg: %v", err)
		return 0
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}
