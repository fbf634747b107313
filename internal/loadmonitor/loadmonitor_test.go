// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package loadmonitor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	cpuSeconds float64
	cores      int
	usedBytes  int64
	totalBytes int64
	load1      float64
}

func (f *fakeReader) CPUTime() (float64, int)      { return f.cpuSeconds, f.cores }
func (f *fakeReader) MemoryUsage() (int64, int64)  { return f.usedBytes, f.totalBytes }
func (f *fakeReader) LoadAvg1() float64            { return f.load1 }

func TestFirstSampleUsesLoadAverage(t *testing.T) {
	r := &fakeReader{cores: 4, load1: 2, usedBytes: 50, totalBytes: 100}
	m := New(r, 90, 100)
	s := m.SampleNow(time.Now())
	require.InDelta(t, 50.0, s.CPUPct, 0.001)
	require.InDelta(t, 50.0, s.MemoryPct, 0.001)
}

func TestProcReaderReadsHostCounters(t *testing.T) {
	if _, err := os.Stat("/proc/stat"); err != nil {
		t.Skip("no proc filesystem on this platform")
	}

	r := procReader{}
	cpuSeconds, cores := r.CPUTime()
	require.Greater(t, cores, 0)
	require.Greater(t, cpuSeconds, 0.0)

	used, total := r.MemoryUsage()
	require.Greater(t, total, int64(0))
	require.Greater(t, used, int64(0))
	require.LessOrEqual(t, used, total)

	require.GreaterOrEqual(t, r.LoadAvg1(), 0.0)
}

func TestOverloadRequiresBothThresholds(t *testing.T) {
	r := &fakeReader{cores: 1, usedBytes: 95, totalBytes: 100}
	m := New(r, 90, 100)

	t0 := time.Now()
	m.SampleNow(t0)

	r.cpuSeconds = 1.0
	r.usedBytes = 95
	m.SampleNow(t0.Add(time.Second))
	require.True(t, m.ShouldForward(), "cpu at 100%% and mem at 95%% should forward")

	r.usedBytes = 10
	r.cpuSeconds = 2.0
	m.SampleNow(t0.Add(2 * time.Second))
	require.False(t, m.ShouldForward(), "low memory should not forward even if cpu saturated")
}
