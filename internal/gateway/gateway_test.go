// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/breaker"
	"github.com/kRxZykRxZy/gittic/internal/dispatch"
	"github.com/kRxZykRxZy/gittic/internal/loadmonitor"
	"github.com/kRxZykRxZy/gittic/internal/ratelimit"
	"github.com/kRxZykRxZy/gittic/internal/registry"
	"github.com/kRxZykRxZy/gittic/internal/workerstub"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
	"github.com/stretchr/testify/require"
)

type fakeReader struct{ cpu, mem float64 }

func (f fakeReader) CPUTime() (float64, int)     { return 0, 1 }
func (f fakeReader) MemoryUsage() (int64, int64) { return int64(f.mem), 100 }
func (f fakeReader) LoadAvg1() float64           { return f.cpu }

func localHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("local"))
	})
}

func TestBypassNeverForwards(t *testing.T) {
	reg := registry.New(time.Minute)
	br := breaker.New(3, time.Second, time.Minute)
	d := dispatch.New(reg, br, &http.Client{}, dispatch.Config{}, nil)

	gw := &Gateway{
		LocalHandler:     localHandler(),
		Dispatcher:       d,
		OrchestratorMode: true,
		BypassPrefixes:   []string{"/api/v1/health"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rw := httptest.NewRecorder()
	gw.ServeHTTP(rw, req)
	require.Equal(t, "local", rw.Body.String())
}

func TestOverloadForwardsScenario5(t *testing.T) {
	reg := registry.New(time.Minute)
	br := breaker.New(3, time.Second, time.Minute)
	stub := workerstub.New("N1")
	defer stub.Close()
	reg.Register(schema.RegisterRequest{NodeID: "N1", Address: stub.URL(), Cores: 1, MaxJobs: 5, Token: "t"}, time.Now())

	d := dispatch.New(reg, br, &http.Client{Timeout: 5 * time.Second}, dispatch.Config{ClusterName: "c"}, nil)
	lm := loadmonitor.New(fakeReader{cpu: 1.05, mem: 92}, 90, 100)
	lm.SampleNow(time.Now())

	gw := &Gateway{
		LocalHandler:   localHandler(),
		Dispatcher:     d,
		LoadMonitor:    lm,
		BypassPrefixes: []string{"/api/v1/health"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	rw := httptest.NewRecorder()
	gw.ServeHTTP(rw, req)
	require.Equal(t, "cluster:N1", rw.Header().Get("X-Served-By"))

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rw2 := httptest.NewRecorder()
	gw.ServeHTTP(rw2, req2)
	require.Equal(t, "local", rw2.Body.String())
}

func TestHardRateLimitBlocksBeforeDispatch(t *testing.T) {
	reg := registry.New(time.Minute)
	br := breaker.New(3, time.Second, time.Minute)
	d := dispatch.New(reg, br, &http.Client{}, dispatch.Config{}, nil)
	rl := ratelimit.New()
	rl.AddRule(schema.RateLimitRule{RuleID: "r1", MaxRequests: 0, WindowMs: 1000, HardLimit: true})

	gw := &Gateway{
		LocalHandler:     localHandler(),
		Dispatcher:       d,
		OrchestratorMode: true,
		RateLimiter:      rl,
		RuleIDs:          []string{"r1"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("X-Auth-Token", "u1")
	rw := httptest.NewRecorder()
	gw.ServeHTTP(rw, req)
	require.Equal(t, http.StatusTooManyRequests, rw.Code)
}

func TestSoftRateLimitBlocksBeforeSlidingWindow(t *testing.T) {
	reg := registry.New(time.Minute)
	br := breaker.New(3, time.Second, time.Minute)
	d := dispatch.New(reg, br, &http.Client{}, dispatch.Config{}, nil)
	rl := ratelimit.New()

	gw := &Gateway{
		LocalHandler:     localHandler(),
		Dispatcher:       d,
		OrchestratorMode: true,
		RateLimiter:      rl,
		SoftRatePerSec:   1,
		SoftBurst:        1,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("X-Auth-Token", "u1")
	rw := httptest.NewRecorder()
	gw.ServeHTTP(rw, req)
	// The first request passes the soft gate and is dispatched; with no
	// nodes registered the dispatcher answers REGION_UNAVAILABLE.
	require.Equal(t, http.StatusServiceUnavailable, rw.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req2.Header.Set("X-Auth-Token", "u1")
	rw2 := httptest.NewRecorder()
	gw.ServeHTTP(rw2, req2)
	require.Equal(t, http.StatusTooManyRequests, rw2.Code)
}
