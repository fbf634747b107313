// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/breaker"
	"github.com/kRxZykRxZy/gittic/internal/registry"
	"github.com/kRxZykRxZy/gittic/internal/workerstub"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
	"github.com/stretchr/testify/require"
)

func newDispatcherWithNodes(t *testing.T, names ...string) (*Dispatcher, *registry.Registry, []*workerstub.Stub) {
	reg := registry.New(30 * time.Second)
	br := breaker.New(3, 5*time.Second, time.Minute)
	now := time.Now()

	var stubs []*workerstub.Stub
	for _, name := range names {
		s := workerstub.New(name)
		stubs = append(stubs, s)
		_, err := reg.Register(schema.RegisterRequest{
			NodeID: name, Address: s.URL(), Cores: 4, MaxJobs: 10, Token: "t",
		}, now)
		require.Nil(t, err)
	}

	d := New(reg, br, &http.Client{Timeout: 5 * time.Second}, Config{ClusterName: "test"}, nil)
	return d, reg, stubs
}

func TestRoundRobinFairnessScenario1(t *testing.T) {
	d, _, stubs := newDispatcherWithNodes(t, "N1", "N2", "N3")
	defer func() {
		for _, s := range stubs {
			s.Close()
		}
	}()

	var served []string
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/execute", nil)
		rw := httptest.NewRecorder()
		cerr := d.Forward(rw, req)
		require.Nil(t, cerr)
		served = append(served, rw.Header().Get("X-Served-By"))
	}

	require.Equal(t, []string{
		"cluster:N1", "cluster:N2", "cluster:N3",
		"cluster:N1", "cluster:N2", "cluster:N3",
	}, served)
}

func TestFailoverOn5xxScenario2(t *testing.T) {
	d, _, stubs := newDispatcherWithNodes(t, "N1", "N2")
	defer func() {
		for _, s := range stubs {
			s.Close()
		}
	}()
	stubs[0].SetNextStatus(http.StatusServiceUnavailable)

	req := httptest.NewRequest(http.MethodGet, "/execute", nil)
	rw := httptest.NewRecorder()
	cerr := d.Forward(rw, req)
	require.Nil(t, cerr)
	require.Equal(t, "cluster:N2", rw.Header().Get("X-Served-By"))
	require.Equal(t, http.StatusAccepted, rw.Code)
	require.Equal(t, 1, d.breakers.Failures("N1"))
}

func TestCircuitOpensAfterThresholdScenario3(t *testing.T) {
	d, _, stubs := newDispatcherWithNodes(t, "N1", "N2")
	defer func() {
		for _, s := range stubs {
			s.Close()
		}
	}()

	// Drive N1 to 3 consecutive failures: the round-robin cursor lands on
	// N1 first in each of three back-to-back calls, and N1 returns a 503
	// each time before the call fails over to N2.
	stubs[0].SetNextStatus(http.StatusServiceUnavailable)

	req := httptest.NewRequest(http.MethodGet, "/execute", nil)
	rw := httptest.NewRecorder()
	d.Forward(rw, req) // N1 fails (1), falls over to N2 (success)

	stubs[0].SetNextStatus(http.StatusServiceUnavailable)
	rw2 := httptest.NewRecorder()
	d.Forward(rw2, req) // cursor now points back to N1 -> fails (2), N2 succeeds

	stubs[0].SetNextStatus(http.StatusServiceUnavailable)
	rw3 := httptest.NewRecorder()
	d.Forward(rw3, req) // N1 fails (3) -> circuit opens

	// Subsequent dispatches should never reach N1 again while open: all
	// responses come from N2 regardless of round-robin cursor position.
	stubs[0].SetNextStatus(http.StatusOK)
	rw4 := httptest.NewRecorder()
	cerr := d.Forward(rw4, req)
	require.Nil(t, cerr)
	require.Equal(t, "cluster:N2", rw4.Header().Get("X-Served-By"))
}

func TestAllCircuitsOpenSurfacesRetryAfter(t *testing.T) {
	d, _, stubs := newDispatcherWithNodes(t, "N1")
	defer stubs[0].Close()

	now := time.Now()
	for i := 0; i < 3; i++ {
		d.breakers.OnFailure("N1", now)
	}

	req := httptest.NewRequest(http.MethodGet, "/execute", nil)
	rw := httptest.NewRecorder()
	cerr := d.Forward(rw, req)
	require.NotNil(t, cerr)
	require.Equal(t, "CIRCUIT_OPEN", string(cerr.Code))
	require.Equal(t, http.StatusServiceUnavailable, cerr.HTTPStatus())
	require.Contains(t, cerr.Meta, "retryAfterMs")
}

func TestAllNodesUnavailableReturns503(t *testing.T) {
	reg := registry.New(30 * time.Second)
	br := breaker.New(3, 5*time.Second, time.Minute)
	d := New(reg, br, &http.Client{}, Config{ClusterName: "test"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/execute", nil)
	rw := httptest.NewRecorder()
	cerr := d.Forward(rw, req)
	require.NotNil(t, cerr)
	require.Equal(t, "REGION_UNAVAILABLE", string(cerr.Code))
	require.Equal(t, http.StatusServiceUnavailable, cerr.HTTPStatus())
}
