// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package workerstub provides an in-process double for the worker-node
// endpoints (GET /health, GET /stats, POST /execute), so the Dispatcher's
// round-robin/failover/circuit-breaker behaviour can be exercised against
// real net/http/httptest servers instead of hand-rolled fakes.
package workerstub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// Stub is a controllable worker-node double.
type Stub struct {
	Server *httptest.Server

	// NextStatus, if non-zero, is returned by the next /execute call and
	// then reset to 0 (default 202 Accepted).
	nextStatus int32
	calls      int32
}

// New starts a worker stub and returns it. Name is echoed in the
// stub-produced /health and /execute bodies so tests can assert which
// node actually served a request.
func New(name string) *Stub {
	s := &Stub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{"name": name, "available": true})
	})
	mux.HandleFunc("/stats", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{"name": name})
	})
	mux.HandleFunc("/execute", func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		status := int(atomic.SwapInt32(&s.nextStatus, 0))
		if status == 0 {
			status = http.StatusAccepted
		}
		writeJSON(rw, status, map[string]any{"name": name})
	})
	s.Server = httptest.NewServer(mux)
	return s
}

// SetNextStatus makes the next /execute call return the given status
// code, then revert to the default 202.
func (s *Stub) SetNextStatus(status int) {
	atomic.StoreInt32(&s.nextStatus, int32(status))
}

// Calls returns how many times /execute has been invoked.
func (s *Stub) Calls() int { return int(atomic.LoadInt32(&s.calls)) }

func (s *Stub) Close() { s.Server.Close() }

// URL returns the stub's base address, suitable for a NodeRecord.Address.
func (s *Stub) URL() string { return s.Server.URL }

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
