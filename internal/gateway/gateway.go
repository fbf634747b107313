// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gateway is the single entry point for every inbound request: it
// decides between a local-bypass path, a local handler (underload), and
// the Dispatcher (overload or orchestrator mode).
package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/internal/dispatch"
	"github.com/kRxZykRxZy/gittic/internal/loadmonitor"
	"github.com/kRxZykRxZy/gittic/internal/ratelimit"
	"github.com/kRxZykRxZy/gittic/pkg/log"
)

// KeyFunc derives the rate-limit key for an inbound request (e.g. from an
// auth token, API key, or source IP).
type KeyFunc func(r *http.Request) string

// Gateway wires LoadMonitor + RateLimiter + Dispatcher into one admission
// decision per inbound request.
type Gateway struct {
	LocalHandler     http.Handler
	Dispatcher       *dispatch.Dispatcher
	LoadMonitor      *loadmonitor.Monitor
	RateLimiter      *ratelimit.Limiter
	OrchestratorMode bool
	BypassPrefixes   []string
	KeyFunc          KeyFunc
	RuleIDs          []string

	// SoftRatePerSec and SoftBurst configure a per-key token-bucket gate
	// checked ahead of the sliding-window rules, so a key flooding far
	// past any reasonable rate never has to walk its timestamp bucket at
	// all. SoftRatePerSec<=0 disables the gate.
	SoftRatePerSec float64
	SoftBurst      int
}

// DefaultKeyFunc derives a key from the X-Auth-Token header, falling back
// to the request's remote address.
func DefaultKeyFunc(r *http.Request) string {
	if tok := r.Header.Get("X-Auth-Token"); tok != "" {
		return tok
	}
	return r.RemoteAddr
}

func (g *Gateway) isBypass(path string) bool {
	for _, p := range g.BypassPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ServeHTTP runs the admission algorithm: bypass, then overload/orchestrator
// check, then rate limiting, then dispatch. Panics from the local handler
// or dispatcher are recovered here and converted to an INTERNAL
// ClusterError carrying a correlation id, never a stack trace.
func (g *Gateway) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			var cause error
			if e, ok := rec.(error); ok {
				cause = e
			}
			cerr := clustererr.InternalErr(cause)
			log.Errorf("gateway: recovered panic: %v %s", rec, log.Fields(cerr.Meta))
			clustererr.WriteJSON(rw, cerr)
		}
	}()

	if g.isBypass(r.URL.Path) {
		g.LocalHandler.ServeHTTP(rw, r)
		return
	}

	overloaded := g.OrchestratorMode || (g.LoadMonitor != nil && g.LoadMonitor.ShouldForward())
	if !overloaded {
		g.LocalHandler.ServeHTTP(rw, r)
		return
	}

	if g.RateLimiter != nil {
		key := DefaultKeyFunc
		if g.KeyFunc != nil {
			key = g.KeyFunc
		}
		k := key(r)

		if g.SoftRatePerSec > 0 && !g.RateLimiter.AllowSoft(k, g.SoftRatePerSec, g.SoftBurst) {
			clustererr.WriteJSON(rw, clustererr.RateLimitedErr("soft-throttle", 0))
			return
		}

		if cerr := g.RateLimiter.ConsumeOrError(k, time.Now(), g.RuleIDs...); cerr != nil {
			clustererr.WriteJSON(rw, cerr)
			return
		}
	}

	if cerr := g.Dispatcher.Forward(rw, r); cerr != nil {
		clustererr.WriteJSON(rw, cerr)
	}
}
