// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch selects a live node and forwards the request to it,
// retrying once on peer/transport failure, and surfaces structured errors
// via internal/clustererr.
package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/breaker"
	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/internal/registry"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

// hopByHopHeaders are stripped from both the outbound request and the
// relayed response.
var hopByHopHeaders = []string{"Transfer-Encoding", "Content-Encoding", "Host"}

// OutcomeRecorder lets the dispatcher report per-attempt outcomes to
// collaborators (metrics, resource tracker) without importing them
// directly, keeping the acquire-one-release-one locking discipline: the
// dispatcher never holds a cluster-component lock while doing outbound
// I/O.
type OutcomeRecorder interface {
	RecordJobCompletion(nodeID string, success bool)
}

// Dispatcher forwards admitted requests to a live node, round-robining
// among candidates and retrying once on failure.
type Dispatcher struct {
	reg      *registry.Registry
	breakers *breaker.Table
	client   *http.Client

	cursor uint64

	clusterName    string
	maxRetries     int
	maxReplayBytes int
	requestTimeout time.Duration

	metrics OutcomeRecorder
}

// Config bundles the Dispatcher's tunables.
type Config struct {
	ClusterName    string
	MaxRetries     int           // default 1
	MaxReplayBytes int           // default 1<<20 (1 MiB)
	RequestTimeout time.Duration // default 30s
}

func New(reg *registry.Registry, breakers *breaker.Table, client *http.Client, cfg Config, metrics OutcomeRecorder) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxReplayBytes <= 0 {
		cfg.MaxReplayBytes = 1 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		reg: reg, breakers: breakers, client: client,
		clusterName: cfg.ClusterName, maxRetries: cfg.MaxRetries,
		maxReplayBytes: cfg.MaxReplayBytes, requestTimeout: cfg.RequestTimeout,
		metrics: metrics,
	}
}

// admittedCandidates returns Online nodes not open in their circuit
// breaker, not at capacity, and not in excluded, in registry order. The
// breaker check here is the non-reserving Admitted: the probe-reserving
// Allow call happens only for the node actually selected, so a HalfOpen
// reservation is never leaked on a node the cursor skipped. When at least
// one remaining online node is held back by its breaker, the earliest
// reopening time among those is also returned, so a caller left with no
// candidate can surface a CIRCUIT_OPEN denial with a usable Retry-After
// instead of a bare 503.
func (d *Dispatcher) admittedCandidates(now time.Time, excluded map[string]bool) ([]schema.NodeRecord, time.Time) {
	online := d.reg.ListOnline()
	out := make([]schema.NodeRecord, 0, len(online))
	var earliestRetry time.Time
	for _, n := range online {
		if excluded[n.NodeID] {
			continue
		}
		if ok, openUntil := d.breakers.Admitted(n.NodeID, now); !ok {
			if earliestRetry.IsZero() || openUntil.Before(earliestRetry) {
				earliestRetry = openUntil
			}
			continue
		}
		if n.MaxJobs > 0 && n.ActiveJobs >= n.MaxJobs {
			continue
		}
		out = append(out, n)
	}
	return out, earliestRetry
}

// nextCandidate performs the strict round-robin selection: cursor%len,
// incrementing the shared cursor exactly once per call regardless of
// concurrent callers.
func (d *Dispatcher) nextCandidate(candidates []schema.NodeRecord) schema.NodeRecord {
	idx := atomic.AddUint64(&d.cursor, 1) - 1
	return candidates[idx%uint64(len(candidates))]
}

// Forward selects an admitted node, forwards the request, and retries once
// on failure. On success it writes the relayed response directly to rw
// and returns nil. On failure it returns a ClusterError the caller
// (Gateway) should render instead -- nothing has been written to rw in
// that case.
func (d *Dispatcher) Forward(rw http.ResponseWriter, r *http.Request) *clustererr.ClusterError {
	ctx := r.Context()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	var capture *capturingReader
	var body io.Reader
	streamable := r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil
	if streamable {
		capture = newCapturingReader(r.Body, d.maxReplayBytes)
		body = capture
	}

	excluded := map[string]bool{}
	attempts := d.maxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		now := time.Now()

		var node schema.NodeRecord
		for {
			candidates, breakerRetry := d.admittedCandidates(now, excluded)
			if len(candidates) == 0 {
				if !breakerRetry.IsZero() {
					retryAfter := breakerRetry.Sub(now).Milliseconds()
					if retryAfter < 0 {
						retryAfter = 0
					}
					return clustererr.CircuitOpenErr("all", retryAfter)
				}
				return clustererr.RegionUnavailableErr("all")
			}

			node = d.nextCandidate(candidates)
			// Reserve the breaker slot for the chosen node only. Losing
			// this race (another caller took the single HalfOpen probe
			// between the filter and here) is not a dispatch attempt;
			// re-select without the node.
			if ok, _ := d.breakers.Allow(node.NodeID, now); !ok {
				excluded[node.NodeID] = true
				continue
			}
			break
		}

		var attemptBody io.Reader
		if streamable {
			if attempt == 0 {
				attemptBody = body
			} else if capture != nil && capture.replayable() {
				attemptBody = capture.replay()
			} else {
				// Cannot retry: either never captured (shouldn't happen on
				// attempt>0) or exceeded maxReplayBytes on attempt 0.
				return clustererr.BadGatewayErr("retry required but request body exceeded replay limit")
			}
		}

		status, respHeader, respBody, err := d.forwardOnce(ctx, r, node, attemptBody)
		if err != nil {
			// A canceled context means the caller went away, not that the
			// node misbehaved: neutral, no breaker failure, no retry.
			if errors.Is(ctx.Err(), context.Canceled) {
				return clustererr.BadGatewayErr("request canceled before the node responded")
			}
			d.breakers.OnFailure(node.NodeID, now)
			if d.metrics != nil {
				d.metrics.RecordJobCompletion(node.NodeID, false)
			}
			excluded[node.NodeID] = true
			log.Warnf("dispatch: attempt to %s failed: %v", node.NodeID, err)
			continue
		}

		if status >= 500 {
			d.breakers.OnFailure(node.NodeID, now)
			if d.metrics != nil {
				d.metrics.RecordJobCompletion(node.NodeID, false)
			}
			excluded[node.NodeID] = true
			if respBody != nil {
				respBody.Close()
			}
			log.Warnf("dispatch: node %s returned %d", node.NodeID, status)
			continue
		}

		d.breakers.OnSuccess(node.NodeID)
		if d.metrics != nil {
			d.metrics.RecordJobCompletion(node.NodeID, true)
		}
		relay(rw, status, respHeader, respBody, d.clusterName, node.DisplayName, node.NodeID)
		return nil
	}

	return clustererr.BadGatewayErr("all admitted nodes failed")
}

// forwardOnce constructs and performs a single outbound call, returning
// the raw status/headers/body on a transport-level success (even a 5xx
// response is a "success" here; only transport errors return err!=nil).
func (d *Dispatcher) forwardOnce(ctx context.Context, r *http.Request, node schema.NodeRecord, body io.Reader) (int, http.Header, io.ReadCloser, error) {
	outURL := node.Address + r.URL.Path
	if r.URL.RawQuery != "" {
		outURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, outURL, body)
	if err != nil {
		return 0, nil, nil, err
	}

	req.Header = cloneHeaderWithout(r.Header, hopByHopHeaders)
	req.Header.Set("X-Forwarded-By", "orchestrator")
	req.Header.Set("X-Forwarded-For", clientIP(r))
	req.Header.Set("X-Forwarded-Proto", forwardedProto(r))
	req.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, resp.Body, nil
}

// relay writes the peer's response to rw, stripping hop-by-hop headers and
// stamping X-Served-By.
func relay(rw http.ResponseWriter, status int, header http.Header, body io.ReadCloser, clusterName, nodeDisplayName, nodeID string) {
	if body != nil {
		defer body.Close()
	}

	dst := rw.Header()
	for k, vs := range cloneHeaderWithout(header, hopByHopHeaders) {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}

	served := nodeDisplayName
	if served == "" {
		served = nodeID
	}
	dst.Set("X-Served-By", "cluster:"+served)

	rw.WriteHeader(status)
	if body != nil {
		io.Copy(rw, body)
	}
}

func cloneHeaderWithout(h http.Header, drop []string) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		skip := false
		for _, d := range drop {
			if strings.EqualFold(k, d) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}

func forwardedProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
