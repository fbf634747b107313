// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry implements the authoritative node-id -> node record
// mapping, mutated by registration, heartbeats, drain/remove commands, and
// a background offline sweeper.
package registry

import (
	"sync"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

// HeartbeatStats is the subset of a metric snapshot a Heartbeat call
// refreshes on the node record.
type HeartbeatStats struct {
	ActiveJobs     int
	CPUUsagePct    float64
	MemoryUsagePct float64
}

// Registry owns all NodeRecords. Every method acquires mu only for the
// duration of its mutation/snapshot; no I/O happens under the lock.
type Registry struct {
	mu          sync.Mutex
	nodes       map[string]*schema.NodeRecord
	// order records registration order so ListOnline/ListAll return a
	// stable iteration order (ties among candidates break on this order)
	// instead of Go's randomized map order.
	order       []string
	nodeTimeout time.Duration
}

func New(nodeTimeout time.Duration) *Registry {
	return &Registry{
		nodes:       make(map[string]*schema.NodeRecord),
		nodeTimeout: nodeTimeout,
	}
}

// Register is idempotent on nodeId: a repeat call from the same owner
// token updates address/capacity/version in place. A conflicting nodeId
// registered under a different token fails with AuthFailed.
func (r *Registry) Register(req schema.RegisterRequest, now time.Time) (*schema.NodeRecord, *clustererr.ClusterError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[req.NodeID]; ok {
		if existing.OwnerToken() != req.Token {
			return nil, clustererr.AuthFailedErr("node id already registered under a different owner token")
		}
		existing.Address = req.Address
		existing.Cores = req.Cores
		existing.MemoryBytes = req.MemoryBytes
		existing.MaxJobs = req.MaxJobs
		existing.Capabilities = req.Capabilities
		existing.Version = req.Version
		existing.LastHeartbeatAt = now
		existing.Status = schema.NodeOnline
		log.Infof("registry: node %s re-registered", req.NodeID)
		return existing, nil
	}

	rec := &schema.NodeRecord{
		NodeID:          req.NodeID,
		Address:         req.Address,
		Cores:           req.Cores,
		MemoryBytes:     req.MemoryBytes,
		MaxJobs:         req.MaxJobs,
		Capabilities:    req.Capabilities,
		Version:         req.Version,
		Status:          schema.NodeOnline,
		RegisteredAt:    now,
		LastHeartbeatAt: now,
	}
	rec.SetOwnerToken(req.Token)
	r.nodes[req.NodeID] = rec
	r.order = append(r.order, req.NodeID)
	log.Infof("registry: node %s registered at %s", req.NodeID, req.Address)
	return rec, nil
}

// Heartbeat refreshes liveness and load fields for an existing node. A
// heartbeat from a previously-Offline node brings it back Online.
// Heartbeat observations are monotonic: a heartbeat carrying an older
// wall-clock than the last one recorded is still accepted (ties break on
// wall-clock), since the caller's `now` is always the receive time, never
// a client-supplied timestamp.
func (r *Registry) Heartbeat(nodeID string, stats HeartbeatStats, now time.Time) *clustererr.ClusterError {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return clustererr.NodeNotFoundErr(nodeID)
	}

	rec.LastHeartbeatAt = now
	rec.ActiveJobs = stats.ActiveJobs
	if rec.MaxJobs > 0 && rec.ActiveJobs > rec.MaxJobs {
		log.Warnf("registry: node %s reported %d active jobs over its capacity %d", nodeID, rec.ActiveJobs, rec.MaxJobs)
		rec.ActiveJobs = rec.MaxJobs
	}
	rec.CPUUsagePct = stats.CPUUsagePct
	rec.MemoryUsagePct = stats.MemoryUsagePct
	if rec.Status == schema.NodeOffline {
		rec.Status = schema.NodeOnline
	}
	return nil
}

// SweepOffline downgrades any node whose last heartbeat is older than
// nodeTimeout to Offline. Intended to run periodically from a scheduler.
func (r *Registry) SweepOffline(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	downgraded := 0
	cutoff := now.Add(-r.nodeTimeout)
	for _, rec := range r.nodes {
		if rec.Status != schema.NodeOffline && rec.LastHeartbeatAt.Before(cutoff) {
			rec.Status = schema.NodeOffline
			downgraded++
			log.Warnf("registry: node %s marked offline (last heartbeat %s)", rec.NodeID, rec.LastHeartbeatAt)
		}
	}
	return downgraded
}

// Drain forbids new dispatch to nodeId; the node remains present until
// explicitly removed. Draining an already-draining node is a conflict,
// not an idempotent no-op, so an operator issuing a second drain learns
// the first one is still running down.
func (r *Registry) Drain(nodeID string) *clustererr.ClusterError {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return clustererr.NodeNotFoundErr(nodeID)
	}
	if rec.Status == schema.NodeDraining {
		return clustererr.DrainInProgressErr(nodeID)
	}
	rec.Status = schema.NodeDraining
	return nil
}

// Remove deletes the node record entirely. A draining node still running
// jobs cannot be removed until it has run down to zero.
func (r *Registry) Remove(nodeID string) *clustererr.ClusterError {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return clustererr.NodeNotFoundErr(nodeID)
	}
	if rec.Status == schema.NodeDraining && rec.ActiveJobs > 0 {
		return clustererr.DrainInProgressErr(nodeID)
	}
	delete(r.nodes, nodeID)
	for i, id := range r.order {
		if id == nodeID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the node record, or NodeNotFound.
func (r *Registry) Get(nodeID string) (schema.NodeRecord, *clustererr.ClusterError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.nodes[nodeID]
	if !ok {
		return schema.NodeRecord{}, clustererr.NodeNotFoundErr(nodeID)
	}
	return *rec, nil
}

// ListOnline returns a consistent point-in-time snapshot of every node
// currently Online. Callers must not mutate through it: each element is a
// copy, not a pointer into registry-owned state.
func (r *Registry) ListOnline() []schema.NodeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]schema.NodeRecord, 0, len(r.nodes))
	for _, id := range r.order {
		rec, ok := r.nodes[id]
		if ok && rec.Status == schema.NodeOnline {
			out = append(out, *rec)
		}
	}
	return out
}

// ListAll returns a snapshot of every node regardless of status, in
// registration order.
func (r *Registry) ListAll() []schema.NodeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]schema.NodeRecord, 0, len(r.nodes))
	for _, id := range r.order {
		if rec, ok := r.nodes[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}
