// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package breaker implements a per-node circuit breaker table:
// Closed/Open/HalfOpen transitions with exponential backoff capped at a
// maximum, and at most one in-flight probe while HalfOpen.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker's per-node state machine position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

type entry struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	retryAt             time.Time
	backoff             time.Duration
	probeInFlight       bool
}

// Table owns one entry per node.
type Table struct {
	mu               sync.Mutex
	entries          map[string]*entry
	failureThreshold int
	cooldown         time.Duration
	maxCooldown      time.Duration
}

// New builds a Table. failureThreshold is the consecutive-failure count
// that trips Closed->Open; cooldown is the initial Open->HalfOpen delay;
// maxCooldown caps the exponential backoff applied on repeated HalfOpen
// probe failures.
func New(failureThreshold int, cooldown, maxCooldown time.Duration) *Table {
	return &Table{
		entries:          make(map[string]*entry),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		maxCooldown:      maxCooldown,
	}
}

func (t *Table) get(nodeID string) *entry {
	e, ok := t.entries[nodeID]
	if !ok {
		e = &entry{state: Closed, backoff: t.cooldown}
		t.entries[nodeID] = e
	}
	return e
}

// Allow reports whether nodeID may currently receive a request. When the
// breaker is Open but the cooldown has elapsed, the entry transitions to
// HalfOpen and reserves the single admitted probe; subsequent concurrent
// callers are denied until that probe resolves. At most one request is
// admitted per node while HalfOpen.
func (t *Table) Allow(nodeID string, now time.Time) (ok bool, openUntil time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(nodeID)
	switch e.state {
	case Closed:
		return true, time.Time{}
	case HalfOpen:
		// A probe is already admitted and unresolved.
		return false, e.retryAt
	case Open:
		if now.Before(e.retryAt) {
			return false, e.retryAt
		}
		e.state = HalfOpen
		e.probeInFlight = true
		return true, time.Time{}
	}
	return false, e.retryAt
}

// Admitted reports whether nodeID could currently receive a request,
// without mutating the entry: no HalfOpen transition, no probe
// reservation. Selection loops use this to filter candidates; the
// reserving Allow call happens only for the node actually chosen.
func (t *Table) Admitted(nodeID string, now time.Time) (ok bool, openUntil time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(nodeID)
	switch e.state {
	case Closed:
		return true, time.Time{}
	case HalfOpen:
		return false, e.retryAt
	case Open:
		if now.Before(e.retryAt) {
			return false, e.retryAt
		}
		return true, time.Time{}
	}
	return false, e.retryAt
}

// OnSuccess zeros the failure counter and closes the circuit. If the
// success was the reserved HalfOpen probe, the circuit closes fully.
func (t *Table) OnSuccess(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(nodeID)
	e.state = Closed
	e.consecutiveFailures = 0
	e.probeInFlight = false
	e.backoff = t.cooldown
}

// OnFailure increments the consecutive-failure counter. A Closed entry
// trips Open once the counter reaches failureThreshold; a HalfOpen probe
// failure re-opens the breaker with exponential backoff capped at
// maxCooldown.
func (t *Table) OnFailure(nodeID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(nodeID)
	e.consecutiveFailures++

	switch e.state {
	case HalfOpen:
		e.probeInFlight = false
		e.backoff *= 2
		if e.backoff > t.maxCooldown {
			e.backoff = t.maxCooldown
		}
		e.state = Open
		e.openedAt = now
		e.retryAt = now.Add(e.backoff)
	case Closed:
		if e.consecutiveFailures >= t.failureThreshold {
			e.state = Open
			e.openedAt = now
			e.backoff = t.cooldown
			e.retryAt = now.Add(e.backoff)
		}
	case Open:
		// Already open; nothing to do until cooldown elapses.
	}
}

// State returns the current state and retryAt for a node (for
// introspection/testing).
func (t *Table) State(nodeID string) (State, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(nodeID)
	return e.state, e.retryAt
}

// Failures returns the consecutive-failure count for a node.
func (t *Table) Failures(nodeID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(nodeID).consecutiveFailures
}
