// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ratelimit implements sliding-window admission control. Multiple
// named rules can apply to the same key; the most restrictive remaining
// admits, and any non-allowed hard rule short circuits. A
// golang.org/x/time/rate.Limiter backs an optional soft pre-check per key
// so cheap rejections don't need to touch the timestamp bucket at all.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
	"golang.org/x/time/rate"
)

// Result is the outcome of a Check/Consume call.
type Result struct {
	Allowed      bool
	Remaining    int
	Limit        int
	ResetMs      int64
	RetryAfterMs int64
	RuleID       string
}

type bucket struct {
	timestamps []time.Time
}

// Limiter owns rules and per-(rule,key) sliding-window buckets.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]schema.RateLimitRule
	buckets map[string]*bucket // keyed by ruleID + "\x00" + key
	soft    map[string]*rate.Limiter
}

func New() *Limiter {
	return &Limiter{
		rules:   make(map[string]schema.RateLimitRule),
		buckets: make(map[string]*bucket),
		soft:    make(map[string]*rate.Limiter),
	}
}

func bucketKey(ruleID, key string) string { return ruleID + "\x00" + key }

// AddRule registers or replaces a rule.
func (l *Limiter) AddRule(rule schema.RateLimitRule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules[rule.RuleID] = rule
}

// RemoveRule deletes a rule and any buckets keyed to it.
func (l *Limiter) RemoveRule(ruleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rules, ruleID)
	prefix := ruleID + "\x00"
	for k := range l.buckets {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(l.buckets, k)
		}
	}
}

// prune drops timestamps <= now-windowMs. Caller must hold l.mu.
func prune(b *bucket, now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(b.timestamps) && !b.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.timestamps = b.timestamps[i:]
	}
}

// checkRule evaluates a single rule for key at `now`, without mutating
// state. Caller must hold l.mu.
func (l *Limiter) checkRule(rule schema.RateLimitRule, key string, now time.Time) Result {
	window := time.Duration(rule.WindowMs) * time.Millisecond
	bk := bucketKey(rule.RuleID, key)
	b, ok := l.buckets[bk]
	if !ok {
		b = &bucket{}
		l.buckets[bk] = b
	}
	prune(b, now, window)

	used := len(b.timestamps)
	remaining := rule.MaxRequests - used
	allowed := remaining > 0

	var resetMs int64
	if len(b.timestamps) > 0 {
		oldestRemaining := b.timestamps[0].Add(window).Sub(now)
		if oldestRemaining < 0 {
			oldestRemaining = 0
		}
		resetMs = oldestRemaining.Milliseconds()
	}

	var retryAfterMs int64
	if !allowed {
		retryAfterMs = resetMs
	}

	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:      allowed,
		Remaining:    remaining,
		Limit:        rule.MaxRequests,
		ResetMs:      resetMs,
		RetryAfterMs: retryAfterMs,
		RuleID:       rule.RuleID,
	}
}

// Check evaluates the given ruleIds (or all registered rules, if empty)
// against key and returns the most restrictive remaining result. A
// non-allowed hard-limit rule short-circuits immediately.
func (l *Limiter) Check(key string, now time.Time, ruleIDs ...string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	rules := l.selectedRules(ruleIDs)
	if len(rules) == 0 {
		return Result{Allowed: true}
	}

	var most Result
	haveMost := false
	for _, rule := range rules {
		res := l.checkRule(rule, key, now)
		if !res.Allowed && rule.HardLimit {
			return res
		}
		if !haveMost || moreRestrictive(res, most) {
			most = res
			haveMost = true
		}
	}
	return most
}

// moreRestrictive reports whether a is a stricter outcome than b: fewer
// requests remaining, or denied where b was allowed.
func moreRestrictive(a, b Result) bool {
	if a.Allowed != b.Allowed {
		return !a.Allowed
	}
	return a.Remaining < b.Remaining
}

func (l *Limiter) selectedRules(ruleIDs []string) []schema.RateLimitRule {
	if len(ruleIDs) == 0 {
		out := make([]schema.RateLimitRule, 0, len(l.rules))
		for _, r := range l.rules {
			out = append(out, r)
		}
		return out
	}
	out := make([]schema.RateLimitRule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		if r, ok := l.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Record appends `now` to the bucket for (ruleID, key).
func (l *Limiter) Record(ruleID, key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bk := bucketKey(ruleID, key)
	b, ok := l.buckets[bk]
	if !ok {
		b = &bucket{}
		l.buckets[bk] = b
	}
	b.timestamps = append(b.timestamps, now)
}

// Consume checks admission for key against ruleIDs (or all rules) and, if
// allowed, records the event against every evaluated rule.
func (l *Limiter) Consume(key string, now time.Time, ruleIDs ...string) Result {
	l.mu.Lock()
	rules := l.selectedRules(ruleIDs)
	if len(rules) == 0 {
		l.mu.Unlock()
		return Result{Allowed: true}
	}

	var most Result
	haveMost := false
	var hardDeny *Result
	for _, rule := range rules {
		res := l.checkRule(rule, key, now)
		if !res.Allowed && rule.HardLimit {
			r := res
			hardDeny = &r
			break
		}
		if !haveMost || moreRestrictive(res, most) {
			most = res
			haveMost = true
		}
	}

	if hardDeny != nil {
		l.mu.Unlock()
		return *hardDeny
	}

	if most.Allowed {
		for _, rule := range rules {
			bk := bucketKey(rule.RuleID, key)
			b := l.buckets[bk]
			b.timestamps = append(b.timestamps, now)
		}
	}
	l.mu.Unlock()
	return most
}

// IsHardRule reports whether ruleID is registered with hardLimit=true.
func (l *Limiter) IsHardRule(ruleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rules[ruleID]
	return ok && r.HardLimit
}

// ConsumeOrError is the Gateway-facing convenience wrapper: it only
// returns a blocking ClusterError when the rule that produced the denial
// is a hard rule. A soft-rule denial still shows up in Check()/Consume()'s
// Result for callers that want that detail (e.g. to add throttling
// headers) but never blocks admission here.
func (l *Limiter) ConsumeOrError(key string, now time.Time, ruleIDs ...string) *clustererr.ClusterError {
	res := l.Consume(key, now, ruleIDs...)
	if res.Allowed {
		return nil
	}
	if !l.IsHardRule(res.RuleID) {
		return nil
	}
	return clustererr.RateLimitedErr(res.RuleID, res.RetryAfterMs)
}

// CleanupEmptyBuckets prunes expired timestamps from every bucket and drops
// buckets with zero retained timestamps, bounding memory for keys that have
// gone idle. Intended to run periodically from a scheduler.
func (l *Limiter) CleanupEmptyBuckets(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for bk, b := range l.buckets {
		if ruleID, _, ok := strings.Cut(bk, "\x00"); ok {
			if rule, ok := l.rules[ruleID]; ok {
				prune(b, now, time.Duration(rule.WindowMs)*time.Millisecond)
			}
		}
		if len(b.timestamps) == 0 {
			delete(l.buckets, bk)
			removed++
		}
	}
	return removed
}

// AllowSoft is a cheap secondary admission gate backed by
// golang.org/x/time/rate: a per-key token bucket meant to be checked
// before the sliding-window rule set, so a key that is wildly over any
// reasonable rate never has to walk its timestamp bucket at all. It is
// independent of the hard sliding-window rules and reports only a
// boolean verdict; a token bucket has no sliding-window "oldest entry" to
// derive a retryAfterMs from, so any caller surfacing a denial has to
// supply its own retry hint.
func (l *Limiter) AllowSoft(key string, ratePerSec float64, burst int) bool {
	l.mu.Lock()
	rl, ok := l.soft[key]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(ratePerSec), burst)
		l.soft[key] = rl
	}
	l.mu.Unlock()
	return rl.Allow()
}
