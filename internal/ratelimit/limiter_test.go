// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ratelimit

import (
	"testing"
	"time"

	"github.com/kRxZykRxZy/gittic/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestHardLimitDenialScenario4(t *testing.T) {
	l := New()
	l.AddRule(schema.RateLimitRule{RuleID: "r1", MaxRequests: 2, WindowMs: 1000, HardLimit: true})

	t0 := time.Now()
	res1 := l.Consume("u1", t0)
	require.True(t, res1.Allowed)
	res2 := l.Consume("u1", t0.Add(100*time.Millisecond))
	require.True(t, res2.Allowed)
	res3 := l.Consume("u1", t0.Add(200*time.Millisecond))
	require.False(t, res3.Allowed)
	require.InDelta(t, 800, res3.RetryAfterMs, 5)
}

func TestSlidingWindowPruning(t *testing.T) {
	l := New()
	l.AddRule(schema.RateLimitRule{RuleID: "r1", MaxRequests: 1, WindowMs: 100, HardLimit: true})

	t0 := time.Now()
	res1 := l.Consume("u1", t0)
	require.True(t, res1.Allowed)

	res2 := l.Consume("u1", t0.Add(50*time.Millisecond))
	require.False(t, res2.Allowed)

	res3 := l.Consume("u1", t0.Add(150*time.Millisecond))
	require.True(t, res3.Allowed, "window should have fully elapsed")
}

func TestMostRestrictiveAmongMultipleRules(t *testing.T) {
	l := New()
	l.AddRule(schema.RateLimitRule{RuleID: "loose", MaxRequests: 100, WindowMs: 1000, HardLimit: false})
	l.AddRule(schema.RateLimitRule{RuleID: "strict", MaxRequests: 1, WindowMs: 1000, HardLimit: false})

	t0 := time.Now()
	res1 := l.Consume("u1", t0, "loose", "strict")
	require.True(t, res1.Allowed)
	require.Equal(t, "strict", res1.RuleID)

	res2 := l.Consume("u1", t0.Add(10*time.Millisecond), "loose", "strict")
	require.False(t, res2.Allowed)
	require.Equal(t, "strict", res2.RuleID)
}

func TestRemoveRuleDropsBuckets(t *testing.T) {
	l := New()
	l.AddRule(schema.RateLimitRule{RuleID: "r1", MaxRequests: 1, WindowMs: 1000, HardLimit: true})
	l.Consume("u1", time.Now())
	l.RemoveRule("r1")

	res := l.Check("u1", time.Now(), "r1")
	require.True(t, res.Allowed, "no rules left to evaluate means allowed")
}
