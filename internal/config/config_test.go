// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearClusterEnv(t *testing.T) {
	keys := []string{
		"PORT", "CLUSTER_NAME", "CLUSTER_TOKEN", "FORWARDING_ORCHESTRATOR",
		"CLUSTER_HEARTBEAT_INTERVAL_MS", "CLUSTER_NODE_TIMEOUT_MS",
		"CLUSTER_MAX_JOBS_PER_NODE", "RAM_THRESHOLD_PCT", "CPU_THRESHOLD_PCT",
		"RATE_LIMIT_RULES",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestInitDefaults(t *testing.T) {
	clearClusterEnv(t)
	k := Init()
	require.Equal(t, "8080", k.Port)
	require.Equal(t, 90.0, k.RAMThresholdPct)
	require.Equal(t, 100.0, k.CPUThresholdPct)
	require.Nil(t, k.RateLimitRules)
}

func TestInitOverridesFromEnv(t *testing.T) {
	clearClusterEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CLUSTER_MAX_JOBS_PER_NODE", "25")
	t.Setenv("RATE_LIMIT_RULES", `[{"ruleId":"r1","maxRequests":10,"windowMs":1000,"hardLimit":true}]`)

	k := Init()
	require.Equal(t, "9090", k.Port)
	require.Equal(t, 25, k.MaxJobsPerNode)
	require.Len(t, k.RateLimitRules, 1)
	require.Equal(t, "r1", k.RateLimitRules[0].RuleID)
	require.True(t, k.RateLimitRules[0].HardLimit)
}

func TestInitReplayBytesOverride(t *testing.T) {
	clearClusterEnv(t)
	t.Setenv("CLUSTER_DISPATCH_MAX_REPLAY_BYTES", "2048")
	k := Init()
	require.Equal(t, 2048, k.DispatchMaxReplayBytes)
}

func TestInitIgnoresMalformedIntAndKeepsDefault(t *testing.T) {
	clearClusterEnv(t)
	t.Setenv("CLUSTER_MAX_JOBS_PER_NODE", "not-a-number")
	k := Init()
	require.Equal(t, Defaults().MaxJobsPerNode, k.MaxJobsPerNode)
}
