// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the orchestrator's environment-style configuration:
// a package-level Keys struct populated with defaults, then overridden from
// the process environment, with RATE_LIMIT_RULES validated against its JSON
// Schema before use.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

// Keys holds every CLUSTER_* tunable the orchestrator reads at startup.
type Keys struct {
	Port                     string
	ClusterName              string
	ClusterToken             string
	HeartbeatIntervalMs      int64
	NodeTimeoutMs            int64
	MaxJobsPerNode           int
	ForwardingOrchestrator   bool
	RAMThresholdPct          float64
	CPUThresholdPct          float64
	BreakerFailureThreshold  int
	BreakerCooldownMs        int64
	BreakerMaxCooldownMs     int64
	DispatchMaxRetries       int
	DispatchRequestTimeoutMs int64
	DispatchMaxReplayBytes   int
	MetricsHistoryCap        int
	RateLimitRules           []schema.RateLimitRule
	SoftRateLimitPerSec      float64
	SoftRateLimitBurst       int
}

// Defaults match what a freshly booted orchestrator uses before any
// environment override is applied.
func Defaults() Keys {
	return Keys{
		Port:                     "8080",
		ClusterName:              "default",
		ClusterToken:             "",
		HeartbeatIntervalMs:      10_000,
		NodeTimeoutMs:            30_000,
		MaxJobsPerNode:           4,
		ForwardingOrchestrator:   false,
		RAMThresholdPct:          90,
		CPUThresholdPct:          100,
		BreakerFailureThreshold:  3,
		BreakerCooldownMs:        5_000,
		BreakerMaxCooldownMs:     60_000,
		DispatchMaxRetries:       1,
		DispatchRequestTimeoutMs: 30_000,
		DispatchMaxReplayBytes:   1 << 20,
		MetricsHistoryCap:        120,
		RateLimitRules:           nil,
		SoftRateLimitPerSec:      50,
		SoftRateLimitBurst:       100,
	}
}

// Init builds Keys from defaults overridden by the environment (after
// runtimeEnv.LoadDotEnv has populated it from a .env file, if present).
// A malformed RATE_LIMIT_RULES payload is fatal: the orchestrator must
// not boot into an ambiguous admission-control state.
func Init() Keys {
	k := Defaults()

	if v := os.Getenv("PORT"); v != "" {
		k.Port = v
	}
	if v := os.Getenv("CLUSTER_NAME"); v != "" {
		k.ClusterName = v
	}
	if v := os.Getenv("CLUSTER_TOKEN"); v != "" {
		k.ClusterToken = v
	}
	// The recognized key is FORWARDING_ORCHESTRATOR. The system this
	// orchestrator descends from shipped with the key misspelled as
	// FORWARDING_ORCHESTRER; deployments migrating from it must rename
	// the variable, the misspelling is not additionally recognized.
	if v := os.Getenv("FORWARDING_ORCHESTRATOR"); v != "" {
		k.ForwardingOrchestrator = v == "1" || v == "true"
	}

	setInt64(&k.HeartbeatIntervalMs, "CLUSTER_HEARTBEAT_INTERVAL_MS")
	setInt64(&k.NodeTimeoutMs, "CLUSTER_NODE_TIMEOUT_MS")
	setInt(&k.MaxJobsPerNode, "CLUSTER_MAX_JOBS_PER_NODE")
	setFloat(&k.RAMThresholdPct, "RAM_THRESHOLD_PCT")
	setFloat(&k.CPUThresholdPct, "CPU_THRESHOLD_PCT")
	setInt(&k.BreakerFailureThreshold, "CLUSTER_BREAKER_FAILURE_THRESHOLD")
	setInt64(&k.BreakerCooldownMs, "CLUSTER_BREAKER_COOLDOWN_MS")
	setInt64(&k.BreakerMaxCooldownMs, "CLUSTER_BREAKER_MAX_COOLDOWN_MS")
	setInt(&k.DispatchMaxRetries, "CLUSTER_DISPATCH_MAX_RETRIES")
	setInt64(&k.DispatchRequestTimeoutMs, "CLUSTER_DISPATCH_TIMEOUT_MS")
	setInt(&k.DispatchMaxReplayBytes, "CLUSTER_DISPATCH_MAX_REPLAY_BYTES")
	setInt(&k.MetricsHistoryCap, "CLUSTER_METRICS_HISTORY_CAP")
	setFloat(&k.SoftRateLimitPerSec, "CLUSTER_SOFT_RATE_LIMIT_PER_SEC")
	setInt(&k.SoftRateLimitBurst, "CLUSTER_SOFT_RATE_LIMIT_BURST")

	if raw := os.Getenv("RATE_LIMIT_RULES"); raw != "" {
		if err := schema.Validate(schema.RateLimitRules, bytes.NewReader([]byte(raw))); err != nil {
			log.Fatalf("config: RATE_LIMIT_RULES failed schema validation: %v", err)
		}
		var rules []schema.RateLimitRule
		if err := json.Unmarshal([]byte(raw), &rules); err != nil {
			log.Fatalf("config: RATE_LIMIT_RULES did not decode: %v", err)
		}
		k.RateLimitRules = rules
	}

	return k
}

func setInt64(dst *int64, envKey string) {
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, keeping default %d", envKey, v, *dst)
		return
	}
	*dst = n
}

func setInt(dst *int, envKey string) {
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, keeping default %d", envKey, v, *dst)
		return
	}
	*dst = n
}

func setFloat(dst *float64, envKey string) {
	v := os.Getenv(envKey)
	if v == "" {
		return
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("config: %s=%q is not a number, keeping default %.1f", envKey, v, *dst)
		return
	}
	*dst = n
}

// Duration helpers: the *Ms fields are stored as plain milliseconds so
// they round-trip cleanly through the environment, but most call sites
// want a time.Duration.
func (k Keys) HeartbeatInterval() time.Duration {
	return time.Duration(k.HeartbeatIntervalMs) * time.Millisecond
}

func (k Keys) NodeTimeout() time.Duration {
	return time.Duration(k.NodeTimeoutMs) * time.Millisecond
}

func (k Keys) BreakerCooldown() time.Duration {
	return time.Duration(k.BreakerCooldownMs) * time.Millisecond
}

func (k Keys) BreakerMaxCooldown() time.Duration {
	return time.Duration(k.BreakerMaxCooldownMs) * time.Millisecond
}

func (k Keys) DispatchRequestTimeout() time.Duration {
	return time.Duration(k.DispatchRequestTimeoutMs) * time.Millisecond
}
