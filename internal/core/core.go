// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package core wires the cluster-core components into one lifecycle
// object. A gocron scheduler drives the background sweeps (offline
// detection, rate-limit bucket cleanup, local metrics self-sampling) that
// keep the Registry, RateLimiter, and MetricsCollector state fresh without
// each component spinning its own goroutine+ticker.
package core

import (
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kRxZykRxZy/gittic/internal/auth"
	"github.com/kRxZykRxZy/gittic/internal/breaker"
	"github.com/kRxZykRxZy/gittic/internal/config"
	"github.com/kRxZykRxZy/gittic/internal/dispatch"
	"github.com/kRxZykRxZy/gittic/internal/gateway"
	"github.com/kRxZykRxZy/gittic/internal/loadmonitor"
	"github.com/kRxZykRxZy/gittic/internal/metrics"
	"github.com/kRxZykRxZy/gittic/internal/ratelimit"
	"github.com/kRxZykRxZy/gittic/internal/registry"
	"github.com/kRxZykRxZy/gittic/internal/resources"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

// Core owns every cluster-core component and the scheduler that keeps
// their background state fresh.
type Core struct {
	Keys config.Keys

	Registry    *registry.Registry
	LoadMonitor *loadmonitor.Monitor
	Metrics     *metrics.Collector
	Resources   *resources.Tracker
	RateLimit   *ratelimit.Limiter
	Breakers    *breaker.Table
	Dispatcher  *dispatch.Dispatcher
	Auth        *auth.Verifier
	Gateway     *gateway.Gateway

	scheduler gocron.Scheduler
}

// New constructs every cluster-core component from keys and wires them
// into a Gateway fronting localHandler (the in-process API mux). The
// scheduler is not started yet; call Start for that.
func New(keys config.Keys, localHandler http.Handler) *Core {
	c := &Core{Keys: keys}

	c.Registry = registry.New(keys.NodeTimeout())
	c.LoadMonitor = loadmonitor.NewDefault(keys.RAMThresholdPct, keys.CPUThresholdPct)
	c.Metrics = metrics.New(keys.MetricsHistoryCap, c.LoadMonitor)
	c.Resources = resources.New(schema.DefaultCostRates)
	c.RateLimit = ratelimit.New()

	ruleIDs := make([]string, 0, len(keys.RateLimitRules))
	for _, rule := range keys.RateLimitRules {
		c.RateLimit.AddRule(rule)
		ruleIDs = append(ruleIDs, rule.RuleID)
	}

	c.Breakers = breaker.New(keys.BreakerFailureThreshold, keys.BreakerCooldown(), keys.BreakerMaxCooldown())
	c.Auth = auth.New(keys.ClusterToken)

	c.Dispatcher = dispatch.New(c.Registry, c.Breakers, &http.Client{Timeout: keys.DispatchRequestTimeout()}, dispatch.Config{
		ClusterName:    keys.ClusterName,
		MaxRetries:     keys.DispatchMaxRetries,
		MaxReplayBytes: keys.DispatchMaxReplayBytes,
		RequestTimeout: keys.DispatchRequestTimeout(),
	}, c.Metrics)

	c.Gateway = &gateway.Gateway{
		LocalHandler:     localHandler,
		Dispatcher:       c.Dispatcher,
		LoadMonitor:      c.LoadMonitor,
		RateLimiter:      c.RateLimit,
		OrchestratorMode: keys.ForwardingOrchestrator,
		BypassPrefixes:   []string{"/api/v1/health", "/api/v1/clusters", "/metrics"},
		RuleIDs:          ruleIDs,
		SoftRatePerSec:   keys.SoftRateLimitPerSec,
		SoftBurst:        keys.SoftRateLimitBurst,
	}

	return c
}

// Start launches the background scheduler: the offline sweep, the
// rate-limit bucket cleanup, and local load sampling. It must be called
// once, after New.
func (c *Core) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	c.scheduler = s

	heartbeatInterval := c.Keys.HeartbeatInterval()
	if heartbeatInterval <= 0 {
		heartbeatInterval = 10 * time.Second
	}

	if _, err := s.NewJob(
		gocron.DurationJob(heartbeatInterval),
		gocron.NewTask(func() {
			n := c.Registry.SweepOffline(time.Now())
			if n > 0 {
				log.Infof("core: swept %d node(s) offline", n)
			}
		}),
	); err != nil {
		return err
	}

	if _, err := s.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			c.RateLimit.CleanupEmptyBuckets(time.Now())
		}),
	); err != nil {
		return err
	}

	if _, err := s.NewJob(
		gocron.DurationJob(5*time.Second),
		gocron.NewTask(func() {
			c.LoadMonitor.SampleNow(time.Now())
			sample := c.LoadMonitor.Snapshot()
			c.Metrics.RecordLocal("self", time.Now())
			log.Debugf("core: local sample cpu=%.1f%% mem=%.1f%%", sample.CPUPct, sample.MemoryPct)
		}),
	); err != nil {
		return err
	}

	s.Start()
	log.Info("core: scheduler started")
	return nil
}

// Stop drains the scheduler. Safe to call even if Start failed partway.
func (c *Core) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	log.Info("core: scheduler shutting down")
	return c.scheduler.Shutdown()
}
