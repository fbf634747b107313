// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resources tracks accumulated usage and estimated cost per
// (entity, billing period).
package resources

import (
	"math"
	"sync"
	"time"

	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

type key struct {
	entityID   string
	entityType schema.EntityType
}

// Tracker owns ResourceUsage records, in-flight ActiveJob descriptors, and
// optional per-entity cost budgets.
type Tracker struct {
	mu         sync.Mutex
	usage      map[key]*schema.ResourceUsage
	activeJobs map[string]schema.ActiveJob
	budgets    map[key]int64
	rates      schema.CostRates
}

func New(rates schema.CostRates) *Tracker {
	return &Tracker{
		usage:      make(map[key]*schema.ResourceUsage),
		activeJobs: make(map[string]schema.ActiveJob),
		budgets:    make(map[key]int64),
		rates:      rates,
	}
}

// SetBudget caps an entity's estimated cost for the current period.
// StartJob refuses new work once the cap is reached; maxCostCents <= 0
// clears the cap.
func (t *Tracker) SetBudget(entityID string, entityType schema.EntityType, maxCostCents int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, entityType}
	if maxCostCents <= 0 {
		delete(t.budgets, k)
		return
	}
	t.budgets[k] = maxCostCents
}

// InitPeriod creates or resets the usage record for (entityID, entityType)
// over [start, end].
func (t *Tracker) InitPeriod(entityID string, entityType schema.EntityType, start, end time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, entityType}
	t.usage[k] = &schema.ResourceUsage{
		EntityID:    entityID,
		EntityType:  entityType,
		PeriodStart: start,
		PeriodEnd:   end,
	}
}

// StartJob records an active-job descriptor and increments jobCount for
// its entity.
func (t *Tracker) StartJob(jobID, entityID string, entityType schema.EntityType, cores, ramMb float64, now time.Time) *clustererr.ClusterError {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, entityType}
	u, ok := t.usage[k]
	if !ok {
		return clustererr.New(clustererr.BadRequest, "no billing period initialized for entity", "entityId", entityID)
	}
	if budget, ok := t.budgets[k]; ok && u.EstimatedCostCents >= budget {
		return clustererr.QuotaExceededErr(entityID)
	}

	t.activeJobs[jobID] = schema.ActiveJob{
		JobID: jobID, EntityID: entityID, EntityType: entityType,
		StartedAt: now, CPUCores: cores, RAMMb: ramMb,
	}
	u.JobCount++
	if ramMb > u.PeakRamMb {
		u.PeakRamMb = ramMb
	}
	t.recomputeCost(u)
	return nil
}

// EndJob finalizes a job started by StartJob: computes elapsed CPU-minutes,
// updates peak RAM, adds network egress, and recomputes cost.
func (t *Tracker) EndJob(jobID string, egressMb float64, now time.Time) *clustererr.ClusterError {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.activeJobs[jobID]
	if !ok {
		return clustererr.JobNotFoundErr(jobID)
	}
	delete(t.activeJobs, jobID)

	k := key{job.EntityID, job.EntityType}
	u, ok := t.usage[k]
	if !ok {
		return clustererr.New(clustererr.BadRequest, "no billing period initialized for entity", "entityId", job.EntityID)
	}

	durationMs := now.Sub(job.StartedAt).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}
	u.CPUMinutes += (float64(durationMs) / 60000.0) * job.CPUCores
	if job.RAMMb > u.PeakRamMb {
		u.PeakRamMb = job.RAMMb
	}
	u.NetworkEgressMb += egressMb
	t.recomputeCost(u)
	return nil
}

// RecordStorage replaces the tracked storage footprint for an entity and
// recomputes cost.
func (t *Tracker) RecordStorage(entityID string, entityType schema.EntityType, storageMb float64) *clustererr.ClusterError {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, entityType}
	u, ok := t.usage[k]
	if !ok {
		return clustererr.New(clustererr.BadRequest, "no billing period initialized for entity", "entityId", entityID)
	}
	u.StorageMb = storageMb
	t.recomputeCost(u)
	return nil
}

// Usage returns a copy of the tracked usage record for an entity.
func (t *Tracker) Usage(entityID string, entityType schema.EntityType) (schema.ResourceUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.usage[key{entityID, entityType}]
	if !ok {
		return schema.ResourceUsage{}, false
	}
	return *u, true
}

// recomputeCost applies the cost formula. Caller must hold t.mu.
//
// The RAM-hours term deliberately uses the full period length rather than
// actual allocation time -- this over-counts for short jobs, but the
// behaviour is a known, deliberate approximation and not a bug to be
// fixed here.
func (t *Tracker) recomputeCost(u *schema.ResourceUsage) {
	periodHours := u.PeriodEnd.Sub(u.PeriodStart).Hours()
	ramHours := (u.PeakRamMb / 1024) * periodHours

	cpuCost := u.CPUMinutes * t.rates.CPURateCentsPerMinute
	ramCost := ramHours * t.rates.RAMRateCentsPerHour
	storageCost := (u.StorageMb / 1024) * t.rates.StorageRateCentsPerGB
	egressCost := (u.NetworkEgressMb / 1024) * t.rates.EgressRateCentsPerGB

	u.EstimatedCostCents = int64(math.Round(cpuCost + ramCost + storageCost + egressCost))
}
