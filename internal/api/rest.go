// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api mounts the cluster-control REST endpoints onto a gorilla/mux
// router: one receiver struct, one MountRoutes, one handler per concern.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/internal/core"
	"github.com/kRxZykRxZy/gittic/internal/registry"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/schema"
)

// RestApi is the receiver for every cluster-control HTTP handler.
type RestApi struct {
	Core *core.Core
}

// MountRoutes wires every cluster-control endpoint onto r.
func (api *RestApi) MountRoutes(r *mux.Router) {
	sub := r.PathPrefix("/api/v1").Subrouter()
	sub.StrictSlash(true)

	sub.Handle("/clusters/register", api.Core.Auth.Middleware(http.HandlerFunc(api.registerNode))).Methods(http.MethodPost)
	sub.Handle("/clusters/heartbeat", api.Core.Auth.Middleware(http.HandlerFunc(api.heartbeat))).Methods(http.MethodPost)
	sub.HandleFunc("/clusters/{nodeId}/drain", api.drainNode).Methods(http.MethodPost)
	sub.HandleFunc("/clusters/{nodeId}", api.removeNode).Methods(http.MethodDelete)
	sub.HandleFunc("/clusters", api.listNodes).Methods(http.MethodGet)

	sub.HandleFunc("/health", api.health).Methods(http.MethodGet)
	sub.HandleFunc("/health/live", api.healthLive).Methods(http.MethodGet)
	sub.HandleFunc("/health/ready", api.healthReady).Methods(http.MethodGet)
}

func decode(r io.Reader, val interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(rw).Encode(v)
	}
}

func (api *RestApi) registerNode(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		clustererr.WriteJSON(rw, clustererr.InternalErr(err))
		return
	}

	if err := schema.Validate(schema.NodeRegistration, bytes.NewReader(raw)); err != nil {
		log.Warnf("api: register-request failed schema validation: %v", err)
		clustererr.WriteJSON(rw, clustererr.BadRequestErr("malformed register request"))
		return
	}

	var req schema.RegisterRequest
	if err := decode(bytes.NewReader(raw), &req); err != nil {
		clustererr.WriteJSON(rw, clustererr.BadRequestErr("malformed register request"))
		return
	}
	if req.MaxJobs <= 0 {
		req.MaxJobs = api.Core.Keys.MaxJobsPerNode
	}

	rec, cerr := api.Core.Registry.Register(req, time.Now())
	if cerr != nil {
		clustererr.WriteJSON(rw, cerr)
		return
	}

	writeJSON(rw, http.StatusOK, schema.RegisterResponse{Accepted: true, NodeID: rec.NodeID})
}

type heartbeatRequest struct {
	NodeID         string                `json:"nodeId"`
	ActiveJobs     int                   `json:"activeJobs"`
	CPUUsagePct    float64               `json:"cpuUsagePct"`
	MemoryUsagePct float64               `json:"memoryUsagePct"`
	Metrics        schema.MetricSnapshot `json:"metrics"`
}

func (api *RestApi) heartbeat(rw http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decode(r.Body, &req); err != nil {
		clustererr.WriteJSON(rw, clustererr.BadRequestErr("malformed heartbeat request"))
		return
	}

	now := time.Now()
	stats := registry.HeartbeatStats{
		ActiveJobs:     req.ActiveJobs,
		CPUUsagePct:    req.CPUUsagePct,
		MemoryUsagePct: req.MemoryUsagePct,
	}
	if cerr := api.Core.Registry.Heartbeat(req.NodeID, stats, now); cerr != nil {
		clustererr.WriteJSON(rw, cerr)
		return
	}

	api.Core.Metrics.Ingest(req.NodeID, req.Metrics)
	writeJSON(rw, http.StatusOK, schema.HeartbeatAck{
		Ack:            true,
		NextIntervalMs: api.Core.Keys.HeartbeatIntervalMs,
	})
}

func (api *RestApi) drainNode(rw http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if cerr := api.Core.Registry.Drain(nodeID); cerr != nil {
		clustererr.WriteJSON(rw, cerr)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"draining": true})
}

func (api *RestApi) removeNode(rw http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if cerr := api.Core.Registry.Remove(nodeID); cerr != nil {
		clustererr.WriteJSON(rw, cerr)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"removed": true})
}

func (api *RestApi) listNodes(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, api.Core.Registry.ListAll())
}

func (api *RestApi) health(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"cluster": api.Core.Keys.ClusterName,
	})
}

func (api *RestApi) healthLive(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
}

// healthReady reports unready (503) until the process has taken its first
// load sample, and ready (200) after that, so a load balancer never routes
// traffic to an instance whose Monitor.ShouldForward() would still be
// judging against a zero-value Sample.
func (api *RestApi) healthReady(rw http.ResponseWriter, r *http.Request) {
	if api.Core.LoadMonitor.Snapshot().SampledAt.IsZero() {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
}
