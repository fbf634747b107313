// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"github.com/gorilla/mux"
	"github.com/kRxZykRxZy/gittic/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MountMetrics registers a Prometheus /metrics endpoint backed by a fresh
// registry holding only the cluster's own collector (no Go-runtime
// default metrics noise for this small a surface).
func (api *RestApi) MountMetrics(r *mux.Router) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewPrometheusCollector(api.Core.Metrics))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
}
