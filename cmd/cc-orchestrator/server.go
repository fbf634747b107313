// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/kRxZykRxZy/gittic/internal/api"
	"github.com/kRxZykRxZy/gittic/internal/config"
	"github.com/kRxZykRxZy/gittic/internal/core"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/runtimeEnv"
)

var (
	clusterCore *core.Core
	server      *http.Server
)

// serverInit builds the local API router, wires it behind the Gateway,
// and constructs the Core that owns every cluster-core component.
func serverInit(keys config.Keys) {
	router := mux.NewRouter()
	restApi := &api.RestApi{}

	// The local handler the Gateway falls back to (or bypasses to for
	// control-plane paths) is this process's own API surface; restApi.Core
	// is wired in below once Core exists, closing the circular dependency
	// between the router and the Core that fronts it.
	clusterCore = core.New(keys, router)
	restApi.Core = clusterCore
	restApi.MountRoutes(router)
	restApi.MountMetrics(router)

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	loggedHandler := handlers.CustomLoggingHandler(io.Discard, clusterCore.Gateway, func(_ io.Writer, params handlers.LogFormatterParams) {
		logLine := func(format string, args ...interface{}) {
			if strings.HasPrefix(params.Request.RequestURI, "/api/") {
				log.Infof(format, args...)
			} else {
				log.Debugf(format, args...)
			}
		}
		logLine("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      loggedHandler,
		Addr:         ":" + keys.Port,
	}
}

func serverStart() {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatalf("starting http listener failed: %v", err)
	}

	// Bind the (possibly privileged) port first, then drop to the
	// unprivileged user/group: the listening fd survives the uid/gid
	// change, the rest of the process does not run as root.
	if flagUser != "" || flagGroup != "" {
		if err := runtimeEnv.DropPrivileges(flagUser, flagGroup); err != nil {
			log.Fatalf("dropping privileges to user=%q group=%q failed: %v", flagUser, flagGroup, err)
		}
	}

	if err := clusterCore.Start(); err != nil {
		log.Fatalf("starting cluster-core scheduler failed: %v", err)
	}

	log.Printf("orchestrator listening at %s...", server.Addr)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Fatalf("starting server failed: %v", err)
	}
}

func serverShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	if err := clusterCore.Stop(); err != nil {
		log.Warnf("core shutdown: %v", err)
	}
}
