// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command cc-orchestrator runs the cluster orchestration core: node
// registry, load monitor, rate limiter, circuit breakers, and the
// forwarding gateway, fronted by a REST control API and a Prometheus
// /metrics endpoint.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/kRxZykRxZy/gittic/internal/config"
	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/kRxZykRxZy/gittic/pkg/runtimeEnv"
)

var version string = "development"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("cc-orchestrator %s\n", version)
		os.Exit(0)
	}

	if flagDev {
		flagLogLevel = "debug"
	}
	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	runtimeEnv.LoadDotEnv(flagConfigFile)
	keys := config.Init()
	if keys.ClusterToken == "" {
		log.Fatal("CLUSTER_TOKEN is not set, refusing to start with cluster auth disabled")
	}

	serverInit(keys)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("recovered from panic in server goroutine: %v\n%s", r, debug.Stack())
			}
		}()
		serverStart()
	}()

	runtimeEnv.SystemdNotify(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Infof("received signal %s, shutting down...", sig.String())
	runtimeEnv.SystemdNotify(false, "stopping")

	serverShutdown()
	wg.Wait()
}
