// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kRxZykRxZy/gittic/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewWiresGatewayAndComponents(t *testing.T) {
	keys := config.Defaults()
	keys.ClusterToken = "secret"
	local := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	c := New(keys, local)
	require.NotNil(t, c.Registry)
	require.NotNil(t, c.Gateway)
	require.Same(t, c.Dispatcher, c.Gateway.Dispatcher)
	require.Same(t, c.RateLimit, c.Gateway.RateLimiter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rw := httptest.NewRecorder()
	c.Gateway.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestStartAndStopScheduler(t *testing.T) {
	keys := config.Defaults()
	c := New(keys, http.NotFoundHandler())

	require.NoError(t, c.Start())
	require.NoError(t, c.Stop())
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	c := New(config.Defaults(), http.NotFoundHandler())
	require.NoError(t, c.Stop())
}
