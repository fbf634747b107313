// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckRejectsMissingToken(t *testing.T) {
	v := New("secret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clusters/register", nil)
	cerr := v.Check(req)
	require.NotNil(t, cerr)
	require.Equal(t, "AUTH_FAILED", string(cerr.Code))
}

func TestCheckAcceptsSharedToken(t *testing.T) {
	v := New("secret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clusters/register", nil)
	req.Header.Set("Authorization", "Bearer secret")
	require.Nil(t, v.Check(req))
}

func TestCheckAcceptsIssuedNodeJWT(t *testing.T) {
	v := New("secret")
	tok, err := v.IssueNodeToken("N1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clusters/heartbeat", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	require.Nil(t, v.Check(req))
}

func TestCheckRejectsExpiredNodeJWT(t *testing.T) {
	v := New("secret")
	tok, err := v.IssueNodeToken("N1", -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clusters/heartbeat", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	cerr := v.Check(req)
	require.NotNil(t, cerr)
}

func TestCheckFailsClosedWithoutConfiguredToken(t *testing.T) {
	v := New("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clusters/register", nil)
	req.Header.Set("Authorization", "Bearer anything")
	cerr := v.Check(req)
	require.NotNil(t, cerr)
	require.Equal(t, "AUTH_FAILED", string(cerr.Code))
}
