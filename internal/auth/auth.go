// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth guards the cluster-control endpoints: node registration
// and heartbeats carry a single shared-secret bearer token. The
// user-facing login/session stack of the surrounding platform has no
// equivalent on the machine-to-machine cluster control
// plane. A node may additionally present a short-lived JWT (signed with
// the same cluster secret) instead of the raw token, letting an operator
// hand out scoped, expiring credentials without changing the worker-node
// registration payload.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kRxZykRxZy/gittic/internal/clustererr"
	"github.com/kRxZykRxZy/gittic/pkg/log"
)

// ClusterClaims is the payload of an optional node-scoped JWT.
type ClusterClaims struct {
	NodeID string `json:"nodeId"`
	jwt.RegisteredClaims
}

// Verifier checks the bearer credential on cluster-control requests.
type Verifier struct {
	clusterToken string
}

func New(clusterToken string) *Verifier {
	return &Verifier{clusterToken: clusterToken}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

// Check verifies the request's bearer credential against the shared
// cluster token, falling back to a ClusterClaims JWT signed with the same
// secret. A Verifier constructed without a token rejects everything; the
// process refuses to boot without CLUSTER_TOKEN, so that state only
// occurs in tests that never reach an authenticated endpoint.
func (v *Verifier) Check(r *http.Request) *clustererr.ClusterError {
	if v.clusterToken == "" {
		return clustererr.AuthFailedErr("no cluster token configured")
	}

	tok, ok := bearerToken(r)
	if !ok {
		return clustererr.AuthFailedErr("missing bearer token")
	}
	if tok == v.clusterToken {
		return nil
	}

	if _, err := v.parseNodeJWT(tok); err != nil {
		log.Debugf("auth: rejected credential: %v", err)
		return clustererr.AuthFailedErr("invalid bearer token")
	}
	return nil
}

func (v *Verifier) parseNodeJWT(raw string) (*ClusterClaims, error) {
	claims := &ClusterClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(v.clusterToken), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueNodeToken mints a short-lived JWT scoped to nodeID, signed with the
// shared cluster secret. Intended for operators who want to hand a node a
// time-boxed credential instead of the long-lived shared token.
func (v *Verifier) IssueNodeToken(nodeID string, ttl time.Duration) (string, error) {
	claims := ClusterClaims{
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.clusterToken))
}

// Middleware wraps next with the bearer-token check, writing a structured
// ClusterError response on failure instead of calling through.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if cerr := v.Check(r); cerr != nil {
			clustererr.WriteJSON(rw, cerr)
			return
		}
		next.ServeHTTP(rw, r)
	})
}
