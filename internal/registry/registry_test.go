// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"testing"
	"time"

	"github.com/kRxZykRxZy/gittic/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotent(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()

	req := schema.RegisterRequest{NodeID: "n1", Address: "http://10.0.0.1:9000", Cores: 4, MaxJobs: 10, Token: "tok"}
	rec1, err := r.Register(req, now)
	require.Nil(t, err)
	require.Equal(t, schema.NodeOnline, rec1.Status)

	req.Address = "http://10.0.0.2:9000"
	rec2, err := r.Register(req, now.Add(time.Second))
	require.Nil(t, err)
	require.Equal(t, "http://10.0.0.2:9000", rec2.Address)
	require.Len(t, r.ListAll(), 1)
}

func TestRegisterConflictingOwner(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()

	req := schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 1, Token: "tok-a"}
	_, err := r.Register(req, now)
	require.Nil(t, err)

	req.Token = "tok-b"
	_, err = r.Register(req, now)
	require.NotNil(t, err)
	require.Equal(t, "AUTH_FAILED", string(err.Code))
}

func TestHeartbeatRevivesOfflineNode(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()

	req := schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 1, Token: "tok"}
	_, err := r.Register(req, now)
	require.Nil(t, err)

	r.SweepOffline(now.Add(time.Hour))
	rec, _ := r.Get("n1")
	require.Equal(t, schema.NodeOffline, rec.Status)

	err = r.Heartbeat("n1", HeartbeatStats{ActiveJobs: 2}, now.Add(time.Hour+time.Second))
	require.Nil(t, err)
	rec, _ = r.Get("n1")
	require.Equal(t, schema.NodeOnline, rec.Status)
	require.Equal(t, 1, rec.ActiveJobs, "reported 2 active jobs are clamped to MaxJobs=1")
}

func TestHeartbeatClampsActiveJobsToCapacity(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()
	_, err := r.Register(schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 4, Token: "t"}, now)
	require.Nil(t, err)

	require.Nil(t, r.Heartbeat("n1", HeartbeatStats{ActiveJobs: 9}, now))
	rec, _ := r.Get("n1")
	require.Equal(t, 4, rec.ActiveJobs)
}

func TestListOnlineStableOrder(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()
	for _, id := range []string{"n1", "n2", "n3"} {
		_, err := r.Register(schema.RegisterRequest{NodeID: id, Address: id, Cores: 1, MaxJobs: 1, Token: "t"}, now)
		require.Nil(t, err)
	}

	online := r.ListOnline()
	require.Len(t, online, 3)
	require.Equal(t, []string{"n1", "n2", "n3"}, []string{online[0].NodeID, online[1].NodeID, online[2].NodeID})
}

func TestDrainAndRemove(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()
	_, err := r.Register(schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 1, Token: "t"}, now)
	require.Nil(t, err)

	require.Nil(t, r.Drain("n1"))
	rec, _ := r.Get("n1")
	require.Equal(t, schema.NodeDraining, rec.Status)
	require.Empty(t, r.ListOnline())

	require.Nil(t, r.Remove("n1"))
	_, err = r.Get("n1")
	require.NotNil(t, err)
	require.Equal(t, "NODE_NOT_FOUND", string(err.Code))
}

func TestDoubleDrainConflicts(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()
	_, err := r.Register(schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 1, Token: "t"}, now)
	require.Nil(t, err)

	require.Nil(t, r.Drain("n1"))
	err = r.Drain("n1")
	require.NotNil(t, err)
	require.Equal(t, "DRAIN_IN_PROGRESS", string(err.Code))
}

func TestRemoveDrainingNodeWithActiveJobsConflicts(t *testing.T) {
	r := New(30 * time.Second)
	now := time.Now()
	_, err := r.Register(schema.RegisterRequest{NodeID: "n1", Address: "a", Cores: 1, MaxJobs: 4, Token: "t"}, now)
	require.Nil(t, err)
	require.Nil(t, r.Heartbeat("n1", HeartbeatStats{ActiveJobs: 2}, now))

	require.Nil(t, r.Drain("n1"))
	err = r.Remove("n1")
	require.NotNil(t, err)
	require.Equal(t, "DRAIN_IN_PROGRESS", string(err.Code))

	require.Nil(t, r.Heartbeat("n1", HeartbeatStats{ActiveJobs: 0}, now.Add(time.Second)))
	require.Nil(t, r.Remove("n1"))
}
