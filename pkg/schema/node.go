// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// NodeStatus is the lifecycle state of a registered worker node.
type NodeStatus string

const (
	NodeOnline   NodeStatus = "online"
	NodeDraining NodeStatus = "draining"
	NodeOffline  NodeStatus = "offline"
)

// NodeRecord is the authoritative shape of a registered worker node, owned
// exclusively by the Node Registry.
type NodeRecord struct {
	NodeID          string     `json:"nodeId"`
	DisplayName     string     `json:"displayName"`
	Address         string     `json:"address"`
	Capabilities    []string   `json:"capabilities"`
	Cores           int        `json:"cores"`
	MemoryBytes     int64      `json:"memoryBytes"`
	MaxJobs         int        `json:"maxJobs"`
	Status          NodeStatus `json:"status"`
	RegisteredAt    time.Time  `json:"registeredAt"`
	LastHeartbeatAt time.Time  `json:"lastHeartbeatAt"`
	ActiveJobs      int        `json:"activeJobs"`
	CPUUsagePct     float64    `json:"cpuUsagePct"`
	MemoryUsagePct  float64    `json:"memoryUsagePct"`
	Version         string     `json:"version"`

	// ownerToken is the credential the node registered with. It is
	// unexported so it is never serialized; it exists purely to detect a
	// conflicting re-registration of the same nodeId from a different
	// owner.
	ownerToken string
}

// OwnerToken returns the credential used at registration time.
func (n *NodeRecord) OwnerToken() string { return n.ownerToken }

// SetOwnerToken is used only by the registry on Register/re-Register.
func (n *NodeRecord) SetOwnerToken(tok string) { n.ownerToken = tok }

// RegisterRequest is the wire body of POST /api/v1/clusters/register.
type RegisterRequest struct {
	NodeID       string   `json:"nodeId"`
	Address      string   `json:"address"`
	Cores        int      `json:"cores"`
	MemoryBytes  int64    `json:"memoryBytes"`
	MaxJobs      int      `json:"maxJobs"`
	Capabilities []string `json:"capabilities,omitempty"`
	Version      string   `json:"version"`
	Token        string   `json:"token"`
}

// RegisterResponse is the wire body returned from registration.
type RegisterResponse struct {
	Accepted bool   `json:"accepted"`
	NodeID   string `json:"nodeId"`
}

// HeartbeatAck is returned from POST /api/v1/clusters/heartbeat.
type HeartbeatAck struct {
	Ack            bool  `json:"ack"`
	NextIntervalMs int64 `json:"next_interval_ms"`
}
