// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clustererr implements the cluster core's error taxonomy: a
// single tagged error value carrying a machine code, a human message, and
// structured metadata, with a pure Kind→HTTP-status mapping. Handlers
// never build ad-hoc http.Error calls for domain failures; they construct
// a ClusterError and let WriteJSON render it.
package clustererr

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// Kind is the machine-readable error code.
type Kind string

const (
	NodeNotFound      Kind = "NODE_NOT_FOUND"
	QuotaExceeded     Kind = "QUOTA_EXCEEDED"
	DrainInProgress   Kind = "DRAIN_IN_PROGRESS"
	RegionUnavailable Kind = "REGION_UNAVAILABLE"
	CircuitOpen       Kind = "CIRCUIT_OPEN"
	JobNotFound       Kind = "JOB_NOT_FOUND"
	RateLimited       Kind = "RATE_LIMITED"
	AuthFailed        Kind = "AUTH_FAILED"
	BadGateway        Kind = "BAD_GATEWAY"
	BadRequest        Kind = "BAD_REQUEST"
	Internal          Kind = "INTERNAL"
)

// httpStatus is a pure function of Kind.
var httpStatus = map[Kind]int{
	NodeNotFound:      http.StatusNotFound,
	QuotaExceeded:     http.StatusTooManyRequests,
	DrainInProgress:   http.StatusConflict,
	RegionUnavailable: http.StatusServiceUnavailable,
	CircuitOpen:       http.StatusServiceUnavailable,
	JobNotFound:       http.StatusNotFound,
	RateLimited:       http.StatusTooManyRequests,
	AuthFailed:        http.StatusUnauthorized,
	BadGateway:        http.StatusBadGateway,
	BadRequest:        http.StatusBadRequest,
	Internal:          http.StatusInternalServerError,
}

// ClusterError is the single error value every cluster-core component
// returns for a domain failure. Metadata is an opaque JSON-serializable
// map; the taxonomy does not type-erase it further.
type ClusterError struct {
	Code    Kind                   `json:"code"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"metadata,omitempty"`
}

func (e *ClusterError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus maps this error's Kind to an HTTP status code.
func (e *ClusterError) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs a ClusterError with optional metadata key/value pairs
// (must be given in pairs: k1, v1, k2, v2, ...).
func New(kind Kind, message string, kv ...interface{}) *ClusterError {
	e := &ClusterError{Code: kind, Message: message}
	if len(kv) > 0 {
		e.Meta = make(map[string]interface{}, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			e.Meta[key] = kv[i+1]
		}
	}
	return e
}

func NodeNotFoundErr(nodeID string) *ClusterError {
	return New(NodeNotFound, "node not found", "nodeId", nodeID)
}

func QuotaExceededErr(entityID string) *ClusterError {
	return New(QuotaExceeded, "resource quota exceeded", "entityId", entityID)
}

func DrainInProgressErr(nodeID string) *ClusterError {
	return New(DrainInProgress, "node is draining", "nodeId", nodeID)
}

func RegionUnavailableErr(region string) *ClusterError {
	return New(RegionUnavailable, "no nodes available to serve this request", "region", region)
}

func CircuitOpenErr(nodeID string, retryAfterMs int64) *ClusterError {
	return New(CircuitOpen, "node circuit is open", "nodeId", nodeID, "retryAfterMs", retryAfterMs)
}

func JobNotFoundErr(jobID string) *ClusterError {
	return New(JobNotFound, "job not found", "jobId", jobID)
}

func RateLimitedErr(ruleID string, retryAfterMs int64) *ClusterError {
	return New(RateLimited, "rate limit exceeded", "ruleId", ruleID, "retryAfterMs", retryAfterMs)
}

func AuthFailedErr(reason string) *ClusterError {
	return New(AuthFailed, reason)
}

func BadGatewayErr(detail string) *ClusterError {
	return New(BadGateway, detail)
}

// BadRequestErr covers validation failures on locally handled requests:
// malformed JSON, schema violations, missing required fields.
func BadRequestErr(detail string) *ClusterError {
	return New(BadRequest, detail)
}

// InternalErr wraps an unhandled panic/error at the gateway boundary with a
// correlation id instead of leaking a stack trace across the wire.
func InternalErr(cause error) *ClusterError {
	corrID := uuid.NewString()
	msg := "internal error"
	if cause != nil {
		msg = cause.Error()
	}
	return New(Internal, "internal error, see correlation id", "correlationId", corrID, "cause", msg)
}

// WriteJSON renders a ClusterError to rw as JSON with the mapped status
// code and, when present, a Retry-After header derived from retryAfterMs
// metadata.
func WriteJSON(rw http.ResponseWriter, err *ClusterError) {
	if ra, ok := err.Meta["retryAfterMs"]; ok {
		if ms, ok := toInt64(ra); ok {
			secs := (ms + 999) / 1000
			if secs < 1 {
				secs = 1
			}
			rw.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(rw).Encode(err)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
