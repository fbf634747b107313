// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// RateLimitRule is one entry of the RATE_LIMIT_RULES config.
type RateLimitRule struct {
	RuleID      string `json:"ruleId"`
	KeyPattern  string `json:"keyPattern"`
	MaxRequests int    `json:"maxRequests"`
	WindowMs    int64  `json:"windowMs"`
	HardLimit   bool   `json:"hardLimit"`
}
