// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/kRxZykRxZy/gittic/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind selects which embedded schema Validate checks against.
type Kind int

const (
	RateLimitRules Kind = iota + 1
	NodeRegistration
)

//go:embed schemas/*
var schemaFiles embed.FS

func load(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Host + u.Path)
}

func init() {
	jsonschema.Loaders["embedfs"] = load
}

func compile(k Kind) (*jsonschema.Schema, error) {
	switch k {
	case RateLimitRules:
		return jsonschema.Compile("embedfs://schemas/rate-limit-rules.schema.json")
	case NodeRegistration:
		return jsonschema.Compile("embedfs://schemas/register-request.schema.json")
	default:
		return nil, fmt.Errorf("pkg/schema: unknown schema kind %d", k)
	}
}

// Validate decodes r as JSON and checks it against the schema named by k.
func Validate(k Kind, r io.Reader) error {
	s, err := compile(k)
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		log.Errorf("pkg/schema: failed to decode document for validation: %v", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
