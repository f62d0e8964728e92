// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package objects

import (
	"fmt"

	"github.com/kraklabs/march/internal/codec"
)

// Agent is an interaction-net agent kind declaration: a name and its
// ports in declaration order. Port 0 is principal by convention (§3).
type Agent struct {
	Name  string
	Ports []string
}

type wireAgent struct {
	Kind  string   `cbor:"kind"`
	Name  string   `cbor:"name"`
	Ports []string `cbor:"ports"`
}

// Encode canonically serializes the Agent as a map-form record tagged
// kind="agent".
func (a Agent) Encode() ([]byte, codec.CID, error) {
	cid, data, err := codec.CIDOf(wireAgent{Kind: string(KindAgent), Name: a.Name, Ports: a.Ports})
	return data, cid, err
}

// DecodeAgent parses bytes previously produced by Agent.Encode.
func DecodeAgent(data []byte) (Agent, error) {
	var w wireAgent
	if err := codec.DecodeValue(data, &w); err != nil {
		return Agent{}, fmt.Errorf("objects: decode agent: %w", err)
	}
	if Kind(w.Kind) != KindAgent {
		return Agent{}, fmt.Errorf("objects: agent record has wrong kind tag %q", w.Kind)
	}
	return Agent{Name: w.Name, Ports: w.Ports}, nil
}
