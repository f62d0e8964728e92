// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/march/internal/inet"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
)

func printReduceUsage() {
	fmt.Println(`Usage: march reduce <net.yaml> [options]

Builds an interaction net from a YAML description, runs the reducer
against the rule table stored in --store, and prints the net's final
state. Each agent entry gives either an inline "ports" list or a "kind"
already registered in the store's agent name index. Each wire entry
connects two (agent index, port name) pairs:

  agents:
    - kind: era
      ports: [principal]
    - kind: era
      ports: [principal]
  wires:
    - a: {agent: 0, port: principal}
      b: {agent: 1, port: principal}

Options:
  --store <dir>     Store directory (default: .march/store, or MARCH_STORE_DIR)
  --max-steps <n>   Stop after n reductions (default: unbounded)`)
}

type netDoc struct {
	Agents []netAgent `yaml:"agents"`
	Wires  []netWire  `yaml:"wires"`
}

type netAgent struct {
	Kind  string   `yaml:"kind"`
	Ports []string `yaml:"ports"`
}

type netWire struct {
	A netPortRef `yaml:"a"`
	B netPortRef `yaml:"b"`
}

type netPortRef struct {
	Agent int    `yaml:"agent"`
	Port  string `yaml:"port"`
}

func runReduce(args []string, globals GlobalFlags, cfg *Config) int {
	fs := flag.NewFlagSet("reduce", flag.ContinueOnError)
	storeDir := fs.String("store", "", "store directory")
	maxSteps := fs.Int("max-steps", 0, "stop after n reductions (0 = unbounded)")
	fs.Usage = printReduceUsage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		printReduceUsage()
		return 2
	}

	dir := resolveStoreDir(cfg, *storeDir)
	st, err := store.Open(storeNameIn(dir))
	if err != nil {
		printErr("march reduce: open store: %v", err)
		return 1
	}
	defer st.Close()

	data, err := os.ReadFile(rest[0])
	if err != nil {
		printErr("march reduce: %v", err)
		return 1
	}
	var doc netDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		printErr("march reduce: parse net description: %v", err)
		return 1
	}

	n, err := buildNet(st, doc)
	if err != nil {
		printErr("march reduce: %v", err)
		return 1
	}

	rd, err := inet.LoadRules(st)
	if err != nil {
		printErr("march reduce: load rules: %v", err)
		return 1
	}

	fired, err := rd.Run(n, *maxSteps)
	if err != nil {
		printErr("march reduce: %v", err)
		return 1
	}

	if !globals.Quiet {
		fmt.Printf("fired %d reduction(s)\n", fired)
	}
	printNet(n)
	return 0
}

func buildNet(st *store.Store, doc netDoc) (*inet.Net, error) {
	n := inet.NewNet()
	for i, a := range doc.Agents {
		ports := a.Ports
		if len(ports) == 0 {
			cid, ok, err := st.GetName("agent", a.Kind)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("agent %d: kind %q has no inline ports and isn't registered", i, a.Kind)
			}
			cborData, err := st.LoadForKind(cid, objects.KindAgent)
			if err != nil {
				return nil, err
			}
			decl, err := objects.DecodeAgent(cborData)
			if err != nil {
				return nil, err
			}
			ports = decl.Ports
		}
		n.AddAgent(a.Kind, ports)
	}
	for i, w := range doc.Wires {
		aPort, ok := n.PortIndex(w.A.Agent, w.A.Port)
		if !ok {
			return nil, fmt.Errorf("wire %d: agent %d has no port %q", i, w.A.Agent, w.A.Port)
		}
		bPort, ok := n.PortIndex(w.B.Agent, w.B.Port)
		if !ok {
			return nil, fmt.Errorf("wire %d: agent %d has no port %q", i, w.B.Agent, w.B.Port)
		}
		n.Connect(inet.PortRef{Agent: w.A.Agent, Port: aPort}, inet.PortRef{Agent: w.B.Agent, Port: bPort})
	}
	return n, nil
}

func printNet(n *inet.Net) {
	for i := 0; i < n.NumAgents(); i++ {
		status := "live"
		if n.IsDeleted(i) {
			status = "deleted"
		}
		fmt.Printf("agent %d: %s (%s)\n", i, n.AgentKind(i), status)
	}
	for i, w := range n.Wires() {
		if w.Deleted {
			continue
		}
		fmt.Printf("wire %d: (%d,%d) <-> (%d,%d)\n", i, w.A.Agent, w.A.Port, w.B.Agent, w.B.Port)
	}
}
