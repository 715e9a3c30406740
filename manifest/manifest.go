// Package manifest defines the structural contract consumed from external
// manifest parsers: an ordered list of node descriptors plus an optional
// edge set. The manifest parser itself is an external collaborator; this
// package only validates and models its output.
package manifest

import (
	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// ExecutorHint optionally overrides the executor registry's resolution for
// a single node.
type ExecutorHint string

const (
	ExecutorHintNone         ExecutorHint = ""
	ExecutorHintNative       ExecutorHint = "native"
	ExecutorHintMultiprocess ExecutorHint = "multiprocess"
)

// NodeDescriptor is one manifest node entry.
type NodeDescriptor struct {
	ID            string                  `json:"id" yaml:"id"`
	NodeType      string                  `json:"node_type" yaml:"node_type"`
	Params        map[string]any          `json:"params" yaml:"params"`
	IsStreaming   bool                    `json:"is_streaming" yaml:"is_streaming"`
	IsMultiOutput bool                    `json:"is_multi_output" yaml:"is_multi_output"`
	InputTypes    []runtimedata.DataType  `json:"input_types" yaml:"input_types"`
	OutputTypes   []runtimedata.DataType  `json:"output_types" yaml:"output_types"`
	ExecutorHint  ExecutorHint            `json:"executor_hint" yaml:"executor_hint"`
	SessionShared bool                    `json:"session_shared" yaml:"session_shared"`
	ErrorPolicy   node.ErrorPolicy        `json:"-" yaml:"-"`
}

// Connection is one manifest edge: (from_id, from_port?) → (to_id, to_port?).
type Connection struct {
	FromID   string `json:"from_id" yaml:"from_id"`
	FromPort string `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	ToID     string `json:"to_id" yaml:"to_id"`
	ToPort   string `json:"to_port,omitempty" yaml:"to_port,omitempty"`
}

// Graph is the parsed manifest: an ordered node list plus an optional edge
// set. A missing Connections set is treated as the implicit linear chain
// over Nodes order.
type Graph struct {
	SchemaVersion string           `json:"schema_version" yaml:"schema_version"`
	Nodes         []NodeDescriptor `json:"nodes" yaml:"nodes"`
	Connections   []Connection     `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Edges returns the effective edge set: Connections verbatim if non-empty,
// otherwise the implicit linear chain over Nodes in manifest order.
func (g Graph) Edges() []Connection {
	if len(g.Connections) > 0 {
		return g.Connections
	}
	edges := make([]Connection, 0, len(g.Nodes)-1)
	for i := 0; i+1 < len(g.Nodes); i++ {
		edges = append(edges, Connection{FromID: g.Nodes[i].ID, ToID: g.Nodes[i+1].ID})
	}
	return edges
}

// NodeByID returns the node descriptor with the given id, or false if absent.
func (g Graph) NodeByID(id string) (NodeDescriptor, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDescriptor{}, false
}
