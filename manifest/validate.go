package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
)

// schemaJSON is the structural contract: a required schema_version
// string, an ordered nodes list each requiring id/node_type, and an
// optional connections edge set. Unknown fields are ignored rather than
// rejected.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schema_version", "nodes"],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "node_type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "node_type": {"type": "string", "minLength": 1}
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from_id", "to_id"],
        "properties": {
          "from_id": {"type": "string"},
          "to_id": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema *gojsonschema.Schema

func init() {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("manifest: invalid embedded schema: %v", err))
	}
	compiledSchema = schema
}

// Validate checks raw manifest bytes (JSON or pre-converted YAML-as-JSON)
// against the structural schema, then enforces the cross-field invariants
// (unique node ids, edges referencing known nodes) that JSON Schema cannot
// express. Returns InvalidManifest on any violation.
func Validate(raw []byte, g Graph) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return invalidManifest("schema validation failed", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return invalidManifest(strings.Join(msgs, "; "), nil)
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			return invalidManifest(fmt.Sprintf("duplicate node id %q", n.ID), nil)
		}
		seen[n.ID] = true
	}
	for _, edge := range g.Connections {
		if !seen[edge.FromID] {
			return invalidManifest(fmt.Sprintf("connection references unknown from_id %q", edge.FromID), nil)
		}
		if !seen[edge.ToID] {
			return invalidManifest(fmt.Sprintf("connection references unknown to_id %q", edge.ToID), nil)
		}
	}
	if err := detectCycle(g); err != nil {
		return err
	}
	return validateCapabilities(g)
}

// ValidateGraph re-marshals g to JSON and validates it as if it had just
// been parsed from that JSON, for callers that already hold a parsed Graph
// (session creation) rather than the original manifest bytes.
func ValidateGraph(g Graph) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return invalidManifest("graph could not be re-marshaled for validation: "+err.Error(), err)
	}
	return Validate(raw, g)
}

// detectCycle rejects any manifest whose connection graph is not a DAG.
// Only forward progress through the graph is supported; a cycle would
// leave the router fanning a packet out into an ancestor's input forever.
func detectCycle(g Graph) error {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges() {
		adj[e.FromID] = append(adj[e.FromID], e.ToID)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return invalidManifest(fmt.Sprintf("cycle detected in connection graph: %s",
					strings.Join(append(append([]string{}, path...), next), " -> ")), nil)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateCapabilities rejects an edge whose source node declares no
// output type the destination node's declared input types accept. A node
// with an empty InputTypes/OutputTypes set is treated as accepting or
// producing anything, matching node.Descriptor.AcceptsInput/ProducesOutput.
func validateCapabilities(g Graph) error {
	descByID := make(map[string]node.Descriptor, len(g.Nodes))
	for _, n := range g.Nodes {
		descByID[n.ID] = node.Descriptor{
			ID:          n.ID,
			NodeType:    n.NodeType,
			InputTypes:  n.InputTypes,
			OutputTypes: n.OutputTypes,
		}
	}

	for _, edge := range g.Edges() {
		from, ok := descByID[edge.FromID]
		if !ok {
			continue
		}
		to, ok := descByID[edge.ToID]
		if !ok {
			continue
		}
		if len(from.OutputTypes) == 0 || len(to.InputTypes) == 0 {
			continue
		}

		compatible := false
		for _, t := range from.OutputTypes {
			if from.ProducesOutput(t) && to.AcceptsInput(t) {
				compatible = true
				break
			}
		}
		if !compatible {
			return invalidManifest(fmt.Sprintf(
				"connection %s -> %s: no output_type of %s is accepted by %s's input_types %v",
				edge.FromID, edge.ToID, edge.FromID, edge.ToID, to.InputTypes), nil)
		}
	}
	return nil
}

func invalidManifest(message string, cause error) error {
	details := map[string]any{"message": message}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return pkgerrors.New("manifest", "validate", pkgerrors.ErrInvalidManifest).
		WithDetails(details)
}

// ParseJSON is a convenience that unmarshals raw JSON into a Graph and
// validates it in one step.
func ParseJSON(raw []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return Graph{}, invalidManifest("malformed JSON: "+err.Error(), err)
	}
	if err := Validate(raw, g); err != nil {
		return Graph{}, err
	}
	return g, nil
}
