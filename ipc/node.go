package ipc

import (
	"context"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// MultiprocessNode adapts a Bridge-managed Worker to the node.Node
// interface the router depends on. Unlike in-process nodes, its outputs do
// not flow back through ProcessStreaming's emit callback: the Worker's
// onOutput callback (registered at Spawn) forwards directly onto the
// router's shared node_outputs stream via the background draining task,
// independent of any particular Process call.
type MultiprocessNode struct {
	nodeType  string
	nodeID    string
	sessionID string
	bridge    *Bridge
	spec      WorkerSpec
	onOutput  OutputFunc
	onCrash   func()
}

// NewMultiprocessNode constructs the node.Node adapter. Initialize spawns
// the worker process; Cleanup tears it down. nodeID is the manifest node
// id used as the IPC registry's per-node key; nodeType is the opaque type
// identifier reported to the core. onOutput receives every packet the
// worker emits, to be forwarded onto the owning router's node_outputs
// stream; onCrash, if non-nil, fires once if the worker dies unexpectedly.
func NewMultiprocessNode(nodeType, nodeID, sessionID string, bridge *Bridge, spec WorkerSpec, onOutput OutputFunc, onCrash func()) *MultiprocessNode {
	return &MultiprocessNode{
		nodeType:  nodeType,
		nodeID:    nodeID,
		sessionID: sessionID,
		bridge:    bridge,
		spec:      spec,
		onOutput:  onOutput,
		onCrash:   onCrash,
	}
}

func (n *MultiprocessNode) NodeType() string { return n.nodeType }

func (n *MultiprocessNode) Initialize(ctx context.Context) error {
	_, err := n.bridge.Spawn(ctx, n.sessionID, n.nodeID, n.spec, n.onOutput, n.onCrash)
	return err
}

// Process is not the primary path for multiprocess nodes (see
// ProcessStreaming) but is provided for sync-node callers; it sends the
// input and returns immediately, since the response travels out-of-band
// through the registered output callback rather than a return value.
func (n *MultiprocessNode) Process(ctx context.Context, input runtimedata.RuntimeData) (runtimedata.RuntimeData, error) {
	err := n.bridge.Send(n.sessionID, n.nodeID, runtimedata.DataPacket{
		Data:      input,
		SessionID: n.sessionID,
	})
	return runtimedata.Empty(), err
}

// ProcessStreaming forwards input to the worker and returns 0: the
// worker's outputs are delivered asynchronously through the onOutput
// callback supplied at Spawn, not through emit.
func (n *MultiprocessNode) ProcessStreaming(ctx context.Context, sessionID string, input runtimedata.RuntimeData, emit node.EmitFunc) (uint64, error) {
	err := n.bridge.Send(n.sessionID, n.nodeID, runtimedata.DataPacket{
		Data:      input,
		SessionID: sessionID,
	})
	return 0, err
}

func (n *MultiprocessNode) Cleanup(ctx context.Context) error {
	n.bridge.Shutdown(n.sessionID)
	return nil
}
