// Package node defines the single polymorphic abstraction every executable
// node implements, regardless of whether it runs in-process or
// out-of-process, and the descriptor metadata the registry and router use to
// validate and dispatch against it.
package node

import (
	"context"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// EmitFunc is invoked 0..N times in emission order by ProcessStreaming. A
// failing emit must be propagated by the node, which must then stop
// emitting.
type EmitFunc func(runtimedata.RuntimeData) error

// Node is the capability set the core depends on. The core never inspects
// Variant() to change behavior; it is carried purely for diagnostics and
// registry bookkeeping.
type Node interface {
	// NodeType returns the immutable type identifier.
	NodeType() string

	// Initialize is called once before the first Process/ProcessStreaming
	// call. It must be idempotent if called again on an already-initialized
	// node.
	Initialize(ctx context.Context) error

	// Process is the single-input/single-output synchronous contract for
	// sync nodes.
	Process(ctx context.Context, input runtimedata.RuntimeData) (runtimedata.RuntimeData, error)

	// ProcessStreaming is the multi-output contract. emit is invoked 0..N
	// times in emission order; the return value is the count emitted.
	ProcessStreaming(ctx context.Context, sessionID string, input runtimedata.RuntimeData, emit EmitFunc) (uint64, error)

	// Cleanup is idempotent and must be safe to call from any state.
	Cleanup(ctx context.Context) error
}

// Variant tags the node's execution strategy. The core depends only on the
// Node capability set, never on Variant.
type Variant int

const (
	// VariantSyncNative is an in-process node using only Process.
	VariantSyncNative Variant = iota
	// VariantAsyncNative is an in-process node whose Process may suspend.
	VariantAsyncNative
	// VariantMultiOutputStreaming is an in-process node using ProcessStreaming.
	VariantMultiOutputStreaming
	// VariantPythonMultiprocess is hosted in a worker process via the IPC bridge.
	VariantPythonMultiprocess
)

// ErrorPolicy controls what happens to a session when this node's
// Process/ProcessStreaming fails.
type ErrorPolicy int

const (
	// ErrorPolicyFatal closes the session on any execution error. This is the
	// runtime-wide default.
	ErrorPolicyFatal ErrorPolicy = iota
	// ErrorPolicyPacketLocal drops the failing packet and continues the session.
	ErrorPolicyPacketLocal
)

// Descriptor is the capability/shape metadata a Node is registered with,
// derived from the manifest's NodeDescriptor plus runtime-only fields.
type Descriptor struct {
	ID            string
	NodeType      string
	Variant       Variant
	IsStreaming   bool
	IsMultiOutput bool
	InputTypes    []runtimedata.DataType
	OutputTypes   []runtimedata.DataType
	Capabilities  Capabilities
	ErrorPolicy   ErrorPolicy
	// SessionShared opts a cached node entry into cross-session sharing.
	// False (session-isolated) is the default.
	SessionShared bool
}

// AcceptsInput reports whether dt is among the node's declared input types.
// An empty InputTypes set accepts any type.
func (d Descriptor) AcceptsInput(dt runtimedata.DataType) bool {
	if len(d.InputTypes) == 0 {
		return true
	}
	for _, t := range d.InputTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// ProducesOutput reports whether dt is among the node's declared output types.
func (d Descriptor) ProducesOutput(dt runtimedata.DataType) bool {
	if len(d.OutputTypes) == 0 {
		return true
	}
	for _, t := range d.OutputTypes {
		if t == dt {
			return true
		}
	}
	return false
}
