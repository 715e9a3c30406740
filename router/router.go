// Package router implements the SessionRouter: the per-session message
// broker that accepts client input, routes DataPackets between nodes
// according to the manifest's edge set, and produces the client-visible
// output stream until shutdown.
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/logger"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/manifest"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// Error record metadata keys: a node-task error is posted onto the shared
// node_outputs stream as a DataPacket tagged this way rather than as a Go
// error value, so it can flow through the same ordered channel as regular
// outputs.
const (
	errorKindMetadataKey = "error_kind"
	errorNodeMetadataKey = "error_node"
)

// Options configures a Router instance.
type Options struct {
	// InputChannelBound is the per-node input channel capacity. A send
	// beyond this bound raises BackPressure rather than blocking or
	// dropping.
	InputChannelBound int
	// TeardownTimeout bounds how long Shutdown waits for node tasks to
	// drain before forcing completion. Defaults to 5s.
	TeardownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.InputChannelBound <= 0 {
		o.InputChannelBound = 64
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = 5 * time.Second
	}
	return o
}

// NodeHandle pairs a node instance with its descriptor and an optional
// release function invoked at teardown (typically cache.Handle.Release).
type NodeHandle struct {
	Node       node.Node
	Descriptor node.Descriptor
	Release    func()
}

// Router is a single session's message broker. Persistent for the
// session's duration; construct with New and drive with Run.
type Router struct {
	sessionID string
	graph     manifest.Graph
	opts      Options

	nodeInputs map[string]chan runtimedata.DataPacket
	edgesFrom  map[string][]manifest.Connection
	handles    map[string]NodeHandle

	nodeOutputs chan runtimedata.DataPacket
	clientOutput chan runtimedata.DataPacket

	firstNodeID string

	acceptingInput atomic.Bool
	shutdownOnce   sync.Once
	externalStop   chan struct{}
	forceStop      chan struct{}

	wg sync.WaitGroup

	closeOutputsOnce sync.Once

	// nodeOutputsMu guards the node_outputs close against InjectOutput,
	// which (unlike a node task's own emit) can race the close: a
	// multiprocess worker's async output callback has no node task blocked
	// in ProcessStreaming for wg.Wait to observe as "done".
	nodeOutputsMu     sync.RWMutex
	nodeOutputsClosed bool

	// nodeInputsMu guards every send into a per-node input channel against
	// beginShutdown closing that same channel. routeOutput and SendInput
	// both hold the read lock for the duration of their send, so a
	// concurrent beginShutdown (which takes the write lock before closing
	// any channel) can never observe a send in flight and a send can never
	// land on a channel already closed.
	nodeInputsMu     sync.RWMutex
	nodeInputsClosed bool
}

// New constructs a Router for one session over graph, with one NodeHandle
// per manifest node keyed by node id.
func New(sessionID string, graph manifest.Graph, handles map[string]NodeHandle, opts Options) *Router {
	opts = opts.withDefaults()

	r := &Router{
		sessionID:    sessionID,
		graph:        graph,
		opts:         opts,
		nodeInputs:   make(map[string]chan runtimedata.DataPacket, len(graph.Nodes)),
		edgesFrom:    make(map[string][]manifest.Connection),
		handles:      handles,
		nodeOutputs:  make(chan runtimedata.DataPacket, opts.InputChannelBound),
		clientOutput: make(chan runtimedata.DataPacket, opts.InputChannelBound),
		externalStop: make(chan struct{}),
		forceStop:    make(chan struct{}),
	}
	r.acceptingInput.Store(true)

	for _, n := range graph.Nodes {
		r.nodeInputs[n.ID] = make(chan runtimedata.DataPacket, opts.InputChannelBound)
	}
	for _, e := range graph.Edges() {
		r.edgesFrom[e.FromID] = append(r.edgesFrom[e.FromID], e)
	}
	if len(graph.Nodes) > 0 {
		r.firstNodeID = graph.Nodes[0].ID
	}

	return r
}

// Run starts every node task and the main routing loop. It blocks until
// shutdown (triggered by ctx, Shutdown, or a fatal node error) has fully
// drained.
func (r *Router) Run(ctx context.Context) {
	for id, h := range r.handles {
		r.wg.Add(1)
		go r.runNodeTask(ctx, id, h)
	}

	// Closes node_outputs only once every node task has exited, so the main
	// loop below drains all outputs emitted during teardown before it sees
	// ok=false and stops.
	go func() {
		r.wg.Wait()
		r.nodeOutputsMu.Lock()
		r.nodeOutputsClosed = true
		close(r.nodeOutputs)
		r.nodeOutputsMu.Unlock()
	}()

	// Stop re-selecting an already-fired trigger: once either fires,
	// beginShutdown is idempotent but re-selecting a closed channel every
	// iteration would spin the loop uselessly until node_outputs closes.
	ctxDone := ctx.Done()
	extStop := r.externalStop

mainLoop:
	for {
		select {
		case out, ok := <-r.nodeOutputs:
			if !ok {
				break mainLoop
			}
			r.routeOutput(out)
		case <-ctxDone:
			r.beginShutdown()
			ctxDone = nil
		case <-extStop:
			r.beginShutdown()
			extStop = nil
		}
	}

	r.closeOutputsOnce.Do(func() { close(r.clientOutput) })
	for _, h := range r.handles {
		if h.Release != nil {
			h.Release()
		}
	}
}

// runNodeTask drains a single node's input channel, invoking
// ProcessStreaming per input and forwarding emissions onto the shared
// node_outputs stream tagged with from_node and a monotonically
// non-decreasing per-node sequence number.
func (r *Router) runNodeTask(ctx context.Context, id string, h NodeHandle) {
	defer r.wg.Done()

	var seq uint64
	in := r.nodeInputs[id]

	for packet := range in {
		_, err := h.Node.ProcessStreaming(ctx, r.sessionID, packet.Data, func(out runtimedata.RuntimeData) error {
			seq++
			emitted := runtimedata.DataPacket{
				Data:      out,
				FromNode:  id,
				SessionID: r.sessionID,
				Sequence:  seq,
			}
			select {
			case r.nodeOutputs <- emitted:
				return nil
			case <-r.forceStop:
				return pkgerrors.New("router", "emit", pkgerrors.ErrTimeout)
			}
		})
		if err != nil {
			r.postError(id, err)
			if h.Descriptor.ErrorPolicy == node.ErrorPolicyFatal {
				r.beginShutdown()
				return
			}
		}
	}
}

// postError posts a tagged error record onto node_outputs; routeOutput
// recognizes the tag and forwards it straight to client_output regardless
// of the node's outgoing edges.
func (r *Router) postError(nodeID string, err error) {
	ctx := logger.WithNodeID(logger.WithSessionID(context.Background(), r.sessionID), nodeID)
	logger.ErrorContext(ctx, "router node task failed", "error", err)
	record := runtimedata.DataPacket{
		FromNode:  nodeID,
		SessionID: r.sessionID,
		Metadata: map[string]string{
			errorKindMetadataKey: err.Error(),
			errorNodeMetadataKey: nodeID,
		},
	}
	select {
	case r.nodeOutputs <- record:
	case <-r.forceStop:
	}
}

// routeOutput consults the edge map for p.FromNode: terminal nodes (no
// outgoing edge) forward to client_output; others fan out to every
// outgoing edge's node input, each a Clone so concurrent downstream
// mutation can't alias.
func (r *Router) routeOutput(p runtimedata.DataPacket) {
	if p.Metadata[errorKindMetadataKey] != "" {
		r.forwardToClient(p)
		return
	}

	edges := r.edgesFrom[p.FromNode]
	if len(edges) == 0 {
		r.forwardToClient(p)
		return
	}

	for _, e := range edges {
		tagged := p.Clone()
		tagged.ToNode = e.ToID
		if e.ToPort != "" {
			tagged = tagged.WithPort(e.ToPort)
		}
		ch, ok := r.nodeInputs[e.ToID]
		if !ok {
			continue
		}
		if !r.sendToNodeInput(ch, tagged) {
			return
		}
	}
}

// sendToNodeInput delivers p to ch, a per-node input channel, unless
// beginShutdown has already closed every node input channel. Reports
// whether the caller should keep routing (false means either forceStop
// fired or shutdown is in progress and the send was dropped).
func (r *Router) sendToNodeInput(ch chan runtimedata.DataPacket, p runtimedata.DataPacket) bool {
	r.nodeInputsMu.RLock()
	defer r.nodeInputsMu.RUnlock()
	if r.nodeInputsClosed {
		return false
	}
	select {
	case ch <- p:
		return true
	case <-r.forceStop:
		return false
	}
}

// InjectFatalError posts an error record for nodeID onto node_outputs (so
// RecvOutput surfaces it exactly like a node task's own fatal error) and
// begins graceful shutdown. Used by a node whose failure is detected
// outside any ProcessStreaming call — a multiprocess worker crash reported
// through its own watchdog goroutine rather than a returned error.
func (r *Router) InjectFatalError(nodeID string, err error) {
	r.InjectOutput(runtimedata.DataPacket{
		FromNode:  nodeID,
		SessionID: r.sessionID,
		Metadata: map[string]string{
			errorKindMetadataKey: err.Error(),
			errorNodeMetadataKey: nodeID,
		},
	})
	r.beginShutdown()
}

// InjectOutput delivers a packet produced outside any node task's
// ProcessStreaming call — namely a multiprocess worker's asynchronous
// output callback — into the same routing path as an ordinary emission.
// Safe to call concurrently and before Run starts (it buffers on
// node_outputs like any other source).
func (r *Router) InjectOutput(p runtimedata.DataPacket) {
	r.nodeOutputsMu.RLock()
	defer r.nodeOutputsMu.RUnlock()
	if r.nodeOutputsClosed {
		return
	}
	select {
	case r.nodeOutputs <- p:
	case <-r.forceStop:
	}
}

func (r *Router) forwardToClient(p runtimedata.DataPacket) {
	select {
	case r.clientOutput <- p:
	case <-r.forceStop:
	}
}

// SendInput delivers a client packet to its target node's input channel:
// p.ToNode if set, otherwise the first node in manifest order. Never
// blocks: a full channel raises BackPressure immediately, leaving the
// channel's contents unchanged.
func (r *Router) SendInput(p runtimedata.DataPacket) error {
	if !r.acceptingInput.Load() {
		return pkgerrors.New("router", "send_input", pkgerrors.ErrSessionClosed)
	}

	target := p.ToNode
	if target == "" {
		target = r.firstNodeID
	}
	ch, ok := r.nodeInputs[target]
	if !ok {
		return pkgerrors.New("router", "send_input", pkgerrors.ErrInvalidInput).
			WithDetails(map[string]any{"to_node": target})
	}

	r.nodeInputsMu.RLock()
	defer r.nodeInputsMu.RUnlock()
	if r.nodeInputsClosed {
		return pkgerrors.New("router", "send_input", pkgerrors.ErrSessionClosed)
	}

	select {
	case ch <- p:
		return nil
	default:
		return pkgerrors.New("router", "send_input", pkgerrors.ErrBackPressure).
			WithDetails(map[string]any{"to_node": target})
	}
}

// RecvOutput blocks until an output packet is available, the stream ends
// (ok=false after clean shutdown), or ctx is canceled.
func (r *Router) RecvOutput(ctx context.Context) (runtimedata.DataPacket, bool, error) {
	select {
	case p, ok := <-r.clientOutput:
		return p, ok, nil
	case <-ctx.Done():
		return runtimedata.DataPacket{}, false, ctx.Err()
	}
}

// Shutdown triggers graceful teardown: stop accepting client input, close
// every node input channel so tasks drain and exit, then wait up to
// TeardownTimeout before forcing completion. Idempotent.
func (r *Router) Shutdown() {
	r.beginShutdown()
}

func (r *Router) beginShutdown() {
	r.shutdownOnce.Do(func() {
		r.acceptingInput.Store(false)

		r.nodeInputsMu.Lock()
		r.nodeInputsClosed = true
		for _, ch := range r.nodeInputs {
			close(ch)
		}
		r.nodeInputsMu.Unlock()

		close(r.externalStop)

		go func() {
			time.Sleep(r.opts.TeardownTimeout)
			select {
			case <-r.forceStop:
			default:
				logger.WarnContext(logger.WithSessionID(context.Background(), r.sessionID),
					"router teardown timed out, forcing completion")
				close(r.forceStop)
			}
		}()
	})
}
