package ipc

import (
	"context"
	"sync"

	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// Bridge is the process-wide session_id → {node_id → Worker} registry. The
// router dispatches inputs by name without holding the executor; the
// registry is a single RWMutex with readers expected to dominate.
type Bridge struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Worker
}

// NewBridge constructs an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{sessions: make(map[string]map[string]*Worker)}
}

// Spawn starts a worker for (sessionID, nodeID) and registers it. onOutput
// is invoked by the background drainer for every output the worker emits.
// onCrash, if non-nil, is invoked exactly once if the worker process dies
// unexpectedly.
func (b *Bridge) Spawn(ctx context.Context, sessionID, nodeID string, spec WorkerSpec, onOutput OutputFunc, onCrash func()) (*Worker, error) {
	w := NewWorker(sessionID, nodeID, spec, onOutput)
	if onCrash != nil {
		w.OnCrash(onCrash)
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	nodes, ok := b.sessions[sessionID]
	if !ok {
		nodes = make(map[string]*Worker)
		b.sessions[sessionID] = nodes
	}
	nodes[nodeID] = w
	b.mu.Unlock()

	return w, nil
}

// Send dispatches a packet to the named node's worker.
func (b *Bridge) Send(sessionID, nodeID string, p runtimedata.DataPacket) error {
	b.mu.RLock()
	nodes, ok := b.sessions[sessionID]
	var w *Worker
	if ok {
		w = nodes[nodeID]
	}
	b.mu.RUnlock()

	if w == nil {
		return pkgerrors.New("ipc", "send", pkgerrors.ErrSessionNotFound).
			WithDetails(map[string]any{"session_id": sessionID, "node_id": nodeID})
	}
	return w.Send(p)
}

// Shutdown tears down every worker belonging to a session and removes it
// from the registry.
func (b *Bridge) Shutdown(sessionID string) {
	b.mu.Lock()
	nodes := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range nodes {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Shutdown()
		}(w)
	}
	wg.Wait()
}

// Worker returns the worker for (sessionID, nodeID), or nil if absent.
func (b *Bridge) Worker(sessionID, nodeID string) *Worker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if nodes, ok := b.sessions[sessionID]; ok {
		return nodes[nodeID]
	}
	return nil
}
