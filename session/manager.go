// Package session implements the session lifecycle API: the minimal
// surface transports and FFI bindings use to create sessions, exchange
// packets, and tear sessions down.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/cache"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/events"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/ipc"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/logger"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/manifest"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/registry"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/router"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// NativeFactory constructs (but does not initialize) a native node for the
// given manifest params. Manager.CreateSession calls Initialize as part of
// the cache's single-flight factory.
type NativeFactory func(params map[string]any) (node.Node, error)

// Manager owns every live Session and the shared, process-global Node
// Cache and Multiprocess IPC Bridge that sessions' nodes acquire handles
// from.
type Manager struct {
	executors *registry.Registry
	cache     *cache.Cache
	bridge    *ipc.Bridge

	nativeFactories map[string]NativeFactory
	workerSpecs     map[string]ipc.WorkerSpec

	routerOptions router.Options

	bus           *events.EventBus
	cacheEmitter  *events.Emitter

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

type liveSession struct {
	router  *router.Router
	cancel  context.CancelFunc
	done    chan struct{}
	emitter *events.Emitter
	started time.Time
}

// Options configures a Manager.
type Options struct {
	Executors       *registry.Registry
	Cache           *cache.Cache
	Bridge          *ipc.Bridge
	NativeFactories map[string]NativeFactory
	WorkerSpecs     map[string]ipc.WorkerSpec
	RouterOptions   router.Options
	// Bus receives session and node-cache lifecycle events. Defaults to a
	// fresh, unconsumed bus when nil.
	Bus *events.EventBus
}

// NewManager constructs a Manager. Executors, Cache, Bridge, and Bus
// default to fresh zero-configuration instances when nil.
func NewManager(opts Options) *Manager {
	if opts.Executors == nil {
		opts.Executors = registry.New()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
	}
	cacheEmitter := events.NewEmitter(opts.Bus, "")
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{
			OnHit:    func(key cache.Key, refCount int64) { cacheEmitter.NodeCacheHit(key.NodeType, key.Fingerprint, refCount) },
			OnInsert: func(key cache.Key) { cacheEmitter.NodeCacheInsertion(key.NodeType, key.Fingerprint) },
			OnEvict:  func(key cache.Key, idle time.Duration) { cacheEmitter.NodeCacheEviction(key.NodeType, key.Fingerprint, idle) },
		})
	}
	if opts.Bridge == nil {
		opts.Bridge = ipc.NewBridge()
	}
	return &Manager{
		executors:       opts.Executors,
		cache:           opts.Cache,
		bridge:          opts.Bridge,
		nativeFactories: opts.NativeFactories,
		workerSpecs:     opts.WorkerSpecs,
		routerOptions:   opts.RouterOptions,
		bus:             opts.Bus,
		cacheEmitter:    cacheEmitter,
		sessions:        make(map[string]*liveSession),
	}
}

// CreateSession builds a router over graph, acquiring or spawning every
// node it names, and starts the session's routing loop in the background.
// Fails with InvalidManifest if any node's executor or factory cannot be
// resolved.
func (m *Manager) CreateSession(ctx context.Context, graph manifest.Graph) (string, error) {
	if err := manifest.ValidateGraph(graph); err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	emitter := events.NewEmitter(m.bus, sessionID)

	// routerRef lets a multiprocess node's async output callback reach the
	// router, which does not exist yet at node-acquisition time: node
	// instances (and their IPC workers) must be live before router.New can
	// build its handle map.
	var routerRef atomic.Pointer[router.Router]
	outputSink := func(p runtimedata.DataPacket) {
		if r := routerRef.Load(); r != nil {
			r.InjectOutput(p)
		}
	}
	fatalErrorSink := func(nodeID string, err error) {
		if r := routerRef.Load(); r != nil {
			r.InjectFatalError(nodeID, err)
		}
	}

	handles := make(map[string]router.NodeHandle, len(graph.Nodes))
	var releaseOnFailure []func()
	for _, desc := range graph.Nodes {
		handle, err := m.acquireNode(ctx, sessionID, desc, outputSink, fatalErrorSink, emitter)
		if err != nil {
			for _, release := range releaseOnFailure {
				release()
			}
			return "", err
		}
		handles[desc.ID] = handle
		if handle.Release != nil {
			releaseOnFailure = append(releaseOnFailure, handle.Release)
		}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	r := router.New(sessionID, graph, handles, m.routerOptions)
	routerRef.Store(r)

	ls := &liveSession{router: r, cancel: cancel, done: make(chan struct{}), emitter: emitter, started: time.Now()}
	m.mu.Lock()
	m.sessions[sessionID] = ls
	m.mu.Unlock()

	go func() {
		defer close(ls.done)
		r.Run(sessionCtx)
	}()

	emitter.SessionCreated(len(graph.Nodes))
	logger.InfoContext(logger.WithSessionID(ctx, sessionID), "session created", "nodes", len(graph.Nodes))
	return sessionID, nil
}

func (m *Manager) acquireNode(ctx context.Context, sessionID string, desc manifest.NodeDescriptor, outputSink func(runtimedata.DataPacket), fatalErrorSink func(string, error), emitter *events.Emitter) (router.NodeHandle, error) {
	executor := m.resolveExecutor(desc)

	descriptor := node.Descriptor{
		ID:            desc.ID,
		NodeType:      desc.NodeType,
		IsStreaming:   desc.IsStreaming,
		IsMultiOutput: desc.IsMultiOutput,
		InputTypes:    desc.InputTypes,
		OutputTypes:   desc.OutputTypes,
		ErrorPolicy:   desc.ErrorPolicy,
		SessionShared: desc.SessionShared,
	}

	if executor == registry.ExecutorMultiprocess {
		return m.acquireMultiprocessNode(ctx, sessionID, desc, descriptor, outputSink, fatalErrorSink, emitter)
	}
	return m.acquireNativeNode(ctx, sessionID, desc, descriptor)
}

func (m *Manager) resolveExecutor(desc manifest.NodeDescriptor) registry.Executor {
	switch desc.ExecutorHint {
	case manifest.ExecutorHintNative:
		return registry.ExecutorNative
	case manifest.ExecutorHintMultiprocess:
		return registry.ExecutorMultiprocess
	default:
		return m.executors.Select(desc.NodeType)
	}
}

func (m *Manager) acquireNativeNode(ctx context.Context, sessionID string, desc manifest.NodeDescriptor, descriptor node.Descriptor) (router.NodeHandle, error) {
	factory, ok := m.nativeFactories[desc.NodeType]
	if !ok {
		return router.NodeHandle{}, pkgerrors.New("session", "create_session", pkgerrors.ErrInvalidManifest).
			WithDetails(map[string]any{"message": "no native factory registered", "node_type": desc.NodeType})
	}

	key, err := m.cacheKey(desc, sessionID)
	if err != nil {
		return router.NodeHandle{}, err
	}

	handle, err := m.cache.Acquire(ctx, key, func(ctx context.Context) (node.Node, error) {
		n, err := factory(desc.Params)
		if err != nil {
			return nil, err
		}
		if err := n.Initialize(ctx); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return router.NodeHandle{}, err
	}

	return router.NodeHandle{Node: handle.Node, Descriptor: descriptor, Release: handle.Release}, nil
}

// acquireMultiprocessNode always keys the cache entry per-session,
// regardless of SessionShared: a live MultiprocessNode is bound at
// construction to one (session_id, node_id) IPC channel pair, so
// sharing its cache slot across sessions would misroute packets to the
// wrong session. Only the native path honors SessionShared-driven cache
// sharing.
func (m *Manager) acquireMultiprocessNode(ctx context.Context, sessionID string, desc manifest.NodeDescriptor, descriptor node.Descriptor, outputSink func(runtimedata.DataPacket), fatalErrorSink func(string, error), emitter *events.Emitter) (router.NodeHandle, error) {
	spec, ok := m.workerSpecs[desc.NodeType]
	if !ok {
		return router.NodeHandle{}, pkgerrors.New("session", "create_session", pkgerrors.ErrInvalidManifest).
			WithDetails(map[string]any{"message": "no worker spec registered", "node_type": desc.NodeType})
	}

	fp, err := cache.Fingerprint(desc.Params)
	if err != nil {
		return router.NodeHandle{}, err
	}
	key := cache.Key{NodeType: desc.NodeType, Fingerprint: fp + ":" + sessionID + ":" + desc.ID}

	handle, err := m.cache.Acquire(ctx, key, func(ctx context.Context) (node.Node, error) {
		n := ipc.NewMultiprocessNode(desc.NodeType, desc.ID, sessionID, m.bridge, spec, outputSink, func() {
			// A worker crash is always fatal for the session: the cache entry
			// is invalidated so the next session requesting this node type
			// gets a fresh Initialize rather than the dead process, and the
			// router is told so it can surface a fatal error record and tear
			// the session down.
			emitter.WorkerCrash(desc.ID, "worker process terminated unexpectedly")
			m.cache.Invalidate(key)
			fatalErrorSink(desc.ID, pkgerrors.New("ipc", "worker_crash", pkgerrors.ErrExecutionFailed).
				WithDetails(map[string]any{"node_id": desc.ID, "node_type": desc.NodeType}))
		})
		if err := n.Initialize(ctx); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return router.NodeHandle{}, err
	}

	return router.NodeHandle{Node: handle.Node, Descriptor: descriptor, Release: handle.Release}, nil
}

func (m *Manager) cacheKey(desc manifest.NodeDescriptor, sessionID string) (cache.Key, error) {
	fp, err := cache.Fingerprint(desc.Params)
	if err != nil {
		return cache.Key{}, err
	}
	if !desc.SessionShared {
		fp += ":" + sessionID
	}
	return cache.Key{NodeType: desc.NodeType, Fingerprint: fp}, nil
}

// SendInput delivers a packet into session_id's router.
func (m *Manager) SendInput(sessionID string, p runtimedata.DataPacket) error {
	ls, ok := m.session(sessionID)
	if !ok {
		return pkgerrors.New("session", "send_input", pkgerrors.ErrSessionNotFound).
			WithDetails(map[string]any{"session_id": sessionID})
	}
	return ls.router.SendInput(p)
}

// RecvOutput blocks for the next output packet of session_id, or returns
// ok=false on clean stream end.
func (m *Manager) RecvOutput(ctx context.Context, sessionID string) (runtimedata.DataPacket, bool, error) {
	ls, ok := m.session(sessionID)
	if !ok {
		return runtimedata.DataPacket{}, false, pkgerrors.New("session", "recv_output", pkgerrors.ErrSessionNotFound).
			WithDetails(map[string]any{"session_id": sessionID})
	}
	return ls.router.RecvOutput(ctx)
}

// CloseSession triggers graceful teardown and waits for it to complete.
// Idempotent: closing an already-closed or unknown session is a no-op.
func (m *Manager) CloseSession(sessionID string) {
	m.mu.Lock()
	ls, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	ls.router.Shutdown()
	ls.cancel()
	<-ls.done
	m.bridge.Shutdown(sessionID)
	ls.emitter.SessionClosed(time.Since(ls.started), "closed")
}

// Bus returns the Manager's event bus, for external subscribers such as a
// metrics listener or audit log.
func (m *Manager) Bus() *events.EventBus { return m.bus }

func (m *Manager) session(sessionID string) (*liveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.sessions[sessionID]
	return ls, ok
}

// ExecuteUnary is a convenience over CreateSession + SendInput +
// RecvOutput + CloseSession for one-shot pipelines: it creates a session,
// sends a single input, waits for the first output (or the first error
// record), and always closes the session before returning.
func (m *Manager) ExecuteUnary(ctx context.Context, graph manifest.Graph, input runtimedata.RuntimeData, timeout time.Duration) (runtimedata.RuntimeData, error) {
	sessionID, err := m.CreateSession(ctx, graph)
	if err != nil {
		return runtimedata.Empty(), err
	}
	defer m.CloseSession(sessionID)

	if err := m.SendInput(sessionID, runtimedata.DataPacket{Data: input, SessionID: sessionID}); err != nil {
		return runtimedata.Empty(), err
	}

	recvCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		recvCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, ok, err := m.RecvOutput(recvCtx, sessionID)
	if err != nil {
		return runtimedata.Empty(), err
	}
	if !ok {
		return runtimedata.Empty(), pkgerrors.New("session", "execute_unary", pkgerrors.ErrExecutionFailed).
			WithDetails(map[string]any{"message": "stream ended with no output"})
	}
	return out.Data, nil
}
