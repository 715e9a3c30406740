package events

import "time"

// Emitter provides helpers for publishing runtime events with a shared session ID.
type Emitter struct {
	bus       *EventBus
	sessionID string
}

// NewEmitter creates a new event emitter scoped to a session.
func NewEmitter(bus *EventBus, sessionID string) *Emitter {
	return &Emitter{
		bus:       bus,
		sessionID: sessionID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	})
}

// SessionCreated emits the session.created event.
func (e *Emitter) SessionCreated(nodeCount int) {
	e.emit(EventSessionCreated, SessionCreatedData{NodeCount: nodeCount})
}

// SessionClosed emits the session.closed event.
func (e *Emitter) SessionClosed(duration time.Duration, reason string) {
	e.emit(EventSessionClosed, SessionClosedData{Duration: duration, Reason: reason})
}

// SessionFailed emits the session.failed event.
func (e *Emitter) SessionFailed(nodeID, kind string) {
	e.emit(EventSessionFailed, SessionFailedData{NodeID: nodeID, Kind: kind})
}

// NodeCacheHit emits the node_cache.hit event.
func (e *Emitter) NodeCacheHit(nodeType, key string, refCount int64) {
	e.emit(EventNodeCacheHit, NodeCacheHitData{NodeType: nodeType, Key: key, RefCount: refCount})
}

// NodeCacheInsertion emits the node_cache.insertion event.
func (e *Emitter) NodeCacheInsertion(nodeType, key string) {
	e.emit(EventNodeCacheInsertion, NodeCacheInsertionData{NodeType: nodeType, Key: key})
}

// NodeCacheEviction emits the node_cache.eviction event.
func (e *Emitter) NodeCacheEviction(nodeType, key string, idle time.Duration) {
	e.emit(EventNodeCacheEviction, NodeCacheEvictionData{NodeType: nodeType, Key: key, Idle: idle})
}

// WorkerCrash emits the worker.crash event.
func (e *Emitter) WorkerCrash(nodeID, detail string) {
	e.emit(EventWorkerCrash, WorkerCrashData{SessionID: e.sessionID, NodeID: nodeID, Detail: detail})
}
