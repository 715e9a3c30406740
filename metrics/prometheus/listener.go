package prometheus

import (
	"github.com/matbeedotcom/remotemedia-sdk-sub006/events"
)

// MetricsListener records runtime events as Prometheus metrics. Register
// with an events.EventBus via SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener constructs a MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes one event, recording the metric it corresponds to.
func (l *MetricsListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventSessionCreated:
		RecordSessionCreated()
	case events.EventSessionClosed:
		if data, ok := event.Data.(events.SessionClosedData); ok {
			RecordSessionClosed(data.Reason, data.Duration.Seconds())
		}
	case events.EventSessionFailed:
		if data, ok := event.Data.(events.SessionFailedData); ok {
			RecordNodeError(data.Kind)
		}
	case events.EventNodeCacheHit:
		if data, ok := event.Data.(events.NodeCacheHitData); ok {
			RecordCacheHit(data.NodeType)
		}
	case events.EventNodeCacheInsertion:
		if data, ok := event.Data.(events.NodeCacheInsertionData); ok {
			RecordCacheInsertion(data.NodeType)
		}
	case events.EventNodeCacheEviction:
		if data, ok := event.Data.(events.NodeCacheEvictionData); ok {
			RecordCacheEviction(data.NodeType)
		}
	case events.EventWorkerCrash:
		if data, ok := event.Data.(events.WorkerCrashData); ok {
			RecordWorkerCrash(data.NodeID)
		}
	}
}

// Listener returns an events.Listener function that can be registered with
// an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
