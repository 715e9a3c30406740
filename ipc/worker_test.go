package ipc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// echoSpec launches a worker that mirrors its input channel straight back
// onto its output channel, standing in for a real Python worker process
// for round-trip testing.
func echoSpec() WorkerSpec {
	return WorkerSpec{
		Command: "/bin/sh",
		Args:    []string{"-c", "cat <&3 >&4"},
	}
}

func TestWorkerRoundTripsDataThroughEchoProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	var mu sync.Mutex
	var received []runtimedata.DataPacket
	done := make(chan struct{}, 1)

	w := NewWorker("sess-1", "echo-node", echoSpec(), func(p runtimedata.DataPacket) {
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Shutdown()

	text, err := runtimedata.NewText("ping", "en")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Send(runtimedata.DataPacket{Data: text, SessionID: "sess-1"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for echoed output")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 echoed packet, got %d", len(received))
	}
	if received[0].Data.Text != "ping" {
		t.Fatalf("expected echoed text %q, got %q", "ping", received[0].Data.Text)
	}
}

func TestBridgeSendToUnknownNodeFails(t *testing.T) {
	t.Parallel()

	b := NewBridge()
	err := b.Send("no-such-session", "no-such-node", runtimedata.DataPacket{})
	if err == nil {
		t.Fatal("expected error for unknown session/node")
	}
}
