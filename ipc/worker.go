// Package ipc hosts Python-bearing nodes in separate OS processes and
// ferries DataPackets across the process boundary over a pair of
// socketpair-backed duplex channels per (session_id, node_id), exposing a
// standard node.Node to the router. Each worker owns a dedicated OS thread
// for its channel handles.
package ipc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/logger"
	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

// WorkerSpec describes how to launch the out-of-process worker hosting a
// node. Command/Args/Env are the external collaborator contract: the
// worker accepts the same input/output channels, deserializes RuntimeData,
// and publishes outputs cooperatively.
type WorkerSpec struct {
	Command string
	Args    []string
	Env     map[string]string

	// HealthProbePeriod governs how often the worker's liveness is checked.
	// Defaults to 1s.
	HealthProbePeriod time.Duration
}

// command is the Send-safe instruction sent to a worker's dedicated thread.
type commandKind int

const (
	cmdSendData commandKind = iota
	cmdShutdown
)

type command struct {
	kind commandKind
	data runtimedata.DataPacket
}

// OutputFunc is invoked once per output packet the worker emits, already
// re-wrapped with from_node populated.
type OutputFunc func(runtimedata.DataPacket)

// Worker owns one node's input/output channel pair and its dedicated OS
// thread. Exported methods are safe to call from any goroutine; the thread
// itself owns the non-Send socket handles.
type Worker struct {
	sessionID string
	nodeID    string
	spec      WorkerSpec

	cmdCh chan command

	cmd        *exec.Cmd
	inputConn  *os.File
	outputConn *os.File

	crashed atomic.Bool

	started chan error
	stopped chan struct{}

	onOutput OutputFunc
	onCrash  func()
}

// inputChannelName and outputChannelName follow a {session_id}_{node_id}
// naming convention, even though the transport substrate here is a pair
// of AF_UNIX socketpairs rather than literal shared memory.
func (w *Worker) inputChannelName() string  { return w.sessionID + "_" + w.nodeID + "_input" }
func (w *Worker) outputChannelName() string { return w.sessionID + "_" + w.nodeID + "_output" }

// NewWorker constructs a worker for (sessionID, nodeID) but does not start
// its process; call Start.
func NewWorker(sessionID, nodeID string, spec WorkerSpec, onOutput OutputFunc) *Worker {
	if spec.HealthProbePeriod <= 0 {
		spec.HealthProbePeriod = time.Second
	}
	return &Worker{
		sessionID: sessionID,
		nodeID:    nodeID,
		spec:      spec,
		cmdCh:     make(chan command, 64),
		started:   make(chan error, 1),
		stopped:   make(chan struct{}),
		onOutput:  onOutput,
	}
}

// OnCrash registers a callback invoked exactly once, the first time this
// worker is observed to have crashed (readFrames EOF or a failed health
// probe). Must be called before Start.
func (w *Worker) OnCrash(fn func()) { w.onCrash = fn }

// Start spawns the worker process and its dedicated OS thread. It blocks
// until the process has been launched (not until it has finished
// initializing; that is the caller's responsibility via the node lifecycle).
func (w *Worker) Start(ctx context.Context) error {
	go w.runDedicatedThread(ctx)
	select {
	case err := <-w.started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runDedicatedThread is the one goroutine that owns this node's socket
// handles for their entire lifetime: non-Send publisher/subscriber
// handles never cross thread boundaries.
func (w *Worker) runDedicatedThread(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopped)

	if err := w.spawn(); err != nil {
		w.started <- err
		return
	}
	w.started <- nil

	frames := make(chan []byte, 256)
	go w.readFrames(frames)

	health := time.NewTicker(w.spec.HealthProbePeriod)
	defer health.Stop()

	for {
		select {
		case cmd := <-w.cmdCh:
			switch cmd.kind {
			case cmdSendData:
				if err := w.sendData(cmd.data); err != nil {
					logger.Error("ipc worker send failed", "session", w.sessionID, "node", w.nodeID, "error", err)
				}
			case cmdShutdown:
				w.terminate()
				return
			}

		case raw, ok := <-frames:
			if !ok {
				// Reader goroutine hit EOF: the worker closed its output
				// side, which for a running process means it crashed.
				w.markCrashed()
				return
			}
			w.deliverFrame(raw)

		case <-health.C:
			if !w.processAlive() {
				w.markCrashed()
				return
			}

		case <-ctx.Done():
			w.terminate()
			return
		}
	}
}

func (w *Worker) spawn() error {
	inputPair, err := socketpair()
	if err != nil {
		return fmt.Errorf("ipc: create input socketpair for %s: %w", w.inputChannelName(), err)
	}
	outputPair, err := socketpair()
	if err != nil {
		return fmt.Errorf("ipc: create output socketpair for %s: %w", w.outputChannelName(), err)
	}

	w.inputConn = inputPair[0]
	w.outputConn = outputPair[0]

	cmd := exec.Command(w.spec.Command, w.spec.Args...)
	cmd.ExtraFiles = []*os.File{inputPair[1], outputPair[1]}
	for k, v := range w.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ipc: start worker process for node %s: %w", w.nodeID, err)
	}
	inputPair[1].Close()
	outputPair[1].Close()
	w.cmd = cmd
	return nil
}

func (w *Worker) sendData(p runtimedata.DataPacket) error {
	buf, err := runtimedata.EncodeWire(p.SessionID, p.TimestampUs, p.Data)
	if err != nil {
		return err
	}
	return writeFrame(w.inputConn, buf)
}

func (w *Worker) readFrames(out chan<- []byte) {
	defer close(out)
	for {
		frame, err := readFrame(w.outputConn)
		if err != nil {
			return
		}
		out <- frame
	}
}

func (w *Worker) deliverFrame(raw []byte) {
	sessionID, ts, data, err := runtimedata.DecodeWire(raw)
	if err != nil {
		logger.Error("ipc worker decode failed", "session", w.sessionID, "node", w.nodeID, "error", err)
		return
	}
	if w.onOutput != nil {
		w.onOutput(runtimedata.DataPacket{
			Data:        data,
			FromNode:    w.nodeID,
			SessionID:   sessionID,
			TimestampUs: ts,
		})
	}
}

func (w *Worker) processAlive() bool {
	if w.cmd == nil || w.cmd.Process == nil {
		return false
	}
	// Signal(0) probes for existence without affecting the process.
	return w.cmd.Process.Signal(syscallSignalZero) == nil
}

func (w *Worker) markCrashed() {
	if w.crashed.CompareAndSwap(false, true) {
		logger.Error("ipc worker crashed", "session", w.sessionID, "node", w.nodeID)
		if w.onCrash != nil {
			w.onCrash()
		}
	}
}

func (w *Worker) terminate() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
		_, _ = w.cmd.Process.Wait()
	}
	if w.inputConn != nil {
		w.inputConn.Close()
	}
	if w.outputConn != nil {
		w.outputConn.Close()
	}
}

// Send enqueues a packet for delivery to the worker. Never blocks on IPC
// itself; the dedicated thread performs the actual write.
func (w *Worker) Send(p runtimedata.DataPacket) error {
	if w.crashed.Load() {
		return pkgerrors.New("ipc", "send", pkgerrors.ErrWorkerCrash).
			WithDetails(map[string]any{"node_id": w.nodeID, "session_id": w.sessionID})
	}
	select {
	case w.cmdCh <- command{kind: cmdSendData, data: p}:
		return nil
	default:
		return pkgerrors.New("ipc", "send", pkgerrors.ErrBackPressure).
			WithDetails(map[string]any{"node_id": w.nodeID})
	}
}

// Crashed reports whether the worker's process has been observed to have
// died. Once true it never reverts; the caller must invalidate any cache
// entry wrapping this worker.
func (w *Worker) Crashed() bool { return w.crashed.Load() }

// Shutdown requests graceful termination and waits for the dedicated
// thread to exit.
func (w *Worker) Shutdown() {
	select {
	case w.cmdCh <- command{kind: cmdShutdown}:
	default:
	}
	<-w.stopped
}
