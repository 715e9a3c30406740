package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/node"
	"github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"
)

type fakeNode struct {
	nodeType     string
	initCount    int32
	cleanupCount int32
}

func (f *fakeNode) NodeType() string { return f.nodeType }
func (f *fakeNode) Initialize(ctx context.Context) error {
	atomic.AddInt32(&f.initCount, 1)
	return nil
}
func (f *fakeNode) Process(ctx context.Context, input runtimedata.RuntimeData) (runtimedata.RuntimeData, error) {
	return input, nil
}
func (f *fakeNode) ProcessStreaming(ctx context.Context, sessionID string, input runtimedata.RuntimeData, emit node.EmitFunc) (uint64, error) {
	return 0, nil
}
func (f *fakeNode) Cleanup(ctx context.Context) error {
	atomic.AddInt32(&f.cleanupCount, 1)
	return nil
}

func TestAcquireCreatesOnMissAndHitsOnSecondCall(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer c.Close()

	n := &fakeNode{nodeType: "resample"}
	factory := func(ctx context.Context) (node.Node, error) {
		if err := n.Initialize(ctx); err != nil {
			return nil, err
		}
		return n, nil
	}

	key := Key{NodeType: "resample", Fingerprint: "a"}
	h1, err := c.Acquire(context.Background(), key, factory)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := c.Acquire(context.Background(), key, factory)
	if err != nil {
		t.Fatal(err)
	}

	if n.initCount != 1 {
		t.Fatalf("expected initialize exactly once, got %d", n.initCount)
	}
	if h1.Node != h2.Node {
		t.Fatal("expected both handles to reference the same node")
	}

	h1.Release()
	h2.Release()
}

func TestAcquireSingleFlightUnderConcurrency(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer c.Close()

	var initCount int32
	start := make(chan struct{})
	factory := func(ctx context.Context) (node.Node, error) {
		atomic.AddInt32(&initCount, 1)
		time.Sleep(10 * time.Millisecond)
		return &fakeNode{nodeType: "slow"}, nil
	}

	key := Key{NodeType: "slow", Fingerprint: "x"}
	var wg sync.WaitGroup
	handles := make([]Handle, 20)
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			handles[i], errs[i] = c.Acquire(context.Background(), key, factory)
		}(i)
	}
	close(start)
	wg.Wait()

	if initCount != 1 {
		t.Fatalf("expected factory invoked exactly once, got %d", initCount)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	for _, h := range handles {
		h.Release()
	}
}

func TestAcquireDoesNotInsertOnFactoryFailure(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	defer c.Close()

	boom := errors.New("boom")
	key := Key{NodeType: "broken", Fingerprint: "y"}
	_, err := c.Acquire(context.Background(), key, func(ctx context.Context) (node.Node, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected no entry inserted after factory failure, got %d", c.Len())
	}
}

func TestSweepEvictsOnlyIdleUnreferencedEntries(t *testing.T) {
	t.Parallel()

	c := New(Options{TTL: time.Millisecond, JanitorPeriod: time.Hour})
	defer c.Close()

	n := &fakeNode{nodeType: "model"}
	key := Key{NodeType: "model", Fingerprint: "z"}
	h, err := c.Acquire(context.Background(), key, func(ctx context.Context) (node.Node, error) {
		return n, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)
	c.sweep()
	if c.Len() != 1 {
		t.Fatal("entry with positive ref_count must not be evicted")
	}

	h.Release()
	time.Sleep(2 * time.Millisecond)
	c.sweep()
	if c.Len() != 0 {
		t.Fatal("expected idle, unreferenced entry to be evicted")
	}
	if n.cleanupCount != 1 {
		t.Fatalf("expected cleanup called exactly once, got %d", n.cleanupCount)
	}
}

func TestFingerprintIsStableForEquivalentParams(t *testing.T) {
	t.Parallel()

	a, err := Fingerprint(map[string]any{"rate": 16000, "channels": 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint(map[string]any{"rate": 16000, "channels": 1})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected equivalent params to fingerprint identically")
	}

	c2, err := Fingerprint(map[string]any{"rate": 48000, "channels": 1})
	if err != nil {
		t.Fatal(err)
	}
	if a == c2 {
		t.Fatal("expected differing params to fingerprint differently")
	}
}
