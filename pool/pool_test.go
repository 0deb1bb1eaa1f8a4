package pool

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"golang.org/x/sync/errgroup"
)

// startServer runs a TCP listener that accepts and holds connections until
// the test ends.
func startServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	return ln.Addr().String(), func() {
		ln.Close()
		<-done
		for _, conn := range conns {
			conn.Close()
		}
	}
}

func TestAcquireReleaseReuses(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 2)
	c1, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c1.Release()

	c2, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer c2.Release()

	if c1 != c2 {
		t.Error("released connection was not reused")
	}
}

func TestAcquireBlocksWhenExhausted(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 1)
	c1, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan *Conn)
	go func() {
		c, err := p.Acquire()
		if err != nil {
			t.Errorf("blocked Acquire: %v", err)
		}
		acquired <- c
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while the pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	c1.Release()
	select {
	case c := <-acquired:
		c.Release()
	case <-time.After(time.Second):
		t.Fatal("Acquire still blocked after a release")
	}
}

func TestClearInvalidatesOutstandingConnections(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 2)
	c1, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	gen := p.Generation()

	p.Clear()
	if p.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", p.Generation(), gen+1)
	}

	// The stale connection must be dropped on release, not pooled.
	c1.Release()
	c2, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire after Clear: %v", err)
	}
	defer c2.Release()
	if c1 == c2 {
		t.Error("stale connection was reused after Clear")
	}
}

func TestClearClosesIdleConnections(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 2)
	c1, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c1.Release()

	p.Clear()
	if _, err := c1.sock.Read(make([]byte, 1)); err == nil {
		t.Error("idle socket still open after Clear")
	}
}

func TestDiscardFreesSlot(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 1)
	c1, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c1.Discard()

	c2, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire after Discard: %v", err)
	}
	defer c2.Release()
	if c1 == c2 {
		t.Error("discarded connection was handed out again")
	}
}

func TestSetSizeValidation(t *testing.T) {
	p := New("localhost:0")
	if err := p.SetSize(0); err == nil {
		t.Error("SetSize(0) succeeded, want error")
	}
	if err := p.SetSize(10); err != nil {
		t.Errorf("SetSize(10): %v", err)
	}
}

func TestZeroSizePoolRefuses(t *testing.T) {
	p := WithSize("localhost:0", 0)
	if _, err := p.Acquire(); err == nil {
		t.Error("Acquire on a zero-size pool succeeded, want error")
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := startServer(t)
	defer stop()

	p := WithSize(addr, 3)
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			c, err := p.Acquire()
			if err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
			c.Release()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent acquire/release: %v", err)
	}

	if p.open > 3 {
		t.Errorf("pool opened %d connections, want at most 3", p.open)
	}
}

func TestDialFailure(t *testing.T) {
	defer leaktest.Check(t)()

	// An address nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := WithSize(addr, 1)
	if _, err := p.Acquire(); err == nil {
		t.Fatal("Acquire succeeded against a closed address")
	}

	// The failed dial must not leak its slot.
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if open != 0 {
		t.Errorf("open = %d after failed dial, want 0", open)
	}
}

func TestClearDuringFailedDialKeepsCount(t *testing.T) {
	defer leaktest.Check(t)()

	// An address nothing listens on, so every dial fails.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := WithSize(addr, 2)

	// Hammer Clear against failing dials. A dial that started before a Clear
	// must not give back a slot the Clear already reclaimed.
	done := make(chan struct{})
	cleared := make(chan struct{})
	go func() {
		defer close(cleared)
		for {
			select {
			case <-done:
				return
			default:
				p.Clear()
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				if _, err := p.Acquire(); err == nil {
					return errors.New("Acquire succeeded against a closed address")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(done)
	<-cleared

	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if open != 0 {
		t.Errorf("open = %d after Clear raced failed dials, want 0", open)
	}
}
