package hub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/domain"
)

// fakeConn counts Close calls so double-release shows up.
type fakeConn struct {
	closes atomic.Int32
}

func (f *fakeConn) ReadMessage() (int, []byte, error)            { return 0, nil, nil }
func (f *fakeConn) WriteMessage(messageType int, d []byte) error { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error            { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error           { return nil }
func (f *fakeConn) SetPongHandler(h func(string) error)          {}
func (f *fakeConn) SetReadLimit(limit int64)                     {}
func (f *fakeConn) Close() error                                 { f.closes.Add(1); return nil }

func newTestSession() (*Session, *fakeConn) {
	conn := &fakeConn{}
	return NewSession("client-1", conn), conn
}

func TestSessionLifecycle(t *testing.T) {
	sess, _ := newTestSession()
	if sess.State() != domain.SessionConnecting {
		t.Fatalf("expected connecting, got %s", sess.State())
	}
	sess.Activate()
	if sess.State() != domain.SessionActive {
		t.Fatalf("expected active, got %s", sess.State())
	}
	if !sess.BeginClose() {
		t.Fatal("expected BeginClose to transition")
	}
	if sess.BeginClose() {
		t.Fatal("second BeginClose should not transition")
	}
	sess.Close()
	if sess.State() != domain.SessionClosed {
		t.Fatalf("expected closed, got %s", sess.State())
	}
}

func TestTeardownIdempotent(t *testing.T) {
	h := New(zerolog.Nop())
	sess, conn := newTestSession()
	h.Register(sess)
	sess.Activate()
	if h.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", h.Count())
	}

	h.Teardown(sess)
	h.Teardown(sess)

	if h.Count() != 0 {
		t.Fatalf("expected 0 sessions, got %d", h.Count())
	}
	if got := conn.closes.Load(); got != 1 {
		t.Fatalf("connection released %d times, want exactly once", got)
	}
}

func TestTeardownConcurrent(t *testing.T) {
	h := New(zerolog.Nop())
	sess, conn := newTestSession()
	h.Register(sess)
	sess.Activate()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Teardown(sess)
		}()
	}
	wg.Wait()

	if got := conn.closes.Load(); got != 1 {
		t.Fatalf("connection released %d times, want exactly once", got)
	}
}

func TestSendAfterClose(t *testing.T) {
	sess, _ := newTestSession()
	sess.Activate()
	if err := sess.Send([]byte("ok")); err != nil {
		t.Fatalf("send on active session failed: %v", err)
	}

	sess.Close()
	if err := sess.Send([]byte("dropped")); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}

	// The context must be canceled so in-flight pipeline work can stop.
	select {
	case <-sess.Context().Done():
	default:
		t.Fatal("session context not canceled after close")
	}
}

func TestSendRefusedBeforeActive(t *testing.T) {
	sess, _ := newTestSession()
	if err := sess.Send([]byte("early")); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed for connecting session, got %v", err)
	}
}

func TestHubGetAndCloseAll(t *testing.T) {
	h := New(zerolog.Nop())
	a, _ := newTestSession()
	b, _ := newTestSession()
	h.Register(a)
	h.Register(b)

	if got := h.Get(a.ID); got != a {
		t.Fatalf("Get returned %v", got)
	}
	if h.Get("missing") != nil {
		t.Fatal("expected nil for unknown session")
	}

	h.CloseAll()
	if h.Count() != 0 {
		t.Fatalf("expected empty hub, got %d", h.Count())
	}
	if a.State() != domain.SessionClosed || b.State() != domain.SessionClosed {
		t.Fatal("sessions not closed by CloseAll")
	}
}
