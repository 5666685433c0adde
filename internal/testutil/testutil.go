// Package testutil provides shared test helpers: a temporary checkpoint
// store and a scripted kernel transport.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/starford/ansuz/internal/checkpoint"
	"github.com/starford/ansuz/internal/kernel"
)

// TestCheckpointDB creates a temporary SQLite checkpoint store that is
// automatically cleaned up.
func TestCheckpointDB(t *testing.T) *checkpoint.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := checkpoint.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// DiscardLogger returns a logger that swallows everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeTransport is a scripted kernel transport: it records sent requests and
// lets the test deliver replies in any order.
type FakeTransport struct {
	mu       sync.Mutex
	handler  kernel.ReplyHandler
	requests []kernel.Request
	closed   bool

	// SendErr, when set, fails every Send.
	SendErr error
}

// NewFakeTransport creates an unscripted transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Dialer returns a kernel.Dialer that hands out this transport.
func (f *FakeTransport) Dialer() kernel.Dialer {
	return func(_ context.Context, _ string, handler kernel.ReplyHandler) (kernel.Transport, error) {
		f.mu.Lock()
		f.handler = handler
		f.mu.Unlock()
		return f, nil
	}
}

// Send records the request.
func (f *FakeTransport) Send(req kernel.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.requests = append(f.requests, req)
	return nil
}

// Close marks the transport closed.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Requests returns a copy of the requests sent so far.
func (f *FakeTransport) Requests() []kernel.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kernel.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastRequest returns the most recent request, failing the test when none
// was sent.
func (f *FakeTransport) LastRequest(t *testing.T) kernel.Request {
	t.Helper()
	reqs := f.Requests()
	if len(reqs) == 0 {
		t.Fatal("no request sent")
	}
	return reqs[len(reqs)-1]
}

// Deliver routes one reply through the handler, as the read loop would.
func (f *FakeTransport) Deliver(r kernel.Reply) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(r)
	}
}
