// Package runner drives code cells through their execution state machine
// using a kernel session, and propagates the results back into the document.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/kernel"
	"github.com/starford/ansuz/internal/notebook"
)

// FollowUpInput is the payload of the cell.insert_below topic: the kernel
// asked for a new input cell with the given text below After.
type FollowUpInput struct {
	After *notebook.Cell
	Text  string
}

// Coordinator executes cells of one notebook on one kernel session.
//
// Idle → Queued → Running → {Completed, Errored}. Queued begins when the
// execute call is accepted by a ready session; Running when the kernel
// acknowledges start; the terminal states are per-run and editing the input
// returns the cell to Idle.
type Coordinator struct {
	nb      *notebook.Notebook
	session *kernel.Session
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight int
	idleCh   chan struct{}
}

// New creates a coordinator and registers the follow-up-input handler on the
// notebook's bus.
func New(nb *notebook.Notebook, session *kernel.Session, logger *slog.Logger) *Coordinator {
	co := &Coordinator{nb: nb, session: session, logger: logger}
	nb.Bus().On(events.InsertBelow, func(payload any) {
		fi, ok := payload.(FollowUpInput)
		if !ok {
			return
		}
		cell := notebook.NewCell(notebook.CellCode)
		cell.SetInput(fi.Text)
		if _, err := nb.InsertCellBelow(cell, fi.After); err != nil {
			logger.Warn("follow-up insert rejected", slog.String("error", err.Error()))
		}
	})
	return co
}

// RunCell issues an execute call for c and returns without waiting for the
// reply. The session must be ready; a not-ready session rejects the run and
// the cell stays Idle.
func (co *Coordinator) RunCell(c *notebook.Cell) error {
	if !c.Type().Executable() {
		return fmt.Errorf("run %s cell: %w", c.Type(), apperr.ErrInvalidState)
	}
	if !co.session.IsReady() {
		return fmt.Errorf("run cell: %w", apperr.ErrKernelNotReady)
	}

	c.BeginRun()
	co.begin()
	cb := kernel.Callbacks{
		OnOutput: func(r kernel.Reply) { co.onOutput(c, r) },
		OnStatus: map[string]kernel.ReplyFunc{
			kernel.StatusOK:    func(r kernel.Reply) { co.onCompleted(c, r) },
			kernel.StatusError: func(r kernel.Reply) { co.onErrored(c, r) },
		},
		// abort and timeout land here.
		OnReply: func(r kernel.Reply) { co.onErrored(c, r) },
	}
	if _, err := co.session.Execute(c.Input(), cb); err != nil {
		c.MarkIdle()
		co.finish()
		return err
	}
	return nil
}

// RunAll issues one execute call per code cell in document order without
// waiting for prior completion. The kernel, not the client, serializes the
// actual run order.
func (co *Coordinator) RunAll() error {
	for _, c := range co.nb.Cells() {
		if !c.Type().Executable() {
			continue
		}
		if err := co.RunCell(c); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every issued run has reached a terminal state or ctx is
// done.
func (co *Coordinator) Wait(ctx context.Context) error {
	co.mu.Lock()
	if co.inFlight == 0 {
		co.mu.Unlock()
		return nil
	}
	ch := co.idleCh
	co.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (co *Coordinator) begin() {
	co.mu.Lock()
	if co.inFlight == 0 {
		co.idleCh = make(chan struct{})
	}
	co.inFlight++
	co.mu.Unlock()
}

func (co *Coordinator) finish() {
	co.mu.Lock()
	co.inFlight--
	if co.inFlight == 0 && co.idleCh != nil {
		close(co.idleCh)
		co.idleCh = nil
	}
	co.mu.Unlock()
}

func (co *Coordinator) onOutput(c *notebook.Cell, r kernel.Reply) {
	switch r.Type {
	case kernel.ReplyStatus:
		if r.ExecutionState == "busy" {
			c.MarkRunning()
		}
	case kernel.ReplyStream:
		c.AppendOutput(notebook.Output{Kind: notebook.OutputStream, Stream: r.Stream, Text: r.Text})
	case kernel.ReplyResult:
		c.AppendOutput(notebook.Output{Kind: notebook.OutputResult, Text: r.Text, PromptNumber: r.ExecutionCount})
	case kernel.ReplyError:
		c.AppendOutput(notebook.Output{Kind: notebook.OutputError, EName: r.EName, EValue: r.EValue, Traceback: r.Traceback})
	}
}

func (co *Coordinator) onCompleted(c *notebook.Cell, r kernel.Reply) {
	c.CompleteRun(r.ExecutionCount)
	co.nb.MarkDirty()
	co.nb.Bus().Trigger(events.CellExecuted, c)
	if r.NextInput != "" {
		co.nb.Bus().Trigger(events.InsertBelow, FollowUpInput{After: c, Text: r.NextInput})
	}
	co.finish()
}

func (co *Coordinator) onErrored(c *notebook.Cell, r kernel.Reply) {
	// The traceback usually arrives first as a pyerr message; only append
	// from the terminal reply when it did not.
	if r.EName != "" && !hasErrorOutput(c.Outputs()) {
		c.AppendOutput(notebook.Output{Kind: notebook.OutputError, EName: r.EName, EValue: r.EValue, Traceback: r.Traceback})
	}
	c.FailRun()
	// A failed run still changes displayed state.
	co.nb.MarkDirty()
	co.nb.Bus().Trigger(events.CellExecuted, c)
	co.finish()
}

func hasErrorOutput(outputs []notebook.Output) bool {
	for _, o := range outputs {
		if o.Kind == notebook.OutputError {
			return true
		}
	}
	return false
}
