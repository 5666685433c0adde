package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/kernel"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/runner"
	"github.com/starford/ansuz/internal/testutil"
)

type fixture struct {
	nb *notebook.Notebook
	co *runner.Coordinator
	ft *testutil.FakeTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ft := testutil.NewFakeTransport()
	session := kernel.NewSession(ft.Dialer(), testutil.DiscardLogger(), nil)
	if err := session.Start(context.Background(), "nb"); err != nil {
		t.Fatal(err)
	}
	nb := notebook.New("http://store", "nb")
	nb.BindSession(session)
	return &fixture{
		nb: nb,
		co: runner.New(nb, session, testutil.DiscardLogger()),
		ft: ft,
	}
}

func (f *fixture) codeCell(t *testing.T, input string) *notebook.Cell {
	t.Helper()
	var anchor *notebook.Cell
	if f.nb.Len() > 0 {
		anchor = f.nb.CellAt(f.nb.Len() - 1)
	}
	c, err := f.nb.NewCellBelow(notebook.CellCode, anchor)
	if err != nil {
		t.Fatal(err)
	}
	c.SetInput(input)
	return c
}

func TestRunCellHappyPath(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "print(1)")
	f.nb.SetDirty(false)

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	if c.State() != notebook.StateQueued {
		t.Fatalf("state after issue = %s, want queued", c.State())
	}
	req := f.ft.LastRequest(t)
	if req.Type != kernel.MsgExecute || req.Code != "print(1)" {
		t.Fatalf("request = %+v", req)
	}

	f.ft.Deliver(kernel.Reply{ParentID: req.MsgID, Type: kernel.ReplyStatus, ExecutionState: "busy"})
	if c.State() != notebook.StateRunning {
		t.Errorf("state after busy ack = %s, want running", c.State())
	}

	f.ft.Deliver(kernel.Reply{ParentID: req.MsgID, Type: kernel.ReplyStream, Stream: "stdout", Text: "1\n"})
	f.ft.Deliver(kernel.Reply{ParentID: req.MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 1})

	if c.State() != notebook.StateCompleted {
		t.Errorf("state = %s, want completed", c.State())
	}
	if n, ok := c.Prompt(); !ok || n != 1 {
		t.Errorf("prompt = %d,%v, want 1,true", n, ok)
	}
	outputs := c.Outputs()
	if len(outputs) != 1 || outputs[0].Text != "1\n" {
		t.Errorf("outputs = %+v", outputs)
	}
	if !f.nb.Dirty() {
		t.Error("completed run did not mark notebook dirty")
	}
	if err := f.co.Wait(context.Background()); err != nil {
		t.Errorf("wait after completion: %v", err)
	}
}

func TestRunClearsPreviousOutputs(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "print(2)")
	c.AppendOutput(notebook.Output{Kind: notebook.OutputStream, Text: "stale"})

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	if len(c.Outputs()) != 0 {
		t.Error("queued cell kept stale outputs")
	}
}

func TestErroredRun(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "raise X")

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	id := f.ft.LastRequest(t).MsgID

	f.ft.Deliver(kernel.Reply{ParentID: id, Type: kernel.ReplyStatus, ExecutionState: "busy"})
	f.ft.Deliver(kernel.Reply{
		ParentID: id, Type: kernel.ReplyError,
		EName: "X", EValue: "boom", Traceback: []string{"line 1"},
	})
	f.ft.Deliver(kernel.Reply{
		ParentID: id, Type: kernel.ReplyExecute, Status: kernel.StatusError,
		EName: "X", EValue: "boom",
	})

	if c.State() != notebook.StateErrored {
		t.Fatalf("state = %s, want errored", c.State())
	}
	// The pyerr message already carried the traceback; the terminal reply
	// must not add a second error output.
	outputs := c.Outputs()
	if len(outputs) != 1 || outputs[0].Kind != notebook.OutputError {
		t.Errorf("outputs = %+v", outputs)
	}
	if _, ok := c.Prompt(); ok {
		t.Error("errored run assigned a prompt number")
	}
}

func TestErroredRunWithoutOutputMessage(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "raise Y")

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	id := f.ft.LastRequest(t).MsgID
	f.ft.Deliver(kernel.Reply{
		ParentID: id, Type: kernel.ReplyExecute, Status: kernel.StatusError,
		EName: "Y", EValue: "late", Traceback: []string{"tb"},
	})

	outputs := c.Outputs()
	if len(outputs) != 1 || outputs[0].EName != "Y" {
		t.Errorf("terminal error not materialized: %+v", outputs)
	}
}

func TestOutOfOrderRepliesAcrossCells(t *testing.T) {
	f := newFixture(t)
	a := f.codeCell(t, "slow()")
	b := f.codeCell(t, "fast()")

	if err := f.co.RunCell(a); err != nil {
		t.Fatal(err)
	}
	if err := f.co.RunCell(b); err != nil {
		t.Fatal(err)
	}
	reqs := f.ft.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}

	// The second cell finishes first.
	f.ft.Deliver(kernel.Reply{ParentID: reqs[1].MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 1})
	f.ft.Deliver(kernel.Reply{ParentID: reqs[0].MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 2})

	if na, _ := a.Prompt(); na != 2 {
		t.Errorf("a prompt = %d, want 2", na)
	}
	if nb, _ := b.Prompt(); nb != 1 {
		t.Errorf("b prompt = %d, want 1", nb)
	}
}

func TestOutOfOrderRepliesSameCell(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "tick()")

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	reqs := f.ft.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	// The second issuance cleared the output list again.
	if len(c.Outputs()) != 0 {
		t.Fatalf("outputs before replies = %+v", c.Outputs())
	}

	// The second request's replies land before the first's.
	f.ft.Deliver(kernel.Reply{ParentID: reqs[1].MsgID, Type: kernel.ReplyStream, Stream: "stdout", Text: "second\n"})
	f.ft.Deliver(kernel.Reply{ParentID: reqs[1].MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 2})
	f.ft.Deliver(kernel.Reply{ParentID: reqs[0].MsgID, Type: kernel.ReplyStream, Stream: "stdout", Text: "first\n"})
	f.ft.Deliver(kernel.Reply{ParentID: reqs[0].MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 1})

	// One output per stream reply, appended in arrival order.
	outputs := c.Outputs()
	if len(outputs) != 2 || outputs[0].Text != "second\n" || outputs[1].Text != "first\n" {
		t.Errorf("outputs = %+v", outputs)
	}
	// The counter tracks whichever terminal reply arrived last.
	if n, ok := c.Prompt(); !ok || n != 1 {
		t.Errorf("prompt = %d,%v, want 1,true", n, ok)
	}
	if c.State() != notebook.StateCompleted {
		t.Errorf("state = %s, want completed", c.State())
	}
	if err := f.co.Wait(context.Background()); err != nil {
		t.Errorf("wait after both replies: %v", err)
	}
}

func TestRunAllSkipsNonCode(t *testing.T) {
	f := newFixture(t)
	f.codeCell(t, "a()")
	md, err := f.nb.NewCellBelow(notebook.CellMarkdown, f.nb.CellAt(0))
	if err != nil {
		t.Fatal(err)
	}
	md.SetInput("notes")
	f.codeCell(t, "b()")

	if err := f.co.RunAll(); err != nil {
		t.Fatal(err)
	}
	reqs := f.ft.Requests()
	if len(reqs) != 2 || reqs[0].Code != "a()" || reqs[1].Code != "b()" {
		t.Errorf("requests = %+v", reqs)
	}
	if md.State() != notebook.StateIdle {
		t.Error("markdown cell was queued")
	}
}

func TestRunNonExecutableCell(t *testing.T) {
	f := newFixture(t)
	md, err := f.nb.NewCellBelow(notebook.CellMarkdown, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.co.RunCell(md); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestRunNotReady(t *testing.T) {
	ft := testutil.NewFakeTransport()
	session := kernel.NewSession(ft.Dialer(), testutil.DiscardLogger(), nil)
	nb := notebook.New("http://store", "nb")
	co := runner.New(nb, session, testutil.DiscardLogger())

	c, err := nb.NewCellBelow(notebook.CellCode, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := co.RunCell(c); !errors.Is(err, apperr.ErrKernelNotReady) {
		t.Fatalf("err = %v, want ErrKernelNotReady", err)
	}
	if c.State() != notebook.StateIdle {
		t.Errorf("rejected run left state %s", c.State())
	}
}

func TestSendFailureRevertsToIdle(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "x")
	f.ft.SendErr = errors.New("gone")

	if err := f.co.RunCell(c); err == nil {
		t.Fatal("expected send failure")
	}
	if c.State() != notebook.StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if err := f.co.Wait(context.Background()); err != nil {
		t.Errorf("wait should return immediately: %v", err)
	}
}

func TestFollowUpInputInsertsCell(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "make_next()")

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	id := f.ft.LastRequest(t).MsgID
	f.ft.Deliver(kernel.Reply{
		ParentID: id, Type: kernel.ReplyExecute, Status: kernel.StatusOK,
		ExecutionCount: 1, NextInput: "follow_up()",
	})

	if f.nb.Len() != 2 {
		t.Fatalf("len = %d, want 2", f.nb.Len())
	}
	inserted := f.nb.CellAt(1)
	if inserted.Type() != notebook.CellCode || inserted.Input() != "follow_up()" {
		t.Errorf("inserted = %s %q", inserted.Type(), inserted.Input())
	}
}

func TestCellExecutedEvent(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "x")

	var executed []*notebook.Cell
	f.nb.Bus().On(events.CellExecuted, func(p any) {
		if cell, ok := p.(*notebook.Cell); ok {
			executed = append(executed, cell)
		}
	})

	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}
	f.ft.Deliver(kernel.Reply{ParentID: f.ft.LastRequest(t).MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK, ExecutionCount: 1})

	if len(executed) != 1 || executed[0] != c {
		t.Errorf("executed events = %v", executed)
	}
}

func TestWaitBlocksUntilTerminal(t *testing.T) {
	f := newFixture(t)
	c := f.codeCell(t, "x")
	if err := f.co.RunCell(c); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.co.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait with pending run = %v, want deadline exceeded", err)
	}

	f.ft.Deliver(kernel.Reply{ParentID: f.ft.LastRequest(t).MsgID, Type: kernel.ReplyExecute, Status: kernel.StatusOK})
	if err := f.co.Wait(context.Background()); err != nil {
		t.Errorf("wait after terminal reply: %v", err)
	}
}
