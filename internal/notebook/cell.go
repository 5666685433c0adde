// Package notebook implements the in-memory notebook document: the ordered
// cell sequence, structural edits, the dirty lifecycle, and the process-wide
// registry of open notebooks.
package notebook

import "sync"

// CellType tags the cell variants.
type CellType string

// Cell variants.
const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
	CellHeading  CellType = "heading"
)

// Valid reports whether t is a known variant.
func (t CellType) Valid() bool {
	switch t {
	case CellCode, CellMarkdown, CellRaw, CellHeading:
		return true
	}
	return false
}

// Executable reports whether cells of this type are run on a kernel.
func (t CellType) Executable() bool {
	return t == CellCode
}

// ExecState is the execution state of a code cell.
type ExecState int

// Execution states. Idle is initial for every new or edited code cell;
// Completed and Errored are terminal for a single run.
const (
	StateIdle ExecState = iota
	StateQueued
	StateRunning
	StateCompleted
	StateErrored
)

func (s ExecState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// OutputKind tags the output variants of a code cell.
type OutputKind int

// Output variants.
const (
	OutputStream OutputKind = iota
	OutputResult
	OutputError
)

// Output is one element of a code cell's output list. The populated fields
// depend on Kind: Stream+Text for stream output, Text+PromptNumber for an
// execute result, EName/EValue/Traceback for an error.
type Output struct {
	Kind         OutputKind
	Stream       string
	Text         string
	PromptNumber int
	EName        string
	EValue       string
	Traceback    []string
}

// Cell is a single unit of notebook content. A cell belongs to exactly one
// notebook at a time; the back-reference is used for neighbor lookup only and
// is rebound explicitly when a cell moves between notebooks.
type Cell struct {
	mu        sync.Mutex
	ctype     CellType
	level     int
	input     string
	outputs   []Output
	prompt    *int
	collapsed bool
	state     ExecState
	nb        *Notebook
}

// NewCell creates an unattached cell of the given type.
func NewCell(t CellType) *Cell {
	return &Cell{ctype: t}
}

// NewHeadingCell creates an unattached heading cell. Levels outside 1..6 are
// clamped.
func NewHeadingCell(level int) *Cell {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return &Cell{ctype: CellHeading, level: level}
}

// Type returns the cell variant.
func (c *Cell) Type() CellType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctype
}

// Level returns the heading level, 0 for non-heading cells.
func (c *Cell) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Input returns the cell's input text.
func (c *Cell) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the input text, returns the cell to Idle, and marks the
// owning notebook dirty.
func (c *Cell) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.state = StateIdle
	nb := c.nb
	c.mu.Unlock()
	if nb != nil {
		nb.MarkDirty()
	}
}

// Outputs returns a copy of the output list.
func (c *Cell) Outputs() []Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Output, len(c.outputs))
	copy(out, c.outputs)
	return out
}

// AppendOutput appends one output record. Output is append-only during a
// single execution.
func (c *Cell) AppendOutput(o Output) {
	c.mu.Lock()
	c.outputs = append(c.outputs, o)
	c.mu.Unlock()
}

// ClearOutputs discards the output list.
func (c *Cell) ClearOutputs() {
	c.mu.Lock()
	c.outputs = nil
	c.mu.Unlock()
}

// Prompt returns the execution counter and whether the cell has ever run.
func (c *Cell) Prompt() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt == nil {
		return 0, false
	}
	return *c.prompt, true
}

// Collapsed reports the display flag of a code cell.
func (c *Cell) Collapsed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collapsed
}

// SetCollapsed sets the display flag and marks the owning notebook dirty.
func (c *Cell) SetCollapsed(v bool) {
	c.mu.Lock()
	c.collapsed = v
	nb := c.nb
	c.mu.Unlock()
	if nb != nil {
		nb.MarkDirty()
	}
}

// State returns the execution state.
func (c *Cell) State() ExecState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notebook returns the owning notebook, nil for unattached cells.
func (c *Cell) Notebook() *Notebook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nb
}

// BeginRun resets the cell for a fresh execution: outputs cleared, state
// Queued. Driven by the execution coordinator.
func (c *Cell) BeginRun() {
	c.mu.Lock()
	c.outputs = nil
	c.state = StateQueued
	c.mu.Unlock()
}

// MarkRunning records the kernel's acknowledgement that execution started.
func (c *Cell) MarkRunning() {
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
}

// MarkIdle returns the cell to Idle, used when an issued run is rejected.
func (c *Cell) MarkIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// CompleteRun records a successful run's execution counter.
func (c *Cell) CompleteRun(count int) {
	c.mu.Lock()
	n := count
	c.prompt = &n
	c.state = StateCompleted
	c.mu.Unlock()
}

// FailRun marks the run as errored.
func (c *Cell) FailRun() {
	c.mu.Lock()
	c.state = StateErrored
	c.mu.Unlock()
}

// adopt rebinds the cell to a notebook.
func (c *Cell) adopt(nb *Notebook) {
	c.mu.Lock()
	c.nb = nb
	c.mu.Unlock()
}

// snapshot returns the fields needed for serialization in one lock
// acquisition.
func (c *Cell) snapshot() (t CellType, level int, input string, outputs []Output, prompt *int, collapsed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outputs = make([]Output, len(c.outputs))
	copy(outputs, c.outputs)
	if c.prompt != nil {
		n := *c.prompt
		prompt = &n
	}
	return c.ctype, c.level, c.input, outputs, prompt, c.collapsed
}
