package notebook

import (
	"fmt"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/nbformat"
)

// Direction selects a neighbor for move and merge operations.
type Direction int

// Neighbor directions in document order.
const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "unknown"
}

// Session is what the document model needs from the kernel binding. The
// concrete session lives in the kernel package.
type Session interface {
	IsReady() bool
	Kill() error
}

// Notebook is the root document aggregate: the ordered cell sequence,
// metadata, the dirty flag, and at most one bound kernel session. The cell
// sequence is mutated only through Notebook operations.
type Notebook struct {
	mu       sync.Mutex
	server   string
	id       string
	name     string
	format   int
	metadata map[string]any
	cells    []*Cell
	dirty    bool
	session  Session
	bus      *events.Bus
}

// New creates an empty notebook identified by (server, id). It is populated
// by LoadWire once the remote payload arrives.
func New(server, id string) *Notebook {
	return &Notebook{
		server:   server,
		id:       id,
		name:     id,
		format:   nbformat.Version,
		metadata: map[string]any{},
		bus:      events.New(),
	}
}

// Server returns the remote store locator.
func (nb *Notebook) Server() string { return nb.server }

// ID returns the notebook identifier on the server.
func (nb *Notebook) ID() string { return nb.id }

// Bus returns the notebook's event bus. The bus lives as long as the
// notebook.
func (nb *Notebook) Bus() *events.Bus { return nb.bus }

// Name returns the notebook's display name.
func (nb *Notebook) Name() string {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.name
}

// SetName renames the notebook and marks it dirty.
func (nb *Notebook) SetName(name string) {
	nb.mu.Lock()
	nb.name = name
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	nb.notifyDirty(changed, true)
}

// Meta returns the metadata value for key.
func (nb *Notebook) Meta(key string) (any, bool) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	v, ok := nb.metadata[key]
	return v, ok
}

// SetMeta sets a metadata value and marks the notebook dirty.
func (nb *Notebook) SetMeta(key string, value any) {
	nb.mu.Lock()
	nb.metadata[key] = value
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	nb.notifyDirty(changed, true)
}

// Session returns the bound kernel session, nil before the kernel has
// started.
func (nb *Notebook) Session() Session {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.session
}

// BindSession attaches the notebook's single kernel session. Executable
// cells are bound implicitly through their owning notebook.
func (nb *Notebook) BindSession(s Session) {
	nb.mu.Lock()
	nb.session = s
	nb.mu.Unlock()
}

// Dirty reports whether in-memory state diverges from the last successfully
// persisted state.
func (nb *Notebook) Dirty() bool {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.dirty
}

// SetDirty sets the dirty flag explicitly, triggering the dirty topic on
// change.
func (nb *Notebook) SetDirty(v bool) {
	nb.mu.Lock()
	changed := nb.setDirtyLocked(v)
	nb.mu.Unlock()
	nb.notifyDirty(changed, v)
}

// MarkDirty is SetDirty(true).
func (nb *Notebook) MarkDirty() { nb.SetDirty(true) }

func (nb *Notebook) setDirtyLocked(v bool) bool {
	if nb.dirty == v {
		return false
	}
	nb.dirty = v
	return true
}

// notifyDirty fires the dirty topic outside the notebook lock so handlers
// may call back into the notebook.
func (nb *Notebook) notifyDirty(changed, v bool) {
	if changed {
		nb.bus.Trigger(events.Dirty, v)
	}
}

// Len returns the number of cells.
func (nb *Notebook) Len() int {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return len(nb.cells)
}

// Cells returns the cells in document order.
func (nb *Notebook) Cells() []*Cell {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	out := make([]*Cell, len(nb.cells))
	copy(out, nb.cells)
	return out
}

// CellAt returns the cell at index i, nil when out of range.
func (nb *Notebook) CellAt(i int) *Cell {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if i < 0 || i >= len(nb.cells) {
		return nil
	}
	return nb.cells[i]
}

func (nb *Notebook) indexLocked(c *Cell) int {
	for i, x := range nb.cells {
		if x == c {
			return i
		}
	}
	return -1
}

func (nb *Notebook) insertAtLocked(i int, c *Cell) {
	nb.cells = append(nb.cells, nil)
	copy(nb.cells[i+1:], nb.cells[i:])
	nb.cells[i] = c
	c.adopt(nb)
}

// InsertCellBelow inserts c into the document. With an empty document c
// becomes the sole cell and base is ignored. Otherwise c goes immediately
// after base; a nil or unknown base in a non-empty document is rejected with
// ErrInvalidState.
func (nb *Notebook) InsertCellBelow(c *Cell, base *Cell) (*Cell, error) {
	nb.mu.Lock()
	if len(nb.cells) == 0 {
		nb.insertAtLocked(0, c)
	} else {
		if base == nil {
			nb.mu.Unlock()
			return nil, fmt.Errorf("insert below without anchor in non-empty document: %w", apperr.ErrInvalidState)
		}
		i := nb.indexLocked(base)
		if i < 0 {
			nb.mu.Unlock()
			return nil, fmt.Errorf("insert below foreign anchor: %w", apperr.ErrInvalidState)
		}
		nb.insertAtLocked(i+1, c)
	}
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	nb.notifyDirty(changed, true)
	return c, nil
}

// NewCellBelow creates a fresh cell of type t and inserts it below base.
func (nb *Notebook) NewCellBelow(t CellType, base *Cell) (*Cell, error) {
	return nb.InsertCellBelow(NewCell(t), base)
}

// InsertCellAbove inserts c immediately before base. When fewer than two
// cells exist, c is inserted as the first cell unconditionally.
func (nb *Notebook) InsertCellAbove(c *Cell, base *Cell) (*Cell, error) {
	nb.mu.Lock()
	if len(nb.cells) < 2 {
		nb.insertAtLocked(0, c)
	} else {
		if base == nil {
			nb.mu.Unlock()
			return nil, fmt.Errorf("insert above without anchor: %w", apperr.ErrInvalidState)
		}
		i := nb.indexLocked(base)
		if i < 0 {
			nb.mu.Unlock()
			return nil, fmt.Errorf("insert above foreign anchor: %w", apperr.ErrInvalidState)
		}
		nb.insertAtLocked(i, c)
	}
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	nb.notifyDirty(changed, true)
	return c, nil
}

// NewCellAbove creates a fresh cell of type t and inserts it above base.
func (nb *Notebook) NewCellAbove(t CellType, base *Cell) (*Cell, error) {
	return nb.InsertCellAbove(NewCell(t), base)
}

// Delete removes c from the document. Callers needing recoverability must
// capture the cell's state beforehand; there is no undo here.
func (nb *Notebook) Delete(c *Cell) error {
	nb.mu.Lock()
	i := nb.indexLocked(c)
	if i < 0 {
		nb.mu.Unlock()
		return fmt.Errorf("delete of cell not in document: %w", apperr.ErrInvalidState)
	}
	nb.cells = append(nb.cells[:i], nb.cells[i+1:]...)
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	c.adopt(nil)
	nb.notifyDirty(changed, true)
	return nil
}

// Move swaps c with its neighbor in dir. Fails with ErrNoSuchNeighbor when
// no neighbor exists in that direction.
func (nb *Notebook) Move(c *Cell, dir Direction) error {
	nb.mu.Lock()
	i := nb.indexLocked(c)
	if i < 0 {
		nb.mu.Unlock()
		return fmt.Errorf("move of cell not in document: %w", apperr.ErrInvalidState)
	}
	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(nb.cells) {
		nb.mu.Unlock()
		return fmt.Errorf("move %s from index %d: %w", dir, i, apperr.ErrNoSuchNeighbor)
	}
	nb.cells[i], nb.cells[j] = nb.cells[j], nb.cells[i]
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()
	nb.notifyDirty(changed, true)
	return nil
}

// Split divides c at byte position pos. Content at and after pos moves into
// a new cell of the same type inserted immediately below. One newline is
// trimmed at the boundary on each side, so a run of blank lines at the split
// point is not byte-recoverable by a later Merge.
func (nb *Notebook) Split(c *Cell, pos int) (*Cell, error) {
	nb.mu.Lock()
	i := nb.indexLocked(c)
	if i < 0 {
		nb.mu.Unlock()
		return nil, fmt.Errorf("split of cell not in document: %w", apperr.ErrInvalidState)
	}

	input := c.Input()
	if pos < 0 {
		pos = 0
	}
	if pos > len(input) {
		pos = len(input)
	}
	upper := strings.TrimSuffix(input[:pos], "\n")
	lower := strings.TrimPrefix(input[pos:], "\n")

	var fresh *Cell
	if c.Type() == CellHeading {
		fresh = NewHeadingCell(c.Level())
	} else {
		fresh = NewCell(c.Type())
	}
	fresh.input = lower
	nb.insertAtLocked(i+1, fresh)
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()

	c.SetInput(upper)
	nb.notifyDirty(changed, true)
	return fresh, nil
}

// Merge concatenates the neighbor in dir onto c and deletes the neighbor.
// Fails with ErrNoSuchNeighbor when the neighbor is absent.
func (nb *Notebook) Merge(c *Cell, dir Direction) error {
	nb.mu.Lock()
	i := nb.indexLocked(c)
	if i < 0 {
		nb.mu.Unlock()
		return fmt.Errorf("merge of cell not in document: %w", apperr.ErrInvalidState)
	}
	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(nb.cells) {
		nb.mu.Unlock()
		return fmt.Errorf("merge %s at index %d: %w", dir, i, apperr.ErrNoSuchNeighbor)
	}
	neighbor := nb.cells[j]

	var joined string
	if dir == Up {
		joined = neighbor.Input() + "\n" + c.Input()
	} else {
		joined = c.Input() + "\n" + neighbor.Input()
	}
	nb.cells = append(nb.cells[:j], nb.cells[j+1:]...)
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()

	neighbor.adopt(nil)
	c.SetInput(joined)
	nb.notifyDirty(changed, true)
	return nil
}

// Convert replaces c with a new cell of newType carrying the same input
// text. level applies when newType is heading. The result is bound to the
// notebook, and through it to the notebook's kernel session, before return.
func (nb *Notebook) Convert(c *Cell, newType CellType, level int) (*Cell, error) {
	if !newType.Valid() {
		return nil, fmt.Errorf("convert to unknown type %q: %w", newType, apperr.ErrInvalidState)
	}
	nb.mu.Lock()
	i := nb.indexLocked(c)
	if i < 0 {
		nb.mu.Unlock()
		return nil, fmt.Errorf("convert of cell not in document: %w", apperr.ErrInvalidState)
	}

	var fresh *Cell
	if newType == CellHeading {
		fresh = NewHeadingCell(level)
	} else {
		fresh = NewCell(newType)
	}
	fresh.input = c.Input()
	nb.cells[i] = fresh
	fresh.adopt(nb)
	changed := nb.setDirtyLocked(true)
	nb.mu.Unlock()

	c.adopt(nil)
	nb.notifyDirty(changed, true)
	return fresh, nil
}

// NextInput returns the cell after c in document order, nil at the end.
func (nb *Notebook) NextInput(c *Cell) *Cell {
	return nb.neighbor(c, Down)
}

// PrevInput returns the cell before c in document order, nil at the start.
func (nb *Notebook) PrevInput(c *Cell) *Cell {
	return nb.neighbor(c, Up)
}

func (nb *Notebook) neighbor(c *Cell, dir Direction) *Cell {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	i := nb.indexLocked(c)
	if i < 0 {
		return nil
	}
	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(nb.cells) {
		return nil
	}
	return nb.cells[j]
}

// Close tears the notebook down: the kernel session is killed if present and
// the registry entry is removed. The bus is discarded with the notebook.
func (nb *Notebook) Close() error {
	nb.mu.Lock()
	s := nb.session
	nb.session = nil
	nb.mu.Unlock()

	Unregister(nb)
	if s != nil {
		return s.Kill()
	}
	return nil
}
