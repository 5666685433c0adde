package notebook

import (
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/nbformat"
)

// DiscardPolicy decides, against current document state, whether outputs are
// omitted from the persisted representation.
type DiscardPolicy func(*Notebook) bool

// DiscardNever keeps outputs in every serialization.
func DiscardNever(*Notebook) bool { return false }

// DiscardAlways omits outputs from every serialization.
func DiscardAlways(*Notebook) bool { return true }

// WireDocument produces the persistable representation of the notebook.
// Output arrays are omitted per code cell when policy evaluates true; a nil
// policy behaves like DiscardNever.
func (nb *Notebook) WireDocument(policy DiscardPolicy) *nbformat.Document {
	discard := policy != nil && policy(nb)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	extra := make(map[string]any, len(nb.metadata))
	for k, v := range nb.metadata {
		extra[k] = v
	}

	records := make([]nbformat.CellRecord, 0, len(nb.cells))
	for _, c := range nb.cells {
		t, level, input, outputs, prompt, collapsed := c.snapshot()
		rec := nbformat.CellRecord{CellType: string(t)}
		switch t {
		case CellCode:
			rec.Input = input
			rec.PromptNumber = prompt
			rec.Collapsed = collapsed
			if discard {
				rec.OmitOutputs = true
			} else {
				rec.Outputs = outputRecords(outputs)
			}
		case CellHeading:
			rec.Source = input
			rec.Level = level
		default:
			rec.Source = input
		}
		records = append(records, rec)
	}

	return &nbformat.Document{
		Metadata:   nbformat.Metadata{Name: nb.name, Extra: extra},
		NBFormat:   nb.format,
		Worksheets: []nbformat.Worksheet{{Cells: records}},
	}
}

// LoadWire replaces the entire cell sequence from a persisted document.
// Only the first worksheet is read. Transient edit state is discarded and
// the notebook is considered clean afterwards.
func (nb *Notebook) LoadWire(doc *nbformat.Document) error {
	cells := make([]*Cell, 0, len(doc.FirstWorksheet()))
	for _, rec := range doc.FirstWorksheet() {
		c, err := cellFromRecord(rec)
		if err != nil {
			return err
		}
		cells = append(cells, c)
	}

	nb.mu.Lock()
	for _, old := range nb.cells {
		old.adopt(nil)
	}
	nb.cells = cells
	for _, c := range cells {
		c.adopt(nb)
	}
	if doc.Metadata.Name != "" {
		nb.name = doc.Metadata.Name
	}
	if doc.NBFormat != 0 {
		nb.format = doc.NBFormat
	}
	nb.metadata = make(map[string]any, len(doc.Metadata.Extra))
	for k, v := range doc.Metadata.Extra {
		nb.metadata[k] = v
	}
	changed := nb.setDirtyLocked(false)
	nb.mu.Unlock()
	nb.notifyDirty(changed, false)
	return nil
}

func cellFromRecord(rec nbformat.CellRecord) (*Cell, error) {
	switch rec.CellType {
	case nbformat.TypeCode:
		c := NewCell(CellCode)
		c.input = rec.Input
		c.collapsed = rec.Collapsed
		if rec.PromptNumber != nil {
			n := *rec.PromptNumber
			c.prompt = &n
		}
		for _, or := range rec.Outputs {
			o, err := outputFromRecord(or)
			if err != nil {
				return nil, err
			}
			c.outputs = append(c.outputs, o)
		}
		return c, nil
	case nbformat.TypeMarkdown:
		c := NewCell(CellMarkdown)
		c.input = rec.Source
		return c, nil
	case nbformat.TypeRaw:
		c := NewCell(CellRaw)
		c.input = rec.Source
		return c, nil
	case nbformat.TypeHeading:
		c := NewHeadingCell(rec.Level)
		c.input = rec.Source
		return c, nil
	default:
		return nil, fmt.Errorf("load cell_type %q: %w", rec.CellType, apperr.ErrInvalidState)
	}
}

func outputRecords(outputs []Output) []nbformat.OutputRecord {
	recs := make([]nbformat.OutputRecord, 0, len(outputs))
	for _, o := range outputs {
		switch o.Kind {
		case OutputStream:
			recs = append(recs, nbformat.OutputRecord{
				OutputType: nbformat.OutputStream,
				Stream:     o.Stream,
				Text:       o.Text,
			})
		case OutputResult:
			n := o.PromptNumber
			recs = append(recs, nbformat.OutputRecord{
				OutputType:   nbformat.OutputResult,
				Text:         o.Text,
				PromptNumber: &n,
			})
		case OutputError:
			recs = append(recs, nbformat.OutputRecord{
				OutputType: nbformat.OutputError,
				EName:      o.EName,
				EValue:     o.EValue,
				Traceback:  o.Traceback,
			})
		}
	}
	return recs
}

func outputFromRecord(rec nbformat.OutputRecord) (Output, error) {
	switch rec.OutputType {
	case nbformat.OutputStream:
		return Output{Kind: OutputStream, Stream: rec.Stream, Text: rec.Text}, nil
	case nbformat.OutputResult:
		o := Output{Kind: OutputResult, Text: rec.Text}
		if rec.PromptNumber != nil {
			o.PromptNumber = *rec.PromptNumber
		}
		return o, nil
	case nbformat.OutputError:
		return Output{Kind: OutputError, EName: rec.EName, EValue: rec.EValue, Traceback: rec.Traceback}, nil
	default:
		return Output{}, fmt.Errorf("load output_type %q: %w", rec.OutputType, apperr.ErrInvalidState)
	}
}
