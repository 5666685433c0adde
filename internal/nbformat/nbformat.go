// Package nbformat defines the persisted notebook document structure and its
// JSON codec. The format groups cells into worksheets; only the first
// worksheet is meaningful to this runtime.
package nbformat

import (
	"encoding/json"
	"fmt"
)

// Cell type tags as they appear on the wire.
const (
	TypeCode     = "code"
	TypeMarkdown = "markdown"
	TypeRaw      = "raw"
	TypeHeading  = "heading"
)

// Output type tags.
const (
	OutputStream = "stream"
	OutputResult = "pyout"
	OutputError  = "pyerr"
)

// Version is the document format version this runtime reads and writes.
const Version = 3

// Document is the root of the persisted representation.
type Document struct {
	Metadata   Metadata    `json:"metadata"`
	NBFormat   int         `json:"nbformat"`
	Worksheets []Worksheet `json:"worksheets"`
}

// Metadata carries the notebook name plus arbitrary key/value pairs that the
// server may attach. Unknown keys survive a round trip.
type Metadata struct {
	Name  string
	Extra map[string]any
}

// MarshalJSON emits name merged with the extra keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["name"] = m.Name
	return json.Marshal(out)
}

// UnmarshalJSON splits the name key off and keeps the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if name, ok := raw["name"].(string); ok {
		m.Name = name
	}
	delete(raw, "name")
	if len(raw) > 0 {
		m.Extra = raw
	} else {
		m.Extra = nil
	}
	return nil
}

// Worksheet is the container of cell records.
type Worksheet struct {
	Cells []CellRecord `json:"cells"`
}

// CellRecord is one persisted cell. Code cells carry Input, Outputs,
// PromptNumber and Collapsed; the text variants carry Source and, for
// headings, Level. OmitOutputs suppresses the outputs key entirely, which is
// how the output-discard policy is expressed on the wire.
type CellRecord struct {
	CellType     string
	Input        string
	Source       string
	Level        int
	Outputs      []OutputRecord
	PromptNumber *int
	Collapsed    bool
	OmitOutputs  bool
}

type codeCellJSON struct {
	CellType     string         `json:"cell_type"`
	Input        string         `json:"input"`
	Outputs      []OutputRecord `json:"outputs"`
	PromptNumber *int           `json:"prompt_number"`
	Collapsed    bool           `json:"collapsed"`
}

type codeCellNoOutputsJSON struct {
	CellType     string `json:"cell_type"`
	Input        string `json:"input"`
	PromptNumber *int   `json:"prompt_number"`
	Collapsed    bool   `json:"collapsed"`
}

type textCellJSON struct {
	CellType string `json:"cell_type"`
	Source   string `json:"source"`
	Level    int    `json:"level,omitempty"`
}

// MarshalJSON writes the shape appropriate to the cell type.
func (c CellRecord) MarshalJSON() ([]byte, error) {
	switch c.CellType {
	case TypeCode:
		if c.OmitOutputs {
			return json.Marshal(codeCellNoOutputsJSON{
				CellType:     c.CellType,
				Input:        c.Input,
				PromptNumber: c.PromptNumber,
				Collapsed:    c.Collapsed,
			})
		}
		outputs := c.Outputs
		if outputs == nil {
			outputs = []OutputRecord{}
		}
		return json.Marshal(codeCellJSON{
			CellType:     c.CellType,
			Input:        c.Input,
			Outputs:      outputs,
			PromptNumber: c.PromptNumber,
			Collapsed:    c.Collapsed,
		})
	case TypeMarkdown, TypeRaw, TypeHeading:
		return json.Marshal(textCellJSON{
			CellType: c.CellType,
			Source:   c.Source,
			Level:    c.Level,
		})
	default:
		return nil, fmt.Errorf("nbformat: unknown cell_type %q", c.CellType)
	}
}

// UnmarshalJSON accepts either input or source for the content field; older
// payloads use source for every variant.
func (c *CellRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		CellType     string         `json:"cell_type"`
		Input        string         `json:"input"`
		Source       string         `json:"source"`
		Level        int            `json:"level"`
		Outputs      []OutputRecord `json:"outputs"`
		PromptNumber *int           `json:"prompt_number"`
		Collapsed    bool           `json:"collapsed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CellRecord{
		CellType:     raw.CellType,
		Level:        raw.Level,
		Outputs:      raw.Outputs,
		PromptNumber: raw.PromptNumber,
		Collapsed:    raw.Collapsed,
	}
	switch raw.CellType {
	case TypeCode:
		c.Input = raw.Input
		if c.Input == "" {
			c.Input = raw.Source
		}
	default:
		c.Source = raw.Source
		if c.Source == "" {
			c.Source = raw.Input
		}
	}
	return nil
}

// OutputRecord is one persisted output. The populated fields depend on
// OutputType: stream uses Stream+Text, pyout uses Text+PromptNumber, pyerr
// uses EName/EValue/Traceback.
type OutputRecord struct {
	OutputType   string   `json:"output_type"`
	Stream       string   `json:"stream,omitempty"`
	Text         string   `json:"text,omitempty"`
	PromptNumber *int     `json:"prompt_number,omitempty"`
	EName        string   `json:"ename,omitempty"`
	EValue       string   `json:"evalue,omitempty"`
	Traceback    []string `json:"traceback,omitempty"`
}

// Encode serializes a document.
func Encode(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("nbformat: encode: %w", err)
	}
	return data, nil
}

// Decode parses a document payload.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("nbformat: decode: %w", err)
	}
	return &doc, nil
}

// FirstWorksheet returns the cells of worksheet 0, or nil when the document
// has no worksheets.
func (d *Document) FirstWorksheet() []CellRecord {
	if len(d.Worksheets) == 0 {
		return nil
	}
	return d.Worksheets[0].Cells
}
