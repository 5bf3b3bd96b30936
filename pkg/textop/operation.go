// Package textop implements the edit operations exchanged between
// collaborating editors and their application to file content.
package textop

// Kind identifies the edit primitive an operation performs.
type Kind string

const (
	Insert  Kind = "insert"
	Delete  Kind = "delete"
	Replace Kind = "replace"
)

// Position addresses a caret location. Lines are 1-based; Column counts the
// characters to the left of the caret, so column 0 is the start of the line.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans from a start position to an end position in document order.
type Range struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// Normalized returns the range with start and end swapped if the start
// followed the end in document order.
func (r Range) Normalized() Range {
	if r.StartLine > r.EndLine ||
		(r.StartLine == r.EndLine && r.StartColumn > r.EndColumn) {
		return Range{
			StartLine:   r.EndLine,
			StartColumn: r.EndColumn,
			EndLine:     r.StartLine,
			EndColumn:   r.StartColumn,
		}
	}
	return r
}

// Operation describes a single text edit. It is immutable once constructed;
// the session pairs it with filename/user/room metadata before transmission.
type Operation struct {
	Type     Kind      `json:"type"`
	Position *Position `json:"position,omitempty"` // insert
	Range    *Range    `json:"range,omitempty"`    // delete, replace
	Text     string    `json:"text,omitempty"`     // insert, replace
}

// NewInsert builds an insert of text at the given position.
func NewInsert(line, column int, text string) Operation {
	return Operation{
		Type:     Insert,
		Position: &Position{Line: line, Column: column},
		Text:     text,
	}
}

// NewDelete builds a delete covering the given range.
func NewDelete(startLine, startColumn, endLine, endColumn int) Operation {
	r := Range{
		StartLine:   startLine,
		StartColumn: startColumn,
		EndLine:     endLine,
		EndColumn:   endColumn,
	}.Normalized()
	return Operation{Type: Delete, Range: &r}
}

// NewReplace builds a replacement of the given range with text.
func NewReplace(startLine, startColumn, endLine, endColumn int, text string) Operation {
	r := Range{
		StartLine:   startLine,
		StartColumn: startColumn,
		EndLine:     endLine,
		EndColumn:   endColumn,
	}.Normalized()
	return Operation{Type: Replace, Range: &r, Text: text}
}
