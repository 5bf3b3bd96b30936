package textop

import (
	"log/slog"
	"strings"
)

// Apply applies op to content and returns the resulting text. It never
// panics past this boundary: an operation with invalid coordinates, a
// missing payload, or one that trips an internal error yields the original
// content unchanged and ok=false. Column coordinates beyond the line length
// are clamped; a line coordinate beyond the document means the operation
// was built against content we do not have, so it is dropped rather than
// misapplied. Callers should treat repeated ok=false results on the same
// file as a signal to request a full resync.
func Apply(content string, op Operation) (result string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("operation apply panicked", "kind", op.Type, "panic", r)
			result = content
			ok = false
		}
	}()

	lineCount := strings.Count(content, "\n") + 1

	switch op.Type {
	case Insert:
		p := op.Position
		if p == nil || p.Line < 1 || p.Line > lineCount || p.Column < 0 {
			slog.Warn("dropping insert with out-of-bounds position", "position", p)
			return content, false
		}
		return splice(content, p.Line, p.Column, p.Line, p.Column, op.Text), true

	case Delete:
		r, valid := checkRange(op.Range, lineCount)
		if !valid {
			slog.Warn("dropping delete with out-of-bounds range", "range", op.Range)
			return content, false
		}
		return splice(content, r.StartLine, r.StartColumn, r.EndLine, r.EndColumn, ""), true

	case Replace:
		r, valid := checkRange(op.Range, lineCount)
		if !valid {
			slog.Warn("dropping replace with out-of-bounds range", "range", op.Range)
			return content, false
		}
		return splice(content, r.StartLine, r.StartColumn, r.EndLine, r.EndColumn, op.Text), true

	default:
		slog.Warn("dropping operation of unknown kind", "kind", op.Type)
		return content, false
	}
}

func checkRange(r *Range, lineCount int) (Range, bool) {
	if r == nil {
		return Range{}, false
	}
	n := r.Normalized()
	if n.StartLine < 1 || n.StartLine > lineCount || n.StartColumn < 0 || n.EndColumn < 0 {
		return Range{}, false
	}
	// The start anchors the edit; an end that ran past the document is
	// clamped to the last line.
	if n.EndLine > lineCount {
		n.EndLine = lineCount
	}
	return n, true
}

// splice removes the text between (startLine,startColumn) and
// (endLine,endColumn) and inserts text at the start position, as one
// mutation so no intermediate state is observable. Lines are 1-based;
// columns count characters and are clamped to the character count of the
// line. Inserted text containing newlines produces new lines naturally
// once the line array is rejoined.
func splice(content string, startLine, startColumn, endLine, endColumn int, text string) string {
	lines := strings.Split(content, "\n")

	sl := clamp(startLine-1, 0, len(lines)-1)
	el := clamp(endLine-1, 0, len(lines)-1)
	sc := columnOffset(lines[sl], startColumn)
	ec := columnOffset(lines[el], endColumn)

	merged := lines[sl][:sc] + text + lines[el][ec:]

	out := make([]string, 0, len(lines)-(el-sl))
	out = append(out, lines[:sl]...)
	out = append(out, merged)
	out = append(out, lines[el+1:]...)
	return strings.Join(out, "\n")
}

// columnOffset converts a character column into a byte offset within line,
// so a column landing inside a multi-byte rune can never split it. Columns
// past the end of the line clamp to its full length.
func columnOffset(line string, column int) int {
	if column <= 0 {
		return 0
	}
	n := 0
	for i := range line {
		if n == column {
			return i
		}
		n++
	}
	return len(line)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
