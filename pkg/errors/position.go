package errors

import (
	"fmt"

	"github.com/skua-js/skua/pkg/source"
)

// Position represents a specific location in the source code.
// Line and Column are 1-based; StartPos and EndPos are byte offsets.
type Position struct {
	Line     int
	Column   int
	StartPos int
	EndPos   int
	Source   *source.SourceFile
}

// String renders the position as file:line:col.
func (p Position) String() string {
	if p.Source != nil {
		return fmt.Sprintf("%s:%d:%d", p.Source.DisplayPath(), p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
