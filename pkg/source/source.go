package source

import (
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile represents a unit of JavaScript source with its metadata.
type SourceFile struct {
	Name    string // Display name (e.g., "main.js", "<stdin>", "<eval>")
	Path    string // Full file path (empty for REPL/eval)
	Content string // The source code content

	lines       []string
	lineOffsets []int
}

// NewSourceFile creates a new source file
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// NewEvalSource creates a source file for eval input
func NewEvalSource(content string) *SourceFile {
	return NewSourceFile("<eval>", "", content)
}

// NewReplSource creates a source file for REPL input
func NewReplSource(content string) *SourceFile {
	return NewSourceFile("<repl>", "", content)
}

// NewStdinSource creates a source file for stdin input
func NewStdinSource(content string) *SourceFile {
	return NewSourceFile("<stdin>", "", content)
}

// Lines returns the source split into lines (cached)
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// Line returns the text of the 1-based line n, or "" when out of range.
func (sf *SourceFile) Line(n int) string {
	lines := sf.Lines()
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[n-1], "\r")
}

// Location converts a byte offset into a 1-based line and column.
func (sf *SourceFile) Location(offset int) (line, column int) {
	if sf.lineOffsets == nil {
		sf.lineOffsets = []int{0}
		for i := 0; i < len(sf.Content); i++ {
			if sf.Content[i] == '\n' {
				sf.lineOffsets = append(sf.lineOffsets, i+1)
			}
		}
	}
	idx := sort.Search(len(sf.lineOffsets), func(i int) bool { return sf.lineOffsets[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	return idx + 1, offset - sf.lineOffsets[idx] + 1
}

// Slice returns the source text between two byte offsets, clamped to the content.
func (sf *SourceFile) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(sf.Content) {
		end = len(sf.Content)
	}
	if start >= end {
		return ""
	}
	return sf.Content[start:end]
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name)
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile returns true if this represents an actual file (has a path)
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}

// FromFile creates a SourceFile from a file path and content
func FromFile(filePath, content string) *SourceFile {
	return NewSourceFile(filepath.Base(filePath), filePath, content)
}
