package errors

import (
	"fmt"
	"io"
	"strings"
)

// SkuaError is the interface implemented by all engine errors that are
// reported to the host outside of script-level exception handling.
type SkuaError interface {
	error
	Pos() Position
	Kind() string // "Syntax", "Compile", "Runtime"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error
}

// SyntaxError represents an error during lexing or parsing.
type SyntaxError struct {
	Position
	Msg   string
	Cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }

// CompileError represents an error during bytecode generation, such as a
// function exceeding the register or constant limits.
type CompileError struct {
	Position
	Msg   string
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("Compile Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *CompileError) Pos() Position   { return e.Position }
func (e *CompileError) Kind() string    { return "Compile" }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Unwrap() error   { return e.Cause }

// RuntimeError represents an uncaught exception that reached the host.
// Value holds the thrown script value when there is one.
type RuntimeError struct {
	Position
	Msg   string
	Stack string
	Value any
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("Uncaught %s", e.Msg)
	}
	return fmt.Sprintf("Uncaught %s at %d:%d", e.Msg, e.Line, e.Column)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }

// DisplayErrors writes errors in a user-friendly format including the
// source line and a position marker.
func DisplayErrors(w io.Writer, errs []SkuaError) {
	for _, err := range errs {
		pos := err.Pos()
		kind := err.Kind()
		msg := err.Message()

		if pos.Source == nil || pos.Line < 1 {
			fmt.Fprintf(w, "%s Error: %s\n", kind, msg)
			continue
		}
		line := pos.Source.Line(pos.Line)
		fmt.Fprintf(w, "%s Error at %s: %s\n", kind, pos.String(), msg)
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(line, "\t "))
		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		marker := strings.Repeat(" ", col) + "^"
		if span := pos.EndPos - pos.StartPos; span > 1 && col+span <= len(line) {
			marker += strings.Repeat("~", span-1)
		}
		fmt.Fprintf(w, "  %s\n", marker)
		if rt, ok := err.(*RuntimeError); ok && rt.Stack != "" {
			fmt.Fprintln(w, rt.Stack)
		}
		fmt.Fprintln(w)
	}
}
