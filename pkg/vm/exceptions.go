package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind enumerates the native error constructors.
type ErrorKind uint8

const (
	ErrError ErrorKind = iota
	ErrTypeError
	ErrRangeError
	ErrReferenceError
	ErrSyntaxError
	ErrEvalError
	ErrURIError
	ErrInternalError
	ErrAggregateError
	ErrSuppressedError
	numErrorKinds
)

var errorKindNames = [numErrorKinds]string{
	"Error", "TypeError", "RangeError", "ReferenceError", "SyntaxError",
	"EvalError", "URIError", "InternalError", "AggregateError", "SuppressedError",
}

func (k ErrorKind) String() string { return errorKindNames[k] }

// ErrorKindByName maps a constructor name to its kind.
func ErrorKindByName(name string) (ErrorKind, bool) {
	for i, n := range errorKindNames {
		if n == name {
			return ErrorKind(i), true
		}
	}
	return 0, false
}

// StackFrame is one entry of a captured script stack trace.
type StackFrame struct {
	Function string
	File     string
	Line     int
	Col      int
}

func (f StackFrame) String() string {
	loc := fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Col)
	if f.Function == "" {
		return "at " + loc
	}
	return "at " + f.Function + " (" + loc + ")"
}

// Exception carries a thrown script value through Go code. Every error
// that crosses the VM boundary as a script exception is an *Exception.
type Exception struct {
	Value Value
	Stack []StackFrame
}

func (e *Exception) Error() string {
	return "Uncaught " + DescribeThrown(e.Value)
}

// Position returns the innermost stack frame, if any.
func (e *Exception) Position() (StackFrame, bool) {
	if len(e.Stack) == 0 {
		return StackFrame{}, false
	}
	return e.Stack[0], true
}

// DescribeThrown renders a thrown value without running script code:
// "Name: message" for error-like objects, the primitive string otherwise.
func DescribeThrown(v Value) string {
	o := v.AsObject()
	if o == nil {
		if v.IsString() {
			return v.AsString().String()
		}
		return Inspect(v)
	}
	name, hasName := lookupDirect(o, "name")
	msg, hasMsg := lookupDirect(o, "message")
	if !hasName && !hasMsg {
		return Inspect(v)
	}
	n := "Error"
	if hasName && name.IsString() {
		n = name.AsString().String()
	}
	if !hasMsg || !msg.IsString() || msg.AsString().Length() == 0 {
		return n
	}
	return n + ": " + msg.AsString().String()
}

// lookupDirect reads a data property along the ordinary prototype chain
// without invoking accessors or proxy traps.
func lookupDirect(o *Object, name string) (Value, bool) {
	key := StrKey(name)
	for obj := o; obj != nil && obj.class != ClassProxy; obj = obj.proto {
		if v, ok := obj.GetOwnDirect(key); ok {
			return v, true
		}
		if obj.props.get(key) != nil {
			return Undefined, false
		}
	}
	return Undefined, false
}

// Throw wraps v as an exception carrying the current stack.
func (vm *VM) Throw(v Value) *Exception {
	return &Exception{Value: v, Stack: vm.captureStack()}
}

// NewError creates an error object of the given kind in the current realm.
func (vm *VM) NewError(kind ErrorKind, msg string) *Object {
	o := vm.NewObjectClass(ClassError, vm.realm.ErrorPrototypes[kind])
	if msg != "" || kind != ErrError {
		o.props.put(StrKey("message"), NewStringValue(msg), Undefined, MethodFlags)
	}
	vm.attachStack(o, kind.String(), msg)
	return o
}

// AttachStack gives an error object created by a constructor its stack
// property.
func (vm *VM) AttachStack(o *Object, name, msg string) { vm.attachStack(o, name, msg) }

// attachStack installs the stack property on a new error object.
func (vm *VM) attachStack(o *Object, name, msg string) {
	var b strings.Builder
	b.WriteString(name)
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	for _, f := range vm.captureStack() {
		b.WriteString("\n    ")
		b.WriteString(f.String())
	}
	o.props.put(StrKey("stack"), NewStringValue(b.String()), Undefined, MethodFlags)
}

func (vm *VM) newException(kind ErrorKind, msg string) error {
	o := vm.NewError(kind, msg)
	return &Exception{Value: ObjectValue(o), Stack: vm.captureStack()}
}

func (vm *VM) NewTypeError(msg string) error      { return vm.newException(ErrTypeError, msg) }
func (vm *VM) NewRangeError(msg string) error     { return vm.newException(ErrRangeError, msg) }
func (vm *VM) NewReferenceError(msg string) error { return vm.newException(ErrReferenceError, msg) }
func (vm *VM) NewSyntaxError(msg string) error    { return vm.newException(ErrSyntaxError, msg) }
func (vm *VM) NewURIError(msg string) error       { return vm.newException(ErrURIError, msg) }

func (vm *VM) NewTypeErrorf(format string, args ...any) error {
	return vm.NewTypeError(fmt.Sprintf(format, args...))
}

func (vm *VM) NewRangeErrorf(format string, args ...any) error {
	return vm.NewRangeError(fmt.Sprintf(format, args...))
}

// errStackOverflow is raised when the call depth limit is reached.
func (vm *VM) errStackOverflow() error {
	return vm.NewRangeError("Maximum call stack size exceeded")
}

// toException converts any Go error raised during execution into a
// script exception. Errors that are not already exceptions surface as
// InternalError.
func (vm *VM) toException(err error) *Exception {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex
	}
	return vm.newException(ErrInternalError, err.Error()).(*Exception)
}

// ThrownValue returns the script value an error stands for, wrapping
// host errors in an InternalError.
func (vm *VM) ThrownValue(err error) Value { return vm.toException(err).Value }

// captureStack records the script frames currently on the stack,
// innermost first.
func (vm *VM) captureStack() []StackFrame {
	var out []StackFrame
	for i := len(vm.frames) - 1; i >= 0 && len(out) < 32; i-- {
		f := vm.frames[i]
		if f.fn == nil {
			continue
		}
		line, col := f.fn.PositionAt(max(f.ip-1, 0))
		file := ""
		if f.fn.Source != nil {
			file = f.fn.Source.DisplayPath()
		}
		out = append(out, StackFrame{Function: f.fn.Name, File: file, Line: line, Col: col})
	}
	return out
}

// TypeErrorNotCallable builds the message for calling a non-function.
func (vm *VM) notCallable(v Value, what string) error {
	if what == "" {
		what = Inspect(v)
	}
	return vm.NewTypeError(what + " is not a function")
}

func (vm *VM) notObject(v Value, what string) error {
	return vm.NewTypeError(what + " called on non-object")
}
