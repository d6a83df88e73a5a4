package vm

import (
	"math"
	"math/big"
	"unsafe"
)

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeBigInt
	TypeString
	TypeSymbol
	TypeObject
	// TypeEmpty marks array holes and bindings still in their temporal dead
	// zone. It never escapes to script code.
	TypeEmpty
)

// String returns the typeof-style name of the type.
func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	case TypeEmpty:
		return "<empty>"
	}
	return "<unknown>"
}

// Value is the tagged union every register, slot and property holds.
// Numbers and booleans live in num; strings, symbols, bigints and objects
// are referenced through ref.
type Value struct {
	typ ValueType
	num float64
	ref unsafe.Pointer
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, num: 1}
	False     = Value{typ: TypeBoolean}
	Empty     = Value{typ: TypeEmpty}
	NaN       = Value{typ: TypeNumber, num: math.NaN()}
	Zero      = Value{typ: TypeNumber}
)

func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func NumberValue(f float64) Value { return Value{typ: TypeNumber, num: f} }

func IntValue(i int) Value { return Value{typ: TypeNumber, num: float64(i)} }

func StringValue(s *String) Value {
	return Value{typ: TypeString, ref: unsafe.Pointer(s)}
}

// NewStringValue wraps a WTF-8 Go string.
func NewStringValue(s string) Value { return StringValue(NewString(s)) }

func SymbolValue(s *Symbol) Value {
	return Value{typ: TypeSymbol, ref: unsafe.Pointer(s)}
}

func BigIntValue(b *big.Int) Value {
	return Value{typ: TypeBigInt, ref: unsafe.Pointer(b)}
}

func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{typ: TypeObject, ref: unsafe.Pointer(o)}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool    { return v.typ == TypeNumber }
func (v Value) IsBigInt() bool    { return v.typ == TypeBigInt }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsObject() bool    { return v.typ == TypeObject }
func (v Value) IsEmpty() bool     { return v.typ == TypeEmpty }

// IsCallable reports whether v is an object with a [[Call]] method.
func (v Value) IsCallable() bool {
	return v.typ == TypeObject && v.AsObject().IsCallable()
}

// IsConstructor reports whether v is an object with a [[Construct]] method.
func (v Value) IsConstructor() bool {
	return v.typ == TypeObject && v.AsObject().IsConstructor()
}

func (v Value) AsBoolean() bool { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }

func (v Value) AsString() *String { return (*String)(v.ref) }
func (v Value) AsSymbol() *Symbol { return (*Symbol)(v.ref) }
func (v Value) AsBigInt() *big.Int { return (*big.Int)(v.ref) }

func (v Value) AsObject() *Object {
	if v.typ != TypeObject {
		return nil
	}
	return (*Object)(v.ref)
}

// IsInt reports whether v is a number holding an integral value that fits
// in an int without loss.
func (v Value) IsInt() bool {
	if v.typ != TypeNumber {
		return false
	}
	f := v.num
	return f == math.Trunc(f) && f >= -(1<<53) && f <= 1<<53 && !(f == 0 && math.Signbit(f))
}

// ToBoolean implements the abstract operation of the same name.
func (v Value) ToBoolean() bool {
	switch v.typ {
	case TypeBoolean:
		return v.num != 0
	case TypeNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case TypeString:
		return v.AsString().Length() > 0
	case TypeBigInt:
		return v.AsBigInt().Sign() != 0
	case TypeSymbol, TypeObject:
		return true
	}
	return false
}

// TypeOf returns the result of the typeof operator.
func (v Value) TypeOf() string {
	switch v.typ {
	case TypeUndefined, TypeEmpty:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeObject:
		if v.AsObject().IsCallable() {
			return "function"
		}
		return "object"
	}
	return v.typ.String()
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull, TypeEmpty:
		return true
	case TypeBoolean, TypeNumber:
		return a.num == b.num
	case TypeString:
		return a.AsString().Equals(b.AsString())
	case TypeBigInt:
		return a.AsBigInt().Cmp(b.AsBigInt()) == 0
	}
	return a.ref == b.ref
}

// SameValue implements Object.is semantics.
func SameValue(a, b Value) bool {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		if math.IsNaN(a.num) {
			return math.IsNaN(b.num)
		}
		return a.num == b.num && math.Signbit(a.num) == math.Signbit(b.num)
	}
	return StrictEquals(a, b)
}

// SameValueZero is SameValue except that +0 and -0 are equal.
func SameValueZero(a, b Value) bool {
	if a.typ == TypeNumber && b.typ == TypeNumber && math.IsNaN(a.num) {
		return math.IsNaN(b.num)
	}
	return StrictEquals(a, b)
}

// Is reports identity for reference types and value equality otherwise.
// It is the Go-side comparison used by collections and caches.
func (v Value) Is(other Value) bool { return SameValue(v, other) }

// mapKey normalizes a value for use as a Go map key under SameValueZero.
type mapKey struct {
	typ ValueType
	num float64
	str string
	ref unsafe.Pointer
}

func (v Value) mapKey() mapKey {
	switch v.typ {
	case TypeNumber:
		if math.IsNaN(v.num) {
			return mapKey{typ: TypeNumber, str: "NaN"}
		}
		if v.num == 0 {
			return mapKey{typ: TypeNumber}
		}
		return mapKey{typ: TypeNumber, num: v.num}
	case TypeBoolean:
		return mapKey{typ: TypeBoolean, num: v.num}
	case TypeString:
		return mapKey{typ: TypeString, str: v.AsString().String()}
	case TypeBigInt:
		return mapKey{typ: TypeBigInt, str: v.AsBigInt().String()}
	case TypeSymbol, TypeObject:
		return mapKey{typ: v.typ, ref: v.ref}
	}
	return mapKey{typ: v.typ}
}
