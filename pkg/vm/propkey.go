package vm

import "strconv"

// PropertyKey is a string or symbol property name. Integer indices are
// strings in canonical form; ArrayIndex recovers the number.
type PropertyKey struct {
	str string
	sym *Symbol
}

func StrKey(s string) PropertyKey     { return PropertyKey{str: s} }
func SymKey(s *Symbol) PropertyKey    { return PropertyKey{sym: s} }
func StringKey(s *String) PropertyKey { return PropertyKey{str: s.String()} }

// IndexKey returns the key for array index i.
func IndexKey(i uint32) PropertyKey {
	return PropertyKey{str: strconv.FormatUint(uint64(i), 10)}
}

func (k PropertyKey) IsSymbol() bool   { return k.sym != nil }
func (k PropertyKey) Symbol() *Symbol  { return k.sym }
func (k PropertyKey) Name() string     { return k.str }
func (k PropertyKey) IsPrivate() bool  { return k.sym != nil && k.sym.Private }
func (k PropertyKey) Is(s string) bool { return k.sym == nil && k.str == s }

// ToValue converts the key back to a string or symbol value.
func (k PropertyKey) ToValue() Value {
	if k.sym != nil {
		return SymbolValue(k.sym)
	}
	return NewStringValue(k.str)
}

// String renders the key for error messages.
func (k PropertyKey) String() string {
	if k.sym != nil {
		return k.sym.DescriptiveString()
	}
	return k.str
}

// ArrayIndex reports whether the key is a canonical array index, an
// integer in [0, 2^32-2].
func (k PropertyKey) ArrayIndex() (uint32, bool) {
	if k.sym != nil {
		return 0, false
	}
	return parseArrayIndex(k.str)
}

func parseArrayIndex(s string) (uint32, bool) {
	n := len(s)
	if n == 0 || n > 10 || (n > 1 && s[0] == '0') {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v >= 1<<32-1 {
		return 0, false
	}
	return uint32(v), true
}

// CanonicalNumericIndex implements CanonicalNumericIndexString: it reports
// whether the key is the canonical string of some number, which typed
// arrays treat as an integer-indexed access.
func (k PropertyKey) CanonicalNumericIndex() (float64, bool) {
	if k.sym != nil {
		return 0, false
	}
	if k.str == "-0" {
		return negZero, true
	}
	f := StringToNumber(k.str)
	if NumberToString(f) != k.str {
		return 0, false
	}
	return f, true
}

var negZero = func() float64 { z := 0.0; return -z }()
