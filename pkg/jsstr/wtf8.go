// Package jsstr converts between JavaScript's UTF-16 code unit strings and
// the Go strings the engine uses for identifiers and property names.
//
// Go strings are WTF-8: well-formed UTF-8 plus three-byte encodings of lone
// surrogates, which keeps every JavaScript string representable and every
// distinct code unit sequence distinct as a Go string.
package jsstr

import (
	"unicode/utf16"
	"unicode/utf8"
)

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
)

// IsASCII reports whether s consists only of 7-bit characters, in which
// case its byte length equals its UTF-16 length.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// AppendCodePoint appends cp to b, encoding surrogate code points as
// three-byte sequences instead of the replacement character.
func AppendCodePoint(b []byte, cp rune) []byte {
	if cp >= surrogateMin && cp <= surrogateMax {
		return append(b, 0xE0|byte(cp>>12), 0x80|byte(cp>>6)&0x3F, 0x80|byte(cp)&0x3F)
	}
	return utf8.AppendRune(b, cp)
}

// DecodeCodePoint decodes the first code point of s, accepting the
// surrogate encodings produced by AppendCodePoint.
func DecodeCodePoint(s string) (rune, int) {
	if len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80 {
		return rune(s[0]&0x0F)<<12 | rune(s[1]&0x3F)<<6 | rune(s[2]&0x3F), 3
	}
	return utf8.DecodeRuneInString(s)
}

// FromUnits encodes UTF-16 code units as WTF-8. Valid surrogate pairs are
// combined into a single four-byte code point.
func FromUnits(units []uint16) string {
	b := make([]byte, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u < utf8.RuneSelf:
			b = append(b, byte(u))
		case utf16.IsSurrogate(rune(u)) && u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			b = utf8.AppendRune(b, utf16.DecodeRune(rune(u), rune(units[i+1])))
			i++
		default:
			b = AppendCodePoint(b, rune(u))
		}
	}
	return string(b)
}

// ToUnits decodes a WTF-8 string into UTF-16 code units.
func ToUnits(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		if c := s[i]; c < utf8.RuneSelf {
			units = append(units, uint16(c))
			i++
			continue
		}
		r, size := DecodeCodePoint(s[i:])
		i += size
		units = AppendUnits(units, r)
	}
	return units
}

// AppendUnits appends the UTF-16 encoding of cp.
func AppendUnits(units []uint16, cp rune) []uint16 {
	if cp >= 0x10000 {
		hi, lo := utf16.EncodeRune(cp)
		return append(units, uint16(hi), uint16(lo))
	}
	return append(units, uint16(cp))
}

// UnitLength returns the number of UTF-16 code units needed for s.
func UnitLength(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] < utf8.RuneSelf {
			n++
			i++
			continue
		}
		r, size := DecodeCodePoint(s[i:])
		i += size
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// IsWellFormed reports whether units contain no lone surrogates.
func IsWellFormed(units []uint16) bool {
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF {
			if i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
				i++
				continue
			}
			return false
		}
		if u >= 0xDC00 && u <= 0xDFFF {
			return false
		}
	}
	return true
}

// CodePointAt returns the code point starting at index i and the number of
// code units it occupies. Lone surrogates are returned as-is.
func CodePointAt(units []uint16, i int) (rune, int) {
	u := units[i]
	if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
		if lo := units[i+1]; lo >= 0xDC00 && lo <= 0xDFFF {
			return utf16.DecodeRune(rune(u), rune(lo)), 2
		}
	}
	return rune(u), 1
}
