package vm

import (
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/skua-js/skua/pkg/jsstr"
)

// String is an immutable JavaScript string. s holds the WTF-8 encoding,
// which doubles as the property key form. For non-ASCII strings the UTF-16
// code units are decoded lazily and cached.
type String struct {
	s     string
	ascii bool
	units []uint16
}

var (
	emptyString     = &String{ascii: true}
	internedStrings sync.Map
)

// NewString creates a string from its WTF-8 form.
func NewString(s string) *String {
	if s == "" {
		return emptyString
	}
	return &String{s: s, ascii: jsstr.IsASCII(s)}
}

// NewStringFromUnits creates a string from UTF-16 code units.
func NewStringFromUnits(units []uint16) *String {
	if len(units) == 0 {
		return emptyString
	}
	ascii := true
	for _, u := range units {
		if u >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		b := make([]byte, len(units))
		for i, u := range units {
			b[i] = byte(u)
		}
		return &String{s: string(b), ascii: true}
	}
	return &String{s: jsstr.FromUnits(units), units: units}
}

// intern returns a shared *String for names used as constants by the
// engine itself.
func intern(s string) *String {
	if str, ok := internedStrings.Load(s); ok {
		return str.(*String)
	}
	str, _ := internedStrings.LoadOrStore(s, NewString(s))
	return str.(*String)
}

// String returns the WTF-8 form.
func (s *String) String() string { return s.s }

// Units returns the UTF-16 code units. The result must not be modified.
func (s *String) Units() []uint16 {
	if s.ascii {
		u := make([]uint16, len(s.s))
		for i := 0; i < len(s.s); i++ {
			u[i] = uint16(s.s[i])
		}
		return u
	}
	if s.units == nil {
		s.units = jsstr.ToUnits(s.s)
	}
	return s.units
}

func (s *String) IsASCII() bool { return s.ascii }

// Length returns the number of UTF-16 code units.
func (s *String) Length() int {
	if s.ascii {
		return len(s.s)
	}
	return len(s.Units())
}

// At returns the code unit at index i.
func (s *String) At(i int) uint16 {
	if s.ascii {
		return uint16(s.s[i])
	}
	return s.Units()[i]
}

// Substring returns the code units in [start, end).
func (s *String) Substring(start, end int) *String {
	if start >= end {
		return emptyString
	}
	if s.ascii {
		return &String{s: s.s[start:end], ascii: true}
	}
	if start == 0 && end == s.Length() {
		return s
	}
	return NewStringFromUnits(s.Units()[start:end])
}

func (s *String) Equals(o *String) bool { return s == o || s.s == o.s }

// Compare orders strings by code units, as the relational operators do.
func (s *String) Compare(o *String) int {
	if s.ascii && o.ascii {
		return strings.Compare(s.s, o.s)
	}
	a, b := s.Units(), o.Units()
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Concat returns s + o.
func (s *String) Concat(o *String) *String {
	if s.s == "" {
		return o
	}
	if o.s == "" {
		return s
	}
	if s.ascii && o.ascii {
		return &String{s: s.s + o.s, ascii: true}
	}
	units := make([]uint16, 0, s.Length()+o.Length())
	units = append(units, s.Units()...)
	units = append(units, o.Units()...)
	return NewStringFromUnits(units)
}

// IndexOf searches for sub starting at code unit from.
func (s *String) IndexOf(sub *String, from int) int {
	n, m := s.Length(), sub.Length()
	if from < 0 {
		from = 0
	}
	if m == 0 {
		if from > n {
			return n
		}
		return from
	}
	if s.ascii && sub.ascii {
		if from > n {
			return -1
		}
		i := strings.Index(s.s[from:], sub.s)
		if i < 0 {
			return -1
		}
		return i + from
	}
	a, b := s.Units(), sub.Units()
outer:
	for i := from; i+m <= n; i++ {
		for j := 0; j < m; j++ {
			if a[i+j] != b[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// LastIndexOf searches backwards for sub starting at code unit from.
func (s *String) LastIndexOf(sub *String, from int) int {
	n, m := s.Length(), sub.Length()
	if from > n-m {
		from = n - m
	}
	a, b := s.Units(), sub.Units()
outer:
	for i := from; i >= 0; i-- {
		for j := 0; j < m; j++ {
			if a[i+j] != b[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// CodePointAt returns the code point at unit index i and its unit width.
func (s *String) CodePointAt(i int) (rune, int) {
	if s.ascii {
		return rune(s.s[i]), 1
	}
	return jsstr.CodePointAt(s.Units(), i)
}

// IsWellFormed reports whether the string has no lone surrogates.
func (s *String) IsWellFormed() bool {
	return s.ascii || jsstr.IsWellFormed(s.Units())
}

// ToWellFormed replaces lone surrogates with U+FFFD.
func (s *String) ToWellFormed() *String {
	if s.IsWellFormed() {
		return s
	}
	units := append([]uint16(nil), s.Units()...)
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case utf16.IsSurrogate(rune(u)) && u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			i++
		case utf16.IsSurrogate(rune(u)):
			units[i] = 0xFFFD
		}
	}
	return NewStringFromUnits(units)
}

// Runes decodes the string into code points, keeping lone surrogates.
func (s *String) Runes() []rune {
	if s.ascii {
		return []rune(s.s)
	}
	units := s.Units()
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); {
		cp, n := jsstr.CodePointAt(units, i)
		out = append(out, cp)
		i += n
	}
	return out
}

// StringBuilder accumulates UTF-16 output.
type StringBuilder struct {
	units []uint16
	ascii []byte
	wide  bool
}

func (b *StringBuilder) widen() {
	if b.wide {
		return
	}
	b.wide = true
	b.units = make([]uint16, len(b.ascii), len(b.ascii)+16)
	for i, c := range b.ascii {
		b.units[i] = uint16(c)
	}
	b.ascii = nil
}

func (b *StringBuilder) WriteString(s *String) {
	if s.ascii && !b.wide {
		b.ascii = append(b.ascii, s.s...)
		return
	}
	b.widen()
	b.units = append(b.units, s.Units()...)
}

// WriteGo appends a WTF-8 Go string.
func (b *StringBuilder) WriteGo(s string) {
	if !b.wide && jsstr.IsASCII(s) {
		b.ascii = append(b.ascii, s...)
		return
	}
	b.widen()
	b.units = append(b.units, jsstr.ToUnits(s)...)
}

func (b *StringBuilder) WriteUnit(u uint16) {
	if u < 0x80 && !b.wide {
		b.ascii = append(b.ascii, byte(u))
		return
	}
	b.widen()
	b.units = append(b.units, u)
}

func (b *StringBuilder) WriteRune(r rune) {
	if r < 0x80 && !b.wide {
		b.ascii = append(b.ascii, byte(r))
		return
	}
	b.widen()
	b.units = jsstr.AppendUnits(b.units, r)
}

func (b *StringBuilder) Len() int {
	if b.wide {
		return len(b.units)
	}
	return len(b.ascii)
}

func (b *StringBuilder) String() *String {
	if b.wide {
		return NewStringFromUnits(b.units)
	}
	if len(b.ascii) == 0 {
		return emptyString
	}
	return &String{s: string(b.ascii), ascii: true}
}
