package vm

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/dlclark/regexp2"
)

// RegExpData is the internal slot set of a RegExp object. The pattern is
// translated to regexp2 syntax once; matching runs over code units, or
// over code points in unicode mode, so that indices come back in UTF-16
// units either way.
type RegExpData struct {
	Source string
	Flags  string

	Global, IgnoreCase, Multiline, DotAll bool
	Unicode, UnicodeSets, Sticky, HasIndices bool

	re *regexp2.Regexp
	// names holds the group name of each capture, "" when unnamed; index
	// 0 is the whole match.
	names []string
}

// NumGroups returns the number of capture groups.
func (d *RegExpData) NumGroups() int { return len(d.names) - 1 }

// GroupNames returns the capture group names, "" for unnamed groups.
func (d *RegExpData) GroupNames() []string { return d.names[1:] }

func (d *RegExpData) hasNamedGroups() bool {
	for _, n := range d.names[1:] {
		if n != "" {
			return true
		}
	}
	return false
}

const regExpFlagOrder = "dgimsuvy"

// CompileRegExp parses flags and compiles source.
func CompileRegExp(source, flags string) (*RegExpData, error) {
	d := &RegExpData{Source: source}
	seen := make(map[rune]bool)
	for _, c := range flags {
		if seen[c] || !strings.ContainsRune(regExpFlagOrder, c) {
			return nil, &regExpError{msg: "Invalid flags supplied to RegExp constructor '" + flags + "'"}
		}
		seen[c] = true
	}
	d.HasIndices, d.Global, d.IgnoreCase = seen['d'], seen['g'], seen['i']
	d.Multiline, d.DotAll, d.Unicode = seen['m'], seen['s'], seen['u']
	d.UnicodeSets, d.Sticky = seen['v'], seen['y']
	if d.Unicode && d.UnicodeSets {
		return nil, &regExpError{msg: "Invalid flags supplied to RegExp constructor '" + flags + "'"}
	}
	var b strings.Builder
	for _, c := range regExpFlagOrder {
		if seen[c] {
			b.WriteRune(c)
		}
	}
	d.Flags = b.String()

	pattern, names, err := translatePattern(source, d)
	if err != nil {
		return nil, &regExpError{msg: "Invalid regular expression: /" + source + "/" + d.Flags + ": " + err.Error()}
	}
	d.names = names
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if d.IgnoreCase {
		opts |= regexp2.IgnoreCase
	}
	if d.Unicode || d.UnicodeSets {
		opts |= regexp2.Unicode
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, &regExpError{msg: "Invalid regular expression: /" + source + "/" + d.Flags + ": " + err.Error()}
	}
	d.re = re
	return d, nil
}

type regExpError struct{ msg string }

func (e *regExpError) Error() string { return e.msg }

type patternError string

func (e patternError) Error() string { return string(e) }

// whiteSpaceClass is the body of a character class matching what \s
// matches in JavaScript.
const whiteSpaceClass = `\t\n\v\f\r \u00a0\u1680\u2000-\u200a\u2028\u2029\u202f\u205f\u3000\ufeff`

// translatePattern rewrites JavaScript pattern syntax that regexp2 reads
// differently: named groups become numbered groups so that numbering
// stays positional, dot and dollar follow JavaScript line terminator
// rules, and a few class forms are spelled out.
func translatePattern(src string, d *RegExpData) (string, []string, error) {
	rs := []rune(src)
	names := []string{""}
	// First pass: number the capture groups.
	inClass := false
	for i := 0; i < len(rs); i++ {
		switch c := rs[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			if i+1 < len(rs) && rs[i+1] == '?' {
				if i+2 < len(rs) && rs[i+2] == '<' && i+3 < len(rs) && rs[i+3] != '=' && rs[i+3] != '!' {
					end := indexRune(rs, '>', i+3)
					if end < 0 {
						return "", nil, patternError("Invalid capture group name")
					}
					name := string(rs[i+3 : end])
					for _, n := range names {
						if n == name {
							return "", nil, patternError("Duplicate capture group name")
						}
					}
					names = append(names, name)
				}
				continue
			}
			names = append(names, "")
		}
	}
	groupIndex := func(name string) int {
		for i, n := range names {
			if n == name && i > 0 {
				return i
			}
		}
		return -1
	}

	var b strings.Builder
	if d.Sticky {
		b.WriteString(`\G(?:`)
	}
	inClass = false
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '\\':
			if i+1 >= len(rs) {
				return "", nil, patternError(`\ at end of pattern`)
			}
			i++
			e := rs[i]
			switch {
			case e == 'k' && i+1 < len(rs) && rs[i+1] == '<':
				end := indexRune(rs, '>', i+2)
				if end < 0 {
					return "", nil, patternError("Invalid named reference")
				}
				n := groupIndex(string(rs[i+2 : end]))
				if n < 0 {
					return "", nil, patternError("Invalid named capture referenced")
				}
				b.WriteString(`(?:\` + strconv.Itoa(n) + `)`)
				i = end
			case e == 's':
				if inClass {
					b.WriteString(whiteSpaceClass)
				} else {
					b.WriteString("[" + whiteSpaceClass + "]")
				}
			case e == 'S' && !inClass:
				b.WriteString("[^" + whiteSpaceClass + "]")
			case e == 'u' && i+1 < len(rs) && rs[i+1] == '{' && (d.Unicode || d.UnicodeSets):
				end := indexRune(rs, '}', i+2)
				if end < 0 {
					return "", nil, patternError("Invalid Unicode escape")
				}
				cp, err := strconv.ParseUint(string(rs[i+2:end]), 16, 32)
				if err != nil || cp > 0x10FFFF {
					return "", nil, patternError("Invalid Unicode escape")
				}
				b.WriteString(regexp2.Escape(string(rune(cp))))
				i = end
			case e == '/':
				b.WriteRune('/')
			default:
				b.WriteRune('\\')
				b.WriteRune(e)
			}
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteRune(c)
		case c == '[':
			switch {
			case i+2 < len(rs) && rs[i+1] == '^' && rs[i+2] == ']':
				b.WriteString(`[\s\S]`)
				i += 2
			case i+1 < len(rs) && rs[i+1] == ']':
				b.WriteString(`(?!)`)
				i++
			default:
				inClass = true
				b.WriteRune(c)
				if i+1 < len(rs) && rs[i+1] == '^' {
					b.WriteRune('^')
					i++
				}
			}
		case c == '(' && i+2 < len(rs) && rs[i+1] == '?' && rs[i+2] == '<' && i+3 < len(rs) && rs[i+3] != '=' && rs[i+3] != '!':
			b.WriteRune('(')
			i = indexRune(rs, '>', i+3)
		case c == '.':
			if d.DotAll {
				b.WriteString(`[\s\S]`)
			} else {
				b.WriteString(`[^\n\r\u2028\u2029]`)
			}
		case c == '$':
			if d.Multiline {
				b.WriteString(`(?=[\n\r\u2028\u2029]|(?![\s\S]))`)
			} else {
				b.WriteString(`(?![\s\S])`)
			}
		case c == '^' && d.Multiline:
			b.WriteString(`(?<=[\n\r\u2028\u2029]|^)`)
		default:
			b.WriteRune(c)
		}
	}
	if inClass {
		return "", nil, patternError("Unterminated character class")
	}
	if d.Sticky {
		b.WriteString(`)`)
	}
	return b.String(), names, nil
}

func indexRune(rs []rune, r rune, from int) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// MatchSpan is the UTF-16 range of a capture; Start is -1 when the group
// did not participate.
type MatchSpan struct {
	Start, End int
}

// RegExpMatch is a successful match with every capture group.
type RegExpMatch struct {
	Groups []MatchSpan
}

func (m *RegExpMatch) Start() int { return m.Groups[0].Start }
func (m *RegExpMatch) End() int   { return m.Groups[0].End }

// matchInput is the subject string in the rune form regexp2 works on,
// with the UTF-16 offset of every rune.
type matchInput struct {
	runes []rune
	offs  []int
}

func (d *RegExpData) input(s *String) matchInput {
	units := s.Units()
	if !d.Unicode && !d.UnicodeSets {
		rs := make([]rune, len(units))
		for i, u := range units {
			rs[i] = rune(u)
		}
		return matchInput{runes: rs}
	}
	in := matchInput{runes: make([]rune, 0, len(units)), offs: make([]int, 0, len(units)+1)}
	for i := 0; i < len(units); i++ {
		in.offs = append(in.offs, i)
		u := units[i]
		if utf16.IsSurrogate(rune(u)) && i+1 < len(units) {
			if r := utf16.DecodeRune(rune(u), rune(units[i+1])); r != 0xFFFD {
				in.runes = append(in.runes, r)
				i++
				continue
			}
		}
		in.runes = append(in.runes, rune(u))
	}
	in.offs = append(in.offs, len(units))
	return in
}

func (in *matchInput) unitOffset(runeIdx int) int {
	if in.offs == nil {
		return runeIdx
	}
	return in.offs[runeIdx]
}

func (in *matchInput) runeIndex(unitIdx int) int {
	if in.offs == nil {
		return unitIdx
	}
	return sort.SearchInts(in.offs, unitIdx)
}

// MatchAt finds the first match starting at or after the UTF-16 index
// from, or exactly at it for sticky patterns. It returns nil when there is
// none.
func (d *RegExpData) MatchAt(s *String, from int) (*RegExpMatch, error) {
	in := d.input(s)
	start := in.runeIndex(from)
	if start > len(in.runes) {
		return nil, nil
	}
	m, err := d.re.FindRunesMatchStartingAt(in.runes, start)
	if err != nil || m == nil {
		return nil, err
	}
	res := &RegExpMatch{Groups: make([]MatchSpan, len(d.names))}
	for i := range d.names {
		g := m.GroupByNumber(i)
		if g == nil || len(g.Captures) == 0 {
			res.Groups[i] = MatchSpan{Start: -1, End: -1}
			continue
		}
		res.Groups[i] = MatchSpan{Start: in.unitOffset(g.Index), End: in.unitOffset(g.Index + g.Length)}
	}
	return res, nil
}

// RegExpStatics are the legacy RegExp.$1-$9, lastMatch, lastParen,
// leftContext, rightContext and input properties. They change only when
// a built-in exec succeeds.
type RegExpStatics struct {
	Input        *String
	LastMatch    *String
	LastParen    *String
	LeftContext  *String
	RightContext *String
	Parens       [9]*String
}

func (vm *VM) updateRegExpStatics(s *String, m *RegExpMatch) {
	st := &vm.realm.RegExpStatics
	sub := func(sp MatchSpan) *String {
		if sp.Start < 0 {
			return emptyString
		}
		return s.Substring(sp.Start, sp.End)
	}
	st.Input = s
	st.LastMatch = sub(m.Groups[0])
	st.LeftContext = s.Substring(0, m.Start())
	st.RightContext = s.Substring(m.End(), s.Length())
	st.LastParen = emptyString
	if n := len(m.Groups); n > 1 {
		st.LastParen = sub(m.Groups[n-1])
	}
	for i := range st.Parens {
		st.Parens[i] = emptyString
		if i+1 < len(m.Groups) {
			st.Parens[i] = sub(m.Groups[i+1])
		}
	}
}

// RegExpOf returns the RegExp slots of o, or nil.
func RegExpOf(o *Object) *RegExpData {
	if o == nil {
		return nil
	}
	d, _ := o.Internal.(*RegExpData)
	return d
}

// RegExpAlloc allocates a RegExp object with a lastIndex property.
func (vm *VM) RegExpAlloc(newTarget *Object) (*Object, error) {
	o, err := vm.OrdinaryCreateFromConstructor(newTarget, ClassRegExp, func(r *Realm) *Object { return r.RegExpPrototype })
	if err != nil {
		return nil, err
	}
	o.props.put(StrKey("lastIndex"), IntValue(0), Undefined, Writable)
	return o, nil
}

// RegExpInitialize compiles pattern and flags into o and resets
// lastIndex.
func (vm *VM) RegExpInitialize(o *Object, pattern, flags Value) error {
	p := ""
	if !pattern.IsUndefined() {
		s, err := vm.ToGoString(pattern)
		if err != nil {
			return err
		}
		p = s
	}
	f := ""
	if !flags.IsUndefined() {
		s, err := vm.ToGoString(flags)
		if err != nil {
			return err
		}
		f = s
	}
	d, err := CompileRegExp(p, f)
	if err != nil {
		return vm.NewSyntaxError(err.Error())
	}
	o.Internal = d
	return vm.SetOrThrow(o, StrKey("lastIndex"), IntValue(0))
}

// NewRegExpObject creates a RegExp from a literal.
func (vm *VM) NewRegExpObject(pattern, flags *String) (*Object, error) {
	d, err := CompileRegExp(pattern.String(), flags.String())
	if err != nil {
		return nil, vm.NewSyntaxError(err.Error())
	}
	o := vm.NewObjectClass(ClassRegExp, vm.realm.RegExpPrototype)
	o.props.put(StrKey("lastIndex"), IntValue(0), Undefined, Writable)
	o.Internal = d
	return o, nil
}

// RegExpExec implements RegExpExec: a user-provided exec method wins over
// the built-in matcher.
func (vm *VM) RegExpExec(r *Object, s *String) (Value, error) {
	exec, err := r.Get(vm, StrKey("exec"), ObjectValue(r))
	if err != nil {
		return Undefined, err
	}
	if exec.IsCallable() && exec.AsObject() != vm.realm.RegExpExecIntrinsic {
		res, err := vm.Call(exec, ObjectValue(r), StringValue(s))
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() && !res.IsNull() {
			return Undefined, vm.NewTypeError("object or null expected from RegExp exec")
		}
		return res, nil
	}
	if RegExpOf(r) == nil {
		return Undefined, vm.NewTypeErrorf("RegExp.prototype.exec called on incompatible receiver %s", Inspect(ObjectValue(r)))
	}
	return vm.RegExpBuiltinExec(r, s)
}

// RegExpBuiltinExec implements RegExpBuiltinExec, including the lastIndex
// protocol of global and sticky patterns.
func (vm *VM) RegExpBuiltinExec(r *Object, s *String) (Value, error) {
	d := RegExpOf(r)
	liv, err := r.Get(vm, StrKey("lastIndex"), ObjectValue(r))
	if err != nil {
		return Undefined, err
	}
	li, err := vm.ToLength(liv)
	if err != nil {
		return Undefined, err
	}
	track := d.Global || d.Sticky
	if !track {
		li = 0
	}
	if li > float64(s.Length()) {
		if track {
			if err := vm.SetOrThrow(r, StrKey("lastIndex"), IntValue(0)); err != nil {
				return Undefined, err
			}
		}
		return Null, nil
	}
	m, err := d.MatchAt(s, int(li))
	if err != nil {
		return Undefined, vm.NewRangeError("RegExp match failed: " + err.Error())
	}
	if m == nil {
		if track {
			if err := vm.SetOrThrow(r, StrKey("lastIndex"), IntValue(0)); err != nil {
				return Undefined, err
			}
		}
		return Null, nil
	}
	if track {
		if err := vm.SetOrThrow(r, StrKey("lastIndex"), IntValue(m.End())); err != nil {
			return Undefined, err
		}
	}
	vm.updateRegExpStatics(s, m)
	return ObjectValue(vm.matchArray(d, s, m)), nil
}

// matchArray builds the array returned by exec.
func (vm *VM) matchArray(d *RegExpData, s *String, m *RegExpMatch) *Object {
	vals := make([]Value, len(m.Groups))
	for i, g := range m.Groups {
		if g.Start < 0 {
			vals[i] = Undefined
		} else {
			vals[i] = StringValue(s.Substring(g.Start, g.End))
		}
	}
	a := vm.NewArrayFromValues(vals)
	a.props.put(StrKey("index"), IntValue(m.Start()), Undefined, DefaultFlags)
	a.props.put(StrKey("input"), StringValue(s), Undefined, DefaultFlags)
	groups := Undefined
	if d.hasNamedGroups() {
		g := vm.NewObjectClass(ClassObject, nil)
		for i, name := range d.names {
			if name != "" {
				g.props.put(StrKey(name), vals[i], Undefined, DefaultFlags)
			}
		}
		groups = ObjectValue(g)
	}
	a.props.put(StrKey("groups"), groups, Undefined, DefaultFlags)
	if d.HasIndices {
		pairs := make([]Value, len(m.Groups))
		for i, g := range m.Groups {
			if g.Start < 0 {
				pairs[i] = Undefined
			} else {
				pairs[i] = ObjectValue(vm.NewArrayFromValues([]Value{IntValue(g.Start), IntValue(g.End)}))
			}
		}
		indices := vm.NewArrayFromValues(pairs)
		igroups := Undefined
		if groups.IsObject() {
			g := vm.NewObjectClass(ClassObject, nil)
			for i, name := range d.names {
				if name != "" {
					g.props.put(StrKey(name), pairs[i], Undefined, DefaultFlags)
				}
			}
			igroups = ObjectValue(g)
		}
		indices.props.put(StrKey("groups"), igroups, Undefined, DefaultFlags)
		a.props.put(StrKey("indices"), ObjectValue(indices), Undefined, DefaultFlags)
	}
	return a
}

// AdvanceStringIndex implements the operation of the same name.
func AdvanceStringIndex(s *String, index int, unicode bool) int {
	if !unicode || index+1 >= s.Length() {
		return index + 1
	}
	_, n := s.CodePointAt(index)
	return index + n
}
