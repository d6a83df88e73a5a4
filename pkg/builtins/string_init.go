package builtins

import (
	"math"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/skua-js/skua/pkg/vm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string {
	return "String"
}

func (s *StringInitializer) Priority() int {
	return PriorityString
}

func (s *StringInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.StringPrototype

	ctor := constructor(v, "String", 1, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return str(""), nil
			}
			if args[0].IsSymbol() {
				return str(args[0].AsSymbol().DescriptiveString()), nil
			}
			s, err := v.ToString(args[0])
			return vm.StringValue(s), err
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			s := vm.NewString("")
			if len(args) > 0 {
				var err error
				if s, err = v.ToString(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.StringPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(v.NewStringObject(s, p)), nil
		})

	method(v, ctor, "fromCharCode", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		var b vm.StringBuilder
		for _, a := range args {
			n, err := v.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteUnit(vm.ToUint16F(n))
		}
		return vm.StringValue(b.String()), nil
	})
	method(v, ctor, "fromCodePoint", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		var b vm.StringBuilder
		for _, a := range args {
			n, err := v.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			if !isIntegral(n) || n < 0 || n > 0x10FFFF {
				return vm.Undefined, v.NewRangeError("Invalid code point " + vm.NumberToString(n))
			}
			if n < 0x10000 {
				b.WriteUnit(uint16(n))
			} else {
				b.WriteRune(rune(n))
			}
		}
		return vm.StringValue(b.String()), nil
	})
	method(v, ctor, "raw", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		cooked, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		rawVal, err := getProp(v, cooked, "raw")
		if err != nil {
			return vm.Undefined, err
		}
		raw, err := v.ToObject(rawVal)
		if err != nil {
			return vm.Undefined, err
		}
		count, err := lengthOf(v, raw)
		if err != nil {
			return vm.Undefined, err
		}
		var b vm.StringBuilder
		for i := 0.0; i < count; i++ {
			seg, err := getIndex(v, raw, i)
			if err != nil {
				return vm.Undefined, err
			}
			s, err := v.ToString(seg)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(s)
			if i+1 < count && int(i)+1 < len(args) {
				sub, err := v.ToString(args[int(i)+1])
				if err != nil {
					return vm.Undefined, err
				}
				b.WriteString(sub)
			}
		}
		return vm.StringValue(b.String()), nil
	})

	installStringMethods(v, proto)
	initStringIterator(v, realm)

	return defineGlobal(ctx, "String", ctor)
}

// thisString coerces the receiver of a String.prototype method.
func thisString(v *vm.VM, this vm.Value, name string) (*vm.String, error) {
	if this.IsString() {
		return this.AsString(), nil
	}
	if err := v.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
		return nil, err
	}
	return v.ToString(this)
}

// thisStringValue unwraps string primitives and String objects.
func thisStringValue(v *vm.VM, this vm.Value, name string) (vm.Value, error) {
	if this.IsString() {
		return this, nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassString {
		p, _ := o.PrimitiveValue()
		return p, nil
	}
	return vm.Undefined, v.NewTypeErrorf("String.prototype.%s requires that 'this' be a String", name)
}

// argString converts an optional argument to a string.
func argString(v *vm.VM, args []vm.Value, i int) (*vm.String, error) {
	return v.ToString(vm.Arg(args, i))
}

func initStringIterator(v *vm.VM, realm *vm.Realm) {
	itProto := realm.StringIteratorPrototype
	toStringTag(itProto, "String Iterator")
	method(v, itProto, "next", 0, nativeIteratorNext("String Iterator"))
	symbolMethod(v, realm.StringPrototype, vm.SymIterator, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		s, err := thisString(v, this, "[Symbol.iterator]")
		if err != nil {
			return vm.Undefined, err
		}
		pos := 0
		next := func(*vm.VM) (vm.Value, bool, error) {
			if pos >= s.Length() {
				return vm.Undefined, true, nil
			}
			_, n := s.CodePointAt(pos)
			pos += n
			return vm.StringValue(s.Substring(pos-n, pos)), false, nil
		}
		return vm.ObjectValue(newNativeIterator(v, itProto, "String Iterator", next, vm.StringValue(s))), nil
	})
}

func installStringMethods(v *vm.VM, proto *vm.Object) {
	// simple installs a method that only needs the coerced receiver.
	simple := func(name string, length int, fn func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error)) *vm.Object {
		return method(v, proto, name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := thisString(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return fn(v, s, args)
		})
	}

	simple("at", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		rel, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		n := float64(s.Length())
		if rel < 0 {
			rel += n
		}
		if rel < 0 || rel >= n {
			return vm.Undefined, nil
		}
		return vm.StringValue(s.Substring(int(rel), int(rel)+1)), nil
	})
	simple("charAt", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		pos, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos >= float64(s.Length()) {
			return str(""), nil
		}
		return vm.StringValue(s.Substring(int(pos), int(pos)+1)), nil
	})
	simple("charCodeAt", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		pos, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos >= float64(s.Length()) {
			return vm.NaN, nil
		}
		return vm.IntValue(int(s.At(int(pos)))), nil
	})
	simple("codePointAt", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		pos, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos >= float64(s.Length()) {
			return vm.Undefined, nil
		}
		cp, _ := s.CodePointAt(int(pos))
		return vm.IntValue(int(cp)), nil
	})
	simple("concat", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		for _, a := range args {
			next, err := v.ToString(a)
			if err != nil {
				return vm.Undefined, err
			}
			s = s.Concat(next)
		}
		return vm.StringValue(s), nil
	})

	// searchArg rejects RegExp arguments to startsWith, endsWith and
	// includes.
	searchArg := func(v *vm.VM, args []vm.Value, name string) (*vm.String, error) {
		isRe, err := isRegExp(v, vm.Arg(args, 0))
		if err != nil {
			return nil, err
		}
		if isRe {
			return nil, v.NewTypeErrorf("First argument to String.prototype.%s must not be a regular expression", name)
		}
		return argString(v, args, 0)
	}
	simple("endsWith", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		search, err := searchArg(v, args, "endsWith")
		if err != nil {
			return vm.Undefined, err
		}
		end, err := clampPosition(v, vm.Arg(args, 1), s.Length(), s.Length())
		if err != nil {
			return vm.Undefined, err
		}
		start := end - search.Length()
		if start < 0 {
			return vm.False, nil
		}
		return vm.BooleanValue(s.Substring(start, end).Equals(search)), nil
	})
	simple("startsWith", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		search, err := searchArg(v, args, "startsWith")
		if err != nil {
			return vm.Undefined, err
		}
		start, err := clampPosition(v, vm.Arg(args, 1), s.Length(), 0)
		if err != nil {
			return vm.Undefined, err
		}
		end := start + search.Length()
		if end > s.Length() {
			return vm.False, nil
		}
		return vm.BooleanValue(s.Substring(start, end).Equals(search)), nil
	})
	simple("includes", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		search, err := searchArg(v, args, "includes")
		if err != nil {
			return vm.Undefined, err
		}
		start, err := clampPosition(v, vm.Arg(args, 1), s.Length(), 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(s.IndexOf(search, start) >= 0), nil
	})
	simple("indexOf", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		search, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		start, err := clampPosition(v, vm.Arg(args, 1), s.Length(), 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(s.IndexOf(search, start)), nil
	})
	simple("lastIndexOf", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		search, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		n, err := v.ToNumber(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		pos := math.Inf(1)
		if !math.IsNaN(n) {
			pos = vm.ToIntegerOrInfinityF(n)
		}
		start := int(math.Min(math.Max(pos, 0), float64(s.Length())))
		return vm.IntValue(s.LastIndexOf(search, start)), nil
	})
	simple("isWellFormed", 0, func(_ *vm.VM, s *vm.String, _ []vm.Value) (vm.Value, error) {
		return vm.BooleanValue(s.IsWellFormed()), nil
	})
	simple("toWellFormed", 0, func(_ *vm.VM, s *vm.String, _ []vm.Value) (vm.Value, error) {
		return vm.StringValue(s.ToWellFormed()), nil
	})

	simple("localeCompare", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		that, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		c, err := newCollator(v, vm.Arg(args, 1), vm.Arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(c.compare(s, that)), nil
	})

	simple("normalize", 0, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		form := norm.NFC
		if f := vm.Arg(args, 0); !f.IsUndefined() {
			name, err := v.ToGoString(f)
			if err != nil {
				return vm.Undefined, err
			}
			switch name {
			case "NFC":
			case "NFD":
				form = norm.NFD
			case "NFKC":
				form = norm.NFKC
			case "NFKD":
				form = norm.NFKD
			default:
				return vm.Undefined, v.NewRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
			}
		}
		if s.IsASCII() {
			return vm.StringValue(s), nil
		}
		return vm.StringValue(mapWellFormed(s, form.String)), nil
	})

	pad := func(name string, atStart bool) {
		simple(name, 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
			maxLen, err := v.ToLength(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			if maxLen <= float64(s.Length()) {
				return vm.StringValue(s), nil
			}
			filler := vm.NewString(" ")
			if f := vm.Arg(args, 1); !f.IsUndefined() {
				if filler, err = v.ToString(f); err != nil {
					return vm.Undefined, err
				}
			}
			if filler.Length() == 0 {
				return vm.StringValue(s), nil
			}
			if maxLen > maxStringLength {
				return vm.Undefined, v.NewRangeError("Invalid string length")
			}
			fillLen := int(maxLen) - s.Length()
			var fill vm.StringBuilder
			for fill.Len()+filler.Length() <= fillLen {
				fill.WriteString(filler)
			}
			fill.WriteString(filler.Substring(0, fillLen-fill.Len()))
			if atStart {
				return vm.StringValue(fill.String().Concat(s)), nil
			}
			return vm.StringValue(s.Concat(fill.String())), nil
		})
	}
	pad("padEnd", false)
	pad("padStart", true)

	simple("repeat", 1, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		n, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if n < 0 || math.IsInf(n, 1) {
			return vm.Undefined, v.NewRangeError("Invalid count value: " + vm.NumberToString(n))
		}
		if n == 0 || s.Length() == 0 {
			return str(""), nil
		}
		if n*float64(s.Length()) > maxStringLength {
			return vm.Undefined, v.NewRangeError("Invalid string length")
		}
		var b vm.StringBuilder
		for i := 0; i < int(n); i++ {
			b.WriteString(s)
		}
		return vm.StringValue(b.String()), nil
	})

	simple("slice", 2, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		n := float64(s.Length())
		from, err := relativeIndex(v, vm.Arg(args, 0), n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		to, err := relativeIndex(v, vm.Arg(args, 1), n, n)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s.Substring(int(from), int(to))), nil
	})
	simple("substring", 2, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		start, err := clampPosition(v, vm.Arg(args, 0), s.Length(), 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := clampPosition(v, vm.Arg(args, 1), s.Length(), s.Length())
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s.Substring(min(start, end), max(start, end))), nil
	})
	simple("substr", 2, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
		n := float64(s.Length())
		start, err := relativeIndex(v, vm.Arg(args, 0), n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		length := n
		if l := vm.Arg(args, 1); !l.IsUndefined() {
			if length, err = v.ToIntegerOrInfinity(l); err != nil {
				return vm.Undefined, err
			}
		}
		end := math.Min(start+math.Max(length, 0), n)
		if start >= end {
			return str(""), nil
		}
		return vm.StringValue(s.Substring(int(start), int(end))), nil
	})

	caseMethod := func(name string, upper, locale bool) {
		simple(name, 0, func(v *vm.VM, s *vm.String, args []vm.Value) (vm.Value, error) {
			tag := language.Und
			if locale {
				locales, err := canonicalizeLocaleList(v, vm.Arg(args, 0))
				if err != nil {
					return vm.Undefined, err
				}
				if len(locales) > 0 {
					tag = language.Make(locales[0])
				}
			}
			if s.IsASCII() && (!locale || tag == language.Und) {
				if upper {
					return str(strings.ToUpper(s.String())), nil
				}
				return str(strings.ToLower(s.String())), nil
			}
			var c cases.Caser
			if upper {
				c = cases.Upper(tag)
			} else {
				c = cases.Lower(tag)
			}
			return vm.StringValue(mapWellFormed(s, c.String)), nil
		})
	}
	caseMethod("toLowerCase", false, false)
	caseMethod("toUpperCase", true, false)
	caseMethod("toLocaleLowerCase", false, true)
	caseMethod("toLocaleUpperCase", true, true)

	trim := func(name string, start, end bool) *vm.Object {
		return simple(name, 0, func(_ *vm.VM, s *vm.String, _ []vm.Value) (vm.Value, error) {
			return vm.StringValue(trimString(s, start, end)), nil
		})
	}
	trim("trim", true, true)
	trimStart := trim("trimStart", true, false)
	trimEnd := trim("trimEnd", false, true)
	proto.DefineOwn(vm.StrKey("trimLeft"), vm.ObjectValue(trimStart), vm.MethodFlags)
	proto.DefineOwn(vm.StrKey("trimRight"), vm.ObjectValue(trimEnd), vm.MethodFlags)

	for _, name := range []string{"toString", "valueOf"} {
		method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			return thisStringValue(v, this, name)
		})
	}

	installStringRegExpMethods(v, proto)
	installHTMLMethods(v, proto)
}

// maxStringLength bounds the strings padStart, padEnd and repeat build.
const maxStringLength = 1<<30 - 25

// clampPosition converts a position argument to an integer clamped to
// [0, length]; undefined selects def.
func clampPosition(v *vm.VM, arg vm.Value, length, def int) (int, error) {
	if arg.IsUndefined() {
		return def, nil
	}
	n, err := v.ToIntegerOrInfinity(arg)
	if err != nil {
		return 0, err
	}
	return int(math.Min(math.Max(n, 0), float64(length))), nil
}

// mapWellFormed applies a Unicode transformation to the well-formed runs
// of s, leaving lone surrogates in place.
func mapWellFormed(s *vm.String, fn func(string) string) *vm.String {
	if s.IsWellFormed() {
		return vm.NewString(fn(s.String()))
	}
	units := s.Units()
	var b vm.StringBuilder
	runStart := 0
	flush := func(end int) {
		if end > runStart {
			b.WriteGo(fn(string(utf16.Decode(units[runStart:end]))))
		}
	}
	for i := 0; i < len(units); {
		cp, n := s.CodePointAt(i)
		if n == 1 && utf16.IsSurrogate(cp) {
			flush(i)
			b.WriteUnit(units[i])
			runStart = i + 1
		}
		i += n
	}
	flush(len(units))
	return b.String()
}

func trimString(s *vm.String, start, end bool) *vm.String {
	lo, hi := 0, s.Length()
	if start {
		for lo < hi && vm.IsJSWhitespace(rune(s.At(lo))) {
			lo++
		}
	}
	if end {
		for hi > lo && vm.IsJSWhitespace(rune(s.At(hi-1))) {
			hi--
		}
	}
	return s.Substring(lo, hi)
}

// installStringRegExpMethods installs the methods that delegate to a
// RegExp's symbol-keyed protocol methods when given one.
func installStringRegExpMethods(v *vm.VM, proto *vm.Object) {
	// delegate calls regexp[sym](s, extra...) when regexp is not nullish
	// and has the method.
	delegate := func(v *vm.VM, target vm.Value, sym *vm.Symbol, this vm.Value, extra ...vm.Value) (vm.Value, bool, error) {
		if target.IsNullish() {
			return vm.Undefined, false, nil
		}
		m, err := v.GetMethod(target, vm.SymKey(sym))
		if err != nil || m.IsUndefined() {
			return vm.Undefined, false, err
		}
		r, err := v.Call(m, target, append([]vm.Value{this}, extra...)...)
		return r, true, err
	}

	// viaRegExp handles match and search for non-RegExp arguments by
	// creating a RegExp from them.
	viaRegExp := func(name string, sym *vm.Symbol, flags vm.Value) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if err := v.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
				return vm.Undefined, err
			}
			if r, ok, err := delegate(v, vm.Arg(args, 0), sym, this); ok || err != nil {
				return r, err
			}
			s, err := v.ToString(this)
			if err != nil {
				return vm.Undefined, err
			}
			rx, err := regExpCreate(v, vm.Arg(args, 0), flags)
			if err != nil {
				return vm.Undefined, err
			}
			return v.Invoke(vm.ObjectValue(rx), vm.SymKey(sym), vm.StringValue(s))
		})
	}
	viaRegExp("match", vm.SymMatch, vm.Undefined)
	viaRegExp("search", vm.SymSearch, vm.Undefined)

	method(v, proto, "matchAll", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := v.RequireObjectCoercible(this, "String.prototype.matchAll"); err != nil {
			return vm.Undefined, err
		}
		if err := requireGlobalRegExp(v, vm.Arg(args, 0), "matchAll"); err != nil {
			return vm.Undefined, err
		}
		if r, ok, err := delegate(v, vm.Arg(args, 0), vm.SymMatchAll, this); ok || err != nil {
			return r, err
		}
		s, err := v.ToString(this)
		if err != nil {
			return vm.Undefined, err
		}
		rx, err := regExpCreate(v, vm.Arg(args, 0), str("g"))
		if err != nil {
			return vm.Undefined, err
		}
		return v.Invoke(vm.ObjectValue(rx), vm.SymKey(vm.SymMatchAll), vm.StringValue(s))
	})

	replace := func(name string, all bool) {
		method(v, proto, name, 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if err := v.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
				return vm.Undefined, err
			}
			searchValue, replaceValue := vm.Arg(args, 0), vm.Arg(args, 1)
			if all {
				if err := requireGlobalRegExp(v, searchValue, name); err != nil {
					return vm.Undefined, err
				}
			}
			if r, ok, err := delegate(v, searchValue, vm.SymReplace, this, replaceValue); ok || err != nil {
				return r, err
			}
			s, err := v.ToString(this)
			if err != nil {
				return vm.Undefined, err
			}
			search, err := v.ToString(searchValue)
			if err != nil {
				return vm.Undefined, err
			}
			functional := replaceValue.IsCallable()
			var replacement *vm.String
			if !functional {
				if replacement, err = v.ToString(replaceValue); err != nil {
					return vm.Undefined, err
				}
			}
			var positions []int
			advance := max(1, search.Length())
			for pos := s.IndexOf(search, 0); pos >= 0; pos = s.IndexOf(search, pos+advance) {
				positions = append(positions, pos)
				if !all || pos+advance > s.Length() {
					break
				}
			}
			if len(positions) == 0 {
				return vm.StringValue(s), nil
			}
			var b vm.StringBuilder
			end := 0
			for _, p := range positions {
				b.WriteString(s.Substring(end, p))
				if functional {
					r, err := v.Call(replaceValue, vm.Undefined, vm.StringValue(search), vm.IntValue(p), vm.StringValue(s))
					if err != nil {
						return vm.Undefined, err
					}
					rs, err := v.ToString(r)
					if err != nil {
						return vm.Undefined, err
					}
					b.WriteString(rs)
				} else {
					sub, err := getSubstitution(v, search, s, p, nil, vm.Undefined, replacement)
					if err != nil {
						return vm.Undefined, err
					}
					b.WriteString(sub)
				}
				end = p + search.Length()
			}
			b.WriteString(s.Substring(end, s.Length()))
			return vm.StringValue(b.String()), nil
		})
	}
	replace("replace", false)
	replace("replaceAll", true)

	method(v, proto, "split", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := v.RequireObjectCoercible(this, "String.prototype.split"); err != nil {
			return vm.Undefined, err
		}
		separator, limit := vm.Arg(args, 0), vm.Arg(args, 1)
		if r, ok, err := delegate(v, separator, vm.SymSplit, this, limit); ok || err != nil {
			return r, err
		}
		s, err := v.ToString(this)
		if err != nil {
			return vm.Undefined, err
		}
		lim := uint32(math.MaxUint32)
		if !limit.IsUndefined() {
			if lim, err = v.ToUint32(limit); err != nil {
				return vm.Undefined, err
			}
		}
		sep, err := v.ToString(separator)
		if err != nil {
			return vm.Undefined, err
		}
		if lim == 0 {
			return vm.ObjectValue(v.NewArray()), nil
		}
		if separator.IsUndefined() {
			return vm.ObjectValue(v.NewArrayFromValues([]vm.Value{vm.StringValue(s)})), nil
		}
		var parts []vm.Value
		if sep.Length() == 0 {
			for i := 0; i < s.Length() && uint32(len(parts)) < lim; i++ {
				parts = append(parts, vm.StringValue(s.Substring(i, i+1)))
			}
			return vm.ObjectValue(v.NewArrayFromValues(parts)), nil
		}
		if s.Length() == 0 {
			return vm.ObjectValue(v.NewArrayFromValues([]vm.Value{vm.StringValue(s)})), nil
		}
		i := 0
		for j := s.IndexOf(sep, 0); j >= 0; j = s.IndexOf(sep, i) {
			parts = append(parts, vm.StringValue(s.Substring(i, j)))
			if uint32(len(parts)) >= lim {
				return vm.ObjectValue(v.NewArrayFromValues(parts)), nil
			}
			i = j + sep.Length()
		}
		parts = append(parts, vm.StringValue(s.Substring(i, s.Length())))
		return vm.ObjectValue(v.NewArrayFromValues(parts)), nil
	})
}

// requireGlobalRegExp throws unless a RegExp argument of matchAll or
// replaceAll carries the g flag.
func requireGlobalRegExp(v *vm.VM, arg vm.Value, name string) error {
	if arg.IsNullish() {
		return nil
	}
	isRe, err := isRegExp(v, arg)
	if err != nil || !isRe {
		return err
	}
	flags, err := v.GetV(arg, vm.StrKey("flags"))
	if err != nil {
		return err
	}
	if err := v.RequireObjectCoercible(flags, "String.prototype."+name); err != nil {
		return err
	}
	f, err := v.ToGoString(flags)
	if err != nil {
		return err
	}
	if !strings.Contains(f, "g") {
		return v.NewTypeErrorf("%s must be called with a global RegExp", name)
	}
	return nil
}

// getSubstitution expands the $ patterns of a replacement template.
// captures holds the capture groups as strings or undefined.
func getSubstitution(v *vm.VM, matched, s *vm.String, position int, captures []vm.Value, namedCaptures vm.Value, replacement *vm.String) (*vm.String, error) {
	if replacement.IndexOf(vm.NewString("$"), 0) < 0 {
		return replacement, nil
	}
	var b vm.StringBuilder
	m := len(captures)
	tailPos := min(position+matched.Length(), s.Length())
	n := replacement.Length()
	for i := 0; i < n; i++ {
		c := replacement.At(i)
		if c != '$' || i+1 >= n {
			b.WriteUnit(c)
			continue
		}
		next := replacement.At(i + 1)
		switch {
		case next == '$':
			b.WriteUnit('$')
			i++
		case next == '&':
			b.WriteString(matched)
			i++
		case next == '`':
			b.WriteString(s.Substring(0, position))
			i++
		case next == '\'':
			b.WriteString(s.Substring(tailPos, s.Length()))
			i++
		case next >= '0' && next <= '9':
			digits := 1
			index := int(next - '0')
			if i+2 < n {
				if d := replacement.At(i + 2); d >= '0' && d <= '9' {
					if two := index*10 + int(d-'0'); two >= 1 && two <= m {
						index, digits = two, 2
					}
				}
			}
			if index < 1 || index > m {
				b.WriteUnit('$')
				continue
			}
			if capture := captures[index-1]; !capture.IsUndefined() {
				cs, err := v.ToString(capture)
				if err != nil {
					return nil, err
				}
				b.WriteString(cs)
			}
			i += digits
		case next == '<':
			if namedCaptures.IsUndefined() {
				b.WriteUnit('$')
				continue
			}
			gt := replacement.IndexOf(vm.NewString(">"), i+2)
			if gt < 0 {
				b.WriteUnit('$')
				continue
			}
			name := replacement.Substring(i+2, gt)
			capture, err := v.GetV(namedCaptures, vm.StringKey(name))
			if err != nil {
				return nil, err
			}
			if !capture.IsUndefined() {
				cs, err := v.ToString(capture)
				if err != nil {
					return nil, err
				}
				b.WriteString(cs)
			}
			i = gt
		default:
			b.WriteUnit('$')
		}
	}
	return b.String(), nil
}

// installHTMLMethods installs the legacy HTML wrapper methods.
func installHTMLMethods(v *vm.VM, proto *vm.Object) {
	for _, m := range []struct{ name, tag, attr string }{
		{"anchor", "a", "name"}, {"big", "big", ""}, {"blink", "blink", ""},
		{"bold", "b", ""}, {"fixed", "tt", ""}, {"fontcolor", "font", "color"},
		{"fontsize", "font", "size"}, {"italics", "i", ""}, {"link", "a", "href"},
		{"small", "small", ""}, {"strike", "strike", ""}, {"sub", "sub", ""},
		{"sup", "sup", ""},
	} {
		length := 0
		if m.attr != "" {
			length = 1
		}
		method(v, proto, m.name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := thisString(v, this, m.name)
			if err != nil {
				return vm.Undefined, err
			}
			var b vm.StringBuilder
			b.WriteGo("<" + m.tag)
			if m.attr != "" {
				val, err := argString(v, args, 0)
				if err != nil {
					return vm.Undefined, err
				}
				b.WriteGo(" " + m.attr + "=\"")
				b.WriteGo(strings.ReplaceAll(val.String(), "\"", "&quot;"))
				b.WriteGo("\"")
			}
			b.WriteGo(">")
			b.WriteString(s)
			b.WriteGo("</" + m.tag + ">")
			return vm.StringValue(b.String()), nil
		})
	}
}
