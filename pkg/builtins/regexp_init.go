package builtins

import (
	"math"
	"strings"

	"github.com/skua-js/skua/pkg/vm"
)

type RegExpInitializer struct{}

func (r *RegExpInitializer) Name() string {
	return "RegExp"
}

func (r *RegExpInitializer) Priority() int {
	return PriorityRegExp
}

func (r *RegExpInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.RegExpPrototype

	var ctor *vm.Object
	construct := func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
		pattern, flags := vm.Arg(args, 0), vm.Arg(args, 1)
		patternIsRegExp, err := isRegExp(v, pattern)
		if err != nil {
			return vm.Undefined, err
		}
		if newTarget == nil {
			newTarget = ctor
			if patternIsRegExp && flags.IsUndefined() {
				pc, err := v.GetV(pattern, vm.StrKey("constructor"))
				if err != nil {
					return vm.Undefined, err
				}
				if pc.AsObject() == newTarget {
					return pattern, nil
				}
			}
		}
		p, f := pattern, flags
		if d := vm.RegExpOf(pattern.AsObject()); d != nil {
			p = str(d.Source)
			if flags.IsUndefined() {
				f = str(d.Flags)
			}
		} else if patternIsRegExp {
			if p, err = v.GetV(pattern, vm.StrKey("source")); err != nil {
				return vm.Undefined, err
			}
			if flags.IsUndefined() {
				if f, err = v.GetV(pattern, vm.StrKey("flags")); err != nil {
					return vm.Undefined, err
				}
			}
		}
		o, err := v.RegExpAlloc(newTarget)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(o), v.RegExpInitialize(o, p, f)
	}
	ctor = constructor(v, "RegExp", 2, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return construct(v, args, nil)
		},
		construct)
	realm.RegExpConstructor = ctor
	speciesGetter(v, ctor)
	installRegExpStatics(v, realm, ctor)

	thisRegExp := func(v *vm.VM, this vm.Value, name string) (*vm.Object, *vm.RegExpData, error) {
		o := this.AsObject()
		d := vm.RegExpOf(o)
		if d == nil {
			return nil, nil, v.NewTypeErrorf("RegExp.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
		}
		return o, d, nil
	}

	realm.RegExpExecIntrinsic = method(v, proto, "exec", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, _, err := thisRegExp(v, this, "exec")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		return v.RegExpBuiltinExec(o, s)
	})
	method(v, proto, "test", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, this, "RegExp.prototype.test")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		m, err := v.RegExpExec(o, s)
		return vm.BooleanValue(!m.IsNull() && err == nil), err
	})
	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, this, "RegExp.prototype.toString")
		if err != nil {
			return vm.Undefined, err
		}
		src, err := v.GetV(vm.ObjectValue(o), vm.StrKey("source"))
		if err != nil {
			return vm.Undefined, err
		}
		p, err := v.ToGoString(src)
		if err != nil {
			return vm.Undefined, err
		}
		fl, err := v.GetV(vm.ObjectValue(o), vm.StrKey("flags"))
		if err != nil {
			return vm.Undefined, err
		}
		f, err := v.ToGoString(fl)
		if err != nil {
			return vm.Undefined, err
		}
		return str("/" + p + "/" + f), nil
	})
	method(v, proto, "compile", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, _, err := thisRegExp(v, this, "compile")
		if err != nil {
			return vm.Undefined, err
		}
		pattern, flags := vm.Arg(args, 0), vm.Arg(args, 1)
		if d := vm.RegExpOf(pattern.AsObject()); d != nil {
			if !flags.IsUndefined() {
				return vm.Undefined, v.NewTypeError("Cannot supply flags when constructing one RegExp from another")
			}
			pattern, flags = str(d.Source), str(d.Flags)
		}
		return this, v.RegExpInitialize(o, pattern, flags)
	})

	getter(v, proto, "flags", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, this, "RegExp.prototype.flags getter")
		if err != nil {
			return vm.Undefined, err
		}
		var b strings.Builder
		for _, f := range []struct {
			name string
			c    byte
		}{
			{"hasIndices", 'd'}, {"global", 'g'}, {"ignoreCase", 'i'}, {"multiline", 'm'},
			{"dotAll", 's'}, {"unicode", 'u'}, {"unicodeSets", 'v'}, {"sticky", 'y'},
		} {
			val, err := getProp(v, o, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			if val.ToBoolean() {
				b.WriteByte(f.c)
			}
		}
		return str(b.String()), nil
	})
	for _, f := range []struct {
		name string
		get  func(d *vm.RegExpData) bool
	}{
		{"hasIndices", func(d *vm.RegExpData) bool { return d.HasIndices }},
		{"global", func(d *vm.RegExpData) bool { return d.Global }},
		{"ignoreCase", func(d *vm.RegExpData) bool { return d.IgnoreCase }},
		{"multiline", func(d *vm.RegExpData) bool { return d.Multiline }},
		{"dotAll", func(d *vm.RegExpData) bool { return d.DotAll }},
		{"unicode", func(d *vm.RegExpData) bool { return d.Unicode }},
		{"unicodeSets", func(d *vm.RegExpData) bool { return d.UnicodeSets }},
		{"sticky", func(d *vm.RegExpData) bool { return d.Sticky }},
	} {
		getter(v, proto, f.name, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			if o := this.AsObject(); o == v.Realm().RegExpPrototype {
				return vm.Undefined, nil
			}
			_, d, err := thisRegExp(v, this, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.BooleanValue(f.get(d)), nil
		})
	}
	getter(v, proto, "source", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		if o := this.AsObject(); o == v.Realm().RegExpPrototype {
			return str("(?:)"), nil
		}
		_, d, err := thisRegExp(v, this, "source")
		if err != nil {
			return vm.Undefined, err
		}
		return str(escapeRegExpPattern(d.Source)), nil
	})

	installRegExpProtocol(v, realm, proto, ctor)

	return defineGlobal(ctx, "RegExp", ctor)
}

// isRegExp implements IsRegExp.
func isRegExp(v *vm.VM, arg vm.Value) (bool, error) {
	o := arg.AsObject()
	if o == nil {
		return false, nil
	}
	m, err := o.Get(v, vm.SymKey(vm.SymMatch), arg)
	if err != nil {
		return false, err
	}
	if !m.IsUndefined() {
		return m.ToBoolean(), nil
	}
	return vm.RegExpOf(o) != nil, nil
}

// regExpCreate implements RegExpCreate.
func regExpCreate(v *vm.VM, pattern, flags vm.Value) (*vm.Object, error) {
	o, err := v.RegExpAlloc(v.Realm().RegExpConstructor)
	if err != nil {
		return nil, err
	}
	return o, v.RegExpInitialize(o, pattern, flags)
}

// escapeRegExpPattern renders source so that /source/ parses back to the
// same pattern.
func escapeRegExpPattern(src string) string {
	if src == "" {
		return "(?:)"
	}
	var b strings.Builder
	inClass := false
	escaped := false
	for _, r := range src {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '[':
			inClass = true
		case r == ']':
			inClass = false
		case r == '/' && !inClass:
			b.WriteString(`\/`)
			continue
		}
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// installRegExpStatics installs the legacy RegExp.$1 family. They read
// the realm's statics, which the built-in exec updates on success.
func installRegExpStatics(v *vm.VM, realm *vm.Realm, ctor *vm.Object) {
	read := func(s *vm.String) vm.Value {
		if s == nil {
			return str("")
		}
		return vm.StringValue(s)
	}
	static := func(names []string, get func(st *vm.RegExpStatics) *vm.String, settable bool) {
		for _, name := range names {
			g := v.NewNativeFunction("get "+name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
				if this.AsObject() != ctor {
					return vm.Undefined, v.NewTypeError("RegExp legacy static accessed on incompatible receiver")
				}
				return read(get(&realm.RegExpStatics)), nil
			})
			s := vm.Undefined
			if settable {
				s = vm.ObjectValue(v.NewNativeFunction("set "+name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
					if this.AsObject() != ctor {
						return vm.Undefined, v.NewTypeError("RegExp legacy static accessed on incompatible receiver")
					}
					in, err := argString(v, args, 0)
					if err != nil {
						return vm.Undefined, err
					}
					realm.RegExpStatics.Input = in
					return vm.Undefined, nil
				}))
			}
			ctor.DefineAccessorOwn(vm.StrKey(name), vm.ObjectValue(g), s, vm.Configurable)
		}
	}
	static([]string{"input", "$_"}, func(st *vm.RegExpStatics) *vm.String { return st.Input }, true)
	static([]string{"lastMatch", "$&"}, func(st *vm.RegExpStatics) *vm.String { return st.LastMatch }, false)
	static([]string{"lastParen", "$+"}, func(st *vm.RegExpStatics) *vm.String { return st.LastParen }, false)
	static([]string{"leftContext", "$`"}, func(st *vm.RegExpStatics) *vm.String { return st.LeftContext }, false)
	static([]string{"rightContext", "$'"}, func(st *vm.RegExpStatics) *vm.String { return st.RightContext }, false)
	for i := 0; i < 9; i++ {
		static([]string{"$" + string(rune('1'+i))}, func(st *vm.RegExpStatics) *vm.String { return st.Parens[i] }, false)
	}
}

// regExpThisString is the prologue of the symbol-keyed protocol methods.
func regExpThisString(v *vm.VM, this vm.Value, args []vm.Value, name string) (*vm.Object, *vm.String, error) {
	rx, err := thisObject(v, this, "RegExp.prototype["+name+"]")
	if err != nil {
		return nil, nil, err
	}
	s, err := argString(v, args, 0)
	return rx, s, err
}

func regExpFlags(v *vm.VM, rx *vm.Object) (string, error) {
	f, err := getProp(v, rx, "flags")
	if err != nil {
		return "", err
	}
	return v.ToGoString(f)
}

func getLastIndex(v *vm.VM, rx *vm.Object) (float64, error) {
	li, err := getProp(v, rx, "lastIndex")
	if err != nil {
		return 0, err
	}
	return v.ToLength(li)
}

func setLastIndex(v *vm.VM, rx *vm.Object, i float64) error {
	return v.SetOrThrow(rx, vm.StrKey("lastIndex"), num(i))
}

// advanceAfterEmptyMatch moves lastIndex past an empty match so global
// iteration terminates.
func advanceAfterEmptyMatch(v *vm.VM, rx *vm.Object, s *vm.String, fullUnicode bool) error {
	thisIndex, err := getLastIndex(v, rx)
	if err != nil {
		return err
	}
	next := float64(vm.AdvanceStringIndex(s, int(math.Min(thisIndex, math.MaxInt32)), fullUnicode))
	return setLastIndex(v, rx, next)
}

func matchString(v *vm.VM, result *vm.Object) (*vm.String, error) {
	m, err := getIndex(v, result, 0)
	if err != nil {
		return nil, err
	}
	return v.ToString(m)
}

func installRegExpProtocol(v *vm.VM, realm *vm.Realm, proto, ctor *vm.Object) {
	symbolMethod(v, proto, vm.SymMatch, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, s, err := regExpThisString(v, this, args, "Symbol.match")
		if err != nil {
			return vm.Undefined, err
		}
		flags, err := regExpFlags(v, rx)
		if err != nil {
			return vm.Undefined, err
		}
		if !strings.Contains(flags, "g") {
			return v.RegExpExec(rx, s)
		}
		fullUnicode := strings.ContainsAny(flags, "uv")
		if err := setLastIndex(v, rx, 0); err != nil {
			return vm.Undefined, err
		}
		var matches []vm.Value
		for {
			result, err := v.RegExpExec(rx, s)
			if err != nil {
				return vm.Undefined, err
			}
			if result.IsNull() {
				if len(matches) == 0 {
					return vm.Null, nil
				}
				return vm.ObjectValue(v.NewArrayFromValues(matches)), nil
			}
			m, err := matchString(v, result.AsObject())
			if err != nil {
				return vm.Undefined, err
			}
			matches = append(matches, vm.StringValue(m))
			if m.Length() == 0 {
				if err := advanceAfterEmptyMatch(v, rx, s, fullUnicode); err != nil {
					return vm.Undefined, err
				}
			}
		}
	})

	itProto := realm.RegExpStringIteratorPrototype
	toStringTag(itProto, "RegExp String Iterator")
	method(v, itProto, "next", 0, nativeIteratorNext("RegExp String Iterator"))

	symbolMethod(v, proto, vm.SymMatchAll, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, s, err := regExpThisString(v, this, args, "Symbol.matchAll")
		if err != nil {
			return vm.Undefined, err
		}
		c, err := v.SpeciesConstructor(rx, v.Realm().RegExpConstructor)
		if err != nil {
			return vm.Undefined, err
		}
		flags, err := regExpFlags(v, rx)
		if err != nil {
			return vm.Undefined, err
		}
		matcherVal, err := v.Construct(c, []vm.Value{vm.ObjectValue(rx), str(flags)}, vm.Undefined)
		if err != nil {
			return vm.Undefined, err
		}
		matcher := matcherVal.AsObject()
		lastIndex, err := getLastIndex(v, rx)
		if err != nil {
			return vm.Undefined, err
		}
		if err := setLastIndex(v, matcher, lastIndex); err != nil {
			return vm.Undefined, err
		}
		global := strings.Contains(flags, "g")
		fullUnicode := strings.ContainsAny(flags, "uv")
		next := func(v *vm.VM) (vm.Value, bool, error) {
			if matcher == nil {
				return vm.Undefined, true, nil
			}
			result, err := v.RegExpExec(matcher, s)
			if err != nil || result.IsNull() {
				return vm.Undefined, true, err
			}
			if !global {
				// A non-global matcher yields once.
				matcher = nil
				return result, false, nil
			}
			m, err := matchString(v, result.AsObject())
			if err != nil {
				return vm.Undefined, true, err
			}
			if m.Length() == 0 {
				if err := advanceAfterEmptyMatch(v, matcher, s, fullUnicode); err != nil {
					return vm.Undefined, true, err
				}
			}
			return result, false, nil
		}
		return vm.ObjectValue(newNativeIterator(v, itProto, "RegExp String Iterator", next, matcherVal, vm.StringValue(s))), nil
	})

	symbolMethod(v, proto, vm.SymReplace, 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, s, err := regExpThisString(v, this, args, "Symbol.replace")
		if err != nil {
			return vm.Undefined, err
		}
		replaceValue := vm.Arg(args, 1)
		functional := replaceValue.IsCallable()
		var replacement *vm.String
		if !functional {
			if replacement, err = v.ToString(replaceValue); err != nil {
				return vm.Undefined, err
			}
		}
		flags, err := regExpFlags(v, rx)
		if err != nil {
			return vm.Undefined, err
		}
		global := strings.Contains(flags, "g")
		fullUnicode := strings.ContainsAny(flags, "uv")
		if global {
			if err := setLastIndex(v, rx, 0); err != nil {
				return vm.Undefined, err
			}
		}
		var results []*vm.Object
		for {
			result, err := v.RegExpExec(rx, s)
			if err != nil {
				return vm.Undefined, err
			}
			if result.IsNull() {
				break
			}
			results = append(results, result.AsObject())
			if !global {
				break
			}
			m, err := matchString(v, result.AsObject())
			if err != nil {
				return vm.Undefined, err
			}
			if m.Length() == 0 {
				if err := advanceAfterEmptyMatch(v, rx, s, fullUnicode); err != nil {
					return vm.Undefined, err
				}
			}
		}

		var b vm.StringBuilder
		nextSourcePosition := 0
		for _, result := range results {
			resultLength, err := lengthOf(v, result)
			if err != nil {
				return vm.Undefined, err
			}
			nCaptures := int(math.Max(resultLength-1, 0))
			matched, err := matchString(v, result)
			if err != nil {
				return vm.Undefined, err
			}
			posVal, err := getProp(v, result, "index")
			if err != nil {
				return vm.Undefined, err
			}
			pos, err := v.ToIntegerOrInfinity(posVal)
			if err != nil {
				return vm.Undefined, err
			}
			position := int(math.Max(math.Min(pos, float64(s.Length())), 0))
			captures := make([]vm.Value, nCaptures)
			for n := 1; n <= nCaptures; n++ {
				c, err := getIndex(v, result, float64(n))
				if err != nil {
					return vm.Undefined, err
				}
				if !c.IsUndefined() {
					cs, err := v.ToString(c)
					if err != nil {
						return vm.Undefined, err
					}
					c = vm.StringValue(cs)
				}
				captures[n-1] = c
			}
			namedCaptures, err := getProp(v, result, "groups")
			if err != nil {
				return vm.Undefined, err
			}
			var rep *vm.String
			if functional {
				callArgs := append([]vm.Value{vm.StringValue(matched)}, captures...)
				callArgs = append(callArgs, vm.IntValue(position), vm.StringValue(s))
				if !namedCaptures.IsUndefined() {
					callArgs = append(callArgs, namedCaptures)
				}
				r, err := v.Call(replaceValue, vm.Undefined, callArgs...)
				if err != nil {
					return vm.Undefined, err
				}
				if rep, err = v.ToString(r); err != nil {
					return vm.Undefined, err
				}
			} else {
				if !namedCaptures.IsUndefined() {
					o, err := v.ToObject(namedCaptures)
					if err != nil {
						return vm.Undefined, err
					}
					namedCaptures = vm.ObjectValue(o)
				}
				if rep, err = getSubstitution(v, matched, s, position, captures, namedCaptures, replacement); err != nil {
					return vm.Undefined, err
				}
			}
			if position >= nextSourcePosition {
				b.WriteString(s.Substring(nextSourcePosition, position))
				b.WriteString(rep)
				nextSourcePosition = position + matched.Length()
			}
		}
		if nextSourcePosition >= s.Length() {
			return vm.StringValue(b.String()), nil
		}
		b.WriteString(s.Substring(nextSourcePosition, s.Length()))
		return vm.StringValue(b.String()), nil
	})

	symbolMethod(v, proto, vm.SymSearch, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, s, err := regExpThisString(v, this, args, "Symbol.search")
		if err != nil {
			return vm.Undefined, err
		}
		previous, err := getProp(v, rx, "lastIndex")
		if err != nil {
			return vm.Undefined, err
		}
		if !vm.SameValue(previous, vm.Zero) {
			if err := setLastIndex(v, rx, 0); err != nil {
				return vm.Undefined, err
			}
		}
		result, err := v.RegExpExec(rx, s)
		if err != nil {
			return vm.Undefined, err
		}
		current, err := getProp(v, rx, "lastIndex")
		if err != nil {
			return vm.Undefined, err
		}
		if !vm.SameValue(current, previous) {
			if err := v.SetOrThrow(rx, vm.StrKey("lastIndex"), previous); err != nil {
				return vm.Undefined, err
			}
		}
		if result.IsNull() {
			return num(-1), nil
		}
		return getProp(v, result.AsObject(), "index")
	})

	symbolMethod(v, proto, vm.SymSplit, 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, s, err := regExpThisString(v, this, args, "Symbol.split")
		if err != nil {
			return vm.Undefined, err
		}
		c, err := v.SpeciesConstructor(rx, v.Realm().RegExpConstructor)
		if err != nil {
			return vm.Undefined, err
		}
		flags, err := regExpFlags(v, rx)
		if err != nil {
			return vm.Undefined, err
		}
		fullUnicode := strings.ContainsAny(flags, "uv")
		if !strings.Contains(flags, "y") {
			flags += "y"
		}
		splitterVal, err := v.Construct(c, []vm.Value{vm.ObjectValue(rx), str(flags)}, vm.Undefined)
		if err != nil {
			return vm.Undefined, err
		}
		splitter := splitterVal.AsObject()
		lim := uint32(math.MaxUint32)
		if l := vm.Arg(args, 1); !l.IsUndefined() {
			if lim, err = v.ToUint32(l); err != nil {
				return vm.Undefined, err
			}
		}
		var parts []vm.Value
		done := func() (vm.Value, error) {
			return vm.ObjectValue(v.NewArrayFromValues(parts)), nil
		}
		if lim == 0 {
			return done()
		}
		size := s.Length()
		if size == 0 {
			z, err := v.RegExpExec(splitter, s)
			if err != nil {
				return vm.Undefined, err
			}
			if z.IsNull() {
				parts = append(parts, vm.StringValue(s))
			}
			return done()
		}
		p, q := 0, 0
		for q < size {
			if err := setLastIndex(v, splitter, float64(q)); err != nil {
				return vm.Undefined, err
			}
			z, err := v.RegExpExec(splitter, s)
			if err != nil {
				return vm.Undefined, err
			}
			if z.IsNull() {
				q = vm.AdvanceStringIndex(s, q, fullUnicode)
				continue
			}
			li, err := getLastIndex(v, splitter)
			if err != nil {
				return vm.Undefined, err
			}
			e := int(math.Min(li, float64(size)))
			if e == p {
				q = vm.AdvanceStringIndex(s, q, fullUnicode)
				continue
			}
			parts = append(parts, vm.StringValue(s.Substring(p, q)))
			if uint32(len(parts)) == lim {
				return done()
			}
			p = e
			zLen, err := lengthOf(v, z.AsObject())
			if err != nil {
				return vm.Undefined, err
			}
			for i := 1.0; i < zLen; i++ {
				capture, err := getIndex(v, z.AsObject(), i)
				if err != nil {
					return vm.Undefined, err
				}
				parts = append(parts, capture)
				if uint32(len(parts)) == lim {
					return done()
				}
			}
			q = p
		}
		parts = append(parts, vm.StringValue(s.Substring(p, size)))
		return done()
	})
}
