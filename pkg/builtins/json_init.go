package builtins

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/skua-js/skua/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string {
	return "JSON"
}

func (j *JSONInitializer) Priority() int {
	return PriorityJSON
}

func (j *JSONInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	jsonObj := v.NewObject()

	method(v, jsonObj, "parse", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		text, err := v.ToString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		val, err := ParseJSON(v, text)
		if err != nil {
			return vm.Undefined, err
		}
		reviver := vm.Arg(args, 1)
		if !reviver.IsCallable() {
			return val, nil
		}
		root := v.NewObject()
		root.SetOwn("", val)
		return internalize(v, reviver, root, vm.StrKey(""))
	})
	method(v, jsonObj, "stringify", 3, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, ok, err := Stringify(v, vm.Arg(args, 0), vm.Arg(args, 1), vm.Arg(args, 2))
		if err != nil || !ok {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	})
	toStringTag(jsonObj, "JSON")

	ctx.Realm.SetIntrinsic("JSON", jsonObj)
	return defineGlobal(ctx, "JSON", jsonObj)
}

// ParseJSON parses text as a single JSON value. Malformed input is a
// SyntaxError.
func ParseJSON(v *vm.VM, text *vm.String) (vm.Value, error) {
	p := &jsonParser{v: v, src: text.Units()}
	p.skipSpace()
	val, err := p.value()
	if err != nil {
		return vm.Undefined, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return vm.Undefined, p.unexpected()
	}
	return val, nil
}

// jsonParser is a recursive-descent parser over UTF-16 code units so that
// escaped lone surrogates survive intact.
type jsonParser struct {
	v   *vm.VM
	src []uint16
	pos int
}

func (p *jsonParser) unexpected() error {
	if p.pos >= len(p.src) {
		return p.v.NewSyntaxError("Unexpected end of JSON input")
	}
	r, _ := vm.NewStringFromUnits(p.src[p.pos:]).CodePointAt(0)
	return p.v.NewSyntaxError(fmt.Sprintf("Unexpected token '%c' in JSON at position %d", r, p.pos))
}

func (p *jsonParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsonParser) literal(word string, val vm.Value) (vm.Value, error) {
	for i := 0; i < len(word); i++ {
		if p.pos >= len(p.src) || p.src[p.pos] != uint16(word[i]) {
			return vm.Undefined, p.unexpected()
		}
		p.pos++
	}
	return val, nil
}

func (p *jsonParser) value() (vm.Value, error) {
	if p.pos >= len(p.src) {
		return vm.Undefined, p.unexpected()
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, err := p.string()
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	case c == 't':
		return p.literal("true", vm.True)
	case c == 'f':
		return p.literal("false", vm.False)
	case c == 'n':
		return p.literal("null", vm.Null)
	case c == '-' || c >= '0' && c <= '9':
		return p.number()
	}
	return vm.Undefined, p.unexpected()
}

func (p *jsonParser) object() (vm.Value, error) {
	obj := p.v.NewObject()
	p.pos++
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return vm.ObjectValue(obj), nil
	}
	for {
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return vm.Undefined, p.unexpected()
		}
		key, err := p.string()
		if err != nil {
			return vm.Undefined, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return vm.Undefined, p.unexpected()
		}
		p.pos++
		p.skipSpace()
		val, err := p.value()
		if err != nil {
			return vm.Undefined, err
		}
		// __proto__ is an ordinary own property here.
		if _, err := p.v.CreateDataProperty(obj, vm.StringKey(key), val); err != nil {
			return vm.Undefined, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.unexpected()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
		case '}':
			p.pos++
			return vm.ObjectValue(obj), nil
		default:
			return vm.Undefined, p.unexpected()
		}
	}
}

func (p *jsonParser) array() (vm.Value, error) {
	var elems []vm.Value
	p.pos++
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return vm.ObjectValue(p.v.NewArrayFromValues(nil)), nil
	}
	for {
		val, err := p.value()
		if err != nil {
			return vm.Undefined, err
		}
		elems = append(elems, val)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return vm.Undefined, p.unexpected()
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
			p.skipSpace()
		case ']':
			p.pos++
			return vm.ObjectValue(p.v.NewArrayFromValues(elems)), nil
		default:
			return vm.Undefined, p.unexpected()
		}
	}
}

func (p *jsonParser) string() (*vm.String, error) {
	p.pos++
	var b vm.StringBuilder
	for {
		if p.pos >= len(p.src) {
			return nil, p.v.NewSyntaxError("Unterminated string in JSON at position " + strconv.Itoa(p.pos))
		}
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), nil
		case c < 0x20:
			return nil, p.v.NewSyntaxError(fmt.Sprintf("Bad control character in string literal in JSON at position %d", p.pos))
		case c != '\\':
			b.WriteUnit(c)
			p.pos++
			continue
		}
		p.pos++
		if p.pos >= len(p.src) {
			return nil, p.unexpected()
		}
		esc := p.src[p.pos]
		p.pos++
		switch esc {
		case '"', '\\', '/':
			b.WriteUnit(esc)
		case 'b':
			b.WriteUnit('\b')
		case 'f':
			b.WriteUnit('\f')
		case 'n':
			b.WriteUnit('\n')
		case 'r':
			b.WriteUnit('\r')
		case 't':
			b.WriteUnit('\t')
		case 'u':
			var u uint16
			for i := 0; i < 4; i++ {
				if p.pos >= len(p.src) {
					return nil, p.unexpected()
				}
				d := hexDigit(p.src[p.pos])
				if d < 0 {
					return nil, p.v.NewSyntaxError(fmt.Sprintf("Bad Unicode escape in JSON at position %d", p.pos))
				}
				u = u<<4 | uint16(d)
				p.pos++
			}
			b.WriteUnit(u)
		default:
			p.pos -= 1
			return nil, p.v.NewSyntaxError(fmt.Sprintf("Bad escaped character in JSON at position %d", p.pos))
		}
	}
}

func hexDigit(c uint16) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func (p *jsonParser) digits() int {
	n := 0
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
		n++
	}
	return n
}

func (p *jsonParser) number() (vm.Value, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '0' {
		p.pos++
	} else if p.digits() == 0 {
		return vm.Undefined, p.unexpected()
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		if p.digits() == 0 {
			return vm.Undefined, p.unexpected()
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		if p.digits() == 0 {
			return vm.Undefined, p.unexpected()
		}
	}
	var sb strings.Builder
	for _, u := range p.src[start:p.pos] {
		sb.WriteByte(byte(u))
	}
	f, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil {
		// Out of range literals round to infinity, which ParseFloat
		// reports alongside the value.
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return vm.Undefined, p.v.NewSyntaxError("Invalid number in JSON")
		}
	}
	return num(f), nil
}

// internalize applies the reviver bottom-up, deleting properties for
// which it returns undefined.
func internalize(v *vm.VM, reviver vm.Value, holder *vm.Object, key vm.PropertyKey) (vm.Value, error) {
	val, err := holder.Get(v, key, vm.ObjectValue(holder))
	if err != nil {
		return vm.Undefined, err
	}
	if o := val.AsObject(); o != nil {
		isArr, err := v.IsArray(val)
		if err != nil {
			return vm.Undefined, err
		}
		var keys []vm.PropertyKey
		if isArr {
			n, err := lengthOf(v, o)
			if err != nil {
				return vm.Undefined, err
			}
			for i := 0.0; i < n; i++ {
				keys = append(keys, indexKey(i))
			}
		} else {
			names, err := enumerableOwn(v, o, "keys")
			if err != nil {
				return vm.Undefined, err
			}
			for _, n := range names {
				keys = append(keys, vm.StringKey(n.AsString()))
			}
		}
		for _, k := range keys {
			nv, err := internalize(v, reviver, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if nv.IsUndefined() {
				if _, err := o.Delete(v, k); err != nil {
					return vm.Undefined, err
				}
			} else if _, err := v.CreateDataProperty(o, k, nv); err != nil {
				return vm.Undefined, err
			}
		}
	}
	return v.Call(reviver, vm.ObjectValue(holder), key.ToValue(), val)
}

// stringifier carries the state of one JSON.stringify call.
type stringifier struct {
	v            *vm.VM
	replacer     vm.Value
	propertyList []vm.PropertyKey
	hasList      bool
	gap          string
	indent       string
	stack        []*vm.Object
}

// Stringify serializes val the way JSON.stringify does. ok is false when
// the result is undefined.
func Stringify(v *vm.VM, val, replacer, space vm.Value) (*vm.String, bool, error) {
	s := &stringifier{v: v}
	if r := replacer.AsObject(); r != nil {
		if r.IsCallable() {
			s.replacer = replacer
		} else if isArr, err := v.IsArray(replacer); err != nil {
			return nil, false, err
		} else if isArr {
			if err := s.buildPropertyList(r); err != nil {
				return nil, false, err
			}
		}
	}
	if o := space.AsObject(); o != nil {
		if p, ok := o.PrimitiveValue(); ok && (p.IsNumber() || p.IsString()) {
			var err error
			if p.IsNumber() {
				var f float64
				f, err = v.ToNumber(space)
				space = num(f)
			} else {
				var sv *vm.String
				sv, err = v.ToString(space)
				space = vm.StringValue(sv)
			}
			if err != nil {
				return nil, false, err
			}
		}
	}
	switch {
	case space.IsNumber():
		n := math.Min(10, vm.ToIntegerOrInfinityF(space.AsNumber()))
		if n >= 1 {
			s.gap = strings.Repeat(" ", int(n))
		}
	case space.IsString():
		g := space.AsString()
		if g.Length() > 10 {
			g = g.Substring(0, 10)
		}
		s.gap = g.String()
	}

	wrapper := v.NewObject()
	wrapper.SetOwn("", val)
	var b vm.StringBuilder
	ok, err := s.property(&b, wrapper, vm.StrKey(""))
	if err != nil || !ok {
		return nil, false, err
	}
	return b.String(), true, nil
}

func (s *stringifier) buildPropertyList(r *vm.Object) error {
	s.hasList = true
	n, err := lengthOf(s.v, r)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := 0.0; i < n; i++ {
		item, err := getIndex(s.v, r, i)
		if err != nil {
			return err
		}
		var name *vm.String
		switch {
		case item.IsString():
			name = item.AsString()
		case item.IsNumber():
			name = vm.NewString(vm.NumberToString(item.AsNumber()))
		case item.IsObject():
			if p, ok := item.AsObject().PrimitiveValue(); ok && (p.IsString() || p.IsNumber()) {
				if name, err = s.v.ToString(item); err != nil {
					return err
				}
			}
		}
		if name != nil && !seen[name.String()] {
			seen[name.String()] = true
			s.propertyList = append(s.propertyList, vm.StringKey(name))
		}
	}
	return nil
}

// property implements SerializeJSONProperty. It reports false when the
// value serializes to undefined.
func (s *stringifier) property(b *vm.StringBuilder, holder *vm.Object, key vm.PropertyKey) (bool, error) {
	v := s.v
	val, err := holder.Get(v, key, vm.ObjectValue(holder))
	if err != nil {
		return false, err
	}
	if val.IsObject() || val.IsBigInt() {
		toJSON, err := v.GetV(val, vm.StrKey("toJSON"))
		if err != nil {
			return false, err
		}
		if toJSON.IsCallable() {
			if val, err = v.Call(toJSON, val, key.ToValue()); err != nil {
				return false, err
			}
		}
	}
	if s.replacer.IsCallable() {
		if val, err = v.Call(s.replacer, vm.ObjectValue(holder), key.ToValue(), val); err != nil {
			return false, err
		}
	}
	if o := val.AsObject(); o != nil {
		if p, ok := o.PrimitiveValue(); ok {
			switch {
			case p.IsNumber():
				f, err := v.ToNumber(val)
				if err != nil {
					return false, err
				}
				val = num(f)
			case p.IsString():
				sv, err := v.ToString(val)
				if err != nil {
					return false, err
				}
				val = vm.StringValue(sv)
			case p.IsBoolean(), p.IsBigInt():
				val = p
			}
		}
	}

	switch {
	case val.IsNull():
		b.WriteGo("null")
	case val.IsBoolean():
		if val.AsBoolean() {
			b.WriteGo("true")
		} else {
			b.WriteGo("false")
		}
	case val.IsString():
		QuoteJSON(b, val.AsString())
	case val.IsNumber():
		f := val.AsNumber()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteGo("null")
		} else {
			b.WriteGo(vm.NumberToString(f))
		}
	case val.IsBigInt():
		return false, v.NewTypeError("Do not know how to serialize a BigInt")
	case val.IsObject() && !val.IsCallable():
		isArr, err := v.IsArray(val)
		if err != nil {
			return false, err
		}
		if isArr {
			return true, s.array(b, val.AsObject())
		}
		return true, s.object(b, val.AsObject())
	default:
		return false, nil
	}
	return true, nil
}

func (s *stringifier) enter(o *vm.Object) error {
	for _, seen := range s.stack {
		if seen == o {
			return s.v.NewTypeError("Converting circular structure to JSON")
		}
	}
	s.stack = append(s.stack, o)
	return nil
}

func (s *stringifier) leave() { s.stack = s.stack[:len(s.stack)-1] }

func (s *stringifier) object(b *vm.StringBuilder, o *vm.Object) error {
	if err := s.enter(o); err != nil {
		return err
	}
	defer s.leave()
	stepback := s.indent
	s.indent += s.gap
	defer func() { s.indent = stepback }()

	keys := s.propertyList
	if !s.hasList {
		names, err := enumerableOwn(s.v, o, "keys")
		if err != nil {
			return err
		}
		keys = make([]vm.PropertyKey, len(names))
		for i, n := range names {
			keys[i] = vm.StringKey(n.AsString())
		}
	}
	b.WriteUnit('{')
	empty := true
	for _, k := range keys {
		var member vm.StringBuilder
		QuoteJSON(&member, k.ToValue().AsString())
		member.WriteUnit(':')
		if s.gap != "" {
			member.WriteUnit(' ')
		}
		ok, err := s.property(&member, o, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !empty {
			b.WriteUnit(',')
		}
		s.newline(b)
		b.WriteString(member.String())
		empty = false
	}
	if !empty {
		s.closing(b, stepback)
	}
	b.WriteUnit('}')
	return nil
}

func (s *stringifier) array(b *vm.StringBuilder, o *vm.Object) error {
	if err := s.enter(o); err != nil {
		return err
	}
	defer s.leave()
	stepback := s.indent
	s.indent += s.gap
	defer func() { s.indent = stepback }()

	n, err := lengthOf(s.v, o)
	if err != nil {
		return err
	}
	b.WriteUnit('[')
	for i := 0.0; i < n; i++ {
		if i > 0 {
			b.WriteUnit(',')
		}
		s.newline(b)
		ok, err := s.property(b, o, indexKey(i))
		if err != nil {
			return err
		}
		if !ok {
			b.WriteGo("null")
		}
	}
	if n > 0 {
		s.closing(b, stepback)
	}
	b.WriteUnit(']')
	return nil
}

func (s *stringifier) newline(b *vm.StringBuilder) {
	if s.gap != "" {
		b.WriteUnit('\n')
		b.WriteGo(s.indent)
	}
}

func (s *stringifier) closing(b *vm.StringBuilder, stepback string) {
	if s.gap != "" {
		b.WriteUnit('\n')
		b.WriteGo(stepback)
	}
}

// QuoteJSON writes str as a JSON string literal, escaping lone surrogates.
func QuoteJSON(b *vm.StringBuilder, str *vm.String) {
	const hex = "0123456789abcdef"
	units := str.Units()
	b.WriteUnit('"')
	for i := 0; i < len(units); i++ {
		c := units[i]
		switch c {
		case '"':
			b.WriteGo(`\"`)
		case '\\':
			b.WriteGo(`\\`)
		case '\b':
			b.WriteGo(`\b`)
		case '\f':
			b.WriteGo(`\f`)
		case '\n':
			b.WriteGo(`\n`)
		case '\r':
			b.WriteGo(`\r`)
		case '\t':
			b.WriteGo(`\t`)
		default:
			lone := false
			switch {
			case c >= 0xD800 && c <= 0xDBFF:
				if i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
					b.WriteUnit(c)
					b.WriteUnit(units[i+1])
					i++
					continue
				}
				lone = true
			case c >= 0xDC00 && c <= 0xDFFF:
				lone = true
			}
			if c < 0x20 || lone {
				b.WriteGo(`\u`)
				b.WriteGo(string([]byte{hex[c>>12], hex[c>>8&0xF], hex[c>>4&0xF], hex[c&0xF]}))
				continue
			}
			b.WriteUnit(c)
		}
	}
	b.WriteUnit('"')
}
