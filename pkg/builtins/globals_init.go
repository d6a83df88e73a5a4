package builtins

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/skua-js/skua/pkg/vm"
)

// GlobalsInitializer installs the value properties and functions of the
// global object. It runs last so that globalThis sees every other global.
type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string {
	return "globals"
}

func (g *GlobalsInitializer) Priority() int {
	return PriorityGlobals
}

func (g *GlobalsInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	global := realm.GlobalObject

	constant(global, "NaN", num(math.NaN()))
	constant(global, "Infinity", num(math.Inf(1)))
	constant(global, "undefined", vm.Undefined)
	global.DefineOwn(vm.StrKey("globalThis"), vm.ObjectValue(global), vm.MethodFlags)

	realm.Eval = method(v, global, "eval", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		src := vm.Arg(args, 0)
		if !src.IsString() {
			return src, nil
		}
		return v.IndirectEval(src.AsString().String())
	})
	for _, name := range []string{"parseInt", "parseFloat"} {
		if fn := realm.Intrinsic(name); fn != nil {
			global.DefineOwn(vm.StrKey(name), vm.ObjectValue(fn), vm.MethodFlags)
		}
	}
	method(v, global, "isNaN", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := v.ToNumber(vm.Arg(args, 0))
		return vm.BooleanValue(math.IsNaN(f)), err
	})
	method(v, global, "isFinite", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := v.ToNumber(vm.Arg(args, 0))
		return vm.BooleanValue(!math.IsNaN(f) && !math.IsInf(f, 0)), err
	})

	uriFunc := func(name string, fn func(v *vm.VM, s *vm.String) (*vm.String, error)) {
		method(v, global, name, 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := v.ToString(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			out, err := fn(v, s)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.StringValue(out), nil
		})
	}
	uriFunc("encodeURI", func(v *vm.VM, s *vm.String) (*vm.String, error) {
		return encodeURI(v, s, uriUnescaped+uriReserved+"#")
	})
	uriFunc("encodeURIComponent", func(v *vm.VM, s *vm.String) (*vm.String, error) {
		return encodeURI(v, s, uriUnescaped)
	})
	uriFunc("decodeURI", func(v *vm.VM, s *vm.String) (*vm.String, error) {
		return decodeURI(v, s, uriReserved+"#")
	})
	uriFunc("decodeURIComponent", func(v *vm.VM, s *vm.String) (*vm.String, error) {
		return decodeURI(v, s, "")
	})

	method(v, global, "queueMicrotask", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		cb := vm.Arg(args, 0)
		if err := requireCallable(v, cb); err != nil {
			return vm.Undefined, err
		}
		v.EnqueueCallJob(cb)
		return vm.Undefined, nil
	})
	method(v, global, "structuredClone", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		c := &cloner{v: v, realm: realm, memo: map[*vm.Object]*vm.Object{}}
		return c.clone(vm.Arg(args, 0))
	})

	crypto := v.NewObject()
	method(v, crypto, "randomUUID", 0, func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return vm.Undefined, err
		}
		return str(id.String()), nil
	})
	toStringTag(crypto, "Crypto")
	return defineGlobal(ctx, "crypto", crypto)
}

const (
	uriAlpha     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	uriUnescaped = uriAlpha + "0123456789-_.!~*'()"
	uriReserved  = ";/?:@&=+$,"
)

func uriMalformed(v *vm.VM) error { return v.NewURIError("URI malformed") }

// encodeURI percent-encodes every code point outside keep as UTF-8.
func encodeURI(v *vm.VM, s *vm.String, keep string) (*vm.String, error) {
	const hex = "0123456789ABCDEF"
	units := s.Units()
	var b strings.Builder
	var buf [utf8.UTFMax]byte
	for i := 0; i < len(units); i++ {
		c := units[i]
		if c < 0x80 && strings.IndexByte(keep, byte(c)) >= 0 {
			b.WriteByte(byte(c))
			continue
		}
		r := rune(c)
		switch {
		case c >= 0xDC00 && c <= 0xDFFF:
			return nil, uriMalformed(v)
		case c >= 0xD800 && c <= 0xDBFF:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return nil, uriMalformed(v)
			}
			r = (r-0xD800)<<10 + rune(units[i+1]-0xDC00) + 0x10000
			i++
		}
		n := utf8.EncodeRune(buf[:], r)
		for _, x := range buf[:n] {
			b.WriteByte('%')
			b.WriteByte(hex[x>>4])
			b.WriteByte(hex[x&0xF])
		}
	}
	return vm.NewString(b.String()), nil
}

// decodeURI reverses encodeURI, leaving escapes of characters in preserve
// untouched.
func decodeURI(v *vm.VM, s *vm.String, preserve string) (*vm.String, error) {
	units := s.Units()
	var b vm.StringBuilder
	hexByte := func(i int) (byte, bool) {
		if i+2 >= len(units) || units[i] != '%' {
			return 0, false
		}
		hi, lo := hexDigit(units[i+1]), hexDigit(units[i+2])
		if hi < 0 || lo < 0 {
			return 0, false
		}
		return byte(hi<<4 | lo), true
	}
	for i := 0; i < len(units); i++ {
		if units[i] != '%' {
			b.WriteUnit(units[i])
			continue
		}
		start := i
		first, ok := hexByte(i)
		if !ok {
			return nil, uriMalformed(v)
		}
		i += 2
		if first < 0x80 {
			if strings.IndexByte(preserve, first) >= 0 {
				for _, u := range units[start : i+1] {
					b.WriteUnit(u)
				}
			} else {
				b.WriteUnit(uint16(first))
			}
			continue
		}
		var n int
		switch {
		case first&0xE0 == 0xC0:
			n = 2
		case first&0xF0 == 0xE0:
			n = 3
		case first&0xF8 == 0xF0:
			n = 4
		default:
			return nil, uriMalformed(v)
		}
		seq := []byte{first}
		for k := 1; k < n; k++ {
			x, ok := hexByte(i + 1)
			if !ok || x&0xC0 != 0x80 {
				return nil, uriMalformed(v)
			}
			seq = append(seq, x)
			i += 3
		}
		r, size := utf8.DecodeRune(seq)
		if r == utf8.RuneError || size != n {
			return nil, uriMalformed(v)
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// cloner implements structuredClone for plain data, preserving shared
// and cyclic references.
type cloner struct {
	v     *vm.VM
	realm *vm.Realm
	memo  map[*vm.Object]*vm.Object
}

func (c *cloner) dataCloneError(what string) error {
	e := c.v.NewError(vm.ErrError, what+" could not be cloned.")
	e.DefineOwn(vm.StrKey("name"), str("DataCloneError"), vm.MethodFlags)
	return c.v.Throw(vm.ObjectValue(e))
}

func (c *cloner) clone(val vm.Value) (vm.Value, error) {
	switch {
	case val.IsSymbol():
		return vm.Undefined, c.dataCloneError(vm.Inspect(val))
	case !val.IsObject():
		return val, nil
	}
	o := val.AsObject()
	if done, ok := c.memo[o]; ok {
		return vm.ObjectValue(done), nil
	}
	v := c.v
	if p, ok := o.PrimitiveValue(); ok {
		if p.IsSymbol() {
			return vm.Undefined, c.dataCloneError(vm.Inspect(val))
		}
		w, err := v.ToObject(p)
		if err != nil {
			return vm.Undefined, err
		}
		c.memo[o] = w
		return vm.ObjectValue(w), nil
	}
	if o.IsCallable() {
		return vm.Undefined, c.dataCloneError(vm.Inspect(val))
	}

	switch o.Class() {
	case vm.ClassDate:
		d := v.NewObjectClass(vm.ClassDate, c.realm.DatePrototype)
		d.Internal = o.Internal
		c.memo[o] = d
		return vm.ObjectValue(d), nil
	case vm.ClassArrayBuffer:
		return c.buffer(o)
	case vm.ClassTypedArray:
		ta := o.Internal.(*vm.TypedArray)
		if ta.IsOutOfBounds() {
			return vm.Undefined, c.dataCloneError("An out of bounds TypedArray")
		}
		bufVal, err := c.buffer(ta.Buffer)
		if err != nil {
			return vm.Undefined, err
		}
		length := ta.Length()
		if ta.IsLengthTracking() {
			length = -1
		}
		nt := vm.NewTypedArrayData(ta.Kind, bufVal.AsObject(), ta.ByteOffset, length)
		out := v.NewTypedArrayObject(nt, c.realm.TypedArrayPrototypes[ta.Kind])
		c.memo[o] = out
		return vm.ObjectValue(out), nil
	case vm.ClassMap, vm.ClassSet:
		src := o.Internal.(*vm.OrderedMap)
		proto := c.realm.MapPrototype
		if o.Class() == vm.ClassSet {
			proto = c.realm.SetPrototype
		}
		out := v.NewObjectClass(o.Class(), proto)
		dst := vm.NewOrderedMap()
		out.Internal = dst
		c.memo[o] = out
		var err error
		src.Each(func(k, val vm.Value) bool {
			var ck, cv vm.Value
			if ck, err = c.clone(k); err != nil {
				return false
			}
			if cv, err = c.clone(val); err != nil {
				return false
			}
			dst.Set(ck, cv)
			return true
		})
		return vm.ObjectValue(out), err
	case vm.ClassError:
		return c.error(o)
	case vm.ClassObject, vm.ClassArray:
	default:
		return vm.Undefined, c.dataCloneError(vm.Inspect(val))
	}

	var out *vm.Object
	if o.IsArray() {
		out = v.NewArray()
		n, err := lengthOf(v, o)
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := out.Set(v, vm.StrKey("length"), num(n), vm.ObjectValue(out)); err != nil {
			return vm.Undefined, err
		}
	} else {
		out = v.NewObject()
	}
	c.memo[o] = out
	keys, err := enumerableOwn(v, o, "keys")
	if err != nil {
		return vm.Undefined, err
	}
	for _, k := range keys {
		key := vm.StringKey(k.AsString())
		pv, err := o.Get(v, key, val)
		if err != nil {
			return vm.Undefined, err
		}
		cv, err := c.clone(pv)
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := v.CreateDataProperty(out, key, cv); err != nil {
			return vm.Undefined, err
		}
	}
	return vm.ObjectValue(out), nil
}

func (c *cloner) buffer(o *vm.Object) (vm.Value, error) {
	if done, ok := c.memo[o]; ok {
		return vm.ObjectValue(done), nil
	}
	data := o.Internal.(*vm.ArrayBufferData)
	if data.Detached {
		return vm.Undefined, c.dataCloneError("A detached ArrayBuffer")
	}
	out := c.v.NewArrayBuffer(nil, len(data.Data), data.MaxByteLength)
	copy(out.Internal.(*vm.ArrayBufferData).Data, data.Data)
	c.memo[o] = out
	return vm.ObjectValue(out), nil
}

func (c *cloner) error(o *vm.Object) (vm.Value, error) {
	v := c.v
	kind := vm.ErrError
	name, err := getProp(v, o, "name")
	if err != nil {
		return vm.Undefined, err
	}
	if name.IsString() {
		if k, ok := vm.ErrorKindByName(name.AsString().String()); ok {
			kind = k
		}
	}
	out := v.NewObjectClass(vm.ClassError, c.realm.ErrorPrototypes[kind])
	c.memo[o] = out
	for _, field := range []string{"message", "stack", "cause"} {
		desc, ok, err := o.GetOwnProperty(v, vm.StrKey(field))
		if err != nil {
			return vm.Undefined, err
		}
		if !ok || desc.IsAccessor() {
			continue
		}
		fv := desc.Value
		if field == "message" || field == "stack" {
			s, err := v.ToString(fv)
			if err != nil {
				return vm.Undefined, err
			}
			fv = vm.StringValue(s)
		} else if fv, err = c.clone(fv); err != nil {
			return vm.Undefined, err
		}
		out.DefineOwn(vm.StrKey(field), fv, vm.MethodFlags)
	}
	return vm.ObjectValue(out), nil
}
