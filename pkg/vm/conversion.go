package vm

import (
	"math"
	"math/big"
	"strings"
)

// PreferredType is the hint passed to ToPrimitive.
type PreferredType uint8

const (
	HintDefault PreferredType = iota
	HintNumber
	HintString
)

func (h PreferredType) String() string {
	switch h {
	case HintNumber:
		return "number"
	case HintString:
		return "string"
	}
	return "default"
}

// ToPrimitive implements the abstract operation of the same name.
func (vm *VM) ToPrimitive(v Value, hint PreferredType) (Value, error) {
	o := v.AsObject()
	if o == nil {
		return v, nil
	}
	exotic, err := vm.GetMethod(v, SymKey(SymToPrimitive))
	if err != nil {
		return Undefined, err
	}
	if !exotic.IsUndefined() {
		r, err := vm.Call(exotic, v, NewStringValue(hint.String()))
		if err != nil {
			return Undefined, err
		}
		if r.IsObject() {
			return Undefined, vm.NewTypeError("Cannot convert object to primitive value")
		}
		return r, nil
	}
	if hint == HintDefault {
		hint = HintNumber
	}
	return vm.OrdinaryToPrimitive(o, hint)
}

// OrdinaryToPrimitive tries valueOf and toString in hint order.
func (vm *VM) OrdinaryToPrimitive(o *Object, hint PreferredType) (Value, error) {
	names := [2]string{"valueOf", "toString"}
	if hint == HintString {
		names = [2]string{"toString", "valueOf"}
	}
	for _, name := range names {
		m, err := o.Get(vm, StrKey(name), ObjectValue(o))
		if err != nil {
			return Undefined, err
		}
		if m.IsCallable() {
			r, err := vm.Call(m, ObjectValue(o))
			if err != nil {
				return Undefined, err
			}
			if !r.IsObject() {
				return r, nil
			}
		}
	}
	return Undefined, vm.NewTypeError("Cannot convert object to primitive value")
}

// ToNumber implements the abstract operation of the same name.
func (vm *VM) ToNumber(v Value) (float64, error) {
	switch v.typ {
	case TypeNumber:
		return v.num, nil
	case TypeUndefined:
		return math.NaN(), nil
	case TypeNull:
		return 0, nil
	case TypeBoolean:
		return v.num, nil
	case TypeString:
		return StringToNumber(v.AsString().String()), nil
	case TypeSymbol:
		return 0, vm.NewTypeError("Cannot convert a Symbol value to a number")
	case TypeBigInt:
		return 0, vm.NewTypeError("Cannot convert a BigInt value to a number")
	case TypeObject:
		p, err := vm.ToPrimitive(v, HintNumber)
		if err != nil {
			return 0, err
		}
		return vm.ToNumber(p)
	}
	return math.NaN(), nil
}

// ToNumeric returns either a number or a BigInt value.
func (vm *VM) ToNumeric(v Value) (Value, error) {
	if v.typ == TypeNumber || v.typ == TypeBigInt {
		return v, nil
	}
	p, err := vm.ToPrimitive(v, HintNumber)
	if err != nil {
		return Undefined, err
	}
	if p.typ == TypeBigInt {
		return p, nil
	}
	f, err := vm.ToNumber(p)
	return NumberValue(f), err
}

func (vm *VM) ToIntegerOrInfinity(v Value) (float64, error) {
	if v.typ == TypeNumber {
		return ToIntegerOrInfinityF(v.num), nil
	}
	f, err := vm.ToNumber(v)
	return ToIntegerOrInfinityF(f), err
}

func (vm *VM) ToInt32(v Value) (int32, error) {
	if v.typ == TypeNumber {
		return ToInt32F(v.num), nil
	}
	f, err := vm.ToNumber(v)
	return ToInt32F(f), err
}

func (vm *VM) ToUint32(v Value) (uint32, error) {
	if v.typ == TypeNumber {
		return ToUint32F(v.num), nil
	}
	f, err := vm.ToNumber(v)
	return ToUint32F(f), err
}

// ToLength clamps to [0, 2^53-1].
func (vm *VM) ToLength(v Value) (float64, error) {
	f, err := vm.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, nil
	}
	return math.Min(f, 1<<53-1), nil
}

// ToIndex implements the abstract operation used by buffers.
func (vm *VM) ToIndex(v Value) (int, error) {
	if v.IsUndefined() {
		return 0, nil
	}
	f, err := vm.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1<<53-1 {
		return 0, vm.NewRangeError("Invalid index")
	}
	return int(f), nil
}

// ToString implements the abstract operation of the same name.
func (vm *VM) ToString(v Value) (*String, error) {
	switch v.typ {
	case TypeString:
		return v.AsString(), nil
	case TypeNumber:
		return NewString(NumberToString(v.num)), nil
	case TypeUndefined:
		return intern("undefined"), nil
	case TypeNull:
		return intern("null"), nil
	case TypeBoolean:
		if v.num != 0 {
			return intern("true"), nil
		}
		return intern("false"), nil
	case TypeBigInt:
		return NewString(v.AsBigInt().String()), nil
	case TypeSymbol:
		return nil, vm.NewTypeError("Cannot convert a Symbol value to a string")
	case TypeObject:
		p, err := vm.ToPrimitive(v, HintString)
		if err != nil {
			return nil, err
		}
		return vm.ToString(p)
	}
	return intern("undefined"), nil
}

// ToGoString is ToString followed by conversion to a Go string.
func (vm *VM) ToGoString(v Value) (string, error) {
	s, err := vm.ToString(v)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// ToPropertyKey implements the abstract operation of the same name.
func (vm *VM) ToPropertyKey(v Value) (PropertyKey, error) {
	switch v.typ {
	case TypeString:
		return StrKey(v.AsString().String()), nil
	case TypeSymbol:
		return SymKey(v.AsSymbol()), nil
	case TypeNumber:
		if v.num >= 0 && v.num < 1<<32-1 && v.num == math.Trunc(v.num) && !(v.num == 0 && math.Signbit(v.num)) {
			return IndexKey(uint32(v.num)), nil
		}
	case TypeObject:
		p, err := vm.ToPrimitive(v, HintString)
		if err != nil {
			return PropertyKey{}, err
		}
		return vm.ToPropertyKey(p)
	}
	s, err := vm.ToString(v)
	if err != nil {
		return PropertyKey{}, err
	}
	return StringKey(s), nil
}

// ToObject implements the abstract operation of the same name.
func (vm *VM) ToObject(v Value) (*Object, error) {
	r := vm.realm
	switch v.typ {
	case TypeObject:
		return v.AsObject(), nil
	case TypeUndefined, TypeNull, TypeEmpty:
		return nil, vm.NewTypeError("Cannot convert undefined or null to object")
	case TypeBoolean:
		return vm.newPrimitiveWrapper(ClassBoolean, r.BooleanPrototype, v), nil
	case TypeNumber:
		return vm.newPrimitiveWrapper(ClassNumber, r.NumberPrototype, v), nil
	case TypeString:
		return vm.NewStringObject(v.AsString(), r.StringPrototype), nil
	case TypeSymbol:
		return vm.newPrimitiveWrapper(ClassSymbol, r.SymbolPrototype, v), nil
	case TypeBigInt:
		return vm.newPrimitiveWrapper(ClassBigInt, r.BigIntPrototype, v), nil
	}
	return nil, vm.NewTypeError("Cannot convert value to object")
}

func (vm *VM) newPrimitiveWrapper(c Class, proto *Object, v Value) *Object {
	o := vm.NewObjectClass(c, proto)
	o.Internal = v
	return o
}

// NewPrimitiveWrapper creates a Boolean, Number, Symbol or BigInt object.
func (vm *VM) NewPrimitiveWrapper(c Class, proto *Object, v Value) *Object {
	return vm.newPrimitiveWrapper(c, proto, v)
}

// NewStringObject creates a String exotic object.
func (vm *VM) NewStringObject(s *String, proto *Object) *Object {
	o := vm.NewObjectClass(ClassString, proto)
	o.Internal = StringValue(s)
	return o
}

// PrimitiveValue returns the wrapped primitive of a wrapper object.
func (o *Object) PrimitiveValue() (Value, bool) {
	switch o.class {
	case ClassBoolean, ClassNumber, ClassString, ClassSymbol, ClassBigInt:
		return o.Internal.(Value), true
	}
	return Undefined, false
}

// RequireObjectCoercible throws for undefined and null.
func (vm *VM) RequireObjectCoercible(v Value, method string) error {
	if v.IsNullish() {
		return vm.NewTypeError(method + " called on null or undefined")
	}
	return nil
}

// GetV implements GetV: property lookup on any value, boxing primitives
// through their prototype without allocating a wrapper.
func (vm *VM) GetV(v Value, key PropertyKey) (Value, error) {
	if o := v.AsObject(); o != nil {
		return o.Get(vm, key, v)
	}
	var proto *Object
	r := vm.realm
	switch v.typ {
	case TypeString:
		s := v.AsString()
		if idx, ok := key.ArrayIndex(); ok {
			if int64(idx) < int64(s.Length()) {
				return StringValue(s.Substring(int(idx), int(idx)+1)), nil
			}
		} else if key.Is("length") {
			return IntValue(s.Length()), nil
		}
		proto = r.StringPrototype
	case TypeNumber:
		proto = r.NumberPrototype
	case TypeBoolean:
		proto = r.BooleanPrototype
	case TypeSymbol:
		proto = r.SymbolPrototype
	case TypeBigInt:
		proto = r.BigIntPrototype
	default:
		return Undefined, vm.NewTypeErrorf("Cannot read properties of %s (reading '%s')", v.TypeOfNull(), key.String())
	}
	return proto.Get(vm, key, v)
}

// TypeOfNull is like TypeOf but distinguishes null, for messages.
func (v Value) TypeOfNull() string {
	if v.typ == TypeNull {
		return "null"
	}
	return v.TypeOf()
}

// GetMethod returns undefined for a nullish property and throws if the
// property is not callable.
func (vm *VM) GetMethod(v Value, key PropertyKey) (Value, error) {
	f, err := vm.GetV(v, key)
	if err != nil {
		return Undefined, err
	}
	if f.IsNullish() {
		return Undefined, nil
	}
	if !f.IsCallable() {
		return Undefined, vm.NewTypeErrorf("%s is not a function", Inspect(f))
	}
	return f, nil
}

// Invoke calls the method key of v.
func (vm *VM) Invoke(v Value, key PropertyKey, args ...Value) (Value, error) {
	f, err := vm.GetV(v, key)
	if err != nil {
		return Undefined, err
	}
	if !f.IsCallable() {
		return Undefined, vm.NewTypeErrorf("%s is not a function", key.String())
	}
	return vm.Call(f, v, args...)
}

// LengthOfArrayLike reads and clamps o.length.
func (vm *VM) LengthOfArrayLike(o *Object) (float64, error) {
	if o.class == ClassArray {
		return float64(o.length), nil
	}
	l, err := o.Get(vm, StrKey("length"), ObjectValue(o))
	if err != nil {
		return 0, err
	}
	return vm.ToLength(l)
}

// CreateListFromArrayLike implements the abstract operation of the same
// name.
func (vm *VM) CreateListFromArrayLike(v Value) ([]Value, error) {
	o := v.AsObject()
	if o == nil {
		return nil, vm.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	if elems, ok := o.DenseElements(); ok {
		return append([]Value(nil), elems...), nil
	}
	n, err := vm.LengthOfArrayLike(o)
	if err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, vm.NewRangeError("Too many arguments in function call")
	}
	out := make([]Value, int(n))
	for i := range out {
		out[i], err = o.Get(vm, IndexKey(uint32(i)), v)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SpeciesConstructor implements the abstract operation of the same name.
func (vm *VM) SpeciesConstructor(o *Object, def *Object) (Value, error) {
	c, err := o.Get(vm, StrKey("constructor"), ObjectValue(o))
	if err != nil {
		return Undefined, err
	}
	if c.IsUndefined() {
		return ObjectValue(def), nil
	}
	if !c.IsObject() {
		return Undefined, vm.NewTypeError("object.constructor is not an object")
	}
	s, err := c.AsObject().Get(vm, SymKey(SymSpecies), c)
	if err != nil {
		return Undefined, err
	}
	if s.IsNullish() {
		return ObjectValue(def), nil
	}
	if s.IsConstructor() {
		return s, nil
	}
	return Undefined, vm.NewTypeError("object.constructor[Symbol.species] is not a constructor")
}

// CopyDataProperties copies own enumerable properties of src onto target,
// skipping the excluded keys.
func (vm *VM) CopyDataProperties(target *Object, src Value, excluded []PropertyKey) error {
	if src.IsNullish() {
		return nil
	}
	from, err := vm.ToObject(src)
	if err != nil {
		return err
	}
	keys, err := from.OwnPropertyKeys(vm)
	if err != nil {
		return err
	}
next:
	for _, k := range keys {
		for _, e := range excluded {
			if e == k {
				continue next
			}
		}
		desc, ok, err := from.GetOwnProperty(vm, k)
		if err != nil {
			return err
		}
		if !ok || !desc.Enumerable {
			continue
		}
		v, err := from.Get(vm, k, ObjectValue(from))
		if err != nil {
			return err
		}
		if _, err := target.DefineOwnProperty(vm, k, DataDescriptor(v, DefaultFlags)); err != nil {
			return err
		}
	}
	return nil
}

// CreateDataProperty defines an enumerable, writable, configurable data
// property and reports whether that succeeded.
func (vm *VM) CreateDataProperty(o *Object, key PropertyKey, v Value) (bool, error) {
	if o.class == ClassObject && o.extensible() && o.props.get(key) == nil {
		o.props.put(key, v, Undefined, DefaultFlags)
		return true, nil
	}
	return o.DefineOwnProperty(vm, key, DataDescriptor(v, DefaultFlags))
}

// CreateDataPropertyOrThrow is CreateDataProperty that throws on failure.
func (vm *VM) CreateDataPropertyOrThrow(o *Object, key PropertyKey, v Value) error {
	ok, err := vm.CreateDataProperty(o, key, v)
	if err != nil {
		return err
	}
	if !ok {
		return vm.NewTypeErrorf("Cannot define property %s", key.String())
	}
	return nil
}

// DefinePropertyOrThrow calls [[DefineOwnProperty]] and throws on failure.
func (vm *VM) DefinePropertyOrThrow(o *Object, key PropertyKey, desc PropertyDescriptor) error {
	ok, err := o.DefineOwnProperty(vm, key, desc)
	if err != nil {
		return err
	}
	if !ok {
		return vm.NewTypeErrorf("Cannot redefine property: %s", key.String())
	}
	return nil
}

// SetOrThrow performs Set(o, key, v, true).
func (vm *VM) SetOrThrow(o *Object, key PropertyKey, v Value) error {
	ok, err := o.Set(vm, key, v, ObjectValue(o))
	if err != nil {
		return err
	}
	if !ok {
		return vm.NewTypeErrorf("Cannot assign to read only property '%s' of object", key.String())
	}
	return nil
}

// DeleteOrThrow performs DeletePropertyOrThrow.
func (vm *VM) DeleteOrThrow(o *Object, key PropertyKey) error {
	ok, err := o.Delete(vm, key)
	if err != nil {
		return err
	}
	if !ok {
		return vm.NewTypeErrorf("Cannot delete property '%s' of %s", key.String(), Inspect(ObjectValue(o)))
	}
	return nil
}

// HasOwnProperty implements the abstract operation of the same name.
func (vm *VM) HasOwnProperty(o *Object, key PropertyKey) (bool, error) {
	_, ok, err := o.GetOwnProperty(vm, key)
	return ok, err
}

// ToPropertyDescriptor converts a descriptor object.
func (vm *VM) ToPropertyDescriptor(v Value) (PropertyDescriptor, error) {
	var d PropertyDescriptor
	o := v.AsObject()
	if o == nil {
		return d, vm.NewTypeErrorf("Property description must be an object: %s", Inspect(v))
	}
	field := func(name string) (Value, bool, error) {
		key := StrKey(name)
		has, err := o.HasProperty(vm, key)
		if err != nil || !has {
			return Undefined, false, err
		}
		val, err := o.Get(vm, key, v)
		return val, true, err
	}
	if x, ok, err := field("enumerable"); err != nil {
		return d, err
	} else if ok {
		d.SetEnumerable(x.ToBoolean())
	}
	if x, ok, err := field("configurable"); err != nil {
		return d, err
	} else if ok {
		d.SetConfigurable(x.ToBoolean())
	}
	if x, ok, err := field("value"); err != nil {
		return d, err
	} else if ok {
		d.SetValue(x)
	}
	if x, ok, err := field("writable"); err != nil {
		return d, err
	} else if ok {
		d.SetWritable(x.ToBoolean())
	}
	if x, ok, err := field("get"); err != nil {
		return d, err
	} else if ok {
		if !x.IsUndefined() && !x.IsCallable() {
			return d, vm.NewTypeErrorf("Getter must be a function: %s", Inspect(x))
		}
		d.SetGet(x)
	}
	if x, ok, err := field("set"); err != nil {
		return d, err
	} else if ok {
		if !x.IsUndefined() && !x.IsCallable() {
			return d, vm.NewTypeErrorf("Setter must be a function: %s", Inspect(x))
		}
		d.SetSet(x)
	}
	if d.IsAccessor() && d.IsData() {
		return d, vm.NewTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return d, nil
}

// FromPropertyDescriptor converts a descriptor to an object.
func (vm *VM) FromPropertyDescriptor(d PropertyDescriptor) *Object {
	o := vm.NewObject()
	if d.HasValue() {
		o.SetOwn("value", d.Value)
	}
	if d.HasWritable() {
		o.SetOwn("writable", BooleanValue(d.Writable))
	}
	if d.HasGet() {
		o.SetOwn("get", d.Getter)
	}
	if d.HasSet() {
		o.SetOwn("set", d.Setter)
	}
	if d.HasEnumerable() {
		o.SetOwn("enumerable", BooleanValue(d.Enumerable))
	}
	if d.HasConfigurable() {
		o.SetOwn("configurable", BooleanValue(d.Configurable))
	}
	return o
}

// StringToBigInt parses a StringIntegerLiteral; ok is false on syntax
// errors.
func StringToBigInt(s string) (*big.Int, bool) {
	s = TrimJSSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			s = s[2:]
		}
	}
	if base == 10 && (strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-")) {
		if len(s) == 1 || s[1] == '+' || s[1] == '-' {
			return nil, false
		}
	} else if s == "" || s[0] == '+' || s[0] == '-' {
		return nil, false
	}
	if strings.ContainsAny(s, "_") {
		return nil, false
	}
	b, ok := new(big.Int).SetString(s, base)
	return b, ok
}

// ToBigInt implements the abstract operation of the same name.
func (vm *VM) ToBigInt(v Value) (*big.Int, error) {
	p, err := vm.ToPrimitive(v, HintNumber)
	if err != nil {
		return nil, err
	}
	switch p.typ {
	case TypeBigInt:
		return p.AsBigInt(), nil
	case TypeBoolean:
		return big.NewInt(int64(p.num)), nil
	case TypeString:
		b, ok := StringToBigInt(p.AsString().String())
		if !ok {
			return nil, vm.NewSyntaxError("Cannot convert " + p.AsString().String() + " to a BigInt")
		}
		return b, nil
	case TypeNumber:
		return nil, vm.NewTypeError("Cannot convert " + NumberToString(p.num) + " to a BigInt")
	case TypeSymbol:
		return nil, vm.NewTypeError("Cannot convert a Symbol value to a BigInt")
	}
	return nil, vm.NewTypeError("Cannot convert " + p.TypeOfNull() + " to a BigInt")
}

// NumberToBigInt converts an integral number; ok is false otherwise.
func NumberToBigInt(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	b, _ := big.NewFloat(f).Int(nil)
	return b, true
}

// BigIntToNumber rounds to the nearest double.
func BigIntToNumber(b *big.Int) float64 {
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}
