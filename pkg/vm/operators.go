package vm

import (
	"math"
	"math/big"
)

// BinaryOp identifies an arithmetic or bitwise operator for the shared
// numeric path.
type BinaryOp uint8

const (
	OpKindSub BinaryOp = iota
	OpKindMul
	OpKindDiv
	OpKindMod
	OpKindExp
	OpKindShl
	OpKindShr
	OpKindUShr
	OpKindAnd
	OpKindOr
	OpKindXor
)

// Add implements the + operator.
func (vm *VM) Add(a, b Value) (Value, error) {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		return NumberValue(a.num + b.num), nil
	}
	if a.typ == TypeString && b.typ == TypeString {
		return StringValue(a.AsString().Concat(b.AsString())), nil
	}
	pa, err := vm.ToPrimitive(a, HintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := vm.ToPrimitive(b, HintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.typ == TypeString || pb.typ == TypeString {
		sa, err := vm.ToString(pa)
		if err != nil {
			return Undefined, err
		}
		sb, err := vm.ToString(pb)
		if err != nil {
			return Undefined, err
		}
		return StringValue(sa.Concat(sb)), nil
	}
	na, err := vm.ToNumeric(pa)
	if err != nil {
		return Undefined, err
	}
	nb, err := vm.ToNumeric(pb)
	if err != nil {
		return Undefined, err
	}
	if na.typ != nb.typ {
		return Undefined, vm.errMixBigInt()
	}
	if na.typ == TypeBigInt {
		return BigIntValue(new(big.Int).Add(na.AsBigInt(), nb.AsBigInt())), nil
	}
	return NumberValue(na.num + nb.num), nil
}

func (vm *VM) errMixBigInt() error {
	return vm.NewTypeError("Cannot mix BigInt and other types, use explicit conversions")
}

// Arith applies op after ToNumeric on both operands.
func (vm *VM) Arith(op BinaryOp, a, b Value) (Value, error) {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		return NumberValue(numberOp(op, a.num, b.num)), nil
	}
	na, err := vm.ToNumeric(a)
	if err != nil {
		return Undefined, err
	}
	nb, err := vm.ToNumeric(b)
	if err != nil {
		return Undefined, err
	}
	if na.typ != nb.typ {
		return Undefined, vm.errMixBigInt()
	}
	if na.typ == TypeNumber {
		return NumberValue(numberOp(op, na.num, nb.num)), nil
	}
	return vm.bigIntOp(op, na.AsBigInt(), nb.AsBigInt())
}

func numberOp(op BinaryOp, x, y float64) float64 {
	switch op {
	case OpKindSub:
		return x - y
	case OpKindMul:
		return x * y
	case OpKindDiv:
		return x / y
	case OpKindMod:
		if y == 0 || math.IsInf(x, 0) || math.IsNaN(x) || math.IsNaN(y) {
			return math.NaN()
		}
		if math.IsInf(y, 0) {
			return x
		}
		if x == 0 {
			return x
		}
		r := math.Mod(x, y)
		if r == 0 {
			return math.Copysign(0, x)
		}
		return r
	case OpKindExp:
		return Exponentiate(x, y)
	case OpKindShl:
		return float64(ToInt32F(x) << (ToUint32F(y) & 31))
	case OpKindShr:
		return float64(ToInt32F(x) >> (ToUint32F(y) & 31))
	case OpKindUShr:
		return float64(ToUint32F(x) >> (ToUint32F(y) & 31))
	case OpKindAnd:
		return float64(ToInt32F(x) & ToInt32F(y))
	case OpKindOr:
		return float64(ToInt32F(x) | ToInt32F(y))
	case OpKindXor:
		return float64(ToInt32F(x) ^ ToInt32F(y))
	}
	return math.NaN()
}

// Exponentiate implements Number::exponentiate, which differs from
// math.Pow for a base of ±1 with an infinite exponent and NaN exponents.
func Exponentiate(x, y float64) float64 {
	if math.IsNaN(y) {
		return math.NaN()
	}
	if (x == 1 || x == -1) && math.IsInf(y, 0) {
		return math.NaN()
	}
	return math.Pow(x, y)
}

var maxShift = big.NewInt(1 << 30)

func (vm *VM) bigIntOp(op BinaryOp, x, y *big.Int) (Value, error) {
	r := new(big.Int)
	switch op {
	case OpKindSub:
		r.Sub(x, y)
	case OpKindMul:
		r.Mul(x, y)
	case OpKindDiv:
		if y.Sign() == 0 {
			return Undefined, vm.NewRangeError("Division by zero")
		}
		r.Quo(x, y)
	case OpKindMod:
		if y.Sign() == 0 {
			return Undefined, vm.NewRangeError("Division by zero")
		}
		r.Rem(x, y)
	case OpKindExp:
		if y.Sign() < 0 {
			return Undefined, vm.NewRangeError("Exponent must be non-negative")
		}
		if y.Cmp(maxShift) > 0 && x.CmpAbs(big.NewInt(1)) > 0 {
			return Undefined, vm.NewRangeError("Maximum BigInt size exceeded")
		}
		r.Exp(x, y, nil)
	case OpKindShl, OpKindShr:
		if y.CmpAbs(maxShift) > 0 {
			if (op == OpKindShl) == (y.Sign() > 0) {
				return Undefined, vm.NewRangeError("Maximum BigInt size exceeded")
			}
			if x.Sign() < 0 {
				return BigIntValue(big.NewInt(-1)), nil
			}
			return BigIntValue(new(big.Int)), nil
		}
		n := y.Int64()
		if op == OpKindShr {
			n = -n
		}
		if n >= 0 {
			r.Lsh(x, uint(n))
		} else {
			r.Rsh(x, uint(-n))
		}
	case OpKindUShr:
		return Undefined, vm.NewTypeError("BigInts have no unsigned right shift, use >> instead")
	case OpKindAnd:
		r.And(x, y)
	case OpKindOr:
		r.Or(x, y)
	case OpKindXor:
		r.Xor(x, y)
	}
	return BigIntValue(r), nil
}

// Negate implements unary minus.
func (vm *VM) Negate(v Value) (Value, error) {
	n, err := vm.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	if n.typ == TypeBigInt {
		return BigIntValue(new(big.Int).Neg(n.AsBigInt())), nil
	}
	return NumberValue(-n.num), nil
}

// BitNot implements ~.
func (vm *VM) BitNot(v Value) (Value, error) {
	n, err := vm.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	if n.typ == TypeBigInt {
		return BigIntValue(new(big.Int).Not(n.AsBigInt())), nil
	}
	return NumberValue(float64(^ToInt32F(n.num))), nil
}

// Increment adds delta (±1) to a numeric value.
func (vm *VM) Increment(v Value, delta int) (Value, error) {
	if v.typ == TypeNumber {
		return NumberValue(v.num + float64(delta)), nil
	}
	if v.typ == TypeBigInt {
		return BigIntValue(new(big.Int).Add(v.AsBigInt(), big.NewInt(int64(delta)))), nil
	}
	return Undefined, vm.NewTypeError("increment of non-numeric value")
}

// LessThan implements IsLessThan. The result is undefined (ok=false) when
// either operand is NaN.
func (vm *VM) LessThan(a, b Value, leftFirst bool) (less bool, ok bool, err error) {
	var pa, pb Value
	if leftFirst {
		if pa, err = vm.ToPrimitive(a, HintNumber); err != nil {
			return
		}
		if pb, err = vm.ToPrimitive(b, HintNumber); err != nil {
			return
		}
	} else {
		if pb, err = vm.ToPrimitive(b, HintNumber); err != nil {
			return
		}
		if pa, err = vm.ToPrimitive(a, HintNumber); err != nil {
			return
		}
	}
	if pa.typ == TypeString && pb.typ == TypeString {
		return pa.AsString().Compare(pb.AsString()) < 0, true, nil
	}
	if pa.typ == TypeBigInt && pb.typ == TypeString {
		y, valid := StringToBigInt(pb.AsString().String())
		if !valid {
			return false, false, nil
		}
		return pa.AsBigInt().Cmp(y) < 0, true, nil
	}
	if pa.typ == TypeString && pb.typ == TypeBigInt {
		x, valid := StringToBigInt(pa.AsString().String())
		if !valid {
			return false, false, nil
		}
		return x.Cmp(pb.AsBigInt()) < 0, true, nil
	}
	na, err := vm.ToNumeric(pa)
	if err != nil {
		return false, false, err
	}
	nb, err := vm.ToNumeric(pb)
	if err != nil {
		return false, false, err
	}
	switch {
	case na.typ == TypeNumber && nb.typ == TypeNumber:
		if math.IsNaN(na.num) || math.IsNaN(nb.num) {
			return false, false, nil
		}
		return na.num < nb.num, true, nil
	case na.typ == TypeBigInt && nb.typ == TypeBigInt:
		return na.AsBigInt().Cmp(nb.AsBigInt()) < 0, true, nil
	case na.typ == TypeBigInt:
		c, valid := compareBigIntNumber(na.AsBigInt(), nb.num)
		return c < 0, valid, nil
	default:
		c, valid := compareBigIntNumber(nb.AsBigInt(), na.num)
		return c > 0, valid, nil
	}
}

// compareBigIntNumber compares b with f exactly.
func compareBigIntNumber(b *big.Int, f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	if math.IsInf(f, 1) {
		return -1, true
	}
	if math.IsInf(f, -1) {
		return 1, true
	}
	bf := new(big.Float).SetInt(b)
	return bf.Cmp(big.NewFloat(f)), true
}

// Compare evaluates <, <=, > and >= with op being one of "<", "<=", ">", ">=".
func (vm *VM) Compare(op string, a, b Value) (bool, error) {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		switch op {
		case "<":
			return a.num < b.num, nil
		case "<=":
			return a.num <= b.num, nil
		case ">":
			return a.num > b.num, nil
		default:
			return a.num >= b.num, nil
		}
	}
	switch op {
	case "<":
		r, ok, err := vm.LessThan(a, b, true)
		return ok && r, err
	case ">":
		r, ok, err := vm.LessThan(b, a, false)
		return ok && r, err
	case "<=":
		r, ok, err := vm.LessThan(b, a, false)
		return ok && !r, err
	default:
		r, ok, err := vm.LessThan(a, b, true)
		return ok && !r, err
	}
}

// LooseEquals implements ==.
func (vm *VM) LooseEquals(a, b Value) (bool, error) {
	if a.typ == b.typ {
		return StrictEquals(a, b), nil
	}
	if a.IsNullish() && b.IsNullish() {
		return true, nil
	}
	switch {
	case a.typ == TypeNumber && b.typ == TypeString:
		return a.num == StringToNumber(b.AsString().String()), nil
	case a.typ == TypeString && b.typ == TypeNumber:
		return StringToNumber(a.AsString().String()) == b.num, nil
	case a.typ == TypeBigInt && b.typ == TypeString:
		n, ok := StringToBigInt(b.AsString().String())
		return ok && n.Cmp(a.AsBigInt()) == 0, nil
	case a.typ == TypeString && b.typ == TypeBigInt:
		return vm.LooseEquals(b, a)
	case a.typ == TypeBoolean:
		return vm.LooseEquals(NumberValue(a.num), b)
	case b.typ == TypeBoolean:
		return vm.LooseEquals(a, NumberValue(b.num))
	case b.typ == TypeObject && (a.typ == TypeNumber || a.typ == TypeString || a.typ == TypeBigInt || a.typ == TypeSymbol):
		p, err := vm.ToPrimitive(b, HintDefault)
		if err != nil {
			return false, err
		}
		return vm.LooseEquals(a, p)
	case a.typ == TypeObject && (b.typ == TypeNumber || b.typ == TypeString || b.typ == TypeBigInt || b.typ == TypeSymbol):
		p, err := vm.ToPrimitive(a, HintDefault)
		if err != nil {
			return false, err
		}
		return vm.LooseEquals(p, b)
	case a.typ == TypeBigInt && b.typ == TypeNumber:
		c, ok := compareBigIntNumber(a.AsBigInt(), b.num)
		return ok && c == 0, nil
	case a.typ == TypeNumber && b.typ == TypeBigInt:
		c, ok := compareBigIntNumber(b.AsBigInt(), a.num)
		return ok && c == 0, nil
	}
	return false, nil
}

// InstanceOf implements the instanceof operator.
func (vm *VM) InstanceOf(v, target Value) (bool, error) {
	if !target.IsObject() {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not an object")
	}
	h, err := vm.GetMethod(target, SymKey(SymHasInstance))
	if err != nil {
		return false, err
	}
	if !h.IsUndefined() {
		r, err := vm.Call(h, target, v)
		return r.ToBoolean(), err
	}
	if !target.IsCallable() {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	return vm.OrdinaryHasInstance(target, v)
}

// OrdinaryHasInstance implements the abstract operation of the same name.
func (vm *VM) OrdinaryHasInstance(c, v Value) (bool, error) {
	if !c.IsCallable() {
		return false, nil
	}
	co := c.AsObject()
	if bf, ok := co.Internal.(*BoundFunction); ok {
		return vm.InstanceOf(v, ObjectValue(bf.Target))
	}
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	p, err := co.Get(vm, StrKey("prototype"), c)
	if err != nil {
		return false, err
	}
	proto := p.AsObject()
	if proto == nil {
		return false, vm.NewTypeError("Function has non-object prototype '" + Inspect(p) + "' in instanceof check")
	}
	for {
		o, err = o.GetPrototypeOf(vm)
		if err != nil || o == nil {
			return false, err
		}
		if o == proto {
			return true, nil
		}
	}
}

// HasPropertyOp implements the in operator.
func (vm *VM) HasPropertyOp(key, target Value) (bool, error) {
	o := target.AsObject()
	if o == nil {
		return false, vm.NewTypeErrorf("Cannot use 'in' operator to search for '%s' in %s", DescribeThrown(key), Inspect(target))
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	return o.HasProperty(vm, k)
}
