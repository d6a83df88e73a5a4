package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string {
	return "Number"
}

func (n *NumberInitializer) Priority() int {
	return PriorityNumber
}

func (n *NumberInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.NumberPrototype

	toNumber := func(v *vm.VM, args []vm.Value) (float64, error) {
		if len(args) == 0 {
			return 0, nil
		}
		prim, err := v.ToNumeric(args[0])
		if err != nil {
			return 0, err
		}
		if prim.IsBigInt() {
			return vm.BigIntToNumber(prim.AsBigInt()), nil
		}
		return prim.AsNumber(), nil
	}
	ctor := constructor(v, "Number", 1, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			f, err := toNumber(v, args)
			return num(f), err
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			f, err := toNumber(v, args)
			if err != nil {
				return vm.Undefined, err
			}
			p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.NumberPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(v.NewPrimitiveWrapper(vm.ClassNumber, p, num(f))), nil
		})

	constant(ctor, "EPSILON", num(math.Nextafter(1, 2)-1))
	constant(ctor, "MAX_SAFE_INTEGER", num(maxSafeInteger))
	constant(ctor, "MIN_SAFE_INTEGER", num(-maxSafeInteger))
	constant(ctor, "MAX_VALUE", num(math.MaxFloat64))
	constant(ctor, "MIN_VALUE", num(math.SmallestNonzeroFloat64))
	constant(ctor, "NaN", vm.NaN)
	constant(ctor, "NEGATIVE_INFINITY", num(math.Inf(-1)))
	constant(ctor, "POSITIVE_INFINITY", num(math.Inf(1)))

	predicate := func(name string, test func(f float64) bool) {
		method(v, ctor, name, 1, func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			a := vm.Arg(args, 0)
			return vm.BooleanValue(a.IsNumber() && test(a.AsNumber())), nil
		})
	}
	predicate("isFinite", func(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) })
	predicate("isInteger", isIntegral)
	predicate("isNaN", math.IsNaN)
	predicate("isSafeInteger", func(f float64) bool { return isIntegral(f) && math.Abs(f) <= maxSafeInteger })

	// parseInt and parseFloat are shared with the global object.
	parseFloat := method(v, ctor, "parseFloat", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := v.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return num(vm.ParseFloatPrefix(s)), nil
	})
	parseInt := method(v, ctor, "parseInt", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := v.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		radix, err := v.ToInt32(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return num(vm.ParseIntPrefix(s, int(radix))), nil
	})
	realm.SetIntrinsic("parseFloat", parseFloat)
	realm.SetIntrinsic("parseInt", parseInt)

	thisNumber := func(v *vm.VM, this vm.Value, name string) (float64, error) {
		if this.IsNumber() {
			return this.AsNumber(), nil
		}
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassNumber {
			p, _ := o.PrimitiveValue()
			return p.AsNumber(), nil
		}
		return 0, v.NewTypeErrorf("Number.prototype.%s requires that 'this' be a Number", name)
	}

	// digitsMethod covers toFixed, toExponential and toPrecision, which
	// share argument validation.
	digitsMethod := func(name string, lo int, format func(f float64, d int, undef bool) string) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := thisNumber(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			arg := vm.Arg(args, 0)
			d, err := v.ToIntegerOrInfinity(arg)
			if err != nil {
				return vm.Undefined, err
			}
			if math.IsNaN(x) || math.IsInf(x, 0) {
				if name == "toFixed" && math.IsNaN(x) {
					return str("NaN"), nil
				}
				if name != "toFixed" {
					return str(vm.NumberToString(x)), nil
				}
			}
			if name == "toPrecision" && arg.IsUndefined() {
				return str(vm.NumberToString(x)), nil
			}
			if d < float64(lo) || d > 100 {
				return vm.Undefined, v.NewRangeErrorf("%s() argument must be between %d and 100", name, lo)
			}
			return str(format(x, int(d), arg.IsUndefined())), nil
		})
	}
	digitsMethod("toFixed", 0, func(f float64, d int, _ bool) string { return vm.FormatFixed(f, d) })
	digitsMethod("toExponential", 0, func(f float64, d int, undef bool) string {
		if undef {
			d = -1
		}
		return vm.FormatExponential(f, d)
	})
	digitsMethod("toPrecision", 1, func(f float64, d int, _ bool) string { return vm.FormatPrecision(f, d) })

	method(v, proto, "toString", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumber(v, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		radix := 10.0
		if r := vm.Arg(args, 0); !r.IsUndefined() {
			if radix, err = v.ToIntegerOrInfinity(r); err != nil {
				return vm.Undefined, err
			}
		}
		if radix < 2 || radix > 36 {
			return vm.Undefined, v.NewRangeError("toString() radix must be between 2 and 36")
		}
		if radix == 10 {
			return str(vm.NumberToString(x)), nil
		}
		return str(vm.NumberToStringRadix(x, int(radix))), nil
	})
	method(v, proto, "toLocaleString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		x, err := thisNumber(v, this, "toLocaleString")
		if err != nil {
			return vm.Undefined, err
		}
		return str(vm.NumberToString(x)), nil
	})
	method(v, proto, "valueOf", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		x, err := thisNumber(v, this, "valueOf")
		return num(x), err
	})

	return defineGlobal(ctx, "Number", ctor)
}

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string {
	return "Boolean"
}

func (b *BooleanInitializer) Priority() int {
	return PriorityBoolean
}

func (b *BooleanInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	proto := ctx.Realm.BooleanPrototype

	ctor := constructor(v, "Boolean", 1, proto,
		func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.BooleanValue(vm.Arg(args, 0).ToBoolean()), nil
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.BooleanPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(v.NewPrimitiveWrapper(vm.ClassBoolean, p, vm.BooleanValue(vm.Arg(args, 0).ToBoolean()))), nil
		})

	thisBoolean := func(v *vm.VM, this vm.Value, name string) (bool, error) {
		if this.IsBoolean() {
			return this.AsBoolean(), nil
		}
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassBoolean {
			p, _ := o.PrimitiveValue()
			return p.AsBoolean(), nil
		}
		return false, v.NewTypeErrorf("Boolean.prototype.%s requires that 'this' be a Boolean", name)
	}
	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		b, err := thisBoolean(v, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		if b {
			return str("true"), nil
		}
		return str("false"), nil
	})
	method(v, proto, "valueOf", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		b, err := thisBoolean(v, this, "valueOf")
		return vm.BooleanValue(b), err
	})

	return defineGlobal(ctx, "Boolean", ctor)
}
