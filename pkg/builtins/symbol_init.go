package builtins

import (
	"math/big"

	"github.com/skua-js/skua/pkg/vm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string {
	return "Symbol"
}

func (s *SymbolInitializer) Priority() int {
	return PrioritySymbol
}

func (s *SymbolInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	proto := ctx.Realm.SymbolPrototype

	ctor := constructor(v, "Symbol", 0, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			var desc *vm.String
			if d := vm.Arg(args, 0); !d.IsUndefined() {
				var err error
				if desc, err = v.ToString(d); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.SymbolValue(vm.NewSymbol(desc)), nil
		},
		func(v *vm.VM, _ []vm.Value, _ *vm.Object) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Symbol is not a constructor")
		})

	for name, sym := range vm.WellKnownSymbols {
		constant(ctor, name, vm.SymbolValue(sym))
	}

	// The registry is shared by every realm of this VM.
	registry := make(map[string]*vm.Symbol)
	method(v, ctor, "for", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := argString(v, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if sym, ok := registry[key.String()]; ok {
			return vm.SymbolValue(sym), nil
		}
		sym := vm.NewSymbol(key)
		sym.Registered = key
		registry[key.String()] = sym
		return vm.SymbolValue(sym), nil
	})
	method(v, ctor, "keyFor", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		a := vm.Arg(args, 0)
		if !a.IsSymbol() {
			return vm.Undefined, v.NewTypeError(vm.Inspect(a) + " is not a symbol")
		}
		if k := a.AsSymbol().Registered; k != nil {
			return vm.StringValue(k), nil
		}
		return vm.Undefined, nil
	})

	thisSymbol := func(v *vm.VM, this vm.Value, name string) (*vm.Symbol, error) {
		if this.IsSymbol() {
			return this.AsSymbol(), nil
		}
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassSymbol {
			p, _ := o.PrimitiveValue()
			return p.AsSymbol(), nil
		}
		return nil, v.NewTypeErrorf("Symbol.prototype.%s requires that 'this' be a Symbol", name)
	}
	getter(v, proto, "description", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		sym, err := thisSymbol(v, this, "description")
		if err != nil || sym.Description == nil {
			return vm.Undefined, err
		}
		return vm.StringValue(sym.Description), nil
	})
	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		sym, err := thisSymbol(v, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		return str(sym.DescriptiveString()), nil
	})
	method(v, proto, "valueOf", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		sym, err := thisSymbol(v, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(sym), nil
	})
	toPrim := v.NewNativeFunction("[Symbol.toPrimitive]", 1, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		sym, err := thisSymbol(v, this, "[Symbol.toPrimitive]")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(sym), nil
	})
	proto.DefineOwn(vm.SymKey(vm.SymToPrimitive), vm.ObjectValue(toPrim), vm.Configurable)
	toStringTag(proto, "Symbol")

	return defineGlobal(ctx, "Symbol", ctor)
}

type BigIntInitializer struct{}

func (b *BigIntInitializer) Name() string {
	return "BigInt"
}

func (b *BigIntInitializer) Priority() int {
	return PriorityBigInt
}

func (b *BigIntInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	proto := ctx.Realm.BigIntPrototype

	ctor := constructor(v, "BigInt", 1, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			prim, err := v.ToPrimitive(vm.Arg(args, 0), vm.HintNumber)
			if err != nil {
				return vm.Undefined, err
			}
			if prim.IsNumber() {
				b, ok := vm.NumberToBigInt(prim.AsNumber())
				if !ok {
					return vm.Undefined, v.NewRangeErrorf("The number %s cannot be converted to a BigInt because it is not an integer", vm.NumberToString(prim.AsNumber()))
				}
				return vm.BigIntValue(b), nil
			}
			b, err := v.ToBigInt(prim)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.BigIntValue(b), nil
		},
		func(v *vm.VM, _ []vm.Value, _ *vm.Object) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("BigInt is not a constructor")
		})

	asN := func(name string, signed bool) {
		method(v, ctor, name, 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			bits, err := v.ToIndex(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			n, err := v.ToBigInt(vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.BigIntValue(wrapBigInt(n, bits, signed)), nil
		})
	}
	asN("asIntN", true)
	asN("asUintN", false)

	thisBigInt := func(v *vm.VM, this vm.Value, name string) (*big.Int, error) {
		if this.IsBigInt() {
			return this.AsBigInt(), nil
		}
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassBigInt {
			p, _ := o.PrimitiveValue()
			return p.AsBigInt(), nil
		}
		return nil, v.NewTypeErrorf("BigInt.prototype.%s requires that 'this' be a BigInt", name)
	}
	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := thisBigInt(v, this, "toString")
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
		return str(n.Text(int(radix))), nil
	})
	method(v, proto, "toLocaleString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		n, err := thisBigInt(v, this, "toLocaleString")
		if err != nil {
			return vm.Undefined, err
		}
		return str(n.String()), nil
	})
	method(v, proto, "valueOf", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		n, err := thisBigInt(v, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BigIntValue(n), nil
	})
	toStringTag(proto, "BigInt")

	return defineGlobal(ctx, "BigInt", ctor)
}

// wrapBigInt reduces n modulo 2^bits, as a two's complement value when
// signed.
func wrapBigInt(n *big.Int, bits int, signed bool) *big.Int {
	if bits == 0 {
		return new(big.Int)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	r := new(big.Int).Mod(n, mod)
	if signed {
		half := new(big.Int).Rsh(mod, 1)
		if r.Cmp(half) >= 0 {
			r.Sub(r, mod)
		}
	}
	return r
}
