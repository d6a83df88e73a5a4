package builtins

import (
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/skua-js/skua/pkg/vm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string {
	return "Math"
}

func (m *MathInitializer) Priority() int {
	return PriorityMath
}

func (m *MathInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	mathObj := v.NewObject()

	constant(mathObj, "E", num(math.E))
	constant(mathObj, "LN10", num(math.Ln10))
	constant(mathObj, "LN2", num(math.Ln2))
	constant(mathObj, "LOG10E", num(math.Log10E))
	constant(mathObj, "LOG2E", num(math.Log2E))
	constant(mathObj, "PI", num(math.Pi))
	constant(mathObj, "SQRT1_2", num(math.Sqrt2/2))
	constant(mathObj, "SQRT2", num(math.Sqrt2))

	unary := func(name string, fn func(float64) float64) {
		method(v, mathObj, name, 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := v.ToNumber(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return num(fn(x)), nil
		})
	}
	unary("abs", math.Abs)
	unary("acos", math.Acos)
	unary("acosh", math.Acosh)
	unary("asin", math.Asin)
	unary("asinh", math.Asinh)
	unary("atan", math.Atan)
	unary("atanh", math.Atanh)
	unary("cbrt", math.Cbrt)
	unary("ceil", math.Ceil)
	unary("cos", math.Cos)
	unary("cosh", math.Cosh)
	unary("exp", math.Exp)
	unary("expm1", math.Expm1)
	unary("floor", math.Floor)
	unary("fround", func(x float64) float64 { return float64(float32(x)) })
	unary("log", math.Log)
	unary("log1p", math.Log1p)
	unary("log10", math.Log10)
	unary("log2", math.Log2)
	unary("round", roundHalfUp)
	unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	})
	unary("sin", math.Sin)
	unary("sinh", math.Sinh)
	unary("sqrt", math.Sqrt)
	unary("tan", math.Tan)
	unary("tanh", math.Tanh)
	unary("trunc", math.Trunc)
	unary("clz32", func(x float64) float64 { return float64(bits.LeadingZeros32(vm.ToUint32F(x))) })

	binary := func(name string, fn func(x, y float64) float64) {
		method(v, mathObj, name, 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := v.ToNumber(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			y, err := v.ToNumber(vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			return num(fn(x, y)), nil
		})
	}
	binary("atan2", math.Atan2)
	binary("pow", vm.Exponentiate)
	binary("imul", func(x, y float64) float64 {
		return float64(vm.ToInt32F(x) * vm.ToInt32F(y))
	})

	// variadic converts every argument before folding, as max, min and
	// hypot must.
	variadic := func(name string, length int, fold func(xs []float64) float64) {
		method(v, mathObj, name, length, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			xs := make([]float64, len(args))
			for i, a := range args {
				x, err := v.ToNumber(a)
				if err != nil {
					return vm.Undefined, err
				}
				xs[i] = x
			}
			return num(fold(xs)), nil
		})
	}
	variadic("max", 2, func(xs []float64) float64 {
		r := math.Inf(-1)
		for _, x := range xs {
			if math.IsNaN(x) {
				return math.NaN()
			}
			if x > r || x == 0 && r == 0 && !math.Signbit(x) {
				r = x
			}
		}
		return r
	})
	variadic("min", 2, func(xs []float64) float64 {
		r := math.Inf(1)
		for _, x := range xs {
			if math.IsNaN(x) {
				return math.NaN()
			}
			if x < r || x == 0 && r == 0 && math.Signbit(x) {
				r = x
			}
		}
		return r
	})
	variadic("hypot", 2, func(xs []float64) float64 {
		sawNaN := false
		for _, x := range xs {
			if math.IsInf(x, 0) {
				return math.Inf(1)
			}
			sawNaN = sawNaN || math.IsNaN(x)
		}
		if sawNaN {
			return math.NaN()
		}
		r := 0.0
		for _, x := range xs {
			r = math.Hypot(r, x)
		}
		return r
	})

	method(v, mathObj, "random", 0, func(_ *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		return num(rand.Float64()), nil
	})
	toStringTag(mathObj, "Math")

	ctx.Realm.SetIntrinsic("Math", mathObj)
	return defineGlobal(ctx, "Math", mathObj)
}

// roundHalfUp rounds to the nearest integer with ties toward +Infinity,
// keeping the sign of zero.
func roundHalfUp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == math.Trunc(x) {
		return x
	}
	if x < 0 && x >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(x + 0.5)
}
