package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

// ErrorInitializer installs Error and the native error constructors,
// AggregateError and SuppressedError.
type ErrorInitializer struct{}

func (e *ErrorInitializer) Name() string {
	return "Error"
}

func (e *ErrorInitializer) Priority() int {
	return PriorityError
}

func (e *ErrorInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm

	base := newErrorConstructor(v, vm.ErrError, nil)
	errProto := realm.ErrorPrototypes[vm.ErrError]
	method(v, errProto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, this, "Error.prototype.toString")
		if err != nil {
			return vm.Undefined, err
		}
		part := func(name, def string) (string, error) {
			val, err := getProp(v, o, name)
			if err != nil || val.IsUndefined() {
				return def, err
			}
			return v.ToGoString(val)
		}
		name, err := part("name", "Error")
		if err != nil {
			return vm.Undefined, err
		}
		msg, err := part("message", "")
		if err != nil {
			return vm.Undefined, err
		}
		switch {
		case name == "":
			return str(msg), nil
		case msg == "":
			return str(name), nil
		}
		return str(name + ": " + msg), nil
	})
	method(v, base, "captureStackTrace", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, vm.Arg(args, 0), "Error.captureStackTrace")
		if err != nil {
			return vm.Undefined, err
		}
		v.AttachStack(o, "Error", "")
		return vm.Undefined, nil
	})
	method(v, base, "isError", 1, func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0).AsObject()
		return vm.BooleanValue(o != nil && o.Class() == vm.ClassError), nil
	})
	if err := defineGlobal(ctx, "Error", base); err != nil {
		return err
	}

	for _, kind := range []vm.ErrorKind{
		vm.ErrTypeError, vm.ErrRangeError, vm.ErrReferenceError, vm.ErrSyntaxError,
		vm.ErrEvalError, vm.ErrURIError, vm.ErrInternalError,
	} {
		if err := defineGlobal(ctx, kind.String(), newErrorConstructor(v, kind, base)); err != nil {
			return err
		}
	}

	aggregate := newErrorConstructorWith(v, vm.ErrAggregateError, base, 2,
		func(v *vm.VM, o *vm.Object, args []vm.Value) error {
			if err := initErrorObject(v, o, vm.ErrAggregateError, vm.Arg(args, 1), vm.Arg(args, 2)); err != nil {
				return err
			}
			errs, err := v.IterableToList(vm.Arg(args, 0))
			if err != nil {
				return err
			}
			o.DefineOwn(vm.StrKey("errors"), vm.ObjectValue(v.NewArrayFromValues(errs)), vm.MethodFlags)
			return nil
		})
	if err := defineGlobal(ctx, "AggregateError", aggregate); err != nil {
		return err
	}

	suppressed := newErrorConstructorWith(v, vm.ErrSuppressedError, base, 3,
		func(v *vm.VM, o *vm.Object, args []vm.Value) error {
			if err := initErrorObject(v, o, vm.ErrSuppressedError, vm.Arg(args, 2), vm.Undefined); err != nil {
				return err
			}
			o.DefineOwn(vm.StrKey("error"), vm.Arg(args, 0), vm.MethodFlags)
			o.DefineOwn(vm.StrKey("suppressed"), vm.Arg(args, 1), vm.MethodFlags)
			return nil
		})
	return defineGlobal(ctx, "SuppressedError", suppressed)
}

// initErrorObject implements the shared steps of the error constructors:
// the message, the cause option and the stack.
func initErrorObject(v *vm.VM, o *vm.Object, kind vm.ErrorKind, message, options vm.Value) error {
	msg := ""
	if !message.IsUndefined() {
		s, err := v.ToGoString(message)
		if err != nil {
			return err
		}
		msg = s
		o.DefineOwn(vm.StrKey("message"), str(msg), vm.MethodFlags)
	}
	if opts := options.AsObject(); opts != nil {
		has, err := opts.HasProperty(v, vm.StrKey("cause"))
		if err != nil {
			return err
		}
		if has {
			cause, err := getProp(v, opts, "cause")
			if err != nil {
				return err
			}
			o.DefineOwn(vm.StrKey("cause"), cause, vm.MethodFlags)
		}
	}
	v.AttachStack(o, kind.String(), msg)
	return nil
}

func newErrorConstructor(v *vm.VM, kind vm.ErrorKind, parent *vm.Object) *vm.Object {
	return newErrorConstructorWith(v, kind, parent, 1, func(v *vm.VM, o *vm.Object, args []vm.Value) error {
		return initErrorObject(v, o, kind, vm.Arg(args, 0), vm.Arg(args, 1))
	})
}

// newErrorConstructorWith creates the constructor for kind; init fills in
// the freshly allocated error object.
func newErrorConstructorWith(v *vm.VM, kind vm.ErrorKind, parent *vm.Object, length int, init func(v *vm.VM, o *vm.Object, args []vm.Value) error) *vm.Object {
	proto := v.Realm().ErrorPrototypes[kind]
	var ctor *vm.Object
	construct := func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
		if newTarget == nil {
			newTarget = ctor
		}
		o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassError, func(r *vm.Realm) *vm.Object {
			return r.ErrorPrototypes[kind]
		})
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(o), init(v, o, args)
	}
	ctor = constructor(v, kind.String(), length, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return construct(v, args, nil)
		},
		construct)
	if parent != nil {
		ctor.SetPrototypeDirect(parent)
	}
	proto.DefineOwn(vm.StrKey("name"), str(kind.String()), vm.MethodFlags)
	proto.DefineOwn(vm.StrKey("message"), str(""), vm.MethodFlags)
	return ctor
}
