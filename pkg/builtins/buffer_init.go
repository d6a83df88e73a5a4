package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

// maxBufferLength bounds a single ArrayBuffer allocation.
const maxBufferLength = 1 << 31

type ArrayBufferInitializer struct{}

func (a *ArrayBufferInitializer) Name() string {
	return "ArrayBuffer"
}

func (a *ArrayBufferInitializer) Priority() int {
	return PriorityBuffers
}

func (a *ArrayBufferInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.ArrayBufferPrototype

	ctor := constructor(v, "ArrayBuffer", 1, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor ArrayBuffer requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			length, err := v.ToIndex(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			maxLength, err := maxByteLengthOption(v, vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			if maxLength >= 0 && length > maxLength {
				return vm.Undefined, v.NewRangeError("Invalid array buffer length")
			}
			p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.ArrayBufferPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			if length > maxBufferLength || maxLength > maxBufferLength {
				return vm.Undefined, v.NewRangeError("Array buffer allocation failed")
			}
			return vm.ObjectValue(v.NewArrayBuffer(p, length, maxLength)), nil
		})
	speciesGetter(v, ctor)
	method(v, ctor, "isView", 1, func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0).AsObject()
		return vm.BooleanValue(o != nil && (o.Class() == vm.ClassTypedArray || o.Class() == vm.ClassDataView)), nil
	})

	getter(v, proto, "byteLength", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		_, b, err := thisBuffer(v, this, "byteLength")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(len(b.Data)), nil
	})
	getter(v, proto, "maxByteLength", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		_, b, err := thisBuffer(v, this, "maxByteLength")
		if err != nil {
			return vm.Undefined, err
		}
		switch {
		case b.Detached:
			return vm.IntValue(0), nil
		case b.IsResizable():
			return vm.IntValue(b.MaxByteLength), nil
		}
		return vm.IntValue(len(b.Data)), nil
	})
	getter(v, proto, "resizable", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		_, b, err := thisBuffer(v, this, "resizable")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(b.IsResizable()), nil
	})
	getter(v, proto, "detached", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		_, b, err := thisBuffer(v, this, "detached")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(b.Detached), nil
	})

	method(v, proto, "slice", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, b, err := thisBuffer(v, this, "slice")
		if err != nil {
			return vm.Undefined, err
		}
		if b.Detached {
			return vm.Undefined, v.NewTypeError("Cannot perform ArrayBuffer.prototype.slice on a detached ArrayBuffer")
		}
		length := float64(len(b.Data))
		first, err := relativeIndex(v, vm.Arg(args, 0), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 1), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		newLen := math.Max(final-first, 0)
		c, err := v.SpeciesConstructor(o, ctor)
		if err != nil {
			return vm.Undefined, err
		}
		res, err := v.Construct(c, []vm.Value{num(newLen)}, vm.Undefined)
		if err != nil {
			return vm.Undefined, err
		}
		ro, rb, err := thisBuffer(v, res, "slice")
		if err != nil {
			return vm.Undefined, err
		}
		switch {
		case rb.Detached:
			return vm.Undefined, v.NewTypeError("ArrayBuffer subclass returned a detached ArrayBuffer")
		case ro == o:
			return vm.Undefined, v.NewTypeError("ArrayBuffer subclass returned this from species constructor")
		case float64(len(rb.Data)) < newLen:
			return vm.Undefined, v.NewTypeError("ArrayBuffer subclass returned a buffer that is too small")
		case b.Detached:
			return vm.Undefined, v.NewTypeError("Cannot perform ArrayBuffer.prototype.slice on a detached ArrayBuffer")
		}
		end := int(math.Min(final, float64(len(b.Data))))
		if start := int(first); start < end {
			copy(rb.Data, b.Data[start:end])
		}
		return res, nil
	})

	method(v, proto, "resize", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, b, err := thisBuffer(v, this, "resize")
		if err != nil {
			return vm.Undefined, err
		}
		if !b.IsResizable() {
			return vm.Undefined, v.NewTypeError("Method ArrayBuffer.prototype.resize called on incompatible receiver #<ArrayBuffer>")
		}
		n, err := v.ToIndex(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if b.Detached {
			return vm.Undefined, v.NewTypeError("Cannot perform ArrayBuffer.prototype.resize on a detached ArrayBuffer")
		}
		if n > b.MaxByteLength {
			return vm.Undefined, v.NewRangeError("ArrayBuffer.prototype.resize: Invalid length parameter")
		}
		b.Data = resizeBytes(b.Data, n)
		return vm.Undefined, nil
	})

	transfer := func(name string, preserve bool) {
		method(v, proto, name, 0, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			_, b, err := thisBuffer(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			n := len(b.Data)
			if l := vm.Arg(args, 0); !l.IsUndefined() {
				if n, err = v.ToIndex(l); err != nil {
					return vm.Undefined, err
				}
			}
			if b.Detached {
				return vm.Undefined, v.NewTypeErrorf("Cannot perform ArrayBuffer.prototype.%s on a detached ArrayBuffer", name)
			}
			maxLength := -1
			if preserve && b.IsResizable() {
				maxLength = b.MaxByteLength
				if n > maxLength {
					return vm.Undefined, v.NewRangeErrorf("ArrayBuffer.prototype.%s: Invalid length parameter", name)
				}
			}
			if n > maxBufferLength {
				return vm.Undefined, v.NewRangeError("Array buffer allocation failed")
			}
			out := v.NewArrayBuffer(realm.ArrayBufferPrototype, 0, maxLength)
			out.Internal.(*vm.ArrayBufferData).Data = resizeBytes(b.Data, n)
			b.Detach()
			return vm.ObjectValue(out), nil
		})
	}
	transfer("transfer", true)
	transfer("transferToFixedLength", false)
	toStringTag(proto, "ArrayBuffer")

	return defineGlobal(ctx, "ArrayBuffer", ctor)
}

func thisBuffer(v *vm.VM, this vm.Value, name string) (*vm.Object, *vm.ArrayBufferData, error) {
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassArrayBuffer {
		if b, ok := o.Internal.(*vm.ArrayBufferData); ok {
			return o, b, nil
		}
	}
	return nil, nil, v.NewTypeErrorf("Method ArrayBuffer.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
}

// maxByteLengthOption reads options.maxByteLength, returning -1 when the
// buffer is not resizable.
func maxByteLengthOption(v *vm.VM, options vm.Value) (int, error) {
	o := options.AsObject()
	if o == nil {
		return -1, nil
	}
	m, err := getProp(v, o, "maxByteLength")
	if err != nil || m.IsUndefined() {
		return -1, err
	}
	return v.ToIndex(m)
}

// resizeBytes returns a copy of b truncated or zero-extended to n bytes.
func resizeBytes(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

type DataViewInitializer struct{}

func (d *DataViewInitializer) Name() string {
	return "DataView"
}

func (d *DataViewInitializer) Priority() int {
	return PriorityBuffers
}

func (d *DataViewInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	proto := ctx.Realm.DataViewPrototype

	ctor := constructor(v, "DataView", 1, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor DataView requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			bo, b, err := thisBuffer(v, vm.Arg(args, 0), "DataView")
			if err != nil {
				return vm.Undefined, v.NewTypeError("First argument to DataView constructor must be an ArrayBuffer")
			}
			offset, err := v.ToIndex(vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			if b.Detached {
				return vm.Undefined, v.NewTypeError("Cannot perform DataView constructor on a detached ArrayBuffer")
			}
			bufLen := len(b.Data)
			if offset > bufLen {
				return vm.Undefined, v.NewRangeErrorf("Start offset %d is outside the bounds of the buffer", offset)
			}
			viewLen := -1
			if l := vm.Arg(args, 2); !l.IsUndefined() {
				if viewLen, err = v.ToIndex(l); err != nil {
					return vm.Undefined, err
				}
				if offset+viewLen > bufLen {
					return vm.Undefined, v.NewRangeErrorf("Invalid DataView length %d", viewLen)
				}
			} else if !b.IsResizable() {
				viewLen = bufLen - offset
			}
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassDataView, func(r *vm.Realm) *vm.Object { return r.DataViewPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			// The prototype lookup may have run script that shrank or
			// detached the buffer.
			if b.Detached {
				return vm.Undefined, v.NewTypeError("Cannot perform DataView constructor on a detached ArrayBuffer")
			}
			if offset > len(b.Data) || viewLen >= 0 && offset+viewLen > len(b.Data) {
				return vm.Undefined, v.NewRangeError("Invalid DataView length")
			}
			o.Internal = vm.NewDataViewData(bo, offset, viewLen)
			return vm.ObjectValue(o), nil
		})

	thisView := func(v *vm.VM, this vm.Value, name string) (*vm.DataViewData, error) {
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassDataView {
			if d, ok := o.Internal.(*vm.DataViewData); ok {
				return d, nil
			}
		}
		return nil, v.NewTypeErrorf("Method DataView.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
	}
	getter(v, proto, "buffer", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		d, err := thisView(v, this, "buffer")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(d.Buffer), nil
	})
	getter(v, proto, "byteLength", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		d, err := thisView(v, this, "byteLength")
		if err != nil {
			return vm.Undefined, err
		}
		if d.IsOutOfBounds() {
			return vm.Undefined, v.NewTypeError("Cannot perform DataView.prototype.byteLength on a detached or out-of-bounds ArrayBuffer")
		}
		return vm.IntValue(d.ByteLength()), nil
	})
	getter(v, proto, "byteOffset", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		d, err := thisView(v, this, "byteOffset")
		if err != nil {
			return vm.Undefined, err
		}
		if d.IsOutOfBounds() {
			return vm.Undefined, v.NewTypeError("Cannot perform DataView.prototype.byteOffset on a detached or out-of-bounds ArrayBuffer")
		}
		return vm.IntValue(d.ByteOffset), nil
	})

	// viewIndex validates a get or set of size bytes at the requested
	// index and returns the bytes it covers.
	viewIndex := func(v *vm.VM, d *vm.DataViewData, index, size int, name string) ([]byte, error) {
		if d.IsOutOfBounds() {
			return nil, v.NewTypeErrorf("Cannot perform DataView.prototype.%s on a detached or out-of-bounds ArrayBuffer", name)
		}
		if index+size > d.ByteLength() {
			return nil, v.NewRangeError("Offset is outside the bounds of the DataView")
		}
		return d.Bytes()[index : index+size], nil
	}
	for k := vm.TypedArrayKind(0); k < vm.NumTypedArrayKinds; k++ {
		if k == vm.TypedArrayUint8Clamped {
			continue
		}
		kind := k
		typeName := kind.String()[:len(kind.String())-len("Array")]
		size := kind.ElementSize()
		get, set := "get"+typeName, "set"+typeName
		method(v, proto, get, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			d, err := thisView(v, this, get)
			if err != nil {
				return vm.Undefined, err
			}
			index, err := v.ToIndex(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			little := vm.Arg(args, 1).ToBoolean()
			b, err := viewIndex(v, d, index, size, get)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.GetValueFromBuffer(b, kind, little), nil
		})
		method(v, proto, set, 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			d, err := thisView(v, this, set)
			if err != nil {
				return vm.Undefined, err
			}
			index, err := v.ToIndex(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			val, err := v.ToElementValue(kind, vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			little := vm.Arg(args, 2).ToBoolean()
			b, err := viewIndex(v, d, index, size, set)
			if err != nil {
				return vm.Undefined, err
			}
			vm.SetValueInBuffer(b, kind, val, little)
			return vm.Undefined, nil
		})
	}
	toStringTag(proto, "DataView")

	return defineGlobal(ctx, "DataView", ctor)
}
