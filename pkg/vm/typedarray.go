package vm

import (
	"encoding/binary"
	"math"
	"math/big"
)

// TypedArrayKind selects the element type of a typed array.
type TypedArrayKind uint8

const (
	TypedArrayInt8 TypedArrayKind = iota
	TypedArrayUint8
	TypedArrayUint8Clamped
	TypedArrayInt16
	TypedArrayUint16
	TypedArrayInt32
	TypedArrayUint32
	TypedArrayFloat32
	TypedArrayFloat64
	TypedArrayBigInt64
	TypedArrayBigUint64
	NumTypedArrayKinds
)

var typedArrayInfo = [NumTypedArrayKinds]struct {
	name string
	size int
}{
	{"Int8Array", 1}, {"Uint8Array", 1}, {"Uint8ClampedArray", 1},
	{"Int16Array", 2}, {"Uint16Array", 2}, {"Int32Array", 4}, {"Uint32Array", 4},
	{"Float32Array", 4}, {"Float64Array", 8}, {"BigInt64Array", 8}, {"BigUint64Array", 8},
}

func (k TypedArrayKind) String() string  { return typedArrayInfo[k].name }
func (k TypedArrayKind) ElementSize() int { return typedArrayInfo[k].size }
func (k TypedArrayKind) IsBigInt() bool {
	return k == TypedArrayBigInt64 || k == TypedArrayBigUint64
}

// ArrayBufferData is the internal slot set of an ArrayBuffer. A resizable
// buffer has MaxByteLength >= 0.
type ArrayBufferData struct {
	Data          []byte
	Detached      bool
	MaxByteLength int
}

func (b *ArrayBufferData) isResizable() bool { return b.MaxByteLength >= 0 }

// IsResizable reports whether the buffer was created with maxByteLength.
func (b *ArrayBufferData) IsResizable() bool { return b.isResizable() }

// Detach releases the buffer's storage.
func (b *ArrayBufferData) Detach() {
	b.Detached = true
	b.Data = nil
}

// NewArrayBuffer allocates a zeroed buffer.
func (vm *VM) NewArrayBuffer(proto *Object, length, maxLength int) *Object {
	if proto == nil {
		proto = vm.realm.ArrayBufferPrototype
	}
	o := vm.NewObjectClass(ClassArrayBuffer, proto)
	o.Internal = &ArrayBufferData{Data: make([]byte, length), MaxByteLength: maxLength}
	return o
}

// TypedArray is the internal slot set of an integer-indexed exotic object.
type TypedArray struct {
	Kind       TypedArrayKind
	Buffer     *Object
	buffer     *ArrayBufferData
	ByteOffset int
	// fixedLength is the element count unless the array tracks the length
	// of a resizable buffer.
	fixedLength    int
	lengthTracking bool
}

// NewTypedArrayData describes a view over buf. length < 0 requests a
// length-tracking view.
func NewTypedArrayData(kind TypedArrayKind, buf *Object, offset, length int) *TypedArray {
	ta := &TypedArray{Kind: kind, Buffer: buf, buffer: buf.Internal.(*ArrayBufferData), ByteOffset: offset}
	if length < 0 {
		ta.lengthTracking = true
	} else {
		ta.fixedLength = length
	}
	return ta
}

// NewTypedArrayObject wraps ta in an object with the given prototype.
func (vm *VM) NewTypedArrayObject(ta *TypedArray, proto *Object) *Object {
	o := vm.NewObjectClass(ClassTypedArray, proto)
	o.Internal = ta
	return o
}

func (ta *TypedArray) isLengthTracking() bool    { return ta.lengthTracking }
func (ta *TypedArray) BufferData() *ArrayBufferData { return ta.buffer }
func (ta *TypedArray) IsLengthTracking() bool    { return ta.lengthTracking }

// isOutOfBounds implements IsTypedArrayOutOfBounds.
func (ta *TypedArray) isOutOfBounds() bool {
	if ta.buffer.Detached {
		return true
	}
	n := len(ta.buffer.Data)
	if ta.ByteOffset > n {
		return true
	}
	if !ta.lengthTracking && ta.ByteOffset+ta.fixedLength*ta.Kind.ElementSize() > n {
		return true
	}
	return false
}

// IsOutOfBounds reports whether the view no longer fits its buffer.
func (ta *TypedArray) IsOutOfBounds() bool { return ta.isOutOfBounds() }

// Length is the current element count, zero when out of bounds.
func (ta *TypedArray) Length() int {
	if ta.isOutOfBounds() {
		return 0
	}
	if ta.lengthTracking {
		return (len(ta.buffer.Data) - ta.ByteOffset) / ta.Kind.ElementSize()
	}
	return ta.fixedLength
}

// ByteLength is Length times the element size.
func (ta *TypedArray) ByteLength() int { return ta.Length() * ta.Kind.ElementSize() }

// isValidIndex implements IsValidIntegerIndex.
func (ta *TypedArray) isValidIndex(f float64) bool {
	if ta.buffer.Detached || f != math.Trunc(f) || (f == 0 && math.Signbit(f)) {
		return false
	}
	return f >= 0 && f < float64(ta.Length())
}

func (ta *TypedArray) get(f float64) Value {
	if !ta.isValidIndex(f) {
		return Undefined
	}
	return ta.Get(int(f))
}

// Get reads element i, which must be valid.
func (ta *TypedArray) Get(i int) Value {
	off := ta.ByteOffset + i*ta.Kind.ElementSize()
	return GetValueFromBuffer(ta.buffer.Data[off:], ta.Kind, true)
}

// SetNumeric writes an already converted value to element i if it is
// still valid.
func (ta *TypedArray) SetNumeric(i int, v Value) {
	if !ta.isValidIndex(float64(i)) {
		return
	}
	off := ta.ByteOffset + i*ta.Kind.ElementSize()
	SetValueInBuffer(ta.buffer.Data[off:], ta.Kind, v, true)
}

// ToElementValue converts v to the element type: ToBigInt for BigInt
// arrays, ToNumber otherwise.
func (vm *VM) ToElementValue(kind TypedArrayKind, v Value) (Value, error) {
	if kind.IsBigInt() {
		b, err := vm.ToBigInt(v)
		if err != nil {
			return Undefined, err
		}
		return BigIntValue(b), nil
	}
	f, err := vm.ToNumber(v)
	return NumberValue(f), err
}

func (vm *VM) typedArraySetElement(o *Object, idx float64, v Value) error {
	ta := o.Internal.(*TypedArray)
	nv, err := vm.ToElementValue(ta.Kind, v)
	if err != nil {
		return err
	}
	if ta.isValidIndex(idx) {
		ta.SetNumeric(int(idx), nv)
	}
	return nil
}

func (o *Object) typedArrayGetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if idx, ok := key.CanonicalNumericIndex(); ok {
		ta := o.Internal.(*TypedArray)
		if !ta.isValidIndex(idx) {
			return PropertyDescriptor{}, false
		}
		return DataDescriptor(ta.Get(int(idx)), DefaultFlags), true
	}
	return o.ordinaryGetOwnProperty(key)
}

func (vm *VM) typedArrayDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	idx, ok := key.CanonicalNumericIndex()
	if !ok {
		return o.ordinaryDefineOwnProperty(key, desc), nil
	}
	ta := o.Internal.(*TypedArray)
	if !ta.isValidIndex(idx) {
		return false, nil
	}
	if desc.HasConfigurable() && !desc.Configurable ||
		desc.HasEnumerable() && !desc.Enumerable ||
		desc.IsAccessor() ||
		desc.HasWritable() && !desc.Writable {
		return false, nil
	}
	if desc.HasValue() {
		return true, vm.typedArraySetElement(o, idx, desc.Value)
	}
	return true, nil
}

// GetValueFromBuffer decodes one element from b.
func GetValueFromBuffer(b []byte, kind TypedArrayKind, little bool) Value {
	var order binary.ByteOrder = binary.LittleEndian
	if !little {
		order = binary.BigEndian
	}
	switch kind {
	case TypedArrayInt8:
		return IntValue(int(int8(b[0])))
	case TypedArrayUint8, TypedArrayUint8Clamped:
		return IntValue(int(b[0]))
	case TypedArrayInt16:
		return IntValue(int(int16(order.Uint16(b))))
	case TypedArrayUint16:
		return IntValue(int(order.Uint16(b)))
	case TypedArrayInt32:
		return IntValue(int(int32(order.Uint32(b))))
	case TypedArrayUint32:
		return NumberValue(float64(order.Uint32(b)))
	case TypedArrayFloat32:
		return NumberValue(float64(math.Float32frombits(order.Uint32(b))))
	case TypedArrayFloat64:
		return NumberValue(math.Float64frombits(order.Uint64(b)))
	case TypedArrayBigInt64:
		return BigIntValue(big.NewInt(int64(order.Uint64(b))))
	case TypedArrayBigUint64:
		return BigIntValue(new(big.Int).SetUint64(order.Uint64(b)))
	}
	return Undefined
}

// SetValueInBuffer encodes a converted number or BigInt into b.
func SetValueInBuffer(b []byte, kind TypedArrayKind, v Value, little bool) {
	var order binary.ByteOrder = binary.LittleEndian
	if !little {
		order = binary.BigEndian
	}
	switch kind {
	case TypedArrayBigInt64:
		order.PutUint64(b, uint64(ToBigInt64(v.AsBigInt())))
		return
	case TypedArrayBigUint64:
		order.PutUint64(b, ToBigUint64(v.AsBigInt()))
		return
	}
	f := v.AsNumber()
	switch kind {
	case TypedArrayInt8, TypedArrayUint8:
		b[0] = byte(ToInt32F(f))
	case TypedArrayUint8Clamped:
		b[0] = clampUint8(f)
	case TypedArrayInt16, TypedArrayUint16:
		order.PutUint16(b, ToUint16F(f))
	case TypedArrayInt32, TypedArrayUint32:
		order.PutUint32(b, ToUint32F(f))
	case TypedArrayFloat32:
		order.PutUint32(b, math.Float32bits(float32(f)))
	case TypedArrayFloat64:
		order.PutUint64(b, math.Float64bits(f))
	}
}

// clampUint8 implements ToUint8Clamp: round half to even within [0, 255].
func clampUint8(f float64) byte {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return byte(math.RoundToEven(f))
}

// DataViewData is the internal slot set of a DataView.
type DataViewData struct {
	Buffer         *Object
	buffer         *ArrayBufferData
	ByteOffset     int
	byteLength     int
	lengthTracking bool
}

// NewDataViewData describes a view; byteLength < 0 tracks the buffer.
func NewDataViewData(buf *Object, offset, byteLength int) *DataViewData {
	d := &DataViewData{Buffer: buf, buffer: buf.Internal.(*ArrayBufferData), ByteOffset: offset}
	if byteLength < 0 {
		d.lengthTracking = true
	} else {
		d.byteLength = byteLength
	}
	return d
}

// IsOutOfBounds implements IsViewOutOfBounds.
func (d *DataViewData) IsOutOfBounds() bool {
	if d.buffer.Detached {
		return true
	}
	n := len(d.buffer.Data)
	if d.ByteOffset > n {
		return true
	}
	return !d.lengthTracking && d.ByteOffset+d.byteLength > n
}

// ByteLength is the current view size.
func (d *DataViewData) ByteLength() int {
	if d.lengthTracking {
		return len(d.buffer.Data) - d.ByteOffset
	}
	return d.byteLength
}

// Bytes returns the viewed region of the buffer.
func (d *DataViewData) Bytes() []byte {
	return d.buffer.Data[d.ByteOffset : d.ByteOffset+d.ByteLength()]
}
