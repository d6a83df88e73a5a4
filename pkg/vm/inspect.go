package vm

// Inspect renders a value for diagnostics without running script code.
func Inspect(v Value) string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeEmpty:
		return "<empty>"
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeNumber:
		return NumberToString(v.num)
	case TypeBigInt:
		return v.AsBigInt().String() + "n"
	case TypeString:
		return v.AsString().String()
	case TypeSymbol:
		return v.AsSymbol().DescriptiveString()
	}
	o := v.AsObject()
	if o.IsCallable() {
		if c := ClosureOf(o); c != nil && c.Template.Kind.IsClassConstructor() {
			return "class " + c.Template.Name
		}
		name := FunctionName(o)
		if name == "" {
			return "function (anonymous)"
		}
		return "function " + name
	}
	if o.class == ClassArray {
		return "[object Array]"
	}
	return objectTag(o)
}

// objectTag returns "#<Name>" where Name is the constructor name found
// on the prototype chain, or the class name.
func objectTag(o *Object) string {
	for p := o; p != nil && p.class != ClassProxy; p = p.proto {
		ctor, ok := p.GetOwnDirect(StrKey("constructor"))
		if !ok || !ctor.IsObject() {
			continue
		}
		if name := FunctionName(ctor.AsObject()); name != "" {
			return "#<" + name + ">"
		}
	}
	return "#<" + o.class.String() + ">"
}
