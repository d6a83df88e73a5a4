package builtins

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/skua-js/skua/pkg/vm"
)

type ConsoleInitializer struct{}

func (c *ConsoleInitializer) Name() string {
	return "console"
}

func (c *ConsoleInitializer) Priority() int {
	return PriorityConsole // After JSON
}

func (c *ConsoleInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	consoleObj := v.NewObject()

	timers := make(map[string]time.Time)
	counts := make(map[string]int)
	groupIndent := ""

	write := func(w io.Writer, line string) {
		if groupIndent != "" {
			line = groupIndent + strings.ReplaceAll(line, "\n", "\n"+groupIndent)
		}
		fmt.Fprintln(w, line)
	}
	printer := func(name string, w io.Writer) {
		method(v, consoleObj, name, 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			write(w, FormatConsoleArgs(v, args))
			return vm.Undefined, nil
		})
	}
	printer("log", ctx.Stdout)
	printer("info", ctx.Stdout)
	printer("debug", ctx.Stdout)
	printer("error", ctx.Stderr)
	printer("warn", ctx.Stderr)

	label := func(v *vm.VM, args []vm.Value) (string, error) {
		if a := vm.Arg(args, 0); !a.IsUndefined() {
			s, err := v.ToString(a)
			if err != nil {
				return "", err
			}
			return s.String(), nil
		}
		return "default", nil
	}
	method(v, consoleObj, "count", 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(v, args)
		if err != nil {
			return vm.Undefined, err
		}
		counts[l]++
		write(ctx.Stdout, l+": "+strconv.Itoa(counts[l]))
		return vm.Undefined, nil
	})
	method(v, consoleObj, "countReset", 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(v, args)
		if err != nil {
			return vm.Undefined, err
		}
		delete(counts, l)
		return vm.Undefined, nil
	})
	method(v, consoleObj, "time", 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(v, args)
		if err != nil {
			return vm.Undefined, err
		}
		timers[l] = time.Now()
		return vm.Undefined, nil
	})
	method(v, consoleObj, "timeEnd", 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(v, args)
		if err != nil {
			return vm.Undefined, err
		}
		start, ok := timers[l]
		if !ok {
			write(ctx.Stderr, "Timer '"+l+"' does not exist")
			return vm.Undefined, nil
		}
		delete(timers, l)
		write(ctx.Stdout, fmt.Sprintf("%s: %.3fms", l, float64(time.Since(start).Microseconds())/1000))
		return vm.Undefined, nil
	})
	method(v, consoleObj, "group", 0, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) > 0 {
			write(ctx.Stdout, FormatConsoleArgs(v, args))
		}
		groupIndent += "  "
		return vm.Undefined, nil
	})
	method(v, consoleObj, "groupEnd", 0, func(_ *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		if len(groupIndent) >= 2 {
			groupIndent = groupIndent[2:]
		}
		return vm.Undefined, nil
	})
	toStringTag(consoleObj, "console")

	return defineGlobal(ctx, "console", consoleObj)
}

// FormatConsoleArgs joins the display forms of args with spaces. Top-level
// strings print without quotes.
func FormatConsoleArgs(v *vm.VM, args []vm.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a.IsString() {
			parts[i] = a.AsString().String()
			continue
		}
		parts[i] = Display(v, a)
	}
	return strings.Join(parts, " ")
}

const (
	displayDepth    = 2
	maxDisplayItems = 100
)

// Display renders a value the way the console and the REPL show it. It
// never invokes getters or proxy traps.
func Display(v *vm.VM, val vm.Value) string {
	d := &displayer{v: v}
	d.value(val, 0)
	return d.b.String()
}

type displayer struct {
	v    *vm.VM
	b    strings.Builder
	seen []*vm.Object
}

func (d *displayer) value(val vm.Value, depth int) {
	switch {
	case val.IsString():
		d.b.WriteString(singleQuote(val.AsString().String()))
		return
	case !val.IsObject():
		d.b.WriteString(vm.Inspect(val))
		return
	}
	o := val.AsObject()
	for _, s := range d.seen {
		if s == o {
			d.b.WriteString("[Circular]")
			return
		}
	}
	switch o.Class() {
	case vm.ClassProxy:
		d.b.WriteString("[Proxy]")
		return
	case vm.ClassError:
		d.b.WriteString(errorSummary(o))
		return
	case vm.ClassDate:
		if t, ok := o.Internal.(float64); ok {
			d.b.WriteString(formatISO(t))
			return
		}
	case vm.ClassPromise:
		d.b.WriteString("Promise { " + promiseState(d, o, depth) + " }")
		return
	}
	if o.IsCallable() {
		name := vm.FunctionName(o)
		if name == "" {
			name = "(anonymous)"
		}
		d.b.WriteString("[Function: " + name + "]")
		return
	}
	if p, ok := o.PrimitiveValue(); ok {
		d.b.WriteString("[" + o.Class().String() + ": " + vm.Inspect(p) + "]")
		return
	}
	if depth > displayDepth {
		if o.IsArray() {
			d.b.WriteString("[Array]")
		} else {
			d.b.WriteString("[Object]")
		}
		return
	}
	d.seen = append(d.seen, o)
	defer func() { d.seen = d.seen[:len(d.seen)-1] }()

	switch o.Class() {
	case vm.ClassMap, vm.ClassSet:
		d.collection(o, depth)
		return
	}
	d.properties(o, depth)
}

func promiseState(d *displayer, o *vm.Object, depth int) string {
	p := vm.PromiseOf(o)
	switch p.State {
	case vm.PromiseFulfilled:
		sub := &displayer{v: d.v, seen: d.seen}
		sub.value(p.Result, depth+1)
		return sub.b.String()
	case vm.PromiseRejected:
		sub := &displayer{v: d.v, seen: d.seen}
		sub.value(p.Result, depth+1)
		return "<rejected> " + sub.b.String()
	}
	return "<pending>"
}

func (d *displayer) collection(o *vm.Object, depth int) {
	m, _ := o.Internal.(*vm.OrderedMap)
	isMap := o.Class() == vm.ClassMap
	if isMap {
		d.b.WriteString("Map(" + strconv.Itoa(m.Len()) + ") {")
	} else {
		d.b.WriteString("Set(" + strconv.Itoa(m.Len()) + ") {")
	}
	first := true
	m.Each(func(k, val vm.Value) bool {
		if first {
			d.b.WriteString(" ")
			first = false
		} else {
			d.b.WriteString(", ")
		}
		d.value(k, depth+1)
		if isMap {
			d.b.WriteString(" => ")
			d.value(val, depth+1)
		}
		return true
	})
	if !first {
		d.b.WriteString(" ")
	}
	d.b.WriteString("}")
}

func (d *displayer) properties(o *vm.Object, depth int) {
	keys, err := o.OwnPropertyKeys(d.v)
	if err != nil {
		d.b.WriteString(vm.Inspect(vm.ObjectValue(o)))
		return
	}
	isArr := o.IsArray()
	var parts []string
	if isArr {
		n := int(o.ArrayLength())
		holes := 0
		flush := func() {
			if holes > 0 {
				s := "s"
				if holes == 1 {
					s = ""
				}
				parts = append(parts, fmt.Sprintf("<%d empty item%s>", holes, s))
				holes = 0
			}
		}
		shown := min(n, maxDisplayItems)
		for i := 0; i < shown; i++ {
			desc, ok, _ := o.GetOwnProperty(d.v, vm.IndexKey(uint32(i)))
			if !ok {
				holes++
				continue
			}
			flush()
			parts = append(parts, d.member(desc, depth))
		}
		flush()
		if n > shown {
			parts = append(parts, fmt.Sprintf("... %d more items", n-shown))
		}
	}
	for _, k := range keys {
		if isArr {
			if _, ok := k.ArrayIndex(); ok || k.Is("length") {
				continue
			}
		}
		desc, ok, _ := o.GetOwnProperty(d.v, k)
		if !ok || !desc.Enumerable {
			continue
		}
		name := k.String()
		if !k.IsSymbol() && !isIdentifier(name) {
			name = singleQuote(name)
		} else if k.IsSymbol() {
			name = "[" + name + "]"
		}
		parts = append(parts, name+": "+d.member(desc, depth))
	}

	prefix := ""
	if !isArr {
		if tag := constructorName(o); tag != "" && tag != "Object" {
			prefix = tag + " "
		} else if o.Prototype() == nil {
			prefix = "[Object: null prototype] "
		}
	}
	open, close := "{", "}"
	if isArr {
		open, close = "[", "]"
	}
	if len(parts) == 0 {
		d.b.WriteString(prefix + open + close)
		return
	}
	d.b.WriteString(prefix + open + " " + strings.Join(parts, ", ") + " " + close)
}

func (d *displayer) member(desc vm.PropertyDescriptor, depth int) string {
	if desc.IsAccessor() {
		switch {
		case !desc.Getter.IsUndefined() && !desc.Setter.IsUndefined():
			return "[Getter/Setter]"
		case !desc.Getter.IsUndefined():
			return "[Getter]"
		}
		return "[Setter]"
	}
	sub := &displayer{v: d.v, seen: d.seen}
	sub.value(desc.Value, depth+1)
	return sub.b.String()
}

// constructorName finds the name of the nearest constructor on the
// prototype chain without running code.
func constructorName(o *vm.Object) string {
	for p := o.Prototype(); p != nil && p.Class() != vm.ClassProxy; p = p.Prototype() {
		c, ok := p.GetOwnDirect(vm.StrKey("constructor"))
		if ok && c.IsObject() {
			return vm.FunctionName(c.AsObject())
		}
	}
	return ""
}

func errorSummary(o *vm.Object) string {
	if s, ok := o.GetOwnDirect(vm.StrKey("stack")); ok && s.IsString() {
		return s.AsString().String()
	}
	name := "Error"
	for p := o; p != nil; p = p.Prototype() {
		if n, ok := p.GetOwnDirect(vm.StrKey("name")); ok && n.IsString() {
			name = n.AsString().String()
			break
		}
	}
	if m, ok := o.GetOwnDirect(vm.StrKey("message")); ok && m.IsString() && m.AsString().Length() > 0 {
		return name + ": " + m.AsString().String()
	}
	return name
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func singleQuote(s string) string {
	q := strconv.Quote(s)
	q = strings.ReplaceAll(q[1:len(q)-1], `\"`, `"`)
	return "'" + strings.ReplaceAll(q, "'", `\'`) + "'"
}
