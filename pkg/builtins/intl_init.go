package builtins

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/skua-js/skua/pkg/vm"
)

const defaultLocale = "en-US"

var collationMatcher = language.NewMatcher(collate.Supported())

// collator is the internal state of an Intl.Collator and the comparison
// behind String.prototype.localeCompare.
type collator struct {
	locale            string
	usage             string
	sensitivity       string
	caseFirst         string
	numeric           bool
	ignorePunctuation bool
	c                 *collate.Collator
	boundCompare      *vm.Object
}

func (c *collator) Trace(visit func(vm.Value)) {
	if c.boundCompare != nil {
		visit(vm.ObjectValue(c.boundCompare))
	}
}

func (c *collator) compare(a, b *vm.String) int {
	return c.c.CompareString(a.String(), b.String())
}

// canonicalizeLocaleList implements CanonicalizeLocaleList on top of BCP 47
// parsing.
func canonicalizeLocaleList(v *vm.VM, locales vm.Value) ([]string, error) {
	if locales.IsUndefined() {
		return nil, nil
	}
	var items []vm.Value
	if locales.IsString() {
		items = []vm.Value{locales}
	} else {
		o, err := v.ToObject(locales)
		if err != nil {
			return nil, err
		}
		n, err := lengthOf(v, o)
		if err != nil {
			return nil, err
		}
		for i := 0.0; i < n; i++ {
			ok, err := o.HasProperty(v, indexKey(i))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			item, err := getIndex(v, o, i)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	var out []string
	seen := map[string]bool{}
	for _, item := range items {
		if !item.IsString() && !item.IsObject() {
			return nil, v.NewTypeError("Language ID should be string or object.")
		}
		s, err := v.ToString(item)
		if err != nil {
			return nil, err
		}
		tag, err := language.Parse(s.String())
		if err != nil {
			return nil, v.NewRangeError("Incorrect locale information provided")
		}
		name := tag.String()
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

// stringOption implements GetOption for string-valued options.
func stringOption(v *vm.VM, opts *vm.Object, name string, allowed []string, def string) (string, error) {
	if opts == nil {
		return def, nil
	}
	val, err := getProp(v, opts, name)
	if err != nil || val.IsUndefined() {
		return def, err
	}
	s, err := v.ToString(val)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s.String() == a {
			return a, nil
		}
	}
	return "", v.NewRangeErrorf("Value %s out of range for Intl.Collator options property %s", s.String(), name)
}

func boolOption(v *vm.VM, opts *vm.Object, name string, def bool) (bool, error) {
	if opts == nil {
		return def, nil
	}
	val, err := getProp(v, opts, name)
	if err != nil || val.IsUndefined() {
		return def, err
	}
	return val.ToBoolean(), nil
}

// resolveLocale picks the best supported collation locale for the
// requested list.
func resolveLocale(requested []string) (string, language.Tag) {
	if len(requested) == 0 {
		return defaultLocale, language.AmericanEnglish
	}
	tags := make([]language.Tag, 0, len(requested))
	for _, r := range requested {
		tags = append(tags, language.Make(r))
	}
	_, idx, conf := collationMatcher.Match(tags...)
	if conf == language.No {
		return defaultLocale, language.AmericanEnglish
	}
	base := collate.Supported()[idx]
	return base.String(), base
}

func newCollator(v *vm.VM, locales, options vm.Value) (*collator, error) {
	requested, err := canonicalizeLocaleList(v, locales)
	if err != nil {
		return nil, err
	}
	var opts *vm.Object
	if !options.IsUndefined() {
		if opts, err = v.ToObject(options); err != nil {
			return nil, err
		}
	}
	c := &collator{}
	if c.usage, err = stringOption(v, opts, "usage", []string{"sort", "search"}, "sort"); err != nil {
		return nil, err
	}
	if _, err = stringOption(v, opts, "localeMatcher", []string{"lookup", "best fit"}, "best fit"); err != nil {
		return nil, err
	}
	if c.numeric, err = boolOption(v, opts, "numeric", false); err != nil {
		return nil, err
	}
	if c.caseFirst, err = stringOption(v, opts, "caseFirst", []string{"upper", "lower", "false"}, "false"); err != nil {
		return nil, err
	}
	if c.sensitivity, err = stringOption(v, opts, "sensitivity", []string{"base", "accent", "case", "variant"}, "variant"); err != nil {
		return nil, err
	}
	if c.ignorePunctuation, err = boolOption(v, opts, "ignorePunctuation", false); err != nil {
		return nil, err
	}

	var tag language.Tag
	c.locale, tag = resolveLocale(requested)
	var copts []collate.Option
	switch c.sensitivity {
	case "base":
		copts = append(copts, collate.IgnoreCase, collate.IgnoreDiacritics)
	case "accent":
		copts = append(copts, collate.IgnoreCase)
	case "case":
		copts = append(copts, collate.IgnoreDiacritics)
	}
	if c.numeric {
		copts = append(copts, collate.Numeric)
	}
	c.c = collate.New(tag, copts...)
	return c, nil
}

type IntlInitializer struct{}

func (i *IntlInitializer) Name() string {
	return "Intl"
}

func (i *IntlInitializer) Priority() int {
	return PriorityIntl
}

func (i *IntlInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	intl := v.NewObject()
	proto := v.NewObject()

	create := func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
		o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassObject, func(*vm.Realm) *vm.Object { return proto })
		if err != nil {
			return vm.Undefined, err
		}
		c, err := newCollator(v, vm.Arg(args, 0), vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		o.Internal = c
		return vm.ObjectValue(o), nil
	}
	var ctor *vm.Object
	ctor = constructor(v, "Collator", 0, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return create(v, args, ctor)
		}, create)

	thisCollator := func(v *vm.VM, this vm.Value, method string) (*collator, error) {
		if o := this.AsObject(); o != nil {
			if c, ok := o.Internal.(*collator); ok {
				return c, nil
			}
		}
		return nil, v.NewTypeErrorf("Method Intl.Collator.prototype.%s called on incompatible receiver %s", method, vm.Inspect(this))
	}
	getter(v, proto, "compare", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		c, err := thisCollator(v, this, "compare")
		if err != nil {
			return vm.Undefined, err
		}
		if c.boundCompare == nil {
			c.boundCompare = v.NewNativeFunction("", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
				x, err := v.ToString(vm.Arg(args, 0))
				if err != nil {
					return vm.Undefined, err
				}
				y, err := v.ToString(vm.Arg(args, 1))
				if err != nil {
					return vm.Undefined, err
				}
				return vm.IntValue(c.compare(x, y)), nil
			})
		}
		return vm.ObjectValue(c.boundCompare), nil
	})
	method(v, proto, "resolvedOptions", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		c, err := thisCollator(v, this, "resolvedOptions")
		if err != nil {
			return vm.Undefined, err
		}
		o := v.NewObject()
		o.SetOwn("locale", str(c.locale))
		o.SetOwn("usage", str(c.usage))
		o.SetOwn("sensitivity", str(c.sensitivity))
		o.SetOwn("ignorePunctuation", vm.BooleanValue(c.ignorePunctuation))
		o.SetOwn("collation", str("default"))
		o.SetOwn("numeric", vm.BooleanValue(c.numeric))
		o.SetOwn("caseFirst", str(c.caseFirst))
		return vm.ObjectValue(o), nil
	})
	toStringTag(proto, "Intl.Collator")

	method(v, ctor, "supportedLocalesOf", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		requested, err := canonicalizeLocaleList(v, vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		var out []vm.Value
		for _, r := range requested {
			if _, _, conf := collationMatcher.Match(language.Make(r)); conf != language.No {
				out = append(out, str(r))
			}
		}
		return vm.ObjectValue(v.NewArrayFromValues(out)), nil
	})
	intl.DefineOwn(vm.StrKey("Collator"), vm.ObjectValue(ctor), vm.MethodFlags)

	method(v, intl, "getCanonicalLocales", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		locales, err := canonicalizeLocaleList(v, vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		out := make([]vm.Value, len(locales))
		for i, l := range locales {
			out[i] = str(l)
		}
		return vm.ObjectValue(v.NewArrayFromValues(out)), nil
	})
	toStringTag(intl, "Intl")

	return defineGlobal(ctx, "Intl", intl)
}
