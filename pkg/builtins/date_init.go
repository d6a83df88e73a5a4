package builtins

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/skua-js/skua/pkg/vm"
)

// Date objects keep their time value, a float64 count of milliseconds
// since the epoch or NaN, in Object.Internal. Local time is UTC.

const (
	msPerSecond = 1000.0
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
	maxTime     = 8.64e15
)

var (
	weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthNames   = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// date field indices, in the order MakeDay and MakeTime consume them.
const (
	fieldYear = iota
	fieldMonth
	fieldDate
	fieldHours
	fieldMinutes
	fieldSeconds
	fieldMillis
	numDateFields
)

type DateInitializer struct{}

func (d *DateInitializer) Name() string {
	return "Date"
}

func (d *DateInitializer) Priority() int {
	return PriorityDate
}

func (d *DateInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.DatePrototype

	ctor := constructor(v, "Date", 7, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return str(dateString(now())), nil
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			var tv float64
			switch len(args) {
			case 0:
				tv = now()
			case 1:
				var err error
				if tv, err = dateFromValue(v, args[0]); err != nil {
					return vm.Undefined, err
				}
			default:
				fields, err := dateFields(v, args)
				if err != nil {
					return vm.Undefined, err
				}
				tv = timeClip(makeDateFromFields(fields))
			}
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassDate, func(r *vm.Realm) *vm.Object { return r.DatePrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o.Internal = tv
			return vm.ObjectValue(o), nil
		})

	method(v, ctor, "now", 0, func(_ *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		return num(now()), nil
	})
	method(v, ctor, "parse", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := v.ToString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return num(parseDate(s.String())), nil
	})
	method(v, ctor, "UTC", 7, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		fields, err := dateFields(v, args)
		if err != nil {
			return vm.Undefined, err
		}
		return num(timeClip(makeDateFromFields(fields))), nil
	})

	getterMethod := func(name string, fn func(t float64) float64) {
		method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			t, err := thisTimeValue(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			if math.IsNaN(t) {
				return num(math.NaN()), nil
			}
			return num(fn(t)), nil
		})
	}
	identity := func(t float64) float64 { return t }
	getterMethod("getTime", identity)
	getterMethod("valueOf", identity)
	getterMethod("getTimezoneOffset", func(float64) float64 { return 0 })
	getterMethod("getYear", func(t float64) float64 { return yearFromTime(t) - 1900 })
	for _, prefix := range []string{"get", "getUTC"} {
		getterMethod(prefix+"FullYear", yearFromTime)
		getterMethod(prefix+"Month", monthFromTime)
		getterMethod(prefix+"Date", dateFromTime)
		getterMethod(prefix+"Day", weekDay)
		getterMethod(prefix+"Hours", func(t float64) float64 { return posMod(math.Floor(t/msPerHour), 24) })
		getterMethod(prefix+"Minutes", func(t float64) float64 { return posMod(math.Floor(t/msPerMinute), 60) })
		getterMethod(prefix+"Seconds", func(t float64) float64 { return posMod(math.Floor(t/msPerSecond), 60) })
		getterMethod(prefix+"Milliseconds", func(t float64) float64 { return posMod(t, msPerSecond) })
	}

	method(v, proto, "setTime", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := thisTimeValue(v, this, "setTime"); err != nil {
			return vm.Undefined, err
		}
		t, err := v.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		t = timeClip(t)
		this.AsObject().Internal = t
		return num(t), nil
	})
	// setter replaces up to length fields starting at first.
	setter := func(name string, first, length int) {
		method(v, proto, name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			t, err := thisTimeValue(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			n := max(1, min(len(args), length))
			vals := make([]float64, n)
			for i := range vals {
				if vals[i], err = v.ToNumber(vm.Arg(args, i)); err != nil {
					return vm.Undefined, err
				}
			}
			if math.IsNaN(t) {
				if first != fieldYear {
					return num(t), nil
				}
				t = 0
			}
			fields := splitTime(t)
			copy(fields[first:], vals)
			t = timeClip(makeDateFromFields(fields))
			this.AsObject().Internal = t
			return num(t), nil
		})
	}
	for _, prefix := range []string{"set", "setUTC"} {
		setter(prefix+"Milliseconds", fieldMillis, 1)
		setter(prefix+"Seconds", fieldSeconds, 2)
		setter(prefix+"Minutes", fieldMinutes, 3)
		setter(prefix+"Hours", fieldHours, 4)
		setter(prefix+"Date", fieldDate, 1)
		setter(prefix+"Month", fieldMonth, 2)
		setter(prefix+"FullYear", fieldYear, 3)
	}
	method(v, proto, "setYear", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		t, err := thisTimeValue(v, this, "setYear")
		if err != nil {
			return vm.Undefined, err
		}
		y, err := v.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if math.IsNaN(y) {
			this.AsObject().Internal = math.NaN()
			return num(math.NaN()), nil
		}
		if yi := vm.ToIntegerOrInfinityF(y); yi >= 0 && yi <= 99 {
			y = 1900 + yi
		}
		if math.IsNaN(t) {
			t = 0
		}
		fields := splitTime(t)
		fields[fieldYear] = y
		t = timeClip(makeDateFromFields(fields))
		this.AsObject().Internal = t
		return num(t), nil
	})

	formatter := func(name string, format func(t float64) string) *vm.Object {
		return method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			t, err := thisTimeValue(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			if math.IsNaN(t) {
				return str("Invalid Date"), nil
			}
			return str(format(t)), nil
		})
	}
	formatter("toString", dateString)
	formatter("toDateString", func(t float64) string {
		return fmt.Sprintf("%s %s %s %s", weekdayNames[int(weekDay(t))], monthNames[int(monthFromTime(t))],
			pad2(dateFromTime(t)), yearString(yearFromTime(t)))
	})
	formatter("toTimeString", func(t float64) string { return timeString(t) + " GMT+0000 (Coordinated Universal Time)" })
	utc := formatter("toUTCString", func(t float64) string {
		return fmt.Sprintf("%s, %s %s %s %s GMT", weekdayNames[int(weekDay(t))], pad2(dateFromTime(t)),
			monthNames[int(monthFromTime(t))], yearString(yearFromTime(t)), timeString(t))
	})
	proto.DefineOwn(vm.StrKey("toGMTString"), vm.ObjectValue(utc), vm.MethodFlags)
	formatter("toLocaleString", func(t float64) string { return localeDate(t) + ", " + localeTime(t) })
	formatter("toLocaleDateString", localeDate)
	formatter("toLocaleTimeString", localeTime)

	method(v, proto, "toISOString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		t, err := thisTimeValue(v, this, "toISOString")
		if err != nil {
			return vm.Undefined, err
		}
		if math.IsNaN(t) {
			return vm.Undefined, v.NewRangeError("Invalid time value")
		}
		return str(formatISO(t)), nil
	})
	method(v, proto, "toJSON", 1, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		tv, err := v.ToPrimitive(vm.ObjectValue(o), vm.HintNumber)
		if err != nil {
			return vm.Undefined, err
		}
		if tv.IsNumber() && (math.IsNaN(tv.AsNumber()) || math.IsInf(tv.AsNumber(), 0)) {
			return vm.Null, nil
		}
		return v.Invoke(vm.ObjectValue(o), vm.StrKey("toISOString"))
	})
	toPrim := v.NewNativeFunction("[Symbol.toPrimitive]", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisObject(v, this, "Date.prototype[Symbol.toPrimitive]")
		if err != nil {
			return vm.Undefined, err
		}
		hint := vm.Arg(args, 0)
		if hint.IsString() {
			switch hint.AsString().String() {
			case "string", "default":
				return v.OrdinaryToPrimitive(o, vm.HintString)
			case "number":
				return v.OrdinaryToPrimitive(o, vm.HintNumber)
			}
		}
		return vm.Undefined, v.NewTypeError("Invalid hint: " + vm.Inspect(hint))
	})
	proto.DefineOwn(vm.SymKey(vm.SymToPrimitive), vm.ObjectValue(toPrim), vm.Configurable)

	return defineGlobal(ctx, "Date", ctor)
}

func now() float64 { return float64(time.Now().UnixMilli()) }

func thisTimeValue(v *vm.VM, this vm.Value, method string) (float64, error) {
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassDate {
		if t, ok := o.Internal.(float64); ok {
			return t, nil
		}
	}
	return 0, v.NewTypeErrorf("Date.prototype.%s called on incompatible receiver %s", method, vm.Inspect(this))
}

func dateFromValue(v *vm.VM, arg vm.Value) (float64, error) {
	if o := arg.AsObject(); o != nil && o.Class() == vm.ClassDate {
		if t, ok := o.Internal.(float64); ok {
			return t, nil
		}
	}
	prim, err := v.ToPrimitive(arg, vm.HintDefault)
	if err != nil {
		return 0, err
	}
	if prim.IsString() {
		return parseDate(prim.AsString().String()), nil
	}
	t, err := v.ToNumber(prim)
	if err != nil {
		return 0, err
	}
	return timeClip(t), nil
}

// dateFields converts constructor-style arguments into the seven date
// fields, mapping two-digit years into the 1900s.
func dateFields(v *vm.VM, args []vm.Value) ([numDateFields]float64, error) {
	fields := [numDateFields]float64{math.NaN(), 0, 1, 0, 0, 0, 0}
	for i := 0; i < numDateFields && i < len(args); i++ {
		f, err := v.ToNumber(args[i])
		if err != nil {
			return fields, err
		}
		fields[i] = f
	}
	if y := fields[fieldYear]; !math.IsNaN(y) {
		if yi := vm.ToIntegerOrInfinityF(y); yi >= 0 && yi <= 99 {
			fields[fieldYear] = 1900 + yi
		}
	}
	return fields, nil
}

func splitTime(t float64) [numDateFields]float64 {
	return [numDateFields]float64{
		yearFromTime(t),
		monthFromTime(t),
		dateFromTime(t),
		posMod(math.Floor(t/msPerHour), 24),
		posMod(math.Floor(t/msPerMinute), 60),
		posMod(math.Floor(t/msPerSecond), 60),
		posMod(t, msPerSecond),
	}
}

func makeDateFromFields(f [numDateFields]float64) float64 {
	day := makeDay(f[fieldYear], f[fieldMonth], f[fieldDate])
	tm := makeTime(f[fieldHours], f[fieldMinutes], f[fieldSeconds], f[fieldMillis])
	if math.IsNaN(day) || math.IsNaN(tm) || math.IsInf(day, 0) || math.IsInf(tm, 0) {
		return math.NaN()
	}
	t := day*msPerDay + tm
	if math.IsInf(t, 0) {
		return math.NaN()
	}
	return t
}

func finite(fs ...float64) bool {
	for _, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func makeTime(h, m, s, ms float64) float64 {
	if !finite(h, m, s, ms) {
		return math.NaN()
	}
	return math.Trunc(h)*msPerHour + math.Trunc(m)*msPerMinute + math.Trunc(s)*msPerSecond + math.Trunc(ms)
}

func makeDay(year, month, date float64) float64 {
	if !finite(year, month, date) {
		return math.NaN()
	}
	y, m, dt := math.Trunc(year), math.Trunc(month), math.Trunc(date)
	ym := y + math.Floor(m/12)
	if math.Abs(ym) > 400000 {
		return math.NaN()
	}
	mn := posMod(m, 12)
	return float64(daysFromCivil(int64(ym), int64(mn)+1, 1)) + dt - 1
}

func timeClip(t float64) float64 {
	if !finite(t) || math.Abs(t) > maxTime {
		return math.NaN()
	}
	return math.Trunc(t) + 0 // normalizes -0
}

func posMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	return r + 0
}

// daysFromCivil counts days from 1970-01-01 to the proleptic Gregorian
// date y-m-d, m in [1, 12].
func daysFromCivil(y, m, d int64) int64 {
	if m <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// civilFromDays is the inverse of daysFromCivil.
func civilFromDays(z int64) (y, m, d int64) {
	z += 719468
	era := z
	if era < 0 {
		era -= 146096
	}
	era /= 146097
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d = doy - (153*mp+2)/5 + 1
	m = mp + 3
	if m > 12 {
		m -= 12
	}
	if m <= 2 {
		y++
	}
	return y, m, d
}

func civil(t float64) (y, m, d int64) {
	return civilFromDays(int64(math.Floor(t / msPerDay)))
}

func yearFromTime(t float64) float64 {
	y, _, _ := civil(t)
	return float64(y)
}

func monthFromTime(t float64) float64 {
	_, m, _ := civil(t)
	return float64(m - 1)
}

func dateFromTime(t float64) float64 {
	_, _, d := civil(t)
	return float64(d)
}

func weekDay(t float64) float64 {
	return posMod(math.Floor(t/msPerDay)+4, 7)
}

func pad2(f float64) string { return fmt.Sprintf("%02d", int(f)) }

func yearString(y float64) string {
	if y < 0 {
		return fmt.Sprintf("-%06d", int(-y))
	}
	return fmt.Sprintf("%04d", int(y))
}

func timeString(t float64) string {
	s := splitTime(t)
	return fmt.Sprintf("%s:%s:%s", pad2(s[fieldHours]), pad2(s[fieldMinutes]), pad2(s[fieldSeconds]))
}

func dateString(t float64) string {
	if math.IsNaN(t) {
		return "Invalid Date"
	}
	return fmt.Sprintf("%s %s %s %s %s GMT+0000 (Coordinated Universal Time)", weekdayNames[int(weekDay(t))],
		monthNames[int(monthFromTime(t))], pad2(dateFromTime(t)), yearString(yearFromTime(t)), timeString(t))
}

func localeDate(t float64) string {
	return fmt.Sprintf("%d/%d/%d", int(monthFromTime(t))+1, int(dateFromTime(t)), int(yearFromTime(t)))
}

func localeTime(t float64) string {
	s := splitTime(t)
	h := int(s[fieldHours])
	ampm := "AM"
	if h >= 12 {
		ampm = "PM"
	}
	if h%12 == 0 {
		h = 12
	} else {
		h %= 12
	}
	return fmt.Sprintf("%d:%s:%s %s", h, pad2(s[fieldMinutes]), pad2(s[fieldSeconds]), ampm)
}

// formatISO renders the Date Time String Format, switching to six-digit
// signed years outside 0..9999.
func formatISO(t float64) string {
	if math.IsNaN(t) {
		return "Invalid Date"
	}
	s := splitTime(t)
	y := int(s[fieldYear])
	var year string
	switch {
	case y < 0:
		year = fmt.Sprintf("-%06d", -y)
	case y > 9999:
		year = fmt.Sprintf("+%06d", y)
	default:
		year = fmt.Sprintf("%04d", y)
	}
	return fmt.Sprintf("%s-%02d-%02dT%02d:%02d:%02d.%03dZ", year, int(s[fieldMonth])+1, int(s[fieldDate]),
		int(s[fieldHours]), int(s[fieldMinutes]), int(s[fieldSeconds]), int(s[fieldMillis]))
}

// parseDate accepts the Date Time String Format and the forms produced by
// toString and toUTCString. Anything else is NaN.
func parseDate(s string) float64 {
	s = strings.TrimSpace(s)
	if t, ok := parseISODate(s); ok {
		return timeClip(t)
	}
	for _, layout := range []string{
		"Mon Jan 02 2006 15:04:05 GMT-0700",
		"Mon, 02 Jan 2006 15:04:05 GMT",
		"Mon Jan 02 2006",
		"Jan 2 2006 15:04:05",
		"Jan 2, 2006",
		"1/2/2006, 3:04:05 PM",
		"1/2/2006",
	} {
		cand := s
		if i := strings.Index(cand, " ("); i >= 0 {
			cand = cand[:i]
		}
		if tm, err := time.Parse(layout, cand); err == nil {
			return timeClip(float64(tm.UnixMilli()))
		}
	}
	return math.NaN()
}

// isoScanner reads fixed-width decimal fields.
type isoScanner struct {
	s   string
	pos int
	ok  bool
}

func (p *isoScanner) digits(n int) float64 {
	if !p.ok || p.pos+n > len(p.s) {
		p.ok = false
		return 0
	}
	v := 0
	for i := 0; i < n; i++ {
		c := p.s[p.pos+i]
		if c < '0' || c > '9' {
			p.ok = false
			return 0
		}
		v = v*10 + int(c-'0')
	}
	p.pos += n
	return float64(v)
}

func (p *isoScanner) accept(c byte) bool {
	if p.ok && p.pos < len(p.s) && p.s[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *isoScanner) more() bool { return p.ok && p.pos < len(p.s) }

func parseISODate(s string) (float64, bool) {
	p := &isoScanner{s: s, ok: true}
	var year float64
	switch {
	case p.accept('+'):
		year = p.digits(6)
	case p.accept('-'):
		year = -p.digits(6)
		if year == 0 && p.ok {
			return 0, false // -000000 is not a valid year
		}
	default:
		year = p.digits(4)
	}
	month, day := 1.0, 1.0
	if p.accept('-') {
		month = p.digits(2)
		if p.accept('-') {
			day = p.digits(2)
		}
	}
	var h, m, sec, ms float64
	offset := 0.0
	if p.accept('T') || p.accept('t') {
		h = p.digits(2)
		if !p.accept(':') {
			return 0, false
		}
		m = p.digits(2)
		if p.accept(':') {
			sec = p.digits(2)
			if p.accept('.') || p.accept(',') {
				start := p.pos
				for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
					p.pos++
				}
				frac := p.s[start:p.pos]
				if frac == "" {
					return 0, false
				}
				frac = (frac + "00")[:3]
				q := &isoScanner{s: frac, ok: true}
				ms = q.digits(3)
			}
		}
		switch {
		case p.accept('Z') || p.accept('z'):
		case p.more() && (p.s[p.pos] == '+' || p.s[p.pos] == '-'):
			sign := 1.0
			if p.s[p.pos] == '-' {
				sign = -1
			}
			p.pos++
			oh := p.digits(2)
			if !p.accept(':') {
				return 0, false
			}
			om := p.digits(2)
			if oh > 23 || om > 59 {
				return 0, false
			}
			offset = sign * (oh*msPerHour + om*msPerMinute)
		}
	}
	if !p.ok || p.more() {
		return 0, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || h > 24 || m > 59 || sec > 59 {
		return 0, false
	}
	if h == 24 && (m != 0 || sec != 0 || ms != 0) {
		return 0, false
	}
	if day > dateFromTime(makeDay(year, month, 0)*msPerDay) {
		return 0, false // past the end of the month
	}
	t := makeDay(year, month-1, day)*msPerDay + makeTime(h, m, sec, ms)
	return t - offset, true
}
