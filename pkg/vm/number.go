package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// NumberToString formats f the way Number.prototype.toString() does with
// radix 10.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f < 0 {
		return "-" + NumberToString(-f)
	}
	if f == math.Trunc(f) && f < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	digits, n := shortestDigits(f)
	k := len(digits)
	switch {
	case k <= n && n <= 21:
		return digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return "0." + strings.Repeat("0", -n) + digits
	}
	exp := n - 1
	sign := "+"
	if exp < 0 {
		sign = "-"
		exp = -exp
	}
	mant := digits[:1]
	if k > 1 {
		mant += "." + digits[1:]
	}
	return mant + "e" + sign + strconv.Itoa(exp)
}

// shortestDigits returns the shortest round-tripping decimal digits of a
// positive finite f and the exponent n such that f = 0.digits * 10^n.
func shortestDigits(f float64) (string, int) {
	s := strconv.FormatFloat(f, 'e', -1, 64)
	epos := strings.IndexByte(s, 'e')
	mant, exp := s[:epos], s[epos+1:]
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)
	digits = strings.TrimRight(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return digits, e + 1
}

// NumberToStringRadix formats f in the given radix (2..36).
func NumberToStringRadix(f float64, radix int) string {
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return NumberToString(f)
	}
	neg := f < 0
	if neg {
		f = -f
	}
	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"
	intPart := math.Floor(f)
	frac := f - intPart

	var ib []byte
	if intPart < 1<<53 {
		n := uint64(intPart)
		if n == 0 {
			ib = []byte{'0'}
		}
		for n > 0 {
			ib = append(ib, chars[n%uint64(radix)])
			n /= uint64(radix)
		}
	} else {
		bi, _ := new(big.Float).SetFloat64(intPart).Int(nil)
		s := bi.Text(radix)
		for i := len(s) - 1; i >= 0; i-- {
			ib = append(ib, s[i])
		}
	}
	for i, j := 0, len(ib)-1; i < j; i, j = i+1, j-1 {
		ib[i], ib[j] = ib[j], ib[i]
	}
	out := string(ib)
	if frac > 0 {
		// Emit digits until the value is uniquely identified, in the
		// manner of the shortest-representation algorithm.
		delta := 0.5 * (math.Nextafter(f, math.Inf(1)) - f)
		delta = math.Max(math.Nextafter(0, 1), delta)
		if frac >= delta {
			var fb []byte
			for {
				frac *= float64(radix)
				delta *= float64(radix)
				d := int(frac)
				fb = append(fb, chars[d])
				frac -= float64(d)
				if frac > 0.5 || (frac == 0.5 && d&1 == 1) {
					if frac+delta > 1 {
						// round up and propagate
						for {
							i := len(fb) - 1
							if i < 0 {
								break
							}
							c := strings.IndexByte(chars, fb[i]) + 1
							if c < radix {
								fb[i] = chars[c]
								break
							}
							fb = fb[:i]
						}
						break
					}
				}
				if frac < delta {
					break
				}
			}
			if len(fb) > 0 {
				out += "." + string(fb)
			}
		}
	}
	if neg {
		out = "-" + out
	}
	return out
}

// isJSWhitespace covers WhiteSpace and LineTerminator code points.
func isJSWhitespace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0xA0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}

// IsJSWhitespace reports whether r is WhiteSpace or a LineTerminator.
func IsJSWhitespace(r rune) bool { return isJSWhitespace(r) }

// TrimJSSpace trims leading and trailing WhiteSpace and LineTerminators.
func TrimJSSpace(s string) string {
	return strings.TrimFunc(s, isJSWhitespace)
}

// StringToNumber implements the StringToNumber abstract operation.
func StringToNumber(s string) float64 {
	s = TrimJSSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			return parseIntDigits(s[2:], base)
		}
	}
	body := s
	if body[0] == '+' || body[0] == '-' {
		body = body[1:]
	}
	if body == "Infinity" {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	if !isDecimalLiteral(body) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// parseIntDigits parses an unsigned digit string in base, returning NaN if
// any character is not a digit.
func parseIntDigits(s string, base int) float64 {
	if s == "" {
		return math.NaN()
	}
	var v float64
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d >= base {
			return math.NaN()
		}
		v = v*float64(base) + float64(d)
	}
	if v >= 1<<53 {
		bi, ok := new(big.Int).SetString(s, base)
		if ok {
			f, _ := new(big.Float).SetInt(bi).Float64()
			return f
		}
	}
	return v
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// isDecimalLiteral checks StrUnsignedDecimalLiteral without Infinity.
func isDecimalLiteral(s string) bool {
	i, digits := 0, 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// ParseFloatPrefix implements the global parseFloat: the longest prefix
// that is a StrDecimalLiteral.
func ParseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, isJSWhitespace)
	sign := 1.0
	body := s
	if body != "" && (body[0] == '+' || body[0] == '-') {
		if body[0] == '-' {
			sign = -1
		}
		body = body[1:]
	}
	if strings.HasPrefix(body, "Infinity") {
		return sign * math.Inf(1)
	}
	i, digits := 0, 0
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		i++
		digits++
	}
	if i < len(body) && body[i] == '.' {
		j := i + 1
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
			digits++
		}
		i = j
	}
	if digits == 0 {
		return math.NaN()
	}
	end := i
	if i < len(body) && (body[i] == 'e' || body[i] == 'E') {
		j := i + 1
		if j < len(body) && (body[j] == '+' || body[j] == '-') {
			j++
		}
		k := j
		for k < len(body) && body[k] >= '0' && body[k] <= '9' {
			k++
		}
		if k > j {
			end = k
		}
	}
	f, err := strconv.ParseFloat(body[:end], 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return math.NaN()
		}
	}
	return sign * f
}

// ParseIntPrefix implements the global parseInt.
func ParseIntPrefix(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, isJSWhitespace)
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return math.NaN()
		}
		if radix != 16 {
			stripPrefix = false
		}
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	digits := s[:end]
	if radix == 10 && end > 15 {
		f, _ := strconv.ParseFloat(digits, 64)
		return sign * f
	}
	return sign * parseIntDigits(digits, radix)
}

// ToIntegerOrInfinityF truncates f toward zero, mapping NaN to 0.
func ToIntegerOrInfinityF(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if math.IsInf(f, 0) {
		return f
	}
	t := math.Trunc(f)
	if t == 0 {
		return 0
	}
	return t
}

func ToInt32F(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MinInt32 && f <= math.MaxInt32 {
		return int32(f)
	}
	f = math.Mod(math.Trunc(f), 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return int32(uint32(f))
}

func ToUint32F(f float64) uint32 { return uint32(ToInt32F(f)) }

func ToUint16F(f float64) uint16 { return uint16(ToInt32F(f)) }

// ToBigInt64 wraps b modulo 2^64 into an int64.
func ToBigInt64(b *big.Int) int64 {
	return int64(ToBigUint64(b))
}

// ToBigUint64 wraps b modulo 2^64.
func ToBigUint64(b *big.Int) uint64 {
	m := new(big.Int).And(b, new(big.Int).SetUint64(math.MaxUint64))
	return m.Uint64()
}

// exactDecimal returns the exact decimal digits of a positive finite f
// (no leading zeros) and the position of the decimal point relative to the
// first digit.
func exactDecimal(f float64) (string, int) {
	t := new(big.Float).SetPrec(2000).SetFloat64(f).Text('f', 1100)
	intPart, fracPart, _ := strings.Cut(t, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	if intPart != "0" {
		return strings.TrimRight(intPart+fracPart, "0"), len(intPart)
	}
	lead := len(fracPart) - len(strings.TrimLeft(fracPart, "0"))
	return fracPart[lead:], -lead
}

// roundDigits rounds a digit string to n significant digits, ties away
// from zero. It returns the rounded digits (exactly n long, zero padded)
// and whether a carry added a new leading digit.
func roundDigits(digits string, n int) (string, bool) {
	if n <= 0 {
		if n == 0 && digits != "" && digits[0] >= '5' {
			return "1", false
		}
		return "", false
	}
	if len(digits) <= n {
		return digits + strings.Repeat("0", n-len(digits)), false
	}
	b := []byte(digits[:n])
	if digits[n] >= '5' {
		i := n - 1
		for ; i >= 0; i-- {
			if b[i] == '9' {
				b[i] = '0'
				continue
			}
			b[i]++
			break
		}
		if i < 0 {
			return "1" + string(b[:n-1]), true
		}
	}
	return string(b), false
}

// FormatFixed implements Number.prototype.toFixed for |f| < 1e21.
func FormatFixed(f float64, digits int) string {
	if math.Abs(f) >= 1e21 || math.IsNaN(f) {
		return NumberToString(f)
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	var intDigits, fracDigits string
	if f == 0 {
		intDigits = "0"
		fracDigits = strings.Repeat("0", digits)
	} else {
		ds, point := exactDecimal(f)
		// The digits of round(f * 10^digits).
		r, carry := roundDigits(ds, point+digits)
		if carry {
			r += "0"
		}
		if len(r) < digits+1 {
			r = strings.Repeat("0", digits+1-len(r)) + r
		}
		intDigits = r[:len(r)-digits]
		fracDigits = r[len(r)-digits:]
	}
	if digits == 0 {
		return sign + intDigits
	}
	return sign + intDigits + "." + fracDigits
}

// FormatExponential implements Number.prototype.toExponential. digits < 0
// means "as many as needed".
func FormatExponential(f float64, digits int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	var ds string
	var exp int
	if f == 0 {
		if digits < 0 {
			digits = 0
		}
		ds = strings.Repeat("0", digits+1)
	} else if digits < 0 {
		var n int
		ds, n = shortestDigits(f)
		exp = n - 1
	} else {
		exact, point := exactDecimal(f)
		r, carry := roundDigits(exact, digits+1)
		if carry {
			point++
		}
		ds = r
		exp = point - 1
	}
	mant := ds[:1]
	if len(ds) > 1 {
		mant += "." + ds[1:]
	}
	es := "+"
	if exp < 0 {
		es = "-"
		exp = -exp
	}
	return sign + mant + "e" + es + strconv.Itoa(exp)
}

// FormatPrecision implements Number.prototype.toPrecision.
func FormatPrecision(f float64, p int) string {
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	if f == 0 {
		s := "0"
		if p > 1 {
			s += "." + strings.Repeat("0", p-1)
		}
		return sign + s
	}
	exact, point := exactDecimal(f)
	ds, carry := roundDigits(exact, p)
	if carry {
		point++
	}
	e := point - 1
	if e < -6 || e >= p {
		mant := ds[:1]
		if p > 1 {
			mant += "." + ds[1:]
		}
		es := "+"
		if e < 0 {
			es = "-"
			e = -e
		}
		return sign + mant + "e" + es + strconv.Itoa(e)
	}
	if e == p-1 {
		return sign + ds
	}
	if e >= 0 {
		return sign + ds[:e+1] + "." + ds[e+1:]
	}
	return sign + "0." + strings.Repeat("0", -(e+1)) + ds
}
