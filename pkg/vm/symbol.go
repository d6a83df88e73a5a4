package vm

// Symbol is a unique property key. Description is nil for Symbol().
// Private symbols implement #names and are never exposed to reflection.
type Symbol struct {
	Description *String
	Private     bool
	// Registered holds the Symbol.for key, or nil.
	Registered *String
}

func NewSymbol(desc *String) *Symbol { return &Symbol{Description: desc} }

// NewPrivateName creates the key for a class private name such as #x.
func NewPrivateName(name string) *Symbol {
	return &Symbol{Description: NewString("#" + name), Private: true}
}

// DescriptiveString returns "Symbol(desc)".
func (s *Symbol) DescriptiveString() string {
	if s.Description == nil {
		return "Symbol()"
	}
	return "Symbol(" + s.Description.String() + ")"
}

// Well-known symbols are shared by every realm.
var (
	SymIterator           = wellKnown("Symbol.iterator")
	SymAsyncIterator      = wellKnown("Symbol.asyncIterator")
	SymHasInstance        = wellKnown("Symbol.hasInstance")
	SymToPrimitive        = wellKnown("Symbol.toPrimitive")
	SymToStringTag        = wellKnown("Symbol.toStringTag")
	SymSpecies            = wellKnown("Symbol.species")
	SymIsConcatSpreadable = wellKnown("Symbol.isConcatSpreadable")
	SymUnscopables        = wellKnown("Symbol.unscopables")
	SymMatch              = wellKnown("Symbol.match")
	SymMatchAll           = wellKnown("Symbol.matchAll")
	SymReplace            = wellKnown("Symbol.replace")
	SymSearch             = wellKnown("Symbol.search")
	SymSplit              = wellKnown("Symbol.split")
	SymDispose            = wellKnown("Symbol.dispose")
	SymAsyncDispose       = wellKnown("Symbol.asyncDispose")
)

// WellKnownSymbols maps the property names on the Symbol constructor to
// their symbols.
var WellKnownSymbols = map[string]*Symbol{
	"iterator":           SymIterator,
	"asyncIterator":      SymAsyncIterator,
	"hasInstance":        SymHasInstance,
	"toPrimitive":        SymToPrimitive,
	"toStringTag":        SymToStringTag,
	"species":            SymSpecies,
	"isConcatSpreadable": SymIsConcatSpreadable,
	"unscopables":        SymUnscopables,
	"match":              SymMatch,
	"matchAll":           SymMatchAll,
	"replace":            SymReplace,
	"search":             SymSearch,
	"split":              SymSplit,
	"dispose":            SymDispose,
	"asyncDispose":       SymAsyncDispose,
}

func wellKnown(desc string) *Symbol { return &Symbol{Description: NewString(desc)} }

// IsWellKnown reports whether s is one of the shared well-known symbols.
func (s *Symbol) IsWellKnown() bool {
	for _, w := range WellKnownSymbols {
		if w == s {
			return true
		}
	}
	return false
}
