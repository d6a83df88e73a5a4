package modules

import (
	"path"
	"strings"
	"time"

	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
)

// ModuleKind says how a resolved module's text is turned into a record.
type ModuleKind int

const (
	KindScript ModuleKind = iota // ECMAScript source text module
	KindJSON                     // JSON module, `with { type: "json" }`
)

func (k ModuleKind) String() string {
	switch k {
	case KindScript:
		return "javascript"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}

// KindFor picks the module kind from import attributes, falling back to
// the file extension.
func KindFor(resolvedPath string, attrs map[string]string) ModuleKind {
	if t, ok := attrs["type"]; ok {
		if t == "json" {
			return KindJSON
		}
		return KindScript
	}
	if strings.EqualFold(path.Ext(resolvedPath), ".json") {
		return KindJSON
	}
	return KindScript
}

// ResolvedModule is the result of a successful resolution.
type ResolvedModule struct {
	Specifier    string // Original import specifier
	ResolvedPath string // Canonical path, the registry key
	Content      string // Module source text
	Resolver     string // Name of the resolver that found it
	URL          string // import.meta.url, when the resolver knows one

	provider RecordProvider
}

// ParseResult is a module parsed ahead of linking, possibly on a worker
// goroutine.
type ParseResult struct {
	Path          string
	Kind          ModuleKind
	Source        *source.SourceFile
	Program       *parser.Program
	Errors        []errors.SkuaError
	Requests      []string // static import and re-export specifiers
	ParseDuration time.Duration
}

// Err returns the first parse error, if any.
func (r *ParseResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// LoaderStats provides statistics about module loading
type LoaderStats struct {
	Resolved   int
	Parsed     int
	Prefetched int
	Compiled   int
	CacheHits  int
	Failed     int
	ParseTime  time.Duration
}

// importRequests lists the static module requests of a parsed module in
// source order.
func importRequests(prog *parser.Program) []string {
	var reqs []string
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *parser.ImportDeclaration:
			reqs = append(reqs, s.Source)
		case *parser.ExportNamedDeclaration:
			if s.HasSource {
				reqs = append(reqs, s.Source)
			}
		case *parser.ExportAllDeclaration:
			reqs = append(reqs, s.Source)
		}
	}
	return reqs
}
