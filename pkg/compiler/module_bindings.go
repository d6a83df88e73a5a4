package compiler

import (
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

// moduleInfo collects the import and export entries of a module while
// its body is compiled.
type moduleInfo struct {
	requests []vm.ModuleRequest
	index    map[string]int
	imports  []vm.ImportEntry
	local    []vm.LocalExport
	indirect []vm.IndirectExport
	star     []int
	hoisted  []vm.HoistedFunction
}

// request returns the index of a module request, adding it on first use.
func (mi *moduleInfo) request(specifier string) int {
	if i, ok := mi.index[specifier]; ok {
		return i
	}
	mi.index[specifier] = len(mi.requests)
	mi.requests = append(mi.requests, vm.ModuleRequest{Specifier: specifier})
	return len(mi.requests) - 1
}

func (mi *moduleInfo) importOf(local string) (vm.ImportEntry, bool) {
	for _, in := range mi.imports {
		if in.LocalName == local {
			return in, true
		}
	}
	return vm.ImportEntry{}, false
}

func (mi *moduleInfo) fill(m *vm.ModuleRecord) {
	m.Requests = mi.requests
	m.ImportEntries = mi.imports
	m.LocalExports = mi.local
	m.IndirectExports = mi.indirect
	m.StarExports = mi.star
	m.HoistedFunctions = mi.hoisted
}

// module compiles the body of a module. Function declarations are not
// created by the body; the loader instantiates them when the module is
// linked so that cyclic imports can call them early.
func (c *Compiler) module(prog *parser.Program) *moduleInfo {
	s := c.fi.scope
	c.regs = NewRegisterAllocator(0)
	c.retReg = c.regs.Alloc()
	c.enterScope(s)
	mi := &moduleInfo{index: make(map[string]int)}

	// Requests are numbered in source order, which is the order the
	// dependencies evaluate in.
	for _, st := range prog.Statements {
		switch d := st.(type) {
		case *parser.ImportDeclaration:
			mi.request(d.Source)
		case *parser.ExportNamedDeclaration:
			if d.HasSource {
				mi.request(d.Source)
			}
		case *parser.ExportAllDeclaration:
			mi.request(d.Source)
		}
	}
	for _, st := range prog.Statements {
		imp, ok := st.(*parser.ImportDeclaration)
		if !ok {
			continue
		}
		req := mi.request(imp.Source)
		for _, spec := range imp.Specifiers {
			mi.imports = append(mi.imports, vm.ImportEntry{
				Request:    req,
				ImportName: spec.Imported,
				LocalName:  spec.Local.Value,
				Slot:       s.store[spec.Local.Value].slot,
			})
		}
	}
	for _, st := range prog.Statements {
		c.moduleExports(st, mi)
	}

	for _, st := range prog.Statements {
		switch d := st.(type) {
		case *parser.FunctionDeclaration:
			c.hoistModuleFunction(d.Function, d.Function.Name.Value, "", mi)
		case *parser.ExportNamedDeclaration:
			if fd, ok := d.Declaration.(*parser.FunctionDeclaration); ok {
				c.hoistModuleFunction(fd.Function, fd.Function.Name.Value, "", mi)
			}
		case *parser.ExportDefaultDeclaration:
			if fd, ok := d.Declaration.(*parser.FunctionDeclaration); ok {
				if fd.Function.Name != nil {
					c.hoistModuleFunction(fd.Function, fd.Function.Name.Value, "", mi)
				} else {
					c.hoistModuleFunction(fd.Function, defaultExport, "default", mi)
				}
			}
		}
	}

	c.withDispose(prog.Statements, func() {
		c.stmts(prog.Statements)
	})
	c.implicitReturn()
	c.finish()
	return mi
}

func (c *Compiler) hoistModuleFunction(lit *parser.FunctionLiteral, binding, name string, mi *moduleInfo) {
	tmpl := c.compileFunction(c.u.res.funcs[lit], name)
	mi.hoisted = append(mi.hoisted, vm.HoistedFunction{
		Slot:  c.fi.scope.store[binding].slot,
		Index: c.addFunction(tmpl),
	})
}

// moduleExports records the export entries of one statement. A local
// name that is itself an import becomes an indirect export.
func (c *Compiler) moduleExports(st parser.Statement, mi *moduleInfo) {
	s := c.fi.scope
	local := func(exported, name string) {
		if in, ok := mi.importOf(name); ok && in.ImportName != "*" {
			mi.indirect = append(mi.indirect, vm.IndirectExport{ExportName: exported, Request: in.Request, ImportName: in.ImportName})
			return
		}
		b := s.store[name]
		if b == nil {
			c.fail(st.Pos(), "Export '%s' is not defined in module", name)
		}
		mi.local = append(mi.local, vm.LocalExport{ExportName: exported, LocalName: name, Slot: b.slot})
	}
	switch d := st.(type) {
	case *parser.ExportNamedDeclaration:
		if d.HasSource {
			req := mi.request(d.Source)
			for _, spec := range d.Specifiers {
				mi.indirect = append(mi.indirect, vm.IndirectExport{ExportName: spec.Exported, Request: req, ImportName: spec.Local})
			}
			return
		}
		switch decl := d.Declaration.(type) {
		case nil:
			for _, spec := range d.Specifiers {
				local(spec.Exported, spec.Local)
			}
		case *parser.VariableDeclaration:
			for _, v := range decl.Declarations {
				for _, id := range parser.CollectBoundNames(v.Target, nil) {
					local(id.Value, id.Value)
				}
			}
		case *parser.FunctionDeclaration:
			local(decl.Function.Name.Value, decl.Function.Name.Value)
		case *parser.ClassDeclaration:
			local(decl.Class.Name.Value, decl.Class.Name.Value)
		}
	case *parser.ExportDefaultDeclaration:
		name := defaultExport
		switch decl := d.Declaration.(type) {
		case *parser.FunctionDeclaration:
			if decl.Function.Name != nil {
				name = decl.Function.Name.Value
			}
		case *parser.ClassDeclaration:
			if decl.Class.Name != nil {
				name = decl.Class.Name.Value
			}
		}
		local("default", name)
	case *parser.ExportAllDeclaration:
		req := mi.request(d.Source)
		if d.Exported != "" {
			mi.indirect = append(mi.indirect, vm.IndirectExport{ExportName: d.Exported, Request: req, ImportName: "*"})
			return
		}
		mi.star = append(mi.star, req)
	}
}
