package compiler

import (
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

// class compiles a class definition into dst. name is the inferred name
// of an anonymous class.
//
// The constructor is created by OpClass. Methods are installed in source
// order while computed keys are evaluated. Instance fields and private
// methods go into a synthetic initializer stored on the constructor,
// which runs when an instance is created. Static fields and static
// blocks form a second initializer, called once with the constructor as
// this.
func (c *Compiler) class(cls *parser.ClassLiteral, dst Register, name string) {
	c.markPos(cls.Token)
	if cls.Name != nil {
		name = cls.Name.Value
	}
	s := c.u.res.nodes[cls]
	c.enterScope(s)
	mark := c.regs.Mark()

	for _, b := range s.order {
		if len(b.Name) > 1 && b.Name[0] == '#' {
			r := c.regs.Alloc()
			c.emit(vm.OpNewPrivate, int(r), c.constString(b.Name))
			c.storeSymbol(b, r, true)
			c.regs.Release(r)
		}
	}

	super := c.regs.Alloc()
	flags := 0
	if cls.SuperClass != nil {
		flags |= vm.ClassHasHeritage
		c.expr(cls.SuperClass, super)
	}

	var ctorTmpl *vm.FunctionTemplate
	for _, m := range cls.Members {
		if m.Kind == parser.ClassConstructor {
			ctorTmpl = c.compileFunction(c.u.res.funcs[m.Value.(*parser.FunctionLiteral)], name)
		}
	}
	if ctorTmpl == nil {
		ctorTmpl = c.defaultConstructor(cls.SuperClass != nil, name)
	}
	ctorTmpl.Name = name
	ctorTmpl.Start, ctorTmpl.End = cls.Start, cls.End

	proto, ctor := c.regs.Alloc(), c.regs.Alloc()
	c.markPos(cls.Token)
	c.emit(vm.OpClass, int(proto), int(ctor), int(super), c.addFunction(ctorTmpl), flags)

	for _, m := range cls.Members {
		switch m.Kind {
		case parser.ClassConstructor, parser.ClassStaticBlock:
		case parser.ClassField:
			if m.Computed {
				r := c.regs.Alloc()
				c.propertyKey(m.Key, true, r)
				c.storeSymbol(s.store[c.u.res.hidden[m]], r, true)
				c.regs.Release(r)
			}
		default:
			c.classMethod(m, proto, ctor)
		}
	}

	inits := c.u.res.inits[cls]
	if inst := inits[0]; inst != nil {
		init := c.regs.Alloc()
		tmpl := c.synthetic(inst, "<instance_members_initializer>", func(n *Compiler) {
			n.instanceMembers(cls)
		})
		c.emit(vm.OpClosure, int(init), c.addFunction(tmpl))
		c.emit(vm.OpSetHome, int(init), int(proto))
		c.emit(vm.OpSetFields, int(ctor), int(init))
	}
	if cls.Name != nil {
		c.storeSymbol(s.store[cls.Name.Value], ctor, true)
	}
	if static := inits[1]; static != nil {
		init := c.regs.Alloc()
		tmpl := c.synthetic(static, "<static_initializer>", func(n *Compiler) {
			n.staticMembers(cls)
		})
		c.emit(vm.OpClosure, int(init), c.addFunction(tmpl))
		c.emit(vm.OpSetHome, int(init), int(ctor))
		c.emit(vm.OpCall, int(init), int(init), int(ctor), int(init), 0)
	}
	c.emit(vm.OpMove, int(dst), int(ctor))
	c.regs.Release(mark)
	c.exitScope(s)
}

// classMethod defines a method or accessor. Static private methods are
// added to the constructor right away; instance private methods are kept
// in a hidden binding for the instance initializer.
func (c *Compiler) classMethod(m *parser.ClassMember, proto, ctor Register) {
	mark := c.regs.Mark()
	defer c.regs.Release(mark)
	target := proto
	if m.Static {
		target = ctor
	}
	lit := m.Value.(*parser.FunctionLiteral)
	fn := c.regs.Alloc()
	if pid, ok := m.Key.(*parser.PrivateIdentifier); ok {
		c.closure(lit, fn, privateFunctionName(m, pid))
		c.emit(vm.OpSetHome, int(fn), int(target))
		if m.Static {
			key := c.regs.Alloc()
			c.loadName("#"+pid.Name, key)
			c.emit(vm.OpDefinePrivate, int(ctor), int(key), int(fn), privateKind(m))
			return
		}
		c.storeSymbol(c.scope.store[c.u.res.hidden[m]], fn, true)
		return
	}
	key := c.regs.Alloc()
	c.propertyKey(m.Key, m.Computed, key)
	c.closure(lit, fn, "")
	flags := 0
	switch m.Kind {
	case parser.ClassGetter:
		flags = 1
	case parser.ClassSetter:
		flags = 2
	}
	c.emit(vm.OpDefineMethod, int(target), int(key), int(fn), flags)
}

func privateFunctionName(m *parser.ClassMember, pid *parser.PrivateIdentifier) string {
	switch m.Kind {
	case parser.ClassGetter:
		return "get #" + pid.Name
	case parser.ClassSetter:
		return "set #" + pid.Name
	}
	return "#" + pid.Name
}

func privateKind(m *parser.ClassMember) int {
	switch m.Kind {
	case parser.ClassGetter:
		return vm.PrivateGetter
	case parser.ClassSetter:
		return vm.PrivateSetter
	case parser.ClassField:
		return vm.PrivateField
	}
	return vm.PrivateMethod
}

// synthetic compiles a function without source text of its own, such as
// a class member initializer.
func (c *Compiler) synthetic(fi *funcInfo, name string, body func(n *Compiler)) *vm.FunctionTemplate {
	n := c.child(fi, fi.kind)
	n.tmpl.Name = name
	n.regs = NewRegisterAllocator(0)
	n.retReg = n.regs.Alloc()
	n.enterScope(fi.scope)
	n.initPseudos(fi.scope)
	body(n)
	n.implicitReturn()
	n.finish()
	return n.tmpl
}

// instanceMembers adds the private methods and then the fields of a new
// instance.
func (c *Compiler) instanceMembers(cls *parser.ClassLiteral) {
	this := c.regs.Alloc()
	c.loadPseudo(pseudoThis, this)
	for _, m := range cls.Members {
		pid, ok := m.Key.(*parser.PrivateIdentifier)
		if !ok || m.Static || m.Kind == parser.ClassField || m.Kind == parser.ClassConstructor {
			continue
		}
		mark := c.regs.Mark()
		key, fn := c.regs.Alloc(), c.regs.Alloc()
		c.loadName("#"+pid.Name, key)
		c.loadName(c.u.res.hidden[m], fn)
		c.emit(vm.OpDefinePrivate, int(this), int(key), int(fn), privateKind(m))
		c.regs.Release(mark)
	}
	for _, m := range cls.Members {
		if m.Kind == parser.ClassField && !m.Static {
			c.field(m, this)
		}
	}
}

// staticMembers runs static fields and static blocks in order.
func (c *Compiler) staticMembers(cls *parser.ClassLiteral) {
	this := c.regs.Alloc()
	c.loadPseudo(pseudoThis, this)
	for _, m := range cls.Members {
		switch {
		case m.Kind == parser.ClassField && m.Static:
			c.field(m, this)
		case m.Kind == parser.ClassStaticBlock:
			mark := c.regs.Mark()
			fn, home := c.regs.Alloc(), c.regs.Alloc()
			bi := c.u.res.blocks[m.Body]
			tmpl := c.synthetic(bi, "<static_block>", func(n *Compiler) {
				n.hoistFunctions(m.Body.Statements)
				n.withDispose(m.Body.Statements, func() {
					n.stmts(m.Body.Statements)
				})
			})
			c.emit(vm.OpClosure, int(fn), c.addFunction(tmpl))
			c.emit(vm.OpLoadHome, int(home))
			c.emit(vm.OpSetHome, int(fn), int(home))
			c.emit(vm.OpCall, int(fn), int(fn), int(this), int(fn), 0)
			c.regs.Release(mark)
		}
	}
}

// field defines one field on this.
func (c *Compiler) field(m *parser.ClassMember, this Register) {
	mark := c.regs.Mark()
	defer c.regs.Release(mark)
	c.markPos(m.Token)
	key, v := c.regs.Alloc(), c.regs.Alloc()
	switch k := m.Key.(type) {
	case *parser.PrivateIdentifier:
		c.loadName("#"+k.Name, key)
		c.fieldValue(m, v, "#"+k.Name)
		c.emit(vm.OpDefinePrivate, int(this), int(key), int(v), vm.PrivateField)
		return
	}
	if m.Computed {
		c.loadName(c.u.res.hidden[m], key)
		c.fieldValue(m, v, "")
		if m.Value != nil && isAnonymousFunction(m.Value) {
			c.emit(vm.OpSetFuncName, int(v), int(key), 0)
		}
		c.emit(vm.OpDefineField, int(this), int(key), int(v))
		return
	}
	name, _ := propertyKeyName(m.Key)
	c.fieldValue(m, v, name)
	c.emit(vm.OpDefineFieldK, int(this), c.constString(name), int(v))
}

func (c *Compiler) fieldValue(m *parser.ClassMember, dst Register, name string) {
	if m.Value == nil {
		c.emit(vm.OpLoadUndefined, int(dst))
		return
	}
	c.exprNamed(m.Value, dst, name)
}

// defaultConstructor builds the constructor of a class without one. A
// derived class passes its arguments on to the parent constructor.
func (c *Compiler) defaultConstructor(derived bool, name string) *vm.FunctionTemplate {
	t := &vm.FunctionTemplate{Kind: vm.KindClassConstructor, Strict: true, Source: c.u.src, Name: name}
	ch := &t.Chunk
	ch.MarkPosition(c.lastTok.Line, c.lastTok.Column)
	if derived {
		t.Kind = vm.KindDerivedConstructor
		// r0 arguments, r1 callee, r2 new.target, r3 this
		ch.Emit(vm.OpCreateRest, 0, 0)
		ch.Emit(vm.OpLoadCallee, 1)
		ch.Emit(vm.OpLoadNewTarget, 2)
		ch.Emit(vm.OpSuperCallSpread, 3, 1, 2, 0)
		ch.Emit(vm.OpInitFields, 3, 1)
		ch.Emit(vm.OpReturn, 3)
		t.NumRegs = 4
		return t
	}
	ch.Emit(vm.OpLoadThis, 0)
	ch.Emit(vm.OpLoadCallee, 1)
	ch.Emit(vm.OpInitFields, 0, 1)
	ch.Emit(vm.OpLoadUndefined, 1)
	ch.Emit(vm.OpReturn, 1)
	t.NumRegs = 2
	return t
}
