package parser

import (
	"github.com/skua-js/skua/pkg/lexer"
)

func (p *Parser) parseClassDeclaration() Statement {
	return &ClassDeclaration{Class: p.parseClass(false, false)}
}

// parseClass parses a class declaration or expression. Class bodies are
// always strict.
func (p *Parser) parseClass(isExpr, nameOptional bool) *ClassLiteral {
	tok := p.expect(lexer.CLASS)
	cls := &ClassLiteral{Token: tok, Start: tok.StartPos}
	savedStrict := p.ctx.strict
	p.ctx.strict = true
	defer func() { p.ctx.strict = savedStrict }()

	if p.is(lexer.IDENT) {
		cls.Name = p.parseBindingIdentifier()
		if cls.Name.Value == "await" && p.inAsync() {
			p.failAt(cls.Name.Token, "Unexpected reserved word")
		}
	} else if !isExpr && !nameOptional {
		p.unexpected()
	}
	if p.eat(lexer.EXTENDS) {
		cls.SuperClass = p.parseLeftHandSide()
	}

	p.expect(lexer.LBRACE)
	scope := &classScope{declared: map[string]string{}}
	p.classes = append(p.classes, scope)
	sawConstructor := false
	for !p.is(lexer.RBRACE) {
		if p.eat(lexer.SEMICOLON) {
			continue
		}
		if p.is(lexer.EOF) {
			p.unexpected()
		}
		m := p.parseClassMember(cls.SuperClass != nil)
		if m.Kind == ClassConstructor {
			if sawConstructor {
				p.failAt(m.Token, "A class may only have one constructor")
			}
			sawConstructor = true
		}
		if pid, ok := m.Key.(*PrivateIdentifier); ok {
			p.declarePrivate(scope, pid, m)
		}
		cls.Members = append(cls.Members, m)
	}
	p.next()
	cls.End = p.prev.EndPos

	p.classes = p.classes[:len(p.classes)-1]
	for _, used := range scope.used {
		if _, ok := scope.declared[used.Name]; ok {
			continue
		}
		if len(p.classes) == 0 {
			p.failAt(used.Token, "Private field '#%s' must be declared in an enclosing class", used.Name)
		}
		outer := p.classes[len(p.classes)-1]
		outer.used = append(outer.used, used)
	}
	return cls
}

// declarePrivate records a #name, allowing only a getter/setter pair with the
// same placement to share a name.
func (p *Parser) declarePrivate(scope *classScope, pid *PrivateIdentifier, m *ClassMember) {
	kind := "field"
	switch m.Kind {
	case ClassMethod:
		kind = "method"
	case ClassGetter:
		kind = "get"
	case ClassSetter:
		kind = "set"
	}
	if m.Static {
		kind = "static " + kind
	}
	prev, exists := scope.declared[pid.Name]
	if !exists {
		scope.declared[pid.Name] = kind
		return
	}
	pair := (prev == "get" && kind == "set") || (prev == "set" && kind == "get") ||
		(prev == "static get" && kind == "static set") || (prev == "static set" && kind == "static get")
	if !pair {
		p.failAt(pid.Token, "Identifier '#%s' has already been declared", pid.Name)
	}
	scope.declared[pid.Name] = "accessor"
}

func (p *Parser) parseClassMember(derived bool) *ClassMember {
	tok := p.tok
	m := &ClassMember{Token: tok}

	if p.tok.Is("static") {
		if next := p.peek(); !isPropertyNameEnd(next) {
			p.next()
			m.Static = true
			if p.is(lexer.LBRACE) {
				m.Kind = ClassStaticBlock
				m.Body = p.parseStaticBlock()
				return m
			}
		}
	}

	isAsync, isGenerator := false, false
	kind := ClassMethod
	if p.tok.Is("async") {
		if next := p.peek(); !isPropertyNameEnd(next) && !next.NewlineBefore {
			p.next()
			isAsync = true
		}
	}
	if p.eat(lexer.ASTERISK) {
		isGenerator = true
	}
	if !isAsync && !isGenerator && (p.tok.Is("get") || p.tok.Is("set")) {
		if next := p.peek(); !isPropertyNameEnd(next) {
			if p.tok.Value == "get" {
				kind = ClassGetter
			} else {
				kind = ClassSetter
			}
			p.next()
		}
	}

	keyTok := p.tok
	key, computed := p.parsePropertyName()
	m.Key, m.Computed = key, computed
	name := ""
	if !computed {
		name = propertyKeyName(key)
	}
	if name == "#constructor" {
		p.failAt(keyTok, "Classes may not have a private field named '#constructor'")
	}
	if m.Static && name == "prototype" {
		p.failAt(keyTok, "Classes may not have a static property named 'prototype'")
	}

	if p.is(lexer.LPAREN) {
		m.Kind = kind
		fnKind := FunctionMethod
		switch kind {
		case ClassGetter:
			fnKind = FunctionGetter
		case ClassSetter:
			fnKind = FunctionSetter
		}
		if !m.Static && name == "constructor" {
			switch {
			case kind == ClassGetter || kind == ClassSetter:
				p.failAt(keyTok, "Class constructor may not be an accessor")
			case isGenerator:
				p.failAt(keyTok, "Class constructor may not be a generator")
			case isAsync:
				p.failAt(keyTok, "Class constructor may not be an async method")
			}
			m.Kind = ClassConstructor
			fnKind = FunctionClassConstructor
			if derived {
				fnKind = FunctionDerivedConstructor
			}
		}
		m.Value = p.parseMethod(tok, fnKind, isAsync, isGenerator)
		return m
	}

	if kind != ClassMethod || isAsync || isGenerator {
		p.unexpected()
	}
	if name == "constructor" {
		p.failAt(keyTok, "Classes may not have a field named 'constructor'")
	}
	m.Kind = ClassField
	if p.is(lexer.ASSIGN) {
		p.next()
		p.pushContext(FunctionClassFieldInit, false, false)
		p.withNoIn(false, func() { m.Value = p.parseAssignment() })
		p.popContext()
	}
	if !p.eat(lexer.SEMICOLON) && !p.is(lexer.RBRACE) && !p.tok.NewlineBefore {
		p.unexpected()
	}
	return m
}

func (p *Parser) parseStaticBlock() *BlockStatement {
	p.pushContext(FunctionClassFieldInit, false, false)
	p.ctx.classField = false
	p.ctx.staticBlock = true
	defer p.popContext()
	return p.parseBlockStatement()
}
