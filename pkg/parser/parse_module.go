package parser

import (
	"github.com/skua-js/skua/pkg/jsstr"
	"github.com/skua-js/skua/pkg/lexer"
)

// parseModuleSpecifier parses the string after `from` and an optional
// `with { ... }` attributes clause, which is accepted and ignored.
func (p *Parser) parseModuleSpecifier() string {
	if !p.is(lexer.STRING) {
		p.unexpected()
	}
	spec := p.tok.Value
	p.next()
	if p.is(lexer.WITH) && !p.tok.NewlineBefore {
		p.next()
		p.expect(lexer.LBRACE)
		for !p.eat(lexer.RBRACE) {
			if !p.tok.IsIdentifierName() && !p.is(lexer.STRING) {
				p.unexpected()
			}
			p.next()
			p.expect(lexer.COLON)
			if !p.is(lexer.STRING) {
				p.unexpected()
			}
			p.next()
			if !p.is(lexer.RBRACE) {
				p.expect(lexer.COMMA)
			}
		}
	}
	return spec
}

// parseModuleExportName parses an IdentifierName or a string literal.
func (p *Parser) parseModuleExportName() (string, lexer.Token, bool) {
	tok := p.tok
	if tok.Type == lexer.STRING {
		if !jsstr.IsWellFormed(jsstr.ToUnits(tok.Value)) {
			p.fail("Invalid module export name: contains unpaired surrogate")
		}
		p.next()
		return tok.Value, tok, true
	}
	if !tok.IsIdentifierName() {
		p.unexpected()
	}
	p.next()
	return tok.Value, tok, false
}

func (p *Parser) parseImportDeclaration() Statement {
	decl := &ImportDeclaration{Token: p.expect(lexer.IMPORT)}
	if p.is(lexer.STRING) {
		decl.Source = p.parseModuleSpecifier()
		p.consumeSemicolon()
		return decl
	}
	more := true
	if p.is(lexer.IDENT) {
		tok := p.tok
		decl.Specifiers = append(decl.Specifiers, &ImportSpecifier{Token: tok, Imported: "default", Local: p.parseBindingIdentifier()})
		more = p.eat(lexer.COMMA)
	}
	switch {
	case !more:
	case p.is(lexer.ASTERISK):
		tok := p.tok
		p.next()
		if !p.tok.Is("as") {
			p.unexpected()
		}
		p.next()
		decl.Specifiers = append(decl.Specifiers, &ImportSpecifier{Token: tok, Imported: "*", Local: p.parseBindingIdentifier()})
	case p.is(lexer.LBRACE):
		p.next()
		for !p.eat(lexer.RBRACE) {
			name, tok, isString := p.parseModuleExportName()
			spec := &ImportSpecifier{Token: tok, Imported: name}
			if p.tok.Is("as") {
				p.next()
				spec.Local = p.parseBindingIdentifier()
			} else {
				if isString || !p.isIdentifierToken(tok) {
					p.failAt(tok, "Unexpected token '%s'", tok.Literal)
				}
				p.checkBindingName(tok, name)
				spec.Local = &Identifier{Token: tok, Value: name}
			}
			decl.Specifiers = append(decl.Specifiers, spec)
			if !p.is(lexer.RBRACE) {
				p.expect(lexer.COMMA)
			}
		}
	default:
		p.unexpected()
	}
	if !p.tok.Is("from") {
		p.unexpected()
	}
	p.next()
	decl.Source = p.parseModuleSpecifier()
	p.consumeSemicolon()
	return decl
}

func (p *Parser) addExport(tok lexer.Token, name string) {
	if p.exported == nil {
		p.exported = map[string]bool{}
	}
	if p.exported[name] {
		p.failAt(tok, "Duplicate export of '%s'", name)
	}
	p.exported[name] = true
}

func (p *Parser) parseExportDeclaration() Statement {
	tok := p.expect(lexer.EXPORT)
	switch {
	case p.is(lexer.DEFAULT):
		p.addExport(p.tok, "default")
		p.next()
		ed := &ExportDefaultDeclaration{Token: tok}
		switch {
		case p.is(lexer.FUNCTION):
			ed.Declaration = &FunctionDeclaration{Function: p.parseFunctionLiteral(p.tok, false, false, true)}
		case p.tok.Is("async") && p.peek().Type == lexer.FUNCTION && !p.peek().NewlineBefore:
			start := p.tok
			p.next()
			ed.Declaration = &FunctionDeclaration{Function: p.parseFunctionLiteral(start, true, false, true)}
		case p.is(lexer.CLASS):
			ed.Declaration = &ClassDeclaration{Class: p.parseClass(false, true)}
		default:
			exprTok := p.tok
			ed.Declaration = &ExpressionStatement{Token: exprTok, Expression: p.parseAssignment()}
			p.consumeSemicolon()
		}
		return ed

	case p.is(lexer.ASTERISK):
		p.next()
		ea := &ExportAllDeclaration{Token: tok}
		if p.tok.Is("as") {
			p.next()
			name, nameTok, _ := p.parseModuleExportName()
			p.addExport(nameTok, name)
			ea.Exported = name
		}
		if !p.tok.Is("from") {
			p.unexpected()
		}
		p.next()
		ea.Source = p.parseModuleSpecifier()
		p.consumeSemicolon()
		return ea

	case p.is(lexer.LBRACE):
		p.next()
		en := &ExportNamedDeclaration{Token: tok}
		var localToks []lexer.Token
		var localIsString []bool
		for !p.eat(lexer.RBRACE) {
			local, localTok, isString := p.parseModuleExportName()
			spec := &ExportSpecifier{Token: localTok, Local: local, Exported: local}
			if p.tok.Is("as") {
				p.next()
				exported, _, _ := p.parseModuleExportName()
				spec.Exported = exported
			}
			p.addExport(localTok, spec.Exported)
			en.Specifiers = append(en.Specifiers, spec)
			localToks = append(localToks, localTok)
			localIsString = append(localIsString, isString)
			if !p.is(lexer.RBRACE) {
				p.expect(lexer.COMMA)
			}
		}
		if p.tok.Is("from") {
			p.next()
			en.Source = p.parseModuleSpecifier()
			en.HasSource = true
		} else {
			// Without `from`, the local names must be references.
			for i, lt := range localToks {
				if localIsString[i] || lexer.IsKeyword(lt.Value) || lexer.IsStrictReserved(lt.Value) || lt.Value == "await" {
					p.failAt(lt, "Unexpected token '%s'", lt.Literal)
				}
			}
		}
		p.consumeSemicolon()
		return en
	}

	en := &ExportNamedDeclaration{Token: tok}
	switch {
	case p.is(lexer.VAR):
		varTok := p.tok
		p.next()
		en.Declaration = p.parseVariableDeclarationList(varTok, "var", false)
		p.consumeSemicolon()
	case p.is(lexer.CONST) || p.tok.Is("let"):
		en.Declaration = p.parseLexicalDeclaration(true)
	case p.is(lexer.FUNCTION):
		en.Declaration = p.parseFunctionDeclaration(false, p.tok)
	case p.tok.Is("async"):
		start := p.tok
		p.next()
		if !p.is(lexer.FUNCTION) || p.tok.NewlineBefore {
			p.unexpected()
		}
		en.Declaration = p.parseFunctionDeclaration(true, start)
	case p.is(lexer.CLASS):
		en.Declaration = p.parseClassDeclaration()
	default:
		p.unexpected()
	}
	for _, name := range DeclaredNames(en.Declaration) {
		p.addExport(name.Token, name.Value)
	}
	return en
}

// DeclaredNames returns the bindings introduced by a declaration statement.
func DeclaredNames(stmt Statement) []*Identifier {
	switch d := stmt.(type) {
	case *VariableDeclaration:
		var out []*Identifier
		for _, decl := range d.Declarations {
			out = CollectBoundNames(decl.Target, out)
		}
		return out
	case *FunctionDeclaration:
		if d.Function.Name != nil {
			return []*Identifier{d.Function.Name}
		}
	case *ClassDeclaration:
		if d.Class.Name != nil {
			return []*Identifier{d.Class.Name}
		}
	}
	return nil
}
