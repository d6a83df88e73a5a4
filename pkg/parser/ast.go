package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/source"
)

// --- Interfaces ---

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string // Returns the literal value of the token associated with the node
	String() string       // Returns a string representation of the node (for debugging)
	Pos() lexer.Token     // The token the node starts at, used for positions
}

// Statement represents a statement node in the AST.
type Statement interface {
	Node
	statementNode()
}

// Expression represents an expression node in the AST. Assignment targets
// and binding patterns are expressions too.
type Expression interface {
	Node
	expressionNode()
}

// --- Program ---

// Program is the root node of the AST for a script or a module.
type Program struct {
	Statements []Statement
	Source     *source.SourceFile
	Strict     bool
	IsModule   bool
	// HasTopLevelAwait is set for modules that await at the top level.
	HasTopLevelAwait bool
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) Pos() lexer.Token {
	if len(p.Statements) > 0 {
		return p.Statements[0].Pos()
	}
	return lexer.Token{Line: 1, Column: 1}
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
		out.WriteString("\n")
	}
	return out.String()
}

// --- Statements ---

// VariableDeclaration covers var, let, const, using and await using.
type VariableDeclaration struct {
	Token        lexer.Token
	Kind         string // "var", "let", "const", "using", "await using"
	Declarations []*VariableDeclarator
}

// VariableDeclarator is one `target = init` entry of a declaration.
type VariableDeclarator struct {
	Token  lexer.Token
	Target Expression // *Identifier, *ArrayPattern or *ObjectPattern
	Init   Expression
}

func (vd *VariableDeclaration) statementNode()       {}
func (vd *VariableDeclaration) TokenLiteral() string { return vd.Token.Literal }
func (vd *VariableDeclaration) Pos() lexer.Token     { return vd.Token }
func (vd *VariableDeclaration) String() string {
	parts := make([]string, len(vd.Declarations))
	for i, d := range vd.Declarations {
		parts[i] = d.String()
	}
	return vd.Kind + " " + strings.Join(parts, ", ") + ";"
}

// IsLexical reports whether the declaration creates block-scoped bindings.
func (vd *VariableDeclaration) IsLexical() bool { return vd.Kind != "var" }

// IsUsing reports whether the declaration registers disposable resources.
func (vd *VariableDeclaration) IsUsing() bool {
	return vd.Kind == "using" || vd.Kind == "await using"
}

func (d *VariableDeclarator) String() string {
	if d.Init == nil {
		return d.Target.String()
	}
	return d.Target.String() + " = " + d.Init.String()
}

// FunctionDeclaration is a hoistable function statement.
type FunctionDeclaration struct {
	Function *FunctionLiteral
}

func (fd *FunctionDeclaration) statementNode()       {}
func (fd *FunctionDeclaration) TokenLiteral() string { return fd.Function.Token.Literal }
func (fd *FunctionDeclaration) Pos() lexer.Token     { return fd.Function.Token }
func (fd *FunctionDeclaration) String() string       { return fd.Function.String() }

// ClassDeclaration is a class statement.
type ClassDeclaration struct {
	Class *ClassLiteral
}

func (cd *ClassDeclaration) statementNode()       {}
func (cd *ClassDeclaration) TokenLiteral() string { return cd.Class.Token.Literal }
func (cd *ClassDeclaration) Pos() lexer.Token     { return cd.Class.Token }
func (cd *ClassDeclaration) String() string       { return cd.Class.String() }

// ExpressionStatement wraps an expression evaluated for its effects.
type ExpressionStatement struct {
	Token      lexer.Token
	Expression Expression
	// Directive holds the raw text of a directive prologue string, if any.
	Directive string
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Literal }
func (es *ExpressionStatement) Pos() lexer.Token     { return es.Token }
func (es *ExpressionStatement) String() string {
	if es.Expression == nil {
		return ";"
	}
	return es.Expression.String() + ";"
}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	Token      lexer.Token
	Statements []Statement
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) Pos() lexer.Token     { return bs.Token }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("}")
	return out.String()
}

// EmptyStatement is a lone semicolon.
type EmptyStatement struct {
	Token lexer.Token
}

func (es *EmptyStatement) statementNode()       {}
func (es *EmptyStatement) TokenLiteral() string { return es.Token.Literal }
func (es *EmptyStatement) Pos() lexer.Token     { return es.Token }
func (es *EmptyStatement) String() string       { return ";" }

// IfStatement represents if/else.
type IfStatement struct {
	Token      lexer.Token
	Test       Expression
	Consequent Statement
	Alternate  Statement
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) Pos() lexer.Token     { return is.Token }
func (is *IfStatement) String() string {
	s := "if (" + is.Test.String() + ") " + is.Consequent.String()
	if is.Alternate != nil {
		s += " else " + is.Alternate.String()
	}
	return s
}

// ForStatement is the three-clause for loop.
type ForStatement struct {
	Token  lexer.Token
	Init   Node // *VariableDeclaration, Expression or nil
	Test   Expression
	Update Expression
	Body   Statement
}

func (fs *ForStatement) statementNode()       {}
func (fs *ForStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForStatement) Pos() lexer.Token     { return fs.Token }
func (fs *ForStatement) String() string {
	var out bytes.Buffer
	out.WriteString("for (")
	if fs.Init != nil {
		out.WriteString(strings.TrimSuffix(fs.Init.String(), ";"))
	}
	out.WriteString("; ")
	if fs.Test != nil {
		out.WriteString(fs.Test.String())
	}
	out.WriteString("; ")
	if fs.Update != nil {
		out.WriteString(fs.Update.String())
	}
	out.WriteString(") ")
	out.WriteString(fs.Body.String())
	return out.String()
}

// ForInStatement is `for (left in right)`.
type ForInStatement struct {
	Token lexer.Token
	Left  Node // *VariableDeclaration or assignment target
	Right Expression
	Body  Statement
}

func (fs *ForInStatement) statementNode()       {}
func (fs *ForInStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForInStatement) Pos() lexer.Token     { return fs.Token }
func (fs *ForInStatement) String() string {
	return "for (" + strings.TrimSuffix(fs.Left.String(), ";") + " in " + fs.Right.String() + ") " + fs.Body.String()
}

// ForOfStatement is `for (left of right)` and `for await (left of right)`.
type ForOfStatement struct {
	Token lexer.Token
	Left  Node
	Right Expression
	Body  Statement
	Await bool
}

func (fs *ForOfStatement) statementNode()       {}
func (fs *ForOfStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForOfStatement) Pos() lexer.Token     { return fs.Token }
func (fs *ForOfStatement) String() string {
	kw := "for ("
	if fs.Await {
		kw = "for await ("
	}
	return kw + strings.TrimSuffix(fs.Left.String(), ";") + " of " + fs.Right.String() + ") " + fs.Body.String()
}

// WhileStatement is a while loop.
type WhileStatement struct {
	Token lexer.Token
	Test  Expression
	Body  Statement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) Pos() lexer.Token     { return ws.Token }
func (ws *WhileStatement) String() string {
	return "while (" + ws.Test.String() + ") " + ws.Body.String()
}

// DoWhileStatement is a do/while loop.
type DoWhileStatement struct {
	Token lexer.Token
	Body  Statement
	Test  Expression
}

func (ds *DoWhileStatement) statementNode()       {}
func (ds *DoWhileStatement) TokenLiteral() string { return ds.Token.Literal }
func (ds *DoWhileStatement) Pos() lexer.Token     { return ds.Token }
func (ds *DoWhileStatement) String() string {
	return "do " + ds.Body.String() + " while (" + ds.Test.String() + ");"
}

// ReturnStatement represents `return [argument]`.
type ReturnStatement struct {
	Token    lexer.Token
	Argument Expression
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) Pos() lexer.Token     { return rs.Token }
func (rs *ReturnStatement) String() string {
	if rs.Argument == nil {
		return "return;"
	}
	return "return " + rs.Argument.String() + ";"
}

// BreakStatement represents `break [label]`.
type BreakStatement struct {
	Token lexer.Token
	Label string
}

func (bs *BreakStatement) statementNode()       {}
func (bs *BreakStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BreakStatement) Pos() lexer.Token     { return bs.Token }
func (bs *BreakStatement) String() string {
	if bs.Label != "" {
		return "break " + bs.Label + ";"
	}
	return "break;"
}

// ContinueStatement represents `continue [label]`.
type ContinueStatement struct {
	Token lexer.Token
	Label string
}

func (cs *ContinueStatement) statementNode()       {}
func (cs *ContinueStatement) TokenLiteral() string { return cs.Token.Literal }
func (cs *ContinueStatement) Pos() lexer.Token     { return cs.Token }
func (cs *ContinueStatement) String() string {
	if cs.Label != "" {
		return "continue " + cs.Label + ";"
	}
	return "continue;"
}

// ThrowStatement represents `throw argument`.
type ThrowStatement struct {
	Token    lexer.Token
	Argument Expression
}

func (ts *ThrowStatement) statementNode()       {}
func (ts *ThrowStatement) TokenLiteral() string { return ts.Token.Literal }
func (ts *ThrowStatement) Pos() lexer.Token     { return ts.Token }
func (ts *ThrowStatement) String() string       { return "throw " + ts.Argument.String() + ";" }

// TryStatement represents try/catch/finally. Param is nil for an optional
// catch binding; Handler is nil when there is no catch clause.
type TryStatement struct {
	Token     lexer.Token
	Block     *BlockStatement
	Param     Expression
	Handler   *BlockStatement
	Finalizer *BlockStatement
}

func (ts *TryStatement) statementNode()       {}
func (ts *TryStatement) TokenLiteral() string { return ts.Token.Literal }
func (ts *TryStatement) Pos() lexer.Token     { return ts.Token }
func (ts *TryStatement) String() string {
	s := "try " + ts.Block.String()
	if ts.Handler != nil {
		s += " catch "
		if ts.Param != nil {
			s += "(" + ts.Param.String() + ") "
		}
		s += ts.Handler.String()
	}
	if ts.Finalizer != nil {
		s += " finally " + ts.Finalizer.String()
	}
	return s
}

// SwitchCase is a case or default clause. Test is nil for default.
type SwitchCase struct {
	Token      lexer.Token
	Test       Expression
	Consequent []Statement
}

func (sc *SwitchCase) String() string {
	var out bytes.Buffer
	if sc.Test == nil {
		out.WriteString("default:")
	} else {
		out.WriteString("case " + sc.Test.String() + ":")
	}
	for _, s := range sc.Consequent {
		out.WriteString(" " + s.String())
	}
	return out.String()
}

// SwitchStatement represents a switch.
type SwitchStatement struct {
	Token        lexer.Token
	Discriminant Expression
	Cases        []*SwitchCase
}

func (ss *SwitchStatement) statementNode()       {}
func (ss *SwitchStatement) TokenLiteral() string { return ss.Token.Literal }
func (ss *SwitchStatement) Pos() lexer.Token     { return ss.Token }
func (ss *SwitchStatement) String() string {
	var out bytes.Buffer
	out.WriteString("switch (" + ss.Discriminant.String() + ") { ")
	for _, c := range ss.Cases {
		out.WriteString(c.String() + " ")
	}
	out.WriteString("}")
	return out.String()
}

// LabeledStatement attaches a label to a statement.
type LabeledStatement struct {
	Token lexer.Token
	Label string
	Body  Statement
}

func (ls *LabeledStatement) statementNode()       {}
func (ls *LabeledStatement) TokenLiteral() string { return ls.Token.Literal }
func (ls *LabeledStatement) Pos() lexer.Token     { return ls.Token }
func (ls *LabeledStatement) String() string       { return ls.Label + ": " + ls.Body.String() }

// WithStatement represents `with (object) body` (sloppy mode only).
type WithStatement struct {
	Token  lexer.Token
	Object Expression
	Body   Statement
}

func (ws *WithStatement) statementNode()       {}
func (ws *WithStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WithStatement) Pos() lexer.Token     { return ws.Token }
func (ws *WithStatement) String() string {
	return "with (" + ws.Object.String() + ") " + ws.Body.String()
}

// DebuggerStatement is a no-op.
type DebuggerStatement struct {
	Token lexer.Token
}

func (ds *DebuggerStatement) statementNode()       {}
func (ds *DebuggerStatement) TokenLiteral() string { return ds.Token.Literal }
func (ds *DebuggerStatement) Pos() lexer.Token     { return ds.Token }
func (ds *DebuggerStatement) String() string       { return "debugger;" }

// --- Modules ---

// ImportSpecifier binds Local to the export Imported of a module.
// Imported is "default" for default imports and "*" for namespace imports.
type ImportSpecifier struct {
	Token    lexer.Token
	Imported string
	Local    *Identifier
}

// ImportDeclaration is a static import.
type ImportDeclaration struct {
	Token      lexer.Token
	Specifiers []*ImportSpecifier
	Source     string
}

func (id *ImportDeclaration) statementNode()       {}
func (id *ImportDeclaration) TokenLiteral() string { return id.Token.Literal }
func (id *ImportDeclaration) Pos() lexer.Token     { return id.Token }
func (id *ImportDeclaration) String() string {
	parts := make([]string, len(id.Specifiers))
	for i, s := range id.Specifiers {
		switch s.Imported {
		case "default":
			parts[i] = s.Local.Value
		case "*":
			parts[i] = "* as " + s.Local.Value
		default:
			parts[i] = "{ " + s.Imported + " as " + s.Local.Value + " }"
		}
	}
	if len(parts) == 0 {
		return "import " + strconv.Quote(id.Source) + ";"
	}
	return "import " + strings.Join(parts, ", ") + " from " + strconv.Quote(id.Source) + ";"
}

// ExportSpecifier exports Local under the name Exported.
type ExportSpecifier struct {
	Token    lexer.Token
	Local    string
	Exported string
}

// ExportNamedDeclaration covers `export decl`, `export { a as b }` and
// `export { a } from "m"`.
type ExportNamedDeclaration struct {
	Token       lexer.Token
	Declaration Statement
	Specifiers  []*ExportSpecifier
	Source      string
	HasSource   bool
}

func (ed *ExportNamedDeclaration) statementNode()       {}
func (ed *ExportNamedDeclaration) TokenLiteral() string { return ed.Token.Literal }
func (ed *ExportNamedDeclaration) Pos() lexer.Token     { return ed.Token }
func (ed *ExportNamedDeclaration) String() string {
	if ed.Declaration != nil {
		return "export " + ed.Declaration.String()
	}
	parts := make([]string, len(ed.Specifiers))
	for i, s := range ed.Specifiers {
		parts[i] = s.Local + " as " + s.Exported
	}
	s := "export { " + strings.Join(parts, ", ") + " }"
	if ed.HasSource {
		s += " from " + strconv.Quote(ed.Source)
	}
	return s + ";"
}

// ExportDefaultDeclaration is `export default ...`. Declaration is a
// *FunctionDeclaration, *ClassDeclaration or an *ExpressionStatement.
type ExportDefaultDeclaration struct {
	Token       lexer.Token
	Declaration Statement
}

func (ed *ExportDefaultDeclaration) statementNode()       {}
func (ed *ExportDefaultDeclaration) TokenLiteral() string { return ed.Token.Literal }
func (ed *ExportDefaultDeclaration) Pos() lexer.Token     { return ed.Token }
func (ed *ExportDefaultDeclaration) String() string {
	return "export default " + ed.Declaration.String()
}

// ExportAllDeclaration is `export * from "m"` or `export * as ns from "m"`.
type ExportAllDeclaration struct {
	Token    lexer.Token
	Exported string
	Source   string
}

func (ed *ExportAllDeclaration) statementNode()       {}
func (ed *ExportAllDeclaration) TokenLiteral() string { return ed.Token.Literal }
func (ed *ExportAllDeclaration) Pos() lexer.Token     { return ed.Token }
func (ed *ExportAllDeclaration) String() string {
	if ed.Exported != "" {
		return "export * as " + ed.Exported + " from " + strconv.Quote(ed.Source) + ";"
	}
	return "export * from " + strconv.Quote(ed.Source) + ";"
}

// --- Expressions ---

// Identifier is a reference to a binding.
type Identifier struct {
	Token lexer.Token
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) Pos() lexer.Token     { return i.Token }
func (i *Identifier) String() string       { return i.Value }

// PrivateIdentifier is a #name in a member access or a `#x in o` test.
type PrivateIdentifier struct {
	Token lexer.Token
	Name  string // without the leading '#'
}

func (pi *PrivateIdentifier) expressionNode()      {}
func (pi *PrivateIdentifier) TokenLiteral() string { return pi.Token.Literal }
func (pi *PrivateIdentifier) Pos() lexer.Token     { return pi.Token }
func (pi *PrivateIdentifier) String() string       { return "#" + pi.Name }

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	Token lexer.Token
	Value float64
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) Pos() lexer.Token     { return nl.Token }
func (nl *NumberLiteral) String() string       { return nl.Token.Literal }

// BigIntLiteral is a BigInt literal; Digits is in base 10.
type BigIntLiteral struct {
	Token  lexer.Token
	Digits string
}

func (bl *BigIntLiteral) expressionNode()      {}
func (bl *BigIntLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BigIntLiteral) Pos() lexer.Token     { return bl.Token }
func (bl *BigIntLiteral) String() string       { return bl.Digits + "n" }

// StringLiteral is a string literal; Value is WTF-8 encoded.
type StringLiteral struct {
	Token lexer.Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) Pos() lexer.Token     { return sl.Token }
func (sl *StringLiteral) String() string       { return strconv.Quote(sl.Value) }

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) Pos() lexer.Token     { return bl.Token }
func (bl *BooleanLiteral) String() string       { return bl.Token.Literal }

// NullLiteral is null.
type NullLiteral struct {
	Token lexer.Token
}

func (nl *NullLiteral) expressionNode()      {}
func (nl *NullLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NullLiteral) Pos() lexer.Token     { return nl.Token }
func (nl *NullLiteral) String() string       { return "null" }

// RegExpLiteral is /pattern/flags.
type RegExpLiteral struct {
	Token   lexer.Token
	Pattern string
	Flags   string
}

func (rl *RegExpLiteral) expressionNode()      {}
func (rl *RegExpLiteral) TokenLiteral() string { return rl.Token.Literal }
func (rl *RegExpLiteral) Pos() lexer.Token     { return rl.Token }
func (rl *RegExpLiteral) String() string       { return "/" + rl.Pattern + "/" + rl.Flags }

// TemplateElement is one literal segment of a template. When the segment
// contains an invalid escape, CookedValid is false and only Raw is usable.
type TemplateElement struct {
	Token       lexer.Token
	Cooked      string
	CookedValid bool
	Raw         string
}

// TemplateLiteral is `a${x}b`. len(Quasis) == len(Expressions)+1.
type TemplateLiteral struct {
	Token       lexer.Token
	Quasis      []*TemplateElement
	Expressions []Expression
}

func (tl *TemplateLiteral) expressionNode()      {}
func (tl *TemplateLiteral) TokenLiteral() string { return tl.Token.Literal }
func (tl *TemplateLiteral) Pos() lexer.Token     { return tl.Token }
func (tl *TemplateLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("`")
	for i, q := range tl.Quasis {
		out.WriteString(q.Raw)
		if i < len(tl.Expressions) {
			out.WriteString("${" + tl.Expressions[i].String() + "}")
		}
	}
	out.WriteString("`")
	return out.String()
}

// TaggedTemplate is tag`...`.
type TaggedTemplate struct {
	Token lexer.Token
	Tag   Expression
	Quasi *TemplateLiteral
}

func (tt *TaggedTemplate) expressionNode()      {}
func (tt *TaggedTemplate) TokenLiteral() string { return tt.Token.Literal }
func (tt *TaggedTemplate) Pos() lexer.Token     { return tt.Token }
func (tt *TaggedTemplate) String() string       { return tt.Tag.String() + tt.Quasi.String() }

// ThisExpression is `this`.
type ThisExpression struct {
	Token lexer.Token
}

func (te *ThisExpression) expressionNode()      {}
func (te *ThisExpression) TokenLiteral() string { return te.Token.Literal }
func (te *ThisExpression) Pos() lexer.Token     { return te.Token }
func (te *ThisExpression) String() string       { return "this" }

// SuperExpression is `super`, valid only as a callee or member object.
type SuperExpression struct {
	Token lexer.Token
}

func (se *SuperExpression) expressionNode()      {}
func (se *SuperExpression) TokenLiteral() string { return se.Token.Literal }
func (se *SuperExpression) Pos() lexer.Token     { return se.Token }
func (se *SuperExpression) String() string       { return "super" }

// ArrayLiteral is [a, , ...b]. Holes are nil elements.
type ArrayLiteral struct {
	Token    lexer.Token
	Elements []Expression
	// TrailingCommaAfterSpread prevents conversion to a rest pattern.
	TrailingCommaAfterSpread bool
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) Pos() lexer.Token     { return al.Token }
func (al *ArrayLiteral) String() string {
	parts := make([]string, len(al.Elements))
	for i, e := range al.Elements {
		if e != nil {
			parts[i] = e.String()
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// PropertyKind distinguishes object literal members.
type PropertyKind int

const (
	PropertyInit PropertyKind = iota
	PropertyGet
	PropertySet
	PropertyMethod
	PropertySpread
	PropertyProto // __proto__: value
)

// Property is a member of an object literal.
type Property struct {
	Token     lexer.Token
	Kind      PropertyKind
	Key       Expression // *Identifier (non-computed name), literal, or computed expression
	Computed  bool
	Value     Expression
	Shorthand bool
}

func (p *Property) String() string {
	if p.Kind == PropertySpread {
		return "..." + p.Value.String()
	}
	key := p.Key.String()
	if p.Computed {
		key = "[" + key + "]"
	}
	switch p.Kind {
	case PropertyGet:
		return "get " + key + "()"
	case PropertySet:
		return "set " + key + "()"
	case PropertyMethod:
		return key + "()"
	}
	if p.Shorthand {
		return p.Value.String()
	}
	return key + ": " + p.Value.String()
}

// ObjectLiteral is { ... }.
type ObjectLiteral struct {
	Token      lexer.Token
	Properties []*Property
}

func (ol *ObjectLiteral) expressionNode()      {}
func (ol *ObjectLiteral) TokenLiteral() string { return ol.Token.Literal }
func (ol *ObjectLiteral) Pos() lexer.Token     { return ol.Token }
func (ol *ObjectLiteral) String() string {
	parts := make([]string, len(ol.Properties))
	for i, p := range ol.Properties {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FunctionKind records how a function was defined, which decides its
// constructability, its `super` access and its `this` handling.
type FunctionKind int

const (
	FunctionNormal FunctionKind = iota
	FunctionArrow
	FunctionMethod
	FunctionGetter
	FunctionSetter
	FunctionClassConstructor
	FunctionDerivedConstructor
	FunctionClassFieldInit // synthetic initializer for instance or static fields
)

// FunctionLiteral represents any function form: declarations, expressions,
// arrows, methods and accessors.
type FunctionLiteral struct {
	Token       lexer.Token
	Name        *Identifier
	Params      []Expression // patterns; a trailing *RestElement collects the rest
	Body        *BlockStatement
	Kind        FunctionKind
	IsAsync     bool
	IsGenerator bool
	// ExpressionBody marks concise arrow bodies (the body holds a return).
	ExpressionBody bool
	Strict         bool
	SimpleParams   bool
	// Start and End delimit the source text returned by toString.
	Start, End int
	// IsExpression distinguishes named function expressions, whose name
	// binds inside the function only.
	IsExpression bool
}

func (fl *FunctionLiteral) expressionNode()      {}
func (fl *FunctionLiteral) TokenLiteral() string { return fl.Token.Literal }
func (fl *FunctionLiteral) Pos() lexer.Token     { return fl.Token }
func (fl *FunctionLiteral) String() string {
	var out bytes.Buffer
	params := make([]string, len(fl.Params))
	for i, p := range fl.Params {
		params[i] = p.String()
	}
	if fl.IsAsync {
		out.WriteString("async ")
	}
	if fl.Kind == FunctionArrow {
		out.WriteString("(" + strings.Join(params, ", ") + ") => ")
		out.WriteString(fl.Body.String())
		return out.String()
	}
	out.WriteString("function")
	if fl.IsGenerator {
		out.WriteString("*")
	}
	if fl.Name != nil {
		out.WriteString(" " + fl.Name.Value)
	}
	out.WriteString("(" + strings.Join(params, ", ") + ") ")
	out.WriteString(fl.Body.String())
	return out.String()
}

// IsArrow reports whether the function is an arrow function.
func (fl *FunctionLiteral) IsArrow() bool { return fl.Kind == FunctionArrow }

// ClassMemberKind enumerates class element forms.
type ClassMemberKind int

const (
	ClassMethod ClassMemberKind = iota
	ClassGetter
	ClassSetter
	ClassField
	ClassStaticBlock
	ClassConstructor
)

// ClassMember is an element of a class body. For private members Key is a
// *PrivateIdentifier.
type ClassMember struct {
	Token    lexer.Token
	Kind     ClassMemberKind
	Static   bool
	Key      Expression
	Computed bool
	// Value is the method function, or the field initializer (may be nil).
	Value Expression
	// Body is the static block body.
	Body *BlockStatement
}

// IsPrivate reports whether the member has a #name.
func (cm *ClassMember) IsPrivate() bool {
	_, ok := cm.Key.(*PrivateIdentifier)
	return ok
}

// ClassLiteral is a class expression or the class of a declaration.
type ClassLiteral struct {
	Token      lexer.Token
	Name       *Identifier
	SuperClass Expression
	Members    []*ClassMember
	Start, End int
}

func (cl *ClassLiteral) expressionNode()      {}
func (cl *ClassLiteral) TokenLiteral() string { return cl.Token.Literal }
func (cl *ClassLiteral) Pos() lexer.Token     { return cl.Token }
func (cl *ClassLiteral) String() string {
	s := "class"
	if cl.Name != nil {
		s += " " + cl.Name.Value
	}
	if cl.SuperClass != nil {
		s += " extends " + cl.SuperClass.String()
	}
	return s + " { ... }"
}

// UnaryExpression is -x, +x, !x, ~x, typeof x, void x, delete x.
type UnaryExpression struct {
	Token    lexer.Token
	Operator string
	Operand  Expression
}

func (ue *UnaryExpression) expressionNode()      {}
func (ue *UnaryExpression) TokenLiteral() string { return ue.Token.Literal }
func (ue *UnaryExpression) Pos() lexer.Token     { return ue.Token }
func (ue *UnaryExpression) String() string {
	op := ue.Operator
	if len(op) > 1 {
		op += " "
	}
	return "(" + op + ue.Operand.String() + ")"
}

// UpdateExpression is ++x, x++, --x, x--.
type UpdateExpression struct {
	Token    lexer.Token
	Operator string
	Prefix   bool
	Argument Expression
}

func (ue *UpdateExpression) expressionNode()      {}
func (ue *UpdateExpression) TokenLiteral() string { return ue.Token.Literal }
func (ue *UpdateExpression) Pos() lexer.Token     { return ue.Token }
func (ue *UpdateExpression) String() string {
	if ue.Prefix {
		return "(" + ue.Operator + ue.Argument.String() + ")"
	}
	return "(" + ue.Argument.String() + ue.Operator + ")"
}

// BinaryExpression covers arithmetic, bitwise, relational and equality
// operators, `in` and `instanceof`. Left is a *PrivateIdentifier for
// `#x in obj`.
type BinaryExpression struct {
	Token    lexer.Token
	Operator string
	Left     Expression
	Right    Expression
}

func (be *BinaryExpression) expressionNode()      {}
func (be *BinaryExpression) TokenLiteral() string { return be.Token.Literal }
func (be *BinaryExpression) Pos() lexer.Token     { return be.Token }
func (be *BinaryExpression) String() string {
	return "(" + be.Left.String() + " " + be.Operator + " " + be.Right.String() + ")"
}

// LogicalExpression covers &&, || and ??.
type LogicalExpression struct {
	Token    lexer.Token
	Operator string
	Left     Expression
	Right    Expression
}

func (le *LogicalExpression) expressionNode()      {}
func (le *LogicalExpression) TokenLiteral() string { return le.Token.Literal }
func (le *LogicalExpression) Pos() lexer.Token     { return le.Token }
func (le *LogicalExpression) String() string {
	return "(" + le.Left.String() + " " + le.Operator + " " + le.Right.String() + ")"
}

// AssignmentExpression is target op= value. Target is an identifier, a
// member expression, or (for "=") an array/object pattern.
type AssignmentExpression struct {
	Token    lexer.Token
	Operator string
	Target   Expression
	Value    Expression
}

func (ae *AssignmentExpression) expressionNode()      {}
func (ae *AssignmentExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *AssignmentExpression) Pos() lexer.Token     { return ae.Token }
func (ae *AssignmentExpression) String() string {
	return "(" + ae.Target.String() + " " + ae.Operator + " " + ae.Value.String() + ")"
}

// ConditionalExpression is test ? consequent : alternate.
type ConditionalExpression struct {
	Token      lexer.Token
	Test       Expression
	Consequent Expression
	Alternate  Expression
}

func (ce *ConditionalExpression) expressionNode()      {}
func (ce *ConditionalExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *ConditionalExpression) Pos() lexer.Token     { return ce.Token }
func (ce *ConditionalExpression) String() string {
	return "(" + ce.Test.String() + " ? " + ce.Consequent.String() + " : " + ce.Alternate.String() + ")"
}

// CallExpression is callee(args). Optional marks callee?.(args).
type CallExpression struct {
	Token     lexer.Token
	Callee    Expression
	Arguments []Expression
	Optional  bool
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) Pos() lexer.Token     { return ce.Token }
func (ce *CallExpression) String() string {
	args := make([]string, len(ce.Arguments))
	for i, a := range ce.Arguments {
		args[i] = a.String()
	}
	op := "("
	if ce.Optional {
		op = "?.("
	}
	return ce.Callee.String() + op + strings.Join(args, ", ") + ")"
}

// NewExpression is new callee(args).
type NewExpression struct {
	Token     lexer.Token
	Callee    Expression
	Arguments []Expression
}

func (ne *NewExpression) expressionNode()      {}
func (ne *NewExpression) TokenLiteral() string { return ne.Token.Literal }
func (ne *NewExpression) Pos() lexer.Token     { return ne.Token }
func (ne *NewExpression) String() string {
	args := make([]string, len(ne.Arguments))
	for i, a := range ne.Arguments {
		args[i] = a.String()
	}
	return "new " + ne.Callee.String() + "(" + strings.Join(args, ", ") + ")"
}

// MemberExpression is object.property, object[property] or object.#name.
// Optional marks the link that was written with ?.
type MemberExpression struct {
	Token    lexer.Token
	Object   Expression
	Property Expression
	Computed bool
	Optional bool
}

func (me *MemberExpression) expressionNode()      {}
func (me *MemberExpression) TokenLiteral() string { return me.Token.Literal }
func (me *MemberExpression) Pos() lexer.Token     { return me.Token }
func (me *MemberExpression) String() string {
	op := "."
	if me.Optional {
		op = "?."
	}
	if me.Computed {
		if me.Optional {
			return me.Object.String() + "?.[" + me.Property.String() + "]"
		}
		return me.Object.String() + "[" + me.Property.String() + "]"
	}
	return me.Object.String() + op + me.Property.String()
}

// OptionalChain wraps a member/call chain containing at least one ?. link.
// A nullish value at any optional link short-circuits the whole chain to
// undefined; the chain ends at the wrapper, so a parenthesized chain is a
// separate value for whatever follows.
type OptionalChain struct {
	Token      lexer.Token
	Expression Expression
}

func (oc *OptionalChain) expressionNode()      {}
func (oc *OptionalChain) TokenLiteral() string { return oc.Token.Literal }
func (oc *OptionalChain) Pos() lexer.Token     { return oc.Token }
func (oc *OptionalChain) String() string       { return oc.Expression.String() }

// ParenthesizedExpression preserves grouping for early-error checks.
type ParenthesizedExpression struct {
	Token      lexer.Token
	Expression Expression
}

func (pe *ParenthesizedExpression) expressionNode()      {}
func (pe *ParenthesizedExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *ParenthesizedExpression) Pos() lexer.Token     { return pe.Token }
func (pe *ParenthesizedExpression) String() string {
	switch pe.Expression.(type) {
	case *UnaryExpression, *UpdateExpression, *BinaryExpression, *LogicalExpression,
		*AssignmentExpression, *ConditionalExpression, *SequenceExpression, *ParenthesizedExpression:
		// These already print their own parentheses.
		return pe.Expression.String()
	}
	return "(" + pe.Expression.String() + ")"
}

// SequenceExpression is a, b, c.
type SequenceExpression struct {
	Token       lexer.Token
	Expressions []Expression
}

func (se *SequenceExpression) expressionNode()      {}
func (se *SequenceExpression) TokenLiteral() string { return se.Token.Literal }
func (se *SequenceExpression) Pos() lexer.Token     { return se.Token }
func (se *SequenceExpression) String() string {
	parts := make([]string, len(se.Expressions))
	for i, e := range se.Expressions {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// SpreadElement is ...argument in calls and array literals.
type SpreadElement struct {
	Token    lexer.Token
	Argument Expression
}

func (se *SpreadElement) expressionNode()      {}
func (se *SpreadElement) TokenLiteral() string { return se.Token.Literal }
func (se *SpreadElement) Pos() lexer.Token     { return se.Token }
func (se *SpreadElement) String() string       { return "..." + se.Argument.String() }

// YieldExpression is yield [argument] or yield* argument.
type YieldExpression struct {
	Token    lexer.Token
	Argument Expression
	Delegate bool
}

func (ye *YieldExpression) expressionNode()      {}
func (ye *YieldExpression) TokenLiteral() string { return ye.Token.Literal }
func (ye *YieldExpression) Pos() lexer.Token     { return ye.Token }
func (ye *YieldExpression) String() string {
	kw := "yield"
	if ye.Delegate {
		kw = "yield*"
	}
	if ye.Argument == nil {
		return kw
	}
	return kw + " " + ye.Argument.String()
}

// AwaitExpression is await argument.
type AwaitExpression struct {
	Token    lexer.Token
	Argument Expression
}

func (ae *AwaitExpression) expressionNode()      {}
func (ae *AwaitExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *AwaitExpression) Pos() lexer.Token     { return ae.Token }
func (ae *AwaitExpression) String() string       { return "await " + ae.Argument.String() }

// MetaProperty is new.target or import.meta.
type MetaProperty struct {
	Token    lexer.Token
	Meta     string
	Property string
}

func (mp *MetaProperty) expressionNode()      {}
func (mp *MetaProperty) TokenLiteral() string { return mp.Token.Literal }
func (mp *MetaProperty) Pos() lexer.Token     { return mp.Token }
func (mp *MetaProperty) String() string       { return mp.Meta + "." + mp.Property }

// ImportCall is import(source[, options]).
type ImportCall struct {
	Token   lexer.Token
	Source  Expression
	Options Expression
}

func (ic *ImportCall) expressionNode()      {}
func (ic *ImportCall) TokenLiteral() string { return ic.Token.Literal }
func (ic *ImportCall) Pos() lexer.Token     { return ic.Token }
func (ic *ImportCall) String() string       { return "import(" + ic.Source.String() + ")" }

// --- Patterns ---

// ArrayPattern is a destructuring target [a, , b = 1, ...rest].
type ArrayPattern struct {
	Token    lexer.Token
	Elements []Expression // nil holes; targets; *AssignmentPattern; *RestElement last
}

func (ap *ArrayPattern) expressionNode()      {}
func (ap *ArrayPattern) TokenLiteral() string { return ap.Token.Literal }
func (ap *ArrayPattern) Pos() lexer.Token     { return ap.Token }
func (ap *ArrayPattern) String() string {
	parts := make([]string, len(ap.Elements))
	for i, e := range ap.Elements {
		if e != nil {
			parts[i] = e.String()
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// PatternProperty is key: target inside an object pattern.
type PatternProperty struct {
	Token    lexer.Token
	Key      Expression
	Computed bool
	Value    Expression // target, possibly an *AssignmentPattern
}

// ObjectPattern is a destructuring target {a, b: c = 1, ...rest}.
type ObjectPattern struct {
	Token      lexer.Token
	Properties []*PatternProperty
	Rest       Expression
}

func (op *ObjectPattern) expressionNode()      {}
func (op *ObjectPattern) TokenLiteral() string { return op.Token.Literal }
func (op *ObjectPattern) Pos() lexer.Token     { return op.Token }
func (op *ObjectPattern) String() string {
	parts := make([]string, 0, len(op.Properties)+1)
	for _, p := range op.Properties {
		key := p.Key.String()
		if p.Computed {
			key = "[" + key + "]"
		}
		parts = append(parts, key+": "+p.Value.String())
	}
	if op.Rest != nil {
		parts = append(parts, "..."+op.Rest.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// AssignmentPattern is target = default inside a pattern or parameter list.
type AssignmentPattern struct {
	Token   lexer.Token
	Target  Expression
	Default Expression
}

func (ap *AssignmentPattern) expressionNode()      {}
func (ap *AssignmentPattern) TokenLiteral() string { return ap.Token.Literal }
func (ap *AssignmentPattern) Pos() lexer.Token     { return ap.Token }
func (ap *AssignmentPattern) String() string {
	return ap.Target.String() + " = " + ap.Default.String()
}

// RestElement is ...target in patterns and parameter lists.
type RestElement struct {
	Token  lexer.Token
	Target Expression
}

func (re *RestElement) expressionNode()      {}
func (re *RestElement) TokenLiteral() string { return re.Token.Literal }
func (re *RestElement) Pos() lexer.Token     { return re.Token }
func (re *RestElement) String() string       { return "..." + re.Target.String() }
