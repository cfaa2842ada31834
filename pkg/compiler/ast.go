package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in r0.
type Expr interface {
	exprNode()
	String() string
}

// Literal is a compile-time integer constant. Bool literals are folded to
// 1 and 0 by the parser.
type Literal struct {
	Value int64
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return fmt.Sprintf("%d", l.Value) }

// StringLiteral is a string constant "...". Only valid as the first
// argument of PrintF.
type StringLiteral struct {
	Value string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

// VarRef is a read of a named variable.
type VarRef struct {
	Name string
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// BinaryExpr represents Left Op Right for arithmetic and comparison
// operators.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op.Symbol(), b.Right)
}

// LogicalExpr represents Left && Right or Left || Right. Kept separate
// from BinaryExpr because codegen lowers it with short-circuit branches.
type LogicalExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op.Symbol(), l.Right)
}

// UnaryExpr represents -Right or !Right.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op.Symbol(), u.Right) }

// CallExpr represents name(args). Builtin reports whether the callee is
// the PrintF built-in; any other callee is rejected during codegen.
type CallExpr struct {
	Name    string
	Builtin bool
	Args    []Expr
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args)
}

// AssignExpr represents name = value. The assigned value is also the
// expression result, so chained assignment statements work.
type AssignExpr struct {
	Name  string
	Value Expr
}

func (*AssignExpr) exprNode() {}
func (a *AssignExpr) String() string {
	return fmt.Sprintf("Assign(%s = %s)", a.Name, a.Value)
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// VarDecl represents  U64 name = expr;  Init may be nil (slot is zeroed).
type VarDecl struct {
	Type TokenType // one of the type keywords
	Name string
	Init Expr
}

func (*VarDecl) stmtNode() {}
func (d *VarDecl) String() string {
	if d.Init != nil {
		return fmt.Sprintf("VarDecl(%s %s = %s)", d.Type, d.Name, d.Init)
	}
	return fmt.Sprintf("VarDecl(%s %s)", d.Type, d.Name)
}

// ReturnStmt represents  return expr;  Expr may be nil for a bare return.
type ReturnStmt struct {
	Expr Expr
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	if r.Expr != nil {
		return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
	}
	return "ReturnStmt"
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      Stmt
	ElseBody  Stmt // may be nil
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body
type WhileStmt struct {
	Condition Expr
	Body      Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// ForStmt represents for (init; cond; post) body. Init, Cond and Post may
// each be nil.
type ForStmt struct {
	Init Stmt
	Cond Expr
	Post Stmt
	Body Stmt
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%v, cond=%v, post=%v, body=%s)", f.Init, f.Cond, f.Post, f.Body)
}

// ExprStmt represents an expression evaluated for its side effects
// (a call or an assignment).
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}

// Param is one typed function parameter.
type Param struct {
	Type TokenType
	Name string
}

func (p Param) String() string { return fmt.Sprintf("%s %s", p.Type, p.Name) }

// FunctionDecl represents [export] <type> name(params) { body }
type FunctionDecl struct {
	Name       string
	ReturnType TokenType
	Params     []Param
	Body       *BlockStmt
	Exported   bool
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	prefix := ""
	if f.Exported {
		prefix = "export "
	}
	return fmt.Sprintf("%s%s %s(%s) %s", prefix, f.ReturnType, f.Name, strings.Join(params, ", "), f.Body)
}

// Program is the root of the AST: an ordered list of function declarations.
type Program struct {
	Functions []*FunctionDecl
}

func (p *Program) String() string {
	return fmt.Sprintf("Program(functions=%d)", len(p.Functions))
}
