package compiler

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"holybpf/pkg/bpf"
)

// Code generation errors. Callers match these with errors.Is after the
// wrapping applied at each site.
var (
	ErrMissingMain     = errors.New("program has no main function")
	ErrUndeclared      = errors.New("undeclared identifier")
	ErrUnsupportedOp   = errors.New("unsupported operator")
	ErrUnsupportedCall = errors.New("unsupported call target")
	ErrTooManyArgs     = errors.New("too many PrintF arguments")
	ErrBadFormatArg    = errors.New("PrintF needs a string literal format")
	ErrTooManyParams   = errors.New("too many function parameters")
	ErrImmOverflow     = errors.New("integer literal out of range")
	ErrOffsetOverflow  = errors.New("jump offset out of range")
	ErrVoidValue       = errors.New("void expression used as a value")
)

// maxPrintFArgs is the total argument count PrintF accepts: the format
// string plus up to four values, one per remaining helper argument
// register.
const maxPrintFArgs = 5

// CodeGenError wraps any failure during lowering with the function it
// occurred in. The sentinel cause stays reachable through errors.Is.
type CodeGenError struct {
	Fn  string
	Err error
}

func (e *CodeGenError) Error() string {
	return fmt.Sprintf("codegen: function %s: %v", e.Fn, e.Err)
}

func (e *CodeGenError) Unwrap() error { return e.Err }

// CodeGen lowers a parsed program to a flat BPF instruction stream.
//
// Register discipline: every expression leaves its result in r0. Binary
// operators park the left operand in a frame spill slot while the right
// side is evaluated, then reload it, so arbitrarily nested expressions
// never clobber each other. r10 is the read-only frame pointer; named
// variables and spill slots live below it.
type CodeGen struct {
	ins     []bpf.Instruction
	strings []string
	exports []string
	st      *SymbolTable
}

func NewCodeGen() *CodeGen {
	return &CodeGen{st: NewSymbolTable()}
}

// Generate compiles prog into a Program. main is emitted first so that
// execution starts at instruction 0; remaining functions follow in source
// order.
func Generate(prog *Program) (*bpf.Program, error) {
	return NewCodeGen().Generate(prog)
}

func (g *CodeGen) Generate(prog *Program) (*bpf.Program, error) {
	var mainFn *FunctionDecl
	rest := make([]*FunctionDecl, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		if fn.Name == "main" {
			mainFn = fn
			continue
		}
		rest = append(rest, fn)
	}
	if mainFn == nil {
		return nil, ErrMissingMain
	}

	for _, fn := range append([]*FunctionDecl{mainFn}, rest...) {
		if err := g.genFunction(fn); err != nil {
			return nil, &CodeGenError{Fn: fn.Name, Err: err}
		}
	}

	return &bpf.Program{
		Name:         mainFn.Name,
		Instructions: g.ins,
		Strings:      g.strings,
		Exports:      g.exports,
	}, nil
}

func (g *CodeGen) genFunction(fn *FunctionDecl) error {
	g.st.Reset()

	if fn.Exported {
		g.exports = append(g.exports, fn.Name)
	}
	if len(fn.Params) > int(bpf.RegArg5) {
		return errors.Wrapf(ErrTooManyParams, "%d parameters, max %d", len(fn.Params), bpf.RegArg5)
	}

	// Incoming arguments arrive in r1..r5. Spill them to named slots
	// immediately; the registers are clobbered by the first expression.
	for i, p := range fn.Params {
		off, err := g.st.Declare(p.Name)
		if err != nil {
			return err
		}
		g.emit(bpf.Instruction{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: uint8(i) + bpf.RegArg1, Off: off})
	}

	for _, stmt := range fn.Body.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}

	// Guarantee termination even when the source has no trailing return.
	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0})
	g.emit(bpf.Instruction{Opcode: bpf.OpExit})
	return nil
}

//  Statements

func (g *CodeGen) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *VarDecl:
		return g.genVarDecl(s)
	case *ReturnStmt:
		return g.genReturn(s)
	case *BlockStmt:
		for _, inner := range s.Stmts {
			if err := g.genStmt(inner); err != nil {
				return err
			}
		}
		return nil
	case *IfStmt:
		return g.genIf(s)
	case *WhileStmt:
		return g.genWhile(s)
	case *ForStmt:
		return g.genFor(s)
	case *ExprStmt:
		return g.genExpr(s.Expr)
	default:
		return errors.Errorf("unhandled statement %T", stmt)
	}
}

func (g *CodeGen) genVarDecl(s *VarDecl) error {
	off, err := g.st.Declare(s.Name)
	if err != nil {
		return err
	}
	if s.Init != nil {
		if err := g.genExpr(s.Init); err != nil {
			return err
		}
	} else {
		g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0})
	}
	g.emit(bpf.Instruction{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: bpf.RegRet, Off: off})
	return nil
}

func (g *CodeGen) genReturn(s *ReturnStmt) error {
	if s.Expr != nil {
		if err := g.genExpr(s.Expr); err != nil {
			return err
		}
	} else {
		g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0})
	}
	g.emit(bpf.Instruction{Opcode: bpf.OpExit})
	return nil
}

func (g *CodeGen) genIf(s *IfStmt) error {
	if err := g.genExpr(s.Condition); err != nil {
		return err
	}
	// Branch over the body when the condition is zero.
	toElse := g.emitPatch(bpf.Instruction{Opcode: bpf.OpJEQImm, Dst: bpf.RegRet, Imm: 0})

	if err := g.genStmt(s.Body); err != nil {
		return err
	}

	if s.ElseBody == nil {
		return g.patch(toElse)
	}

	toEnd := g.emitPatch(bpf.Instruction{Opcode: bpf.OpJA})
	if err := g.patch(toElse); err != nil {
		return err
	}
	if err := g.genStmt(s.ElseBody); err != nil {
		return err
	}
	return g.patch(toEnd)
}

func (g *CodeGen) genWhile(s *WhileStmt) error {
	top := len(g.ins)
	if err := g.genExpr(s.Condition); err != nil {
		return err
	}
	toEnd := g.emitPatch(bpf.Instruction{Opcode: bpf.OpJEQImm, Dst: bpf.RegRet, Imm: 0})

	if err := g.genStmt(s.Body); err != nil {
		return err
	}
	if err := g.jumpBack(top); err != nil {
		return err
	}
	return g.patch(toEnd)
}

func (g *CodeGen) genFor(s *ForStmt) error {
	if s.Init != nil {
		if err := g.genStmt(s.Init); err != nil {
			return err
		}
	}

	top := len(g.ins)
	toEnd := -1
	if s.Cond != nil {
		if err := g.genExpr(s.Cond); err != nil {
			return err
		}
		toEnd = g.emitPatch(bpf.Instruction{Opcode: bpf.OpJEQImm, Dst: bpf.RegRet, Imm: 0})
	}

	if err := g.genStmt(s.Body); err != nil {
		return err
	}
	if s.Post != nil {
		if err := g.genStmt(s.Post); err != nil {
			return err
		}
	}
	if err := g.jumpBack(top); err != nil {
		return err
	}
	if toEnd >= 0 {
		return g.patch(toEnd)
	}
	return nil
}

//  Expressions

// genExpr lowers expr, leaving the result in r0.
func (g *CodeGen) genExpr(expr Expr) error {
	switch e := expr.(type) {
	case *Literal:
		if e.Value > math.MaxInt32 || e.Value < math.MinInt32 {
			return errors.Wrapf(ErrImmOverflow, "%d", e.Value)
		}
		g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: int32(e.Value)})
		return nil

	case *StringLiteral:
		// Strings have no register representation; they are only legal
		// as the PrintF format argument, which is handled in genCall.
		return errors.Wrap(ErrVoidValue, "string literal outside PrintF")

	case *VarRef:
		off, ok := g.st.Lookup(e.Name)
		if !ok {
			return errors.Wrap(ErrUndeclared, e.Name)
		}
		g.emit(bpf.Instruction{Opcode: bpf.OpLoadDW, Dst: bpf.RegRet, Src: bpf.RegFrame, Off: off})
		return nil

	case *AssignExpr:
		off, ok := g.st.Lookup(e.Name)
		if !ok {
			return errors.Wrap(ErrUndeclared, e.Name)
		}
		if err := g.genExpr(e.Value); err != nil {
			return err
		}
		g.emit(bpf.Instruction{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: bpf.RegRet, Off: off})
		return nil

	case *BinaryExpr:
		return g.genBinary(e)

	case *LogicalExpr:
		return g.genLogical(e)

	case *UnaryExpr:
		return g.genUnary(e)

	case *CallExpr:
		return g.genCall(e)

	default:
		return errors.Errorf("unhandled expression %T", expr)
	}
}

// genBinary lowers arithmetic and comparison operators. The left value is
// parked in a spill slot while the right side runs, so right-nested trees
// like 2*(3+4) cannot clobber it.
func (g *CodeGen) genBinary(e *BinaryExpr) error {
	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	spill, err := g.st.AllocSpill()
	if err != nil {
		return err
	}
	defer g.st.FreeSpill()
	g.emit(bpf.Instruction{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: bpf.RegRet, Off: spill})

	if err := g.genExpr(e.Right); err != nil {
		return err
	}

	switch e.Op {
	case PLUS, MINUS, STAR, SLASH, PERCENT:
		// right to r1, left back to r0, combine in place.
		g.emit(bpf.Instruction{Opcode: bpf.OpMovReg, Dst: bpf.RegArg1, Src: bpf.RegRet})
		g.emit(bpf.Instruction{Opcode: bpf.OpLoadDW, Dst: bpf.RegRet, Src: bpf.RegFrame, Off: spill})

		var op uint8
		switch e.Op {
		case PLUS:
			op = bpf.OpAddReg
		case MINUS:
			op = bpf.OpSubReg
		case STAR:
			op = bpf.OpMulReg
		case SLASH:
			op = bpf.OpDivReg
		case PERCENT:
			op = bpf.OpModReg
		}
		g.emit(bpf.Instruction{Opcode: op, Dst: bpf.RegRet, Src: bpf.RegArg1})
		return nil

	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		return g.genComparison(e.Op, spill)

	default:
		return errors.Wrap(ErrUnsupportedOp, e.Op.String())
	}
}

// genComparison materializes a comparison as 1 or 0 in r0. On entry the
// right value is in r0 and the left value sits in the spill slot.
//
//	mov  r2, r0          right
//	ldxdw r1, [r10+off]  left
//	mov  r0, 1
//	jXX  ..., +1         skip the false store when the test holds
//	mov  r0, 0
//
// Only four conditional jumps exist for six operators; > and >= reuse
// jlt and jle with the operands swapped.
func (g *CodeGen) genComparison(op TokenType, spill int16) error {
	g.emit(bpf.Instruction{Opcode: bpf.OpMovReg, Dst: 2, Src: bpf.RegRet})
	g.emit(bpf.Instruction{Opcode: bpf.OpLoadDW, Dst: bpf.RegArg1, Src: bpf.RegFrame, Off: spill})
	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 1})

	jump := bpf.Instruction{Dst: bpf.RegArg1, Src: 2, Off: 1}
	switch op {
	case EQUALS:
		jump.Opcode = bpf.OpJEQReg
	case NOT_EQ:
		jump.Opcode = bpf.OpJNEReg
	case LESS:
		jump.Opcode = bpf.OpJLTReg
	case LESS_EQ:
		jump.Opcode = bpf.OpJLEReg
	case GREATER:
		jump.Opcode = bpf.OpJLTReg
		jump.Dst, jump.Src = 2, bpf.RegArg1
	case GREATER_EQ:
		jump.Opcode = bpf.OpJLEReg
		jump.Dst, jump.Src = 2, bpf.RegArg1
	default:
		return errors.Wrap(ErrUnsupportedOp, op.String())
	}
	g.emit(jump)
	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0})
	return nil
}

// genLogical lowers && and || with short-circuit branches. The right side
// is never evaluated when the left side decides the result, and the result
// is normalized to 1 or 0.
func (g *CodeGen) genLogical(e *LogicalExpr) error {
	if err := g.genExpr(e.Left); err != nil {
		return err
	}

	var shortOp uint8
	var shortVal, longVal int32
	switch e.Op {
	case AND_LOGICAL:
		shortOp, shortVal, longVal = bpf.OpJEQImm, 0, 1
	case OR_LOGICAL:
		shortOp, shortVal, longVal = bpf.OpJNEImm, 1, 0
	default:
		return errors.Wrap(ErrUnsupportedOp, e.Op.String())
	}

	first := g.emitPatch(bpf.Instruction{Opcode: shortOp, Dst: bpf.RegRet, Imm: 0})
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	second := g.emitPatch(bpf.Instruction{Opcode: shortOp, Dst: bpf.RegRet, Imm: 0})

	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: longVal})
	toEnd := g.emitPatch(bpf.Instruction{Opcode: bpf.OpJA})

	if err := g.patch(first); err != nil {
		return err
	}
	if err := g.patch(second); err != nil {
		return err
	}
	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: shortVal})
	return g.patch(toEnd)
}

func (g *CodeGen) genUnary(e *UnaryExpr) error {
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	switch e.Op {
	case MINUS:
		g.emit(bpf.Instruction{Opcode: bpf.OpNeg, Dst: bpf.RegRet})
		return nil
	case NOT:
		// r0 = (r0 == 0) ? 1 : 0
		g.emit(bpf.Instruction{Opcode: bpf.OpJEQImm, Dst: bpf.RegRet, Imm: 0, Off: 2})
		g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0})
		g.emit(bpf.Instruction{Opcode: bpf.OpJA, Off: 1})
		g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 1})
		return nil
	default:
		return errors.Wrap(ErrUnsupportedOp, e.Op.String())
	}
}

// genCall handles PrintF, the only callable. The format string goes into
// the string table and its index rides in r1; each value argument is
// evaluated to a spill slot first, then the slots are loaded into r2..r5
// immediately before the call so that later arguments cannot clobber
// earlier ones.
func (g *CodeGen) genCall(e *CallExpr) error {
	if !e.Builtin {
		return errors.Wrap(ErrUnsupportedCall, e.Name)
	}
	if len(e.Args) == 0 {
		return errors.Wrap(ErrBadFormatArg, "PrintF without arguments")
	}
	if len(e.Args) > maxPrintFArgs {
		return errors.Wrapf(ErrTooManyArgs, "%d arguments, max %d", len(e.Args), maxPrintFArgs)
	}

	format, ok := e.Args[0].(*StringLiteral)
	if !ok {
		return errors.Wrap(ErrBadFormatArg, "first PrintF argument must be a string literal")
	}
	strIdx := int32(len(g.strings))
	g.strings = append(g.strings, format.Value)

	values := e.Args[1:]
	spills := make([]int16, len(values))
	for i, arg := range values {
		if err := g.genExpr(arg); err != nil {
			return err
		}
		off, err := g.st.AllocSpill()
		if err != nil {
			return err
		}
		spills[i] = off
		g.emit(bpf.Instruction{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: bpf.RegRet, Off: off})
	}

	g.emit(bpf.Instruction{Opcode: bpf.OpMovImm, Dst: bpf.RegArg1, Imm: strIdx})
	for i, off := range spills {
		g.emit(bpf.Instruction{Opcode: bpf.OpLoadDW, Dst: uint8(i) + 2, Src: bpf.RegFrame, Off: off})
	}
	for range spills {
		g.st.FreeSpill()
	}

	g.emit(bpf.Instruction{Opcode: bpf.OpCall, Imm: int32(bpf.HelperTracePrintk)})
	return nil
}

//  Emission helpers

func (g *CodeGen) emit(ins bpf.Instruction) {
	g.ins = append(g.ins, ins)
}

// emitPatch appends a branch with a zero offset and returns its index for
// a later patch call.
func (g *CodeGen) emitPatch(ins bpf.Instruction) int {
	g.ins = append(g.ins, ins)
	return len(g.ins) - 1
}

// patch points the branch at idx to the next instruction to be emitted.
// Offsets are relative to the instruction after the branch.
func (g *CodeGen) patch(idx int) error {
	off := len(g.ins) - idx - 1
	if off > math.MaxInt16 || off < math.MinInt16 {
		return errors.Wrapf(ErrOffsetOverflow, "%d", off)
	}
	g.ins[idx].Off = int16(off)
	return nil
}

// jumpBack emits an unconditional jump to the instruction at target.
func (g *CodeGen) jumpBack(target int) error {
	off := target - len(g.ins) - 1
	if off > math.MaxInt16 || off < math.MinInt16 {
		return errors.Wrapf(ErrOffsetOverflow, "%d", off)
	}
	g.emit(bpf.Instruction{Opcode: bpf.OpJA, Off: int16(off)})
	return nil
}
