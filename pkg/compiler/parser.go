package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError is a positioned syntax error. The first error aborts parsing
// of the unit; no recovery is attempted, so codegen never sees a partial
// AST.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parser consumes the flat token slice produced by the Lexer and builds an
// AST.
//
// Grammar:
//
//	program     = functionDecl* EOF
//	functionDecl= ("export")? type IDENTIFIER "(" params? ")" block
//	params      = type IDENTIFIER ("," type IDENTIFIER)*
//	statement   = varDecl | returnStmt | ifStmt | whileStmt | forStmt
//	            | block | exprStmt
//	varDecl     = type IDENTIFIER ("=" expression)? ";"
//	returnStmt  = "return" expression? ";"
//	ifStmt      = "if" "(" expression ")" statement ("else" statement)?
//	whileStmt   = "while" "(" expression ")" statement
//	forStmt     = "for" "(" simple? ";" expression? ";" simple? ")" statement
//	exprStmt    = expression ";"
//	expression  = assignment
//	assignment  = IDENTIFIER "=" assignment | logical_or
//	logical_or  = logical_and ("||" logical_and)*
//	logical_and = equality ("&&" equality)*
//	equality    = relational (("=="|"!=") relational)*
//	relational  = additive (("<"|"<="|">"|">=") additive)*
//	additive    = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = unary (("*"|"/"|"%") unary)*
//	unary       = ("-"|"!") unary | primary
//	primary     = NUMBER | STRING | "true" | "false" | IDENTIFIER
//	            | call | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

// NewParser wraps a token stream. rawSource is used to attach the
// offending line to error messages.
func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds the AST for a whole compilation unit.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).ParseProgram()
}

// fmtError builds a ParseError pointing at tok, with the source line
// appended when available.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet := strings.TrimSpace(p.sourceLines[lineIdx])
		if snippet != "" {
			msg += fmt.Sprintf("\n  |> %s", snippet)
		}
	}
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: msg}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an
// error. An INVALID token is reported as the lex-level problem it is.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type == INVALID {
		return tok, p.fmtError(tok, "invalid input: %s", tok.Lexeme)
	}
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, found %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// ParseProgram parses top-level function declarations until EOF.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		if p.peek().Type == INVALID {
			tok := p.peek()
			return nil, p.fmtError(tok, "invalid input: %s", tok.Lexeme)
		}
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	if len(prog.Functions) == 0 {
		return nil, p.fmtError(p.peek(), "program contains no functions")
	}
	return prog, nil
}

// parseFunction handles ("export")? type IDENTIFIER "(" params ")" block.
func (p *Parser) parseFunction() (*FunctionDecl, error) {
	exported := false
	if p.peek().Type == EXPORT {
		p.advance()
		exported = true
	}

	retTok := p.advance()
	if !retTok.Type.isType() {
		return nil, p.fmtError(retTok, "expected return type, found %s (%q)", retTok.Type, retTok.Lexeme)
	}

	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var params []Param
	if p.peek().Type != RPAREN {
		for {
			typeTok := p.advance()
			if !typeTok.Type.isType() {
				return nil, p.fmtError(typeTok, "expected parameter type, found %s (%q)", typeTok.Type, typeTok.Lexeme)
			}
			pnameTok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Type: typeTok.Type, Name: pnameTok.Lexeme})
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &FunctionDecl{
		Name:       nameTok.Lexeme,
		ReturnType: retTok.Type,
		Params:     params,
		Body:       body,
		Exported:   exported,
	}, nil
}

// parseBlock parses statements until the closing brace. The opening brace
// must already have been consumed.
func (p *Parser) parseBlock() (*BlockStmt, error) {
	block := &BlockStmt{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "expected %s, found EOF", RBRACE)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.advance() // consume }
	return block, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch {
	case tok.Type == INVALID:
		return nil, p.fmtError(tok, "invalid input: %s", tok.Lexeme)
	case tok.Type.isType():
		return p.parseVarDecl()
	case tok.Type == RETURN:
		return p.parseReturn()
	case tok.Type == IF:
		return p.parseIf()
	case tok.Type == WHILE:
		return p.parseWhile()
	case tok.Type == FOR:
		return p.parseFor()
	case tok.Type == LBRACE:
		p.advance()
		return p.parseBlock()
	default:
		return p.parseExprStmt()
	}
}

// parseVarDecl handles  type IDENTIFIER ("=" expression)? ";"
func (p *Parser) parseVarDecl() (Stmt, error) {
	typeTok := p.advance()
	if typeTok.Type == U0 {
		return nil, p.fmtError(typeTok, "cannot declare a variable of type U0")
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	decl := &VarDecl{Type: typeTok.Type, Name: nameTok.Lexeme}
	if p.peek().Type == ASSIGN {
		p.advance()
		decl.Init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	p.advance() // consume return
	stmt := &ReturnStmt{}
	if p.peek().Type != SEMICOLON {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Expr = expr
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	p.advance() // consume if
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Condition: cond, Body: body}
	if p.peek().Type == ELSE {
		p.advance()
		stmt.ElseBody, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	p.advance() // consume while
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body}, nil
}

// parseFor handles for (init; cond; post) body. Each clause is optional.
// Init may be a declaration or an expression; post is an expression.
func (p *Parser) parseFor() (Stmt, error) {
	p.advance() // consume for
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	stmt := &ForStmt{}
	var err error

	if p.peek().Type != SEMICOLON {
		if p.peek().Type.isType() {
			// parseVarDecl consumes the trailing semicolon.
			stmt.Init, err = p.parseVarDecl()
			if err != nil {
				return nil, err
			}
		} else {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			stmt.Init = &ExprStmt{Expr: expr}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
		}
	} else {
		p.advance()
	}

	if p.peek().Type != SEMICOLON {
		stmt.Cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	if p.peek().Type != RPAREN {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Post = &ExprStmt{Expr: expr}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	stmt.Body, err = p.parseStatement()
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseExprStmt() (Stmt, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{Expr: expr}, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAssignment()
}

// parseAssignment handles IDENTIFIER "=" assignment, falling through to
// the logical-or level otherwise.
func (p *Parser) parseAssignment() (Expr, error) {
	if p.peek().Type == IDENTIFIER && p.peekNext().Type == ASSIGN {
		nameTok := p.advance()
		p.advance() // consume =
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &AssignExpr{Name: nameTok.Lexeme, Value: value}, nil
	}
	return p.parseLogicalOr()
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		op := p.advance().Type
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		op := p.advance().Type
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	expr, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == EQUALS || p.peek().Type == NOT_EQ {
		op := p.advance().Type
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseRelational handles <, <=, > and >=
func (p *Parser) parseRelational() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == LESS || p.peek().Type == LESS_EQ ||
		p.peek().Type == GREATER || p.peek().Type == GREATER_EQ {
		op := p.advance().Type
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != PLUS && tt != MINUS {
			break
		}
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseMultiplicative handles *, / and %
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != STAR && tt != SLASH && tt != PERCENT {
			break
		}
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseUnary handles prefix - and !
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == MINUS || p.peek().Type == NOT {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Right: right}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.advance()
		val, err := parseIntLexeme(tok.Lexeme)
		if err != nil {
			return nil, p.fmtError(tok, "invalid number literal %q", tok.Lexeme)
		}
		return &Literal{Value: val}, nil

	case STRING:
		p.advance()
		return &StringLiteral{Value: tok.Lexeme}, nil

	case TRUE:
		p.advance()
		return &Literal{Value: 1}, nil

	case FALSE:
		p.advance()
		return &Literal{Value: 0}, nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			return p.parseCall(tok.Lexeme, false)
		}
		return &VarRef{Name: tok.Lexeme}, nil

	case PRINTF:
		p.advance()
		if p.peek().Type != LPAREN {
			return nil, p.fmtError(p.peek(), "expected %s after PrintF, found %s", LPAREN, p.peek().Type)
		}
		return p.parseCall(tok.Lexeme, true)

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	case INVALID:
		return nil, p.fmtError(tok, "invalid input: %s", tok.Lexeme)

	default:
		return nil, p.fmtError(tok, "expected expression, found %s (%q)", tok.Type, tok.Lexeme)
	}
}

// parseCall parses the argument list; the callee name is already consumed
// and the current token is LPAREN.
func (p *Parser) parseCall(name string, builtin bool) (Expr, error) {
	p.advance() // consume (
	call := &CallExpr{Name: name, Builtin: builtin}
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}

// parseIntLexeme converts a decimal or 0x-prefixed lexeme to its value.
func parseIntLexeme(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return int64(v), err
	}
	return strconv.ParseInt(s, 10, 64)
}
