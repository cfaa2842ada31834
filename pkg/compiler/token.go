package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	NUMBER     // decimal or hex integer literal
	STRING     // string literal "..."

	// Type keywords
	U0   // "U0" void
	U8   // "U8"
	U16  // "U16"
	U32  // "U32"
	U64  // "U64"
	I8   // "I8"
	I16  // "I16"
	I32  // "I32"
	I64  // "I64"
	F64  // "F64"
	BOOL // "Bool"

	// Control flow and declaration keywords
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	FOR    // "for"
	RETURN // "return"
	EXPORT // "export"
	TRUE   // "true"
	FALSE  // "false"
	PRINTF // "PrintF" built-in

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	NOT     // !

	ASSIGN     // =
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	LESS_EQ    // <=
	GREATER    // >
	GREATER_EQ // >=

	AND_LOGICAL // &&
	OR_LOGICAL  // ||

	// INVALID marks an unrecognized character. The lexer never fails on
	// bad input; the parser turns this token into a positioned error.
	INVALID
)

var tokenNames = [...]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	NUMBER:      "NUMBER",
	STRING:      "STRING",
	U0:          "U0",
	U8:          "U8",
	U16:         "U16",
	U32:         "U32",
	U64:         "U64",
	I8:          "I8",
	I16:         "I16",
	I32:         "I32",
	I64:         "I64",
	F64:         "F64",
	BOOL:        "Bool",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	FOR:         "FOR",
	RETURN:      "RETURN",
	EXPORT:      "EXPORT",
	TRUE:        "TRUE",
	FALSE:       "FALSE",
	PRINTF:      "PRINTF",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	STAR:        "STAR",
	SLASH:       "SLASH",
	PERCENT:     "PERCENT",
	NOT:         "NOT",
	ASSIGN:      "ASSIGN",
	EQUALS:      "EQUALS",
	NOT_EQ:      "NOT_EQ",
	LESS:        "LESS",
	LESS_EQ:     "LESS_EQ",
	GREATER:     "GREATER",
	GREATER_EQ:  "GREATER_EQ",
	AND_LOGICAL: "AND_LOGICAL",
	OR_LOGICAL:  "OR_LOGICAL",
	INVALID:     "INVALID",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) && tokenNames[tt] != "" {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// opSymbols maps operator tokens to their source glyphs, for AST
// rendering. Everything else falls back to the token name.
var opSymbols = map[TokenType]string{
	PLUS:        "+",
	MINUS:       "-",
	STAR:        "*",
	SLASH:       "/",
	PERCENT:     "%",
	NOT:         "!",
	ASSIGN:      "=",
	EQUALS:      "==",
	NOT_EQ:      "!=",
	LESS:        "<",
	LESS_EQ:     "<=",
	GREATER:     ">",
	GREATER_EQ:  ">=",
	AND_LOGICAL: "&&",
	OR_LOGICAL:  "||",
}

// Symbol returns the operator's source spelling.
func (tt TokenType) Symbol() string {
	if s, ok := opSymbols[tt]; ok {
		return s
	}
	return tt.String()
}

// isType reports whether tt is one of the data type keywords.
func (tt TokenType) isType() bool {
	return tt >= U0 && tt <= BOOL
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
	Col    int    // 1-based column of the token start
}

func (t Token) String() string {
	return fmt.Sprintf("%-11s %-14q  line %d:%d", t.Type, t.Lexeme, t.Line, t.Col)
}
