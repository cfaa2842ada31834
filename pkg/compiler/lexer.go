package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"U0":     U0,
	"U8":     U8,
	"U16":    U16,
	"U32":    U32,
	"U64":    U64,
	"I8":     I8,
	"I16":    I16,
	"I32":    I32,
	"I64":    I64,
	"F64":    F64,
	"Bool":   BOOL,
	"if":     IF,
	"else":   ELSE,
	"while":  WHILE,
	"for":    FOR,
	"return": RETURN,
	"export": EXPORT,
	"true":   TRUE,
	"false":  FALSE,
	"PrintF": PRINTF,
}

// Lexer holds all mutable state for a single scanning pass over src.
// Each compilation must use a fresh instance.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column
}

// NewLexer returns a lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// An unterminated block comment runs to EOF; the trailing EOF token is the
// only evidence, which is fine for a comment.
func (l *Lexer) skipBlockComment() {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	line, col := l.line, l.col
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line, Col: col}
}

// scanNumber collects a decimal or 0x-prefixed hex integer literal.
func (l *Lexer) scanNumber() Token {
	line, col := l.line, l.col
	start := l.pos

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance() // 0
		l.advance() // x
		for l.pos < len(l.src) {
			r := l.peek()
			if unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
				l.advance()
			} else {
				break
			}
		}
	} else {
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	return Token{Type: NUMBER, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}
}

// scanString collects a string literal "...", resolving escapes. An
// unterminated literal becomes an INVALID token for the parser to report.
func (l *Lexer) scanString() Token {
	line, col := l.line, l.col
	l.advance() // consume opening "
	var val []rune

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			l.advance() // consume closing "
			return Token{Type: STRING, Lexeme: string(val), Line: line, Col: col}
		}
		if r == '\n' {
			break
		}
		if r == '\\' {
			l.advance()
			switch l.peek() {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case '"':
				val = append(val, '"')
			case '\\':
				val = append(val, '\\')
			default:
				val = append(val, '\\', l.peek())
			}
			l.advance()
			continue
		}
		val = append(val, r)
		l.advance()
	}

	return Token{Type: INVALID, Lexeme: "unterminated string", Line: line, Col: col}
}

// Next skips whitespace/comments and returns the next token. At end of
// input it returns an EOF token forever. Unrecognized characters produce
// an INVALID token rather than an error.
func (l *Lexer) Next() Token {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line, Col: l.col}
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			l.skipBlockComment()
			continue
		}
		break
	}

	ch := l.peek()
	line, col := l.line, l.col

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent()
	}
	if unicode.IsDigit(ch) {
		return l.scanNumber()
	}
	if ch == '"' {
		return l.scanString()
	}

	l.advance() // consume the character before the switch
	two := func(tt TokenType, lexeme string) Token {
		l.advance()
		return Token{Type: tt, Lexeme: lexeme, Line: line, Col: col}
	}
	one := func(tt TokenType) Token {
		return Token{Type: tt, Lexeme: string(ch), Line: line, Col: col}
	}

	switch ch {
	case '{':
		return one(LBRACE)
	case '}':
		return one(RBRACE)
	case '(':
		return one(LPAREN)
	case ')':
		return one(RPAREN)
	case ';':
		return one(SEMICOLON)
	case ',':
		return one(COMMA)
	case '+':
		return one(PLUS)
	case '-':
		return one(MINUS)
	case '*':
		return one(STAR)
	case '/':
		return one(SLASH)
	case '%':
		return one(PERCENT)
	case '=':
		if l.peek() == '=' {
			return two(EQUALS, "==")
		}
		return one(ASSIGN)
	case '!':
		if l.peek() == '=' {
			return two(NOT_EQ, "!=")
		}
		return one(NOT)
	case '<':
		if l.peek() == '=' {
			return two(LESS_EQ, "<=")
		}
		return one(LESS)
	case '>':
		if l.peek() == '=' {
			return two(GREATER_EQ, ">=")
		}
		return one(GREATER)
	case '&':
		if l.peek() == '&' {
			return two(AND_LOGICAL, "&&")
		}
	case '|':
		if l.peek() == '|' {
			return two(OR_LOGICAL, "||")
		}
	}

	return Token{Type: INVALID, Lexeme: fmt.Sprintf("%c", ch), Line: line, Col: col}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	saved := *l
	tok := l.Next()
	*l = saved
	return tok
}

// Lex tokenizes src and returns all tokens including the final EOF token.
// Illegal characters appear as INVALID tokens in the stream.
func Lex(src string) []Token {
	l := NewLexer(src)
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}
