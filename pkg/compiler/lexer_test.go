package compiler

import (
	"reflect"
	"testing"
)

// stripCols zeroes the column of every token so the tables below stay
// readable. Column tracking is covered separately.
func stripCols(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		tok.Col = 0
		out[i] = tok
	}
	return out
}

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Basic Tokens",
			input: "+ - * / % = == != < <= > >= ! && || ; , { } ( )",
			expected: []Token{
				{Type: PLUS, Lexeme: "+", Line: 1},
				{Type: MINUS, Lexeme: "-", Line: 1},
				{Type: STAR, Lexeme: "*", Line: 1},
				{Type: SLASH, Lexeme: "/", Line: 1},
				{Type: PERCENT, Lexeme: "%", Line: 1},
				{Type: ASSIGN, Lexeme: "=", Line: 1},
				{Type: EQUALS, Lexeme: "==", Line: 1},
				{Type: NOT_EQ, Lexeme: "!=", Line: 1},
				{Type: LESS, Lexeme: "<", Line: 1},
				{Type: LESS_EQ, Lexeme: "<=", Line: 1},
				{Type: GREATER, Lexeme: ">", Line: 1},
				{Type: GREATER_EQ, Lexeme: ">=", Line: 1},
				{Type: NOT, Lexeme: "!", Line: 1},
				{Type: AND_LOGICAL, Lexeme: "&&", Line: 1},
				{Type: OR_LOGICAL, Lexeme: "||", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: COMMA, Lexeme: ",", Line: 1},
				{Type: LBRACE, Lexeme: "{", Line: 1},
				{Type: RBRACE, Lexeme: "}", Line: 1},
				{Type: LPAREN, Lexeme: "(", Line: 1},
				{Type: RPAREN, Lexeme: ")", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "U64 if else while for return export variableName _under_score",
			expected: []Token{
				{Type: U64, Lexeme: "U64", Line: 1},
				{Type: IF, Lexeme: "if", Line: 1},
				{Type: ELSE, Lexeme: "else", Line: 1},
				{Type: WHILE, Lexeme: "while", Line: 1},
				{Type: FOR, Lexeme: "for", Line: 1},
				{Type: RETURN, Lexeme: "return", Line: 1},
				{Type: EXPORT, Lexeme: "export", Line: 1},
				{Type: IDENTIFIER, Lexeme: "variableName", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_under_score", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Type Keywords",
			input: "U0 U8 U16 U32 I8 I16 I32 I64 F64 Bool",
			expected: []Token{
				{Type: U0, Lexeme: "U0", Line: 1},
				{Type: U8, Lexeme: "U8", Line: 1},
				{Type: U16, Lexeme: "U16", Line: 1},
				{Type: U32, Lexeme: "U32", Line: 1},
				{Type: I8, Lexeme: "I8", Line: 1},
				{Type: I16, Lexeme: "I16", Line: 1},
				{Type: I32, Lexeme: "I32", Line: 1},
				{Type: I64, Lexeme: "I64", Line: 1},
				{Type: F64, Lexeme: "F64", Line: 1},
				{Type: BOOL, Lexeme: "Bool", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Integers",
			input: "123 0 0x1A 0Xff",
			expected: []Token{
				{Type: NUMBER, Lexeme: "123", Line: 1},
				{Type: NUMBER, Lexeme: "0", Line: 1},
				{Type: NUMBER, Lexeme: "0x1A", Line: 1},
				{Type: NUMBER, Lexeme: "0Xff", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Booleans",
			input: "true false",
			expected: []Token{
				{Type: TRUE, Lexeme: "true", Line: 1},
				{Type: FALSE, Lexeme: "false", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Strings With Escapes",
			input: `"hello" "a\nb" "say \"hi\""`,
			expected: []Token{
				{Type: STRING, Lexeme: "hello", Line: 1},
				{Type: STRING, Lexeme: "a\nb", Line: 1},
				{Type: STRING, Lexeme: `say "hi"`, Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Line Comment",
			input: "a // the rest is ignored\nb",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 2},
				{Type: EOF, Lexeme: "", Line: 2},
			},
		},
		{
			name:  "Block Comment",
			input: "a /* spans\ntwo lines */ b",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 2},
				{Type: EOF, Lexeme: "", Line: 2},
			},
		},
		{
			name:  "Line Tracking",
			input: "a\nb\n\nc",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 2},
				{Type: IDENTIFIER, Lexeme: "c", Line: 4},
				{Type: EOF, Lexeme: "", Line: 4},
			},
		},
		{
			name:  "Invalid Character",
			input: "a @ b",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: INVALID, Lexeme: "@", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Unterminated String",
			input: `"never closed`,
			expected: []Token{
				{Type: INVALID, Lexeme: "unterminated string", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "PrintF Builtin",
			input: `PrintF("x=%d", x);`,
			expected: []Token{
				{Type: PRINTF, Lexeme: "PrintF", Line: 1},
				{Type: LPAREN, Lexeme: "(", Line: 1},
				{Type: STRING, Lexeme: "x=%d", Line: 1},
				{Type: COMMA, Lexeme: ",", Line: 1},
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: RPAREN, Lexeme: ")", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripCols(Lex(tt.input))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Lex(%q):\n got  %v\n want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLexColumns(t *testing.T) {
	tokens := Lex("U64 abc = 5;")
	wantCols := []int{1, 5, 9, 11, 12, 13}
	if len(tokens) != len(wantCols) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(wantCols))
	}
	for i, want := range wantCols {
		if tokens[i].Col != want {
			t.Errorf("token %d (%s): col %d, want %d", i, tokens[i].Type, tokens[i].Col, want)
		}
	}
}

func TestLexerPeek(t *testing.T) {
	l := NewLexer("a b")
	if p := l.Peek(); p.Lexeme != "a" {
		t.Fatalf("Peek = %q, want a", p.Lexeme)
	}
	if n := l.Next(); n.Lexeme != "a" {
		t.Fatalf("Next after Peek = %q, want a", n.Lexeme)
	}
	if n := l.Next(); n.Lexeme != "b" {
		t.Fatalf("second Next = %q, want b", n.Lexeme)
	}
	if n := l.Next(); n.Type != EOF {
		t.Fatalf("expected EOF, got %v", n)
	}
}
