package compiler

import (
	"testing"

	"github.com/ici-language/ici-sub000/vm"
)

func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	v, err := vm.New(vm.DefaultConfig())
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	Install(v)
	t.Cleanup(func() { v.Close() })
	return v
}

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	v := newTestVM(t)
	l := NewLexer(v.StringFile("test", src))
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

func TestLexerOperators(t *testing.T) {
	input := `( ) [ ] { } ; , . -> : ? * / % + - << >> < > <= >= == != ~ !~ ~~ ~~~ & ^ | && || ! ++ -- @ $ = := <=> += <<= ~~=`
	expected := []struct {
		typ  TokenType
		text string
	}{
		{TokenLParen, "("}, {TokenRParen, ")"}, {TokenLBracket, "["},
		{TokenRBracket, "]"}, {TokenLBrace, "{"}, {TokenRBrace, "}"},
		{TokenSemicolon, ";"}, {TokenComma, ","}, {TokenDot, "."},
		{TokenArrow, "->"}, {TokenColon, ":"}, {TokenQuestion, "?"},
		{TokenStar, "*"}, {TokenSlash, "/"}, {TokenPercent, "%"},
		{TokenPlus, "+"}, {TokenMinus, "-"}, {TokenShl, "<<"},
		{TokenShr, ">>"}, {TokenLt, "<"}, {TokenGt, ">"}, {TokenLe, "<="},
		{TokenGe, ">="}, {TokenEq, "=="}, {TokenNe, "!="},
		{TokenTilde, "~"}, {TokenNoMatch, "!~"}, {TokenExtract, "~~"},
		{TokenExtractAll, "~~~"}, {TokenAmp, "&"}, {TokenCaret, "^"},
		{TokenBar, "|"}, {TokenAndAnd, "&&"}, {TokenOrOr, "||"},
		{TokenBang, "!"}, {TokenIncr, "++"}, {TokenDecr, "--"},
		{TokenAt, "@"}, {TokenDollar, "$"}, {TokenAssign, "="},
		{TokenAssignLocal, ":="}, {TokenSwap, "<=>"},
		{TokenOpAssign, "+="}, {TokenOpAssign, "<<="}, {TokenOpAssign, "~~="},
		{TokenEOF, ""},
	}

	toks := lexAll(t, input)
	if len(toks) != len(expected) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(expected), toks)
	}
	for i, exp := range expected {
		if toks[i].Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, toks[i].Type, exp.typ)
		}
		if toks[i].Text != exp.text {
			t.Errorf("token[%d] text = %q, want %q", i, toks[i].Text, exp.text)
		}
	}
}

func TestLexerOpAssignCodes(t *testing.T) {
	tests := []struct {
		input string
		code  int
	}{
		{"+=", vm.BinAdd},
		{"-=", vm.BinSub},
		{"*=", vm.BinMul},
		{"/=", vm.BinDiv},
		{"%=", vm.BinMod},
		{">>=", vm.BinShr},
		{"&=", vm.BinAnd},
		{"|=", vm.BinOr},
		{"^=", vm.BinXor},
	}
	for _, tc := range tests {
		tok := lexAll(t, tc.input)[0]
		if tok.Type != TokenOpAssign || tok.Binop != tc.code {
			t.Errorf("Lexer(%q) = %v/%d, want op= %d", tc.input, tok.Type, tok.Binop, tc.code)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	ints := []struct {
		input string
		want  int64
	}{
		{"42", 42},
		{"0", 0},
		{"0x2A", 42},
		{"052", 42},
		{"'A'", 65},
		{`'\n'`, 10},
	}
	for _, tc := range ints {
		tok := lexAll(t, tc.input)[0]
		if tok.Type != TokenInt || tok.Int != tc.want {
			t.Errorf("Lexer(%q) = %v %d, want int %d", tc.input, tok.Type, tok.Int, tc.want)
		}
	}

	floats := []struct {
		input string
		want  float64
	}{
		{"3.5", 3.5},
		{"1e3", 1000},
		{"2.5e-1", 0.25},
		{".5", 0.5},
	}
	for _, tc := range floats {
		tok := lexAll(t, tc.input)[0]
		if tok.Type != TokenFloat || tok.Float != tc.want {
			t.Errorf("Lexer(%q) = %v %g, want float %g", tc.input, tok.Type, tok.Float, tc.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`"a\tb"`, "a\tb"},
		{`"\x41\102"`, "AB"},
		{`"abc" "def"`, "abcdef"},
		{"\"ab\" /* gap */ \"cd\"", "abcd"},
	}
	for _, tc := range tests {
		tok := lexAll(t, tc.input)[0]
		if tok.Type != TokenString || tok.Text != tc.want {
			t.Errorf("Lexer(%q) = %v %q, want %q", tc.input, tok.Type, tok.Text, tc.want)
		}
	}
}

func TestLexerRegexp(t *testing.T) {
	tok := lexAll(t, `#a\#b.*#`)[0]
	if tok.Type != TokenRegexp || tok.Text != "a#b.*" {
		t.Errorf("regexp = %v %q, want a#b.*", tok.Type, tok.Text)
	}
}

func TestLexerCommentsAndLines(t *testing.T) {
	toks := lexAll(t, "#!/usr/bin/ici\na // one\n/* two\nthree */ b")
	if len(toks) != 3 {
		t.Fatalf("got %v, want two names and EOF", toks)
	}
	if toks[0].Text != "a" || toks[0].Line != 2 {
		t.Errorf("first token = %q line %d, want a line 2", toks[0].Text, toks[0].Line)
	}
	if toks[1].Text != "b" || toks[1].Line != 4 {
		t.Errorf("second token = %q line %d, want b line 4", toks[1].Text, toks[1].Line)
	}
}

func TestLexerIncompleteInput(t *testing.T) {
	tests := []string{`"abc`, "/* open", "#abc"}
	for _, input := range tests {
		v := newTestVM(t)
		l := NewLexer(v.StringFile("test", input))
		tok := l.Next()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q) = %v, want error", input, tok.Type)
			continue
		}
		if !l.Err().Incomplete {
			t.Errorf("Lexer(%q) error %q not marked incomplete", input, l.Err().Msg)
		}
	}
}

func TestLexerUnread(t *testing.T) {
	v := newTestVM(t)
	l := NewLexer(v.StringFile("test", "a b"))
	a := l.Next()
	l.Unread(a)
	if again := l.Next(); again.Text != "a" {
		t.Errorf("after Unread got %q, want a", again.Text)
	}
	if b := l.Next(); b.Text != "b" {
		t.Errorf("next token = %q, want b", b.Text)
	}
}
