package compiler

import (
	"strconv"
	"strings"

	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer over a vm.File
// ---------------------------------------------------------------------------

const eof = -1

// Lexer tokenizes ICI source read through the file vtable. It supports
// one token of pushback.
type Lexer struct {
	f    *vm.File
	line int

	back    Token
	hasBack bool
	err     *SyntaxError
}

// NewLexer creates a lexer reading from f.
func NewLexer(f *vm.File) *Lexer {
	l := &Lexer{f: f, line: 1}
	l.skipHashBang()
	return l
}

// Line returns the current line (1-based).
func (l *Lexer) Line() int { return l.line }

func (l *Lexer) getch() int {
	c := l.f.Getch()
	if c == '\n' {
		l.line++
	}
	return c
}

func (l *Lexer) ungetch(c int) {
	if c == eof {
		return
	}
	if c == '\n' {
		l.line--
	}
	l.f.Ungetch(c)
}

func (l *Lexer) skipHashBang() {
	c := l.getch()
	if c != '#' {
		l.ungetch(c)
		return
	}
	c2 := l.getch()
	if c2 != '!' {
		l.ungetch(c2)
		l.f.Ungetch('#')
		return
	}
	for c = l.getch(); c != '\n' && c != eof; c = l.getch() {
	}
}

// Unread pushes tok back so the next call to Next returns it again.
func (l *Lexer) Unread(tok Token) {
	l.back = tok
	l.hasBack = true
}

// Err returns the lexical error behind the last TokenError.
func (l *Lexer) Err() *SyntaxError { return l.err }

func (l *Lexer) fail(msg string, incomplete bool) Token {
	l.err = &SyntaxError{Msg: msg, Line: l.line, Incomplete: incomplete}
	return Token{Type: TokenError, Text: msg, Line: l.line}
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	if l.hasBack {
		l.hasBack = false
		return l.back
	}
	if !l.skipSpace() {
		return l.fail("unterminated comment", true)
	}
	c := l.getch()
	tok := Token{Line: l.line}
	simple := func(t TokenType, text string) Token {
		tok.Type, tok.Text = t, text
		return tok
	}
	op := func(t TokenType, text string) Token {
		tok.Type, tok.Text, tok.Binop = t, text, binopTokens[t]
		return tok
	}
	opAssign := func(code int, text string) Token {
		tok.Type, tok.Text, tok.Binop = TokenOpAssign, text, code
		return tok
	}

	switch {
	case c == eof:
		return simple(TokenEOF, "")
	case isLetter(c):
		return simple(TokenName, l.readName(c))
	case isDigit(c):
		return l.readNumber(c, tok)
	case c == '.':
		c2 := l.getch()
		l.ungetch(c2)
		if isDigit(c2) {
			return l.readNumber(c, tok)
		}
		return simple(TokenDot, ".")
	case c == '"':
		var b strings.Builder
		for {
			if t, ok := l.readQuoted('"', &b); !ok {
				return t
			}
			if !l.skipSpace() {
				return l.fail("unterminated comment", true)
			}
			c2 := l.getch()
			if c2 != '"' {
				l.ungetch(c2)
				break
			}
		}
		tok.Type, tok.Text = TokenString, b.String()
		return tok
	case c == '\'':
		var b strings.Builder
		if t, ok := l.readQuoted('\'', &b); !ok {
			return t
		}
		if b.Len() != 1 {
			return l.fail("bad character constant", false)
		}
		tok.Type, tok.Int = TokenInt, int64(b.String()[0])
		return tok
	case c == '#':
		var b strings.Builder
		for {
			c2 := l.getch()
			switch c2 {
			case eof:
				return l.fail("unterminated regular expression", true)
			case '\\':
				c3 := l.getch()
				if c3 != '#' {
					b.WriteByte('\\')
				}
				if c3 != eof {
					b.WriteByte(byte(c3))
				}
				continue
			case '#':
				tok.Type, tok.Text = TokenRegexp, b.String()
				return tok
			}
			b.WriteByte(byte(c2))
		}
	}

	next := func(want int) bool {
		c2 := l.getch()
		if c2 == want {
			return true
		}
		l.ungetch(c2)
		return false
	}

	switch c {
	case '(':
		return simple(TokenLParen, "(")
	case ')':
		return simple(TokenRParen, ")")
	case '[':
		return simple(TokenLBracket, "[")
	case ']':
		return simple(TokenRBracket, "]")
	case '{':
		return simple(TokenLBrace, "{")
	case '}':
		return simple(TokenRBrace, "}")
	case ';':
		return simple(TokenSemicolon, ";")
	case ',':
		return simple(TokenComma, ",")
	case '?':
		return simple(TokenQuestion, "?")
	case '@':
		return simple(TokenAt, "@")
	case '$':
		return simple(TokenDollar, "$")
	case ':':
		if next('=') {
			return simple(TokenAssignLocal, ":=")
		}
		return simple(TokenColon, ":")
	case '*':
		if next('=') {
			return opAssign(vm.BinMul, "*=")
		}
		return op(TokenStar, "*")
	case '/':
		if next('=') {
			return opAssign(vm.BinDiv, "/=")
		}
		return op(TokenSlash, "/")
	case '%':
		if next('=') {
			return opAssign(vm.BinMod, "%=")
		}
		return op(TokenPercent, "%")
	case '+':
		if next('+') {
			return simple(TokenIncr, "++")
		}
		if next('=') {
			return opAssign(vm.BinAdd, "+=")
		}
		return op(TokenPlus, "+")
	case '-':
		if next('-') {
			return simple(TokenDecr, "--")
		}
		if next('=') {
			return opAssign(vm.BinSub, "-=")
		}
		if next('>') {
			return simple(TokenArrow, "->")
		}
		return op(TokenMinus, "-")
	case '<':
		if next('<') {
			if next('=') {
				return opAssign(vm.BinShl, "<<=")
			}
			return op(TokenShl, "<<")
		}
		if next('=') {
			if next('>') {
				return simple(TokenSwap, "<=>")
			}
			return op(TokenLe, "<=")
		}
		return op(TokenLt, "<")
	case '>':
		if next('>') {
			if next('=') {
				return opAssign(vm.BinShr, ">>=")
			}
			return op(TokenShr, ">>")
		}
		if next('=') {
			return op(TokenGe, ">=")
		}
		return op(TokenGt, ">")
	case '=':
		if next('=') {
			return op(TokenEq, "==")
		}
		return simple(TokenAssign, "=")
	case '!':
		if next('=') {
			return op(TokenNe, "!=")
		}
		if next('~') {
			return op(TokenNoMatch, "!~")
		}
		return simple(TokenBang, "!")
	case '~':
		if next('~') {
			if next('~') {
				return op(TokenExtractAll, "~~~")
			}
			if next('=') {
				return opAssign(vm.BinExtract, "~~=")
			}
			return op(TokenExtract, "~~")
		}
		return op(TokenTilde, "~")
	case '&':
		if next('&') {
			return op(TokenAndAnd, "&&")
		}
		if next('=') {
			return opAssign(vm.BinAnd, "&=")
		}
		return op(TokenAmp, "&")
	case '^':
		if next('=') {
			return opAssign(vm.BinXor, "^=")
		}
		return op(TokenCaret, "^")
	case '|':
		if next('|') {
			return op(TokenOrOr, "||")
		}
		if next('=') {
			return opAssign(vm.BinOr, "|=")
		}
		return op(TokenBar, "|")
	}
	return l.fail("unexpected character "+strconv.QuoteRune(rune(c)), false)
}

// skipSpace skips white space and comments. It reports false for a
// comment left open at end of input.
func (l *Lexer) skipSpace() bool {
	for {
		c := l.getch()
		switch c {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			continue
		case '/':
			c2 := l.getch()
			switch c2 {
			case '/':
				for c = l.getch(); c != '\n' && c != eof; c = l.getch() {
				}
				continue
			case '*':
				prev := 0
				for {
					c = l.getch()
					if c == eof {
						return false
					}
					if prev == '*' && c == '/' {
						break
					}
					prev = c
				}
				continue
			}
			l.ungetch(c2)
			l.f.Ungetch('/')
			return true
		}
		l.ungetch(c)
		return true
	}
}

func (l *Lexer) readName(c int) string {
	var b strings.Builder
	for ; isLetter(c) || isDigit(c); c = l.getch() {
		b.WriteByte(byte(c))
	}
	l.ungetch(c)
	return b.String()
}

func (l *Lexer) readNumber(c int, tok Token) Token {
	var b strings.Builder
	isFloat := false
	hex := false
	for {
		switch {
		case isDigit(c):
		case hex && strings.IndexByte("abcdefABCDEF", byte(c)) >= 0:
		case (c == 'x' || c == 'X') && b.String() == "0":
			hex = true
		case c == '.' && !hex && !isFloat:
			isFloat = true
		case (c == 'e' || c == 'E') && !hex:
			isFloat = true
			b.WriteByte(byte(c))
			c = l.getch()
			if c != '+' && c != '-' {
				continue
			}
		default:
			l.ungetch(c)
			goto done
		}
		b.WriteByte(byte(c))
		c = l.getch()
	}
done:
	text := b.String()
	tok.Text = text
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return l.fail("bad number "+text, false)
		}
		tok.Type, tok.Float = TokenFloat, f
		return tok
	}
	i, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(text, 0, 64)
		if uerr != nil {
			return l.fail("bad number "+text, false)
		}
		i = int64(u)
	}
	tok.Type, tok.Int = TokenInt, i
	return tok
}

// readQuoted reads up to the closing quote, translating C escapes.
func (l *Lexer) readQuoted(quote int, b *strings.Builder) (Token, bool) {
	for {
		c := l.getch()
		switch c {
		case eof:
			return l.fail("unterminated string", true), false
		case '\n':
			return l.fail("newline in string", false), false
		case quote:
			return Token{}, true
		case '\\':
			r, ok := l.escape()
			if !ok {
				return l.fail("unterminated string", true), false
			}
			b.WriteByte(r)
			continue
		}
		b.WriteByte(byte(c))
	}
}

func (l *Lexer) escape() (byte, bool) {
	c := l.getch()
	switch c {
	case eof:
		return 0, false
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case 'b':
		return '\b', true
	case 'f':
		return '\f', true
	case 'v':
		return '\v', true
	case 'a':
		return '\a', true
	case 'e':
		return 0x1b, true
	case 'x':
		v := 0
		for i := 0; i < 2; i++ {
			d := l.getch()
			n := strings.IndexByte("0123456789abcdef", byte(lower(d)))
			if d == eof || n < 0 {
				l.ungetch(d)
				break
			}
			v = v*16 + n
		}
		return byte(v), true
	}
	if c >= '0' && c <= '7' {
		v := c - '0'
		for i := 0; i < 2; i++ {
			d := l.getch()
			if d < '0' || d > '7' {
				l.ungetch(d)
				break
			}
			v = v*8 + d - '0'
		}
		return byte(v), true
	}
	return byte(c), true
}

func lower(c int) int {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func isLetter(c int) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c int) bool {
	return c >= '0' && c <= '9'
}
