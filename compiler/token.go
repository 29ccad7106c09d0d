package compiler

import (
	"fmt"

	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Token types for the ICI lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenName   // foo, if, NULL
	TokenInt    // 42, 0x2A, 052, 'c'
	TokenFloat  // 3.14, 1e10
	TokenString // "hello"
	TokenRegexp // #a.*b#

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenSemicolon // ;
	TokenComma     // ,
	TokenDot       // .
	TokenArrow     // ->
	TokenColon     // :
	TokenQuestion  // ?

	// Operators
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenPlus       // +
	TokenMinus      // -
	TokenShl        // <<
	TokenShr        // >>
	TokenLt         // <
	TokenGt         // >
	TokenLe         // <=
	TokenGe         // >=
	TokenEq         // ==
	TokenNe         // !=
	TokenTilde      // ~
	TokenNoMatch    // !~
	TokenExtract    // ~~
	TokenExtractAll // ~~~
	TokenAmp        // &
	TokenCaret      // ^
	TokenBar        // |
	TokenAndAnd     // &&
	TokenOrOr       // ||
	TokenBang       // !
	TokenIncr       // ++
	TokenDecr       // --
	TokenAt         // @
	TokenDollar     // $

	// Assignment
	TokenAssign      // =
	TokenAssignLocal // :=
	TokenSwap        // <=>
	TokenOpAssign    // += -= *= /= %= <<= >>= &= ^= |= ~~=
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "end of file",
	TokenError:       "error",
	TokenName:        "name",
	TokenInt:         "int",
	TokenFloat:       "float",
	TokenString:      "string",
	TokenRegexp:      "regexp",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenSemicolon:   ";",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenArrow:       "->",
	TokenColon:       ":",
	TokenQuestion:    "?",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenShl:         "<<",
	TokenShr:         ">>",
	TokenLt:          "<",
	TokenGt:          ">",
	TokenLe:          "<=",
	TokenGe:          ">=",
	TokenEq:          "==",
	TokenNe:          "!=",
	TokenTilde:       "~",
	TokenNoMatch:     "!~",
	TokenExtract:     "~~",
	TokenExtractAll:  "~~~",
	TokenAmp:         "&",
	TokenCaret:       "^",
	TokenBar:         "|",
	TokenAndAnd:      "&&",
	TokenOrOr:        "||",
	TokenBang:        "!",
	TokenIncr:        "++",
	TokenDecr:        "--",
	TokenAt:          "@",
	TokenDollar:      "$",
	TokenAssign:      "=",
	TokenAssignLocal: ":=",
	TokenSwap:        "<=>",
	TokenOpAssign:    "op=",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Text  string  // name, string or regexp text; operator spelling
	Int   int64   // TokenInt value
	Float float64 // TokenFloat value
	Binop int     // binary operator code for operators and TokenOpAssign
	Line  int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "end of file"
	case TokenName:
		return fmt.Sprintf("%q", t.Text)
	case TokenString:
		if len(t.Text) > 20 {
			return fmt.Sprintf("string %q...", t.Text[:20])
		}
		return fmt.Sprintf("string %q", t.Text)
	case TokenInt:
		return fmt.Sprintf("%d", t.Int)
	case TokenFloat:
		return fmt.Sprintf("%g", t.Float)
	case TokenRegexp:
		return "#" + t.Text + "#"
	}
	if t.Text != "" {
		return fmt.Sprintf("%q", t.Text)
	}
	return fmt.Sprintf("%q", t.Type.String())
}

// binopTokens maps operator tokens to engine binary operator codes.
var binopTokens = map[TokenType]int{
	TokenStar:       vm.BinMul,
	TokenSlash:      vm.BinDiv,
	TokenPercent:    vm.BinMod,
	TokenPlus:       vm.BinAdd,
	TokenMinus:      vm.BinSub,
	TokenShl:        vm.BinShl,
	TokenShr:        vm.BinShr,
	TokenLt:         vm.BinLt,
	TokenGt:         vm.BinGt,
	TokenLe:         vm.BinLe,
	TokenGe:         vm.BinGe,
	TokenEq:         vm.BinEq,
	TokenNe:         vm.BinNe,
	TokenTilde:      vm.BinMatch,
	TokenNoMatch:    vm.BinNoMatch,
	TokenExtract:    vm.BinExtract,
	TokenExtractAll: vm.BinExtractAll,
	TokenAmp:        vm.BinAnd,
	TokenCaret:      vm.BinXor,
	TokenBar:        vm.BinOr,
}

// Binary operator precedence, tightest first. Logical and assignment levels
// are handled by the parser directly.
var precedence = map[TokenType]int{
	TokenStar: 1, TokenSlash: 1, TokenPercent: 1,
	TokenPlus: 2, TokenMinus: 2,
	TokenShl: 3, TokenShr: 3,
	TokenLt: 4, TokenGt: 4, TokenLe: 4, TokenGe: 4,
	TokenEq: 5, TokenNe: 5, TokenTilde: 5, TokenNoMatch: 5, TokenExtract: 5, TokenExtractAll: 5,
	TokenAmp:    6,
	TokenCaret:  7,
	TokenBar:    8,
	TokenAndAnd: 9,
	TokenOrOr:   10,
}

const (
	precBinopMax = 10
	precQuestion = 11
	precAssign   = 12
	precComma    = 13
)

// keywords are the names that begin statements.
var keywords = []string{
	"auto", "break", "case", "continue", "critsect", "default", "do",
	"else", "extern", "for", "forall", "if", "in", "onerror", "return",
	"static", "switch", "try", "waitfor", "while",
}

// Keywords returns the words that begin statements.
func Keywords() []string {
	return append([]string(nil), keywords...)
}
