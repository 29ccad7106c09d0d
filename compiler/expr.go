package compiler

import (
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Expression tree
// ---------------------------------------------------------------------------

type exprKind int

const (
	exprConst exprKind = iota
	exprName
	exprBinop
	exprAndAnd
	exprOrOr
	exprQuestion
	exprAssign
	exprAssignLocal
	exprOpAssign
	exprSwap
	exprPreIncr
	exprPostIncr
	exprUnary
	exprDeref
	exprAddr
	exprCall
	exprIndex
	exprMethod
	exprComma
)

// expr is a parsed expression. Operands live in left, right and third
// (the else arm of ?:); calls keep their arguments in args.
type expr struct {
	kind exprKind
	line int

	obj  vm.Object  // exprConst
	name *vm.String // exprName
	code int        // binop code, incr delta binop, or unary opcode

	left, right, third *expr
	args               []*expr
}

func (p *parser) constant(o vm.Object, line int) *expr {
	return &expr{kind: exprConst, obj: o, line: line}
}

// isLvalue reports whether e can be assigned to.
func (e *expr) isLvalue() bool {
	switch e.kind {
	case exprName, exprIndex, exprDeref:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Expression parser
// ---------------------------------------------------------------------------

// parseComma parses a full expression, including the comma operator.
func (p *parser) parseComma() (*expr, error) {
	e, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.next()
		if tok.Type != TokenComma {
			p.lex.Unread(tok)
			return e, nil
		}
		r, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		e = &expr{kind: exprComma, left: e, right: r, line: tok.Line}
	}
}

// parseAssign parses an expression without top-level commas. Assignment
// operators group to the right.
func (p *parser) parseAssign() (*expr, error) {
	left, err := p.parseQuestion()
	if err != nil {
		return nil, err
	}
	tok := p.next()
	var kind exprKind
	switch tok.Type {
	case TokenAssign:
		kind = exprAssign
	case TokenAssignLocal:
		kind = exprAssignLocal
	case TokenOpAssign:
		kind = exprOpAssign
	case TokenSwap:
		kind = exprSwap
	default:
		p.lex.Unread(tok)
		return left, nil
	}
	if !left.isLvalue() {
		return nil, p.errorf(tok, "non-lvalue on left of %s", tok)
	}
	right, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if kind == exprSwap && !right.isLvalue() {
		return nil, p.errorf(tok, "non-lvalue on right of %s", tok)
	}
	return &expr{kind: kind, code: tok.Binop, left: left, right: right, line: tok.Line}, nil
}

func (p *parser) parseQuestion() (*expr, error) {
	cond, err := p.parseBinary(precBinopMax)
	if err != nil {
		return nil, err
	}
	tok := p.next()
	if tok.Type != TokenQuestion {
		p.lex.Unread(tok)
		return cond, nil
	}
	p.noColon++
	then, err := p.parseComma()
	p.noColon--
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenColon, `":"`); err != nil {
		return nil, err
	}
	els, err := p.parseQuestion()
	if err != nil {
		return nil, err
	}
	return &expr{kind: exprQuestion, left: cond, right: then, third: els, line: tok.Line}, nil
}

// parseBinary parses binary operators binding at least as tightly as
// maxPrec. All binary operators group to the left.
func (p *parser) parseBinary(maxPrec int) (*expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.next()
		prec, ok := precedence[tok.Type]
		if !ok || prec > maxPrec {
			p.lex.Unread(tok)
			return left, nil
		}
		right, err := p.parseBinary(prec - 1)
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenAndAnd:
			left = &expr{kind: exprAndAnd, left: left, right: right, line: tok.Line}
		case TokenOrOr:
			left = &expr{kind: exprOrOr, left: left, right: right, line: tok.Line}
		default:
			left = &expr{kind: exprBinop, code: tok.Binop, left: left, right: right, line: tok.Line}
		}
	}
}

func (p *parser) parseUnary() (*expr, error) {
	tok := p.next()
	unary := func(kind exprKind, code int) (*expr, error) {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr{kind: kind, code: code, left: e, line: tok.Line}, nil
	}
	switch tok.Type {
	case TokenStar:
		return unary(exprDeref, 0)
	case TokenAmp:
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !e.isLvalue() {
			return nil, p.errorf(tok, "non-lvalue operand of &")
		}
		return &expr{kind: exprAddr, left: e, line: tok.Line}, nil
	case TokenMinus:
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if e.kind == exprConst {
			switch n := e.obj.(type) {
			case *vm.Int:
				return p.constant(p.hold(p.v.NewInt(-n.V)), tok.Line), nil
			case *vm.Float:
				return p.constant(p.hold(p.v.NewFloat(-n.V)), tok.Line), nil
			}
		}
		return &expr{kind: exprUnary, code: int(vm.OpMinus), left: e, line: tok.Line}, nil
	case TokenPlus:
		return unary(exprUnary, int(vm.OpPlus))
	case TokenBang:
		return unary(exprUnary, int(vm.OpNot))
	case TokenTilde:
		return unary(exprUnary, int(vm.OpBitNot))
	case TokenAt:
		return unary(exprUnary, int(vm.OpAt))
	case TokenIncr, TokenDecr:
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !e.isLvalue() {
			return nil, p.errorf(tok, "non-lvalue operand of %s", tok)
		}
		return &expr{kind: exprPreIncr, code: incrCode(tok), left: e, line: tok.Line}, nil
	case TokenDollar:
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		o, err := p.constEval(e)
		if err != nil {
			return nil, err
		}
		return p.constant(o, tok.Line), nil
	}
	p.lex.Unread(tok)
	return p.parsePostfix()
}

func incrCode(tok Token) int {
	if tok.Type == TokenIncr {
		return vm.BinAdd
	}
	return vm.BinSub
}

func (p *parser) parsePostfix() (*expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.next()
		switch tok.Type {
		case TokenIncr, TokenDecr:
			if !e.isLvalue() {
				return nil, p.errorf(tok, "non-lvalue operand of %s", tok)
			}
			e = &expr{kind: exprPostIncr, code: incrCode(tok), left: e, line: tok.Line}

		case TokenLParen:
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			e = &expr{kind: exprCall, left: e, args: args, line: tok.Line}

		case TokenLBracket:
			saved := p.noColon
			p.noColon = 0
			key, err := p.parseComma()
			p.noColon = saved
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRBracket, `"]"`); err != nil {
				return nil, err
			}
			e = &expr{kind: exprIndex, left: e, right: key, line: tok.Line}

		case TokenDot, TokenArrow:
			key, err := p.parseKey()
			if err != nil {
				return nil, err
			}
			if tok.Type == TokenArrow {
				e = &expr{kind: exprDeref, left: e, line: tok.Line}
			}
			e = &expr{kind: exprIndex, left: e, right: key, line: tok.Line}

		case TokenColon:
			if p.noColon > 0 {
				p.lex.Unread(tok)
				return e, nil
			}
			key, err := p.parseKey()
			if err != nil {
				return nil, err
			}
			e = &expr{kind: exprMethod, left: e, right: key, line: tok.Line}

		default:
			p.lex.Unread(tok)
			return e, nil
		}
	}
}

// parseKey parses what follows '.', '->' or ':': a name, which is used as
// a string, or a parenthesised expression.
func (p *parser) parseKey() (*expr, error) {
	tok := p.next()
	switch tok.Type {
	case TokenName:
		return p.constant(p.stringConst(tok.Text), tok.Line), nil
	case TokenLParen:
		saved := p.noColon
		p.noColon = 0
		e, err := p.parseComma()
		p.noColon = saved
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen, `")"`); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.errorf(tok, "name or (expression) expected, but found %s", tok)
}

// parseArgs parses a call's arguments after the opening parenthesis.
func (p *parser) parseArgs() ([]*expr, error) {
	saved := p.noColon
	p.noColon = 0
	defer func() { p.noColon = saved }()

	var args []*expr
	if p.accept(TokenRParen) {
		return args, nil
	}
	for {
		a, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		tok := p.next()
		switch tok.Type {
		case TokenComma:
			continue
		case TokenRParen:
			return args, nil
		}
		return nil, p.errorf(tok, `"," or ")" expected, but found %s`, tok)
	}
}

func (p *parser) parsePrimary() (*expr, error) {
	tok := p.next()
	switch tok.Type {
	case TokenInt:
		return p.constant(p.hold(p.v.NewInt(tok.Int)), tok.Line), nil

	case TokenFloat:
		return p.constant(p.hold(p.v.NewFloat(tok.Float)), tok.Line), nil

	case TokenString:
		return p.constant(p.stringConst(tok.Text), tok.Line), nil

	case TokenRegexp:
		re, err := p.v.NewRegexp(tok.Text, false)
		if err != nil {
			return nil, p.errorf(tok, "%s", err)
		}
		return p.constant(p.hold(re), tok.Line), nil

	case TokenName:
		if isKeyword(tok.Text) {
			return nil, p.errorf(tok, "unexpected keyword %s", tok)
		}
		return &expr{kind: exprName, name: p.stringConst(tok.Text), line: tok.Line}, nil

	case TokenLParen:
		saved := p.noColon
		p.noColon = 0
		e, err := p.parseComma()
		p.noColon = saved
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen, `")"`); err != nil {
			return nil, err
		}
		return e, nil

	case TokenLBracket:
		o, err := p.parseLiteral(tok)
		if err != nil {
			return nil, err
		}
		return p.constant(o, tok.Line), nil
	}
	return nil, p.errorf(tok, "expression expected, but found %s", tok)
}

// ---------------------------------------------------------------------------
// Compile-time evaluation
// ---------------------------------------------------------------------------

// constEval evaluates e now, in the scope being compiled into. In check
// mode nothing runs and the value is NULL.
func (p *parser) constEval(e *expr) (vm.Object, error) {
	if e.kind == exprConst {
		return e.obj, nil
	}
	if p.check {
		return vm.Null, nil
	}
	code := p.newCode()
	if err := p.compile(code, e, forValue); err != nil {
		return nil, err
	}
	o, err := p.v.Evaluate(code)
	if err != nil {
		return nil, &SyntaxError{Msg: vm.ErrorMessage(err), Line: e.line}
	}
	p.hold(o)
	return o, nil
}
