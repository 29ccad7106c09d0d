package compiler

import (
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Bracketed literals: [array ...], [set ...], [struct ...], [class ...],
// [func ...]. All are built at compile time.
// ---------------------------------------------------------------------------

func (p *parser) parseLiteral(open Token) (vm.Object, error) {
	saved := p.noColon
	p.noColon = 0
	defer func() { p.noColon = saved }()

	tok := p.next()
	if tok.Type != TokenName {
		return nil, p.errorf(tok, "literal type expected after [, but found %s", tok)
	}
	var o vm.Object
	var err error
	switch tok.Text {
	case "array":
		o, err = p.parseArrayLiteral()
	case "set":
		o, err = p.parseSetLiteral()
	case "struct":
		o, err = p.parseStructLiteral(false)
	case "class":
		o, err = p.parseStructLiteral(true)
	case "func":
		o, err = p.parseFunction(nil)
		if err == nil {
			err = p.expect(TokenRBracket, `"]"`)
		}
	default:
		return nil, p.errorf(tok, "unknown literal type %s", tok)
	}
	return o, err
}

// parseElems parses comma separated compile-time values up to the closing
// bracket. A trailing comma is allowed.
func (p *parser) parseElems(add func(vm.Object)) error {
	for {
		if p.accept(TokenRBracket) {
			return nil
		}
		e, err := p.parseAssign()
		if err != nil {
			return err
		}
		o, err := p.constEval(e)
		if err != nil {
			return err
		}
		add(o)
		tok := p.next()
		switch tok.Type {
		case TokenComma:
		case TokenRBracket:
			return nil
		default:
			return p.errorf(tok, `"," or "]" expected, but found %s`, tok)
		}
	}
}

func (p *parser) parseArrayLiteral() (vm.Object, error) {
	a := p.v.NewArray(0)
	p.hold(a)
	if err := p.parseElems(a.Push); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *parser) parseSetLiteral() (vm.Object, error) {
	s := p.v.NewSet()
	p.hold(s)
	if err := p.parseElems(s.Add); err != nil {
		return nil, err
	}
	return s, nil
}

// parseStructLiteral parses the members of a struct or class literal. A
// class is the static scope of its own methods and, without an explicit
// super, delegates to the statics it is defined in.
func (p *parser) parseStructLiteral(class bool) (vm.Object, error) {
	m := p.v.NewMap()
	p.hold(m)

	if p.accept(TokenColon) {
		e, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		super, err := p.constEval(e)
		if err != nil {
			return nil, err
		}
		if super != vm.Object(vm.Null) {
			sm, ok := super.(*vm.Map)
			if !ok {
				return nil, &SyntaxError{Msg: "super of a struct literal must be a struct, not " + vm.TypeName(super), Line: e.line}
			}
			p.v.SetSuper(m, sm)
		}
		tok := p.next()
		if tok.Type == TokenRBracket {
			return m, nil
		}
		if tok.Type != TokenComma {
			return nil, p.errorf(tok, `"," or "]" expected, but found %s`, tok)
		}
	} else if class {
		p.v.SetSuper(m, p.statics)
	}

	if class {
		saved := p.statics
		p.statics = m
		defer func() { p.statics = saved }()
	}

	for {
		tok := p.next()
		var key vm.Object
		switch tok.Type {
		case TokenRBracket:
			return m, nil
		case TokenName:
			key = p.stringConst(tok.Text)
		case TokenLParen:
			e, err := p.parseComma()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRParen, `")"`); err != nil {
				return nil, err
			}
			if key, err = p.constEval(e); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf(tok, "member name expected, but found %s", tok)
		}

		var val vm.Object = vm.Null
		next := p.next()
		switch {
		case next.Type == TokenAssign:
			e, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			if val, err = p.constEval(e); err != nil {
				return nil, err
			}
			next = p.next()
		case next.Type == TokenLParen && class:
			name, _ := key.(*vm.String)
			p.lex.Unread(next)
			f, err := p.parseFunction(name)
			if err != nil {
				return nil, err
			}
			val = f
			next = p.next()
			if next.Type != TokenComma && next.Type != TokenRBracket {
				// methods need no separating comma
				p.lex.Unread(next)
				next = Token{Type: TokenComma}
			}
		}
		if err := p.v.AssignBase(m, key, val); err != nil {
			return nil, p.errorf(tok, "%s", err)
		}
		switch next.Type {
		case TokenComma:
		case TokenRBracket:
			return m, nil
		default:
			return nil, p.errorf(next, `"," or "]" expected, but found %s`, next)
		}
	}
}

// parseFunction parses "(params) { body }" and builds the function.
// Locals declared in the body go into its autos prototype, whose super is
// the statics the function is defined in.
func (p *parser) parseFunction(name *vm.String) (*vm.Func, error) {
	if err := p.expect(TokenLParen, `"("`); err != nil {
		return nil, err
	}
	v := p.v
	args := v.NewArray(0)
	p.hold(args)
	autos := v.NewMap()
	p.hold(autos)
	v.SetSuper(autos, p.statics)

	if !p.accept(TokenRParen) {
		for {
			tok := p.next()
			if tok.Type != TokenName || isKeyword(tok.Text) {
				return nil, p.errorf(tok, "parameter name expected, but found %s", tok)
			}
			s := p.stringConst(tok.Text)
			args.Push(s)
			if err := v.AssignBase(autos, s, vm.Null); err != nil {
				return nil, err
			}
			tok = p.next()
			if tok.Type == TokenRParen {
				break
			}
			if tok.Type != TokenComma {
				return nil, p.errorf(tok, `"," or ")" expected, but found %s`, tok)
			}
		}
	}
	if err := p.expect(TokenLBrace, `"{"`); err != nil {
		return nil, err
	}

	p.fn = &funcState{autos: autos, outer: p.fn}
	defer func() { p.fn = p.fn.outer }()

	code := p.newCode()
	for !p.accept(TokenRBrace) {
		if err := p.statement(code); err != nil {
			return nil, err
		}
	}
	f := v.NewFunc(code, args, autos, name)
	p.hold(f)
	return f, nil
}
