package compiler

import (
	"github.com/ici-language/ici-sub000/vm"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// statement parses one statement and appends its code.
func (p *parser) statement(code *vm.Array) error {
	tok := p.next()
	if tok.Type == TokenEOF || tok.Type == TokenError {
		return p.errorf(tok, "statement expected, but found %s", tok)
	}
	code.Push(p.hold(p.v.NewSrc(p.file, tok.Line)))

	switch tok.Type {
	case TokenSemicolon:
		return nil
	case TokenLBrace:
		for !p.accept(TokenRBrace) {
			if err := p.statement(code); err != nil {
				return err
			}
		}
		return nil
	case TokenName:
		switch tok.Text {
		case "if":
			return p.ifStatement(code)
		case "while":
			return p.whileStatement(code)
		case "do":
			return p.doStatement(code)
		case "for":
			return p.forStatement(code)
		case "forall":
			return p.forallStatement(code)
		case "switch":
			return p.switchStatement(code)
		case "try":
			return p.tryStatement(code)
		case "critsect":
			body := p.newCode()
			if err := p.statement(body); err != nil {
				return err
			}
			code.Push(p.op(vm.OpCritsect))
			code.Push(body)
			return nil
		case "waitfor":
			return p.waitforStatement(code)
		case "break", "continue":
			if err := p.expect(TokenSemicolon, `";"`); err != nil {
				return err
			}
			if tok.Text == "break" {
				code.Push(p.op(vm.OpBreak))
			} else {
				code.Push(p.op(vm.OpContinue))
			}
			return nil
		case "return":
			if p.accept(TokenSemicolon) {
				code.Push(vm.Null)
			} else {
				e, err := p.parseComma()
				if err != nil {
					return err
				}
				if err := p.compile(code, e, forValue); err != nil {
					return err
				}
				if err := p.expect(TokenSemicolon, `";"`); err != nil {
					return err
				}
			}
			code.Push(p.op(vm.OpReturn))
			return nil
		case "extern", "static", "auto":
			return p.declaration(code, tok.Text)
		case "case", "default", "else", "onerror", "in":
			return p.errorf(tok, "misplaced %s", tok)
		}
	}

	p.lex.Unread(tok)
	e, err := p.parseComma()
	if err != nil {
		return err
	}
	if err := p.expect(TokenSemicolon, `";"`); err != nil {
		return err
	}
	return p.compile(code, e, forEffect)
}

// condition parses "( expression )".
func (p *parser) condition() (*expr, error) {
	if err := p.expect(TokenLParen, `"("`); err != nil {
		return nil, err
	}
	e, err := p.parseComma()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRParen, `")"`); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) ifStatement(code *vm.Array) error {
	cond, err := p.condition()
	if err != nil {
		return err
	}
	if err := p.compile(code, cond, forValue); err != nil {
		return err
	}
	then := p.newCode()
	if err := p.statement(then); err != nil {
		return err
	}
	if !p.acceptName("else") {
		code.Push(p.op(vm.OpIf))
		code.Push(then)
		return nil
	}
	els := p.newCode()
	if err := p.statement(els); err != nil {
		return err
	}
	code.Push(p.op(vm.OpIfElse))
	code.Push(then)
	code.Push(els)
	return nil
}

// loop emits a loop over body entered at index entry.
func (p *parser) loop(code, body *vm.Array, entry int) {
	body.Push(p.op(vm.OpRewind))
	code.Push(p.op(vm.OpLoop))
	code.Push(body)
	code.Push(p.intConst(entry))
}

func (p *parser) whileStatement(code *vm.Array) error {
	cond, err := p.condition()
	if err != nil {
		return err
	}
	body := p.newCode()
	if err := p.compile(body, cond, forValue); err != nil {
		return err
	}
	body.Push(p.op(vm.OpIfBreak))
	if err := p.statement(body); err != nil {
		return err
	}
	p.loop(code, body, 0)
	return nil
}

func (p *parser) doStatement(code *vm.Array) error {
	stmt := p.newCode()
	if err := p.statement(stmt); err != nil {
		return err
	}
	if tok := p.next(); tok.Type != TokenName || tok.Text != "while" {
		return p.errorf(tok, `"while" expected, but found %s`, tok)
	}
	cond, err := p.condition()
	if err != nil {
		return err
	}
	if err := p.expect(TokenSemicolon, `";"`); err != nil {
		return err
	}
	body := p.newCode()
	if err := p.compile(body, cond, forValue); err != nil {
		return err
	}
	body.Push(p.op(vm.OpIfBreak))
	entry := body.Len()
	body.AppendAll(stmt)
	p.loop(code, body, entry)
	return nil
}

func (p *parser) forStatement(code *vm.Array) error {
	if err := p.expect(TokenLParen, `"("`); err != nil {
		return err
	}
	// optional expression followed by the given terminator
	clause := func(end TokenType, what string) (*expr, error) {
		if p.accept(end) {
			return nil, nil
		}
		e, err := p.parseComma()
		if err != nil {
			return nil, err
		}
		return e, p.expect(end, what)
	}
	init, err := clause(TokenSemicolon, `";"`)
	if err != nil {
		return err
	}
	cond, err := clause(TokenSemicolon, `";"`)
	if err != nil {
		return err
	}
	step, err := clause(TokenRParen, `")"`)
	if err != nil {
		return err
	}

	if init != nil {
		if err := p.compile(code, init, forEffect); err != nil {
			return err
		}
	}
	body := p.newCode()
	if step != nil {
		if err := p.compile(body, step, forEffect); err != nil {
			return err
		}
	}
	entry := body.Len()
	if cond != nil {
		if err := p.compile(body, cond, forValue); err != nil {
			return err
		}
		body.Push(p.op(vm.OpIfBreak))
	}
	if err := p.statement(body); err != nil {
		return err
	}
	p.loop(code, body, entry)
	return nil
}

func (p *parser) forallStatement(code *vm.Array) error {
	if err := p.expect(TokenLParen, `"("`); err != nil {
		return err
	}
	val, err := p.parseAssign()
	if err != nil {
		return err
	}
	var key *expr
	if p.accept(TokenComma) {
		if key, err = p.parseAssign(); err != nil {
			return err
		}
	}
	if tok := p.next(); tok.Type != TokenName || tok.Text != "in" {
		return p.errorf(tok, `"in" expected, but found %s`, tok)
	}
	aggr, err := p.parseComma()
	if err != nil {
		return err
	}
	if err := p.expect(TokenRParen, `")"`); err != nil {
		return err
	}

	for _, e := range []*expr{val, key} {
		if e == nil {
			code.Push(vm.Null)
			code.Push(vm.Null)
			continue
		}
		if err := p.compile(code, e, forLvalue); err != nil {
			return err
		}
	}
	if err := p.compile(code, aggr, forValue); err != nil {
		return err
	}
	body := p.newCode()
	if err := p.statement(body); err != nil {
		return err
	}
	code.Push(p.op(vm.OpForall))
	code.Push(body)
	return nil
}

// switchStatement compiles the body as one array. Case labels are
// evaluated now and map to their offsets in it.
func (p *parser) switchStatement(code *vm.Array) error {
	sel, err := p.condition()
	if err != nil {
		return err
	}
	if err := p.expect(TokenLBrace, `"{"`); err != nil {
		return err
	}
	cases := p.v.NewMap()
	p.hold(cases)
	body := p.newCode()

	for {
		tok := p.next()
		var label vm.Object
		switch {
		case tok.Type == TokenRBrace:
			if err := p.compile(code, sel, forValue); err != nil {
				return err
			}
			code.Push(p.op(vm.OpSwitch))
			code.Push(cases)
			code.Push(body)
			return nil

		case tok.Type == TokenName && tok.Text == "case":
			p.noColon++
			e, err := p.parseComma()
			p.noColon--
			if err != nil {
				return err
			}
			if label, err = p.constEval(e); err != nil {
				return err
			}

		case tok.Type == TokenName && tok.Text == "default":
			label = p.v.Op(vm.OpDefault, 0)

		default:
			p.lex.Unread(tok)
			if err := p.statement(body); err != nil {
				return err
			}
			continue
		}

		if err := p.expect(TokenColon, `":"`); err != nil {
			return err
		}
		if dup, _ := p.v.FetchBase(cases, label); dup != vm.Object(vm.Null) && !p.check {
			return p.errorf(tok, "duplicate case label")
		}
		if err := p.v.AssignBase(cases, label, p.intConst(body.Len())); err != nil {
			return p.errorf(tok, "%s", err)
		}
	}
}

func (p *parser) tryStatement(code *vm.Array) error {
	try := p.newCode()
	if err := p.statement(try); err != nil {
		return err
	}
	if tok := p.next(); tok.Type != TokenName || tok.Text != "onerror" {
		return p.errorf(tok, `"onerror" expected, but found %s`, tok)
	}
	handler := p.newCode()
	if err := p.statement(handler); err != nil {
		return err
	}
	code.Push(p.op(vm.OpOnerror))
	code.Push(try)
	code.Push(handler)
	return nil
}

// waitforStatement compiles
//
//	waitfor (cond; token) stmt
//
// as a critical section that sleeps on token until cond holds, then runs
// stmt.
func (p *parser) waitforStatement(code *vm.Array) error {
	if err := p.expect(TokenLParen, `"("`); err != nil {
		return err
	}
	cond, err := p.parseComma()
	if err != nil {
		return err
	}
	if err := p.expect(TokenSemicolon, `";"`); err != nil {
		return err
	}
	token, err := p.parseComma()
	if err != nil {
		return err
	}
	if err := p.expect(TokenRParen, `")"`); err != nil {
		return err
	}

	guarded := p.newCode()
	wait := p.newCode()
	if err := p.compile(wait, cond, forValue); err != nil {
		return err
	}
	wait.Push(p.op(vm.OpNot))
	wait.Push(p.op(vm.OpIfBreak))
	if err := p.compile(wait, token, forValue); err != nil {
		return err
	}
	wait.Push(p.op(vm.OpWaitfor))
	p.loop(guarded, wait, 0)
	if err := p.statement(guarded); err != nil {
		return err
	}
	code.Push(p.op(vm.OpCritsect))
	code.Push(guarded)
	return nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// declaration parses "extern|static|auto name [= init], ... ;". A name
// followed by a parameter list defines a function. Static and extern
// initialisers are evaluated now; auto initialisers run with the
// statement.
func (p *parser) declaration(code *vm.Array, class string) error {
	for {
		tok := p.next()
		if tok.Type != TokenName || isKeyword(tok.Text) {
			return p.errorf(tok, "name expected in %s declaration, but found %s", class, tok)
		}
		name := p.stringConst(tok.Text)

		var init *expr
		next := p.next()
		switch next.Type {
		case TokenLParen:
			p.lex.Unread(next)
			f, err := p.parseFunction(name)
			if err != nil {
				return err
			}
			// a function body ends the declaration
			return p.declare(code, class, name, p.constant(f, tok.Line))
		case TokenAssign:
			e, err := p.parseAssign()
			if err != nil {
				return err
			}
			init = e
			next = p.next()
		}
		if err := p.declare(code, class, name, init); err != nil {
			return err
		}
		switch next.Type {
		case TokenComma:
		case TokenSemicolon:
			return nil
		default:
			return p.errorf(next, `"," or ";" expected, but found %s`, next)
		}
	}
}

func (p *parser) declare(code *vm.Array, class string, name *vm.String, init *expr) error {
	v := p.v
	if class == "auto" {
		if p.fn != nil {
			if err := v.AssignBase(p.fn.autos, name, vm.Null); err != nil {
				return err
			}
		}
		local := &expr{kind: exprName, name: name}
		if init == nil {
			init = p.constant(vm.Null, 0)
			if p.fn != nil {
				return nil
			}
		}
		return p.compile(code, &expr{kind: exprAssignLocal, left: local, right: init}, forEffect)
	}

	target := p.statics
	if class == "extern" {
		target = p.externs
	}
	var val vm.Object = vm.Null
	if init != nil {
		o, err := p.constEval(init)
		if err != nil {
			return err
		}
		val = o
	}
	if err := v.AssignBase(target, name, val); err != nil {
		return err
	}
	return nil
}
