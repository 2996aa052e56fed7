package transpile

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed single-expression function body.
type Expr interface {
	String() string
}

type (
	numberExpr struct{ value float64 }
	paramExpr  struct {
		index int
		name  string
	}
	unaryExpr struct {
		op byte
		x  Expr
	}
	binaryExpr struct {
		op   byte
		x, y Expr
	}
	callExpr struct {
		fn   string
		args []Expr
	}
)

func (e numberExpr) String() string { return strconv.FormatFloat(e.value, 'g', -1, 64) }
func (e paramExpr) String() string  { return e.name }
func (e unaryExpr) String() string  { return "(" + string(e.op) + e.x.String() + ")" }
func (e binaryExpr) String() string {
	return "(" + e.x.String() + " " + string(e.op) + " " + e.y.String() + ")"
}
func (e callExpr) String() string {
	args := make([]string, len(e.args))
	for i, a := range e.args {
		args[i] = a.String()
	}
	return e.fn + "(" + strings.Join(args, ", ") + ")"
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			loc := numberRe.FindStringIndex(src[i:])
			if loc == nil || loc[0] != 0 {
				return nil, fmt.Errorf("%w: bad number at offset %d", ErrExpression, i)
			}
			end := i + loc[1]
			// Device dialect literals carry a trailing suffix.
			if end < len(src) && src[end:end+1] == LiteralSuffix {
				toks = append(toks, token{kind: tokNumber, text: src[i:end], pos: i})
				i = end + 1
				continue
			}
			if end < len(src) && isIdentByte(src[end]) {
				return nil, fmt.Errorf("%w: bad number %q at offset %d", ErrExpression, src[i:end+1], i)
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:end], pos: i})
			i = end
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		case strings.IndexByte("+-*/(),", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: src[i : i+1], pos: i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrExpression, c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// ParseExpression parses src with params as the only free variables. Both the
// host dialect (2, sin) and the device dialect (2f, math_sin) are accepted.
func ParseExpression(src string, params []string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, params: params}
	e, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrExpression, t.text, t.pos)
	}
	return e, nil
}

type parser struct {
	toks   []token
	pos    int
	params []string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(op string) error {
	t := p.next()
	if t.kind != tokOp || t.text != op {
		return fmt.Errorf("%w: expected %q at offset %d", ErrExpression, op, t.pos)
	}
	return nil
}

const unaryPrecedence = 3

func infixPrecedence(t token) int {
	if t.kind != tokOp {
		return 0
	}
	switch t.text {
	case "+", "-":
		return 1
	case "*", "/":
		return 2
	}
	return 0
}

func (p *parser) parse(minPrec int) (Expr, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec := infixPrecedence(t)
		if prec == 0 || prec <= minPrec {
			return left, nil
		}
		p.next()
		right, err := p.parse(prec)
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: t.text[0], x: left, y: right}
	}
}

func (p *parser) prefix() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExpression, err)
		}
		return numberExpr{value: v}, nil
	case tokIdent:
		if n := p.peek(); n.kind == tokOp && n.text == "(" {
			return p.call(t)
		}
		for i, name := range p.params {
			if name == t.text {
				return paramExpr{index: i, name: name}, nil
			}
		}
		return nil, fmt.Errorf("%w: unknown identifier %q at offset %d", ErrExpression, t.text, t.pos)
	case tokOp:
		switch t.text {
		case "-", "+":
			x, err := p.parse(unaryPrecedence)
			if err != nil {
				return nil, err
			}
			if t.text == "+" {
				return x, nil
			}
			return unaryExpr{op: '-', x: x}, nil
		case "(":
			x, err := p.parse(0)
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	if t.kind == tokEOF {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrExpression)
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrExpression, t.text, t.pos)
}

func (p *parser) call(name token) (Expr, error) {
	fn := strings.TrimPrefix(name.text, DeviceMathNamespace)
	arity, ok := builtinArity[fn]
	if !ok {
		return nil, fmt.Errorf("%w: unknown function %q at offset %d", ErrExpression, name.text, name.pos)
	}
	p.next() // (
	var args []Expr
	if n := p.peek(); !(n.kind == tokOp && n.text == ")") {
		for {
			a, err := p.parse(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if n := p.peek(); n.kind == tokOp && n.text == "," {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if len(args) != arity {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrExpression, fn, arity, len(args))
	}
	return callExpr{fn: fn, args: args}, nil
}
