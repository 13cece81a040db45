package condition

import "fmt"

// -----------------------------------------------------------------------
// Boolean expression AST
//
// Condition results compose into a token stream (literals, AND/OR, parens)
// which parses into this AST. No dynamic code execution is involved.
// -----------------------------------------------------------------------

// Expr is the common interface for all AST nodes.
type Expr interface {
	Eval() bool
}

// Literal is a pre-computed condition result.
type Literal bool

func (l Literal) Eval() bool { return bool(l) }

// AndExpr is short-circuit conjunction.
type AndExpr struct {
	Left, Right Expr
}

func (e *AndExpr) Eval() bool { return e.Left.Eval() && e.Right.Eval() }

// OrExpr is short-circuit disjunction.
type OrExpr struct {
	Left, Right Expr
}

func (e *OrExpr) Eval() bool { return e.Left.Eval() || e.Right.Eval() }

// -----------------------------------------------------------------------
// Tokens
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind  tokenKind
	value bool // only for tokLiteral
}

func (t token) String() string {
	switch t.kind {
	case tokLiteral:
		return fmt.Sprintf("%v", t.value)
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	default:
		return "<eof>"
	}
}

// -----------------------------------------------------------------------
// Recursive-descent parser
//
// Grammar (AND binds tighter than OR):
//
//	or_expr  = and_expr ( "OR" and_expr )*
//	and_expr = primary ( "AND" primary )*
//	primary  = literal | "(" or_expr ")"
// -----------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// parseTokens parses a token stream into an AST. The stream must end with
// tokEOF.
func parseTokens(tokens []token) (Expr, error) {
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %s after expression", p.peek())
	}
	return node, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.consume()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.consume()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch t := p.peek(); t.kind {
	case tokLiteral:
		p.consume()
		return Literal(t.value), nil
	case tokLParen:
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ) but got %s", p.peek())
		}
		p.consume()
		return inner, nil
	default:
		return nil, fmt.Errorf("expected literal or ( but got %s", t)
	}
}
