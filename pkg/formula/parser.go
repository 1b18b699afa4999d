// Package formula provides the lexer, parser, and field extraction for
// the spreadsheet-style formula dialect used by validation rules.
//
// # Usage
//
//	expr, err := formula.Parse("=AND(NOT(ISBLANK(`Submitter`)), Amount > 0)")
//	if err != nil {
//	    // *LexError or *ParseError with source position
//	}
//
// # Grammar Overview
//
// The parser implements precedence climbing over the following levels,
// lowest to highest:
//
//	or_expr      → and_expr (OR and_expr)*
//	and_expr     → not_expr (AND not_expr)*
//	not_expr     → NOT not_expr | cmp_expr
//	cmp_expr     → concat_expr ((= | <> | < | <= | > | >=) concat_expr)*
//	             | concat_expr IN "(" expr_list ")"
//	concat_expr  → add_expr (& add_expr)*
//	add_expr     → mul_expr ((+ | -) mul_expr)*
//	mul_expr     → unary_expr ((* | /) unary_expr)*
//	unary_expr   → - unary_expr | primary
//	primary      → NUMBER | STRING | TRUE | FALSE | column_ref
//	             | func_call | "(" expr ")"
//
// Comparisons are left-associative and non-chaining: a < b < c parses
// as (a < b) < c, which compares a Boolean to c; the evaluator warns.
package formula

import (
	"fmt"

	"github.com/leapstack-labs/veritab/pkg/token"
)

// Operator precedence levels, lowest to highest.
const (
	precNone = iota
	precOr
	precAnd
	precNot
	precComparison
	precConcat
	precAddition
	precMultiply
	precUnary
)

// maxTokens bounds the number of tokens a single formula may contain.
const maxTokens = 10000

// Parser parses a formula into an AST.
type Parser struct {
	lexer  *Lexer
	token  token.Token // current token
	peek   token.Token // lookahead token
	errors []error
	count  int // tokens consumed, for the length bound
}

// NewParser creates a new parser for the given formula input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the formula and returns the AST. A leading "=" is
// permitted and ignored. The error is a *LexError or *ParseError.
func Parse(input string) (Expr, error) {
	p := NewParser(input)
	expr := p.parseExpression()
	if !p.check(token.EOF) {
		p.addError(fmt.Sprintf("unexpected token %s after expression", p.token.Type))
	}
	if err := p.lexer.Err(); err != nil {
		return nil, err
	}
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return expr, nil
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.count++
	if p.count > maxTokens {
		p.addError(fmt.Sprintf("formula exceeds %d tokens", maxTokens))
		p.peek = token.Token{Type: token.EOF, Pos: p.peek.Pos}
		return
	}
	p.peek = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.Type) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t token.Type) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.Type) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.Type) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected token %s, expected %s", p.token.Type, t))
	return false
}

// addError records a parse error at the current token.
func (p *Parser) addError(msg string) {
	p.addErrorAt(p.token.Pos, msg)
}

// addErrorAt records a parse error at the given position.
func (p *Parser) addErrorAt(pos token.Position, msg string) {
	p.errors = append(p.errors, &ParseError{Pos: pos, Message: msg})
}

// ---------- Expression Parsing ----------

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() Expr {
	return p.parseExpressionWithPrecedence(precOr)
}

// parseExpressionWithPrecedence parses infix operators while their
// precedence is >= minPrecedence.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for {
		prec := infixPrecedence(p.token.Type)
		if prec < minPrecedence {
			break
		}

		left = p.parseInfixExpr(left, prec)
		if left == nil {
			break
		}
	}

	return left
}

// infixPrecedence returns the precedence of t as an infix operator, or
// precNone if it is not one.
func infixPrecedence(t token.Type) int {
	switch t {
	case token.OR:
		return precOr
	case token.AND:
		return precAnd
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE, token.IN:
		return precComparison
	case token.AMP:
		return precConcat
	case token.PLUS, token.MINUS:
		return precAddition
	case token.STAR, token.SLASH:
		return precMultiply
	default:
		return precNone
	}
}

// parsePrefixExpr parses prefix expressions (NOT, unary minus) and
// primary expressions.
func (p *Parser) parsePrefixExpr() Expr {
	switch p.token.Type {
	case token.NOT:
		// NOT(x) is also available in function form; the prefix
		// operator subsumes it since the argument is parenthesised.
		pos := p.token.Pos
		p.nextToken()
		expr := p.parseExpressionWithPrecedence(precNot)
		if expr == nil {
			return nil
		}
		return &UnaryExpr{Op: token.NOT, Expr: expr, StartPos: pos}

	case token.MINUS:
		pos := p.token.Pos
		p.nextToken()
		expr := p.parseExpressionWithPrecedence(precUnary)
		if expr == nil {
			return nil
		}
		return &UnaryExpr{Op: token.MINUS, Expr: expr, StartPos: pos}

	default:
		return p.parsePrimary()
	}
}

// parseInfixExpr parses an infix expression given the left operand and
// current precedence.
func (p *Parser) parseInfixExpr(left Expr, prec int) Expr {
	if p.token.Type == token.IN {
		p.nextToken()
		return p.parseInExpr(left)
	}

	op := p.token
	p.nextToken()

	// Parse right operand with higher precedence (left-associative)
	right := p.parseExpressionWithPrecedence(prec + 1)
	if right == nil {
		return nil
	}

	return &BinaryExpr{Left: left, Op: op.Type, Right: right}
}

// parseInExpr parses the value list of a membership test.
func (p *Parser) parseInExpr(left Expr) Expr {
	in := &InExpr{Expr: left}

	if !p.expect(token.LPAREN) {
		return nil
	}
	for {
		v := p.parseExpressionWithPrecedence(precOr)
		if v == nil {
			return nil
		}
		in.Values = append(in.Values, v)

		if !p.match(token.COMMA) {
			break
		}
		if p.check(token.RPAREN) {
			p.addError("unexpected trailing comma in IN list")
			return nil
		}
	}
	if !p.expect(token.RPAREN) {
		return nil
	}
	return in
}

// parsePrimary parses primary expressions.
func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case token.NUMBER:
		lit := &Literal{Kind: LiteralNumber, Value: p.token.Literal, StartPos: p.token.Pos}
		p.nextToken()
		return lit

	case token.STRING:
		lit := &Literal{Kind: LiteralString, Value: p.token.Literal, StartPos: p.token.Pos}
		p.nextToken()
		return lit

	case token.TRUE:
		lit := &Literal{Kind: LiteralBool, Value: "true", StartPos: p.token.Pos}
		p.nextToken()
		return lit

	case token.FALSE:
		lit := &Literal{Kind: LiteralBool, Value: "false", StartPos: p.token.Pos}
		p.nextToken()
		return lit

	case token.IDENT:
		return p.parseIdentifierExpr()

	case token.QIDENT:
		ref := &ColumnRef{Name: p.token.Literal, Quoted: true, StartPos: p.token.Pos}
		p.nextToken()
		return ref

	case token.AND, token.OR:
		// AND and OR are also available in function form
		if p.checkPeek(token.LPAREN) {
			name := p.token.Type.String()
			pos := p.token.Pos
			p.nextToken()
			return p.parseFuncCall(name, pos)
		}
		p.addError(fmt.Sprintf("unexpected token %s in expression", p.token.Type))
		p.nextToken()
		return nil

	case token.LPAREN:
		p.nextToken()
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		return expr

	default:
		p.addError(fmt.Sprintf("unexpected token %s in expression", p.token.Type))
		p.nextToken()
		return nil
	}
}

// parseIdentifierExpr parses an identifier which is either a column
// reference or, when the next token is "(" (whitespace may come
// between), a function call.
func (p *Parser) parseIdentifierExpr() Expr {
	name := p.token.Literal
	pos := p.token.Pos
	p.nextToken()

	if p.check(token.LPAREN) {
		return p.parseFuncCall(name, pos)
	}

	return &ColumnRef{Name: name, StartPos: pos}
}

// parseFuncCall parses a function call. The function name is
// upper-cased; IF with three arguments becomes an IfExpr.
func (p *Parser) parseFuncCall(name string, pos token.Position) Expr {
	fn := &FuncCall{Name: upperASCII(name), StartPos: pos}

	p.expect(token.LPAREN)

	if !p.check(token.RPAREN) {
		for {
			arg := p.parseExpression()
			if arg == nil {
				return nil
			}
			fn.Args = append(fn.Args, arg)

			if !p.match(token.COMMA) {
				break
			}
			if p.check(token.RPAREN) {
				p.addError("unexpected trailing comma in argument list")
				return nil
			}
		}
	}

	if !p.expect(token.RPAREN) {
		return nil
	}

	if fn.Name == "IF" && len(fn.Args) == 3 {
		return &IfExpr{Cond: fn.Args[0], Then: fn.Args[1], Else: fn.Args[2], StartPos: pos}
	}

	return fn
}

// upperASCII upper-cases ASCII letters without touching other bytes.
func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
