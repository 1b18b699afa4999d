package formula

import (
	"strings"

	"github.com/leapstack-labs/veritab/pkg/token"
)

// Format renders an AST back to formula text. Parsing the result
// yields a structurally equal AST (modulo parenthesisation).
func Format(e Expr) string {
	var sb strings.Builder
	writeExpr(&sb, e, precNone)
	return sb.String()
}

// writeExpr writes e, wrapping it in parentheses when its precedence
// is lower than the surrounding context requires.
func writeExpr(sb *strings.Builder, e Expr, parentPrec int) {
	switch n := e.(type) {
	case *Literal:
		writeLiteral(sb, n)

	case *ColumnRef:
		writeColumnRef(sb, n)

	case *UnaryExpr:
		if n.Op == token.NOT {
			wrap := parentPrec > precNot
			if wrap {
				sb.WriteByte('(')
			}
			sb.WriteString("NOT ")
			writeExpr(sb, n.Expr, precNot)
			if wrap {
				sb.WriteByte(')')
			}
			return
		}
		// Unary minus
		wrap := parentPrec > precUnary
		if wrap {
			sb.WriteByte('(')
		}
		sb.WriteByte('-')
		writeExpr(sb, n.Expr, precUnary)
		if wrap {
			sb.WriteByte(')')
		}

	case *BinaryExpr:
		prec := infixPrecedence(n.Op)
		wrap := parentPrec > prec
		if wrap {
			sb.WriteByte('(')
		}
		writeExpr(sb, n.Left, prec)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.String())
		sb.WriteByte(' ')
		// Right side needs one level higher: operators are left-associative
		writeExpr(sb, n.Right, prec+1)
		if wrap {
			sb.WriteByte(')')
		}

	case *FuncCall:
		sb.WriteString(n.Name)
		sb.WriteByte('(')
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, arg, precNone)
		}
		sb.WriteByte(')')

	case *IfExpr:
		sb.WriteString("IF(")
		writeExpr(sb, n.Cond, precNone)
		sb.WriteString(", ")
		writeExpr(sb, n.Then, precNone)
		sb.WriteString(", ")
		writeExpr(sb, n.Else, precNone)
		sb.WriteByte(')')

	case *InExpr:
		wrap := parentPrec > precComparison
		if wrap {
			sb.WriteByte('(')
		}
		writeExpr(sb, n.Expr, precComparison)
		sb.WriteString(" IN (")
		for i, v := range n.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, v, precNone)
		}
		sb.WriteByte(')')
		if wrap {
			sb.WriteByte(')')
		}
	}
}

func writeLiteral(sb *strings.Builder, l *Literal) {
	switch l.Kind {
	case LiteralString:
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(l.Value, `"`, `""`))
		sb.WriteByte('"')
	case LiteralBool:
		if l.Value == "true" {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	default:
		sb.WriteString(l.Value)
	}
}

func writeColumnRef(sb *strings.Builder, c *ColumnRef) {
	if c.Quoted || !isPlainIdent(c.Name) {
		sb.WriteByte('`')
		sb.WriteString(c.Name)
		sb.WriteByte('`')
		return
	}
	sb.WriteString(c.Name)
}

// isPlainIdent reports whether name lexes as a single bare identifier
// (and not as a keyword).
func isPlainIdent(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isLetter(c) || c == '_':
		case isDigit(c) && i > 0:
		default:
			return false
		}
	}
	return token.LookupIdent(name) == token.IDENT
}
