// Package boolexpr implements the small comparison-expression language
// spec.md's GLOSSARY names BoolParser: the query=<bool-expr> clause of a
// chunk GET (§4.7), e.g. `x1 == "hi" AND y2 > 42`. Grounded on the shape
// the original source's tests/unit/boolParserTest.py exercises against
// hsds/util/boolparser.py's BooleanParser — variable/operator/literal
// comparisons chained with AND/OR, string literals in single or double
// quotes, numeric literals otherwise, and a parse-time error on anything
// malformed. This is a fresh recursive-descent implementation, not a port.
package boolexpr

import (
	"strconv"
	"strings"

	"github.com/hsds-go/hsds/cmn"
)

// Op is a clause's comparison operator.
type Op string

const (
	OpEQ Op = "=="
	OpNE Op = "!="
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
)

type clause struct {
	field string
	op    Op
	lit   interface{} // string or float64
}

// Expr is a parsed boolean expression: an OR of AND-groups (disjunctive
// normal form), the same shape a flat "AND"/"OR" chain without parens
// naturally produces.
type Expr struct {
	groups [][]clause
}

// Variables returns the field names expr references, in first-seen order,
// mirroring BooleanParser.getVariables().
func (e *Expr) Variables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range e.groups {
		for _, c := range group {
			if !seen[c.field] {
				seen[c.field] = true
				out = append(out, c.field)
			}
		}
	}
	return out
}

// Evaluate reports whether record satisfies expr. record maps field names
// to the native values dtype.Type.DecodeElement produces (float64 for
// numeric fields, string for fixed/var-string fields). A field expr
// references but record lacks, or a literal/field type mismatch, is a
// query error rather than a silent false.
func (e *Expr) Evaluate(record map[string]interface{}) (bool, error) {
	for _, group := range e.groups {
		matched := true
		for _, c := range group {
			ok, err := c.evaluate(record)
			if err != nil {
				return false, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (c clause) evaluate(record map[string]interface{}) (bool, error) {
	v, ok := record[c.field]
	if !ok {
		return false, cmn.NewBadRequestError("query references unknown field %q", c.field)
	}
	switch lit := c.lit.(type) {
	case string:
		s, ok := v.(string)
		if !ok {
			return false, cmn.NewBadRequestError("field %q is not a string", c.field)
		}
		switch c.op {
		case OpEQ:
			return s == lit, nil
		case OpNE:
			return s != lit, nil
		default:
			return false, cmn.NewBadRequestError("operator %q does not apply to string field %q", c.op, c.field)
		}
	case float64:
		n, ok := v.(float64)
		if !ok {
			return false, cmn.NewBadRequestError("field %q is not numeric", c.field)
		}
		switch c.op {
		case OpEQ:
			return n == lit, nil
		case OpNE:
			return n != lit, nil
		case OpGT:
			return n > lit, nil
		case OpLT:
			return n < lit, nil
		case OpGE:
			return n >= lit, nil
		case OpLE:
			return n <= lit, nil
		}
	}
	return false, cmn.NewBadRequestError("unsupported literal in query expression")
}

// Parse compiles a query=<bool-expr> string into an Expr.
func Parse(expr string) (*Expr, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	groups, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Expr{groups: groups}, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
	op   Op
}

func lex(expr string) ([]token, error) {
	var toks []token
	i, n := 0, len(expr)
	for i < n {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '"' || ch == '\'':
			quote := ch
			j := i + 1
			for j < n && expr[j] != quote {
				j++
			}
			if j >= n {
				return nil, cmn.NewBadRequestError("unterminated string literal in query expression")
			}
			toks = append(toks, token{kind: tokString, text: expr[i+1 : j]})
			i = j + 1
		case ch == '=' && i+1 < n && expr[i+1] == '=':
			toks = append(toks, token{kind: tokOp, op: OpEQ})
			i += 2
		case ch == '!' && i+1 < n && expr[i+1] == '=':
			toks = append(toks, token{kind: tokOp, op: OpNE})
			i += 2
		case ch == '>' && i+1 < n && expr[i+1] == '=':
			toks = append(toks, token{kind: tokOp, op: OpGE})
			i += 2
		case ch == '<' && i+1 < n && expr[i+1] == '=':
			toks = append(toks, token{kind: tokOp, op: OpLE})
			i += 2
		case ch == '>':
			toks = append(toks, token{kind: tokOp, op: OpGT})
			i++
		case ch == '<':
			toks = append(toks, token{kind: tokOp, op: OpLT})
			i++
		case ch == '.' || (ch >= '0' && ch <= '9'):
			j := i + 1
			for j < n && (expr[j] == '.' || (expr[j] >= '0' && expr[j] <= '9')) {
				j++
			}
			f, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, cmn.NewBadRequestError("malformed numeric literal %q in query expression", expr[i:j])
			}
			toks = append(toks, token{kind: tokNumber, num: f})
			i = j
		case isIdentStart(ch):
			j := i + 1
			for j < n && isIdentPart(expr[j]) {
				j++
			}
			word := expr[i:j]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd})
			case "OR":
				toks = append(toks, token{kind: tokOr})
			default:
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		default:
			return nil, cmn.NewBadRequestError("unexpected character %q in query expression", string(ch))
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// parseExpr := AndGroup (OR AndGroup)*
func (p *parser) parseExpr() ([][]clause, error) {
	first, err := p.parseAndGroup()
	if err != nil {
		return nil, err
	}
	groups := [][]clause{first}
	for p.peek().kind == tokOr {
		p.next()
		group, err := p.parseAndGroup()
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if p.peek().kind != tokEOF {
		return nil, cmn.NewBadRequestError("unexpected trailing input in query expression")
	}
	return groups, nil
}

// parseAndGroup := Clause (AND Clause)*
func (p *parser) parseAndGroup() ([]clause, error) {
	first, err := p.parseClause()
	if err != nil {
		return nil, err
	}
	clauses := []clause{first}
	for p.peek().kind == tokAnd {
		p.next()
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

// parseClause := IDENT OP (STRING | NUMBER)
func (p *parser) parseClause() (clause, error) {
	fieldTok := p.next()
	if fieldTok.kind != tokIdent {
		return clause{}, cmn.NewBadRequestError("expected a field name in query expression")
	}
	opTok := p.next()
	if opTok.kind != tokOp {
		return clause{}, cmn.NewBadRequestError("expected a comparison operator after %q", fieldTok.text)
	}
	litTok := p.next()
	var lit interface{}
	switch litTok.kind {
	case tokString:
		lit = litTok.text
	case tokNumber:
		lit = litTok.num
	default:
		return clause{}, cmn.NewBadRequestError("expected a literal value after operator in query expression")
	}
	return clause{field: fieldTok.text, op: opTok.op, lit: lit}, nil
}
