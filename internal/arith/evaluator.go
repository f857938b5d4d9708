// Package arith evaluates the small arithmetic expressions vision models like
// to leave inside numeric invoice fields ("100.00 + 21.00").
//
// The grammar is closed: numbers, whitespace, '.', '+', '-', '*', '/', '(' and
// ')'. Nothing else is ever interpreted.
package arith

import (
	"math"
	"regexp"
	"strconv"
)

var (
	allowedChars = regexp.MustCompile(`^[0-9\s.+\-*/()]+$`)

	// dashed identifiers: CUIT numbers (20-12345678-9) and ISO dates.
	dashedID = regexp.MustCompile(`^\d+(-\d+)+$`)
	// slash dates: 15/01/2024, 1/2/24.
	slashDate = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`)
)

// IsIdentifier reports whether s looks like a tax id or a date rather than an
// expression. Such values must be kept as strings.
func IsIdentifier(s string) bool {
	return dashedID.MatchString(s) || slashDate.MatchString(s)
}

// Evaluate computes expr and rounds the result to two decimals. ok is false
// when expr contains anything outside the grammar, is identifier shaped, or
// does not evaluate to a finite number.
func Evaluate(expr string) (float64, bool) {
	if !allowedChars.MatchString(expr) || IsIdentifier(expr) {
		return 0, false
	}
	p := &parser{src: expr}
	v, ok := p.parseExpr()
	if !ok {
		return 0, false
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return math.Round(v*100) / 100, true
}

// parser is a recursive descent parser:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = ["+" | "-"] ( number | "(" expr ")" )
type parser struct {
	src   string
	pos   int
	depth int
}

const maxDepth = 64

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseExpr() (float64, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return 0, false
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, true
		}
		p.pos++
		right, ok := p.parseTerm()
		if !ok {
			return 0, false
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) parseTerm() (float64, bool) {
	left, ok := p.parseFactor()
	if !ok {
		return 0, false
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, true
		}
		p.pos++
		right, ok := p.parseFactor()
		if !ok {
			return 0, false
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, false
		}
		left /= right
	}
}

func (p *parser) parseFactor() (float64, bool) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return 0, false
	}

	switch p.peek() {
	case '-':
		p.pos++
		v, ok := p.parseFactor()
		return -v, ok
	case '+':
		p.pos++
		return p.parseFactor()
	case '(':
		p.pos++
		v, ok := p.parseExpr()
		if !ok || p.peek() != ')' {
			return 0, false
		}
		p.pos++
		return v, true
	}
	return p.parseNumber()
}

func (p *parser) parseNumber() (float64, bool) {
	p.skipSpace()
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == start || dots > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
