package banmatch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var ErrInvalidExpression = errors.New("invalid weight expression")

// Evaluate computes an arithmetic expression made only of numeric literals,
// + - * /, unary minus and parentheses. Identifiers and function calls are
// rejected.
func Evaluate(expr string) (float64, error) {
	p := &exprParser{src: expr}
	p.skipSpace()
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q at %d in %q", ErrInvalidExpression, p.src[p.pos], p.pos, expr)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidExpression, expr)
	}
	return v, nil
}

type exprParser struct {
	src   string
	pos   int
	depth int
}

// maxDepth bounds nesting of parentheses and unary minus.
const maxDepth = 32

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		p.skipSpace()
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		p.skipSpace()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("%w: division by zero in %q", ErrInvalidExpression, p.src)
		}
		left /= right
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.peek() != '-' && p.peek() != '+' {
		return p.parsePrimary()
	}
	neg := p.peek() == '-'
	p.pos++
	if p.depth++; p.depth > maxDepth {
		return 0, fmt.Errorf("%w: nesting too deep in %q", ErrInvalidExpression, p.src)
	}
	v, err := p.parseUnary()
	p.depth--
	if err != nil {
		return 0, err
	}
	if neg {
		return -v, nil
	}
	return v, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		if p.depth++; p.depth > maxDepth {
			return 0, fmt.Errorf("%w: nesting too deep in %q", ErrInvalidExpression, p.src)
		}
		v, err := p.parseSum()
		p.depth--
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ')' in %q", ErrInvalidExpression, p.src)
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("%w: expected number at %d in %q", ErrInvalidExpression, start, p.src)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, p.src[start:p.pos])
	}
	return v, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
