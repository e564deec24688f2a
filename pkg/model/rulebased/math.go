package rulebased

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalArithmetic answers prompts that are, or clearly contain, a simple
// arithmetic expression ("what is 12 * (3 + 4)?"). It is a tiny
// recursive-descent evaluator over + - * / and parentheses; anything it
// cannot parse is simply not an arithmetic prompt.
func evalArithmetic(prompt string) (string, bool) {
	expr := extractExpression(prompt)
	if expr == "" {
		return "", false
	}
	p := &exprParser{input: expr}
	val, err := p.parseExpr()
	if err != nil || !p.atEnd() {
		return "", false
	}
	return fmt.Sprintf("%s = %s", expr, formatNumber(val)), true
}

// extractExpression pulls the longest run of digits, operators, and
// parentheses out of the prompt. It requires at least one operator between
// two numbers so plain numbers ("call me at 5") don't trigger it.
func extractExpression(prompt string) string {
	isExprRune := func(r rune) bool {
		return unicode.IsDigit(r) || strings.ContainsRune("+-*/(). ", r)
	}
	var best string
	var current strings.Builder
	flush := func() {
		candidate := strings.TrimSpace(current.String())
		current.Reset()
		if looksLikeExpression(candidate) && len(candidate) > len(best) {
			best = candidate
		}
	}
	for _, r := range prompt {
		if isExprRune(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return best
}

func looksLikeExpression(s string) bool {
	hasDigit := false
	hasOp := false
	digitsSeen := 0
	inNumber := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
			if !inNumber {
				digitsSeen++
				inNumber = true
			}
		case strings.ContainsRune("+-*/", r):
			hasOp = true
			inNumber = false
		default:
			inNumber = false
		}
	}
	return hasDigit && hasOp && digitsSeen >= 2
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) atEnd() bool {
	p.skipSpace()
	return p.pos >= len(p.input)
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing paren")
		}
		p.pos++
		return val, nil
	case c == '-':
		p.pos++
		val, err := p.parseFactor()
		return -val, err
	default:
		return p.parseNumber()
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && (isDigitByte(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
