// Package alerting evaluates operator-defined rules against live metrics and
// dispatches automated remediation for rules that opt in.
package alerting

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule conditions are data, never code: they are parsed into a small
// expression tree supporting only numbers, metric identifiers, arithmetic,
// comparisons and boolean connectives. Anything else is rejected at rule
// registration.

type exprNode interface {
	eval(vars map[string]float64) (exprValue, error)
}

// exprValue is either a number or a boolean; mixing them where the grammar
// does not allow it is an evaluation error.
type exprValue struct {
	num    float64
	b      bool
	isBool bool
}

func numValue(f float64) exprValue { return exprValue{num: f} }
func boolValue(b bool) exprValue   { return exprValue{b: b, isBool: true} }

type numberNode struct{ value float64 }

func (n numberNode) eval(map[string]float64) (exprValue, error) {
	return numValue(n.value), nil
}

type identNode struct{ name string }

func (n identNode) eval(vars map[string]float64) (exprValue, error) {
	v, ok := vars[n.name]
	if !ok {
		return exprValue{}, fmt.Errorf("unknown metric %q", n.name)
	}
	return numValue(v), nil
}

type binaryNode struct {
	op          string
	left, right exprNode
}

func (n binaryNode) eval(vars map[string]float64) (exprValue, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return exprValue{}, err
	}

	// Short-circuit boolean connectives.
	if n.op == "&&" || n.op == "||" {
		if !left.isBool {
			return exprValue{}, fmt.Errorf("operator %s needs boolean operands", n.op)
		}
		if n.op == "&&" && !left.b {
			return boolValue(false), nil
		}
		if n.op == "||" && left.b {
			return boolValue(true), nil
		}
		right, err := n.right.eval(vars)
		if err != nil {
			return exprValue{}, err
		}
		if !right.isBool {
			return exprValue{}, fmt.Errorf("operator %s needs boolean operands", n.op)
		}
		return boolValue(right.b), nil
	}

	right, err := n.right.eval(vars)
	if err != nil {
		return exprValue{}, err
	}
	if left.isBool || right.isBool {
		return exprValue{}, fmt.Errorf("operator %s needs numeric operands", n.op)
	}

	switch n.op {
	case "+":
		return numValue(left.num + right.num), nil
	case "-":
		return numValue(left.num - right.num), nil
	case "*":
		return numValue(left.num * right.num), nil
	case "/":
		if right.num == 0 {
			return exprValue{}, fmt.Errorf("division by zero")
		}
		return numValue(left.num / right.num), nil
	case ">":
		return boolValue(left.num > right.num), nil
	case ">=":
		return boolValue(left.num >= right.num), nil
	case "<":
		return boolValue(left.num < right.num), nil
	case "<=":
		return boolValue(left.num <= right.num), nil
	case "==":
		return boolValue(left.num == right.num), nil
	case "!=":
		return boolValue(left.num != right.num), nil
	default:
		return exprValue{}, fmt.Errorf("unsupported operator %q", n.op)
	}
}

type notNode struct{ inner exprNode }

func (n notNode) eval(vars map[string]float64) (exprValue, error) {
	v, err := n.inner.eval(vars)
	if err != nil {
		return exprValue{}, err
	}
	if !v.isBool {
		return exprValue{}, fmt.Errorf("operator ! needs a boolean operand")
	}
	return boolValue(!v.b), nil
}

// Condition is a compiled rule condition.
type Condition struct {
	source string
	root   exprNode
	idents []string
}

// Source returns the original condition text.
func (c *Condition) Source() string { return c.source }

// Metrics lists the metric names the condition references.
func (c *Condition) Metrics() []string { return c.idents }

// Evaluate runs the condition against the metric map. The result must be
// boolean; a numeric top-level expression is a registration-time error but is
// also rejected here for safety.
func (c *Condition) Evaluate(vars map[string]float64) (bool, error) {
	v, err := c.root.eval(vars)
	if err != nil {
		return false, err
	}
	if !v.isBool {
		return false, fmt.Errorf("condition does not evaluate to a boolean")
	}
	return v.b, nil
}

// ParseCondition compiles a condition string, rejecting anything outside the
// restricted grammar.
func ParseCondition(input string) (*Condition, error) {
	p := &parser{tokens: lex(input)}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", input, err)
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("invalid condition %q: unexpected %q", input, p.tokens[p.pos])
	}

	idents := map[string]struct{}{}
	collectIdents(root, idents)
	names := make([]string, 0, len(idents))
	for name := range idents {
		names = append(names, name)
	}

	return &Condition{source: input, root: root, idents: names}, nil
}

func collectIdents(node exprNode, out map[string]struct{}) {
	switch n := node.(type) {
	case identNode:
		out[n.name] = struct{}{}
	case binaryNode:
		collectIdents(n.left, out)
		collectIdents(n.right, out)
	case notNode:
		collectIdents(n.inner, out)
	}
}

// lex splits the input into tokens: numbers, dotted identifiers, operators
// and parentheses. Unknown characters become single-char tokens the parser
// rejects.
func lex(input string) []string {
	var tokens []string
	i := 0
	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case isIdentStart(ch):
			j := i
			for j < len(input) && isIdentPart(input[j]) {
				j++
			}
			tokens = append(tokens, input[i:j])
			i = j
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			tokens = append(tokens, input[i:j])
			i = j
		case strings.ContainsRune("><=!&|", rune(ch)):
			if i+1 < len(input) {
				two := input[i : i+2]
				if two == ">=" || two == "<=" || two == "==" || two == "!=" || two == "&&" || two == "||" {
					tokens = append(tokens, two)
					i += 2
					continue
				}
			}
			tokens = append(tokens, string(ch))
			i++
		default:
			tokens = append(tokens, string(ch))
			i++
		}
	}
	return tokens
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9' || ch == '.'
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (exprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (exprNode, error) {
	if p.peek() == "!" {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (exprNode, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	switch op := p.peek(); op {
	case ">", ">=", "<", "<=", "==", "!=":
		p.next()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseSum() (exprNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (exprNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (exprNode, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of condition")
	case tok == "(":
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	case tok[0] >= '0' && tok[0] <= '9':
		p.next()
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", tok)
		}
		return numberNode{value: f}, nil
	case isIdentStart(tok[0]):
		p.next()
		return identNode{name: tok}, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", tok)
	}
}
