package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// Expression is a tokenized filter string, consumed by a recursive descent parser:
//
//	expr   := term { ("or" | "||") term }
//	term   := factor { ("and" | "&&") factor }
//	factor := ("not" | "!") factor | "(" expr ")" | primitive
type Expression struct {
	raw     string
	split   []string
	current int
	// last primitive read, its qualifiers are reused by a bare id
	last *primitive
}

// NewExpression tokenizes s. It returns nil for a blank expression.
func NewExpression(s string) *Expression {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &Expression{
		raw:   s,
		split: tokenize(s),
	}
}

func tokenize(s string) []string {
	var (
		out  []string
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '(' || r == ')' || r == '!':
			flush()
			out = append(out, string(r))
		case r == '&' || r == '|':
			flush()
			// fold "&&" and "||" into one token
			if n := len(out); n > 0 && out[n-1] == string(r) {
				out[n-1] += string(r)
				continue
			}
			out = append(out, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return out
}

// Compile parses the whole expression into a Filter.
func (e *Expression) Compile() (*Filter, error) {
	root, err := e.parseOr()
	if err != nil {
		return nil, err
	}
	if e.HasNext() {
		return nil, e.syntaxError()
	}
	return &Filter{raw: e.raw, root: root}, nil
}

// HasNext if there are any more tokens to consume
func (e *Expression) HasNext() bool {
	return len(e.split) > e.current
}

func (e *Expression) peek() string {
	if !e.HasNext() {
		return ""
	}
	return e.split[e.current]
}

func (e *Expression) syntaxError() error {
	if !e.HasNext() {
		return fmt.Errorf("syntax error in %q: unexpected end of expression", e.raw)
	}
	return fmt.Errorf("syntax error in %q near %q", e.raw, e.split[e.current])
}

func (e *Expression) parseOr() (expr, error) {
	left, err := e.parseAnd()
	if err != nil {
		return nil, err
	}
	for w := e.peek(); w == "or" || w == "||"; w = e.peek() {
		e.current++
		right, err := e.parseAnd()
		if err != nil {
			return nil, err
		}
		left = composite{and: false, left: left, right: right}
	}
	return left, nil
}

func (e *Expression) parseAnd() (expr, error) {
	left, err := e.parseFactor()
	if err != nil {
		return nil, err
	}
	for w := e.peek(); w == "and" || w == "&&"; w = e.peek() {
		e.current++
		right, err := e.parseFactor()
		if err != nil {
			return nil, err
		}
		left = composite{and: true, left: left, right: right}
	}
	return left, nil
}

func (e *Expression) parseFactor() (expr, error) {
	switch e.peek() {
	case "not", "!":
		e.current++
		inner, err := e.parseFactor()
		if err != nil {
			return nil, err
		}
		return negation{inner: inner}, nil
	case "(":
		e.current++
		inner, err := e.parseOr()
		if err != nil {
			return nil, err
		}
		if e.peek() != ")" {
			return nil, e.syntaxError()
		}
		e.current++
		return inner, nil
	case "", ")", "and", "or", "&&", "||":
		return nil, e.syntaxError()
	}
	return e.Next()
}

// Next reads the next primitive, i.e. the qualifiers and id up to the next
// joiner or closing parenthesis.
func (e *Expression) Next() (*primitive, error) {
	if !e.HasNext() {
		return nil, e.syntaxError()
	}
	startCount := e.current

	p := &primitive{
		direction: filterDirectionUnset,
		kind:      filterKindUnset,
		protocol:  filterProtocolUnset,
	}

words:
	for e.HasNext() {
		word := e.split[e.current]
		switch word {
		case "and", "or", "&&", "||", ")":
			break words
		case "(", "not", "!":
			return nil, e.syntaxError()
		case "src":
			// handle the "src or dst"/"src and dst" case
			if len(e.split) > e.current+2 && (e.split[e.current+1] == "or" || e.split[e.current+1] == "and") && e.split[e.current+2] == "dst" {
				word = strings.Join(e.split[e.current:e.current+3], " ")
				e.current += 2
			}
		}
		// nothing may follow the id
		if p.id != "" {
			return nil, e.syntaxError()
		}
		if kind, ok := kinds[word]; ok {
			if p.kind != filterKindUnset {
				return nil, e.syntaxError()
			}
			p.kind = kind
		} else if direction, ok := directions[word]; ok {
			p.direction = direction
		} else if protocol, ok := protocols[word]; ok && p.protocol == filterProtocolUnset && p.kind != filterKindProto {
			p.protocol = protocol
		} else if subprotocol, ok := subProtocols[word]; ok && p.kind != filterKindProto {
			p.subProtocol = subprotocol
		} else {
			// we will accept the id as "name" or "\name", because some get escaped
			p.id = strings.TrimLeft(word, "\\")
		}
		e.current++
	}
	if e.current == startCount {
		return nil, e.syntaxError()
	}

	setPrimitiveDefaults(p, e.last)
	e.last = p
	return p, nil
}

// setPrimitiveDefaults set defaults on expressions
func setPrimitiveDefaults(p, lastPrimitive *primitive) {
	if p.direction == filterDirectionUnset && p.protocol == filterProtocolUnset && p.kind == filterKindUnset && p.subProtocol == filterSubProtocolUnset {
		// we only copy over the previous ones if everything else is identical, per the manpage:
		/*
			To save typing, identical qualifier lists can be omitted. E.g., `tcp dst port ftp or ftp-data or domain' is exactly the same as `tcp dst port ftp or tcp dst port ftp-data or tcp dst port domain'
		*/
		if lastPrimitive != nil && lastPrimitive.kind != filterKindUnset {
			p.direction = lastPrimitive.direction
			p.kind = lastPrimitive.kind
			p.protocol = lastPrimitive.protocol
			p.subProtocol = lastPrimitive.subProtocol
		}
	}
	// a bare id is a host
	if p.kind == filterKindUnset && p.id != "" {
		p.kind = filterKindHost
	}
	if p.direction == filterDirectionUnset {
		p.direction = filterDirectionSrcOrDst
	}
}
