package mars

import (
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Parse tokenizes and parses MARS request text into a sequence of
// unexpanded Requests (spec.md §4.8, C8): values are raw strings and every
// parameter carries the Any Type placeholder. Parse errors carry line and
// column and are wrapped with pkg/errors so a caller inspecting the chain
// still finds the underlying *ParseError via errors.As.
func Parse(text string) ([]*Request, error) {
	p := &parser{src: text}
	var requests []*Request
	for {
		p.skipTrivia()
		if p.atEnd() {
			break
		}
		req, err := p.parseRequest()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "mars: parsing request text")
		}
		requests = append(requests, req)
		p.skipTrivia()
		if p.peek() == ';' {
			p.advance()
		}
	}
	return requests, nil
}

type parser struct {
	src        string
	pos        int
	line, col  int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) advance() byte {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
		p.col = 0
	} else {
		p.col++
	}
	return c
}

func (p *parser) err(msg string) error {
	return &ParseError{Line: p.line + 1, Column: p.col + 1, Msg: msg}
}

// skipTrivia consumes whitespace and "#...\n" line comments.
func (p *parser) skipTrivia() {
	for !p.atEnd() {
		c := p.peek()
		switch {
		case c == '#':
			for !p.atEnd() && p.peek() != '\n' {
				p.advance()
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.advance()
		default:
			return
		}
	}
}

func (p *parser) skipInlineSpace() {
	for !p.atEnd() && (p.peek() == ' ' || p.peek() == '\t') {
		p.advance()
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) parseIdent() (string, error) {
	start := p.pos
	for !p.atEnd() && isIdentChar(p.peek()) {
		p.advance()
	}
	if p.pos == start {
		return "", p.err("expected identifier")
	}
	return p.src[start:p.pos], nil
}

// parseValue reads either a bare token (stopping at a delimiter) or a
// double-quoted string with \" and \\ escapes.
func (p *parser) parseValue() (string, error) {
	if p.peek() == '"' {
		p.advance()
		var b strings.Builder
		for {
			if p.atEnd() {
				return "", p.err("unterminated quoted value")
			}
			c := p.advance()
			if c == '"' {
				return b.String(), nil
			}
			if c == '\\' {
				if p.atEnd() {
					return "", p.err("unterminated escape in quoted value")
				}
				b.WriteByte(p.advance())
				continue
			}
			b.WriteByte(c)
		}
	}
	start := p.pos
	for !p.atEnd() {
		c := p.peek()
		if c == '/' || c == ',' || c == '=' || c == ';' || c == '\n' || c == '#' {
			break
		}
		p.advance()
	}
	if p.pos == start {
		return "", p.err("expected a value")
	}
	return strings.TrimRight(p.src[start:p.pos], " \t"), nil
}

func (p *parser) parseRequest() (*Request, error) {
	p.skipInlineSpace()
	verb, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	req := NewRequest(verb)

	for {
		p.skipTrivia()
		if p.atEnd() || p.peek() != ',' {
			break
		}
		p.advance() // consume ','
		p.skipTrivia()

		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		p.skipInlineSpace()
		if p.peek() != '=' {
			return nil, p.err("expected '=' after key " + key)
		}
		p.advance()
		p.skipInlineSpace()

		var values []string
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			p.skipInlineSpace()
			if p.peek() != '/' {
				break
			}
			p.advance()
			p.skipInlineSpace()
		}
		req.SetTyped(strings.ToLower(key), NewAnyType(strings.ToLower(key), ""), values)
	}
	return req, nil
}
