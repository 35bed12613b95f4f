package emulator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Static errors for err113 compliance.
var (
	ErrQuerySyntax       = errors.New("syntax error")
	ErrUnboundParameter  = errors.New("parameter is not bound")
	ErrUnsupportedClause = errors.New("unsupported clause")
)

// query is a parsed statement of the supported dialect:
//
//	SELECT * | SELECT path [AS name], ... FROM alias [WHERE expr]
//
// expr supports AND, OR, NOT, parentheses, the comparison operators
// = != <> < <= > >=, IN (...) lists, literals and @parameters.
type query struct {
	alias      string
	projection []projection
	where      expr
}

type projection struct {
	path []string
	name string
}

type expr interface {
	eval(doc map[string]interface{}) interface{}
}

type undefined struct{}

type literal struct{ value interface{} }

type property struct {
	path []string
}

type unary struct {
	op      string
	operand expr
}

type binary struct {
	op          string
	left, right expr
}

type inList struct {
	operand expr
	values  []expr
	negate  bool
}

func (l literal) eval(map[string]interface{}) interface{} { return l.value }

func (p property) eval(doc map[string]interface{}) interface{} {
	var current interface{} = doc

	for _, segment := range p.path {
		object, ok := current.(map[string]interface{})
		if !ok {
			return undefined{}
		}

		current, ok = object[segment]
		if !ok {
			return undefined{}
		}
	}

	return current
}

func (u unary) eval(doc map[string]interface{}) interface{} {
	value, ok := u.operand.eval(doc).(bool)
	if !ok {
		return undefined{}
	}

	return !value
}

func (b binary) eval(doc map[string]interface{}) interface{} {
	switch b.op {
	case "AND":
		left, _ := b.left.eval(doc).(bool)
		if !left {
			return false
		}

		right, _ := b.right.eval(doc).(bool)

		return right
	case "OR":
		left, _ := b.left.eval(doc).(bool)
		if left {
			return true
		}

		right, _ := b.right.eval(doc).(bool)

		return right
	}

	cmp, ok := compare(b.left.eval(doc), b.right.eval(doc))
	if !ok {
		return undefined{}
	}

	switch b.op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}

	return undefined{}
}

func (in inList) eval(doc map[string]interface{}) interface{} {
	value := in.operand.eval(doc)
	if _, missing := value.(undefined); missing {
		return undefined{}
	}

	for _, candidate := range in.values {
		cmp, ok := compare(value, candidate.eval(doc))
		if ok && cmp == 0 {
			return !in.negate
		}
	}

	return in.negate
}

// compare orders two scalar values of the same JSON type.
func compare(left, right interface{}) (int, bool) {
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, false
		}

		return strings.Compare(l, r), true
	case float64:
		r, ok := right.(float64)
		if !ok {
			return 0, false
		}

		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}

		return 0, true
	case bool:
		r, ok := right.(bool)
		if !ok {
			return 0, false
		}

		if l == r {
			return 0, true
		}

		if !l {
			return -1, true
		}

		return 1, true
	case nil:
		if right == nil {
			return 0, true
		}
	}

	return 0, false
}

// matches reports whether doc satisfies the WHERE clause.
func (q *query) matches(doc map[string]interface{}) bool {
	if q.where == nil {
		return true
	}

	result, _ := q.where.eval(doc).(bool)

	return result
}

// project applies the SELECT list.
func (q *query) project(doc map[string]interface{}) map[string]interface{} {
	if len(q.projection) == 0 {
		return doc
	}

	out := make(map[string]interface{}, len(q.projection))

	for _, p := range q.projection {
		value := property{path: p.path}.eval(doc)
		if _, missing := value.(undefined); missing {
			continue
		}

		out[p.name] = value
	}

	return out
}

type token struct {
	kind  tokenKind
	text  string
	value interface{}
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenKeyword
	tokenString
	tokenNumber
	tokenParam
	tokenSymbol
)

var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"IN": true, "AS": true, "TRUE": true, "FALSE": true, "NULL": true,
	"TOP": true, "ORDER": true, "BY": true, "VALUE": true, "JOIN": true, "GROUP": true,
}

func tokenize(text string) ([]token, error) {
	var tokens []token

	runes := []rune(text)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}

			if end >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrQuerySyntax, i)
			}

			tokens = append(tokens, token{kind: tokenString, text: string(runes[i : end+1]), value: string(runes[i+1 : end])})
			i = end + 1

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			end := i + 1
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.') {
				end++
			}

			number, err := strconv.ParseFloat(string(runes[i:end]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrQuerySyntax, string(runes[i:end]))
			}

			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[i:end]), value: number})
			i = end

		case r == '@' || unicode.IsLetter(r) || r == '_':
			end := i + 1
			for end < len(runes) && (unicode.IsLetter(runes[end]) || unicode.IsDigit(runes[end]) || runes[end] == '_') {
				end++
			}

			word := string(runes[i:end])

			switch {
			case r == '@':
				tokens = append(tokens, token{kind: tokenParam, text: word})
			case keywords[strings.ToUpper(word)]:
				tokens = append(tokens, token{kind: tokenKeyword, text: strings.ToUpper(word), value: word})
			default:
				tokens = append(tokens, token{kind: tokenIdent, text: word})
			}

			i = end

		default:
			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				if pair == "!=" || pair == "<>" || pair == "<=" || pair == ">=" {
					if pair == "<>" {
						pair = "!="
					}

					tokens = append(tokens, token{kind: tokenSymbol, text: pair})
					i += 2

					continue
				}
			}

			if !strings.ContainsRune("=<>(),.*[]", r) {
				return nil, fmt.Errorf("%w: unexpected character %q", ErrQuerySyntax, r)
			}

			tokens = append(tokens, token{kind: tokenSymbol, text: string(r)})
			i++
		}
	}

	return append(tokens, token{kind: tokenEOF}), nil
}

type parser struct {
	tokens     []token
	pos        int
	alias      string
	parameters map[string]interface{}
}

// parseQuery parses spec into an executable query.
func parseQuery(spec *docdb.QuerySpec) (*query, error) {
	tokens, err := tokenize(spec.Query)
	if err != nil {
		return nil, err
	}

	params := make(map[string]interface{}, len(spec.Parameters))
	for _, param := range spec.Parameters {
		params[param.Name] = normalizeValue(param.Value)
	}

	p := &parser{tokens: tokens, parameters: params}

	return p.parse()
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}

	return t
}

func (p *parser) accept(kind tokenKind, text string) bool {
	t := p.peek()
	if t.kind == kind && t.text == text {
		p.pos++

		return true
	}

	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if !p.accept(kind, text) {
		return fmt.Errorf("%w: expected %q near %q", ErrQuerySyntax, text, p.peek().text)
	}

	return nil
}

func (p *parser) parse() (*query, error) {
	err := p.expect(tokenKeyword, "SELECT")
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind == tokenKeyword && (t.text == "TOP" || t.text == "VALUE") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClause, t.text)
	}

	q := &query{}

	var rawProjection [][]string

	var names []string

	if !p.accept(tokenSymbol, "*") {
		for {
			path, err := p.rawPath()
			if err != nil {
				return nil, err
			}

			name := path[len(path)-1]
			if p.accept(tokenKeyword, "AS") {
				alias := p.next()
				if alias.kind != tokenIdent {
					return nil, fmt.Errorf("%w: expected name after AS", ErrQuerySyntax)
				}

				name = alias.text
			}

			rawProjection = append(rawProjection, path)
			names = append(names, name)

			if !p.accept(tokenSymbol, ",") {
				break
			}
		}
	}

	err = p.expect(tokenKeyword, "FROM")
	if err != nil {
		return nil, err
	}

	from := p.next()
	if from.kind != tokenIdent {
		return nil, fmt.Errorf("%w: expected collection alias near %q", ErrQuerySyntax, from.text)
	}

	q.alias = from.text
	p.alias = from.text

	if p.accept(tokenKeyword, "AS") {
		alias := p.next()
		if alias.kind != tokenIdent {
			return nil, fmt.Errorf("%w: expected alias after AS", ErrQuerySyntax)
		}

		q.alias = alias.text
		p.alias = alias.text
	} else if t := p.peek(); t.kind == tokenIdent {
		q.alias = t.text
		p.alias = t.text
		p.pos++
	}

	for i, path := range rawProjection {
		resolved, err := p.resolve(path)
		if err != nil {
			return nil, err
		}

		q.projection = append(q.projection, projection{path: resolved, name: names[i]})
	}

	if p.accept(tokenKeyword, "WHERE") {
		q.where, err = p.parseOr()
		if err != nil {
			return nil, err
		}
	}

	if t := p.peek(); t.kind != tokenEOF {
		if t.kind == tokenKeyword {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedClause, t.text)
		}

		return nil, fmt.Errorf("%w: unexpected %q", ErrQuerySyntax, t.text)
	}

	return q, nil
}

// rawPath reads alias.a.b or alias["a"]["b"].
func (p *parser) rawPath() ([]string, error) {
	head := p.next()
	if head.kind != tokenIdent {
		return nil, fmt.Errorf("%w: expected property path near %q", ErrQuerySyntax, head.text)
	}

	path := []string{head.text}

	for {
		switch {
		case p.accept(tokenSymbol, "."):
			segment := p.next()

			switch segment.kind {
			case tokenIdent:
				path = append(path, segment.text)
			case tokenKeyword:
				path = append(path, segment.value.(string))
			default:
				return nil, fmt.Errorf("%w: expected property name after '.'", ErrQuerySyntax)
			}
		case p.accept(tokenSymbol, "["):
			segment := p.next()
			if segment.kind != tokenString {
				return nil, fmt.Errorf("%w: expected quoted property name", ErrQuerySyntax)
			}

			path = append(path, segment.value.(string))

			err := p.expect(tokenSymbol, "]")
			if err != nil {
				return nil, err
			}
		default:
			return path, nil
		}
	}
}

// resolve strips the collection alias from a path.
func (p *parser) resolve(path []string) ([]string, error) {
	if path[0] != p.alias {
		return nil, fmt.Errorf("%w: identifier %q could not be resolved", ErrQuerySyntax, path[0])
	}

	if len(path) == 1 {
		return nil, fmt.Errorf("%w: whole-document projection %q", ErrUnsupportedClause, path[0])
	}

	return path[1:], nil
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.accept(tokenKeyword, "OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = binary{op: "OR", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.accept(tokenKeyword, "AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = binary{op: "AND", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.accept(tokenKeyword, "NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return unary{op: "NOT", operand: operand}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	negate := false
	if t := p.peek(); t.kind == tokenKeyword && t.text == "NOT" && p.tokens[p.pos+1].text == "IN" {
		p.pos++
		negate = true
	}

	if p.accept(tokenKeyword, "IN") {
		return p.parseInList(left, negate)
	}

	t := p.peek()
	if t.kind == tokenSymbol {
		switch t.text {
		case "=", "!=", "<", "<=", ">", ">=":
			p.pos++

			right, err := p.parseOperand()
			if err != nil {
				return nil, err
			}

			return binary{op: t.text, left: left, right: right}, nil
		}
	}

	return left, nil
}

func (p *parser) parseInList(operand expr, negate bool) (expr, error) {
	err := p.expect(tokenSymbol, "(")
	if err != nil {
		return nil, err
	}

	list := inList{operand: operand, negate: negate}

	for {
		value, err := p.parseOperand()
		if err != nil {
			return nil, err
		}

		list.values = append(list.values, value)

		if p.accept(tokenSymbol, ")") {
			return list, nil
		}

		err = p.expect(tokenSymbol, ",")
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseOperand() (expr, error) {
	t := p.peek()

	switch t.kind {
	case tokenString, tokenNumber:
		p.pos++

		return literal{value: t.value}, nil
	case tokenParam:
		p.pos++

		value, ok := p.parameters[t.text]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParameter, t.text)
		}

		return literal{value: value}, nil
	case tokenKeyword:
		switch t.text {
		case "TRUE":
			p.pos++

			return literal{value: true}, nil
		case "FALSE":
			p.pos++

			return literal{value: false}, nil
		case "NULL":
			p.pos++

			return literal{value: nil}, nil
		}
	case tokenSymbol:
		if t.text == "(" {
			p.pos++

			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}

			return inner, p.expect(tokenSymbol, ")")
		}
	case tokenIdent:
		path, err := p.rawPath()
		if err != nil {
			return nil, err
		}

		resolved, err := p.resolve(path)
		if err != nil {
			return nil, err
		}

		return property{path: resolved}, nil
	}

	return nil, fmt.Errorf("%w: unexpected %q", ErrQuerySyntax, t.text)
}

// normalizeValue converts parameter values to the types decoded JSON uses.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}
