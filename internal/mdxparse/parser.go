package mdxparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/internal/mdxlex"
)

// memberSuffixNames maps the identifier text of a navigation suffix (the
// part after a dot) to its MemberSuffixKind. Matching is case-insensitive.
var memberSuffixNames = map[string]MemberSuffixKind{
	"MEMBERS":    SuffixMembers,
	"CHILDREN":   SuffixChildren,
	"PARENT":     SuffixParent,
	"FIRSTCHILD": SuffixFirstChild,
	"LASTCHILD":  SuffixLastChild,
	"LEAD":       SuffixLead,
	"LAG":        SuffixLag,
}

// setOpFuncNames are identifiers that denote set-producing functions whose
// arguments are themselves sets, as opposed to scalar value expressions.
var setOpFuncNames = map[string]bool{
	"CROSSJOIN": true, "UNION": true, "EXCEPT": true, "INTERSECT": true,
	"ORDER": true, "TOPCOUNT": true, "BOTTOMCOUNT": true, "FILTER": true,
	"DESCENDANTS": true, "HIERARCHIZE": true,
}

// Parser is a hand-rolled recursive-descent parser over an MDX token
// stream. It never throws through its API: malformed input produces
// diagnostics and a best-effort (possibly partial) tree (§4.1).
type Parser struct {
	source string
	toks   []lexer.Token
	pos    int
	bag    *diagnostics.Bag
	hints  []mdxlex.Hint
}

// Result is everything Parse produces.
type Result struct {
	Query *Query
	Bag   *diagnostics.Bag
	Hints []mdxlex.Hint
}

// Parse tokenizes and parses source, returning a (possibly partial) parse
// tree together with accumulated diagnostics. It never panics on malformed
// input.
func Parse(source string) *Result {
	p := &Parser{source: source, bag: diagnostics.NewBag()}
	p.lexAll()

	q := p.parseQuery()

	return &Result{Query: q, Bag: p.bag, Hints: p.hints}
}

func (p *Parser) lexAll() {
	st := mdxlex.NewState("query.mdx", p.source)
	lastPos := lexer.Position{Filename: "query.mdx", Line: 1, Column: 1}
	for {
		tok, err := st.Next()
		if err != nil {
			p.bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Error,
				Kind:     diagnostics.KindParseError,
				Code:     "lex_error",
				Message:  err.Error(),
				Span:     diagnostics.Span{Start: lastPos, End: lastPos},
			})
			break
		}
		lastPos = tok.Pos
		p.toks = append(p.toks, tok)
		if tok.Type == mdxlex.EOF {
			break
		}
	}
	p.hints = st.Hints
}

// ---- token cursor helpers ----

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Type: mdxlex.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekN(n int) lexer.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return lexer.Token{Type: mdxlex.EOF}
	}
	return p.toks[i]
}

func (p *Parser) advance() lexer.Token {
	tok := p.cur()
	if p.pos < len(p.toks)-1 || tok.Type != mdxlex.EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atEOF() bool { return p.cur().Type == mdxlex.EOF }

func (p *Parser) isKeyword(word string) bool {
	t := p.cur()
	return t.Type == mdxlex.Keyword && t.Value == strings.ToUpper(word)
}

func (p *Parser) isPunct(s string) bool {
	t := p.cur()
	return t.Type == mdxlex.Punct && t.Value == s
}

func (p *Parser) isArith(s string) bool {
	t := p.cur()
	return t.Type == mdxlex.ArithOp && t.Value == s
}

func (p *Parser) isCompare() bool { return p.cur().Type == mdxlex.CompareOp }

func (p *Parser) isIdentLike() bool {
	t := p.cur()
	return t.Type == mdxlex.Ident || t.Type == mdxlex.BracketIdent || t.Type == mdxlex.Keyword
}

// identText returns the text of an Ident/BracketIdent/Keyword token with
// surrounding brackets stripped, if any.
func identText(tok lexer.Token) string {
	if tok.Type == mdxlex.BracketIdent {
		return strings.TrimSuffix(strings.TrimPrefix(tok.Value, "["), "]")
	}
	return tok.Value
}

func (p *Parser) errorf(kind diagnostics.Kind, span lexer.Position, suggestion, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	p.bag.Add(diagnostics.Diagnostic{
		Severity:   diagnostics.Error,
		Kind:       kind,
		Message:    msg,
		Span:       diagnostics.Span{Start: span, End: span},
		Snippet:    diagnostics.Snippet(p.source, span.Offset, 40),
		Suggestion: suggestion,
	})
}

// recoverTo skips tokens until one of the given keywords/punctuation is
// found (or EOF). The stop token itself is not consumed, so when the
// cursor is already on one nothing is skipped; the callers' loops advance
// only past tokens they consume, so the parser still terminates on
// malformed input.
func (p *Parser) recoverTo(stopWords []string, stopPunct []string) {
	start := p.pos
	for !p.atEOF() {
		for _, w := range stopWords {
			if p.isKeyword(w) {
				return
			}
		}
		for _, s := range stopPunct {
			if p.isPunct(s) {
				return
			}
		}
		p.advance()
	}
	if p.pos == start && !p.atEOF() {
		p.advance()
	}
}

// ---- grammar ----

func (p *Parser) parseQuery() *Query {
	q := &Query{Span: p.cur().Pos}

	if p.isKeyword("WITH") {
		p.advance()
		for p.isKeyword("MEMBER") || p.isKeyword("SET") {
			item, ok := p.parseWithItem()
			if ok {
				q.With = append(q.With, item)
			}
		}
	}

	if !p.isKeyword("SELECT") {
		p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestUnexpectedToken,
			"expected SELECT, found %q", p.cur().Value)
		p.recoverTo([]string{"SELECT"}, nil)
		if p.isKeyword("SELECT") {
			q.Select = p.parseSelectStmt()
		}
		return q
	}

	q.Select = p.parseSelectStmt()
	return q
}

func (p *Parser) parseWithItem() (WithItem, bool) {
	switch {
	case p.isKeyword("MEMBER"):
		p.advance()
		start := p.cur().Pos
		path := p.parseMemberExpr()
		if !p.isKeyword("AS") {
			p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestMissingAs, "expected AS in MEMBER definition")
			p.recoverTo([]string{"MEMBER", "SET", "SELECT"}, nil)
			return WithItem{}, false
		}
		p.advance()
		val := p.parseExpr()
		return WithItem{Member: &MemberDef{Path: path, Value: val, Span: start}}, true
	case p.isKeyword("SET"):
		p.advance()
		alias := identText(p.advance())
		if !p.isKeyword("AS") {
			p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestMissingAs, "expected AS in SET definition")
			p.recoverTo([]string{"MEMBER", "SET", "SELECT"}, nil)
			return WithItem{}, false
		}
		p.advance()
		set := p.parseSetExpr()
		return WithItem{Set: &SetDef{Alias: alias, Value: set}}, true
	}
	return WithItem{}, false
}

func (p *Parser) parseSelectStmt() SelectStmt {
	stmt := SelectStmt{Span: p.cur().Pos}
	p.advance() // SELECT

	for {
		axis := p.parseAxisSpec()
		stmt.Axes = append(stmt.Axes, axis)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}

	if !p.isKeyword("FROM") {
		p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestMissingFrom, "expected FROM clause")
		p.recoverTo([]string{"FROM", "WHERE"}, nil)
	}
	if p.isKeyword("FROM") {
		p.advance()
		stmt.Cube = p.parseCubeSpec()
	}

	if p.isKeyword("WHERE") {
		wc := p.parseWhereClause()
		stmt.Where = &wc
	}

	p.checkDuplicateAxes(stmt.Axes)
	return stmt
}

func (p *Parser) checkDuplicateAxes(axes []AxisSpec) {
	seen := make(map[string]bool)
	for _, a := range axes {
		key := a.Axis.Name
		if a.Axis.HasNum {
			key = strconv.Itoa(a.Axis.Number)
		}
		if seen[key] {
			p.errorf(diagnostics.KindParseError, a.Span, SuggestDuplicateAxis, "duplicate axis %q", key)
			continue
		}
		seen[key] = true
	}
}

func (p *Parser) parseAxisSpec() AxisSpec {
	spec := AxisSpec{Span: p.cur().Pos}
	if p.isKeyword("NON") {
		p.advance()
		if p.isKeyword("EMPTY") {
			p.advance()
		}
		spec.NonEmpty = true
	}
	spec.Set = p.parseSetExpr()
	if !p.isKeyword("ON") {
		p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestMissingOn, "expected ON after axis set expression")
		p.recoverTo([]string{"ON", "FROM"}, []string{","})
	}
	if p.isKeyword("ON") {
		p.advance()
		spec.Axis = p.parseAxisID()
	}
	return spec
}

func (p *Parser) parseAxisID() AxisID {
	t := p.cur()
	switch {
	case t.Type == mdxlex.Number:
		n, _ := strconv.Atoi(t.Value)
		p.advance()
		return AxisID{Number: n, HasNum: true}
	case p.isKeyword("AXIS"):
		p.advance()
		if p.isPunct("(") {
			p.advance()
			n := 0
			if p.cur().Type == mdxlex.Number {
				n, _ = strconv.Atoi(p.cur().Value)
				p.advance()
			}
			if p.isPunct(")") {
				p.advance()
			}
			return AxisID{Number: n, HasNum: true}
		}
		return AxisID{Name: "AXIS"}
	case p.isIdentLike():
		name := strings.ToUpper(identText(t))
		p.advance()
		return AxisID{Name: name}
	default:
		p.errorf(diagnostics.KindParseError, t.Pos, SuggestUnexpectedToken, "expected an axis identifier, found %q", t.Value)
		return AxisID{}
	}
}

func (p *Parser) parseCubeSpec() CubeSpec {
	spec := CubeSpec{Span: p.cur().Pos}
	if p.isPunct("(") {
		p.advance()
		if p.isKeyword("SELECT") {
			sub := p.parseSelectStmt()
			spec.Sub = &sub
		}
		if p.isPunct(")") {
			p.advance()
		}
		return spec
	}

	var parts []string
	for p.isIdentLike() {
		parts = append(parts, identText(p.advance()))
		if p.isPunct(".") {
			p.advance()
			continue
		}
		break
	}
	spec.Name = strings.Join(parts, ".")
	return spec
}

func (p *Parser) parseWhereClause() WhereClause {
	wc := WhereClause{Span: p.cur().Pos}
	p.advance() // WHERE

	if p.isPunct("(") && p.peekN(1).Type == mdxlex.Punct && p.peekN(1).Value == ")" {
		p.advance()
		p.advance()
		wc.Empty = true
		return wc
	}

	if p.isPunct("(") {
		// Could be a tuple, or a parenthesized logical expression.
		// Disambiguate by scanning ahead for a comparison/BETWEEN/IN/IS
		// keyword before the matching close-paren; tuples contain only
		// member paths and commas.
		if p.looksLikeTuple() {
			tuple := p.parseTupleExpr()
			if p.isKeyword("AND") || p.isKeyword("OR") || p.isKeyword("XOR") {
				// Mixed tuple + logical WHERE (supplement: the tuple's own
				// slice filters are read from wc.Tuple by the lowerer, and
				// the trailing connective/operand chain from wc.Logical).
				tail := p.parseLogicalTail()
				wc.Logical = &tail
			}
			wc.Tuple = &tuple
			return wc
		}
	}

	if p.isIdentLike() && !p.startsLogicalExpr() {
		member := p.parseMemberExpr()
		wc.Member = &member
		return wc
	}

	logical := p.parseBoolExpr()
	wc.Logical = &logical
	return wc
}

// parseLogicalTail consumes a leading AND/OR/XOR connective and the logical
// expression that follows it, used when a WHERE clause opens with a tuple
// but continues with further logical operands.
func (p *Parser) parseLogicalTail() BoolExpr {
	op := strings.ToUpper(p.cur().Value)
	p.advance()
	rhs := p.parseBoolExpr()
	kind := BoolAnd
	if op == "OR" {
		kind = BoolOr
	} else if op == "XOR" {
		kind = BoolXor
	}
	return BoolExpr{Kind: kind, Operands: []*BoolExpr{&rhs}, Span: rhs.Span}
}

// looksLikeTuple scans from the current "(" to its matching ")" and reports
// true if no top-level comparison/BETWEEN/IN/IS keyword appears, which
// would indicate a parenthesized logical expression instead.
func (p *Parser) looksLikeTuple() bool {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Type == mdxlex.Punct && t.Value == "(" {
			depth++
			continue
		}
		if t.Type == mdxlex.Punct && t.Value == ")" {
			depth--
			if depth == 0 {
				return true
			}
			continue
		}
		if depth == 1 {
			if t.Type == mdxlex.CompareOp {
				return false
			}
			if t.Type == mdxlex.Keyword && (t.Value == "BETWEEN" || t.Value == "IN" || t.Value == "IS") {
				return false
			}
		}
	}
	return true
}

func (p *Parser) startsLogicalExpr() bool {
	// A bare member_expr WHERE target is distinguished from a logical
	// expression by lookahead: if a comparison/BETWEEN/IN/IS keyword
	// follows the member path, it's logical.
	save := p.pos
	defer func() { p.pos = save }()
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		if t.Type == mdxlex.Punct && t.Value == "(" {
			depth++
		}
		if t.Type == mdxlex.Punct && t.Value == ")" {
			if depth == 0 {
				break
			}
			depth--
		}
		if depth == 0 && t.Type == mdxlex.CompareOp {
			return true
		}
		if depth == 0 && t.Type == mdxlex.Keyword && (t.Value == "BETWEEN" || t.Value == "IN" || t.Value == "IS" || t.Value == "AND" || t.Value == "OR" || t.Value == "NOT" || t.Value == "XOR") {
			return true
		}
		if depth == 0 && t.Type == mdxlex.Keyword && t.Value == "SELECT" {
			break
		}
		p.advance()
	}
	return false
}

// ---- sets ----

func (p *Parser) parseSetExpr() SetExpr {
	left := p.parseSetPrimary()
	for p.isArith("*") {
		p.advance()
		right := p.parseSetPrimary()
		lhs, rhs := left, right
		left = SetExpr{Kind: SetBinOp, Op: "CROSSJOIN", Left: &lhs, Right: &rhs, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseSetPrimary() SetExpr {
	start := p.cur().Pos
	switch {
	case p.isPunct("{"):
		p.advance()
		var elements []SetElement
		for !p.isPunct("}") && !p.atEOF() {
			elements = append(elements, p.parseSetElement())
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if p.isPunct("}") {
			p.advance()
		} else {
			p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestUnbalancedBracket, "expected '}' to close set literal")
		}
		return SetExpr{Kind: SetBraces, Elements: elements, Span: start}
	case p.isPunct("("):
		p.advance()
		inner := p.parseSetExpr()
		if p.isPunct(")") {
			p.advance()
		}
		return SetExpr{Kind: SetParen, Inner: &inner, Span: start}
	case p.isIdentLike() && p.peekN(1).Type == mdxlex.Punct && p.peekN(1).Value == "(" && setOpFuncNames[strings.ToUpper(identText(p.cur()))]:
		fc := p.parseFuncCallArbitrary()
		return SetExpr{Kind: SetFuncCall, FuncCall: fc, Span: start}
	default:
		m := p.parseMemberExpr()
		return SetExpr{Kind: SetMember, Member: &m, Span: start}
	}
}

func (p *Parser) parseSetElement() SetElement {
	if p.isPunct("{") {
		s := p.parseSetPrimary()
		return SetElement{Set: &s}
	}
	if p.isPunct("(") {
		tuple := p.parseTupleExpr()
		return SetElement{Tuple: &tuple}
	}
	member := p.parseMemberExpr()
	if p.isPunct(":") {
		p.advance()
		to := p.parseMemberExpr()
		return SetElement{Range: &MemberRangeExpr{From: member, To: to}}
	}
	return SetElement{Member: &member}
}

func (p *Parser) parseTupleExpr() TupleExpr {
	start := p.cur().Pos
	p.advance() // "("
	var members []MemberExpr
	for !p.isPunct(")") && !p.atEOF() {
		members = append(members, p.parseMemberExpr())
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if p.isPunct(")") {
		p.advance()
	} else {
		p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestUnbalancedBracket, "expected ')' to close tuple")
	}
	return TupleExpr{Members: members, Span: start}
}

// parseFuncCallArbitrary parses `NAME "(" args ")"` generically, where each
// argument may itself be a set (for CROSSJOIN/UNION/...), a member
// (DESCENDANTS' ancestor and level arguments), or a scalar expression.
func (p *Parser) parseFuncCallArbitrary() *FuncCallExpr {
	start := p.cur().Pos
	name := identText(p.advance())
	fc := &FuncCallExpr{Name: name, Span: start}
	p.advance() // "("
	for !p.isPunct(")") && !p.atEOF() {
		fc.Args = append(fc.Args, p.parseFuncArg())
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if p.isPunct(")") {
		p.advance()
	} else {
		p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestUnbalancedBracket, "expected ')' to close function call")
	}
	return fc
}

// parseFuncArg parses a single function argument, preferring a set
// interpretation when the token stream clearly starts a set ("{" or a
// known set-function name), and falling back to a scalar value expression
// (which itself can be a bare member path) otherwise.
func (p *Parser) parseFuncArg() Expr {
	start := p.cur().Pos
	if p.isPunct("{") || (p.isIdentLike() && p.peekN(1).Type == mdxlex.Punct && p.peekN(1).Value == "(" && setOpFuncNames[strings.ToUpper(identText(p.cur()))]) {
		s := p.parseSetPrimary()
		return Expr{Kind: ExprSet, SetArg: &s, Span: start}
	}
	return p.parseExpr()
}

// ---- member expressions ----

func (p *Parser) parseMemberExpr() MemberExpr {
	m := MemberExpr{Span: p.cur().Pos}
	if p.isIdentLike() {
		m.Parts = append(m.Parts, identText(p.advance()))
	}
	for p.isPunct(".") {
		p.advance()
		if p.isPunct("&") {
			p.advance()
			if p.cur().Type == mdxlex.BracketIdent {
				m.Key = identText(p.advance())
			}
			break
		}
		if p.isIdentLike() {
			text := identText(p.cur())
			upper := strings.ToUpper(text)
			if suffix, ok := memberSuffixNames[upper]; ok && p.peekN(1).Type != mdxlex.BracketIdent {
				p.advance()
				m.Suffix = suffix
				if (suffix == SuffixLead || suffix == SuffixLag) && p.isPunct("(") {
					p.advance()
					if p.cur().Type == mdxlex.Number {
						n, _ := strconv.Atoi(p.cur().Value)
						m.LeadLagN = n
						p.advance()
					}
					if p.isPunct(")") {
						p.advance()
					}
				}
				break
			}
			m.Parts = append(m.Parts, identText(p.advance()))
			continue
		}
		break
	}
	return m
}

// ---- value expressions (arithmetic precedence: unary > mul/div > add/sub/concat) ----

func (p *Parser) parseExpr() Expr {
	return p.parseAddSub()
}

func (p *Parser) parseAddSub() Expr {
	left := p.parseMulDiv()
	for p.isArith("+") || p.isArith("-") || p.isPunct("&") {
		op := p.cur().Value
		p.advance()
		right := p.parseMulDiv()
		lhs, rhs := left, right
		left = Expr{Kind: ExprBinary, Op: op, Left: &lhs, Right: &rhs, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseMulDiv() Expr {
	left := p.parseUnary()
	for p.isArith("*") || p.isArith("/") {
		op := p.cur().Value
		p.advance()
		right := p.parseUnary()
		lhs, rhs := left, right
		left = Expr{Kind: ExprBinary, Op: op, Left: &lhs, Right: &rhs, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.isArith("-") {
		start := p.cur().Pos
		p.advance()
		operand := p.parseUnary()
		return Expr{Kind: ExprUnary, UnaryOp: "-", Inner: &operand, Span: start}
	}
	return p.parseAtom()
}

func (p *Parser) parseAtom() Expr {
	t := p.cur()
	start := t.Pos
	switch {
	case t.Type == mdxlex.Number:
		p.advance()
		n, _ := strconv.ParseFloat(t.Value, 64)
		return Expr{Kind: ExprNumber, Number: n, Span: start}
	case t.Type == mdxlex.String:
		p.advance()
		return Expr{Kind: ExprString, Str: unquote(t.Value), Span: start}
	case p.isPunct("("):
		p.advance()
		if p.looksLikeTupleFrom(p.pos - 1) {
			p.pos--
			tuple := p.parseTupleExpr()
			return Expr{Kind: ExprTuple, Tuple: &tuple, Span: start}
		}
		inner := p.parseExpr()
		if p.isPunct(")") {
			p.advance()
		}
		return Expr{Kind: ExprParen, Inner: &inner, Span: start}
	case p.isKeyword("CASE"):
		return p.parseCaseExpr()
	case p.isKeyword("IIF"):
		return p.parseIifExpr()
	case p.isIdentLike() && p.peekN(1).Type == mdxlex.Punct && p.peekN(1).Value == "(":
		fc := p.parseFuncCallArbitrary()
		return Expr{Kind: ExprFuncCall, FuncCall: fc, Span: start}
	case p.isIdentLike():
		m := p.parseMemberExpr()
		return Expr{Kind: ExprMember, Member: &m, Span: start}
	default:
		p.errorf(diagnostics.KindParseError, start, SuggestUnexpectedToken, "unexpected token %q in expression", t.Value)
		if !p.atEOF() {
			p.advance()
		}
		return Expr{Kind: ExprNumber, Number: 0, Span: start}
	}
}

func (p *Parser) looksLikeTupleFrom(openParenIdx int) bool {
	depth := 0
	for i := openParenIdx; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Type == mdxlex.Punct && t.Value == "(" {
			depth++
			continue
		}
		if t.Type == mdxlex.Punct && t.Value == ")" {
			depth--
			if depth == 0 {
				return true
			}
			continue
		}
		if depth == 1 && (t.Type == mdxlex.ArithOp || t.Type == mdxlex.CompareOp) {
			return false
		}
	}
	return false
}

func (p *Parser) parseCaseExpr() Expr {
	start := p.cur().Pos
	p.advance() // CASE
	ce := &CaseExpr{}
	if !p.isKeyword("WHEN") {
		operand := p.parseExpr()
		ce.Operand = &operand
	}
	for p.isKeyword("WHEN") {
		p.advance()
		var when CaseWhen
		if ce.Operand != nil {
			v := p.parseExpr()
			when.CondValue = &v
		} else {
			b := p.parseBoolExpr()
			when.CondBool = &b
		}
		if p.isKeyword("THEN") {
			p.advance()
		}
		when.Result = p.parseExpr()
		ce.Whens = append(ce.Whens, when)
	}
	if p.isKeyword("ELSE") {
		p.advance()
		e := p.parseExpr()
		ce.Else = &e
	}
	if p.isKeyword("END") {
		p.advance()
	}
	return Expr{Kind: ExprCase, Case: ce, Span: start}
}

func (p *Parser) parseIifExpr() Expr {
	start := p.cur().Pos
	p.advance() // IIF
	ie := &IifExpr{}
	if p.isPunct("(") {
		p.advance()
	}
	ie.Cond = p.parseBoolExpr()
	if p.isPunct(",") {
		p.advance()
	}
	ie.Then = p.parseExpr()
	if p.isPunct(",") {
		p.advance()
	}
	ie.Else = p.parseExpr()
	if p.isPunct(")") {
		p.advance()
	}
	return Expr{Kind: ExprIif, Iif: ie, Span: start}
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	inner := s[1 : len(s)-1]
	quote := s[0:1]
	return strings.ReplaceAll(inner, quote+quote, quote)
}

// ---- boolean / logical expressions (precedence NOT > AND > OR > XOR) ----

func (p *Parser) parseBoolExpr() BoolExpr {
	return p.parseXor()
}

func (p *Parser) parseXor() BoolExpr {
	left := p.parseOr()
	for p.isKeyword("XOR") {
		p.advance()
		right := p.parseOr()
		lhs, rhs := left, right
		left = BoolExpr{Kind: BoolXor, Operands: []*BoolExpr{&lhs, &rhs}, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseOr() BoolExpr {
	left := p.parseAnd()
	for p.isKeyword("OR") {
		p.advance()
		right := p.parseAnd()
		lhs, rhs := left, right
		left = BoolExpr{Kind: BoolOr, Operands: []*BoolExpr{&lhs, &rhs}, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseAnd() BoolExpr {
	left := p.parseNot()
	for p.isKeyword("AND") {
		p.advance()
		right := p.parseNot()
		lhs, rhs := left, right
		left = BoolExpr{Kind: BoolAnd, Operands: []*BoolExpr{&lhs, &rhs}, Span: lhs.Span}
	}
	return left
}

func (p *Parser) parseNot() BoolExpr {
	if p.isKeyword("NOT") {
		start := p.cur().Pos
		p.advance()
		operand := p.parseNot()
		return BoolExpr{Kind: BoolNot, Operands: []*BoolExpr{&operand}, Span: start}
	}
	return p.parseComparisonOrPredicate()
}

func (p *Parser) parseComparisonOrPredicate() BoolExpr {
	if p.isPunct("(") && p.looksLikeLogicalParen() {
		start := p.cur().Pos
		p.advance()
		inner := p.parseBoolExpr()
		if p.isPunct(")") {
			p.advance()
		}
		return BoolExpr{Kind: BoolParen, Inner: &inner, Span: start}
	}

	left := p.parseExpr()
	start := left.Span

	switch {
	case p.isCompare():
		op := p.cur().Value
		p.advance()
		right := p.parseExpr()
		return BoolExpr{Kind: BoolComparison, CompareOp: op, Left: &left, Right: &right, Span: start}
	case p.isKeyword("BETWEEN"):
		p.advance()
		lo := p.parseExpr()
		if p.isKeyword("AND") {
			p.advance()
		}
		hi := p.parseExpr()
		return BoolExpr{Kind: BoolBetween, Left: &left, BetweenLo: &lo, BetweenHi: &hi, Span: start}
	case p.isKeyword("IN"):
		p.advance()
		set := p.parseSetExpr()
		return BoolExpr{Kind: BoolIn, Left: &left, InSet: &set, Span: start}
	case p.isKeyword("IS"):
		p.advance()
		switch {
		case p.isKeyword("NULL"):
			p.advance()
			return BoolExpr{Kind: BoolIsNull, Left: &left, Span: start}
		case p.isKeyword("EMPTY"):
			p.advance()
			return BoolExpr{Kind: BoolIsEmpty, Left: &left, Span: start}
		case p.isKeyword("LEAF"):
			p.advance()
			return BoolExpr{Kind: BoolIsLeaf, Left: &left, Span: start}
		case p.isKeyword("DATAMEMBER"):
			p.advance()
			return BoolExpr{Kind: BoolIsDataMember, Left: &left, Span: start}
		default:
			p.errorf(diagnostics.KindParseError, p.cur().Pos, SuggestUnexpectedToken, "expected NULL/EMPTY/LEAF/DATAMEMBER after IS")
			return BoolExpr{Kind: BoolIsNull, Left: &left, Span: start}
		}
	default:
		// bare member truthiness isn't meaningful standalone MDX, but
		// accept it as a comparison against 1 rather than erroring here.
		return BoolExpr{Kind: BoolComparison, CompareOp: "=", Left: &left, Right: &Expr{Kind: ExprNumber, Number: 1}, Span: start}
	}
}

func (p *Parser) looksLikeLogicalParen() bool {
	return !p.looksLikeTupleFrom(p.pos)
}
