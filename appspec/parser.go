package appspec

import (
	"fmt"
	"io"
)

// OpenSource locates and opens a spec source file by its bare file name
// (e.g. "net.asps"), returning the stream and the resolved path used for
// diagnostics.
type OpenSource func(fileName string) (io.ReadCloser, string, error)

// Parser drives the spec-source grammar over a stack of active files: the
// top-level source, textually included files, and the spec files of imported
// application modules.
type Parser struct {
	gen     *Generator
	open    OpenSource
	active  []*activeSource
	pending *token
}

type activeSource struct {
	fileName    string
	stream      io.ReadCloser
	lexer       *lexer
	isLibrary   bool
	oldLocation SourceLocation
}

// NewParser returns a parser reporting through g and resolving include and
// module files with open.
func NewParser(g *Generator, open OpenSource) *Parser {
	return &Parser{gen: g, open: open}
}

// ParseFile processes the top-level source file, every file it includes, and
// the spec file of every imported module. Diagnostics are reported through
// the generator; the returned error covers only a failure to open the
// top-level file.
func (p *Parser) ParseFile(fileName string) error {
	stream, resolved, err := p.open(fileName)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", fileName, err)
	}
	p.push(resolved, stream, SourceLocation{})
	p.run()

	// Imported modules are defined by their own spec files, processed in the
	// order the imports were first seen.
	for {
		moduleName, ok := p.gen.NextModule()
		if !ok {
			break
		}
		moduleFileName := moduleName + ".asps"
		stream, resolved, err := p.open(moduleFileName)
		if err != nil {
			for _, site := range p.gen.ImportSites(moduleName) {
				p.gen.ReportError(
					fmt.Sprintf("error opening %s: %v", moduleFileName, err), site)
			}
			continue
		}
		p.push(resolved, stream, SourceLocation{})
		p.run()
	}
	return nil
}

func (p *Parser) push(fileName string, stream io.ReadCloser, oldLocation SourceLocation) {
	p.active = append(p.active, &activeSource{
		fileName:    fileName,
		stream:      stream,
		lexer:       newLexer(stream, fileName),
		oldLocation: oldLocation,
	})
	p.gen.CurrentSource(fileName, true, false, SourceLocation{})
}

// pop closes the current source and restores the including file's context.
func (p *Parser) pop() {
	top := p.active[len(p.active)-1]
	top.stream.Close()
	p.active = p.active[:len(p.active)-1]
	if len(p.active) == 0 {
		return
	}
	previous := p.active[len(p.active)-1]
	p.gen.CurrentSource(
		previous.fileName, false, previous.isLibrary, top.oldLocation)
}

func (p *Parser) next() *token {
	if t := p.pending; t != nil {
		p.pending = nil
		return t
	}
	return p.active[len(p.active)-1].lexer.next()
}

func (p *Parser) pushBack(t *token) {
	p.pending = t
}

// run parses statements until the active stack drains.
func (p *Parser) run() {
	for len(p.active) != 0 {
		t := p.next()
		switch t.typ {
		case tokenEOF:
			p.pop()
		case tokenStatementEnd:
			// Empty statement.
		default:
			p.statement(t)
		}
	}
}

// statement parses one statement starting at t, consuming through its
// terminator. On error it reports and skips to the end of the statement.
func (p *Parser) statement(t *token) {
	switch t.typ {
	case tokenError:
		message := fmt.Sprintf("bad token encountered: '%s'", t.text)
		if t.err != "" {
			message += ": " + t.err
		}
		p.gen.ReportError(message, t.location)
		p.skipStatement()

	case tokenLib:
		if !p.endStatement() {
			return
		}
		p.gen.DeclareAsLibrary(t.location)
		if p.gen.IsLibrary() {
			p.active[len(p.active)-1].isLibrary = true
		}

	case tokenInclude:
		p.include()

	case tokenImport:
		p.importStatement()

	case tokenDef:
		p.def()

	case tokenDel:
		p.del(t)

	case tokenName:
		nameToken := t
		t = p.next()
		switch t.typ {
		case tokenAssign:
			value, ok := p.literal()
			if !ok || !p.endStatement() {
				return
			}
			p.gen.MakeAssignment(nameToken.text, nameToken.location, value)
		case tokenStatementEnd, tokenEOF:
			p.pushBack(t)
			if !p.endStatement() {
				return
			}
			p.gen.MakeAssignment(nameToken.text, nameToken.location, nil)
		default:
			p.unexpected(t)
		}

	default:
		p.unexpected(t)
	}
}

// include processes an include statement: the named file is lexed in place,
// with self-inclusion and include cycles rejected.
func (p *Parser) include() {
	t := p.next()
	if t.typ != tokenString {
		p.unexpected(t)
		return
	}
	if !p.endStatement() {
		return
	}
	if t.strValue == "" {
		p.gen.ReportError("include name cannot be empty", t.location)
		return
	}

	newFileName := t.strValue + ".asps"
	current := p.active[len(p.active)-1]
	if newFileName == current.fileName {
		p.gen.ReportError(
			fmt.Sprintf("source file cannot include itself: %s", newFileName),
			t.location)
		return
	}

	stream, resolved, err := p.open(newFileName)
	if err != nil {
		p.gen.ReportError(
			fmt.Sprintf("error opening %s: %v", newFileName, err), t.location)
		return
	}
	for _, active := range p.active {
		if resolved == active.fileName {
			stream.Close()
			p.gen.ReportError(
				fmt.Sprintf("include cycle detected: %s", resolved), t.location)
			return
		}
	}

	p.push(resolved, stream, p.gen.CurrentSourceLocation())
}

func (p *Parser) importStatement() {
	moduleToken := p.next()
	if moduleToken.typ != tokenName {
		p.unexpected(moduleToken)
		return
	}
	asToken := moduleToken
	t := p.next()
	if t.typ == tokenAs {
		asToken = p.next()
		if asToken.typ != tokenName {
			p.unexpected(asToken)
			return
		}
		t = p.next()
	}
	p.pushBack(t)
	if !p.endStatement() {
		return
	}
	p.gen.ImportModule(
		moduleToken.text, moduleToken.location,
		asToken.text, asToken.location)
}

func (p *Parser) def() {
	nameToken := p.next()
	if nameToken.typ != tokenName {
		p.unexpected(nameToken)
		return
	}
	if t := p.next(); t.typ != tokenLeftParen {
		p.unexpected(t)
		return
	}

	var parameters []Parameter
	t := p.next()
	if t.typ != tokenRightParen {
		p.pushBack(t)
		for {
			parameter, ok := p.parameter()
			if !ok {
				return
			}
			parameters = append(parameters, parameter)
			t = p.next()
			if t.typ == tokenComma {
				continue
			}
			if t.typ == tokenRightParen {
				break
			}
			p.unexpected(t)
			return
		}
	}

	if t := p.next(); t.typ != tokenAssign {
		p.unexpected(t)
		return
	}
	internalToken := p.next()
	if internalToken.typ != tokenName {
		p.unexpected(internalToken)
		return
	}
	if !p.endStatement() {
		return
	}
	p.gen.MakeFunction(
		nameToken.text, nameToken.location, parameters, internalToken.text)
}

func (p *Parser) parameter() (Parameter, bool) {
	t := p.next()
	switch t.typ {
	case tokenStar, tokenDoubleStar:
		kind := ParameterTupleGroup
		if t.typ == tokenDoubleStar {
			kind = ParameterDictionaryGroup
		}
		nameToken := p.next()
		if nameToken.typ != tokenName {
			p.unexpected(nameToken)
			return Parameter{}, false
		}
		return Parameter{Name: nameToken.text, Kind: kind}, true

	case tokenName:
		next := p.next()
		if next.typ != tokenAssign {
			p.pushBack(next)
			return Parameter{Name: t.text}, true
		}
		value, ok := p.literal()
		if !ok {
			return Parameter{}, false
		}
		return Parameter{Name: t.text, Default: value}, true

	default:
		p.unexpected(t)
		return Parameter{}, false
	}
}

func (p *Parser) del(delToken *token) {
	var names []string
	for {
		t := p.next()
		if t.typ != tokenName {
			p.unexpected(t)
			return
		}
		names = append(names, t.text)
		t = p.next()
		if t.typ == tokenComma {
			continue
		}
		p.pushBack(t)
		break
	}
	if !p.endStatement() {
		return
	}
	p.gen.DeleteDefinition(names, delToken.location)
}

// literal parses a literal value, allowing a sign before numeric constants.
func (p *Parser) literal() (*Literal, bool) {
	t := p.next()
	negate := false
	if t.typ == tokenMinus || t.typ == tokenPlus {
		negate = t.typ == tokenMinus
		t = p.next()
	}

	switch t.typ {
	case tokenNone:
		return &Literal{Kind: LiteralNone}, true
	case tokenEllipsis:
		return &Literal{Kind: LiteralEllipsis}, true
	case tokenTrue:
		return &Literal{Kind: LiteralBoolean, Boolean: true}, true
	case tokenFalse:
		return &Literal{Kind: LiteralBoolean}, true
	case tokenInteger:
		value := t.intValue
		if negate {
			value = -value
		}
		return &Literal{Kind: LiteralInteger, Integer: value}, true
	case tokenFloat:
		value := t.floatValue
		if negate {
			value = -value
		}
		return &Literal{Kind: LiteralFloat, Float: value}, true
	case tokenString:
		return &Literal{Kind: LiteralString, String: t.strValue}, true
	default:
		p.unexpected(t)
		return nil, false
	}
}

// endStatement consumes the statement terminator.
func (p *Parser) endStatement() bool {
	t := p.next()
	if t.typ == tokenStatementEnd || t.typ == tokenEOF {
		if t.typ == tokenEOF {
			p.pushBack(t)
		}
		return true
	}
	p.unexpected(t)
	return false
}

// unexpected reports a syntax error and resynchronizes at the next statement
// boundary so later problems are still reported.
func (p *Parser) unexpected(t *token) {
	text := t.text
	if t.typ == tokenEOF {
		text = "end of file"
	}
	p.gen.ReportError(fmt.Sprintf("unexpected '%s'", text), t.location)
	p.pushBack(t)
	p.skipStatement()
}

func (p *Parser) skipStatement() {
	for {
		t := p.next()
		if t.typ == tokenStatementEnd {
			return
		}
		if t.typ == tokenEOF {
			p.pushBack(t)
			return
		}
	}
}
