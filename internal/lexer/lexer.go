// Package lexer turns FHIRPath source text into a token stream, per
// spec.md §4.1. Grounded on the teacher's single-pass readChar/peekChar
// structure (internal/lexer/lexer.go) with FHIRPath's own token kinds.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/source"
	"github.com/lschmierer/fhirpath-go/internal/token"
)

// Options controls lexer behavior.
type Options struct {
	// PreserveTrivia, when true, emits whitespace/comment tokens on the
	// hidden channel instead of silently skipping them (spec.md §4.1).
	PreserveTrivia bool
}

// Lexer is a single-pass, non-restartable tokenizer over one source
// string.
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           rune
	opts         Options
	diags        []diagnostics.Diagnostic
	srcMap       *source.Map
}

// New creates a Lexer over input with the given options.
func New(input string, opts Options) *Lexer {
	l := &Lexer{input: input, opts: opts, srcMap: source.NewMap(input)}
	l.readChar()
	return l
}

// Diagnostics returns lexical diagnostics accumulated so far (unknown
// character errors — the lexer never throws, spec.md §4.1).
func (l *Lexer) Diagnostics() []diagnostics.Diagnostic { return l.diags }

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		return
	}
	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// All tokenizes the entire input, stopping after EOF. Hidden-channel
// tokens are included only when PreserveTrivia is set.
func (l *Lexer) All() []token.Token {
	var toks []token.Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks
}

func tok(kind token.Kind, lexeme string, offset int, channel token.Channel) token.Token {
	return token.Token{Kind: kind, Lexeme: lexeme, Offset: offset, Length: len(lexeme), Channel: channel}
}

// Next returns the next token, which may be a hidden-channel trivia token
// when trivia preservation is requested.
func (l *Lexer) Next() token.Token {
	if l.opts.PreserveTrivia {
		if t, ok := l.lexTrivia(); ok {
			return t
		}
	}
	l.skipTrivia()

	start := l.position
	ch := l.ch

	switch {
	case ch == 0:
		return tok(token.EOF, "", start, token.ChannelDefault)
	case ch == '.':
		l.readChar()
		return tok(token.DOT, ".", start, token.ChannelDefault)
	case ch == ',':
		l.readChar()
		return tok(token.COMMA, ",", start, token.ChannelDefault)
	case ch == '(':
		l.readChar()
		return tok(token.LPAREN, "(", start, token.ChannelDefault)
	case ch == ')':
		l.readChar()
		return tok(token.RPAREN, ")", start, token.ChannelDefault)
	case ch == '[':
		l.readChar()
		return tok(token.LBRACKET, "[", start, token.ChannelDefault)
	case ch == ']':
		l.readChar()
		return tok(token.RBRACKET, "]", start, token.ChannelDefault)
	case ch == '{':
		l.readChar()
		if l.ch == '}' {
			l.readChar()
			return tok(token.NULLVALUE, "{}", start, token.ChannelDefault)
		}
		return tok(token.LBRACE, "{", start, token.ChannelDefault)
	case ch == '}':
		l.readChar()
		return tok(token.RBRACE, "}", start, token.ChannelDefault)
	case ch == '+':
		l.readChar()
		return tok(token.PLUS, "+", start, token.ChannelDefault)
	case ch == '-':
		l.readChar()
		return tok(token.MINUS, "-", start, token.ChannelDefault)
	case ch == '*':
		l.readChar()
		return tok(token.STAR, "*", start, token.ChannelDefault)
	case ch == '/':
		l.readChar()
		return tok(token.SLASH, "/", start, token.ChannelDefault)
	case ch == '&':
		l.readChar()
		return tok(token.AMP, "&", start, token.ChannelDefault)
	case ch == '|':
		l.readChar()
		return tok(token.PIPE, "|", start, token.ChannelDefault)
	case ch == '=':
		l.readChar()
		return tok(token.EQ, "=", start, token.ChannelDefault)
	case ch == '~':
		l.readChar()
		return tok(token.EQUIV, "~", start, token.ChannelDefault)
	case ch == '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return tok(token.NEQ, "!=", start, token.ChannelDefault)
		}
		if l.peekChar() == '~' {
			l.readChar()
			l.readChar()
			return tok(token.NEQUIV, "!~", start, token.ChannelDefault)
		}
		l.readChar()
		l.recordUnknown(ch, start)
		return tok(token.ILLEGAL, string(ch), start, token.ChannelDefault)
	case ch == '<':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return tok(token.LTE, "<=", start, token.ChannelDefault)
		}
		l.readChar()
		return tok(token.LT, "<", start, token.ChannelDefault)
	case ch == '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return tok(token.GTE, ">=", start, token.ChannelDefault)
		}
		l.readChar()
		return tok(token.GT, ">", start, token.ChannelDefault)
	case ch == '\'' || ch == '"':
		return l.lexString(ch, start)
	case ch == '`':
		return l.lexDelimitedIdent(start)
	case ch == '%':
		return l.lexEnvironmentVariable(start)
	case ch == '$':
		return l.lexSpecialVariable(start)
	case ch == '@':
		return l.lexTemporal(start)
	case isDigit(ch):
		return l.lexNumber(start)
	case isIdentStart(ch):
		return l.lexIdentifier(start)
	default:
		l.readChar()
		l.recordUnknown(ch, start)
		return tok(token.ILLEGAL, string(ch), start, token.ChannelDefault)
	}
}

func (l *Lexer) recordUnknown(ch rune, offset int) {
	rng := l.srcMap.Range(offset, offset+utf8.RuneLen(ch))
	l.diags = append(l.diags, diagnostics.New(rng, diagnostics.SeverityError, diagnostics.LexUnknownChar, "fhirpath-lexer", string(ch)))
}

func (l *Lexer) skipTrivia() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') && l.ch != 0 {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// lexTrivia emits one hidden-channel token (a whitespace run or a single
// comment) if the cursor sits on trivia; returns ok=false otherwise so
// the caller falls through to ordinary tokenization.
func (l *Lexer) lexTrivia() (token.Token, bool) {
	start := l.position
	switch {
	case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
			l.readChar()
		}
		lexeme := l.input[start:l.position]
		return tok(token.WHITESPACE, lexeme, start, token.ChannelHidden), true
	case l.ch == '/' && l.peekChar() == '/':
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
		lexeme := l.input[start:l.position]
		return tok(token.COMMENT, lexeme, start, token.ChannelHidden), true
	case l.ch == '/' && l.peekChar() == '*':
		l.readChar()
		l.readChar()
		for !(l.ch == '*' && l.peekChar() == '/') && l.ch != 0 {
			l.readChar()
		}
		if l.ch != 0 {
			l.readChar()
			l.readChar()
		}
		lexeme := l.input[start:l.position]
		return tok(token.COMMENT, lexeme, start, token.ChannelHidden), true
	default:
		return token.Token{}, false
	}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

// lexNumber lexes an integer or decimal literal. A lone `.` followed by a
// digit is only consumed as the decimal point here; the parser's
// precedence context decides whether a standalone `.` after a primary
// expression is pipeline navigation instead (spec.md §4.1).
func (l *Lexer) lexNumber(start int) token.Token {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lexeme := l.input[start:l.position]
	return tok(token.NUMBER, lexeme, start, token.ChannelDefault)
}

func (l *Lexer) lexIdentifier(start int) token.Token {
	firstRune := l.ch
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lexeme := l.input[start:l.position]
	if kw, ok := token.LookupKeyword(lexeme); ok {
		return tok(kw, lexeme, start, token.ChannelDefault)
	}
	if unicode.IsUpper(firstRune) {
		return tok(token.TYPE_IDENT, lexeme, start, token.ChannelDefault)
	}
	return tok(token.IDENT, lexeme, start, token.ChannelDefault)
}

func (l *Lexer) lexDelimitedIdent(start int) token.Token {
	l.readChar() // consume opening `
	var sb strings.Builder
	for l.ch != '`' && l.ch != 0 {
		sb.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch == '`' {
		l.readChar()
	} else {
		rng := l.srcMap.Range(start, l.position)
		l.diags = append(l.diags, diagnostics.New(rng, diagnostics.SeverityError, diagnostics.SynUnclosedDelimiter, "fhirpath-lexer", "`"))
	}
	lexeme := l.input[start:l.position]
	t := tok(token.DELIMITED_IDENT, lexeme, start, token.ChannelDefault)
	t.Lexeme = sb.String() // the value carried forward is the unquoted spelling
	t.Length = l.position - start
	return t
}

func (l *Lexer) lexString(quote rune, start int) token.Token {
	l.readChar() // consume opening quote
	var sb strings.Builder
	for l.ch != quote && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			sb.WriteRune(unescape(l.ch))
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch == quote {
		l.readChar()
	} else {
		rng := l.srcMap.Range(start, l.position)
		l.diags = append(l.diags, diagnostics.New(rng, diagnostics.SeverityError, diagnostics.SynUnclosedDelimiter, "fhirpath-lexer", string(quote)))
	}
	t := tok(token.STRING, sb.String(), start, token.ChannelDefault)
	t.Length = l.position - start
	return t
}

func unescape(ch rune) rune {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case 'f':
		return '\f'
	case '\\', '\'', '"', '`':
		return ch
	default:
		return ch
	}
}

// lexEnvironmentVariable lexes `%name`, `%`name`` and `%'string'` forms
// (spec.md §4.1). The leading `%` is part of the token's Lexeme for plain
// names; the backtick form's Lexeme is the name wrapped in backticks
// (no `%`); the quoted form's Lexeme is the unescaped string content
// alone, without `%` or quotes.
func (l *Lexer) lexEnvironmentVariable(start int) token.Token {
	l.readChar() // consume %
	switch {
	case l.ch == '`':
		inner := l.lexDelimitedIdent(l.position)
		t := tok(token.ENV, "`"+inner.Lexeme+"`", start, token.ChannelDefault)
		t.Length = l.position - start
		return t
	case l.ch == '\'' || l.ch == '"':
		quote := l.ch
		inner := l.lexString(quote, l.position)
		t := tok(token.ENV, inner.Lexeme, start, token.ChannelDefault)
		t.Length = l.position - start
		return t
	default:
		nameStart := l.position
		for isIdentPart(l.ch) {
			l.readChar()
		}
		name := l.input[nameStart:l.position]
		t := tok(token.ENV, "%"+name, start, token.ChannelDefault)
		t.Length = l.position - start
		return t
	}
}

func (l *Lexer) lexSpecialVariable(start int) token.Token {
	l.readChar() // consume $
	nameStart := l.position
	for isIdentPart(l.ch) {
		l.readChar()
	}
	name := l.input[nameStart:l.position]
	lexeme := "$" + name
	switch name {
	case "this":
		return tok(token.THIS, lexeme, start, token.ChannelDefault)
	case "index":
		return tok(token.INDEX, lexeme, start, token.ChannelDefault)
	case "total":
		return tok(token.TOTAL, lexeme, start, token.ChannelDefault)
	default:
		rng := l.srcMap.Range(start, l.position)
		l.diags = append(l.diags, diagnostics.New(rng, diagnostics.SeverityError, diagnostics.LexUnknownChar, "fhirpath-lexer", lexeme))
		return tok(token.ILLEGAL, lexeme, start, token.ChannelDefault)
	}
}

// lexTemporal lexes an `@`-prefixed Date/Time/DateTime literal, tagging
// the resulting token by shape: `@YYYY[-MM[-DD]]` is a Date unless
// followed by `T`, in which case it's a DateTime; `@T...` is a Time.
func (l *Lexer) lexTemporal(start int) token.Token {
	l.readChar() // consume @
	bodyStart := l.position
	isTimeOnly := l.ch == 'T'
	if isTimeOnly {
		l.readChar()
	}
	for isIdentPart(l.ch) || l.ch == '-' || l.ch == ':' || l.ch == '.' || l.ch == '+' || l.ch == 'Z' {
		l.readChar()
	}
	body := l.input[bodyStart:l.position]
	lexeme := l.input[start:l.position]
	kind := token.DATE
	switch {
	case isTimeOnly:
		kind = token.TIME
	case strings.ContainsRune(body, 'T'):
		kind = token.DATETIME
	}
	t := tok(kind, lexeme, start, token.ChannelDefault)
	return t
}
