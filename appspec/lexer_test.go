package appspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func lexAll(input string) []*token {
	l := newLexer(strings.NewReader(input), "test.asps")
	var tokens []*token
	for {
		t := l.next()
		tokens = append(tokens, t)
		if t.typ == tokenEOF {
			return tokens
		}
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input    string
		typ      tokenType
		intValue int32
		floatVal float64
	}{
		{input: "0", typ: tokenInteger},
		{input: "42", typ: tokenInteger, intValue: 42},
		{input: "1_000_000", typ: tokenInteger, intValue: 1000000},
		{input: "0x1F", typ: tokenInteger, intValue: 0x1F},
		{input: "0xFFFFFFFF", typ: tokenInteger, intValue: -1},
		{input: "0b1010", typ: tokenInteger, intValue: 10},
		{input: "0b1010_1010", typ: tokenInteger, intValue: 0xAA},
		{input: "2147483648", typ: tokenInteger, intValue: -2147483648},
		{input: "1.5", typ: tokenFloat, floatVal: 1.5},
		{input: ".5", typ: tokenFloat, floatVal: 0.5},
		{input: "2.", typ: tokenFloat, floatVal: 2},
		{input: "1e3", typ: tokenFloat, floatVal: 1000},
		{input: "1.25e-2", typ: tokenFloat, floatVal: 0.0125},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			tokens := lexAll(tc.input)
			require.Equal(t, tc.typ, tokens[0].typ, "token %q", tokens[0].text)
			if tc.typ == tokenInteger {
				require.Equal(t, tc.intValue, tokens[0].intValue)
			} else {
				require.Equal(t, tc.floatVal, tokens[0].floatValue)
			}
		})
	}
}

func TestLexer_NumberErrors(t *testing.T) {
	for _, input := range []string{
		"2147483649", // decimal magnitude limit
		"0x1FFFFFFFF",
		"0b111111111111111111111111111111111",
		"12abc",
		"0x",
	} {
		t.Run(input, func(t *testing.T) {
			tokens := lexAll(input)
			require.Equal(t, tokenError, tokens[0].typ)
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\tb"`, "a\tb"},
		{`"a\\b"`, `a\b`},
		{`"quote\""`, `quote"`},
		{`"\65\66"`, "AB"},
		{`"\x41\x42"`, "AB"},
		{`"\7bell"`, "\abell"},
		{`""`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			tokens := lexAll(tc.input)
			require.Equal(t, tokenString, tokens[0].typ)
			require.Equal(t, tc.expected, tokens[0].strValue)
		})
	}

	tokens := lexAll(`"unterminated`)
	require.Equal(t, tokenError, tokens[0].typ)

	tokens = lexAll(`"\400"`)
	require.Equal(t, tokenError, tokens[0].typ)
}

func TestLexer_NamesAndKeywords(t *testing.T) {
	tokens := lexAll("def hello(a, *b, **c) = h_impl")
	types := make([]tokenType, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.typ)
	}
	require.Equal(t, []tokenType{
		tokenDef, tokenName, tokenLeftParen, tokenName, tokenComma,
		tokenStar, tokenName, tokenComma, tokenDoubleStar, tokenName,
		tokenRightParen, tokenAssign, tokenName, tokenStatementEnd, tokenEOF,
	}, types)
	require.Equal(t, "hello", tokens[1].text)
	require.Equal(t, "h_impl", tokens[12].text)
}

func TestLexer_EllipsisAndLiterals(t *testing.T) {
	tokens := lexAll("x = ...; y = None; z = True")
	require.Equal(t, tokenEllipsis, tokens[2].typ)
	require.Equal(t, tokenNone, tokens[6].typ)
	require.Equal(t, tokenTrue, tokens[10].typ)
}

func TestLexer_CommentsAndContinuation(t *testing.T) {
	tokens := lexAll("a # comment\nb")
	require.Equal(t, tokenName, tokens[0].typ)
	require.Equal(t, tokenStatementEnd, tokens[1].typ)
	require.Equal(t, tokenName, tokens[2].typ)

	// A backslash-newline joins lines into one statement.
	tokens = lexAll("a = \\\n1")
	var types []tokenType
	for _, tok := range tokens {
		types = append(types, tok.typ)
	}
	require.Equal(t, []tokenType{
		tokenName, tokenAssign, tokenInteger, tokenStatementEnd, tokenEOF,
	}, types)

	// Trailing whitespace after the backslash is an error unless followed by
	// a comment.
	tokens = lexAll("a = \\ \n1")
	require.Equal(t, tokenError, tokens[2].typ)

	tokens = lexAll("a = \\ # fine\n1")
	require.Equal(t, tokenInteger, tokens[2].typ)
}

func TestLexer_Locations(t *testing.T) {
	l := newLexer(strings.NewReader("a\n  b"), "loc.asps")
	first := l.next()
	require.Equal(t, SourceLocation{FileName: "loc.asps", Line: 1, Column: 1}, first.location)
	l.next() // statement end
	second := l.next()
	require.Equal(t, SourceLocation{FileName: "loc.asps", Line: 2, Column: 3}, second.location)
}
