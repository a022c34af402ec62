package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeWhitespaceSeparated(t *testing.T) {
	tokens, err := Tokenize("SET foo bar")
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar"}, tokens)
}

func TestTokenizeSingleQuotesNoEscapes(t *testing.T) {
	tokens, err := Tokenize(`SET foo 'a b\c'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", `a b\c`}, tokens)
}

func TestTokenizeDoubleQuotesWithEscapes(t *testing.T) {
	tokens, err := Tokenize(`SET foo "a \"quoted\" b"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", `a "quoted" b`}, tokens)
}

func TestTokenizeBareBackslashEscape(t *testing.T) {
	tokens, err := Tokenize(`SET foo\ bar baz`)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo bar", "baz"}, tokens)
}

func TestTokenizeHashStartsComment(t *testing.T) {
	tokens, err := Tokenize("SET foo bar # this is ignored")
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar"}, tokens)
}

func TestTokenizeHashInsideQuotesIsLiteral(t *testing.T) {
	tokens, err := Tokenize(`SET foo "bar # baz"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar # baz"}, tokens)
}

func TestTokenizeEmptyLine(t *testing.T) {
	tokens, err := Tokenize("   ")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestTokenizeUnterminatedSingleQuote(t *testing.T) {
	_, err := Tokenize("SET foo 'bar")
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestTokenizeUnterminatedDoubleQuote(t *testing.T) {
	_, err := Tokenize(`SET foo "bar`)
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestTokenizeTrailingBackslashErrors(t *testing.T) {
	_, err := Tokenize(`SET foo\`)
	assert.Error(t, err)
}
