package childproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeSplitsOnSpaces(t *testing.T) {
	tokens := Tokenize("-Wall -Wextra")
	require.Equal(t, []string{"-Wall", "-Wextra"}, ExecArgs(tokens))
}

func TestTokenizeQuoteGroupsSpaces(t *testing.T) {
	tokens := Tokenize(`-DNAME="hello world" -O2`)
	require.Len(t, tokens, 2)
	require.Equal(t, `-DNAME="hello world"`, tokens[0].Raw)
	require.Equal(t, `-DNAME=hello world`, tokens[0].Exec)
	require.Equal(t, "-O2", tokens[1].Exec)
}

func TestTokenizeSingleQuotes(t *testing.T) {
	tokens := Tokenize(`-DPATH='a b/c'`)
	require.Len(t, tokens, 1)
	require.Equal(t, `-DPATH='a b/c'`, tokens[0].Raw)
	require.Equal(t, "-DPATH=a b/c", tokens[0].Exec)
}

func TestTokenizeBackslashEscape(t *testing.T) {
	tokens := Tokenize(`-DNAME=a\ b`)
	require.Len(t, tokens, 1)
	require.Equal(t, `-DNAME=a\ b`, tokens[0].Raw)
	require.Equal(t, "-DNAME=a b", tokens[0].Exec)
}

func TestTokenizeEmptyInput(t *testing.T) {
	require.Empty(t, Tokenize(""))
	require.Empty(t, Tokenize("   "))
}
