package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("s3cret", 7, "ada@example.com", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := Parse("s3cret", tok)
	require.NoError(t, err)
	require.Equal(t, float64(7), claims["sub"])
	require.Equal(t, "ada@example.com", claims["email"])
	require.Equal(t, "admin", claims["role"])

	_, err = Parse("other", tok)
	require.Error(t, err)
}

func TestIssue_Defaults(t *testing.T) {
	tok, err := Issue("s3cret", 7, "ada@example.com", "user", -time.Hour)
	require.NoError(t, err)
	// A non-positive ttl falls back to the default, so the token is valid.
	_, err = Parse("s3cret", tok)
	require.NoError(t, err)

	_, err = Issue("", 7, "", "user", time.Hour)
	require.Error(t, err)
}
