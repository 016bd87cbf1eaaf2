package drive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameQueryEscapesQuotes(t *testing.T) {
	q := nameQuery("ROOT", `it's a \ test`)
	assert.Equal(t, `name = 'it\'s a \\ test' and 'ROOT' in parents and trashed = false`, q)
}

func TestFilesQueryExcludesFolders(t *testing.T) {
	q := filesQuery("F1")
	assert.Equal(t, "'F1' in parents and mimeType != 'application/vnd.google-apps.folder' and trashed = false", q)
}

func TestParseTokenAcceptsEpochMillisExpiry(t *testing.T) {
	tok, err := ParseToken([]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer","expiry_date":1700000000000}`))
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(time.UnixMilli(1700000000000)))
}

func TestParseTokenRejectsEmpty(t *testing.T) {
	_, err := ParseToken([]byte(`{}`))
	assert.Error(t, err)

	_, err = ParseToken([]byte(`not json`))
	assert.Error(t, err)
}

func TestCredentialsPreferInlineToken(t *testing.T) {
	c := Credentials{Token: `{"refresh_token":"inline"}`, TokenFile: "/nonexistent"}
	tok, err := c.token()
	require.NoError(t, err)
	assert.Equal(t, "inline", tok.RefreshToken)

	_, err = Credentials{}.token()
	assert.Error(t, err)
}
