package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer test-key", want: "test-key"},
		{header: "Bearer   padded  ", want: "padded"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, err := ExtractBearerToken(req)
		if tc.wantErr {
			assert.Error(t, err, "header %q", tc.header)
			continue
		}
		require.NoError(t, err, "header %q", tc.header)
		assert.Equal(t, tc.want, got)
	}
}

func TestKeyringAuthenticate(t *testing.T) {
	t.Parallel()

	k := NewKeyring("admin-key", []TokenConfig{
		{Token: "editor", Scopes: []string{ScopeDashboardRW, " "}},
		{Token: "monitor", Scopes: []string{ScopeEventsRO}},
		{Token: "", Scopes: []string{ScopeAll}},
	})
	assert.False(t, k.Open())

	p, ok := k.Authenticate("admin-key")
	require.True(t, ok)
	assert.True(t, p.Can(ScopeMediaRW))

	p, ok = k.Authenticate("editor")
	require.True(t, ok)
	assert.True(t, p.Can(ScopeDashboardRO), "dashboard:rw implies dashboard:ro")
	assert.False(t, p.Can(ScopeMediaRW))
	assert.True(t, p.Can())

	_, ok = k.Authenticate("nope")
	assert.False(t, ok)
	_, ok = k.Authenticate("")
	assert.False(t, ok, "empty token never matches the blank entry")
}

func TestKeyringResolve(t *testing.T) {
	t.Parallel()

	open := NewKeyring("", nil)
	require.True(t, open.Open())
	p, err := open.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, p.Can(ScopeMediaRW))

	k := NewKeyring("", []TokenConfig{{Token: "m", Scopes: []string{ScopeEventsRO}}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = k.Resolve(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer wrong")
	_, err = k.Resolve(req)
	assert.EqualError(t, err, "invalid API key")

	req.Header.Set("Authorization", "Bearer m")
	p, err = k.Resolve(req)
	require.NoError(t, err)
	assert.True(t, p.Can(ScopeEventsRO))
	assert.False(t, p.Can(ScopeDashboardRO))
}

func TestKnownScope(t *testing.T) {
	t.Parallel()

	assert.True(t, KnownScope(ScopeEventsRO))
	assert.False(t, KnownScope("jobs:rw"))
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	ctx := WithPrincipal(context.Background(), Principal{Token: "x"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "x", p.Token)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
