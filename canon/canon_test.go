package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "strips trailing slash", input: "https://serde.rs/", want: "https://serde.rs"},
		{name: "lowercases host", input: "https://GitHub.com/serde-rs/serde", want: "https://github.com/serde-rs/serde"},
		{name: "strips default https port", input: "https://example.com:443/proj", want: "https://example.com/proj"},
		{name: "strips default http port", input: "http://example.com:80/proj", want: "http://example.com/proj"},
		{name: "strips index.html", input: "https://example.com/docs/index.html", want: "https://example.com/docs"},
		{name: "strips tracking params", input: "https://example.com/proj?utm_source=x&keep=1", want: "https://example.com/proj?keep=1"},
		{name: "drops query when only tracking params", input: "https://example.com/proj?ref=abc", want: "https://example.com/proj"},
		{name: "upgrades http to https on well-known host", input: "http://github.com/a/b", want: "https://github.com/a/b"},
		{name: "leaves http on unknown host", input: "http://example.com/a", want: "http://example.com/a"},
		{name: "strips .git suffix on github", input: "https://github.com/a/b.git", want: "https://github.com/a/b"},
		{name: "keeps .git suffix on unknown host", input: "https://example.com/a/b.git", want: "https://example.com/a/b.git"},
		{name: "rejects empty host", input: "https:///path", wantErr: true},
		{name: "rejects unsupported scheme", input: "ftp://example.com/a", wantErr: true},
		{name: "rejects unparseable url", input: "https://[::1", wantErr: true},
		{name: "rejects empty string", input: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonical(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalIsIdempotent(t *testing.T) {
	inputs := []string{
		"https://serde.rs/",
		"HTTP://GitHub.com/a/b.git/",
		"https://example.com:443/docs/index.html?utm_source=x&keep=1",
	}
	for _, in := range inputs {
		first, err := Canonical(in)
		require.NoError(t, err)
		second, err := Canonical(first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestIsCanonical(t *testing.T) {
	assert.True(t, IsCanonical("https://serde.rs"))
	assert.False(t, IsCanonical("https://serde.rs/"))
	assert.False(t, IsCanonical("not a url"))
}
