package design

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSourceURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"forces https", "http://Example.com/", "https://example.com"},
		{"strips trailing slash", "https://stripe.com/", "https://stripe.com"},
		{"bare host gets scheme", "linear.app", "https://linear.app"},
		{"drops query and fragment", "https://a.com/pricing?utm=x#top", "https://a.com/pricing"},
		{"drops default port", "https://a.com:443/b", "https://a.com/b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeSourceURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeSourceURL_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NormalizeSourceURL("   ")
	require.Error(t, err)

	_, err = NormalizeSourceURL("https://")
	require.Error(t, err)
}

func TestNormalizePageURL_RequiresAbsolute(t *testing.T) {
	t.Parallel()

	_, err := NormalizePageURL("/pricing")
	require.Error(t, err)

	got, err := NormalizePageURL("https://a.com/pricing/")
	require.NoError(t, err)
	require.Equal(t, "https://a.com/pricing", got)
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	require.True(t, SameHost("https://a.com/x", "https://A.com/y"))
	require.False(t, SameHost("https://a.com/x", "https://b.com/x"))
}
