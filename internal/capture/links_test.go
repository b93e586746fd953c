package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const homepageHTML = `<html><body>
<a href="/pricing">Pricing</a>
<a href="/features/">Features</a>
<a href="https://stripe.example/about">About</a>
<a href="https://other.example/blog">External</a>
<a href="/login">Login</a>
<a href="/legal/terms">Terms</a>
<a href="/pricing">Pricing again</a>
<a href="#section">Anchor</a>
<a href="mailto:hi@stripe.example">Mail</a>
<a href="https://stripe.example/">Self</a>
</body></html>`

func TestExtractLinks(t *testing.T) {
	links, err := extractLinks("https://stripe.example/", homepageHTML)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://stripe.example/pricing",
		"https://stripe.example/features",
		"https://stripe.example/about",
	}, links)
}

func TestExtractLinksBadBaseURL(t *testing.T) {
	_, err := extractLinks("://broken", homepageHTML)
	require.Error(t, err)
}

func TestHeuristicSelect(t *testing.T) {
	links := []string{
		"https://x.example/pricing",
		"https://x.example/product/widgets",
		"https://x.example/features",
		"https://x.example/about-us",
		"https://x.example/blog",
		"https://x.example/dashboard",
		"https://x.example/careers",
	}

	selected := heuristicSelect(links, 10)
	require.Len(t, selected, maxHeuristicSelections)
	require.Equal(t, pageSelection{URL: "https://x.example/pricing", PageType: "pricing"}, selected[0])

	// "product" maps to the features type, which the /features link
	// already claimed, so one type appears once.
	types := map[string]int{}
	for _, sel := range selected {
		types[sel.PageType]++
	}
	require.Equal(t, 1, types["features"])

	require.Len(t, heuristicSelect(links, 2), 2)
	require.Empty(t, heuristicSelect([]string{"https://x.example/careers"}, 5))
}

func TestParseSelections(t *testing.T) {
	candidates := []string{
		"https://x.example/pricing",
		"https://x.example/about",
	}
	raw := "Here are my picks:\n" +
		"https://x.example/pricing | Pricing\n" +
		"https://x.example/pricing | pricing\n" +
		"https://evil.example/phish | pricing\n" +
		"https://x.example/about | about\n"

	selected := parseSelections(raw, candidates, 10)
	require.Equal(t, []pageSelection{
		{URL: "https://x.example/pricing", PageType: "pricing"},
		{URL: "https://x.example/about", PageType: "about"},
	}, selected)

	require.Len(t, parseSelections(raw, candidates, 1), 1)
	require.Empty(t, parseSelections("no structure at all", candidates, 10))
}

func TestSimplifyHTML(t *testing.T) {
	raw := `<html>
	<head><script src="app.js"></script><script>var x = "<div>";</script></head>
	<body>
	<!-- nav comment -->
	<noscript>enable js</noscript>
	<div   class="hero">  Hello   world  </div>
	</body></html>`

	out := simplifyHTML(raw)
	require.NotContains(t, out, "script")
	require.NotContains(t, out, "<!--")
	require.NotContains(t, out, "  ")
	require.Contains(t, out, `<div class="hero"> Hello world </div>`)
}

func TestClassifyViewport(t *testing.T) {
	require.Equal(t, "desktop", classifyViewport(1440))
	require.Equal(t, "desktop", classifyViewport(1024))
	require.Equal(t, "tablet", classifyViewport(768))
	require.Equal(t, "tablet", classifyViewport(640))
	require.Equal(t, "mobile", classifyViewport(375))
}
