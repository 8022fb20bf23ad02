package browser

import (
	"net/url"
	"strings"
)

const (
	KindXPath = "xpath"
	KindCSS   = "css"
)

// ParseLocator splits a locator into its engine and expression. Locators are
// XPath unless prefixed with "css=".
func ParseLocator(locator string) (kind, expr string) {
	switch {
	case strings.HasPrefix(locator, "css="):
		return KindCSS, strings.TrimPrefix(locator, "css=")
	case strings.HasPrefix(locator, "xpath="):
		return KindXPath, strings.TrimPrefix(locator, "xpath=")
	default:
		return KindXPath, locator
	}
}

// ResolveURL resolves href against the page it was read from. Hrefs read
// from attributes are often relative ("/dp/B0..."), so every link that is
// about to be opened goes through here.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return href
	}
	return b.ResolveReference(ref).String()
}
