package scraper

import "strings"

// spaMarkers are the shell elements client-side frameworks leave in an
// otherwise empty document.
var spaMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<app-root></app-root>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
	"<div data-reactroot",
}

// challengeMarkers show up on bot-protection interstitials, in the two
// languages the portals serve them in.
var challengeMarkers = []string{
	"checking your browser",
	"potvrdite da niste robot",
	"omogućite javascript",
	"enable javascript",
	"javascript required",
}

// NeedsBrowser reports whether a fetched page looks like a client-side
// shell or a bot challenge instead of a server-rendered result list.
// The runner escalates such pages from static fetching to a browser
// session.
func NeedsBrowser(page *Page) bool {
	html := strings.ToLower(page.HTML)

	for _, marker := range spaMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}

	if strings.Contains(html, "<noscript>") {
		noscript := extractBetween(html, "<noscript>", "</noscript>")
		if strings.Contains(noscript, "javascript") || strings.Contains(noscript, "omogući") {
			return true
		}
	}

	return false
}

// extractBetween returns the content between two markers, or "".
func extractBetween(s, start, end string) string {
	startIdx := strings.Index(s, start)
	if startIdx == -1 {
		return ""
	}
	startIdx += len(start)
	endIdx := strings.Index(s[startIdx:], end)
	if endIdx == -1 {
		return ""
	}
	return s[startIdx : startIdx+endIdx]
}
