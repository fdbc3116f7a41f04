// Package resolver turns raw user input (a bare link or a pasted share
// message) into a directly fetchable media locator plus whatever metadata the
// source exposes.
//
// Resolution runs in three steps: the first http(s) URL is extracted from the
// text, its host is classified into a known platform family, and the family's
// link is exchanged for a media locator through an extract-API lookup. Douyin
// links fall back to scraping the mobile share page when the lookup fails.
// Failures surface as *ParseError and are never retried at this level.
package resolver
