package resolver

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// Family is the platform a link belongs to.
type Family string

const (
	FamilyDouyin    Family = "douyin"
	FamilyTikTok    Family = "tiktok"
	FamilyYouTube   Family = "youtube"
	FamilyInstagram Family = "instagram"
	FamilyBilibili  Family = "bilibili"
	FamilyFacebook  Family = "facebook"
	FamilyTwitter   Family = "twitter"
	FamilyDirect    Family = "direct"
)

var familyHosts = []struct {
	family   Family
	suffixes []string
}{
	{FamilyDouyin, []string{"douyin.com", "iesdouyin.com"}},
	{FamilyTikTok, []string{"tiktok.com"}},
	{FamilyYouTube, []string{"youtube.com", "youtu.be"}},
	{FamilyInstagram, []string{"instagram.com"}},
	{FamilyBilibili, []string{"bilibili.com", "b23.tv"}},
	{FamilyFacebook, []string{"facebook.com", "fb.watch"}},
	{FamilyTwitter, []string{"twitter.com", "x.com"}},
}

var directExtensions = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".m4v": true}

var schemePattern = regexp.MustCompile(`(?i)https?://`)

const trailingPunctuation = `.,;:!?)]}>'"`

// ExtractURL returns the first http(s) URL embedded in text. The URL ends at
// whitespace, a Han character, or CJK punctuation; trailing ASCII closing
// punctuation is dropped.
func ExtractURL(text string) (string, bool) {
	loc := schemePattern.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[0]:]
	end := len(rest)
	for i, r := range rest {
		if unicode.IsSpace(r) || unicode.Is(unicode.Han, r) || isCJKPunct(r) {
			end = i
			break
		}
	}
	candidate := strings.TrimRight(rest[:end], trailingPunctuation)
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return candidate, true
}

// isCJKPunct covers CJK symbols, fullwidth forms and curly quotes.
func isCJKPunct(r rune) bool {
	switch {
	case r >= 0x3000 && r <= 0x303F:
		return true
	case r >= 0xFF00 && r <= 0xFFEF:
		return true
	case r == '“' || r == '”' || r == '‘' || r == '’':
		return true
	}
	return false
}

// Classify maps link to its platform family. Links to plain video files are
// accepted as FamilyDirect only when allowDirect is set.
func Classify(link string, allowDirect bool) (Family, bool) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	for _, entry := range familyHosts {
		for _, suffix := range entry.suffixes {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return entry.family, true
			}
		}
	}
	if allowDirect && directExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return FamilyDirect, true
	}
	return "", false
}

// language is the Accept-Language the extract API expects per family.
func (f Family) language() string {
	switch f {
	case FamilyDouyin, FamilyBilibili:
		return "zh"
	default:
		return "en"
	}
}

var handlePattern = regexp.MustCompile(`@[\w.]+`)

// authorFromTitle returns the first @handle in title.
func authorFromTitle(title string) string {
	return handlePattern.FindString(title)
}
