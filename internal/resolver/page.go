package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	defaultShareBase = "https://www.iesdouyin.com/share/video/"
	maxPageBytes     = 8 << 20
)

var (
	routerDataPattern = regexp.MustCompile(`(?s)window\._ROUTER_DATA\s*=\s*(\{.*?\})\s*</script>`)
	videoIDPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`/video/(\d+)`),
		regexp.MustCompile(`/note/(\d+)`),
		regexp.MustCompile(`/(\d+)/?$`),
	}
)

// DouyinPage scrapes the Douyin mobile share page for a play address.
type DouyinPage struct {
	httpClient *http.Client
	userAgent  string
	shareBase  string
}

// PageOption customizes a DouyinPage.
type PageOption func(*DouyinPage)

// WithPageHTTPClient overrides the HTTP client.
func WithPageHTTPClient(client *http.Client) PageOption {
	return func(p *DouyinPage) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithShareBase overrides the share page prefix the video id is appended to.
func WithShareBase(base string) PageOption {
	return func(p *DouyinPage) {
		if base != "" {
			p.shareBase = base
		}
	}
}

// NewDouyinPage constructs a scraper that presents userAgent.
func NewDouyinPage(userAgent string, opts ...PageOption) *DouyinPage {
	p := &DouyinPage{httpClient: &http.Client{}, userAgent: userAgent, shareBase: defaultShareBase}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type routerData struct {
	LoaderData map[string]json.RawMessage `json:"loaderData"`
}

type douyinPageData struct {
	VideoInfoRes *struct {
		ItemList []douyinItem `json:"item_list"`
	} `json:"videoInfoRes"`
}

type douyinItem struct {
	Desc    string `json:"desc"`
	AwemeID string `json:"aweme_id"`
	Author  struct {
		Nickname string `json:"nickname"`
	} `json:"author"`
	Video struct {
		Duration float64 `json:"duration"`
		PlayAddr struct {
			URLList []string `json:"url_list"`
		} `json:"play_addr"`
	} `json:"video"`
}

// FetchPage follows shareURL to its canonical page and reads the embedded
// router data. When the landing page lacks it, the share page for the
// extracted video id is fetched instead.
func (p *DouyinPage) FetchPage(ctx context.Context, shareURL string) (Resolution, error) {
	body, finalURL, err := p.get(ctx, shareURL)
	if err != nil {
		return Resolution{}, err
	}
	videoID := douyinVideoID(finalURL)

	item, err := parseRouterData(body)
	if err != nil {
		if videoID == "" {
			return Resolution{}, fmt.Errorf("no video id in %s", finalURL)
		}
		body, _, err = p.get(ctx, p.shareBase+videoID)
		if err != nil {
			return Resolution{}, err
		}
		if item, err = parseRouterData(body); err != nil {
			return Resolution{}, err
		}
	}

	if len(item.Video.PlayAddr.URLList) == 0 || item.Video.PlayAddr.URLList[0] == "" {
		return Resolution{}, errors.New("share page has no play address")
	}
	if item.AwemeID != "" {
		videoID = item.AwemeID
	}
	title := strings.TrimSpace(item.Desc)
	if title == "" {
		title = "douyin_" + firstNonEmpty(videoID, "video")
	}
	duration := item.Video.Duration
	if duration > 1000 {
		duration /= 1000
	}
	return Resolution{
		MediaLocator: strings.Replace(item.Video.PlayAddr.URLList[0], "playwm", "play", 1),
		ShareURL:     shareURL,
		Family:       FamilyDouyin,
		Metadata: Metadata{
			Title:           title,
			Author:          item.Author.Nickname,
			VideoID:         videoID,
			DurationSeconds: duration,
		},
	}, nil
}

func (p *DouyinPage) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &statusError{Endpoint: "share page", StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read share page: %w", err)
	}
	return body, resp.Request.URL.String(), nil
}

func parseRouterData(page []byte) (douyinItem, error) {
	match := routerDataPattern.FindSubmatch(page)
	if match == nil {
		return douyinItem{}, errors.New("share page has no router data")
	}
	var data routerData
	if err := json.Unmarshal(match[1], &data); err != nil {
		return douyinItem{}, fmt.Errorf("decode router data: %w", err)
	}
	for _, key := range []string{"video_(id)/page", "note_(id)/page"} {
		raw, ok := data.LoaderData[key]
		if !ok {
			continue
		}
		var pageData douyinPageData
		if err := json.Unmarshal(raw, &pageData); err != nil {
			return douyinItem{}, fmt.Errorf("decode %s: %w", key, err)
		}
		if pageData.VideoInfoRes != nil && len(pageData.VideoInfoRes.ItemList) > 0 {
			return pageData.VideoInfoRes.ItemList[0], nil
		}
	}
	return douyinItem{}, errors.New("router data has no video item")
}

func douyinVideoID(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(parsed.Path); m != nil {
			return m[1]
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
