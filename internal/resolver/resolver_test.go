package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelscope/internal/services"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", "https://v.douyin.com/iRNBho6u/", "https://v.douyin.com/iRNBho6u/", true},
		{"share text", "7.43 复制打开抖音，看看【猫的作品】 https://v.douyin.com/iRNBho6u/ 复制此链接", "https://v.douyin.com/iRNBho6u/", true},
		{"trailing han", "看这个https://www.tiktok.com/@cat/video/123真好笑", "https://www.tiktok.com/@cat/video/123", true},
		{"trailing cjk punct", "链接：https://b23.tv/abc。", "https://b23.tv/abc", true},
		{"trailing ascii punct", "(see https://youtu.be/xyz).", "https://youtu.be/xyz", true},
		{"first wins", "http://x.com/a/status/1 https://youtu.be/b", "http://x.com/a/status/1", true},
		{"uppercase scheme", "HTTPS://www.instagram.com/reel/C1", "HTTPS://www.instagram.com/reel/C1", true},
		{"none", "no links here", "", false},
		{"scheme only", "https:// nothing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractURL(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ExtractURL(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		link   string
		direct bool
		want   Family
		ok     bool
	}{
		{"https://v.douyin.com/abc/", false, FamilyDouyin, true},
		{"https://www.iesdouyin.com/share/video/1", false, FamilyDouyin, true},
		{"https://vt.tiktok.com/ZS/", false, FamilyTikTok, true},
		{"https://youtu.be/x", false, FamilyYouTube, true},
		{"https://m.bilibili.com/video/BV1", false, FamilyBilibili, true},
		{"https://b23.tv/x", false, FamilyBilibili, true},
		{"https://fb.watch/x", false, FamilyFacebook, true},
		{"https://x.com/u/status/1", false, FamilyTwitter, true},
		{"https://www.instagram.com/reel/x", false, FamilyInstagram, true},
		{"https://notx.com/video.mp4", false, "", false},
		{"https://cdn.example.com/clip.MP4", true, FamilyDirect, true},
		{"https://cdn.example.com/page.html", true, "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.link, tt.direct)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Classify(%q, %v) = %q, %v; want %q, %v", tt.link, tt.direct, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFooterSignature(t *testing.T) {
	// md5("https://v.douyin.com/x/" + "zh" + "1700000000000" + "key")
	got := footer("https://v.douyin.com/x/", "zh", "1700000000000", "key")
	if len(got) != 32 || strings.ToLower(got) != got {
		t.Fatalf("unexpected footer %q", got)
	}
	if footer("a", "zh", "1", "k") == footer("a", "en", "1", "k") {
		t.Fatal("footer should depend on language")
	}
}

func TestExtractClientLookup(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": "funny cat @cat.lover #pets",
			"medias": []any{
				map[string]any{"media_type": "image", "resource_url": "https://img/1.jpg"},
				map[string]any{
					"media_type":   "video",
					"resource_url": "https://cdn/low.mp4",
					"preview_url":  "https://cdn/cover.jpg",
					"formats": []any{
						map[string]any{"quality": 360, "video_url": "https://cdn/360.mp4"},
						map[string]any{"quality": 1080, "video_url": "https://cdn/1080.mp4"},
						map[string]any{"quality": 720, "video_url": "https://cdn/720.mp4"},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewExtractClient(server.URL, "secret", "test-agent")
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }
	res, err := client.Lookup(context.Background(), "https://v.douyin.com/x/", FamilyDouyin)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.MediaLocator != "https://cdn/1080.mp4" {
		t.Fatalf("expected highest quality format, got %q", res.MediaLocator)
	}
	if res.Metadata.Author != "@cat.lover" || res.Metadata.Title != "funny cat @cat.lover #pets" {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
	if gotBody["link"] != "https://v.douyin.com/x/" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if gotHeaders.Get("Accept-Language") != "zh" || gotHeaders.Get("G-Timestamp") != "1700000000000" {
		t.Fatalf("unexpected headers %v", gotHeaders)
	}
	if gotHeaders.Get("G-Footer") != footer("https://v.douyin.com/x/", "zh", "1700000000000", "secret") {
		t.Fatalf("unexpected footer %q", gotHeaders.Get("G-Footer"))
	}
}

func TestExtractClientFallsBackToAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"track","medias":[{"media_type":"audio","resource_url":"https://cdn/a.m4a"}]}`))
	}))
	defer server.Close()

	res, err := NewExtractClient(server.URL, "k", "").Lookup(context.Background(), "https://youtu.be/x", FamilyYouTube)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.MediaLocator != "https://cdn/a.m4a" || res.Metadata.Author != "" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestExtractClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"video not found"}`))
	}))
	defer server.Close()

	_, err := NewExtractClient(server.URL, "k", "").Lookup(context.Background(), "https://youtu.be/x", FamilyYouTube)
	if err == nil || !strings.Contains(err.Error(), "video not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestExtractClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"medias":[{"media_type":"video","resource_url":"https://cdn/v.mp4"}]}`))
	}))
	defer server.Close()

	client := NewExtractClient(server.URL, "k", "", WithExtractRetry(3, time.Millisecond, 0))
	res, err := client.Lookup(context.Background(), "https://youtu.be/x", FamilyYouTube)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.MediaLocator != "https://cdn/v.mp4" || calls.Load() != 3 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls.Load())
	}
}

func TestExtractClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewExtractClient(server.URL, "k", "", WithExtractRetry(3, time.Millisecond, 0))
	if _, err := client.Lookup(context.Background(), "https://youtu.be/x", FamilyYouTube); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

const routerPage = `<html><script>window._ROUTER_DATA = {"loaderData":{"video_(id)/page":{"videoInfoRes":{"item_list":[{"desc":"猫猫 #cat","aweme_id":"7331","author":{"nickname":"CatMom"},"video":{"duration":15400,"play_addr":{"url_list":["https://aweme.snssdk.com/aweme/v1/playwm/?video_id=v0"]}}}]}}}}</script></html>`

func TestDouyinPageFollowsShareLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/video/7331/?from=share", http.StatusFound)
	})
	mux.HandleFunc("/video/7331/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>app shell</html>"))
	})
	mux.HandleFunc("/share/video/7331", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "iPhone") {
			t.Errorf("expected mobile user agent, got %q", r.UserAgent())
		}
		_, _ = w.Write([]byte(routerPage))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page := NewDouyinPage("Mozilla/5.0 (iPhone)", WithShareBase(server.URL+"/share/video/"))
	res, err := page.FetchPage(context.Background(), server.URL+"/short/abc")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if res.MediaLocator != "https://aweme.snssdk.com/aweme/v1/play/?video_id=v0" {
		t.Fatalf("expected clean play address, got %q", res.MediaLocator)
	}
	md := res.Metadata
	if md.Title != "猫猫 #cat" || md.VideoID != "7331" || md.Author != "CatMom" || md.DurationSeconds != 15.4 {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestDouyinPageWithoutRouterData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	if _, err := NewDouyinPage("ua").FetchPage(context.Background(), server.URL+"/nothing"); err == nil {
		t.Fatal("expected error")
	}
}

type fakeLookup struct {
	res   Resolution
	err   error
	calls int
}

func (f *fakeLookup) Lookup(context.Context, string, Family) (Resolution, error) {
	f.calls++
	return f.res, f.err
}

type fakePage struct {
	res   Resolution
	err   error
	calls int
}

func (f *fakePage) FetchPage(context.Context, string) (Resolution, error) {
	f.calls++
	return f.res, f.err
}

func TestResolveNoLink(t *testing.T) {
	_, err := New(nil, nil).Resolve(context.Background(), "just some words")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Reason != ReasonNoLink {
		t.Fatalf("expected no link error, got %v", err)
	}
	if services.Code(err) != services.CodeParseError {
		t.Fatalf("expected PARSE_ERROR, got %s", services.Code(err))
	}
}

func TestResolveUnsupported(t *testing.T) {
	lookup := &fakeLookup{}
	_, err := New(nil, nil, WithLookup(lookup)).Resolve(context.Background(), "https://example.com/watch")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Reason != ReasonUnsupported {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if lookup.calls != 0 {
		t.Fatal("lookup should not be called for unsupported links")
	}
}

func TestResolveDirect(t *testing.T) {
	res, err := New(nil, nil, WithAllowDirect(true)).Resolve(context.Background(), "grab https://cdn.example.com/a/clip.mp4 please")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Family != FamilyDirect || res.MediaLocator != "https://cdn.example.com/a/clip.mp4" || res.Metadata.Title != "clip" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolveUsesLookup(t *testing.T) {
	lookup := &fakeLookup{res: Resolution{MediaLocator: "https://cdn/v.mp4"}}
	page := &fakePage{}
	res, err := New(nil, nil, WithLookup(lookup), WithPageFetcher(page)).Resolve(context.Background(), "https://v.douyin.com/x/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.MediaLocator != "https://cdn/v.mp4" || page.calls != 0 {
		t.Fatalf("unexpected resolution %+v (page calls %d)", res, page.calls)
	}
}

func TestResolveFallsBackToPageForDouyin(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("extract api: quota")}
	page := &fakePage{res: Resolution{MediaLocator: "https://aweme/play/"}}
	res, err := New(nil, nil, WithLookup(lookup), WithPageFetcher(page)).Resolve(context.Background(), "https://v.douyin.com/x/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.MediaLocator != "https://aweme/play/" || page.calls != 1 {
		t.Fatalf("expected page fallback, got %+v", res)
	}
}

func TestResolveNoFallbackForOtherFamilies(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("boom")}
	page := &fakePage{res: Resolution{MediaLocator: "https://aweme/play/"}}
	_, err := New(nil, nil, WithLookup(lookup), WithPageFetcher(page)).Resolve(context.Background(), "https://youtu.be/x")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Reason != ReasonLookupFailed {
		t.Fatalf("expected lookup failed, got %v", err)
	}
	if page.calls != 0 {
		t.Fatal("page fallback is douyin only")
	}
}

func TestResolveBothCollaboratorsFail(t *testing.T) {
	lookupErr := errors.New("lookup down")
	pageErr := errors.New("page blocked")
	_, err := New(nil, nil, WithLookup(&fakeLookup{err: lookupErr}), WithPageFetcher(&fakePage{err: pageErr})).
		Resolve(context.Background(), "https://v.douyin.com/x/")
	if !errors.Is(err, lookupErr) || !errors.Is(err, pageErr) {
		t.Fatalf("expected both causes, got %v", err)
	}
}
