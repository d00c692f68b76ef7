package adapter

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html"
)

var ErrDisallowedByRobots = goerr.New("URL is disallowed by robots.txt")

const (
	defaultUserAgent = "recall-agent/1.0"
	maxBodySize      = 4 << 20
)

// Page is the text content extracted from a fetched URL
type Page struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
}

// Fetcher downloads a web page and returns its readable text
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type httpFetcher struct {
	client      *http.Client
	userAgent   string
	checkRobots bool

	robotsMu    sync.Mutex
	robotsCache map[string]*robotstxt.RobotsData
}

type FetcherOption func(*httpFetcher)

func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *httpFetcher) {
		f.client = client
	}
}

func WithUserAgent(userAgent string) FetcherOption {
	return func(f *httpFetcher) {
		f.userAgent = userAgent
	}
}

// WithoutRobots skips the robots.txt check
func WithoutRobots() FetcherOption {
	return func(f *httpFetcher) {
		f.checkRobots = false
	}
}

func NewFetcher(opts ...FetcherOption) Fetcher {
	f := &httpFetcher{
		client:      &http.Client{Timeout: 30 * time.Second},
		userAgent:   defaultUserAgent,
		checkRobots: true,
		robotsCache: make(map[string]*robotstxt.RobotsData),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *httpFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse URL", goerr.V("url", rawURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, goerr.New("unsupported URL scheme", goerr.V("url", rawURL), goerr.V("scheme", u.Scheme))
	}
	if u.Host == "" {
		return nil, goerr.New("URL has no host", goerr.V("url", rawURL))
	}

	if f.checkRobots && !f.allowed(ctx, u) {
		return nil, goerr.Wrap(ErrDisallowedByRobots, "fetch refused", goerr.V("url", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", rawURL))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", rawURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status code",
			goerr.V("url", rawURL),
			goerr.V("status", resp.StatusCode))
	}

	page := &Page{URL: rawURL, StatusCode: resp.StatusCode}
	body := io.LimitReader(resp.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" || strings.Contains(mediaType, "html") {
		if err := extractHTML(body, page); err != nil {
			return nil, goerr.Wrap(err, "failed to parse HTML", goerr.V("url", rawURL))
		}
		return page, nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("url", rawURL))
	}
	page.Text = cleanText(string(raw))
	return page, nil
}

// allowed reports whether robots.txt of the host permits fetching u. A
// robots.txt that cannot be fetched permits everything.
func (f *httpFetcher) allowed(ctx context.Context, u *url.URL) bool {
	origin := u.Scheme + "://" + u.Host

	f.robotsMu.Lock()
	data, ok := f.robotsCache[origin]
	f.robotsMu.Unlock()

	if !ok {
		data = f.fetchRobots(ctx, origin)
		f.robotsMu.Lock()
		f.robotsCache[origin] = data
		f.robotsMu.Unlock()
	}
	if data == nil {
		return true
	}

	return data.TestAgent(u.RequestURI(), f.userAgent)
}

func (f *httpFetcher) fetchRobots(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

// extractHTML collects visible text and the title, skipping script and style
func extractHTML(body io.Reader, page *Page) error {
	tokenizer := html.NewTokenizer(body)
	var sb strings.Builder
	var inScript, inStyle, inTitle bool

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				page.Text = cleanText(sb.String())
				return nil
			}
			return tokenizer.Err()

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script":
				inScript = true
			case "style", "noscript":
				inStyle = true
			case "title":
				inTitle = true
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script":
				inScript = false
			case "style", "noscript":
				inStyle = false
			case "title":
				inTitle = false
			}

		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				page.Title = text
				continue
			}
			if !inScript && !inStyle {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
