// Package subscriptions implements the upstream-feed worker: a registry
// of followed channels and streams, a throttled polling sweep, and
// serialized per-channel posting.
package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/vesperbot/vesper/vesper/errs"
)

const (
	fetchTimeout  = 30 * time.Second
	fetchAttempts = 2
	fetchBackoff  = 2 * time.Second

	maxBodyBytes = 4 << 20
)

// Fetcher wraps HTTP access to upstream sources with the standard
// timeout and retry policy. Fetches are idempotent so a failed attempt
// retries once with linear backoff.
type Fetcher struct {
	client *http.Client

	// renderFallback, when true, retries text fetches through a
	// headless browser when static HTML lacks the wanted markup.
	renderFallback bool
}

func NewFetcher(renderFallback bool) *Fetcher {
	return &Fetcher{
		client:         &http.Client{Timeout: fetchTimeout},
		renderFallback: renderFallback,
	}
}

func (f *Fetcher) do(ctx context.Context, req *http.Request) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * fetchBackoff):
			}
		}
		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("%s: status %d", req.URL.Host, resp.StatusCode)
			if resp.StatusCode < 500 {
				break
			}
			continue
		}
		return body, nil
	}
	return nil, errs.Wrap(errs.Upstream, "fetch "+req.URL.Host, lastErr)
}

// Text fetches a page as text.
func (f *Fetcher) Text(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "bad url", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; vesper/1.0)")
	body, err := f.do(ctx, req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// JSON fetches a URL and decodes the response into out.
func (f *Fetcher) JSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "bad url", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	body, err := f.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.Upstream, "decode response", err)
	}
	return nil
}

// PostForm sends a form-encoded POST and decodes the JSON response.
// Used for the livestream token exchange.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "bad url", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := f.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.Upstream, "decode response", err)
	}
	return nil
}

// Rendered fetches a page through a headless browser, for channel pages
// that only emit their canonical markup after scripts run.
func (f *Fetcher) Rendered(ctx context.Context, rawURL string) (string, error) {
	if !f.renderFallback {
		return "", errs.New(errs.Upstream, "rendered fetch disabled")
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, fetchTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", errs.Wrap(errs.Upstream, "rendered fetch", err)
	}
	return html, nil
}

// TextWithFallback fetches a page statically and, when the probe regexp
// finds nothing, retries through the headless browser.
func (f *Fetcher) TextWithFallback(ctx context.Context, rawURL string, probe *regexp.Regexp) (string, error) {
	html, err := f.Text(ctx, rawURL)
	if err == nil && probe.MatchString(html) {
		return html, nil
	}
	if !f.renderFallback {
		return html, err
	}
	slog.Debug("Static fetch missed probe, rendering page",
		slog.String("type", "feed"),
		slog.String("url", rawURL))
	return f.Rendered(ctx, rawURL)
}

var ogImageRe = regexp.MustCompile(`<meta\s+property="og:image"\s+content="([^"]+)"`)

// OGImage extracts the og:image URL from page HTML, or "".
func OGImage(html string) string {
	if m := ogImageRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}
