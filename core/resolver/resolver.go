// Package resolver normalizes submitted links and extracts the stable
// numeric content id, following short-link redirects when needed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"clipfm/logger"
)

var (
	ErrInvalidInput          = errors.New("invalid URL format")
	ErrUnsupportedSource     = errors.New("URL must be a TikTok link")
	ErrUnresolvableContentID = errors.New("could not find the video id in this link")
)

// contentIDRe matches the canonical numeric video id segment.
var contentIDRe = regexp.MustCompile(`/video/(\d+)`)

// allowedHosts is the source-site allow-list: the bare domain plus the two
// short-link subdomains. Checked after stripping a leading "www.".
var allowedHosts = map[string]bool{
	"tiktok.com":    true,
	"vm.tiktok.com": true,
	"vt.tiktok.com": true,
}

// Some CDN edges reject HEAD and bare clients outright, so redirects are
// followed with GET and a realistic mobile user agent.
const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

const (
	defaultMaxHops    = 10
	defaultHopTimeout = 15 * time.Second
)

// Resolved is a validated link with its extracted content id.
type Resolved struct {
	ResolvedURL string
	ContentID   string
}

// Resolver validates and resolves submitted links.
type Resolver struct {
	client     *http.Client
	maxHops    int
	hopTimeout time.Duration
}

// New creates a Resolver with production defaults.
func New() *Resolver {
	return NewWithClient(&http.Client{
		// Redirects are walked manually so each hop's Location can be
		// inspected and the body dropped without download cost.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, defaultMaxHops, defaultHopTimeout)
}

// NewWithClient creates a Resolver with an explicit client and bounds.
func NewWithClient(client *http.Client, maxHops int, hopTimeout time.Duration) *Resolver {
	return &Resolver{client: client, maxHops: maxHops, hopTimeout: hopTimeout}
}

// Resolve validates the raw link against the source allow-list, follows
// redirects until a numeric content id appears, and extracts it.
// Redirect failures are swallowed: resolution is best-effort and the
// original URL is retried for extraction.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolved, error) {
	trimmed := strings.TrimSpace(rawURL)

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, ErrInvalidInput
	}

	hostname := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if !allowedHosts[hostname] {
		return nil, ErrUnsupportedSource
	}

	resolved := trimmed
	if !contentIDRe.MatchString(resolved) {
		followed, err := r.followRedirects(ctx, resolved)
		if err != nil {
			logger.Warn("redirect resolution failed, retrying extraction on original URL",
				logger.String("url", trimmed),
				logger.ErrorField(err),
			)
			followed = trimmed
		}
		resolved = followed
	}

	match := contentIDRe.FindStringSubmatch(resolved)
	if match == nil {
		return nil, fmt.Errorf("%w (resolved to: %s)", ErrUnresolvableContentID, resolved)
	}

	return &Resolved{ResolvedURL: resolved, ContentID: match[1]}, nil
}

// followRedirects walks the redirect chain with GET requests, discarding
// response bodies, and returns the first non-redirect URL.
func (r *Resolver) followRedirects(ctx context.Context, startURL string) (string, error) {
	current := startURL
	for hop := 0; hop < r.maxHops; hop++ {
		hopCtx, cancel := context.WithTimeout(ctx, r.hopTimeout)
		req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, current, nil)
		if err != nil {
			cancel()
			return "", err
		}
		req.Header.Set("User-Agent", mobileUserAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			cancel()
			return "", err
		}
		// Only the Location header matters; disconnect without reading.
		resp.Body.Close()

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			cancel()
			return current, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			cancel()
			return current, nil
		}

		next, err := resp.Request.URL.Parse(location)
		cancel()
		if err != nil {
			return "", fmt.Errorf("bad redirect location %q: %w", location, err)
		}
		current = next.String()
	}
	return current, nil
}
