package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/snappy"

	apperrors "calrecon/internal/errors"
	appLog "calrecon/internal/log"
)

const (
	defaultFetchTimeout = 15 * time.Second
	dialTimeout         = 10 * time.Second
	maxFeedBody         = 10 << 20
)

var errNonPublicAddress = errors.New("feed resolves to a non-public address")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// FetchResult is the outcome of fetching one calendar feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // body reused after 304 or a failed refresh
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads calendar feeds with conditional requests, keeping the
// last good body per URL on disk.
type Fetcher struct {
	client       *http.Client
	cacheDir     string
	allowPrivate bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchClient replaces the HTTP client. The address guard applies only
// to the default client.
func WithFetchClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = hc }
}

// WithPrivateNetworks lets the default client reach loopback, private and
// link-local addresses. Only for deployments where every caller is trusted.
func WithPrivateNetworks() FetcherOption {
	return func(f *Fetcher) { f.allowPrivate = true }
}

// NewFetcher returns a Fetcher caching under cacheDir. By default it
// refuses to connect to anything but public unicast addresses.
func NewFetcher(cacheDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{cacheDir: cacheDir}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = newFeedClient(f.allowPrivate)
	}
	return f
}

// newFeedClient builds the default client. The address check runs in the
// dialer's Control hook, after DNS resolution, so a hostname cannot be used
// to reach an internal address. Proxies are disabled because the hook
// would only see the proxy.
func newFeedClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: dialTimeout}
	if !allowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !isPublicAddr(ip) {
				return fmt.Errorf("%w: %s", errNonPublicAddress, ip)
			}
			return nil
		}
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	return &http.Client{Timeout: defaultFetchTimeout, Transport: tr}
}

// isPublicAddr reports whether ip is a globally routable unicast address.
func isPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !sharedAddressSpace.Contains(ip)
}

// Fetch retrieves rawURL, honoring ETag and Last-Modified. When the origin
// is unreachable or answers with an error, a previously cached body is
// returned instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FetchResult{}, apperrors.NewValidation(apperrors.CodeInvalidCalendar, "calendar url must be an absolute http(s) url")
	}

	dir := f.cachePath(rawURL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FetchResult{}, apperrors.NewInternal("create ics cache dir", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := loadBody(dir)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, apperrors.NewInternal("build feed request", err)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	fallback := func(cause error) (FetchResult, error) {
		if len(cached) > 0 {
			appLog.Warn("ics fetch failed, using cached body", "url", redactURL(rawURL), "error", cause.Error())
			return FetchResult{URL: rawURL, Body: cached, FromCache: true}, nil
		}
		return FetchResult{}, apperrors.Wrap(apperrors.CategoryValidation, apperrors.CodeInvalidCalendar, "calendar feed unavailable", cause)
	}

	appLog.Debug("ics fetch start", "url", redactURL(rawURL))
	resp, err := f.client.Do(req)
	if errors.Is(err, errNonPublicAddress) {
		appLog.Warn("ics fetch refused", "url", redactURL(rawURL), "error", err.Error())
		return FetchResult{}, apperrors.NewValidation(apperrors.CodeInvalidCalendar, "calendar url must resolve to a public address")
	}
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
		if err != nil {
			return fallback(err)
		}
		next := cacheMeta{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("ics cache save failed", err, "url", redactURL(rawURL))
		}
		appLog.Info("ics fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return FetchResult{URL: rawURL, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, apperrors.NewValidation(apperrors.CodeInvalidCalendar, "feed answered 304 but nothing is cached")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(rawURL))
		return FetchResult{URL: rawURL, Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

// loadBody returns the cached feed body, stored snappy-compressed.
func loadBody(dir string) ([]byte, error) {
	compressed, err := os.ReadFile(filepath.Join(dir, "body.ics.sz"))
	if err != nil {
		return nil, err
	}
	return snappy.Decode(nil, compressed)
}

// saveCache writes the body before the metadata so meta never points at a
// missing body.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics.sz"), snappy.Encode(nil, body), 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed paths often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

