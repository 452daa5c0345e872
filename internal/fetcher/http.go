package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/IshaanNene/museumfetch/internal/config"
	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/types"
)

// Client fetches page HTML from the Wikimedia REST content API.
//
// The access token and the governor are shared by every goroutine using the
// client. A 401/403 from any call discards the token; the next call
// re-authenticates.
type Client struct {
	httpClient *http.Client
	oauth      *clientcredentials.Config
	apiURL     string
	governor   *Governor
	dumper     *PageDumper
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a content API client. governor must be the process-wide
// instance; dumps are written only when cfg.Debug.KeepHTML is set.
func NewClient(cfg *config.Config, governor *Governor, metrics *observability.Metrics, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	httpClient := &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: cfg.Wikipedia.UserAgent},
		Timeout:   cfg.Wikipedia.RequestTimeout,
	}

	var dumper *PageDumper
	if cfg.Debug.KeepHTML {
		dumper = NewPageDumper(cfg.Debug.HTMLDir)
	}
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}

	return &Client{
		httpClient: httpClient,
		oauth: &clientcredentials.Config{
			ClientID:     cfg.Wikipedia.ClientID,
			ClientSecret: cfg.Wikipedia.ClientSecret,
			TokenURL:     cfg.Wikipedia.AuthURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		apiURL:   cfg.Wikipedia.APIURL,
		governor: governor,
		dumper:   dumper,
		metrics:  metrics,
		logger:   logger.With("component", "wikipedia_client"),
	}
}

// Authenticate obtains a fresh bearer token via the client-credentials grant
// and caches it for subsequent fetches.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Token(ctx)
	if err != nil {
		authErr := &types.AuthenticationError{URL: c.oauth.TokenURL, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return "", authErr
	}
	if tok.AccessToken == "" {
		return "", &types.AuthenticationError{URL: c.oauth.TokenURL, Err: types.ErrMissingToken}
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()

	c.metrics.AuthRefreshes.Add(1)
	c.logger.Debug("access token obtained", "expires", tok.Expiry)
	return tok.AccessToken, nil
}

// accessToken returns the cached token, authenticating lazily.
// Concurrent callers may both authenticate; the last token written wins.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != "" {
		return tok, nil
	}
	return c.authenticate(ctx)
}

// invalidate drops rejected unless another caller already replaced it.
func (c *Client) invalidate(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == rejected {
		c.token = ""
		c.metrics.TokenInvalidations.Add(1)
	}
}

// FetchPage implements PageFetcher.
//
// A 401/403 response clears the shared token and returns a FetchError
// wrapping types.ErrTokenRejected; the call itself is not retried.
// Cancelling ctx stops the call before dispatch, but a request already on
// the wire runs to completion or to the request timeout.
func (c *Client) FetchPage(ctx context.Context, title string) (string, error) {
	pageURL := c.PageURL(title)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	waited, err := c.governor.Wait(ctx)
	if err != nil {
		return "", err
	}
	if waited > 0 {
		c.metrics.GovernorWaits.Add(1)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		c.metrics.PagesFailed.Add(1)
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &types.FetchError{URL: pageURL, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "text/html; charset=utf-8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.metrics.PagesFailed.Add(1)
		return "", &types.FetchError{URL: pageURL, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		c.invalidate(token)
		c.metrics.PagesFailed.Add(1)
		c.logger.Warn("access token rejected, cleared for re-authentication",
			"title", title,
			"status", httpResp.StatusCode,
		)
		return "", &types.FetchError{URL: pageURL, StatusCode: httpResp.StatusCode, Err: types.ErrTokenRejected}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		c.metrics.PagesFailed.Add(1)
		return "", &types.FetchError{
			URL:        pageURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	reader, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		c.metrics.PagesFailed.Add(1)
		return "", &types.FetchError{URL: pageURL, StatusCode: httpResp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		c.metrics.PagesFailed.Add(1)
		return "", &types.FetchError{URL: pageURL, StatusCode: httpResp.StatusCode, Err: err}
	}

	c.metrics.PagesFetched.Add(1)
	c.metrics.BytesDownloaded.Add(int64(len(body)))
	c.logger.Debug("fetch complete",
		"title", title,
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	html := string(body)
	if c.dumper != nil {
		if err := c.dumper.Write(title, html); err != nil {
			c.logger.Warn("failed to keep page html", "title", title, "error", err)
		}
	}
	return html, nil
}

// PageURL returns the content endpoint for title.
func (c *Client) PageURL(title string) string {
	return strings.TrimRight(c.apiURL, "/") + "/page/html/" + url.PathEscape(title)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// userAgentTransport stamps every outgoing request, including token requests
// issued by the oauth2 package, with a descriptive User-Agent.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
