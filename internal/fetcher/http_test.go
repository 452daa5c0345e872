package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/museumfetch/internal/config"
	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type wikiServer struct {
	tokenCalls atomic.Int32
	pageCalls  atomic.Int32
	tokenFn    func(w http.ResponseWriter, r *http.Request, n int32)
	pageFn     func(w http.ResponseWriter, r *http.Request, n int32)
}

func newWikiServer(t *testing.T, ws *wikiServer) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		n := ws.tokenCalls.Add(1)
		if ws.tokenFn != nil {
			ws.tokenFn(w, r, n)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":14400}`, n)
	})
	mux.HandleFunc("/api/page/html/", func(w http.ResponseWriter, r *http.Request) {
		n := ws.pageCalls.Add(1)
		ws.pageFn(w, r, n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClientConfig(srv *httptest.Server) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Wikipedia.APIURL = srv.URL + "/api/"
	cfg.Wikipedia.AuthURL = srv.URL + "/oauth2/access_token"
	cfg.Wikipedia.ClientID = "id"
	cfg.Wikipedia.ClientSecret = "secret"
	cfg.Wikipedia.RequestTimeout = 5 * time.Second
	return cfg
}

func newTestClient(cfg *config.Config) (*Client, *observability.Metrics) {
	metrics := observability.NewMetrics(testLogger())
	return NewClient(cfg, NewGovernor(100, time.Second), metrics, testLogger()), metrics
}

func TestClientFetchPage(t *testing.T) {
	var gotAuth, gotUA, gotPath string
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, r *http.Request, _ int32) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Louvre</body></html>")
	}}
	srv := newWikiServer(t, ws)
	client, metrics := newTestClient(testClientConfig(srv))

	html, err := client.FetchPage(context.Background(), "Louvre")
	require.NoError(t, err)

	assert.Contains(t, html, "Louvre")
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Contains(t, gotUA, "MuseumAttendanceDataFetcher/")
	assert.Equal(t, "/api/page/html/Louvre", gotPath)
	assert.Equal(t, int64(1), metrics.PagesFetched.Load())
	assert.Equal(t, int64(1), metrics.AuthRefreshes.Load())
}

func TestClientReusesToken(t *testing.T) {
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		fmt.Fprint(w, "<html></html>")
	}}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	for i := 0; i < 3; i++ {
		_, err := client.FetchPage(context.Background(), "Page")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), ws.tokenCalls.Load())
	assert.Equal(t, int32(3), ws.pageCalls.Load())
}

func TestClientEscapesTitle(t *testing.T) {
	var gotPath string
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, r *http.Request, _ int32) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprint(w, "<html></html>")
	}}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	_, err := client.FetchPage(context.Background(), "Musée_Rodin")
	require.NoError(t, err)
	assert.Equal(t, "/api/page/html/Mus%C3%A9e_Rodin", gotPath)
}

func TestClientAuthenticationRejected(t *testing.T) {
	ws := &wikiServer{
		tokenFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
		},
		pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
			fmt.Fprint(w, "<html></html>")
		},
	}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	err := client.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *types.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	_, err = client.FetchPage(context.Background(), "Louvre")
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, ws.pageCalls.Load(), "no page request without a token")
}

func TestClientTokenResponseMissingAccessToken(t *testing.T) {
	ws := &wikiServer{
		tokenFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"token_type":"Bearer"}`)
		},
		pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {},
	}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	var authErr *types.AuthenticationError
	assert.ErrorAs(t, client.Authenticate(context.Background()), &authErr)
}

func TestClientTokenResponseMalformed(t *testing.T) {
	ws := &wikiServer{
		tokenFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{not json`)
		},
		pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {},
	}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	var authErr *types.AuthenticationError
	assert.ErrorAs(t, client.Authenticate(context.Background()), &authErr)
}

func TestClientSendsCredentialsInBody(t *testing.T) {
	var gotID, gotSecret, gotGrant string
	ws := &wikiServer{
		tokenFn: func(w http.ResponseWriter, r *http.Request, _ int32) {
			require.NoError(t, r.ParseForm())
			gotID = r.PostForm.Get("client_id")
			gotSecret = r.PostForm.Get("client_secret")
			gotGrant = r.PostForm.Get("grant_type")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"abc","token_type":"Bearer"}`)
		},
		pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {},
	}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, "id", gotID)
	assert.Equal(t, "secret", gotSecret)
	assert.Equal(t, "client_credentials", gotGrant)
}

func TestClientTokenRejectedThenReauthenticates(t *testing.T) {
	var bearers []string
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, r *http.Request, n int32) {
		bearers = append(bearers, r.Header.Get("Authorization"))
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "<html>ok</html>")
	}}
	srv := newWikiServer(t, ws)
	client, metrics := newTestClient(testClientConfig(srv))

	_, err := client.FetchPage(context.Background(), "Louvre")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTokenRejected)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.IsAuthFailure())
	assert.Equal(t, int64(1), metrics.TokenInvalidations.Load())

	html, err := client.FetchPage(context.Background(), "Louvre")
	require.NoError(t, err)
	assert.Contains(t, html, "ok")

	assert.Equal(t, int32(2), ws.tokenCalls.Load())
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, bearers)
}

func TestClientForbiddenIsNotRetried(t *testing.T) {
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusForbidden)
	}}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	_, err := client.FetchPage(context.Background(), "Louvre")
	assert.ErrorIs(t, err, types.ErrTokenRejected)
	assert.Equal(t, int32(1), ws.pageCalls.Load())
}

func TestClientServerError(t *testing.T) {
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}}
	srv := newWikiServer(t, ws)
	client, metrics := newTestClient(testClientConfig(srv))

	_, err := client.FetchPage(context.Background(), "Louvre")
	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.False(t, fetchErr.IsAuthFailure())
	assert.False(t, errors.Is(err, types.ErrTokenRejected))
	assert.Equal(t, int64(1), metrics.PagesFailed.Load())
}

func TestClientCancelledContext(t *testing.T) {
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		fmt.Fprint(w, "<html></html>")
	}}
	srv := newWikiServer(t, ws)
	client, _ := newTestClient(testClientConfig(srv))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchPage(ctx, "Louvre")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ws.pageCalls.Load())
	assert.Zero(t, ws.tokenCalls.Load())
}

func TestClientDecompressesBody(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		encode   func(t *testing.T, body []byte) []byte
	}{
		{"gzip", "gzip", func(t *testing.T, body []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, err := zw.Write(body)
			require.NoError(t, err)
			require.NoError(t, zw.Close())
			return buf.Bytes()
		}},
		{"brotli", "br", func(t *testing.T, body []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			_, err := bw.Write(body)
			require.NoError(t, err)
			require.NoError(t, bw.Close())
			return buf.Bytes()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := tt.encode(t, []byte("<html>compressed</html>"))
			ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.Header().Set("Content-Encoding", tt.encoding)
				w.Write(payload)
			}}
			srv := newWikiServer(t, ws)
			client, _ := newTestClient(testClientConfig(srv))

			html, err := client.FetchPage(context.Background(), "Page")
			require.NoError(t, err)
			assert.Equal(t, "<html>compressed</html>", html)
		})
	}
}

func TestClientKeepsPageHTML(t *testing.T) {
	ws := &wikiServer{pageFn: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		fmt.Fprint(w, "<html>kept</html>")
	}}
	srv := newWikiServer(t, ws)

	cfg := testClientConfig(srv)
	cfg.Debug.KeepHTML = true
	cfg.Debug.HTMLDir = filepath.Join(t.TempDir(), "assets")
	client, _ := newTestClient(cfg)

	_, err := client.FetchPage(context.Background(), "Louvre")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Debug.HTMLDir, "Louvre.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>kept</html>", string(data))
}
