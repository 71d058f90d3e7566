package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

const listingHTML = `<html><body>
<a href="../">Parent</a>
<a href="talk.mp4">talk.mp4</a>
<a href="sub/">sub/</a>
<a href="talk.mp4">duplicate</a>
<a href="">empty</a>
<a name="anchor-only">no href</a>
</body></html>`

func newFileServer(t *testing.T) (*httptest.Server, *agentRecorder) {
	t.Helper()
	agents := &agentRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("/root/", func(w http.ResponseWriter, r *http.Request) {
		agents.add(r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/root/talk.mp4", func(w http.ResponseWriter, r *http.Request) {
		agents.add(r.UserAgent())
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1234")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/root/disc.iso", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(make([]byte, 64*1024))
	})
	mux.HandleFunc("/root/slow.mp4", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, agents
}

type agentRecorder struct {
	mu     sync.Mutex
	agents []string
}

func (a *agentRecorder) add(ua string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agents = append(a.agents, ua)
}

func (a *agentRecorder) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.agents) == 0 {
		return ""
	}
	return a.agents[len(a.agents)-1]
}

func TestProbeReportsStatusAndSize(t *testing.T) {
	t.Parallel()

	srv, agents := newFileServer(t)
	f := New(Config{UserAgent: "catalog-test/1.0", Timeout: time.Second})

	res, err := f.Probe(context.Background(), srv.URL+"/root/talk.mp4")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, res.Success())
	require.Equal(t, int64(1234), res.ContentLength)
	require.Equal(t, "catalog-test/1.0", agents.last())

	// repeat probes of the same URL must not be suppressed as revisits
	_, err = f.Probe(context.Background(), srv.URL+"/root/talk.mp4")
	require.NoError(t, err)
}

func TestProbeReportsNon2xxWithoutError(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: time.Second})

	res, err := f.Probe(context.Background(), srv.URL+"/nothing-here.mp4")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, "Not Found", res.Status)
	require.False(t, res.Success())
}

func TestProbeTimeout(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: 50 * time.Millisecond})

	_, err := f.Probe(context.Background(), srv.URL+"/root/slow.mp4")
	require.Error(t, err)
	require.True(t, errors.Is(err, catalog.ErrProbeTimeout), "got %v", err)
}

func TestProbeNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Probe(context.Background(), addr+"/gone.mp4")
	require.Error(t, err)
	require.False(t, errors.Is(err, catalog.ErrProbeTimeout))
}

func TestFetchListingExtractsLinks(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: time.Second})

	page, err := f.FetchListing(context.Background(), srv.URL+"/root/")
	require.NoError(t, err)
	require.True(t, page.HTML)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, []string{"../", "talk.mp4", "sub/"}, page.Links)
}

func TestFetchListingSkipsNonHTMLBodies(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: time.Second})

	page, err := f.FetchListing(context.Background(), srv.URL+"/root/disc.iso")
	require.NoError(t, err)
	require.False(t, page.HTML)
	require.Equal(t, "application/octet-stream", page.ContentType)
	require.Empty(t, page.Links)
}

func TestFetchListingNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: time.Second})

	page, err := f.FetchListing(context.Background(), srv.URL+"/missing/")
	require.NoError(t, err)
	require.False(t, page.HTML)
	require.Equal(t, http.StatusNotFound, page.StatusCode)
}

func TestFetchListingHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv, _ := newFileServer(t)
	f := New(Config{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchListing(ctx, srv.URL+"/root/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, isHTML("text/html"))
	require.True(t, isHTML("text/html; charset=utf-8"))
	require.True(t, isHTML("TEXT/HTML"))
	require.False(t, isHTML("application/xhtml+xml"))
	require.False(t, isHTML("video/mp4"))
	require.False(t, isHTML(""))
}
