package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func wikiServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "query", r.URL.Query().Get("action"))
		assert.Equal(t, "extracts", r.URL.Query().Get("prop"))
		title := r.URL.Query().Get("titles")
		switch title {
		case "洛天依":
			fmt.Fprint(w, `{"query":{"pages":{"1":{"title":"洛天依","extract":"洛天依是虚拟歌手。"}}}}`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"query":{"pages":{"-1":{"title":"`+title+`","missing":{}}}}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDescription(t *testing.T) {
	var hits atomic.Int32
	srv := wikiServer(t, &hits)
	f := NewWikiFetcher(WikiOptions{BaseURL: srv.URL}, testLogger())

	desc, err := f.FetchDescription(context.Background(), "洛天依")
	require.NoError(t, err)
	assert.Equal(t, "洛天依是虚拟歌手。", desc)
}

func TestFetchDescription_CachesHits(t *testing.T) {
	var hits atomic.Int32
	srv := wikiServer(t, &hits)
	f := NewWikiFetcher(WikiOptions{BaseURL: srv.URL}, testLogger())

	for i := 0; i < 3; i++ {
		_, err := f.FetchDescription(context.Background(), "洛天依")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchDescription_CachesMisses(t *testing.T) {
	var hits atomic.Int32
	srv := wikiServer(t, &hits)
	f := NewWikiFetcher(WikiOptions{BaseURL: srv.URL}, testLogger())

	for i := 0; i < 3; i++ {
		_, err := f.FetchDescription(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchDescription_ServerErrorNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := wikiServer(t, &hits)
	f := NewWikiFetcher(WikiOptions{BaseURL: srv.URL}, testLogger())

	_, err := f.FetchDescription(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = f.FetchDescription(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDescription_EmptyName(t *testing.T) {
	var hits atomic.Int32
	srv := wikiServer(t, &hits)
	f := NewWikiFetcher(WikiOptions{BaseURL: srv.URL}, testLogger())

	_, err := f.FetchDescription(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, hits.Load())
}
