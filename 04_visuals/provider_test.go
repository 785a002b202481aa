package visuals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

func TestBestPortrait(t *testing.T) {
	tests := []struct {
		name   string
		in     []Rendition
		want   string
		wantOK bool
	}{
		{
			name: "tallest portrait wins",
			in: []Rendition{
				{URL: "sd", Width: 540, Height: 960},
				{URL: "hd", Width: 1080, Height: 1920},
				{URL: "land", Width: 3840, Height: 2160},
			},
			want: "hd", wantOK: true,
		},
		{
			name:   "square counts as portrait",
			in:     []Rendition{{URL: "sq", Width: 720, Height: 720}},
			want:   "sq",
			wantOK: true,
		},
		{
			name: "landscape only",
			in:   []Rendition{{URL: "land", Width: 1920, Height: 1080}},
		},
		{
			name: "missing url or size ignored",
			in:   []Rendition{{URL: "", Width: 1080, Height: 1920}, {URL: "zero"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BestPortrait(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.URL)
		})
	}
}

func TestPexelsClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pexels-key", r.Header.Get("Authorization"))
		assert.Equal(t, "ocean waves", r.URL.Query().Get("query"))
		assert.Equal(t, "portrait", r.URL.Query().Get("orientation"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"videos":[{"id":42,"video_files":[
			{"link":"https://cdn/a.mp4","width":1080,"height":1920},
			{"link":"https://cdn/b.mp4","width":540,"height":960}]}]}`))
	}))
	defer srv.Close()

	c := NewPexelsClient("pexels-key", 5, time.Second)
	c.baseURL = srv.URL

	hits, err := c.Search(context.Background(), "ocean waves")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "42", hits[0].ID)
	assert.Len(t, hits[0].Renditions, 2)
	assert.Equal(t, types.ProviderPexels, c.Name())
}

func TestPexelsClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPexelsClient("k", 5, time.Second)
	c.baseURL = srv.URL

	_, err := c.Search(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestPixabayClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "pix-key", q.Get("key"))
		assert.Equal(t, "forest abstract cinematic", q.Get("q"))
		assert.Equal(t, "vertical", q.Get("orientation"))
		assert.Equal(t, "3", q.Get("per_page"))
		_, _ = w.Write([]byte(`{"hits":[{"id":7,"videos":{
			"small":{"url":"https://cdn/s.mp4","width":360,"height":640},
			"large":{"url":"https://cdn/l.mp4","width":1080,"height":1920}}}]}`))
	}))
	defer srv.Close()

	c := NewPixabayClient("pix-key", 1, time.Second)
	c.baseURL = srv.URL

	hits, err := c.Search(context.Background(), "forest")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "7", hits[0].ID)
	// sorted by size name
	assert.Equal(t, "https://cdn/l.mp4", hits[0].Renditions[0].URL)
	assert.Equal(t, "https://cdn/s.mp4", hits[0].Renditions[1].URL)
}

func TestNewProviders_OnlyConfiguredKeys(t *testing.T) {
	cfg := config.Default()
	assert.Empty(t, NewProviders(cfg))

	cfg.Secrets.PixabayAPIKey = "k"
	ps := NewProviders(cfg)
	require.Len(t, ps, 1)
	assert.Equal(t, types.ProviderPixabay, ps[0].Name())

	cfg.Secrets.PexelsAPIKey = "k"
	assert.Len(t, NewProviders(cfg), 2)
}

func TestRateLimited(t *testing.T) {
	inner := &fakeProvider{name: types.ProviderPexels, hits: []Hit{{ID: "1"}}}
	p := RateLimited(inner, NewKeyedRateLimiter(1, 1))

	hits, err := p.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, types.ProviderPexels, p.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Search(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, 1, inner.searches())

	assert.Same(t, inner, RateLimited(inner, nil))
}

func TestKeyLocks_Serializes(t *testing.T) {
	var locks KeyLocks
	var mu sync.Mutex
	inside, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("pexels:1")
			defer unlock()
			mu.Lock()
			inside++
			peak = max(peak, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}
