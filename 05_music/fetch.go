package music

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// maxTrackBytes bounds a single music download.
const maxTrackBytes = 30 << 20

// TrackSource finds a background music track for a query and returns its
// local path.
type TrackSource interface {
	Fetch(ctx context.Context, query string, rng *rand.Rand) (string, error)
}

// PixabayFetcher searches the Pixabay music API and caches downloads by
// track id.
type PixabayFetcher struct {
	apiKey     string
	baseURL    string
	cacheDir   string
	httpClient *http.Client
	log        *slog.Logger
}

// NewPixabayFetcher creates a fetcher that stores tracks in cacheDir.
func NewPixabayFetcher(apiKey, cacheDir string, timeout time.Duration, log *slog.Logger) *PixabayFetcher {
	return &PixabayFetcher{
		apiKey:     apiKey,
		baseURL:    "https://pixabay.com/api/music/",
		cacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type musicResponse struct {
	Hits []struct {
		ID    int64  `json:"id"`
		Audio string `json:"audio"`
	} `json:"hits"`
}

// Fetch picks one random popular track for query.
func (f *PixabayFetcher) Fetch(ctx context.Context, query string, rng *rand.Rand) (string, error) {
	if f.apiKey == "" {
		return "", fmt.Errorf("PIXABAY_API_KEY not set")
	}

	q := url.Values{}
	q.Set("key", f.apiKey)
	q.Set("q", query)
	q.Set("per_page", "20")
	q.Set("order", "popular")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("music search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("music search returned status %d", resp.StatusCode)
	}

	var res musicResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&res); err != nil {
		return "", fmt.Errorf("decode music search: %w", err)
	}

	var usable []int
	for i, h := range res.Hits {
		if h.Audio != "" {
			usable = append(usable, i)
		}
	}
	if len(usable) == 0 {
		return "", fmt.Errorf("no music found for %q", query)
	}

	track := res.Hits[usable[rng.Intn(len(usable))]]
	path := filepath.Join(f.cacheDir, "bg_"+strconv.FormatInt(track.ID, 10)+".mp3")
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f.log.Debug("reusing cached track", "path", path)
		return path, nil
	}
	if err := f.download(ctx, track.Audio, path); err != nil {
		return "", err
	}
	return path, nil
}

func (f *PixabayFetcher) download(ctx context.Context, src, path string) error {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download track: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download track returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.cacheDir, ".track-*.mp3")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxTrackBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write track: %w", err)
	}
	if n > maxTrackBytes {
		return fmt.Errorf("track exceeds %s", humanize.Bytes(maxTrackBytes))
	}
	if n == 0 {
		return fmt.Errorf("empty track download")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	f.log.Info("track downloaded", "path", filepath.Base(path), "size", humanize.Bytes(uint64(n)))
	return nil
}
